package ledger

import (
	"context"
	"fmt"
	"slices"

	"github.com/and161185/ballot-keeper/internal/model"
)

// Anonymize returns the ledger token for voterID.
func (s *Store) Anonymize(voterID string) string { return s.anon.Anonymize(voterID) }

// IsVoterRegistered reports registry membership.
func (s *Store) IsVoterRegistered(voterID string) bool {
	s.rlock()
	defer s.runlock()
	_, ok := s.registered[voterID]
	return ok
}

// HasVoted reports whether the voter's token is already in the vote log.
func (s *Store) HasVoted(voterID string) bool {
	token := s.anon.Anonymize(voterID)
	s.rlock()
	defer s.runlock()
	return s.engine.HasVoted(token)
}

// IsSessionActive reports the persisted session flag.
func (s *Store) IsSessionActive() bool {
	s.rlock()
	defer s.runlock()
	return s.session.Active
}

// Session returns the session state including the current run ID.
func (s *Store) Session() model.SessionState {
	s.rlock()
	defer s.runlock()
	return s.session
}

// Voters returns a copy of the registry in file order.
func (s *Store) Voters() []string {
	s.rlock()
	defer s.runlock()
	return slices.Clone(s.voters)
}

// Candidates returns candidates in insertion order.
func (s *Store) Candidates() []model.Candidate {
	s.rlock()
	defer s.runlock()
	return s.engine.Candidates()
}

// Tally maps candidate display labels to vote counts.
func (s *Store) Tally() map[string]int {
	s.rlock()
	defer s.runlock()
	return s.engine.Tally()
}

// Turnout is votes cast over registered voters; 0 with an empty registry.
func (s *Store) Turnout() float64 {
	s.rlock()
	defer s.runlock()
	return s.engine.Turnout(len(s.voters))
}

// Results returns a consistent snapshot of counts, turnout and winner.
func (s *Store) Results() model.Results {
	s.rlock()
	defer s.runlock()
	return s.engine.Results(len(s.voters))
}

// Statistics summarizes the ledger.
func (s *Store) Statistics() model.Statistics {
	s.rlock()
	defer s.runlock()
	return model.Statistics{
		Registered:    len(s.voters),
		Candidates:    len(s.engine.Candidates()),
		VotesCast:     s.engine.VotedCount(),
		SessionActive: s.session.Active,
		Turnout:       s.engine.Turnout(len(s.voters)),
	}
}

// AdminCredential returns the stored administrator credential.
func (s *Store) AdminCredential(_ context.Context) (model.Credential, error) {
	s.rlock()
	defer s.runlock()
	return s.cred, nil
}

// CheckFiles verifies that every ledger file exists and is readable.
func (s *Store) CheckFiles() error {
	s.rlock()
	defer s.runlock()
	for _, name := range RequiredFiles {
		if _, err := readRecords(s.path(name)); err != nil {
			return storageErr(fmt.Sprintf("check %s", name), err)
		}
	}
	return nil
}
