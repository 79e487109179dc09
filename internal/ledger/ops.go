package ledger

import (
	"context"
	"fmt"
	"slices"

	"github.com/gofrs/uuid/v5"
	"go.uber.org/zap"

	"github.com/and161185/ballot-keeper/internal/errs"
	"github.com/and161185/ballot-keeper/internal/model"
	"github.com/and161185/ballot-keeper/internal/validate"
)

// RecordVote appends one vote for the registered voter. The check sequence is
// registration, prior vote, candidate existence, session; the first failure wins
// and nothing is written. The checks run against a fresh read of the files under
// the directory lock, so two processes cannot both record the same token.
func (s *Store) RecordVote(ctx context.Context, voterID, candidateID string) error {
	if err := s.lock(ctx); err != nil {
		return err
	}
	defer s.unlock()
	if err := s.refreshLocked(); err != nil {
		return err
	}

	if _, ok := s.registered[voterID]; !ok {
		return errs.ErrNotRegistered
	}
	token := s.anon.Anonymize(voterID)
	if s.engine.HasVoted(token) {
		return errs.ErrAlreadyVoted
	}
	if !s.engine.HasCandidate(candidateID) {
		return errs.ErrUnknownCandidate
	}
	if !s.session.Active {
		return errs.ErrSessionInactive
	}

	v := model.Vote{Timestamp: s.now(), Token: token, CandidateID: candidateID}
	touched, err := appendRecord(s.path(VotesFile), formatVote(v))
	if err != nil {
		if touched {
			s.recoverLocked("record vote")
		}
		return storageErr("append vote", err)
	}
	s.engine.Record(token, candidateID)
	return nil
}

// AddCandidate appends a candidate. Field format is the caller's concern; the store
// only refuses values it cannot frame and duplicate IDs.
func (s *Store) AddCandidate(ctx context.Context, c model.Candidate) error {
	if !encodable(c.ID, c.Name, c.Party) {
		return fmt.Errorf("candidate fields: %w", errs.ErrInvalidFormat)
	}
	if err := s.lock(ctx); err != nil {
		return err
	}
	defer s.unlock()
	if err := s.refreshLocked(); err != nil {
		return err
	}

	if s.engine.HasCandidate(c.ID) {
		return fmt.Errorf("candidate %s: %w", c.ID, errs.ErrAlreadyExists)
	}
	touched, err := appendRecord(s.path(CandidatesFile), formatCandidate(c))
	if err != nil {
		if touched {
			s.recoverLocked("add candidate")
		}
		return storageErr("append candidate", err)
	}
	s.engine.AddCandidate(c)
	return nil
}

// AddVoter registers a new voter ID.
func (s *Store) AddVoter(ctx context.Context, voterID string) error {
	if !validate.VoterID(voterID) {
		return fmt.Errorf("voter id: %w", errs.ErrInvalidFormat)
	}
	if err := s.lock(ctx); err != nil {
		return err
	}
	defer s.unlock()
	if err := s.refreshLocked(); err != nil {
		return err
	}

	if _, ok := s.registered[voterID]; ok {
		return fmt.Errorf("voter %s: %w", voterID, errs.ErrAlreadyExists)
	}
	if len(s.voters) >= s.capacity {
		return fmt.Errorf("%d voters: %w", len(s.voters), errs.ErrCapacityExceeded)
	}
	next := append(slices.Clone(s.voters), voterID)
	if err := writeFile(s.path(VotersFile), votersHeader, next, totalFooter(len(next))); err != nil {
		return storageErr("rewrite voters", err)
	}
	s.voters = next
	s.registered[voterID] = struct{}{}
	return nil
}

// RemoveVoter deletes a voter from the registry. Votes already cast stay counted.
func (s *Store) RemoveVoter(ctx context.Context, voterID string) error {
	if err := s.lock(ctx); err != nil {
		return err
	}
	defer s.unlock()
	if err := s.refreshLocked(); err != nil {
		return err
	}

	i := slices.Index(s.voters, voterID)
	if i < 0 {
		return fmt.Errorf("voter %s: %w", voterID, errs.ErrNotFound)
	}
	next := slices.Delete(slices.Clone(s.voters), i, i+1)
	if err := writeFile(s.path(VotersFile), votersHeader, next, totalFooter(len(next))); err != nil {
		return storageErr("rewrite voters", err)
	}
	s.voters = next
	delete(s.registered, voterID)
	return nil
}

// SetSessionActive persists the session flag. A new run ID is minted on activation.
func (s *Store) SetSessionActive(ctx context.Context, active bool) error {
	if err := s.lock(ctx); err != nil {
		return err
	}
	defer s.unlock()
	if err := s.refreshLocked(); err != nil {
		return err
	}

	st := model.SessionState{Active: active, ChangedAt: s.now()}
	if active {
		id, err := uuid.NewV4()
		if err != nil {
			return fmt.Errorf("run id: %w", err)
		}
		st.RunID = id
	}
	if err := writeFile(s.path(SessionFile), sessionHeader, sessionRecords(st)); err != nil {
		return storageErr("rewrite session", err)
	}
	s.session = st
	s.log.Info("session flag changed", zap.Bool("active", active), zap.Stringer("runID", st.RunID))
	return nil
}

// ClearVotingData truncates the vote log to its header and zeroes the tally.
// Candidates and voters are kept.
func (s *Store) ClearVotingData(ctx context.Context) error {
	if err := s.lock(ctx); err != nil {
		return err
	}
	defer s.unlock()
	if err := s.refreshLocked(); err != nil {
		return err
	}

	if err := writeFile(s.path(VotesFile), votesHeader, nil); err != nil {
		return storageErr("truncate votes", err)
	}
	s.engine.Reset()
	return nil
}

// SetAdminCredential replaces the stored administrator credential.
func (s *Store) SetAdminCredential(ctx context.Context, cred model.Credential) error {
	if !encodable(cred.Username) || cred.Hash == "" || !encodable(cred.Hash) {
		return fmt.Errorf("credential: %w", errs.ErrInvalidFormat)
	}
	if err := s.lock(ctx); err != nil {
		return err
	}
	defer s.unlock()
	if err := s.refreshLocked(); err != nil {
		return err
	}

	if err := writeFile(s.path(AdminFile), adminHeader, []string{formatCredential(cred)}); err != nil {
		return storageErr("rewrite admin", err)
	}
	s.cred = cred
	return nil
}
