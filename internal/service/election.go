package service

import (
	"context"
	"encoding/csv"
	"fmt"
	"io"
	"strconv"
	"strings"
	"sync"

	"go.uber.org/zap"

	pkgcrypto "github.com/and161185/ballot-keeper/internal/crypto"
	"github.com/and161185/ballot-keeper/internal/errs"
	"github.com/and161185/ballot-keeper/internal/model"
	"github.com/and161185/ballot-keeper/internal/repository"
	"github.com/and161185/ballot-keeper/internal/validate"
)

// ElectionService is the single entry point for the presentation layer.
type ElectionService interface {
	Login(ctx context.Context, principal, secret string, role model.Role) error
	Logout(ctx context.Context)
	StartSession(ctx context.Context) error
	StopSession(ctx context.Context) error
	CastVote(ctx context.Context, voterID, candidateID string) error
	AddCandidate(ctx context.Context, id, name, party string) error
	Results() model.Results
}

// Ledger is what the facade needs from the ledger store.
type Ledger interface {
	repository.AuditLog
	repository.CredentialRepository
	RecordVote(ctx context.Context, voterID, candidateID string) error
	AddCandidate(ctx context.Context, c model.Candidate) error
	AddVoter(ctx context.Context, voterID string) error
	RemoveVoter(ctx context.Context, voterID string) error
	Anonymize(voterID string) string
	Results() model.Results
	Statistics() model.Statistics
	Candidates() []model.Candidate
	Voters() []string
	RecentAudit(n int) []model.AuditEntry
}

// SessionController opens and closes the voting window.
type SessionController interface {
	Start(ctx context.Context) error
	Stop(ctx context.Context) error
	IsActive() bool
}

// MinPasswordLen is the shortest accepted replacement admin password.
const MinPasswordLen = 8

type ElectionServiceImpl struct {
	ledger     Ledger
	auth       AuthService
	session    SessionController
	hashParams pkgcrypto.Params
	log        *zap.Logger

	mu        sync.RWMutex
	principal string
	role      model.Role
}

var _ ElectionService = (*ElectionServiceImpl)(nil)

// NewElectionService composes the facade. Zero hashParams selects crypto.DefaultParams.
func NewElectionService(ledger Ledger, auth AuthService, session SessionController, hashParams pkgcrypto.Params, log *zap.Logger) *ElectionServiceImpl {
	if hashParams == (pkgcrypto.Params{}) {
		hashParams = pkgcrypto.DefaultParams
	}
	if log == nil {
		log = zap.NewNop()
	}
	return &ElectionServiceImpl{
		ledger:     ledger,
		auth:       auth,
		session:    session,
		hashParams: hashParams,
		log:        log.Named("election"),
	}
}

// Login authenticates principal in role and makes it the current principal.
// A voter's secret is ignored; voters are admitted by ID.
func (s *ElectionServiceImpl) Login(ctx context.Context, principal, secret string, role model.Role) error {
	var err error
	switch role {
	case model.RoleAdmin:
		err = s.auth.AuthenticateAdmin(ctx, principal, secret)
	case model.RoleVoter:
		err = s.auth.AuthenticateVoter(ctx, principal)
	default:
		return fmt.Errorf("role %q: %w", role, errs.ErrInvalidFormat)
	}
	if err != nil {
		return err
	}

	s.mu.Lock()
	s.principal, s.role = principal, role
	s.mu.Unlock()

	s.ledger.AppendAudit("LOGIN", s.actor(principal, role), string(role)+" login")
	return nil
}

// Resume restores an admin principal whose login was verified out of band,
// e.g. by a signed session token. The name must still match the stored credential.
func (s *ElectionServiceImpl) Resume(ctx context.Context, principal string, role model.Role) error {
	if role != model.RoleAdmin {
		return fmt.Errorf("resume %s: %w", role, errs.ErrForbidden)
	}
	cred, err := s.ledger.AdminCredential(ctx)
	if err != nil {
		return err
	}
	if cred.Username != principal {
		return errs.ErrUnauthorized
	}
	if s.auth.IsLocked(principal) {
		return errs.ErrRateLimited
	}
	s.mu.Lock()
	s.principal, s.role = principal, role
	s.mu.Unlock()
	s.log.Debug("principal resumed", zap.String("principal", principal))
	return nil
}

// Logout clears the current principal.
func (s *ElectionServiceImpl) Logout(_ context.Context) {
	s.mu.Lock()
	principal, role := s.principal, s.role
	s.principal, s.role = "", model.RoleNone
	s.mu.Unlock()

	if principal == "" {
		return
	}
	s.ledger.AppendAudit("LOGOUT", s.actor(principal, role), "user logged out")
	s.auth.RemoveActiveSession(principal)
}

// CurrentPrincipal returns the logged-in principal and role.
func (s *ElectionServiceImpl) CurrentPrincipal() (string, model.Role) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.principal, s.role
}

func (s *ElectionServiceImpl) actor(principal string, role model.Role) string {
	if role == model.RoleVoter {
		return s.ledger.Anonymize(principal)
	}
	return principal
}

func (s *ElectionServiceImpl) requireAdmin(op string) (string, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.role != model.RoleAdmin {
		return "", fmt.Errorf("%s: %w", op, errs.ErrForbidden)
	}
	return s.principal, nil
}

// StartSession opens a new voting session, discarding previous votes.
func (s *ElectionServiceImpl) StartSession(ctx context.Context) error {
	admin, err := s.requireAdmin("start session")
	if err != nil {
		return err
	}
	if err := s.session.Start(ctx); err != nil {
		return err
	}
	s.ledger.AppendAudit("SESSION_START", admin, "voting session started")
	return nil
}

// StopSession closes the voting session.
func (s *ElectionServiceImpl) StopSession(ctx context.Context) error {
	admin, err := s.requireAdmin("stop session")
	if err != nil {
		return err
	}
	if err := s.session.Stop(ctx); err != nil {
		return err
	}
	s.ledger.AppendAudit("SESSION_STOP", admin, "voting session stopped")
	return nil
}

// CastVote records a ballot for voterID. Registration, prior votes, the candidate
// and session state are checked inside the ledger write itself.
func (s *ElectionServiceImpl) CastVote(ctx context.Context, voterID, candidateID string) error {
	voterID, candidateID = strings.TrimSpace(voterID), strings.TrimSpace(candidateID)
	if voterID == "" || candidateID == "" {
		return fmt.Errorf("cast vote: %w", errs.ErrInvalidFormat)
	}

	if err := s.ledger.RecordVote(ctx, voterID, candidateID); err != nil {
		return err
	}
	// The candidate stays out of the audit line so the log cannot link token to choice.
	s.ledger.AppendAudit("VOTE_CAST", s.ledger.Anonymize(voterID), "vote recorded")
	return nil
}

// AddCandidate validates and appends a candidate.
func (s *ElectionServiceImpl) AddCandidate(ctx context.Context, id, name, party string) error {
	admin, err := s.requireAdmin("add candidate")
	if err != nil {
		return err
	}
	name, party = strings.TrimSpace(name), strings.TrimSpace(party)
	if !validate.CandidateID(id) || !validate.Name(name) || !validate.PartyName(party) {
		return fmt.Errorf("candidate %q: %w", id, errs.ErrInvalidFormat)
	}
	c := model.Candidate{ID: id, Name: name, Party: party}
	if err := s.ledger.AddCandidate(ctx, c); err != nil {
		return err
	}
	s.ledger.AppendAudit("CANDIDATE_ADD", admin, "added candidate: "+c.Display())
	return nil
}

// AddVoter registers a voter ID.
func (s *ElectionServiceImpl) AddVoter(ctx context.Context, voterID string) error {
	admin, err := s.requireAdmin("add voter")
	if err != nil {
		return err
	}
	if err := s.ledger.AddVoter(ctx, voterID); err != nil {
		return err
	}
	s.ledger.AppendAudit("VOTER_ADD", admin, "registered voter "+s.ledger.Anonymize(voterID))
	return nil
}

// RemoveVoter deletes a voter ID from the registry.
func (s *ElectionServiceImpl) RemoveVoter(ctx context.Context, voterID string) error {
	admin, err := s.requireAdmin("remove voter")
	if err != nil {
		return err
	}
	if err := s.ledger.RemoveVoter(ctx, voterID); err != nil {
		return err
	}
	s.ledger.AppendAudit("VOTER_REMOVE", admin, "removed voter "+s.ledger.Anonymize(voterID))
	return nil
}

// ChangeAdminPassword re-verifies the current password, then stores a new hash.
func (s *ElectionServiceImpl) ChangeAdminPassword(ctx context.Context, oldPassword, newPassword string) error {
	admin, err := s.requireAdmin("change password")
	if err != nil {
		return err
	}
	if len(newPassword) < MinPasswordLen || !validate.SafeInput(newPassword) {
		return fmt.Errorf("new password: %w", errs.ErrInvalidFormat)
	}
	if err := s.auth.AuthenticateAdmin(ctx, admin, oldPassword); err != nil {
		return err
	}
	hash, err := pkgcrypto.EncodePassword(newPassword, s.hashParams)
	if err != nil {
		return fmt.Errorf("hash password: %w", err)
	}
	if err := s.ledger.SetAdminCredential(ctx, model.Credential{Username: admin, Hash: hash}); err != nil {
		return err
	}
	s.ledger.AppendAudit("PASSWORD_CHANGE", admin, "admin password replaced")
	return nil
}

// Results returns counts, turnout and the winner.
func (s *ElectionServiceImpl) Results() model.Results { return s.ledger.Results() }

// Statistics summarizes the ledger.
func (s *ElectionServiceImpl) Statistics() model.Statistics { return s.ledger.Statistics() }

// Candidates lists the ballot.
func (s *ElectionServiceImpl) Candidates() []model.Candidate { return s.ledger.Candidates() }

// IsSessionActive reports the voting window state.
func (s *ElectionServiceImpl) IsSessionActive() bool { return s.session.IsActive() }

// Voters lists registered voter IDs.
func (s *ElectionServiceImpl) Voters() ([]string, error) {
	if _, err := s.requireAdmin("list voters"); err != nil {
		return nil, err
	}
	return s.ledger.Voters(), nil
}

// RecentActivity returns the newest n audit entries.
func (s *ElectionServiceImpl) RecentActivity(n int) ([]model.AuditEntry, error) {
	if _, err := s.requireAdmin("activity"); err != nil {
		return nil, err
	}
	return s.ledger.RecentAudit(n), nil
}

var csvHeader = []string{"Candidate_ID", "Candidate_Name", "Party", "Vote_Count", "Percentage"}

// ExportResultsCSV writes one row per candidate with its share of all votes cast.
func (s *ElectionServiceImpl) ExportResultsCSV(w io.Writer) error {
	res := s.ledger.Results()

	cw := csv.NewWriter(w)
	if err := cw.Write(csvHeader); err != nil {
		return err
	}
	for _, c := range res.Counts {
		pct := 0.0
		if res.TotalVotes > 0 {
			pct = float64(c.Votes) * 100 / float64(res.TotalVotes)
		}
		row := []string{
			c.Candidate.ID,
			c.Candidate.Name,
			c.Candidate.Party,
			strconv.Itoa(c.Votes),
			strconv.FormatFloat(pct, 'f', 2, 64) + "%",
		}
		if err := cw.Write(row); err != nil {
			return err
		}
	}
	cw.Flush()
	if err := cw.Error(); err != nil {
		return err
	}

	actor := "SYSTEM"
	if principal, role := s.CurrentPrincipal(); principal != "" {
		actor = s.actor(principal, role)
	}
	s.ledger.AppendAudit("EXPORT_CSV", actor, fmt.Sprintf("results exported, %d candidates", len(res.Counts)))
	return nil
}
