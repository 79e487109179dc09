// Package service contains the security manager and the election facade.
package service

import (
	"context"
	"crypto/subtle"
	"fmt"
	"slices"
	"sort"
	"strings"
	"sync"
	"time"

	"go.uber.org/zap"

	pkgcrypto "github.com/and161185/ballot-keeper/internal/crypto"
	"github.com/and161185/ballot-keeper/internal/errs"
	"github.com/and161185/ballot-keeper/internal/limiter"
	"github.com/and161185/ballot-keeper/internal/model"
	"github.com/and161185/ballot-keeper/internal/repository"
	"github.com/and161185/ballot-keeper/internal/validate"
)

const (
	// DefaultEventTail bounds the in-memory security event list.
	DefaultEventTail = 200
	// SuspiciousSessionCount is the active-session count above which activity is flagged.
	SuspiciousSessionCount = 10
	// LockdownDuration is how long EmergencyLockdown blocks the admin account.
	LockdownDuration = time.Hour

	auditPrefix = "SECURITY_"
)

// AuthService defines principal verification and security bookkeeping.
type AuthService interface {
	// AuthenticateAdmin verifies administrator credentials; nil means authenticated.
	AuthenticateAdmin(ctx context.Context, username, password string) error
	// AuthenticateVoter admits a voter ID; nil means authenticated.
	AuthenticateVoter(ctx context.Context, voterID string) error
	// IsLocked reports whether username is locked out.
	IsLocked(username string) bool
	// RemoveActiveSession forgets an authenticated principal.
	RemoveActiveSession(id string)
	// IsActiveSession reports whether id is authenticated.
	IsActiveSession(id string) bool
	// ValidateIntegrity checks the durable files.
	ValidateIntegrity() bool
	// SuspiciousActivity summarizes suspicious patterns.
	SuspiciousActivity() []string
}

// AuthConfig wires an AuthServiceImpl. Credentials and Limiter are required.
type AuthConfig struct {
	Credentials repository.CredentialRepository
	// Voters enables registry checks in AuthenticateVoter; nil runs format-only (offline) admission.
	Voters     repository.VoterDirectory
	Audit      repository.AuditLog
	Integrity  repository.IntegrityChecker
	Limiter    limiter.Tracker
	Obfuscator pkgcrypto.Obfuscator
	// Anonymizer masks voter IDs in security events.
	Anonymizer pkgcrypto.Anonymizer
	EventTail  int
	Logger     *zap.Logger
	Now        func() time.Time
}

type AuthServiceImpl struct {
	// mu covers attempts, sessions and events for a whole authenticate-then-audit step.
	// Lock order: mu before any ledger lock.
	mu sync.Mutex

	creds     repository.CredentialRepository
	voters    repository.VoterDirectory
	audit     repository.AuditLog
	integrity repository.IntegrityChecker
	lim       limiter.Tracker
	obf       pkgcrypto.Obfuscator
	anon      pkgcrypto.Anonymizer
	log       *zap.Logger
	now       func() time.Time

	sessions  map[string]time.Time
	events    []model.SecurityEvent
	eventTail int
}

var _ AuthService = (*AuthServiceImpl)(nil)

// NewAuthService constructs AuthService with required dependencies.
func NewAuthService(cfg AuthConfig) *AuthServiceImpl {
	if cfg.Obfuscator == nil {
		cfg.Obfuscator = pkgcrypto.XORObfuscator{}
	}
	if cfg.Anonymizer == nil {
		cfg.Anonymizer = pkgcrypto.FNVAnonymizer{}
	}
	if cfg.EventTail <= 0 {
		cfg.EventTail = DefaultEventTail
	}
	if cfg.Logger == nil {
		cfg.Logger = zap.NewNop()
	}
	if cfg.Now == nil {
		cfg.Now = time.Now
	}
	return &AuthServiceImpl{
		creds:     cfg.Credentials,
		voters:    cfg.Voters,
		audit:     cfg.Audit,
		integrity: cfg.Integrity,
		lim:       cfg.Limiter,
		obf:       cfg.Obfuscator,
		anon:      cfg.Anonymizer,
		log:       cfg.Logger.Named("security"),
		now:       cfg.Now,
		sessions:  make(map[string]time.Time),
		eventTail: cfg.EventTail,
	}
}

// AuthenticateAdmin applies lockout, input screening and credential verification.
func (s *AuthServiceImpl) AuthenticateAdmin(ctx context.Context, username, password string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	allowed, retry, err := s.lim.Allow(ctx, username)
	if err != nil {
		return err
	}
	if !allowed {
		s.eventLocked("ADMIN_AUTH_BLOCKED", username, "account locked due to excessive attempts")
		return fmt.Errorf("%w: retry in %s", errs.ErrRateLimited, retry.Round(time.Second))
	}

	if !validate.SafeInput(username) || !validate.SafeInput(password) {
		s.eventLocked("ADMIN_AUTH_INVALID_INPUT", username, "invalid input format")
		if err := s.failLocked(ctx, username); err != nil {
			return err
		}
		return fmt.Errorf("admin credentials: %w", errs.ErrInvalidFormat)
	}

	cred, err := s.creds.AdminCredential(ctx)
	if err != nil {
		s.eventLocked("ADMIN_AUTH_ERROR", username, err.Error())
		return fmt.Errorf("load admin credential: %w", err)
	}

	nameOK := subtle.ConstantTimeCompare([]byte(username), []byte(cred.Username)) == 1
	passOK, err := pkgcrypto.VerifyEncoded(password, cred.Hash)
	if err != nil {
		s.log.Error("stored admin hash is unreadable", zap.Error(err))
	}
	if !nameOK || !passOK {
		s.eventLocked("ADMIN_AUTH_FAILURE", username, "invalid credentials provided")
		if err := s.failLocked(ctx, username); err != nil {
			return err
		}
		return errs.ErrUnauthorized
	}

	if err := s.lim.Success(ctx, username); err != nil {
		s.log.Warn("reset login attempts", zap.String("username", username), zap.Error(err))
	}
	s.sessions[username] = s.now()
	s.eventLocked("ADMIN_AUTH_SUCCESS", username, "admin authentication successful")
	return nil
}

func (s *AuthServiceImpl) failLocked(ctx context.Context, username string) error {
	blocked, d, err := s.lim.Failure(ctx, username)
	if err != nil {
		return err
	}
	if blocked {
		s.eventLocked("ACCOUNT_LOCKED", username, "account locked for "+d.Round(time.Second).String())
	}
	return nil
}

// AuthenticateVoter admits a voter. With a directory attached the voter must be
// registered, must not have voted and the session must be active. Without one,
// format validity is enough.
func (s *AuthServiceImpl) AuthenticateVoter(_ context.Context, voterID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	subject := s.anon.Anonymize(voterID)
	if !validate.VoterID(voterID) {
		s.eventLocked("VOTER_AUTH_INVALID_FORMAT", subject, "invalid voter id format")
		return fmt.Errorf("voter id: %w", errs.ErrInvalidFormat)
	}
	if s.voters != nil {
		if !s.voters.IsVoterRegistered(voterID) {
			s.eventLocked("VOTER_AUTH_NOT_REGISTERED", subject, "voter id not in registry")
			return errs.ErrNotRegistered
		}
		if s.voters.HasVoted(voterID) {
			s.eventLocked("VOTER_AUTH_ALREADY_VOTED", subject, "voter has already cast a vote")
			return errs.ErrAlreadyVoted
		}
		if !s.voters.IsSessionActive() {
			s.eventLocked("VOTER_AUTH_SESSION_INACTIVE", subject, "voting session not active")
			return errs.ErrSessionInactive
		}
	}
	s.sessions[voterID] = s.now()
	s.eventLocked("VOTER_AUTH_SUCCESS", subject, "voter authentication successful")
	return nil
}

// IsLocked reports whether username is locked; an expired lock is cleared by the check.
func (s *AuthServiceImpl) IsLocked(username string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.lim.IsLocked(username)
}

// RemoveActiveSession forgets id.
func (s *AuthServiceImpl) RemoveActiveSession(id string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.sessions[id]; !ok {
		return
	}
	delete(s.sessions, id)
	subject := id
	if validate.VoterID(id) {
		subject = s.anon.Anonymize(id)
	}
	s.eventLocked("SESSION_END", subject, "user session ended")
}

// IsActiveSession reports whether id is authenticated.
func (s *AuthServiceImpl) IsActiveSession(id string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	_, ok := s.sessions[id]
	return ok
}

// ActiveSessions returns the authenticated principals, sorted.
func (s *AuthServiceImpl) ActiveSessions() []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.activeLocked()
}

func (s *AuthServiceImpl) activeLocked() []string {
	out := make([]string, 0, len(s.sessions))
	for id := range s.sessions {
		out = append(out, id)
	}
	sort.Strings(out)
	return out
}

// GenerateToken returns a fresh opaque token.
func (s *AuthServiceImpl) GenerateToken() (string, error) {
	return pkgcrypto.GenerateToken()
}

// Obfuscate hides a string from casual reading. It is not encryption unless the
// service was built with an AEAD obfuscator.
func (s *AuthServiceImpl) Obfuscate(plain string) (string, error) {
	return s.obf.Obfuscate(plain)
}

// Deobfuscate reverses Obfuscate.
func (s *AuthServiceImpl) Deobfuscate(encoded string) (string, error) {
	out, err := s.obf.Deobfuscate(encoded)
	if err != nil {
		s.mu.Lock()
		s.eventLocked("DECRYPT_ERROR", "SYSTEM", err.Error())
		s.mu.Unlock()
		return "", err
	}
	return out, nil
}

// ValidateIntegrity checks that every durable file is present and readable.
func (s *AuthServiceImpl) ValidateIntegrity() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.integrityLocked()
}

func (s *AuthServiceImpl) integrityLocked() bool {
	if s.integrity == nil {
		s.eventLocked("INTEGRITY_CHECK", "SYSTEM", "no integrity checker attached")
		return false
	}
	if err := s.integrity.CheckFiles(); err != nil {
		s.eventLocked("INTEGRITY_CHECK", "SYSTEM", "integrity check failed: "+err.Error())
		return false
	}
	s.eventLocked("INTEGRITY_CHECK", "SYSTEM", "integrity validation passed")
	return true
}

// SuspiciousActivity lists usernames with repeated failures, locked accounts and an
// unusually high active-session count.
func (s *AuthServiceImpl) SuspiciousActivity() []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.suspiciousLocked()
}

func (s *AuthServiceImpl) suspiciousLocked() []string {
	snap := s.lim.Snapshot()
	names := make([]string, 0, len(snap))
	for u := range snap {
		names = append(names, u)
	}
	sort.Strings(names)

	now := s.now()
	var out []string
	for _, u := range names {
		if snap[u].Failures >= 2 {
			out = append(out, "multiple failed login attempts from: "+u)
		}
	}
	for _, u := range names {
		if r := snap[u]; r.Locked(now) {
			out = append(out, "account locked: "+u+" until "+r.LockedUntil.UTC().Format(time.RFC3339))
		}
	}
	if n := len(s.sessions); n > SuspiciousSessionCount {
		out = append(out, fmt.Sprintf("unusually high number of active sessions: %d", n))
	}
	return out
}

// RecentEvents returns up to n of the newest security events, oldest first.
func (s *AuthServiceImpl) RecentEvents(n int) []model.SecurityEvent {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.recentLocked(n)
}

func (s *AuthServiceImpl) recentLocked(n int) []model.SecurityEvent {
	if n <= 0 {
		return []model.SecurityEvent{}
	}
	n = min(n, len(s.events))
	return slices.Clone(s.events[len(s.events)-n:])
}

// Report renders a plain-text security summary.
func (s *AuthServiceImpl) Report() string {
	s.mu.Lock()
	defer s.mu.Unlock()

	var b strings.Builder
	b.WriteString("BALLOT KEEPER SECURITY REPORT\n")
	b.WriteString("=============================\n\n")
	fmt.Fprintf(&b, "Generated: %s\n\n", s.now().UTC().Format(time.RFC3339))

	active := s.activeLocked()
	fmt.Fprintf(&b, "ACTIVE SESSIONS: %d\n", len(active))
	for _, id := range active {
		if validate.VoterID(id) {
			id = s.anon.Anonymize(id)
		}
		fmt.Fprintf(&b, "  - %s\n", id)
	}

	b.WriteString("\nRECENT EVENTS:\n")
	for _, e := range s.recentLocked(10) {
		fmt.Fprintf(&b, "  - %s\n", e)
	}

	b.WriteString("\nSUSPICIOUS ACTIVITY:\n")
	sus := s.suspiciousLocked()
	if len(sus) == 0 {
		b.WriteString("  - none detected\n")
	}
	for _, line := range sus {
		fmt.Fprintf(&b, "  - %s\n", line)
	}

	snap := s.lim.Snapshot()
	locked := 0
	now := s.now()
	for _, r := range snap {
		if r.Locked(now) {
			locked++
		}
	}
	integrity := "FAIL"
	if s.integrityLocked() {
		integrity = "PASS"
	}
	b.WriteString("\nSTATUS:\n")
	fmt.Fprintf(&b, "  - integrity: %s\n", integrity)
	fmt.Fprintf(&b, "  - usernames with failed attempts: %d\n", len(snap))
	fmt.Fprintf(&b, "  - locked accounts: %d\n", locked)
	return b.String()
}

// ClearState forgets attempts, locks and active sessions.
func (s *AuthServiceImpl) ClearState() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.lim.Clear()
	s.sessions = make(map[string]time.Time)
	s.eventLocked("RESET", "SYSTEM", "all security state cleared")
}

// EmergencyLockdown drops every active session and locks the admin account.
func (s *AuthServiceImpl) EmergencyLockdown(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	cred, err := s.creds.AdminCredential(ctx)
	if err != nil {
		return fmt.Errorf("load admin credential: %w", err)
	}
	s.sessions = make(map[string]time.Time)
	s.lim.Lock(cred.Username, LockdownDuration)
	s.eventLocked("EMERGENCY_LOCKDOWN", "SYSTEM", "all sessions terminated and admin locked")
	return nil
}

// eventLocked records a security event in the tail, the logger and the audit log.
func (s *AuthServiceImpl) eventLocked(event, subject, detail string) {
	e := model.SecurityEvent{Timestamp: s.now(), Event: event, Subject: subject, Detail: detail}
	s.events = append(s.events, e)
	if over := len(s.events) - s.eventTail; over > 0 {
		s.events = slices.Delete(s.events, 0, over)
	}

	s.log.Info("security event",
		zap.String("event", event),
		zap.String("subject", subject),
		zap.String("detail", detail),
	)
	if s.audit != nil {
		s.audit.AppendAudit(auditPrefix+event, subject, detail)
	}
}
