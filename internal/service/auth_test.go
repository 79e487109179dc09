package service

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"

	pkgcrypto "github.com/and161185/ballot-keeper/internal/crypto"
	"github.com/and161185/ballot-keeper/internal/errs"
	"github.com/and161185/ballot-keeper/internal/limiter"
	"github.com/and161185/ballot-keeper/internal/model"
	"github.com/and161185/ballot-keeper/internal/repository"
)

var fastParams = pkgcrypto.Params{Time: 1, Memory: 8 * 1024, Threads: 1, KeyLen: 32}

type fakeCreds struct {
	cred   model.Credential
	getErr error
	setErr error
}

var _ repository.CredentialRepository = (*fakeCreds)(nil)

func newFakeCreds(t *testing.T, user, pass string) *fakeCreds {
	t.Helper()
	hash, err := pkgcrypto.EncodePassword(pass, fastParams)
	require.NoError(t, err)
	return &fakeCreds{cred: model.Credential{Username: user, Hash: hash}}
}

func (f *fakeCreds) AdminCredential(context.Context) (model.Credential, error) {
	return f.cred, f.getErr
}

func (f *fakeCreds) SetAdminCredential(_ context.Context, c model.Credential) error {
	if f.setErr != nil {
		return f.setErr
	}
	f.cred = c
	return nil
}

type fakeDirectory struct {
	registered map[string]bool
	voted      map[string]bool
	active     bool
}

var _ repository.VoterDirectory = (*fakeDirectory)(nil)

func (f *fakeDirectory) IsVoterRegistered(id string) bool { return f.registered[id] }
func (f *fakeDirectory) HasVoted(id string) bool          { return f.voted[id] }
func (f *fakeDirectory) IsSessionActive() bool            { return f.active }

type fakeAudit struct {
	mu      sync.Mutex
	actions []string
	actors  []string
}

var _ repository.AuditLog = (*fakeAudit)(nil)

func (f *fakeAudit) AppendAudit(action, actor, _ string) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.actions = append(f.actions, action)
	f.actors = append(f.actors, actor)
}

func (f *fakeAudit) has(action string) bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	for _, a := range f.actions {
		if a == action {
			return true
		}
	}
	return false
}

type fakeIntegrity struct{ err error }

var _ repository.IntegrityChecker = (*fakeIntegrity)(nil)

func (f *fakeIntegrity) CheckFiles() error { return f.err }

type fakeClock struct {
	mu sync.Mutex
	t  time.Time
}

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.t
}

func (c *fakeClock) Advance(d time.Duration) {
	c.mu.Lock()
	c.t = c.t.Add(d)
	c.mu.Unlock()
}

type authFixture struct {
	svc   *AuthServiceImpl
	creds *fakeCreds
	dir   *fakeDirectory
	audit *fakeAudit
	clock *fakeClock
	lim   *limiter.Memory
}

func newAuthFixture(t *testing.T) *authFixture {
	t.Helper()
	clk := &fakeClock{t: time.Date(2024, 5, 1, 9, 0, 0, 0, time.UTC)}
	f := &authFixture{
		creds: newFakeCreds(t, "admin", "admin123"),
		dir: &fakeDirectory{
			registered: map[string]bool{"10000001": true, "10000002": true},
			voted:      map[string]bool{"10000002": true},
			active:     true,
		},
		audit: &fakeAudit{},
		clock: clk,
		lim:   limiter.NewMemory(3, 15*time.Minute).WithClock(clk.Now),
	}
	f.svc = NewAuthService(AuthConfig{
		Credentials: f.creds,
		Voters:      f.dir,
		Audit:       f.audit,
		Integrity:   &fakeIntegrity{},
		Limiter:     f.lim,
		Logger:      zaptest.NewLogger(t),
		Now:         clk.Now,
	})
	return f
}

func TestAuth_AuthenticateAdmin_Basics(t *testing.T) {
	t.Parallel()
	f := newAuthFixture(t)
	ctx := context.Background()

	require.NoError(t, f.svc.AuthenticateAdmin(ctx, "admin", "admin123"))
	require.True(t, f.svc.IsActiveSession("admin"))
	require.True(t, f.audit.has("SECURITY_ADMIN_AUTH_SUCCESS"))

	require.ErrorIs(t, f.svc.AuthenticateAdmin(ctx, "admin", "wrong"), errs.ErrUnauthorized)
	require.ErrorIs(t, f.svc.AuthenticateAdmin(ctx, "root", "admin123"), errs.ErrUnauthorized)
	require.True(t, f.audit.has("SECURITY_ADMIN_AUTH_FAILURE"))

	err := f.svc.AuthenticateAdmin(ctx, "admin", "<script>")
	require.ErrorIs(t, err, errs.ErrInvalidFormat)
	require.True(t, f.audit.has("SECURITY_ADMIN_AUTH_INVALID_INPUT"))
}

func TestAuth_AuthenticateAdmin_LockoutWindow(t *testing.T) {
	t.Parallel()
	f := newAuthFixture(t)
	ctx := context.Background()

	for i := 0; i < 3; i++ {
		require.ErrorIs(t, f.svc.AuthenticateAdmin(ctx, "admin", "nope"), errs.ErrUnauthorized)
	}
	require.True(t, f.audit.has("SECURITY_ACCOUNT_LOCKED"))
	require.True(t, f.svc.IsLocked("admin"))

	// Correct credentials are refused while locked.
	require.ErrorIs(t, f.svc.AuthenticateAdmin(ctx, "admin", "admin123"), errs.ErrRateLimited)
	require.True(t, f.audit.has("SECURITY_ADMIN_AUTH_BLOCKED"))
	require.False(t, f.svc.IsActiveSession("admin"))

	f.clock.Advance(15*time.Minute + time.Second)
	require.False(t, f.svc.IsLocked("admin"))
	require.NoError(t, f.svc.AuthenticateAdmin(ctx, "admin", "admin123"))
	require.Empty(t, f.lim.Snapshot())
}

func TestAuth_InvalidInputCountsTowardLock(t *testing.T) {
	t.Parallel()
	f := newAuthFixture(t)
	ctx := context.Background()

	require.ErrorIs(t, f.svc.AuthenticateAdmin(ctx, "admin", ""), errs.ErrInvalidFormat)
	require.ErrorIs(t, f.svc.AuthenticateAdmin(ctx, "admin", "x'y"), errs.ErrInvalidFormat)
	require.ErrorIs(t, f.svc.AuthenticateAdmin(ctx, "admin", "bad"), errs.ErrUnauthorized)
	require.True(t, f.svc.IsLocked("admin"))
}

func TestAuth_AuthenticateAdmin_CredentialStoreError(t *testing.T) {
	t.Parallel()
	f := newAuthFixture(t)
	f.creds.getErr = errs.ErrStorage

	err := f.svc.AuthenticateAdmin(context.Background(), "admin", "admin123")
	require.ErrorIs(t, err, errs.ErrStorage)
	require.False(t, f.svc.IsActiveSession("admin"))
}

type fakeLimiter struct {
	*limiter.Memory
	allowErr error
}

func (l *fakeLimiter) Allow(context.Context, string) (bool, time.Duration, error) {
	return false, 0, l.allowErr
}

func TestAuth_LimiterErrorPropagates(t *testing.T) {
	t.Parallel()
	boom := errors.New("limiter down")
	svc := NewAuthService(AuthConfig{
		Credentials: newFakeCreds(t, "admin", "admin123"),
		Limiter:     &fakeLimiter{Memory: limiter.NewMemory(3, time.Minute), allowErr: boom},
	})
	require.ErrorIs(t, svc.AuthenticateAdmin(context.Background(), "admin", "admin123"), boom)
}

func TestAuth_AuthenticateVoter(t *testing.T) {
	t.Parallel()
	f := newAuthFixture(t)
	ctx := context.Background()

	require.ErrorIs(t, f.svc.AuthenticateVoter(ctx, "12345678"), errs.ErrInvalidFormat)
	require.ErrorIs(t, f.svc.AuthenticateVoter(ctx, "10000003"), errs.ErrNotRegistered)
	require.ErrorIs(t, f.svc.AuthenticateVoter(ctx, "10000002"), errs.ErrAlreadyVoted)

	f.dir.active = false
	require.ErrorIs(t, f.svc.AuthenticateVoter(ctx, "10000001"), errs.ErrSessionInactive)

	f.dir.active = true
	require.NoError(t, f.svc.AuthenticateVoter(ctx, "10000001"))
	require.True(t, f.svc.IsActiveSession("10000001"))

	for _, a := range []string{
		"SECURITY_VOTER_AUTH_INVALID_FORMAT",
		"SECURITY_VOTER_AUTH_NOT_REGISTERED",
		"SECURITY_VOTER_AUTH_ALREADY_VOTED",
		"SECURITY_VOTER_AUTH_SESSION_INACTIVE",
		"SECURITY_VOTER_AUTH_SUCCESS",
	} {
		require.True(t, f.audit.has(a), a)
	}
	// Voter identities never reach the audit log in clear.
	for _, actor := range f.audit.actors {
		require.NotEqual(t, "10000001", actor)
	}

	f.svc.RemoveActiveSession("10000001")
	require.False(t, f.svc.IsActiveSession("10000001"))
	require.True(t, f.audit.has("SECURITY_SESSION_END"))
}

func TestAuth_AuthenticateVoter_Offline(t *testing.T) {
	t.Parallel()
	svc := NewAuthService(AuthConfig{
		Credentials: newFakeCreds(t, "admin", "admin123"),
		Limiter:     limiter.NewMemory(0, 0),
	})
	ctx := context.Background()

	require.NoError(t, svc.AuthenticateVoter(ctx, "99999998"))
	require.ErrorIs(t, svc.AuthenticateVoter(ctx, "99999999"), errs.ErrInvalidFormat)
	require.Equal(t, []string{"99999998"}, svc.ActiveSessions())
}

func TestAuth_SuspiciousActivity(t *testing.T) {
	t.Parallel()
	f := newAuthFixture(t)
	ctx := context.Background()

	require.Empty(t, f.svc.SuspiciousActivity())

	_ = f.svc.AuthenticateAdmin(ctx, "alice", "x")
	_ = f.svc.AuthenticateAdmin(ctx, "alice", "x")
	got := f.svc.SuspiciousActivity()
	require.Len(t, got, 1)
	require.Contains(t, got[0], "alice")

	_ = f.svc.AuthenticateAdmin(ctx, "alice", "x")
	got = f.svc.SuspiciousActivity()
	require.Len(t, got, 2)
	require.Contains(t, got[1], "account locked: alice")

	f.svc.ClearState()
	require.Empty(t, f.svc.SuspiciousActivity())

	svc := NewAuthService(AuthConfig{Credentials: f.creds, Limiter: limiter.NewMemory(0, 0)})
	for i := 0; i <= SuspiciousSessionCount; i++ {
		require.NoError(t, svc.AuthenticateVoter(ctx, fmt.Sprintf("2000%04d", i+1)))
	}
	got = svc.SuspiciousActivity()
	require.Len(t, got, 1)
	require.Contains(t, got[0], "active sessions: 11")
}

func TestAuth_EmergencyLockdown(t *testing.T) {
	t.Parallel()
	f := newAuthFixture(t)
	ctx := context.Background()

	require.NoError(t, f.svc.AuthenticateAdmin(ctx, "admin", "admin123"))
	require.NoError(t, f.svc.AuthenticateVoter(ctx, "10000001"))
	require.NoError(t, f.svc.EmergencyLockdown(ctx))

	require.Empty(t, f.svc.ActiveSessions())
	require.ErrorIs(t, f.svc.AuthenticateAdmin(ctx, "admin", "admin123"), errs.ErrRateLimited)
	f.clock.Advance(59 * time.Minute)
	require.True(t, f.svc.IsLocked("admin"))
	f.clock.Advance(time.Minute)
	require.NoError(t, f.svc.AuthenticateAdmin(ctx, "admin", "admin123"))
	require.True(t, f.audit.has("SECURITY_EMERGENCY_LOCKDOWN"))
}

func TestAuth_ValidateIntegrity(t *testing.T) {
	t.Parallel()
	f := newAuthFixture(t)
	require.True(t, f.svc.ValidateIntegrity())

	broken := NewAuthService(AuthConfig{
		Credentials: f.creds,
		Limiter:     f.lim,
		Integrity:   &fakeIntegrity{err: errs.ErrStorage},
		Audit:       f.audit,
	})
	require.False(t, broken.ValidateIntegrity())
	require.True(t, f.audit.has("SECURITY_INTEGRITY_CHECK"))

	require.False(t, NewAuthService(AuthConfig{Credentials: f.creds, Limiter: f.lim}).ValidateIntegrity())
}

func TestAuth_ObfuscateAndToken(t *testing.T) {
	t.Parallel()
	f := newAuthFixture(t)

	enc, err := f.svc.Obfuscate("sensitive")
	require.NoError(t, err)
	require.NotEqual(t, "sensitive", enc)
	dec, err := f.svc.Deobfuscate(enc)
	require.NoError(t, err)
	require.Equal(t, "sensitive", dec)

	_, err = f.svc.Deobfuscate("%%%not-base64")
	require.Error(t, err)
	require.Equal(t, "DECRYPT_ERROR", f.svc.RecentEvents(1)[0].Event)

	tok, err := f.svc.GenerateToken()
	require.NoError(t, err)
	require.Len(t, tok, 44)
}

func TestAuth_EventTailAndReport(t *testing.T) {
	t.Parallel()
	f := newAuthFixture(t)
	svc := NewAuthService(AuthConfig{
		Credentials: f.creds,
		Limiter:     f.lim,
		Integrity:   &fakeIntegrity{},
		EventTail:   3,
		Now:         f.clock.Now,
	})
	ctx := context.Background()
	for i := 0; i < 5; i++ {
		_ = svc.AuthenticateVoter(ctx, "bad")
	}
	require.Len(t, svc.RecentEvents(100), 3)
	require.Len(t, svc.RecentEvents(2), 2)
	require.Empty(t, svc.RecentEvents(0))
	require.Empty(t, svc.RecentEvents(-3))

	_ = svc.AuthenticateAdmin(ctx, "admin", "nope")
	_ = svc.AuthenticateAdmin(ctx, "admin", "nope")
	require.NoError(t, svc.AuthenticateVoter(ctx, "10000001"))

	report := svc.Report()
	require.True(t, strings.HasPrefix(report, "BALLOT KEEPER SECURITY REPORT"))
	require.Contains(t, report, "ACTIVE SESSIONS: 1")
	require.NotContains(t, report, "10000001")
	require.Contains(t, report, "multiple failed login attempts from: admin")
	require.Contains(t, report, "integrity: PASS")
}
