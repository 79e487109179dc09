// Package ledger is the durable, line-oriented store for voters, candidates, votes,
// the session flag, the admin credential and the activity log. It keeps an in-memory
// mirror that every mutation updates under one store-wide exclusion. Writers also hold
// an advisory lock on the data directory and reload the files first, so several
// processes may share one directory.
package ledger

import (
	"context"
	"fmt"
	"math/rand"
	"os"
	"path/filepath"
	"strconv"
	"sync"
	"time"

	"github.com/gofrs/flock"
	"go.uber.org/zap"
	"golang.org/x/sync/semaphore"

	pkgcrypto "github.com/and161185/ballot-keeper/internal/crypto"
	"github.com/and161185/ballot-keeper/internal/errs"
	"github.com/and161185/ballot-keeper/internal/model"
	"github.com/and161185/ballot-keeper/internal/repository"
	"github.com/and161185/ballot-keeper/internal/tally"
	"github.com/and161185/ballot-keeper/internal/validate"
)

// Defaults applied by New when an Options field is zero.
const (
	DefaultCapacity      = 20
	DefaultSeed          = 12345
	DefaultAuditTail     = 100
	DefaultAdminUsername = "admin"
	// DefaultAdminPassword is a development bootstrap value; deployments must change it.
	DefaultAdminPassword = "admin123"
)

// writeWeight is acquired by writers; readers take 1, so any writer excludes all readers.
const writeWeight int64 = 1 << 30

const archiveTimeout = 2 * time.Second

// lockRetry is the poll interval while another process holds the directory lock.
const lockRetry = 10 * time.Millisecond

// Options configure a Store.
type Options struct {
	Dir        string
	Capacity   int
	Seed       int64
	AuditTail  int
	Anonymizer pkgcrypto.Anonymizer
	HashParams pkgcrypto.Params
	Archive    repository.AuditArchive
	Logger     *zap.Logger
	Now        func() time.Time
}

// Store is the ledger. All exported methods are safe for concurrent use.
type Store struct {
	dir        string
	capacity   int
	seed       int64
	auditTail  int
	anon       pkgcrypto.Anonymizer
	hashParams pkgcrypto.Params
	archive    repository.AuditArchive
	log        *zap.Logger
	now        func() time.Time

	sem     *semaphore.Weighted
	dirLock *flock.Flock

	voters     []string
	registered map[string]struct{}
	engine     *tally.Engine
	session    model.SessionState
	cred       model.Credential
	auditMu    sync.Mutex
	audit      []model.AuditEntry
}

var (
	_ repository.VoterDirectory       = (*Store)(nil)
	_ repository.CredentialRepository = (*Store)(nil)
	_ repository.AuditLog             = (*Store)(nil)
	_ repository.IntegrityChecker     = (*Store)(nil)
)

// New constructs a Store; call Initialize (or Load for an existing directory) before use.
func New(opts Options) *Store {
	if opts.Dir == "" {
		opts.Dir = "data"
	}
	if opts.Capacity <= 0 {
		opts.Capacity = DefaultCapacity
	}
	if opts.Seed == 0 {
		opts.Seed = DefaultSeed
	}
	if opts.AuditTail <= 0 {
		opts.AuditTail = DefaultAuditTail
	}
	if opts.Anonymizer == nil {
		opts.Anonymizer = pkgcrypto.FNVAnonymizer{}
	}
	if opts.HashParams == (pkgcrypto.Params{}) {
		opts.HashParams = pkgcrypto.DefaultParams
	}
	if opts.Logger == nil {
		opts.Logger = zap.NewNop()
	}
	if opts.Now == nil {
		opts.Now = time.Now
	}
	return &Store{
		dir:        opts.Dir,
		capacity:   opts.Capacity,
		seed:       opts.Seed,
		auditTail:  opts.AuditTail,
		anon:       opts.Anonymizer,
		hashParams: opts.HashParams,
		archive:    opts.Archive,
		log:        opts.Logger.Named("ledger"),
		now:        opts.Now,
		sem:        semaphore.NewWeighted(writeWeight),
		dirLock:    flock.New(filepath.Join(opts.Dir, LockFile)),
		registered: make(map[string]struct{}),
		engine:     tally.New(),
	}
}

// Dir returns the data directory.
func (s *Store) Dir() string { return s.dir }

// Capacity returns the voter registry limit.
func (s *Store) Capacity() int { return s.capacity }

func (s *Store) path(name string) string { return filepath.Join(s.dir, name) }

// lock excludes every reader and writer of this Store, then takes the directory
// lock shared with other processes. ctx bounds both waits.
func (s *Store) lock(ctx context.Context) error {
	if err := s.sem.Acquire(ctx, writeWeight); err != nil {
		return fmt.Errorf("%w: %w", errs.ErrBusy, err)
	}
	ok, err := s.dirLock.TryLockContext(ctx, lockRetry)
	if ok {
		return nil
	}
	s.sem.Release(writeWeight)
	if ctxErr := ctx.Err(); ctxErr != nil {
		return fmt.Errorf("%w: %w", errs.ErrBusy, ctxErr)
	}
	return storageErr("lock data dir", err)
}

func (s *Store) unlock() {
	if err := s.dirLock.Unlock(); err != nil {
		s.log.Warn("unlock data dir", zap.Error(err))
	}
	s.sem.Release(writeWeight)
}

func (s *Store) rlock() { _ = s.sem.Acquire(context.Background(), 1) }

func (s *Store) runlock() { s.sem.Release(1) }

func storageErr(op string, err error) error {
	return fmt.Errorf("%s: %w: %w", op, errs.ErrStorage, err)
}

// Initialize creates the data directory and any missing file, then loads everything.
// The voter file is seeded on first creation with Capacity deterministic IDs.
func (s *Store) Initialize(ctx context.Context) error {
	if err := os.MkdirAll(s.dir, 0o755); err != nil {
		return storageErr("create data dir", err)
	}
	if err := s.lock(ctx); err != nil {
		return err
	}
	err := s.initLocked()
	s.unlock()
	if err != nil {
		return err
	}
	s.AppendAudit("SYSTEM_INIT", "SYSTEM", "ledger initialized")
	return nil
}

func (s *Store) initLocked() error {

	type initFile struct {
		name   string
		create func() error
	}
	files := []initFile{
		{VotersFile, func() error {
			ids := GenerateVoterIDs(s.seed, s.capacity)
			return writeFile(s.path(VotersFile), votersHeader, ids, totalFooter(len(ids)))
		}},
		{AdminFile, func() error {
			hash, err := pkgcrypto.EncodePassword(DefaultAdminPassword, s.hashParams)
			if err != nil {
				return err
			}
			cred := model.Credential{Username: DefaultAdminUsername, Hash: hash}
			if err := writeFile(s.path(AdminFile), adminHeader, []string{formatCredential(cred)}); err != nil {
				return err
			}
			s.log.Warn("bootstrap admin credential written; change it before production use",
				zap.String("username", DefaultAdminUsername))
			return nil
		}},
		{CandidatesFile, func() error { return writeFile(s.path(CandidatesFile), candidatesHeader, nil) }},
		{VotesFile, func() error { return writeFile(s.path(VotesFile), votesHeader, nil) }},
		{SessionFile, func() error {
			st := model.SessionState{Active: false, ChangedAt: s.now()}
			return writeFile(s.path(SessionFile), sessionHeader, sessionRecords(st))
		}},
		{ActivityFile, func() error { return writeFile(s.path(ActivityFile), activityHeader, nil) }},
	}

	for _, f := range files {
		ok, err := exists(s.path(f.name))
		if err != nil {
			return storageErr("stat "+f.name, err)
		}
		if ok {
			continue
		}
		if err := f.create(); err != nil {
			return storageErr("create "+f.name, err)
		}
		s.log.Info("created ledger file", zap.String("file", f.name))
	}
	return s.loadLocked()
}

// GenerateVoterIDs returns n distinct 8-digit IDs drawn from a PRNG seeded with seed.
// IDs the validator rejects are skipped, so every generated voter can authenticate.
func GenerateVoterIDs(seed int64, n int) []string {
	r := rand.New(rand.NewSource(seed))
	seen := make(map[string]struct{}, n)
	ids := make([]string, 0, n)
	for len(ids) < n {
		id := strconv.Itoa(10000000 + r.Intn(90000000))
		if _, dup := seen[id]; dup || !validate.VoterID(id) {
			continue
		}
		seen[id] = struct{}{}
		ids = append(ids, id)
	}
	return ids
}

func totalFooter(n int) string {
	return "# Total registered voters: " + strconv.Itoa(n)
}

// Load re-reads every file into memory and rebuilds the tally by replaying the vote log.
// Malformed lines are skipped; an unreadable file is an ErrStorage.
func (s *Store) Load(ctx context.Context) error {
	if err := s.lock(ctx); err != nil {
		return err
	}
	defer s.unlock()
	return s.loadLocked()
}

func (s *Store) loadLocked() error {
	if err := s.loadStateLocked(); err != nil {
		return err
	}
	return s.loadAuditLocked()
}

// loadStateLocked reads everything except the activity log.
func (s *Store) loadStateLocked() error {
	skipped := 0

	voterLines, err := readRecords(s.path(VotersFile))
	if err != nil {
		return storageErr("read voters", err)
	}
	voters := make([]string, 0, len(voterLines))
	registered := make(map[string]struct{}, len(voterLines))
	for _, l := range voterLines {
		if !isVoterRecord(l) {
			skipped++
			continue
		}
		if _, dup := registered[l]; dup {
			continue
		}
		registered[l] = struct{}{}
		voters = append(voters, l)
	}

	adminLines, err := readRecords(s.path(AdminFile))
	if err != nil {
		return storageErr("read admin", err)
	}
	var cred model.Credential
	for _, l := range adminLines {
		if c, err := parseCredential(l); err == nil {
			cred = c
			break
		}
		skipped++
	}
	if cred.Username == "" {
		return storageErr("read admin", errMalformed)
	}

	candLines, err := readRecords(s.path(CandidatesFile))
	if err != nil {
		return storageErr("read candidates", err)
	}
	candidates := make([]model.Candidate, 0, len(candLines))
	for _, l := range candLines {
		c, err := parseCandidate(l)
		if err != nil {
			skipped++
			continue
		}
		candidates = append(candidates, c)
	}

	votes, bad, err := s.readVotes()
	if err != nil {
		return err
	}
	skipped += bad

	sessLines, err := readRecords(s.path(SessionFile))
	if err != nil {
		return storageErr("read session", err)
	}
	session := parseSession(sessLines)
	if session.Active && s.session.Active {
		session.RunID = s.session.RunID
	}

	s.voters = voters
	s.registered = registered
	s.cred = cred
	if dup := s.engine.Replay(candidates, votes); dup > 0 {
		s.log.Warn("repeated vote tokens ignored", zap.Int("lines", dup))
	}
	s.session = session

	s.log.Debug("ledger loaded",
		zap.Int("voters", len(voters)),
		zap.Int("candidates", len(candidates)),
		zap.Int("votes", s.engine.VotedCount()),
		zap.Bool("sessionActive", session.Active),
		zap.Int("skippedLines", skipped),
	)
	return nil
}

// loadAuditLocked replaces the in-memory activity tail with the newest file entries.
func (s *Store) loadAuditLocked() error {
	actLines, err := readRecords(s.path(ActivityFile))
	if err != nil {
		return storageErr("read activity", err)
	}
	audit := make([]model.AuditEntry, 0, min(len(actLines), s.auditTail))
	for _, l := range actLines {
		e, err := parseAudit(l)
		if err != nil {
			continue
		}
		audit = append(audit, e)
	}
	if len(audit) > s.auditTail {
		audit = append([]model.AuditEntry(nil), audit[len(audit)-s.auditTail:]...)
	}
	s.audit = audit
	return nil
}

func (s *Store) readVotes() ([]model.Vote, int, error) {
	lines, err := readRecords(s.path(VotesFile))
	if err != nil {
		return nil, 0, storageErr("read votes", err)
	}
	votes := make([]model.Vote, 0, len(lines))
	bad := 0
	for _, l := range lines {
		v, err := parseVote(l)
		if err != nil {
			bad++
			continue
		}
		votes = append(votes, v)
	}
	return votes, bad, nil
}

// recoverLocked reloads after a write that may have partially reached disk.
// If that fails too, the next write's refresh retries it.
func (s *Store) recoverLocked(op string) {
	if err := s.loadLocked(); err != nil {
		s.log.Error("reload after failed write", zap.String("op", op), zap.Error(err))
		return
	}
	s.log.Warn("projection rebuilt after failed write", zap.String("op", op))
}

// refreshLocked re-reads the files before a write decides anything, picking up
// changes made by other processes since the last load.
func (s *Store) refreshLocked() error {
	return s.loadStateLocked()
}
