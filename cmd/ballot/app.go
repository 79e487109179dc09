package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"

	"go.uber.org/zap"

	"github.com/and161185/ballot-keeper/internal/config"
	pkgcrypto "github.com/and161185/ballot-keeper/internal/crypto"
	"github.com/and161185/ballot-keeper/internal/ledger"
	"github.com/and161185/ballot-keeper/internal/limiter"
	"github.com/and161185/ballot-keeper/internal/migrate"
	"github.com/and161185/ballot-keeper/internal/repository"
	"github.com/and161185/ballot-keeper/internal/repository/postgres"
	"github.com/and161185/ballot-keeper/internal/service"
	"github.com/and161185/ballot-keeper/internal/session"
)

// app is one CLI invocation's wiring of the core.
type app struct {
	cfg      config.Config
	log      *zap.Logger
	store    *ledger.Store
	auth     *service.AuthServiceImpl
	election *service.ElectionServiceImpl
	archive  repository.AuditArchive
	sessions sessionStore

	closers []func()
}

func primitives(cfg config.Config) (pkgcrypto.Anonymizer, pkgcrypto.Obfuscator, error) {
	if !cfg.Hardened {
		return pkgcrypto.FNVAnonymizer{}, pkgcrypto.XORObfuscator{}, nil
	}
	obf, err := pkgcrypto.NewAEADObfuscator([]byte(cfg.Secret))
	if err != nil {
		return nil, nil, err
	}
	return pkgcrypto.NewHMACAnonymizer([]byte(cfg.Secret)), obf, nil
}

// newApp wires the core. With create set, missing ledger files are created;
// otherwise the data directory must already be initialized.
func newApp(ctx context.Context, cfg config.Config, log *zap.Logger, create bool) (*app, error) {
	anon, obf, err := primitives(cfg)
	if err != nil {
		return nil, fmt.Errorf("hardened primitives: %w", err)
	}
	a := &app{cfg: cfg, log: log, sessions: sessionStore{dir: cfg.ConfigDir, obf: obf}}

	if cfg.AuditDSN != "" {
		if err := migrate.Up(ctx, cfg.AuditDSN); err != nil {
			return nil, err
		}
		db, err := postgres.New(ctx, cfg.AuditDSN)
		if err != nil {
			return nil, err
		}
		a.closers = append(a.closers, db.Close)
		a.archive = postgres.NewAuditRepo(db)
	}

	a.store = ledger.New(ledger.Options{
		Dir:        cfg.DataDir,
		Capacity:   cfg.Capacity,
		Seed:       cfg.Seed,
		AuditTail:  cfg.AuditTail,
		Anonymizer: anon,
		Archive:    a.archive,
		Logger:     log,
	})
	if create {
		err = a.store.Initialize(ctx)
	} else {
		err = a.loadExisting(ctx)
	}
	if err != nil {
		a.Close()
		return nil, err
	}

	a.auth = service.NewAuthService(service.AuthConfig{
		Credentials: a.store,
		Voters:      a.store,
		Audit:       a.store,
		Integrity:   a.store,
		Limiter:     limiter.NewMemory(cfg.MaxAttempts, cfg.Lockout),
		Obfuscator:  obf,
		Anonymizer:  anon,
		Logger:      log,
	})
	ctrl := session.NewController(a.store, log)
	a.election = service.NewElectionService(a.store, a.auth, ctrl, pkgcrypto.DefaultParams, log)
	return a, nil
}

var errNotInitialized = errors.New("data directory is not initialized (run ballot init)")

func (a *app) loadExisting(ctx context.Context) error {
	for _, name := range ledger.RequiredFiles {
		if _, err := os.Stat(filepath.Join(a.cfg.DataDir, name)); errors.Is(err, os.ErrNotExist) {
			return errNotInitialized
		}
	}
	return a.store.Load(ctx)
}

// Close releases the archive pool, if any.
func (a *app) Close() {
	for i := len(a.closers) - 1; i >= 0; i-- {
		a.closers[i]()
	}
	a.closers = nil
}
