// Package config parses global ballot flags with BALLOT_* environment fallbacks.
package config

import (
	"errors"
	"flag"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strconv"
	"time"
)

// Config is the process-wide configuration.
type Config struct {
	DataDir     string
	Capacity    int
	Seed        int64
	MaxAttempts int
	Lockout     time.Duration
	AuditTail   int
	AuditDSN    string
	Hardened    bool
	Secret      string
	ConfigDir   string
	TokenTTL    time.Duration
	Timeout     time.Duration
	Debug       bool
}

// envNames maps each flag to the variable consulted when the flag is not given.
const envPrefix = "BALLOT_"

var envNames = map[string]string{
	"data":         envPrefix + "DATA_DIR",
	"capacity":     envPrefix + "CAPACITY",
	"seed":         envPrefix + "SEED",
	"max-attempts": envPrefix + "MAX_ATTEMPTS",
	"lockout":      envPrefix + "LOCKOUT",
	"audit-tail":   envPrefix + "AUDIT_TAIL",
	"audit-dsn":    envPrefix + "AUDIT_DSN",
	"hardened":     envPrefix + "HARDENED",
	"secret":       envPrefix + "SECRET",
	"config-dir":   envPrefix + "CONFIG_DIR",
	"token-ttl":    envPrefix + "TOKEN_TTL",
	"timeout":      envPrefix + "TIMEOUT",
	"debug":        envPrefix + "DEBUG",
}

// Parse reads global flags from args and returns the remaining arguments
// (the subcommand and its own flags). Flags win over the environment; getenv
// may be nil to use os.Getenv.
func Parse(args []string, getenv func(string) string, output io.Writer) (Config, []string, error) {
	if getenv == nil {
		getenv = os.Getenv
	}
	var cfg Config

	fs := flag.NewFlagSet("ballot", flag.ContinueOnError)
	if output != nil {
		fs.SetOutput(output)
	}
	fs.StringVar(&cfg.DataDir, "data", "data", "ledger data directory")
	fs.IntVar(&cfg.Capacity, "capacity", 20, "voter registry capacity")
	fs.Int64Var(&cfg.Seed, "seed", 12345, "seed for the initial voter registry")
	fs.IntVar(&cfg.MaxAttempts, "max-attempts", 3, "failed admin logins before lockout")
	fs.DurationVar(&cfg.Lockout, "lockout", 15*time.Minute, "admin lockout duration")
	fs.IntVar(&cfg.AuditTail, "audit-tail", 100, "activity entries kept in memory")
	fs.StringVar(&cfg.AuditDSN, "audit-dsn", "", "PostgreSQL DSN for the audit archive (optional)")
	fs.BoolVar(&cfg.Hardened, "hardened", false, "use keyed anonymization and AEAD obfuscation")
	fs.StringVar(&cfg.Secret, "secret", "", "secret for hardened mode (prefer env)")
	fs.StringVar(&cfg.ConfigDir, "config-dir", "", "directory for the CLI session (default $XDG_CONFIG_HOME/ballot)")
	fs.DurationVar(&cfg.TokenTTL, "token-ttl", 30*time.Minute, "admin CLI session lifetime")
	fs.DurationVar(&cfg.Timeout, "timeout", 30*time.Second, "per-command timeout")
	fs.BoolVar(&cfg.Debug, "debug", false, "development logging")

	if err := fs.Parse(args); err != nil {
		return Config{}, nil, err
	}

	set := map[string]bool{}
	fs.Visit(func(f *flag.Flag) { set[f.Name] = true })

	var envErr error
	fs.VisitAll(func(f *flag.Flag) {
		if set[f.Name] || envErr != nil {
			return
		}
		name := envNames[f.Name]
		v := getenv(name)
		if v == "" {
			return
		}
		if err := f.Value.Set(v); err != nil {
			envErr = fmt.Errorf("invalid %s env variable: %w", name, err)
		}
	})
	if envErr != nil {
		return Config{}, nil, envErr
	}

	if cfg.ConfigDir == "" {
		cfg.ConfigDir = defaultConfigDir(getenv)
	}
	if err := cfg.validate(); err != nil {
		return Config{}, nil, err
	}
	return cfg, fs.Args(), nil
}

func defaultConfigDir(getenv func(string) string) string {
	if v := getenv("XDG_CONFIG_HOME"); v != "" {
		return filepath.Join(v, "ballot")
	}
	home, _ := os.UserHomeDir()
	return filepath.Join(home, ".config", "ballot")
}

func (c Config) validate() error {
	switch {
	case c.DataDir == "":
		return errors.New("data directory required")
	case c.Capacity <= 0:
		return errors.New("capacity must be positive: " + strconv.Itoa(c.Capacity))
	case c.MaxAttempts <= 0:
		return errors.New("max-attempts must be positive")
	case c.Lockout <= 0:
		return errors.New("lockout must be positive")
	case c.AuditTail <= 0:
		return errors.New("audit-tail must be positive")
	case c.TokenTTL <= 0:
		return errors.New("token-ttl must be positive")
	case c.Hardened && len(c.Secret) < 16:
		return errors.New("hardened mode needs a secret of at least 16 bytes (-secret or BALLOT_SECRET)")
	}
	return nil
}
