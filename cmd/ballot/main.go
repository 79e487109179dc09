// Command ballot is the operator CLI for the ballot keeper ledger.
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"io"
	"os"
	"time"

	"go.uber.org/zap"

	"github.com/and161185/ballot-keeper/internal/config"
	"github.com/and161185/ballot-keeper/internal/errs"
	"github.com/and161185/ballot-keeper/internal/model"
)

var (
	version   = "dev"
	buildDate = "unknown"
)

const usageText = `ballot CLI
Usage:
  ballot [global flags] <cmd> [args]

Commands:
  version
  init                                       (create ledger files)
  login         -u <username> -p <password>  (admin; saves session)
  logout
  whoami
  start | stop                               (admin)
  candidate-add -id <id> -name <name> -party <party>   (admin)
  candidates
  voter-add     -id <voter id>               (admin)
  voter-rm      -id <voter id>               (admin)
  voters                                     (admin)
  vote          -id <voter id> -c <candidate id>
  results
  stats
  export        -o <file|->
  activity      [-n 20] [-archive]           (admin)
  security                                   (admin)
  integrity
  passwd        -old <password> -new <password>   (admin)

Failed admin logins are counted per invocation: the -max-attempts/-lockout
lockout does not carry over between separate "ballot login" runs.

Global flags (env BALLOT_*):
`

func main() {
	os.Exit(run(context.Background(), os.Args[1:], os.Getenv, os.Stdout, os.Stderr))
}

// run executes one command and returns the process exit code.
func run(ctx context.Context, args []string, getenv func(string) string, stdout, stderr io.Writer) int {
	cfg, rest, err := config.Parse(args, getenv, stderr)
	if err != nil {
		if errors.Is(err, flag.ErrHelp) {
			fmt.Fprint(stderr, usageText)
			return 2
		}
		fmt.Fprintln(stderr, "error:", err)
		return 2
	}
	if len(rest) < 1 {
		fmt.Fprint(stderr, usageText)
		return 2
	}
	cmd, cmdArgs := rest[0], rest[1:]

	if cmd == "version" {
		fmt.Fprintf(stdout, "ballot %s (%s)\n", version, buildDate)
		return 0
	}

	logger, err := newLogger(cfg.Debug)
	if err != nil {
		fmt.Fprintln(stderr, "error:", err)
		return 1
	}
	defer func() { _ = logger.Sync() }()

	ctx, cancel := context.WithTimeout(ctx, cfg.Timeout)
	defer cancel()

	a, err := newApp(ctx, cfg, logger, cmd == "init")
	if err != nil {
		return fail(stderr, err)
	}
	defer a.Close()

	c := &cli{app: a, out: stdout, errOut: stderr, now: time.Now}
	h, ok := c.commands()[cmd]
	if !ok {
		fmt.Fprintf(stderr, "unknown command %q\n", cmd)
		fmt.Fprint(stderr, usageText)
		return 2
	}
	if err := h(ctx, cmdArgs); err != nil {
		if errors.Is(err, flag.ErrHelp) {
			return 2
		}
		return fail(stderr, err)
	}
	return 0
}

func newLogger(debug bool) (*zap.Logger, error) {
	if debug {
		return zap.NewDevelopment()
	}
	return zap.NewProduction(zap.IncreaseLevel(zap.WarnLevel))
}

func fail(w io.Writer, err error) int {
	kind := errs.KindOf(err)
	if kind == errs.KindUnknown || kind == errs.KindNone {
		fmt.Fprintln(w, "error:", err)
	} else {
		fmt.Fprintf(w, "error (%s): %v\n", kind, err)
	}
	return 1
}

type cli struct {
	app    *app
	out    io.Writer
	errOut io.Writer
	now    func() time.Time
}

type handler func(ctx context.Context, args []string) error

func (c *cli) commands() map[string]handler {
	return map[string]handler{
		"init":          c.cmdInit,
		"login":         c.cmdLogin,
		"logout":        c.cmdLogout,
		"whoami":        c.cmdWhoami,
		"start":         c.admin(c.cmdStart),
		"stop":          c.admin(c.cmdStop),
		"candidate-add": c.admin(c.cmdCandidateAdd),
		"candidates":    c.cmdCandidates,
		"voter-add":     c.admin(c.cmdVoterAdd),
		"voter-rm":      c.admin(c.cmdVoterRemove),
		"voters":        c.admin(c.cmdVoters),
		"vote":          c.cmdVote,
		"results":       c.cmdResults,
		"stats":         c.cmdStats,
		"export":        c.cmdExport,
		"activity":      c.admin(c.cmdActivity),
		"security":      c.admin(c.cmdSecurity),
		"integrity":     c.cmdIntegrity,
		"passwd":        c.admin(c.cmdPasswd),
	}
}

func (c *cli) flags(name string) *flag.FlagSet {
	fs := flag.NewFlagSet(name, flag.ContinueOnError)
	fs.SetOutput(c.errOut)
	return fs
}

// admin resumes the saved admin session before running h.
func (c *cli) admin(h handler) handler {
	return func(ctx context.Context, args []string) error {
		principal, role, err := c.session()
		if err != nil {
			return err
		}
		if err := c.app.election.Resume(ctx, principal, role); err != nil {
			return err
		}
		return h(ctx, args)
	}
}

func (c *cli) session() (string, model.Role, error) {
	raw, err := c.app.sessions.loadToken(c.now())
	if err != nil {
		return "", model.RoleNone, err
	}
	key, err := c.app.sessions.signingKey()
	if err != nil {
		return "", model.RoleNone, err
	}
	return parseToken(key, raw, c.now())
}

func (c *cli) cmdInit(_ context.Context, _ []string) error {
	st := c.app.store.Statistics()
	fmt.Fprintf(c.out, "initialized %s: %d voters, %d candidates, session %s\n",
		c.app.store.Dir(), st.Registered, st.Candidates, sessionLabel(st.SessionActive))
	return nil
}

func (c *cli) cmdLogin(ctx context.Context, args []string) error {
	fs := c.flags("login")
	u := fs.String("u", "", "username")
	p := fs.String("p", "", "password")
	if err := fs.Parse(args); err != nil {
		return err
	}
	if *u == "" || *p == "" {
		return fmt.Errorf("need -u and -p: %w", errs.ErrInvalidFormat)
	}
	if err := c.app.election.Login(ctx, *u, *p, model.RoleAdmin); err != nil {
		return err
	}
	key, err := c.app.sessions.signingKey()
	if err != nil {
		return err
	}
	tok, exp, err := issueToken(key, *u, model.RoleAdmin, c.now(), c.app.cfg.TokenTTL)
	if err != nil {
		return err
	}
	if err := c.app.sessions.saveToken(tok, exp); err != nil {
		return err
	}
	fmt.Fprintf(c.out, "ok, session valid until %s\n", exp.Format(time.RFC3339))
	return nil
}

func (c *cli) cmdLogout(ctx context.Context, _ []string) error {
	if principal, role, err := c.session(); err == nil {
		if err := c.app.election.Resume(ctx, principal, role); err == nil {
			c.app.election.Logout(ctx)
		}
	}
	if err := c.app.sessions.clear(); err != nil {
		return err
	}
	fmt.Fprintln(c.out, "logged out")
	return nil
}

func (c *cli) cmdWhoami(_ context.Context, _ []string) error {
	principal, role, err := c.session()
	if err != nil {
		fmt.Fprintln(c.out, "not logged in")
		return nil
	}
	fmt.Fprintf(c.out, "%s (%s)\n", principal, role)
	return nil
}

func (c *cli) cmdStart(ctx context.Context, _ []string) error {
	if err := c.app.election.StartSession(ctx); err != nil {
		return err
	}
	fmt.Fprintln(c.out, "voting session started; previous votes cleared")
	return nil
}

func (c *cli) cmdStop(ctx context.Context, _ []string) error {
	if err := c.app.election.StopSession(ctx); err != nil {
		return err
	}
	fmt.Fprintln(c.out, "voting session stopped")
	return nil
}

func (c *cli) cmdCandidateAdd(ctx context.Context, args []string) error {
	fs := c.flags("candidate-add")
	id := fs.String("id", "", "candidate id")
	name := fs.String("name", "", "candidate name")
	party := fs.String("party", "", "party name")
	if err := fs.Parse(args); err != nil {
		return err
	}
	if err := c.app.election.AddCandidate(ctx, *id, *name, *party); err != nil {
		return err
	}
	fmt.Fprintf(c.out, "added %s\n", *id)
	return nil
}

func (c *cli) cmdCandidates(_ context.Context, _ []string) error {
	for _, cand := range c.app.election.Candidates() {
		fmt.Fprintf(c.out, "%-10s %s\n", cand.ID, cand.Display())
	}
	return nil
}

func (c *cli) cmdVoterAdd(ctx context.Context, args []string) error {
	fs := c.flags("voter-add")
	id := fs.String("id", "", "voter id")
	if err := fs.Parse(args); err != nil {
		return err
	}
	if err := c.app.election.AddVoter(ctx, *id); err != nil {
		return err
	}
	fmt.Fprintf(c.out, "registered %s\n", *id)
	return nil
}

func (c *cli) cmdVoterRemove(ctx context.Context, args []string) error {
	fs := c.flags("voter-rm")
	id := fs.String("id", "", "voter id")
	if err := fs.Parse(args); err != nil {
		return err
	}
	if err := c.app.election.RemoveVoter(ctx, *id); err != nil {
		return err
	}
	fmt.Fprintf(c.out, "removed %s\n", *id)
	return nil
}

func (c *cli) cmdVoters(_ context.Context, _ []string) error {
	voters, err := c.app.election.Voters()
	if err != nil {
		return err
	}
	for _, v := range voters {
		fmt.Fprintln(c.out, v)
	}
	fmt.Fprintf(c.out, "# %d of %d\n", len(voters), c.app.store.Capacity())
	return nil
}

func (c *cli) cmdVote(ctx context.Context, args []string) error {
	fs := c.flags("vote")
	id := fs.String("id", "", "voter id")
	cand := fs.String("c", "", "candidate id")
	if err := fs.Parse(args); err != nil {
		return err
	}
	if err := c.app.election.Login(ctx, *id, "", model.RoleVoter); err != nil {
		return err
	}
	defer c.app.election.Logout(ctx)
	if err := c.app.election.CastVote(ctx, *id, *cand); err != nil {
		return err
	}
	fmt.Fprintln(c.out, "vote recorded")
	return nil
}

func (c *cli) cmdResults(_ context.Context, _ []string) error {
	res := c.app.election.Results()
	for _, cc := range res.Counts {
		fmt.Fprintf(c.out, "%s: %d\n", cc.Candidate.Display(), cc.Votes)
	}
	fmt.Fprintf(c.out, "total: %d of %d registered, turnout %.2f%%\n",
		res.TotalVotes, res.Registered, res.Turnout*100)
	if res.Winner != nil && res.TotalVotes > 0 {
		fmt.Fprintf(c.out, "leading: %s\n", res.Winner.Candidate.Display())
	}
	return nil
}

func (c *cli) cmdStats(_ context.Context, _ []string) error {
	st := c.app.election.Statistics()
	fmt.Fprintf(c.out, "registered voters: %d\n", st.Registered)
	fmt.Fprintf(c.out, "candidates:        %d\n", st.Candidates)
	fmt.Fprintf(c.out, "votes cast:        %d\n", st.VotesCast)
	fmt.Fprintf(c.out, "turnout:           %.2f%%\n", st.Turnout*100)
	fmt.Fprintf(c.out, "session:           %s\n", sessionLabel(st.SessionActive))
	return nil
}

func (c *cli) cmdExport(_ context.Context, args []string) error {
	fs := c.flags("export")
	out := fs.String("o", "-", "output file ('-'=stdout)")
	if err := fs.Parse(args); err != nil {
		return err
	}
	if *out == "-" {
		return c.app.election.ExportResultsCSV(c.out)
	}
	f, err := os.Create(*out)
	if err != nil {
		return err
	}
	if err := c.app.election.ExportResultsCSV(f); err != nil {
		f.Close()
		return err
	}
	if err := f.Close(); err != nil {
		return err
	}
	fmt.Fprintf(c.out, "results written to %s\n", *out)
	return nil
}

func (c *cli) cmdActivity(ctx context.Context, args []string) error {
	fs := c.flags("activity")
	n := fs.Int("n", 20, "number of entries")
	fromArchive := fs.Bool("archive", false, "read from the PostgreSQL archive")
	if err := fs.Parse(args); err != nil {
		return err
	}

	var entries []model.AuditEntry
	var err error
	if *fromArchive {
		if c.app.archive == nil {
			return errors.New("no audit archive configured (-audit-dsn)")
		}
		entries, err = c.app.archive.Recent(ctx, *n)
	} else {
		entries, err = c.app.election.RecentActivity(*n)
	}
	if err != nil {
		return err
	}
	for _, e := range entries {
		fmt.Fprintf(c.out, "%s %-28s %-24s %s\n",
			e.Timestamp.UTC().Format(time.RFC3339), e.Action, e.Actor, e.Detail)
	}
	return nil
}

func (c *cli) cmdSecurity(_ context.Context, _ []string) error {
	fmt.Fprint(c.out, c.app.auth.Report())
	return nil
}

func (c *cli) cmdIntegrity(_ context.Context, _ []string) error {
	if !c.app.auth.ValidateIntegrity() {
		return fmt.Errorf("integrity check failed: %w", errs.ErrStorage)
	}
	fmt.Fprintln(c.out, "integrity: PASS")
	return nil
}

func (c *cli) cmdPasswd(ctx context.Context, args []string) error {
	fs := c.flags("passwd")
	oldPw := fs.String("old", "", "current password")
	newPw := fs.String("new", "", "new password")
	if err := fs.Parse(args); err != nil {
		return err
	}
	if err := c.app.election.ChangeAdminPassword(ctx, *oldPw, *newPw); err != nil {
		return err
	}
	fmt.Fprintln(c.out, "password changed")
	return nil
}

func sessionLabel(active bool) string {
	if active {
		return "ACTIVE"
	}
	return "INACTIVE"
}
