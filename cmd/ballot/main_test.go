package main

import (
	"bytes"
	"context"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	pkgcrypto "github.com/and161185/ballot-keeper/internal/crypto"
	"github.com/and161185/ballot-keeper/internal/model"
)

func Test_sessionStore_SaveLoad(t *testing.T) {
	s := sessionStore{dir: filepath.Join(t.TempDir(), "ballot"), obf: pkgcrypto.XORObfuscator{}}
	now := time.Now()

	_, err := s.loadToken(now)
	require.ErrorIs(t, err, errNoSession)

	require.NoError(t, s.saveToken("tok", now.Add(time.Minute)))
	tok, err := s.loadToken(now)
	require.NoError(t, err)
	require.Equal(t, "tok", tok)

	fi, err := os.Stat(s.tokenPath())
	require.NoError(t, err)
	require.Equal(t, os.FileMode(0o600), fi.Mode().Perm())

	_, err = s.loadToken(now.Add(2 * time.Minute))
	require.ErrorIs(t, err, errNoSession)

	require.NoError(t, s.clear())
	require.NoError(t, s.clear())
	_, err = s.loadToken(now)
	require.ErrorIs(t, err, errNoSession)
}

func Test_sessionStore_SigningKey(t *testing.T) {
	s := sessionStore{dir: t.TempDir(), obf: pkgcrypto.XORObfuscator{}}

	k1, err := s.signingKey()
	require.NoError(t, err)
	require.NotEmpty(t, k1)
	k2, err := s.signingKey()
	require.NoError(t, err)
	require.Equal(t, k1, k2)

	raw, err := os.ReadFile(s.keyPath())
	require.NoError(t, err)
	require.NotContains(t, string(raw), string(k1))

	require.NoError(t, os.WriteFile(s.keyPath(), []byte("%%%\n"), 0o600))
	k3, err := s.signingKey()
	require.NoError(t, err)
	require.NotEqual(t, k1, k3)
}

func Test_issueParseToken(t *testing.T) {
	key := []byte("0123456789abcdef0123456789abcdef")
	now := time.Date(2025, 1, 1, 12, 0, 0, 0, time.UTC)

	raw, exp, err := issueToken(key, "admin", model.RoleAdmin, now, 10*time.Minute)
	require.NoError(t, err)
	require.Equal(t, now.Add(10*time.Minute), exp)

	principal, role, err := parseToken(key, raw, now.Add(time.Minute))
	require.NoError(t, err)
	require.Equal(t, "admin", principal)
	require.Equal(t, model.RoleAdmin, role)

	_, _, err = parseToken(key, raw, now.Add(11*time.Minute))
	require.Error(t, err)

	_, _, err = parseToken([]byte("another key, another key, another"), raw, now)
	require.Error(t, err)

	_, _, err = parseToken(key, "not-a-jwt", now)
	require.Error(t, err)
}

type cliEnv struct {
	t   *testing.T
	env map[string]string
}

func newCLIEnv(t *testing.T) *cliEnv {
	base := t.TempDir()
	return &cliEnv{t: t, env: map[string]string{
		"BALLOT_DATA_DIR":   filepath.Join(base, "data"),
		"BALLOT_CONFIG_DIR": filepath.Join(base, "cfg"),
	}}
}

func (e *cliEnv) run(line string) (int, string, string) {
	e.t.Helper()
	var out, errOut bytes.Buffer
	code := run(context.Background(), strings.Fields(line), func(k string) string { return e.env[k] }, &out, &errOut)
	return code, out.String(), errOut.String()
}

func (e *cliEnv) ok(line string) string {
	e.t.Helper()
	code, out, errOut := e.run(line)
	require.Equal(e.t, 0, code, "%s: %s", line, errOut)
	return out
}

func TestRun_Usage(t *testing.T) {
	e := newCLIEnv(t)

	code, _, errOut := e.run("")
	require.Equal(t, 2, code)
	require.Contains(t, errOut, "Usage:")
	require.Contains(t, errOut, "counted per invocation")

	out := e.ok("version")
	require.Contains(t, out, "ballot dev")

	code, _, errOut = e.run("-capacity=0 version")
	require.Equal(t, 2, code)
	require.Contains(t, errOut, "capacity")
}

func TestRun_RequiresInit(t *testing.T) {
	e := newCLIEnv(t)

	code, _, errOut := e.run("results")
	require.Equal(t, 1, code)
	require.Contains(t, errOut, "ballot init")

	e.ok("init")
	code, _, errOut = e.run("bogus")
	require.Equal(t, 2, code)
	require.Contains(t, errOut, `unknown command "bogus"`)
}

func TestRun_Election(t *testing.T) {
	e := newCLIEnv(t)

	out := e.ok("init")
	require.Contains(t, out, "20 voters")
	require.Contains(t, out, "INACTIVE")

	require.Contains(t, e.ok("whoami"), "not logged in")
	code, _, errOut := e.run("start")
	require.Equal(t, 1, code)
	require.Contains(t, errOut, "login required")

	code, _, errOut = e.run("login -u admin -p wrong")
	require.Equal(t, 1, code)
	require.Contains(t, errOut, "authorization")

	e.ok("login -u admin -p admin123")
	require.Contains(t, e.ok("whoami"), "admin (ADMIN)")

	e.ok("candidate-add -id C1 -name Alice -party Green")
	e.ok("candidate-add -id C2 -name Bob -party Blue")
	require.Contains(t, e.ok("candidates"), "Alice (Green)")

	votersOut := e.ok("voters")
	require.Contains(t, votersOut, "# 20 of 20")
	voters := strings.Fields(strings.SplitN(votersOut, "#", 2)[0])
	require.Len(t, voters, 20)

	code, _, errOut = e.run("voter-add -id 10000001")
	require.Equal(t, 1, code)
	require.Contains(t, errOut, "conflict")

	e.ok("start")
	e.ok("vote -id " + voters[0] + " -c C1")
	e.ok("vote -id " + voters[1] + " -c C1")
	e.ok("vote -id " + voters[2] + " -c C2")

	code, _, errOut = e.run("vote -id " + voters[0] + " -c C2")
	require.Equal(t, 1, code)
	require.Contains(t, errOut, "already voted")

	res := e.ok("results")
	require.Contains(t, res, "Alice (Green): 2")
	require.Contains(t, res, "Bob (Blue): 1")
	require.Contains(t, res, "total: 3 of 20 registered, turnout 15.00%")
	require.Contains(t, res, "leading: Alice (Green)")

	csvOut := e.ok("export -o -")
	require.Contains(t, csvOut, "C1,Alice,Green,2,66.67%")

	exportPath := filepath.Join(t.TempDir(), "results.csv")
	e.ok("export -o " + exportPath)
	b, err := os.ReadFile(exportPath)
	require.NoError(t, err)
	require.Contains(t, string(b), "Candidate_ID,Candidate_Name,Party,Vote_Count,Percentage")

	e.ok("stop")
	require.Contains(t, e.ok("stats"), "votes cast:        3")

	activity := e.ok("activity -n 50")
	require.Contains(t, activity, "VOTE_CAST")
	for _, v := range voters[:3] {
		require.NotContains(t, activity, v)
	}

	require.Contains(t, e.ok("security"), "BALLOT KEEPER SECURITY REPORT")
	require.Contains(t, e.ok("integrity"), "PASS")

	e.ok("logout")
	code, _, _ = e.run("voters")
	require.Equal(t, 1, code)
}

func TestRun_ChangePassword(t *testing.T) {
	e := newCLIEnv(t)
	e.ok("init")
	e.ok("login -u admin -p admin123")

	code, _, errOut := e.run("passwd -old admin123 -new short")
	require.Equal(t, 1, code)
	require.Contains(t, errOut, "validation")

	e.ok("passwd -old admin123 -new longenough")
	e.ok("logout")

	code, _, _ = e.run("login -u admin -p admin123")
	require.Equal(t, 1, code)
	e.ok("login -u admin -p longenough")
}

func TestRun_Hardened(t *testing.T) {
	e := newCLIEnv(t)
	e.env["BALLOT_HARDENED"] = "true"

	code, _, errOut := e.run("init")
	require.Equal(t, 2, code)
	require.Contains(t, errOut, "secret")

	e.env["BALLOT_SECRET"] = "0123456789abcdef"
	e.ok("init")
	e.ok("login -u admin -p admin123")
	require.Contains(t, e.ok("whoami"), "admin")
}
