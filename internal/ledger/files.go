package ledger

import (
	"bufio"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
	"time"
)

// File names inside the data directory.
const (
	VotersFile     = "voters.txt"
	AdminFile      = "admin.txt"
	CandidatesFile = "candidates.txt"
	VotesFile      = "votes.txt"
	SessionFile    = "session.txt"
	ActivityFile   = "activity.log"

	// LockFile is the advisory lock writers hold; it carries no data.
	LockFile = ".ballot.lock"
)

// RequiredFiles is every file the ledger needs to load.
var RequiredFiles = []string{VotersFile, AdminFile, CandidatesFile, VotesFile, SessionFile, ActivityFile}

// timeLayout is ISO-8601 in UTC with millisecond precision; always 24 bytes.
const timeLayout = "2006-01-02T15:04:05.000Z07:00"

const tsLen = len("2006-01-02T15:04:05.000Z")

var (
	votersHeader = []string{
		"# Registered Voters Database",
		"# Format: VOTER_ID",
		"# Each ID is 8 digits",
	}
	adminHeader = []string{
		"# Admin Credentials",
		"# Format: USERNAME:HASH",
	}
	candidatesHeader = []string{
		"# Candidates Database",
		"# Format: ID:NAME:PARTY",
	}
	votesHeader = []string{
		"# Vote Records",
		"# Format: TIMESTAMP:VOTER_TOKEN:CANDIDATE_ID",
		"# Voter identity is anonymized",
	}
	sessionHeader = []string{
		"# Session Status",
		"# ACTIVE or INACTIVE, then last change time",
	}
	activityHeader = []string{
		"# Activity Log",
		"# Format: TIMESTAMP:ACTION:ACTOR:DETAILS",
	}
)

var errMalformed = errors.New("malformed line")

func formatTime(t time.Time) string { return t.UTC().Format(timeLayout) }

func exists(path string) (bool, error) {
	_, err := os.Stat(path)
	if err == nil {
		return true, nil
	}
	if errors.Is(err, os.ErrNotExist) {
		return false, nil
	}
	return false, err
}

// readRecords returns trimmed, non-empty, non-comment lines of path.
func readRecords(path string) ([]string, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()

	var out []string
	sc := bufio.NewScanner(f)
	for sc.Scan() {
		line := strings.TrimSpace(sc.Text())
		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}
		out = append(out, line)
	}
	return out, sc.Err()
}

// writeFile replaces path atomically: temp file, fsync, rename.
func writeFile(path string, header, records []string, footer ...string) error {
	var b strings.Builder
	for _, h := range header {
		b.WriteString(h)
		b.WriteByte('\n')
	}
	for _, r := range records {
		b.WriteString(r)
		b.WriteByte('\n')
	}
	for _, f := range footer {
		b.WriteString(f)
		b.WriteByte('\n')
	}

	tmp, err := os.CreateTemp(filepath.Dir(path), "."+filepath.Base(path)+".tmp*")
	if err != nil {
		return err
	}
	tmpPath := tmp.Name()
	if _, err := tmp.WriteString(b.String()); err != nil {
		tmp.Close()
		os.Remove(tmpPath)
		return err
	}
	if err := tmp.Sync(); err != nil {
		tmp.Close()
		os.Remove(tmpPath)
		return err
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmpPath)
		return err
	}
	if err := os.Rename(tmpPath, path); err != nil {
		os.Remove(tmpPath)
		return err
	}
	return nil
}

// appendRecord appends one line and fsyncs. touched reports whether bytes may have
// reached the file, in which case the caller must not trust its in-memory view.
// A previous torn write without a trailing newline is terminated first so the
// new record starts on its own line.
func appendRecord(path, record string) (touched bool, err error) {
	f, err := os.OpenFile(path, os.O_RDWR|os.O_APPEND, 0o644)
	if err != nil {
		return false, err
	}
	defer func() {
		if cerr := f.Close(); cerr != nil && err == nil {
			err = cerr
		}
	}()

	prefix := ""
	st, err := f.Stat()
	if err != nil {
		return false, err
	}
	if st.Size() > 0 {
		last := make([]byte, 1)
		if _, err := f.ReadAt(last, st.Size()-1); err != nil && err != io.EOF {
			return false, err
		}
		if last[0] != '\n' {
			prefix = "\n"
		}
	}

	if _, err := f.WriteString(prefix + record + "\n"); err != nil {
		return true, err
	}
	if err := f.Sync(); err != nil {
		return true, err
	}
	return true, nil
}

// clean strips characters that would break the colon/line framing of a field.
func clean(s string) string {
	return strings.Map(func(r rune) rune {
		switch r {
		case ':', '\n', '\r':
			return '_'
		}
		return r
	}, s)
}

// cleanDetail keeps colons (detail is the last field) but flattens newlines.
func cleanDetail(s string) string {
	return strings.Map(func(r rune) rune {
		if r == '\n' || r == '\r' {
			return ' '
		}
		return r
	}, s)
}

func encodable(fields ...string) bool {
	for _, f := range fields {
		if f == "" || strings.ContainsAny(f, ":\r\n") {
			return false
		}
	}
	return true
}

// splitStamped splits "<timestamp>:<rest>" where timestamp is timeLayout.
func splitStamped(line string) (time.Time, string, error) {
	if len(line) <= tsLen || line[tsLen] != ':' {
		return time.Time{}, "", errMalformed
	}
	ts, err := time.Parse(timeLayout, line[:tsLen])
	if err != nil {
		return time.Time{}, "", fmt.Errorf("%w: %v", errMalformed, err)
	}
	return ts, line[tsLen+1:], nil
}
