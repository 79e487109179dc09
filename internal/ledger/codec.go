package ledger

import (
	"strings"
	"time"

	"github.com/and161185/ballot-keeper/internal/model"
)

func formatVote(v model.Vote) string {
	return formatTime(v.Timestamp) + ":" + v.Token + ":" + v.CandidateID
}

// parseVote reads token and candidate from the right so a timestamp in an
// unexpected layout does not cost the vote; the timestamp is then best-effort.
func parseVote(line string) (model.Vote, error) {
	i := strings.LastIndexByte(line, ':')
	if i <= 0 || i == len(line)-1 {
		return model.Vote{}, errMalformed
	}
	candidate := line[i+1:]
	head := line[:i]
	j := strings.LastIndexByte(head, ':')
	if j <= 0 || j == len(head)-1 {
		return model.Vote{}, errMalformed
	}
	v := model.Vote{Token: head[j+1:], CandidateID: candidate}
	if ts, err := time.Parse(timeLayout, head[:j]); err == nil {
		v.Timestamp = ts
	}
	return v, nil
}

func formatCandidate(c model.Candidate) string {
	return c.ID + ":" + c.Name + ":" + c.Party
}

func parseCandidate(line string) (model.Candidate, error) {
	parts := strings.SplitN(line, ":", 3)
	if len(parts) != 3 || parts[0] == "" || parts[1] == "" || parts[2] == "" {
		return model.Candidate{}, errMalformed
	}
	return model.Candidate{ID: parts[0], Name: parts[1], Party: parts[2]}, nil
}

func formatAudit(e model.AuditEntry) string {
	return formatTime(e.Timestamp) + ":" + e.Action + ":" + e.Actor + ":" + e.Detail
}

func parseAudit(line string) (model.AuditEntry, error) {
	ts, rest, err := splitStamped(line)
	if err != nil {
		return model.AuditEntry{}, err
	}
	parts := strings.SplitN(rest, ":", 3)
	if len(parts) < 2 || parts[0] == "" {
		return model.AuditEntry{}, errMalformed
	}
	e := model.AuditEntry{Timestamp: ts, Action: parts[0], Actor: parts[1]}
	if len(parts) == 3 {
		e.Detail = parts[2]
	}
	return e, nil
}

func formatCredential(c model.Credential) string {
	return c.Username + ":" + c.Hash
}

func parseCredential(line string) (model.Credential, error) {
	user, hash, ok := strings.Cut(line, ":")
	if !ok || user == "" || hash == "" {
		return model.Credential{}, errMalformed
	}
	return model.Credential{Username: user, Hash: hash}, nil
}

func isVoterRecord(line string) bool {
	if len(line) != 8 {
		return false
	}
	for i := 0; i < len(line); i++ {
		if line[i] < '0' || line[i] > '9' {
			return false
		}
	}
	return true
}

const (
	stateActive   = "ACTIVE"
	stateInactive = "INACTIVE"
)

func sessionRecords(s model.SessionState) []string {
	state := stateInactive
	if s.Active {
		state = stateActive
	}
	return []string{state, formatTime(s.ChangedAt)}
}

func parseSession(records []string) model.SessionState {
	var s model.SessionState
	if len(records) == 0 {
		return s
	}
	s.Active = records[0] == stateActive
	if len(records) > 1 {
		if ts, err := time.Parse(timeLayout, records[1]); err == nil {
			s.ChangedAt = ts
		}
	}
	return s
}
