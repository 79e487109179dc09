// Package model defines domain entities used by services and the ledger.
package model

import (
	"time"

	"github.com/gofrs/uuid/v5"
)

// Role is the kind of principal authenticated at the facade.
type Role string

const (
	RoleNone  Role = ""
	RoleAdmin Role = "ADMIN"
	RoleVoter Role = "VOTER"
)

// Candidate is an add-only ballot entry.
type Candidate struct {
	ID    string // 1-10 chars, alphanumeric or underscore
	Name  string
	Party string
}

// Display is the label results are keyed by.
func (c Candidate) Display() string { return c.Name + " (" + c.Party + ")" }

// Vote is an immutable ledger tuple; Token is the anonymized voter ID.
type Vote struct {
	Timestamp   time.Time
	Token       string
	CandidateID string
}

// SessionState is the global voting window flag.
type SessionState struct {
	Active    bool
	ChangedAt time.Time
	RunID     uuid.UUID // set on start, not persisted
}

// AuditEntry is a single append-only activity log line.
type AuditEntry struct {
	Timestamp time.Time
	Action    string
	Actor     string
	Detail    string
}

// Credential is the stored administrator identity. Hash is an encoded argon2id digest.
type Credential struct {
	Username string
	Hash     string
}

// CandidateCount pairs a candidate with its vote count.
type CandidateCount struct {
	Candidate Candidate
	Votes     int
}

// Results is a snapshot of the tally.
type Results struct {
	Counts     []CandidateCount // candidate insertion order
	Tally      map[string]int   // Display() -> votes
	TotalVotes int
	Registered int
	Turnout    float64 // TotalVotes / Registered, 0 when the registry is empty
	Winner     *CandidateCount
}

// Statistics summarizes the ledger for operators.
type Statistics struct {
	Registered    int
	Candidates    int
	VotesCast     int
	SessionActive bool
	Turnout       float64
}

// SecurityEvent is one entry of the security manager's in-memory event tail.
type SecurityEvent struct {
	Timestamp time.Time
	Event     string
	Subject   string
	Detail    string
}

// String renders the event the way it appears in reports.
func (e SecurityEvent) String() string {
	return e.Timestamp.UTC().Format(time.RFC3339) + " [" + e.Event + "] " + e.Subject + ": " + e.Detail
}
