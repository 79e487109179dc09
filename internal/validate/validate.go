// Package validate holds pure format predicates for identifiers, names and free-text input.
package validate

import (
	"regexp"
	"strings"
)

const maxInputLen = 100

var (
	voterIDPattern     = regexp.MustCompile(`^[0-9]{8}$`)
	candidateIDPattern = regexp.MustCompile(`^[A-Za-z0-9_]{1,10}$`)
	namePattern        = regexp.MustCompile(`^[A-Za-z\s]{2,50}$`)
	partyPattern       = regexp.MustCompile(`^[A-Za-z0-9\s]{2,30}$`)
)

// VoterID reports whether s is exactly 8 ASCII digits and not a trivially
// guessable pattern (all digits identical, or each digit one more than the previous).
func VoterID(s string) bool {
	if !voterIDPattern.MatchString(s) {
		return false
	}
	return !repeated(s) && !ascending(s)
}

// CandidateID reports whether s is 1-10 alphanumeric or underscore characters.
func CandidateID(s string) bool {
	return candidateIDPattern.MatchString(s)
}

// Name reports whether s, trimmed, is 2-50 letters and whitespace.
func Name(s string) bool {
	return namePattern.MatchString(strings.TrimSpace(s))
}

// PartyName reports whether s, trimmed, is 2-30 letters, digits and whitespace.
func PartyName(s string) bool {
	return partyPattern.MatchString(strings.TrimSpace(s))
}

// SafeInput reports whether s is non-blank, at most 100 bytes and free of < > \ ' ".
func SafeInput(s string) bool {
	if strings.TrimSpace(s) == "" || len(s) > maxInputLen {
		return false
	}
	return !strings.ContainsAny(s, `<>\'"`)
}

func repeated(s string) bool {
	for i := 1; i < len(s); i++ {
		if s[i] != s[0] {
			return false
		}
	}
	return true
}

func ascending(s string) bool {
	for i := 1; i < len(s); i++ {
		if s[i] != s[i-1]+1 {
			return false
		}
	}
	return true
}
