package crypto

import (
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"hash/fnv"
	"strconv"
)

// Anonymizer derives the one-way token that stands in for a voter ID in the vote log.
// The same input must always yield the same token.
type Anonymizer interface {
	Anonymize(voterID string) string
}

// voterTag namespaces tokens in the vote log.
const voterTag = "VOTER_"

// FNVAnonymizer is the default: "VOTER_" + decimal FNV-1a 32-bit hash.
// Not reversible, but not collision resistant either: two voter IDs can map to
// the same token and block each other.
type FNVAnonymizer struct{}

// Anonymize implements Anonymizer.
func (FNVAnonymizer) Anonymize(voterID string) string {
	h := fnv.New32a()
	_, _ = h.Write([]byte(voterID))
	return voterTag + strconv.FormatUint(uint64(h.Sum32()), 10)
}

// HMACAnonymizer keys the derivation with a secret (HMAC-SHA256, first 16 bytes hex).
// Tokens differ from FNVAnonymizer's, so switch only at the start of a session.
type HMACAnonymizer struct {
	key []byte
}

// NewHMACAnonymizer constructs a keyed anonymizer.
func NewHMACAnonymizer(key []byte) *HMACAnonymizer {
	return &HMACAnonymizer{key: append([]byte(nil), key...)}
}

// Anonymize implements Anonymizer.
func (a *HMACAnonymizer) Anonymize(voterID string) string {
	m := hmac.New(sha256.New, a.key)
	_, _ = m.Write([]byte(voterID))
	return voterTag + hex.EncodeToString(m.Sum(nil)[:16])
}
