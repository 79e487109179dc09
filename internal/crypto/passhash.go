// Package crypto implements credential hashing, voter anonymization, reversible obfuscation
// and random tokens.
package crypto

import (
	"crypto/rand"
	"crypto/subtle"
	"encoding/base64"
	"errors"
	"fmt"
	"strings"

	"golang.org/x/crypto/argon2"
)

// Params are Argon2id cost parameters.
type Params struct {
	Time    uint32 // iterations
	Memory  uint32 // KiB
	Threads uint8
	KeyLen  uint32
}

// DefaultParams are tuned for interactive admin login.
var DefaultParams = Params{Time: 3, Memory: 64 * 1024, Threads: 1, KeyLen: 32}

const (
	hashScheme = "argon2id"
	saltLen    = 16
)

var b64 = base64.RawStdEncoding

// ErrMalformedHash is returned when an encoded hash cannot be parsed.
var ErrMalformedHash = errors.New("malformed password hash")

// RandBytes returns n cryptographically secure random bytes.
func RandBytes(n int) ([]byte, error) {
	b := make([]byte, n)
	_, err := rand.Read(b)
	return b, err
}

// HashPassword returns the Argon2id hash of password using the provided salt.
func HashPassword(password, salt []byte, p Params) []byte {
	return argon2.IDKey(password, salt, p.Time, p.Memory, p.Threads, p.KeyLen)
}

// VerifyPassword verifies password against expected Argon2id hash and salt.
func VerifyPassword(password, salt, expected []byte, p Params) bool {
	got := HashPassword(password, salt, p)
	return subtle.ConstantTimeCompare(got, expected) == 1
}

// EncodePassword hashes password with a fresh salt and returns
// "argon2id$t=<t>,m=<m>,p=<p>$<salt>$<hash>". The encoding contains no ':'
// so it fits the username:hash credential line.
func EncodePassword(password string, p Params) (string, error) {
	salt, err := RandBytes(saltLen)
	if err != nil {
		return "", err
	}
	sum := HashPassword([]byte(password), salt, p)
	return fmt.Sprintf("%s$t=%d,m=%d,p=%d$%s$%s",
		hashScheme, p.Time, p.Memory, p.Threads, b64.EncodeToString(salt), b64.EncodeToString(sum)), nil
}

// VerifyEncoded checks password against a value produced by EncodePassword.
func VerifyEncoded(password, encoded string) (bool, error) {
	parts := strings.Split(encoded, "$")
	if len(parts) != 4 || parts[0] != hashScheme {
		return false, ErrMalformedHash
	}
	var p Params
	if _, err := fmt.Sscanf(parts[1], "t=%d,m=%d,p=%d", &p.Time, &p.Memory, &p.Threads); err != nil {
		return false, ErrMalformedHash
	}
	salt, err := b64.DecodeString(parts[2])
	if err != nil {
		return false, ErrMalformedHash
	}
	sum, err := b64.DecodeString(parts[3])
	if err != nil || len(sum) == 0 {
		return false, ErrMalformedHash
	}
	p.KeyLen = uint32(len(sum))
	return VerifyPassword([]byte(password), salt, sum, p), nil
}
