package crypto

import (
	"crypto/sha256"
	"encoding/base64"
	"errors"
	"io"

	"golang.org/x/crypto/chacha20poly1305"
	"golang.org/x/crypto/hkdf"
)

// Obfuscator is a reversible transform for keeping auxiliary secrets out of plain text.
type Obfuscator interface {
	Obfuscate(plain string) (string, error)
	Deobfuscate(encoded string) (string, error)
}

// DefaultObfuscationKey is the fixed key of XORObfuscator.
const DefaultObfuscationKey = "VOTING_SYSTEM_KEY"

// XORObfuscator XORs the input with a repeating fixed key and base64-encodes it.
// It offers no confidentiality against anyone who has read this file.
type XORObfuscator struct {
	Key []byte // DefaultObfuscationKey when empty
}

func (x XORObfuscator) key() []byte {
	if len(x.Key) == 0 {
		return []byte(DefaultObfuscationKey)
	}
	return x.Key
}

func (x XORObfuscator) xor(in []byte) []byte {
	k := x.key()
	out := make([]byte, len(in))
	for i := range in {
		out[i] = in[i] ^ k[i%len(k)]
	}
	return out
}

// Obfuscate implements Obfuscator. Empty input is returned unchanged.
func (x XORObfuscator) Obfuscate(plain string) (string, error) {
	if plain == "" {
		return "", nil
	}
	return base64.StdEncoding.EncodeToString(x.xor([]byte(plain))), nil
}

// Deobfuscate implements Obfuscator.
func (x XORObfuscator) Deobfuscate(encoded string) (string, error) {
	if encoded == "" {
		return "", nil
	}
	raw, err := base64.StdEncoding.DecodeString(encoded)
	if err != nil {
		return "", err
	}
	return string(x.xor(raw)), nil
}

const obfuscationInfo = "ballot-keeper/obfuscation/v1"

// AEADObfuscator seals values with XChaCha20-Poly1305 under a key derived from a secret via HKDF-SHA256.
type AEADObfuscator struct {
	key []byte
}

// NewAEADObfuscator derives the sealing key from secret.
func NewAEADObfuscator(secret []byte) (*AEADObfuscator, error) {
	if len(secret) == 0 {
		return nil, errors.New("empty obfuscation secret")
	}
	key := make([]byte, chacha20poly1305.KeySize)
	if _, err := io.ReadFull(hkdf.New(sha256.New, secret, nil, []byte(obfuscationInfo)), key); err != nil {
		return nil, err
	}
	return &AEADObfuscator{key: key}, nil
}

// Obfuscate implements Obfuscator: base64(nonce || ciphertext).
func (a *AEADObfuscator) Obfuscate(plain string) (string, error) {
	if plain == "" {
		return "", nil
	}
	aead, err := chacha20poly1305.NewX(a.key)
	if err != nil {
		return "", err
	}
	nonce, err := RandBytes(chacha20poly1305.NonceSizeX)
	if err != nil {
		return "", err
	}
	out := make([]byte, 0, len(nonce)+len(plain)+aead.Overhead())
	out = append(out, nonce...)
	out = append(out, aead.Seal(nil, nonce, []byte(plain), nil)...)
	return base64.StdEncoding.EncodeToString(out), nil
}

// Deobfuscate implements Obfuscator.
func (a *AEADObfuscator) Deobfuscate(encoded string) (string, error) {
	if encoded == "" {
		return "", nil
	}
	blob, err := base64.StdEncoding.DecodeString(encoded)
	if err != nil {
		return "", err
	}
	if len(blob) < chacha20poly1305.NonceSizeX {
		return "", errors.New("sealed value too short")
	}
	aead, err := chacha20poly1305.NewX(a.key)
	if err != nil {
		return "", err
	}
	plain, err := aead.Open(nil, blob[:chacha20poly1305.NonceSizeX], blob[chacha20poly1305.NonceSizeX:], nil)
	if err != nil {
		return "", err
	}
	return string(plain), nil
}
