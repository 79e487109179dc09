package main

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v5"

	pkgcrypto "github.com/and161185/ballot-keeper/internal/crypto"
	"github.com/and161185/ballot-keeper/internal/model"
)

// ---- admin session store ----

type tokenFile struct {
	AccessToken string    `json:"access_token"`
	ExpiresAt   time.Time `json:"expires_at"`
}

var errNoSession = errors.New("no valid session (ballot login required)")

type sessionStore struct {
	dir string
	obf pkgcrypto.Obfuscator
}

func (s sessionStore) tokenPath() string { return filepath.Join(s.dir, "token.json") }
func (s sessionStore) keyPath() string   { return filepath.Join(s.dir, "session.key") }

func (s sessionStore) saveToken(tok string, exp time.Time) error {
	if err := os.MkdirAll(s.dir, 0o700); err != nil {
		return err
	}
	f, err := os.OpenFile(s.tokenPath(), os.O_CREATE|os.O_WRONLY|os.O_TRUNC, 0o600)
	if err != nil {
		return err
	}
	defer f.Close()
	enc := json.NewEncoder(f)
	enc.SetIndent("", "  ")
	return enc.Encode(tokenFile{AccessToken: tok, ExpiresAt: exp})
}

func (s sessionStore) loadToken(now time.Time) (string, error) {
	b, err := os.ReadFile(s.tokenPath())
	if errors.Is(err, os.ErrNotExist) {
		return "", errNoSession
	}
	if err != nil {
		return "", err
	}
	var tf tokenFile
	if err := json.Unmarshal(b, &tf); err != nil {
		return "", err
	}
	if tf.AccessToken == "" || now.After(tf.ExpiresAt) {
		return "", errNoSession
	}
	return tf.AccessToken, nil
}

func (s sessionStore) clear() error {
	err := os.Remove(s.tokenPath())
	if errors.Is(err, os.ErrNotExist) {
		return nil
	}
	return err
}

// signingKey returns the HS256 key, creating it on first use. The key is kept
// obfuscated on disk; an unreadable key is replaced, which ends every session.
func (s sessionStore) signingKey() ([]byte, error) {
	b, err := os.ReadFile(s.keyPath())
	if err == nil {
		if key, derr := s.obf.Deobfuscate(strings.TrimSpace(string(b))); derr == nil && key != "" {
			return []byte(key), nil
		}
	} else if !errors.Is(err, os.ErrNotExist) {
		return nil, err
	}

	key, err := pkgcrypto.GenerateToken()
	if err != nil {
		return nil, err
	}
	enc, err := s.obf.Obfuscate(key)
	if err != nil {
		return nil, err
	}
	if err := os.MkdirAll(s.dir, 0o700); err != nil {
		return nil, err
	}
	if err := os.WriteFile(s.keyPath(), []byte(enc+"\n"), 0o600); err != nil {
		return nil, err
	}
	return []byte(key), nil
}

// ---- tokens ----

type sessionClaims struct {
	Role model.Role `json:"role"`
	jwt.RegisteredClaims
}

// issueToken creates a signed HS256 JWT for the given principal.
func issueToken(key []byte, principal string, role model.Role, now time.Time, ttl time.Duration) (string, time.Time, error) {
	exp := now.Add(ttl)
	claims := sessionClaims{
		Role: role,
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   principal,
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(exp),
		},
	}
	tok := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	signed, err := tok.SignedString(key)
	return signed, exp, err
}

// parseToken verifies signature and expiry and returns the principal.
func parseToken(key []byte, raw string, now time.Time) (string, model.Role, error) {
	var claims sessionClaims
	_, err := jwt.ParseWithClaims(raw, &claims, func(*jwt.Token) (any, error) { return key, nil },
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
		jwt.WithTimeFunc(func() time.Time { return now }),
		jwt.WithExpirationRequired(),
	)
	if err != nil {
		return "", model.RoleNone, fmt.Errorf("session token: %w", err)
	}
	if claims.Subject == "" {
		return "", model.RoleNone, errNoSession
	}
	return claims.Subject, claims.Role, nil
}
