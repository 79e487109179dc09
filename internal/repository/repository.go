// Package repository defines the storage interfaces services depend on.
package repository

import (
	"context"

	"github.com/and161185/ballot-keeper/internal/model"
)

// VoterDirectory answers the eligibility questions voter authentication needs.
type VoterDirectory interface {
	// IsVoterRegistered reports whether id is in the registry.
	IsVoterRegistered(id string) bool
	// HasVoted reports whether id's anonymized token is in the current vote log.
	HasVoted(id string) bool
	// IsSessionActive reports the persisted session flag.
	IsSessionActive() bool
}

// CredentialRepository holds the single administrator credential.
type CredentialRepository interface {
	// AdminCredential returns the stored admin identity and password hash.
	AdminCredential(ctx context.Context) (model.Credential, error)
	// SetAdminCredential replaces the stored credential.
	SetAdminCredential(ctx context.Context, cred model.Credential) error
}

// AuditLog receives audit events. Appends are best-effort and never fail the caller.
type AuditLog interface {
	AppendAudit(action, actor, detail string)
}

// IntegrityChecker verifies the durable files are present and readable.
type IntegrityChecker interface {
	CheckFiles() error
}

// AuditArchive is long-term storage for audit entries outside the data directory.
type AuditArchive interface {
	// Insert stores one entry.
	Insert(ctx context.Context, e model.AuditEntry) error
	// Recent returns up to n entries, most recent last.
	Recent(ctx context.Context, n int) ([]model.AuditEntry, error)
}
