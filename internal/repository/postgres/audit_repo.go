package postgres

import (
	"context"
	"fmt"

	"github.com/gofrs/uuid/v5"

	"github.com/and161185/ballot-keeper/internal/errs"
	"github.com/and161185/ballot-keeper/internal/model"
	"github.com/and161185/ballot-keeper/internal/repository"
)

// AuditRepo archives ledger activity entries in PostgreSQL.
type AuditRepo struct{ db *DB }

var _ repository.AuditArchive = (*AuditRepo)(nil)

// NewAuditRepo constructs an audit archive repository.
func NewAuditRepo(db *DB) *AuditRepo { return &AuditRepo{db: db} }

// Insert stores one entry under a fresh row ID.
func (r *AuditRepo) Insert(ctx context.Context, e model.AuditEntry) error {
	id, err := uuid.NewV4()
	if err != nil {
		return err
	}
	const q = `
INSERT INTO audit_archive (id, recorded_at, action, actor, detail)
VALUES ($1, $2, $3, $4, $5)`
	_, err = r.db.Pool.Exec(ctx, q, id, e.Timestamp, e.Action, e.Actor, e.Detail)
	if isUniqueViolation(err) {
		return errs.ErrAlreadyExists
	}
	if err != nil {
		return fmt.Errorf("archive insert: %w: %w", errs.ErrStorage, err)
	}
	return nil
}

// Recent returns up to n newest archived entries, oldest first.
func (r *AuditRepo) Recent(ctx context.Context, n int) ([]model.AuditEntry, error) {
	if n <= 0 {
		return nil, nil
	}
	const q = `
SELECT recorded_at, action, actor, detail FROM (
  SELECT recorded_at, action, actor, detail, archived_at
  FROM audit_archive ORDER BY recorded_at DESC, archived_at DESC LIMIT $1
) t ORDER BY recorded_at ASC, archived_at ASC`
	rows, err := r.db.Pool.Query(ctx, q, n)
	if err != nil {
		return nil, fmt.Errorf("archive query: %w: %w", errs.ErrStorage, err)
	}
	defer rows.Close()

	out := make([]model.AuditEntry, 0, n)
	for rows.Next() {
		var e model.AuditEntry
		if err := rows.Scan(&e.Timestamp, &e.Action, &e.Actor, &e.Detail); err != nil {
			return nil, fmt.Errorf("archive scan: %w: %w", errs.ErrStorage, err)
		}
		out = append(out, e)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("archive rows: %w: %w", errs.ErrStorage, err)
	}
	return out, nil
}
