package ledger

import (
	"context"
	"slices"

	"go.uber.org/zap"

	"github.com/and161185/ballot-keeper/internal/model"
)

// AppendAudit records an activity entry. It never fails the caller: write errors
// are logged and the entry is still kept in the in-memory tail.
func (s *Store) AppendAudit(action, actor, detail string) {
	e := model.AuditEntry{
		Timestamp: s.now(),
		Action:    clean(action),
		Actor:     clean(actor),
		Detail:    cleanDetail(detail),
	}

	s.rlock()
	// Audit lines are appends of whole records and may interleave with reads;
	// auditMu orders them among themselves.
	s.auditMu.Lock()
	if _, err := appendRecord(s.path(ActivityFile), formatAudit(e)); err != nil {
		s.log.Warn("append activity", zap.String("action", e.Action), zap.Error(err))
	}
	s.audit = append(s.audit, e)
	if over := len(s.audit) - s.auditTail; over > 0 {
		s.audit = slices.Delete(s.audit, 0, over)
	}
	s.auditMu.Unlock()
	s.runlock()

	if s.archive != nil {
		ctx, cancel := context.WithTimeout(context.Background(), archiveTimeout)
		defer cancel()
		if err := s.archive.Insert(ctx, e); err != nil {
			s.log.Warn("archive activity", zap.String("action", e.Action), zap.Error(err))
		}
	}
}

// RecentAudit returns up to n of the newest entries, oldest first.
func (s *Store) RecentAudit(n int) []model.AuditEntry {
	s.rlock()
	defer s.runlock()
	s.auditMu.Lock()
	defer s.auditMu.Unlock()
	if n <= 0 {
		return []model.AuditEntry{}
	}
	n = min(n, len(s.audit))
	return slices.Clone(s.audit[len(s.audit)-n:])
}
