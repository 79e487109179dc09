// Package session owns the global voting window.
package session

import (
	"context"
	"sync"

	"github.com/gofrs/uuid/v5"
	"go.uber.org/zap"

	"github.com/and161185/ballot-keeper/internal/errs"
	"github.com/and161185/ballot-keeper/internal/model"
)

// Ledger is the part of the ledger the controller drives.
type Ledger interface {
	Session() model.SessionState
	SetSessionActive(ctx context.Context, active bool) error
	ClearVotingData(ctx context.Context) error
	AppendAudit(action, actor, detail string)
}

// Controller starts and stops voting sessions. Starting wipes the previous vote log.
type Controller struct {
	mu     sync.Mutex
	ledger Ledger
	log    *zap.Logger
}

// NewController constructs a Controller over ledger.
func NewController(ledger Ledger, log *zap.Logger) *Controller {
	if log == nil {
		log = zap.NewNop()
	}
	return &Controller{ledger: ledger, log: log.Named("session")}
}

// Start opens a new session: previous votes are cleared, then the flag is set.
func (c *Controller) Start(ctx context.Context) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.ledger.Session().Active {
		return errs.ErrAlreadyActive
	}
	if err := c.ledger.ClearVotingData(ctx); err != nil {
		return err
	}
	c.ledger.AppendAudit("DATA_CLEAR", "SYSTEM", "vote log cleared for new session")
	if err := c.ledger.SetSessionActive(ctx, true); err != nil {
		return err
	}
	c.log.Info("voting session started", zap.Stringer("runID", c.ledger.Session().RunID))
	return nil
}

// Stop closes the active session. Votes are kept for results.
func (c *Controller) Stop(ctx context.Context) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	st := c.ledger.Session()
	if !st.Active {
		return errs.ErrNotActive
	}
	if err := c.ledger.SetSessionActive(ctx, false); err != nil {
		return err
	}
	c.log.Info("voting session stopped", zap.Stringer("runID", st.RunID))
	return nil
}

// IsActive reports the persisted session flag.
func (c *Controller) IsActive() bool { return c.ledger.Session().Active }

// RunID identifies the current session; uuid.Nil when inactive or when the
// session was started by another process.
func (c *Controller) RunID() uuid.UUID { return c.ledger.Session().RunID }
