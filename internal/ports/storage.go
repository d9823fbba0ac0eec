package ports

import (
	"context"
	"time"

	"github.com/AdielMag/MoneyMaker/internal/domain"
)

// Ledger is the durable store of wallets and positions, and the only
// synchronization point between concurrent workflow runs.
type Ledger interface {
	EnsureWallet(ctx context.Context, mode domain.Mode, initialBalance float64) (domain.Wallet, error)
	GetWallet(ctx context.Context, mode domain.Mode) (domain.Wallet, error)

	CountOpenPositions(ctx context.Context, mode domain.Mode) (int, error)
	HasOpenPosition(ctx context.Context, mode domain.Mode, marketID string) (bool, error)
	ListOpenPositions(ctx context.Context, mode domain.Mode) ([]domain.Position, error)
	GetPosition(ctx context.Context, mode domain.Mode, id string) (domain.Position, error)

	// OpenPosition debits the wallet and inserts the position atomically.
	// Returns domain.ErrConcurrencyConflict if the wallet moved past req.ExpectedVersion.
	OpenPosition(ctx context.Context, req domain.OpenPositionRequest) (domain.Position, domain.Wallet, error)

	// ClosePosition marks an open position closed and credits proceeds atomically.
	// Returns domain.ErrPositionClosed if it was closed already.
	ClosePosition(ctx context.Context, req domain.ClosePositionRequest) (domain.Position, domain.Wallet, error)
}

// WorkflowStore persists the enable flag and run metadata of each (workflow, mode).
type WorkflowStore interface {
	GetWorkflowState(ctx context.Context, wf domain.WorkflowID, mode domain.Mode) (domain.WorkflowState, error)
	EnsureWorkflowState(ctx context.Context, wf domain.WorkflowID, mode domain.Mode, enabled bool) (domain.WorkflowState, error)
	SetWorkflowEnabled(ctx context.Context, wf domain.WorkflowID, mode domain.Mode, enabled bool) (domain.WorkflowState, error)
	RecordWorkflowRun(ctx context.Context, wf domain.WorkflowID, mode domain.Mode, at time.Time, lastErr string) error
}

// Store is everything the trigger handler needs from persistence.
type Store interface {
	Ledger
	WorkflowStore
	Close() error
}
