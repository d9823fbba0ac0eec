package domain

import "time"

// Wallet is the balance of one mode. Exactly one per mode, created once.
// Version increases on every committed mutation and conditions concurrent debits.
type Wallet struct {
	Mode           Mode      `json:"mode"`
	Balance        float64   `json:"balance"`
	InitialBalance float64   `json:"initial_balance"`
	Version        int64     `json:"version"`
	CreatedAt      time.Time `json:"created_at"`
	UpdatedAt      time.Time `json:"updated_at"`
}

// CanAfford reports whether the wallet holds at least amount.
func (w Wallet) CanAfford(amount float64) bool {
	return w.Balance >= amount
}

// TransactionType is the direction of a wallet movement.
type TransactionType string

const (
	TxDebit  TransactionType = "debit"  // stake committed to a new position
	TxCredit TransactionType = "credit" // proceeds of a closed position
)

// Transaction is the audit record of a single wallet mutation.
type Transaction struct {
	ID            string          `json:"id"`
	Mode          Mode            `json:"mode"`
	Type          TransactionType `json:"type"`
	Amount        float64         `json:"amount"`
	BalanceBefore float64         `json:"balance_before"`
	BalanceAfter  float64         `json:"balance_after"`
	PositionID    string          `json:"position_id"`
	CreatedAt     time.Time       `json:"created_at"`
}

// LedgerSnapshot is a consistent read of one mode's ledger.
type LedgerSnapshot struct {
	Mode            Mode    `json:"mode"`
	Balance         float64 `json:"balance"`
	InitialBalance  float64 `json:"initial_balance"`
	OpenStake       float64 `json:"open_stake"`
	OpenPositions   int     `json:"open_positions"`
	ClosedPositions int     `json:"closed_positions"`
	RealizedPnL     float64 `json:"realized_pnl"`
}

// Drift returns open stake + balance − (initial + realized PnL).
// A healthy ledger always reports zero, up to float rounding.
func (s LedgerSnapshot) Drift() float64 {
	return s.OpenStake + s.Balance - (s.InitialBalance + s.RealizedPnL)
}
