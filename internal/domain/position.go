package domain

import (
	"math"
	"time"
)

// DefaultOutcome is the side bought when a suggestion does not name one.
const DefaultOutcome = "Yes"

// PositionStatus represents the lifecycle of a position: open → closed, exactly once.
type PositionStatus string

const (
	PositionOpen   PositionStatus = "open"
	PositionClosed PositionStatus = "closed"
)

// CloseReason explains why a position was closed.
type CloseReason string

const (
	CloseStopLoss   CloseReason = "stop_loss"
	CloseTakeProfit CloseReason = "take_profit"
	CloseManual     CloseReason = "manual"
)

// Valid reports whether r is one of the known close reasons.
func (r CloseReason) Valid() bool {
	switch r {
	case CloseStopLoss, CloseTakeProfit, CloseManual:
		return true
	}
	return false
}

// Position is capital committed to one market in one mode. Never deleted.
type Position struct {
	ID          string         `json:"id"`
	MarketID    string         `json:"market_id"`
	Question    string         `json:"question,omitempty"`
	Outcome     string         `json:"outcome"`
	Mode        Mode           `json:"mode"`
	EntryPrice  float64        `json:"entry_price"`
	Stake       float64        `json:"stake"`
	OpenedAt    time.Time      `json:"opened_at"`
	Status      PositionStatus `json:"status"`
	CloseReason CloseReason    `json:"close_reason,omitempty"`
	ExitPrice   float64        `json:"exit_price,omitempty"`
	Proceeds    float64        `json:"proceeds,omitempty"`
	ClosedAt    *time.Time     `json:"closed_at,omitempty"`
}

// IsOpen reports whether the position still holds capital.
func (p Position) IsOpen() bool {
	return p.Status == PositionOpen
}

// changePrecision es la resolución a la que se redondea un cambio porcentual.
// Sin redondeo, un -10% exacto entre precios de tick sale como -9.9999999999999982.
const changePrecision = 1e9

// ChangePercent returns (current − entry) / entry × 100, rounded to 1e-9 percentage
// points so exact threshold moves compare equal. Zero when entry is not positive.
func (p Position) ChangePercent(current float64) float64 {
	if p.EntryPrice <= 0 {
		return 0
	}
	return math.Round((current-p.EntryPrice)/p.EntryPrice*100*changePrecision) / changePrecision
}

// RealizedPnL is proceeds minus stake for a closed position, zero otherwise.
func (p Position) RealizedPnL() float64 {
	if p.Status != PositionClosed {
		return 0
	}
	return p.Proceeds - p.Stake
}

// Proceeds returns the amount credited when closing a stake after a price change of
// changePct percent: stake × (1 + changePct/100), never negative.
func Proceeds(stake, changePct float64) float64 {
	v := stake * (1 + changePct/100)
	if v < 0 || math.IsNaN(v) {
		return 0
	}
	return v
}

// ExitThresholds holds the percentage triggers of the monitor workflow.
type ExitThresholds struct {
	StopLossPercent   float64 // negative, e.g. -15
	TakeProfitPercent float64 // positive, e.g. 30
}

// Evaluate decides whether a price change breaches a threshold.
func (t ExitThresholds) Evaluate(changePct float64) (CloseReason, bool) {
	if changePct <= t.StopLossPercent {
		return CloseStopLoss, true
	}
	if changePct >= t.TakeProfitPercent {
		return CloseTakeProfit, true
	}
	return "", false
}

// OpenPositionRequest debits a wallet and creates an open position in one transaction.
// The debit only applies if the wallet is still at ExpectedVersion.
type OpenPositionRequest struct {
	Position        Position
	ExpectedVersion int64
	MaxOpen         int // 0 disables the cap check
}

// ClosePositionRequest closes an open position and credits its proceeds in one transaction.
type ClosePositionRequest struct {
	Mode       Mode
	PositionID string
	Reason     CloseReason
	ExitPrice  float64
	Proceeds   float64
	ClosedAt   time.Time
}
