package domain

import "time"

// SkipReason is the machine-readable cause of a skipped item.
type SkipReason string

const (
	SkipNonPositiveStake    SkipReason = "non_positive_stake"
	SkipDuplicateOpen       SkipReason = "duplicate_open"
	SkipCapReached          SkipReason = "cap_reached"
	SkipInsufficientBalance SkipReason = "insufficient_balance"
	SkipUnknownMarket       SkipReason = "unknown_market"
	SkipConflictExhausted   SkipReason = "conflict_exhausted"
	SkipPriceUnavailable    SkipReason = "price_unavailable"
	SkipStalePrice          SkipReason = "stale_price"
	SkipInvalidPrice        SkipReason = "invalid_price"
	SkipAlreadyClosed       SkipReason = "already_closed"
)

// IsFailure reports whether the skip was caused by something going wrong, as opposed
// to a normal business outcome (duplicate, cap, balance). Failures make a run partial.
func (r SkipReason) IsFailure() bool {
	switch r {
	case SkipConflictExhausted, SkipPriceUnavailable, SkipStalePrice, SkipInvalidPrice:
		return true
	}
	return false
}

// Skip records one item a workflow did not act on.
type Skip struct {
	MarketID   string     `json:"market_id,omitempty"`
	PositionID string     `json:"position_id,omitempty"`
	Reason     SkipReason `json:"reason"`
	Detail     string     `json:"detail,omitempty"`
}

// DiscoverySummary is the result of one discovery run.
type DiscoverySummary struct {
	Mode           Mode       `json:"mode"`
	HaltReason     SkipReason `json:"halt_reason,omitempty"`
	MarketsFetched int        `json:"markets_fetched"`
	MarketsPassed  int        `json:"markets_passed"`
	Suggestions    int        `json:"suggestions"`
	Opened         []Position `json:"opened"`
	TotalStaked    float64    `json:"total_staked"`
	BalanceAfter   float64    `json:"balance_after"`
	Skips          []Skip     `json:"skips"`
	Errors         []string   `json:"errors"`
	StartedAt      time.Time  `json:"started_at"`
	CompletedAt    time.Time  `json:"completed_at"`
}

// Skip appends a skip entry.
func (s *DiscoverySummary) Skip(marketID string, reason SkipReason, detail string) {
	s.Skips = append(s.Skips, Skip{MarketID: marketID, Reason: reason, Detail: detail})
}

// Degraded reports whether anything in the run failed.
func (s DiscoverySummary) Degraded() bool {
	return len(s.Errors) > 0 || hasFailure(s.Skips)
}

// MonitorSummary is the result of one monitor run.
type MonitorSummary struct {
	Mode           Mode                `json:"mode"`
	Checked        int                 `json:"checked"`
	Held           int                 `json:"held"`
	Closed         []Position          `json:"closed"`
	ClosedByReason map[CloseReason]int `json:"closed_by_reason"`
	RealizedPnL    float64             `json:"realized_pnl"`
	Skips          []Skip              `json:"skips"`
	Errors         []string            `json:"errors"`
	StartedAt      time.Time           `json:"started_at"`
	CompletedAt    time.Time           `json:"completed_at"`
}

// Skip appends a skip entry.
func (s *MonitorSummary) Skip(p Position, reason SkipReason, detail string) {
	s.Skips = append(s.Skips, Skip{MarketID: p.MarketID, PositionID: p.ID, Reason: reason, Detail: detail})
}

// RecordClose accounts a closed position.
func (s *MonitorSummary) RecordClose(p Position) {
	if s.ClosedByReason == nil {
		s.ClosedByReason = make(map[CloseReason]int)
	}
	s.Closed = append(s.Closed, p)
	s.ClosedByReason[p.CloseReason]++
	s.RealizedPnL += p.RealizedPnL()
}

// Degraded reports whether anything in the run failed.
func (s MonitorSummary) Degraded() bool {
	return len(s.Errors) > 0 || hasFailure(s.Skips)
}

func hasFailure(skips []Skip) bool {
	for _, sk := range skips {
		if sk.Reason.IsFailure() {
			return true
		}
	}
	return false
}
