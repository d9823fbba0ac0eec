package domain

import "time"

// Suggestion is one ranked trade idea returned by the ranking service.
type Suggestion struct {
	MarketID         string  `json:"market_id"`
	Outcome          string  `json:"outcome"`
	Confidence       float64 `json:"confidence"`
	RecommendedStake float64 `json:"recommended_stake"`
	Reasoning        string  `json:"reasoning,omitempty"`
}

// Quote is the live price of a market as seen by the price feed.
type Quote struct {
	MarketID  string    `json:"market_id"`
	Outcomes  []Outcome `json:"outcomes"`
	Active    bool      `json:"active"`
	Closed    bool      `json:"closed"`
	UpdatedAt time.Time `json:"updated_at,omitempty"` // última actualización según la fuente
	FetchedAt time.Time `json:"fetched_at"`
}

// PriceOf returns the price of the named outcome. Empty name means DefaultOutcome.
func (q Quote) PriceOf(outcome string) (float64, bool) {
	return outcomePrice(q.Outcomes, outcome)
}

// Age returns how old the quote data is relative to now. It is measured from the
// source's UpdatedAt when known, from FetchedAt otherwise.
func (q Quote) Age(now time.Time) time.Duration {
	ref := q.UpdatedAt
	if ref.IsZero() {
		ref = q.FetchedAt
	}
	if ref.IsZero() {
		return 0
	}
	return now.Sub(ref)
}

// Tradable reports whether the market behind the quote still trades.
func (q Quote) Tradable() bool {
	return q.Active && !q.Closed
}
