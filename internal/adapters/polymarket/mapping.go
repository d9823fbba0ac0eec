package polymarket

import (
	"strconv"
	"strings"
	"time"

	"github.com/AdielMag/MoneyMaker/internal/domain"
)

// mapGammaMarkets convierte los DTOs de Gamma a domain.Market.
// Los mercados sin id se descartan.
func mapGammaMarkets(raw []gammaMarket) []domain.Market {
	markets := make([]domain.Market, 0, len(raw))
	for _, r := range raw {
		m := mapGammaMarket(r)
		if m.ID == "" {
			continue
		}
		markets = append(markets, m)
	}
	return markets
}

// mapGammaMarket convierte un gammaMarket DTO a domain.Market.
func mapGammaMarket(r gammaMarket) domain.Market {
	m := domain.Market{
		ID:        r.ID,
		Question:  r.Question,
		Slug:      r.Slug,
		Category:  r.Category,
		Volume:    float64(r.Volume),
		Liquidity: float64(r.Liquidity),
		EndDate:   parseEndDate(r.EndDate, r.EndDateISO),
		Outcomes:  mapOutcomes(r.Outcomes, r.OutcomePrices),
		Active:    r.Active,
		Closed:    r.Closed,
	}
	if m.ID == "" {
		m.ID = r.ConditionID
	}
	if m.Category == "" {
		m.Category = r.GroupItemTitle
	}
	return m
}

// mapQuote convierte un gammaMarket en la cotización del momento.
func mapQuote(r gammaMarket, fetchedAt time.Time) domain.Quote {
	id := r.ID
	if id == "" {
		id = r.ConditionID
	}
	return domain.Quote{
		MarketID:  id,
		Outcomes:  mapOutcomes(r.Outcomes, r.OutcomePrices),
		Active:    r.Active,
		Closed:    r.Closed,
		UpdatedAt: parseTimestamp(r.UpdatedAt),
		FetchedAt: fetchedAt,
	}
}

// mapOutcomes empareja nombres y precios por posición. Un precio ilegible queda en 0,
// lo que el filtro y el monitor tratan como precio inválido.
func mapOutcomes(names, prices []string) []domain.Outcome {
	if len(names) == 0 {
		return nil
	}
	outcomes := make([]domain.Outcome, 0, len(names))
	for i, name := range names {
		var price float64
		if i < len(prices) {
			price, _ = strconv.ParseFloat(strings.TrimSpace(prices[i]), 64)
		}
		outcomes = append(outcomes, domain.Outcome{Name: name, Price: price})
	}
	return outcomes
}

// parseEndDate: Polymarket usa varios formatos; intentamos los más comunes.
func parseEndDate(values ...string) time.Time {
	return parseTimestamp(values...)
}

// parseTimestamp devuelve el primer valor parseable en UTC, o el zero time.
func parseTimestamp(values ...string) time.Time {
	for _, v := range values {
		if v == "" {
			continue
		}
		for _, layout := range []string{
			time.RFC3339Nano,
			"2006-01-02T15:04:05.000Z",
			"2006-01-02T15:04:05Z",
			"2006-01-02",
		} {
			if t, err := time.Parse(layout, v); err == nil {
				return t.UTC()
			}
		}
	}
	return time.Time{}
}
