package scanner_test

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"

	"github.com/AdielMag/MoneyMaker/internal/domain"
	"github.com/AdielMag/MoneyMaker/internal/scanner"
)

func TestFilter_Check(t *testing.T) {
	f := scanner.NewFilter(scanner.DefaultFilterConfig())

	tests := []struct {
		name   string
		mutate func(*domain.Market)
		want   scanner.Reason
		passes bool
	}{
		{"passes", func(*domain.Market) {}, "", true},
		{"inactive", func(m *domain.Market) { m.Active = false }, scanner.ReasonInactive, false},
		{"closed", func(m *domain.Market) { m.Closed = true }, scanner.ReasonInactive, false},
		{"already ended", func(m *domain.Market) { m.EndDate = now.Add(-time.Minute) }, scanner.ReasonEnded, false},
		{"no end date", func(m *domain.Market) { m.EndDate = time.Time{} }, scanner.ReasonEnded, false},
		{"resolves too far", func(m *domain.Market) { m.EndDate = now.Add(2 * time.Hour) }, scanner.ReasonTooFar, false},
		{"max boundary included", func(m *domain.Market) { m.EndDate = now.Add(time.Hour) }, "", true},
		{"resolves too soon", func(m *domain.Market) { m.EndDate = now.Add(2 * time.Minute) }, scanner.ReasonTooSoon, false},
		{"low volume", func(m *domain.Market) { m.Volume = 999 }, scanner.ReasonLowVolume, false},
		{"volume boundary included", func(m *domain.Market) { m.Volume = 1000 }, "", true},
		{"low liquidity", func(m *domain.Market) { m.Liquidity = 100 }, scanner.ReasonLowLiquidity, false},
		{"excluded category any case", func(m *domain.Market) { m.Category = "Sports" }, scanner.ReasonExcluded, false},
		{"price too high", func(m *domain.Market) { m.Outcomes = []domain.Outcome{{Name: "Yes", Price: 0.97}, {Name: "No", Price: 0.03}} }, scanner.ReasonPriceExtreme, false},
		{"price too low", func(m *domain.Market) { m.Outcomes = []domain.Outcome{{Name: "Yes", Price: 0.01}} }, scanner.ReasonPriceExtreme, false},
		{"price band edge", func(m *domain.Market) { m.Outcomes = []domain.Outcome{{Name: "Yes", Price: 0.95}} }, "", true},
		{"no outcomes", func(m *domain.Market) { m.Outcomes = nil }, scanner.ReasonPriceExtreme, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			m := makeMarket("m1", 5000)
			tt.mutate(&m)
			reason, ok := f.Check(m, now)
			assert.Equal(t, tt.passes, ok)
			assert.Equal(t, tt.want, reason)
		})
	}
}

func TestFilter_Apply_PreservesOrder(t *testing.T) {
	f := scanner.NewFilter(scanner.DefaultFilterConfig())
	bad := makeMarket("x", 1)
	in := []domain.Market{makeMarket("c", 3000), bad, makeMarket("a", 9000), makeMarket("b", 3000)}

	out := f.Apply(in, now)
	ids := make([]string, 0, len(out))
	for _, m := range out {
		ids = append(ids, m.ID)
	}
	assert.Equal(t, []string{"c", "a", "b"}, ids)

	// Pura: misma entrada, mismo resultado
	assert.Equal(t, out, f.Apply(in, now))
}

func TestFilter_EmptyInput(t *testing.T) {
	f := scanner.NewFilter(scanner.DefaultFilterConfig())
	assert.Empty(t, f.Apply(nil, now))
	assert.Empty(t, f.Apply([]domain.Market{makeMarket("x", 1)}, now))
}

func TestFilter_NoExclusions(t *testing.T) {
	cfg := scanner.DefaultFilterConfig()
	cfg.ExcludedCategories = nil
	m := makeMarket("m1", 5000)
	m.Category = "sports"

	_, ok := scanner.NewFilter(cfg).Check(m, now)
	assert.True(t, ok)
}

func TestSummarize(t *testing.T) {
	f := scanner.NewFilter(scanner.DefaultFilterConfig())
	sports := makeMarket("s", 5000)
	sports.Category = "sports"

	s := scanner.Summarize(f.Evaluate([]domain.Market{makeMarket("ok", 5000), sports, makeMarket("low", 1)}, now))
	assert.Equal(t, 3, s.Total)
	assert.Equal(t, 1, s.Passed)
	assert.Equal(t, 1, s.Rejected[scanner.ReasonExcluded])
	assert.Equal(t, 1, s.Rejected[scanner.ReasonLowVolume])
}
