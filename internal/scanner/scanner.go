package scanner

import (
	"context"
	"fmt"
	"log/slog"
	"sort"
	"time"

	"github.com/AdielMag/MoneyMaker/internal/domain"
	"github.com/AdielMag/MoneyMaker/internal/ports"
)

// Config contiene la configuración del scanner.
type Config struct {
	Filter FilterConfig
	// MaxMarkets acota cuántos candidatos se envían al ranking (0 = todos).
	MaxMarkets int
}

// DefaultConfig devuelve una configuración sensata para producción.
func DefaultConfig() Config {
	return Config{
		Filter:     DefaultFilterConfig(),
		MaxMarkets: 50,
	}
}

// Scan es el resultado de un ciclo fetch → filter.
type Scan struct {
	Fetched    int
	Candidates []domain.Market
	Summary    Summary
}

// Scanner obtiene mercados y los filtra.
type Scanner struct {
	cfg     Config
	markets ports.MarketProvider
	filter  *Filter
	now     func() time.Time
}

// New crea un Scanner con todas las dependencias inyectadas.
func New(cfg Config, markets ports.MarketProvider) *Scanner {
	return &Scanner{
		cfg:     cfg,
		markets: markets,
		filter:  NewFilter(cfg.Filter),
		now:     time.Now,
	}
}

// WithClock reemplaza el reloj (tests).
func (s *Scanner) WithClock(now func() time.Time) *Scanner {
	s.now = now
	return s
}

// RunOnce ejecuta exactamente un ciclo y devuelve los candidatos.
// Los candidatos quedan ordenados por volumen descendente y acotados a MaxMarkets.
func (s *Scanner) RunOnce(ctx context.Context) (Scan, error) {
	start := time.Now()

	markets, err := s.markets.FetchMarkets(ctx)
	if err != nil {
		return Scan{}, fmt.Errorf("scanner.RunOnce: fetch markets: %w", err)
	}

	results := s.filter.Evaluate(markets, s.now())
	summary := Summarize(results)

	candidates := make([]domain.Market, 0, summary.Passed)
	for _, r := range results {
		if r.Passed {
			candidates = append(candidates, r.Market)
		}
	}
	candidates = rankByVolume(candidates)
	if s.cfg.MaxMarkets > 0 && len(candidates) > s.cfg.MaxMarkets {
		candidates = candidates[:s.cfg.MaxMarkets]
	}

	slog.Info("markets filtered",
		"fetched", len(markets),
		"passed", summary.Passed,
		"candidates", len(candidates),
		"rejected", summary.Rejected,
		"duration", time.Since(start).Round(time.Millisecond),
	)
	return Scan{Fetched: len(markets), Candidates: candidates, Summary: summary}, nil
}

// rankByVolume ordena por volumen descendente; empates conservan el orden de entrada.
func rankByVolume(markets []domain.Market) []domain.Market {
	sort.SliceStable(markets, func(i, j int) bool {
		return markets[i].Volume > markets[j].Volume
	})
	return markets
}
