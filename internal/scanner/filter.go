package scanner

import (
	"strings"
	"time"

	"github.com/AdielMag/MoneyMaker/internal/domain"
)

// FilterConfig contiene los parámetros configurables de filtrado.
type FilterConfig struct {
	// MinVolume descarta mercados con menos volumen operado (USDC).
	MinVolume float64
	// MinLiquidity descarta mercados con menos liquidez en book (USDC).
	MinLiquidity float64
	// MaxTimeToResolution descarta mercados que se resuelven más tarde que esto.
	MaxTimeToResolution time.Duration
	// MinTimeToResolution descarta mercados que se resuelven antes (no da tiempo a salir).
	MinTimeToResolution time.Duration
	// ExcludedCategories se compara sin distinguir mayúsculas.
	ExcludedCategories []string
	// MinPrice / MaxPrice: banda inclusiva del precio actual; evita probabilidades extremas.
	MinPrice float64
	MaxPrice float64
}

// DefaultFilterConfig devuelve los criterios por defecto del workflow de discovery.
func DefaultFilterConfig() FilterConfig {
	return FilterConfig{
		MinVolume:           1000,
		MinLiquidity:        500,
		MaxTimeToResolution: time.Hour,
		MinTimeToResolution: 5 * time.Minute,
		ExcludedCategories:  []string{"sports", "entertainment"},
		MinPrice:            0.05,
		MaxPrice:            0.95,
	}
}

// Reason identifica por qué un mercado no pasó el filtro.
type Reason string

const (
	ReasonInactive     Reason = "inactive"
	ReasonEnded        Reason = "ended"
	ReasonTooFar       Reason = "resolves_too_far"
	ReasonTooSoon      Reason = "resolves_too_soon"
	ReasonLowVolume    Reason = "low_volume"
	ReasonLowLiquidity Reason = "low_liquidity"
	ReasonExcluded     Reason = "excluded_category"
	ReasonPriceExtreme Reason = "price_out_of_band"
)

// Result es el veredicto del filtro sobre un mercado.
type Result struct {
	Market domain.Market
	Passed bool
	Reason Reason // vacío si pasó
}

// Summary cuenta resultados por motivo de rechazo.
type Summary struct {
	Total    int
	Passed   int
	Rejected map[Reason]int
}

// Filter aplica los filtros configurados sobre una lista de mercados.
// No accede a red ni a storage: mismo input y mismo now, mismo output.
type Filter struct {
	cfg      FilterConfig
	excluded map[string]struct{}
}

// NewFilter crea un Filter con la configuración dada.
func NewFilter(cfg FilterConfig) *Filter {
	excluded := make(map[string]struct{}, len(cfg.ExcludedCategories))
	for _, c := range cfg.ExcludedCategories {
		excluded[strings.ToLower(strings.TrimSpace(c))] = struct{}{}
	}
	return &Filter{cfg: cfg, excluded: excluded}
}

// Apply devuelve los mercados que pasan todos los filtros, en el orden de entrada.
func (f *Filter) Apply(markets []domain.Market, now time.Time) []domain.Market {
	result := make([]domain.Market, 0, len(markets))
	for _, m := range markets {
		if _, ok := f.Check(m, now); ok {
			result = append(result, m)
		}
	}
	return result
}

// Evaluate devuelve el veredicto de cada mercado, en el orden de entrada.
func (f *Filter) Evaluate(markets []domain.Market, now time.Time) []Result {
	results := make([]Result, 0, len(markets))
	for _, m := range markets {
		reason, ok := f.Check(m, now)
		results = append(results, Result{Market: m, Passed: ok, Reason: reason})
	}
	return results
}

// Check devuelve true si el mercado supera todos los criterios; si no, el primer motivo.
func (f *Filter) Check(m domain.Market, now time.Time) (Reason, bool) {
	if !m.Active || m.Closed {
		return ReasonInactive, false
	}

	ttr := m.EndDate.Sub(now)
	if m.EndDate.IsZero() || ttr <= 0 {
		return ReasonEnded, false
	}
	if f.cfg.MaxTimeToResolution > 0 && ttr > f.cfg.MaxTimeToResolution {
		return ReasonTooFar, false
	}
	if ttr < f.cfg.MinTimeToResolution {
		return ReasonTooSoon, false
	}

	if m.Volume < f.cfg.MinVolume {
		return ReasonLowVolume, false
	}
	if m.Liquidity < f.cfg.MinLiquidity {
		return ReasonLowLiquidity, false
	}
	if _, ok := f.excluded[strings.ToLower(strings.TrimSpace(m.Category))]; ok && m.Category != "" {
		return ReasonExcluded, false
	}

	price := m.Price()
	if price < f.cfg.MinPrice || price > f.cfg.MaxPrice || price <= 0 {
		return ReasonPriceExtreme, false
	}
	return "", true
}

// Summarize cuenta los resultados de Evaluate.
func Summarize(results []Result) Summary {
	s := Summary{Total: len(results), Rejected: make(map[Reason]int)}
	for _, r := range results {
		if r.Passed {
			s.Passed++
			continue
		}
		s.Rejected[r.Reason]++
	}
	return s
}
