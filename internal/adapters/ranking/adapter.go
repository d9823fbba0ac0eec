package ranking

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"math"
	"sort"
	"strings"

	"github.com/AdielMag/MoneyMaker/internal/domain"
	"github.com/AdielMag/MoneyMaker/internal/ports"
)

// Adapter valida las respuestas del servicio de ranking y las convierte en sugerencias.
// Implementa ports.Suggester.
type Adapter struct {
	svc       ports.RankingService
	threshold float64
}

// NewAdapter crea un Adapter que descarta sugerencias con confianza < threshold.
func NewAdapter(svc ports.RankingService, threshold float64) *Adapter {
	return &Adapter{svc: svc, threshold: threshold}
}

// response es la forma esperada del documento.
type response struct {
	Suggestions []json.RawMessage `json:"suggestions"`
}

// item usa punteros para distinguir campos ausentes de ceros.
type item struct {
	MarketID         *string  `json:"market_id"`
	Confidence       *float64 `json:"confidence"`
	RecommendedStake *float64 `json:"recommended_stake"`
	Outcome          string   `json:"outcome"`
	Reasoning        string   `json:"reasoning"`
}

// Suggest devuelve hasta n sugerencias válidas para markets, por confianza descendente.
// Una respuesta malformada o vacía devuelve cero sugerencias sin error;
// un fallo de transporte devuelve *domain.ExternalServiceError.
func (a *Adapter) Suggest(ctx context.Context, markets []domain.Market, n int) ([]domain.Suggestion, error) {
	if n <= 0 || len(markets) == 0 {
		return nil, nil
	}

	raw, err := a.svc.Rank(ctx, markets, n)
	if err != nil {
		if !domain.IsExternal(err) {
			err = &domain.ExternalServiceError{Service: serviceName, Op: "rank", Err: err}
		}
		return nil, fmt.Errorf("ranking.Suggest: %w", err)
	}

	suggestions, dropped, err := parse(raw, markets)
	if err != nil {
		slog.Warn("ranking response malformed, no suggestions",
			"err", &domain.ExternalServiceError{Service: serviceName, Op: "decode", Err: err},
			"bytes", len(raw),
		)
		return nil, nil
	}

	kept := suggestions[:0]
	for _, s := range suggestions {
		if s.Confidence >= a.threshold {
			kept = append(kept, s)
		}
	}
	sort.SliceStable(kept, func(i, j int) bool {
		return kept[i].Confidence > kept[j].Confidence
	})
	if len(kept) > n {
		kept = kept[:n]
	}

	slog.Info("suggestions ranked",
		"markets", len(markets),
		"received", len(suggestions)+dropped,
		"invalid", dropped,
		"kept", len(kept),
		"threshold", a.threshold,
	)
	return kept, nil
}

// parse valida el documento. Los items inválidos se descartan uno a uno;
// un documento que no tiene la forma esperada es un error.
func parse(raw []byte, markets []domain.Market) ([]domain.Suggestion, int, error) {
	if len(strings.TrimSpace(string(raw))) == 0 {
		return nil, 0, fmt.Errorf("empty response")
	}
	var doc response
	if err := json.Unmarshal(raw, &doc); err != nil {
		return nil, 0, fmt.Errorf("decode: %w", err)
	}
	if doc.Suggestions == nil {
		return nil, 0, fmt.Errorf("missing suggestions field")
	}

	byID := make(map[string]domain.Market, len(markets))
	for _, m := range markets {
		byID[m.ID] = m
	}

	seen := make(map[string]int)
	var out []domain.Suggestion
	dropped := 0
	for _, r := range doc.Suggestions {
		s, ok := validate(r, byID)
		if !ok {
			dropped++
			continue
		}
		// Un mercado, una sugerencia: gana la de mayor confianza
		if i, dup := seen[s.MarketID]; dup {
			dropped++
			if s.Confidence > out[i].Confidence {
				out[i] = s
			}
			continue
		}
		seen[s.MarketID] = len(out)
		out = append(out, s)
	}
	return out, dropped, nil
}

func validate(r json.RawMessage, markets map[string]domain.Market) (domain.Suggestion, bool) {
	var it item
	if err := json.Unmarshal(r, &it); err != nil {
		return domain.Suggestion{}, false
	}
	if it.MarketID == nil || it.Confidence == nil || it.RecommendedStake == nil {
		return domain.Suggestion{}, false
	}
	m, ok := markets[*it.MarketID]
	if !ok {
		return domain.Suggestion{}, false
	}
	conf := *it.Confidence
	if math.IsNaN(conf) || conf < 0 || conf > 1 {
		return domain.Suggestion{}, false
	}
	stake := *it.RecommendedStake
	if math.IsNaN(stake) || math.IsInf(stake, 0) || stake < 0 {
		return domain.Suggestion{}, false
	}

	outcome := defaultOutcome(m)
	if name := strings.TrimSpace(it.Outcome); name != "" {
		outcome = ""
		for _, o := range m.Outcomes {
			if strings.EqualFold(o.Name, name) {
				outcome = o.Name
				break
			}
		}
		if outcome == "" {
			return domain.Suggestion{}, false
		}
	}

	return domain.Suggestion{
		MarketID:         m.ID,
		Outcome:          outcome,
		Confidence:       conf,
		RecommendedStake: stake,
		Reasoning:        it.Reasoning,
	}, true
}

// defaultOutcome es el lado cuyo precio es Market.Price().
func defaultOutcome(m domain.Market) string {
	if _, ok := m.OutcomePrice(domain.DefaultOutcome); ok || len(m.Outcomes) == 0 {
		return domain.DefaultOutcome
	}
	return m.Outcomes[0].Name
}
