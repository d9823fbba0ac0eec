package domain

import (
	"strings"
	"time"
)

// Outcome es uno de los lados de un mercado binario ("Yes" / "No").
type Outcome struct {
	Name  string
	Price float64
}

// Market representa un mercado de predicción tal como lo devuelve el listing.
// Es efímero: se obtiene en cada discovery y nunca se persiste.
type Market struct {
	ID        string
	Question  string
	Slug      string
	Category  string
	Volume    float64 // volumen total en USDC
	Liquidity float64 // liquidez en USDC
	EndDate   time.Time
	Outcomes  []Outcome
	Active    bool
	Closed    bool
}

// Price devuelve el precio actual del mercado: el del outcome "Yes",
// o el primero si no hay ninguno con ese nombre.
func (m Market) Price() float64 {
	if p, ok := m.OutcomePrice(DefaultOutcome); ok {
		return p
	}
	if len(m.Outcomes) > 0 {
		return m.Outcomes[0].Price
	}
	return 0
}

// OutcomePrice busca el precio de un outcome por nombre (case-insensitive).
// Un nombre vacío equivale a DefaultOutcome.
func (m Market) OutcomePrice(name string) (float64, bool) {
	return outcomePrice(m.Outcomes, name)
}

// TruncateQuestion devuelve la pregunta del mercado truncada a maxLen caracteres.
// Si la pregunta está vacía usa el ID del mercado como fallback.
func TruncateQuestion(question, marketID string, maxLen int) string {
	q := question
	if q == "" {
		if len(marketID) > 20 {
			q = marketID[:20] + "..."
		} else {
			q = marketID
		}
	}
	if len(q) > maxLen {
		q = q[:maxLen-3] + "..."
	}
	return q
}

func outcomePrice(outcomes []Outcome, name string) (float64, bool) {
	if name == "" {
		name = DefaultOutcome
	}
	for _, o := range outcomes {
		if strings.EqualFold(o.Name, name) {
			return o.Price, true
		}
	}
	return 0, false
}
