package polymarket

import (
	"bytes"
	"encoding/json"
	"strconv"
	"strings"
)

// DTOs raw de la API Gamma. Solo se usan dentro de este paquete.
// La conversión a domain entities se hace en mapping.go.

// gammaMarketsResponse es la respuesta de GET /markets de Gamma.
type gammaMarketsResponse []gammaMarket

// gammaMarket es un mercado tal como lo publica Gamma.
// Gamma devuelve números como strings o como números según el campo y la época,
// y outcomes/outcomePrices como arrays JSON serializados dentro de un string.
type gammaMarket struct {
	ID             string     `json:"id"`
	ConditionID    string     `json:"conditionId"`
	Question       string     `json:"question"`
	Slug           string     `json:"slug"`
	Category       string     `json:"category"`
	GroupItemTitle string     `json:"groupItemTitle"`
	EndDate        string     `json:"endDate"`
	EndDateISO     string     `json:"endDateIso"`
	UpdatedAt      string     `json:"updatedAt"`
	Volume         flexFloat  `json:"volume"`
	Liquidity      flexFloat  `json:"liquidity"`
	Outcomes       stringList `json:"outcomes"`
	OutcomePrices  stringList `json:"outcomePrices"`
	Active         bool       `json:"active"`
	Closed         bool       `json:"closed"`
}

// flexFloat acepta 12.5, "12.5", "" y null.
type flexFloat float64

func (f *flexFloat) UnmarshalJSON(b []byte) error {
	s := strings.Trim(string(bytes.TrimSpace(b)), `"`)
	if s == "" || s == "null" {
		*f = 0
		return nil
	}
	v, err := strconv.ParseFloat(s, 64)
	if err != nil {
		return err
	}
	*f = flexFloat(v)
	return nil
}

// stringList acepta ["a","b"] y "[\"a\",\"b\"]".
type stringList []string

func (l *stringList) UnmarshalJSON(b []byte) error {
	b = bytes.TrimSpace(b)
	if len(b) == 0 || bytes.Equal(b, []byte("null")) {
		*l = nil
		return nil
	}
	if b[0] == '"' {
		var inner string
		if err := json.Unmarshal(b, &inner); err != nil {
			return err
		}
		if strings.TrimSpace(inner) == "" {
			*l = nil
			return nil
		}
		b = []byte(inner)
	}

	// Los elementos pueden venir como strings o como números
	var raw []json.RawMessage
	if err := json.Unmarshal(b, &raw); err != nil {
		return err
	}
	out := make([]string, 0, len(raw))
	for _, r := range raw {
		var s string
		if err := json.Unmarshal(r, &s); err != nil {
			s = string(bytes.TrimSpace(r))
		}
		out = append(out, s)
	}
	*l = out
	return nil
}
