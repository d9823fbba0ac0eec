package ranking

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"golang.org/x/time/rate"

	"github.com/AdielMag/MoneyMaker/internal/domain"
)

const (
	serviceName     = "ranking"
	maxResponseSize = 1 << 20
	defaultTimeout  = 30 * time.Second
)

// Client llama al servicio externo de ranking por HTTP.
// Implementa ports.RankingService: un único intento por llamada, sin retries.
type Client struct {
	url        string
	apiKey     string
	httpClient *http.Client
	limiter    *rate.Limiter
}

// NewClient crea un Client contra url. apiKey vacío omite el header Authorization.
func NewClient(url, apiKey string, timeout time.Duration) *Client {
	if timeout <= 0 {
		timeout = defaultTimeout
	}
	return &Client{
		url:        url,
		apiKey:     strings.TrimSpace(apiKey),
		httpClient: &http.Client{Timeout: timeout},
		limiter:    rate.NewLimiter(rate.Every(time.Second), 2),
	}
}

// rankRequest es el body enviado al servicio.
type rankRequest struct {
	Markets []marketPayload `json:"markets"`
	Count   int             `json:"count"`
}

type marketPayload struct {
	ID        string           `json:"id"`
	Question  string           `json:"question"`
	Category  string           `json:"category,omitempty"`
	Volume    float64          `json:"volume"`
	Liquidity float64          `json:"liquidity"`
	Price     float64          `json:"price"`
	EndDate   time.Time        `json:"end_date"`
	Outcomes  []outcomePayload `json:"outcomes"`
}

type outcomePayload struct {
	Name  string  `json:"name"`
	Price float64 `json:"price"`
}

// Rank envía los mercados y devuelve el documento de respuesta sin interpretar.
func (c *Client) Rank(ctx context.Context, markets []domain.Market, count int) ([]byte, error) {
	body, err := json.Marshal(rankRequest{Markets: toPayload(markets), Count: count})
	if err != nil {
		return nil, fmt.Errorf("ranking.Rank: marshal: %w", err)
	}

	raw, err := c.post(ctx, body)
	if err != nil {
		return nil, fmt.Errorf("ranking.Rank: %w", &domain.ExternalServiceError{Service: serviceName, Op: "rank", Err: err})
	}
	return raw, nil
}

func (c *Client) post(ctx context.Context, body []byte) ([]byte, error) {
	if c.url == "" {
		return nil, fmt.Errorf("no ranking url configured")
	}
	if err := c.limiter.Wait(ctx); err != nil {
		return nil, fmt.Errorf("rate limiter: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.url, bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("build request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Accept", "application/json")
	if c.apiKey != "" {
		req.Header.Set("Authorization", "Bearer "+c.apiKey)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("request: %w", err)
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(io.LimitReader(resp.Body, maxResponseSize))
	if err != nil {
		return nil, fmt.Errorf("read body: %w", err)
	}
	if resp.StatusCode >= 400 {
		return nil, fmt.Errorf("status %d: %s", resp.StatusCode, truncate(string(raw), 256))
	}
	return raw, nil
}

func toPayload(markets []domain.Market) []marketPayload {
	out := make([]marketPayload, 0, len(markets))
	for _, m := range markets {
		p := marketPayload{
			ID:        m.ID,
			Question:  m.Question,
			Category:  m.Category,
			Volume:    m.Volume,
			Liquidity: m.Liquidity,
			Price:     m.Price(),
			EndDate:   m.EndDate,
		}
		for _, o := range m.Outcomes {
			p.Outcomes = append(p.Outcomes, outcomePayload{Name: o.Name, Price: o.Price})
		}
		out = append(out, p)
	}
	return out
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n] + "..."
}
