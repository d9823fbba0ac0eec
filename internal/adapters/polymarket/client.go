package polymarket

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"time"

	"golang.org/x/time/rate"

	"github.com/AdielMag/MoneyMaker/internal/domain"
)

const (
	defaultGammaBase = "https://gamma-api.polymarket.com"
	serviceName      = "gamma"

	// Rate limit al 60% del límite documentado.
	// Gamma /markets: 300/10s → 180/10s → 18/s
	gammaRatePerSec = 18

	defaultTimeout     = 10 * time.Second
	defaultMarketLimit = 500
	maxErrorBody       = 512
)

// errNotFound distingue un 404 del resto de errores de cliente.
var errNotFound = errors.New("not found")

// Client es el HTTP client de la API Gamma de Polymarket con rate limiting.
// Cada llamada es un único intento: reintentar es decisión del scheduler.
type Client struct {
	http         *http.Client
	gammaBase    string
	gammaLimiter *rate.Limiter
	marketLimit  int
	now          func() time.Time
}

// NewClient crea un Client con el base URL dado.
// Si gammaBase está vacío usa el URL de producción; timeout <= 0 usa el default.
func NewClient(gammaBase string, timeout time.Duration) *Client {
	if gammaBase == "" {
		gammaBase = defaultGammaBase
	}
	if timeout <= 0 {
		timeout = defaultTimeout
	}
	return &Client{
		http:         &http.Client{Timeout: timeout},
		gammaBase:    gammaBase,
		gammaLimiter: rate.NewLimiter(gammaRatePerSec, 10),
		marketLimit:  defaultMarketLimit,
		now:          func() time.Time { return time.Now().UTC() },
	}
}

// WithMarketLimit fija cuántos mercados pide FetchMarkets.
func (c *Client) WithMarketLimit(n int) *Client {
	if n > 0 {
		c.marketLimit = n
	}
	return c
}

// get hace un GET con rate limiting y decodifica el JSON en out.
// Todo fallo se devuelve como *domain.ExternalServiceError.
func (c *Client) get(ctx context.Context, op, url string, out any) error {
	if err := c.do(ctx, url, out); err != nil {
		return &domain.ExternalServiceError{Service: serviceName, Op: op, Err: err}
	}
	return nil
}

func (c *Client) do(ctx context.Context, url string, out any) error {
	if err := c.gammaLimiter.Wait(ctx); err != nil {
		return fmt.Errorf("rate limiter: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return fmt.Errorf("build request: %w", err)
	}
	req.Header.Set("Accept", "application/json")

	resp, err := c.http.Do(req)
	if err != nil {
		return fmt.Errorf("request: %w", err)
	}
	defer resp.Body.Close()

	switch {
	case resp.StatusCode == http.StatusNotFound:
		return errNotFound
	case resp.StatusCode >= 400:
		body, _ := io.ReadAll(io.LimitReader(resp.Body, maxErrorBody))
		return fmt.Errorf("status %d: %s", resp.StatusCode, string(body))
	}

	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("decode response: %w", err)
	}
	return nil
}
