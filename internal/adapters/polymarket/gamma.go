package polymarket

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/url"

	"github.com/AdielMag/MoneyMaker/internal/domain"
)

const gammaMarketsPath = "/markets"

// FetchMarkets obtiene los mercados activos y no cerrados de Gamma. Implementa ports.MarketProvider.
func (c *Client) FetchMarkets(ctx context.Context) ([]domain.Market, error) {
	q := url.Values{}
	q.Set("active", "true")
	q.Set("closed", "false")
	q.Set("limit", fmt.Sprint(c.marketLimit))
	endpoint := c.gammaBase + gammaMarketsPath + "?" + q.Encode()

	var resp gammaMarketsResponse
	if err := c.get(ctx, "markets", endpoint, &resp); err != nil {
		return nil, fmt.Errorf("gamma.FetchMarkets: %w", err)
	}

	markets := mapGammaMarkets(resp)
	slog.Debug("gamma markets fetched", "raw", len(resp), "mapped", len(markets))
	return markets, nil
}

// FetchQuote obtiene la cotización actual de un mercado. Implementa ports.PriceFeed.
// Un mercado inexistente es un ExternalServiceError que envuelve domain.ErrNotFound.
func (c *Client) FetchQuote(ctx context.Context, marketID string) (domain.Quote, error) {
	if marketID == "" {
		return domain.Quote{}, domain.NewValidationError("market_id", "must not be empty")
	}
	endpoint := c.gammaBase + gammaMarketsPath + "/" + url.PathEscape(marketID)

	var gm gammaMarket
	if err := c.get(ctx, "quote", endpoint, &gm); err != nil {
		if errors.Is(err, errNotFound) {
			err = &domain.ExternalServiceError{Service: serviceName, Op: "quote", Err: fmt.Errorf("market %s: %w", marketID, domain.ErrNotFound)}
		}
		return domain.Quote{}, fmt.Errorf("gamma.FetchQuote: %w", err)
	}

	q := mapQuote(gm, c.now())
	if q.MarketID == "" {
		q.MarketID = marketID
	}
	return q, nil
}
