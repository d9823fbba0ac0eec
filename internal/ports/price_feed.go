package ports

import (
	"context"

	"github.com/AdielMag/MoneyMaker/internal/domain"
)

// PriceFeed returns the current quote of a single market.
type PriceFeed interface {
	FetchQuote(ctx context.Context, marketID string) (domain.Quote, error)
}
