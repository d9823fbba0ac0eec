package ports

import (
	"context"

	"github.com/AdielMag/MoneyMaker/internal/domain"
)

// RankingService is the external reasoning service that ranks markets.
// It returns the raw response document; validation belongs to the caller.
type RankingService interface {
	Rank(ctx context.Context, markets []domain.Market, count int) ([]byte, error)
}

// Suggester turns filtered markets into at most n validated suggestions,
// ordered by descending confidence.
type Suggester interface {
	Suggest(ctx context.Context, markets []domain.Market, n int) ([]domain.Suggestion, error)
}
