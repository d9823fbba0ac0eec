package ports

import (
	"context"

	"github.com/AdielMag/MoneyMaker/internal/domain"
)

// MarketProvider obtiene el listado de mercados candidatos.
type MarketProvider interface {
	// FetchMarkets devuelve los mercados activos tal como los publica la fuente.
	// Los fallos de red o de formato se devuelven como *domain.ExternalServiceError.
	FetchMarkets(ctx context.Context) ([]domain.Market, error)
}
