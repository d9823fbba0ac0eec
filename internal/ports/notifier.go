package ports

import (
	"context"

	"github.com/AdielMag/MoneyMaker/internal/domain"
)

// Notifier presenta el resultado de cada ejecución al operador.
type Notifier interface {
	NotifyDiscovery(ctx context.Context, s domain.DiscoverySummary) error
	NotifyMonitor(ctx context.Context, s domain.MonitorSummary) error
}
