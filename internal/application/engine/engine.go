package engine

import (
	"context"
	"time"

	"github.com/AdielMag/MoneyMaker/internal/scanner"
)

// ScannerService es la interfaz mínima que los engines necesitan del scanner.
// Desacopla el engine de discovery de *scanner.Scanner concreto.
type ScannerService interface {
	RunOnce(ctx context.Context) (scanner.Scan, error)
}

// CallContext acota una llamada externa individual. d <= 0 solo hereda ctx.
func CallContext(ctx context.Context, d time.Duration) (context.Context, context.CancelFunc) {
	if d <= 0 {
		return context.WithCancel(ctx)
	}
	return context.WithTimeout(ctx, d)
}

// TruncateStr trunca un string a maxLen caracteres añadiendo "..." si es necesario.
func TruncateStr(s string, maxLen int) string {
	if len(s) <= maxLen {
		return s
	}
	if maxLen <= 3 {
		return s[:maxLen]
	}
	return s[:maxLen-3] + "..."
}
