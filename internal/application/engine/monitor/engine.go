package monitor

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"math"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/AdielMag/MoneyMaker/internal/application/engine"
	"github.com/AdielMag/MoneyMaker/internal/domain"
	"github.com/AdielMag/MoneyMaker/internal/ports"
)

const defaultWorkers = 4

// Config contiene los umbrales de salida y los límites del fetch de precios.
type Config struct {
	Thresholds  domain.ExitThresholds
	MaxPriceAge time.Duration // 0 = sin límite
	Workers     int
	CallTimeout time.Duration
}

// Engine revisa posiciones abiertas y cierra las que cruzan un umbral.
type Engine struct {
	feed   ports.PriceFeed
	ledger ports.Ledger
	cfg    Config
	now    func() time.Time
}

// New crea un monitor con todas las dependencias inyectadas.
func New(feed ports.PriceFeed, ledger ports.Ledger, cfg Config) *Engine {
	if cfg.Workers <= 0 {
		cfg.Workers = defaultWorkers
	}
	return &Engine{
		feed:   feed,
		ledger: ledger,
		cfg:    cfg,
		now:    func() time.Time { return time.Now().UTC() },
	}
}

// WithClock reemplaza el reloj (tests).
func (e *Engine) WithClock(now func() time.Time) *Engine {
	e.now = now
	return e
}

type priced struct {
	quote domain.Quote
	err   error
}

// Run evalúa cada posición abierta de mode una vez.
// Los precios se piden en paralelo; los cierres se aplican en serie contra el ledger.
// Un fallo de precio en una posición no frena a las demás. Solo un fallo de persistencia
// aborta el run y se devuelve como error.
func (e *Engine) Run(ctx context.Context, mode domain.Mode) (domain.MonitorSummary, error) {
	sum := domain.MonitorSummary{Mode: mode, StartedAt: e.now()}
	defer func() { sum.CompletedAt = e.now() }()

	positions, err := e.ledger.ListOpenPositions(ctx, mode)
	if err != nil {
		return sum, fmt.Errorf("monitor.Run: list open: %w", err)
	}
	sum.Checked = len(positions)
	if len(positions) == 0 {
		slog.Info("monitor: no open positions", "mode", mode)
		return sum, nil
	}

	quotes := e.fetchQuotes(ctx, positions)

	for i, p := range positions {
		closed, err := e.evaluate(ctx, p, quotes[i], &sum)
		if err != nil {
			return sum, err
		}
		if closed == nil {
			continue
		}
		sum.RecordClose(*closed)
	}

	slog.Info("monitor complete",
		"mode", mode,
		"checked", sum.Checked,
		"held", sum.Held,
		"closed", len(sum.Closed),
		"skipped", len(sum.Skips),
		"realized_pnl", sum.RealizedPnL,
	)
	return sum, nil
}

// fetchQuotes pide un precio por posición con como mucho Workers llamadas en vuelo.
// El resultado i corresponde a positions[i].
func (e *Engine) fetchQuotes(ctx context.Context, positions []domain.Position) []priced {
	out := make([]priced, len(positions))
	var g errgroup.Group
	g.SetLimit(e.cfg.Workers)
	for i, p := range positions {
		g.Go(func() error {
			callCtx, cancel := engine.CallContext(ctx, e.cfg.CallTimeout)
			defer cancel()
			q, err := e.feed.FetchQuote(callCtx, p.MarketID)
			out[i] = priced{quote: q, err: err}
			return nil
		})
	}
	_ = g.Wait()
	return out
}

// evaluate decide y, si toca, cierra una posición. nil sin error = mantenida o saltada.
func (e *Engine) evaluate(ctx context.Context, p domain.Position, pq priced, sum *domain.MonitorSummary) (*domain.Position, error) {
	price, reason, detail := e.currentPrice(p, pq)
	if reason != "" {
		slog.Warn("monitor: position skipped",
			"position_id", p.ID, "market_id", p.MarketID, "reason", reason, "detail", detail)
		sum.Skip(p, reason, detail)
		return nil, nil
	}

	change := p.ChangePercent(price)
	closeReason, hit := e.cfg.Thresholds.Evaluate(change)
	if !hit {
		sum.Held++
		slog.Debug("monitor: hold",
			"position_id", p.ID, "price", price, "change_pct", change)
		return nil, nil
	}

	closed, err := e.close(ctx, p, closeReason, price, change)
	switch {
	case err == nil:
		return &closed, nil
	case errors.Is(err, domain.ErrPositionClosed), errors.Is(err, domain.ErrNotFound):
		sum.Skip(p, domain.SkipAlreadyClosed, "")
		return nil, nil
	case errors.Is(err, domain.ErrConcurrencyConflict):
		sum.Skip(p, domain.SkipConflictExhausted, err.Error())
		return nil, nil
	default:
		return nil, fmt.Errorf("monitor.evaluate %s: %w", p.ID, err)
	}
}

// currentPrice valida el quote. Un reason no vacío indica por qué no se puede evaluar.
func (e *Engine) currentPrice(p domain.Position, pq priced) (float64, domain.SkipReason, string) {
	if pq.err != nil {
		return 0, domain.SkipPriceUnavailable, pq.err.Error()
	}
	q := pq.quote
	if !q.Tradable() {
		return 0, domain.SkipStalePrice, "market no longer trading"
	}
	if age := q.Age(e.now()); e.cfg.MaxPriceAge > 0 && age > e.cfg.MaxPriceAge {
		return 0, domain.SkipStalePrice, fmt.Sprintf("quote age %s", age.Round(time.Second))
	}
	price, ok := q.PriceOf(p.Outcome)
	if !ok {
		return 0, domain.SkipInvalidPrice, fmt.Sprintf("no price for outcome %q", p.Outcome)
	}
	if math.IsNaN(price) || price <= 0 || price > 1 {
		return 0, domain.SkipInvalidPrice, fmt.Sprintf("price %v", price)
	}
	return price, "", ""
}

func (e *Engine) close(ctx context.Context, p domain.Position, reason domain.CloseReason, price, change float64) (domain.Position, error) {
	proceeds := domain.Proceeds(p.Stake, change)
	closed, w, err := e.ledger.ClosePosition(ctx, domain.ClosePositionRequest{
		Mode:       p.Mode,
		PositionID: p.ID,
		Reason:     reason,
		ExitPrice:  price,
		Proceeds:   proceeds,
		ClosedAt:   e.now(),
	})
	if err != nil {
		return domain.Position{}, err
	}
	slog.Info("position closed",
		"mode", p.Mode,
		"position_id", p.ID,
		"question", engine.TruncateStr(p.Question, 60),
		"reason", reason,
		"entry_price", p.EntryPrice,
		"exit_price", price,
		"change_pct", change,
		"proceeds", proceeds,
		"pnl", closed.RealizedPnL(),
		"balance", w.Balance,
	)
	return closed, nil
}

// CloseManual cierra una posición a precio de mercado, sin mirar umbrales.
func (e *Engine) CloseManual(ctx context.Context, mode domain.Mode, positionID string) (domain.Position, error) {
	p, err := e.ledger.GetPosition(ctx, mode, positionID)
	if err != nil {
		return domain.Position{}, fmt.Errorf("monitor.CloseManual: %w", err)
	}
	if !p.IsOpen() {
		return domain.Position{}, fmt.Errorf("monitor.CloseManual %s: %w", positionID, domain.ErrPositionClosed)
	}

	callCtx, cancel := engine.CallContext(ctx, e.cfg.CallTimeout)
	q, err := e.feed.FetchQuote(callCtx, p.MarketID)
	cancel()
	price, reason, detail := e.currentPrice(p, priced{quote: q, err: err})
	if reason != "" {
		if err != nil {
			return domain.Position{}, fmt.Errorf("monitor.CloseManual: quote %s: %w", p.MarketID, err)
		}
		return domain.Position{}, fmt.Errorf("monitor.CloseManual: %w", &domain.ExternalServiceError{
			Service: "price",
			Op:      "close",
			Err:     fmt.Errorf("%s: %s", reason, detail),
		})
	}

	closed, err := e.close(ctx, p, domain.CloseManual, price, p.ChangePercent(price))
	if err != nil {
		return domain.Position{}, fmt.Errorf("monitor.CloseManual: %w", err)
	}
	return closed, nil
}
