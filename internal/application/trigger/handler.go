// Package trigger es el punto de entrada único de los workflows: resuelve la configuración
// de la invocación, consulta el flag persistido y ejecuta el engine que corresponda.
package trigger

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/AdielMag/MoneyMaker/config"
	"github.com/AdielMag/MoneyMaker/internal/adapters/ranking"
	"github.com/AdielMag/MoneyMaker/internal/application/engine/discovery"
	"github.com/AdielMag/MoneyMaker/internal/application/engine/monitor"
	"github.com/AdielMag/MoneyMaker/internal/domain"
	"github.com/AdielMag/MoneyMaker/internal/ports"
	"github.com/AdielMag/MoneyMaker/internal/scanner"
)

// Status es el resultado agregado de una invocación.
type Status string

const (
	StatusOK       Status = "ok"
	StatusPartial  Status = "partial"
	StatusDisabled Status = "disabled"
	StatusFailed   Status = "failed"
)

// Request identifica qué ejecutar y con qué argumentos explícitos.
type Request struct {
	Workflow  domain.WorkflowID `json:"workflow"`
	Mode      domain.Mode       `json:"mode"`
	Overrides config.Overrides  `json:"overrides"`
}

// Response es lo que se devuelve al que disparó el workflow.
type Response struct {
	Workflow  domain.WorkflowID        `json:"workflow"`
	Mode      domain.Mode              `json:"mode"`
	Status    Status                   `json:"status"`
	HTTPCode  int                      `json:"-"`
	Discovery *domain.DiscoverySummary `json:"discovery,omitempty"`
	Monitor   *domain.MonitorSummary   `json:"monitor,omitempty"`
	Error     string                   `json:"error,omitempty"`
}

// Clients son los servicios externos inyectados en los engines.
type Clients struct {
	Markets ports.MarketProvider
	Ranking ports.RankingService
	Prices  ports.PriceFeed
}

// Handler despacha invocaciones. Es seguro para uso concurrente: cada invocación
// resuelve su propia configuración y construye sus engines.
type Handler struct {
	base     *config.Config
	store    ports.Store
	clients  Clients
	notifier ports.Notifier
	now      func() time.Time
}

// New crea un Handler sobre la configuración base ya cargada.
func New(base *config.Config, store ports.Store, clients Clients) *Handler {
	return &Handler{
		base:    base,
		store:   store,
		clients: clients,
		now:     func() time.Time { return time.Now().UTC() },
	}
}

// WithNotifier añade un notifier que recibe cada resumen (opcional).
func (h *Handler) WithNotifier(n ports.Notifier) *Handler {
	h.notifier = n
	return h
}

// WithClock reemplaza el reloj (tests).
func (h *Handler) WithClock(now func() time.Time) *Handler {
	h.now = now
	return h
}

// Handle ejecuta una invocación. El error es no-nil solo si Status es failed.
func (h *Handler) Handle(ctx context.Context, req Request) (Response, error) {
	resp := Response{Workflow: req.Workflow, Mode: req.Mode}

	if !req.Workflow.Valid() {
		return fail(resp, domain.NewValidationError("workflow", "unknown workflow %q", req.Workflow))
	}
	if !req.Mode.Valid() {
		return fail(resp, domain.NewValidationError("mode", "unknown mode %q", req.Mode))
	}

	cfg, err := req.Overrides.Apply(h.base)
	if err != nil {
		return fail(resp, err)
	}

	state, err := h.store.EnsureWorkflowState(ctx, req.Workflow, req.Mode, cfg.EnabledByDefault(req.Mode))
	if err != nil {
		return fail(resp, fmt.Errorf("trigger.Handle: workflow state: %w", err))
	}
	if !state.Enabled {
		slog.Info("workflow disabled", "workflow", req.Workflow, "mode", req.Mode)
		resp.Status = StatusDisabled
		resp.HTTPCode = http.StatusOK
		h.emptySummary(&resp)
		return resp, nil
	}

	if _, err := h.store.EnsureWallet(ctx, req.Mode, cfg.Mode(req.Mode).InitialBalance); err != nil {
		return fail(resp, fmt.Errorf("trigger.Handle: wallet: %w", err))
	}

	var (
		runErr   error
		degraded bool
		errs     []string
	)
	switch req.Workflow {
	case domain.WorkflowDiscovery:
		sum, err := h.newDiscovery(cfg).Run(ctx, req.Mode)
		resp.Discovery, runErr = &sum, err
		degraded, errs = sum.Degraded(), sum.Errors
		if err == nil {
			h.notifyDiscovery(ctx, sum)
		}
	case domain.WorkflowMonitor:
		sum, err := h.newMonitor(cfg).Run(ctx, req.Mode)
		resp.Monitor, runErr = &sum, err
		degraded, errs = sum.Degraded(), sum.Errors
		if err == nil {
			h.notifyMonitor(ctx, sum)
		}
	}

	lastErr := strings.Join(errs, "; ")
	if runErr != nil {
		lastErr = runErr.Error()
	}
	// Con la base caída el registro también fallará; se loguea sin tapar el error del run.
	if err := h.store.RecordWorkflowRun(ctx, req.Workflow, req.Mode, h.now(), lastErr); err != nil {
		slog.Warn("trigger: record run failed", "workflow", req.Workflow, "mode", req.Mode, "err", err)
	}

	if runErr != nil {
		return fail(resp, runErr)
	}
	resp.Status, resp.HTTPCode = StatusOK, http.StatusOK
	if degraded {
		resp.Status, resp.HTTPCode = StatusPartial, http.StatusMultiStatus
	}
	return resp, nil
}

// CloseManual cierra una posición a mercado fuera de los workflows programados.
func (h *Handler) CloseManual(ctx context.Context, mode domain.Mode, positionID string) (domain.Position, error) {
	if !mode.Valid() {
		return domain.Position{}, domain.NewValidationError("mode", "unknown mode %q", mode)
	}
	return h.newMonitor(h.base).CloseManual(ctx, mode, positionID)
}

func (h *Handler) newDiscovery(cfg *config.Config) *discovery.Engine {
	sc := scanner.New(ScannerConfig(cfg), h.clients.Markets).WithClock(h.now)
	sg := ranking.NewAdapter(h.clients.Ranking, cfg.Suggestions.ConfidenceThreshold)
	return discovery.New(sc, sg, h.store, discovery.Config{
		MaxBetAmount:       cfg.Trading.MaxBetAmount,
		MinBalanceToTrade:  cfg.Trading.MinBalanceToTrade,
		MaxPositions:       cfg.Trading.MaxPositions,
		MaxSuggestions:     cfg.Suggestions.MaxSuggestions,
		MaxConflictRetries: cfg.Trading.MaxConflictRetries,
		CallTimeout:        cfg.CallTimeout(),
	}).WithClock(h.now)
}

func (h *Handler) newMonitor(cfg *config.Config) *monitor.Engine {
	return monitor.New(h.clients.Prices, h.store, monitor.Config{
		Thresholds: domain.ExitThresholds{
			StopLossPercent:   cfg.Trading.StopLossPercent,
			TakeProfitPercent: cfg.Trading.TakeProfitPercent,
		},
		MaxPriceAge: cfg.MaxPriceAge(),
		Workers:     cfg.Trading.PriceWorkers,
		CallTimeout: cfg.CallTimeout(),
	}).WithClock(h.now)
}

// emptySummary adjunta un resumen sin acciones para el workflow pedido.
func (h *Handler) emptySummary(resp *Response) {
	at := h.now()
	switch resp.Workflow {
	case domain.WorkflowDiscovery:
		resp.Discovery = &domain.DiscoverySummary{Mode: resp.Mode, StartedAt: at, CompletedAt: at}
	case domain.WorkflowMonitor:
		resp.Monitor = &domain.MonitorSummary{Mode: resp.Mode, StartedAt: at, CompletedAt: at}
	}
}

// ScannerConfig traduce la sección market_filters al filtro del scanner.
func ScannerConfig(cfg *config.Config) scanner.Config {
	f := cfg.MarketFilters
	return scanner.Config{
		Filter: scanner.FilterConfig{
			MinVolume:           f.MinVolume,
			MinLiquidity:        f.MinLiquidity,
			MaxTimeToResolution: time.Duration(f.MaxTimeToResolutionHours * float64(time.Hour)),
			MinTimeToResolution: time.Duration(f.MinTimeToResolutionMinutes * float64(time.Minute)),
			ExcludedCategories:  f.ExcludedCategories,
			MinPrice:            f.MinPrice,
			MaxPrice:            f.MaxPrice,
		},
		MaxMarkets: f.MaxMarkets,
	}
}

func (h *Handler) notifyDiscovery(ctx context.Context, s domain.DiscoverySummary) {
	if h.notifier == nil {
		return
	}
	if err := h.notifier.NotifyDiscovery(ctx, s); err != nil {
		slog.Warn("trigger: notify failed", "workflow", domain.WorkflowDiscovery, "err", err)
	}
}

func (h *Handler) notifyMonitor(ctx context.Context, s domain.MonitorSummary) {
	if h.notifier == nil {
		return
	}
	if err := h.notifier.NotifyMonitor(ctx, s); err != nil {
		slog.Warn("trigger: notify failed", "workflow", domain.WorkflowMonitor, "err", err)
	}
}

func fail(resp Response, err error) (Response, error) {
	resp.Status = StatusFailed
	resp.HTTPCode = StatusCode(err)
	resp.Error = err.Error()
	slog.Error("workflow failed",
		"workflow", resp.Workflow, "mode", resp.Mode, "code", resp.HTTPCode, "err", err)
	return resp, err
}

// StatusCode mapea un error al código HTTP que ve quien disparó la invocación.
func StatusCode(err error) int {
	switch {
	case err == nil:
		return http.StatusOK
	case domain.IsValidation(err):
		return http.StatusBadRequest
	case errors.Is(err, domain.ErrNotFound):
		return http.StatusNotFound
	case errors.Is(err, domain.ErrPositionClosed):
		return http.StatusConflict
	default:
		return http.StatusServiceUnavailable
	}
}
