// Package server expone el trigger handler y consultas del ledger por HTTP.
package server

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/AdielMag/MoneyMaker/internal/application/trigger"
	"github.com/AdielMag/MoneyMaker/internal/domain"
)

// Triggerer es lo que el servidor necesita del trigger handler.
type Triggerer interface {
	Handle(ctx context.Context, req trigger.Request) (trigger.Response, error)
	CloseManual(ctx context.Context, mode domain.Mode, positionID string) (domain.Position, error)
}

// Store son las lecturas y el toggle administrativo que sirve la API.
type Store interface {
	Ping(ctx context.Context) error
	GetWallet(ctx context.Context, mode domain.Mode) (domain.Wallet, error)
	Snapshot(ctx context.Context, mode domain.Mode) (domain.LedgerSnapshot, error)
	ListPositions(ctx context.Context, mode domain.Mode, status domain.PositionStatus) ([]domain.Position, error)
	GetWorkflowState(ctx context.Context, wf domain.WorkflowID, mode domain.Mode) (domain.WorkflowState, error)
	SetWorkflowEnabled(ctx context.Context, wf domain.WorkflowID, mode domain.Mode, enabled bool) (domain.WorkflowState, error)
}

// Server es el servidor HTTP headless.
type Server struct {
	httpServer *http.Server
	api        *api
}

// New registra las rutas sobre un ServeMux y envuelve el mux con el logging.
func New(addr string, trig Triggerer, store Store) *Server {
	a := &api{trigger: trig, store: store}

	srv := &http.Server{
		Addr:              addr,
		Handler:           logging(a.routes()),
		ReadHeaderTimeout: 10 * time.Second,
		WriteTimeout:      2 * time.Minute, // un discovery incluye la llamada al ranking
		IdleTimeout:       60 * time.Second,
	}
	return &Server{httpServer: srv, api: a}
}

// Handler devuelve el handler completo, middleware incluido (tests).
func (s *Server) Handler() http.Handler {
	return s.httpServer.Handler
}

// Start bloquea hasta que el servidor falla o se apaga con Shutdown.
func (s *Server) Start() error {
	slog.Info("server: starting", "addr", s.httpServer.Addr)
	if err := s.httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return fmt.Errorf("server.Start: listen: %w", err)
	}
	return nil
}

// Shutdown espera a que terminen las peticiones en vuelo dentro del deadline de ctx.
func (s *Server) Shutdown(ctx context.Context) error {
	slog.Info("server: shutting down")
	if err := s.httpServer.Shutdown(ctx); err != nil {
		return fmt.Errorf("server.Shutdown: %w", err)
	}
	return nil
}

func (a *api) routes() *http.ServeMux {
	mux := http.NewServeMux()
	mux.HandleFunc("GET /api/health", a.health)
	mux.HandleFunc("POST /api/trigger/{workflow}/{mode}", a.triggerWorkflow)
	mux.HandleFunc("GET /api/wallets/{mode}", a.wallet)
	mux.HandleFunc("GET /api/positions/{mode}", a.positions)
	mux.HandleFunc("POST /api/positions/{mode}/{id}/close", a.closePosition)
	mux.HandleFunc("GET /api/workflows/{workflow}/{mode}", a.workflowState)
	mux.HandleFunc("PUT /api/workflows/{workflow}/{mode}", a.setWorkflow)
	return mux
}
