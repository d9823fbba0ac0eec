package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/AdielMag/MoneyMaker/config"
	"github.com/AdielMag/MoneyMaker/internal/adapters/notify"
	"github.com/AdielMag/MoneyMaker/internal/adapters/storage"
	"github.com/AdielMag/MoneyMaker/internal/application/trigger"
	"github.com/AdielMag/MoneyMaker/internal/domain"
	"github.com/AdielMag/MoneyMaker/internal/server"
)

// runOnce ejecuta un workflow una vez, como lo haría un trigger programado.
func runOnce(ctx context.Context, h *trigger.Handler, workflow string, mode domain.Mode) error {
	wf, err := domain.ParseWorkflow(workflow)
	if err != nil {
		return err
	}
	resp, err := h.Handle(ctx, trigger.Request{Workflow: wf, Mode: mode})
	if err != nil {
		return err
	}
	slog.Info("workflow finished", "workflow", wf, "mode", mode, "status", resp.Status)
	return nil
}

func runServer(ctx context.Context, cfg *config.Config, h *trigger.Handler, store *storage.SQLiteStorage) error {
	srv := server.New(cfg.Server.Addr, h, store)

	errCh := make(chan error, 1)
	go func() { errCh <- srv.Start() }()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()
	return srv.Shutdown(shutdownCtx)
}

// runInit crea los wallets y estados de workflow que falten. Lo existente no se toca.
func runInit(ctx context.Context, cfg *config.Config, store *storage.SQLiteStorage, console *notify.Console) error {
	states := make([]domain.WorkflowState, 0, len(domain.Modes())*len(domain.Workflows()))
	for _, m := range domain.Modes() {
		w, err := store.EnsureWallet(ctx, m, cfg.Mode(m).InitialBalance)
		if err != nil {
			return fmt.Errorf("init: wallet %s: %w", m, err)
		}
		slog.Info("wallet ready", "mode", m, "balance", w.Balance, "initial", w.InitialBalance)

		for _, wf := range domain.Workflows() {
			st, err := store.EnsureWorkflowState(ctx, wf, m, cfg.EnabledByDefault(m))
			if err != nil {
				return fmt.Errorf("init: workflow %s/%s: %w", wf, m, err)
			}
			states = append(states, st)
		}
	}
	console.PrintWorkflows(states)
	return nil
}

func runReport(ctx context.Context, store *storage.SQLiteStorage, console *notify.Console, mode domain.Mode) error {
	snap, err := store.Snapshot(ctx, mode)
	if err != nil {
		return fmt.Errorf("report: %w", err)
	}
	open, err := store.ListOpenPositions(ctx, mode)
	if err != nil {
		return fmt.Errorf("report: %w", err)
	}
	console.PrintReport(snap, open)

	var states []domain.WorkflowState
	for _, m := range domain.Modes() {
		for _, wf := range domain.Workflows() {
			st, err := store.GetWorkflowState(ctx, wf, m)
			if errors.Is(err, domain.ErrNotFound) {
				continue
			}
			if err != nil {
				return fmt.Errorf("report: %w", err)
			}
			states = append(states, st)
		}
	}
	if len(states) > 0 {
		console.PrintWorkflows(states)
	}
	return nil
}

func runToggle(ctx context.Context, store *storage.SQLiteStorage, workflow string, mode domain.Mode, enabled bool) error {
	wf, err := domain.ParseWorkflow(workflow)
	if err != nil {
		return err
	}
	st, err := store.SetWorkflowEnabled(ctx, wf, mode, enabled)
	if err != nil {
		return err
	}
	slog.Info("workflow toggled", "workflow", st.Workflow, "mode", st.Mode, "enabled", st.Enabled)
	return nil
}

func runClose(ctx context.Context, h *trigger.Handler, console *notify.Console, mode domain.Mode, id string) error {
	p, err := h.CloseManual(ctx, mode, id)
	if err != nil {
		return err
	}
	console.PrintPositions([]domain.Position{p})
	return nil
}
