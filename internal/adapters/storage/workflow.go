package storage

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/AdielMag/MoneyMaker/internal/domain"
)

// GetWorkflowState devuelve el estado de (workflow, mode), o domain.ErrNotFound.
func (s *SQLiteStorage) GetWorkflowState(ctx context.Context, wf domain.WorkflowID, mode domain.Mode) (domain.WorkflowState, error) {
	if err := checkWorkflowKey(wf, mode); err != nil {
		return domain.WorkflowState{}, err
	}

	var st domain.WorkflowState
	var wfStr, modeStr, updated string
	var enabled int
	var lastRun sql.NullString
	err := s.db.QueryRowContext(ctx, `
		SELECT workflow, mode, enabled, last_run, run_count, last_error, updated_at
		FROM workflow_state WHERE workflow = ? AND mode = ?`, string(wf), string(mode),
	).Scan(&wfStr, &modeStr, &enabled, &lastRun, &st.RunCount, &st.LastError, &updated)
	if errors.Is(err, sql.ErrNoRows) {
		return domain.WorkflowState{}, fmt.Errorf("storage.GetWorkflowState: %s/%s: %w", wf, mode, domain.ErrNotFound)
	}
	if err != nil {
		return domain.WorkflowState{}, classify("storage.GetWorkflowState", err)
	}

	st.Workflow = domain.WorkflowID(wfStr)
	st.Mode = domain.Mode(modeStr)
	st.Enabled = enabled == 1
	st.LastRun = parseNullTime(lastRun)
	st.UpdatedAt = parseTime(updated)
	return st, nil
}

// EnsureWorkflowState crea el estado con el flag dado si no existe.
// Un estado existente se devuelve sin tocar: lo persistido manda sobre la semilla.
func (s *SQLiteStorage) EnsureWorkflowState(ctx context.Context, wf domain.WorkflowID, mode domain.Mode, enabled bool) (domain.WorkflowState, error) {
	if err := checkWorkflowKey(wf, mode); err != nil {
		return domain.WorkflowState{}, err
	}
	if _, err := s.db.ExecContext(ctx, `
		INSERT INTO workflow_state (workflow, mode, enabled, updated_at)
		VALUES (?, ?, ?, ?)
		ON CONFLICT(workflow, mode) DO NOTHING`,
		string(wf), string(mode), boolToInt(enabled), formatTime(s.now()),
	); err != nil {
		return domain.WorkflowState{}, classify("storage.EnsureWorkflowState", err)
	}
	return s.GetWorkflowState(ctx, wf, mode)
}

// SetWorkflowEnabled cambia el flag, creando el estado si hace falta.
func (s *SQLiteStorage) SetWorkflowEnabled(ctx context.Context, wf domain.WorkflowID, mode domain.Mode, enabled bool) (domain.WorkflowState, error) {
	if err := checkWorkflowKey(wf, mode); err != nil {
		return domain.WorkflowState{}, err
	}
	if _, err := s.db.ExecContext(ctx, `
		INSERT INTO workflow_state (workflow, mode, enabled, updated_at)
		VALUES (?, ?, ?, ?)
		ON CONFLICT(workflow, mode) DO UPDATE SET
			enabled    = excluded.enabled,
			updated_at = excluded.updated_at`,
		string(wf), string(mode), boolToInt(enabled), formatTime(s.now()),
	); err != nil {
		return domain.WorkflowState{}, classify("storage.SetWorkflowEnabled", err)
	}
	return s.GetWorkflowState(ctx, wf, mode)
}

// RecordWorkflowRun registra una ejecución: last_run, run_count+1 y el último error ("" si ok).
func (s *SQLiteStorage) RecordWorkflowRun(ctx context.Context, wf domain.WorkflowID, mode domain.Mode, at time.Time, lastErr string) error {
	if err := checkWorkflowKey(wf, mode); err != nil {
		return err
	}
	ts := formatTime(at)
	res, err := s.db.ExecContext(ctx, `
		UPDATE workflow_state
		SET last_run = ?, run_count = run_count + 1, last_error = ?, updated_at = ?
		WHERE workflow = ? AND mode = ?`,
		ts, lastErr, ts, string(wf), string(mode),
	)
	if err != nil {
		return classify("storage.RecordWorkflowRun", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return fmt.Errorf("storage.RecordWorkflowRun: %s/%s: %w", wf, mode, domain.ErrNotFound)
	}
	return nil
}

func checkWorkflowKey(wf domain.WorkflowID, mode domain.Mode) error {
	if !wf.Valid() {
		return domain.NewValidationError("workflow", "unknown workflow %q", wf)
	}
	return checkMode(mode)
}

func boolToInt(b bool) int {
	if b {
		return 1
	}
	return 0
}
