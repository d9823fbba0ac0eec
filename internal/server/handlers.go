package server

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"time"

	"github.com/AdielMag/MoneyMaker/config"
	"github.com/AdielMag/MoneyMaker/internal/application/trigger"
	"github.com/AdielMag/MoneyMaker/internal/domain"
)

const maxBody = 64 << 10

type api struct {
	trigger Triggerer
	store   Store
}

// GET /api/health
func (a *api) health(w http.ResponseWriter, r *http.Request) {
	status, code := "ok", http.StatusOK
	if err := a.store.Ping(r.Context()); err != nil {
		slog.Warn("health: storage ping failed", "err", err)
		status, code = "degraded", http.StatusServiceUnavailable
	}
	writeJSON(w, code, map[string]any{
		"status":    status,
		"timestamp": time.Now().UTC().Format(time.RFC3339),
	})
}

// POST /api/trigger/{workflow}/{mode}, body opcional con overrides.
func (a *api) triggerWorkflow(w http.ResponseWriter, r *http.Request) {
	var overrides config.Overrides
	if err := decodeBody(r, &overrides, true); err != nil {
		writeError(w, err)
		return
	}
	req := trigger.Request{
		Workflow:  domain.WorkflowID(r.PathValue("workflow")),
		Mode:      domain.Mode(r.PathValue("mode")),
		Overrides: overrides,
	}

	resp, _ := a.trigger.Handle(r.Context(), req)
	code := resp.HTTPCode
	if code == 0 {
		code = http.StatusInternalServerError
	}
	writeJSON(w, code, resp)
}

// GET /api/wallets/{mode}
func (a *api) wallet(w http.ResponseWriter, r *http.Request) {
	mode, err := domain.ParseMode(r.PathValue("mode"))
	if err != nil {
		writeError(w, err)
		return
	}
	wallet, err := a.store.GetWallet(r.Context(), mode)
	if err != nil {
		writeError(w, err)
		return
	}
	snap, err := a.store.Snapshot(r.Context(), mode)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"wallet": wallet, "ledger": snap})
}

// GET /api/positions/{mode}?status=open|closed
func (a *api) positions(w http.ResponseWriter, r *http.Request) {
	mode, err := domain.ParseMode(r.PathValue("mode"))
	if err != nil {
		writeError(w, err)
		return
	}
	status := domain.PositionStatus(r.URL.Query().Get("status"))
	positions, err := a.store.ListPositions(r.Context(), mode, status)
	if err != nil {
		writeError(w, err)
		return
	}
	if positions == nil {
		positions = []domain.Position{}
	}
	writeJSON(w, http.StatusOK, map[string]any{"positions": positions, "count": len(positions)})
}

// POST /api/positions/{mode}/{id}/close
func (a *api) closePosition(w http.ResponseWriter, r *http.Request) {
	mode, err := domain.ParseMode(r.PathValue("mode"))
	if err != nil {
		writeError(w, err)
		return
	}
	p, err := a.trigger.CloseManual(r.Context(), mode, r.PathValue("id"))
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, p)
}

// GET /api/workflows/{workflow}/{mode}
func (a *api) workflowState(w http.ResponseWriter, r *http.Request) {
	wf, mode, err := workflowKey(r)
	if err != nil {
		writeError(w, err)
		return
	}
	st, err := a.store.GetWorkflowState(r.Context(), wf, mode)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, st)
}

// PUT /api/workflows/{workflow}/{mode} con {"enabled": bool}
func (a *api) setWorkflow(w http.ResponseWriter, r *http.Request) {
	wf, mode, err := workflowKey(r)
	if err != nil {
		writeError(w, err)
		return
	}
	var body struct {
		Enabled *bool `json:"enabled"`
	}
	if err := decodeBody(r, &body, false); err != nil {
		writeError(w, err)
		return
	}
	if body.Enabled == nil {
		writeError(w, domain.NewValidationError("enabled", "required"))
		return
	}
	st, err := a.store.SetWorkflowEnabled(r.Context(), wf, mode, *body.Enabled)
	if err != nil {
		writeError(w, err)
		return
	}
	slog.Info("workflow toggled", "workflow", wf, "mode", mode, "enabled", st.Enabled)
	writeJSON(w, http.StatusOK, st)
}

// --- helpers ---

func workflowKey(r *http.Request) (domain.WorkflowID, domain.Mode, error) {
	wf, err := domain.ParseWorkflow(r.PathValue("workflow"))
	if err != nil {
		return "", "", err
	}
	mode, err := domain.ParseMode(r.PathValue("mode"))
	if err != nil {
		return "", "", err
	}
	return wf, mode, nil
}

// decodeBody decodifica JSON estricto. optional permite un body vacío.
func decodeBody(r *http.Request, v any, optional bool) error {
	dec := json.NewDecoder(io.LimitReader(r.Body, maxBody))
	dec.DisallowUnknownFields()
	if err := dec.Decode(v); err != nil {
		if errors.Is(err, io.EOF) && optional {
			return nil
		}
		return domain.NewValidationError("body", "invalid JSON: %v", err)
	}
	return nil
}

// writeJSON serializa v y lo escribe con el código dado.
func writeJSON(w http.ResponseWriter, status int, v any) {
	data, err := json.Marshal(v)
	if err != nil {
		http.Error(w, `{"error":"internal server error"}`, http.StatusInternalServerError)
		return
	}
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.WriteHeader(status)
	w.Write(data)
}

// writeError responde con el código que corresponde al tipo de error.
func writeError(w http.ResponseWriter, err error) {
	code := trigger.StatusCode(err)
	if code >= http.StatusInternalServerError {
		slog.Error("request failed", "err", err)
	}
	writeJSON(w, code, map[string]string{"error": fmt.Sprint(err)})
}
