package domain

import (
	"strings"
	"time"
)

// WorkflowID names one of the two pipelines a trigger can run.
type WorkflowID string

const (
	WorkflowDiscovery WorkflowID = "discovery"
	WorkflowMonitor   WorkflowID = "monitor"
)

// Workflows returns every workflow the trigger handler knows.
func Workflows() []WorkflowID {
	return []WorkflowID{WorkflowDiscovery, WorkflowMonitor}
}

// Valid reports whether w is a known workflow.
func (w WorkflowID) Valid() bool {
	return w == WorkflowDiscovery || w == WorkflowMonitor
}

// ParseWorkflow converts user input into a WorkflowID.
func ParseWorkflow(s string) (WorkflowID, error) {
	w := WorkflowID(strings.ToLower(strings.TrimSpace(s)))
	if !w.Valid() {
		return "", NewValidationError("workflow", "must be %q or %q, got %q", WorkflowDiscovery, WorkflowMonitor, s)
	}
	return w, nil
}

// WorkflowState gates a (workflow, mode) pair and keeps last-run metadata.
type WorkflowState struct {
	Workflow  WorkflowID `json:"workflow"`
	Mode      Mode       `json:"mode"`
	Enabled   bool       `json:"enabled"`
	LastRun   *time.Time `json:"last_run,omitempty"`
	RunCount  int        `json:"run_count"`
	LastError string     `json:"last_error,omitempty"`
	UpdatedAt time.Time  `json:"updated_at"`
}
