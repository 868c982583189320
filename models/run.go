package models

import (
	"time"

	"github.com/google/uuid"
)

// RunStatus represents the state of a verification pass
type RunStatus string

const (
	RunStatusRunning   RunStatus = "running"
	RunStatusCompleted RunStatus = "completed"
	RunStatusFailed    RunStatus = "failed"
)

// RunTrigger tells who started a pass.
type RunTrigger string

const (
	TriggerSchedule RunTrigger = "schedule"
	TriggerManual   RunTrigger = "manual"
	TriggerStartup  RunTrigger = "startup"
)

// RunRecord tracks one verification pass for the status API.
type RunRecord struct {
	ID          string     `json:"id"`
	Trigger     RunTrigger `json:"trigger"`
	Status      RunStatus  `json:"status"`
	Summary     *Summary   `json:"summary,omitempty"`
	Error       string     `json:"error,omitempty"`
	StartedAt   time.Time  `json:"started_at"`
	CompletedAt *time.Time `json:"completed_at,omitempty"`
}

// NewRunRecord creates a record in the running state
func NewRunRecord(trigger RunTrigger) *RunRecord {
	return &RunRecord{
		ID:        "run_" + uuid.NewString(),
		Trigger:   trigger,
		Status:    RunStatusRunning,
		StartedAt: time.Now(),
	}
}

// Complete marks the pass as finished with its summary
func (r *RunRecord) Complete(summary Summary) {
	r.Status = RunStatusCompleted
	r.Summary = &summary
	now := time.Now()
	r.CompletedAt = &now
}

// Fail marks the pass as ended early. The partial summary is kept.
func (r *RunRecord) Fail(summary Summary, err error) {
	r.Status = RunStatusFailed
	r.Summary = &summary
	if err != nil {
		r.Error = err.Error()
	}
	now := time.Now()
	r.CompletedAt = &now
}

// IsActive returns true while the pass is running
func (r *RunRecord) IsActive() bool {
	return r.Status == RunStatusRunning
}

// Duration returns how long the pass ran, or has been running.
func (r *RunRecord) Duration() time.Duration {
	end := time.Now()
	if r.CompletedAt != nil {
		end = *r.CompletedAt
	}
	return end.Sub(r.StartedAt)
}
