package models

import (
	"time"
)

// RunStatus represents the lifecycle state of a run.
type RunStatus string

const (
	RunStatusPending         RunStatus = "pending"
	RunStatusRunning         RunStatus = "running"
	RunStatusSucceeded       RunStatus = "succeeded"
	RunStatusFailed          RunStatus = "failed"
	RunStatusPartiallyFailed RunStatus = "partially_failed"
	RunStatusCancelled       RunStatus = "cancelled"
)

// Terminal reports whether the status admits no further transitions.
func (s RunStatus) Terminal() bool {
	switch s {
	case RunStatusSucceeded, RunStatusFailed, RunStatusPartiallyFailed, RunStatusCancelled:
		return true
	}
	return false
}

// StepStatus is the per-step outcome within a run.
type StepStatus string

const (
	StepStatusSucceeded StepStatus = "succeeded"
	StepStatusFailed    StepStatus = "failed"
	StepStatusSkipped   StepStatus = "skipped"
)

// StepResult records the outcome of one step of one run. Results are
// appended in strict step order and never mutated afterwards.
type StepResult struct {
	StepIndex   int        `json:"step_index"`
	ModuleID    string     `json:"module_id"`
	Status      StepStatus `json:"status"`
	Output      []byte     `json:"output,omitempty"`
	ErrorDetail string     `json:"error_detail,omitempty"`
	StartedAt   time.Time  `json:"started_at"`
	FinishedAt  time.Time  `json:"finished_at"`
}

// Run is a single execution of a pipeline definition.
type Run struct {
	ID           string        `json:"id"`
	TenantID     string        `json:"tenant_id"`
	DefinitionID string        `json:"definition_id"`
	Status       RunStatus     `json:"status"`
	Policy       FailurePolicy `json:"policy"`
	StepResults  []StepResult  `json:"step_results"`
	StartedAt    time.Time     `json:"started_at"`
	FinishedAt   *time.Time    `json:"finished_at,omitempty"`
}
