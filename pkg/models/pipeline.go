// Package models defines the domain models for the orchestration engine.
package models

import (
	"time"
)

// PipelineStep is one ordered entry in a pipeline definition. Config is an
// opaque payload interpreted only by the referenced module; the engine never
// validates or merges it.
type PipelineStep struct {
	ModuleID string                 `json:"module_id"`
	Config   map[string]interface{} `json:"config,omitempty"`
}

// PipelineDefinition is a named, ordered list of module invocations owned by
// a single tenant. Definitions are immutable after creation; an edit is
// modelled as a new definition.
type PipelineDefinition struct {
	ID        string         `json:"id"`
	TenantID  string         `json:"tenant_id"`
	Name      string         `json:"name"`
	Steps     []PipelineStep `json:"steps"`
	CreatedAt time.Time      `json:"created_at"`
}

// FailurePolicy controls how a run reacts to a failing step. It is fixed at
// trigger time for the whole run.
type FailurePolicy string

const (
	// PolicyAbort stops the run at the first failed step; remaining steps
	// are recorded as skipped.
	PolicyAbort FailurePolicy = "abort"
	// PolicyContinue executes every step regardless of prior failures.
	PolicyContinue FailurePolicy = "continue"
)

// Valid reports whether the policy is one of the supported values.
func (p FailurePolicy) Valid() bool {
	return p == PolicyAbort || p == PolicyContinue
}
