package engine

import (
	"errors"
	"fmt"
	"time"

	"github.com/imvijaychaurasia/workforce-ai-saas/pkg/models"
)

var (
	// ErrInvalidDefinition is returned for definitions that fail validation,
	// e.g. an empty step list.
	ErrInvalidDefinition = errors.New("invalid definition")
	// ErrRunAlreadyTerminal is returned for any transition attempted out of
	// a terminal run state.
	ErrRunAlreadyTerminal = errors.New("run already terminal")
	// ErrEngineUnavailable is returned when the pending queue is full. The
	// caller may retry; no run is created.
	ErrEngineUnavailable = errors.New("engine unavailable")
	// ErrRunNotClaimable is returned when claiming a run that is not pending.
	ErrRunNotClaimable = errors.New("run not claimable")
)

// claimRun transitions a run from pending to running.
func claimRun(run *models.Run) error {
	if run.Status.Terminal() {
		return fmt.Errorf("claim run %q: %w", run.ID, ErrRunAlreadyTerminal)
	}
	if run.Status != models.RunStatusPending {
		return fmt.Errorf("claim run %q in status %q: %w", run.ID, run.Status, ErrRunNotClaimable)
	}
	run.Status = models.RunStatusRunning
	return nil
}

// appendStepResult appends a result to the run's step result log. Results
// are append-only and strictly ordered: the result's index must be exactly
// the next unwritten index.
func appendStepResult(run *models.Run, result models.StepResult) error {
	if run.Status.Terminal() {
		return fmt.Errorf("append to run %q: %w", run.ID, ErrRunAlreadyTerminal)
	}
	if result.StepIndex != len(run.StepResults) {
		return fmt.Errorf("append to run %q: step index %d out of order (next is %d)",
			run.ID, result.StepIndex, len(run.StepResults))
	}
	run.StepResults = append(run.StepResults, result)
	return nil
}

// finalizeRun transitions a run into a terminal state and stamps FinishedAt.
func finalizeRun(run *models.Run, status models.RunStatus, now time.Time) error {
	if run.Status.Terminal() {
		return fmt.Errorf("finalize run %q: %w", run.ID, ErrRunAlreadyTerminal)
	}
	if !status.Terminal() {
		return fmt.Errorf("finalize run %q: %q is not a terminal status", run.ID, status)
	}
	run.Status = status
	run.FinishedAt = &now
	return nil
}

// finalStatus derives the terminal status of a run whose steps have all been
// processed under the given policy.
func finalStatus(run *models.Run, policy models.FailurePolicy) models.RunStatus {
	for _, r := range run.StepResults {
		if r.Status == models.StepStatusFailed {
			if policy == models.PolicyAbort {
				return models.RunStatusFailed
			}
			return models.RunStatusPartiallyFailed
		}
	}
	return models.RunStatusSucceeded
}
