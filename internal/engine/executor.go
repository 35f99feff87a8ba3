package engine

import (
	"context"
	"errors"
	"fmt"
	"runtime/debug"
	"time"

	"github.com/imvijaychaurasia/workforce-ai-saas/internal/registry"
	"github.com/imvijaychaurasia/workforce-ai-saas/pkg/models"
)

// worker consumes the pending queue and drives one run at a time through its
// steps. A run's state is exclusively owned by the worker driving it.
func (e *Engine) worker(ctx context.Context) {
	defer e.wg.Done()
	for j := range e.queue {
		<-e.sem
		e.runJob(ctx, j)
	}
}

func (e *Engine) runJob(ctx context.Context, j job) {
	run, err := e.store.GetRun(ctx, j.tenantID, j.runID)
	if err != nil {
		e.logger.Error("worker: failed to load run %s: %v", j.runID, err)
		return
	}

	def, err := e.store.GetDefinition(ctx, run.TenantID, run.DefinitionID)
	if err != nil {
		e.logger.Error("worker: failed to load definition %s for run %s: %v", run.DefinitionID, run.ID, err)
		e.finalize(ctx, run, models.RunStatusFailed)
		return
	}

	// A cancel that arrived while the run was still queued wins before any
	// step executes.
	if e.cancelRequested(run.ID) {
		e.finalize(ctx, run, models.RunStatusCancelled)
		return
	}

	if err := claimRun(run); err != nil {
		e.logger.Error("worker: cannot claim run %s: %v", run.ID, err)
		return
	}
	if err := e.store.UpdateRun(ctx, run); err != nil {
		e.logger.Error("worker: failed to persist claim of run %s: %v", run.ID, err)
		return
	}
	e.emit(AuditEvent{
		Type:         EventRunClaimed,
		TenantID:     run.TenantID,
		RunID:        run.ID,
		DefinitionID: run.DefinitionID,
		Status:       string(run.Status),
	})

	for i, step := range def.Steps {
		// Cancellation is cooperative, checked at step boundaries only.
		if e.cancelRequested(run.ID) {
			e.finalize(ctx, run, models.RunStatusCancelled)
			return
		}

		result := e.executeStep(ctx, run, i, step)
		if err := e.recordStep(ctx, run, result); err != nil {
			e.logger.Error("worker: failed to record step %d of run %s: %v", i, run.ID, err)
			e.finalize(ctx, run, models.RunStatusFailed)
			return
		}

		if result.Status == models.StepStatusFailed && run.Policy == models.PolicyAbort {
			e.skipRemaining(ctx, run, def, i+1)
			e.finalize(ctx, run, models.RunStatusFailed)
			return
		}
	}

	e.finalize(ctx, run, finalStatus(run, run.Policy))
}

// executeStep invokes the step's module with the configured timeout and
// bounded retries. Module errors never escape as engine errors; they become
// failed step results.
func (e *Engine) executeStep(ctx context.Context, run *models.Run, index int, step models.PipelineStep) models.StepResult {
	result := models.StepResult{
		StepIndex: index,
		ModuleID:  step.ModuleID,
		StartedAt: time.Now().UTC(),
	}

	prior := priorOutput(run)

	var output []byte
	var err error
	for attempt := 0; ; attempt++ {
		output, err = e.invokeOnce(ctx, step, prior)
		if err == nil || !registry.Retryable(err) || attempt >= e.opts.MaxStepRetries {
			break
		}
		e.logger.Debug("run %s step %d: retrying after transient error (attempt %d): %v",
			run.ID, index, attempt+1, err)
		sleepWithContext(ctx, e.opts.RetryDelay)
	}

	result.FinishedAt = time.Now().UTC()
	e.metrics.stepDuration.Record(ctx, result.FinishedAt.Sub(result.StartedAt).Seconds())

	if err != nil {
		result.Status = models.StepStatusFailed
		if errors.Is(err, context.DeadlineExceeded) {
			result.ErrorDetail = fmt.Sprintf("timeout after %s", e.opts.StepTimeout)
		} else {
			result.ErrorDetail = err.Error()
		}
		return result
	}

	result.Status = models.StepStatusSucceeded
	result.Output = output
	return result
}

// invokeOnce performs a single module invocation bounded by the step
// timeout, converting panics into errors so a misbehaving module cannot
// leave the run in a non-terminal state.
func (e *Engine) invokeOnce(ctx context.Context, step models.PipelineStep, prior []byte) (output []byte, err error) {
	stepCtx, cancel := context.WithTimeout(ctx, e.opts.StepTimeout)
	defer cancel()

	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("module panic: %v\n%s", r, debug.Stack())
			output = nil
		}
	}()

	output, err = e.registry.Invoke(stepCtx, step.ModuleID, step.Config, prior)
	if stepCtx.Err() != nil {
		// The engine's deadline wins over whatever the module reported: a
		// capability surfacing the expired context as its own transient
		// error must not turn the timeout into a retried step, and a result
		// returned after the deadline still counts as timed out.
		return nil, stepCtx.Err()
	}
	return output, err
}

// recordStep appends and persists a step result and emits its audit event.
func (e *Engine) recordStep(ctx context.Context, run *models.Run, result models.StepResult) error {
	if err := appendStepResult(run, result); err != nil {
		return err
	}
	if err := e.store.UpdateRun(ctx, run); err != nil {
		return err
	}
	e.emit(AuditEvent{
		Type:         EventStepCompleted,
		TenantID:     run.TenantID,
		RunID:        run.ID,
		DefinitionID: run.DefinitionID,
		StepIndex:    result.StepIndex,
		Status:       string(result.Status),
		Detail:       result.ErrorDetail,
	})
	return nil
}

// skipRemaining records every step from index on as skipped, preserving the
// invariant that a terminal non-cancelled run has one result per step.
func (e *Engine) skipRemaining(ctx context.Context, run *models.Run, def *models.PipelineDefinition, from int) {
	now := time.Now().UTC()
	for i := from; i < len(def.Steps); i++ {
		result := models.StepResult{
			StepIndex:  i,
			ModuleID:   def.Steps[i].ModuleID,
			Status:     models.StepStatusSkipped,
			StartedAt:  now,
			FinishedAt: now,
		}
		if err := e.recordStep(ctx, run, result); err != nil {
			e.logger.Error("worker: failed to record skipped step %d of run %s: %v", i, run.ID, err)
			return
		}
	}
}

func (e *Engine) finalize(ctx context.Context, run *models.Run, status models.RunStatus) {
	if err := finalizeRun(run, status, time.Now().UTC()); err != nil {
		e.logger.Error("worker: failed to finalize run %s: %v", run.ID, err)
		return
	}
	if err := e.store.UpdateRun(ctx, run); err != nil {
		e.logger.Error("worker: failed to persist final state of run %s: %v", run.ID, err)
	}
	e.clearCancel(run.ID)
	e.metrics.runsFinalized.Add(ctx, 1)
	e.emit(AuditEvent{
		Type:         EventRunFinalized,
		TenantID:     run.TenantID,
		RunID:        run.ID,
		DefinitionID: run.DefinitionID,
		Status:       string(run.Status),
	})
}

// priorOutput returns the output of the most recent step, passed forward to
// the next invocation as opaque context. Failed and skipped steps contribute
// nothing.
func priorOutput(run *models.Run) []byte {
	if len(run.StepResults) == 0 {
		return nil
	}
	last := run.StepResults[len(run.StepResults)-1]
	if last.Status != models.StepStatusSucceeded {
		return nil
	}
	return last.Output
}

// sleepWithContext sleeps for d but returns early if ctx is cancelled.
func sleepWithContext(ctx context.Context, d time.Duration) {
	if d <= 0 {
		return
	}
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
	case <-timer.C:
	}
}
