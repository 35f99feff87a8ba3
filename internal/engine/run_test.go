package engine

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/imvijaychaurasia/workforce-ai-saas/pkg/models"
)

func TestClaimRun(t *testing.T) {
	run := &models.Run{ID: "r1", Status: models.RunStatusPending}

	require.NoError(t, claimRun(run))
	assert.Equal(t, models.RunStatusRunning, run.Status)

	// A running run cannot be claimed again.
	err := claimRun(run)
	assert.ErrorIs(t, err, ErrRunNotClaimable)
}

func TestClaimRun_Terminal(t *testing.T) {
	for _, status := range []models.RunStatus{
		models.RunStatusSucceeded,
		models.RunStatusFailed,
		models.RunStatusPartiallyFailed,
		models.RunStatusCancelled,
	} {
		run := &models.Run{ID: "r1", Status: status}
		err := claimRun(run)
		assert.ErrorIs(t, err, ErrRunAlreadyTerminal, "status %s", status)
	}
}

func TestAppendStepResult_Ordering(t *testing.T) {
	run := &models.Run{ID: "r1", Status: models.RunStatusRunning}

	require.NoError(t, appendStepResult(run, models.StepResult{StepIndex: 0, Status: models.StepStatusSucceeded}))
	require.NoError(t, appendStepResult(run, models.StepResult{StepIndex: 1, Status: models.StepStatusFailed}))

	// Gaps and rewrites are rejected.
	assert.Error(t, appendStepResult(run, models.StepResult{StepIndex: 3}))
	assert.Error(t, appendStepResult(run, models.StepResult{StepIndex: 1}))
	assert.Len(t, run.StepResults, 2)
}

func TestAppendStepResult_TerminalRun(t *testing.T) {
	run := &models.Run{ID: "r1", Status: models.RunStatusFailed}
	err := appendStepResult(run, models.StepResult{StepIndex: 0})
	assert.ErrorIs(t, err, ErrRunAlreadyTerminal)
}

func TestFinalizeRun(t *testing.T) {
	now := time.Now().UTC()
	run := &models.Run{ID: "r1", Status: models.RunStatusRunning}

	require.NoError(t, finalizeRun(run, models.RunStatusSucceeded, now))
	assert.Equal(t, models.RunStatusSucceeded, run.Status)
	require.NotNil(t, run.FinishedAt)
	assert.Equal(t, now, *run.FinishedAt)

	// Terminal states are absorbing.
	err := finalizeRun(run, models.RunStatusFailed, now)
	assert.ErrorIs(t, err, ErrRunAlreadyTerminal)
	assert.Equal(t, models.RunStatusSucceeded, run.Status)
}

func TestFinalizeRun_NonTerminalTarget(t *testing.T) {
	run := &models.Run{ID: "r1", Status: models.RunStatusRunning}
	err := finalizeRun(run, models.RunStatusRunning, time.Now().UTC())
	assert.Error(t, err)
	assert.Nil(t, run.FinishedAt)
}

func TestFinalStatus(t *testing.T) {
	tests := []struct {
		name     string
		statuses []models.StepStatus
		policy   models.FailurePolicy
		want     models.RunStatus
	}{
		{"all succeeded", []models.StepStatus{models.StepStatusSucceeded, models.StepStatusSucceeded}, models.PolicyContinue, models.RunStatusSucceeded},
		{"continue with failure", []models.StepStatus{models.StepStatusSucceeded, models.StepStatusFailed, models.StepStatusSucceeded}, models.PolicyContinue, models.RunStatusPartiallyFailed},
		{"abort with failure", []models.StepStatus{models.StepStatusFailed, models.StepStatusSkipped}, models.PolicyAbort, models.RunStatusFailed},
		{"abort all succeeded", []models.StepStatus{models.StepStatusSucceeded}, models.PolicyAbort, models.RunStatusSucceeded},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			run := &models.Run{Status: models.RunStatusRunning}
			for i, s := range tt.statuses {
				run.StepResults = append(run.StepResults, models.StepResult{StepIndex: i, Status: s})
			}
			assert.Equal(t, tt.want, finalStatus(run, tt.policy))
		})
	}
}
