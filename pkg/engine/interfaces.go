package engine

import (
	"context"
	"time"
)

// StepInvoker is the capability boundary for invoking one purchase-flow step
// against one environment. Implementations must be safe for sequential reuse
// across combinations; the engine never invokes concurrently.
type StepInvoker interface {
	// Invoke performs the step and returns its result. Invoke reports
	// simulated or real failures through StepResult, not through error;
	// a non-nil error means the invocation machinery itself broke.
	Invoke(ctx context.Context, req StepRequest) (StepResult, error)
}

// ProgressStore persists run and combination progress durably. Writes must be
// atomic: a reader never observes a partially written record. Writing the
// same record twice must be idempotent.
type ProgressStore interface {
	// SaveRun persists the run record, replacing any previous version.
	SaveRun(ctx context.Context, run *Run) error

	// GetRun loads a run record.
	GetRun(ctx context.Context, runID string) (*Run, error)

	// ListRuns loads all run records.
	ListRuns(ctx context.Context) ([]*Run, error)

	// SaveCombination persists a combination record, replacing any previous
	// version.
	SaveCombination(ctx context.Context, result *CombinationResult) error

	// WriteStepOutcome upserts one step outcome into the combination record
	// keyed by (run, execution, environment, step).
	WriteStepOutcome(ctx context.Context, runID, executionID string, role EnvironmentRole, outcome StepOutcome) error

	// GetCombination loads one combination record.
	GetCombination(ctx context.Context, runID, executionID string) (*CombinationResult, error)

	// ListCombinations loads all combination records of a run in execution
	// order.
	ListCombinations(ctx context.Context, runID string) ([]*CombinationResult, error)
}

// Comparator produces the target-vs-staging comparison for a finished
// combination.
type Comparator interface {
	// Compare builds the comparison report from both environments' progress.
	Compare(target, staging EnvironmentProgress) *ComparisonReport
}

// Sleeper abstracts the inter-step delay so tests can run without waiting.
type Sleeper interface {
	// Sleep blocks for d or until ctx is done.
	Sleep(ctx context.Context, d time.Duration)
}
