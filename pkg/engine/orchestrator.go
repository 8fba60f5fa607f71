package engine

import (
	"context"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/policyprobe/policyprobe/pkg/catalog"
	"github.com/policyprobe/policyprobe/pkg/telemetry"
)

// executionTimestampFormat is the compact timestamp baked into execution IDs.
const executionTimestampFormat = "20060102150405"

// StartRunRequest describes a run to start.
type StartRunRequest struct {
	// Owner is who starts the run. Required; it is part of every execution ID.
	Owner string

	// SessionID is the owning session, empty for CLI runs.
	SessionID string

	// Selection narrows the catalog to the combinations to run.
	Selection catalog.Selection

	// TargetEnvironment names the environment playing the target role.
	TargetEnvironment string

	// Tokens are the per-run portal tokens. Never persisted.
	Tokens Tokens
}

// Orchestrator resolves the catalog into combinations, runs them strictly one
// at a time in a background goroutine, and finalizes the run. The created Run
// is observable immediately, before the first step executes.
type Orchestrator struct {
	catalog    *catalog.Catalog
	runner     *Runner
	store      ProgressStore
	comparator Comparator
	logger     *telemetry.Logger
	metrics    *telemetry.Metrics
	tracer     *telemetry.Tracer

	mu      sync.RWMutex
	runs    map[string]*Run
	results map[string]map[string]*CombinationResult
}

// NewOrchestrator creates an orchestrator.
func NewOrchestrator(cat *catalog.Catalog, runner *Runner, store ProgressStore, comparator Comparator, tel *telemetry.Telemetry) *Orchestrator {
	return &Orchestrator{
		catalog:    cat,
		runner:     runner,
		store:      store,
		comparator: comparator,
		logger:     tel.Logger.NewComponentLogger("orchestrator"),
		metrics:    tel.Metrics,
		tracer:     tel.Tracer,
		runs:       make(map[string]*Run),
		results:    make(map[string]map[string]*CombinationResult),
	}
}

// StartRun validates the request, creates the run record, and launches the
// combination loop in the background. Config problems surface here,
// synchronously, before any combination is attempted.
func (o *Orchestrator) StartRun(ctx context.Context, req StartRunRequest) (*Run, error) {
	if req.Owner == "" {
		return nil, NewConfigError("run owner is required", nil).WithCode(ErrCodeValidation)
	}

	combos, err := o.catalog.Resolve(req.Selection)
	if err != nil {
		return nil, NewConfigError("failed to resolve selection", err).WithCode(ErrCodeValidation)
	}

	targetEnv := req.TargetEnvironment
	if targetEnv == "" {
		targetEnv = "DEV"
	}

	now := time.Now().UTC()
	ts := now.Format(executionTimestampFormat)

	executionIDs := make([]string, 0, len(combos))
	for _, c := range combos {
		executionIDs = append(executionIDs, req.Owner+"_"+ts+"_"+c.Category+"_"+c.ProductID+"_"+c.PlanID)
	}

	run := &Run{
		ID:                 uuid.New().String(),
		Owner:              req.Owner,
		SessionID:          req.SessionID,
		Status:             RunStatusActive,
		TargetEnvironment:  targetEnv,
		StagingEnvironment: "staging",
		Selection:          req.Selection,
		Combinations:       combos,
		ExecutionIDs:       executionIDs,
		Summary:            RunSummary{Total: len(combos)},
		CreatedAt:          now,
	}

	o.mu.Lock()
	o.runs[run.ID] = run
	o.results[run.ID] = make(map[string]*CombinationResult)
	o.mu.Unlock()

	o.saveRun(ctx, run)

	o.metrics.RecordRunStarted(req.Owner)
	o.logger.WithRunID(run.ID).
		WithField("owner", req.Owner).
		WithField("combinations", len(combos)).
		Info("run started")

	// The run loop outlives the request; it gets its own context.
	go func() {
		execCtx := context.Background()
		o.executeRun(execCtx, run, req.Tokens)
	}()

	return o.snapshotRun(run.ID), nil
}

// executeRun drives the strictly sequential combination loop. A failed
// combination never aborts the loop.
func (o *Orchestrator) executeRun(ctx context.Context, run *Run, tokens Tokens) {
	logger := o.logger.WithRunID(run.ID)
	timer := telemetry.NewTimer()

	if o.tracer != nil {
		spanCtx, span := o.tracer.StartRunSpan(ctx, run.ID, run.Owner)
		ctx = spanCtx
		defer span.End()
	}

	o.mu.RLock()
	combos := run.Combinations
	executionIDs := run.ExecutionIDs
	o.mu.RUnlock()

	for i, combo := range combos {
		result := o.runner.RunCombination(ctx, run, combo, executionIDs[i], tokens)

		if o.comparator != nil {
			result.Comparison = o.comparator.Compare(result.Target, result.Staging)
			o.recordComparison(result.Comparison)
			o.saveCombination(ctx, logger, result)
		}

		o.mu.Lock()
		o.results[run.ID][result.ExecutionID] = result
		run.Summary.Completed++
		if result.Status == CombinationStatusFailed {
			run.Summary.Failed++
		} else {
			run.Summary.Succeeded++
		}
		o.mu.Unlock()

		o.saveRun(ctx, run)
	}

	o.mu.Lock()
	now := time.Now().UTC()
	run.CompletedAt = &now
	if run.Summary.Failed > 0 {
		run.Status = RunStatusFailed
	} else {
		run.Status = RunStatusCompleted
	}
	status := run.Status
	o.mu.Unlock()

	o.saveRun(ctx, run)

	o.metrics.RecordRunCompleted(string(status), timer.Duration())
	logger.WithField("status", status).
		WithField("duration", timer.Duration().String()).
		Info("run finished")
}

// GetRun returns a run by ID, preferring the live in-memory record.
func (o *Orchestrator) GetRun(ctx context.Context, runID string) (*Run, error) {
	if run := o.snapshotRun(runID); run != nil {
		return run, nil
	}

	run, err := o.store.GetRun(ctx, runID)
	if err != nil {
		return nil, err
	}
	return run, nil
}

// ListRuns returns all known runs, merging live records over stored ones.
func (o *Orchestrator) ListRuns(ctx context.Context) ([]*Run, error) {
	stored, err := o.store.ListRuns(ctx)
	if err != nil {
		o.logger.WithError(err).Warn("failed to list stored runs, serving in-memory only")
		stored = nil
	}

	o.mu.RLock()
	defer o.mu.RUnlock()

	byID := make(map[string]*Run, len(stored)+len(o.runs))
	for _, run := range stored {
		byID[run.ID] = run
	}
	for id := range o.runs {
		byID[id] = copyRun(o.runs[id])
	}

	runs := make([]*Run, 0, len(byID))
	for _, run := range byID {
		runs = append(runs, run)
	}
	return runs, nil
}

// GetCombination returns one combination record. The store is authoritative
// mid-combination; the in-memory mirror covers store outages.
func (o *Orchestrator) GetCombination(ctx context.Context, runID, executionID string) (*CombinationResult, error) {
	result, err := o.store.GetCombination(ctx, runID, executionID)
	if err == nil {
		return result, nil
	}

	o.mu.RLock()
	defer o.mu.RUnlock()
	if byExec, ok := o.results[runID]; ok {
		if result, ok := byExec[executionID]; ok {
			return result, nil
		}
	}
	return nil, err
}

// ListCombinations returns all combination records of a run in execution order.
func (o *Orchestrator) ListCombinations(ctx context.Context, runID string) ([]*CombinationResult, error) {
	run, err := o.GetRun(ctx, runID)
	if err != nil {
		return nil, err
	}

	results := make([]*CombinationResult, 0, len(run.ExecutionIDs))
	for _, executionID := range run.ExecutionIDs {
		result, err := o.GetCombination(ctx, runID, executionID)
		if err != nil {
			// Not yet started; synthesize an all-pending record so the
			// snapshot always has one entry per combination.
			idx := indexOf(run.ExecutionIDs, executionID)
			result = &CombinationResult{
				ExecutionID: executionID,
				RunID:       runID,
				Combination: run.Combinations[idx],
				Status:      CombinationStatusPending,
				Target:      NewEnvironmentProgress(EnvironmentTarget, run.TargetEnvironment),
				Staging:     NewEnvironmentProgress(EnvironmentStaging, run.StagingEnvironment),
			}
		}
		results = append(results, result)
	}
	return results, nil
}

// saveRun persists the run record with one retry, then degrades to in-memory.
func (o *Orchestrator) saveRun(ctx context.Context, run *Run) {
	o.mu.RLock()
	snapshot := copyRun(run)
	o.mu.RUnlock()

	if err := o.store.SaveRun(ctx, snapshot); err != nil {
		o.metrics.RecordStoreRetry()
		if err = o.store.SaveRun(ctx, snapshot); err != nil {
			o.metrics.RecordStoreWrite("failed")
			o.logger.WithRunID(run.ID).WithError(err).Error("run write failed twice, continuing in-memory")
			return
		}
	}
	o.metrics.RecordStoreWrite("ok")
}

// saveCombination persists a combination record with one retry.
func (o *Orchestrator) saveCombination(ctx context.Context, logger *telemetry.Logger, result *CombinationResult) {
	if err := o.store.SaveCombination(ctx, result); err != nil {
		o.metrics.RecordStoreRetry()
		if err = o.store.SaveCombination(ctx, result); err != nil {
			o.metrics.RecordStoreWrite("failed")
			logger.WithExecutionID(result.ExecutionID).WithError(err).
				Error("combination write failed twice, continuing in-memory")
			return
		}
	}
	o.metrics.RecordStoreWrite("ok")
}

// recordComparison feeds comparison summary counts into metrics.
func (o *Orchestrator) recordComparison(report *ComparisonReport) {
	if report == nil {
		return
	}
	o.metrics.RecordComparisonDifferences(string(SeverityCritical), report.Summary.Critical)
	o.metrics.RecordComparisonDifferences(string(SeverityWarning), report.Summary.Warning)
	o.metrics.RecordComparisonDifferences(string(SeverityInfo), report.Summary.Info)
}

// snapshotRun returns a copy of a live run, or nil when unknown.
func (o *Orchestrator) snapshotRun(runID string) *Run {
	o.mu.RLock()
	defer o.mu.RUnlock()
	run, ok := o.runs[runID]
	if !ok {
		return nil
	}
	return copyRun(run)
}

// copyRun shallow-copies a run so callers never share the mutable record.
func copyRun(run *Run) *Run {
	clone := *run
	clone.Combinations = append([]catalog.Combination(nil), run.Combinations...)
	clone.ExecutionIDs = append([]string(nil), run.ExecutionIDs...)
	return &clone
}

// indexOf returns the index of s in list, or 0 when absent.
func indexOf(list []string, s string) int {
	for i, v := range list {
		if v == s {
			return i
		}
	}
	return 0
}
