package engine

import (
	"context"
	"errors"
	"fmt"
	"math/rand"
	"time"

	"github.com/policyprobe/policyprobe/pkg/catalog"
	"github.com/policyprobe/policyprobe/pkg/telemetry"
)

// RunnerConfig tunes the combination runner.
type RunnerConfig struct {
	// DelayMin is the lower bound of the randomized inter-step delay.
	DelayMin time.Duration

	// DelayMax is the upper bound of the randomized inter-step delay.
	DelayMax time.Duration
}

// DefaultRunnerConfig returns the default 1s..3s inter-step delay range.
func DefaultRunnerConfig() RunnerConfig {
	return RunnerConfig{
		DelayMin: 1 * time.Second,
		DelayMax: 3 * time.Second,
	}
}

// Runner executes one combination through the 14-call sequence: all seven
// steps against the target environment, then all seven against staging.
// Runners are driven strictly sequentially by the orchestrator.
type Runner struct {
	invoker StepInvoker
	store   ProgressStore
	logger  *telemetry.Logger
	metrics *telemetry.Metrics
	tracer  *telemetry.Tracer
	sleeper Sleeper
	rng     *rand.Rand
	cfg     RunnerConfig
}

// NewRunner creates a combination runner.
func NewRunner(invoker StepInvoker, store ProgressStore, tel *telemetry.Telemetry, cfg RunnerConfig) *Runner {
	return &Runner{
		invoker: invoker,
		store:   store,
		logger:  tel.Logger.NewComponentLogger("runner"),
		metrics: tel.Metrics,
		tracer:  tel.Tracer,
		sleeper: timerSleeper{},
		rng:     rand.New(rand.NewSource(time.Now().UnixNano())),
		cfg:     cfg,
	}
}

// WithSleeper replaces the inter-step sleeper. Tests inject a no-op.
func (r *Runner) WithSleeper(s Sleeper) *Runner {
	r.sleeper = s
	return r
}

// RunCombination executes one combination and returns its terminal result.
// The returned result is always usable; storage failures degrade to
// in-memory progress and are logged, never fatal.
func (r *Runner) RunCombination(ctx context.Context, run *Run, combo catalog.Combination, executionID string, tokens Tokens) *CombinationResult {
	logger := r.logger.WithRunID(run.ID).
		WithExecutionID(executionID).
		WithCombination(combo.Category, combo.ProductID, combo.PlanID)

	if r.tracer != nil {
		spanCtx, comboSpan := r.tracer.StartCombinationSpan(ctx, executionID, combo.Category, combo.ProductID, combo.PlanID)
		ctx = spanCtx
		defer comboSpan.End()
	}

	result := &CombinationResult{
		ExecutionID: executionID,
		RunID:       run.ID,
		Combination: combo,
		Status:      CombinationStatusRunning,
		Target:      NewEnvironmentProgress(EnvironmentTarget, run.TargetEnvironment),
		Staging:     NewEnvironmentProgress(EnvironmentStaging, run.StagingEnvironment),
		StartedAt:   time.Now().UTC(),
	}

	// Persist the initial all-pending document so pollers see the
	// combination as soon as it starts.
	r.saveCombination(ctx, logger, result)

	logger.Info("combination started")
	timer := telemetry.NewTimer()

	for _, role := range EnvironmentOrder() {
		r.executeEnvironment(ctx, logger, result, role, tokens)
	}

	now := time.Now().UTC()
	result.CompletedAt = &now
	if result.Target.Failed() || result.Staging.Failed() {
		result.Status = CombinationStatusFailed
	} else {
		result.Status = CombinationStatusSucceed
	}

	r.saveCombination(ctx, logger, result)

	r.metrics.RecordCombinationExecuted(combo.Category, string(result.Status), timer.Duration())
	logger.WithField("status", result.Status).Info("combination finished")

	return result
}

// executeEnvironment runs all seven steps against one environment. Once a
// step fails, every later step in this environment is assigned
// can_not_proceed without being invoked. Auth-gated steps with a missing
// portal token are likewise assigned can_not_proceed.
func (r *Runner) executeEnvironment(ctx context.Context, logger *telemetry.Logger, result *CombinationResult, role EnvironmentRole, tokens Tokens) {
	prog := result.Progress(role)
	prior := make(map[Step]map[string]interface{})
	failed := false

	order := StepOrder()
	for i, step := range order {
		stepLogger := logger.WithStep(string(step), string(role))

		var outcome StepOutcome
		switch {
		case failed:
			outcome = skippedOutcome(step, nil)
			stepLogger.Debug("step skipped after earlier failure")

		case step.RequiredToken() != TokenNone && tokens.ForKind(step.RequiredToken()) == "":
			outcome = skippedOutcome(step, &StepError{
				Code:    ErrCodeMissingToken,
				Message: fmt.Sprintf("%s portal token not provided", step.RequiredToken()),
			})
			stepLogger.Warn("step skipped, portal token missing")

		default:
			outcome = r.invokeStep(ctx, stepLogger, result, role, step, tokens, prior)
			if outcome.Status == StepStatusSucceed && outcome.Response != nil {
				prior[step] = outcome.Response
			}
			if outcome.Status == StepStatusFailed {
				failed = true
			}
		}

		prog.SetOutcome(outcome)
		r.persistOutcome(ctx, stepLogger, result, role, outcome)
		r.metrics.RecordStepOutcome(string(step), string(role), string(outcome.Status),
			time.Duration(outcome.ExecutionTimeMS)*time.Millisecond)

		// The delay sits between consecutive invocations only. After a
		// failure or the environment's last step nothing else is invoked
		// here, so there is nothing to space out.
		if outcome.Attempted && !failed && i < len(order)-1 {
			r.sleeper.Sleep(ctx, r.stepDelay())
		}
	}
}

// invokeStep calls the invoker with panic capture and maps the result onto
// the canonical step status. This is the only place a success flag and
// status code become a StepStatus.
func (r *Runner) invokeStep(ctx context.Context, logger *telemetry.Logger, result *CombinationResult, role EnvironmentRole, step Step, tokens Tokens, prior map[Step]map[string]interface{}) StepOutcome {
	req := StepRequest{
		ExecutionID:     result.ExecutionID,
		Combination:     result.Combination,
		Step:            step,
		Environment:     role,
		EnvironmentName: result.Progress(role).Name,
		Token:           tokens.ForKind(step.RequiredToken()),
		PriorResponses:  prior,
	}

	if r.tracer != nil {
		spanCtx, span := r.tracer.StartStepSpan(ctx, result.ExecutionID, string(step), string(role))
		ctx = spanCtx
		defer span.End()
	}

	res, err := r.safeInvoke(ctx, req)

	now := time.Now().UTC()
	outcome := StepOutcome{
		Step:            step,
		Attempted:       true,
		ExecutionTimeMS: res.ExecutionTime.Milliseconds(),
		Endpoint:        res.Endpoint,
		CompletedAt:     &now,
	}

	if err != nil {
		code := 500
		outcome.Status = StepStatusFailed
		outcome.StatusCode = &code
		outcome.Error = &StepError{Code: errorCode(err), Message: err.Error()}
		logger.WithError(err).Error("step invocation broke")
		r.metrics.RecordError(string(ErrorClassInvocation))
		return outcome
	}

	statusCode := res.StatusCode
	outcome.StatusCode = &statusCode

	if res.Success && statusCode >= 200 && statusCode < 300 {
		outcome.Status = StepStatusSucceed
		outcome.Response = res.Data
		logger.WithField("status_code", statusCode).Info("step succeeded")
	} else {
		outcome.Status = StepStatusFailed
		outcome.Error = &StepError{Code: res.ErrorCode, Message: res.ErrorMessage}
		logger.WithField("status_code", statusCode).
			WithField("error_code", res.ErrorCode).
			Warn("step failed")
	}

	return outcome
}

// safeInvoke shields the runner from panicking invokers.
func (r *Runner) safeInvoke(ctx context.Context, req StepRequest) (res StepResult, err error) {
	defer func() {
		if p := recover(); p != nil {
			err = NewInvocationError(
				fmt.Sprintf("step %s panicked: %v", req.Step, p), nil,
			).WithCode(ErrCodePanic).WithExecution(req.ExecutionID).WithStep(string(req.Step))
		}
	}()
	return r.invoker.Invoke(ctx, req)
}

// persistOutcome writes one step outcome with a single retry. A second
// failure is logged and the run continues with in-memory progress only;
// losing durability must never halt a run.
func (r *Runner) persistOutcome(ctx context.Context, logger *telemetry.Logger, result *CombinationResult, role EnvironmentRole, outcome StepOutcome) {
	err := r.store.WriteStepOutcome(ctx, result.RunID, result.ExecutionID, role, outcome)
	if err == nil {
		r.metrics.RecordStoreWrite("ok")
		return
	}

	logger.WithError(err).Warn("progress write failed, retrying once")
	r.metrics.RecordStoreRetry()

	if err = r.store.WriteStepOutcome(ctx, result.RunID, result.ExecutionID, role, outcome); err == nil {
		r.metrics.RecordStoreWrite("ok")
		return
	}

	r.metrics.RecordStoreWrite("failed")
	r.metrics.RecordError(string(ErrorClassStorage))
	logger.WithError(err).Error("progress write failed twice, continuing in-memory")
}

// saveCombination persists the whole combination document with one retry.
func (r *Runner) saveCombination(ctx context.Context, logger *telemetry.Logger, result *CombinationResult) {
	if err := r.store.SaveCombination(ctx, result); err != nil {
		r.metrics.RecordStoreRetry()
		if err = r.store.SaveCombination(ctx, result); err != nil {
			r.metrics.RecordStoreWrite("failed")
			logger.WithError(err).Error("combination write failed twice, continuing in-memory")
			return
		}
	}
	r.metrics.RecordStoreWrite("ok")
}

// stepDelay draws a uniform delay from the configured range.
func (r *Runner) stepDelay() time.Duration {
	if r.cfg.DelayMax <= r.cfg.DelayMin {
		return r.cfg.DelayMin
	}
	return r.cfg.DelayMin + time.Duration(r.rng.Int63n(int64(r.cfg.DelayMax-r.cfg.DelayMin)))
}

// skippedOutcome builds a can_not_proceed outcome for a step that was never
// invoked.
func skippedOutcome(step Step, stepErr *StepError) StepOutcome {
	now := time.Now().UTC()
	return StepOutcome{
		Step:        step,
		Status:      StepStatusCanNotProceed,
		Error:       stepErr,
		Attempted:   false,
		CompletedAt: &now,
	}
}

// errorCode extracts the code from an EngineError, or falls back to internal.
func errorCode(err error) string {
	var e *EngineError
	if errors.As(err, &e) && e.Code != "" {
		return e.Code
	}
	return ErrCodeInternal
}

// timerSleeper sleeps on a timer, honoring context cancellation.
type timerSleeper struct{}

func (timerSleeper) Sleep(ctx context.Context, d time.Duration) {
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

// NopSleeper never sleeps. Tests use it to run the 14-call sequence at speed.
type NopSleeper struct{}

// Sleep returns immediately.
func (NopSleeper) Sleep(context.Context, time.Duration) {}
