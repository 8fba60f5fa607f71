package engine

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/policyprobe/policyprobe/pkg/catalog"
	"github.com/policyprobe/policyprobe/pkg/telemetry"
)

// mockInvoker records every request and fails or panics on scripted keys.
type mockInvoker struct {
	mu      sync.Mutex
	calls   []StepRequest
	failOn  map[string]bool
	panicOn map[string]bool
}

func newMockInvoker() *mockInvoker {
	return &mockInvoker{
		failOn:  make(map[string]bool),
		panicOn: make(map[string]bool),
	}
}

func invokeKey(combo catalog.Combination, step Step) string {
	return combo.String() + ":" + string(step)
}

func (m *mockInvoker) Invoke(_ context.Context, req StepRequest) (StepResult, error) {
	m.mu.Lock()
	m.calls = append(m.calls, req)
	fail := m.failOn[invokeKey(req.Combination, req.Step)]
	shouldPanic := m.panicOn[invokeKey(req.Combination, req.Step)]
	m.mu.Unlock()

	if shouldPanic {
		panic("invoker exploded")
	}
	if fail {
		return StepResult{
			Success:       false,
			StatusCode:    500,
			ErrorCode:     ErrCodeSimulatedFail,
			ErrorMessage:  "simulated failure",
			ExecutionTime: time.Millisecond,
			Endpoint:      "/api/v1/" + string(req.Step),
		}, nil
	}
	return StepResult{
		Success:       true,
		StatusCode:    200,
		Data:          map[string]interface{}{"step": string(req.Step)},
		ExecutionTime: time.Millisecond,
		Endpoint:      "/api/v1/" + string(req.Step),
	}, nil
}

func (m *mockInvoker) recordedCalls() []StepRequest {
	m.mu.Lock()
	defer m.mu.Unlock()
	calls := make([]StepRequest, len(m.calls))
	copy(calls, m.calls)
	return calls
}

// memStore is an in-memory ProgressStore with scriptable write failures.
type memStore struct {
	mu         sync.Mutex
	runs       map[string]*Run
	combos     map[string]map[string]*CombinationResult
	failWrites int
	writeCalls int
}

func newMemStore() *memStore {
	return &memStore{
		runs:   make(map[string]*Run),
		combos: make(map[string]map[string]*CombinationResult),
	}
}

func (s *memStore) failingWrite() error {
	s.writeCalls++
	if s.failWrites > 0 {
		s.failWrites--
		return NewStorageError("disk full", nil).WithCode(ErrCodeWriteFailed)
	}
	return nil
}

func (s *memStore) SaveRun(_ context.Context, run *Run) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.failingWrite(); err != nil {
		return err
	}
	clone := *run
	s.runs[run.ID] = &clone
	return nil
}

func (s *memStore) GetRun(_ context.Context, runID string) (*Run, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	run, ok := s.runs[runID]
	if !ok {
		return nil, NewStorageError("run not found", nil).WithCode(ErrCodeNotFound)
	}
	clone := *run
	return &clone, nil
}

func (s *memStore) ListRuns(_ context.Context) ([]*Run, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	runs := make([]*Run, 0, len(s.runs))
	for _, run := range s.runs {
		clone := *run
		runs = append(runs, &clone)
	}
	return runs, nil
}

func (s *memStore) SaveCombination(_ context.Context, result *CombinationResult) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.failingWrite(); err != nil {
		return err
	}
	if s.combos[result.RunID] == nil {
		s.combos[result.RunID] = make(map[string]*CombinationResult)
	}
	clone := cloneResult(result)
	s.combos[result.RunID][result.ExecutionID] = clone
	return nil
}

func (s *memStore) WriteStepOutcome(_ context.Context, runID, executionID string, role EnvironmentRole, outcome StepOutcome) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.failingWrite(); err != nil {
		return err
	}
	if s.combos[runID] == nil {
		s.combos[runID] = make(map[string]*CombinationResult)
	}
	result, ok := s.combos[runID][executionID]
	if !ok {
		result = &CombinationResult{
			ExecutionID: executionID,
			RunID:       runID,
			Status:      CombinationStatusRunning,
			Target:      NewEnvironmentProgress(EnvironmentTarget, "DEV"),
			Staging:     NewEnvironmentProgress(EnvironmentStaging, "staging"),
		}
		s.combos[runID][executionID] = result
	}
	result.Progress(role).SetOutcome(outcome)
	return nil
}

func (s *memStore) GetCombination(_ context.Context, runID, executionID string) (*CombinationResult, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	byExec, ok := s.combos[runID]
	if !ok {
		return nil, NewStorageError("combination not found", nil).WithCode(ErrCodeNotFound)
	}
	result, ok := byExec[executionID]
	if !ok {
		return nil, NewStorageError("combination not found", nil).WithCode(ErrCodeNotFound)
	}
	return cloneResult(result), nil
}

func (s *memStore) ListCombinations(_ context.Context, runID string) ([]*CombinationResult, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	results := make([]*CombinationResult, 0, len(s.combos[runID]))
	for _, result := range s.combos[runID] {
		results = append(results, cloneResult(result))
	}
	return results, nil
}

func cloneResult(result *CombinationResult) *CombinationResult {
	clone := *result
	clone.Target.Steps = append([]StepOutcome(nil), result.Target.Steps...)
	clone.Staging.Steps = append([]StepOutcome(nil), result.Staging.Steps...)
	return &clone
}

func testTelemetry(t *testing.T) *telemetry.Telemetry {
	t.Helper()
	cfg := telemetry.DefaultConfig()
	cfg.Logging.Level = "error"
	cfg.Logging.Format = "json"
	cfg.Logging.Output = "stderr"
	cfg.Metrics.Enabled = false
	cfg.Tracing.Enabled = false
	tel, err := telemetry.New(cfg)
	if err != nil {
		t.Fatalf("failed to create telemetry: %v", err)
	}
	return tel
}

func testRunner(t *testing.T, invoker StepInvoker, store ProgressStore) *Runner {
	t.Helper()
	return NewRunner(invoker, store, testTelemetry(t), RunnerConfig{}).WithSleeper(NopSleeper{})
}

var testCombo = catalog.Combination{Category: "MV4", ProductID: "TOKIO_MARINE", PlanID: "COMPREHENSIVE"}

func testRun() *Run {
	return &Run{
		ID:                 "run-1",
		Owner:              "tester",
		Status:             RunStatusActive,
		TargetEnvironment:  "DEV",
		StagingEnvironment: "staging",
	}
}

func bothTokens() Tokens {
	return Tokens{Admin: "admin-token", Customer: "customer-token"}
}

func TestRunCombinationHappyPath(t *testing.T) {
	invoker := newMockInvoker()
	store := newMemStore()
	runner := testRunner(t, invoker, store)

	result := runner.RunCombination(context.Background(), testRun(), testCombo, "exec-1", bothTokens())

	if result.Status != CombinationStatusSucceed {
		t.Errorf("expected succeed, got %s", result.Status)
	}
	if result.CompletedAt == nil {
		t.Error("expected CompletedAt to be set")
	}

	calls := invoker.recordedCalls()
	if len(calls) != 14 {
		t.Fatalf("expected 14 invocations, got %d", len(calls))
	}

	// Target is fully resolved before staging begins.
	for i, call := range calls {
		wantEnv := EnvironmentTarget
		if i >= 7 {
			wantEnv = EnvironmentStaging
		}
		if call.Environment != wantEnv {
			t.Errorf("call %d: expected environment %s, got %s", i, wantEnv, call.Environment)
		}
		if call.Step != StepOrder()[i%7] {
			t.Errorf("call %d: expected step %s, got %s", i, StepOrder()[i%7], call.Step)
		}
	}

	for _, prog := range []EnvironmentProgress{result.Target, result.Staging} {
		for _, outcome := range prog.Steps {
			if outcome.Status != StepStatusSucceed {
				t.Errorf("%s/%s: expected succeed, got %s", prog.Role, outcome.Step, outcome.Status)
			}
			if !outcome.Attempted {
				t.Errorf("%s/%s: expected attempted", prog.Role, outcome.Step)
			}
			if outcome.StatusCode == nil || *outcome.StatusCode != 200 {
				t.Errorf("%s/%s: expected status code 200", prog.Role, outcome.Step)
			}
		}
	}
}

func TestRunCombinationPriorResponsesFlow(t *testing.T) {
	invoker := newMockInvoker()
	runner := testRunner(t, invoker, newMemStore())

	runner.RunCombination(context.Background(), testRun(), testCombo, "exec-1", bothTokens())

	calls := invoker.recordedCalls()
	// apply_coupon sees application_submit's response, checkout sees both.
	if _, ok := calls[1].PriorResponses[StepApplicationSubmit]; !ok {
		t.Error("apply_coupon should see application_submit response")
	}
	if len(calls[2].PriorResponses) != 2 {
		t.Errorf("payment_checkout should see 2 prior responses, got %d", len(calls[2].PriorResponses))
	}
	// Environments do not share prior responses.
	if len(calls[7].PriorResponses) != 0 {
		t.Errorf("staging application_submit should see no prior responses, got %d", len(calls[7].PriorResponses))
	}
}

func TestRunCombinationStopOnFailure(t *testing.T) {
	invoker := newMockInvoker()
	invoker.failOn[invokeKey(testCombo, StepPaymentCheckout)] = true
	store := newMemStore()
	runner := testRunner(t, invoker, store)

	result := runner.RunCombination(context.Background(), testRun(), testCombo, "exec-1", bothTokens())

	if result.Status != CombinationStatusFailed {
		t.Errorf("expected failed, got %s", result.Status)
	}

	// Three invocations per environment: the two before the failure plus the
	// failing checkout itself. Nothing after the failure is invoked.
	calls := invoker.recordedCalls()
	if len(calls) != 6 {
		t.Fatalf("expected 6 invocations, got %d", len(calls))
	}
	for _, call := range calls {
		if call.Step.RequiredToken() != TokenNone {
			t.Errorf("auth-gated step %s must not be invoked after failure", call.Step)
		}
	}

	for _, prog := range []EnvironmentProgress{result.Target, result.Staging} {
		checkout := prog.Outcome(StepPaymentCheckout)
		if checkout.Status != StepStatusFailed {
			t.Errorf("%s checkout: expected failed, got %s", prog.Role, checkout.Status)
		}
		if checkout.Error == nil || checkout.Error.Code != ErrCodeSimulatedFail {
			t.Errorf("%s checkout: expected simulated failure error", prog.Role)
		}
		for _, step := range StepOrder()[3:] {
			outcome := prog.Outcome(step)
			if outcome.Status != StepStatusCanNotProceed {
				t.Errorf("%s/%s: expected can_not_proceed, got %s", prog.Role, step, outcome.Status)
			}
			if outcome.Attempted {
				t.Errorf("%s/%s: must not be attempted", prog.Role, step)
			}
		}
	}
}

func TestRunCombinationAuthGating(t *testing.T) {
	tests := []struct {
		name      string
		tokens    Tokens
		wantCalls int
		gated     []Step
	}{
		{
			name:      "no tokens",
			tokens:    Tokens{},
			wantCalls: 6,
			gated: []Step{
				StepAdminPolicyList, StepAdminPolicyDetails,
				StepCustomerPolicyList, StepCustomerPolicyDetails,
			},
		},
		{
			name:      "admin only missing",
			tokens:    Tokens{Customer: "customer-token"},
			wantCalls: 10,
			gated:     []Step{StepAdminPolicyList, StepAdminPolicyDetails},
		},
		{
			name:      "customer only missing",
			tokens:    Tokens{Admin: "admin-token"},
			wantCalls: 10,
			gated:     []Step{StepCustomerPolicyList, StepCustomerPolicyDetails},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			invoker := newMockInvoker()
			runner := testRunner(t, invoker, newMemStore())

			result := runner.RunCombination(context.Background(), testRun(), testCombo, "exec-1", tt.tokens)

			if got := len(invoker.recordedCalls()); got != tt.wantCalls {
				t.Errorf("expected %d invocations, got %d", tt.wantCalls, got)
			}

			gated := make(map[Step]bool)
			for _, step := range tt.gated {
				gated[step] = true
			}
			for _, prog := range []EnvironmentProgress{result.Target, result.Staging} {
				for _, outcome := range prog.Steps {
					if gated[outcome.Step] {
						if outcome.Status != StepStatusCanNotProceed {
							t.Errorf("%s/%s: expected can_not_proceed, got %s", prog.Role, outcome.Step, outcome.Status)
						}
						if outcome.Error == nil || outcome.Error.Code != ErrCodeMissingToken {
							t.Errorf("%s/%s: expected missing-token error", prog.Role, outcome.Step)
						}
					} else if outcome.Status != StepStatusSucceed {
						t.Errorf("%s/%s: expected succeed, got %s", prog.Role, outcome.Step, outcome.Status)
					}
				}
			}

			// A skipped auth step is not a failure.
			if result.Status != CombinationStatusSucceed {
				t.Errorf("expected succeed, got %s", result.Status)
			}
		})
	}
}

func TestRunCombinationTokenNeverPersisted(t *testing.T) {
	store := newMemStore()
	runner := testRunner(t, newMockInvoker(), store)

	runner.RunCombination(context.Background(), testRun(), testCombo, "exec-1", bothTokens())

	results, err := store.ListCombinations(context.Background(), "run-1")
	if err != nil {
		t.Fatalf("ListCombinations failed: %v", err)
	}
	for _, result := range results {
		raw := fmt.Sprintf("%+v", result)
		if strings.Contains(raw, "admin-token") || strings.Contains(raw, "customer-token") {
			t.Error("portal tokens leaked into persisted record")
		}
	}
}

func TestRunCombinationStoreFailureDegradesToMemory(t *testing.T) {
	invoker := newMockInvoker()
	store := newMemStore()
	store.failWrites = 1000 // every write fails, including retries
	runner := testRunner(t, invoker, store)

	result := runner.RunCombination(context.Background(), testRun(), testCombo, "exec-1", bothTokens())

	if result.Status != CombinationStatusSucceed {
		t.Errorf("expected succeed despite storage outage, got %s", result.Status)
	}
	if got := len(invoker.recordedCalls()); got != 14 {
		t.Errorf("expected all 14 invocations despite storage outage, got %d", got)
	}
}

func TestRunCombinationStoreRetryOnce(t *testing.T) {
	store := newMemStore()
	store.failWrites = 1 // first write fails, retry succeeds
	runner := testRunner(t, newMockInvoker(), store)

	result := runner.RunCombination(context.Background(), testRun(), testCombo, "exec-1", bothTokens())

	if result.Status != CombinationStatusSucceed {
		t.Errorf("expected succeed, got %s", result.Status)
	}
	stored, err := store.GetCombination(context.Background(), "run-1", "exec-1")
	if err != nil {
		t.Fatalf("GetCombination failed: %v", err)
	}
	if stored.Status != CombinationStatusSucceed {
		t.Errorf("expected stored succeed, got %s", stored.Status)
	}
}

func TestRunCombinationPanicCaptured(t *testing.T) {
	invoker := newMockInvoker()
	invoker.panicOn[invokeKey(testCombo, StepApplyCoupon)] = true
	runner := testRunner(t, invoker, newMemStore())

	result := runner.RunCombination(context.Background(), testRun(), testCombo, "exec-1", bothTokens())

	if result.Status != CombinationStatusFailed {
		t.Errorf("expected failed, got %s", result.Status)
	}
	for _, prog := range []EnvironmentProgress{result.Target, result.Staging} {
		coupon := prog.Outcome(StepApplyCoupon)
		if coupon.Status != StepStatusFailed {
			t.Errorf("%s coupon: expected failed, got %s", prog.Role, coupon.Status)
		}
		if coupon.Error == nil || coupon.Error.Code != ErrCodePanic {
			t.Errorf("%s coupon: expected panic error code", prog.Role)
		}
		for _, step := range StepOrder()[2:] {
			if prog.Outcome(step).Status != StepStatusCanNotProceed {
				t.Errorf("%s/%s: expected can_not_proceed", prog.Role, step)
			}
		}
	}
}

// countingSleeper records how often the runner asked to sleep.
type countingSleeper struct {
	mu    sync.Mutex
	calls int
}

func (s *countingSleeper) Sleep(context.Context, time.Duration) {
	s.mu.Lock()
	s.calls++
	s.mu.Unlock()
}

func (s *countingSleeper) count() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.calls
}

func TestRunCombinationDelayOnlyBetweenInvocations(t *testing.T) {
	sleeper := &countingSleeper{}
	runner := NewRunner(newMockInvoker(), newMemStore(), testTelemetry(t), RunnerConfig{}).WithSleeper(sleeper)

	runner.RunCombination(context.Background(), testRun(), testCombo, "exec-1", bothTokens())

	// Seven invocations per environment leave six gaps each; no delay after
	// the last step of either environment.
	if got := sleeper.count(); got != 12 {
		t.Errorf("expected 12 delays, got %d", got)
	}
}

func TestRunCombinationNoDelayAfterFailure(t *testing.T) {
	sleeper := &countingSleeper{}
	invoker := newMockInvoker()
	invoker.failOn[invokeKey(testCombo, StepPaymentCheckout)] = true
	runner := NewRunner(invoker, newMemStore(), testTelemetry(t), RunnerConfig{}).WithSleeper(sleeper)

	runner.RunCombination(context.Background(), testRun(), testCombo, "exec-1", bothTokens())

	// Per environment: gaps after the first two steps only. The failing
	// checkout ends the invocations, so no delay follows it.
	if got := sleeper.count(); got != 4 {
		t.Errorf("expected 4 delays, got %d", got)
	}
}

func TestRunCombinationPersistsProgressSnapshot(t *testing.T) {
	store := newMemStore()
	runner := testRunner(t, newMockInvoker(), store)

	runner.RunCombination(context.Background(), testRun(), testCombo, "exec-1", bothTokens())

	stored, err := store.GetCombination(context.Background(), "run-1", "exec-1")
	if err != nil {
		t.Fatalf("GetCombination failed: %v", err)
	}
	for _, prog := range []EnvironmentProgress{stored.Target, stored.Staging} {
		if len(prog.Steps) != StepCount {
			t.Fatalf("%s: expected %d steps, got %d", prog.Role, StepCount, len(prog.Steps))
		}
		for i, outcome := range prog.Steps {
			if outcome.Step != StepOrder()[i] {
				t.Errorf("%s step %d: out of order", prog.Role, i)
			}
			if !outcome.Status.IsTerminal() {
				t.Errorf("%s/%s: expected terminal status, got %s", prog.Role, outcome.Step, outcome.Status)
			}
		}
	}
}
