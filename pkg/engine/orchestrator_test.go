package engine

import (
	"context"
	"regexp"
	"testing"
	"time"

	"github.com/policyprobe/policyprobe/pkg/catalog"
)

func testCatalogConfig() *catalog.Config {
	return &catalog.Config{
		Categories: map[string]catalog.Category{
			"MV4": {
				Name: "Motor Vehicle",
				Products: map[string]catalog.Product{
					"TOKIO_MARINE": {
						Name: "Tokio Marine",
						Plans: map[string]catalog.Plan{
							"COMPREHENSIVE": {Name: "Comprehensive"},
							"TOTAL_LOSS":    {Name: "Total Loss"},
						},
					},
					"SOMPO": {
						Name: "Sompo",
						Plans: map[string]catalog.Plan{
							"COMPREHENSIVE": {Name: "Comprehensive"},
							"THIRD_PARTY":   {Name: "Third Party"},
						},
					},
				},
			},
		},
	}
}

func testOrchestrator(t *testing.T, invoker StepInvoker, store ProgressStore) *Orchestrator {
	t.Helper()
	tel := testTelemetry(t)
	runner := NewRunner(invoker, store, tel, RunnerConfig{}).WithSleeper(NopSleeper{})
	return NewOrchestrator(catalog.New(testCatalogConfig()), runner, store, nil, tel)
}

func waitForRun(t *testing.T, orch *Orchestrator, runID string) *Run {
	t.Helper()
	deadline := time.Now().Add(5 * time.Second)
	for time.Now().Before(deadline) {
		run, err := orch.GetRun(context.Background(), runID)
		if err != nil {
			t.Fatalf("GetRun failed: %v", err)
		}
		if run.Status.IsTerminal() {
			return run
		}
		time.Sleep(5 * time.Millisecond)
	}
	t.Fatal("run did not reach a terminal status in time")
	return nil
}

func TestStartRunImmediatelyObservable(t *testing.T) {
	orch := testOrchestrator(t, newMockInvoker(), newMemStore())

	run, err := orch.StartRun(context.Background(), StartRunRequest{
		Owner:     "tester",
		Selection: catalog.Selection{Category: "MV4"},
		Tokens:    bothTokens(),
	})
	if err != nil {
		t.Fatalf("StartRun failed: %v", err)
	}

	if run.Status != RunStatusActive {
		t.Errorf("expected active, got %s", run.Status)
	}
	if run.Summary.Total != 4 {
		t.Errorf("expected 4 combinations, got %d", run.Summary.Total)
	}

	got, err := orch.GetRun(context.Background(), run.ID)
	if err != nil {
		t.Fatalf("GetRun failed: %v", err)
	}
	if got.ID != run.ID {
		t.Errorf("expected run %s, got %s", run.ID, got.ID)
	}

	waitForRun(t, orch, run.ID)
}

func TestStartRunExecutionIDFormat(t *testing.T) {
	orch := testOrchestrator(t, newMockInvoker(), newMemStore())

	run, err := orch.StartRun(context.Background(), StartRunRequest{
		Owner:     "alice",
		Selection: catalog.Selection{Category: "MV4", ProductID: "SOMPO", PlanID: "THIRD_PARTY"},
		Tokens:    bothTokens(),
	})
	if err != nil {
		t.Fatalf("StartRun failed: %v", err)
	}

	want := regexp.MustCompile(`^alice_\d{14}_MV4_SOMPO_THIRD_PARTY$`)
	if len(run.ExecutionIDs) != 1 || !want.MatchString(run.ExecutionIDs[0]) {
		t.Errorf("unexpected execution IDs: %v", run.ExecutionIDs)
	}

	// Unique per run.
	seen := make(map[string]bool)
	for _, id := range run.ExecutionIDs {
		if seen[id] {
			t.Errorf("duplicate execution ID: %s", id)
		}
		seen[id] = true
	}

	waitForRun(t, orch, run.ID)
}

func TestStartRunConfigErrors(t *testing.T) {
	tests := []struct {
		name string
		req  StartRunRequest
	}{
		{
			name: "missing owner",
			req:  StartRunRequest{Selection: catalog.Selection{Category: "MV4"}},
		},
		{
			name: "unknown category",
			req:  StartRunRequest{Owner: "tester", Selection: catalog.Selection{Category: "BOAT"}},
		},
		{
			name: "inconsistent selection",
			req:  StartRunRequest{Owner: "tester", Selection: catalog.Selection{PlanID: "COMPREHENSIVE"}},
		},
	}

	orch := testOrchestrator(t, newMockInvoker(), newMemStore())
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := orch.StartRun(context.Background(), tt.req)
			if err == nil {
				t.Fatal("expected error, got nil")
			}
			if !IsConfigError(err) {
				t.Errorf("expected config error, got %v", err)
			}
		})
	}
}

func TestRunCompletesAllCombinations(t *testing.T) {
	invoker := newMockInvoker()
	orch := testOrchestrator(t, invoker, newMemStore())

	run, err := orch.StartRun(context.Background(), StartRunRequest{
		Owner:     "tester",
		Selection: catalog.Selection{Category: "MV4"},
		Tokens:    bothTokens(),
	})
	if err != nil {
		t.Fatalf("StartRun failed: %v", err)
	}

	final := waitForRun(t, orch, run.ID)
	if final.Status != RunStatusCompleted {
		t.Errorf("expected completed, got %s", final.Status)
	}
	if final.Summary.Completed != 4 || final.Summary.Succeeded != 4 || final.Summary.Failed != 0 {
		t.Errorf("unexpected summary: %+v", final.Summary)
	}
	if final.CompletedAt == nil {
		t.Error("expected CompletedAt to be set")
	}

	if got := len(invoker.recordedCalls()); got != 4*14 {
		t.Errorf("expected 56 invocations, got %d", got)
	}

	results, err := orch.ListCombinations(context.Background(), run.ID)
	if err != nil {
		t.Fatalf("ListCombinations failed: %v", err)
	}
	if len(results) != 4 {
		t.Fatalf("expected 4 combination records, got %d", len(results))
	}
	for _, result := range results {
		if result.Status != CombinationStatusSucceed {
			t.Errorf("%s: expected succeed, got %s", result.ExecutionID, result.Status)
		}
	}
}

func TestRunFailedCombinationDoesNotAbortLoop(t *testing.T) {
	invoker := newMockInvoker()
	failing := catalog.Combination{Category: "MV4", ProductID: "TOKIO_MARINE", PlanID: "COMPREHENSIVE"}
	invoker.failOn[invokeKey(failing, StepPaymentCheckout)] = true
	orch := testOrchestrator(t, invoker, newMemStore())

	run, err := orch.StartRun(context.Background(), StartRunRequest{
		Owner:     "tester",
		Selection: catalog.Selection{Category: "MV4"},
		Tokens:    bothTokens(),
	})
	if err != nil {
		t.Fatalf("StartRun failed: %v", err)
	}

	final := waitForRun(t, orch, run.ID)
	if final.Status != RunStatusFailed {
		t.Errorf("expected failed, got %s", final.Status)
	}
	if final.Summary.Completed != 4 || final.Summary.Succeeded != 3 || final.Summary.Failed != 1 {
		t.Errorf("unexpected summary: %+v", final.Summary)
	}

	results, err := orch.ListCombinations(context.Background(), run.ID)
	if err != nil {
		t.Fatalf("ListCombinations failed: %v", err)
	}
	for _, result := range results {
		if result.Combination == failing {
			if result.Status != CombinationStatusFailed {
				t.Errorf("failing combination: expected failed, got %s", result.Status)
			}
			for _, prog := range []EnvironmentProgress{result.Target, result.Staging} {
				if prog.Outcome(StepPaymentCheckout).Status != StepStatusFailed {
					t.Errorf("%s checkout: expected failed", prog.Role)
				}
				for _, step := range StepOrder()[3:] {
					if prog.Outcome(step).Status != StepStatusCanNotProceed {
						t.Errorf("%s/%s: expected can_not_proceed", prog.Role, step)
					}
				}
			}
		} else if result.Status != CombinationStatusSucceed {
			t.Errorf("%s: expected succeed, got %s", result.ExecutionID, result.Status)
		}
	}
}

func TestRunCombinationsExecuteSequentially(t *testing.T) {
	invoker := newMockInvoker()
	orch := testOrchestrator(t, invoker, newMemStore())

	run, err := orch.StartRun(context.Background(), StartRunRequest{
		Owner:     "tester",
		Selection: catalog.Selection{Category: "MV4"},
		Tokens:    bothTokens(),
	})
	if err != nil {
		t.Fatalf("StartRun failed: %v", err)
	}
	waitForRun(t, orch, run.ID)

	// All 14 calls of a combination come before any call of the next one,
	// in catalog order.
	calls := invoker.recordedCalls()
	if len(calls) != 56 {
		t.Fatalf("expected 56 invocations, got %d", len(calls))
	}
	for i, call := range calls {
		want := run.Combinations[i/14]
		if call.Combination != want {
			t.Fatalf("call %d: expected combination %s, got %s", i, want, call.Combination)
		}
	}
}

func TestListCombinationsSynthesizesPending(t *testing.T) {
	// A run whose combinations never ran still snapshots one all-pending
	// record per combination.
	store := newMemStore()
	orch := testOrchestrator(t, newMockInvoker(), store)

	run := &Run{
		ID:                 "run-x",
		Owner:              "tester",
		Status:             RunStatusActive,
		TargetEnvironment:  "DEV",
		StagingEnvironment: "staging",
		Combinations:       []catalog.Combination{testCombo},
		ExecutionIDs:       []string{"exec-x"},
		Summary:            RunSummary{Total: 1},
	}
	if err := store.SaveRun(context.Background(), run); err != nil {
		t.Fatalf("SaveRun failed: %v", err)
	}

	results, err := orch.ListCombinations(context.Background(), "run-x")
	if err != nil {
		t.Fatalf("ListCombinations failed: %v", err)
	}
	if len(results) != 1 {
		t.Fatalf("expected 1 record, got %d", len(results))
	}
	if results[0].Status != CombinationStatusPending {
		t.Errorf("expected pending, got %s", results[0].Status)
	}
	for _, outcome := range results[0].Target.Steps {
		if outcome.Status != StepStatusPending {
			t.Errorf("%s: expected pending, got %s", outcome.Step, outcome.Status)
		}
	}
}
