package server

import (
	"bytes"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/policyprobe/policyprobe/pkg/catalog"
	"github.com/policyprobe/policyprobe/pkg/compare"
	"github.com/policyprobe/policyprobe/pkg/engine"
	"github.com/policyprobe/policyprobe/pkg/mockapi"
	"github.com/policyprobe/policyprobe/pkg/session"
	"github.com/policyprobe/policyprobe/pkg/stores"
	"github.com/policyprobe/policyprobe/pkg/telemetry"
)

const testCatalogYAML = `
categories:
  MV4:
    name: Motor Comprehensive
    products:
      SOMPO:
        name: Sompo Motor
        plans:
          COMPREHENSIVE:
            name: Comprehensive Cover
          THIRD_PARTY:
            name: Third Party Cover
`

func testServer(t *testing.T) *httptest.Server {
	t.Helper()

	tcfg := telemetry.DefaultConfig()
	tcfg.Logging.Level = "error"
	tcfg.Logging.Format = "json"
	tcfg.Logging.Output = "stderr"
	tcfg.Metrics.Enabled = true
	tel, err := telemetry.New(tcfg)
	if err != nil {
		t.Fatalf("failed to create telemetry: %v", err)
	}

	loader := catalog.NewLoader(tel.Logger)
	cfg, err := loader.Parse([]byte(testCatalogYAML))
	if err != nil {
		t.Fatalf("failed to parse catalog: %v", err)
	}
	cat := catalog.New(cfg)

	store, err := stores.NewFileStore(t.TempDir(), tel.Logger)
	if err != nil {
		t.Fatalf("failed to create store: %v", err)
	}

	invoker := mockapi.NewInvoker(tel, mockapi.WithFailurePolicy(engine.NoFailures()))
	runner := engine.NewRunner(invoker, store, tel, engine.DefaultRunnerConfig()).
		WithSleeper(engine.NopSleeper{})
	orchestrator := engine.NewOrchestrator(cat, runner, store, compare.New(tel), tel)

	sessions, err := session.NewManager(t.TempDir(), session.DefaultManagerConfig(), tel)
	if err != nil {
		t.Fatalf("failed to create session manager: %v", err)
	}

	srv := New(DefaultConfig(), orchestrator, sessions, cat, tel)
	ts := httptest.NewServer(srv.Handler())
	t.Cleanup(ts.Close)
	return ts
}

func postJSON(t *testing.T, ts *httptest.Server, path string, body interface{}) *http.Response {
	t.Helper()
	data, err := json.Marshal(body)
	if err != nil {
		t.Fatalf("failed to marshal body: %v", err)
	}
	resp, err := http.Post(ts.URL+path, "application/json", bytes.NewReader(data))
	if err != nil {
		t.Fatalf("POST %s failed: %v", path, err)
	}
	return resp
}

func getJSON(t *testing.T, ts *httptest.Server, path string, v interface{}) *http.Response {
	t.Helper()
	resp, err := http.Get(ts.URL + path)
	if err != nil {
		t.Fatalf("GET %s failed: %v", path, err)
	}
	defer resp.Body.Close()
	if v != nil {
		if err := json.NewDecoder(resp.Body).Decode(v); err != nil {
			t.Fatalf("GET %s: failed to decode body: %v", path, err)
		}
	}
	return resp
}

func decodeBody(t *testing.T, resp *http.Response, v interface{}) {
	t.Helper()
	defer resp.Body.Close()
	if err := json.NewDecoder(resp.Body).Decode(v); err != nil {
		t.Fatalf("failed to decode body: %v", err)
	}
}

func TestHealth(t *testing.T) {
	ts := testServer(t)

	var body map[string]string
	resp := getJSON(t, ts, "/healthz", &body)
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("expected 200, got %d", resp.StatusCode)
	}
	if body["status"] != "ok" {
		t.Errorf("unexpected health body: %+v", body)
	}
}

func TestSessionLifecycle(t *testing.T) {
	ts := testServer(t)

	resp := postJSON(t, ts, "/api/sessions", map[string]string{"user_name": "alice"})
	if resp.StatusCode != http.StatusCreated {
		t.Fatalf("expected 201, got %d", resp.StatusCode)
	}
	var created session.Session
	decodeBody(t, resp, &created)
	if created.UserName != "alice" || created.Status != session.StatusActive {
		t.Errorf("unexpected session: %+v", created)
	}

	var list struct {
		Sessions []session.Session `json:"sessions"`
		Total    int               `json:"total"`
	}
	getJSON(t, ts, "/api/sessions", &list)
	if list.Total != 1 || len(list.Sessions) != 1 {
		t.Fatalf("expected 1 session, got %+v", list)
	}

	var got session.Session
	resp = getJSON(t, ts, "/api/sessions/"+created.ID, &got)
	if resp.StatusCode != http.StatusOK || got.ID != created.ID {
		t.Errorf("get session mismatch: %d %+v", resp.StatusCode, got)
	}

	req, err := http.NewRequest(http.MethodPut, ts.URL+"/api/sessions/"+created.ID+"/status",
		strings.NewReader(`{"status":"completed"}`))
	if err != nil {
		t.Fatalf("failed to build request: %v", err)
	}
	updateResp, err := http.DefaultClient.Do(req)
	if err != nil {
		t.Fatalf("PUT failed: %v", err)
	}
	var updated session.Session
	decodeBody(t, updateResp, &updated)
	if updated.Status != session.StatusCompleted {
		t.Errorf("expected completed, got %s", updated.Status)
	}
}

func TestSessionNotFound(t *testing.T) {
	ts := testServer(t)

	resp := getJSON(t, ts, "/api/sessions/sess_missing00000", nil)
	if resp.StatusCode != http.StatusNotFound {
		t.Errorf("expected 404, got %d", resp.StatusCode)
	}
}

func TestCreateSessionRejectsEmptyUser(t *testing.T) {
	ts := testServer(t)

	resp := postJSON(t, ts, "/api/sessions", map[string]string{"user_name": ""})
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusBadRequest {
		t.Errorf("expected 400, got %d", resp.StatusCode)
	}
}

func TestStartRunReturnsAcceptedWithActiveRun(t *testing.T) {
	ts := testServer(t)

	resp := postJSON(t, ts, "/api/runs", map[string]string{
		"owner":          "alice",
		"category":       "MV4",
		"product_id":     "SOMPO",
		"plan_id":        "COMPREHENSIVE",
		"admin_token":    "admin-token",
		"customer_token": "customer-token",
	})
	if resp.StatusCode != http.StatusAccepted {
		t.Fatalf("expected 202, got %d", resp.StatusCode)
	}
	var run engine.Run
	decodeBody(t, resp, &run)
	if run.ID == "" {
		t.Fatal("expected a run id")
	}
	if run.Status != engine.RunStatusActive {
		t.Errorf("expected active run, got %s", run.Status)
	}
	if len(run.Combinations) != 1 || run.Summary.Total != 1 {
		t.Errorf("expected one combination, got %+v", run)
	}
}

func TestStartRunValidation(t *testing.T) {
	ts := testServer(t)

	tests := []struct {
		name string
		body map[string]string
	}{
		{name: "missing owner", body: map[string]string{"category": "MV4"}},
		{name: "unknown category", body: map[string]string{"owner": "alice", "category": "NOPE"}},
		{name: "plan without product", body: map[string]string{"owner": "alice", "plan_id": "COMPREHENSIVE"}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			resp := postJSON(t, ts, "/api/runs", tt.body)
			defer resp.Body.Close()
			if resp.StatusCode != http.StatusBadRequest {
				t.Errorf("expected 400, got %d", resp.StatusCode)
			}
		})
	}
}

func TestStartRunUnknownSession(t *testing.T) {
	ts := testServer(t)

	resp := postJSON(t, ts, "/api/runs", map[string]string{
		"owner":      "alice",
		"session_id": "sess_missing00000",
	})
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusNotFound {
		t.Errorf("expected 404, got %d", resp.StatusCode)
	}
}

func waitForRunCompletion(t *testing.T, ts *httptest.Server, runID string) engine.Run {
	t.Helper()
	deadline := time.Now().Add(5 * time.Second)
	for time.Now().Before(deadline) {
		var run engine.Run
		resp := getJSON(t, ts, "/api/runs/"+runID, &run)
		if resp.StatusCode == http.StatusOK && run.Status.IsTerminal() {
			return run
		}
		time.Sleep(10 * time.Millisecond)
	}
	t.Fatalf("run %s did not complete in time", runID)
	return engine.Run{}
}

func TestRunProgressAndComparison(t *testing.T) {
	ts := testServer(t)

	resp := postJSON(t, ts, "/api/runs", map[string]string{
		"owner":          "alice",
		"category":       "MV4",
		"product_id":     "SOMPO",
		"plan_id":        "THIRD_PARTY",
		"admin_token":    "admin-token",
		"customer_token": "customer-token",
	})
	var started engine.Run
	decodeBody(t, resp, &started)

	run := waitForRunCompletion(t, ts, started.ID)
	if run.Status != engine.RunStatusCompleted {
		t.Fatalf("expected completed, got %s", run.Status)
	}
	if run.Summary.Succeeded != 1 {
		t.Fatalf("expected one succeeded combination, got %+v", run.Summary)
	}

	var progress struct {
		Run          engine.Run                 `json:"run"`
		Combinations []engine.CombinationResult `json:"combinations"`
	}
	getJSON(t, ts, "/api/runs/"+started.ID+"/progress", &progress)
	if len(progress.Combinations) != 1 {
		t.Fatalf("expected 1 combination in snapshot, got %d", len(progress.Combinations))
	}
	combo := progress.Combinations[0]
	if combo.Status != engine.CombinationStatusSucceed {
		t.Errorf("expected succeed, got %s", combo.Status)
	}
	for _, outcome := range combo.Target.Steps {
		if outcome.Status != engine.StepStatusSucceed {
			t.Errorf("target %s: expected succeed, got %s", outcome.Step, outcome.Status)
		}
	}

	var capture engine.CombinationResult
	capResp := getJSON(t, ts, "/api/runs/"+started.ID+"/executions/"+combo.ExecutionID, &capture)
	if capResp.StatusCode != http.StatusOK {
		t.Fatalf("expected 200 for execution capture, got %d", capResp.StatusCode)
	}
	if capture.Target.Outcome(engine.StepApplicationSubmit).Response == nil {
		t.Error("expected captured response body")
	}

	var report engine.ComparisonReport
	cmpResp := getJSON(t, ts, "/api/runs/"+started.ID+"/executions/"+combo.ExecutionID+"/comparison", &report)
	if cmpResp.StatusCode != http.StatusOK {
		t.Fatalf("expected 200 for comparison, got %d", cmpResp.StatusCode)
	}
	if report.Summary.StepsCompared != engine.StepCount {
		t.Errorf("expected %d compared steps, got %d", engine.StepCount, report.Summary.StepsCompared)
	}
}

func TestTokensNeverAppearInResponses(t *testing.T) {
	ts := testServer(t)
	adminToken := "super-secret-admin-token"
	customerToken := "super-secret-customer-token"

	resp := postJSON(t, ts, "/api/runs", map[string]string{
		"owner":          "alice",
		"category":       "MV4",
		"product_id":     "SOMPO",
		"plan_id":        "COMPREHENSIVE",
		"admin_token":    adminToken,
		"customer_token": customerToken,
	})
	var started engine.Run
	decodeBody(t, resp, &started)
	waitForRunCompletion(t, ts, started.ID)

	paths := []string{
		"/api/runs/" + started.ID,
		"/api/runs/" + started.ID + "/progress",
		"/api/runs",
	}
	for _, path := range paths {
		raw, err := http.Get(ts.URL + path)
		if err != nil {
			t.Fatalf("GET %s failed: %v", path, err)
		}
		var buf bytes.Buffer
		if _, err := buf.ReadFrom(raw.Body); err != nil {
			t.Fatalf("read body failed: %v", err)
		}
		raw.Body.Close()
		body := buf.String()
		if strings.Contains(body, adminToken) || strings.Contains(body, customerToken) {
			t.Errorf("%s: token leaked into response", path)
		}
	}
}

func TestRunNotFound(t *testing.T) {
	ts := testServer(t)

	resp := getJSON(t, ts, "/api/runs/nope", nil)
	if resp.StatusCode != http.StatusNotFound {
		t.Errorf("expected 404, got %d", resp.StatusCode)
	}
}

func TestCatalogFullHierarchy(t *testing.T) {
	ts := testServer(t)

	var cfg struct {
		Categories map[string]struct {
			Name     string `json:"name"`
			Products map[string]struct {
				Name  string `json:"name"`
				Plans map[string]struct {
					Name string `json:"name"`
				} `json:"plans"`
			} `json:"products"`
		} `json:"categories"`
	}
	getJSON(t, ts, "/api/catalog", &cfg)

	plans := cfg.Categories["MV4"].Products["SOMPO"].Plans
	if len(plans) != 2 {
		t.Fatalf("expected 2 plans under MV4/SOMPO, got %d", len(plans))
	}
	if plans["THIRD_PARTY"].Name != "Third Party Cover" {
		t.Errorf("unexpected plan name: %+v", plans["THIRD_PARTY"])
	}
}

func TestCatalogBrowsing(t *testing.T) {
	ts := testServer(t)

	var categories struct {
		Categories []string `json:"categories"`
	}
	getJSON(t, ts, "/api/catalog/categories", &categories)
	if len(categories.Categories) != 1 || categories.Categories[0] != "MV4" {
		t.Errorf("unexpected categories: %+v", categories)
	}

	var products struct {
		Category string   `json:"category"`
		Products []string `json:"products"`
	}
	getJSON(t, ts, "/api/catalog/categories/MV4/products", &products)
	if len(products.Products) != 1 || products.Products[0] != "SOMPO" {
		t.Errorf("unexpected products: %+v", products)
	}

	var plans struct {
		Plans []string `json:"plans"`
	}
	getJSON(t, ts, "/api/catalog/categories/MV4/products/SOMPO/plans", &plans)
	if fmt.Sprintf("%v", plans.Plans) != "[COMPREHENSIVE THIRD_PARTY]" {
		t.Errorf("unexpected plans: %+v", plans.Plans)
	}

	resp := getJSON(t, ts, "/api/catalog/categories/NOPE/products", nil)
	if resp.StatusCode != http.StatusNotFound {
		t.Errorf("expected 404 for unknown category, got %d", resp.StatusCode)
	}
}

func TestMetricsEndpoint(t *testing.T) {
	ts := testServer(t)

	resp, err := http.Get(ts.URL + "/metrics")
	if err != nil {
		t.Fatalf("GET /metrics failed: %v", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		t.Errorf("expected 200, got %d", resp.StatusCode)
	}
}

func TestStartRunAttachesToSession(t *testing.T) {
	ts := testServer(t)

	createResp := postJSON(t, ts, "/api/sessions", map[string]string{"user_name": "alice"})
	var sess session.Session
	decodeBody(t, createResp, &sess)

	resp := postJSON(t, ts, "/api/runs", map[string]string{
		"owner":      "alice",
		"session_id": sess.ID,
		"category":   "MV4",
		"product_id": "SOMPO",
		"plan_id":    "COMPREHENSIVE",
	})
	var run engine.Run
	decodeBody(t, resp, &run)

	var got session.Session
	getJSON(t, ts, "/api/sessions/"+sess.ID, &got)
	if len(got.RunIDs) != 1 || got.RunIDs[0] != run.ID {
		t.Errorf("run not attached to session: %+v", got)
	}
}
