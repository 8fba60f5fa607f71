package engine

import (
	"time"

	"github.com/policyprobe/policyprobe/pkg/catalog"
)

// Tokens carries the per-run portal auth tokens. Tokens travel through the
// call chain only; they are never written to the progress store or any other
// persisted record.
type Tokens struct {
	// Admin is the admin portal token, empty when not supplied.
	Admin string `json:"-"`

	// Customer is the customer portal token, empty when not supplied.
	Customer string `json:"-"`
}

// ForKind returns the token for the given kind, or empty when absent.
func (t Tokens) ForKind(kind TokenKind) string {
	switch kind {
	case TokenAdmin:
		return t.Admin
	case TokenCustomer:
		return t.Customer
	default:
		return ""
	}
}

// StepError is the structured error captured for a failed step.
type StepError struct {
	// Code is a machine-readable error code.
	Code string `json:"code"`

	// Message is the human-readable error message.
	Message string `json:"message"`
}

// StepOutcome is the durable record of one step in one environment.
type StepOutcome struct {
	// Step identifies the purchase-flow step.
	Step Step `json:"step"`

	// Status is the canonical step status.
	Status StepStatus `json:"status"`

	// StatusCode is the HTTP-style status code of the invocation, nil when
	// the step was never invoked.
	StatusCode *int `json:"status_code,omitempty"`

	// Response is the captured response payload, nil on failure or when the
	// step was never invoked.
	Response map[string]interface{} `json:"response,omitempty"`

	// Error is the structured error for failed steps.
	Error *StepError `json:"error,omitempty"`

	// ExecutionTimeMS is the invocation duration in milliseconds, zero when
	// the step was never invoked.
	ExecutionTimeMS int64 `json:"execution_time_ms"`

	// Endpoint is the logical endpoint the invocation addressed.
	Endpoint string `json:"endpoint,omitempty"`

	// Attempted reports whether the invoker was actually called.
	Attempted bool `json:"attempted"`

	// CompletedAt is when the step reached a terminal status.
	CompletedAt *time.Time `json:"completed_at,omitempty"`
}

// EnvironmentProgress holds the ordered step outcomes for one environment of
// one combination.
type EnvironmentProgress struct {
	// Role is which side of the comparison this environment plays.
	Role EnvironmentRole `json:"role"`

	// Name is the named environment filling the role (e.g. "DEV").
	Name string `json:"name"`

	// Steps are the outcomes in fixed step order, always all seven.
	Steps []StepOutcome `json:"steps"`
}

// NewEnvironmentProgress returns a progress record with every step pending.
func NewEnvironmentProgress(role EnvironmentRole, name string) EnvironmentProgress {
	steps := make([]StepOutcome, 0, StepCount)
	for _, step := range StepOrder() {
		steps = append(steps, StepOutcome{Step: step, Status: StepStatusPending})
	}
	return EnvironmentProgress{Role: role, Name: name, Steps: steps}
}

// Outcome returns the outcome for a step, or nil when the step is unknown.
func (p *EnvironmentProgress) Outcome(step Step) *StepOutcome {
	for i := range p.Steps {
		if p.Steps[i].Step == step {
			return &p.Steps[i]
		}
	}
	return nil
}

// SetOutcome replaces the outcome for outcome.Step. Writing the same outcome
// twice is a no-op, which keeps persistence idempotent.
func (p *EnvironmentProgress) SetOutcome(outcome StepOutcome) {
	for i := range p.Steps {
		if p.Steps[i].Step == outcome.Step {
			p.Steps[i] = outcome
			return
		}
	}
}

// Failed reports whether any step in this environment has failed.
func (p *EnvironmentProgress) Failed() bool {
	for i := range p.Steps {
		if p.Steps[i].Status == StepStatusFailed {
			return true
		}
	}
	return false
}

// CombinationResult is the durable record of one combination execution.
type CombinationResult struct {
	// ExecutionID is the canonical execution identifier, minted once at run
	// start and never parsed downstream.
	ExecutionID string `json:"execution_id"`

	// RunID is the owning run.
	RunID string `json:"run_id"`

	// Combination is the Category/Product/Plan triple.
	Combination catalog.Combination `json:"combination"`

	// Status is the combination state.
	Status CombinationStatus `json:"status"`

	// Target is the progress against the environment under test.
	Target EnvironmentProgress `json:"target"`

	// Staging is the progress against the reference environment.
	Staging EnvironmentProgress `json:"staging"`

	// Comparison is the target-vs-staging field comparison, produced once
	// both environments have resolved.
	Comparison *ComparisonReport `json:"comparison,omitempty"`

	// StartedAt is when the combination began executing.
	StartedAt time.Time `json:"started_at"`

	// CompletedAt is when the combination reached a terminal status.
	CompletedAt *time.Time `json:"completed_at,omitempty"`
}

// Progress returns the environment progress for the given role.
func (r *CombinationResult) Progress(role EnvironmentRole) *EnvironmentProgress {
	if role == EnvironmentStaging {
		return &r.Staging
	}
	return &r.Target
}

// RunSummary aggregates combination counts for a run.
type RunSummary struct {
	// Total is the number of combinations in the run.
	Total int `json:"total"`

	// Completed is the number of combinations that reached a terminal status.
	Completed int `json:"completed"`

	// Succeeded is the number of combinations with no failed step.
	Succeeded int `json:"succeeded"`

	// Failed is the number of combinations with at least one failed step.
	Failed int `json:"failed"`
}

// Run is the record of one sanity run over a resolved combination list.
type Run struct {
	// ID uniquely identifies the run.
	ID string `json:"id"`

	// Owner is who started the run.
	Owner string `json:"owner"`

	// SessionID is the owning session, empty for CLI runs.
	SessionID string `json:"session_id,omitempty"`

	// Status is the run state: active, completed, or failed.
	Status RunStatus `json:"status"`

	// TargetEnvironment is the named environment playing the target role.
	TargetEnvironment string `json:"target_environment"`

	// StagingEnvironment is the named environment playing the staging role.
	StagingEnvironment string `json:"staging_environment"`

	// Selection is the catalog selection the run was started with.
	Selection catalog.Selection `json:"selection"`

	// Combinations is the resolved, ordered combination list.
	Combinations []catalog.Combination `json:"combinations"`

	// ExecutionIDs are the execution identifiers, index-aligned with
	// Combinations.
	ExecutionIDs []string `json:"execution_ids"`

	// Summary aggregates combination outcomes.
	Summary RunSummary `json:"summary"`

	// CreatedAt is when the run record was created.
	CreatedAt time.Time `json:"created_at"`

	// CompletedAt is when the run reached a terminal status.
	CompletedAt *time.Time `json:"completed_at,omitempty"`
}

// StepRequest is the input to a single step invocation.
type StepRequest struct {
	// ExecutionID is the owning execution identifier.
	ExecutionID string

	// Combination is the Category/Product/Plan triple under test.
	Combination catalog.Combination

	// Step is the purchase-flow step to invoke.
	Step Step

	// Environment is which side of the comparison the invocation hits.
	Environment EnvironmentRole

	// EnvironmentName is the named environment filling the role.
	EnvironmentName string

	// Token is the resolved portal token for auth-gated steps. Never persisted.
	Token string

	// PriorResponses holds the responses of earlier succeeded steps in the
	// same environment, keyed by step. Later steps draw application and
	// policy identifiers from them.
	PriorResponses map[Step]map[string]interface{}
}

// StepResult is the output of a single step invocation.
type StepResult struct {
	// Success reports whether the invocation succeeded.
	Success bool

	// StatusCode is the HTTP-style status code of the invocation.
	StatusCode int

	// Data is the response payload on success.
	Data map[string]interface{}

	// ErrorCode is a machine-readable error code on failure.
	ErrorCode string

	// ErrorMessage is the human-readable error message on failure.
	ErrorMessage string

	// ExecutionTime is how long the invocation took.
	ExecutionTime time.Duration

	// Endpoint is the logical endpoint the invocation addressed.
	Endpoint string
}

// FieldSeverity classifies the weight of a single field difference.
type FieldSeverity string

const (
	// SeverityCritical marks differences in business-critical fields.
	SeverityCritical FieldSeverity = "critical"

	// SeverityWarning marks differences worth reviewing.
	SeverityWarning FieldSeverity = "warning"

	// SeverityInfo marks benign differences.
	SeverityInfo FieldSeverity = "info"
)

// FieldDifference is one field-level difference between target and staging.
type FieldDifference struct {
	// Field is the dotted path of the differing field.
	Field string `json:"field"`

	// TargetValue is the value observed in the target environment.
	TargetValue interface{} `json:"target_value"`

	// StagingValue is the value observed in the staging environment.
	StagingValue interface{} `json:"staging_value"`

	// Severity classifies the difference.
	Severity FieldSeverity `json:"severity"`
}

// StepComparison is the comparison of one step's responses across environments.
type StepComparison struct {
	// Step is the compared purchase-flow step.
	Step Step `json:"step"`

	// Match reports whether the normalized responses were identical.
	Match bool `json:"match"`

	// Skipped reports that one or both sides had no response to compare.
	Skipped bool `json:"skipped"`

	// Differences lists the field-level differences found.
	Differences []FieldDifference `json:"differences,omitempty"`
}

// ComparisonSummary aggregates difference counts by severity.
type ComparisonSummary struct {
	// StepsCompared is the number of steps with responses on both sides.
	StepsCompared int `json:"steps_compared"`

	// StepsMatched is the number of compared steps with no differences.
	StepsMatched int `json:"steps_matched"`

	// Critical is the count of critical differences.
	Critical int `json:"critical"`

	// Warning is the count of warning differences.
	Warning int `json:"warning"`

	// Info is the count of info differences.
	Info int `json:"info"`
}

// ComparisonReport is the full target-vs-staging comparison for a combination.
type ComparisonReport struct {
	// Steps are the per-step comparisons in fixed step order.
	Steps []StepComparison `json:"steps"`

	// Summary aggregates difference counts.
	Summary ComparisonSummary `json:"summary"`
}
