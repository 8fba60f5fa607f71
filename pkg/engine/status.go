package engine

import (
	"encoding/json"
	"fmt"
)

// RunStatus represents the overall status of a sanity run.
type RunStatus string

const (
	// RunStatusActive indicates the run is executing combinations.
	RunStatusActive RunStatus = "active"

	// RunStatusCompleted indicates every combination completed without failure.
	RunStatusCompleted RunStatus = "completed"

	// RunStatusFailed indicates at least one combination failed.
	RunStatusFailed RunStatus = "failed"
)

// IsTerminal returns true if the run status represents a final state.
func (s RunStatus) IsTerminal() bool {
	return s == RunStatusCompleted || s == RunStatusFailed
}

// IsActive returns true if the run is still executing.
func (s RunStatus) IsActive() bool {
	return s == RunStatusActive
}

// Validate checks if the run status is valid.
func (s RunStatus) Validate() error {
	switch s {
	case RunStatusActive, RunStatusCompleted, RunStatusFailed:
		return nil
	default:
		return fmt.Errorf("invalid run status: %s", s)
	}
}

// MarshalJSON implements custom JSON marshaling for type-safe enum serialization.
func (s RunStatus) MarshalJSON() ([]byte, error) {
	return json.Marshal(string(s))
}

// UnmarshalJSON implements custom JSON unmarshaling with validation.
func (s *RunStatus) UnmarshalJSON(data []byte) error {
	var str string
	if err := json.Unmarshal(data, &str); err != nil {
		return err
	}
	*s = RunStatus(str)
	return s.Validate()
}

// StepStatus represents the state of a single step in one environment.
// It is the canonical status shared by the runner, the progress store, and
// the polling API.
type StepStatus string

const (
	// StepStatusPending indicates the step has not been reached yet.
	StepStatusPending StepStatus = "pending"

	// StepStatusSucceed indicates the step was invoked and succeeded.
	StepStatusSucceed StepStatus = "succeed"

	// StepStatusFailed indicates the step was invoked and failed.
	StepStatusFailed StepStatus = "failed"

	// StepStatusCanNotProceed indicates the step was never invoked because an
	// earlier step failed in the same environment or a required portal token
	// was missing.
	StepStatusCanNotProceed StepStatus = "can_not_proceed"
)

// IsTerminal returns true if the step status represents a final state.
func (s StepStatus) IsTerminal() bool {
	return s == StepStatusSucceed || s == StepStatusFailed || s == StepStatusCanNotProceed
}

// Validate checks if the step status is valid.
func (s StepStatus) Validate() error {
	switch s {
	case StepStatusPending, StepStatusSucceed, StepStatusFailed, StepStatusCanNotProceed:
		return nil
	default:
		return fmt.Errorf("invalid step status: %s", s)
	}
}

// MarshalJSON implements custom JSON marshaling for type-safe enum serialization.
func (s StepStatus) MarshalJSON() ([]byte, error) {
	return json.Marshal(string(s))
}

// UnmarshalJSON implements custom JSON unmarshaling with validation.
func (s *StepStatus) UnmarshalJSON(data []byte) error {
	var str string
	if err := json.Unmarshal(data, &str); err != nil {
		return err
	}
	*s = StepStatus(str)
	return s.Validate()
}

// CombinationStatus represents the state of one combination within a run.
type CombinationStatus string

const (
	// CombinationStatusPending indicates the combination has not started.
	CombinationStatusPending CombinationStatus = "pending"

	// CombinationStatusRunning indicates the combination is executing.
	CombinationStatusRunning CombinationStatus = "running"

	// CombinationStatusSucceed indicates every invoked step succeeded in both
	// environments.
	CombinationStatusSucceed CombinationStatus = "succeed"

	// CombinationStatusFailed indicates at least one step failed.
	CombinationStatusFailed CombinationStatus = "failed"
)

// IsTerminal returns true if the combination status represents a final state.
func (s CombinationStatus) IsTerminal() bool {
	return s == CombinationStatusSucceed || s == CombinationStatusFailed
}

// Validate checks if the combination status is valid.
func (s CombinationStatus) Validate() error {
	switch s {
	case CombinationStatusPending, CombinationStatusRunning,
		CombinationStatusSucceed, CombinationStatusFailed:
		return nil
	default:
		return fmt.Errorf("invalid combination status: %s", s)
	}
}

// MarshalJSON implements custom JSON marshaling for type-safe enum serialization.
func (s CombinationStatus) MarshalJSON() ([]byte, error) {
	return json.Marshal(string(s))
}

// UnmarshalJSON implements custom JSON unmarshaling with validation.
func (s *CombinationStatus) UnmarshalJSON(data []byte) error {
	var str string
	if err := json.Unmarshal(data, &str); err != nil {
		return err
	}
	*s = CombinationStatus(str)
	return s.Validate()
}

// EnvironmentRole identifies which side of the comparison an invocation hits.
type EnvironmentRole string

const (
	// EnvironmentTarget is the environment under test.
	EnvironmentTarget EnvironmentRole = "target"

	// EnvironmentStaging is the reference environment.
	EnvironmentStaging EnvironmentRole = "staging"
)

// Validate checks if the environment role is valid.
func (e EnvironmentRole) Validate() error {
	switch e {
	case EnvironmentTarget, EnvironmentStaging:
		return nil
	default:
		return fmt.Errorf("invalid environment role: %s", e)
	}
}

// EnvironmentOrder returns the fixed execution order: target first, then staging.
func EnvironmentOrder() []EnvironmentRole {
	return []EnvironmentRole{EnvironmentTarget, EnvironmentStaging}
}
