package session

import (
	"fmt"
	"time"

	"github.com/policyprobe/policyprobe/pkg/engine"
)

// Status is the lifecycle state of a session.
type Status string

const (
	// StatusActive marks a session accepting new runs.
	StatusActive Status = "active"

	// StatusCompleted marks a session whose runs all finished.
	StatusCompleted Status = "completed"

	// StatusFailed marks a session with at least one failed run.
	StatusFailed Status = "failed"
)

// Validate checks that the status is a known value.
func (s Status) Validate() error {
	switch s {
	case StatusActive, StatusCompleted, StatusFailed:
		return nil
	}
	return engine.NewConfigError(fmt.Sprintf("invalid session status: %s", s), nil)
}

// Session groups the runs started by one user.
type Session struct {
	// ID is the session identifier.
	ID string `json:"session_id"`

	// UserName is who opened the session.
	UserName string `json:"user_name"`

	// Status is the session lifecycle state.
	Status Status `json:"status"`

	// RunIDs are the runs attached to this session, oldest first.
	RunIDs []string `json:"run_ids"`

	// RunCount is len(RunIDs), persisted for cheap listing.
	RunCount int `json:"run_count"`

	// CreatedAt is when the session was opened.
	CreatedAt time.Time `json:"created_at"`
}
