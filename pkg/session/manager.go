package session

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/policyprobe/policyprobe/pkg/engine"
	"github.com/policyprobe/policyprobe/pkg/stores"
	"github.com/policyprobe/policyprobe/pkg/telemetry"
)

const (
	// DefaultMaxSessions caps how many sessions are kept.
	DefaultMaxSessions = 5

	// DefaultMaxRunsPerSession caps how many runs a session tracks.
	DefaultMaxRunsPerSession = 10
)

// ManagerConfig bounds the session store.
type ManagerConfig struct {
	MaxSessions       int
	MaxRunsPerSession int
}

// DefaultManagerConfig returns the default capacity caps.
func DefaultManagerConfig() ManagerConfig {
	return ManagerConfig{
		MaxSessions:       DefaultMaxSessions,
		MaxRunsPerSession: DefaultMaxRunsPerSession,
	}
}

// Manager owns session lifecycle: create, list, status updates, and run
// attachment. Capacity is enforced FIFO: opening a session beyond the cap
// evicts the oldest one, and attaching a run beyond the per-session cap drops
// the oldest run ID.
type Manager struct {
	baseDir string
	cfg     ManagerConfig
	logger  *telemetry.Logger
	metrics *telemetry.Metrics

	mu sync.Mutex
}

// NewManager creates a session manager persisting under baseDir.
func NewManager(baseDir string, cfg ManagerConfig, tel *telemetry.Telemetry) (*Manager, error) {
	if cfg.MaxSessions <= 0 {
		cfg.MaxSessions = DefaultMaxSessions
	}
	if cfg.MaxRunsPerSession <= 0 {
		cfg.MaxRunsPerSession = DefaultMaxRunsPerSession
	}
	if err := os.MkdirAll(filepath.Join(baseDir, "sessions"), 0755); err != nil {
		return nil, engine.NewStorageError("failed to create session directory", err)
	}
	return &Manager{
		baseDir: baseDir,
		cfg:     cfg,
		logger:  tel.Logger.NewComponentLogger("sessions"),
		metrics: tel.Metrics,
	}, nil
}

func (m *Manager) sessionPath(id string) string {
	return filepath.Join(m.baseDir, "sessions", id+".json")
}

// Create opens a session for the given user, evicting the oldest session
// when the cap is reached.
func (m *Manager) Create(ctx context.Context, userName string) (*Session, error) {
	if strings.TrimSpace(userName) == "" {
		return nil, engine.NewConfigError("user name is required", nil).WithCode(engine.ErrCodeValidation)
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	existing, err := m.list()
	if err != nil {
		return nil, err
	}
	for len(existing) >= m.cfg.MaxSessions {
		oldest := existing[len(existing)-1]
		if err := os.Remove(m.sessionPath(oldest.ID)); err != nil && !os.IsNotExist(err) {
			return nil, engine.NewStorageError("failed to evict session", err).
				WithCode(engine.ErrCodeCapacityReached)
		}
		m.logger.WithSessionID(oldest.ID).Info("evicted oldest session")
		existing = existing[:len(existing)-1]
	}

	session := &Session{
		ID:        "sess_" + strings.ReplaceAll(uuid.NewString(), "-", "")[:12],
		UserName:  userName,
		Status:    StatusActive,
		RunIDs:    []string{},
		CreatedAt: time.Now().UTC(),
	}
	if err := m.save(session); err != nil {
		return nil, err
	}

	m.metrics.SetActiveSessions(float64(countActive(append(existing, session))))
	m.logger.WithSessionID(session.ID).WithField("user", userName).Info("session created")
	return session, nil
}

// Get loads one session.
func (m *Manager) Get(ctx context.Context, sessionID string) (*Session, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.load(sessionID)
}

// List returns all sessions, newest first.
func (m *Manager) List(ctx context.Context) ([]*Session, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.list()
}

// UpdateStatus moves a session to a new lifecycle state.
func (m *Manager) UpdateStatus(ctx context.Context, sessionID string, status Status) (*Session, error) {
	if err := status.Validate(); err != nil {
		return nil, err
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	session, err := m.load(sessionID)
	if err != nil {
		return nil, err
	}
	session.Status = status
	if err := m.save(session); err != nil {
		return nil, err
	}

	m.logger.WithSessionID(sessionID).WithField("status", string(status)).Info("session status updated")
	return session, nil
}

// AttachRun records a run against a session. Beyond the per-session cap the
// oldest run ID is dropped; the run record itself stays in the progress store.
func (m *Manager) AttachRun(ctx context.Context, sessionID, runID string) (*Session, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	session, err := m.load(sessionID)
	if err != nil {
		return nil, err
	}

	session.RunIDs = append(session.RunIDs, runID)
	for len(session.RunIDs) > m.cfg.MaxRunsPerSession {
		m.logger.WithSessionID(sessionID).
			WithField("run_id", session.RunIDs[0]).
			Debug("dropping oldest run from session")
		session.RunIDs = session.RunIDs[1:]
	}
	session.RunCount = len(session.RunIDs)

	if err := m.save(session); err != nil {
		return nil, err
	}
	return session, nil
}

func (m *Manager) load(sessionID string) (*Session, error) {
	var session Session
	if err := stores.ReadJSON(m.sessionPath(sessionID), &session); err != nil {
		if os.IsNotExist(err) {
			return nil, engine.NewStorageError(fmt.Sprintf("session %s not found", sessionID), err).
				WithCode(engine.ErrCodeNotFound)
		}
		return nil, engine.NewStorageError("failed to read session", err)
	}
	return &session, nil
}

func (m *Manager) save(session *Session) error {
	session.RunCount = len(session.RunIDs)
	if err := stores.AtomicWriteJSON(m.sessionPath(session.ID), session); err != nil {
		return engine.NewStorageError("failed to save session", err).WithCode(engine.ErrCodeWriteFailed)
	}
	return nil
}

func (m *Manager) list() ([]*Session, error) {
	entries, err := os.ReadDir(filepath.Join(m.baseDir, "sessions"))
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, engine.NewStorageError("failed to list sessions", err)
	}

	sessions := make([]*Session, 0, len(entries))
	for _, entry := range entries {
		if entry.IsDir() || !strings.HasSuffix(entry.Name(), ".json") {
			continue
		}
		var session Session
		if err := stores.ReadJSON(filepath.Join(m.baseDir, "sessions", entry.Name()), &session); err != nil {
			m.logger.WithError(err).WithField("file", entry.Name()).Warn("skipping unreadable session record")
			continue
		}
		sessions = append(sessions, &session)
	}

	sort.Slice(sessions, func(i, j int) bool {
		return sessions[i].CreatedAt.After(sessions[j].CreatedAt)
	})
	return sessions, nil
}

func countActive(sessions []*Session) int {
	n := 0
	for _, s := range sessions {
		if s.Status == StatusActive {
			n++
		}
	}
	return n
}
