package stores

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"sync"

	"github.com/policyprobe/policyprobe/pkg/engine"
	"github.com/policyprobe/policyprobe/pkg/telemetry"
)

// FileStore is the file-backed progress store. Each run owns a directory
// holding run.json plus one JSON document per execution ID; every write goes
// through temp-file-plus-rename so readers never observe partial records.
//
// Layout under the base directory:
//
//	runs/<run-id>/run.json
//	runs/<run-id>/<execution-id>.json
type FileStore struct {
	baseDir string
	logger  *telemetry.Logger

	// mu serializes read-modify-write cycles on execution documents.
	mu sync.Mutex
}

var _ engine.ProgressStore = (*FileStore)(nil)

// NewFileStore creates a file store rooted at baseDir.
func NewFileStore(baseDir string, logger *telemetry.Logger) (*FileStore, error) {
	if err := os.MkdirAll(filepath.Join(baseDir, "runs"), 0755); err != nil {
		return nil, engine.NewStorageError("failed to create store directory", err)
	}
	return &FileStore{
		baseDir: baseDir,
		logger:  logger.NewComponentLogger("file-store"),
	}, nil
}

// BaseDir returns the store root.
func (s *FileStore) BaseDir() string {
	return s.baseDir
}

func (s *FileStore) runDir(runID string) string {
	return filepath.Join(s.baseDir, "runs", runID)
}

func (s *FileStore) runPath(runID string) string {
	return filepath.Join(s.runDir(runID), "run.json")
}

func (s *FileStore) executionPath(runID, executionID string) string {
	return filepath.Join(s.runDir(runID), executionID+".json")
}

// SaveRun persists the run record, replacing any previous version.
func (s *FileStore) SaveRun(_ context.Context, run *engine.Run) error {
	if err := AtomicWriteJSON(s.runPath(run.ID), run); err != nil {
		return engine.NewStorageError("failed to save run", err).WithCode(engine.ErrCodeWriteFailed)
	}
	return nil
}

// GetRun loads a run record.
func (s *FileStore) GetRun(_ context.Context, runID string) (*engine.Run, error) {
	var run engine.Run
	if err := ReadJSON(s.runPath(runID), &run); err != nil {
		if os.IsNotExist(err) {
			return nil, engine.NewStorageError(fmt.Sprintf("run %s not found", runID), err).
				WithCode(engine.ErrCodeNotFound)
		}
		return nil, engine.NewStorageError("failed to read run", err)
	}
	return &run, nil
}

// ListRuns loads all run records, newest first.
func (s *FileStore) ListRuns(_ context.Context) ([]*engine.Run, error) {
	entries, err := os.ReadDir(filepath.Join(s.baseDir, "runs"))
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, engine.NewStorageError("failed to list runs", err)
	}

	runs := make([]*engine.Run, 0, len(entries))
	for _, entry := range entries {
		if !entry.IsDir() {
			continue
		}
		var run engine.Run
		if err := ReadJSON(s.runPath(entry.Name()), &run); err != nil {
			s.logger.WithError(err).WithField("run_id", entry.Name()).Warn("skipping unreadable run record")
			continue
		}
		runs = append(runs, &run)
	}

	sort.Slice(runs, func(i, j int) bool {
		return runs[i].CreatedAt.After(runs[j].CreatedAt)
	})
	return runs, nil
}

// SaveCombination persists a combination record, replacing any previous version.
func (s *FileStore) SaveCombination(_ context.Context, result *engine.CombinationResult) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	path := s.executionPath(result.RunID, result.ExecutionID)
	if err := AtomicWriteJSON(path, result); err != nil {
		return engine.NewStorageError("failed to save combination", err).
			WithCode(engine.ErrCodeWriteFailed).WithExecution(result.ExecutionID)
	}
	return nil
}

// WriteStepOutcome upserts one step outcome into the combination document,
// keyed by (run, execution, environment, step). Writing the same outcome
// twice leaves the document unchanged.
func (s *FileStore) WriteStepOutcome(_ context.Context, runID, executionID string, role engine.EnvironmentRole, outcome engine.StepOutcome) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	path := s.executionPath(runID, executionID)

	var result engine.CombinationResult
	err := ReadJSON(path, &result)
	switch {
	case err == nil:
	case os.IsNotExist(err):
		// First write for this execution: start from an all-pending skeleton.
		result = engine.CombinationResult{
			ExecutionID: executionID,
			RunID:       runID,
			Status:      engine.CombinationStatusRunning,
			Target:      engine.NewEnvironmentProgress(engine.EnvironmentTarget, ""),
			Staging:     engine.NewEnvironmentProgress(engine.EnvironmentStaging, ""),
		}
	default:
		return engine.NewStorageError("failed to read combination", err).WithExecution(executionID)
	}

	result.Progress(role).SetOutcome(outcome)

	if err := AtomicWriteJSON(path, &result); err != nil {
		return engine.NewStorageError("failed to write step outcome", err).
			WithCode(engine.ErrCodeWriteFailed).
			WithExecution(executionID).
			WithStep(string(outcome.Step))
	}
	return nil
}

// GetCombination loads one combination record.
func (s *FileStore) GetCombination(_ context.Context, runID, executionID string) (*engine.CombinationResult, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	var result engine.CombinationResult
	if err := ReadJSON(s.executionPath(runID, executionID), &result); err != nil {
		if os.IsNotExist(err) {
			return nil, engine.NewStorageError(fmt.Sprintf("execution %s not found", executionID), err).
				WithCode(engine.ErrCodeNotFound).WithExecution(executionID)
		}
		return nil, engine.NewStorageError("failed to read combination", err).WithExecution(executionID)
	}
	return &result, nil
}

// ListCombinations loads all combination records of a run, ordered by the
// run's execution ID list when available.
func (s *FileStore) ListCombinations(ctx context.Context, runID string) ([]*engine.CombinationResult, error) {
	run, err := s.GetRun(ctx, runID)
	if err != nil {
		return nil, err
	}

	results := make([]*engine.CombinationResult, 0, len(run.ExecutionIDs))
	for _, executionID := range run.ExecutionIDs {
		result, err := s.GetCombination(ctx, runID, executionID)
		if err != nil {
			var e *engine.EngineError
			if errors.As(err, &e) && e.Code == engine.ErrCodeNotFound {
				// Not started yet; the snapshot simply omits it.
				continue
			}
			return nil, err
		}
		results = append(results, result)
	}
	return results, nil
}
