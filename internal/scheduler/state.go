package scheduler

import (
	"encoding/json"
	"log/slog"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/tphakala/birdnet-notifier/internal/errors"
)

// JobState is the durable record of one summary job.
type JobState struct {
	LastFiredAt time.Time `json:"last_fired_at"`
	UpdatedAt   time.Time `json:"updated_at"`
}

// stateDocument is the on-disk layout of the scheduler state file.
type stateDocument struct {
	LastUpdate time.Time           `json:"last_update"`
	Jobs       map[string]JobState `json:"jobs"`
}

// StateManager persists per job last fired times to a JSON file. Writes go
// through a temporary file and rename so a crash never leaves a torn state
// file. Every advance is a compare and swap against the value currently on
// disk, which is what lets a one-shot CLI run and a daemon share the file
// without double counting a fire.
type StateManager struct {
	statePath string
	mu        sync.Mutex
	logger    *slog.Logger
}

// NewStateManager creates a state manager for the given file path. The file
// does not need to exist yet.
func NewStateManager(statePath string, logger *slog.Logger) *StateManager {
	if logger == nil {
		logger = slog.Default()
	}
	return &StateManager{
		statePath: statePath,
		logger:    logger.With("component", "state"),
	}
}

// Path returns the state file location.
func (sm *StateManager) Path() string {
	return sm.statePath
}

// LastFired returns the stored last fired time for a job. The zero time
// means the job has never fired.
func (sm *StateManager) LastFired(jobName string) (time.Time, error) {
	sm.mu.Lock()
	defer sm.mu.Unlock()

	doc, err := sm.load()
	if err != nil {
		return time.Time{}, err
	}
	return doc.Jobs[jobName].LastFiredAt, nil
}

// Snapshot returns a copy of every stored job state.
func (sm *StateManager) Snapshot() (map[string]JobState, error) {
	sm.mu.Lock()
	defer sm.mu.Unlock()

	doc, err := sm.load()
	if err != nil {
		return nil, err
	}

	out := make(map[string]JobState, len(doc.Jobs))
	for name, state := range doc.Jobs {
		out[name] = state
	}
	return out, nil
}

// Advance stores firedAt as a job's last fired time. The value on disk must
// still equal previous, otherwise another process has already consumed this
// occurrence and the caller gets a state conflict error. firedAt must move
// the clock forward; last fired times never regress.
func (sm *StateManager) Advance(jobName string, previous, firedAt time.Time) error {
	sm.mu.Lock()
	defer sm.mu.Unlock()

	doc, err := sm.load()
	if err != nil {
		return err
	}

	stored := doc.Jobs[jobName].LastFiredAt
	if !stored.Equal(previous) {
		return errors.Newf("last_fired_at advanced concurrently").
			Component("scheduler").
			Category(errors.CategoryStateConflict).
			JobContext(jobName, firedAt).
			Context("stored", stored.Format(time.RFC3339)).
			Build()
	}
	if !stored.IsZero() && !firedAt.After(stored) {
		return errors.Newf("fire time does not advance last_fired_at").
			Component("scheduler").
			Category(errors.CategoryStateConflict).
			JobContext(jobName, firedAt).
			Context("stored", stored.Format(time.RFC3339)).
			Build()
	}

	doc.Jobs[jobName] = JobState{LastFiredAt: firedAt, UpdatedAt: time.Now()}
	return sm.save(doc)
}

// load reads the state file. A missing file is an empty state, not an error.
func (sm *StateManager) load() (*stateDocument, error) {
	doc := &stateDocument{Jobs: make(map[string]JobState)}

	data, err := os.ReadFile(sm.statePath)
	if err != nil {
		if os.IsNotExist(err) {
			return doc, nil
		}
		return nil, errors.New(err).
			Component("scheduler").
			Category(errors.CategoryFileIO).
			Context("path", sm.statePath).
			Build()
	}

	if err := json.Unmarshal(data, doc); err != nil {
		return nil, errors.New(err).
			Component("scheduler").
			Category(errors.CategoryFileIO).
			Context("path", sm.statePath).
			Build()
	}
	if doc.Jobs == nil {
		doc.Jobs = make(map[string]JobState)
	}
	return doc, nil
}

// save writes the state through a temporary file and an atomic rename.
func (sm *StateManager) save(doc *stateDocument) error {
	doc.LastUpdate = time.Now()

	dirPath := filepath.Dir(sm.statePath)
	if err := os.MkdirAll(dirPath, 0o755); err != nil {
		return errors.New(err).
			Component("scheduler").
			Category(errors.CategoryFileIO).
			Context("path", dirPath).
			Build()
	}

	data, err := json.MarshalIndent(doc, "", "  ")
	if err != nil {
		return errors.New(err).
			Component("scheduler").
			Category(errors.CategoryFileIO).
			Build()
	}

	tempFile := sm.statePath + ".tmp"
	if err := os.WriteFile(tempFile, data, 0o644); err != nil {
		return errors.New(err).
			Component("scheduler").
			Category(errors.CategoryFileIO).
			Context("path", tempFile).
			Build()
	}

	if err := os.Rename(tempFile, sm.statePath); err != nil {
		if removeErr := os.Remove(tempFile); removeErr != nil {
			sm.logger.Warn("failed to clean up temp state file",
				"path", tempFile, "error", removeErr)
		}
		return errors.New(err).
			Component("scheduler").
			Category(errors.CategoryFileIO).
			Context("path", sm.statePath).
			Build()
	}
	return nil
}
