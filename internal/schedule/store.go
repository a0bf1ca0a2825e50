package schedule

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"

	"go.uber.org/zap"

	"github.com/t77yq/installer-project/internal/model"
)

// Store is the durable record of pending scheduled jobs: a single JSON file
// mapping job id to job. Losing scheduled jobs is preferable to crashing the
// interface, so Load swallows corruption and returns what it can.
type Store struct {
	logger *zap.Logger
	path   string
}

// NewStore creates a store persisting to path.
func NewStore(logger *zap.Logger, path string) *Store {
	return &Store{
		logger: logger.Named("job-store"),
		path:   path,
	}
}

// Load reads the persisted job set. A missing or unreadable file yields an
// empty map; entries missing required fields are dropped individually. Unknown
// fields in an entry are ignored.
func (s *Store) Load() map[string]model.Job {
	jobs := make(map[string]model.Job)

	data, err := os.ReadFile(s.path)
	if err != nil {
		if !os.IsNotExist(err) {
			s.logger.Warn("Failed to read job store, starting empty",
				zap.String("path", s.path),
				zap.Error(err))
		}
		return jobs
	}

	var raw map[string]model.Job
	if err := json.Unmarshal(data, &raw); err != nil {
		s.logger.Warn("Job store is corrupt, starting empty",
			zap.String("path", s.path),
			zap.Error(err))
		return jobs
	}

	for id, job := range raw {
		if !job.Valid() {
			s.logger.Warn("Dropping malformed job entry", zap.String("id", id))
			continue
		}
		jobs[id] = job
	}
	return jobs
}

// Save writes the full job set in one overwrite. Called on every mutation of
// the active set.
func (s *Store) Save(jobs map[string]model.Job) error {
	data, err := json.MarshalIndent(jobs, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to marshal jobs: %w", err)
	}
	if dir := filepath.Dir(s.path); dir != "." {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return fmt.Errorf("failed to create store directory: %w", err)
		}
	}
	if err := os.WriteFile(s.path, data, 0o600); err != nil {
		return fmt.Errorf("failed to write job store: %w", err)
	}
	return nil
}
