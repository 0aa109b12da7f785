// Package janitor tracks the temporary files of one transcription request
// and removes them when the request ends.
package janitor

import (
	"errors"
	"fmt"
	"os"
	"strings"
	"sync"

	"go.uber.org/multierr"
	"go.uber.org/zap"
)

// Roles used by the transcription pipeline.
const (
	RoleUploaded   = "uploaded"
	RoleNormalized = "normalized"
	RoleArtifact   = "artifact"
)

type entry struct {
	role string
	path string
}

// Janitor is owned by a single request. It is safe for concurrent use but
// never shared between requests.
type Janitor struct {
	mu       sync.Mutex
	entries  []entry
	released bool
	logger   *zap.Logger
	remove   func(string) error
}

func New(logger *zap.Logger) *Janitor {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Janitor{logger: logger, remove: os.Remove}
}

// Track registers path under role. A path is tracked at most once, so it
// is deleted at most once. Blank paths are ignored.
func (j *Janitor) Track(role, path string) {
	if strings.TrimSpace(path) == "" {
		return
	}

	j.mu.Lock()
	defer j.mu.Unlock()

	for _, e := range j.entries {
		if e.path == path {
			return
		}
	}
	j.entries = append(j.entries, entry{role: role, path: path})
}

// ReleaseAll deletes every tracked path that still exists, in registration
// order. Only the first call does any work. Paths that are already gone
// are skipped. Deletion failures are logged and returned combined for
// inspection; callers must not let them replace the request outcome.
func (j *Janitor) ReleaseAll() error {
	j.mu.Lock()
	if j.released {
		j.mu.Unlock()
		return nil
	}
	j.released = true
	entries := j.entries
	j.entries = nil
	j.mu.Unlock()

	var errs error
	for _, e := range entries {
		err := j.remove(e.path)
		if err == nil || errors.Is(err, os.ErrNotExist) {
			continue
		}
		j.logger.Warn("failed to remove temporary file", zap.String("role", e.role), zap.String("path", e.path), zap.Error(err))
		errs = multierr.Append(errs, fmt.Errorf("remove %s file %s: %w", e.role, e.path, err))
	}
	return errs
}
