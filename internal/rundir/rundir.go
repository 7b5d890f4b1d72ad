// Package rundir manages the per-invocation scratch directory that holds generated
// values files and manifests. Directories are never removed so a failed run can be
// inspected afterwards.
package rundir

import (
	"fmt"
	"log/slog"
	"os"
	"path/filepath"

	"github.com/platformatic/desk/internal/logging"
)

// Pattern is the os.MkdirTemp pattern used for run directories.
const Pattern = "desk-run-*"

// Dir is a created run directory.
type Dir struct {
	path   string
	logger *slog.Logger
}

// Create makes a new unique run directory under base (the OS temp dir when empty).
func Create(base string, logger *slog.Logger) (*Dir, error) {
	if base != "" {
		if err := os.MkdirAll(base, 0o755); err != nil {
			return nil, fmt.Errorf("create run base %q: %w", base, err)
		}
	}
	path, err := os.MkdirTemp(base, Pattern)
	if err != nil {
		return nil, fmt.Errorf("create run directory: %w", err)
	}
	abs, err := filepath.Abs(path)
	if err != nil {
		return nil, fmt.Errorf("resolve run directory: %w", err)
	}
	if logger == nil {
		logger = logging.Discard()
	}
	logger.Debug("run directory created", "path", abs)
	return &Dir{path: abs, logger: logger}, nil
}

// Path returns the absolute path of the run directory.
func (d *Dir) Path() string {
	return d.path
}

// Add writes content to relPath inside the run directory, creating parent
// directories, and returns the absolute file path.
func (d *Dir) Add(relPath string, content []byte) (string, error) {
	if filepath.IsAbs(relPath) {
		return "", fmt.Errorf("run file path %q must be relative", relPath)
	}
	full := filepath.Join(d.path, relPath)
	if err := os.MkdirAll(filepath.Dir(full), 0o755); err != nil {
		return "", fmt.Errorf("create directory for %q: %w", relPath, err)
	}
	if err := os.WriteFile(full, content, 0o644); err != nil {
		return "", fmt.Errorf("write %q: %w", full, err)
	}
	d.logger.Debug("run file added", "path", full)
	return full, nil
}
