package logging

import (
	"log/slog"
	"strings"
)

// Writer is an io.Writer implementation that forwards collaborator process output to slog
// at debug level, one record per line.
type Writer struct {
	logger *slog.Logger
	tool   string
}

// NewWriter constructs a Writer bound to the provided logger and tool name.
func NewWriter(logger *slog.Logger, tool string) *Writer {
	return &Writer{logger: logger, tool: tool}
}

// Write logs every non-empty line of p.
func (w *Writer) Write(p []byte) (int, error) {
	if w.logger == nil {
		return len(p), nil
	}
	for _, line := range strings.Split(strings.TrimRight(string(p), "\n"), "\n") {
		line = strings.TrimRight(line, "\r")
		if strings.TrimSpace(line) == "" {
			continue
		}
		w.logger.Debug("command output", "tool", w.tool, "line", line)
	}
	return len(p), nil
}
