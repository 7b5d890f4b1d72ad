// Package runner executes external command-line collaborators (k3d, helm, kubectl, docker).
package runner

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os/exec"
	"strings"

	"github.com/platformatic/desk/internal/logging"
)

// Result is the captured output of a finished process.
type Result struct {
	Stdout string
	Stderr string
}

// Output returns stdout followed by stderr.
func (r Result) Output() string {
	if r.Stderr == "" {
		return r.Stdout
	}
	if r.Stdout == "" {
		return r.Stderr
	}
	return r.Stdout + "\n" + r.Stderr
}

// Runner starts a process and waits for it to finish.
type Runner interface {
	Run(ctx context.Context, name string, args ...string) (Result, error)
}

// ExternalToolError reports a collaborator process that exited unsuccessfully.
type ExternalToolError struct {
	Tool     string
	Args     []string
	ExitCode int
	Stdout   string
	Stderr   string
	Err      error
}

func (e *ExternalToolError) Error() string {
	msg := fmt.Sprintf("%s %s failed", e.Tool, strings.Join(e.Args, " "))
	if e.ExitCode > 0 {
		msg += fmt.Sprintf(" (exit code %d)", e.ExitCode)
	}
	if detail := strings.TrimSpace(e.Stderr); detail != "" {
		msg += ": " + detail
	} else if e.Err != nil {
		msg += ": " + e.Err.Error()
	}
	return msg
}

func (e *ExternalToolError) Unwrap() error { return e.Err }

// Output returns the combined captured output of the failed process.
func (e *ExternalToolError) Output() string {
	return Result{Stdout: e.Stdout, Stderr: e.Stderr}.Output()
}

// Exec runs processes on the host. Output is captured and mirrored to the logger at debug level.
type Exec struct {
	Logger *slog.Logger
	// Env, when set, replaces the process environment of started commands.
	Env []string
}

// NewExec returns an Exec bound to logger.
func NewExec(logger *slog.Logger) *Exec {
	return &Exec{Logger: logger}
}

// Run starts name with args and waits for it. A non-zero exit yields *ExternalToolError.
func (e *Exec) Run(ctx context.Context, name string, args ...string) (Result, error) {
	logger := e.Logger
	if logger == nil {
		logger = logging.Discard()
	}
	logger.Debug("running command", "tool", name, "args", args)

	var stdout, stderr bytes.Buffer
	cmd := exec.CommandContext(ctx, name, args...)
	cmd.Stdout = io.MultiWriter(&stdout, logging.NewWriter(logger, name))
	cmd.Stderr = io.MultiWriter(&stderr, logging.NewWriter(logger, name))
	if e.Env != nil {
		cmd.Env = e.Env
	}

	err := cmd.Run()
	res := Result{Stdout: stdout.String(), Stderr: stderr.String()}
	if err != nil {
		toolErr := &ExternalToolError{
			Tool:   name,
			Args:   append([]string(nil), args...),
			Stdout: res.Stdout,
			Stderr: res.Stderr,
			Err:    err,
		}
		var exitErr *exec.ExitError
		if errors.As(err, &exitErr) {
			toolErr.ExitCode = exitErr.ExitCode()
		}
		return res, toolErr
	}
	return res, nil
}

// LookPath reports whether name is available on PATH.
func LookPath(name string) (string, bool) {
	path, err := exec.LookPath(name)
	return path, err == nil
}
