// Package pyexec prepares model-written plotting code and runs it in a
// Python interpreter, one private working directory per execution.
package pyexec

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"os/exec"
	"path/filepath"
	"strings"
	"time"

	"github.com/felixgeelhaar/fortify/bulkhead"
	"github.com/felixgeelhaar/fortify/ferrors"
	"github.com/google/uuid"
)

const (
	dirPrefix  = "vizchat-run-"
	scriptName = "script.py"
	waitDelay  = 2 * time.Second
)

// ErrBusy means every interpreter slot and every queue slot was taken.
var ErrBusy = errors.New("interpreter queue full")

type Config struct {
	Python         string
	WorkDir        string
	Timeout        time.Duration
	MaxConcurrent  int
	// MaxQueued runs wait for a free slot until their context ends; beyond
	// that they fail with ErrBusy.
	MaxQueued      int
	MaxOutputBytes int
}

// Output is what a single interpreter run produced.
type Output struct {
	RunID     string
	Stdout    string
	Stderr    string
	ExitCode  int
	TimedOut  bool
	Truncated bool
	Duration  time.Duration
}

// ScriptError means the interpreter ran but the script failed: it wrote to
// stderr, exited non-zero, timed out, or printed nothing.
type ScriptError struct {
	Stderr   string
	ExitCode int
	TimedOut bool
	Timeout  time.Duration
}

func (e *ScriptError) Error() string {
	switch {
	case e.TimedOut:
		return fmt.Sprintf("script execution timed out after %s", e.Timeout)
	case e.Stderr != "":
		return e.Stderr
	case e.ExitCode != 0:
		return fmt.Sprintf("script exited with status %d", e.ExitCode)
	default:
		return "script produced no output"
	}
}

type Runner struct {
	cfg      Config
	bulkhead bulkhead.Bulkhead[Output]
	logger   *slog.Logger
}

func NewRunner(cfg Config, logger *slog.Logger) *Runner {
	if cfg.Python == "" {
		cfg.Python = "python3"
	}
	if cfg.WorkDir == "" {
		cfg.WorkDir = os.TempDir()
	}
	if cfg.MaxConcurrent <= 0 {
		cfg.MaxConcurrent = 4
	}
	if cfg.MaxQueued <= 0 {
		cfg.MaxQueued = 64
	}
	if cfg.MaxOutputBytes <= 0 {
		cfg.MaxOutputBytes = 8 << 20
	}
	return &Runner{
		cfg: cfg,
		bulkhead: bulkhead.New[Output](bulkhead.Config{
			MaxConcurrent: cfg.MaxConcurrent,
			MaxQueue:      cfg.MaxQueued,
			OnRejected: func() {
				logger.Warn("interpreter queue full", "max_concurrent", cfg.MaxConcurrent, "max_queued", cfg.MaxQueued)
			},
		}),
		logger: logger,
	}
}

// Python returns the interpreter command the runner invokes.
func (r *Runner) Python() string {
	return r.cfg.Python
}

// Execute runs a complete script and returns its trimmed stdout. Script
// failures come back as *ScriptError; any other error means the script
// could not be run at all.
func (r *Runner) Execute(ctx context.Context, script string) (string, error) {
	out, err := r.Run(ctx, script)
	if err != nil {
		return "", err
	}

	stdout := strings.TrimSpace(out.Stdout)
	if out.TimedOut || out.Stderr != "" || out.ExitCode != 0 || stdout == "" {
		stderr := strings.TrimSpace(out.Stderr)
		if stderr == "" && out.Stderr != "" {
			stderr = "script wrote blank lines to stderr"
		}
		return "", &ScriptError{
			Stderr:   stderr,
			ExitCode: out.ExitCode,
			TimedOut: out.TimedOut,
			Timeout:  r.cfg.Timeout,
		}
	}
	if out.Truncated {
		return "", &ScriptError{Stderr: fmt.Sprintf("script output exceeded %d bytes", r.cfg.MaxOutputBytes)}
	}
	if !json.Valid([]byte(stdout)) {
		return "", &ScriptError{Stderr: "script output is not a single JSON document; print nothing besides the figure"}
	}
	return stdout, nil
}

// Run writes the script into a fresh directory, executes it and removes the
// directory again, whatever the outcome.
// Runs beyond MaxConcurrent wait in a queue of MaxQueued.
func (r *Runner) Run(ctx context.Context, script string) (Output, error) {
	out, err := r.bulkhead.Execute(ctx, func(ctx context.Context) (Output, error) {
		return r.run(ctx, script)
	})
	if errors.Is(err, ferrors.ErrBulkheadFull) {
		return out, fmt.Errorf("%w (%d running, %d queued)", ErrBusy, r.cfg.MaxConcurrent, r.cfg.MaxQueued)
	}
	return out, err
}

func (r *Runner) run(ctx context.Context, script string) (Output, error) {
	runID := uuid.NewString()

	dir, err := os.MkdirTemp(r.cfg.WorkDir, dirPrefix+runID+"-")
	if err != nil {
		return Output{}, fmt.Errorf("create run dir: %w", err)
	}
	defer func() {
		if err := os.RemoveAll(dir); err != nil {
			r.logger.Warn("failed to remove run dir", "run_id", runID, "dir", dir, "error", err)
		}
	}()

	path := filepath.Join(dir, scriptName)
	if err := os.WriteFile(path, []byte(script), 0o600); err != nil {
		return Output{}, fmt.Errorf("write script: %w", err)
	}

	execCtx := ctx
	if r.cfg.Timeout > 0 {
		var cancel context.CancelFunc
		execCtx, cancel = context.WithTimeout(ctx, r.cfg.Timeout)
		defer cancel()
	}

	cmd := exec.CommandContext(execCtx, r.cfg.Python, scriptName) // #nosec G204 -- interpreter is operator configured
	cmd.Dir = dir
	cmd.Env = append(os.Environ(), "MPLBACKEND=Agg", "PYTHONDONTWRITEBYTECODE=1")
	cmd.WaitDelay = waitDelay

	stdout := &cappedBuffer{limit: r.cfg.MaxOutputBytes}
	stderr := &cappedBuffer{limit: r.cfg.MaxOutputBytes}
	cmd.Stdout = stdout
	cmd.Stderr = stderr

	r.logger.Debug("running script", "run_id", runID, "dir", dir, "bytes", len(script))

	start := time.Now()
	err = cmd.Run()
	out := Output{
		RunID:     runID,
		Stdout:    stdout.String(),
		Stderr:    stderr.String(),
		Truncated: stdout.truncated || stderr.truncated,
		Duration:  time.Since(start),
	}

	if ctxErr := ctx.Err(); ctxErr != nil {
		return out, ctxErr
	}
	if errors.Is(execCtx.Err(), context.DeadlineExceeded) {
		out.TimedOut = true
		out.ExitCode = -1
		r.logger.Warn("script timed out", "run_id", runID, "timeout", r.cfg.Timeout)
		return out, nil
	}

	var exitErr *exec.ExitError
	switch {
	case err == nil:
	case errors.As(err, &exitErr):
		out.ExitCode = exitErr.ExitCode()
	default:
		return out, fmt.Errorf("start interpreter: %w", err)
	}

	r.logger.Debug("script finished",
		"run_id", runID,
		"exit_code", out.ExitCode,
		"stdout_len", len(out.Stdout),
		"stderr_len", len(out.Stderr),
		"duration", out.Duration,
	)
	return out, nil
}

// Sweep removes run directories older than maxAge that a previous process
// left behind when it died before its deferred cleanup ran.
func (r *Runner) Sweep(maxAge time.Duration) (int, error) {
	entries, err := os.ReadDir(r.cfg.WorkDir)
	if err != nil {
		return 0, fmt.Errorf("read work dir: %w", err)
	}

	cutoff := time.Now().Add(-maxAge)
	removed := 0
	for _, e := range entries {
		if !e.IsDir() || !strings.HasPrefix(e.Name(), dirPrefix) {
			continue
		}
		info, err := e.Info()
		if err != nil || info.ModTime().After(cutoff) {
			continue
		}
		if err := os.RemoveAll(filepath.Join(r.cfg.WorkDir, e.Name())); err != nil {
			r.logger.Warn("failed to sweep run dir", "dir", e.Name(), "error", err)
			continue
		}
		removed++
	}
	return removed, nil
}

// cappedBuffer keeps the first limit bytes and silently drops the rest so a
// runaway script cannot exhaust memory.
type cappedBuffer struct {
	buf       bytes.Buffer
	limit     int
	truncated bool
}

func (b *cappedBuffer) Write(p []byte) (int, error) {
	if room := b.limit - b.buf.Len(); room < len(p) {
		if room > 0 {
			b.buf.Write(p[:room])
		}
		b.truncated = true
		return len(p), nil
	}
	return b.buf.Write(p)
}

func (b *cappedBuffer) String() string {
	return b.buf.String()
}
