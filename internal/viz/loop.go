package viz

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/MikeSquared-Agency/vizchat/internal/anthropic"
	"github.com/MikeSquared-Agency/vizchat/internal/pyexec"
)

// Loop generates plotting code for a task, runs it, and feeds failures back
// to the model until a chart document comes out or attempts run out.
type Loop struct {
	llm       Completer
	exec      Executor
	maxTokens int
	logger    *slog.Logger
}

func NewLoop(llm Completer, exec Executor, maxTokens int, logger *slog.Logger) *Loop {
	return &Loop{llm: llm, exec: exec, maxTokens: maxTokens, logger: logger}
}

// Run makes up to MaxAttempts attempts and stops at the first success. A
// returned error means an attempt could not be carried out at all (model
// call failed, interpreter missing, context done); script failures are
// recorded in the Outcome instead.
func (l *Loop) Run(ctx context.Context, task string) (*Outcome, error) {
	out := &Outcome{Task: task}

	for out.Attempts < MaxAttempts {
		attempt, result, err := l.attempt(ctx, task, out.LastError, out.Attempts+1)
		if err != nil {
			return out, err
		}
		out.Attempts = attempt.Number
		out.History = append(out.History, attempt)
		if result != "" {
			out.Result = result
			out.LastError = ""
			return out, nil
		}
		out.LastError = attempt.Error
	}

	l.logger.Warn("visualization attempts exhausted",
		"task", task,
		"attempts", out.Attempts,
		"error", out.LastError,
	)
	return out, nil
}

func (l *Loop) attempt(ctx context.Context, task, priorErr string, n int) (Attempt, string, error) {
	prompt := []anthropic.Message{anthropic.TextMessage(RoleUser, codegenPrompt(task, priorErr))}
	raw, err := l.llm.Complete(ctx, codegenSystemPrompt, prompt, l.maxTokens)
	if err != nil {
		return Attempt{Number: n}, "", fmt.Errorf("generate code (attempt %d): %w", n, err)
	}

	code := pyexec.Normalize(raw)
	attempt := Attempt{Number: n, Code: code}

	result, err := l.exec.Execute(ctx, pyexec.Wrap(code))
	var scriptErr *pyexec.ScriptError
	switch {
	case err == nil:
		l.logger.Info("visualization generated", "attempt", n, "bytes", len(result))
		return attempt, result, nil
	case errors.As(err, &scriptErr):
		attempt.Error = scriptErr.Error()
		l.logger.Info("generated code failed", "attempt", n, "error", attempt.Error)
		return attempt, "", nil
	default:
		return attempt, "", fmt.Errorf("execute code (attempt %d): %w", n, err)
	}
}
