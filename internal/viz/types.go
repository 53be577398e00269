package viz

import (
	"context"
	"errors"

	"github.com/MikeSquared-Agency/vizchat/internal/anthropic"
)

// MaxAttempts bounds generation attempts per user request.
const MaxAttempts = 3

var (
	ErrInvalidConversation = errors.New("invalid conversation")
	ErrUnknownAction       = errors.New("unknown action")
	ErrNoTask              = errors.New("tool call carried no task")
)

// Conversation roles accepted from the UI.
const (
	RoleUser      = "user"
	RoleAssistant = "assistant"
	RoleFunction  = "function"
)

// Turn is one message of the UI-held conversation.
type Turn struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

type Conversation []Turn

// Attempt is one generate-and-execute round.
type Attempt struct {
	Number int    `json:"number"`
	Code   string `json:"code"`
	Error  string `json:"error,omitempty"`
}

// Outcome is what the loop produced for a task. Result is empty when every
// attempt failed.
type Outcome struct {
	Task      string
	Result    string
	Attempts  int
	LastError string
	History   []Attempt
}

func (o *Outcome) Succeeded() bool {
	return o.Result != ""
}

// Reply is returned to the HTTP caller.
type Reply struct {
	Response          string  `json:"response"`
	VisualizationData *string `json:"visualizationData"`
}

// LLM is the subset of the Messages API client the package needs.
type LLM interface {
	Create(ctx context.Context, p anthropic.Params) (*anthropic.Result, error)
}

// Completer returns the text of a plain, tool-free completion.
type Completer interface {
	Complete(ctx context.Context, system string, messages []anthropic.Message, maxTokens int) (string, error)
}

// Executor runs a complete script and returns its chart document.
type Executor interface {
	Execute(ctx context.Context, script string) (string, error)
}

// Publisher sends JSON events to the message bus.
type Publisher interface {
	Publish(subject string, data any) error
}
