// Package viz turns a chat conversation into a chart: it asks the model for
// a visualization task, generates and runs plotting code for it, and narrates
// the result.
package viz

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/MikeSquared-Agency/vizchat/internal/anthropic"
	"github.com/MikeSquared-Agency/vizchat/internal/hermes"
)

type Dispatcher struct {
	llm            LLM
	loop           *Loop
	publisher      Publisher
	maxTokens      int
	requestTimeout time.Duration
	logger         *slog.Logger
}

type DispatcherConfig struct {
	MaxTokens int
	// RequestTimeout bounds one whole Respond call, all attempts included.
	// Zero means no bound.
	RequestTimeout time.Duration
}

// NewDispatcher wires the dispatch model and the loop. publisher may be nil.
func NewDispatcher(llm LLM, loop *Loop, publisher Publisher, cfg DispatcherConfig, logger *slog.Logger) *Dispatcher {
	return &Dispatcher{
		llm:            llm,
		loop:           loop,
		publisher:      publisher,
		maxTokens:      cfg.MaxTokens,
		requestTimeout: cfg.RequestTimeout,
		logger:         logger,
	}
}

// Respond runs one user turn: task extraction, the generate-execute loop and
// the closing narration.
func (d *Dispatcher) Respond(ctx context.Context, conv Conversation) (*Reply, error) {
	messages, err := toMessages(conv)
	if err != nil {
		return nil, err
	}

	if d.requestTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, d.requestTimeout)
		defer cancel()
	}

	requestID := uuid.NewString()
	logger := d.logger.With("request_id", requestID)

	res, err := d.llm.Create(ctx, anthropic.Params{
		System:     dispatchSystemPrompt,
		Messages:   messages,
		Tools:      tools,
		ToolChoice: anthropic.ForceTool(generateVisualizationName),
		MaxTokens:  d.maxTokens,
	})
	if err != nil {
		return nil, fmt.Errorf("dispatch call: %w", err)
	}

	call, ok := res.ToolUse()
	if !ok {
		logger.Warn("model answered without a tool call")
		return &Reply{Response: res.Text()}, nil
	}

	action, err := ParseAction(call.Name)
	if err != nil {
		return nil, err
	}

	switch action {
	case ActionGenerateVisualization:
		return d.visualize(ctx, logger, requestID, messages, res, call)
	default:
		return nil, fmt.Errorf("%w: %s", ErrUnknownAction, action)
	}
}

func (d *Dispatcher) visualize(ctx context.Context, logger *slog.Logger, requestID string, messages []anthropic.Message, dispatch *anthropic.Result, call anthropic.ContentBlock) (*Reply, error) {
	task, err := parseVisualizationArgs(call.Input)
	if err != nil {
		return nil, err
	}
	logger.Info("visualization requested", "task", task)

	start := time.Now()
	outcome, err := d.loop.Run(ctx, task)
	if err != nil {
		return nil, fmt.Errorf("visualization loop: %w", err)
	}
	d.publish(logger, requestID, outcome, time.Since(start))

	narrationMessages := make([]anthropic.Message, 0, len(messages)+2)
	narrationMessages = append(narrationMessages, messages...)
	narrationMessages = append(narrationMessages,
		anthropic.Message{Role: RoleAssistant, Content: dispatch.Content},
		anthropic.ToolResultMessage(call.ID, toolResultText(outcome), !outcome.Succeeded()),
	)

	narration, err := d.llm.Create(ctx, anthropic.Params{
		System:     dispatchSystemPrompt,
		Messages:   narrationMessages,
		Tools:      tools,
		ToolChoice: anthropic.NoTool(),
		MaxTokens:  d.maxTokens,
	})
	if err != nil {
		return nil, fmt.Errorf("narration call: %w", err)
	}

	reply := &Reply{Response: narration.Text()}
	if outcome.Succeeded() {
		data := outcome.Result
		reply.VisualizationData = &data
	}

	logger.Info("visualization turn complete",
		"attempts", outcome.Attempts,
		"success", outcome.Succeeded(),
	)
	return reply, nil
}

func (d *Dispatcher) publish(logger *slog.Logger, requestID string, o *Outcome, elapsed time.Duration) {
	if d.publisher == nil {
		return
	}
	evt := hermes.VisualizationEvent{
		RequestID:  requestID,
		Task:       o.Task,
		Attempts:   o.Attempts,
		Success:    o.Succeeded(),
		LastError:  o.LastError,
		DurationMS: elapsed.Milliseconds(),
		Timestamp:  time.Now().UTC().Format(time.RFC3339),
	}
	if err := d.publisher.Publish(evt.Subject(), evt); err != nil {
		logger.Warn("failed to publish visualization event", "subject", evt.Subject(), "error", err)
	}
}

// toMessages validates the UI conversation and converts it for the Messages
// API. Blank turns are dropped; function turns are passed as user text since
// they carry no tool_use id to answer.
func toMessages(conv Conversation) ([]anthropic.Message, error) {
	messages := make([]anthropic.Message, 0, len(conv))
	for i, turn := range conv {
		content := strings.TrimSpace(turn.Content)
		if content == "" {
			continue
		}
		switch turn.Role {
		case RoleUser, RoleAssistant:
			messages = append(messages, anthropic.TextMessage(turn.Role, content))
		case RoleFunction:
			messages = append(messages, anthropic.TextMessage(RoleUser, content))
		default:
			return nil, fmt.Errorf("%w: message %d has role %q", ErrInvalidConversation, i, turn.Role)
		}
	}
	if len(messages) == 0 {
		return nil, fmt.Errorf("%w: no messages", ErrInvalidConversation)
	}
	if messages[0].Role != RoleUser {
		return nil, fmt.Errorf("%w: first message must come from the user", ErrInvalidConversation)
	}
	return messages, nil
}
