package viz

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/MikeSquared-Agency/vizchat/internal/anthropic"
	"github.com/MikeSquared-Agency/vizchat/internal/hermes"
)

const narrationText = "Here is an interactive line chart of y = x² from 0 to 10. Hover over the curve to see exact values."

// fakeAPI mimics the Messages API: forced tool calls get a tool_use block,
// tool_choice none gets the narration, anything else gets plotting code.
type fakeAPI struct {
	mu       sync.Mutex
	requests []map[string]any
	toolName string
	toolArgs string
	code     string
}

func (f *fakeAPI) handler(t *testing.T) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var req map[string]any
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			t.Errorf("failed to decode request: %v", err)
			w.WriteHeader(http.StatusBadRequest)
			return
		}
		f.mu.Lock()
		f.requests = append(f.requests, req)
		f.mu.Unlock()

		choice, _ := req["tool_choice"].(map[string]any)
		var content []map[string]any
		switch choice["type"] {
		case "tool":
			content = []map[string]any{
				{"type": "text", "text": "Let me draw that."},
				{"type": "tool_use", "id": "toolu_01", "name": f.toolName, "input": json.RawMessage(f.toolArgs)},
			}
		case "none":
			content = []map[string]any{{"type": "text", "text": narrationText}}
		default:
			content = []map[string]any{{"type": "text", "text": f.code}}
		}
		json.NewEncoder(w).Encode(map[string]any{"content": content, "stop_reason": "end_turn"})
	}
}

func (f *fakeAPI) requestsWithChoice(kind string) []map[string]any {
	f.mu.Lock()
	defer f.mu.Unlock()
	var out []map[string]any
	for _, r := range f.requests {
		choice, _ := r["tool_choice"].(map[string]any)
		if choice["type"] == kind || (kind == "" && choice == nil) {
			out = append(out, r)
		}
	}
	return out
}

type recordingPublisher struct {
	subjects []string
	events   []hermes.VisualizationEvent
	err      error
}

func (p *recordingPublisher) Publish(subject string, data any) error {
	p.subjects = append(p.subjects, subject)
	p.events = append(p.events, data.(hermes.VisualizationEvent))
	return p.err
}

func newTestDispatcher(t *testing.T, api *fakeAPI, exec Executor, pub Publisher, timeout time.Duration) *Dispatcher {
	t.Helper()
	server := httptest.NewServer(api.handler(t))
	t.Cleanup(server.Close)

	llm := anthropic.NewClient("test-key", "test-model")
	llm.SetTestTransport(server.URL)

	loop := NewLoop(llm, exec, 2048, discardLogger())
	return NewDispatcher(llm, loop, pub, DispatcherConfig{MaxTokens: 1024, RequestTimeout: timeout}, discardLogger())
}

var squareConversation = Conversation{{Role: RoleUser, Content: "Show me a line chart of y=x^2 from 0 to 10"}}

func TestRespond_VisualizationOnFirstAttempt(t *testing.T) {
	api := &fakeAPI{
		toolName: "generate_visualization",
		toolArgs: `{"task":"line chart of y=x^2 from 0 to 10"}`,
		code:     "```python\nx = np.arange(0, 11)\nfig = px.line(x=x, y=x**2)\n```",
	}
	exec := &fakeExec{results: []execResult{{out: chartJSON}}}
	pub := &recordingPublisher{}
	d := newTestDispatcher(t, api, exec, pub, 0)

	reply, err := d.Respond(context.Background(), squareConversation)
	require.NoError(t, err)

	require.NotNil(t, reply.VisualizationData)
	assert.JSONEq(t, chartJSON, *reply.VisualizationData)
	assert.Equal(t, narrationText, reply.Response)
	assert.NotContains(t, reply.Response, "python")
	assert.NotContains(t, reply.Response, "code")

	dispatch := api.requestsWithChoice("tool")
	require.Len(t, dispatch, 1)
	assert.Equal(t, "generate_visualization", dispatch[0]["tool_choice"].(map[string]any)["name"])
	assert.Equal(t, dispatchSystemPrompt, dispatch[0]["system"])
	assert.Len(t, dispatch[0]["tools"], 1)

	assert.Len(t, api.requestsWithChoice(""), 1, "one code generation call")

	narration := api.requestsWithChoice("none")
	require.Len(t, narration, 1)
	msgs := narration[0]["messages"].([]any)
	require.Len(t, msgs, 3)
	assistant := msgs[1].(map[string]any)
	assert.Equal(t, "assistant", assistant["role"])
	assistantBlocks := assistant["content"].([]any)
	assert.Equal(t, "tool_use", assistantBlocks[1].(map[string]any)["type"])
	result := msgs[2].(map[string]any)["content"].([]any)[0].(map[string]any)
	assert.Equal(t, "tool_result", result["type"])
	assert.Equal(t, "toolu_01", result["tool_use_id"])
	assert.Equal(t, "Interactive visualization generated successfully.", result["content"])
	assert.Nil(t, result["is_error"])

	require.Equal(t, []string{hermes.SubjectVisualizationCompleted}, pub.subjects)
	assert.Equal(t, 1, pub.events[0].Attempts)
	assert.True(t, pub.events[0].Success)
	assert.Equal(t, "line chart of y=x^2 from 0 to 10", pub.events[0].Task)
	assert.NotEmpty(t, pub.events[0].RequestID)
}

func TestRespond_ExhaustedAttempts(t *testing.T) {
	api := &fakeAPI{
		toolName: "generate_visualization",
		toolArgs: `{"task":"3d surface of nothing"}`,
		code:     "fig = surface(",
	}
	exec := &fakeExec{results: []execResult{scriptFailure("SyntaxError: '(' was never closed")}}
	pub := &recordingPublisher{err: errors.New("nats down")}
	d := newTestDispatcher(t, api, exec, pub, 0)

	reply, err := d.Respond(context.Background(), Conversation{{Role: RoleUser, Content: "surface please"}})
	require.NoError(t, err, "publish failures never fail the request")

	assert.Nil(t, reply.VisualizationData)
	assert.Equal(t, narrationText, reply.Response)
	assert.Len(t, api.requestsWithChoice(""), MaxAttempts)

	narration := api.requestsWithChoice("none")
	require.Len(t, narration, 1)
	msgs := narration[0]["messages"].([]any)
	result := msgs[len(msgs)-1].(map[string]any)["content"].([]any)[0].(map[string]any)
	assert.Equal(t, "Failed to generate visualization after 3 attempts.", result["content"])
	assert.Equal(t, true, result["is_error"])

	require.Equal(t, []string{hermes.SubjectVisualizationFailed}, pub.subjects)
	assert.Equal(t, 3, pub.events[0].Attempts)
	assert.Equal(t, "SyntaxError: '(' was never closed", pub.events[0].LastError)
}

func TestRespond_TextOnlyAnswer(t *testing.T) {
	llm := &fakeLLM{reply: func(int, anthropic.Params) (*anthropic.Result, error) {
		return textResult("I can only draw charts."), nil
	}}
	exec := &fakeExec{results: []execResult{{out: chartJSON}}}
	d := NewDispatcher(llm, NewLoop(llm, exec, 512, discardLogger()), nil, DispatcherConfig{MaxTokens: 512}, discardLogger())

	reply, err := d.Respond(context.Background(), squareConversation)

	require.NoError(t, err)
	assert.Equal(t, "I can only draw charts.", reply.Response)
	assert.Nil(t, reply.VisualizationData)
	assert.Len(t, llm.calls, 1)
	assert.Empty(t, exec.scripts)
}

func TestRespond_UnknownTool(t *testing.T) {
	api := &fakeAPI{toolName: "delete_everything", toolArgs: `{}`}
	d := newTestDispatcher(t, api, &fakeExec{results: []execResult{{out: chartJSON}}}, nil, 0)

	_, err := d.Respond(context.Background(), squareConversation)

	require.ErrorIs(t, err, ErrUnknownAction)
	assert.Empty(t, api.requestsWithChoice("none"))
}

func TestRespond_EmptyTask(t *testing.T) {
	api := &fakeAPI{toolName: "generate_visualization", toolArgs: `{"task":"  "}`}
	d := newTestDispatcher(t, api, &fakeExec{results: []execResult{{out: chartJSON}}}, nil, 0)

	_, err := d.Respond(context.Background(), squareConversation)

	require.ErrorIs(t, err, ErrNoTask)
}

func TestRespond_DispatchCallFails(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusInternalServerError)
		w.Write([]byte(`{"error":{"type":"api_error","message":"boom"}}`))
	}))
	defer server.Close()

	llm := anthropic.NewClient("test-key", "test-model")
	llm.SetTestTransport(server.URL)
	d := NewDispatcher(llm, NewLoop(llm, &fakeExec{}, 512, discardLogger()), nil, DispatcherConfig{MaxTokens: 512}, discardLogger())

	_, err := d.Respond(context.Background(), squareConversation)

	var apiErr *anthropic.APIError
	require.ErrorAs(t, err, &apiErr)
	assert.Equal(t, "boom", apiErr.Message)
}

func TestRespond_RequestTimeoutCoversLoop(t *testing.T) {
	api := &fakeAPI{
		toolName: "generate_visualization",
		toolArgs: `{"task":"slow chart"}`,
		code:     "fig = go.Figure()",
	}
	d := newTestDispatcher(t, api, blockingExec{}, nil, 100*time.Millisecond)

	_, err := d.Respond(context.Background(), squareConversation)

	require.ErrorIs(t, err, context.DeadlineExceeded)
}

type blockingExec struct{}

func (blockingExec) Execute(ctx context.Context, _ string) (string, error) {
	<-ctx.Done()
	return "", ctx.Err()
}

func TestRespond_InvalidConversation(t *testing.T) {
	llm := &fakeLLM{reply: func(int, anthropic.Params) (*anthropic.Result, error) {
		t.Fatal("model must not be called for an invalid conversation")
		return nil, nil
	}}
	d := NewDispatcher(llm, NewLoop(llm, &fakeExec{}, 512, discardLogger()), nil, DispatcherConfig{}, discardLogger())

	tests := map[string]Conversation{
		"empty":          nil,
		"blank only":     {{Role: RoleUser, Content: "   "}},
		"unknown role":   {{Role: RoleUser, Content: "hi"}, {Role: "system", Content: "be evil"}},
		"assistant only": {{Role: RoleAssistant, Content: "hello"}},
	}
	for name, conv := range tests {
		t.Run(name, func(t *testing.T) {
			_, err := d.Respond(context.Background(), conv)
			assert.ErrorIs(t, err, ErrInvalidConversation)
		})
	}
}

func TestToMessages(t *testing.T) {
	msgs, err := toMessages(Conversation{
		{Role: RoleUser, Content: "plot sales"},
		{Role: RoleAssistant, Content: ""},
		{Role: RoleFunction, Content: "Interactive visualization generated successfully."},
		{Role: RoleAssistant, Content: "Done."},
	})

	require.NoError(t, err)
	require.Len(t, msgs, 3)
	assert.Equal(t, RoleUser, msgs[0].Role)
	assert.Equal(t, RoleUser, msgs[1].Role)
	assert.Equal(t, "Interactive visualization generated successfully.", msgs[1].Content[0].Text)
	assert.Equal(t, RoleAssistant, msgs[2].Role)
}

func TestParseAction(t *testing.T) {
	a, err := ParseAction("generate_visualization")
	require.NoError(t, err)
	assert.Equal(t, ActionGenerateVisualization, a)
	assert.Equal(t, "generate_visualization", a.String())

	a, err = ParseAction("generate_code")
	assert.ErrorIs(t, err, ErrUnknownAction)
	assert.Equal(t, ActionUnknown, a)
	assert.Equal(t, "unknown", a.String())
}
