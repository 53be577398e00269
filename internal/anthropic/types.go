package anthropic

import (
	"encoding/json"
	"strings"
)

// Content block types used by the Messages API.
const (
	BlockText       = "text"
	BlockToolUse    = "tool_use"
	BlockToolResult = "tool_result"
)

// Message is one conversation turn. Content is always sent in block form.
type Message struct {
	Role    string         `json:"role"`
	Content []ContentBlock `json:"content"`
}

// ContentBlock is a text, tool_use or tool_result block.
type ContentBlock struct {
	Type string `json:"type"`

	// text
	Text string `json:"text,omitempty"`

	// tool_use
	ID    string          `json:"id,omitempty"`
	Name  string          `json:"name,omitempty"`
	Input json.RawMessage `json:"input,omitempty"`

	// tool_result
	ToolUseID string `json:"tool_use_id,omitempty"`
	Content   string `json:"content,omitempty"`
	IsError   bool   `json:"is_error,omitempty"`
}

// Tool declares a callable function with a JSON schema for its input.
type Tool struct {
	Name        string          `json:"name"`
	Description string          `json:"description,omitempty"`
	InputSchema json.RawMessage `json:"input_schema"`
}

// ToolChoice controls whether and which tool the model must call.
type ToolChoice struct {
	Type string `json:"type"` // auto | any | tool | none
	Name string `json:"name,omitempty"`
}

// ForceTool makes the model call the named tool.
func ForceTool(name string) *ToolChoice {
	return &ToolChoice{Type: "tool", Name: name}
}

// NoTool keeps tools declared but forbids calling them.
func NoTool() *ToolChoice {
	return &ToolChoice{Type: "none"}
}

type Usage struct {
	InputTokens  int `json:"input_tokens"`
	OutputTokens int `json:"output_tokens"`
}

// Result is a decoded Messages API response.
type Result struct {
	Content    []ContentBlock
	StopReason string
	Usage      Usage
}

// Text concatenates all text blocks.
func (r *Result) Text() string {
	var sb strings.Builder
	for _, b := range r.Content {
		if b.Type == BlockText {
			sb.WriteString(b.Text)
		}
	}
	return sb.String()
}

// ToolUse returns the first tool_use block, if any.
func (r *Result) ToolUse() (ContentBlock, bool) {
	for _, b := range r.Content {
		if b.Type == BlockToolUse {
			return b, true
		}
	}
	return ContentBlock{}, false
}

// TextMessage builds a single-text-block message.
func TextMessage(role, text string) Message {
	return Message{Role: role, Content: []ContentBlock{{Type: BlockText, Text: text}}}
}

// ToolResultMessage answers a tool_use block.
func ToolResultMessage(toolUseID, content string, isError bool) Message {
	return Message{
		Role: "user",
		Content: []ContentBlock{{
			Type:      BlockToolResult,
			ToolUseID: toolUseID,
			Content:   content,
			IsError:   isError,
		}},
	}
}
