package viz

import (
	"encoding/json"
	"fmt"
	"strings"

	"github.com/MikeSquared-Agency/vizchat/internal/anthropic"
)

// Action is a tool the dispatch model may call.
type Action int

const (
	ActionUnknown Action = iota
	ActionGenerateVisualization
)

const generateVisualizationName = "generate_visualization"

func (a Action) String() string {
	switch a {
	case ActionGenerateVisualization:
		return generateVisualizationName
	default:
		return "unknown"
	}
}

// ParseAction maps a tool name returned by the model to an Action.
func ParseAction(name string) (Action, error) {
	switch name {
	case generateVisualizationName:
		return ActionGenerateVisualization, nil
	default:
		return ActionUnknown, fmt.Errorf("%w: %q", ErrUnknownAction, name)
	}
}

var visualizationTool = anthropic.Tool{
	Name:        generateVisualizationName,
	Description: "Generate an interactive visualization based on the user's request",
	InputSchema: json.RawMessage(`{
		"type": "object",
		"properties": {
			"task": {
				"type": "string",
				"description": "The visualization task to implement"
			}
		},
		"required": ["task"]
	}`),
}

// tools is the full set offered to the dispatch model.
var tools = []anthropic.Tool{visualizationTool}

type visualizationArgs struct {
	Task string `json:"task"`
}

func parseVisualizationArgs(input json.RawMessage) (string, error) {
	var args visualizationArgs
	if err := json.Unmarshal(input, &args); err != nil {
		return "", fmt.Errorf("parse tool arguments: %w", err)
	}
	task := strings.TrimSpace(args.Task)
	if task == "" {
		return "", ErrNoTask
	}
	return task, nil
}
