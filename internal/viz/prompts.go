package viz

import "fmt"

const dispatchSystemPrompt = `You are a helpful AI assistant that can generate interactive visualizations and images of all types (2D and 3D). All visuals are automatically shown to the user in the panel on the right.

Always use the generate_visualization function when a user asks for a chart or visualization.

Do not mention code, programming languages, or technical details in your responses. Focus on describing the visualization and its interactive features.`

const codegenSystemPrompt = `You are a code generator. Respond only with the code block, no explanations. Use plotly.graph_objects or plotly.express as appropriate for the task.

The following names are already imported: go (plotly.graph_objects), px (plotly.express), pio (plotly.io), json, np (numpy).`

const firstAttemptPrompt = `Generate Python code for the following visualization task: %s

Use Plotly to create an interactive visualization (2D or 3D as appropriate). Create a figure named 'fig'. Do not include any code to display the plot.`

const retryPrompt = `The following code generated an error: %s

Please fix the code and try again. The original task was: %s

Create a figure named 'fig'. Do not include any code to display the plot.`

const (
	narrationSuccess = "Interactive visualization generated successfully."
	narrationFailure = "Failed to generate visualization after %d attempts."
)

func codegenPrompt(task, priorErr string) string {
	if priorErr != "" {
		return fmt.Sprintf(retryPrompt, priorErr, task)
	}
	return fmt.Sprintf(firstAttemptPrompt, task)
}

func toolResultText(o *Outcome) string {
	if o.Succeeded() {
		return narrationSuccess
	}
	return fmt.Sprintf(narrationFailure, o.Attempts)
}
