package pyexec

import "strings"

// FigureVar is the variable the generated code must assign the chart to.
const FigureVar = "fig"

const preamble = `import plotly.graph_objects as go
import plotly.express as px
import plotly.io as pio
import json
import numpy as np

try:
    import matplotlib
    matplotlib.use('Agg')
except ImportError:
    pass
`

const postamble = `
if '` + FigureVar + `' not in locals():
    raise NameError("The variable '` + FigureVar + `' is not defined. Make sure to create a Plotly figure named '` + FigureVar + `'.")

print(pio.to_json(` + FigureVar + `, validate=False))
`

// Wrap surrounds normalized code with the fixed imports and the figure
// serialization footer.
func Wrap(code string) string {
	var sb strings.Builder
	sb.Grow(len(preamble) + len(code) + len(postamble) + 2)
	sb.WriteString(preamble)
	sb.WriteString("\n")
	sb.WriteString(code)
	sb.WriteString("\n")
	sb.WriteString(postamble)
	return sb.String()
}
