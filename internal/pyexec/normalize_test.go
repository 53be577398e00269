package pyexec

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestStripFences(t *testing.T) {
	tests := []struct {
		name string
		in   string
		want string
	}{
		{"python fence", "```python\nX\n```", "X"},
		{"bare fence", "```\nfig = go.Figure()\n```", "fig = go.Figure()"},
		{"no fence", "fig = go.Figure()", "fig = go.Figure()"},
		{"surrounding whitespace", "\n  ```py\nx = 1\ny = 2\n```  \n", "x = 1\ny = 2"},
		{"inner backticks kept", "```python\ns = '``'\n```", "s = '``'"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, StripFences(tt.in))
		})
	}
}

func TestStripDisplayCalls(t *testing.T) {
	code := strings.Join([]string{
		"fig = px.line(x=[1, 2], y=[1, 4])",
		"fig.update_layout(title='Squares')",
		"fig.show()",
		"plt.show()",
		"fig.write_html('out.html', auto_open=True)",
		"pio.show(fig)",
		"pio.write_html(fig, file='x.html')",
		"shown = len([1])",
	}, "\n")

	got := StripDisplayCalls(code)

	assert.NotContains(t, got, "fig.show")
	assert.NotContains(t, got, "plt.show")
	assert.NotContains(t, got, "write_html")
	assert.NotContains(t, got, "pio.show")
	assert.Contains(t, got, "fig = px.line(x=[1, 2], y=[1, 4])")
	assert.Contains(t, got, "fig.update_layout(title='Squares')")
	assert.Contains(t, got, "shown = len([1])")
}

func TestStripDisplayCalls_LeavesOtherCodeUntouched(t *testing.T) {
	code := "import numpy as np\nx = np.linspace(0, 10, 50)\nfig = go.Figure(go.Scatter(x=x, y=x**2))"
	assert.Equal(t, code, StripDisplayCalls(code))
}

func TestNormalize(t *testing.T) {
	raw := "```python\nfig = go.Figure()\nfig.show()\n```"
	assert.Equal(t, "fig = go.Figure()\n", Normalize(raw))
}

func TestWrap(t *testing.T) {
	script := Wrap("fig = go.Figure()")

	assert.True(t, strings.HasPrefix(script, "import plotly.graph_objects as go\n"))
	assert.Contains(t, script, "import plotly.express as px")
	assert.Contains(t, script, "import plotly.io as pio")
	assert.Contains(t, script, "import numpy as np")

	body := strings.Index(script, "fig = go.Figure()")
	check := strings.Index(script, "if 'fig' not in locals():")
	dump := strings.Index(script, "print(pio.to_json(fig, validate=False))")
	assert.Greater(t, body, 0)
	assert.Greater(t, check, body, "figure check must follow the generated code")
	assert.Greater(t, dump, check, "serialization must follow the figure check")
	assert.Contains(t, script, "raise NameError(")
}
