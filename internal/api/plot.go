package api

import (
	"net/http"

	"github.com/MikeSquared-Agency/vizchat/internal/pyexec"
)

// sampleFigure needs no model call; it checks that the interpreter and its
// plotting libraries are usable.
const sampleFigure = `x = np.linspace(0, 10, 100)
fig = go.Figure(go.Scatter(x=x, y=np.sin(x), mode='lines', name='sin(x)'))
fig.update_layout(title='Sine Wave', xaxis_title='X-axis', yaxis_title='Y-axis')`

// plot handles GET /api/plot
func (s *Server) plot(w http.ResponseWriter, r *http.Request) {
	out, err := s.runner.Execute(r.Context(), pyexec.Wrap(sampleFigure))
	if err != nil {
		s.logger.Error("error generating sample plot", "error", err)
		writeError(w, http.StatusInternalServerError, "Error generating plot")
		return
	}

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusOK)
	w.Write([]byte(out))
}
