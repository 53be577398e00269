package hermes

// Subjects for visualization turn outcomes.
const (
	SubjectVisualizationCompleted = "vizchat.visualization.completed"
	SubjectVisualizationFailed    = "vizchat.visualization.failed"

	// SubjectVisualizationAll matches both outcome subjects.
	SubjectVisualizationAll = "vizchat.visualization.>"
)

// VisualizationEvent is published once per visualization turn, after the
// generate-execute loop has finished.
type VisualizationEvent struct {
	RequestID  string `json:"request_id"`
	Task       string `json:"task"`
	Attempts   int    `json:"attempts"`
	Success    bool   `json:"success"`
	LastError  string `json:"last_error,omitempty"`
	DurationMS int64  `json:"duration_ms"`
	Timestamp  string `json:"timestamp"`
}

// Subject is the subject the event is published on.
func (e VisualizationEvent) Subject() string {
	if e.Success {
		return SubjectVisualizationCompleted
	}
	return SubjectVisualizationFailed
}
