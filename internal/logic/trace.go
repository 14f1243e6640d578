package logic

// TraceCandidate is one creative as seen by a selection stage.
type TraceCandidate struct {
	AdID        string  `json:"ad_id"`
	Impressions int64   `json:"impressions"`
	Weight      float64 `json:"weight"`
	Ratio       float64 `json:"ratio"`
}

// TraceStep records the candidates remaining after a selection stage.
type TraceStep struct {
	Stage      string            `json:"stage"`
	Candidates []TraceCandidate  `json:"candidates,omitempty"`
	Details    map[string]string `json:"details,omitempty"`
}

// SelectionTrace captures the ordered steps a selector went through.
// A nil trace ignores every call.
type SelectionTrace struct {
	Steps []TraceStep `json:"steps"`
}

// AddStep appends a stage with its candidates.
func (t *SelectionTrace) AddStep(stage string, candidates []TraceCandidate) {
	t.AddStepWithDetails(stage, candidates, nil)
}

// AddStepWithDetails appends a stage with extra key/value details.
func (t *SelectionTrace) AddStepWithDetails(stage string, candidates []TraceCandidate, details map[string]string) {
	if t == nil {
		return
	}
	t.Steps = append(t.Steps, TraceStep{Stage: stage, Candidates: candidates, Details: details})
}
