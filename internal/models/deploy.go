package models

// Phase is the abstract stage-progress state shared by both deploy webhook
// payload families.
type Phase string

const (
	PhaseQueued     Phase = "queued"
	PhaseInProgress Phase = "in_progress"
	PhaseDone       Phase = "done"
	PhaseFailed     Phase = "failed"
	PhaseCancelled  Phase = "cancelled"
)

// PhaseRank orders phases for the monotonicity guard. Terminal phases share
// the highest rank; within one stage counter a terminal observation must not
// be overwritten by a redelivered earlier phase.
func PhaseRank(p Phase) int {
	switch p {
	case PhaseQueued:
		return 1
	case PhaseInProgress:
		return 2
	case PhaseDone, PhaseFailed, PhaseCancelled:
		return 3
	default:
		return 0
	}
}

// BuildCause names the VCS material that triggered a pipeline run and the
// revisions it carried.
type BuildCause struct {
	VCSURL    string   `json:"vcs_url,omitempty"`
	Branch    string   `json:"branch,omitempty"`
	Revisions []string `json:"revisions"`
}

// DeployStageEvent is the single normalized representation of both webhook
// payload families. The latest event per pipeline+stage is what matters;
// events are discarded once processed.
type DeployStageEvent struct {
	PipelineKey     string       `json:"pipeline_key"`
	PipelineGroup   string       `json:"pipeline_group,omitempty"`
	StageName       string       `json:"stage_name"`
	StageCounter    int          `json:"stage_counter"`
	Phase           Phase        `json:"phase"`
	IsTerminalStage bool         `json:"is_terminal_stage"`
	BuildCauses     []BuildCause `json:"build_causes,omitempty"`
}

// Revisions flattens the revisions of all build causes, preserving order.
func (e DeployStageEvent) Revisions() []string {
	var revs []string
	for _, cause := range e.BuildCauses {
		revs = append(revs, cause.Revisions...)
	}
	return revs
}
