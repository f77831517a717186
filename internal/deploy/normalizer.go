// Package deploy converts the two deploy-webhook payload families into the
// one DeployStageEvent shape the notification state machine consumes.
package deploy

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/beaconlabs/deploybeacon/internal/models"
)

// SimpleDeployPayload is the flat "simple deploy" family: one status field
// per event, no stages.
type SimpleDeployPayload struct {
	ID           string `json:"id"`
	SHA          string `json:"sha"`
	Status       string `json:"status"`
	DateFinished string `json:"date_finished,omitempty"`
}

// PipelinePayload is the staged-pipeline family. Stage and pipeline counters
// arrive as strings; build causes list the VCS materials behind the run.
type PipelinePayload struct {
	Pipeline struct {
		Name    string `json:"name"`
		Group   string `json:"group"`
		Counter string `json:"counter"`
		Stage   struct {
			Name       string `json:"name"`
			Counter    string `json:"counter"`
			State      string `json:"state"`
			Result     string `json:"result"`
			ApprovedBy string `json:"approved-by"`
		} `json:"stage"`
		BuildCause []struct {
			Material struct {
				Type      string `json:"type"`
				GitConfig struct {
					URL    string `json:"url"`
					Branch string `json:"branch"`
				} `json:"git-configuration"`
			} `json:"material"`
			Modifications []struct {
				Revision string `json:"revision"`
			} `json:"modifications"`
		} `json:"build-cause"`
	} `json:"pipeline"`
}

// Normalizer maps payloads to DeployStageEvents. The terminal-stage set is
// required because staged pipelines report every stage, not just the last
// one; without the whitelist there is no way to know the whole pipeline is
// complete.
type Normalizer struct {
	terminalStages map[string]struct{}
}

func NewNormalizer(terminalStages []string) *Normalizer {
	set := make(map[string]struct{}, len(terminalStages))
	for _, name := range terminalStages {
		set[name] = struct{}{}
	}
	return &Normalizer{terminalStages: set}
}

// NormalizeSimple maps the flat family. finished and failed are always
// terminal; there is only one implicit stage.
func (n *Normalizer) NormalizeSimple(p SimpleDeployPayload) (models.DeployStageEvent, error) {
	if p.ID == "" || p.SHA == "" {
		return models.DeployStageEvent{}, fmt.Errorf("simple deploy payload missing id or sha")
	}

	var (
		phase    models.Phase
		terminal bool
	)
	switch p.Status {
	case "queued":
		phase = models.PhaseQueued
	case "started":
		phase = models.PhaseInProgress
	case "finished":
		phase, terminal = models.PhaseDone, true
	case "failed":
		phase, terminal = models.PhaseFailed, true
	default:
		return models.DeployStageEvent{}, fmt.Errorf("unknown simple deploy status %q", p.Status)
	}

	return models.DeployStageEvent{
		PipelineKey:     p.ID,
		StageName:       "deploy",
		Phase:           phase,
		IsTerminalStage: terminal,
		BuildCauses: []models.BuildCause{
			{Revisions: []string{p.SHA}},
		},
	}, nil
}

// NormalizePipeline maps the staged family. Phase derives from the stage
// result; build causes are filtered to git materials carrying at least one
// modification, whose first revision is the stage's head commit.
func (n *Normalizer) NormalizePipeline(p PipelinePayload) (models.DeployStageEvent, error) {
	if p.Pipeline.Name == "" || p.Pipeline.Stage.Name == "" {
		return models.DeployStageEvent{}, fmt.Errorf("pipeline payload missing pipeline or stage name")
	}

	counter, err := strconv.Atoi(p.Pipeline.Stage.Counter)
	if err != nil {
		return models.DeployStageEvent{}, fmt.Errorf("invalid stage counter %q: %w", p.Pipeline.Stage.Counter, err)
	}

	var phase models.Phase
	switch strings.ToLower(p.Pipeline.Stage.Result) {
	case "passed":
		phase = models.PhaseDone
	case "failed":
		phase = models.PhaseFailed
	case "cancelled":
		phase = models.PhaseCancelled
	default:
		phase = models.PhaseInProgress
	}

	_, terminal := n.terminalStages[p.Pipeline.Stage.Name]

	var causes []models.BuildCause
	for _, cause := range p.Pipeline.BuildCause {
		if cause.Material.Type != "git" || len(cause.Modifications) == 0 {
			continue
		}
		revisions := make([]string, 0, len(cause.Modifications))
		for _, mod := range cause.Modifications {
			revisions = append(revisions, mod.Revision)
		}
		causes = append(causes, models.BuildCause{
			VCSURL:    cause.Material.GitConfig.URL,
			Branch:    cause.Material.GitConfig.Branch,
			Revisions: revisions,
		})
	}

	return models.DeployStageEvent{
		PipelineKey:     p.Pipeline.Name,
		PipelineGroup:   p.Pipeline.Group,
		StageName:       p.Pipeline.Stage.Name,
		StageCounter:    counter,
		Phase:           phase,
		IsTerminalStage: terminal,
		BuildCauses:     causes,
	}, nil
}
