package deploy

import (
	"encoding/json"
	"testing"

	"github.com/beaconlabs/deploybeacon/internal/models"
)

func TestNormalizeSimpleStatusMapping(t *testing.T) {
	n := NewNormalizer([]string{"production"})

	tests := []struct {
		status   string
		phase    models.Phase
		terminal bool
	}{
		{"queued", models.PhaseQueued, false},
		{"started", models.PhaseInProgress, false},
		{"finished", models.PhaseDone, true},
		{"failed", models.PhaseFailed, true},
	}
	for _, tt := range tests {
		ev, err := n.NormalizeSimple(SimpleDeployPayload{
			ID:     "deploy-42",
			SHA:    "a1b2c3d4e5f6a7b8c9d0e1f2a3b4c5d6e7f8a9b0",
			Status: tt.status,
		})
		if err != nil {
			t.Fatalf("status %q: unexpected error %v", tt.status, err)
		}
		if ev.Phase != tt.phase {
			t.Errorf("status %q: expected phase %s, got %s", tt.status, tt.phase, ev.Phase)
		}
		if ev.IsTerminalStage != tt.terminal {
			t.Errorf("status %q: expected terminal=%v", tt.status, tt.terminal)
		}
		revs := ev.Revisions()
		if len(revs) != 1 || revs[0] != "a1b2c3d4e5f6a7b8c9d0e1f2a3b4c5d6e7f8a9b0" {
			t.Errorf("status %q: expected single revision from sha, got %v", tt.status, revs)
		}
	}
}

func TestNormalizeSimpleRejectsUnknownStatus(t *testing.T) {
	n := NewNormalizer(nil)
	if _, err := n.NormalizeSimple(SimpleDeployPayload{ID: "x", SHA: "y", Status: "exploded"}); err == nil {
		t.Error("expected error for unknown status")
	}
	if _, err := n.NormalizeSimple(SimpleDeployPayload{Status: "queued"}); err == nil {
		t.Error("expected error for missing id and sha")
	}
}

func pipelinePayload(stage, counter, result string) PipelinePayload {
	var p PipelinePayload
	p.Pipeline.Name = "web-deploy"
	p.Pipeline.Group = "web"
	p.Pipeline.Counter = "12"
	p.Pipeline.Stage.Name = stage
	p.Pipeline.Stage.Counter = counter
	p.Pipeline.Stage.Result = result
	return p
}

func TestNormalizePipelineResultMapping(t *testing.T) {
	n := NewNormalizer([]string{"production"})

	tests := []struct {
		result string
		phase  models.Phase
	}{
		{"Passed", models.PhaseDone},
		{"Failed", models.PhaseFailed},
		{"Cancelled", models.PhaseCancelled},
		{"Unknown", models.PhaseInProgress},
		{"", models.PhaseInProgress},
	}
	for _, tt := range tests {
		ev, err := n.NormalizePipeline(pipelinePayload("production", "3", tt.result))
		if err != nil {
			t.Fatalf("result %q: unexpected error %v", tt.result, err)
		}
		if ev.Phase != tt.phase {
			t.Errorf("result %q: expected phase %s, got %s", tt.result, tt.phase, ev.Phase)
		}
		if ev.StageCounter != 3 {
			t.Errorf("result %q: expected counter 3, got %d", tt.result, ev.StageCounter)
		}
	}
}

func TestNormalizePipelineTerminalStageWhitelist(t *testing.T) {
	n := NewNormalizer([]string{"production"})

	ev, err := n.NormalizePipeline(pipelinePayload("production", "1", "Passed"))
	if err != nil {
		t.Fatal(err)
	}
	if !ev.IsTerminalStage {
		t.Error("expected production stage to be terminal")
	}

	ev, err = n.NormalizePipeline(pipelinePayload("build", "1", "Passed"))
	if err != nil {
		t.Fatal(err)
	}
	if ev.IsTerminalStage {
		t.Error("expected build stage to be non-terminal")
	}
}

func TestNormalizePipelineFiltersNonGitMaterials(t *testing.T) {
	n := NewNormalizer(nil)

	// One git material with modifications (kept), one upstream-pipeline
	// material (dropped), one git material without modifications (dropped).
	raw := `{
	  "pipeline": {
	    "name": "web-deploy",
	    "group": "web",
	    "counter": "12",
	    "stage": {"name": "deploy", "counter": "1", "state": "Passed", "result": "Passed"},
	    "build-cause": [
	      {
	        "material": {"type": "git", "git-configuration": {"url": "https://example.test/acme/ruby-wrapper.git", "branch": "main"}},
	        "modifications": [{"revision": "a1b2c3"}, {"revision": "d4e5f6"}]
	      },
	      {
	        "material": {"type": "pipeline"},
	        "modifications": [{"revision": "zz"}]
	      },
	      {
	        "material": {"type": "git", "git-configuration": {"url": "https://example.test/other.git", "branch": "main"}},
	        "modifications": []
	      }
	    ]
	  }
	}`

	var p PipelinePayload
	if err := json.Unmarshal([]byte(raw), &p); err != nil {
		t.Fatalf("unmarshal payload: %v", err)
	}

	ev, err := n.NormalizePipeline(p)
	if err != nil {
		t.Fatal(err)
	}
	if len(ev.BuildCauses) != 1 {
		t.Fatalf("expected 1 build cause, got %d", len(ev.BuildCauses))
	}
	if ev.BuildCauses[0].Branch != "main" {
		t.Errorf("expected branch main, got %q", ev.BuildCauses[0].Branch)
	}
	revs := ev.Revisions()
	if len(revs) != 2 || revs[0] != "a1b2c3" || revs[1] != "d4e5f6" {
		t.Errorf("expected both modification revisions, got %v", revs)
	}
}

func TestNormalizePipelineMalformed(t *testing.T) {
	n := NewNormalizer(nil)

	if _, err := n.NormalizePipeline(PipelinePayload{}); err == nil {
		t.Error("expected error for missing pipeline and stage names")
	}
	if _, err := n.NormalizePipeline(pipelinePayload("deploy", "not-a-number", "Passed")); err == nil {
		t.Error("expected error for unparseable stage counter")
	}
}
