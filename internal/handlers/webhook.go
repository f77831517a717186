package handlers

import (
	"context"
	"encoding/json"
	"net/http"

	"github.com/rs/zerolog"

	"github.com/beaconlabs/deploybeacon/internal/alerting"
	"github.com/beaconlabs/deploybeacon/internal/deploy"
	"github.com/beaconlabs/deploybeacon/internal/metrics"
	"github.com/beaconlabs/deploybeacon/internal/models"
)

// Notifier is the slice of the state machine the webhook handler drives.
type Notifier interface {
	HandleCICompletion(ctx context.Context, ev models.CICompletionEvent)
	HandleDeployStageEvent(ctx context.Context, ev models.DeployStageEvent)
}

// WebhookHandler accepts the three inbound webhook shapes. Each event is
// handed to an independent task and the webhook is acknowledged immediately;
// the transport offers no ordering guarantee anyway, so there is nothing to
// gain from processing inline.
type WebhookHandler struct {
	notifier   Notifier
	normalizer *deploy.Normalizer
	reporter   alerting.Reporter
	metrics    *metrics.Metrics
	logger     zerolog.Logger
}

func NewWebhookHandler(notifier Notifier, normalizer *deploy.Normalizer, reporter alerting.Reporter, m *metrics.Metrics, logger zerolog.Logger) *WebhookHandler {
	return &WebhookHandler{
		notifier:   notifier,
		normalizer: normalizer,
		reporter:   reporter,
		metrics:    m,
		logger:     logger.With().Str("handler", "webhook").Logger(),
	}
}

// CICompletion handles the check-suite webhook from the wrapper repository.
func (h *WebhookHandler) CICompletion(w http.ResponseWriter, r *http.Request) {
	var payload struct {
		Action     string `json:"action"`
		CheckSuite struct {
			HeadSHA    string `json:"head_sha"`
			HeadBranch string `json:"head_branch"`
			Conclusion string `json:"conclusion"`
		} `json:"check_suite"`
	}
	if err := json.NewDecoder(r.Body).Decode(&payload); err != nil {
		http.Error(w, "Invalid request payload", http.StatusBadRequest)
		return
	}
	if payload.Action != "completed" {
		h.countEvent("ci", "ignored")
		writeJSON(w, http.StatusAccepted, map[string]string{"status": "ignored"})
		return
	}

	ev := models.CICompletionEvent{
		SHA:        payload.CheckSuite.HeadSHA,
		Branch:     payload.CheckSuite.HeadBranch,
		Conclusion: payload.CheckSuite.Conclusion,
	}
	// Detach from the request context: webhook senders time out fast and a
	// cancelled request must not abandon a half-applied notification.
	go h.notifier.HandleCICompletion(context.Background(), ev)

	h.countEvent("ci", "accepted")
	writeJSON(w, http.StatusAccepted, map[string]string{"status": "accepted"})
}

// SimpleDeploy handles the flat deploy payload family.
func (h *WebhookHandler) SimpleDeploy(w http.ResponseWriter, r *http.Request) {
	var payload deploy.SimpleDeployPayload
	if err := json.NewDecoder(r.Body).Decode(&payload); err != nil {
		http.Error(w, "Invalid request payload", http.StatusBadRequest)
		return
	}

	ev, err := h.normalizer.NormalizeSimple(payload)
	if err != nil {
		// Malformed payloads are reported but never surface to a user.
		h.reporter.Capture(err, "malformed simple deploy payload", map[string]interface{}{
			"deploy_id": payload.ID,
			"status":    payload.Status,
		})
		h.countEvent("deploy_simple", "malformed")
		writeJSON(w, http.StatusAccepted, map[string]string{"status": "ignored"})
		return
	}

	go h.notifier.HandleDeployStageEvent(context.Background(), ev)
	h.countEvent("deploy_simple", "accepted")
	writeJSON(w, http.StatusAccepted, map[string]string{"status": "accepted"})
}

// PipelineStage handles the staged-pipeline payload family.
func (h *WebhookHandler) PipelineStage(w http.ResponseWriter, r *http.Request) {
	var payload deploy.PipelinePayload
	if err := json.NewDecoder(r.Body).Decode(&payload); err != nil {
		http.Error(w, "Invalid request payload", http.StatusBadRequest)
		return
	}

	ev, err := h.normalizer.NormalizePipeline(payload)
	if err != nil {
		h.reporter.Capture(err, "malformed pipeline payload", map[string]interface{}{
			"pipeline": payload.Pipeline.Name,
			"stage":    payload.Pipeline.Stage.Name,
		})
		h.countEvent("deploy_pipeline", "malformed")
		writeJSON(w, http.StatusAccepted, map[string]string{"status": "ignored"})
		return
	}

	go h.notifier.HandleDeployStageEvent(context.Background(), ev)
	h.countEvent("deploy_pipeline", "accepted")
	writeJSON(w, http.StatusAccepted, map[string]string{"status": "accepted"})
}

func (h *WebhookHandler) countEvent(kind, outcome string) {
	if h.metrics != nil {
		h.metrics.WebhookEvents.WithLabelValues(kind, outcome).Inc()
	}
}
