package routes

import (
	"net/http"

	"github.com/gorilla/mux"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/beaconlabs/deploybeacon/internal/handlers"
)

// NewRouter sets up the API routes
func NewRouter(webhook *handlers.WebhookHandler, interaction *handlers.InteractionHandler) *mux.Router {
	router := mux.NewRouter()

	// Health check route
	router.HandleFunc("/health", handlers.HealthCheck).Methods(http.MethodGet)
	router.Handle("/metrics", promhttp.Handler()).Methods(http.MethodGet)

	// Webhook intake
	router.HandleFunc("/webhooks/ci", webhook.CICompletion).Methods(http.MethodPost)
	router.HandleFunc("/webhooks/deploy", webhook.SimpleDeploy).Methods(http.MethodPost)
	router.HandleFunc("/webhooks/pipeline", webhook.PipelineStage).Methods(http.MethodPost)

	// Slack interactivity
	router.HandleFunc("/slack/interactions", interaction.Handle).Methods(http.MethodPost)

	return router
}
