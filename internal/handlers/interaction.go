package handlers

import (
	"context"
	"encoding/json"
	"net/http"

	"github.com/rs/zerolog"
	"github.com/slack-go/slack"

	"github.com/beaconlabs/deploybeacon/internal/alerting"
	"github.com/beaconlabs/deploybeacon/internal/models"
	"github.com/beaconlabs/deploybeacon/internal/notify"
)

// RangeLister resolves a wrapper-repo range to originating pull requests.
type RangeLister interface {
	ResolveRange(ctx context.Context, head, base string, includeWrapper bool) ([]models.PullRequest, error)
}

// ViewChat is the modal-view slice of the chat transport.
type ViewChat interface {
	OpenView(ctx context.Context, triggerID string, view slack.ModalViewRequest) (string, error)
	UpdateView(ctx context.Context, viewID string, view slack.ModalViewRequest) error
}

// DeployActions are the state-machine entry points behind message buttons.
type DeployActions interface {
	MarkDeployRequested(ctx context.Context, sha string)
	Mute(ctx context.Context, sha string)
	DeployBase(ctx context.Context, refID string) string
}

// HeadFetcher fetches the current head of the wrapper deploy branch.
type HeadFetcher interface {
	GetCommit(ctx context.Context, owner, repo, ref string) (*models.Commit, error)
}

// InteractionHandler processes Slack block actions. The platform gives a
// short ack window, so slow multi-call fetches are acknowledged with a
// placeholder modal first and finished asynchronously; there is no
// cancellation, only fire-and-continue.
type InteractionHandler struct {
	ranges       RangeLister
	chat         ViewChat
	actions      DeployActions
	source       HeadFetcher
	reporter     alerting.Reporter
	logger       zerolog.Logger
	wrapperOwner string
	wrapperRepo  string
	deployBranch string
}

type InteractionHandlerParams struct {
	Ranges       RangeLister
	Chat         ViewChat
	Actions      DeployActions
	Source       HeadFetcher
	Reporter     alerting.Reporter
	Logger       zerolog.Logger
	WrapperOwner string
	WrapperRepo  string
	DeployBranch string
}

func NewInteractionHandler(p InteractionHandlerParams) *InteractionHandler {
	return &InteractionHandler{
		ranges:       p.Ranges,
		chat:         p.Chat,
		actions:      p.Actions,
		source:       p.Source,
		reporter:     p.Reporter,
		logger:       p.Logger.With().Str("handler", "interaction").Logger(),
		wrapperOwner: p.WrapperOwner,
		wrapperRepo:  p.WrapperRepo,
		deployBranch: p.DeployBranch,
	}
}

func (h *InteractionHandler) Handle(w http.ResponseWriter, r *http.Request) {
	if err := r.ParseForm(); err != nil {
		http.Error(w, "Invalid request payload", http.StatusBadRequest)
		return
	}

	var callback slack.InteractionCallback
	if err := json.Unmarshal([]byte(r.FormValue("payload")), &callback); err != nil {
		http.Error(w, "Invalid interaction payload", http.StatusBadRequest)
		return
	}
	if callback.Type != slack.InteractionTypeBlockActions {
		w.WriteHeader(http.StatusOK)
		return
	}

	for _, action := range callback.ActionCallback.BlockActions {
		switch action.ActionID {
		case notify.ActionViewUndeployed:
			h.startUndeployedView(r.Context(), callback.TriggerID, action.Value)
		case notify.ActionDeploy:
			go h.actions.MarkDeployRequested(context.Background(), action.Value)
		case notify.ActionMute:
			go h.actions.Mute(context.Background(), action.Value)
		default:
			h.logger.Debug().Str("action_id", action.ActionID).Msg("unhandled block action")
		}
	}

	w.WriteHeader(http.StatusOK)
}

// startUndeployedView opens the placeholder modal within the ack window,
// then fills it in from a detached task once the multi-call fetch finishes.
func (h *InteractionHandler) startUndeployedView(ctx context.Context, triggerID, baseSHA string) {
	viewID, err := h.chat.OpenView(ctx, triggerID, notify.RenderLoadingView())
	if err != nil {
		h.reporter.Capture(err, "open loading view", map[string]interface{}{"base": baseSHA})
		return
	}

	go h.loadUndeployed(context.Background(), viewID, baseSHA)
}

func (h *InteractionHandler) loadUndeployed(ctx context.Context, viewID, baseSHA string) {
	head, err := h.source.GetCommit(ctx, h.wrapperOwner, h.wrapperRepo, h.deployBranch)
	if err != nil {
		h.reporter.Capture(err, "fetch deploy branch head", map[string]interface{}{"branch": h.deployBranch})
		return
	}

	prs, err := h.ranges.ResolveRange(ctx, head.SHA, h.actions.DeployBase(ctx, baseSHA), true)
	if err != nil {
		// Already captured by the resolver; the user keeps the loading view.
		return
	}

	if err := h.chat.UpdateView(ctx, viewID, notify.RenderUndeployedView(prs)); err != nil {
		h.reporter.Capture(err, "update undeployed view", map[string]interface{}{"view_id": viewID})
	}
}
