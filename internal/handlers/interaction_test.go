package handlers

import (
	"context"
	"net/http"
	"net/http/httptest"
	"net/url"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/slack-go/slack"

	"github.com/beaconlabs/deploybeacon/internal/models"
	"github.com/beaconlabs/deploybeacon/internal/notify"
)

type fakeViewChat struct {
	mu      sync.Mutex
	opened  []string // trigger ids
	updated chan slack.ModalViewRequest
}

func newFakeViewChat() *fakeViewChat {
	return &fakeViewChat{updated: make(chan slack.ModalViewRequest, 1)}
}

func (f *fakeViewChat) OpenView(_ context.Context, triggerID string, _ slack.ModalViewRequest) (string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.opened = append(f.opened, triggerID)
	return "V001", nil
}

func (f *fakeViewChat) UpdateView(_ context.Context, viewID string, view slack.ModalViewRequest) error {
	f.updated <- view
	return nil
}

type fakeActions struct {
	mu        sync.Mutex
	requested []string
	muted     []string
	done      chan struct{}
}

func newFakeActions() *fakeActions {
	return &fakeActions{done: make(chan struct{}, 2)}
}

func (f *fakeActions) MarkDeployRequested(_ context.Context, sha string) {
	f.mu.Lock()
	f.requested = append(f.requested, sha)
	f.mu.Unlock()
	f.done <- struct{}{}
}

func (f *fakeActions) Mute(_ context.Context, sha string) {
	f.mu.Lock()
	f.muted = append(f.muted, sha)
	f.mu.Unlock()
	f.done <- struct{}{}
}

func (f *fakeActions) DeployBase(_ context.Context, refID string) string {
	return "wrapper-" + refID
}

type fakeRanges struct {
	mu    sync.Mutex
	calls []struct{ head, base string }
	prs   []models.PullRequest
}

func (f *fakeRanges) ResolveRange(_ context.Context, head, base string, includeWrapper bool) ([]models.PullRequest, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls = append(f.calls, struct{ head, base string }{head, base})
	return f.prs, nil
}

type fakeHead struct {
	sha string
}

func (f *fakeHead) GetCommit(_ context.Context, owner, repo, ref string) (*models.Commit, error) {
	return &models.Commit{SHA: f.sha, RepoID: owner + "/" + repo}, nil
}

type interactionFixture struct {
	handler *InteractionHandler
	chat    *fakeViewChat
	actions *fakeActions
	ranges  *fakeRanges
}

func newInteractionFixture() *interactionFixture {
	chatFake := newFakeViewChat()
	actions := newFakeActions()
	ranges := &fakeRanges{prs: []models.PullRequest{{Number: 101, Title: "Fix flaky spec", RepoID: "acme/ruby"}}}
	handler := NewInteractionHandler(InteractionHandlerParams{
		Ranges:       ranges,
		Chat:         chatFake,
		Actions:      actions,
		Source:       &fakeHead{sha: "headsha"},
		Reporter:     silentReporter{},
		Logger:       zerolog.Nop(),
		WrapperOwner: "acme",
		WrapperRepo:  "ruby-wrapper",
		DeployBranch: "main",
	})
	return &interactionFixture{handler: handler, chat: chatFake, actions: actions, ranges: ranges}
}

func postInteraction(t *testing.T, handler *InteractionHandler, payload string) *httptest.ResponseRecorder {
	t.Helper()
	form := url.Values{"payload": {payload}}
	req := httptest.NewRequest(http.MethodPost, "/slack/interactions", strings.NewReader(form.Encode()))
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	rr := httptest.NewRecorder()
	handler.Handle(rr, req)
	return rr
}

func blockActionPayload(actionID, value string) string {
	// A block_id is what marks an action as a block action when the callback
	// is parsed; real payloads always carry one.
	return `{
	  "type": "block_actions",
	  "trigger_id": "T123",
	  "actions": [{"block_id": "deploy_actions", "action_id": "` + actionID + `", "value": "` + value + `"}]
	}`
}

func TestInteractionViewUndeployedOpensThenFillsModal(t *testing.T) {
	f := newInteractionFixture()

	rr := postInteraction(t, f.handler, blockActionPayload(notify.ActionViewUndeployed, "basesha"))
	if rr.Code != http.StatusOK {
		t.Fatalf("expected 200 ack, got %d", rr.Code)
	}
	if len(f.chat.opened) != 1 || f.chat.opened[0] != "T123" {
		t.Fatalf("expected loading view opened with trigger id, got %v", f.chat.opened)
	}

	select {
	case view := <-f.chat.updated:
		if len(view.Blocks.BlockSet) != 1 {
			t.Errorf("expected one PR block in filled view, got %d", len(view.Blocks.BlockSet))
		}
	case <-time.After(time.Second):
		t.Fatal("timed out waiting for async view update")
	}

	f.ranges.mu.Lock()
	defer f.ranges.mu.Unlock()
	if len(f.ranges.calls) != 1 {
		t.Fatalf("expected one range resolution, got %d", len(f.ranges.calls))
	}
	// Head is the deploy branch tip; base is translated back to the wrapper sha.
	if f.ranges.calls[0].head != "headsha" || f.ranges.calls[0].base != "wrapper-basesha" {
		t.Errorf("unexpected range %+v", f.ranges.calls[0])
	}
}

func TestInteractionDeployButton(t *testing.T) {
	f := newInteractionFixture()

	rr := postInteraction(t, f.handler, blockActionPayload(notify.ActionDeploy, "abc123"))
	if rr.Code != http.StatusOK {
		t.Fatalf("expected 200 ack, got %d", rr.Code)
	}
	select {
	case <-f.actions.done:
	case <-time.After(time.Second):
		t.Fatal("timed out waiting for deploy request")
	}
	f.actions.mu.Lock()
	defer f.actions.mu.Unlock()
	if len(f.actions.requested) != 1 || f.actions.requested[0] != "abc123" {
		t.Errorf("unexpected deploy requests %v", f.actions.requested)
	}
}

func TestInteractionMuteButton(t *testing.T) {
	f := newInteractionFixture()

	postInteraction(t, f.handler, blockActionPayload(notify.ActionMute, "abc123"))
	select {
	case <-f.actions.done:
	case <-time.After(time.Second):
		t.Fatal("timed out waiting for mute")
	}
	f.actions.mu.Lock()
	defer f.actions.mu.Unlock()
	if len(f.actions.muted) != 1 || f.actions.muted[0] != "abc123" {
		t.Errorf("unexpected mutes %v", f.actions.muted)
	}
}

func TestInteractionIgnoresOtherCallbackTypes(t *testing.T) {
	f := newInteractionFixture()

	rr := postInteraction(t, f.handler, `{"type":"view_submission"}`)
	if rr.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rr.Code)
	}
	if len(f.chat.opened) != 0 {
		t.Errorf("expected no views opened, got %v", f.chat.opened)
	}
}

func TestInteractionRejectsMalformedPayload(t *testing.T) {
	f := newInteractionFixture()

	rr := postInteraction(t, f.handler, "{not json")
	if rr.Code != http.StatusBadRequest {
		t.Errorf("expected 400, got %d", rr.Code)
	}
}
