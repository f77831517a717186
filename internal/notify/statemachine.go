// Package notify is the correlation core: it decides, per tracked commit,
// whether to create, update, or ignore a notification, and keeps exactly one
// chat message per logical deploy unit as it moves through the lifecycle.
package notify

import (
	"context"
	"time"

	"github.com/pkg/errors"
	"github.com/rs/zerolog"
	"github.com/slack-go/slack"

	"github.com/beaconlabs/deploybeacon/internal/alerting"
	"github.com/beaconlabs/deploybeacon/internal/chat"
	"github.com/beaconlabs/deploybeacon/internal/metrics"
	"github.com/beaconlabs/deploybeacon/internal/models"
	"github.com/beaconlabs/deploybeacon/internal/repository"
)

// Chat is the slice of the chat transport the state machine uses.
type Chat interface {
	PostMessage(ctx context.Context, channel, text string, blocks []slack.Block) (string, string, error)
	UpdateMessage(ctx context.Context, channel, ts, text string, blocks []slack.Block) error
	PostThreadReply(ctx context.Context, channel, ts, text string) error
	UserByEmail(ctx context.Context, email string) (chat.UserIdentity, error)
}

// CommitResolver resolves a wrapper ref to the relevant commit.
type CommitResolver interface {
	Resolve(ctx context.Context, ref string) (*models.Commit, error)
}

type StateMachine struct {
	store     repository.NotificationRepository
	queued    repository.QueuedCommitRepository
	chat      Chat
	commits   CommitResolver
	reporter  alerting.Reporter
	metrics   *metrics.Metrics
	logger    zerolog.Logger
	branch    string
	queuedTTL time.Duration
}

type StateMachineParams struct {
	Store     repository.NotificationRepository
	Queued    repository.QueuedCommitRepository
	Chat      Chat
	Commits   CommitResolver
	Reporter  alerting.Reporter
	Metrics   *metrics.Metrics
	Logger    zerolog.Logger
	Branch    string
	QueuedTTL time.Duration
}

func NewStateMachine(p StateMachineParams) *StateMachine {
	return &StateMachine{
		store:     p.Store,
		queued:    p.Queued,
		chat:      p.Chat,
		commits:   p.Commits,
		reporter:  p.Reporter,
		metrics:   p.Metrics,
		logger:    p.Logger.With().Str("component", "state_machine").Logger(),
		branch:    p.Branch,
		queuedTTL: p.QueuedTTL,
	}
}

// HandleCICompletion processes a CI-completion event. A qualifying success
// on the deploy branch, for a resolvable commit with a resolvable chat
// identity, produces exactly one new notification; everything else is a
// silent skip. A deploy already in flight for the commit downgrades the
// initial content from "ready to deploy" to the in-flight phase.
func (m *StateMachine) HandleCICompletion(ctx context.Context, ev models.CICompletionEvent) {
	if ev.Conclusion != "success" || ev.Branch != m.branch {
		return
	}

	commit, err := m.commits.Resolve(ctx, ev.SHA)
	if err != nil {
		// Already captured by the resolver; cannot notify, skip.
		return
	}

	if _, err := m.store.FindByRefID(ctx, commit.SHA, models.NotificationTypeDeploy); err == nil {
		return
	} else if !errors.Is(err, repository.ErrNotFound) {
		m.reporter.Capture(err, "lookup notification record", map[string]interface{}{"sha": commit.SHA})
		return
	}

	if commit.AuthorEmail == "" {
		m.logger.Debug().Str("sha", commit.SHA).Msg("commit has no author email, skipping")
		return
	}
	user, err := m.chat.UserByEmail(ctx, commit.AuthorEmail)
	if err != nil {
		m.reporter.Capture(err, "resolve chat identity", map[string]interface{}{
			"sha":   commit.SHA,
			"email": commit.AuthorEmail,
		})
		return
	}

	status := models.StatusReadyToDeploy
	if inflight, err := m.queued.Exists(ctx, commit.SHA, m.queuedTTL); err != nil {
		m.reporter.Capture(err, "check queued marker", map[string]interface{}{"sha": commit.SHA})
	} else if inflight {
		status = models.StatusQueued
	}

	msg := Render(*commit, status, TargetUser{ID: user.ID, DisplayName: user.DisplayName})
	channel, ts, err := m.chat.PostMessage(ctx, user.ID, msg.Text, msg.Blocks)
	if err != nil {
		m.reporter.Capture(err, "post deploy notification", map[string]interface{}{"sha": commit.SHA})
		return
	}

	_, err = m.store.Create(ctx, repository.CreateNotificationParams{
		RefID:     commit.SHA,
		Type:      models.NotificationTypeDeploy,
		Channel:   channel,
		MessageTS: ts,
		Context: map[string]interface{}{
			"status":        status,
			"target_user":   user.ID,
			"wrapper_sha":   ev.SHA,
			"text":          msg.Text,
			"stage_counter": 0,
			"commit":        commit,
		},
	})
	if err != nil {
		// Message is already sent; a lost record means at worst a stale
		// notification later, never a duplicate send now.
		m.reporter.Capture(err, "persist notification record", map[string]interface{}{"sha": commit.SHA})
	}
	if m.metrics != nil {
		m.metrics.NotificationsCreated.Inc()
	}
	m.logger.Info().Str("sha", commit.SHA).Str("user", user.ID).Str("status", string(status)).Msg("notification created")
}

// HandleDeployStageEvent applies a normalized stage event to every tracked
// commit it names. Deploy events only ever update pre-existing
// notifications; an unnotified commit deploys without a message.
func (m *StateMachine) HandleDeployStageEvent(ctx context.Context, ev models.DeployStageEvent) {
	for _, sha := range ev.Revisions() {
		m.applyStageEvent(ctx, sha, ev)
	}
}

func (m *StateMachine) applyStageEvent(ctx context.Context, sha string, ev models.DeployStageEvent) {
	record, err := m.store.FindByRefID(ctx, sha, models.NotificationTypeDeploy)
	if errors.Is(err, repository.ErrNotFound) {
		// Normal case, not an error. Leave a queue marker so a CI event
		// arriving later doesn't offer "ready to deploy" mid-flight.
		if ev.Phase == models.PhaseQueued || ev.Phase == models.PhaseInProgress {
			if err := m.queued.Put(ctx, sha); err != nil {
				m.reporter.Capture(err, "record queued marker", map[string]interface{}{"sha": sha})
			}
		}
		return
	}
	if err != nil {
		m.reporter.Capture(err, "lookup notification record", map[string]interface{}{"sha": sha})
		return
	}

	rc := record.DecodeContext()
	if rc.Status == models.StatusDeployed {
		return
	}
	if staleEvent(rc, ev) {
		if m.metrics != nil {
			m.metrics.StaleEventsSkipped.Inc()
		}
		m.logger.Debug().
			Str("sha", sha).
			Str("stage", ev.StageName).
			Int("counter", ev.StageCounter).
			Msg("stale stage event skipped")
		return
	}

	status := statusForStageEvent(ev)
	text := rc.Text

	// Chat update, persistence, and marker cleanup are independent failure
	// domains: one failing must not suppress the others.
	if !rc.Muted && rc.Commit != nil {
		msg := Render(*rc.Commit, status, TargetUser{ID: rc.TargetUser})
		text = msg.Text
		if err := m.chat.UpdateMessage(ctx, record.Channel, record.MessageTS, msg.Text, msg.Blocks); err != nil {
			m.reporter.Capture(err, "update deploy notification", map[string]interface{}{"sha": sha})
		}
		if status == models.StatusDeployed {
			follow := RenderFollowUp(*rc.Commit)
			if err := m.chat.PostThreadReply(ctx, record.Channel, record.MessageTS, follow.Text); err != nil {
				m.reporter.Capture(err, "post deploy follow-up", map[string]interface{}{"sha": sha})
			}
		}
	}

	_, err = m.store.UpdateContext(ctx, record.ID, map[string]interface{}{
		"status":        status,
		"phase":         ev.Phase,
		"stage_name":    ev.StageName,
		"stage_counter": ev.StageCounter,
		"text":          text,
	})
	if err != nil {
		m.reporter.Capture(err, "persist notification update", map[string]interface{}{"sha": sha})
	} else if m.metrics != nil {
		m.metrics.NotificationsUpdated.Inc()
	}

	if status == models.StatusDeployed || status == models.StatusFailed {
		if err := m.queued.Delete(ctx, sha); err != nil {
			m.reporter.Capture(err, "clear queued marker", map[string]interface{}{"sha": sha})
		}
	}
}

// MarkDeployRequested records that a user asked for a deploy from the
// message's Deploy button: the commit gets a queue marker and the message
// flips to queued ahead of the first pipeline event.
func (m *StateMachine) MarkDeployRequested(ctx context.Context, sha string) {
	if err := m.queued.Put(ctx, sha); err != nil {
		m.reporter.Capture(err, "record queued marker", map[string]interface{}{"sha": sha})
	}

	record, err := m.store.FindByRefID(ctx, sha, models.NotificationTypeDeploy)
	if err != nil {
		if !errors.Is(err, repository.ErrNotFound) {
			m.reporter.Capture(err, "lookup notification record", map[string]interface{}{"sha": sha})
		}
		return
	}

	rc := record.DecodeContext()
	if rc.Status != models.StatusReadyToDeploy {
		return
	}

	text := rc.Text
	if !rc.Muted && rc.Commit != nil {
		msg := Render(*rc.Commit, models.StatusQueued, TargetUser{ID: rc.TargetUser})
		text = msg.Text
		if err := m.chat.UpdateMessage(ctx, record.Channel, record.MessageTS, msg.Text, msg.Blocks); err != nil {
			m.reporter.Capture(err, "update deploy notification", map[string]interface{}{"sha": sha})
		}
	}
	if _, err := m.store.UpdateContext(ctx, record.ID, map[string]interface{}{
		"status": models.StatusQueued,
		"text":   text,
	}); err != nil {
		m.reporter.Capture(err, "persist notification update", map[string]interface{}{"sha": sha})
	}
}

// DeployBase maps a tracked ref back to the wrapper-repo sha it was
// notified from, for range comparisons. A bump commit's ref id names the
// upstream repo, which the wrapper-repo compare endpoint does not know.
func (m *StateMachine) DeployBase(ctx context.Context, refID string) string {
	record, err := m.store.FindByRefID(ctx, refID, models.NotificationTypeDeploy)
	if err != nil {
		return refID
	}
	if rc := record.DecodeContext(); rc.WrapperSHA != "" {
		return rc.WrapperSHA
	}
	return refID
}

// Mute stops further chat updates for a commit's notification. State keeps
// being tracked so an unmute could resume from the freshest phase.
func (m *StateMachine) Mute(ctx context.Context, sha string) {
	record, err := m.store.FindByRefID(ctx, sha, models.NotificationTypeDeploy)
	if err != nil {
		if !errors.Is(err, repository.ErrNotFound) {
			m.reporter.Capture(err, "lookup notification record", map[string]interface{}{"sha": sha})
		}
		return
	}
	if _, err := m.store.UpdateContext(ctx, record.ID, map[string]interface{}{"muted": true}); err != nil {
		m.reporter.Capture(err, "persist mute", map[string]interface{}{"sha": sha})
	}
}

// staleEvent is the monotonicity guard: a redelivered or reordered event
// must not overwrite a later state. A stage counter counts re-runs of one
// stage, so it only orders events against the stage the record last saw; an
// event from a different stage is the pipeline moving on and always applies.
// Within one stage, counter orders first, then phase rank, except that a
// failed unit accepts fresh queued/in-progress phases (retry).
func staleEvent(rc models.RecordContext, ev models.DeployStageEvent) bool {
	if rc.Phase == "" {
		return false
	}
	if ev.StageName != rc.StageName {
		return false
	}
	if ev.StageCounter != rc.StageCounter {
		return ev.StageCounter < rc.StageCounter
	}
	if rc.Status == models.StatusFailed &&
		(ev.Phase == models.PhaseQueued || ev.Phase == models.PhaseInProgress) {
		return false
	}
	return models.PhaseRank(ev.Phase) <= models.PhaseRank(rc.Phase)
}

func statusForStageEvent(ev models.DeployStageEvent) models.Status {
	switch ev.Phase {
	case models.PhaseQueued:
		return models.StatusQueued
	case models.PhaseInProgress:
		return models.StatusInProgress
	case models.PhaseDone:
		if ev.IsTerminalStage {
			return models.StatusDeployed
		}
		// An intermediate stage passing means the pipeline is still moving.
		return models.StatusInProgress
	case models.PhaseFailed, models.PhaseCancelled:
		return models.StatusFailed
	default:
		return models.StatusInProgress
	}
}
