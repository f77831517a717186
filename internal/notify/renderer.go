package notify

import (
	"fmt"
	"strings"

	"github.com/slack-go/slack"

	"github.com/beaconlabs/deploybeacon/internal/models"
)

// Action ids carried by the rendered buttons; the interaction handler
// dispatches on these.
const (
	ActionDeploy         = "deploy_commit"
	ActionViewUndeployed = "view_undeployed"
	ActionMute           = "mute_notifications"
)

const maxBodyLines = 6

// Message is rendered display content: plain-text fallback plus block kit
// layout.
type Message struct {
	Text   string
	Blocks []slack.Block
}

// TargetUser is the chat identity a notification addresses.
type TargetUser struct {
	ID          string
	DisplayName string
}

// Render turns (commit, status) into display content. It is pure: no I/O,
// no clock, deterministic for a given input.
func Render(commit models.Commit, status models.Status, target TargetUser) Message {
	text := statusLine(commit, status)

	blocks := []slack.Block{
		slack.NewSectionBlock(slack.NewTextBlockObject(slack.MarkdownType, text, false, false), nil, nil),
		slack.NewSectionBlock(slack.NewTextBlockObject(slack.MarkdownType, commitSummary(commit), false, false), nil, nil),
		authorContext(commit),
	}

	if status == models.StatusReadyToDeploy {
		blocks = append(blocks, actionButtons(commit))
	}

	return Message{Text: text, Blocks: blocks}
}

// RenderFollowUp is the short threaded reply posted once when the final
// stage completes, surfacing release-verification info without growing the
// original message.
func RenderFollowUp(commit models.Commit) Message {
	text := fmt.Sprintf("`%s` is live. Verify your change: %s", commit.ShortSHA(), commit.HTMLURL)
	return Message{Text: text}
}

// RenderLoadingView is the placeholder modal shown inside the interaction
// ack window while the undeployed-commit fetch runs.
func RenderLoadingView() slack.ModalViewRequest {
	return slack.ModalViewRequest{
		Type:  slack.VTModal,
		Title: slack.NewTextBlockObject(slack.PlainTextType, "Undeployed commits", false, false),
		Close: slack.NewTextBlockObject(slack.PlainTextType, "Close", false, false),
		Blocks: slack.Blocks{BlockSet: []slack.Block{
			slack.NewSectionBlock(
				slack.NewTextBlockObject(slack.MarkdownType, "Loading undeployed commits…", false, false),
				nil, nil,
			),
		}},
	}
}

// RenderUndeployedView lists the pull requests waiting to be deployed.
func RenderUndeployedView(prs []models.PullRequest) slack.ModalViewRequest {
	var blockSet []slack.Block
	if len(prs) == 0 {
		blockSet = append(blockSet, slack.NewSectionBlock(
			slack.NewTextBlockObject(slack.MarkdownType, "Everything is deployed.", false, false),
			nil, nil,
		))
	}
	for _, pr := range prs {
		line := fmt.Sprintf("<%s|#%d %s> — %s", pr.HTMLURL, pr.Number, pr.Title, pr.RepoID)
		blockSet = append(blockSet, slack.NewSectionBlock(
			slack.NewTextBlockObject(slack.MarkdownType, line, false, false),
			nil, nil,
		))
	}

	return slack.ModalViewRequest{
		Type:   slack.VTModal,
		Title:  slack.NewTextBlockObject(slack.PlainTextType, "Undeployed commits", false, false),
		Close:  slack.NewTextBlockObject(slack.PlainTextType, "Close", false, false),
		Blocks: slack.Blocks{BlockSet: blockSet},
	}
}

func statusLine(commit models.Commit, status models.Status) string {
	sha := commit.ShortSHA()
	switch status {
	case models.StatusReadyToDeploy:
		return fmt.Sprintf("Your commit `%s` is ready to deploy.", sha)
	case models.StatusQueued:
		return fmt.Sprintf("Your commit `%s` is queued for deploy.", sha)
	case models.StatusInProgress:
		return fmt.Sprintf("Your commit `%s` is being deployed.", sha)
	case models.StatusDeployed:
		return fmt.Sprintf("Your commit `%s` has been deployed.", sha)
	case models.StatusFailed:
		return fmt.Sprintf("Your commit `%s` failed to deploy.", sha)
	default:
		return fmt.Sprintf("Your commit `%s` changed state.", sha)
	}
}

func commitSummary(commit models.Commit) string {
	summary := fmt.Sprintf("*<%s|%s>*", commit.HTMLURL, commit.Title)
	body := commit.BodyLines
	if len(body) > maxBodyLines {
		body = body[:maxBodyLines]
	}
	if len(body) > 0 {
		summary += "\n" + strings.Join(body, "\n")
	}
	return summary
}

func authorContext(commit models.Commit) slack.Block {
	var elements []slack.MixedElement
	if commit.AvatarURL != "" {
		elements = append(elements, slack.NewImageBlockElement(commit.AvatarURL, commit.AuthorDisplayName))
	}
	elements = append(elements, slack.NewTextBlockObject(slack.MarkdownType,
		fmt.Sprintf("%s · %s", commit.AuthorDisplayName, commit.RepoID), false, false))
	return slack.NewContextBlock("", elements...)
}

func actionButtons(commit models.Commit) slack.Block {
	deploy := slack.NewButtonBlockElement(ActionDeploy, commit.SHA,
		slack.NewTextBlockObject(slack.PlainTextType, "Deploy", false, false))
	deploy.Style = slack.StylePrimary
	undeployed := slack.NewButtonBlockElement(ActionViewUndeployed, commit.SHA,
		slack.NewTextBlockObject(slack.PlainTextType, "View undeployed", false, false))
	mute := slack.NewButtonBlockElement(ActionMute, commit.SHA,
		slack.NewTextBlockObject(slack.PlainTextType, "Mute", false, false))
	// Interaction callbacks are only classified as block actions when the
	// action carries a block id, so set one explicitly.
	return slack.NewActionBlock("deploy_actions", deploy, undeployed, mute)
}
