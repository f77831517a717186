// Package chat wraps the Slack Web API behind the transport surface the
// notification engine needs: post, in-place update, threaded follow-up,
// modal views, and user lookup by email.
package chat

import (
	"context"
	"encoding/json"
	"time"

	"github.com/pkg/errors"
	"github.com/rs/zerolog"
	"github.com/slack-go/slack"

	"github.com/beaconlabs/deploybeacon/internal/cache"
)

// UserIdentity is a resolved chat identity for a commit author.
type UserIdentity struct {
	ID          string `json:"id"`
	DisplayName string `json:"display_name"`
}

type Client struct {
	api         *slack.Client
	cache       cache.Cache
	identityTTL time.Duration
	logger      zerolog.Logger
}

func NewClient(botToken string, c cache.Cache, identityTTL time.Duration, logger zerolog.Logger) *Client {
	return &Client{
		api:         slack.New(botToken),
		cache:       c,
		identityTTL: identityTTL,
		logger:      logger.With().Str("component", "chat").Logger(),
	}
}

// PostMessage posts a new message and returns the (channel, ts) pair that
// identifies it for later in-place updates.
func (c *Client) PostMessage(ctx context.Context, channel, text string, blocks []slack.Block) (string, string, error) {
	postedChannel, ts, err := c.api.PostMessageContext(ctx, channel,
		slack.MsgOptionText(text, false),
		slack.MsgOptionBlocks(blocks...),
	)
	if err != nil {
		return "", "", errors.Wrap(err, "post message")
	}
	return postedChannel, ts, nil
}

// UpdateMessage rewrites an existing message in place.
func (c *Client) UpdateMessage(ctx context.Context, channel, ts, text string, blocks []slack.Block) error {
	_, _, _, err := c.api.UpdateMessageContext(ctx, channel, ts,
		slack.MsgOptionText(text, false),
		slack.MsgOptionBlocks(blocks...),
	)
	return errors.Wrap(err, "update message")
}

// PostThreadReply posts a follow-up message threaded under ts.
func (c *Client) PostThreadReply(ctx context.Context, channel, ts, text string) error {
	_, _, err := c.api.PostMessageContext(ctx, channel,
		slack.MsgOptionText(text, false),
		slack.MsgOptionTS(ts),
	)
	return errors.Wrap(err, "post thread reply")
}

// OpenView opens a modal against an interaction trigger id and returns the
// view id for later updates.
func (c *Client) OpenView(ctx context.Context, triggerID string, view slack.ModalViewRequest) (string, error) {
	resp, err := c.api.OpenViewContext(ctx, triggerID, view)
	if err != nil {
		return "", errors.Wrap(err, "open view")
	}
	return resp.View.ID, nil
}

// UpdateView replaces the contents of an open modal.
func (c *Client) UpdateView(ctx context.Context, viewID string, view slack.ModalViewRequest) error {
	_, err := c.api.UpdateViewContext(ctx, view, "", "", viewID)
	return errors.Wrap(err, "update view")
}

// UserByEmail resolves a commit author's email to a chat identity. Results
// are cached; identities change rarely and a stale hit only mis-addresses a
// display name, never a user id.
func (c *Client) UserByEmail(ctx context.Context, email string) (UserIdentity, error) {
	cacheKey := "chatuser:" + email
	if raw, ok := c.cache.Get(ctx, cacheKey); ok {
		var identity UserIdentity
		if err := json.Unmarshal([]byte(raw), &identity); err == nil {
			return identity, nil
		}
	}

	user, err := c.api.GetUserByEmailContext(ctx, email)
	if err != nil {
		return UserIdentity{}, errors.Wrapf(err, "lookup user %s", email)
	}

	displayName := user.Profile.DisplayName
	if displayName == "" {
		displayName = user.RealName
	}
	identity := UserIdentity{ID: user.ID, DisplayName: displayName}

	if raw, err := json.Marshal(identity); err == nil {
		c.cache.Set(ctx, cacheKey, string(raw), c.identityTTL)
	}
	return identity, nil
}
