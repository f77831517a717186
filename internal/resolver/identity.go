package resolver

import "github.com/beaconlabs/deploybeacon/internal/models"

// IdentityMatcher decides whether a wrapper-repo commit is a bot-authored
// sync commit. Committer identity is the only signal; there is no
// cryptographic or webhook-origin verification.
type IdentityMatcher interface {
	IsSyncCommit(c models.Commit) bool
}

// BotIdentity matches the bump bot by numeric user id or by its fixed
// service email.
type BotIdentity struct {
	UserID int64
	Email  string
}

func NewBotIdentity(userID int64, email string) BotIdentity {
	return BotIdentity{UserID: userID, Email: email}
}

func (b BotIdentity) IsSyncCommit(c models.Commit) bool {
	if b.UserID != 0 && c.CommitterID == b.UserID {
		return true
	}
	return b.Email != "" && c.CommitterEmail == b.Email
}
