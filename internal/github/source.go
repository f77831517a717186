package github

import (
	"context"

	"github.com/beaconlabs/deploybeacon/internal/models"
)

// Source adapts the two-phase factory to the resolver's per-call view: every
// operation binds a fresh installation client first. Bind is backed by the
// token cache, so the common case costs one cache read.
type Source struct {
	auth *AppAuth
	org  string
}

func NewSource(auth *AppAuth, org string) *Source {
	return &Source{auth: auth, org: org}
}

func (s *Source) GetCommit(ctx context.Context, owner, repo, ref string) (*models.Commit, error) {
	client, err := s.auth.Bind(ctx, s.org)
	if err != nil {
		return nil, err
	}
	return client.GetCommit(ctx, owner, repo, ref)
}

func (s *Source) CompareCommits(ctx context.Context, owner, repo, base, head string) ([]models.Commit, error) {
	client, err := s.auth.Bind(ctx, s.org)
	if err != nil {
		return nil, err
	}
	return client.CompareCommits(ctx, owner, repo, base, head)
}

func (s *Source) PullRequestsForCommit(ctx context.Context, owner, repo, sha string) ([]models.PullRequest, error) {
	client, err := s.auth.Bind(ctx, s.org)
	if err != nil {
		return nil, err
	}
	return client.PullRequestsForCommit(ctx, owner, repo, sha)
}
