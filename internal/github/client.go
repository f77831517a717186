// Package github wraps the GitHub API behind the small source-control
// surface the correlation engine needs: commit fetch, range compare, and
// pull-requests-for-commit, authenticated as a GitHub App installation.
package github

import (
	"context"
	"strings"

	gh "github.com/google/go-github/v66/github"
	"github.com/pkg/errors"

	"github.com/beaconlabs/deploybeacon/internal/models"
)

// Client is an immutable client bound to one installation token.
type Client struct {
	gh *gh.Client
}

func NewClient(c *gh.Client) *Client {
	return &Client{gh: c}
}

// GetCommit fetches a single commit. ref may be a sha or a branch name.
func (c *Client) GetCommit(ctx context.Context, owner, repo, ref string) (*models.Commit, error) {
	commit, _, err := c.gh.Repositories.GetCommit(ctx, owner, repo, ref, nil)
	if err != nil {
		return nil, errors.Wrapf(err, "get commit %s/%s@%s", owner, repo, ref)
	}
	converted := convertCommit(owner, repo, commit)
	return &converted, nil
}

// CompareCommits returns the commits reachable from head but not base.
func (c *Client) CompareCommits(ctx context.Context, owner, repo, base, head string) ([]models.Commit, error) {
	comparison, _, err := c.gh.Repositories.CompareCommits(ctx, owner, repo, base, head, nil)
	if err != nil {
		return nil, errors.Wrapf(err, "compare %s/%s %s..%s", owner, repo, base, head)
	}
	commits := make([]models.Commit, 0, len(comparison.Commits))
	for _, commit := range comparison.Commits {
		commits = append(commits, convertCommit(owner, repo, commit))
	}
	return commits, nil
}

// PullRequestsForCommit lists the pull requests associated with a commit.
// All of them are returned; truncation to the first one is the range
// resolver's documented decision, not the client's.
func (c *Client) PullRequestsForCommit(ctx context.Context, owner, repo, sha string) ([]models.PullRequest, error) {
	prs, _, err := c.gh.PullRequests.ListPullRequestsWithCommit(ctx, owner, repo, sha, nil)
	if err != nil {
		return nil, errors.Wrapf(err, "list pull requests for %s/%s@%s", owner, repo, sha)
	}
	converted := make([]models.PullRequest, 0, len(prs))
	for _, pr := range prs {
		converted = append(converted, models.PullRequest{
			Number:      pr.GetNumber(),
			Title:       pr.GetTitle(),
			HTMLURL:     pr.GetHTMLURL(),
			AuthorLogin: pr.GetUser().GetLogin(),
			RepoID:      owner + "/" + repo,
		})
	}
	return converted, nil
}

func convertCommit(owner, repo string, rc *gh.RepositoryCommit) models.Commit {
	message := rc.GetCommit().GetMessage()
	title, body, _ := strings.Cut(message, "\n")
	var bodyLines []string
	if body != "" {
		for _, line := range strings.Split(body, "\n") {
			bodyLines = append(bodyLines, strings.TrimRight(line, "\r"))
		}
	}

	displayName := rc.GetCommit().GetAuthor().GetName()
	if displayName == "" {
		displayName = rc.GetAuthor().GetLogin()
	}

	return models.Commit{
		SHA:               rc.GetSHA(),
		RepoID:            owner + "/" + repo,
		AuthorLogin:       rc.GetAuthor().GetLogin(),
		AuthorEmail:       rc.GetCommit().GetAuthor().GetEmail(),
		AuthorDisplayName: displayName,
		CommitterID:       rc.GetCommitter().GetID(),
		CommitterEmail:    rc.GetCommit().GetCommitter().GetEmail(),
		Title:             strings.TrimSpace(title),
		BodyLines:         bodyLines,
		HTMLURL:           rc.GetHTMLURL(),
		AvatarURL:         rc.GetAuthor().GetAvatarURL(),
	}
}
