// Package resolver answers what a wrapper-repo commit really represents:
// either itself, or the upstream commit a bot-authored bump commit pins.
package resolver

import (
	"context"
	"regexp"
	"strings"

	"github.com/rs/zerolog"

	"github.com/beaconlabs/deploybeacon/internal/alerting"
	"github.com/beaconlabs/deploybeacon/internal/models"
)

// Source is the slice of the source-control client the resolvers consume.
type Source interface {
	GetCommit(ctx context.Context, owner, repo, ref string) (*models.Commit, error)
	CompareCommits(ctx context.Context, owner, repo, base, head string) ([]models.Commit, error)
	PullRequestsForCommit(ctx context.Context, owner, repo, sha string) ([]models.PullRequest, error)
}

// Repos names the two correlated repositories.
type Repos struct {
	WrapperOwner  string
	WrapperRepo   string
	UpstreamOwner string
	UpstreamRepo  string
}

func (r Repos) upstreamRef() string {
	return r.WrapperOwner + "/" + r.UpstreamRepo
}

const shaLen = 40

// CommitResolver resolves a wrapper-repo ref to the relevant commit,
// following at most one hop of bump indirection.
type CommitResolver struct {
	src      Source
	repos    Repos
	pattern  *regexp.Regexp
	reporter alerting.Reporter
	logger   zerolog.Logger
}

func NewCommitResolver(src Source, repos Repos, reporter alerting.Reporter, logger zerolog.Logger) *CommitResolver {
	pattern := regexp.MustCompile(regexp.QuoteMeta(repos.upstreamRef()) + `@([0-9a-f]{40})`)
	return &CommitResolver{
		src:      src,
		repos:    repos,
		pattern:  pattern,
		reporter: reporter,
		logger:   logger.With().Str("component", "commit_resolver").Logger(),
	}
}

// Resolve fetches the commit at ref in the wrapper repo and, when its
// message embeds an upstream sha, returns the upstream commit instead. The
// returned commit's RepoID is authoritative for subsequent links. Any fetch
// failure is captured and surfaces as an error callers treat as "cannot
// notify, skip silently".
func (r *CommitResolver) Resolve(ctx context.Context, ref string) (*models.Commit, error) {
	commit, err := r.src.GetCommit(ctx, r.repos.WrapperOwner, r.repos.WrapperRepo, ref)
	if err != nil {
		r.reporter.Capture(err, "fetch wrapper commit", map[string]interface{}{"ref": ref})
		return nil, err
	}

	match := r.pattern.FindStringSubmatch(commit.Message())
	if match == nil {
		return commit, nil
	}

	upstream, err := r.src.GetCommit(ctx, r.repos.UpstreamOwner, r.repos.UpstreamRepo, match[1])
	if err != nil {
		r.reporter.Capture(err, "fetch upstream commit", map[string]interface{}{
			"ref":          ref,
			"upstream_sha": match[1],
		})
		return nil, err
	}
	r.logger.Debug().Str("ref", ref).Str("upstream_sha", upstream.SHA).Msg("resolved bump commit")
	return upstream, nil
}

// UpstreamSHA derives the upstream sha embedded in a sync commit message by
// stripping the org/repo@ prefix and taking the first 40 characters of the
// remainder. Empty when the message carries no parseable reference.
func (r *CommitResolver) UpstreamSHA(c models.Commit) string {
	return upstreamSHA(c.Message(), r.repos.upstreamRef())
}

func upstreamSHA(message, upstreamRef string) string {
	idx := strings.Index(message, upstreamRef+"@")
	if idx < 0 {
		return ""
	}
	rest := message[idx+len(upstreamRef)+1:]
	if len(rest) < shaLen {
		return ""
	}
	return rest[:shaLen]
}
