package resolver

import (
	"context"
	"sync"

	"github.com/rs/zerolog"

	"github.com/beaconlabs/deploybeacon/internal/alerting"
	"github.com/beaconlabs/deploybeacon/internal/models"
)

// RangeResolver maps a wrapper-repo commit range to the pull requests the
// underlying changes originated from, in whichever repository that was.
type RangeResolver struct {
	src      Source
	matcher  IdentityMatcher
	repos    Repos
	reporter alerting.Reporter
	logger   zerolog.Logger
}

func NewRangeResolver(src Source, matcher IdentityMatcher, repos Repos, reporter alerting.Reporter, logger zerolog.Logger) *RangeResolver {
	return &RangeResolver{
		src:      src,
		matcher:  matcher,
		repos:    repos,
		reporter: reporter,
		logger:   logger.With().Str("component", "range_resolver").Logger(),
	}
}

// ResolveRange resolves head (or base..head when base is non-empty) to pull
// requests. Sync commits are looked up on the upstream repo via their
// embedded sha; native commits on the wrapper repo only when includeWrapper.
// Only the first PR associated with each commit is kept; multiple associated
// PRs per commit are intentionally not surfaced.
func (r *RangeResolver) ResolveRange(ctx context.Context, head, base string, includeWrapper bool) ([]models.PullRequest, error) {
	if base == "" {
		commit, err := r.src.GetCommit(ctx, r.repos.WrapperOwner, r.repos.WrapperRepo, head)
		if err != nil {
			r.reporter.Capture(err, "fetch range head", map[string]interface{}{"head": head})
			return nil, err
		}
		return r.lookupCommit(ctx, *commit, includeWrapper), nil
	}

	commits, err := r.src.CompareCommits(ctx, r.repos.WrapperOwner, r.repos.WrapperRepo, base, head)
	if err != nil {
		r.reporter.Capture(err, "compare commit range", map[string]interface{}{
			"base": base,
			"head": head,
		})
		return nil, err
	}

	// Lookups for distinct commits are independent reads; issue them all
	// concurrently and collect per-slot to keep commit order.
	results := make([][]models.PullRequest, len(commits))
	var wg sync.WaitGroup
	for i, commit := range commits {
		wg.Add(1)
		go func(i int, commit models.Commit) {
			defer wg.Done()
			results[i] = r.lookupCommit(ctx, commit, includeWrapper)
		}(i, commit)
	}
	wg.Wait()

	var prs []models.PullRequest
	for _, result := range results {
		prs = append(prs, result...)
	}
	return prs, nil
}

func (r *RangeResolver) lookupCommit(ctx context.Context, commit models.Commit, includeWrapper bool) []models.PullRequest {
	var (
		owner, repo, sha string
	)
	switch {
	case r.matcher.IsSyncCommit(commit):
		sha = upstreamSHA(commit.Message(), r.repos.upstreamRef())
		if sha == "" {
			r.logger.Debug().Str("sha", commit.SHA).Msg("sync commit without parseable upstream sha")
			return nil
		}
		owner, repo = r.repos.UpstreamOwner, r.repos.UpstreamRepo
	case includeWrapper:
		owner, repo, sha = r.repos.WrapperOwner, r.repos.WrapperRepo, commit.SHA
	default:
		return nil
	}

	prs, err := r.src.PullRequestsForCommit(ctx, owner, repo, sha)
	if err != nil {
		r.reporter.Capture(err, "list pull requests for commit", map[string]interface{}{
			"repo": owner + "/" + repo,
			"sha":  sha,
		})
		return nil
	}
	if len(prs) == 0 {
		return nil
	}
	// First associated PR only.
	return prs[:1]
}
