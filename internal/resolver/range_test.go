package resolver

import (
	"context"
	"testing"

	"github.com/rs/zerolog"

	"github.com/beaconlabs/deploybeacon/internal/models"
)

const botEmail = "sync-bot@acme.test"

func newRangeResolver(src *fakeSource) *RangeResolver {
	matcher := NewBotIdentity(0, botEmail)
	return NewRangeResolver(src, matcher, testRepos(), &captureReporter{}, zerolog.Nop())
}

func TestResolveRangeSingleNativeCommitExcluded(t *testing.T) {
	src := newFakeSource()
	src.commits[key("acme", "ruby-wrapper", nativeSHA1)] = models.Commit{
		SHA:    nativeSHA1,
		RepoID: "acme/ruby-wrapper",
		Title:  "Adjust CI matrix",
	}

	r := newRangeResolver(src)
	prs, err := r.ResolveRange(context.Background(), nativeSHA1, "", false)
	if err != nil {
		t.Fatalf("resolve range failed: %v", err)
	}
	if len(prs) != 0 {
		t.Errorf("expected no PRs for excluded native commit, got %d", len(prs))
	}
	if len(src.prCalls) != 0 {
		t.Errorf("expected no PR lookups, got %v", src.prCalls)
	}
}

func TestResolveRangePartitionsSyncAndNative(t *testing.T) {
	src := newFakeSource()
	src.compared = []models.Commit{
		{
			SHA:            wrapperSHA1,
			RepoID:         "acme/ruby-wrapper",
			CommitterEmail: botEmail,
			Title:          "Bump acme/ruby@" + upstreamSHA1,
		},
		{
			SHA:    nativeSHA1,
			RepoID: "acme/ruby-wrapper",
			Title:  "Adjust CI matrix",
		},
	}
	src.prs[key("acme", "ruby", upstreamSHA1)] = []models.PullRequest{
		{Number: 101, RepoID: "acme/ruby"},
	}
	src.prs[key("acme", "ruby-wrapper", nativeSHA1)] = []models.PullRequest{
		{Number: 7, RepoID: "acme/ruby-wrapper"},
		{Number: 8, RepoID: "acme/ruby-wrapper"},
	}

	r := newRangeResolver(src)
	prs, err := r.ResolveRange(context.Background(), "head", "base", true)
	if err != nil {
		t.Fatalf("resolve range failed: %v", err)
	}

	if len(prs) != 2 {
		t.Fatalf("expected 2 PRs (first per commit), got %d: %+v", len(prs), prs)
	}
	// Sync commit resolved against the upstream repo, native against the
	// wrapper repo, in commit order.
	if prs[0].Number != 101 || prs[0].RepoID != "acme/ruby" {
		t.Errorf("unexpected first PR: %+v", prs[0])
	}
	if prs[1].Number != 7 || prs[1].RepoID != "acme/ruby-wrapper" {
		t.Errorf("unexpected second PR: %+v", prs[1])
	}

	if len(src.prCalls) != 2 {
		t.Fatalf("expected exactly 2 PR lookups, got %v", src.prCalls)
	}
	want := map[string]bool{
		key("acme", "ruby", upstreamSHA1):       true,
		key("acme", "ruby-wrapper", nativeSHA1): true,
	}
	for _, call := range src.prCalls {
		if !want[call] {
			t.Errorf("unexpected PR lookup %s", call)
		}
	}
}

func TestResolveRangeSkipsSyncCommitWithoutParseableSHA(t *testing.T) {
	src := newFakeSource()
	src.compared = []models.Commit{
		{
			SHA:            wrapperSHA1,
			CommitterEmail: botEmail,
			Title:          "Bump dependencies",
		},
	}

	r := newRangeResolver(src)
	prs, err := r.ResolveRange(context.Background(), "head", "base", true)
	if err != nil {
		t.Fatalf("resolve range failed: %v", err)
	}
	if len(prs) != 0 {
		t.Errorf("expected no PRs, got %d", len(prs))
	}
	if len(src.prCalls) != 0 {
		t.Errorf("expected no PR lookups for unparseable sync commit, got %v", src.prCalls)
	}
}

func TestResolveRangeFirstPROnly(t *testing.T) {
	src := newFakeSource()
	src.commits[key("acme", "ruby-wrapper", nativeSHA1)] = models.Commit{
		SHA:    nativeSHA1,
		RepoID: "acme/ruby-wrapper",
		Title:  "Adjust CI matrix",
	}
	src.prs[key("acme", "ruby-wrapper", nativeSHA1)] = []models.PullRequest{
		{Number: 7}, {Number: 8}, {Number: 9},
	}

	r := newRangeResolver(src)
	prs, err := r.ResolveRange(context.Background(), nativeSHA1, "", true)
	if err != nil {
		t.Fatalf("resolve range failed: %v", err)
	}
	if len(prs) != 1 || prs[0].Number != 7 {
		t.Errorf("expected only first associated PR, got %+v", prs)
	}
}
