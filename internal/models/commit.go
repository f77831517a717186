package models

import "strings"

// Commit is an immutable snapshot of a commit fetched from the source-control
// provider. RepoID is "owner/name"; for a resolved bump commit it names the
// upstream repository, not the repository the original ref pointed at.
type Commit struct {
	SHA               string   `json:"sha"`
	RepoID            string   `json:"repo_id"`
	AuthorLogin       string   `json:"author_login,omitempty"`
	AuthorEmail       string   `json:"author_email,omitempty"`
	AuthorDisplayName string   `json:"author_display_name"`
	CommitterID       int64    `json:"committer_id,omitempty"`
	CommitterEmail    string   `json:"committer_email,omitempty"`
	Title             string   `json:"title"`
	BodyLines         []string `json:"body_lines,omitempty"`
	HTMLURL           string   `json:"html_url"`
	AvatarURL         string   `json:"avatar_url,omitempty"`
}

// Message reassembles the full commit message from title and body.
func (c Commit) Message() string {
	if len(c.BodyLines) == 0 {
		return c.Title
	}
	return c.Title + "\n" + strings.Join(c.BodyLines, "\n")
}

// ShortSHA returns the abbreviated sha used in rendered messages.
func (c Commit) ShortSHA() string {
	if len(c.SHA) <= 10 {
		return c.SHA
	}
	return c.SHA[:10]
}

// PullRequest is the minimal view of a pull request surfaced by range
// resolution. RepoID records which of the two repositories it belongs to.
type PullRequest struct {
	Number      int    `json:"number"`
	Title       string `json:"title"`
	HTMLURL     string `json:"html_url"`
	AuthorLogin string `json:"author_login,omitempty"`
	RepoID      string `json:"repo_id"`
}

// CICompletionEvent is the normalized CI webhook: a check suite finishing on
// some branch of the wrapper repository.
type CICompletionEvent struct {
	SHA        string `json:"sha"`
	Branch     string `json:"branch"`
	Conclusion string `json:"conclusion"`
}
