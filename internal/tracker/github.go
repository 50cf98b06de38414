package tracker

import (
	"context"
	"fmt"
	"net/http"
	"net/url"
	"strings"

	"github.com/caseflow/caseflow/internal/store"
)

// GitHub reports bugs through the repository's "new issue" form and posts
// comments through the GitHub REST API.
//
// base_url points at the repository; api_password carries an access token.
// api_url and api_username are unused.
//
// GitHub has no multi-issue table view, so AllIssuesLink is unsupported.
type GitHub struct {
	base
}

// Name returns the adapter kind
func (t *GitHub) Name() string { return KindGitHub }

// LinkCommentDisabled needs only the repository URL and an access token
func (t *GitHub) LinkCommentDisabled() bool {
	return t.tracker.BaseURL == "" || t.tracker.APIPassword == ""
}

// ReportURL builds an issues/new URL. GitHub only supports title and body
// parameters.
func (t *GitHub) ReportURL(_ context.Context, execution *store.ExecutionDetail) (string, error) {
	args := url.Values{}
	args.Set("title", reportSummary(execution))
	args.Set("body", reportBody(execution, t.opts.executionURL(execution.ID), false))
	return t.baseURL() + "issues/new?" + args.Encode(), nil
}

// PostComment adds a comment to an issue via the GitHub REST API
func (t *GitHub) PostComment(ctx context.Context, issueURL, comment string) error {
	number, err := t.IssueID(issueURL)
	if err != nil {
		return err
	}

	owner, repo, err := t.repository()
	if err != nil {
		return err
	}

	endpoint := fmt.Sprintf("https://api.github.com/repos/%s/%s/issues/%s/comments",
		owner, repo, number)

	req, err := newJSONRequest(ctx, http.MethodPost, endpoint, map[string]string{"body": comment})
	if err != nil {
		return err
	}
	req.Header.Set("Authorization", "token "+t.tracker.APIPassword)

	if err := doJSON(t.opts.client(), req, nil); err != nil {
		return fmt.Errorf("github: failed to post comment on issue %s: %w", number, err)
	}
	return nil
}

// repository extracts the owner and repository name from the base URL
func (t *GitHub) repository() (owner, repo string, err error) {
	parsed, err := url.Parse(t.tracker.BaseURL)
	if err != nil {
		return "", "", fmt.Errorf("github: invalid repository url: %w", err)
	}

	parts := strings.Split(strings.Trim(parsed.Path, "/"), "/")
	if len(parts) < 2 || parts[0] == "" || parts[1] == "" {
		return "", "", fmt.Errorf("github: repository url must be https://github.com/<owner>/<repo>, got: %s", t.tracker.BaseURL)
	}
	return parts[0], parts[1], nil
}
