package tracker

import (
	"context"
	"fmt"
	"net/http"
	"net/url"
	"strings"

	"github.com/caseflow/caseflow/internal/store"
)

// GitLab reports bugs through the project's "new issue" form and posts
// notes through the GitLab REST API.
//
// base_url points at the project; api_url points at the GitLab instance
// (usually gitlab.com); api_password carries an access token.
type GitLab struct {
	base
}

// Name returns the adapter kind
func (t *GitLab) Name() string { return KindGitLab }

// LinkCommentDisabled needs only the project URL and an access token
func (t *GitLab) LinkCommentDisabled() bool {
	return t.tracker.BaseURL == "" || t.tracker.APIPassword == ""
}

// ReportURL builds an issues/new URL pre-filled from the execution.
// GitLab renders Markdown in issue descriptions.
func (t *GitLab) ReportURL(_ context.Context, execution *store.ExecutionDetail) (string, error) {
	args := url.Values{}
	args.Set("issue[title]", reportSummary(execution))
	args.Set("issue[description]", reportBody(execution, t.opts.executionURL(execution.ID), true))
	return t.baseURL() + "issues/new?" + args.Encode(), nil
}

// PostComment adds a note to an issue via the GitLab REST API
func (t *GitLab) PostComment(ctx context.Context, issueURL, comment string) error {
	iid, err := t.IssueID(issueURL)
	if err != nil {
		return err
	}

	project, err := t.projectPath()
	if err != nil {
		return err
	}

	endpoint := fmt.Sprintf("%s/api/v4/projects/%s/issues/%s/notes",
		t.apiURL(), url.PathEscape(project), iid)

	req, err := newJSONRequest(ctx, http.MethodPost, endpoint, map[string]string{"body": comment})
	if err != nil {
		return err
	}
	req.Header.Set("PRIVATE-TOKEN", t.tracker.APIPassword)

	if err := doJSON(t.opts.client(), req, nil); err != nil {
		return fmt.Errorf("gitlab: failed to post note on issue %s: %w", iid, err)
	}
	return nil
}

// projectPath extracts the namespaced project path from the base URL
func (t *GitLab) projectPath() (string, error) {
	parsed, err := url.Parse(t.tracker.BaseURL)
	if err != nil {
		return "", fmt.Errorf("gitlab: invalid project url: %w", err)
	}

	path := strings.Trim(parsed.Path, "/")
	if path == "" {
		return "", fmt.Errorf("gitlab: project url must include the project path, got: %s", t.tracker.BaseURL)
	}
	return path, nil
}
