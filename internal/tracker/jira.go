package tracker

import (
	"context"
	"fmt"
	"net/http"
	"net/url"
	"strings"

	"github.com/caseflow/caseflow/internal/store"
)

// JIRA reports bugs through the CreateIssueDetails form and posts comments
// through the JIRA REST API. Requires api_url, api_username and
// api_password.
//
// The JIRA instance needs a project whose key or name matches the product,
// otherwise building the report URL fails.
type JIRA struct {
	base
}

// Name returns the adapter kind
func (t *JIRA) Name() string { return KindJIRA }

// IssueID extracts the issue key, which is the last path segment of the
// issue URL (e.g. .../browse/JENKINS-31044)
func (t *JIRA) IssueID(issueURL string) (string, error) {
	trimmed := strings.TrimSpace(strings.TrimSuffix(issueURL, "/"))
	idx := strings.LastIndex(trimmed, "/")
	if idx < 0 || idx == len(trimmed)-1 {
		return "", fmt.Errorf("no issue key found in url: %s", issueURL)
	}
	return trimmed[idx+1:], nil
}

// ReportURL builds a CreateIssueDetails!init.jspa URL pre-filled from the
// execution. Project and issue type identifiers are resolved through the
// REST API; the reporter is resolved from tested-by falling back to the
// assignee, and reporter lookup failures are silently ignored.
func (t *JIRA) ReportURL(ctx context.Context, execution *store.ExecutionDetail) (string, error) {
	project, err := t.project(ctx, execution.ProductName)
	if err != nil {
		return "", err
	}

	issueType, err := t.bugIssueType(ctx)
	if err != nil {
		return "", err
	}

	args := url.Values{}
	args.Set("pid", project.ID)
	args.Set("issuetype", issueType.ID)
	args.Set("summary", reportSummary(execution))
	args.Set("description", reportBody(execution, t.opts.executionURL(execution.ID), false))

	// JIRA cannot search users by e-mail, so try the username and hope
	// that it matches
	reporter := execution.TestedByName
	if reporter == "" {
		reporter = execution.AssigneeName
	}
	if reporter != "" {
		if key, err := t.userKey(ctx, reporter); err == nil {
			args.Set("reporter", key)
		}
	}

	return t.baseURL() + "secure/CreateIssueDetails!init.jspa?" + args.Encode(), nil
}

// AllIssuesLink lists all reported issues through a JQL search
func (t *JIRA) AllIssuesLink(ids []string) string {
	if t.tracker.BaseURL == "" {
		return ""
	}
	jql := "issueKey in (" + strings.Join(ids, ", ") + ")"
	return t.baseURL() + "issues/?jql=" + url.QueryEscape(jql)
}

// PostComment adds a comment to an issue via the JIRA REST API
func (t *JIRA) PostComment(ctx context.Context, issueURL, comment string) error {
	key, err := t.IssueID(issueURL)
	if err != nil {
		return err
	}

	endpoint := fmt.Sprintf("%s/rest/api/2/issue/%s/comment", t.apiURL(), key)
	err = t.doJSON(ctx, http.MethodPost, endpoint, map[string]string{"body": comment}, nil)
	if err != nil {
		return fmt.Errorf("jira: failed to post comment on %s: %w", key, err)
	}
	return nil
}

type jiraProject struct {
	ID   string `json:"id"`
	Key  string `json:"key"`
	Name string `json:"name"`
}

type jiraIssueType struct {
	ID   string `json:"id"`
	Name string `json:"name"`
}

// project resolves a JIRA project by key or name
func (t *JIRA) project(ctx context.Context, name string) (*jiraProject, error) {
	var project jiraProject
	endpoint := fmt.Sprintf("%s/rest/api/2/project/%s", t.apiURL(), url.PathEscape(name))
	if err := t.doJSON(ctx, http.MethodGet, endpoint, nil, &project); err != nil {
		return nil, fmt.Errorf("jira: project %q not found: %w", name, err)
	}
	return &project, nil
}

// bugIssueType returns the issue type named "Bug", falling back to the
// first issue type the instance defines
func (t *JIRA) bugIssueType(ctx context.Context) (*jiraIssueType, error) {
	var types []jiraIssueType
	endpoint := t.apiURL() + "/rest/api/2/issuetype"
	if err := t.doJSON(ctx, http.MethodGet, endpoint, nil, &types); err != nil {
		return nil, fmt.Errorf("jira: failed to list issue types: %w", err)
	}
	if len(types) == 0 {
		return nil, fmt.Errorf("jira: no issue types defined")
	}
	for i := range types {
		if types[i].Name == "Bug" {
			return &types[i], nil
		}
	}
	return &types[0], nil
}

// userKey resolves a username to the JIRA user key
func (t *JIRA) userKey(ctx context.Context, username string) (string, error) {
	var users []struct {
		Key  string `json:"key"`
		Name string `json:"name"`
	}
	endpoint := t.apiURL() + "/rest/api/2/user/search?username=" + url.QueryEscape(username)
	if err := t.doJSON(ctx, http.MethodGet, endpoint, nil, &users); err != nil {
		return "", err
	}
	if len(users) == 0 {
		return "", fmt.Errorf("jira: user %q not found", username)
	}
	return users[0].Key, nil
}

// doJSON performs an authenticated JSON request against the JIRA REST API
func (t *JIRA) doJSON(ctx context.Context, method, endpoint string, payload, out interface{}) error {
	req, err := newJSONRequest(ctx, method, endpoint, payload)
	if err != nil {
		return err
	}
	req.SetBasicAuth(t.tracker.APIUsername, t.tracker.APIPassword)
	return doJSON(t.opts.client(), req, out)
}
