package tracker

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"strings"

	"github.com/caseflow/caseflow/internal/store"
)

// Bugzilla reports bugs through the enter_bug.cgi form and posts comments
// through the Bugzilla REST API. Requires api_url, api_username and
// api_password for comment posting.
type Bugzilla struct {
	base
}

// Name returns the adapter kind
func (t *Bugzilla) Name() string { return KindBugzilla }

// ReportURL builds an enter_bug.cgi URL pre-filled from the execution
func (t *Bugzilla) ReportURL(_ context.Context, execution *store.ExecutionDetail) (string, error) {
	comment := "Filed from execution " + t.opts.executionURL(execution.ID) + "\n\n"
	comment += "Version-Release number of selected component (if applicable):\n"
	comment += execution.BuildName + "\n\n"
	comment += "Steps to Reproduce: \n" + execution.CaseText + "\n\n"
	comment += "Actual results: \n<describe what happened>\n\n"

	args := url.Values{}
	args.Set("cf_build_id", execution.BuildName)
	args.Set("comment", comment)
	args.Set("product", execution.ProductName)
	args.Set("short_desc", "Test case failure: "+execution.CaseSummary)
	args.Set("version", execution.ProductVersion)
	for _, component := range execution.Components {
		args.Add("component", component)
	}

	return t.baseURL() + "enter_bug.cgi?" + args.Encode(), nil
}

// AllIssuesLink lists all reported bugs in a single buglist.cgi table
func (t *Bugzilla) AllIssuesLink(ids []string) string {
	if t.tracker.BaseURL == "" {
		return ""
	}
	return t.baseURL() + "buglist.cgi?bugidtype=include&bug_id=" + strings.Join(ids, ",")
}

// PostComment adds a comment to a bug via the Bugzilla REST API
func (t *Bugzilla) PostComment(ctx context.Context, issueURL, comment string) error {
	id, err := t.IssueID(issueURL)
	if err != nil {
		return err
	}

	body, err := json.Marshal(map[string]string{"comment": comment})
	if err != nil {
		return err
	}

	endpoint := fmt.Sprintf("%s/rest/bug/%s/comment?login=%s&password=%s",
		t.apiURL(), id,
		url.QueryEscape(t.tracker.APIUsername),
		url.QueryEscape(t.tracker.APIPassword),
	)

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, bytes.NewReader(body))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := t.opts.client().Do(req)
	if err != nil {
		return fmt.Errorf("bugzilla: failed to post comment on bug %s: %w", id, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return fmt.Errorf("bugzilla: comment on bug %s rejected with status %d", id, resp.StatusCode)
	}
	return nil
}
