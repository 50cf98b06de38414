package tracker

import (
	"context"
	"fmt"
	"net/http"
	"net/url"
	"strings"

	"github.com/caseflow/caseflow/internal/store"
)

// Redmine reports bugs through the project's "new issue" form and posts
// notes through the Redmine REST API. Requires api_url, api_username and
// api_password.
type Redmine struct {
	base
}

// Name returns the adapter kind
func (t *Redmine) Name() string { return KindRedmine }

// ReportURL builds a projects/<id>/issues/new URL pre-filled from the
// execution. The project is resolved by product name, falling back to the
// first project when there is no match; the tracker is resolved by the
// name "Bug", falling back to the project's first tracker.
func (t *Redmine) ReportURL(ctx context.Context, execution *store.ExecutionDetail) (string, error) {
	project, err := t.projectByName(ctx, execution.ProductName)
	if err != nil {
		return "", err
	}

	issueType := project.trackerByName("Bug")

	query := "issue[tracker_id]=" + fmt.Sprintf("%d", issueType.ID)
	query += "&issue[subject]=" + url.QueryEscape("Failed test:"+execution.CaseSummary)
	query += "&issue[description]=" + url.QueryEscape(reportBody(execution, t.opts.executionURL(execution.ID), false))

	return fmt.Sprintf("%sprojects/%d/issues/new?%s", t.baseURL(), project.ID, query), nil
}

// AllIssuesLink lists all reported issues through a filtered issues view
func (t *Redmine) AllIssuesLink(ids []string) string {
	if t.tracker.BaseURL == "" {
		return ""
	}

	query := "issues?utf8=✓&set_filter=1&sort=id%3Adesc&f%5B%5D=issue_id"
	query += "&op%5Bissue_id%5D=%3D&v%5Bissue_id%5D%5B%5D=" + strings.Join(ids, "%2C")
	query += "&f%5B%5D=&c%5B%5D=tracker&c%5B%5D=status&c%5B%5D=priority"
	query += "&c%5B%5D=subject&c%5B%5D=assigned_to&c%5B%5D=updated_on&group_by=&t%5B%5D="

	return t.baseURL() + query
}

// PostComment adds a note to an issue via the Redmine REST API
func (t *Redmine) PostComment(ctx context.Context, issueURL, comment string) error {
	id, err := t.IssueID(issueURL)
	if err != nil {
		return err
	}

	endpoint := fmt.Sprintf("%s/issues/%s.json", t.apiURL(), id)
	payload := map[string]map[string]string{"issue": {"notes": comment}}

	if err := t.doJSON(ctx, http.MethodPut, endpoint, payload, nil); err != nil {
		return fmt.Errorf("redmine: failed to post note on issue %s: %w", id, err)
	}
	return nil
}

type redmineTracker struct {
	ID   int    `json:"id"`
	Name string `json:"name"`
}

type redmineProject struct {
	ID       int              `json:"id"`
	Name     string           `json:"name"`
	Trackers []redmineTracker `json:"trackers"`
}

// trackerByName returns the project tracker matching name, or the first one
func (p *redmineProject) trackerByName(name string) redmineTracker {
	for _, trk := range p.Trackers {
		if strings.EqualFold(trk.Name, name) {
			return trk
		}
	}
	return p.Trackers[0]
}

// projectByName resolves a Redmine project matching the product name,
// falling back to the first project the instance defines
func (t *Redmine) projectByName(ctx context.Context, name string) (*redmineProject, error) {
	var wrapper struct {
		Project redmineProject `json:"project"`
	}
	endpoint := fmt.Sprintf("%s/projects/%s.json?include=trackers", t.apiURL(), url.PathEscape(name))
	if err := t.doJSON(ctx, http.MethodGet, endpoint, nil, &wrapper); err == nil {
		if len(wrapper.Project.Trackers) == 0 {
			return nil, fmt.Errorf("redmine: project %q has no trackers", name)
		}
		return &wrapper.Project, nil
	}

	// No match - fall back to the first project
	var list struct {
		Projects []redmineProject `json:"projects"`
	}
	if err := t.doJSON(ctx, http.MethodGet, t.apiURL()+"/projects.json", nil, &list); err != nil {
		return nil, fmt.Errorf("redmine: failed to list projects: %w", err)
	}
	if len(list.Projects) == 0 {
		return nil, fmt.Errorf("redmine: no projects defined")
	}

	first := list.Projects[0]
	endpoint = fmt.Sprintf("%s/projects/%d.json?include=trackers", t.apiURL(), first.ID)
	if err := t.doJSON(ctx, http.MethodGet, endpoint, nil, &wrapper); err != nil {
		return nil, fmt.Errorf("redmine: failed to load project %d: %w", first.ID, err)
	}
	if len(wrapper.Project.Trackers) == 0 {
		return nil, fmt.Errorf("redmine: project %q has no trackers", wrapper.Project.Name)
	}
	return &wrapper.Project, nil
}

// doJSON performs an authenticated JSON request against the Redmine REST API
func (t *Redmine) doJSON(ctx context.Context, method, endpoint string, payload, out interface{}) error {
	req, err := newJSONRequest(ctx, method, endpoint, payload)
	if err != nil {
		return err
	}
	req.SetBasicAuth(t.tracker.APIUsername, t.tracker.APIPassword)
	return doJSON(t.opts.client(), req, out)
}
