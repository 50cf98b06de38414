// Package tracker implements the adapters to external issue tracking
// systems. Each adapter translates test-execution data into a vendor
// "report a bug" URL pre-filled from the execution, and posts link-back
// comments on reported issues through the vendor's REST API.
package tracker

import (
	"context"
	"fmt"
	"net/http"
	"regexp"
	"strconv"
	"strings"
	"time"

	"github.com/caseflow/caseflow/internal/store"
)

// Adapter represents the actions which can be performed with an issue
// tracker. One implementation exists per supported vendor.
type Adapter interface {
	// Name returns the adapter kind (e.g. "bugzilla")
	Name() string

	// ReportURL builds a vendor-specific URL which opens the tracker's
	// "new bug" form pre-filled with details from the test execution
	ReportURL(ctx context.Context, execution *store.ExecutionDetail) (string, error)

	// LinkCommentDisabled reports whether posting link-back comments is
	// unavailable, usually because required credentials are missing
	LinkCommentDisabled() bool

	// AllIssuesLink returns a single URL opening all given issues in the
	// tracker, or "" when the vendor has no multi-issue view
	AllIssuesLink(ids []string) string

	// IssueID extracts the vendor issue identifier from an issue URL
	IssueID(url string) (string, error)

	// PostComment posts a comment on the issue behind the given URL
	PostComment(ctx context.Context, issueURL, comment string) error
}

// Options carries the adapter dependencies shared across vendors
type Options struct {
	// BaseURL is the externally visible URL of this Caseflow instance,
	// used for the "filed from" link in report bodies
	BaseURL string

	// HTTPClient is used for vendor REST calls. Defaults to a client
	// with a 30 second timeout.
	HTTPClient *http.Client
}

func (o Options) client() *http.Client {
	if o.HTTPClient != nil {
		return o.HTTPClient
	}
	return &http.Client{Timeout: 30 * time.Second}
}

// executionURL returns the canonical URL of a test execution
func (o Options) executionURL(executionID int64) string {
	return strings.TrimSuffix(o.BaseURL, "/") + "/executions/" + strconv.FormatInt(executionID, 10)
}

// base holds the fields common to all adapters
type base struct {
	tracker *store.Tracker
	opts    Options
}

// baseURL returns the tracker base URL normalized to end in a slash
func (b *base) baseURL() string {
	url := b.tracker.BaseURL
	if !strings.HasSuffix(url, "/") {
		url += "/"
	}
	return url
}

// apiURL returns the tracker API URL without a trailing slash
func (b *base) apiURL() string {
	return strings.TrimSuffix(b.tracker.APIURL, "/")
}

// LinkCommentDisabled is the default credential check: the full triple of
// API URL, username and password must be present
func (b *base) LinkCommentDisabled() bool {
	return b.tracker.APIURL == "" ||
		b.tracker.APIUsername == "" ||
		b.tracker.APIPassword == ""
}

// AllIssuesLink is unsupported by default
func (b *base) AllIssuesLink(_ []string) string {
	return ""
}

var trailingDigits = regexp.MustCompile(`[\d]+$`)

// IssueID extracts the trailing run of digits from an issue URL, which is
// how most vendors encode the issue number
func (b *base) IssueID(url string) (string, error) {
	match := trailingDigits.FindString(strings.TrimSpace(url))
	if match == "" {
		return "", fmt.Errorf("no issue id found in url: %s", url)
	}
	return match, nil
}
