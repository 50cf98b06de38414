package store

import "time"

// ExecutionStatus represents one of the configurable execution result states.
// Weight > 0 marks a passing status, weight < 0 a failing one and weight = 0
// a neutral (not yet completed) one.
type ExecutionStatus struct {
	ID     int64  `json:"id"`
	Name   string `json:"name"`
	Weight int    `json:"weight"`
	Color  string `json:"color"`
	Icon   string `json:"icon"`
}

// IsPassing reports whether the status counts as a pass
func (s ExecutionStatus) IsPassing() bool {
	return s.Weight > 0
}

// IsFailing reports whether the status counts as a failure
func (s ExecutionStatus) IsFailing() bool {
	return s.Weight < 0
}

// ColorClass returns the CSS-style class name used by the reporting views
func (s ExecutionStatus) ColorClass() string {
	switch {
	case s.Weight > 0:
		return "passed"
	case s.Weight < 0:
		return "failed"
	default:
		return "neutral"
	}
}

// CaseStatus represents the lifecycle state of a test case.
// Exactly one status is flagged as confirmed; breakdowns split counts
// between it and everything else.
type CaseStatus struct {
	ID          int64  `json:"id"`
	Name        string `json:"name"`
	IsConfirmed bool   `json:"is_confirmed"`
}

// TestCase represents a test case definition
type TestCase struct {
	ID          int64  `json:"id"`
	Summary     string `json:"summary"`
	Text        string `json:"text"`
	TextVersion int    `json:"case_text_version"`
	IsAutomated bool   `json:"is_automated"`
	StatusID    int64  `json:"status_id"`
	PriorityID  int64  `json:"priority_id"`
	CategoryID  int64  `json:"category_id"`
	ProductID   int64  `json:"product_id"`
}

// TestRun represents a scheduled run of a set of test cases against a build
type TestRun struct {
	ID             int64  `json:"id"`
	PlanID         int64  `json:"plan_id"`
	BuildID        int64  `json:"build_id"`
	Summary        string `json:"summary"`
	ProductVersion string `json:"product_version"`
}

// TestExecution is a single test-case run result within a test run
type TestExecution struct {
	ID              int64      `json:"id"`
	RunID           int64      `json:"run_id"`
	CaseID          int64      `json:"case_id"`
	BuildID         int64      `json:"build_id"`
	StatusID        int64      `json:"status_id"`
	AssigneeID      *int64     `json:"assignee_id"`
	TestedByID      *int64     `json:"tested_by_id"`
	CaseTextVersion int        `json:"case_text_version"`
	SortKey         int        `json:"sort_key"`
	StartedAt       *time.Time `json:"started_at"`
	StoppedAt       *time.Time `json:"stopped_at"`
}

// ExecutionDetail is an execution joined with the display fields reporting
// and bug-report URL construction need
type ExecutionDetail struct {
	TestExecution

	CaseSummary    string   `json:"case_summary"`
	CaseText       string   `json:"case_text"`
	RunSummary     string   `json:"run_summary"`
	BuildName      string   `json:"build_name"`
	ProductName    string   `json:"product_name"`
	ProductVersion string   `json:"product_version"`
	StatusName     string   `json:"status_name"`
	Components     []string `json:"components"`
	AssigneeName   string   `json:"assignee_name,omitempty"`
	TestedByName   string   `json:"tested_by_name,omitempty"`
}

// LinkReference is a URL attached to a test execution, optionally marking
// a defect reported in an issue tracker
type LinkReference struct {
	ID          int64     `json:"id"`
	ExecutionID int64     `json:"execution_id"`
	Name        string    `json:"name"`
	URL         string    `json:"url"`
	IsDefect    bool      `json:"is_defect"`
	CreatedAt   time.Time `json:"created_at"`
}

// Comment is a free-form note attached to a test execution
type Comment struct {
	ID          int64     `json:"id"`
	ExecutionID int64     `json:"execution_id"`
	AuthorID    int64     `json:"author_id"`
	AuthorName  string    `json:"author_name"`
	Text        string    `json:"text"`
	CreatedAt   time.Time `json:"created_at"`
}

// Tracker is a configured external issue-tracker endpoint.
// Kind selects the adapter implementation.
type Tracker struct {
	ID          int64  `json:"id"`
	Name        string `json:"name"`
	Kind        string `json:"kind"`
	BaseURL     string `json:"base_url"`
	APIURL      string `json:"api_url"`
	APIUsername string `json:"api_username"`
	APIPassword string `json:"-"`
}

// User is an account that can authenticate against the RPC API
type User struct {
	ID           int64    `json:"id"`
	Username     string   `json:"username"`
	Email        string   `json:"email"`
	PasswordHash string   `json:"-"`
	Roles        []string `json:"roles"`
}
