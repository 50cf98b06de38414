package rpc

import (
	"context"
	"encoding/json"
	"errors"

	"go.uber.org/zap"

	"github.com/caseflow/caseflow/internal/auth"
	"github.com/caseflow/caseflow/internal/store"
	"github.com/caseflow/caseflow/internal/tracker"
)

// Broadcaster pushes execution changes to subscribed websocket clients
type Broadcaster interface {
	ExecutionUpdated(runID int64, execution *store.TestExecution)
}

// ExecutionService implements the TestExecution and Bug RPC namespaces
type ExecutionService struct {
	store       *store.Store
	poster      *tracker.CommentPoster
	trackerOpts tracker.Options
	events      Broadcaster
	logger      *zap.Logger
}

// NewExecutionService wires the service to its dependencies. events may be
// nil when no websocket hub is running.
func NewExecutionService(st *store.Store, poster *tracker.CommentPoster, opts tracker.Options, events Broadcaster, logger *zap.Logger) *ExecutionService {
	return &ExecutionService{
		store:       st,
		poster:      poster,
		trackerOpts: opts,
		events:      events,
		logger:      logger,
	}
}

// RegisterMethods adds every TestExecution and Bug method to the registry
func (s *ExecutionService) RegisterMethods(reg *Registry) {
	reg.Register("TestExecution.create", auth.ExecutionsCreate, s.Create)
	reg.Register("TestExecution.update", auth.ExecutionsUpdate, s.Update)
	reg.Register("TestExecution.filter", auth.ExecutionsRead, s.Filter)
	reg.Register("TestExecution.add_comment", auth.ExecutionsComment, s.AddComment)
	reg.Register("TestExecution.get_comments", auth.ExecutionsRead, s.GetComments)
	reg.Register("TestExecution.add_link", auth.ExecutionsLink, s.AddLink)
	reg.Register("TestExecution.get_links", auth.ExecutionsRead, s.GetLinks)
	reg.Register("TestExecution.remove_link", auth.ExecutionsLink, s.RemoveLink)
	reg.Register("Bug.report", auth.TrackersReport, s.ReportBug)
}

type createParams struct {
	RunID           int64  `json:"run_id"`
	CaseID          int64  `json:"case_id"`
	BuildID         int64  `json:"build_id"`
	StatusID        int64  `json:"status_id"`
	AssigneeID      *int64 `json:"assignee_id"`
	CaseTextVersion int    `json:"case_text_version"`
	SortKey         int    `json:"sort_key"`
}

// Create validates the referenced run, case and build and inserts a new
// test execution. Status defaults to the first neutral one and the case
// text version to the case's current one.
func (s *ExecutionService) Create(ctx context.Context, params json.RawMessage) (interface{}, error) {
	var p createParams
	if err := json.Unmarshal(params, &p); err != nil {
		return nil, invalidParams(err)
	}

	for _, ref := range []struct {
		name   string
		id     int64
		exists func(context.Context, int64) (bool, error)
	}{
		{"run_id", p.RunID, s.store.RunExists},
		{"case_id", p.CaseID, s.store.CaseExists},
		{"build_id", p.BuildID, s.store.BuildExists},
	} {
		if ref.id <= 0 {
			return nil, NewError(CodeInvalidParams, ref.name+" is required")
		}
		ok, err := ref.exists(ctx, ref.id)
		if err != nil {
			return nil, err
		}
		if !ok {
			return nil, NewError(CodeInvalidParams, ref.name+" does not exist")
		}
	}

	values := store.NewExecution{
		RunID:           p.RunID,
		CaseID:          p.CaseID,
		BuildID:         p.BuildID,
		StatusID:        p.StatusID,
		AssigneeID:      p.AssigneeID,
		CaseTextVersion: p.CaseTextVersion,
		SortKey:         p.SortKey,
	}
	return s.store.CreateExecution(ctx, values)
}

type updateParams struct {
	ExecutionID int64 `json:"execution_id"`
	Values      struct {
		BuildID    *int64 `json:"build_id"`
		AssigneeID *int64 `json:"assignee_id"`
		StatusID   *int64 `json:"status_id"`
		SortKey    *int   `json:"sort_key"`
	} `json:"values"`
}

// Update applies a partial update. A status change records the caller as
// tested_by; the store stamps stopped_at alongside.
func (s *ExecutionService) Update(ctx context.Context, params json.RawMessage) (interface{}, error) {
	var p updateParams
	if err := json.Unmarshal(params, &p); err != nil {
		return nil, invalidParams(err)
	}
	if p.ExecutionID <= 0 {
		return nil, NewError(CodeInvalidParams, "execution_id is required")
	}

	update := store.ExecutionUpdate{
		BuildID:    p.Values.BuildID,
		AssigneeID: p.Values.AssigneeID,
		StatusID:   p.Values.StatusID,
		SortKey:    p.Values.SortKey,
	}
	if p.Values.StatusID != nil {
		if identity, ok := auth.IdentityFrom(ctx); ok {
			userID := identity.UserID
			update.TestedByID = &userID
		}
	}

	execution, err := s.store.UpdateExecution(ctx, p.ExecutionID, update)
	if err != nil {
		return nil, err
	}

	if s.events != nil {
		s.events.ExecutionUpdated(execution.RunID, execution)
	}
	return execution, nil
}

type queryParams struct {
	Query map[string]interface{} `json:"query"`
}

// Filter returns the executions matching the field lookups in query
func (s *ExecutionService) Filter(ctx context.Context, params json.RawMessage) (interface{}, error) {
	var p queryParams
	if err := json.Unmarshal(params, &p); err != nil {
		return nil, invalidParams(err)
	}
	return s.store.FilterExecutions(ctx, p.Query)
}

type commentParams struct {
	ExecutionID int64  `json:"execution_id"`
	Text        string `json:"text"`
}

// AddComment stores a comment attributed to the caller
func (s *ExecutionService) AddComment(ctx context.Context, params json.RawMessage) (interface{}, error) {
	var p commentParams
	if err := json.Unmarshal(params, &p); err != nil {
		return nil, invalidParams(err)
	}

	identity, _ := auth.IdentityFrom(ctx)
	return s.store.AddComment(ctx, p.ExecutionID, identity.UserID, p.Text)
}

type executionIDParams struct {
	ExecutionID int64 `json:"execution_id"`
}

// GetComments lists an execution's comments, oldest first
func (s *ExecutionService) GetComments(ctx context.Context, params json.RawMessage) (interface{}, error) {
	var p executionIDParams
	if err := json.Unmarshal(params, &p); err != nil {
		return nil, invalidParams(err)
	}
	return s.store.GetComments(ctx, p.ExecutionID)
}

type addLinkParams struct {
	ExecutionID   int64  `json:"execution_id"`
	Name          string `json:"name"`
	URL           string `json:"url"`
	IsDefect      bool   `json:"is_defect"`
	UpdateTracker bool   `json:"update_tracker"`
}

// AddLink attaches a URL to a test execution. Adding the same URL twice
// returns the existing record. When the link marks a defect and the caller
// asked for it, a link-back comment is scheduled on the matching tracker.
func (s *ExecutionService) AddLink(ctx context.Context, params json.RawMessage) (interface{}, error) {
	var p addLinkParams
	if err := json.Unmarshal(params, &p); err != nil {
		return nil, invalidParams(err)
	}
	if p.URL == "" {
		return nil, NewError(CodeInvalidParams, "url is required")
	}

	link, err := s.store.AddLink(ctx, p.ExecutionID, p.Name, p.URL, p.IsDefect)
	if err != nil {
		return nil, err
	}

	if p.IsDefect && p.UpdateTracker {
		s.scheduleLinkComment(ctx, link)
	}
	return link, nil
}

// scheduleLinkComment queues the tracker comment for a defect link. Failures
// are logged, not returned: the link itself has already been stored.
func (s *ExecutionService) scheduleLinkComment(ctx context.Context, link *store.LinkReference) {
	record, err := s.store.FindTrackerForURL(ctx, link.URL)
	if err != nil {
		if !errors.Is(err, store.ErrNotFound) {
			s.logger.Warn("tracker lookup failed",
				zap.String("url", link.URL), zap.Error(err))
		}
		return
	}

	adapter, err := tracker.New(record, s.trackerOpts)
	if err != nil {
		s.logger.Warn("unusable tracker configuration",
			zap.Int64("tracker_id", record.ID), zap.Error(err))
		return
	}
	if adapter.LinkCommentDisabled() {
		return
	}

	err = s.poster.Schedule(ctx, record.ID, []int64{link.ExecutionID}, link.URL)
	if err != nil {
		s.logger.Warn("failed to schedule tracker comment",
			zap.Int64("tracker_id", record.ID),
			zap.Int64("execution_id", link.ExecutionID),
			zap.Error(err))
	}
}

// GetLinks returns the link references matching the field lookups in query
func (s *ExecutionService) GetLinks(ctx context.Context, params json.RawMessage) (interface{}, error) {
	var p queryParams
	if err := json.Unmarshal(params, &p); err != nil {
		return nil, invalidParams(err)
	}
	return s.store.FilterLinks(ctx, p.Query)
}

// RemoveLink deletes the link references matching the field lookups in
// query and reports how many were removed
func (s *ExecutionService) RemoveLink(ctx context.Context, params json.RawMessage) (interface{}, error) {
	var p queryParams
	if err := json.Unmarshal(params, &p); err != nil {
		return nil, invalidParams(err)
	}

	removed, err := s.store.RemoveLinks(ctx, p.Query)
	if err != nil {
		return nil, err
	}
	return map[string]int64{"removed": removed}, nil
}

type reportParams struct {
	ExecutionID int64 `json:"execution_id"`
	TrackerID   int64 `json:"tracker_id"`
}

type reportResult struct {
	URL      string `json:"url"`
	Response string `json:"response"`
}

// ReportBug builds the pre-filled "report a bug" URL for an execution. When
// the adapter cannot build one the tracker's base URL is returned together
// with the failure, so the caller can still open the tracker.
func (s *ExecutionService) ReportBug(ctx context.Context, params json.RawMessage) (interface{}, error) {
	var p reportParams
	if err := json.Unmarshal(params, &p); err != nil {
		return nil, invalidParams(err)
	}

	record, err := s.store.GetTracker(ctx, p.TrackerID)
	if err != nil {
		return nil, err
	}
	detail, err := s.store.GetExecutionDetail(ctx, p.ExecutionID)
	if err != nil {
		return nil, err
	}

	adapter, err := tracker.New(record, s.trackerOpts)
	if err != nil {
		return nil, err
	}

	url, err := adapter.ReportURL(ctx, detail)
	if err != nil {
		s.logger.Warn("report url build failed",
			zap.String("tracker", adapter.Name()),
			zap.Int64("execution_id", p.ExecutionID),
			zap.Error(err))
		return reportResult{URL: record.BaseURL, Response: err.Error()}, nil
	}
	return reportResult{URL: url, Response: "ok"}, nil
}
