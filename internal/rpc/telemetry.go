package rpc

import (
	"context"
	"encoding/json"

	"github.com/caseflow/caseflow/internal/auth"
	"github.com/caseflow/caseflow/internal/telemetry"
)

// TelemetryService exposes the reporting queries under the Testing namespace
type TelemetryService struct {
	telemetry *telemetry.Service
}

// NewTelemetryService wraps the telemetry service for RPC registration
func NewTelemetryService(svc *telemetry.Service) *TelemetryService {
	return &TelemetryService{telemetry: svc}
}

// RegisterMethods adds every Testing method to the registry
func (s *TelemetryService) RegisterMethods(reg *Registry) {
	reg.Register("Testing.breakdown", auth.ReportsRead, s.Breakdown)
	reg.Register("Testing.status_matrix", auth.ReportsRead, s.StatusMatrix)
	reg.Register("Testing.execution_trends", auth.ReportsRead, s.ExecutionTrends)
	reg.Register("Testing.test_case_health", auth.ReportsRead, s.TestCaseHealth)
}

// Breakdown returns the case counts and per-priority/per-category maps
func (s *TelemetryService) Breakdown(ctx context.Context, params json.RawMessage) (interface{}, error) {
	query, err := decodeQuery(params)
	if err != nil {
		return nil, err
	}
	return s.telemetry.Breakdown(ctx, query)
}

// StatusMatrix returns the case-by-run execution matrix
func (s *TelemetryService) StatusMatrix(ctx context.Context, params json.RawMessage) (interface{}, error) {
	query, err := decodeQuery(params)
	if err != nil {
		return nil, err
	}
	return s.telemetry.StatusMatrix(ctx, query)
}

// ExecutionTrends returns the per-run status-count series
func (s *TelemetryService) ExecutionTrends(ctx context.Context, params json.RawMessage) (interface{}, error) {
	query, err := decodeQuery(params)
	if err != nil {
		return nil, err
	}
	return s.telemetry.ExecutionTrends(ctx, query)
}

// TestCaseHealth returns the least healthy test cases
func (s *TelemetryService) TestCaseHealth(ctx context.Context, params json.RawMessage) (interface{}, error) {
	query, err := decodeQuery(params)
	if err != nil {
		return nil, err
	}
	return s.telemetry.TestCaseHealth(ctx, query)
}

// decodeQuery extracts the optional filter from the params member
func decodeQuery(params json.RawMessage) (map[string]interface{}, error) {
	if len(params) == 0 {
		return nil, nil
	}
	var p queryParams
	if err := json.Unmarshal(params, &p); err != nil {
		return nil, invalidParams(err)
	}
	return p.Query, nil
}
