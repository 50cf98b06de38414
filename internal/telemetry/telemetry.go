// Package telemetry assembles the aggregate reporting structures exposed
// through the Testing RPC namespace: breakdowns, status matrices, trend
// series and health scores. The heavy lifting happens in SQL grouping
// queries; results are memoized in a cache with a short TTL.
package telemetry

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"sort"
	"time"

	"go.uber.org/zap"

	"github.com/caseflow/caseflow/internal/cache"
	"github.com/caseflow/caseflow/internal/store"
)

// caseFilterColumns whitelists the test_cases fields accepted in queries
var caseFilterColumns = map[string]string{
	"product_id":   "c.product_id",
	"category_id":  "c.category_id",
	"priority_id":  "c.priority_id",
	"status_id":    "c.status_id",
	"is_automated": "c.is_automated",
}

// executionFilterColumns whitelists the test_executions fields accepted
// in queries
var executionFilterColumns = map[string]string{
	"run_id":    "e.run_id",
	"case_id":   "e.case_id",
	"build_id":  "e.build_id",
	"status_id": "e.status_id",
}

// Service answers the reporting queries
type Service struct {
	store  *store.Store
	cache  cache.Cache
	ttl    time.Duration
	logger *zap.Logger
}

// NewService wires the service to its store and cache
func NewService(st *store.Store, c cache.Cache, ttl time.Duration, logger *zap.Logger) *Service {
	return &Service{store: st, cache: c, ttl: ttl, logger: logger}
}

// Breakdown holds the statistics for a set of test cases
type Breakdown struct {
	Count      BreakdownCount              `json:"count"`
	Priorities map[string]map[string]int64 `json:"priorities"`
	Categories map[string]map[string]int64 `json:"categories"`
}

// BreakdownCount splits the selected cases by automation
type BreakdownCount struct {
	Manual    int64 `json:"manual"`
	Automated int64 `json:"automated"`
	All       int64 `json:"all"`
}

// Breakdown performs a search and returns the statistics for the selected
// test cases. Per-priority and per-category counts are split between the
// confirmed case status and everything else ("OTHER").
func (s *Service) Breakdown(ctx context.Context, query map[string]interface{}) (*Breakdown, error) {
	var result Breakdown
	err := s.cached(ctx, "breakdown", query, &result, func() (interface{}, error) {
		return s.breakdown(ctx, query)
	})
	if err != nil {
		return nil, err
	}
	return &result, nil
}

func (s *Service) breakdown(ctx context.Context, query map[string]interface{}) (*Breakdown, error) {
	where, args, err := buildWhere(query, caseFilterColumns)
	if err != nil {
		return nil, err
	}

	var result Breakdown
	countStmt := fmt.Sprintf(`
		SELECT
			COUNT(*) FILTER (WHERE NOT c.is_automated) AS manual,
			COUNT(*) FILTER (WHERE c.is_automated) AS automated
		FROM test_cases c
		WHERE %s`, where)

	err = s.store.DB().QueryRowContext(ctx, countStmt, args...).Scan(
		&result.Count.Manual, &result.Count.Automated,
	)
	if err != nil {
		return nil, store.ConvertDBError(err)
	}
	result.Count.All = result.Count.Manual + result.Count.Automated

	confirmedName, err := s.confirmedStatusName(ctx)
	if err != nil {
		return nil, err
	}

	result.Priorities, err = s.fieldCountMap(ctx, confirmedName,
		`JOIN priorities f ON f.id = c.priority_id`, `f.value`, where, args)
	if err != nil {
		return nil, err
	}

	result.Categories, err = s.fieldCountMap(ctx, confirmedName,
		`JOIN categories f ON f.id = c.category_id`, `f.name`, where, args)
	if err != nil {
		return nil, err
	}

	return &result, nil
}

// fieldCountMap builds the CONFIRMED vs OTHER count maps for one grouping
// field of the filtered test cases
func (s *Service) fieldCountMap(ctx context.Context, confirmedName, join, field, where string, args []interface{}) (map[string]map[string]int64, error) {
	stmt := fmt.Sprintf(`
		SELECT %s, cs.is_confirmed, COUNT(*)
		FROM test_cases c
		%s
		JOIN case_statuses cs ON cs.id = c.status_id
		WHERE %s
		GROUP BY %s, cs.is_confirmed`, field, join, where, field)

	rows, err := s.store.DB().QueryContext(ctx, stmt, args...)
	if err != nil {
		return nil, store.ConvertDBError(err)
	}
	defer rows.Close()

	result := map[string]map[string]int64{
		confirmedName: {},
		"OTHER":       {},
	}
	for rows.Next() {
		var value string
		var confirmed bool
		var count int64
		if err := rows.Scan(&value, &confirmed, &count); err != nil {
			return nil, err
		}
		if confirmed {
			result[confirmedName][value] = count
		} else {
			result["OTHER"][value] += count
		}
	}
	return result, rows.Err()
}

func (s *Service) confirmedStatusName(ctx context.Context) (string, error) {
	var name string
	err := s.store.DB().QueryRowContext(ctx,
		`SELECT name FROM case_statuses WHERE is_confirmed ORDER BY id LIMIT 1`,
	).Scan(&name)
	if errors.Is(err, sql.ErrNoRows) {
		return "CONFIRMED", nil
	}
	if err != nil {
		return "", store.ConvertDBError(err)
	}
	return name, nil
}

// MatrixCell is one execution inside a status-matrix row
type MatrixCell struct {
	ID    int64  `json:"pk"`
	Class string `json:"class"`
	RunID int64  `json:"run_id"`
}

// MatrixRow holds the executions of one test case across runs
type MatrixRow struct {
	CaseID      int64        `json:"tc_id"`
	CaseSummary string       `json:"tc_summary"`
	Executions  []MatrixCell `json:"executions"`
}

// StatusMatrix is the data set visualizing plans, cases and executions
type StatusMatrix struct {
	Rows    []MatrixRow      `json:"data"`
	Columns map[int64]string `json:"columns"`
}

// StatusMatrix performs a search and returns the data set needed to
// visualize the status matrix of test cases against test runs
func (s *Service) StatusMatrix(ctx context.Context, query map[string]interface{}) (*StatusMatrix, error) {
	var result StatusMatrix
	err := s.cached(ctx, "status_matrix", query, &result, func() (interface{}, error) {
		return s.statusMatrix(ctx, query)
	})
	if err != nil {
		return nil, err
	}
	return &result, nil
}

func (s *Service) statusMatrix(ctx context.Context, query map[string]interface{}) (*StatusMatrix, error) {
	where, args, err := buildWhere(query, executionFilterColumns)
	if err != nil {
		return nil, err
	}

	stmt := fmt.Sprintf(`
		SELECT e.id, e.case_id, e.run_id, c.summary, r.summary, st.weight
		FROM test_executions e
		JOIN test_cases c ON c.id = e.case_id
		JOIN test_runs r ON r.id = e.run_id
		JOIN execution_statuses st ON st.id = e.status_id
		WHERE %s
		ORDER BY e.case_id, e.run_id`, where)

	rows, err := s.store.DB().QueryContext(ctx, stmt, args...)
	if err != nil {
		return nil, store.ConvertDBError(err)
	}
	defer rows.Close()

	result := StatusMatrix{Columns: make(map[int64]string)}
	var row *MatrixRow
	for rows.Next() {
		var id, caseID, runID int64
		var caseSummary, runSummary string
		var weight int
		if err := rows.Scan(&id, &caseID, &runID, &caseSummary, &runSummary, &weight); err != nil {
			return nil, err
		}

		result.Columns[runID] = runSummary
		cell := MatrixCell{
			ID:    id,
			Class: weightClass(weight),
			RunID: runID,
		}

		if row == nil || row.CaseID != caseID {
			result.Rows = append(result.Rows, MatrixRow{
				CaseID:      caseID,
				CaseSummary: caseSummary,
			})
			row = &result.Rows[len(result.Rows)-1]
		}
		row.Executions = append(row.Executions, cell)
	}
	return &result, rows.Err()
}

// ExecutionTrends is the per-run status-count series for trend charts
type ExecutionTrends struct {
	// Categories are the run ids in ascending order
	Categories []int64 `json:"categories"`
	// DataSet maps status class to one count per run
	DataSet map[string][]int64 `json:"data_set"`
	// Colors are the distinct configured status colors
	Colors []string `json:"colors"`
}

// ExecutionTrends performs a search and returns per-run count series for
// every status group
func (s *Service) ExecutionTrends(ctx context.Context, query map[string]interface{}) (*ExecutionTrends, error) {
	var result ExecutionTrends
	err := s.cached(ctx, "execution_trends", query, &result, func() (interface{}, error) {
		return s.executionTrends(ctx, query)
	})
	if err != nil {
		return nil, err
	}
	return &result, nil
}

func (s *Service) executionTrends(ctx context.Context, query map[string]interface{}) (*ExecutionTrends, error) {
	statuses, err := s.store.ListExecutionStatuses(ctx)
	if err != nil {
		return nil, err
	}

	result := ExecutionTrends{DataSet: make(map[string][]int64)}
	for _, st := range statuses {
		result.DataSet[st.ColorClass()] = []int64{}

		seen := false
		for _, color := range result.Colors {
			if color == st.Color {
				seen = true
				break
			}
		}
		if !seen {
			result.Colors = append(result.Colors, st.Color)
		}
	}

	where, args, err := buildWhere(query, executionFilterColumns)
	if err != nil {
		return nil, err
	}

	stmt := fmt.Sprintf(`
		SELECT e.run_id,
			CASE WHEN st.weight > 0 THEN 'passed'
			     WHEN st.weight < 0 THEN 'failed'
			     ELSE 'neutral' END AS class,
			COUNT(*)
		FROM test_executions e
		JOIN execution_statuses st ON st.id = e.status_id
		WHERE %s
		GROUP BY e.run_id, class
		ORDER BY e.run_id`, where)

	rows, err := s.store.DB().QueryContext(ctx, stmt, args...)
	if err != nil {
		return nil, store.ConvertDBError(err)
	}
	defer rows.Close()

	counts := make(map[int64]map[string]int64)
	for rows.Next() {
		var runID int64
		var class string
		var count int64
		if err := rows.Scan(&runID, &class, &count); err != nil {
			return nil, err
		}
		if counts[runID] == nil {
			result.Categories = append(result.Categories, runID)
			counts[runID] = make(map[string]int64)
		}
		counts[runID][class] = count
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}

	// Zero-fill so every series has one value per run
	for _, runID := range result.Categories {
		for class := range result.DataSet {
			result.DataSet[class] = append(result.DataSet[class], counts[runID][class])
		}
	}

	return &result, nil
}

// CaseHealth holds the execution counters for one flaky test case
type CaseHealth struct {
	CaseID      int64            `json:"case_id"`
	CaseSummary string           `json:"case_summary"`
	Count       CaseHealthCounts `json:"count"`
}

// CaseHealthCounts splits a case's executions by outcome
type CaseHealthCounts struct {
	All     int64 `json:"all"`
	Success int64 `json:"success"`
	Fail    int64 `json:"fail"`
}

// PassRate returns the fraction of passing executions
func (c CaseHealthCounts) PassRate() float64 {
	if c.All == 0 {
		return 0
	}
	return float64(c.Success) / float64(c.All)
}

// TestCaseHealth performs a search and returns the least healthy test
// cases. Cases with a 100% pass rate are excluded because they are not
// interesting; the rest are sorted by pass rate ascending and capped to at
// most 30 rows bucketed into never-passing, mostly-failing and the rest.
func (s *Service) TestCaseHealth(ctx context.Context, query map[string]interface{}) ([]CaseHealth, error) {
	var result []CaseHealth
	err := s.cached(ctx, "test_case_health", query, &result, func() (interface{}, error) {
		return s.testCaseHealth(ctx, query)
	})
	if err != nil {
		return nil, err
	}
	return result, nil
}

func (s *Service) testCaseHealth(ctx context.Context, query map[string]interface{}) ([]CaseHealth, error) {
	where, args, err := buildWhere(query, executionFilterColumns)
	if err != nil {
		return nil, err
	}

	stmt := fmt.Sprintf(`
		SELECT e.case_id, c.summary,
			COUNT(*),
			COUNT(*) FILTER (WHERE st.weight > 0),
			COUNT(*) FILTER (WHERE st.weight < 0)
		FROM test_executions e
		JOIN test_cases c ON c.id = e.case_id
		JOIN execution_statuses st ON st.id = e.status_id
		WHERE %s
		GROUP BY e.case_id, c.summary
		ORDER BY e.case_id`, where)

	rows, err := s.store.DB().QueryContext(ctx, stmt, args...)
	if err != nil {
		return nil, store.ConvertDBError(err)
	}
	defer rows.Close()

	var all []CaseHealth
	for rows.Next() {
		var h CaseHealth
		err := rows.Scan(&h.CaseID, &h.CaseSummary, &h.Count.All, &h.Count.Success, &h.Count.Fail)
		if err != nil {
			return nil, err
		}
		// 100% success rate is not interesting
		if h.Count.Success == h.Count.All {
			continue
		}
		all = append(all, h)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}

	sort.SliceStable(all, func(i, j int) bool {
		return all[i].Count.PassRate() < all[j].Count.PassRate()
	})

	return bucketHealth(all), nil
}

// bucketHealth caps the health report to 30 rows: up to 10 never-passing
// cases, up to 10 mostly-failing ones and up to 10 of the rest
func bucketHealth(data []CaseHealth) []CaseHealth {
	result := make([]CaseHealth, 0, 30)
	var zero, low, high int

	for _, element := range data {
		if len(result) >= 30 {
			break
		}

		rate := element.Count.PassRate()
		switch {
		case rate == 0 && zero < 10:
			result = append(result, element)
			zero++
		case rate > 0 && rate <= 0.5 && low < 10:
			result = append(result, element)
			low++
		case rate > 0.5 && high < 10:
			result = append(result, element)
			high++
		}
	}
	return result
}

// weightClass maps a status weight to its chart class
func weightClass(weight int) string {
	switch {
	case weight > 0:
		return "passed"
	case weight < 0:
		return "failed"
	default:
		return "neutral"
	}
}

// buildWhere translates a field-lookup query into a WHERE clause using the
// given column whitelist. Unknown fields are rejected.
func buildWhere(query map[string]interface{}, columns map[string]string) (string, []interface{}, error) {
	where := "1 = 1"
	args := make([]interface{}, 0, len(query))

	keys := make([]string, 0, len(query))
	for k := range query {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	for _, field := range keys {
		column, ok := columns[field]
		if !ok {
			return "", nil, fmt.Errorf("cannot filter by field: %s", field)
		}
		args = append(args, query[field])
		where += fmt.Sprintf(" AND %s = $%d", column, len(args))
	}
	return where, args, nil
}

// cached memoizes one reporting query. Cache failures degrade to a direct
// query.
func (s *Service) cached(ctx context.Context, method string, query map[string]interface{}, out interface{}, compute func() (interface{}, error)) error {
	key, keyErr := cacheKey(method, query)
	if keyErr == nil && s.cache != nil {
		if data, err := s.cache.Get(ctx, key); err == nil {
			if err := json.Unmarshal(data, out); err == nil {
				return nil
			}
			// Stale or corrupt entry; fall through and recompute
			_ = s.cache.Delete(ctx, key)
		} else if !cache.IsCacheMiss(err) {
			s.logger.Debug("telemetry cache get failed", zap.String("key", key), zap.Error(err))
		}
	}

	value, err := compute()
	if err != nil {
		return err
	}

	data, err := json.Marshal(value)
	if err != nil {
		return err
	}
	if err := json.Unmarshal(data, out); err != nil {
		return err
	}

	if keyErr == nil && s.cache != nil {
		if err := s.cache.Set(ctx, key, data, s.ttl); err != nil {
			s.logger.Debug("telemetry cache set failed", zap.String("key", key), zap.Error(err))
		}
	}
	return nil
}

// cacheKey canonicalizes the query into a stable cache key
func cacheKey(method string, query map[string]interface{}) (string, error) {
	if len(query) == 0 {
		return "telemetry:" + method, nil
	}
	data, err := json.Marshal(query)
	if err != nil {
		return "", err
	}
	return "telemetry:" + method + ":" + string(data), nil
}
