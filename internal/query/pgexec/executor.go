// Package pgexec executes parsed queries against tenant-scoped document
// data in Postgres.
package pgexec

import (
	"context"
	"fmt"
	"log/slog"
	"strconv"
	"strings"
	"time"

	"github.com/jackc/pgx/v5/pgtype"

	dbpkg "github.com/ledgerchat/ledgerchat/internal/db"
	"github.com/ledgerchat/ledgerchat/internal/query"
)

// listLimit bounds list/search result sets; formatters cap display at 10
// anyway and the total comes from a separate count.
const listLimit = 50

// Executor runs parsed queries against the documents table.
type Executor struct {
	db     dbpkg.Querier
	logger *slog.Logger
}

// NewExecutor creates a Postgres query executor.
func NewExecutor(log *slog.Logger, db dbpkg.Querier) *Executor {
	if log == nil {
		log = slog.Default()
	}
	return &Executor{
		db:     db,
		logger: log.With(slog.String("component", "query_executor")),
	}
}

// Execute runs the parsed query scoped to the tenant. Conversational
// intents are a caller bug: they must never reach the executor.
func (e *Executor) Execute(ctx context.Context, parsed query.ParsedQuery, tenantID string) (query.Result, error) {
	if parsed.Intent.IsConversational() {
		return query.Result{}, fmt.Errorf("conversational intent %q is not executable", parsed.Intent)
	}
	pgTenantID, err := dbpkg.ParseUUID(tenantID)
	if err != nil {
		return query.Result{}, fmt.Errorf("invalid tenant id: %w", err)
	}

	startedAt := time.Now()
	where, args := buildFilters(pgTenantID, parsed)

	var result query.Result
	switch parsed.Intent {
	case query.IntentCount:
		result, err = e.executeCount(ctx, where, args)
	case query.IntentList, query.IntentSearch:
		result, err = e.executeList(ctx, where, args)
	case query.IntentAggregate:
		result, err = e.executeAggregate(ctx, where, args, "vendor")
	case query.IntentStatus:
		result, err = e.executeAggregate(ctx, where, args, "status")
	default:
		return query.Result{}, fmt.Errorf("unsupported intent %q", parsed.Intent)
	}
	if err != nil {
		return query.Result{}, err
	}

	result.Metadata.Confidence = parsed.Confidence
	result.Metadata.ExecutionTimeMs = time.Since(startedAt).Milliseconds()
	return result, nil
}

func (e *Executor) executeCount(ctx context.Context, where string, args []any) (query.Result, error) {
	var count int64
	sql := `SELECT count(*) FROM documents WHERE ` + where
	if err := e.db.QueryRow(ctx, sql, args...).Scan(&count); err != nil {
		return query.Result{}, fmt.Errorf("count documents: %w", err)
	}
	return query.Result{Count: count, Metadata: query.ResultMetadata{TotalCount: count}}, nil
}

func (e *Executor) executeList(ctx context.Context, where string, args []any) (query.Result, error) {
	sql := `
		SELECT file_name, coalesce(vendor, ''), coalesce(status, ''), coalesce(amount, 0), created_at
		FROM documents
		WHERE ` + where + `
		ORDER BY created_at DESC
		LIMIT ` + strconv.Itoa(listLimit)
	rows, err := e.db.Query(ctx, sql, args...)
	if err != nil {
		return query.Result{}, fmt.Errorf("list documents: %w", err)
	}
	defer rows.Close()

	var records []query.Record
	for rows.Next() {
		var (
			fileName  string
			vendor    string
			status    string
			amount    float64
			createdAt pgtype.Timestamptz
		)
		if err := rows.Scan(&fileName, &vendor, &status, &amount, &createdAt); err != nil {
			return query.Result{}, fmt.Errorf("scan document: %w", err)
		}
		records = append(records, query.Record{
			"file_name":  fileName,
			"vendor":     vendor,
			"status":     status,
			"amount":     amount,
			"created_at": createdAt.Time,
		})
	}
	if err := rows.Err(); err != nil {
		return query.Result{}, err
	}

	var total int64
	if err := e.db.QueryRow(ctx, `SELECT count(*) FROM documents WHERE `+where, args...).Scan(&total); err != nil {
		return query.Result{}, fmt.Errorf("count documents: %w", err)
	}
	return query.Result{Records: records, Metadata: query.ResultMetadata{TotalCount: total}}, nil
}

func (e *Executor) executeAggregate(ctx context.Context, where string, args []any, groupColumn string) (query.Result, error) {
	sql := fmt.Sprintf(`
		SELECT coalesce(%s, 'unknown') AS grp, count(*), coalesce(sum(amount), 0)
		FROM documents
		WHERE %s
		GROUP BY grp
		ORDER BY count(*) DESC`, groupColumn, where)
	rows, err := e.db.Query(ctx, sql, args...)
	if err != nil {
		return query.Result{}, fmt.Errorf("aggregate documents: %w", err)
	}
	defer rows.Close()

	var (
		buckets []query.AggregateBucket
		total   int64
	)
	for rows.Next() {
		var bucket query.AggregateBucket
		if err := rows.Scan(&bucket.Group, &bucket.Count, &bucket.Total); err != nil {
			return query.Result{}, fmt.Errorf("scan bucket: %w", err)
		}
		total += bucket.Count
		buckets = append(buckets, bucket)
	}
	if err := rows.Err(); err != nil {
		return query.Result{}, err
	}
	return query.Result{Buckets: buckets, Metadata: query.ResultMetadata{TotalCount: total}}, nil
}

// buildFilters translates extracted entities into WHERE conditions. Tenant
// scoping is unconditional and always the first predicate.
func buildFilters(tenantID pgtype.UUID, parsed query.ParsedQuery) (string, []any) {
	conditions := []string{"tenant_id = $1"}
	args := []any{tenantID}

	appendCondition := func(condition string, value any) {
		args = append(args, value)
		conditions = append(conditions, fmt.Sprintf(condition, len(args)))
	}

	if vendor := strings.TrimSpace(parsed.Entity("vendor")); vendor != "" {
		appendCondition("vendor ILIKE $%d", "%"+vendor+"%")
	}
	if docType := strings.TrimSpace(parsed.Entity("document_type")); docType != "" {
		appendCondition("document_type = $%d", strings.ToLower(docType))
	}
	if status := strings.TrimSpace(parsed.Entity("status")); status != "" {
		appendCondition("status = $%d", strings.ToLower(status))
	}
	if from, to, ok := dateRange(parsed.Entity("date_range")); ok {
		appendCondition("created_at >= $%d", from)
		appendCondition("created_at < $%d", to)
	}

	return strings.Join(conditions, " AND "), args
}

// dateRange resolves the classifier's symbolic date ranges to instants.
func dateRange(symbol string) (time.Time, time.Time, bool) {
	now := time.Now().UTC()
	today := time.Date(now.Year(), now.Month(), now.Day(), 0, 0, 0, 0, time.UTC)
	switch strings.ToLower(strings.TrimSpace(symbol)) {
	case "today":
		return today, today.AddDate(0, 0, 1), true
	case "this_week", "this week":
		weekday := int(today.Weekday())
		if weekday == 0 {
			weekday = 7
		}
		start := today.AddDate(0, 0, -(weekday - 1))
		return start, start.AddDate(0, 0, 7), true
	case "this_month", "this month":
		start := time.Date(now.Year(), now.Month(), 1, 0, 0, 0, 0, time.UTC)
		return start, start.AddDate(0, 1, 0), true
	case "last_month", "last month":
		start := time.Date(now.Year(), now.Month(), 1, 0, 0, 0, 0, time.UTC).AddDate(0, -1, 0)
		return start, start.AddDate(0, 1, 0), true
	default:
		return time.Time{}, time.Time{}, false
	}
}
