// Package analytics records query pipeline outcomes. Everything here is
// best effort: a recording failure is logged and swallowed.
package analytics

import (
	"context"
	"log/slog"

	dbpkg "github.com/ledgerchat/ledgerchat/internal/db"
)

// Event is one recorded pipeline outcome.
type Event struct {
	TenantID        string
	Platform        string
	Intent          string
	ExecutionTimeMs int64
	ResultCount     int64
	Error           string
}

// Recorder writes analytics events to Postgres.
type Recorder struct {
	db     dbpkg.Querier
	logger *slog.Logger
}

// NewRecorder creates an analytics recorder.
func NewRecorder(log *slog.Logger, db dbpkg.Querier) *Recorder {
	if log == nil {
		log = slog.Default()
	}
	return &Recorder{
		db:     db,
		logger: log.With(slog.String("component", "analytics")),
	}
}

// Record persists the event. Failures never propagate.
func (r *Recorder) Record(ctx context.Context, event Event) {
	if r.db == nil {
		return
	}
	_, err := r.db.Exec(ctx, `
		INSERT INTO query_analytics (tenant_id, platform, intent, execution_time_ms, result_count, error)
		VALUES ($1, $2, $3, $4, $5, $6)`,
		dbpkg.ToPgText(event.TenantID), event.Platform, event.Intent,
		event.ExecutionTimeMs, event.ResultCount, dbpkg.ToPgText(event.Error),
	)
	if err != nil {
		r.logger.Warn("analytics record failed",
			slog.String("intent", event.Intent),
			slog.Any("error", err),
		)
	}
}
