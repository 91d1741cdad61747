package messages

import (
	"context"
	"fmt"
	"log/slog"
	"strings"

	"github.com/jackc/pgx/v5/pgtype"

	dbpkg "github.com/ledgerchat/ledgerchat/internal/db"
)

// queryChecker is the cheap "is this parseable as a query" fast path,
// evaluated at write time to populate is_query.
type queryChecker interface {
	IsQuerySupported(text string) bool
}

// DBService is the idempotent message store. The upsert keyed on the unique
// message_id guarantees at-most-one logical creation under retried webhook
// delivery; retries update updated_at only and report Created=false.
type DBService struct {
	db      dbpkg.Querier
	checker queryChecker
	logger  *slog.Logger
}

// NewService creates a message store.
func NewService(log *slog.Logger, db dbpkg.Querier, checker queryChecker) *DBService {
	if log == nil {
		log = slog.Default()
	}
	return &DBService{
		db:      db,
		checker: checker,
		logger:  log.With(slog.String("service", "message_store")),
	}
}

// Store persists an inbound message idempotently. On conflict with an
// existing message_id only updated_at changes and the existing row's ID is
// returned; (xmax = 0) distinguishes a fresh insert from the conflict path.
func (s *DBService) Store(ctx context.Context, input StoreInput) (StoreResult, error) {
	if strings.TrimSpace(input.MessageID) == "" {
		return StoreResult{}, fmt.Errorf("message id is required")
	}

	content := strings.TrimSpace(input.Content)
	if content == "" {
		content = EmptyContentPlaceholder
	}
	isQuery := s.classifyAtWrite(content)

	var (
		id       pgtype.UUID
		inserted bool
	)
	err := s.db.QueryRow(ctx, `
		INSERT INTO chat_messages (message_id, platform, sender, content, tenant_id, user_id, is_query)
		VALUES ($1, $2, $3, $4, $5, $6, $7)
		ON CONFLICT (message_id) DO UPDATE SET updated_at = now()
		RETURNING id, (xmax = 0) AS inserted`,
		input.MessageID, input.Platform, input.Sender, content,
		dbpkg.ToPgText(input.TenantID), dbpkg.ToPgText(input.UserID), isQuery,
	).Scan(&id, &inserted)
	if err != nil {
		return StoreResult{}, fmt.Errorf("upsert message: %w", err)
	}

	if !inserted {
		s.logger.Debug("duplicate delivery deduplicated",
			slog.String("message_id", input.MessageID),
			slog.String("platform", input.Platform),
		)
	}
	return StoreResult{ID: id.String(), Created: inserted}, nil
}

// RecordProcessing attaches the processing outcome to a stored message,
// best effort: a failed update never fails the request.
func (s *DBService) RecordProcessing(ctx context.Context, storedID, parsedQuery, response string, processingTimeMs int64) {
	pgID, err := dbpkg.ParseUUID(storedID)
	if err != nil {
		return
	}
	_, err = s.db.Exec(ctx, `
		UPDATE chat_messages
		SET parsed_query = $2, response = $3, processing_time_ms = $4, updated_at = now()
		WHERE id = $1`,
		pgID, dbpkg.ToPgText(parsedQuery), dbpkg.ToPgText(response), processingTimeMs,
	)
	if err != nil {
		s.logger.Warn("record processing failed", slog.String("id", storedID), slog.Any("error", err))
	}
}

// classifyAtWrite computes is_query, skipping classification entirely for
// placeholder text.
func (s *DBService) classifyAtWrite(content string) bool {
	if content == EmptyContentPlaceholder || content == FileUploadPlaceholder {
		return false
	}
	if s.checker == nil {
		return false
	}
	return s.checker.IsQuerySupported(content)
}
