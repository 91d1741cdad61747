package blob

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"path"
	"strings"

	"github.com/google/uuid"

	dbpkg "github.com/ledgerchat/ledgerchat/internal/db"
)

// Service persists blobs via a provider and records them tenant-scoped in
// the documents table.
type Service struct {
	db       dbpkg.Querier
	provider Provider
	logger   *slog.Logger
}

// NewService creates a blob service.
func NewService(log *slog.Logger, db dbpkg.Querier, provider Provider) *Service {
	if log == nil {
		log = slog.Default()
	}
	return &Service{
		db:       db,
		provider: provider,
		logger:   log.With(slog.String("service", "blob")),
	}
}

// Upload stores the bytes via the provider and writes the document record.
func (s *Service) Upload(ctx context.Context, input UploadInput) (Stored, error) {
	if s.provider == nil {
		return Stored{}, ErrProviderUnavailable
	}
	if input.Reader == nil {
		return Stored{}, fmt.Errorf("reader is required")
	}
	tenantID := strings.TrimSpace(input.TenantID)
	if tenantID == "" {
		return Stored{}, fmt.Errorf("tenant id is required")
	}

	id := uuid.NewString()
	fileName := strings.TrimSpace(input.FileName)
	if fileName == "" {
		fileName = id
	}
	storageKey := path.Join(tenantID, "uploads", id[:2], id+"-"+fileName)

	if err := s.provider.Put(ctx, storageKey, input.Reader); err != nil {
		return Stored{}, fmt.Errorf("store blob: %w", err)
	}

	pgTenantID, err := dbpkg.ParseUUID(tenantID)
	if err != nil {
		return Stored{}, fmt.Errorf("invalid tenant id: %w", err)
	}
	pgID, err := dbpkg.ParseUUID(id)
	if err != nil {
		return Stored{}, fmt.Errorf("invalid blob id: %w", err)
	}

	metaBytes, err := json.Marshal(nonNilMap(input.Metadata))
	if err != nil {
		metaBytes = []byte("{}")
	}
	_, err = s.db.Exec(ctx, `
		INSERT INTO documents (id, tenant_id, file_name, mime_type, size_bytes, storage_key, uploaded_by, source, status, metadata)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, 'stored', $9)`,
		pgID, pgTenantID, fileName, coalesce(input.MimeType, "application/octet-stream"),
		input.Size, storageKey, dbpkg.ToPgText(input.UploadedBy), dbpkg.ToPgText(input.Source), metaBytes,
	)
	if err != nil {
		// Best effort: don't leave the orphan bytes behind.
		if cleanupErr := s.provider.Delete(ctx, storageKey); cleanupErr != nil {
			s.logger.Warn("orphan blob cleanup failed", slog.String("key", storageKey), slog.Any("error", cleanupErr))
		}
		return Stored{}, fmt.Errorf("create document record: %w", err)
	}

	return Stored{ID: id, FileName: fileName, Size: input.Size}, nil
}

func nonNilMap(m map[string]any) map[string]any {
	if m == nil {
		return map[string]any{}
	}
	return m
}

func coalesce(value, fallback string) string {
	if strings.TrimSpace(value) == "" {
		return fallback
	}
	return value
}
