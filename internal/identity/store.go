package identity

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/jackc/pgx/v5/pgtype"

	dbpkg "github.com/ledgerchat/ledgerchat/internal/db"
)

// DBStore persists tenant mappings and link token records.
type DBStore struct {
	db     dbpkg.Querier
	logger *slog.Logger
}

// NewStore creates an identity store.
func NewStore(log *slog.Logger, db dbpkg.Querier) *DBStore {
	if log == nil {
		log = slog.Default()
	}
	return &DBStore{
		db:     db,
		logger: log.With(slog.String("service", "identity_store")),
	}
}

// ListMappings returns all tenant mappings for a platform sender. For
// platforms without workspaces (WhatsApp), workspaceID is empty.
func (s *DBStore) ListMappings(ctx context.Context, platformName, workspaceID, sender string) ([]Mapping, error) {
	rows, err := s.db.Query(ctx, `
		SELECT m.id, m.platform, m.workspace_id, m.sender, m.user_id,
		       t.id, t.name, t.slug, m.created_at
		FROM chat_identity_mappings m
		JOIN tenants t ON t.id = m.tenant_id
		WHERE m.platform = $1
		  AND m.workspace_id = $2
		  AND m.sender = $3
		ORDER BY t.slug`,
		platformName, workspaceID, sender,
	)
	if err != nil {
		return nil, fmt.Errorf("list mappings: %w", err)
	}
	defer rows.Close()

	var mappings []Mapping
	for rows.Next() {
		var (
			m         Mapping
			id        pgtype.UUID
			userID    pgtype.UUID
			tenantID  pgtype.UUID
			createdAt pgtype.Timestamptz
		)
		if err := rows.Scan(&id, &m.Platform, &m.WorkspaceID, &m.Sender, &userID,
			&tenantID, &m.Tenant.TenantName, &m.Tenant.TenantSlug, &createdAt); err != nil {
			return nil, fmt.Errorf("scan mapping: %w", err)
		}
		m.ID = id.String()
		m.UserID = userID.String()
		m.Tenant.TenantID = tenantID.String()
		m.CreatedAt = createdAt.Time
		mappings = append(mappings, m)
	}
	return mappings, rows.Err()
}

// TenantsByEmail returns every tenant an account with the given email
// belongs to, together with the account's user ID per tenant.
func (s *DBStore) TenantsByEmail(ctx context.Context, email string) ([]Mapping, error) {
	rows, err := s.db.Query(ctx, `
		SELECT u.id, t.id, t.name, t.slug
		FROM users u
		JOIN tenant_members tm ON tm.user_id = u.id
		JOIN tenants t ON t.id = tm.tenant_id
		WHERE lower(u.email) = lower($1)
		ORDER BY t.slug`,
		email,
	)
	if err != nil {
		return nil, fmt.Errorf("tenants by email: %w", err)
	}
	defer rows.Close()

	var results []Mapping
	for rows.Next() {
		var (
			m        Mapping
			userID   pgtype.UUID
			tenantID pgtype.UUID
		)
		if err := rows.Scan(&userID, &tenantID, &m.Tenant.TenantName, &m.Tenant.TenantSlug); err != nil {
			return nil, fmt.Errorf("scan tenant: %w", err)
		}
		m.UserID = userID.String()
		m.Tenant.TenantID = tenantID.String()
		results = append(results, m)
	}
	return results, rows.Err()
}

// CreateMapping records an auto-linked sender-to-tenant mapping. The unique
// constraint on (platform, workspace_id, sender, tenant_id) makes repeat
// auto-links under webhook retries harmless.
func (s *DBStore) CreateMapping(ctx context.Context, m Mapping) error {
	pgUserID, err := dbpkg.ParseUUID(m.UserID)
	if err != nil {
		return fmt.Errorf("invalid user id: %w", err)
	}
	pgTenantID, err := dbpkg.ParseUUID(m.Tenant.TenantID)
	if err != nil {
		return fmt.Errorf("invalid tenant id: %w", err)
	}
	_, err = s.db.Exec(ctx, `
		INSERT INTO chat_identity_mappings (platform, workspace_id, sender, user_id, tenant_id)
		VALUES ($1, $2, $3, $4, $5)
		ON CONFLICT (platform, workspace_id, sender, tenant_id) DO NOTHING`,
		m.Platform, m.WorkspaceID, m.Sender, pgUserID, pgTenantID,
	)
	if err != nil {
		return fmt.Errorf("create mapping: %w", err)
	}
	return nil
}

// CreateLinkToken records a minted link token jti for single-use tracking.
func (s *DBStore) CreateLinkToken(ctx context.Context, token LinkToken) error {
	_, err := s.db.Exec(ctx, `
		INSERT INTO link_tokens (jti, platform, workspace_id, sender, expires_at)
		VALUES ($1, $2, $3, $4, $5)`,
		token.JTI, token.Platform, token.WorkspaceID, token.Sender,
		pgtype.Timestamptz{Time: token.ExpiresAt, Valid: true},
	)
	if err != nil {
		return fmt.Errorf("create link token: %w", err)
	}
	return nil
}

// ConsumeLinkToken marks a link token used. It reports false when the token
// is unknown, expired, or already used; the conditional UPDATE makes
// concurrent consumption race-free.
func (s *DBStore) ConsumeLinkToken(ctx context.Context, jti string) (bool, error) {
	tag, err := s.db.Exec(ctx, `
		UPDATE link_tokens
		SET used_at = now()
		WHERE jti = $1 AND used_at IS NULL AND expires_at > now()`,
		jti,
	)
	if err != nil {
		return false, fmt.Errorf("consume link token: %w", err)
	}
	return tag.RowsAffected() == 1, nil
}

// PruneExpiredLinkTokens deletes expired token records and returns the count.
func (s *DBStore) PruneExpiredLinkTokens(ctx context.Context) (int64, error) {
	tag, err := s.db.Exec(ctx, `DELETE FROM link_tokens WHERE expires_at < now() - interval '1 hour'`)
	if err != nil {
		return 0, fmt.Errorf("prune link tokens: %w", err)
	}
	return tag.RowsAffected(), nil
}

// TouchMapping updates the mapping's last activity, best effort.
func (s *DBStore) TouchMapping(ctx context.Context, mappingID string) {
	pgID, err := dbpkg.ParseUUID(mappingID)
	if err != nil {
		return
	}
	if _, err := s.db.Exec(ctx, `UPDATE chat_identity_mappings SET last_seen_at = now() WHERE id = $1`, pgID); err != nil {
		s.logger.Debug("touch mapping failed", slog.String("mapping_id", mappingID), slog.Any("error", err))
	}
}
