// Package identity resolves platform sender identities to tenants and
// internal users, including the first-contact linking flow and the
// chat-native tenant switching command grammar.
package identity

import (
	"strings"
	"time"
)

// TenantContext is the resolved multi-tenant scope a chat sender is
// operating in.
type TenantContext struct {
	TenantID   string `json:"tenant_id"`
	TenantName string `json:"tenant_name"`
	TenantSlug string `json:"tenant_slug"`
}

// Mapping links a platform sender to a tenant-scoped internal user.
type Mapping struct {
	ID          string
	Platform    string
	WorkspaceID string
	Sender      string
	UserID      string
	Tenant      TenantContext
	CreatedAt   time.Time
}

// LinkToken is the persisted single-use record behind a manual-link URL.
type LinkToken struct {
	JTI         string
	Platform    string
	WorkspaceID string
	Sender      string
	ExpiresAt   time.Time
	UsedAt      time.Time
}

// SenderKey identifies one sender's conversation for tenant-context caching.
type SenderKey struct {
	Platform       string
	WorkspaceID    string
	Sender         string
	ConversationID string
}

func (k SenderKey) normalized() SenderKey {
	return SenderKey{
		Platform:       strings.TrimSpace(strings.ToLower(k.Platform)),
		WorkspaceID:    strings.TrimSpace(k.WorkspaceID),
		Sender:         strings.TrimSpace(k.Sender),
		ConversationID: strings.TrimSpace(k.ConversationID),
	}
}
