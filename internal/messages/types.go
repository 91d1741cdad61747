// Package messages provides durable, idempotent persistence of inbound
// chat messages, deduplicated by platform message ID.
package messages

// EmptyContentPlaceholder replaces genuinely empty text before storage so
// downstream query classification stays well-defined.
const EmptyContentPlaceholder = "[Empty message]"

// FileUploadPlaceholder marks messages stored for file-only uploads.
// Query classification is skipped entirely for this text.
const FileUploadPlaceholder = "[File upload]"

// StoreInput is the write request for one inbound message.
type StoreInput struct {
	MessageID string
	Platform  string
	Sender    string
	Content   string
	TenantID  string
	UserID    string
}

// StoreResult reports the outcome of an idempotent store call.
// Created is false when the message ID was already present, in which case
// the caller must not repeat side-effecting work for the message.
type StoreResult struct {
	ID      string
	Created bool
}
