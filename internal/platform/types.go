// Package platform defines the platform-agnostic message envelope produced
// by the per-platform webhook normalizers, plus the envelope shape
// classification the router branches on.
package platform

import (
	"strings"
	"time"
)

// Platform identifies a messaging platform.
type Platform string

const (
	WhatsApp Platform = "whatsapp"
	Slack    Platform = "slack"
)

// String returns the platform as a plain string.
func (p Platform) String() string {
	return string(p)
}

// Attachment describes one file attached to an inbound message.
type Attachment struct {
	ID       string `json:"id"`
	FileName string `json:"file_name,omitempty"`
	MimeType string `json:"mime_type"`
	Size     int64  `json:"size,omitempty"`
	URL      string `json:"url,omitempty"`
}

// MessageEnvelope is the normalized, platform-agnostic representation of one
// inbound message. MessageID is unique per platform and is the dedup key.
type MessageEnvelope struct {
	MessageID   string         `json:"message_id"`
	Platform    Platform       `json:"platform"`
	Sender      string         `json:"sender"`
	Timestamp   time.Time      `json:"timestamp"`
	Content     string         `json:"content,omitempty"`
	Attachments []Attachment   `json:"attachments,omitempty"`
	Metadata    map[string]any `json:"metadata,omitempty"`
}

// HasText reports whether the envelope carries non-blank text.
func (e MessageEnvelope) HasText() bool {
	return strings.TrimSpace(e.Content) != ""
}

// HasAttachments reports whether the envelope carries any attachments.
func (e MessageEnvelope) HasAttachments() bool {
	return len(e.Attachments) > 0
}

// Meta returns the trimmed string value for a metadata key, or "".
func (e MessageEnvelope) Meta(key string) string {
	if e.Metadata == nil {
		return ""
	}
	value, _ := e.Metadata[key].(string)
	return strings.TrimSpace(value)
}

// Shape is the envelope classification the router branches on.
// Exactly one shape applies to any envelope; it is determined solely by
// text and attachment presence.
type Shape int

const (
	ShapeEmpty Shape = iota
	ShapeFileOnly
	ShapeTextOnly
	ShapeMixed
)

// String names the shape for logs.
func (s Shape) String() string {
	switch s {
	case ShapeFileOnly:
		return "file_only"
	case ShapeTextOnly:
		return "text_only"
	case ShapeMixed:
		return "mixed"
	default:
		return "empty"
	}
}

// Classify returns the envelope's shape.
func (e MessageEnvelope) Classify() Shape {
	switch {
	case e.HasText() && e.HasAttachments():
		return ShapeMixed
	case e.HasAttachments():
		return ShapeFileOnly
	case e.HasText():
		return ShapeTextOnly
	default:
		return ShapeEmpty
	}
}
