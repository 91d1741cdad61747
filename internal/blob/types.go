// Package blob defines the blob store contract the router uploads message
// attachments through. Storage backends are pluggable providers.
package blob

import (
	"context"
	"errors"
	"io"
)

// ErrProviderUnavailable indicates no storage provider is configured.
var ErrProviderUnavailable = errors.New("blob: storage provider unavailable")

// UploadInput describes one file upload.
type UploadInput struct {
	Reader     io.Reader
	FileName   string
	MimeType   string
	Size       int64
	TenantID   string
	UploadedBy string
	Source     string
	Metadata   map[string]any
}

// Stored describes a persisted blob.
type Stored struct {
	ID       string `json:"id"`
	FileName string `json:"file_name"`
	Size     int64  `json:"size"`
}

// Store is the blob store collaborator contract.
type Store interface {
	Upload(ctx context.Context, input UploadInput) (Stored, error)
}

// Provider persists raw bytes under a storage key.
type Provider interface {
	Put(ctx context.Context, key string, reader io.Reader) error
	Open(ctx context.Context, key string) (io.ReadCloser, error)
	Delete(ctx context.Context, key string) error
}
