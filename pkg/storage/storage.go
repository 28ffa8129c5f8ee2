// Package storage archives processed statement files.
package storage

import (
	"context"
	"errors"
	"io"
	"time"

	"github.com/google/uuid"
)

// ErrNotFound is returned when an archived file does not exist.
var ErrNotFound = errors.New("archived file not found")

// Status records how the import of an archived file ended.
type Status string

const (
	StatusImported Status = "imported"
	StatusFailed   Status = "failed"
)

// FileInfo contains metadata about an archived file
type FileInfo struct {
	ID          uuid.UUID `json:"id"`
	UserID      string    `json:"user_id"`
	Name        string    `json:"name"`
	Size        int64     `json:"size"`
	ContentType string    `json:"content_type,omitempty"`
	Path        string    `json:"path"` // relative to the user directory
	BatchID     string    `json:"batch_id,omitempty"`
	Status      Status    `json:"status"`
	Error       string    `json:"error,omitempty"`
	ArchivedAt  time.Time `json:"archived_at"`
}

// Entry describes a file being archived.
type Entry struct {
	UserID      string
	Filename    string
	ContentType string
	BatchID     string
	Status      Status
	Error       string
}

// Archive stores statement files after they have been processed.
type Archive interface {
	// Put stores the content and returns its metadata
	Put(ctx context.Context, e Entry, r io.Reader) (*FileInfo, error)

	// Open returns a reader for an archived file
	Open(ctx context.Context, userID string, id uuid.UUID) (io.ReadCloser, *FileInfo, error)

	// Info returns metadata without opening the file
	Info(ctx context.Context, userID string, id uuid.UUID) (*FileInfo, error)

	// List returns all archived files for a user, oldest first
	List(ctx context.Context, userID string) ([]*FileInfo, error)

	// Delete removes an archived file and its metadata
	Delete(ctx context.Context, userID string, id uuid.UUID) error
}
