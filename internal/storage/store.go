// Package storage abstracts where raw uploaded workbooks are kept.
// Imported row data lives in PostgreSQL; the original files are retained
// for audit and re-download.
package storage

import (
	"context"
	"io"
)

// FileInfo describes a stored file.
type FileInfo struct {
	URL      string `json:"url"`
	FileName string `json:"fileName"`
	FileSize int64  `json:"fileSize"`
	FileType string `json:"fileType"`
}

// Store is the storage backend interface. Handlers depend on this,
// not on a concrete implementation.
type Store interface {
	Save(ctx context.Context, path string, file io.Reader, contentType string) (*FileInfo, error)
	Delete(ctx context.Context, path string) error
	// DeletePrefix removes every stored file under the given prefix,
	// e.g. all workbooks of one period.
	DeletePrefix(ctx context.Context, prefix string) error
	URL(path string) string
}
