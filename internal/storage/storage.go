// Package storage holds the intermediate files of an evaluation trial and
// optionally publishes finished clips to S3.
package storage

import (
	"context"
	"io"
)

// Storage defines the interface for scratch files and artifact publishing.
type Storage interface {
	// TempFile reserves a unique, empty file in the temp directory and returns
	// its path. The name is a filename hint and ext the extension, e.g. ".wav".
	TempFile(name, ext string) (path string, err error)

	// SaveTemp saves data to a temporary file and returns the file path.
	// The name parameter is used as a hint for the filename.
	SaveTemp(ctx context.Context, name string, data io.Reader) (path string, err error)

	// LoadTemp opens a file for reading.
	// The caller is responsible for closing the returned ReadCloser.
	LoadTemp(ctx context.Context, path string) (io.ReadCloser, error)

	// CleanupTemp removes the specified temporary files.
	// It continues cleanup even if some files fail to delete.
	CleanupTemp(ctx context.Context, paths []string) error

	// UploadToS3 uploads data to S3 and returns its URL.
	// Returns ErrS3NotConfigured if S3 is not configured.
	UploadToS3(ctx context.Context, key string, data io.Reader) (url string, err error)
}
