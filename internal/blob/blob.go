// Package blob stores rendered label PDFs in an object-storage bucket and
// hands out the public URLs the progress endpoint reports.
package blob

import (
	"context"
	"errors"
)

// ErrObjectNotFound indicates the requested object does not exist in the
// bucket.
var ErrObjectNotFound = errors.New("object not found")

// Store reads and writes PDF objects under bucket-relative paths.
type Store interface {
	// Upload writes an object, replacing any previous content at the same
	// path, and returns its public URL.
	Upload(ctx context.Context, path string, data []byte) (string, error)

	// Download fetches an object's content.
	Download(ctx context.Context, path string) ([]byte, error)

	// PublicURL returns the URL an object would be served at. It does not
	// check existence.
	PublicURL(path string) string
}
