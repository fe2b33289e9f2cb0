// Package blob defines the object store that holds file bytes.
//
// Uploads are written in chunks through a Writer and become visible only on
// Commit. Readers never fetch bytes directly: they are handed a signed URL
// with a bounded lifetime.
package blob

import (
	"context"
	"errors"
	"io"
	"path"
	"time"

	"github.com/driftbox/driftbox/internal/constants"
)

var (
	// ErrNotFound is returned by Open and Copy when the source key is absent.
	ErrNotFound = errors.New("blob not found")

	// ErrWriterClosed is returned when a Writer is used after Commit or Abort.
	ErrWriterClosed = errors.New("blob writer already closed")
)

// HTTP methods accepted by SignedURL.
const (
	MethodGet = "GET"
	MethodPut = "PUT"
)

// Writer receives one object in order. Chunks are not visible to readers
// until Commit returns. Abort discards whatever was staged; it is best-effort
// and backends may leave staged data behind for their own lifecycle rules.
// WriteChunk must not retain p after it returns.
type Writer interface {
	WriteChunk(ctx context.Context, p []byte) error
	Commit(ctx context.Context) error
	Abort(ctx context.Context) error
}

// Store is a blob backend. Delete of a missing key is not an error.
type Store interface {
	NewWriter(ctx context.Context, key string) (Writer, error)
	Copy(ctx context.Context, srcKey, dstKey string) error
	Delete(ctx context.Context, key string) error
	SignedURL(ctx context.Context, key, method string, expiry time.Duration) (string, error)
	Open(ctx context.Context, key string) (io.ReadCloser, error)
}

// Key returns the object key for a file owned by owner:
// users/{owner}/files/{name}.
func Key(owner, name string) string {
	return path.Join(constants.BlobKeyPrefix, owner, constants.BlobKeyFilesSegment, name)
}

// Put writes data under key in a single chunk.
func Put(ctx context.Context, s Store, key string, data []byte) error {
	w, err := s.NewWriter(ctx, key)
	if err != nil {
		return err
	}
	if err := w.WriteChunk(ctx, data); err != nil {
		_ = w.Abort(ctx)
		return err
	}
	return w.Commit(ctx)
}

// ReadAll opens key and reads it fully.
func ReadAll(ctx context.Context, s Store, key string) ([]byte, error) {
	rc, err := s.Open(ctx, key)
	if err != nil {
		return nil, err
	}
	defer rc.Close()
	return io.ReadAll(rc)
}
