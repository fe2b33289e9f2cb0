package blob

import (
	"context"
	"io"
	"time"

	"github.com/driftbox/driftbox/internal/metrics"
)

// Instrument wraps s so every call is timed in the blob operation histogram
// and committed upload bytes are counted.
func Instrument(s Store) Store {
	return &instrumented{next: s}
}

type instrumented struct {
	next Store
}

type instrumentedWriter struct {
	next    Writer
	written int64
}

func (i *instrumented) NewWriter(ctx context.Context, key string) (Writer, error) {
	start := time.Now()
	w, err := i.next.NewWriter(ctx, key)
	metrics.ObserveBlobOp("new_writer", start, err)
	if err != nil {
		return nil, err
	}
	return &instrumentedWriter{next: w}, nil
}

func (w *instrumentedWriter) WriteChunk(ctx context.Context, p []byte) error {
	start := time.Now()
	err := w.next.WriteChunk(ctx, p)
	metrics.ObserveBlobOp("write_chunk", start, err)
	if err == nil {
		w.written += int64(len(p))
	}
	return err
}

func (w *instrumentedWriter) Commit(ctx context.Context) error {
	start := time.Now()
	err := w.next.Commit(ctx)
	metrics.ObserveBlobOp("commit", start, err)
	if err == nil {
		metrics.AddUploadedBytes(w.written)
	}
	return err
}

func (w *instrumentedWriter) Abort(ctx context.Context) error {
	start := time.Now()
	err := w.next.Abort(ctx)
	metrics.ObserveBlobOp("abort", start, err)
	return err
}

func (i *instrumented) Copy(ctx context.Context, srcKey, dstKey string) error {
	start := time.Now()
	err := i.next.Copy(ctx, srcKey, dstKey)
	metrics.ObserveBlobOp("copy", start, err)
	return err
}

func (i *instrumented) Delete(ctx context.Context, key string) error {
	start := time.Now()
	err := i.next.Delete(ctx, key)
	metrics.ObserveBlobOp("delete", start, err)
	return err
}

func (i *instrumented) SignedURL(ctx context.Context, key, method string, expiry time.Duration) (string, error) {
	start := time.Now()
	u, err := i.next.SignedURL(ctx, key, method, expiry)
	metrics.ObserveBlobOp("sign", start, err)
	return u, err
}

func (i *instrumented) Open(ctx context.Context, key string) (io.ReadCloser, error) {
	start := time.Now()
	rc, err := i.next.Open(ctx, key)
	metrics.ObserveBlobOp("open", start, err)
	return rc, err
}
