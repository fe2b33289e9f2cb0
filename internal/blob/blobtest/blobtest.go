// Package blobtest holds behaviour checks every blob.Store backend must pass.
package blobtest

import (
	"bytes"
	"context"
	"errors"
	"testing"
	"time"

	"github.com/driftbox/driftbox/internal/blob"
)

// Run exercises a fresh store returned by newStore for each subtest.
func Run(t *testing.T, newStore func(t *testing.T) blob.Store) {
	t.Run("ChunkedWriteThenRead", func(t *testing.T) {
		s := newStore(t)
		ctx := context.Background()
		key := blob.Key("alice", "report.pdf")

		w, err := s.NewWriter(ctx, key)
		if err != nil {
			t.Fatalf("NewWriter failed: %v", err)
		}
		var want []byte
		for i := 0; i < 3; i++ {
			chunk := bytes.Repeat([]byte{byte('a' + i)}, 1000)
			want = append(want, chunk...)
			if err := w.WriteChunk(ctx, chunk); err != nil {
				t.Fatalf("WriteChunk %d failed: %v", i, err)
			}
		}
		if err := w.Commit(ctx); err != nil {
			t.Fatalf("Commit failed: %v", err)
		}

		got, err := blob.ReadAll(ctx, s, key)
		if err != nil {
			t.Fatalf("ReadAll failed: %v", err)
		}
		if !bytes.Equal(got, want) {
			t.Errorf("Read %d bytes, expected %d", len(got), len(want))
		}
	})

	t.Run("EmptyObject", func(t *testing.T) {
		s := newStore(t)
		ctx := context.Background()
		key := blob.Key("alice", "empty.txt")

		w, err := s.NewWriter(ctx, key)
		if err != nil {
			t.Fatalf("NewWriter failed: %v", err)
		}
		if err := w.Commit(ctx); err != nil {
			t.Fatalf("Commit failed: %v", err)
		}
		got, err := blob.ReadAll(ctx, s, key)
		if err != nil {
			t.Fatalf("ReadAll failed: %v", err)
		}
		if len(got) != 0 {
			t.Errorf("Expected empty object, got %d bytes", len(got))
		}
	})

	t.Run("AbortLeavesNothing", func(t *testing.T) {
		s := newStore(t)
		ctx := context.Background()
		key := blob.Key("alice", "partial.bin")

		w, _ := s.NewWriter(ctx, key)
		_ = w.WriteChunk(ctx, []byte("partial"))
		if err := w.Abort(ctx); err != nil {
			t.Fatalf("Abort failed: %v", err)
		}
		if err := w.WriteChunk(ctx, []byte("more")); !errors.Is(err, blob.ErrWriterClosed) {
			t.Errorf("Expected ErrWriterClosed after Abort, got %v", err)
		}
		if _, err := s.Open(ctx, key); !errors.Is(err, blob.ErrNotFound) {
			t.Errorf("Expected ErrNotFound for aborted object, got %v", err)
		}
	})

	t.Run("CopyAndDelete", func(t *testing.T) {
		s := newStore(t)
		ctx := context.Background()
		src := blob.Key("alice", "a.txt")
		dst := blob.Key("alice", "b.txt")

		if err := blob.Put(ctx, s, src, []byte("hello")); err != nil {
			t.Fatalf("Put failed: %v", err)
		}
		if err := s.Copy(ctx, src, dst); err != nil {
			t.Fatalf("Copy failed: %v", err)
		}
		if err := s.Delete(ctx, src); err != nil {
			t.Fatalf("Delete failed: %v", err)
		}
		if err := s.Delete(ctx, src); err != nil {
			t.Errorf("Deleting a missing key should succeed, got %v", err)
		}

		got, err := blob.ReadAll(ctx, s, dst)
		if err != nil || string(got) != "hello" {
			t.Errorf("Expected copy to read hello, got %q, %v", got, err)
		}
		if _, err := s.Open(ctx, src); !errors.Is(err, blob.ErrNotFound) {
			t.Errorf("Expected ErrNotFound for deleted source, got %v", err)
		}
		if err := s.Copy(ctx, src, dst); !errors.Is(err, blob.ErrNotFound) {
			t.Errorf("Expected ErrNotFound copying a missing key, got %v", err)
		}
	})

	t.Run("SignedURLResolves", func(t *testing.T) {
		s := newStore(t)
		ctx := context.Background()
		key := blob.Key("alice", "photo with spaces.jpg")

		if err := blob.Put(ctx, s, key, []byte("jpeg")); err != nil {
			t.Fatalf("Put failed: %v", err)
		}
		u, err := s.SignedURL(ctx, key, blob.MethodGet, time.Hour)
		if err != nil {
			t.Fatalf("SignedURL failed: %v", err)
		}
		if u == "" {
			t.Fatal("Expected a non-empty URL")
		}

		rc, err := s.Open(ctx, u)
		if err != nil {
			t.Fatalf("Open(url) failed: %v", err)
		}
		defer rc.Close()
		buf := new(bytes.Buffer)
		buf.ReadFrom(rc)
		if buf.String() != "jpeg" {
			t.Errorf("Expected jpeg, got %q", buf.String())
		}
	})
}
