package fsstore

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/driftbox/driftbox/internal/blob"
	"github.com/driftbox/driftbox/internal/blob/blobtest"
)

func newStore(t *testing.T) *Store {
	t.Helper()
	s, err := New(t.TempDir(), []byte("test-secret"))
	if err != nil {
		t.Fatalf("New failed: %v", err)
	}
	return s
}

func TestFSStore(t *testing.T) {
	blobtest.Run(t, func(t *testing.T) blob.Store {
		return newStore(t)
	})
}

func TestNew_RequiresSecret(t *testing.T) {
	if _, err := New(t.TempDir(), nil); err == nil {
		t.Error("Expected error without a signing secret")
	}
}

func TestKeyCannotEscapeRoot(t *testing.T) {
	s := newStore(t)
	ctx := context.Background()

	if _, err := s.NewWriter(ctx, "../../etc/passwd"); err == nil {
		t.Error("Expected error for a key escaping the root")
	}
	if _, err := s.Open(ctx, "users/../../outside"); err == nil {
		t.Error("Expected error opening a key escaping the root")
	}
}

func TestAbortRemovesTempFile(t *testing.T) {
	s := newStore(t)
	ctx := context.Background()
	key := blob.Key("alice", "a.bin")

	w, err := s.NewWriter(ctx, key)
	if err != nil {
		t.Fatalf("NewWriter failed: %v", err)
	}
	_ = w.WriteChunk(ctx, []byte("partial"))
	_ = w.Abort(ctx)

	entries, _ := os.ReadDir(filepath.Join(s.Root(), "users", "alice", "files"))
	if len(entries) != 0 {
		t.Errorf("Expected no files after abort, found %d", len(entries))
	}
}

func TestVerify(t *testing.T) {
	s := newStore(t)
	ctx := context.Background()
	key := blob.Key("alice", "a.txt")
	_ = blob.Put(ctx, s, key, []byte("x"))

	u, err := s.SignedURL(ctx, key, blob.MethodGet, time.Hour)
	if err != nil {
		t.Fatalf("SignedURL failed: %v", err)
	}

	gotKey, method, err := s.Verify(u)
	if err != nil {
		t.Fatalf("Verify failed: %v", err)
	}
	if gotKey != key || method != blob.MethodGet {
		t.Errorf("Verify returned %s %s", gotKey, method)
	}

	tampered := strings.Replace(u, "a.txt", "b.txt", 1)
	if _, _, err := s.Verify(tampered); !errors.Is(err, ErrInvalidSignature) {
		t.Errorf("Expected ErrInvalidSignature for tampered URL, got %v", err)
	}

	other, _ := New(s.Root(), []byte("other-secret"))
	if _, _, err := other.Verify(u); !errors.Is(err, ErrInvalidSignature) {
		t.Errorf("Expected ErrInvalidSignature with a different secret, got %v", err)
	}

	s.now = func() time.Time { return time.Now().Add(2 * time.Hour) }
	if _, _, err := s.Verify(u); !errors.Is(err, ErrURLExpired) {
		t.Errorf("Expected ErrURLExpired, got %v", err)
	}
}

func TestOpenRejectsPutURL(t *testing.T) {
	s := newStore(t)
	ctx := context.Background()
	key := blob.Key("alice", "a.txt")
	_ = blob.Put(ctx, s, key, []byte("x"))

	u, _ := s.SignedURL(ctx, key, blob.MethodPut, time.Hour)
	if _, err := s.Open(ctx, u); !errors.Is(err, ErrInvalidSignature) {
		t.Errorf("Expected PUT URL to be rejected for reads, got %v", err)
	}
}
