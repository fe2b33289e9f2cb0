package boltstore

import (
	"context"
	"path/filepath"
	"testing"

	"github.com/driftbox/driftbox/internal/metadata"
	"github.com/driftbox/driftbox/internal/metadata/storetest"
)

func TestBoltStore(t *testing.T) {
	storetest.Run(t, func(t *testing.T) metadata.Store {
		s, err := Open(filepath.Join(t.TempDir(), "meta.db"))
		if err != nil {
			t.Fatalf("Open failed: %v", err)
		}
		t.Cleanup(func() { s.Close() })
		return s
	})
}

func TestBoltStore_PersistsAcrossReopen(t *testing.T) {
	path := filepath.Join(t.TempDir(), "nested", "meta.db")
	ctx := context.Background()
	ref := metadata.Collection("folders", "alice", "user_folders").Doc("docs")

	s, err := Open(path)
	if err != nil {
		t.Fatalf("Open failed: %v", err)
	}
	if err := s.Set(ctx, ref, metadata.Document{"created_at": "2024-01-01T00:00:00Z"}); err != nil {
		t.Fatalf("Set failed: %v", err)
	}
	s.Close()

	s, err = Open(path)
	if err != nil {
		t.Fatalf("Reopen failed: %v", err)
	}
	defer s.Close()

	doc, err := s.Get(ctx, ref)
	if err != nil {
		t.Fatalf("Get after reopen failed: %v", err)
	}
	if doc["created_at"] != "2024-01-01T00:00:00Z" {
		t.Errorf("Unexpected document after reopen: %v", doc)
	}
}
