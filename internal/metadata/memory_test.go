package metadata_test

import (
	"context"
	"testing"

	"github.com/driftbox/driftbox/internal/metadata"
	"github.com/driftbox/driftbox/internal/metadata/storetest"
)

func TestMemoryStore(t *testing.T) {
	storetest.Run(t, func(t *testing.T) metadata.Store {
		return metadata.NewMemoryStore()
	})
}

func TestInstrumentedMemoryStore(t *testing.T) {
	storetest.Run(t, func(t *testing.T) metadata.Store {
		return metadata.Instrument(metadata.NewMemoryStore())
	})
}

func TestMemoryStore_StreamKeepsInsertionOrder(t *testing.T) {
	s := metadata.NewMemoryStore()
	ctx := context.Background()
	col := metadata.Collection("c")

	for _, id := range []string{"zeta", "alpha", "mid"} {
		_ = s.Set(ctx, col.Doc(id), metadata.Document{"n": id})
	}
	// Overwriting keeps the original position.
	_ = s.Set(ctx, col.Doc("zeta"), metadata.Document{"n": "zeta2"})

	snaps, _ := s.Stream(ctx, col)
	want := []string{"zeta", "alpha", "mid"}
	for i, snap := range snaps {
		if snap.ID != want[i] {
			t.Errorf("Position %d: expected %s, got %s", i, want[i], snap.ID)
		}
	}
}

func TestMemoryStore_CountsWrites(t *testing.T) {
	s := metadata.NewMemoryStore()
	ctx := context.Background()
	ref := metadata.Collection("c").Doc("d")

	_ = s.Set(ctx, ref, metadata.Document{"a": 1})
	_ = s.Update(ctx, ref, metadata.Document{"a": 2})
	_, _ = s.Get(ctx, ref)
	_, _ = s.Stream(ctx, ref.Collection)
	_ = s.Delete(ctx, ref)

	if s.Writes() != 3 {
		t.Errorf("Expected 3 writes, got %d", s.Writes())
	}
	if s.Reads() != 2 {
		t.Errorf("Expected 2 reads, got %d", s.Reads())
	}
}

func TestMemoryStore_ReturnsCopies(t *testing.T) {
	s := metadata.NewMemoryStore()
	ctx := context.Background()
	ref := metadata.Collection("c").Doc("d")

	doc := metadata.Document{"a": "1"}
	_ = s.Set(ctx, ref, doc)
	doc["a"] = "mutated"

	got, _ := s.Get(ctx, ref)
	if got["a"] != "1" {
		t.Errorf("Store should not alias caller maps, got %v", got["a"])
	}
}
