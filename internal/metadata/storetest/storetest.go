// Package storetest holds behaviour checks every metadata.Store backend must pass.
package storetest

import (
	"context"
	"errors"
	"testing"

	"github.com/driftbox/driftbox/internal/metadata"
	"github.com/driftbox/driftbox/internal/models"
)

// Run exercises a fresh store returned by newStore for each subtest.
func Run(t *testing.T, newStore func(t *testing.T) metadata.Store) {
	t.Run("GetMissing", func(t *testing.T) {
		s := newStore(t)
		_, err := s.Get(context.Background(), metadata.Collection("files", "alice", "user_files").Doc("nope"))
		if !errors.Is(err, metadata.ErrNotFound) {
			t.Errorf("Expected ErrNotFound, got %v", err)
		}
	})

	t.Run("SetGetExists", func(t *testing.T) {
		s := newStore(t)
		ctx := context.Background()
		ref := metadata.Collection("files", "alice", "user_files").Doc("report.pdf")

		doc := metadata.Document{
			models.FieldName:   "report.pdf",
			models.FieldSize:   int64(1 << 40),
			models.FieldSynced: true,
		}
		if err := s.Set(ctx, ref, doc); err != nil {
			t.Fatalf("Set failed: %v", err)
		}

		got, err := s.Get(ctx, ref)
		if err != nil {
			t.Fatalf("Get failed: %v", err)
		}
		if models.StringField(got, models.FieldName) != "report.pdf" {
			t.Errorf("Expected name report.pdf, got %v", got[models.FieldName])
		}
		if models.Int64Field(got, models.FieldSize) != 1<<40 {
			t.Errorf("Expected size %d, got %v", int64(1<<40), got[models.FieldSize])
		}
		if !models.BoolField(got, models.FieldSynced) {
			t.Errorf("Expected synced=true, got %v", got[models.FieldSynced])
		}

		ok, err := s.Exists(ctx, ref)
		if err != nil || !ok {
			t.Errorf("Expected document to exist, got %v, %v", ok, err)
		}
		ok, err = s.Exists(ctx, ref.Collection.Doc("other"))
		if err != nil || ok {
			t.Errorf("Expected other document to be absent, got %v, %v", ok, err)
		}
	})

	t.Run("SetOverwrites", func(t *testing.T) {
		s := newStore(t)
		ctx := context.Background()
		ref := metadata.Collection("c").Doc("d")

		_ = s.Set(ctx, ref, metadata.Document{"a": "1", "b": "2"})
		_ = s.Set(ctx, ref, metadata.Document{"a": "3"})

		got, err := s.Get(ctx, ref)
		if err != nil {
			t.Fatalf("Get failed: %v", err)
		}
		if got["a"] != "3" {
			t.Errorf("Expected a=3, got %v", got["a"])
		}
		if _, ok := got["b"]; ok {
			t.Error("Set should replace the whole document")
		}
	})

	t.Run("UpdateMerges", func(t *testing.T) {
		s := newStore(t)
		ctx := context.Background()
		ref := metadata.Collection("c").Doc("d")

		_ = s.Set(ctx, ref, metadata.Document{"a": "1", "b": "2"})
		if err := s.Update(ctx, ref, metadata.Document{"b": "3", "c": true}); err != nil {
			t.Fatalf("Update failed: %v", err)
		}

		got, _ := s.Get(ctx, ref)
		if got["a"] != "1" || got["b"] != "3" || !models.BoolField(got, "c") {
			t.Errorf("Unexpected merged document %v", got)
		}

		err := s.Update(ctx, ref.Collection.Doc("missing"), metadata.Document{"x": "y"})
		if !errors.Is(err, metadata.ErrNotFound) {
			t.Errorf("Expected ErrNotFound updating a missing document, got %v", err)
		}
	})

	t.Run("DeleteIsIdempotent", func(t *testing.T) {
		s := newStore(t)
		ctx := context.Background()
		ref := metadata.Collection("c").Doc("d")

		_ = s.Set(ctx, ref, metadata.Document{"a": "1"})
		if err := s.Delete(ctx, ref); err != nil {
			t.Fatalf("Delete failed: %v", err)
		}
		if err := s.Delete(ctx, ref); err != nil {
			t.Errorf("Deleting a missing document should succeed, got %v", err)
		}
		if ok, _ := s.Exists(ctx, ref); ok {
			t.Error("Document still exists after delete")
		}
	})

	t.Run("StreamIsScopedToCollection", func(t *testing.T) {
		s := newStore(t)
		ctx := context.Background()

		parent := metadata.Collection("folders", "alice", "user_folders")
		docs := parent.Doc("docs")
		_ = s.Set(ctx, docs, metadata.Document{models.FieldName: "docs"})
		_ = s.Set(ctx, parent.Doc("music"), metadata.Document{models.FieldName: "music"})
		_ = s.Set(ctx, docs.Sub("files").Doc("a.txt"), metadata.Document{models.FieldName: "a.txt"})
		_ = s.Set(ctx, docs.Sub("subfolders").Doc("2024"), metadata.Document{models.FieldName: "2024"})

		snaps, err := s.Stream(ctx, parent)
		if err != nil {
			t.Fatalf("Stream failed: %v", err)
		}
		if len(snaps) != 2 {
			t.Fatalf("Expected 2 documents directly in %s, got %d", parent, len(snaps))
		}
		names := map[string]bool{}
		for _, snap := range snaps {
			names[snap.ID] = true
		}
		if !names["docs"] || !names["music"] {
			t.Errorf("Unexpected stream result %v", names)
		}

		files, err := s.Stream(ctx, docs.Sub("files"))
		if err != nil {
			t.Fatalf("Stream failed: %v", err)
		}
		if len(files) != 1 || files[0].ID != "a.txt" {
			t.Errorf("Expected only a.txt in files, got %v", files)
		}

		empty, err := s.Stream(ctx, metadata.Collection("nothing", "here"))
		if err != nil {
			t.Fatalf("Stream of empty collection failed: %v", err)
		}
		if len(empty) != 0 {
			t.Errorf("Expected empty stream, got %d", len(empty))
		}
	})

	t.Run("IDsWithSpecialCharacters", func(t *testing.T) {
		s := newStore(t)
		ctx := context.Background()
		ref := metadata.Collection("files", "alice", "user_files").Doc("my report (final) v2.tar.gz")

		if err := s.Set(ctx, ref, metadata.Document{models.FieldName: ref.ID}); err != nil {
			t.Fatalf("Set failed: %v", err)
		}
		if ok, err := s.Exists(ctx, ref); err != nil || !ok {
			t.Errorf("Expected document with special characters to exist, got %v, %v", ok, err)
		}
	})
}
