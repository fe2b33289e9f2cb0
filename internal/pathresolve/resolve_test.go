package pathresolve

import (
	"testing"

	"github.com/driftbox/driftbox/internal/models"
)

func TestResolve_Full(t *testing.T) {
	r := New("alice", KeyingFull)

	tests := []struct {
		path        models.Path
		wantFolders string
		wantFiles   string
	}{
		{models.Root(), "folders/alice/user_folders", "files/alice/user_files"},
		{models.Path{"a"}, "folders/alice/user_folders/a/subfolders", "folders/alice/user_folders/a/files"},
		{models.Path{"a", "b"}, "folders/alice/user_folders/a/subfolders/b/subfolders", "folders/alice/user_folders/a/subfolders/b/files"},
	}

	for _, tt := range tests {
		t.Run(tt.path.String(), func(t *testing.T) {
			refs := r.Resolve(tt.path)
			if string(refs.Folders) != tt.wantFolders {
				t.Errorf("Folders = %s, want %s", refs.Folders, tt.wantFolders)
			}
			if string(refs.Files) != tt.wantFiles {
				t.Errorf("Files = %s, want %s", refs.Files, tt.wantFiles)
			}
		})
	}
}

func TestResolve_LastSegment(t *testing.T) {
	r := New("alice", KeyingLastSegment)

	ab := r.Resolve(models.Path{"a", "b"})
	xb := r.Resolve(models.Path{"x", "b"})
	if ab != xb {
		t.Errorf("Last-segment keying should collapse /a/b and /x/b, got %v and %v", ab, xb)
	}
	if string(ab.Files) != "folders/alice/user_folders/b/files" {
		t.Errorf("Unexpected files collection %s", ab.Files)
	}
	if string(r.Resolve(models.Root()).Files) != "files/alice/user_files" {
		t.Error("Root must resolve to the owner's top-level collections")
	}
}

// A folder's own record must sit in the collection its parent lists.
func TestFolderDocMatchesParentListing(t *testing.T) {
	for _, k := range []Keying{KeyingFull, KeyingLastSegment} {
		r := New("bob", k)
		parent := models.Path{"a", "b"}
		doc := r.FolderDoc(parent, "c")
		if doc.Collection != r.Resolve(parent).Folders {
			t.Errorf("%s: folder record %s not in parent listing %s", k, doc, r.Resolve(parent).Folders)
		}
		if doc.ID != "c" {
			t.Errorf("%s: unexpected id %s", k, doc.ID)
		}
	}
}

func TestResolve_OwnersAreIsolated(t *testing.T) {
	a := New("alice", KeyingFull).Resolve(models.Path{"docs"})
	b := New("bob", KeyingFull).Resolve(models.Path{"docs"})
	if a.Files == b.Files {
		t.Error("Different owners must not share collections")
	}
}

func TestResolve_DoesNotAliasPath(t *testing.T) {
	r := New("alice", KeyingFull)
	p := models.Path{"a", "b"}
	before := r.Resolve(p)
	p[1] = "z"
	after := r.Resolve(models.Path{"a", "b"})
	if before != after {
		t.Error("Resolve result should be a value independent of the input slice")
	}
}

func TestItemDoc(t *testing.T) {
	r := New("alice", KeyingFull)
	file := r.ItemDoc(models.Ref{Parent: models.Root(), Name: "x", Kind: models.KindFile})
	folder := r.ItemDoc(models.Ref{Parent: models.Root(), Name: "x", Kind: models.KindFolder})
	if file == folder {
		t.Error("Files and folders with the same name must have distinct records")
	}
}

func TestParseKeying(t *testing.T) {
	if k, err := ParseKeying(""); err != nil || k != KeyingFull {
		t.Errorf("Empty keying should default to full, got %s, %v", k, err)
	}
	if k, err := ParseKeying("last-segment"); err != nil || k != KeyingLastSegment {
		t.Errorf("Unexpected result %s, %v", k, err)
	}
	if _, err := ParseKeying("hash"); err == nil {
		t.Error("Expected error for unknown keying")
	}
}
