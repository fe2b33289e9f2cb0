package models

import (
	"fmt"
	"time"
)

// Kind discriminates the two Item variants.
type Kind int

const (
	KindFolder Kind = iota
	KindFile
)

func (k Kind) String() string {
	switch k {
	case KindFolder:
		return "folder"
	case KindFile:
		return "file"
	default:
		return fmt.Sprintf("kind(%d)", int(k))
	}
}

// ParseKind maps "folder"/"file" back to a Kind.
func ParseKind(s string) (Kind, error) {
	switch s {
	case "folder", "dir", "d":
		return KindFolder, nil
	case "file", "f":
		return KindFile, nil
	default:
		return 0, fmt.Errorf("unknown kind %q (want folder or file)", s)
	}
}

// Folder is a folder record. Identity is (Parent, Name).
type Folder struct {
	Parent    Path
	Name      string
	CreatedAt time.Time
}

// Path returns the path of the folder itself.
func (f *Folder) Path() Path {
	return f.Parent.Child(f.Name)
}

// FileEntry is a file record. Identity is (Parent, Name).
//
// BlobKey and DownloadURL are either both set (the bytes live in the blob
// store) or both empty (a tracked local file that has not been synced).
type FileEntry struct {
	Parent       Path
	Name         string
	Size         int64
	OriginPath   string    // local path the bytes were read from, if known
	BlobKey      string    // users/{owner}/files/{name}
	DownloadURL  string    // signed GET URL
	URLIssuedAt  time.Time // when DownloadURL was signed
	ModifiedAt   time.Time // local mtime at upload/track time
	UploadedAt   time.Time
	Synced       bool
	MovedAt      time.Time
	ParentFolder string // last folder the entry was moved into
}

// HasBlob reports whether the entry's bytes are in the blob store.
func (e *FileEntry) HasBlob() bool {
	return e.BlobKey != "" && e.DownloadURL != ""
}

// URLExpired reports whether the signed URL must be regenerated.
// Entries without an issue time predate expiry tracking and are treated as expired.
func (e *FileEntry) URLExpired(now time.Time, validity, margin time.Duration) bool {
	if !e.HasBlob() || e.URLIssuedAt.IsZero() {
		return true
	}
	return !now.Before(e.URLIssuedAt.Add(validity - margin))
}

// Item is a listing entry: exactly one of Folder or File is set, matching Kind.
type Item struct {
	Kind   Kind
	Folder *Folder
	File   *FileEntry
}

// FolderItem wraps a folder.
func FolderItem(f *Folder) Item {
	return Item{Kind: KindFolder, Folder: f}
}

// FileItem wraps a file entry.
func FileItem(e *FileEntry) Item {
	return Item{Kind: KindFile, File: e}
}

// Name returns the item's name regardless of variant.
func (it Item) Name() string {
	switch it.Kind {
	case KindFolder:
		return it.Folder.Name
	case KindFile:
		return it.File.Name
	default:
		return ""
	}
}

// Parent returns the folder the item lives in.
func (it Item) Parent() Path {
	switch it.Kind {
	case KindFolder:
		return it.Folder.Parent
	case KindFile:
		return it.File.Parent
	default:
		return nil
	}
}

// Ref is the identity of an item without its payload.
type Ref struct {
	Parent Path
	Name   string
	Kind   Kind
}

// Ref returns the item's identity.
func (it Item) Ref() Ref {
	return Ref{Parent: it.Parent(), Name: it.Name(), Kind: it.Kind}
}

func (r Ref) String() string {
	if r.Parent.IsRoot() {
		return r.Kind.String() + " " + r.Name
	}
	return r.Kind.String() + " " + r.Parent.String() + "/" + r.Name
}
