// Package pathresolve maps a folder Path to the metadata collections that
// hold the folders and files directly inside it. It performs no I/O.
//
// Layout for owner "alice" with full keying:
//
//	/        -> folders/alice/user_folders, files/alice/user_files
//	/a       -> folders/alice/user_folders/a/subfolders, .../a/files
//	/a/b     -> folders/alice/user_folders/a/subfolders/b/subfolders, .../b/files
//
// Last-segment keying resolves every non-root path by its final name only
// (/a/b and /x/b share folders/alice/user_folders/b/...). It exists to read
// trees written by older desktop clients and cannot tell apart two folders
// with the same name.
package pathresolve

import (
	"fmt"

	"github.com/driftbox/driftbox/internal/metadata"
	"github.com/driftbox/driftbox/internal/models"
)

// Keying selects how ancestors contribute to a collection reference.
type Keying string

const (
	KeyingFull        Keying = "full"
	KeyingLastSegment Keying = "last-segment"
)

// ParseKeying validates a configured keying mode. Empty means full.
func ParseKeying(s string) (Keying, error) {
	switch Keying(s) {
	case "", KeyingFull:
		return KeyingFull, nil
	case KeyingLastSegment:
		return KeyingLastSegment, nil
	default:
		return "", fmt.Errorf("unknown path keying %q", s)
	}
}

// Collection segment names.
const (
	foldersRoot = "folders"
	filesRoot   = "files"
	userFolders = "user_folders"
	userFiles   = "user_files"
	subfolders  = "subfolders"
	files       = "files"
)

// Refs are the two collections for one folder path.
type Refs struct {
	Folders metadata.CollectionRef
	Files   metadata.CollectionRef
}

// Resolver resolves paths for a single owner.
type Resolver struct {
	owner  string
	keying Keying
}

// New returns a resolver for owner. An unknown keying falls back to full.
func New(owner string, keying Keying) *Resolver {
	if keying != KeyingLastSegment {
		keying = KeyingFull
	}
	return &Resolver{owner: owner, keying: keying}
}

// Owner returns the owner identifier the resolver was built for.
func (r *Resolver) Owner() string {
	return r.owner
}

// Keying returns the active keying mode.
func (r *Resolver) Keying() Keying {
	return r.keying
}

func (r *Resolver) rootFolders() metadata.CollectionRef {
	return metadata.Collection(foldersRoot, r.owner, userFolders)
}

// Resolve returns the folder and file collections directly inside p.
func (r *Resolver) Resolve(p models.Path) Refs {
	if p.IsRoot() {
		return Refs{
			Folders: r.rootFolders(),
			Files:   metadata.Collection(filesRoot, r.owner, userFiles),
		}
	}

	var doc metadata.DocumentRef
	switch r.keying {
	case KeyingLastSegment:
		doc = r.rootFolders().Doc(p.Last())
	default:
		col := r.rootFolders()
		for _, seg := range p {
			doc = col.Doc(seg)
			col = doc.Sub(subfolders)
		}
	}

	return Refs{
		Folders: doc.Sub(subfolders),
		Files:   doc.Sub(files),
	}
}

// FolderDoc returns the record of folder name inside parent.
func (r *Resolver) FolderDoc(parent models.Path, name string) metadata.DocumentRef {
	return r.Resolve(parent).Folders.Doc(name)
}

// FileDoc returns the record of file name inside parent.
func (r *Resolver) FileDoc(parent models.Path, name string) metadata.DocumentRef {
	return r.Resolve(parent).Files.Doc(name)
}

// ItemDoc returns the record for ref, dispatching on its kind.
func (r *Resolver) ItemDoc(ref models.Ref) metadata.DocumentRef {
	switch ref.Kind {
	case models.KindFolder:
		return r.FolderDoc(ref.Parent, ref.Name)
	case models.KindFile:
		return r.FileDoc(ref.Parent, ref.Name)
	default:
		panic(fmt.Sprintf("pathresolve: unknown kind %v", ref.Kind))
	}
}
