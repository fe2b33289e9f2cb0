package transfer

import (
	"context"
	"fmt"

	"github.com/driftbox/driftbox/internal/blob"
	"github.com/driftbox/driftbox/internal/metadata"
	"github.com/driftbox/driftbox/internal/models"
	"github.com/driftbox/driftbox/internal/pathresolve"
	"github.com/driftbox/driftbox/internal/validation"
)

// Rename dispatches a rename of oldName in p to newName. An existing item
// of the same kind named newName is a conflict and nothing is dispatched.
//
// Every rename writes the new record before deleting the old one, so an
// interruption leaves both names readable rather than neither.
func (e *Engine) Rename(ctx context.Context, p models.Path, oldName string, kind models.Kind, newName string) (Task, error) {
	if err := validation.ValidateName(newName); err != nil {
		return Task{}, err
	}
	if oldName == newName {
		return Task{}, fmt.Errorf("%w: %s", ErrSameName, oldName)
	}

	var fn workFunc
	switch kind {
	case models.KindFolder:
		fn = func(ctx context.Context, r *reporter) error {
			return e.renameFolder(ctx, r, p, oldName, newName)
		}
	case models.KindFile:
		fn = func(ctx context.Context, r *reporter) error {
			return e.renameFile(ctx, r, p, oldName, newName)
		}
	default:
		return Task{}, fmt.Errorf("cannot rename %s: unknown kind %v", oldName, kind)
	}

	dst := models.Ref{Parent: p, Name: newName, Kind: kind}
	exists, err := e.store.Exists(ctx, e.paths.ItemDoc(dst))
	if err != nil {
		return Task{}, fmt.Errorf("failed to check %s: %w", newName, err)
	}
	if exists {
		return Task{}, fmt.Errorf("%w: %s", ErrConflict, dst)
	}

	return e.dispatch(ctx, KindRename, models.Ref{Parent: p, Name: oldName, Kind: kind}, fn), nil
}

// renameFolder copies the folder record and everything beneath it to the
// new name, then removes the old records. If any copy fails nothing is
// deleted.
func (e *Engine) renameFolder(ctx context.Context, r *reporter, p models.Path, oldName, newName string) error {
	oldDoc := e.paths.FolderDoc(p, oldName)
	doc, err := e.store.Get(ctx, oldDoc)
	if err != nil {
		return fmt.Errorf("failed to read folder %s: %w", oldName, err)
	}
	doc[models.FieldName] = newName

	if err := e.store.Set(ctx, e.paths.FolderDoc(p, newName), doc); err != nil {
		return fmt.Errorf("failed to create folder %s: %w", newName, err)
	}
	from, to := p.Child(oldName), p.Child(newName)
	if err := e.copyContents(ctx, from, to); err != nil {
		return fmt.Errorf("failed to copy contents of %s: %w", oldName, err)
	}
	r.status("Copied %s to %s", oldName, newName)

	if err := e.deleteContents(ctx, from, false); err != nil {
		return fmt.Errorf("failed to remove old contents of %s: %w", oldName, err)
	}
	if err := e.store.Delete(ctx, oldDoc); err != nil {
		return fmt.Errorf("failed to delete folder %s: %w", oldName, err)
	}

	r.summary = fmt.Sprintf("Renamed %s to %s", oldName, newName)
	return nil
}

// renameFile copies the blob to the key for newName, writes the new record
// and only then deletes the old blob and record.
func (e *Engine) renameFile(ctx context.Context, r *reporter, p models.Path, oldName, newName string) error {
	oldDoc := e.paths.FileDoc(p, oldName)
	doc, err := e.store.Get(ctx, oldDoc)
	if err != nil {
		return fmt.Errorf("failed to read file %s: %w", oldName, err)
	}

	entry := models.FileFromFields(p, oldName, doc)
	oldKey := entry.BlobKey
	entry.Name = newName

	if oldKey != "" {
		newKey := blob.Key(e.paths.Owner(), newName)
		r.status("Copying %s", oldKey)
		if err := e.blobs.Copy(ctx, oldKey, newKey); err != nil {
			return fmt.Errorf("failed to copy %s to %s: %w", oldKey, newKey, err)
		}
		url, err := e.blobs.SignedURL(ctx, newKey, blob.MethodGet, e.validity)
		if err != nil {
			return fmt.Errorf("failed to sign download URL for %s: %w", newKey, err)
		}
		entry.BlobKey = newKey
		entry.DownloadURL = url
		entry.URLIssuedAt = e.now()
	}

	if err := e.store.Set(ctx, e.paths.FileDoc(p, newName), merge(doc, models.FileFields(entry))); err != nil {
		return fmt.Errorf("failed to write %s: %w", newName, err)
	}

	if oldKey != "" {
		if err := e.blobs.Delete(ctx, oldKey); err != nil {
			e.logger.Warn().Err(err).Str("key", oldKey).Msg("Failed to delete old blob after rename")
		}
	}
	if err := e.store.Delete(ctx, oldDoc); err != nil {
		return fmt.Errorf("failed to delete %s: %w", oldName, err)
	}

	r.summary = fmt.Sprintf("Renamed %s to %s", oldName, newName)
	return nil
}

// Move dispatches a move of fileName from folder from into its subfolder
// toFolderName.
func (e *Engine) Move(ctx context.Context, fileName string, from models.Path, toFolderName string) (Task, error) {
	if err := validation.ValidateName(toFolderName); err != nil {
		return Task{}, err
	}
	return e.MoveTo(ctx, fileName, from, from.Child(toFolderName))
}

// MoveTo dispatches a move of fileName from folder from into folder to. If
// to already holds a file of that name, ErrConflict is returned and nothing
// changes. The blob is not touched.
func (e *Engine) MoveTo(ctx context.Context, fileName string, from, to models.Path) (Task, error) {
	if err := validation.ValidateName(fileName); err != nil {
		return Task{}, err
	}
	if from.Equal(to) {
		return Task{}, fmt.Errorf("%w: %s", ErrSameFolder, to)
	}

	if !to.IsRoot() {
		ok, err := e.store.Exists(ctx, e.paths.FolderDoc(to.Parent(), to.Last()))
		if err != nil {
			return Task{}, fmt.Errorf("failed to check folder %s: %w", to, err)
		}
		if !ok {
			return Task{}, fmt.Errorf("%w: %s", ErrNoSuchFolder, to)
		}
	}

	exists, err := e.store.Exists(ctx, e.paths.FileDoc(to, fileName))
	if err != nil {
		return Task{}, fmt.Errorf("failed to check %s in %s: %w", fileName, to, err)
	}
	if exists {
		return Task{}, fmt.Errorf("%w: %s in %s", ErrConflict, fileName, to)
	}

	target := models.Ref{Parent: from, Name: fileName, Kind: models.KindFile}
	return e.dispatch(ctx, KindMove, target, func(ctx context.Context, r *reporter) error {
		return e.move(ctx, r, fileName, from, to)
	}), nil
}

func (e *Engine) move(ctx context.Context, r *reporter, name string, from, to models.Path) error {
	srcDoc := e.paths.FileDoc(from, name)
	doc, err := e.store.Get(ctx, srcDoc)
	if err != nil {
		return fmt.Errorf("failed to read %s: %w", name, err)
	}

	entry := models.FileFromFields(to, name, doc)
	entry.MovedAt = e.now()
	entry.ParentFolder = to.Last()

	if err := e.store.Set(ctx, e.paths.FileDoc(to, name), merge(doc, models.FileFields(entry))); err != nil {
		return fmt.Errorf("failed to write %s in %s: %w", name, to, err)
	}
	if err := e.store.Delete(ctx, srcDoc); err != nil {
		return fmt.Errorf("failed to remove %s from %s: %w", name, from, err)
	}

	r.summary = fmt.Sprintf("Moved %s to %s", name, to.Breadcrumb())
	return nil
}

// Delete dispatches removal of an item. A file's blob is deleted best
// effort before its record. A folder loses only its own record unless the
// engine was built with CascadeDelete.
func (e *Engine) Delete(ctx context.Context, p models.Path, name string, kind models.Kind) (Task, error) {
	if err := validation.ValidateName(name); err != nil {
		return Task{}, err
	}

	var fn workFunc
	switch kind {
	case models.KindFolder:
		fn = func(ctx context.Context, r *reporter) error {
			return e.deleteFolder(ctx, r, p, name)
		}
	case models.KindFile:
		fn = func(ctx context.Context, r *reporter) error {
			if err := e.deleteFile(ctx, p, name); err != nil {
				return err
			}
			r.summary = fmt.Sprintf("Deleted %s", name)
			return nil
		}
	default:
		return Task{}, fmt.Errorf("cannot delete %s: unknown kind %v", name, kind)
	}

	return e.dispatch(ctx, KindDelete, models.Ref{Parent: p, Name: name, Kind: kind}, fn), nil
}

func (e *Engine) deleteFolder(ctx context.Context, r *reporter, p models.Path, name string) error {
	if e.cascade {
		r.status("Deleting contents of %s", name)
		if err := e.deleteContents(ctx, p.Child(name), true); err != nil {
			return fmt.Errorf("failed to delete contents of %s: %w", name, err)
		}
	}
	if err := e.store.Delete(ctx, e.paths.FolderDoc(p, name)); err != nil {
		return fmt.Errorf("failed to delete folder %s: %w", name, err)
	}
	r.summary = fmt.Sprintf("Deleted folder %s", name)
	return nil
}

func (e *Engine) deleteFile(ctx context.Context, p models.Path, name string) error {
	doc := e.paths.FileDoc(p, name)
	data, err := e.store.Get(ctx, doc)
	switch {
	case err == nil:
		e.deleteBlob(ctx, models.FileFromFields(p, name, data))
	case !metadata.IsNotFound(err):
		return fmt.Errorf("failed to read %s: %w", name, err)
	}

	if err := e.store.Delete(ctx, doc); err != nil {
		return fmt.Errorf("failed to delete %s: %w", name, err)
	}
	return nil
}

// deleteBlob removes an entry's bytes. Failures are logged and swallowed.
func (e *Engine) deleteBlob(ctx context.Context, entry *models.FileEntry) {
	if entry.BlobKey == "" {
		return
	}
	if err := e.blobs.Delete(ctx, entry.BlobKey); err != nil {
		e.logger.Warn().Err(err).Str("key", entry.BlobKey).Str("name", entry.Name).Msg("Failed to delete blob")
	}
}

// copyContents duplicates every folder and file record beneath from into
// the matching place beneath to.
func (e *Engine) copyContents(ctx context.Context, from, to models.Path) error {
	src, dst := e.paths.Resolve(from), e.paths.Resolve(to)

	files, err := e.store.Stream(ctx, src.Files)
	if err != nil {
		return err
	}
	for _, s := range files {
		doc := s.Data.Clone()
		if _, ok := doc[models.FieldPath]; ok {
			doc[models.FieldPath] = to.String()
		}
		if err := e.store.Set(ctx, dst.Files.Doc(s.ID), doc); err != nil {
			return err
		}
	}

	folders, err := e.store.Stream(ctx, src.Folders)
	if err != nil {
		return err
	}
	for _, s := range folders {
		if err := e.store.Set(ctx, dst.Folders.Doc(s.ID), s.Data); err != nil {
			return err
		}
		if !e.nested() {
			continue
		}
		if err := e.copyContents(ctx, from.Child(s.ID), to.Child(s.ID)); err != nil {
			return err
		}
	}
	return nil
}

// deleteContents removes every record beneath p, deepest first. With
// withBlobs the files' bytes are deleted best effort as well.
func (e *Engine) deleteContents(ctx context.Context, p models.Path, withBlobs bool) error {
	refs := e.paths.Resolve(p)

	folders, err := e.store.Stream(ctx, refs.Folders)
	if err != nil {
		return err
	}
	for _, s := range folders {
		if e.nested() {
			if err := e.deleteContents(ctx, p.Child(s.ID), withBlobs); err != nil {
				return err
			}
		}
		if err := e.store.Delete(ctx, refs.Folders.Doc(s.ID)); err != nil {
			return err
		}
	}

	files, err := e.store.Stream(ctx, refs.Files)
	if err != nil {
		return err
	}
	for _, s := range files {
		if withBlobs {
			e.deleteBlob(ctx, models.FileFromFields(p, s.ID, s.Data))
		}
		if err := e.store.Delete(ctx, refs.Files.Doc(s.ID)); err != nil {
			return err
		}
	}
	return nil
}

// nested reports whether a subfolder's contents live beneath its parent's
// records. Under last-segment keying every folder is keyed by its own name,
// so /a/a resolves to the same collections as /a and /x/c shares /a/c's
// contents. Descending there would loop or reach into other folders, so
// only the folder's direct records are copied or deleted.
func (e *Engine) nested() bool {
	return e.paths.Keying() != pathresolve.KeyingLastSegment
}

// merge overlays fields on a copy of doc, keeping any fields the model
// does not know about.
func merge(doc metadata.Document, fields map[string]interface{}) metadata.Document {
	out := doc.Clone()
	for k, v := range fields {
		out[k] = v
	}
	return out
}
