package transfer

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"time"

	"github.com/driftbox/driftbox/internal/blob"
	"github.com/driftbox/driftbox/internal/metadata"
	"github.com/driftbox/driftbox/internal/models"
	"github.com/driftbox/driftbox/internal/validation"
)

// Upload dispatches an upload of localFile into folder p. The stored name
// is desiredName (or the file's base name), suffixed by the naming resolver
// if it collides. When the name changed, confirm is asked first; declining
// returns ErrDeclined and nothing is dispatched. A nil confirm accepts.
func (e *Engine) Upload(ctx context.Context, localFile string, p models.Path, desiredName string, confirm ConfirmFunc) (Task, error) {
	info, err := os.Stat(localFile)
	if err != nil {
		return Task{}, fmt.Errorf("%w: %v", ErrLocalFile, err)
	}
	if info.IsDir() {
		return Task{}, fmt.Errorf("%w: %s is a directory", ErrLocalFile, localFile)
	}
	if desiredName == "" {
		desiredName = filepath.Base(localFile)
	}

	final, err := e.names.UniqueName(ctx, p, desiredName)
	if err != nil {
		return Task{}, err
	}
	if final != desiredName && confirm != nil && !confirm(desiredName, final) {
		e.logger.Info().Str("name", desiredName).Str("path", p.String()).Msg("Upload declined")
		return Task{}, ErrDeclined
	}

	origin := absPath(localFile)
	target := models.Ref{Parent: p, Name: final, Kind: models.KindFile}
	return e.dispatch(ctx, KindUpload, target, func(ctx context.Context, r *reporter) error {
		return e.upload(ctx, r, origin, p, final)
	}), nil
}

func (e *Engine) upload(ctx context.Context, r *reporter, localFile string, p models.Path, name string) error {
	key := blob.Key(e.paths.Owner(), name)
	r.status("Uploading %s", name)

	size, modTime, err := e.pushFile(ctx, localFile, key, r.progress)
	if err != nil {
		return err
	}

	url, err := e.blobs.SignedURL(ctx, key, blob.MethodGet, e.validity)
	if err != nil {
		return fmt.Errorf("failed to sign download URL for %s: %w", key, err)
	}

	now := e.now()
	entry := &models.FileEntry{
		Parent:      p,
		Name:        name,
		Size:        size,
		OriginPath:  localFile,
		BlobKey:     key,
		DownloadURL: url,
		URLIssuedAt: now,
		ModifiedAt:  modTime,
		UploadedAt:  now,
		Synced:      true,
	}
	if err := e.store.Set(ctx, e.paths.FileDoc(p, name), metadata.Document(models.FileFields(entry))); err != nil {
		return fmt.Errorf("failed to record %s: %w", name, err)
	}

	r.summary = fmt.Sprintf("Uploaded %s", name)
	return nil
}

// pushFile streams localFile to key in chunkSize pieces and reports the
// running percentage after every chunk. An empty file reports 100 once. On
// failure the writer is aborted; chunks a backend already accepted are not
// cleaned up.
func (e *Engine) pushFile(ctx context.Context, localFile, key string, onProgress func(float64)) (int64, time.Time, error) {
	f, err := os.Open(localFile)
	if err != nil {
		return 0, time.Time{}, fmt.Errorf("%w: %v", ErrLocalFile, err)
	}
	defer f.Close()

	info, err := f.Stat()
	if err != nil {
		return 0, time.Time{}, fmt.Errorf("%w: %v", ErrLocalFile, err)
	}
	total := info.Size()

	w, err := e.blobs.NewWriter(ctx, key)
	if err != nil {
		return 0, time.Time{}, fmt.Errorf("failed to start upload of %s: %w", key, err)
	}

	buf := e.buffers.Get()
	defer e.buffers.Put(buf)

	var sent int64
	for {
		n, rerr := io.ReadFull(f, *buf)
		if n > 0 {
			if err := w.WriteChunk(ctx, (*buf)[:n]); err != nil {
				e.abort(ctx, w, key)
				return 0, time.Time{}, fmt.Errorf("failed to upload %s at offset %d: %w", key, sent, err)
			}
			sent += int64(n)
			if onProgress != nil {
				onProgress(percent(sent, total))
			}
		}
		if rerr == io.EOF || errors.Is(rerr, io.ErrUnexpectedEOF) {
			break
		}
		if rerr != nil {
			e.abort(ctx, w, key)
			return 0, time.Time{}, fmt.Errorf("failed to read %s: %w", localFile, rerr)
		}
	}

	if err := w.Commit(ctx); err != nil {
		return 0, time.Time{}, fmt.Errorf("failed to commit %s: %w", key, err)
	}
	if sent == 0 && onProgress != nil {
		onProgress(100)
	}

	e.logger.Debug().Str("key", key).Int64("bytes", sent).Msg("Blob written")
	return sent, info.ModTime(), nil
}

func (e *Engine) abort(ctx context.Context, w blob.Writer, key string) {
	if err := w.Abort(ctx); err != nil {
		e.logger.Warn().Err(err).Str("key", key).Msg("Failed to abort blob upload")
	}
}

// Track records localFile in folder p without uploading it. The entry is
// unsynced until SyncPath pushes its bytes. It runs on the calling
// goroutine.
func (e *Engine) Track(ctx context.Context, localFile string, p models.Path, name string) (*models.FileEntry, error) {
	info, err := os.Stat(localFile)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrLocalFile, err)
	}
	if info.IsDir() {
		return nil, fmt.Errorf("%w: %s is a directory", ErrLocalFile, localFile)
	}
	if name == "" {
		name = filepath.Base(localFile)
	}
	if err := validation.ValidateName(name); err != nil {
		return nil, err
	}

	doc := e.paths.FileDoc(p, name)
	exists, err := e.store.Exists(ctx, doc)
	if err != nil {
		return nil, fmt.Errorf("failed to check %s: %w", name, err)
	}
	if exists {
		return nil, fmt.Errorf("%w: %s in %s", ErrConflict, name, p)
	}

	entry := &models.FileEntry{
		Parent:     p,
		Name:       name,
		Size:       info.Size(),
		OriginPath: absPath(localFile),
		ModifiedAt: info.ModTime(),
	}
	if err := e.store.Set(ctx, doc, metadata.Document(models.FileFields(entry))); err != nil {
		return nil, fmt.Errorf("failed to record %s: %w", name, err)
	}

	e.logger.Info().Str("name", name).Str("path", p.String()).Str("origin", entry.OriginPath).Msg("Tracking local file")
	return entry, nil
}

// SyncPath dispatches a task that uploads every unsynced entry directly in
// p from its local origin. Entries whose origin is missing are skipped and
// reported in a status event. A failing entry does not stop the others;
// the task fails at the end if any did. When nothing is unsynced the task
// performs no metadata writes.
func (e *Engine) SyncPath(ctx context.Context, p models.Path) Task {
	target := models.Ref{Parent: p.Parent(), Name: p.Last(), Kind: models.KindFolder}
	if p.IsRoot() {
		target = models.Ref{Parent: models.Root(), Name: "/", Kind: models.KindFolder}
	}
	return e.dispatch(ctx, KindSync, target, func(ctx context.Context, r *reporter) error {
		return e.sync(ctx, r, p)
	})
}

func (e *Engine) sync(ctx context.Context, r *reporter, p models.Path) error {
	snaps, err := e.store.Stream(ctx, e.paths.Resolve(p).Files)
	if err != nil {
		return fmt.Errorf("failed to list %s: %w", p, err)
	}

	var pending []*models.FileEntry
	for _, s := range snaps {
		entry := models.FileFromFields(p, s.ID, s.Data)
		if !entry.Synced {
			pending = append(pending, entry)
		}
	}
	if len(pending) == 0 {
		r.summary = "Nothing to sync"
		return nil
	}

	var (
		synced, skipped int
		failures        []error
	)
	for i, entry := range pending {
		switch {
		case entry.OriginPath == "":
			skipped++
			r.status("Skipped %s: no local origin", entry.Name)
		case !fileExists(entry.OriginPath):
			skipped++
			e.logger.Warn().Str("name", entry.Name).Str("origin", entry.OriginPath).Msg("Local origin missing, skipping")
			r.status("Skipped %s: %s not found", entry.Name, entry.OriginPath)
		default:
			r.status("Syncing %s", entry.Name)
			if err := e.syncEntry(ctx, p, entry); err != nil {
				failures = append(failures, fmt.Errorf("%s: %w", entry.Name, err))
				e.logger.Warn().Err(err).Str("name", entry.Name).Msg("Sync of entry failed")
			} else {
				synced++
			}
		}
		r.progress(percent(int64(i+1), int64(len(pending))))
	}

	r.summary = fmt.Sprintf("Synced %d, skipped %d, failed %d", synced, skipped, len(failures))
	if len(failures) > 0 {
		return fmt.Errorf("%d of %d entries failed to sync: %w", len(failures), len(pending), errors.Join(failures...))
	}
	return nil
}

func (e *Engine) syncEntry(ctx context.Context, p models.Path, entry *models.FileEntry) error {
	key := blob.Key(e.paths.Owner(), entry.Name)
	size, modTime, err := e.pushFile(ctx, entry.OriginPath, key, nil)
	if err != nil {
		return err
	}
	url, err := e.blobs.SignedURL(ctx, key, blob.MethodGet, e.validity)
	if err != nil {
		return fmt.Errorf("failed to sign download URL for %s: %w", key, err)
	}

	now := e.now()
	fields := metadata.Document{
		models.FieldStoragePath:  key,
		models.FieldDownloadURL:  url,
		models.FieldURLIssuedAt:  models.FormatTime(now),
		models.FieldSize:         size,
		models.FieldModifiedTime: models.FormatTime(modTime),
		models.FieldUploadedAt:   models.FormatTime(now),
		models.FieldSynced:       true,
	}
	if err := e.store.Update(ctx, e.paths.FileDoc(p, entry.Name), fields); err != nil {
		return fmt.Errorf("failed to mark %s synced: %w", entry.Name, err)
	}
	return nil
}

func fileExists(path string) bool {
	info, err := os.Stat(path)
	return err == nil && !info.IsDir()
}

func absPath(p string) string {
	if abs, err := filepath.Abs(p); err == nil {
		return abs
	}
	return p
}
