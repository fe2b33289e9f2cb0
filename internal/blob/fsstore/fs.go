// Package fsstore is the local blob backend: objects are files under a root
// directory and signed URLs are HMAC-signed file:// URLs.
package fsstore

import (
	"context"
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"io"
	"net/url"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/driftbox/driftbox/internal/blob"
	"github.com/driftbox/driftbox/internal/validation"
)

var (
	// ErrInvalidSignature is returned by Verify for tampered or foreign URLs.
	ErrInvalidSignature = errors.New("invalid URL signature")

	// ErrURLExpired is returned by Verify once a URL's expiry has passed.
	ErrURLExpired = errors.New("signed URL expired")
)

// Store keeps each object at root/<key>.
type Store struct {
	root   string
	secret []byte
	now    func() time.Time
}

// New creates the root directory if needed.
func New(root string, secret []byte) (*Store, error) {
	if len(secret) == 0 {
		return nil, fmt.Errorf("signing secret is required")
	}
	abs, err := filepath.Abs(root)
	if err != nil {
		return nil, fmt.Errorf("failed to resolve blob root: %w", err)
	}
	if err := os.MkdirAll(abs, 0700); err != nil {
		return nil, fmt.Errorf("failed to create blob root: %w", err)
	}
	return &Store{root: abs, secret: secret, now: time.Now}, nil
}

// Root returns the absolute root directory.
func (s *Store) Root() string {
	return s.root
}

func (s *Store) path(key string) (string, error) {
	if key == "" {
		return "", fmt.Errorf("blob key cannot be empty")
	}
	rel := filepath.FromSlash(key)
	if err := validation.ValidatePathInDirectory(rel, s.root); err != nil {
		return "", fmt.Errorf("invalid blob key %q: %w", key, err)
	}
	return filepath.Join(s.root, rel), nil
}

type fileWriter struct {
	final  string
	tmp    *os.File
	closed bool
}

// NewWriter stages the object in a temp file next to its final path; Commit
// renames it into place.
func (s *Store) NewWriter(ctx context.Context, key string) (blob.Writer, error) {
	final, err := s.path(key)
	if err != nil {
		return nil, err
	}
	if err := os.MkdirAll(filepath.Dir(final), 0700); err != nil {
		return nil, fmt.Errorf("failed to create directory for %s: %w", key, err)
	}
	tmp, err := os.CreateTemp(filepath.Dir(final), "."+filepath.Base(final)+".part-*")
	if err != nil {
		return nil, fmt.Errorf("failed to stage %s: %w", key, err)
	}
	return &fileWriter{final: final, tmp: tmp}, nil
}

func (w *fileWriter) WriteChunk(ctx context.Context, p []byte) error {
	if w.closed {
		return blob.ErrWriterClosed
	}
	if err := ctx.Err(); err != nil {
		return err
	}
	if _, err := w.tmp.Write(p); err != nil {
		return fmt.Errorf("failed to write chunk: %w", err)
	}
	return nil
}

func (w *fileWriter) Commit(ctx context.Context) error {
	if w.closed {
		return blob.ErrWriterClosed
	}
	w.closed = true

	if err := w.tmp.Sync(); err != nil {
		w.discard()
		return fmt.Errorf("failed to flush %s: %w", w.final, err)
	}
	if err := w.tmp.Close(); err != nil {
		os.Remove(w.tmp.Name())
		return fmt.Errorf("failed to close %s: %w", w.final, err)
	}
	if err := os.Rename(w.tmp.Name(), w.final); err != nil {
		os.Remove(w.tmp.Name())
		return fmt.Errorf("failed to publish %s: %w", w.final, err)
	}
	return nil
}

func (w *fileWriter) Abort(ctx context.Context) error {
	if w.closed {
		return nil
	}
	w.closed = true
	w.discard()
	return nil
}

func (w *fileWriter) discard() {
	w.tmp.Close()
	os.Remove(w.tmp.Name())
}

func (s *Store) Copy(ctx context.Context, srcKey, dstKey string) error {
	src, err := s.path(srcKey)
	if err != nil {
		return err
	}
	in, err := os.Open(src)
	if os.IsNotExist(err) {
		return fmt.Errorf("%s: %w", srcKey, blob.ErrNotFound)
	}
	if err != nil {
		return fmt.Errorf("failed to open %s: %w", srcKey, err)
	}
	defer in.Close()

	w, err := s.NewWriter(ctx, dstKey)
	if err != nil {
		return err
	}
	fw := w.(*fileWriter)
	if _, err := io.Copy(fw.tmp, in); err != nil {
		w.Abort(ctx)
		return fmt.Errorf("failed to copy %s to %s: %w", srcKey, dstKey, err)
	}
	return w.Commit(ctx)
}

func (s *Store) Delete(ctx context.Context, key string) error {
	p, err := s.path(key)
	if err != nil {
		return err
	}
	if err := os.Remove(p); err != nil && !os.IsNotExist(err) {
		return fmt.Errorf("failed to delete %s: %w", key, err)
	}
	return nil
}

func (s *Store) sign(method, key string, expires int64) string {
	mac := hmac.New(sha256.New, s.secret)
	fmt.Fprintf(mac, "%s\n%s\n%d", method, key, expires)
	return hex.EncodeToString(mac.Sum(nil))
}

// SignedURL returns file://<root>/<key>?method=&expires=&sig=.
func (s *Store) SignedURL(ctx context.Context, key, method string, expiry time.Duration) (string, error) {
	p, err := s.path(key)
	if err != nil {
		return "", err
	}
	expires := s.now().Add(expiry).Unix()

	q := url.Values{}
	q.Set("method", method)
	q.Set("expires", strconv.FormatInt(expires, 10))
	q.Set("sig", s.sign(method, key, expires))

	u := url.URL{Scheme: "file", Path: filepath.ToSlash(p), RawQuery: q.Encode()}
	return u.String(), nil
}

// Verify checks a URL issued by SignedURL and returns its key and method.
func (s *Store) Verify(rawURL string) (key, method string, err error) {
	u, err := url.Parse(rawURL)
	if err != nil || u.Scheme != "file" {
		return "", "", fmt.Errorf("%w: not a file URL", ErrInvalidSignature)
	}

	rootSlash := filepath.ToSlash(s.root)
	if !strings.HasPrefix(u.Path, rootSlash+"/") {
		return "", "", fmt.Errorf("%w: outside blob root", ErrInvalidSignature)
	}
	key = strings.TrimPrefix(u.Path, rootSlash+"/")

	q := u.Query()
	method = q.Get("method")
	expires, err := strconv.ParseInt(q.Get("expires"), 10, 64)
	if err != nil {
		return "", "", fmt.Errorf("%w: bad expiry", ErrInvalidSignature)
	}

	want := s.sign(method, key, expires)
	if !hmac.Equal([]byte(want), []byte(q.Get("sig"))) {
		return "", "", ErrInvalidSignature
	}
	if s.now().Unix() > expires {
		return "", "", ErrURLExpired
	}
	return key, method, nil
}

// Open accepts either a key or a GET URL issued by SignedURL.
func (s *Store) Open(ctx context.Context, key string) (io.ReadCloser, error) {
	if strings.HasPrefix(key, "file://") {
		k, method, err := s.Verify(key)
		if err != nil {
			return nil, err
		}
		if method != blob.MethodGet {
			return nil, fmt.Errorf("%w: URL was issued for %s", ErrInvalidSignature, method)
		}
		key = k
	}

	p, err := s.path(key)
	if err != nil {
		return nil, err
	}
	f, err := os.Open(p)
	if os.IsNotExist(err) {
		return nil, fmt.Errorf("%s: %w", key, blob.ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to open %s: %w", key, err)
	}
	return f, nil
}
