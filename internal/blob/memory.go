package blob

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"net/url"
	"strconv"
	"strings"
	"sync"
	"time"
)

// Operation names passed to a MemoryStore fault hook.
const (
	OpWrite  = "write"
	OpCommit = "commit"
	OpCopy   = "copy"
	OpDelete = "delete"
	OpSign   = "sign"
	OpOpen   = "open"
)

// MemoryStore keeps objects in a map. Signed URLs use the mem:// scheme and
// are resolved by Open. Tests inject failures with SetFault.
type MemoryStore struct {
	mu      sync.RWMutex
	objects map[string][]byte
	fault   func(op, key string) error
	now     func() time.Time
}

// NewMemoryStore creates an empty store.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		objects: make(map[string][]byte),
		now:     time.Now,
	}
}

// SetFault installs a hook consulted before every operation. A non-nil
// return fails that operation. Pass nil to clear.
func (m *MemoryStore) SetFault(fn func(op, key string) error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.fault = fn
}

func (m *MemoryStore) check(op, key string) error {
	m.mu.RLock()
	fn := m.fault
	m.mu.RUnlock()
	if fn == nil {
		return nil
	}
	return fn(op, key)
}

type memWriter struct {
	store  *MemoryStore
	key    string
	buf    bytes.Buffer
	closed bool
}

func (m *MemoryStore) NewWriter(ctx context.Context, key string) (Writer, error) {
	return &memWriter{store: m, key: key}, nil
}

func (w *memWriter) WriteChunk(ctx context.Context, p []byte) error {
	if w.closed {
		return ErrWriterClosed
	}
	if err := w.store.check(OpWrite, w.key); err != nil {
		return err
	}
	w.buf.Write(p)
	return nil
}

func (w *memWriter) Commit(ctx context.Context) error {
	if w.closed {
		return ErrWriterClosed
	}
	if err := w.store.check(OpCommit, w.key); err != nil {
		return err
	}
	w.closed = true

	w.store.mu.Lock()
	defer w.store.mu.Unlock()
	w.store.objects[w.key] = append([]byte(nil), w.buf.Bytes()...)
	return nil
}

func (w *memWriter) Abort(ctx context.Context) error {
	w.closed = true
	w.buf.Reset()
	return nil
}

func (m *MemoryStore) Copy(ctx context.Context, srcKey, dstKey string) error {
	if err := m.check(OpCopy, srcKey); err != nil {
		return err
	}
	m.mu.Lock()
	defer m.mu.Unlock()

	data, ok := m.objects[srcKey]
	if !ok {
		return fmt.Errorf("%s: %w", srcKey, ErrNotFound)
	}
	m.objects[dstKey] = append([]byte(nil), data...)
	return nil
}

func (m *MemoryStore) Delete(ctx context.Context, key string) error {
	if err := m.check(OpDelete, key); err != nil {
		return err
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.objects, key)
	return nil
}

func (m *MemoryStore) SignedURL(ctx context.Context, key, method string, expiry time.Duration) (string, error) {
	if err := m.check(OpSign, key); err != nil {
		return "", err
	}
	q := url.Values{}
	q.Set("method", method)
	q.Set("expires", strconv.FormatInt(m.now().Add(expiry).Unix(), 10))
	u := url.URL{Scheme: "mem", Path: "/" + key, RawQuery: q.Encode()}
	return u.String(), nil
}

// Open accepts either a key or a mem:// URL issued by SignedURL.
func (m *MemoryStore) Open(ctx context.Context, key string) (io.ReadCloser, error) {
	if strings.HasPrefix(key, "mem://") {
		u, err := url.Parse(key)
		if err != nil {
			return nil, fmt.Errorf("invalid memory URL: %w", err)
		}
		exp, _ := strconv.ParseInt(u.Query().Get("expires"), 10, 64)
		if m.now().Unix() > exp {
			return nil, fmt.Errorf("memory URL for %s expired", u.Path)
		}
		key = strings.TrimPrefix(u.Path, "/")
	}
	if err := m.check(OpOpen, key); err != nil {
		return nil, err
	}

	m.mu.RLock()
	defer m.mu.RUnlock()
	data, ok := m.objects[key]
	if !ok {
		return nil, fmt.Errorf("%s: %w", key, ErrNotFound)
	}
	return io.NopCloser(bytes.NewReader(data)), nil
}

// Exists reports whether key has been committed.
func (m *MemoryStore) Exists(key string) bool {
	m.mu.RLock()
	defer m.mu.RUnlock()
	_, ok := m.objects[key]
	return ok
}

// Len returns the number of stored objects.
func (m *MemoryStore) Len() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.objects)
}
