package fetch

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/driftbox/driftbox/internal/blob"
	"github.com/driftbox/driftbox/internal/constants"
	"github.com/driftbox/driftbox/internal/metadata"
	"github.com/driftbox/driftbox/internal/models"
	"github.com/driftbox/driftbox/internal/pathresolve"
)

type fixture struct {
	store *metadata.MemoryStore
	blobs *blob.MemoryStore
	paths *pathresolve.Resolver
}

func newFixture() *fixture {
	return &fixture{
		store: metadata.NewMemoryStore(),
		blobs: blob.NewMemoryStore(),
		paths: pathresolve.New("alice", pathresolve.KeyingFull),
	}
}

// seed stores content and a record whose URL was issued at issued.
func (f *fixture) seed(t *testing.T, s blob.Store, name string, content []byte, issued time.Time) *models.FileEntry {
	t.Helper()
	ctx := context.Background()
	key := blob.Key("alice", name)
	if err := blob.Put(ctx, f.blobs, key, content); err != nil {
		t.Fatal(err)
	}
	url, err := s.SignedURL(ctx, key, blob.MethodGet, constants.SignedURLValidity)
	if err != nil {
		t.Fatal(err)
	}
	entry := &models.FileEntry{
		Parent:      models.Root(),
		Name:        name,
		Size:        int64(len(content)),
		BlobKey:     key,
		DownloadURL: url,
		URLIssuedAt: issued,
		Synced:      true,
	}
	if err := f.store.Set(ctx, f.paths.FileDoc(models.Root(), name), metadata.Document(models.FileFields(entry))); err != nil {
		t.Fatal(err)
	}
	return entry
}

func TestFreshURL_ReusesValidURL(t *testing.T) {
	f := newFixture()
	entry := f.seed(t, f.blobs, "a.txt", []byte("a"), time.Now())
	fetcher := New(f.store, f.blobs, f.paths, nil, 0, nil)
	writes := f.store.Writes()

	url, err := fetcher.FreshURL(context.Background(), entry)
	if err != nil {
		t.Fatal(err)
	}
	if url != entry.DownloadURL {
		t.Error("A URL inside its window should be reused")
	}
	if f.store.Writes() != writes {
		t.Error("Reusing a URL must not write")
	}
}

func TestFreshURL_RegeneratesExpired(t *testing.T) {
	tests := []struct {
		name   string
		issued time.Time
	}{
		{"expired", time.Now().Add(-8 * 24 * time.Hour)},
		{"inside refresh margin", time.Now().Add(-constants.SignedURLValidity + time.Minute)},
		{"no issue time", time.Time{}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			f := newFixture()
			entry := f.seed(t, f.blobs, "a.txt", []byte("a"), tt.issued)
			old := entry.DownloadURL
			fetcher := New(f.store, f.blobs, f.paths, nil, 0, nil)
			fetcher.now = func() time.Time { return time.Now().Add(time.Second) }

			url, err := fetcher.FreshURL(context.Background(), entry)
			if err != nil {
				t.Fatal(err)
			}
			if url == old {
				t.Error("Expired URL was reused")
			}

			doc, _ := f.store.Get(context.Background(), f.paths.FileDoc(models.Root(), "a.txt"))
			stored := models.FileFromFields(models.Root(), "a.txt", doc)
			if stored.DownloadURL != url || stored.URLIssuedAt.IsZero() {
				t.Errorf("Refreshed URL not persisted: %+v", stored)
			}
		})
	}
}

func TestFreshURL_NotSynced(t *testing.T) {
	f := newFixture()
	fetcher := New(f.store, f.blobs, f.paths, nil, 0, nil)
	_, err := fetcher.FreshURL(context.Background(), &models.FileEntry{Name: "local.txt"})
	if !errors.Is(err, ErrNotSynced) {
		t.Errorf("Expected ErrNotSynced, got %v", err)
	}
}

func TestDownload_BlobStoreURL(t *testing.T) {
	f := newFixture()
	content := bytes.Repeat([]byte("x"), 10000)
	entry := f.seed(t, f.blobs, "big.bin", content, time.Now())
	fetcher := New(f.store, f.blobs, f.paths, nil, 0, nil)

	var buf bytes.Buffer
	var last int64
	n, err := fetcher.Download(context.Background(), entry, &buf, func(done, total int64) { last = done })
	if err != nil {
		t.Fatal(err)
	}
	if n != int64(len(content)) || !bytes.Equal(buf.Bytes(), content) || last != n {
		t.Errorf("Downloaded %d bytes, progress %d", n, last)
	}
}

// httpSigner issues URLs pointing at a test server. The first URL it signs
// is rejected by the server, as if it had been revoked.
type httpSigner struct {
	blob.Store
	base  string
	count atomic.Int32
}

func (s *httpSigner) SignedURL(ctx context.Context, key, method string, expiry time.Duration) (string, error) {
	return fmt.Sprintf("%s/%s?v=%d", s.base, key, s.count.Add(1)), nil
}

func TestOpen_HTTPRefreshesRejectedURL(t *testing.T) {
	f := newFixture()
	var requests atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		requests.Add(1)
		if r.URL.Query().Get("v") == "1" {
			w.WriteHeader(http.StatusForbidden)
			return
		}
		w.Write([]byte("remote bytes"))
	}))
	defer srv.Close()

	signer := &httpSigner{Store: f.blobs, base: srv.URL}
	entry := f.seed(t, signer, "r.txt", []byte("remote bytes"), time.Now())
	fetcher := New(f.store, signer, f.paths, srv.Client(), 0, nil)

	var buf bytes.Buffer
	if _, err := fetcher.Download(context.Background(), entry, &buf, nil); err != nil {
		t.Fatalf("Download failed: %v", err)
	}
	if buf.String() != "remote bytes" {
		t.Errorf("Unexpected body %q", buf.String())
	}
	if requests.Load() != 2 {
		t.Errorf("Expected one rejected and one good request, got %d", requests.Load())
	}
	if signer.count.Load() != 2 {
		t.Error("Rejected URL should be re-signed once")
	}
}

func TestOpen_HTTPNotFound(t *testing.T) {
	f := newFixture()
	srv := httptest.NewServer(http.NotFoundHandler())
	defer srv.Close()

	signer := &httpSigner{Store: f.blobs, base: srv.URL}
	signer.count.Store(1)
	entry := f.seed(t, signer, "gone.txt", []byte("x"), time.Now())
	fetcher := New(f.store, signer, f.paths, srv.Client(), 0, nil)

	if _, _, err := fetcher.Open(context.Background(), entry); err == nil {
		t.Error("Expected 404 to fail")
	}
}
