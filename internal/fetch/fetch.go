// Package fetch reads file bytes back through their signed download URLs,
// regenerating URLs that have expired.
package fetch

import (
	"context"
	"errors"
	"fmt"
	"io"
	nethttp "net/http"
	"strings"
	"time"

	"github.com/hashicorp/go-retryablehttp"

	"github.com/driftbox/driftbox/internal/blob"
	"github.com/driftbox/driftbox/internal/constants"
	"github.com/driftbox/driftbox/internal/http"
	"github.com/driftbox/driftbox/internal/logging"
	"github.com/driftbox/driftbox/internal/metadata"
	"github.com/driftbox/driftbox/internal/metrics"
	"github.com/driftbox/driftbox/internal/models"
	"github.com/driftbox/driftbox/internal/pathresolve"
	"github.com/driftbox/driftbox/internal/version"
)

// ErrNotSynced is returned for entries whose bytes are not in the blob store.
var ErrNotSynced = errors.New("file has not been synced")

// Fetcher resolves FileEntries to readable bytes.
type Fetcher struct {
	store    metadata.Store
	blobs    blob.Store
	paths    *pathresolve.Resolver
	client   *nethttp.Client
	logger   *logging.Logger
	validity time.Duration
	now      func() time.Time
}

// retryLogger adapts zerolog to retryablehttp.LeveledLogger.
type retryLogger struct {
	logger *logging.Logger
}

func (l *retryLogger) Error(msg string, keysAndValues ...interface{}) {
	l.logger.Error().Fields(keysAndValues).Msg(msg)
}

func (l *retryLogger) Info(msg string, keysAndValues ...interface{}) {}

func (l *retryLogger) Debug(msg string, keysAndValues ...interface{}) {
	l.logger.Debug().Fields(keysAndValues).Msg(msg)
}

func (l *retryLogger) Warn(msg string, keysAndValues ...interface{}) {
	l.logger.Warn().Fields(keysAndValues).Msg(msg)
}

// New creates a Fetcher. hc is the base client for http(s) URLs and may be
// nil; it is wrapped with retries for transient failures.
func New(store metadata.Store, blobs blob.Store, paths *pathresolve.Resolver, hc *nethttp.Client, validity time.Duration, logger *logging.Logger) *Fetcher {
	if logger == nil {
		logger = logging.NewNopLogger()
	}
	if validity <= 0 {
		validity = constants.SignedURLValidity
	}
	if hc == nil {
		hc = nethttp.DefaultClient
	}
	logger = logger.Component("fetch")

	retryClient := retryablehttp.NewClient()
	retryClient.HTTPClient = hc
	retryClient.RetryMax = constants.HTTPDownloadRetries
	retryClient.RetryWaitMin = constants.RetryInitialDelay
	retryClient.RetryWaitMax = constants.RetryMaxDelay
	retryClient.Logger = &retryLogger{logger: logger}
	retryClient.CheckRetry = checkRetry

	return &Fetcher{
		store:    store,
		blobs:    blobs,
		paths:    paths,
		client:   retryClient.StandardClient(),
		logger:   logger,
		validity: validity,
		now:      time.Now,
	}
}

// checkRetry retries what the default policy retries, except transport
// errors the classifier marks fatal.
func checkRetry(ctx context.Context, resp *nethttp.Response, err error) (bool, error) {
	if err != nil && ctx.Err() == nil && http.ClassifyError(err) == http.ErrorTypeFatal {
		return false, err
	}
	return retryablehttp.DefaultRetryPolicy(ctx, resp, err)
}

// FreshURL returns a download URL for entry that is inside its validity
// window. An expired URL, or one with no recorded issue time, is replaced
// and the new URL is written back to the entry's record.
func (f *Fetcher) FreshURL(ctx context.Context, entry *models.FileEntry) (string, error) {
	if entry.BlobKey == "" {
		return "", fmt.Errorf("%w: %s", ErrNotSynced, entry.Name)
	}
	if !entry.URLExpired(f.now(), f.validity, constants.SignedURLRefreshMargin) {
		return entry.DownloadURL, nil
	}
	return f.refresh(ctx, entry)
}

func (f *Fetcher) refresh(ctx context.Context, entry *models.FileEntry) (string, error) {
	url, err := f.blobs.SignedURL(ctx, entry.BlobKey, blob.MethodGet, f.validity)
	if err != nil {
		return "", fmt.Errorf("failed to sign download URL for %s: %w", entry.BlobKey, err)
	}
	issued := f.now()

	fields := metadata.Document{
		models.FieldDownloadURL: url,
		models.FieldURLIssuedAt: models.FormatTime(issued),
	}
	if err := f.store.Update(ctx, f.paths.FileDoc(entry.Parent, entry.Name), fields); err != nil {
		return "", fmt.Errorf("failed to store refreshed URL for %s: %w", entry.Name, err)
	}

	entry.DownloadURL = url
	entry.URLIssuedAt = issued
	f.logger.Debug().Str("name", entry.Name).Str("key", entry.BlobKey).Msg("Download URL refreshed")
	return url, nil
}

// Open returns the entry's bytes and their length, or -1 if unknown.
// Remote URLs are fetched over HTTP; a 403 on a URL that looked valid is
// answered with one forced refresh. Other schemes are resolved by the blob
// store itself.
func (f *Fetcher) Open(ctx context.Context, entry *models.FileEntry) (io.ReadCloser, int64, error) {
	url, err := f.FreshURL(ctx, entry)
	if err != nil {
		return nil, 0, err
	}

	if !isHTTP(url) {
		rc, err := f.blobs.Open(ctx, url)
		if err != nil {
			return nil, 0, fmt.Errorf("failed to open %s: %w", entry.Name, err)
		}
		return rc, entry.Size, nil
	}

	resp, err := f.get(ctx, url)
	if err != nil {
		return nil, 0, err
	}
	if resp.StatusCode == nethttp.StatusForbidden {
		resp.Body.Close()
		f.logger.Warn().Str("name", entry.Name).Msg("Signed URL rejected, refreshing")
		if url, err = f.refresh(ctx, entry); err != nil {
			return nil, 0, err
		}
		if resp, err = f.get(ctx, url); err != nil {
			return nil, 0, err
		}
	}
	if resp.StatusCode != nethttp.StatusOK {
		resp.Body.Close()
		return nil, 0, fmt.Errorf("failed to download %s: HTTP %d", entry.Name, resp.StatusCode)
	}
	return resp.Body, resp.ContentLength, nil
}

func (f *Fetcher) get(ctx context.Context, url string) (*nethttp.Response, error) {
	req, err := nethttp.NewRequestWithContext(ctx, nethttp.MethodGet, url, nil)
	if err != nil {
		return nil, fmt.Errorf("invalid download URL: %w", err)
	}
	req.Header.Set("User-Agent", version.UserAgent())
	resp, err := f.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("download failed (%s): %w", http.ErrorTypeName(http.ClassifyError(err)), err)
	}
	return resp, nil
}

// Download copies the entry's bytes to w. onProgress, if set, is called
// after every write with the bytes copied so far and the total (-1 if
// unknown).
func (f *Fetcher) Download(ctx context.Context, entry *models.FileEntry, w io.Writer, onProgress func(done, total int64)) (int64, error) {
	rc, total, err := f.Open(ctx, entry)
	if err != nil {
		return 0, err
	}
	defer rc.Close()

	var dst io.Writer = w
	if onProgress != nil {
		dst = &progressWriter{w: w, total: total, fn: onProgress}
	}
	n, err := io.Copy(dst, rc)
	metrics.AddDownloadedBytes(n)
	if err != nil {
		return n, fmt.Errorf("failed to read %s: %w", entry.Name, err)
	}
	return n, nil
}

type progressWriter struct {
	w     io.Writer
	done  int64
	total int64
	fn    func(done, total int64)
}

func (p *progressWriter) Write(b []byte) (int, error) {
	n, err := p.w.Write(b)
	p.done += int64(n)
	p.fn(p.done, p.total)
	return n, err
}

func isHTTP(url string) bool {
	return strings.HasPrefix(url, "http://") || strings.HasPrefix(url, "https://")
}
