// Package azurestore is the blob backend for Azure Blob Storage. Chunks are
// buffered into staged blocks and published with CommitBlockList.
package azurestore

import (
	"bytes"
	"context"
	"encoding/base64"
	"fmt"
	"io"
	nethttp "net/http"
	"strings"
	"time"

	"github.com/Azure/azure-sdk-for-go/sdk/azcore"
	"github.com/Azure/azure-sdk-for-go/sdk/azcore/streaming"
	"github.com/Azure/azure-sdk-for-go/sdk/storage/azblob"
	azblobblob "github.com/Azure/azure-sdk-for-go/sdk/storage/azblob/blob"
	"github.com/Azure/azure-sdk-for-go/sdk/storage/azblob/bloberror"
	"github.com/Azure/azure-sdk-for-go/sdk/storage/azblob/blockblob"
	"github.com/Azure/azure-sdk-for-go/sdk/storage/azblob/sas"

	"github.com/driftbox/driftbox/internal/blob"
	"github.com/driftbox/driftbox/internal/constants"
	"github.com/driftbox/driftbox/internal/http"
	"github.com/driftbox/driftbox/internal/logging"
)

// copyPollInterval is how often Copy checks a pending server-side copy.
const copyPollInterval = 500 * time.Millisecond

// Options configures New.
type Options struct {
	Account    string
	AccountKey string
	Container  string
	// ServiceURL overrides https://<account>.blob.core.windows.net/ (Azurite).
	ServiceURL string
	HTTPClient *nethttp.Client
	Logger     *logging.Logger
}

// Store is a blob.Store backed by one Azure container.
type Store struct {
	client    *azblob.Client
	container string
	logger    *logging.Logger
	blockSize int
}

// ServiceURL returns the blob endpoint for an account.
func ServiceURL(account string) string {
	return fmt.Sprintf("https://%s.blob.core.windows.net/", account)
}

// New creates a shared-key client for the container.
func New(opts Options) (*Store, error) {
	if opts.Account == "" || opts.AccountKey == "" || opts.Container == "" {
		return nil, fmt.Errorf("account, account key and container are required")
	}
	if opts.Logger == nil {
		opts.Logger = logging.NewNopLogger()
	}
	if opts.HTTPClient == nil {
		hc, err := http.CreateOptimizedClient(nil)
		if err != nil {
			return nil, fmt.Errorf("failed to create HTTP client: %w", err)
		}
		opts.HTTPClient = hc
	}
	serviceURL := opts.ServiceURL
	if serviceURL == "" {
		serviceURL = ServiceURL(opts.Account)
	}

	cred, err := azblob.NewSharedKeyCredential(opts.Account, opts.AccountKey)
	if err != nil {
		return nil, fmt.Errorf("invalid Azure credentials: %w", err)
	}

	client, err := azblob.NewClientWithSharedKeyCredential(serviceURL, cred, &azblob.ClientOptions{
		ClientOptions: azcore.ClientOptions{
			Transport: opts.HTTPClient, // keep the shared connection pool
		},
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create Azure client: %w", err)
	}

	return &Store{
		client:    client,
		container: opts.Container,
		logger:    opts.Logger.Component("azure"),
		blockSize: constants.MinPartSize,
	}, nil
}

func (s *Store) blockBlob(key string) *blockblob.Client {
	return s.client.ServiceClient().NewContainerClient(s.container).NewBlockBlobClient(key)
}

func (s *Store) retry(ctx context.Context, operation string, fn func() error) error {
	cfg := http.DefaultConfig()
	cfg.OnRetry = func(attempt int, err error, errorType http.ErrorType) {
		s.logger.Debug().
			Str("op", operation).
			Int("attempt", attempt).
			Str("error_type", http.ErrorTypeName(errorType)).
			Err(err).
			Msg("Retrying Azure call")
	}
	return http.ExecuteWithRetry(ctx, cfg, fn)
}

// blockID returns a fixed-width base64 block ID; Azure requires every ID in
// a blob to have the same length.
func blockID(n int) string {
	return base64.StdEncoding.EncodeToString([]byte(fmt.Sprintf("%08d", n)))
}

type writer struct {
	s        *Store
	key      string
	bb       *blockblob.Client
	buf      bytes.Buffer
	blockIDs []string
	closed   bool
}

func (s *Store) NewWriter(ctx context.Context, key string) (blob.Writer, error) {
	return &writer{s: s, key: key, bb: s.blockBlob(key)}, nil
}

func (w *writer) WriteChunk(ctx context.Context, p []byte) error {
	if w.closed {
		return blob.ErrWriterClosed
	}
	w.buf.Write(p)
	if w.buf.Len() >= w.s.blockSize {
		return w.stage(ctx)
	}
	return nil
}

func (w *writer) stage(ctx context.Context) error {
	data := append([]byte(nil), w.buf.Bytes()...)
	w.buf.Reset()
	id := blockID(len(w.blockIDs))

	err := w.s.retry(ctx, fmt.Sprintf("StageBlock %d", len(w.blockIDs)), func() error {
		_, err := w.bb.StageBlock(ctx, id, streaming.NopCloser(bytes.NewReader(data)), nil)
		return err
	})
	if err != nil {
		return fmt.Errorf("failed to stage block for %s: %w", w.key, err)
	}
	w.blockIDs = append(w.blockIDs, id)
	return nil
}

func (w *writer) Commit(ctx context.Context) error {
	if w.closed {
		return blob.ErrWriterClosed
	}
	w.closed = true

	if w.buf.Len() > 0 {
		if err := w.stage(ctx); err != nil {
			return err
		}
	}

	// An empty block list commits a zero-length blob.
	err := w.s.retry(ctx, "CommitBlockList", func() error {
		_, err := w.bb.CommitBlockList(ctx, w.blockIDs, nil)
		return err
	})
	if err != nil {
		return fmt.Errorf("failed to commit block list for %s: %w", w.key, err)
	}
	return nil
}

// Abort drops buffered data. Uncommitted blocks are garbage collected by
// the service, there is no explicit abort call.
func (w *writer) Abort(ctx context.Context) error {
	w.closed = true
	w.buf.Reset()
	return nil
}

func (s *Store) Copy(ctx context.Context, srcKey, dstKey string) error {
	src := s.blockBlob(srcKey).BlobClient()
	sourceURL, err := src.GetSASURL(sas.BlobPermissions{Read: true}, time.Now().Add(time.Hour), nil)
	if err != nil {
		return fmt.Errorf("failed to sign copy source %s: %w", srcKey, err)
	}

	dst := s.blockBlob(dstKey).BlobClient()
	err = s.retry(ctx, "StartCopyFromURL", func() error {
		_, err := dst.StartCopyFromURL(ctx, sourceURL, nil)
		return err
	})
	if err != nil {
		if bloberror.HasCode(err, bloberror.BlobNotFound, bloberror.CannotVerifyCopySource) {
			return fmt.Errorf("%s: %w", srcKey, blob.ErrNotFound)
		}
		return fmt.Errorf("failed to copy %s to %s: %w", srcKey, dstKey, err)
	}

	// Same-account copies usually finish immediately but are asynchronous.
	for {
		props, err := dst.GetProperties(ctx, nil)
		if err != nil {
			return fmt.Errorf("failed to check copy of %s: %w", dstKey, err)
		}
		if props.CopyStatus == nil || *props.CopyStatus == azblobblob.CopyStatusTypeSuccess {
			return nil
		}
		if *props.CopyStatus != azblobblob.CopyStatusTypePending {
			return fmt.Errorf("copy of %s to %s ended with status %s", srcKey, dstKey, *props.CopyStatus)
		}
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(copyPollInterval):
		}
	}
}

func (s *Store) Delete(ctx context.Context, key string) error {
	err := s.retry(ctx, "Delete", func() error {
		_, err := s.blockBlob(key).BlobClient().Delete(ctx, nil)
		return err
	})
	if err != nil && !bloberror.HasCode(err, bloberror.BlobNotFound) {
		return fmt.Errorf("failed to delete %s: %w", key, err)
	}
	return nil
}

func (s *Store) SignedURL(ctx context.Context, key, method string, expiry time.Duration) (string, error) {
	var perms sas.BlobPermissions
	switch method {
	case blob.MethodGet:
		perms = sas.BlobPermissions{Read: true}
	case blob.MethodPut:
		perms = sas.BlobPermissions{Write: true, Create: true}
	default:
		return "", fmt.Errorf("unsupported signed URL method %q", method)
	}

	u, err := s.blockBlob(key).BlobClient().GetSASURL(perms, time.Now().Add(expiry), nil)
	if err != nil {
		return "", fmt.Errorf("failed to sign %s: %w", key, err)
	}
	return u, nil
}

// Open accepts a key or a SAS URL for a blob in this container.
func (s *Store) Open(ctx context.Context, key string) (io.ReadCloser, error) {
	if strings.HasPrefix(key, "https://") || strings.HasPrefix(key, "http://") {
		k, err := s.keyFromURL(key)
		if err != nil {
			return nil, err
		}
		key = k
	}

	var resp azblobblob.DownloadStreamResponse
	err := s.retry(ctx, "DownloadStream", func() error {
		var err error
		resp, err = s.blockBlob(key).BlobClient().DownloadStream(ctx, nil)
		return err
	})
	if err != nil {
		if bloberror.HasCode(err, bloberror.BlobNotFound) {
			return nil, fmt.Errorf("%s: %w", key, blob.ErrNotFound)
		}
		return nil, fmt.Errorf("failed to download %s: %w", key, err)
	}
	return resp.Body, nil
}

func (s *Store) keyFromURL(rawURL string) (string, error) {
	parts, err := azblob.ParseURL(rawURL)
	if err != nil {
		return "", fmt.Errorf("invalid blob URL: %w", err)
	}
	if parts.ContainerName != s.container {
		return "", fmt.Errorf("blob URL points at container %q, expected %q", parts.ContainerName, s.container)
	}
	return parts.BlobName, nil
}
