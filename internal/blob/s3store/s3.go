// Package s3store is the blob backend for Amazon S3 and S3-compatible
// servers (MinIO, Ceph RGW). Chunks are buffered into multipart upload parts
// of at least 5 MiB; objects smaller than one part go through PutObject.
package s3store

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	nethttp "net/http"
	"net/url"
	"strings"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	v4 "github.com/aws/aws-sdk-go-v2/aws/signer/v4"
	"github.com/aws/aws-sdk-go-v2/config"
	awscreds "github.com/aws/aws-sdk-go-v2/credentials"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/aws/aws-sdk-go-v2/service/s3/types"

	"github.com/driftbox/driftbox/internal/blob"
	"github.com/driftbox/driftbox/internal/constants"
	"github.com/driftbox/driftbox/internal/http"
	"github.com/driftbox/driftbox/internal/logging"
)

// api is the subset of *s3.Client the store uses.
type api interface {
	PutObject(ctx context.Context, params *s3.PutObjectInput, optFns ...func(*s3.Options)) (*s3.PutObjectOutput, error)
	GetObject(ctx context.Context, params *s3.GetObjectInput, optFns ...func(*s3.Options)) (*s3.GetObjectOutput, error)
	CopyObject(ctx context.Context, params *s3.CopyObjectInput, optFns ...func(*s3.Options)) (*s3.CopyObjectOutput, error)
	DeleteObject(ctx context.Context, params *s3.DeleteObjectInput, optFns ...func(*s3.Options)) (*s3.DeleteObjectOutput, error)
	CreateMultipartUpload(ctx context.Context, params *s3.CreateMultipartUploadInput, optFns ...func(*s3.Options)) (*s3.CreateMultipartUploadOutput, error)
	UploadPart(ctx context.Context, params *s3.UploadPartInput, optFns ...func(*s3.Options)) (*s3.UploadPartOutput, error)
	CompleteMultipartUpload(ctx context.Context, params *s3.CompleteMultipartUploadInput, optFns ...func(*s3.Options)) (*s3.CompleteMultipartUploadOutput, error)
	AbortMultipartUpload(ctx context.Context, params *s3.AbortMultipartUploadInput, optFns ...func(*s3.Options)) (*s3.AbortMultipartUploadOutput, error)
}

// presigner is the subset of *s3.PresignClient the store uses.
type presigner interface {
	PresignGetObject(ctx context.Context, params *s3.GetObjectInput, optFns ...func(*s3.PresignOptions)) (*v4.PresignedHTTPRequest, error)
	PresignPutObject(ctx context.Context, params *s3.PutObjectInput, optFns ...func(*s3.PresignOptions)) (*v4.PresignedHTTPRequest, error)
}

// Options configures New.
type Options struct {
	Bucket          string
	Region          string
	Endpoint        string // custom endpoint for S3-compatible servers
	AccessKeyID     string // empty uses the default AWS credential chain
	SecretAccessKey string
	PathStyle       bool
	HTTPClient      *nethttp.Client
	Logger          *logging.Logger
}

// Store is a blob.Store backed by one S3 bucket.
type Store struct {
	client     api
	presign    presigner
	bucket     string
	httpClient *nethttp.Client
	logger     *logging.Logger
	partSize   int
}

// New loads the AWS configuration and creates the S3 client.
func New(ctx context.Context, opts Options) (*Store, error) {
	if opts.Bucket == "" {
		return nil, fmt.Errorf("bucket is required")
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

	loadOpts := []func(*config.LoadOptions) error{
		config.WithRegion(opts.Region),
		config.WithHTTPClient(opts.HTTPClient),
	}
	if opts.AccessKeyID != "" {
		loadOpts = append(loadOpts, config.WithCredentialsProvider(
			awscreds.NewStaticCredentialsProvider(opts.AccessKeyID, opts.SecretAccessKey, ""),
		))
	}

	cfg, err := config.LoadDefaultConfig(ctx, loadOpts...)
	if err != nil {
		return nil, fmt.Errorf("failed to load AWS config: %w", err)
	}

	client := s3.NewFromConfig(cfg, func(o *s3.Options) {
		if opts.Endpoint != "" {
			o.BaseEndpoint = aws.String(opts.Endpoint)
		}
		o.UsePathStyle = opts.PathStyle
	})

	return newWithClient(client, s3.NewPresignClient(client), opts.Bucket, opts.HTTPClient, opts.Logger), nil
}

func newWithClient(client api, p presigner, bucket string, hc *nethttp.Client, logger *logging.Logger) *Store {
	return &Store{
		client:     client,
		presign:    p,
		bucket:     bucket,
		httpClient: hc,
		logger:     logger.Component("s3"),
		partSize:   constants.MinPartSize,
	}
}

func (s *Store) retry(ctx context.Context, operation string, fn func() error) error {
	cfg := http.DefaultConfig()
	cfg.OnRetry = func(attempt int, err error, errorType http.ErrorType) {
		s.logger.Debug().
			Str("op", operation).
			Int("attempt", attempt).
			Str("error_type", http.ErrorTypeName(errorType)).
			Err(err).
			Msg("Retrying S3 call")
	}
	return http.ExecuteWithRetry(ctx, cfg, fn)
}

func isNotFound(err error) bool {
	var nsk *types.NoSuchKey
	var nf *types.NotFound
	if errors.As(err, &nsk) || errors.As(err, &nf) {
		return true
	}
	// CopyObject reports a missing source as a generic API error.
	return strings.Contains(err.Error(), "NoSuchKey")
}

type writer struct {
	s        *Store
	key      string
	buf      bytes.Buffer
	uploadID *string
	parts    []types.CompletedPart
	closed   bool
}

func (s *Store) NewWriter(ctx context.Context, key string) (blob.Writer, error) {
	return &writer{s: s, key: key}, nil
}

func (w *writer) WriteChunk(ctx context.Context, p []byte) error {
	if w.closed {
		return blob.ErrWriterClosed
	}
	w.buf.Write(p)
	if w.buf.Len() >= w.s.partSize {
		return w.flushPart(ctx)
	}
	return nil
}

func (w *writer) flushPart(ctx context.Context) error {
	if w.uploadID == nil {
		var out *s3.CreateMultipartUploadOutput
		err := w.s.retry(ctx, "CreateMultipartUpload", func() error {
			var err error
			out, err = w.s.client.CreateMultipartUpload(ctx, &s3.CreateMultipartUploadInput{
				Bucket: aws.String(w.s.bucket),
				Key:    aws.String(w.key),
			})
			return err
		})
		if err != nil {
			return fmt.Errorf("failed to start multipart upload for %s: %w", w.key, err)
		}
		w.uploadID = out.UploadId
	}

	data := append([]byte(nil), w.buf.Bytes()...)
	w.buf.Reset()
	partNumber := int32(len(w.parts) + 1)

	var out *s3.UploadPartOutput
	err := w.s.retry(ctx, fmt.Sprintf("UploadPart %d", partNumber), func() error {
		var err error
		out, err = w.s.client.UploadPart(ctx, &s3.UploadPartInput{
			Bucket:        aws.String(w.s.bucket),
			Key:           aws.String(w.key),
			PartNumber:    aws.Int32(partNumber),
			UploadId:      w.uploadID,
			Body:          bytes.NewReader(data),
			ContentLength: aws.Int64(int64(len(data))),
		})
		return err
	})
	if err != nil {
		return fmt.Errorf("failed to upload part %d of %s: %w", partNumber, w.key, err)
	}

	w.parts = append(w.parts, types.CompletedPart{
		ETag:       out.ETag,
		PartNumber: aws.Int32(partNumber),
	})
	return nil
}

func (w *writer) Commit(ctx context.Context) error {
	if w.closed {
		return blob.ErrWriterClosed
	}
	w.closed = true

	if w.uploadID == nil {
		data := w.buf.Bytes()
		return w.s.retry(ctx, "PutObject", func() error {
			_, err := w.s.client.PutObject(ctx, &s3.PutObjectInput{
				Bucket:        aws.String(w.s.bucket),
				Key:           aws.String(w.key),
				Body:          bytes.NewReader(data),
				ContentLength: aws.Int64(int64(len(data))),
			})
			return err
		})
	}

	if w.buf.Len() > 0 {
		if err := w.flushPart(ctx); err != nil {
			return err
		}
	}

	err := w.s.retry(ctx, "CompleteMultipartUpload", func() error {
		_, err := w.s.client.CompleteMultipartUpload(ctx, &s3.CompleteMultipartUploadInput{
			Bucket:   aws.String(w.s.bucket),
			Key:      aws.String(w.key),
			UploadId: w.uploadID,
			MultipartUpload: &types.CompletedMultipartUpload{
				Parts: w.parts,
			},
		})
		return err
	})
	if err != nil {
		return fmt.Errorf("failed to complete multipart upload for %s: %w", w.key, err)
	}
	return nil
}

func (w *writer) Abort(ctx context.Context) error {
	if w.closed && w.uploadID == nil {
		return nil
	}
	w.closed = true
	w.buf.Reset()
	if w.uploadID == nil {
		return nil
	}

	_, err := w.s.client.AbortMultipartUpload(ctx, &s3.AbortMultipartUploadInput{
		Bucket:   aws.String(w.s.bucket),
		Key:      aws.String(w.key),
		UploadId: w.uploadID,
	})
	if err != nil {
		return fmt.Errorf("failed to abort multipart upload: %w", err)
	}
	w.uploadID = nil
	return nil
}

func (s *Store) Copy(ctx context.Context, srcKey, dstKey string) error {
	source := s.bucket + "/" + url.PathEscape(srcKey)
	err := s.retry(ctx, "CopyObject", func() error {
		_, err := s.client.CopyObject(ctx, &s3.CopyObjectInput{
			Bucket:     aws.String(s.bucket),
			Key:        aws.String(dstKey),
			CopySource: aws.String(source),
		})
		return err
	})
	if err != nil {
		if isNotFound(err) {
			return fmt.Errorf("%s: %w", srcKey, blob.ErrNotFound)
		}
		return fmt.Errorf("failed to copy %s to %s: %w", srcKey, dstKey, err)
	}
	return nil
}

func (s *Store) Delete(ctx context.Context, key string) error {
	err := s.retry(ctx, "DeleteObject", func() error {
		_, err := s.client.DeleteObject(ctx, &s3.DeleteObjectInput{
			Bucket: aws.String(s.bucket),
			Key:    aws.String(key),
		})
		return err
	})
	if err != nil && !isNotFound(err) {
		return fmt.Errorf("failed to delete %s: %w", key, err)
	}
	return nil
}

func (s *Store) SignedURL(ctx context.Context, key, method string, expiry time.Duration) (string, error) {
	withExpiry := s3.WithPresignExpires(expiry)

	var req *v4.PresignedHTTPRequest
	var err error
	switch method {
	case blob.MethodGet:
		req, err = s.presign.PresignGetObject(ctx, &s3.GetObjectInput{
			Bucket: aws.String(s.bucket),
			Key:    aws.String(key),
		}, withExpiry)
	case blob.MethodPut:
		req, err = s.presign.PresignPutObject(ctx, &s3.PutObjectInput{
			Bucket: aws.String(s.bucket),
			Key:    aws.String(key),
		}, withExpiry)
	default:
		return "", fmt.Errorf("unsupported signed URL method %q", method)
	}
	if err != nil {
		return "", fmt.Errorf("failed to presign %s: %w", key, err)
	}
	return req.URL, nil
}

// Open accepts a key or an http(s) URL issued by SignedURL.
func (s *Store) Open(ctx context.Context, key string) (io.ReadCloser, error) {
	if strings.HasPrefix(key, "https://") || strings.HasPrefix(key, "http://") {
		return openURL(ctx, s.httpClient, key)
	}

	var out *s3.GetObjectOutput
	err := s.retry(ctx, "GetObject", func() error {
		var err error
		out, err = s.client.GetObject(ctx, &s3.GetObjectInput{
			Bucket: aws.String(s.bucket),
			Key:    aws.String(key),
		})
		return err
	})
	if err != nil {
		if isNotFound(err) {
			return nil, fmt.Errorf("%s: %w", key, blob.ErrNotFound)
		}
		return nil, fmt.Errorf("failed to get %s: %w", key, err)
	}
	return out.Body, nil
}

func openURL(ctx context.Context, hc *nethttp.Client, rawURL string) (io.ReadCloser, error) {
	req, err := nethttp.NewRequestWithContext(ctx, nethttp.MethodGet, rawURL, nil)
	if err != nil {
		return nil, err
	}
	resp, err := hc.Do(req)
	if err != nil {
		return nil, err
	}
	if resp.StatusCode == nethttp.StatusNotFound {
		resp.Body.Close()
		return nil, blob.ErrNotFound
	}
	if resp.StatusCode != nethttp.StatusOK {
		resp.Body.Close()
		return nil, fmt.Errorf("signed URL returned %s", resp.Status)
	}
	return resp.Body, nil
}
