package s3store

import (
	"bytes"
	"context"
	"fmt"
	"io"
	nethttp "net/http"
	"net/http/httptest"
	"net/url"
	"os"
	"sort"
	"strings"
	"sync"
	"testing"

	"github.com/aws/aws-sdk-go-v2/aws"
	v4 "github.com/aws/aws-sdk-go-v2/aws/signer/v4"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/aws/aws-sdk-go-v2/service/s3/types"

	"github.com/driftbox/driftbox/internal/blob"
	"github.com/driftbox/driftbox/internal/blob/blobtest"
	"github.com/driftbox/driftbox/internal/logging"
)

// fakeS3 is an in-memory bucket that serves presigned GETs over httptest.
type fakeS3 struct {
	mu        sync.Mutex
	bucket    string
	objects   map[string][]byte
	uploads   map[string]map[int32][]byte
	partSizes []int
	puts      int
	nextID    int
	server    *httptest.Server
}

func newFake(t *testing.T) *fakeS3 {
	f := &fakeS3{
		bucket:  "test-bucket",
		objects: make(map[string][]byte),
		uploads: make(map[string]map[int32][]byte),
	}
	f.server = httptest.NewServer(nethttp.HandlerFunc(func(w nethttp.ResponseWriter, r *nethttp.Request) {
		f.mu.Lock()
		data, ok := f.objects[strings.TrimPrefix(r.URL.Path, "/")]
		f.mu.Unlock()
		if !ok {
			w.WriteHeader(nethttp.StatusNotFound)
			return
		}
		w.Write(data)
	}))
	t.Cleanup(f.server.Close)
	return f
}

func (f *fakeS3) PutObject(ctx context.Context, in *s3.PutObjectInput, _ ...func(*s3.Options)) (*s3.PutObjectOutput, error) {
	data, _ := io.ReadAll(in.Body)
	f.mu.Lock()
	defer f.mu.Unlock()
	f.puts++
	f.objects[*in.Key] = data
	return &s3.PutObjectOutput{}, nil
}

func (f *fakeS3) GetObject(ctx context.Context, in *s3.GetObjectInput, _ ...func(*s3.Options)) (*s3.GetObjectOutput, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	data, ok := f.objects[*in.Key]
	if !ok {
		return nil, &types.NoSuchKey{}
	}
	return &s3.GetObjectOutput{Body: io.NopCloser(bytes.NewReader(data))}, nil
}

func (f *fakeS3) CopyObject(ctx context.Context, in *s3.CopyObjectInput, _ ...func(*s3.Options)) (*s3.CopyObjectOutput, error) {
	src, err := url.PathUnescape(strings.TrimPrefix(*in.CopySource, f.bucket+"/"))
	if err != nil {
		return nil, err
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	data, ok := f.objects[src]
	if !ok {
		return nil, &types.NoSuchKey{}
	}
	f.objects[*in.Key] = append([]byte(nil), data...)
	return &s3.CopyObjectOutput{}, nil
}

func (f *fakeS3) DeleteObject(ctx context.Context, in *s3.DeleteObjectInput, _ ...func(*s3.Options)) (*s3.DeleteObjectOutput, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	delete(f.objects, *in.Key)
	return &s3.DeleteObjectOutput{}, nil
}

func (f *fakeS3) CreateMultipartUpload(ctx context.Context, in *s3.CreateMultipartUploadInput, _ ...func(*s3.Options)) (*s3.CreateMultipartUploadOutput, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.nextID++
	id := fmt.Sprintf("upload-%d", f.nextID)
	f.uploads[id] = make(map[int32][]byte)
	return &s3.CreateMultipartUploadOutput{UploadId: aws.String(id)}, nil
}

func (f *fakeS3) UploadPart(ctx context.Context, in *s3.UploadPartInput, _ ...func(*s3.Options)) (*s3.UploadPartOutput, error) {
	data, _ := io.ReadAll(in.Body)
	f.mu.Lock()
	defer f.mu.Unlock()
	f.uploads[*in.UploadId][*in.PartNumber] = data
	f.partSizes = append(f.partSizes, len(data))
	return &s3.UploadPartOutput{ETag: aws.String(fmt.Sprintf("etag-%d", *in.PartNumber))}, nil
}

func (f *fakeS3) CompleteMultipartUpload(ctx context.Context, in *s3.CompleteMultipartUploadInput, _ ...func(*s3.Options)) (*s3.CompleteMultipartUploadOutput, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	parts := f.uploads[*in.UploadId]
	nums := make([]int, 0, len(in.MultipartUpload.Parts))
	for _, p := range in.MultipartUpload.Parts {
		nums = append(nums, int(*p.PartNumber))
	}
	sort.Ints(nums)
	var out []byte
	for _, n := range nums {
		out = append(out, parts[int32(n)]...)
	}
	f.objects[*in.Key] = out
	delete(f.uploads, *in.UploadId)
	return &s3.CompleteMultipartUploadOutput{}, nil
}

func (f *fakeS3) AbortMultipartUpload(ctx context.Context, in *s3.AbortMultipartUploadInput, _ ...func(*s3.Options)) (*s3.AbortMultipartUploadOutput, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	delete(f.uploads, *in.UploadId)
	return &s3.AbortMultipartUploadOutput{}, nil
}

func (f *fakeS3) presignURL(key, method string) *v4.PresignedHTTPRequest {
	u := f.server.URL + (&url.URL{Path: "/" + key}).EscapedPath() + "?X-Amz-Expires=3600"
	return &v4.PresignedHTTPRequest{URL: u, Method: method}
}

func (f *fakeS3) PresignGetObject(ctx context.Context, in *s3.GetObjectInput, _ ...func(*s3.PresignOptions)) (*v4.PresignedHTTPRequest, error) {
	return f.presignURL(*in.Key, nethttp.MethodGet), nil
}

func (f *fakeS3) PresignPutObject(ctx context.Context, in *s3.PutObjectInput, _ ...func(*s3.PresignOptions)) (*v4.PresignedHTTPRequest, error) {
	return f.presignURL(*in.Key, nethttp.MethodPut), nil
}

func newFakeStore(t *testing.T, partSize int) (*Store, *fakeS3) {
	f := newFake(t)
	s := newWithClient(f, f, f.bucket, f.server.Client(), logging.NewNopLogger())
	if partSize > 0 {
		s.partSize = partSize
	}
	return s, f
}

func TestS3Store(t *testing.T) {
	blobtest.Run(t, func(t *testing.T) blob.Store {
		s, _ := newFakeStore(t, 0)
		return s
	})
}

func TestWriter_BuffersIntoParts(t *testing.T) {
	s, f := newFakeStore(t, 10)
	ctx := context.Background()

	w, _ := s.NewWriter(ctx, "k")
	var want []byte
	for i := 0; i < 7; i++ {
		chunk := bytes.Repeat([]byte{byte('0' + i)}, 4)
		want = append(want, chunk...)
		if err := w.WriteChunk(ctx, chunk); err != nil {
			t.Fatalf("WriteChunk failed: %v", err)
		}
	}
	if err := w.Commit(ctx); err != nil {
		t.Fatalf("Commit failed: %v", err)
	}

	if fmt.Sprint(f.partSizes) != "[12 12 4]" {
		t.Errorf("Expected parts [12 12 4], got %v", f.partSizes)
	}
	if f.puts != 0 {
		t.Errorf("Multipart upload should not use PutObject, got %d puts", f.puts)
	}
	if !bytes.Equal(f.objects["k"], want) {
		t.Errorf("Assembled object mismatch: %q", f.objects["k"])
	}
}

func TestWriter_SmallObjectUsesPut(t *testing.T) {
	s, f := newFakeStore(t, 10)
	ctx := context.Background()

	if err := blob.Put(ctx, s, "small", []byte("abc")); err != nil {
		t.Fatalf("Put failed: %v", err)
	}
	if f.puts != 1 || len(f.partSizes) != 0 {
		t.Errorf("Expected a single PutObject, got %d puts and parts %v", f.puts, f.partSizes)
	}
}

func TestWriter_AbortCancelsMultipart(t *testing.T) {
	s, f := newFakeStore(t, 4)
	ctx := context.Background()

	w, _ := s.NewWriter(ctx, "k")
	_ = w.WriteChunk(ctx, []byte("12345"))
	if len(f.uploads) != 1 {
		t.Fatalf("Expected one open multipart upload, got %d", len(f.uploads))
	}
	if err := w.Abort(ctx); err != nil {
		t.Fatalf("Abort failed: %v", err)
	}
	if len(f.uploads) != 0 {
		t.Errorf("Expected multipart upload to be aborted, %d still open", len(f.uploads))
	}
	if _, ok := f.objects["k"]; ok {
		t.Error("Aborted object must not exist")
	}
}

func TestSignedURL_RejectsUnknownMethod(t *testing.T) {
	s, _ := newFakeStore(t, 0)
	if _, err := s.SignedURL(context.Background(), "k", "DELETE", 0); err == nil {
		t.Error("Expected error for DELETE")
	}
}

// TestS3Store_Live runs the conformance suite against a real endpoint, for
// example a local MinIO.
func TestS3Store_Live(t *testing.T) {
	bucket := os.Getenv("DRIFTBOX_TEST_S3_BUCKET")
	if bucket == "" {
		t.Skip("DRIFTBOX_TEST_S3_BUCKET not set")
	}
	blobtest.Run(t, func(t *testing.T) blob.Store {
		s, err := New(context.Background(), Options{
			Bucket:          bucket,
			Region:          "us-east-1",
			Endpoint:        os.Getenv("DRIFTBOX_TEST_S3_ENDPOINT"),
			AccessKeyID:     os.Getenv("DRIFTBOX_TEST_S3_ACCESS_KEY"),
			SecretAccessKey: os.Getenv("DRIFTBOX_TEST_S3_SECRET_KEY"),
			PathStyle:       true,
		})
		if err != nil {
			t.Fatalf("New failed: %v", err)
		}
		return s
	})
}
