package constants

import (
	"time"
)

// Application identity
const (
	// AppName is used for config directories, metric prefixes and the GUI app ID.
	AppName = "driftbox"

	// AppID is the reverse-DNS identifier registered with fyne.
	AppID = "io.driftbox.desktop"

	// EnvPrefix is the prefix for environment overrides (DRIFTBOX_METADATA_DSN, ...).
	EnvPrefix = "DRIFTBOX_"
)

// Transfer sizing
const (
	// ChunkSize - size of each chunk read from disk and pushed to the blob store (256 KiB)
	// Progress is reported after every chunk, so this is also the progress granularity.
	ChunkSize = 256 * 1024

	// MinPartSize - AWS S3 minimum part size (5 MB, except last part)
	// The S3 writer buffers chunks until this threshold before issuing UploadPart.
	MinPartSize = 5 * 1024 * 1024

	// MaxChunkSizeKiB - upper bound accepted from configuration (64 MiB)
	MaxChunkSizeKiB = 64 * 1024
)

// Signed URLs
const (
	// SignedURLValidity - lifetime of a download URL issued after upload/rename/sync (7 days)
	SignedURLValidity = 7 * 24 * time.Hour

	// SignedURLRefreshMargin - URLs this close to expiry are treated as expired
	SignedURLRefreshMargin = 5 * time.Minute
)

// Blob key layout
const (
	// BlobKeyPrefix and BlobKeyFilesSegment build users/{owner}/files/{name}
	BlobKeyPrefix       = "users"
	BlobKeyFilesSegment = "files"
)

// Progress channel
const (
	// ProgressBufferSize - default capacity of the progress channel (256 events)
	// Producers block when the buffer is full; events are never dropped.
	ProgressBufferSize = 256

	// ProgressMaxBuffer - cap on a configured buffer size
	ProgressMaxBuffer = 4096

	// PollInterval - how often the interactive thread drains the progress channel (100ms)
	PollInterval = 100 * time.Millisecond
)

// Task execution
const (
	// DefaultMaxConcurrent - maximum number of tasks running at once
	DefaultMaxConcurrent = 4
)

// Retry configuration
const (
	// MaxRetries - maximum number of retries for transient blob store errors
	MaxRetries = 5

	// RetryInitialDelay - initial delay before first retry (200ms)
	RetryInitialDelay = 200 * time.Millisecond

	// RetryMaxDelay - maximum delay between retries (15s)
	RetryMaxDelay = 15 * time.Second

	// StoreConnectTimeout - total time spent retrying the initial metadata store connection
	StoreConnectTimeout = 30 * time.Second
)

// Sessions
const (
	// SessionTTL - lifetime of a login token (30 days)
	SessionTTL = 30 * 24 * time.Hour

	// MinPasswordLength - passwords need at least this many characters plus a letter and a digit
	MinPasswordLength = 6
)

// HTTP Client Timeouts
const (
	// HTTPIdleConnTimeout - how long to keep idle connections open (90 seconds)
	HTTPIdleConnTimeout = 90 * time.Second

	// HTTPTLSHandshakeTimeout - timeout for TLS handshake (60 seconds)
	HTTPTLSHandshakeTimeout = 60 * time.Second

	// HTTPExpectContinueTimeout - timeout for 100-continue response (1 second)
	HTTPExpectContinueTimeout = 1 * time.Second

	// HTTPDialTimeout - timeout for establishing connection (30 seconds)
	HTTPDialTimeout = 30 * time.Second

	// HTTPDialKeepAlive - keep-alive period for dialer (30 seconds)
	HTTPDialKeepAlive = 30 * time.Second

	// HTTPDownloadRetries - retry budget for signed URL fetches
	HTTPDownloadRetries = 4
)
