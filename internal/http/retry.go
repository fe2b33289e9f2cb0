package http

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/cenkalti/backoff"

	"github.com/driftbox/driftbox/internal/constants"
)

// ErrorType represents different classes of errors for retry strategy
type ErrorType int

const (
	// ErrorTypeSuccess indicates operation succeeded
	ErrorTypeSuccess ErrorType = iota
	// ErrorTypeCredential indicates authentication/authorization failure (403, expired signature)
	ErrorTypeCredential
	// ErrorTypeNetwork indicates network/connection issues (timeouts, connection refused, etc.)
	ErrorTypeNetwork
	// ErrorTypeRetryable indicates server errors that can be retried (500, 502, 503, throttling)
	ErrorTypeRetryable
	// ErrorTypeFatal indicates client errors that should not be retried (400, 404, invalid request)
	ErrorTypeFatal
)

// Config holds retry parameters for ExecuteWithRetry
type Config struct {
	// MaxRetries is the maximum number of attempts
	MaxRetries int
	// InitialDelay is the base delay for exponential backoff
	InitialDelay time.Duration
	// MaxDelay is the maximum delay between retries
	MaxDelay time.Duration
	// CredentialRefresh is called before retrying a credential error. Without
	// it, credential errors are not retried.
	CredentialRefresh func(context.Context) error
	// OnRetry is an optional callback invoked before each retry attempt
	OnRetry func(attempt int, err error, errorType ErrorType)
}

// DefaultConfig returns the retry budget used for blob store calls.
func DefaultConfig() Config {
	return Config{
		MaxRetries:   constants.MaxRetries,
		InitialDelay: constants.RetryInitialDelay,
		MaxDelay:     constants.RetryMaxDelay,
	}
}

// ClassifyError determines the error type for retry strategy.
// Covers the error strings produced by the S3 and Azure SDKs and by plain
// net/http transports.
func ClassifyError(err error) ErrorType {
	if err == nil {
		return ErrorTypeSuccess
	}

	errStr := strings.ToLower(err.Error())

	// Credential-related errors
	if strings.Contains(errStr, "expiredtoken") ||
		strings.Contains(errStr, "invalid token") ||
		strings.Contains(errStr, "403") ||
		strings.Contains(errStr, "unauthorized") ||
		strings.Contains(errStr, "authentication failed") ||
		strings.Contains(errStr, "authenticationfailed") ||
		strings.Contains(errStr, "invalid sas") ||
		strings.Contains(errStr, "signature not valid") ||
		strings.Contains(errStr, "signaturedoesnotmatch") ||
		strings.Contains(errStr, "authorization failure") {
		return ErrorTypeCredential
	}

	// Network errors
	if strings.Contains(errStr, "tls handshake timeout") ||
		strings.Contains(errStr, "connection reset") ||
		strings.Contains(errStr, "i/o timeout") ||
		strings.Contains(errStr, "unexpected eof") ||
		strings.Contains(errStr, "connection refused") ||
		strings.Contains(errStr, "broken pipe") ||
		strings.Contains(errStr, "timeout") {
		return ErrorTypeNetwork
	}

	// Server side issues and rate limiting
	if strings.Contains(errStr, "requesttimeout") ||
		strings.Contains(errStr, "internalerror") ||
		strings.Contains(errStr, "serviceunavailable") ||
		strings.Contains(errStr, "slowdown") ||
		strings.Contains(errStr, "throttl") ||
		strings.Contains(errStr, "429") ||
		strings.Contains(errStr, "500") ||
		strings.Contains(errStr, "502") ||
		strings.Contains(errStr, "503") ||
		strings.Contains(errStr, "504") ||
		strings.Contains(errStr, "serverbusy") ||
		strings.Contains(errStr, "server busy") ||
		strings.Contains(errStr, "operationtimeout") ||
		strings.Contains(errStr, "service unavailable") {
		return ErrorTypeRetryable
	}

	// Everything else, including 400/404 and unknown errors, is not retried.
	return ErrorTypeFatal
}

// newBackOff builds the exponential schedule for one ExecuteWithRetry call:
// at most MaxRetries-1 waits, each capped at MaxDelay, stopping early when
// ctx ends or its deadline is closer than the next wait.
func newBackOff(ctx context.Context, config Config) backoff.BackOff {
	// WithMaxRetries treats zero as unlimited.
	if config.MaxRetries <= 1 {
		return backoff.WithContext(&backoff.StopBackOff{}, ctx)
	}
	b := backoff.NewExponentialBackOff()
	b.InitialInterval = config.InitialDelay
	b.MaxInterval = config.MaxDelay
	if b.MaxInterval < b.InitialInterval {
		b.MaxInterval = b.InitialInterval
	}
	b.MaxElapsedTime = 0
	return backoff.WithContext(backoff.WithMaxRetries(b, uint64(config.MaxRetries-1)), ctx)
}

// ExecuteWithRetry runs an operation with retry logic.
//
// Retry strategy:
//   - Credential errors: refresh credentials (if configured) and retry
//   - Network/Retryable errors: exponential backoff with jitter
//   - Fatal errors: return immediately
//   - Context cancellation or a deadline shorter than the next backoff: return the last error
func ExecuteWithRetry(ctx context.Context, config Config, operation func() error) error {
	if config.MaxRetries <= 0 {
		config.MaxRetries = 1
	}

	attempts := 0
	attempt := func() error {
		if err := ctx.Err(); err != nil {
			return backoff.Permanent(err)
		}
		attempts++

		err := operation()
		switch ClassifyError(err) {
		case ErrorTypeSuccess:
			return nil

		case ErrorTypeFatal:
			return backoff.Permanent(err)

		case ErrorTypeCredential:
			if config.CredentialRefresh == nil {
				return backoff.Permanent(err)
			}
			if rerr := config.CredentialRefresh(ctx); rerr != nil {
				return backoff.Permanent(fmt.Errorf("credential refresh failed: %w", rerr))
			}
		}
		return err
	}
	notify := func(err error, wait time.Duration) {
		if config.OnRetry != nil {
			config.OnRetry(attempts, err, ClassifyError(err))
		}
	}

	err := backoff.RetryNotify(attempt, newBackOff(ctx, config), notify)
	if err != nil && attempts >= config.MaxRetries {
		switch ClassifyError(err) {
		case ErrorTypeNetwork, ErrorTypeRetryable, ErrorTypeCredential:
			return fmt.Errorf("operation failed after %d attempts: %w", attempts, err)
		}
	}
	return err
}

// ErrorTypeName returns a human-readable name for an ErrorType
func ErrorTypeName(errType ErrorType) string {
	switch errType {
	case ErrorTypeSuccess:
		return "success"
	case ErrorTypeCredential:
		return "credential"
	case ErrorTypeNetwork:
		return "network"
	case ErrorTypeRetryable:
		return "retryable"
	case ErrorTypeFatal:
		return "fatal"
	default:
		return "unknown"
	}
}
