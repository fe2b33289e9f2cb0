package http

import (
	"context"
	"fmt"
	"strings"
	"testing"
	"time"
)

// TestExecuteWithRetry_Success verifies basic success case returns nil on first attempt.
func TestExecuteWithRetry_Success(t *testing.T) {
	ctx := context.Background()
	cfg := Config{
		MaxRetries:   3,
		InitialDelay: 10 * time.Millisecond,
		MaxDelay:     100 * time.Millisecond,
	}

	calls := 0
	err := ExecuteWithRetry(ctx, cfg, func() error {
		calls++
		return nil
	})
	if err != nil {
		t.Fatalf("expected nil error, got: %v", err)
	}
	if calls != 1 {
		t.Errorf("expected 1 call, got %d", calls)
	}
}

// TestExecuteWithRetry_FatalError verifies no retry on fatal errors.
func TestExecuteWithRetry_FatalError(t *testing.T) {
	ctx := context.Background()
	cfg := Config{
		MaxRetries:   5,
		InitialDelay: 10 * time.Millisecond,
		MaxDelay:     100 * time.Millisecond,
	}

	calls := 0
	err := ExecuteWithRetry(ctx, cfg, func() error {
		calls++
		return fmt.Errorf("400 bad request")
	})
	if err == nil {
		t.Fatal("expected error, got nil")
	}
	if calls != 1 {
		t.Errorf("expected 1 call (no retry on fatal), got %d", calls)
	}
}

// TestExecuteWithRetry_ContextCancelledDuringSleep verifies retry returns quickly when context cancelled.
func TestExecuteWithRetry_ContextCancelledDuringSleep(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cfg := Config{
		MaxRetries:   5,
		InitialDelay: 5 * time.Second, // Long backoff to ensure we'd be sleeping
		MaxDelay:     30 * time.Second,
	}

	calls := 0
	start := time.Now()

	// Cancel context after a short delay (while retry is sleeping)
	go func() {
		time.Sleep(50 * time.Millisecond)
		cancel()
	}()

	err := ExecuteWithRetry(ctx, cfg, func() error {
		calls++
		return fmt.Errorf("connection reset") // Network error, triggers backoff
	})

	elapsed := time.Since(start)

	if err == nil {
		t.Fatal("expected error, got nil")
	}

	// Should return quickly (within ~200ms), not wait for full backoff
	if elapsed > 1*time.Second {
		t.Errorf("expected quick return after context cancel, but took %v", elapsed)
	}

	// Should have attempted at least once
	if calls < 1 {
		t.Errorf("expected at least 1 call, got %d", calls)
	}
}

// TestExecuteWithRetry_InsufficientDeadline verifies early exit when deadline < backoff.
func TestExecuteWithRetry_InsufficientDeadline(t *testing.T) {
	// Set a deadline that's shorter than any reasonable backoff
	ctx, cancel := context.WithTimeout(context.Background(), 100*time.Millisecond)
	defer cancel()

	cfg := Config{
		MaxRetries:   5,
		InitialDelay: 5 * time.Second, // Backoff will exceed deadline
		MaxDelay:     30 * time.Second,
	}

	calls := 0
	start := time.Now()

	err := ExecuteWithRetry(ctx, cfg, func() error {
		calls++
		return fmt.Errorf("timeout") // Network error, triggers backoff
	})

	elapsed := time.Since(start)

	if err == nil {
		t.Fatal("expected error, got nil")
	}

	// Should return quickly, not wait for full backoff
	if elapsed > 1*time.Second {
		t.Errorf("expected quick return due to insufficient deadline, but took %v", elapsed)
	}

	// Should have attempted at least once
	if calls < 1 {
		t.Errorf("expected at least 1 call, got %d", calls)
	}
}

func TestClassifyError(t *testing.T) {
	tests := []struct {
		err  error
		want ErrorType
	}{
		{nil, ErrorTypeSuccess},
		{fmt.Errorf("SignatureDoesNotMatch"), ErrorTypeCredential},
		{fmt.Errorf("read tcp: connection reset by peer"), ErrorTypeNetwork},
		{fmt.Errorf("unexpected EOF"), ErrorTypeNetwork},
		{fmt.Errorf("SlowDown: please reduce your request rate"), ErrorTypeRetryable},
		{fmt.Errorf("status 503"), ErrorTypeRetryable},
		{fmt.Errorf("NoSuchKey: 404"), ErrorTypeFatal},
		{fmt.Errorf("something odd"), ErrorTypeFatal},
	}

	for _, tt := range tests {
		name := "nil"
		if tt.err != nil {
			name = tt.err.Error()
		}
		t.Run(name, func(t *testing.T) {
			if got := ClassifyError(tt.err); got != tt.want {
				t.Errorf("ClassifyError(%v) = %s, want %s", tt.err, ErrorTypeName(got), ErrorTypeName(tt.want))
			}
		})
	}
}

// TestExecuteWithRetry_RetriesTransient verifies retryable errors are retried until success.
func TestExecuteWithRetry_RetriesTransient(t *testing.T) {
	cfg := Config{MaxRetries: 4, InitialDelay: time.Millisecond, MaxDelay: 5 * time.Millisecond}

	calls := 0
	retries := 0
	cfg.OnRetry = func(attempt int, err error, errType ErrorType) { retries++ }

	err := ExecuteWithRetry(context.Background(), cfg, func() error {
		calls++
		if calls < 3 {
			return fmt.Errorf("503 service unavailable")
		}
		return nil
	})
	if err != nil {
		t.Fatalf("expected success, got %v", err)
	}
	if calls != 3 || retries != 2 {
		t.Errorf("expected 3 calls and 2 retries, got %d and %d", calls, retries)
	}
}

// TestExecuteWithRetry_CredentialWithoutRefresh verifies credential errors are not retried blindly.
func TestExecuteWithRetry_CredentialWithoutRefresh(t *testing.T) {
	cfg := Config{MaxRetries: 4, InitialDelay: time.Millisecond, MaxDelay: 5 * time.Millisecond}

	calls := 0
	err := ExecuteWithRetry(context.Background(), cfg, func() error {
		calls++
		return fmt.Errorf("403 forbidden")
	})
	if err == nil {
		t.Fatal("expected error, got nil")
	}
	if calls != 1 {
		t.Errorf("expected 1 call, got %d", calls)
	}
}

// TestExecuteWithRetry_Exhausted verifies the last error is wrapped after the budget is spent.
func TestExecuteWithRetry_Exhausted(t *testing.T) {
	cfg := Config{MaxRetries: 3, InitialDelay: time.Millisecond, MaxDelay: 2 * time.Millisecond}

	calls := 0
	err := ExecuteWithRetry(context.Background(), cfg, func() error {
		calls++
		return fmt.Errorf("connection refused")
	})
	if err == nil {
		t.Fatal("expected error, got nil")
	}
	if calls != 3 {
		t.Errorf("expected 3 calls, got %d", calls)
	}
}

// TestExecuteWithRetry_SingleAttempt verifies a budget of one never retries.
func TestExecuteWithRetry_SingleAttempt(t *testing.T) {
	cfg := Config{MaxRetries: 1, InitialDelay: time.Millisecond, MaxDelay: time.Millisecond}

	calls := 0
	err := ExecuteWithRetry(context.Background(), cfg, func() error {
		calls++
		return fmt.Errorf("503 service unavailable")
	})
	if err == nil {
		t.Fatal("expected error, got nil")
	}
	if calls != 1 {
		t.Errorf("expected 1 call, got %d", calls)
	}
}

// TestExecuteWithRetry_CredentialRefresh verifies the refresh hook runs before the retry.
func TestExecuteWithRetry_CredentialRefresh(t *testing.T) {
	refreshed := 0
	var attempts []int
	cfg := Config{
		MaxRetries:   3,
		InitialDelay: time.Millisecond,
		MaxDelay:     2 * time.Millisecond,
		CredentialRefresh: func(context.Context) error {
			refreshed++
			return nil
		},
		OnRetry: func(attempt int, err error, errType ErrorType) {
			if errType != ErrorTypeCredential {
				t.Errorf("expected credential error type, got %s", ErrorTypeName(errType))
			}
			attempts = append(attempts, attempt)
		},
	}

	calls := 0
	err := ExecuteWithRetry(context.Background(), cfg, func() error {
		calls++
		if refreshed == 0 {
			return fmt.Errorf("ExpiredToken: the provided token has expired")
		}
		return nil
	})
	if err != nil {
		t.Fatalf("expected success after refresh, got %v", err)
	}
	if calls != 2 || refreshed != 1 {
		t.Errorf("expected 2 calls and 1 refresh, got %d and %d", calls, refreshed)
	}
	if len(attempts) != 1 || attempts[0] != 1 {
		t.Errorf("expected OnRetry for attempt 1, got %v", attempts)
	}
}

// TestExecuteWithRetry_RefreshFailureStops verifies a failed refresh ends the retry loop.
func TestExecuteWithRetry_RefreshFailureStops(t *testing.T) {
	cfg := Config{
		MaxRetries:   5,
		InitialDelay: time.Millisecond,
		MaxDelay:     time.Millisecond,
		CredentialRefresh: func(context.Context) error {
			return fmt.Errorf("no credentials")
		},
	}

	calls := 0
	err := ExecuteWithRetry(context.Background(), cfg, func() error {
		calls++
		return fmt.Errorf("403 forbidden")
	})
	if err == nil || !strings.Contains(err.Error(), "credential refresh failed") {
		t.Fatalf("expected refresh failure, got %v", err)
	}
	if calls != 1 {
		t.Errorf("expected 1 call, got %d", calls)
	}
}
