package metadata

import (
	"context"
	"time"

	"github.com/cenkalti/backoff"

	"github.com/driftbox/driftbox/internal/constants"
	"github.com/driftbox/driftbox/internal/logging"
)

// ConnectWithRetry calls ping with exponential backoff until it succeeds,
// ctx ends, or maxElapsed passes. Network backends use it at startup so a
// database that is still booting does not fail the whole command.
func ConnectWithRetry(ctx context.Context, logger *logging.Logger, backend string, maxElapsed time.Duration, ping func(context.Context) error) error {
	if maxElapsed <= 0 {
		maxElapsed = constants.StoreConnectTimeout
	}
	b := backoff.NewExponentialBackOff()
	b.MaxElapsedTime = maxElapsed

	operation := func() error {
		return ping(ctx)
	}
	notify := func(err error, wait time.Duration) {
		logger.Warn().Err(err).Str("backend", backend).Dur("retry_in", wait).Msg("Metadata store not reachable yet")
	}

	return backoff.RetryNotify(operation, backoff.WithContext(b, ctx), notify)
}
