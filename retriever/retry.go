package retriever

import (
	"context"
	"time"

	"github.com/smallnest/medrag/log"
)

const (
	maxRetries   = 2
	retryBackoff = 100 * time.Millisecond
)

// withRetry runs op, retrying transient failures with linear backoff. The
// context cancels both the operation and the wait between attempts.
func withRetry(ctx context.Context, logger log.Logger, what string, op func() error) error {
	var err error
	for attempt := 0; attempt <= maxRetries; attempt++ {
		if attempt > 0 {
			logger.Warn("%s failed (attempt %d/%d), retrying: %v", what, attempt, maxRetries, err)
			select {
			case <-time.After(retryBackoff * time.Duration(attempt)):
			case <-ctx.Done():
				return ctx.Err()
			}
		}
		if err = op(); err == nil {
			return nil
		}
	}
	return err
}
