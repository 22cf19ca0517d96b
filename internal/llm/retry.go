package llm

import (
	"context"
	"math/rand/v2"
	"time"
)

// DefaultMaxAttempts is the retry budget for one analysis
const DefaultMaxAttempts = 3

// attemptResult tags the outcome of one request/parse cycle
type attemptResult int

const (
	attemptOK        attemptResult = iota
	attemptTransport               // retryable: transport failure or non-2xx status
	attemptParse                   // retryable: content did not parse
	attemptFatal                   // stop retrying: cancellation or configuration
)

// Backoff returns the delay before the given retry (1-based)
type Backoff func(retry int) time.Duration

// ExponentialBackoff doubles base for each retry. With jitter enabled up to
// half of the delay is added at random.
func ExponentialBackoff(base time.Duration, jitter bool) Backoff {
	return func(retry int) time.Duration {
		if retry < 1 {
			retry = 1
		}
		d := base << (retry - 1)
		if jitter && d > 0 {
			d += rand.N(d/2 + 1)
		}
		return d
	}
}

// NoBackoff retries immediately
func NoBackoff(int) time.Duration { return 0 }

// sleepContext waits for d or until ctx is done
func sleepContext(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}
