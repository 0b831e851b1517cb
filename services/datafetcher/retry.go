// Package datafetcher serves market data cache-first, reaching out to the
// vendor session only when the cache is stale.
package datafetcher

import (
	"log"
	"time"

	"ashare_backend/services/vendor"
)

// RetryPolicy bounds how hard a vendor request is retried. Backoff doubles
// per attempt starting from BackoffBase; only transient failures retry.
type RetryPolicy struct {
	Attempts    int
	BackoffBase time.Duration
}

// DefaultRetryPolicy matches the pacing the vendor tolerates
var DefaultRetryPolicy = RetryPolicy{
	Attempts:    3,
	BackoffBase: 2 * time.Second,
}

// withRetry runs fn under policy. Transient errors back off and retry;
// permanent errors (and auth failures) return immediately.
func withRetry[T any](policy RetryPolicy, sleep func(time.Duration), op string, fn func() (T, error)) (T, error) {
	var zero T
	attempts := policy.Attempts
	if attempts < 1 {
		attempts = 1
	}

	var lastErr error
	for i := 0; i < attempts; i++ {
		out, err := fn()
		if err == nil {
			return out, nil
		}
		lastErr = err

		if !vendor.IsTransient(err) {
			return zero, err
		}
		if i < attempts-1 {
			delay := policy.BackoffBase << uint(i)
			log.Printf("%s attempt %d/%d failed: %v, retrying in %v", op, i+1, attempts, err, delay)
			sleep(delay)
		}
	}
	return zero, lastErr
}
