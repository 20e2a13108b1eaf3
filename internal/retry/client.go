// Package retry wraps provider calls with bounded retries, exponential
// backoff, and jitter. Only transient failures are retried.
package retry

import (
	"context"
	"crypto/rand"
	"fmt"
	"log"
	"math/big"
	"strings"
	"time"

	"niftyscalp/internal/logger"
)

// Config controls the retry schedule.
type Config struct {
	MaxRetries     int
	InitialBackoff time.Duration
	MaxBackoff     time.Duration
}

// DefaultConfig suits short analytics fetches on the cycle's off path.
var DefaultConfig = Config{
	MaxRetries:     3,
	InitialBackoff: 500 * time.Millisecond,
	MaxBackoff:     10 * time.Second,
}

// Runner executes operations with the configured retry schedule.
type Runner struct {
	log    *logger.Entry
	config Config
}

// NewRunner builds a runner. Omitting the config uses DefaultConfig.
func NewRunner(log *logger.Entry, config ...Config) *Runner {
	cfg := DefaultConfig
	if len(config) > 0 {
		cfg = config[0]
	}
	return &Runner{log: log, config: cfg}
}

// Do runs fn until it succeeds, returns a non-transient error, or the retry
// budget is spent. The context bounds the whole operation including backoff
// sleeps.
func (r *Runner) Do(ctx context.Context, op string, fn func(ctx context.Context) error) error {
	var lastErr error
	backoff := r.config.InitialBackoff
	attempts := 0

	for attempt := 0; attempt <= r.config.MaxRetries; attempt++ {
		if err := ctx.Err(); err != nil {
			return fmt.Errorf("%s canceled: %w", op, err)
		}

		attempts++
		err := fn(ctx)
		if err == nil {
			return nil
		}
		lastErr = err

		if !IsTransient(err) || attempt == r.config.MaxRetries {
			break
		}

		r.log.WithError(err).WithFields(logger.Fields{
			"operation": op,
			"attempt":   attempt + 1,
			"backoff":   backoff.String(),
		}).Warn("transient failure, retrying")

		select {
		case <-time.After(backoff):
			backoff = r.nextBackoff(backoff)
		case <-ctx.Done():
			return fmt.Errorf("%s canceled during backoff: %w", op, ctx.Err())
		}
	}

	return fmt.Errorf("%s failed after %d attempts: %w", op, attempts, lastErr)
}

func (r *Runner) nextBackoff(current time.Duration) time.Duration {
	backoff := time.Duration(float64(current) * 1.5)
	if backoff > r.config.MaxBackoff {
		backoff = r.config.MaxBackoff
	}

	maxJitter := int64(backoff / 4)
	if maxJitter > 0 {
		jitterVal, err := rand.Int(rand.Reader, big.NewInt(maxJitter))
		if err != nil {
			log.Printf("Failed to generate jitter: %v", err)
		} else {
			backoff += time.Duration(jitterVal.Int64())
		}
	}
	return backoff
}

// IsTransient reports whether an error looks like a temporary provider or
// network failure worth retrying.
func IsTransient(err error) bool {
	if err == nil {
		return false
	}

	errStr := strings.ToLower(err.Error())

	transientPatterns := []string{
		"timeout",
		"connection refused",
		"connection reset",
		"temporary failure",
		"server error",
		"rate limit",
		"429", // HTTP 429 Too Many Requests
		"502", // HTTP 502 Bad Gateway
		"503", // HTTP 503 Service Unavailable
		"504", // HTTP 504 Gateway Timeout
		"network",
		"dns",
		"tcp",
	}

	for _, pattern := range transientPatterns {
		if strings.Contains(errStr, pattern) {
			return true
		}
	}
	return false
}
