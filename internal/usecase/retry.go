// Package usecase contains the orchestration use cases: the parallel
// scheduler, the per-agent runtime, and the merge pipeline.
package usecase

import (
	"context"
	"strings"
	"time"

	"github.com/herdctl/herd/internal/domain"
)

// RetryPolicy bounds re-attempts of transient engine failures.
// Fields are ordered to minimize memory padding.
type RetryPolicy struct {
	Delay       time.Duration // Sleep before the first retry
	MaxRetries  int           // Additional attempts after the first
	Exponential bool          // Double the delay after each retry
}

// transientSignatures are lowercase substrings identifying engine errors
// worth retrying: network hiccups, rate limits, and server-side failures.
var transientSignatures = []string{
	"econnreset",
	"econnrefused",
	"etimedout",
	"timed out",
	"timeout",
	"connection reset",
	"connection refused",
	"socket hang up",
	"unexpected eof",
	"rate limit",
	"rate_limit",
	"too many requests",
	"overloaded",
	"internal server error",
	"bad gateway",
	"service unavailable",
	"gateway timeout",
	"429",
	"500",
	"502",
	"503",
	"504",
	"529",
}

// IsRetryableError reports whether an engine error message looks transient.
func IsRetryableError(msg string) bool {
	lower := strings.ToLower(msg)
	for _, sig := range transientSignatures {
		if strings.Contains(lower, sig) {
			return true
		}
	}
	return false
}

// ExecuteWithRetry invokes attempt, retrying when the engine reports a
// failure whose error matches the retryable predicate. Non-retryable
// failures and infrastructure errors are returned verbatim. The inter-retry
// sleep honors context cancellation.
func ExecuteWithRetry(ctx context.Context, policy RetryPolicy, attempt func() (*domain.EngineResult, error)) (*domain.EngineResult, error) {
	delay := policy.Delay

	for try := 0; ; try++ {
		res, err := attempt()
		if err != nil {
			return nil, err
		}
		if res.Success || !IsRetryableError(res.Error) || try >= policy.MaxRetries {
			return res, nil
		}

		select {
		case <-ctx.Done():
			return res, ctx.Err()
		case <-time.After(delay):
		}
		if policy.Exponential {
			delay *= 2
		}
	}
}
