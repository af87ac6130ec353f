package httpkit

import (
	"math"
	"math/rand"
	"time"
)

// RetryPolicy implements spec.md §5's "exponential backoff with jitter,
// honors 429/503 as retryable" requirement, grounded on
// IsRetryableStatus/IsRateLimitStatus and the capped-backoff shape of
// pkg/ratelimit/manager.go.
type RetryPolicy struct {
	MaxAttempts int
	BaseDelay   time.Duration
	MaxDelay    time.Duration
}

func DefaultRetryPolicy() RetryPolicy {
	return RetryPolicy{
		MaxAttempts: 4,
		BaseDelay:   250 * time.Millisecond,
		MaxDelay:    10 * time.Second,
	}
}

// ShouldRetry reports whether the response should be retried given the
// attempt number just completed (1-indexed).
func (p RetryPolicy) ShouldRetry(statusCode, attempt int) bool {
	if attempt >= p.MaxAttempts {
		return false
	}
	return IsRetryableStatus(statusCode)
}

// Backoff returns the wait before attempt+1, exponential with full jitter,
// capped at MaxDelay.
func (p RetryPolicy) Backoff(attempt int) time.Duration {
	exp := float64(p.BaseDelay) * math.Pow(2, float64(attempt-1))
	if exp > float64(p.MaxDelay) {
		exp = float64(p.MaxDelay)
	}
	jittered := rand.Float64() * exp
	return time.Duration(jittered)
}

// IsRetryableStatus reports whether statusCode is a transient remote
// failure per spec.md §7 ("HTTP 429/503 ... timeouts, connection resets").
func IsRetryableStatus(statusCode int) bool {
	switch statusCode {
	case 408, 429, 500, 502, 503, 504:
		return true
	default:
		return false
	}
}

// IsRateLimitStatus reports whether statusCode specifically signals rate
// limiting, distinct from a generic 5xx retry.
func IsRateLimitStatus(statusCode int) bool {
	return statusCode == 429
}

// IsNotFoundStatus reports a probe-404, which spec.md §7 says is "never
// retried" and instead drives the stale-mapping deletion path.
func IsNotFoundStatus(statusCode int) bool {
	return statusCode == 404
}

// IsPermanentStatus reports a non-retryable 4xx other than 404/429.
func IsPermanentStatus(statusCode int) bool {
	return statusCode >= 400 && statusCode < 500 && !IsNotFoundStatus(statusCode) && !IsRateLimitStatus(statusCode)
}
