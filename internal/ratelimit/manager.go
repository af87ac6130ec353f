// Package ratelimit implements httpkit.Limiter on top of internal/redis,
// scoped per platform rather than per tenant/integration/config the way
// the teacher's pkg/ratelimit/manager.go is — this repo only ever talks
// to two fixed remote platforms, not a dynamic set of customer configs.
package ratelimit

import (
	"context"
	"fmt"
	"time"

	"github.com/Gobusters/ectologger"
	"github.com/trackersync/trackersync/internal/redis"
)

// Limit describes a single platform's request budget.
type Limit struct {
	Requests int64
	Window   time.Duration
}

// Manager implements httpkit.Limiter, backed by a Redis sliding-window
// rate limiter. One Manager is constructed per platform and wired into
// that platform's httpkit.Client via httpkit.Config.Limiter.
type Manager struct {
	limiter *redis.RateLimiter
	limit   Limit
	logger  ectologger.Logger
}

func NewManager(client *redis.Client, keyPrefix string, limit Limit, logger ectologger.Logger) *Manager {
	return &Manager{
		limiter: redis.NewRateLimiter(client, keyPrefix),
		limit:   limit,
		logger:  logger,
	}
}

// Wait blocks (via short re-poll) until key is allowed to make its next
// request, honoring both the sliding window and any active BlockFor. It
// fails open on a Redis error so a limiter outage never stalls polling.
func (m *Manager) Wait(ctx context.Context, key string) error {
	for {
		result, err := m.limiter.Allow(ctx, key, m.limit.Requests, m.limit.Window)
		if err != nil {
			m.logger.WithContext(ctx).WithError(err).Warnf("ratelimit: allow check failed, failing open")
			return nil
		}
		if result.Allowed {
			return nil
		}

		wait := result.RetryIn
		if wait <= 0 {
			wait = 250 * time.Millisecond
		}
		m.logger.WithContext(ctx).Debugf("ratelimit: %s waiting %s for budget", key, wait)

		select {
		case <-ctx.Done():
			return fmt.Errorf("ratelimit: wait canceled: %w", ctx.Err())
		case <-time.After(wait):
		}
	}
}

// BlockFor records a server-driven backoff window for key, consulted by
// the next Wait call. Errors are logged, not propagated — httpkit.Limiter
// treats BlockFor as fire-and-forget.
func (m *Manager) BlockFor(ctx context.Context, key string, d time.Duration) {
	if err := m.limiter.BlockFor(ctx, key, d); err != nil {
		m.logger.WithContext(ctx).WithError(err).Warnf("ratelimit: block-for failed")
	}
}
