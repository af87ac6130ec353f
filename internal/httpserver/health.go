package httpserver

import (
	"context"
	"net/http"
	"sync"
	"time"

	"github.com/labstack/echo/v4"

	"github.com/trackersync/trackersync/internal/dbkit"
	"github.com/trackersync/trackersync/internal/redis"
)

// Status, grounded on orchid/pkg/health/health.go's vocabulary.
type Status string

const (
	StatusHealthy   Status = "healthy"
	StatusUnhealthy Status = "unhealthy"
)

type CheckResult struct {
	Status  Status `json:"status"`
	Message string `json:"message,omitempty"`
	Latency string `json:"latency,omitempty"`
}

type HealthResponse struct {
	Status     Status                 `json:"status"`
	Version    string                 `json:"version,omitempty"`
	Uptime     string                 `json:"uptime,omitempty"`
	Checks     map[string]CheckResult `json:"checks,omitempty"`
	ReportedAt time.Time              `json:"reported_at"`
}

// Checker backs GET /health: database and Redis connectivity, plus a
// ready flag the serve command sets once startup has finished, whether
// or not polling is enabled.
type Checker struct {
	db      dbkit.DB
	redis   *redis.Client
	version string
	start   time.Time

	mu    sync.RWMutex
	ready bool
}

func NewChecker(db dbkit.DB, redisClient *redis.Client, version string) *Checker {
	return &Checker{db: db, redis: redisClient, version: version, start: time.Now()}
}

func (c *Checker) SetReady(ready bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.ready = ready
}

func (c *Checker) IsReady() bool {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.ready
}

// HealthHandler backs GET /health: reports process uptime plus database
// and Redis reachability.
func (c *Checker) HealthHandler(ctx echo.Context) error {
	checks := map[string]CheckResult{
		"database": c.checkDatabase(ctx.Request().Context()),
		"redis":    c.checkRedis(ctx.Request().Context()),
	}

	overall := StatusHealthy
	for _, r := range checks {
		if r.Status == StatusUnhealthy {
			overall = StatusUnhealthy
			break
		}
	}

	statusCode := http.StatusOK
	if overall == StatusUnhealthy {
		statusCode = http.StatusServiceUnavailable
	}

	return ctx.JSON(statusCode, HealthResponse{
		Status:     overall,
		Version:    c.version,
		Uptime:     time.Since(c.start).Round(time.Second).String(),
		Checks:     checks,
		ReportedAt: time.Now(),
	})
}

func (c *Checker) checkDatabase(ctx context.Context) CheckResult {
	if c.db == nil {
		return CheckResult{Status: StatusUnhealthy, Message: "database not configured"}
	}
	start := time.Now()
	ctx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	if err := c.db.PingContext(ctx); err != nil {
		return CheckResult{Status: StatusUnhealthy, Message: err.Error(), Latency: time.Since(start).String()}
	}
	return CheckResult{Status: StatusHealthy, Latency: time.Since(start).String()}
}

func (c *Checker) checkRedis(ctx context.Context) CheckResult {
	if c.redis == nil {
		return CheckResult{Status: StatusUnhealthy, Message: "redis not configured"}
	}
	start := time.Now()
	ctx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	if err := c.redis.Ping(ctx); err != nil {
		return CheckResult{Status: StatusUnhealthy, Message: err.Error(), Latency: time.Since(start).String()}
	}
	return CheckResult{Status: StatusHealthy, Latency: time.Since(start).String()}
}
