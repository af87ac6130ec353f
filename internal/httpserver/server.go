// Package httpserver wires trackersyncd's small operator-facing HTTP
// surface: liveness/health, the poller's own status, and Prometheus
// scrape. It is deliberately thin compared to orchid's own
// internal/handlers — this engine has no public API of its own, it
// only needs to tell an operator whether it is alive and making
// progress (spec.md §4.8).
package httpserver

import (
	"github.com/Gobusters/ectologger"
	"github.com/labstack/echo/v4"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.opentelemetry.io/contrib/instrumentation/github.com/labstack/echo/otelecho"

	"github.com/trackersync/trackersync/internal/httpmw"
	"github.com/trackersync/trackersync/internal/poller"
)

// New builds an *echo.Echo with internal/httpmw registered and the
// health/poll-status/metrics routes mounted.
func New(checker *Checker, driver *poller.Driver, logger ectologger.Logger) *echo.Echo {
	e := echo.New()
	e.HideBanner = true
	e.HidePort = true

	e.Use(otelecho.Middleware("trackersyncd"))
	e.Use(httpmw.Context())
	e.Use(httpmw.Logger(logger))
	e.HTTPErrorHandler = httpmw.Error(logger)

	e.GET("/health", checker.HealthHandler)
	e.GET("/poll/status", PollStatusHandler(driver))
	e.GET("/metrics", echo.WrapHandler(promhttp.Handler()))

	return e
}
