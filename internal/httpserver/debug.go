package httpserver

import (
	"context"
	"net/http"

	"github.com/Gobusters/ectoinject"
	"github.com/labstack/echo/v4"

	"github.com/trackersync/trackersync/internal/config"
)

// RegisterDebugRoutes mounts GET /debug/config on e, stamping the
// handler's dependency retrieval through debugCtx — the context
// internal/startup registered *config.Config into via ectoinject. This
// is the one call site in the repo exercising ectoinject.GetContext[T],
// the only concretely-grounded ectoinject usage anywhere in the pack
// (ivy/pkg/routes/tenant/tenant.go and siblings retrieve *database.DB
// and ectologger.Logger the same way).
func RegisterDebugRoutes(e *echo.Echo, debugCtx context.Context) {
	e.GET("/debug/config", debugConfigHandler(debugCtx))
}

func debugConfigHandler(debugCtx context.Context) echo.HandlerFunc {
	return func(c echo.Context) error {
		_, cfg, err := ectoinject.GetContext[*config.Config](debugCtx)
		if err != nil {
			return echo.NewHTTPError(http.StatusServiceUnavailable, "config not available: "+err.Error())
		}
		return c.JSON(http.StatusOK, redactedConfig(cfg))
	}
}

// redactedConfig mirrors cfg with secrets blanked out, so /debug/config
// stays safe to leave open behind the same network boundary as /health.
func redactedConfig(cfg *config.Config) map[string]any {
	return map[string]any{
		"app_name":               cfg.AppName,
		"log_level":              cfg.LogLevel,
		"platform_a_base_url":    cfg.PlatformABaseURL,
		"platform_b_base_url":    cfg.PlatformBBaseURL,
		"category_keys":          cfg.CategoryKeys,
		"polling_enabled":        cfg.PollingEnabled,
		"polling_interval_secs":  cfg.PollingIntervalSecs,
		"polling_jitter_secs":    cfg.PollingJitterSecs,
		"kafka_enabled":          cfg.KafkaEnabled,
		"otlp_enabled":           cfg.OTLPEnabled,
	}
}
