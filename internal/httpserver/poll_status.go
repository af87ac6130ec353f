package httpserver

import (
	"net/http"
	"time"

	"github.com/labstack/echo/v4"

	"github.com/trackersync/trackersync/internal/poller"
)

// PollStatusResponse is GET /poll/status's body: the engine's own
// process-visible pass bookkeeping (spec.md §4.8).
type PollStatusResponse struct {
	LastRunAt           *time.Time `json:"last_run_at,omitempty"`
	LastSuccessAt       *time.Time `json:"last_success_at,omitempty"`
	ConsecutiveFailures int        `json:"consecutive_failures"`
	Running             bool       `json:"running"`
}

// PollStatusHandler returns an echo.HandlerFunc closing over driver, kept
// as a plain function rather than a type so server.go can wire it
// alongside the Checker's methods with the same signature shape.
func PollStatusHandler(driver *poller.Driver) echo.HandlerFunc {
	return func(c echo.Context) error {
		status := driver.Status()
		resp := PollStatusResponse{
			ConsecutiveFailures: status.ConsecutiveFailures,
			Running:             status.Running,
		}
		if !status.LastRunAt.IsZero() {
			resp.LastRunAt = &status.LastRunAt
		}
		if !status.LastSuccessAt.IsZero() {
			resp.LastSuccessAt = &status.LastSuccessAt
		}
		return c.JSON(http.StatusOK, resp)
	}
}
