// Package httpmw holds the echo middleware for trackersyncd's small
// process-visible HTTP surface (/health, /poll/status).
package httpmw

import (
	"github.com/google/uuid"
	"github.com/labstack/echo/v4"

	"github.com/trackersync/trackersync/internal/appctx"
)

// Context stamps every request's context with a request id and route/remote
// IP, the way every handler downstream expects to find them for logging.
func Context() echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			req := c.Request()

			requestID := req.Header.Get(echo.HeaderXRequestID)
			if requestID == "" {
				requestID = uuid.New().String()
			}

			ctx := req.Context()
			ctx = appctx.SetRequestID(ctx, requestID)
			ctx = appctx.SetRoute(ctx, req.URL.Path)
			ctx = appctx.SetRemoteIP(ctx, c.RealIP())

			c.SetRequest(req.WithContext(ctx))
			return next(c)
		}
	}
}
