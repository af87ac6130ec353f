// Package appctx carries per-request/per-pass identifiers through context.Context.
package appctx

import "context"

type contextKey string

var (
	requestIDKey = contextKey("X-Request-Id")
	routeKey     = contextKey("X-Route")
	remoteIPKey  = contextKey("X-Remote-Ip")
	passIDKey    = contextKey("X-Pass-Id")
	projectKey   = contextKey("X-Project")
)

func SetRequestID(ctx context.Context, v string) context.Context { return context.WithValue(ctx, requestIDKey, v) }
func GetRequestID(ctx context.Context) string                    { return str(ctx, requestIDKey) }

func SetRoute(ctx context.Context, v string) context.Context { return context.WithValue(ctx, routeKey, v) }
func GetRoute(ctx context.Context) string                    { return str(ctx, routeKey) }

func SetRemoteIP(ctx context.Context, v string) context.Context { return context.WithValue(ctx, remoteIPKey, v) }
func GetRemoteIP(ctx context.Context) string                    { return str(ctx, remoteIPKey) }

// SetPassID tags a context with the poll-driver pass it belongs to, so every
// log line emitted during a pass can be correlated.
func SetPassID(ctx context.Context, v string) context.Context { return context.WithValue(ctx, passIDKey, v) }
func GetPassID(ctx context.Context) string                    { return str(ctx, passIDKey) }

// SetProjectKey tags a context with the project being reconciled.
func SetProjectKey(ctx context.Context, v string) context.Context { return context.WithValue(ctx, projectKey, v) }
func GetProjectKey(ctx context.Context) string                    { return str(ctx, projectKey) }

func str(ctx context.Context, key contextKey) string {
	v, ok := ctx.Value(key).(string)
	if !ok {
		return ""
	}
	return v
}
