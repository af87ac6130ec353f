// Package startup is trackersyncd's composition root: it reads
// configuration, opens the database and Redis connections, and wires
// every internal package into the object graph cmd/trackersyncd runs.
// No registration call for ectoinject could be grounded anywhere in the
// retrieved pack (only the GetContext[T] retrieval shape is confirmed,
// from ivy/lotus route handlers), and the teacher itself has no
// retrieved main.go/app.go to imitate directly, so this file wires
// dependencies by hand rather than through a container. The one
// exception is registerDebugConfigContext, which registers cfg in an
// ectoinject container for the /debug/config route. See DESIGN.md.
package startup

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"time"

	"github.com/Gobusters/ectoinject"
	"github.com/Gobusters/ectologger"
	"github.com/jmoiron/sqlx"
	"github.com/labstack/echo/v4"
	_ "github.com/lib/pq"
	"go.opentelemetry.io/otel/exporters/otlp/otlptrace/otlptracehttp"
	"go.opentelemetry.io/otel/sdk/resource"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	semconv "go.opentelemetry.io/otel/semconv/v1.26.0"

	"github.com/trackersync/trackersync/internal/adapters"
	"github.com/trackersync/trackersync/internal/adapters/platforma"
	"github.com/trackersync/trackersync/internal/adapters/platformb"
	"github.com/trackersync/trackersync/internal/config"
	"github.com/trackersync/trackersync/internal/dbkit"
	"github.com/trackersync/trackersync/internal/discovery"
	"github.com/trackersync/trackersync/internal/eventlog"
	"github.com/trackersync/trackersync/internal/httpkit"
	"github.com/trackersync/trackersync/internal/httpserver"
	"github.com/trackersync/trackersync/internal/members"
	"github.com/trackersync/trackersync/internal/pairing"
	"github.com/trackersync/trackersync/internal/poller"
	"github.com/trackersync/trackersync/internal/ratelimit"
	"github.com/trackersync/trackersync/internal/reconcile"
	"github.com/trackersync/trackersync/internal/redis"
	"github.com/trackersync/trackersync/internal/refcache"
	"github.com/trackersync/trackersync/internal/repositories"
	"github.com/trackersync/trackersync/internal/tracing"
)

// App is everything cmd/trackersyncd needs once startup has run:
// the poller, the HTTP server, and whatever needs a clean Close on exit.
type App struct {
	Config  *config.Config
	Logger  ectologger.Logger
	Driver  *poller.Driver
	Echo    *echo.Echo
	Checker *httpserver.Checker

	db              dbkit.DB
	sqlDB           *sqlx.DB
	redis           *redis.Client
	producer        *eventlog.Producer
	shutdownTracing func(context.Context) error
}

// Close releases every long-lived resource Build opened. Safe to call
// even if Build returned early with an error and some fields are nil.
func (a *App) Close(ctx context.Context) error {
	var firstErr error
	record := func(err error) {
		if err != nil && firstErr == nil {
			firstErr = err
		}
	}
	if a.producer != nil {
		record(a.producer.Close())
	}
	if a.redis != nil {
		record(a.redis.Close())
	}
	if a.sqlDB != nil {
		record(a.sqlDB.Close())
	}
	if a.shutdownTracing != nil {
		record(a.shutdownTracing(ctx))
	}
	return firstErr
}

// NewLogger builds an ectologger.Logger around a sink writing one JSON
// (or, if cfg.PrettyLogs, plain-text) line per message to stdout. The
// only teacher-retrieved ectologger construction call anywhere in the
// pack is a no-op test double (lotus/pkg/processor/processor_test.go);
// this gives that same constructor shape a real sink.
func NewLogger(cfg *config.Config) ectologger.Logger {
	return ectologger.NewEctoLogger(func(msg ectologger.EctoLogMessage) {
		if cfg.PrettyLogs {
			fmt.Fprintf(os.Stdout, "%s %v\n", time.Now().Format(time.RFC3339), msg)
			return
		}
		line, err := json.Marshal(msg)
		if err != nil {
			fmt.Fprintf(os.Stderr, "log marshal error: %v\n", err)
			return
		}
		fmt.Fprintln(os.Stdout, string(line))
	})
}

// connectDB opens the Postgres connection, retrying up to
// cfg.StartupMaxAttempts times — orchid/config/config.go carries the
// same StartupMaxAttempts/DatabaseReconnectRetryCount fields, implying
// a retry loop the teacher's own retrieved files never show directly.
func connectDB(cfg *config.Config, logger ectologger.Logger) (*sqlx.DB, error) {
	attempts := cfg.StartupMaxAttempts
	if attempts <= 0 {
		attempts = 1
	}
	var lastErr error
	for i := 0; i < attempts; i++ {
		db, err := sqlx.Connect(cfg.DatabaseDriver, cfg.DatabaseConnectionString)
		if err == nil {
			db.SetMaxOpenConns(cfg.DatabaseMaxOpenConns)
			db.SetMaxIdleConns(cfg.DatabaseMaxIdleConns)
			db.SetConnMaxLifetime(cfg.DatabaseConnMaxLifetime)
			return db, nil
		}
		lastErr = err
		logger.WithError(err).Warnf("database connect attempt %d/%d failed", i+1, attempts)
		time.Sleep(time.Duration(i+1) * 500 * time.Millisecond)
	}
	return nil, fmt.Errorf("connect to database after %d attempts: %w", attempts, lastErr)
}

// installTracing builds an OTLP/HTTP exporter-backed TracerProvider and
// installs it via tracing.SetTracer, grounded on
// stem/pkg/tracing/exporters/otlp.go + stem/pkg/tracing/tracing.go.
// A no-op tracer is installed instead when cfg.OTLPEnabled is false.
func installTracing(ctx context.Context, cfg *config.Config) (func(context.Context) error, error) {
	if !cfg.OTLPEnabled {
		return func(context.Context) error { return nil }, nil
	}

	opts := []otlptracehttp.Option{otlptracehttp.WithEndpoint(cfg.OTLPEndpoint)}
	if cfg.OTLPInsecure {
		opts = append(opts, otlptracehttp.WithInsecure())
	}
	exporter, err := otlptracehttp.New(ctx, opts...)
	if err != nil {
		return nil, fmt.Errorf("build otlp exporter: %w", err)
	}

	res, err := resource.New(ctx, resource.WithAttributes(
		semconv.ServiceName(cfg.AppName),
	))
	if err != nil {
		return nil, fmt.Errorf("build otel resource: %w", err)
	}

	tp := sdktrace.NewTracerProvider(
		sdktrace.WithBatcher(exporter),
		sdktrace.WithResource(res),
	)
	tracing.SetTracer(tp.Tracer(cfg.AppName))
	return tp.Shutdown, nil
}

// buildAdapterClient constructs one platform's httpkit.Client, wired
// with an internal/ratelimit.Manager scoped to that platform.
func buildAdapterClient(
	redisClient *redis.Client,
	platform, baseURL, authHeader, authValue string,
	requests int, windowSecs int,
	logger ectologger.Logger,
) *httpkit.Client {
	limit := ratelimit.Limit{Requests: int64(requests), Window: time.Duration(windowSecs) * time.Second}
	manager := ratelimit.NewManager(redisClient, "trackersyncd:ratelimit:"+platform, limit, logger)

	cfg := httpkit.DefaultConfig(baseURL, authHeader, authValue)
	cfg.Limiter = manager
	cfg.LimiterKey = platform
	return httpkit.NewClient(cfg, logger)
}

// Build runs the entire composition root and returns a ready-to-run App.
func Build(ctx context.Context, cfg *config.Config, logger ectologger.Logger) (*App, error) {
	app := &App{Config: cfg, Logger: logger}

	shutdownTracing, err := installTracing(ctx, cfg)
	if err != nil {
		return nil, err
	}
	app.shutdownTracing = shutdownTracing

	sqlDB, err := connectDB(cfg, logger)
	if err != nil {
		return nil, err
	}
	app.sqlDB = sqlDB
	app.db = dbkit.NewInstance(sqlDB, logger)

	redisClient, err := redis.NewClient(redis.Config{
		Host:     cfg.RedisHost,
		Port:     cfg.RedisPort,
		Password: cfg.RedisPassword,
		DB:       cfg.RedisDB,
	}, logger)
	if err != nil {
		return nil, fmt.Errorf("connect to redis: %w", err)
	}
	app.redis = redisClient

	projects := repositories.NewProjectRepository(app.db, logger)
	mappings := repositories.NewMappingRepository(app.db, logger)
	refs := repositories.NewReferenceRepository(app.db, logger)
	users := repositories.NewUserRepository(app.db, logger)

	clientA := buildAdapterClient(redisClient, "a", cfg.PlatformABaseURL, "X-Redmine-API-Key", cfg.PlatformAAPIKey,
		cfg.PlatformARateLimitRequests, cfg.PlatformARateLimitWindowSecs, logger)
	clientB := buildAdapterClient(redisClient, "b", cfg.PlatformBBaseURL, "PRIVATE-TOKEN", cfg.PlatformBToken,
		cfg.PlatformBRateLimitRequests, cfg.PlatformBRateLimitWindowSecs, logger)

	adapterA := platforma.New(clientA, refs, users, logger)
	adapterB := platformb.New(clientB, users, cfg.CategoryKeys, logger)
	var adapterAIface adapters.Adapter = adapterA
	var adapterBIface adapters.Adapter = adapterB

	var publisher *eventlog.Producer
	if cfg.KafkaEnabled {
		publisher = eventlog.NewProducer(eventlog.ParseConfig(cfg.KafkaBrokers, cfg.KafkaTopic), logger)
		app.producer = publisher
	}

	var pairingEvents pairing.EventPublisher
	var reconcileEvents reconcile.EventPublisher
	if publisher != nil {
		pairingEvents = publisher
		reconcileEvents = publisher
	}

	refresher := refcache.New(adapterA, refs, logger)
	linker := discovery.New(adapterAIface, adapterBIface, projects, cfg.PlatformACustomFieldName, logger)
	correlator := members.New(users, logger)
	pairer := pairing.New(mappings, cfg.CategoryKeys, pairingEvents, logger)
	reconciler := reconcile.New(mappings, reconcileEvents, logger)

	locker := redis.NewLocker(redisClient, "trackersyncd:lock")

	pollCfg := poller.DefaultConfig()
	pollCfg.Interval = time.Duration(cfg.PollingIntervalSecs) * time.Second
	pollCfg.Jitter = time.Duration(cfg.PollingJitterSecs) * time.Second

	driver := poller.New(
		refresher, linker, projects, mappings,
		correlator, pairer, reconciler,
		adapterAIface, adapterBIface,
		cfg.PlatformAPublicURL, cfg.PlatformBPublicURL,
		locker, pollCfg, logger,
	)
	app.Driver = driver

	checker := httpserver.NewChecker(app.db, redisClient, cfg.AppName)
	app.Checker = checker

	debugCtx, err := registerDebugConfigContext(ctx, cfg)
	if err != nil {
		logger.WithError(err).Warn("ectoinject registration for debug route failed, /debug/config will be unavailable")
		debugCtx = ctx
	}

	app.Echo = httpserver.New(checker, driver, logger)
	httpserver.RegisterDebugRoutes(app.Echo, debugCtx)

	return app, nil
}

// registerDebugConfigContext registers cfg as a singleton dependency in a
// fresh ectoinject container and returns a context with that container set
// active, so httpserver.RegisterDebugRoutes can retrieve cfg later via
// ectoinject.GetContext[*config.Config].
func registerDebugConfigContext(ctx context.Context, cfg *config.Config) (context.Context, error) {
	container, err := ectoinject.NewDIDefaultContainer()
	if err != nil {
		return ctx, err
	}

	if err := ectoinject.RegisterInstance[*config.Config](container, cfg); err != nil {
		return ctx, err
	}

	return ectoinject.SetActiveContainer(ctx, container.GetContainerID())
}
