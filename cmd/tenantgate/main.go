package main

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"net/http"
	"os"
	"time"

	"github.com/go-redis/redis/v8"
	"github.com/gorilla/mux"
	_ "github.com/lib/pq"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/robfig/cron/v3"
	"github.com/sirupsen/logrus"

	"github.com/platinummonkey/tenantgate/pkg/api"
	"github.com/platinummonkey/tenantgate/pkg/async"
	"github.com/platinummonkey/tenantgate/pkg/audit"
	"github.com/platinummonkey/tenantgate/pkg/auth"
	"github.com/platinummonkey/tenantgate/pkg/config"
	"github.com/platinummonkey/tenantgate/pkg/events"
	"github.com/platinummonkey/tenantgate/pkg/guard"
	"github.com/platinummonkey/tenantgate/pkg/inheritance"
	"github.com/platinummonkey/tenantgate/pkg/middleware"
	"github.com/platinummonkey/tenantgate/pkg/observability"
	"github.com/platinummonkey/tenantgate/pkg/rbac"
	"github.com/platinummonkey/tenantgate/pkg/session"
	"github.com/platinummonkey/tenantgate/pkg/tenants"
)

var version = "dev"

func main() {
	// Bootstrap logging until the configured logger exists
	boot := logrus.New()
	boot.SetLevel(logrus.InfoLevel)

	cfg, err := config.LoadConfig()
	if err != nil {
		boot.Fatalf("Failed to load configuration: %v", err)
	}
	boot.WithFields(logrus.Fields{
		"version": version,
		"port":    cfg.Server.Port,
	}).Info("Starting tenantgate")

	logger := observability.NewLogger(cfg.Observability.LogLevel, os.Stdout).WithField("service", "tenantgate")
	async.SetLogger(logger)

	if err := run(cfg, logger); err != nil {
		logger.WithError(err).Error("tenantgate exited with error")
		os.Exit(1)
	}
}

func run(cfg *config.Config, logger *observability.Logger) error {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	otelProviders, err := observability.InitOTel(ctx, observability.OTelConfig{
		Enabled:        cfg.Observability.OTelEnabled,
		Endpoint:       cfg.Observability.OTelEndpoint,
		ServiceName:    cfg.Observability.OTelServiceName,
		ServiceVersion: cfg.Observability.OTelServiceVersion,
		Insecure:       cfg.Observability.OTelInsecure,
		SampleRatio:    cfg.Observability.OTelSampleRatio,
	}, logger)
	if err != nil {
		return fmt.Errorf("failed to initialize OpenTelemetry: %w", err)
	}

	db, err := openDatabase(ctx, cfg.Database)
	if err != nil {
		return err
	}
	logger.Info("Connected to database")

	// Order matters: assignments reference roles, audit is independent
	if err := rbac.RunMigrations(ctx, db, logger); err != nil {
		return fmt.Errorf("failed to run rbac migrations: %w", err)
	}
	if err := tenants.RunMigrations(ctx, db, logger); err != nil {
		return fmt.Errorf("failed to run tenant migrations: %w", err)
	}
	if err := audit.RunMigrations(ctx, db, logger); err != nil {
		return fmt.Errorf("failed to run audit migrations: %w", err)
	}
	if err := auth.RunMigrations(ctx, db, logger); err != nil {
		return fmt.Errorf("failed to run auth migrations: %w", err)
	}

	var redisClient *redis.Client
	if cfg.Redis.URL != "" {
		redisClient, err = openRedis(ctx, cfg.Redis)
		if err != nil {
			return err
		}
		logger.Info("Connected to Redis")
	}

	registry := prometheus.NewRegistry()
	registry.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	metrics := observability.NewMetrics(registry)

	// Sessions: LRU in front of Redis, or process memory alone
	var persister session.Persister
	var forwarder events.Forwarder
	if redisClient != nil {
		persister = session.NewRedisPersister(redisClient, cfg.Session.TTL)
		forwarder = events.NewRedisForwarder(redisClient)
	} else {
		logger.Warn("No Redis configured, sessions are held in process memory")
		persister = session.NewMemoryPersister()
	}
	sessions := session.NewStore(persister, session.Config{
		CacheSize: cfg.Session.CacheSize,
		CacheTTL:  cfg.Session.CacheTTL,
	}, logger)

	bus := events.NewBus(forwarder)

	auditLogger, err := audit.NewDBLogger(db)
	if err != nil {
		return fmt.Errorf("failed to create audit logger: %w", err)
	}

	tenantService := tenants.NewPostgresService(db)
	roleStore := rbac.NewStore(db)

	directory := inheritance.NewDBDirectory(tenantService, roleStore, cfg.CoreTenantSlug, logger)
	coordinator := inheritance.NewCoordinator(directory, inheritance.Options{
		CoreSlug: cfg.CoreTenantSlug,
		Bus:      bus,
		Audit:    auditLogger,
		Metrics:  metrics,
		Logger:   logger,
	})

	consoleGuard, err := newConsoleGuard(ctx, cfg.Routes, metrics, logger)
	if err != nil {
		return err
	}
	adminGuard, err := guard.New(guard.PolicySet{Rules: guard.APIRules(), Default: guard.Public()}, metrics)
	if err != nil {
		return fmt.Errorf("failed to build admin guard: %w", err)
	}

	var switchLimit middleware.Limiter
	if redisClient != nil {
		switchLimit = middleware.NewRedisLimiter(redisClient, middleware.SwitchRateLimitConfig(), "")
	} else {
		switchLimit = middleware.NewMemoryLimiter(middleware.SwitchRateLimitConfig())
	}

	if cfg.Session.DevLogin {
		logger.Warn("Dev login is enabled, sessions can be created without a token")
	}

	server := api.NewServer(api.Deps{
		Sessions:    sessions,
		Tokens:      auth.NewPostgresTokenStore(db),
		DevLogin:    cfg.Session.DevLogin,
		CoreSlug:    cfg.CoreTenantSlug,
		Cookies:     middleware.NewSessionMiddleware(sessions, cfg.Session.CookieName, cfg.Session.CookieSecure),
		Coordinator: coordinator,
		Tenants:     tenantService,
		Roles:       roleStore,
		AuditSearch: auditLogger,
		Console:     consoleGuard,
		AdminGuard:  adminGuard,
		Bus:         bus,
		Audit:       auditLogger,
		Metrics:     metrics,
		SwitchLimit: switchLimit,
		Logger:      logger,
	})

	httpServer := &http.Server{
		Addr:         fmt.Sprintf("%s:%s", cfg.Server.Host, cfg.Server.Port),
		Handler:      server.Handler(),
		ReadTimeout:  cfg.Server.ReadTimeout,
		WriteTimeout: cfg.Server.WriteTimeout,
		IdleTimeout:  cfg.Server.IdleTimeout,
	}

	healthRouter := mux.NewRouter()
	observability.RegisterHealthRoutes(healthRouter, observability.NewHealthChecker(db, redisClient, version))
	if cfg.Observability.MetricsEnabled {
		observability.RegisterMetricsEndpoint(healthRouter, registry)
	}
	healthServer := &http.Server{
		Addr:         fmt.Sprintf("%s:%s", cfg.Server.Host, cfg.Server.HealthPort),
		Handler:      healthRouter,
		ReadTimeout:  5 * time.Second,
		WriteTimeout: 10 * time.Second,
	}

	expiry := tenants.NewExpiryReporter(tenantService, logger, metrics.AssignmentsPastExpiry)
	scheduler := cron.New()
	if _, err := scheduler.AddFunc(cfg.Jobs.ExpiryReportSchedule, func() {
		jobCtx, jobCancel := context.WithTimeout(ctx, time.Minute)
		defer jobCancel()
		if _, err := expiry.Run(jobCtx); err != nil {
			logger.WithError(err).Error("Expiry report failed")
		}
	}); err != nil {
		return fmt.Errorf("failed to schedule expiry report: %w", err)
	}
	scheduler.Start()
	logger.Infof("Expiry report scheduled: %s", cfg.Jobs.ExpiryReportSchedule)

	shutdown := observability.NewShutdownManager(logger, cfg.Server.ShutdownTimeout, httpServer, healthServer)
	shutdown.Register("background", func(context.Context) error {
		cancel()
		return nil
	})
	shutdown.Register("scheduler", func(sctx context.Context) error {
		select {
		case <-scheduler.Stop().Done():
			return nil
		case <-sctx.Done():
			return sctx.Err()
		}
	})
	shutdown.Register("otel", func(sctx context.Context) error {
		return observability.ShutdownOTel(sctx, otelProviders, logger)
	})
	if redisClient != nil {
		shutdown.Register("redis", func(context.Context) error {
			return redisClient.Close()
		})
	}
	shutdown.Register("database", func(context.Context) error {
		return db.Close()
	})

	go serve(httpServer, "API", logger)
	go serve(healthServer, "health", logger)

	return shutdown.WaitForSignal(context.Background())
}

func serve(srv *http.Server, name string, logger *observability.Logger) {
	logger.WithField("addr", srv.Addr).Infof("Starting %s server", name)
	if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		logger.WithError(err).Errorf("%s server failed", name)
		os.Exit(1)
	}
}

func openDatabase(ctx context.Context, cfg config.DatabaseConfig) (*sql.DB, error) {
	db, err := sql.Open("postgres", cfg.URL)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}
	db.SetMaxOpenConns(cfg.MaxOpenConns)
	db.SetMaxIdleConns(cfg.MaxIdleConns)
	db.SetConnMaxLifetime(cfg.ConnMaxLifetime)

	pingCtx, cancel := context.WithTimeout(ctx, 10*time.Second)
	defer cancel()
	if err := db.PingContext(pingCtx); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to ping database: %w", err)
	}
	return db, nil
}

func openRedis(ctx context.Context, cfg config.RedisConfig) (*redis.Client, error) {
	opts, err := redis.ParseURL(cfg.URL)
	if err != nil {
		return nil, fmt.Errorf("invalid redis url: %w", err)
	}
	if cfg.Password != "" {
		opts.Password = cfg.Password
	}
	if cfg.DB != 0 {
		opts.DB = cfg.DB
	}
	opts.PoolSize = cfg.PoolSize

	client := redis.NewClient(opts)
	pingCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	if err := client.Ping(pingCtx).Err(); err != nil {
		client.Close()
		return nil, fmt.Errorf("failed to ping redis: %w", err)
	}
	return client, nil
}

// newConsoleGuard builds the browser route guard from the policy file,
// or the built-in table when none is configured, and starts the file
// watcher when asked.
func newConsoleGuard(ctx context.Context, cfg config.RoutesConfig, metrics *observability.Metrics, logger *observability.Logger) (*guard.Guard, error) {
	ps := guard.DefaultPolicySet()
	if cfg.PolicyFile != "" {
		loaded, err := guard.LoadPolicyFile(cfg.PolicyFile)
		if err != nil {
			return nil, fmt.Errorf("failed to load route policy: %w", err)
		}
		ps = loaded
	}

	g, err := guard.New(ps, metrics)
	if err != nil {
		return nil, fmt.Errorf("failed to build route guard: %w", err)
	}

	if cfg.Watch {
		w, err := guard.NewWatcher(g, cfg.PolicyFile, logger, metrics)
		if err != nil {
			return nil, err
		}
		go w.Run(ctx)
		logger.WithField("policy_file", cfg.PolicyFile).Info("Watching route policy for changes")
	}
	return g, nil
}
