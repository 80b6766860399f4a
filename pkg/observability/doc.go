// Package observability provides structured logging, Prometheus metrics,
// health checks and OpenTelemetry setup for tenantgate.
//
// # Logging
//
//	logger := observability.NewLogger(observability.InfoLevel, os.Stdout)
//	logger.WithField("tenant_id", 7).Info("switched tenant")
//
// FromContext enriches the context logger with the request, user and tenant
// IDs placed there by the HTTP middleware.
//
// # Metrics
//
//	metrics := observability.NewMetrics(prometheus.DefaultRegisterer)
//	metrics.TenantSwitchesTotal.WithLabelValues("impersonate", "success").Inc()
//
// # Health
//
//	checker := observability.NewHealthChecker(db, redisClient, version)
//	observability.RegisterHealthRoutes(router, checker)
package observability
