package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/robfig/cron/v3"

	"github.com/platinummonkey/tenantgate/pkg/observability"
)

// Config holds all application configuration
type Config struct {
	Server        ServerConfig
	Database      DatabaseConfig
	Redis         RedisConfig
	Session       SessionConfig
	Routes        RoutesConfig
	Jobs          JobsConfig
	Observability ObservabilityConfig

	// CoreTenantSlug marks the core tenant when its type is not CORE
	CoreTenantSlug string
}

// ServerConfig holds HTTP server configuration
type ServerConfig struct {
	Host            string
	Port            string
	ReadTimeout     time.Duration
	WriteTimeout    time.Duration
	IdleTimeout     time.Duration
	ShutdownTimeout time.Duration

	// Health/metrics server (separate port for k8s probes)
	HealthPort string
}

// DatabaseConfig holds PostgreSQL settings
type DatabaseConfig struct {
	URL             string
	MaxOpenConns    int
	MaxIdleConns    int
	ConnMaxLifetime time.Duration
}

// RedisConfig holds the session tier and event fan-out connection. An
// empty URL keeps sessions in process memory.
type RedisConfig struct {
	URL      string
	Password string
	DB       int
	PoolSize int
}

// SessionConfig holds session store settings
type SessionConfig struct {
	CacheSize    int
	CacheTTL     time.Duration
	TTL          time.Duration
	CookieName   string
	CookieSecure bool
	// DevLogin lets POST /api/session name a user without a bearer token
	DevLogin bool
}

// RoutesConfig holds route guard settings
type RoutesConfig struct {
	PolicyFile   string
	Watch        bool
	FallbackPath string
	LoginPath    string
}

// JobsConfig holds background job schedules (cron syntax)
type JobsConfig struct {
	ExpiryReportSchedule string
}

// ObservabilityConfig holds observability settings
type ObservabilityConfig struct {
	LogLevel observability.LogLevel

	MetricsEnabled bool

	OTelEnabled        bool
	OTelEndpoint       string
	OTelServiceName    string
	OTelServiceVersion string
	OTelInsecure       bool
	OTelSampleRatio    float64
}

// LoadConfig loads configuration from environment variables
func LoadConfig() (*Config, error) {
	cfg := &Config{
		Server:         loadServerConfig(),
		Database:       loadDatabaseConfig(),
		Redis:          loadRedisConfig(),
		Session:        loadSessionConfig(),
		Routes:         loadRoutesConfig(),
		Jobs:           JobsConfig{ExpiryReportSchedule: getEnv("TENANTGATE_EXPIRY_REPORT_SCHEDULE", "0 * * * *")},
		Observability:  loadObservabilityConfig(),
		CoreTenantSlug: getEnv("TENANTGATE_CORE_TENANT_SLUG", "core"),
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("configuration validation failed: %w", err)
	}

	return cfg, nil
}

func loadServerConfig() ServerConfig {
	return ServerConfig{
		Host:            getEnv("TENANTGATE_HOST", "0.0.0.0"),
		Port:            getEnv("TENANTGATE_PORT", "8080"),
		ReadTimeout:     getEnvDuration("TENANTGATE_READ_TIMEOUT", 15*time.Second),
		WriteTimeout:    getEnvDuration("TENANTGATE_WRITE_TIMEOUT", 15*time.Second),
		IdleTimeout:     getEnvDuration("TENANTGATE_IDLE_TIMEOUT", 60*time.Second),
		ShutdownTimeout: getEnvDuration("TENANTGATE_SHUTDOWN_TIMEOUT", 30*time.Second),
		HealthPort:      getEnv("TENANTGATE_HEALTH_PORT", "9090"),
	}
}

func loadDatabaseConfig() DatabaseConfig {
	return DatabaseConfig{
		URL:             getEnv("TENANTGATE_DATABASE_URL", ""),
		MaxOpenConns:    getEnvInt("TENANTGATE_DATABASE_MAX_CONNS", 20),
		MaxIdleConns:    getEnvInt("TENANTGATE_DATABASE_MAX_IDLE_CONNS", 5),
		ConnMaxLifetime: getEnvDuration("TENANTGATE_DATABASE_CONN_MAX_LIFETIME", 30*time.Minute),
	}
}

func loadRedisConfig() RedisConfig {
	return RedisConfig{
		URL:      getEnv("TENANTGATE_REDIS_URL", ""),
		Password: getEnv("TENANTGATE_REDIS_PASSWORD", ""),
		DB:       getEnvInt("TENANTGATE_REDIS_DB", 0),
		PoolSize: getEnvInt("TENANTGATE_REDIS_POOL_SIZE", 10),
	}
}

func loadSessionConfig() SessionConfig {
	return SessionConfig{
		CacheSize:    getEnvInt("TENANTGATE_SESSION_CACHE_SIZE", 10000),
		CacheTTL:     getEnvDuration("TENANTGATE_SESSION_CACHE_TTL", 30*time.Minute),
		TTL:          getEnvDuration("TENANTGATE_SESSION_TTL", 24*time.Hour),
		CookieName:   getEnv("TENANTGATE_SESSION_COOKIE", "tg_session"),
		CookieSecure: getEnvBool("TENANTGATE_SESSION_COOKIE_SECURE", true),
		DevLogin:     getEnvBool("TENANTGATE_DEV_LOGIN", false),
	}
}

func loadRoutesConfig() RoutesConfig {
	return RoutesConfig{
		PolicyFile:   getEnv("TENANTGATE_ROUTE_POLICY_FILE", ""),
		Watch:        getEnvBool("TENANTGATE_ROUTE_POLICY_WATCH", false),
		FallbackPath: getEnv("TENANTGATE_FALLBACK_PATH", "/"),
		LoginPath:    getEnv("TENANTGATE_LOGIN_PATH", "/login"),
	}
}

func loadObservabilityConfig() ObservabilityConfig {
	return ObservabilityConfig{
		LogLevel:           observability.ParseLogLevel(getEnv("TENANTGATE_LOG_LEVEL", "info")),
		MetricsEnabled:     getEnvBool("TENANTGATE_METRICS_ENABLED", true),
		OTelEnabled:        getEnvBool("TENANTGATE_OTEL_ENABLED", false),
		OTelEndpoint:       getEnv("TENANTGATE_OTEL_ENDPOINT", "localhost:4317"),
		OTelServiceName:    getEnv("TENANTGATE_OTEL_SERVICE_NAME", "tenantgate"),
		OTelServiceVersion: getEnv("TENANTGATE_OTEL_SERVICE_VERSION", "1.0.0"),
		OTelInsecure:       getEnvBool("TENANTGATE_OTEL_INSECURE", true),
		OTelSampleRatio:    getEnvFloat("TENANTGATE_OTEL_SAMPLE_RATIO", 1),
	}
}

// Validate checks if the configuration is valid
func (c *Config) Validate() error {
	if c.Server.Port == "" {
		return fmt.Errorf("server port is required")
	}
	if c.Server.HealthPort == "" {
		return fmt.Errorf("health port is required")
	}
	if c.Server.Port == c.Server.HealthPort {
		return fmt.Errorf("server port and health port must be different")
	}

	if c.Database.URL == "" {
		return fmt.Errorf("database URL is required")
	}
	if c.Redis.DB < 0 {
		return fmt.Errorf("redis DB must not be negative")
	}

	if c.Session.CacheSize <= 0 {
		return fmt.Errorf("session cache size must be positive")
	}
	if c.Session.CookieName == "" {
		return fmt.Errorf("session cookie name is required")
	}
	if c.CoreTenantSlug == "" {
		return fmt.Errorf("core tenant slug is required")
	}

	if !strings.HasPrefix(c.Routes.FallbackPath, "/") {
		return fmt.Errorf("fallback path must start with /: %q", c.Routes.FallbackPath)
	}
	if !strings.HasPrefix(c.Routes.LoginPath, "/") {
		return fmt.Errorf("login path must start with /: %q", c.Routes.LoginPath)
	}
	if c.Routes.Watch && c.Routes.PolicyFile == "" {
		return fmt.Errorf("route policy watch requires a policy file")
	}

	if c.Jobs.ExpiryReportSchedule != "" {
		if _, err := cron.ParseStandard(c.Jobs.ExpiryReportSchedule); err != nil {
			return fmt.Errorf("invalid expiry report schedule: %w", err)
		}
	}

	if c.Observability.OTelEnabled {
		if c.Observability.OTelEndpoint == "" {
			return fmt.Errorf("OpenTelemetry endpoint is required when OTel is enabled")
		}
		if c.Observability.OTelServiceName == "" {
			return fmt.Errorf("OpenTelemetry service name is required when OTel is enabled")
		}
		if c.Observability.OTelSampleRatio < 0 || c.Observability.OTelSampleRatio > 1 {
			return fmt.Errorf("OpenTelemetry sample ratio must be between 0 and 1")
		}
	}

	return nil
}

// getEnv returns an environment variable value or a default
func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

// getEnvBool returns a boolean environment variable or a default
func getEnvBool(key string, defaultValue bool) bool {
	if value := os.Getenv(key); value != "" {
		return strings.ToLower(value) == "true" || value == "1"
	}
	return defaultValue
}

// getEnvInt returns an integer environment variable or a default
func getEnvInt(key string, defaultValue int) int {
	if value := os.Getenv(key); value != "" {
		if intVal, err := strconv.Atoi(value); err == nil {
			return intVal
		}
	}
	return defaultValue
}

// getEnvFloat returns a float environment variable or a default
func getEnvFloat(key string, defaultValue float64) float64 {
	if value := os.Getenv(key); value != "" {
		if f, err := strconv.ParseFloat(value, 64); err == nil {
			return f
		}
	}
	return defaultValue
}

// getEnvDuration returns a duration environment variable or a default
func getEnvDuration(key string, defaultValue time.Duration) time.Duration {
	if value := os.Getenv(key); value != "" {
		if duration, err := time.ParseDuration(value); err == nil {
			return duration
		}
	}
	return defaultValue
}
