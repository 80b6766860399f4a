package config

import (
	"strings"
	"testing"
	"time"

	"github.com/platinummonkey/tenantgate/pkg/observability"
)

func TestGetEnvHelpers(t *testing.T) {
	t.Setenv("TG_TEST_STR", "custom")
	t.Setenv("TG_TEST_BOOL", "1")
	t.Setenv("TG_TEST_INT", "42")
	t.Setenv("TG_TEST_BAD_INT", "forty")
	t.Setenv("TG_TEST_DUR", "90s")
	t.Setenv("TG_TEST_FLOAT", "0.25")

	if got := getEnv("TG_TEST_STR", "default"); got != "custom" {
		t.Errorf("getEnv() = %v, want custom", got)
	}
	if got := getEnv("TG_TEST_UNSET", "default"); got != "default" {
		t.Errorf("getEnv() = %v, want default", got)
	}
	if got := getEnvBool("TG_TEST_BOOL", false); !got {
		t.Errorf("getEnvBool() = %v, want true", got)
	}
	if got := getEnvInt("TG_TEST_INT", 0); got != 42 {
		t.Errorf("getEnvInt() = %v, want 42", got)
	}
	if got := getEnvInt("TG_TEST_BAD_INT", 7); got != 7 {
		t.Errorf("getEnvInt() = %v, want default 7", got)
	}
	if got := getEnvDuration("TG_TEST_DUR", time.Second); got != 90*time.Second {
		t.Errorf("getEnvDuration() = %v, want 90s", got)
	}
	if got := getEnvFloat("TG_TEST_FLOAT", 1); got != 0.25 {
		t.Errorf("getEnvFloat() = %v, want 0.25", got)
	}
}

func TestLoadConfig_Defaults(t *testing.T) {
	t.Setenv("TENANTGATE_DATABASE_URL", "postgres://localhost/tenantgate?sslmode=disable")

	cfg, err := LoadConfig()
	if err != nil {
		t.Fatalf("LoadConfig() error = %v", err)
	}

	if cfg.Server.Port != "8080" || cfg.Server.HealthPort != "9090" {
		t.Errorf("ports = %s/%s, want 8080/9090", cfg.Server.Port, cfg.Server.HealthPort)
	}
	if cfg.CoreTenantSlug != "core" {
		t.Errorf("CoreTenantSlug = %q, want core", cfg.CoreTenantSlug)
	}
	if cfg.Session.CookieName != "tg_session" {
		t.Errorf("CookieName = %q, want tg_session", cfg.Session.CookieName)
	}
	if cfg.Session.CacheSize != 10000 || cfg.Session.CacheTTL != 30*time.Minute {
		t.Errorf("session cache = %d/%v", cfg.Session.CacheSize, cfg.Session.CacheTTL)
	}
	if cfg.Session.DevLogin {
		t.Error("DevLogin should default to off")
	}
	if cfg.Routes.FallbackPath != "/" || cfg.Routes.LoginPath != "/login" {
		t.Errorf("routes = %+v", cfg.Routes)
	}
	if cfg.Jobs.ExpiryReportSchedule != "0 * * * *" {
		t.Errorf("ExpiryReportSchedule = %q", cfg.Jobs.ExpiryReportSchedule)
	}
	if cfg.Observability.LogLevel != observability.InfoLevel {
		t.Errorf("LogLevel = %v, want info", cfg.Observability.LogLevel)
	}
	if cfg.Redis.URL != "" {
		t.Errorf("Redis.URL = %q, want empty", cfg.Redis.URL)
	}
}

func TestLoadConfig_Overrides(t *testing.T) {
	t.Setenv("TENANTGATE_DATABASE_URL", "postgres://db/tg")
	t.Setenv("TENANTGATE_REDIS_URL", "redis://cache:6379/0")
	t.Setenv("TENANTGATE_REDIS_DB", "2")
	t.Setenv("TENANTGATE_CORE_TENANT_SLUG", "platform")
	t.Setenv("TENANTGATE_ROUTE_POLICY_FILE", "/etc/tenantgate/routes.yaml")
	t.Setenv("TENANTGATE_ROUTE_POLICY_WATCH", "true")
	t.Setenv("TENANTGATE_LOG_LEVEL", "debug")
	t.Setenv("TENANTGATE_SESSION_CACHE_SIZE", "50")
	t.Setenv("TENANTGATE_DEV_LOGIN", "true")

	cfg, err := LoadConfig()
	if err != nil {
		t.Fatalf("LoadConfig() error = %v", err)
	}
	if cfg.Redis.URL != "redis://cache:6379/0" || cfg.Redis.DB != 2 {
		t.Errorf("redis = %+v", cfg.Redis)
	}
	if cfg.CoreTenantSlug != "platform" {
		t.Errorf("CoreTenantSlug = %q", cfg.CoreTenantSlug)
	}
	if !cfg.Routes.Watch || cfg.Routes.PolicyFile == "" {
		t.Errorf("routes = %+v", cfg.Routes)
	}
	if cfg.Observability.LogLevel != observability.DebugLevel {
		t.Errorf("LogLevel = %v, want debug", cfg.Observability.LogLevel)
	}
	if cfg.Session.CacheSize != 50 {
		t.Errorf("CacheSize = %d", cfg.Session.CacheSize)
	}
	if !cfg.Session.DevLogin {
		t.Error("DevLogin = false, want true")
	}
}

func validConfig() *Config {
	return &Config{
		Server:         ServerConfig{Port: "8080", HealthPort: "9090"},
		Database:       DatabaseConfig{URL: "postgres://localhost/tg"},
		Session:        SessionConfig{CacheSize: 10, CookieName: "tg_session"},
		Routes:         RoutesConfig{FallbackPath: "/", LoginPath: "/login"},
		Jobs:           JobsConfig{ExpiryReportSchedule: "*/5 * * * *"},
		CoreTenantSlug: "core",
	}
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name    string
		mutate  func(c *Config)
		wantErr string
	}{
		{"valid", func(c *Config) {}, ""},
		{"missing port", func(c *Config) { c.Server.Port = "" }, "server port is required"},
		{"same ports", func(c *Config) { c.Server.HealthPort = "8080" }, "must be different"},
		{"missing database", func(c *Config) { c.Database.URL = "" }, "database URL is required"},
		{"negative redis db", func(c *Config) { c.Redis.DB = -1 }, "redis DB"},
		{"zero cache", func(c *Config) { c.Session.CacheSize = 0 }, "cache size"},
		{"empty core slug", func(c *Config) { c.CoreTenantSlug = "" }, "core tenant slug"},
		{"relative fallback", func(c *Config) { c.Routes.FallbackPath = "home" }, "fallback path"},
		{"relative login", func(c *Config) { c.Routes.LoginPath = "login" }, "login path"},
		{"watch without file", func(c *Config) { c.Routes.Watch = true }, "requires a policy file"},
		{"bad schedule", func(c *Config) { c.Jobs.ExpiryReportSchedule = "every hour" }, "invalid expiry report schedule"},
		{"otel without endpoint", func(c *Config) {
			c.Observability.OTelEnabled = true
			c.Observability.OTelServiceName = "tg"
		}, "endpoint is required"},
		{"otel bad ratio", func(c *Config) {
			c.Observability.OTelEnabled = true
			c.Observability.OTelEndpoint = "collector:4317"
			c.Observability.OTelServiceName = "tg"
			c.Observability.OTelSampleRatio = 2
		}, "sample ratio"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := validConfig()
			tt.mutate(cfg)
			err := cfg.Validate()
			if tt.wantErr == "" {
				if err != nil {
					t.Errorf("Validate() error = %v, want nil", err)
				}
				return
			}
			if err == nil || !strings.Contains(err.Error(), tt.wantErr) {
				t.Errorf("Validate() error = %v, want containing %q", err, tt.wantErr)
			}
		})
	}
}
