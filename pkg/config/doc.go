// Package config loads tenantgate configuration from TENANTGATE_*
// environment variables and validates it.
//
// Only TENANTGATE_DATABASE_URL is required. Without TENANTGATE_REDIS_URL
// sessions live in process memory and events stay in process.
// TENANTGATE_DEV_LOGIN=true lets sessions start without an API token and
// must not be set in production.
package config
