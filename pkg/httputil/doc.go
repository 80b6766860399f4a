// Package httputil holds the JSON reply and request parsing helpers shared
// by the tenantgate HTTP handlers.
package httputil
