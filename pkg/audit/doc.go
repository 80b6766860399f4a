// Package audit records tenant switches, super admin impersonation and
// route denials.
//
// DBLogger writes to the audit_logs table; StructuredLogger writes to the
// application log when no database is configured; NoopLogger is for tests.
package audit
