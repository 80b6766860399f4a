// Package inheritance switches sessions between tenants.
//
// A switch asks the Directory whether the acting user is a super admin.
// Regular users get the role of their own assignment in the target tenant,
// or the default USER role when they hold none. Super admins returning to
// the core tenant get full access without a role lookup; in any other
// tenant they are impersonating and keep the tenant switcher on top of
// whatever role they hold there.
//
// The context is assembled completely before anything is written. Switches
// on the same session are ordered: a switch that started before a newer
// one on the same session returns ErrSuperseded instead of committing,
// even when the newer switch fails. The session then keeps the context it
// had before either switch.
package inheritance
