// Package tenants manages tenants and the assignments that bind users to
// roles inside them.
//
// Assignment status only changes through explicit transitions (activate,
// suspend, deactivate, archive). ExpiresAt is recorded but never enforced;
// ExpiryReporter surfaces overdue assignments to operators instead.
package tenants
