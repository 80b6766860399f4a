package rbac

// RoleResolution is the outcome of looking up a user's role in a tenant.
// The zero value is NotAssigned.
type RoleResolution struct {
	role     Role
	resolved bool
}

// Resolved wraps a role found for the user
func Resolved(role Role) RoleResolution {
	return RoleResolution{role: role, resolved: true}
}

// NotAssigned reports that the user holds no usable assignment
func NotAssigned() RoleResolution {
	return RoleResolution{}
}

// IsResolved reports whether a role was found
func (r RoleResolution) IsResolved() bool {
	return r.resolved
}

// Role returns the resolved role and true, or the zero role and false
func (r RoleResolution) Role() (Role, bool) {
	return r.role, r.resolved
}

// RoleOrDefault returns the resolved role or DefaultRole
func (r RoleResolution) RoleOrDefault() Role {
	if r.resolved {
		return r.role
	}
	return DefaultRole()
}
