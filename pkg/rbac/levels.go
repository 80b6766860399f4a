package rbac

// Capability names one of the effective permission flags
type Capability string

const (
	CapManager        Capability = "manager"
	CapTenants        Capability = "tenants"
	CapUsers          Capability = "users"
	CapRoles          Capability = "roles"
	CapSettings       Capability = "settings"
	CapSuperAdmin     Capability = "super_admin"
	CapCoreSuperAdmin Capability = "core_super_admin"
)

// AllCapabilities lists every capability in flag order
func AllCapabilities() []Capability {
	return []Capability{
		CapManager,
		CapTenants,
		CapUsers,
		CapRoles,
		CapSettings,
		CapSuperAdmin,
		CapCoreSuperAdmin,
	}
}

// ParseCapability validates a capability name
func ParseCapability(s string) (Capability, bool) {
	for _, c := range AllCapabilities() {
		if string(c) == s {
			return c, true
		}
	}
	return "", false
}

// EffectivePermissions is the final capability set after combining the
// role level with granular permission grants.
type EffectivePermissions struct {
	CanAccessManager  bool `json:"canAccessManager"`
	CanAccessTenants  bool `json:"canAccessTenants"`
	CanAccessUsers    bool `json:"canAccessUsers"`
	CanAccessRoles    bool `json:"canAccessRoles"`
	CanAccessSettings bool `json:"canAccessSettings"`
	IsSuperAdmin      bool `json:"isSuperAdmin"`
	IsCoreSuperAdmin  bool `json:"isCoreSuperAdmin"`
}

// FullAccess returns a permission set with every flag set
func FullAccess() EffectivePermissions {
	var ep EffectivePermissions
	for _, c := range AllCapabilities() {
		ep.grant(c)
	}
	return ep
}

// WithCapabilities returns a permission set granting exactly caps
func WithCapabilities(caps ...Capability) EffectivePermissions {
	var ep EffectivePermissions
	for _, c := range caps {
		ep.grant(c)
	}
	return ep
}

// Has reports whether the capability is granted
func (ep EffectivePermissions) Has(c Capability) bool {
	switch c {
	case CapManager:
		return ep.CanAccessManager
	case CapTenants:
		return ep.CanAccessTenants
	case CapUsers:
		return ep.CanAccessUsers
	case CapRoles:
		return ep.CanAccessRoles
	case CapSettings:
		return ep.CanAccessSettings
	case CapSuperAdmin:
		return ep.IsSuperAdmin
	case CapCoreSuperAdmin:
		return ep.IsCoreSuperAdmin
	}
	return false
}

// Capabilities returns the granted capabilities in flag order
func (ep EffectivePermissions) Capabilities() []Capability {
	var out []Capability
	for _, c := range AllCapabilities() {
		if ep.Has(c) {
			out = append(out, c)
		}
	}
	return out
}

func (ep *EffectivePermissions) grant(c Capability) {
	switch c {
	case CapManager:
		ep.CanAccessManager = true
	case CapTenants:
		ep.CanAccessTenants = true
	case CapUsers:
		ep.CanAccessUsers = true
	case CapRoles:
		ep.CanAccessRoles = true
	case CapSettings:
		ep.CanAccessSettings = true
	case CapSuperAdmin:
		ep.IsSuperAdmin = true
	case CapCoreSuperAdmin:
		ep.IsCoreSuperAdmin = true
	}
}

// LevelEntry is one row of the level table
type LevelEntry struct {
	Rank         int
	Capabilities []Capability
}

// LevelTable maps role levels to rank and default capabilities
type LevelTable map[RoleLevel]LevelEntry

var defaultLevels = LevelTable{
	LevelGuest:      {Rank: 0},
	LevelUser:       {Rank: 1},
	LevelManager:    {Rank: 2, Capabilities: []Capability{CapManager, CapUsers}},
	LevelAdmin:      {Rank: 3, Capabilities: []Capability{CapManager, CapUsers, CapRoles, CapSettings}},
	LevelSuperAdmin: {Rank: 4, Capabilities: AllCapabilities()},
}

// DefaultLevelTable returns the fixed level table
func DefaultLevelTable() LevelTable {
	return defaultLevels
}

// Rank returns the numeric rank of the level, or -1 when unknown
func (l RoleLevel) Rank() int {
	entry, ok := defaultLevels[l]
	if !ok {
		return -1
	}
	return entry.Rank
}

// AtLeast reports whether level a ranks at or above level b
func AtLeast(a, b RoleLevel) bool {
	return a.Rank() >= b.Rank() && a.Rank() >= 0
}

// Defaults returns the capability flags granted by level alone
func (t LevelTable) Defaults(l RoleLevel) EffectivePermissions {
	var ep EffectivePermissions
	entry, ok := t[l]
	if !ok {
		return ep
	}
	for _, c := range entry.Capabilities {
		ep.grant(c)
	}
	return ep
}
