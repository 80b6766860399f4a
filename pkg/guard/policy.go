package guard

import (
	"fmt"

	"github.com/platinummonkey/tenantgate/pkg/rbac"
)

// Policy is what a route requires: nothing (Public) or one capability
type Policy struct {
	public     bool
	capability rbac.Capability
}

// Public is the policy of a route anyone with a role context may open
func Public() Policy {
	return Policy{public: true}
}

// Require is the policy of a route gated on a capability
func Require(c rbac.Capability) Policy {
	return Policy{capability: c}
}

// IsPublic reports whether the policy lets every role context through
func (p Policy) IsPublic() bool {
	return p.public
}

// Capability returns the required capability and false for Public
func (p Policy) Capability() (rbac.Capability, bool) {
	return p.capability, !p.public
}

// Allows evaluates the policy against a permission set
func (p Policy) Allows(ep rbac.EffectivePermissions) bool {
	if p.public {
		return true
	}
	return ep.Has(p.capability)
}

func (p Policy) String() string {
	if p.public {
		return "public"
	}
	return string(p.capability)
}

// ParsePolicy reads "public" or a capability name
func ParsePolicy(s string) (Policy, error) {
	if s == "public" {
		return Public(), nil
	}
	c, ok := rbac.ParseCapability(s)
	if !ok {
		return Policy{}, fmt.Errorf("unknown capability %q", s)
	}
	return Require(c), nil
}
