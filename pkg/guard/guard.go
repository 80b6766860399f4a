package guard

import (
	"context"
	"fmt"
	"strings"
	"sync"

	"github.com/platinummonkey/tenantgate/pkg/observability"
	"github.com/platinummonkey/tenantgate/pkg/rbac"
	"github.com/platinummonkey/tenantgate/pkg/session"
)

// Rule binds a route pattern to a policy
type Rule struct {
	Pattern string
	Policy  Policy
}

// PolicySet is a complete rule table with its default policy
type PolicySet struct {
	Rules   []Rule
	Default Policy
}

// DefaultRules returns the console route table
func DefaultRules() []Rule {
	return []Rule{
		{Pattern: "/manager/tenants", Policy: Require(rbac.CapTenants)},
		{Pattern: "/manager/users", Policy: Require(rbac.CapUsers)},
		{Pattern: "/manager/roles", Policy: Require(rbac.CapRoles)},
		{Pattern: "/manager/settings", Policy: Require(rbac.CapSettings)},
		{Pattern: "/manager", Policy: Require(rbac.CapManager)},
		{Pattern: "/dashboard", Policy: Require(rbac.CapManager)},
		{Pattern: "/admin", Policy: Require(rbac.CapSuperAdmin)},
	}
}

// APIRules returns the table guarding the admin JSON API
func APIRules() []Rule {
	return []Rule{
		{Pattern: "/api/tenants", Policy: Require(rbac.CapTenants)},
		{Pattern: "/api/roles", Policy: Require(rbac.CapRoles)},
		{Pattern: "/api/permissions", Policy: Require(rbac.CapRoles)},
		{Pattern: "/api/assignments", Policy: Require(rbac.CapUsers)},
		{Pattern: "/api/audit", Policy: Require(rbac.CapSuperAdmin)},
	}
}

// DefaultPolicySet is DefaultRules with a Public default
func DefaultPolicySet() PolicySet {
	return PolicySet{Rules: DefaultRules(), Default: Public()}
}

// Validate checks patterns are absolute and unique and every capability
// is known, the default's included
func (ps PolicySet) Validate() error {
	if c, required := ps.Default.Capability(); required {
		if _, ok := rbac.ParseCapability(string(c)); !ok {
			return fmt.Errorf("default policy: unknown capability %q", c)
		}
	}
	seen := make(map[string]bool, len(ps.Rules))
	for i, r := range ps.Rules {
		if !strings.HasPrefix(r.Pattern, "/") {
			return fmt.Errorf("rule %d: pattern %q must start with /", i, r.Pattern)
		}
		key := "/" + strings.Join(splitPath(r.Pattern), "/")
		if seen[key] {
			return fmt.Errorf("rule %d: duplicate pattern %q", i, r.Pattern)
		}
		seen[key] = true
		if c, required := r.Policy.Capability(); required {
			if _, ok := rbac.ParseCapability(string(c)); !ok {
				return fmt.Errorf("rule %d: unknown capability %q", i, c)
			}
		}
	}
	return nil
}

// Decision is the outcome of a route check
type Decision struct {
	Path    string    `json:"path"`
	Allowed bool      `json:"allowed"`
	Pattern string    `json:"pattern,omitempty"`
	Match   MatchKind `json:"match,omitempty"`
	Policy  string    `json:"policy"`
	Reason  string    `json:"reason"`
}

// Guard decides route access from a session's role context
type Guard struct {
	mu      sync.RWMutex
	trie    *routeTrie
	def     Policy
	metrics *observability.Metrics
}

// New builds a guard over a validated policy set. metrics may be nil.
func New(ps PolicySet, metrics *observability.Metrics) (*Guard, error) {
	g := &Guard{metrics: metrics}
	if err := g.Replace(ps); err != nil {
		return nil, err
	}
	return g, nil
}

// Replace swaps in a new policy set. An invalid set leaves the current one in place.
func (g *Guard) Replace(ps PolicySet) error {
	if err := ps.Validate(); err != nil {
		return err
	}
	t := newRouteTrie()
	for _, r := range ps.Rules {
		t.insert(r.Pattern, r.Policy)
	}

	g.mu.Lock()
	defer g.mu.Unlock()
	g.trie = t
	g.def = ps.Default
	return nil
}

// Evaluate decides a path for a permission set
func (g *Guard) Evaluate(ep rbac.EffectivePermissions, path string) Decision {
	g.mu.RLock()
	policy, pattern, kind, ok := g.trie.lookup(path)
	if !ok {
		policy, kind = g.def, MatchDefault
	}
	g.mu.RUnlock()

	d := Decision{
		Path:    path,
		Allowed: policy.Allows(ep),
		Pattern: pattern,
		Match:   kind,
		Policy:  policy.String(),
	}
	switch {
	case policy.IsPublic():
		d.Reason = "public route"
	case d.Allowed:
		d.Reason = "capability granted"
	default:
		d.Reason = "missing capability " + policy.String()
	}
	g.count(d)
	return d
}

// Decide loads the session's role context and evaluates the path. A
// session without a role context is denied.
func (g *Guard) Decide(ctx context.Context, sess *session.Session, path string) (Decision, error) {
	rc, err := sess.RoleContext(ctx)
	if err != nil {
		return Decision{}, fmt.Errorf("failed to load role context: %w", err)
	}
	if rc == nil {
		d := Decision{Path: path, Reason: "no role context"}
		g.count(d)
		return d, nil
	}
	return g.Evaluate(rc.EffectivePermissions, path), nil
}

// CanAccessRoute reports whether the session may open the path. Any
// failure to read the role context denies.
func (g *Guard) CanAccessRoute(ctx context.Context, sess *session.Session, path string) bool {
	if sess == nil {
		return false
	}
	d, err := g.Decide(ctx, sess, path)
	return err == nil && d.Allowed
}

func (g *Guard) count(d Decision) {
	if g.metrics == nil {
		return
	}
	outcome := "deny"
	if d.Allowed {
		outcome = "allow"
	}
	capability := d.Policy
	if capability == "" {
		capability = "none"
	}
	g.metrics.RouteDecisionsTotal.WithLabelValues(outcome, capability).Inc()
}
