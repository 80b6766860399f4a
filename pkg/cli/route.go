package cli

import (
	"encoding/json"
	"flag"
	"fmt"
	"strings"

	"github.com/platinummonkey/tenantgate/pkg/guard"
	"github.com/platinummonkey/tenantgate/pkg/rbac"
)

func newRouteCommand() *Command {
	return &Command{
		Name:        "route",
		Description: "Decide a route against a policy file for a capability set",
		Flags:       flag.NewFlagSet("route", flag.ContinueOnError),
		Run:         runRoute,
	}
}

func runRoute(args []string) error {
	flags := flag.NewFlagSet("route", flag.ContinueOnError)
	policyFile := flags.String("policy", "", "Route policy YAML file (default: built-in console rules)")
	path := flags.String("path", "", "Route path to check")
	caps := flags.String("caps", "", "Comma-separated granted capabilities")
	asJSON := flags.Bool("json", false, "Print the decision as JSON")

	if err := flags.Parse(args); err != nil {
		return err
	}
	if *path == "" {
		return fmt.Errorf("-path is required")
	}

	ps := guard.DefaultPolicySet()
	if *policyFile != "" {
		loaded, err := guard.LoadPolicyFile(*policyFile)
		if err != nil {
			return err
		}
		ps = loaded
	}

	ep, err := parseCapabilities(*caps)
	if err != nil {
		return err
	}

	g, err := guard.New(ps, nil)
	if err != nil {
		return err
	}
	d := g.Evaluate(ep, *path)

	if *asJSON {
		enc := json.NewEncoder(out)
		enc.SetIndent("", "  ")
		return enc.Encode(d)
	}

	verdict := "deny"
	if d.Allowed {
		verdict = "allow"
	}
	fmt.Fprintf(out, "%s %s (match=%s pattern=%q policy=%s): %s\n", verdict, d.Path, d.Match, d.Pattern, d.Policy, d.Reason)
	return nil
}

// parseCapabilities builds a permission set from capability names
func parseCapabilities(list string) (rbac.EffectivePermissions, error) {
	var caps []rbac.Capability
	for _, raw := range strings.Split(list, ",") {
		raw = strings.TrimSpace(raw)
		if raw == "" {
			continue
		}
		c, ok := rbac.ParseCapability(raw)
		if !ok {
			return rbac.EffectivePermissions{}, fmt.Errorf("unknown capability %q", raw)
		}
		caps = append(caps, c)
	}
	return rbac.WithCapabilities(caps...), nil
}
