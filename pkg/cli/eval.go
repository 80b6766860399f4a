package cli

import (
	"encoding/json"
	"flag"
	"fmt"
	"strings"

	"github.com/platinummonkey/tenantgate/pkg/rbac"
)

func newEvalCommand() *Command {
	return &Command{
		Name:        "eval",
		Description: "Compute effective permissions for a role level and permission list",
		Flags:       flag.NewFlagSet("eval", flag.ContinueOnError),
		Run:         runEval,
	}
}

func runEval(args []string) error {
	flags := flag.NewFlagSet("eval", flag.ContinueOnError)
	level := flags.String("level", string(rbac.LevelUser), "Role level (GUEST, USER, MANAGER, ADMIN, SUPER_ADMIN)")
	perms := flags.String("perms", "", "Comma-separated permission names")
	superAdmin := flags.Bool("super-admin", false, "Evaluate as an original super admin")
	asJSON := flags.Bool("json", false, "Print JSON instead of a table")

	if err := flags.Parse(args); err != nil {
		return err
	}

	var names []string
	for _, p := range strings.Split(*perms, ",") {
		if p = strings.TrimSpace(p); p != "" {
			names = append(names, p)
		}
	}

	ep := rbac.CalculateFromNames(*level, names, *superAdmin)

	if *asJSON {
		enc := json.NewEncoder(out)
		enc.SetIndent("", "  ")
		return enc.Encode(ep)
	}

	for _, c := range rbac.AllCapabilities() {
		fmt.Fprintf(out, "%-18s %t\n", c, ep.Has(c))
	}
	for _, name := range names {
		if _, ok := rbac.CapabilityForPermission(name); !ok {
			fmt.Fprintf(out, "note: %q is not a recognized permission and was ignored\n", name)
		}
	}
	return nil
}
