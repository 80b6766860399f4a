package cli

import (
	"flag"
	"fmt"
	"sort"
	"strings"

	"github.com/platinummonkey/tenantgate/pkg/rbac"
)

func newLevelsCommand() *Command {
	return &Command{
		Name:        "levels",
		Description: "Print the role level table",
		Flags:       flag.NewFlagSet("levels", flag.ContinueOnError),
		Run:         runLevels,
	}
}

func runLevels(args []string) error {
	table := rbac.DefaultLevelTable()
	levels := make([]rbac.RoleLevel, 0, len(table))
	for l := range table {
		levels = append(levels, l)
	}
	sort.Slice(levels, func(i, j int) bool { return levels[i].Rank() < levels[j].Rank() })

	for _, l := range levels {
		caps := make([]string, 0, len(table[l].Capabilities))
		for _, c := range table[l].Capabilities {
			caps = append(caps, string(c))
		}
		fmt.Fprintf(out, "%d  %-12s %s\n", l.Rank(), l, strings.Join(caps, ","))
	}
	return nil
}
