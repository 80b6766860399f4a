package cli

import (
	"flag"
	"fmt"

	"github.com/platinummonkey/tenantgate/pkg/guard"
)

func newPolicyCheckCommand() *Command {
	return &Command{
		Name:        "policy-check",
		Description: "Validate a route policy file",
		Flags:       flag.NewFlagSet("policy-check", flag.ContinueOnError),
		Run:         runPolicyCheck,
	}
}

func runPolicyCheck(args []string) error {
	flags := flag.NewFlagSet("policy-check", flag.ContinueOnError)
	policyFile := flags.String("policy", "", "Route policy YAML file")
	dump := flags.Bool("dump", false, "Print the normalized policy")

	if err := flags.Parse(args); err != nil {
		return err
	}
	if *policyFile == "" {
		return fmt.Errorf("-policy is required")
	}

	ps, err := guard.LoadPolicyFile(*policyFile)
	if err != nil {
		return err
	}

	fmt.Fprintf(out, "%s: %d rules, default %s\n", *policyFile, len(ps.Rules), ps.Default)
	if *dump {
		data, err := guard.MarshalPolicySet(ps)
		if err != nil {
			return err
		}
		out.Write(data)
	}
	return nil
}
