package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"palisade-hq/palisade/pkg/cli"
	"palisade-hq/palisade/pkg/wire"
)

var policiesFlags struct {
	mechanism string
	risk      string
}

var policiesCmd = &cobra.Command{
	Use:   "policies",
	Short: "List the daemon's policy catalog",
	Long: `List the policies loaded into the daemon's catalog, optionally filtered
by mechanism or risk class.

Examples:
  # The whole catalog
  palisade policies

  # Registry policies only
  palisade policies --mechanism registry

  # High-risk policies
  palisade policies --risk high`,
	Args: cobra.NoArgs,
	RunE: runPolicies,
}

func init() {
	rootCmd.AddCommand(policiesCmd)
	addClientFlags(policiesCmd)

	policiesCmd.Flags().StringVar(&policiesFlags.mechanism, "mechanism", "", "filter by mechanism: registry, service, scheduled_task, firewall, script")
	policiesCmd.Flags().StringVar(&policiesFlags.risk, "risk", "", "filter by risk: low, medium, high, critical")
}

func runPolicies(cmd *cobra.Command, args []string) error {
	format, err := outputFormat()
	if err != nil {
		return err
	}

	ctx, cancel := commandContext()
	defer cancel()

	c := newClient()
	defer c.Close()

	res, err := c.ListPolicies(ctx, wire.ListPoliciesPayload{
		Mechanism: policiesFlags.mechanism,
		Risk:      policiesFlags.risk,
	})
	if err != nil {
		return err
	}

	if format == cli.FormatJSON {
		return cli.NewFormatter(format).FormatTo(os.Stdout, res)
	}

	fmt.Printf("Catalog %s: %d policies\n\n", res.CatalogVersion, len(res.Policies))
	for _, p := range res.Policies {
		reversible := ""
		if !p.Reversible {
			reversible = " [irreversible]"
		}
		fmt.Printf("  %s (%s, %s)%s\n", p.ID, p.Mechanism, p.Risk, reversible)
		if p.Name != "" {
			fmt.Printf("      %s\n", p.Name)
		}
		if verbose {
			if p.Description != "" {
				fmt.Printf("      %s\n", p.Description)
			}
			if len(p.DependsOn) > 0 {
				fmt.Printf("      depends on: %v\n", p.DependsOn)
			}
		}
	}
	return nil
}
