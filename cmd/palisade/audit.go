package main

import (
	"fmt"
	"os"
	"time"

	"github.com/spf13/cobra"

	"palisade-hq/palisade/pkg/cli"
	"palisade-hq/palisade/pkg/wire"
)

var auditCmd = &cobra.Command{
	Use:   "audit [policy-id...]",
	Short: "Report live policy state without mutating anything",
	Long: `Audit checks each policy's live state on the host: whether it is
currently applied and what the configured value is. Nothing is mutated.

With no arguments the whole catalog is audited.

Examples:
  # Audit the whole catalog
  palisade audit

  # Audit specific policies
  palisade audit disable-guest-account smb-signing`,
	Args: cobra.ArbitraryArgs,
	RunE: runAudit,
}

func init() {
	rootCmd.AddCommand(auditCmd)
	addClientFlags(auditCmd)
}

func runAudit(cmd *cobra.Command, args []string) error {
	format, err := outputFormat()
	if err != nil {
		return err
	}

	ctx, cancel := commandContext()
	defer cancel()

	c := newClient()
	defer c.Close()

	res, err := c.Audit(ctx, wire.AuditPayload{PolicyIDs: args})
	if err != nil {
		return err
	}

	if format == cli.FormatJSON {
		return cli.NewFormatter(format).FormatTo(os.Stdout, res)
	}

	fmt.Printf("Audit at %s\n", res.GeneratedAt.Format(time.RFC3339))
	fmt.Printf("Applied: %d of %d\n\n", res.AppliedCount, len(res.Entries))

	for _, e := range res.Entries {
		switch {
		case e.Error != "":
			fmt.Printf("  ? %s (%s): %s\n", e.PolicyID, e.Mechanism, e.Error)
		case !e.Applicable:
			fmt.Printf("  - %s (%s): not applicable to this host\n", e.PolicyID, e.Mechanism)
		case e.Applied:
			fmt.Printf("  ✓ %s (%s)\n", e.PolicyID, e.Mechanism)
		default:
			fmt.Printf("  ✗ %s (%s)\n", e.PolicyID, e.Mechanism)
		}
		if verbose && e.Exists {
			fmt.Printf("      current: %s\n", e.CurrentValue)
		}
	}
	return nil
}
