package main

import (
	"fmt"
	"os"
	"time"

	"github.com/spf13/cobra"

	"palisade-hq/palisade/pkg/cli"
	"palisade-hq/palisade/pkg/wire"
)

var driftFlags struct {
	snapshotID string
}

var driftCmd = &cobra.Command{
	Use:   "drift",
	Short: "Compare a recorded snapshot against observed host state",
	Long: `Drift diffs the per-policy state recorded in a snapshot against a fresh
audit of the host. Any divergence is reported with a severity derived from
the policy's risk class, whether a policy is no longer applied, holds a
changed value, or has vanished from the catalog.

Examples:
  # Check the most recent snapshot
  palisade drift

  # Check a specific snapshot
  palisade drift --snapshot 0b3c2a…`,
	Args: cobra.NoArgs,
	RunE: runDrift,
}

func init() {
	rootCmd.AddCommand(driftCmd)
	addClientFlags(driftCmd)

	driftCmd.Flags().StringVar(&driftFlags.snapshotID, "snapshot", "", "snapshot id (default: most recent)")
}

func runDrift(cmd *cobra.Command, args []string) error {
	format, err := outputFormat()
	if err != nil {
		return err
	}

	ctx, cancel := commandContext()
	defer cancel()

	c := newClient()
	defer c.Close()

	res, err := c.Drift(ctx, wire.DriftPayload{SnapshotID: driftFlags.snapshotID})
	if err != nil {
		return err
	}

	if format == cli.FormatJSON {
		return cli.NewFormatter(format).FormatTo(os.Stdout, res)
	}

	fmt.Printf("Snapshot %s (%s) vs host state at %s\n",
		res.SnapshotID,
		res.SnapshotAt.Format(time.RFC3339),
		res.CheckedAt.Format(time.RFC3339))

	if res.Clean {
		fmt.Println("✓ No drift detected")
		return nil
	}

	fmt.Printf("✗ %d drift item(s)\n\n", len(res.Items))
	for _, item := range res.Items {
		fmt.Printf("  [%s] %s: %s\n", item.Severity, item.PolicyID, item.Kind)
		if item.Expected != "" || item.Observed != "" {
			fmt.Printf("      expected: %s\n", item.Expected)
			fmt.Printf("      observed: %s\n", item.Observed)
		}
		if item.Detail != "" {
			fmt.Printf("      %s\n", item.Detail)
		}
	}
	return cli.NewCommandError("drift", fmt.Errorf("%d policies drifted from snapshot %s",
		len(res.Items), res.SnapshotID))
}
