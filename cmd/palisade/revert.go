package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"palisade-hq/palisade/pkg/cli"
	"palisade-hq/palisade/pkg/wire"
)

var revertFlags struct {
	all             bool
	continueOnError bool
	skipCheckpoint  bool
}

var revertCmd = &cobra.Command{
	Use:   "revert [policy-id...]",
	Short: "Revert previously applied policies",
	Long: `Revert policies to their recorded pre-apply state.

Each policy is restored from its most recent successful apply record in the
ledger. Policies are reverted in reverse dependency order, so dependents are
undone before their prerequisites. Revert batches are recorded in the ledger
exactly like applies.

Examples:
  # Revert specific policies
  palisade revert disable-guest-account

  # Revert everything applied on this host
  palisade revert --all`,
	Args: cobra.ArbitraryArgs,
	RunE: runRevert,
}

func init() {
	rootCmd.AddCommand(revertCmd)
	addClientFlags(revertCmd)

	revertCmd.Flags().BoolVar(&revertFlags.all, "all", false, "revert every policy with a recorded apply")
	revertCmd.Flags().BoolVar(&revertFlags.continueOnError, "continue-on-error", false, "keep processing after a policy fails")
	revertCmd.Flags().BoolVar(&revertFlags.skipCheckpoint, "skip-checkpoint", false, "skip the restore checkpoint for this batch")
}

func runRevert(cmd *cobra.Command, args []string) error {
	if len(args) == 0 && !revertFlags.all {
		return fmt.Errorf("specify policy ids or --all")
	}
	if len(args) > 0 && revertFlags.all {
		return fmt.Errorf("--all cannot be combined with explicit policy ids")
	}

	format, err := outputFormat()
	if err != nil {
		return err
	}

	ctx, cancel := commandContext()
	defer cancel()

	c := newClient()
	defer c.Close()

	renderer, onProgress := progressRenderer(format)

	res, err := c.Revert(ctx, wire.RevertPayload{
		PolicyIDs:       args,
		All:             revertFlags.all,
		ContinueOnError: revertFlags.continueOnError,
		SkipCheckpoint:  revertFlags.skipCheckpoint,
	}, onProgress)
	if renderer != nil {
		renderer.Finish()
	}
	if res != nil {
		if renderErr := renderBatchResult(format, "revert", res); renderErr != nil {
			return renderErr
		}
	}
	if err != nil {
		return err
	}
	if !res.Success {
		return cli.NewCommandError("revert", fmt.Errorf("%d of %d policies failed",
			len(res.Failed), len(res.Applied)+len(res.Failed)))
	}
	return nil
}
