package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"palisade-hq/palisade/pkg/cli"
	"palisade-hq/palisade/pkg/wire"
)

var applyFlags struct {
	all             bool
	continueOnError bool
	skipRecommended bool
	skipCheckpoint  bool
	dryRun          bool
}

var applyCmd = &cobra.Command{
	Use:   "apply [policy-id...]",
	Short: "Apply hardening policies",
	Long: `Apply one or more hardening policies through the daemon.

Required and prerequisite dependencies of the requested policies are pulled
in automatically; recommended dependencies are included too unless
--skip-recommended is set. The daemon records every change in the ledger so
the batch can be reverted later.

Examples:
  # Apply specific policies
  palisade apply disable-guest-account smb-signing

  # Apply the whole catalog
  palisade apply --all

  # Keep going past individual failures
  palisade apply --all --continue-on-error

  # Evaluate without touching the host
  palisade apply --all --dry-run`,
	Args: cobra.ArbitraryArgs,
	RunE: runApply,
}

func init() {
	rootCmd.AddCommand(applyCmd)
	addClientFlags(applyCmd)

	applyCmd.Flags().BoolVar(&applyFlags.all, "all", false, "apply every applicable policy in the catalog")
	applyCmd.Flags().BoolVar(&applyFlags.continueOnError, "continue-on-error", false, "keep processing after a policy fails")
	applyCmd.Flags().BoolVar(&applyFlags.skipRecommended, "skip-recommended", false, "do not auto-include recommended dependencies")
	applyCmd.Flags().BoolVar(&applyFlags.skipCheckpoint, "skip-checkpoint", false, "skip the restore checkpoint for this batch")
	applyCmd.Flags().BoolVar(&applyFlags.dryRun, "dry-run", false, "report what would change without mutating the host")
}

func runApply(cmd *cobra.Command, args []string) error {
	if len(args) == 0 && !applyFlags.all {
		return fmt.Errorf("specify policy ids or --all")
	}
	if len(args) > 0 && applyFlags.all {
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

	res, err := c.Apply(ctx, wire.ApplyPayload{
		PolicyIDs:       args,
		All:             applyFlags.all,
		ContinueOnError: applyFlags.continueOnError,
		SkipRecommended: applyFlags.skipRecommended,
		SkipCheckpoint:  applyFlags.skipCheckpoint,
		DryRun:          applyFlags.dryRun,
	}, onProgress)
	if renderer != nil {
		renderer.Finish()
	}
	if res != nil {
		// A failed or cancelled batch still reports its partial outcome.
		if renderErr := renderBatchResult(format, "apply", res); renderErr != nil {
			return renderErr
		}
	}
	if err != nil {
		return err
	}
	if !res.Success {
		return cli.NewCommandError("apply", fmt.Errorf("%d of %d policies failed",
			len(res.Failed), len(res.Applied)+len(res.Failed)))
	}
	return nil
}
