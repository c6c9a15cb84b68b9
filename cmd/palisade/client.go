package main

import (
	"context"
	"fmt"
	"os"
	"time"

	"github.com/spf13/cobra"

	"palisade-hq/palisade/pkg/cli"
	"palisade-hq/palisade/pkg/client"
	"palisade-hq/palisade/pkg/wire"
)

// clientFlags are shared by every subcommand that talks to the daemon.
var clientFlags struct {
	socketPath string
	pipeName   string
	timeout    time.Duration
	format     string
}

// addClientFlags registers the daemon-endpoint and output flags on a client
// subcommand.
func addClientFlags(cmd *cobra.Command) {
	cmd.Flags().StringVar(&clientFlags.socketPath, "socket", "", "daemon socket path (non-windows; default from daemon config)")
	cmd.Flags().StringVar(&clientFlags.pipeName, "pipe", "", "daemon named pipe (windows; default from daemon config)")
	cmd.Flags().DurationVar(&clientFlags.timeout, "timeout", 0, "overall command timeout (0 = no limit)")
	cmd.Flags().StringVarP(&clientFlags.format, "format", "f", "text", "output format: text, json")
}

// newClient builds a daemon client from the shared flags.
func newClient() *client.Client {
	return client.New(client.Options{
		SocketPath: clientFlags.socketPath,
		PipeName:   clientFlags.pipeName,
	})
}

// commandContext returns a context cancelled by SIGINT/SIGTERM and, when
// --timeout is set, by the deadline. The daemon persists partial batch
// results on cancellation, so interrupting apply or revert is safe.
func commandContext() (context.Context, context.CancelFunc) {
	ctx := cli.SetupSignalHandler()
	if clientFlags.timeout > 0 {
		return context.WithTimeout(ctx, clientFlags.timeout)
	}
	return context.WithCancel(ctx)
}

// outputFormat parses the --format flag.
func outputFormat() (cli.OutputFormat, error) {
	return cli.ParseFormat(clientFlags.format)
}

// progressRenderer returns a renderer for interactive text output and nil
// progress handling for JSON output, where a moving bar would corrupt the
// stream consumers parse.
func progressRenderer(format cli.OutputFormat) (*cli.ProgressRenderer, client.ProgressFunc) {
	if format != cli.FormatText {
		return nil, nil
	}
	r := cli.NewProgressRenderer(os.Stderr)
	return r, r.Handle
}

// renderBatchResult prints an apply or revert outcome.
func renderBatchResult(format cli.OutputFormat, operation string, res *wire.BatchResult) error {
	if res == nil {
		return nil
	}
	if format == cli.FormatJSON {
		return cli.NewFormatter(format).FormatTo(os.Stdout, res)
	}

	if res.DryRun {
		fmt.Printf("Dry run: no host or ledger changes were made.\n\n")
	}

	status := "✓"
	if !res.Success {
		status = "✗"
	}
	fmt.Printf("%s %s %s (applied: %d, failed: %d, skipped: %d)\n",
		status, operation, res.State, len(res.Applied), len(res.Failed), len(res.Skipped))

	if res.SnapshotID != "" {
		fmt.Printf("Snapshot: %s\n", res.SnapshotID)
	}
	if res.CheckpointID != "" {
		fmt.Printf("Restore checkpoint: %s\n", res.CheckpointID)
	}
	if len(res.AutoIncluded) > 0 {
		fmt.Printf("Auto-included dependencies: %v\n", res.AutoIncluded)
	}

	for _, id := range res.Applied {
		fmt.Printf("  ✓ %s\n", id)
	}
	for _, id := range res.Skipped {
		fmt.Printf("  - %s (skipped)\n", id)
	}
	for _, id := range res.Failed {
		fmt.Printf("  ✗ %s\n", id)
	}
	for _, id := range res.Aborted {
		fmt.Printf("  · %s (not attempted)\n", id)
	}

	if verbose {
		for _, rec := range res.Records {
			if rec.ErrorMessage != "" {
				fmt.Printf("    %s: %s\n", rec.PolicyID, rec.ErrorMessage)
			}
		}
	}

	for _, w := range res.Warnings {
		fmt.Printf("Warning: %s\n", w)
	}
	return nil
}
