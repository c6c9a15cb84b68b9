/*
Package cli provides command-line interface utilities for the Palisade
client commands.

The cli package includes output formatters, a progress renderer for
long-running batches, and common CLI helpers used by the palisade command.

Output Formatting:

The cli package supports text and JSON output for displaying command
results:

	formatter := cli.NewFormatter(cli.FormatJSON)
	if err := formatter.FormatTo(os.Stdout, result); err != nil {
		return err
	}

Progress Rendering:

Apply and revert stream progress frames from the daemon; the renderer draws
them as a single updating terminal line:

	progress := cli.NewProgressRenderer(os.Stderr)
	res, err := c.Apply(ctx, payload, progress.Handle)
	progress.Finish()

Signal Handling:

For graceful shutdown on SIGINT/SIGTERM:

	ctx := cli.SetupSignalHandler()
	// Use ctx for operations that should be cancelled on shutdown
*/
package cli
