package main

import (
	"fmt"
	"os"
	"time"

	"github.com/spf13/cobra"

	"palisade-hq/palisade/pkg/cli"
)

var statusCmd = &cobra.Command{
	Use:   "status",
	Short: "Show daemon status",
	Long: `Show the daemon's version, uptime, catalog summary, and latest snapshot.

Examples:
  palisade status
  palisade status -f json`,
	Args: cobra.NoArgs,
	RunE: runStatus,
}

func init() {
	rootCmd.AddCommand(statusCmd)
	addClientFlags(statusCmd)
}

func runStatus(cmd *cobra.Command, args []string) error {
	format, err := outputFormat()
	if err != nil {
		return err
	}

	ctx, cancel := commandContext()
	defer cancel()

	c := newClient()
	defer c.Close()

	res, err := c.GetState(ctx)
	if err != nil {
		return err
	}

	if format == cli.FormatJSON {
		return cli.NewFormatter(format).FormatTo(os.Stdout, res)
	}

	fmt.Printf("Daemon version: %s\n", res.Version)
	fmt.Printf("Started: %s (up %s)\n",
		res.StartedAt.Format(time.RFC3339),
		time.Since(res.StartedAt).Round(time.Second))
	fmt.Printf("Catalog: %s (%d policies)\n", res.CatalogVersion, res.PolicyCount)
	fmt.Printf("Ledger backend: %s\n", res.LedgerBackend)
	if res.Busy {
		fmt.Println("Engine: batch in progress")
	} else {
		fmt.Println("Engine: idle")
	}
	if res.LatestSnapshotID != "" {
		fmt.Printf("Latest snapshot: %s (%s)\n",
			res.LatestSnapshotID, res.LatestSnapshotAt.Format(time.RFC3339))
	} else {
		fmt.Println("Latest snapshot: none")
	}
	return nil
}
