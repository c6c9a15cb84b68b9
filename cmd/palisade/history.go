package main

import (
	"fmt"
	"os"
	"time"

	"github.com/spf13/cobra"

	"palisade-hq/palisade/pkg/cli"
	"palisade-hq/palisade/pkg/wire"
)

var historyFlags struct {
	policyID   string
	snapshotID string
	operation  string
	mechanism  string
	failed     bool
	limit      int
	offset     int
}

var historyCmd = &cobra.Command{
	Use:   "history",
	Short: "Query the change ledger",
	Long: `Query the append-only change ledger of applies and reverts.

Examples:
  # Everything recorded for one policy
  palisade history --policy disable-guest-account

  # Failed changes only
  palisade history --failed

  # One batch
  palisade history --snapshot 0b3c2a…

  # Page through results
  palisade history --limit 20 --offset 40`,
	Args: cobra.NoArgs,
	RunE: runHistory,
}

func init() {
	rootCmd.AddCommand(historyCmd)
	addClientFlags(historyCmd)

	historyCmd.Flags().StringVar(&historyFlags.policyID, "policy", "", "filter by policy id")
	historyCmd.Flags().StringVar(&historyFlags.snapshotID, "snapshot", "", "filter by snapshot id")
	historyCmd.Flags().StringVar(&historyFlags.operation, "operation", "", "filter by operation: apply, revert")
	historyCmd.Flags().StringVar(&historyFlags.mechanism, "mechanism", "", "filter by mechanism")
	historyCmd.Flags().BoolVar(&historyFlags.failed, "failed", false, "only failed changes")
	historyCmd.Flags().IntVar(&historyFlags.limit, "limit", 50, "max results")
	historyCmd.Flags().IntVar(&historyFlags.offset, "offset", 0, "pagination offset")
}

func runHistory(cmd *cobra.Command, args []string) error {
	format, err := outputFormat()
	if err != nil {
		return err
	}

	ctx, cancel := commandContext()
	defer cancel()

	payload := wire.HistoryPayload{
		PolicyID:   historyFlags.policyID,
		SnapshotID: historyFlags.snapshotID,
		Operation:  historyFlags.operation,
		Mechanism:  historyFlags.mechanism,
		Limit:      historyFlags.limit,
		Offset:     historyFlags.offset,
	}
	if historyFlags.failed {
		success := false
		payload.Success = &success
	}

	c := newClient()
	defer c.Close()

	res, err := c.History(ctx, payload)
	if err != nil {
		return err
	}

	if format == cli.FormatJSON {
		return cli.NewFormatter(format).FormatTo(os.Stdout, res)
	}

	fmt.Printf("Total records: %d (showing %d)\n", res.Total, len(res.Records))
	if len(res.Records) == 0 {
		fmt.Println("No records found.")
		return nil
	}
	fmt.Println()

	for i, rec := range res.Records {
		if i > 0 {
			fmt.Println()
		}
		status := "✓"
		if !rec.Success {
			status = "✗"
		}
		fmt.Printf("%s %s %s (%s)\n", status, rec.Operation, rec.PolicyID, rec.Mechanism)
		fmt.Printf("  Change ID: %s\n", rec.ChangeID)
		fmt.Printf("  At: %s\n", rec.AppliedAt.Format(time.RFC3339))
		fmt.Printf("  Snapshot: %s\n", rec.SnapshotID)
		if rec.PreviousState != nil {
			fmt.Printf("  Previous: %s\n", *rec.PreviousState)
		}
		if rec.NewState != "" {
			fmt.Printf("  New: %s\n", rec.NewState)
		}
		if rec.ErrorMessage != "" {
			fmt.Printf("  Error: %s\n", rec.ErrorMessage)
		}
	}
	return nil
}
