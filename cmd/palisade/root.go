package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"palisade-hq/palisade/pkg/cli"
)

var (
	// Global flags
	cfgFile string
	verbose bool
)

var rootCmd = &cobra.Command{
	Use:   "palisade",
	Short: "Palisade - declarative OS-hardening policy engine",
	Long: `Palisade applies, audits, reverts, and tracks drift for declarative
OS-hardening policies on a single machine.

A privileged daemon (palisade run) owns all host mutation: registry values,
service configuration, scheduled tasks, firewall rules, and vetted hardening
scripts. Every change is recorded in an append-only ledger so it can be
reverted exactly and checked for drift later.

The remaining subcommands are unprivileged clients that talk to the daemon
over its local control endpoint; mutating commands additionally require the
caller to pass the daemon's administrator, integrity, and code-signature
checks.`,
	Version: Version,
}

// Execute runs the root command.
func Execute() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(cli.ExitCode(err))
	}
}

func init() {
	// Global persistent flags (available to all subcommands)
	rootCmd.PersistentFlags().StringVarP(&cfgFile, "config", "c", "config.yaml", "config file path (daemon only)")
	rootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "verbose output")

	// Disable default completion command (we'll add our own)
	rootCmd.CompletionOptions.DisableDefaultCmd = true
}
