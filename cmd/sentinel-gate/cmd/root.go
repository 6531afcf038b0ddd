// Package cmd provides the CLI commands for Sentinel Gate.
package cmd

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/Sentinel-Gate/Sentinelgate/internal/config"
)

var rootCmd = &cobra.Command{
	Use:   "sentinel-gate",
	Short: "Sentinel Gate - a zero-trust policy gateway for autonomous agents",
	Long: `Sentinel Gate sits in front of an autonomous agent's tool calls and runs
each one through a fixed decision pipeline: authenticate, rate-limit,
sanitize PII, evaluate risk against policy rules, decide allow/deny/pending,
escalate to a human approver when required, and record every outcome to an
audit trail.

Configuration is entirely environment-variable driven (MODE,
APPROVAL_THRESHOLD, COUNTER_STORE_URL, AUDIT_STORE_URL, ...); there is no
config file to manage.

Commands:
  start       Start the gateway HTTP server
  version     Print version information`,
}

// Execute runs the root command.
func Execute() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func init() {
	cobra.OnInitialize(config.InitViper)
}
