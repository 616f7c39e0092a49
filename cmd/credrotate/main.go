package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/systmms/credrotate/cmd/credrotate/commands"
	"github.com/systmms/credrotate/internal/logging"
)

var (
	version = "dev"
	commit  = "none"
	date    = "unknown"
)

func main() {
	if err := run(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

func run() error {
	var (
		policyFile string
		noColor    bool
		debug      bool
	)

	rc := &commands.Context{}

	rootCmd := &cobra.Command{
		Use:   "credrotate",
		Short: "Credential rotation engine - rotate secrets without downtime",
		Long: `credrotate drives transactional credential rotation: a new credential
version is minted, validated against the real service, and atomically
promoted while the old version stays usable for a grace period.`,
		Version: fmt.Sprintf("%s (commit: %s, built: %s)", version, commit, date),
		PersistentPreRun: func(cmd *cobra.Command, args []string) {
			rc.Logger = logging.New(debug, noColor)
			rc.PolicyFile = policyFile
		},
	}

	rootCmd.PersistentFlags().StringVar(&policyFile, "policies", "policies.yaml", "Rotation policy file path")
	rootCmd.PersistentFlags().BoolVar(&noColor, "no-color", false, "Disable colored output")
	rootCmd.PersistentFlags().BoolVar(&debug, "debug", false, "Enable debug logging")

	rootCmd.AddCommand(
		commands.NewRotateCommand(rc),
		commands.NewPoliciesCommand(rc),
		commands.NewScheduleCommand(rc),
	)

	return rootCmd.Execute()
}
