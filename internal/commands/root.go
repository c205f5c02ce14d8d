package commands

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/coopledger/coopledger/internal/buildinfo"
)

// NewRootCommand creates the root CLI command with all subcommands registered.
func NewRootCommand() *cobra.Command {
	rootCmd := &cobra.Command{
		Use:     "coopledger",
		Short:   "Patronage accounting for cooperatives",
		Version: fmt.Sprintf("%s (commit: %s, built: %s)", buildinfo.Version, buildinfo.Commit, buildinfo.Date),
		CompletionOptions: cobra.CompletionOptions{
			DisableDefaultCmd: true,
		},
		SilenceUsage: true,
	}

	rootCmd.AddCommand(newInitCommand())
	rootCmd.AddCommand(newMemberCommand())
	rootCmd.AddCommand(newPatronageCommand())
	rootCmd.AddCommand(newPostCommand())
	rootCmd.AddCommand(newIngestCommand())
	rootCmd.AddCommand(newPeriodCommand())
	rootCmd.AddCommand(newAllocationCommand())
	rootCmd.AddCommand(newReportCommand())
	rootCmd.AddCommand(newFaultCommand())
	rootCmd.AddCommand(newStatusCommand())

	return rootCmd
}
