package main

import (
	"github.com/spf13/cobra"

	"solmove/internal/version"
)

var (
	// solutionFlag overrides the configured solution or manifest path
	solutionFlag string
	// hostFlag overrides the configured host kind
	hostFlag  string
	verbosity int
	quietFlag bool
)

var rootCmd = &cobra.Command{
	Use:   "solmove",
	Short: "solmove - move projects into solution folders without losing references",
	Long: `solmove moves a project into a grouping folder of its solution and re-adds
the references other projects held on it, the way a remove-and-re-add in the
IDE would have dropped them.

The solution is found from .solmove/config.json, the --solution flag, or the
single .sln file in the workspace root.`,
	Version:       version.Info(),
	SilenceUsage:  true,
	SilenceErrors: true,
}

func init() {
	rootCmd.SetVersionTemplate("solmove version {{.Version}}\n")
	rootCmd.PersistentFlags().StringVar(&solutionFlag, "solution", "", "Solution (.sln) or workspace manifest path")
	rootCmd.PersistentFlags().StringVar(&hostFlag, "host", "", "Project host: sln or manifest (default from config)")
	rootCmd.PersistentFlags().CountVarP(&verbosity, "verbose", "v", "Increase log verbosity (-v info, -vv debug)")
	rootCmd.PersistentFlags().BoolVarP(&quietFlag, "quiet", "q", false, "Suppress all log output")
}
