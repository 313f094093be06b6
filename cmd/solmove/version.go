package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"solmove/internal/version"
)

var versionFormat string

var versionCmd = &cobra.Command{
	Use:   "version",
	Short: "Print version information",
	Args:  cobra.NoArgs,
	Run: func(cmd *cobra.Command, args []string) {
		if versionFormat == "json" {
			out, _ := formatJSON(version.Get())
			fmt.Println(out)
			return
		}
		fmt.Println(version.Full())
	},
}

func init() {
	versionCmd.Flags().StringVar(&versionFormat, "format", "human", "Output format (json, human)")
	rootCmd.AddCommand(versionCmd)
}
