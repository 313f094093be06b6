package main

import (
	"fmt"
	"os"
	"strings"

	"github.com/spf13/cobra"
)

var (
	restoreDryRun bool
	restoreFormat string
)

var restoreCmd = &cobra.Command{
	Use:   "restore <id>",
	Short: "Write back the files stored before a relocation",
	Long: `Overwrite the solution and project files with the snapshots taken before
the given request first changed them. Use it after a failed move (exit code 3)
or to undo a relocation.

Examples:
  solmove restore 3f2a9c1e --dry-run
  solmove restore 3f2a9c1e`,
	Args: cobra.ExactArgs(1),
	Run:  runRestore,
}

func init() {
	restoreCmd.Flags().BoolVar(&restoreDryRun, "dry-run", false, "List the files that would be written")
	restoreCmd.Flags().StringVar(&restoreFormat, "format", "human", "Output format (json, human, yaml)")
	rootCmd.AddCommand(restoreCmd)
}

// RestoreResponseCLI lists the restored files
type RestoreResponseCLI struct {
	RequestID string   `json:"requestId" yaml:"requestId"`
	DryRun    bool     `json:"dryRun" yaml:"dryRun"`
	Files     []string `json:"files" yaml:"files"`
}

func runRestore(cmd *cobra.Command, args []string) {
	j, root := mustOpenJournal()
	defer j.Close()
	ctx, stop := newContext()
	defer stop()

	resp := &RestoreResponseCLI{RequestID: args[0], DryRun: restoreDryRun}

	entry, err := j.Get(ctx, args[0])
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(exitFatal)
	}
	resp.RequestID = entry.ID

	if restoreDryRun {
		for _, f := range entry.Files {
			resp.Files = append(resp.Files, f.Path)
		}
	} else {
		resp.Files, err = j.Restore(ctx, entry.ID, root)
		if err != nil {
			fmt.Fprintf(os.Stderr, "Error restoring: %v\n", err)
			os.Exit(exitFatal)
		}
	}
	if resp.Files == nil {
		resp.Files = []string{}
	}

	printResponse(resp, restoreFormat)
}

func formatRestoreHuman(resp *RestoreResponseCLI) (string, error) {
	var b strings.Builder

	verb := "Restored"
	if resp.DryRun {
		verb = "Would restore"
	}
	b.WriteString(fmt.Sprintf("%s %d file(s) from request %s\n", verb, len(resp.Files), shortID(resp.RequestID)))
	for _, f := range resp.Files {
		b.WriteString(fmt.Sprintf("  %s\n", f))
	}
	return strings.TrimRight(b.String(), "\n"), nil
}
