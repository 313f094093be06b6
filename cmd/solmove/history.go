package main

import (
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"solmove/internal/journal"
	"solmove/internal/paths"
)

var (
	historyLimit  int
	historyFormat string
)

var historyCmd = &cobra.Command{
	Use:   "history",
	Short: "List recorded relocation requests",
	Long: `List the relocation requests recorded in .solmove/journal.db, newest first.

Examples:
  solmove history
  solmove history --limit=5
  solmove history show 3f2a9c1e`,
	Args: cobra.NoArgs,
	Run:  runHistory,
}

var historyShowCmd = &cobra.Command{
	Use:   "show <id>",
	Short: "Show one recorded request",
	Long:  "Show a recorded request with its state transitions and stored snapshots. A unique id prefix is enough.",
	Args:  cobra.ExactArgs(1),
	Run:   runHistoryShow,
}

func init() {
	historyCmd.Flags().IntVar(&historyLimit, "limit", 20, "Maximum number of requests (0 for all)")
	historyCmd.PersistentFlags().StringVar(&historyFormat, "format", "human", "Output format (json, human, yaml)")
	historyCmd.AddCommand(historyShowCmd)
	rootCmd.AddCommand(historyCmd)
}

// HistoryResponseCLI lists journal entries
type HistoryResponseCLI struct {
	Journal string           `json:"journal" yaml:"journal"`
	Entries []*journal.Entry `json:"entries" yaml:"entries"`
}

// HistoryEntryResponseCLI is one journal entry in full
type HistoryEntryResponseCLI struct {
	Entry *journal.Entry `json:"entry" yaml:"entry"`
}

// mustOpenJournal opens the journal of the current workspace and returns it
// with the workspace root. The host is not opened, so history works even when
// the solution is broken.
func mustOpenJournal() (*journal.Journal, string) {
	cwd, err := os.Getwd()
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(exitFatal)
	}
	root, err := paths.FindWorkspaceRoot(cwd)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(exitFatal)
	}
	cfg, err := loadConfig(root)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error loading config: %v\n", err)
		os.Exit(exitFatal)
	}
	j, err := journal.Open(root, newLogger(cfg))
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error opening journal: %v\n", err)
		os.Exit(exitFatal)
	}
	return j, root
}

func runHistory(cmd *cobra.Command, args []string) {
	j, _ := mustOpenJournal()
	ctx, stop := newContext()
	entries, err := j.List(ctx, historyLimit)
	stop()
	_ = j.Close()
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error reading journal: %v\n", err)
		os.Exit(exitFatal)
	}
	if entries == nil {
		entries = []*journal.Entry{}
	}

	printResponse(&HistoryResponseCLI{Journal: j.Path(), Entries: entries}, historyFormat)
}

func runHistoryShow(cmd *cobra.Command, args []string) {
	j, _ := mustOpenJournal()
	ctx, stop := newContext()
	entry, err := j.Get(ctx, args[0])
	stop()
	_ = j.Close()
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(exitFatal)
	}

	printResponse(&HistoryEntryResponseCLI{Entry: entry}, historyFormat)
}

// printResponse formats resp and writes it to stdout, exiting on error.
func printResponse(resp interface{}, format string) {
	output, err := FormatResponse(resp, OutputFormat(format))
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error formatting output: %v\n", err)
		os.Exit(exitFatal)
	}
	fmt.Println(output)
}

func statusIcon(s journal.Status) string {
	switch s {
	case journal.StatusOK:
		return "✓"
	case journal.StatusPartial:
		return "⚠"
	case journal.StatusRunning:
		return "…"
	default:
		return "✗"
	}
}

func formatHistoryHuman(resp *HistoryResponseCLI) (string, error) {
	var b strings.Builder

	b.WriteString(fmt.Sprintf("Relocation history (%s)\n", resp.Journal))
	b.WriteString(strings.Repeat("=", 60) + "\n\n")

	if len(resp.Entries) == 0 {
		b.WriteString("No requests recorded\n")
	}
	for _, e := range resp.Entries {
		b.WriteString(fmt.Sprintf("%s %s  %s  %s -> %s  [%s]\n",
			statusIcon(e.Status),
			shortID(e.ID),
			e.StartedAt.Local().Format(time.DateTime),
			e.Target,
			e.Container,
			e.Status))
		if e.ErrorCode != "" {
			b.WriteString(fmt.Sprintf("    %s\n", e.ErrorCode))
		}
	}

	return strings.TrimRight(b.String(), "\n"), nil
}

func formatHistoryEntryHuman(resp *HistoryEntryResponseCLI) (string, error) {
	var b strings.Builder
	e := resp.Entry

	b.WriteString(fmt.Sprintf("%s Request %s\n", statusIcon(e.Status), e.ID))
	b.WriteString(strings.Repeat("=", 60) + "\n\n")
	b.WriteString(fmt.Sprintf("Relocate: %s -> %s\n", e.Target, e.Container))
	if e.Host != "" {
		b.WriteString(fmt.Sprintf("Host: %s\n", e.Host))
	}
	b.WriteString(fmt.Sprintf("Status: %s (state %s)\n", e.Status, e.State))
	b.WriteString(fmt.Sprintf("Started: %s\n", e.StartedAt.Local().Format(time.DateTime)))
	if e.FinishedAt != nil {
		b.WriteString(fmt.Sprintf("Finished: %s (%s)\n", e.FinishedAt.Local().Format(time.DateTime), e.FinishedAt.Sub(e.StartedAt).Round(time.Millisecond)))
	}
	if e.Error != "" {
		b.WriteString(fmt.Sprintf("Error: %s\n", e.Error))
	}

	if len(e.Steps) > 0 {
		b.WriteString("\nSteps:\n")
		for _, s := range e.Steps {
			b.WriteString(fmt.Sprintf("  %s  %s -> %s\n", s.At.Local().Format("15:04:05.000"), s.From, s.To))
		}
	}

	if r := e.Result; r != nil {
		if len(r.Rebound) > 0 {
			b.WriteString("\nRestored:\n")
			for _, holder := range r.Rebound {
				b.WriteString(fmt.Sprintf("  ✓ %s\n", holder))
			}
		}
		if len(r.Failures) > 0 {
			b.WriteString("\nNot restored:\n")
			for _, f := range r.Failures {
				msg := ""
				if f.Err != nil {
					msg = f.Err.Error()
				}
				b.WriteString(fmt.Sprintf("  ✗ %s: %s\n", f.Holder, msg))
			}
		}
	}

	if len(e.Files) > 0 {
		b.WriteString("\nSnapshots:\n")
		for _, f := range e.Files {
			b.WriteString(fmt.Sprintf("  %s (%s, %s stored)\n", f.Path, formatBytes(int64(f.Size)), formatBytes(int64(f.CompressedSize))))
		}
		b.WriteString(fmt.Sprintf("\nRestore with: solmove restore %s\n", shortID(e.ID)))
	}

	return strings.TrimRight(b.String(), "\n"), nil
}
