package main

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/spf13/cobra"

	"solmove/internal/errors"
	"solmove/internal/plan"
)

var applyFormat string

var applyCmd = &cobra.Command{
	Use:   "apply [plan]",
	Short: "Run every relocation listed in a plan file",
	Long: `Run the relocations of a TOML plan in order, each as its own request.

The plan defaults to PLAN.toml in the workspace root:

  version = 1
  continue_on_error = false

  [[relocation]]
  project = "Core"
  folder = "Libs"

A relocation without a folder uses defaultFolder from the config. The batch
stops at the first failure unless continue_on_error is set; a failed move
always stops it. The exit code is the worst of the individual relocations.`,
	Args: cobra.MaximumNArgs(1),
	Run:  runApply,
}

func init() {
	applyCmd.Flags().StringVar(&applyFormat, "format", "human", "Output format (json, human, yaml)")
	rootCmd.AddCommand(applyCmd)
}

// ApplyResponseCLI is the output of apply
type ApplyResponseCLI struct {
	Plan  string       `json:"plan" yaml:"plan"`
	Steps []*plan.Step `json:"steps" yaml:"steps"`
}

func runApply(cmd *cobra.Command, args []string) {
	ws := mustOpenWorkspace(true)

	planPath := plan.DefaultFileName
	if len(args) == 1 {
		planPath = args[0]
	}
	if _, err := os.Stat(planPath); err != nil && !filepath.IsAbs(planPath) {
		planPath = filepath.Join(ws.root, planPath)
	}

	p, err := plan.Parse(planPath)
	if err != nil {
		ws.Close()
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(exitFatal)
	}

	ctx, stop := newContext()
	steps := plan.Run(ctx, ws.engine(), p, ws.cfg.DefaultFolder, ws.logger)
	stop()
	ws.Close()

	resp := &ApplyResponseCLI{Plan: planPath, Steps: steps}
	output, err := FormatResponse(resp, OutputFormat(applyFormat))
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error formatting output: %v\n", err)
		os.Exit(exitFatal)
	}
	fmt.Println(output)
	os.Exit(applyExitCode(steps))
}

// applyExitCode is the worst exit code among the steps. Skipped steps
// count as fatal.
func applyExitCode(steps []*plan.Step) int {
	worst := exitOK
	for _, s := range steps {
		code := exitFatal
		if !s.Skipped {
			code = exitCodeFor(s.Result, s.Err)
		}
		if rank(code) > rank(worst) {
			worst = code
		}
	}
	return worst
}

// rank orders exit codes by severity: a manual check outranks everything.
func rank(code int) int {
	switch code {
	case exitManualCheck:
		return 3
	case exitFatal:
		return 2
	case exitPartial:
		return 1
	default:
		return 0
	}
}

func formatApplyHuman(resp *ApplyResponseCLI) (string, error) {
	var b strings.Builder

	b.WriteString(fmt.Sprintf("Plan: %s\n", resp.Plan))
	b.WriteString(strings.Repeat("=", 60) + "\n\n")

	done := 0
	for i, s := range resp.Steps {
		var icon, detail string
		switch {
		case s.Skipped:
			icon, detail = "-", "skipped"
		case s.Err != nil && errors.IsPostMove(s.Err):
			icon, detail = "✗", "move failed, check by hand: "+s.Error
		case s.Err != nil:
			icon, detail = "✗", s.Error
		case !s.Result.OK():
			icon, detail = "⚠", fmt.Sprintf("moved, %d reference(s) not restored", len(s.Result.Failures))
		default:
			icon, detail = "✓", fmt.Sprintf("moved, %d reference(s) restored", len(s.Result.Rebound))
			done++
		}
		b.WriteString(fmt.Sprintf("%s %d. %s -> %s: %s\n", icon, i+1, s.Project, s.Folder, detail))
	}
	b.WriteString(fmt.Sprintf("\n%d of %d relocations completed\n", done, len(resp.Steps)))

	return strings.TrimRight(b.String(), "\n"), nil
}
