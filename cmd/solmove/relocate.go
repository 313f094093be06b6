package main

import (
	"context"
	stderrors "errors"
	"fmt"
	"os"
	"strings"

	"github.com/spf13/cobra"

	"solmove/internal/errors"
	"solmove/internal/identity"
	"solmove/internal/relocate"
)

var (
	relocateDryRun bool
	relocateFormat string
)

var relocateCmd = &cobra.Command{
	Use:   "relocate <project> [folder]",
	Short: "Move a project into a solution folder and restore references to it",
	Long: `Move a project into a top-level solution folder, creating the folder when
it does not exist, then re-add every reference other projects held on it.

The folder defaults to defaultFolder from the config ("Libs").

Exit codes:
  0  moved and every reference restored
  1  the project was not moved (not found, folder could not be created, ...);
     a folder created before the failure is kept and named in the error
  2  moved, but some references could not be restored
  3  the move failed; check the solution by hand

Examples:
  solmove relocate Core
  solmove relocate Core Shared
  solmove relocate Core --dry-run
  solmove relocate Core --format=json`,
	Args: cobra.RangeArgs(1, 2),
	Run:  runRelocate,
}

func init() {
	relocateCmd.Flags().BoolVar(&relocateDryRun, "dry-run", false, "Show what would happen without changing anything")
	relocateCmd.Flags().StringVar(&relocateFormat, "format", "human", "Output format (json, human, yaml)")
	rootCmd.AddCommand(relocateCmd)
}

// RelocateResponseCLI is the output of relocate. Exactly one of Result and
// Preview is set on success; Result may accompany Error after a failed move.
type RelocateResponseCLI struct {
	DryRun  bool                    `json:"dryRun" yaml:"dryRun"`
	Result  *relocate.Result        `json:"result,omitempty" yaml:"result,omitempty"`
	Preview *relocate.Preview       `json:"preview,omitempty" yaml:"preview,omitempty"`
	Error   *errors.RelocationError `json:"error,omitempty" yaml:"error,omitempty"`
}

func runRelocate(cmd *cobra.Command, args []string) {
	ws := mustOpenWorkspace(!relocateDryRun)

	folder := ws.cfg.DefaultFolder
	if len(args) == 2 {
		folder = args[1]
	}

	ctx, stop := newContext()
	resp, code := relocateProject(ctx, ws.engine(), args[0], folder, relocateDryRun)
	stop()
	ws.Close()

	output, err := FormatResponse(resp, OutputFormat(relocateFormat))
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error formatting output: %v\n", err)
		os.Exit(exitFatal)
	}
	fmt.Println(output)
	os.Exit(code)
}

// relocateProject runs or previews one relocation and picks the exit code.
func relocateProject(ctx context.Context, eng *relocate.Engine, target, folder string, dryRun bool) (*RelocateResponseCLI, int) {
	id := identity.Identity(strings.TrimSpace(target))
	folder = strings.TrimSpace(folder)
	resp := &RelocateResponseCLI{DryRun: dryRun}

	if dryRun {
		preview, err := eng.Preview(ctx, id, folder)
		if err != nil {
			resp.Error = asRelocationError(err)
			return resp, exitFatal
		}
		resp.Preview = preview
		return resp, exitOK
	}

	res, err := eng.Relocate(ctx, id, folder)
	resp.Result = res
	if err != nil {
		resp.Error = asRelocationError(err)
	}
	return resp, exitCodeFor(res, err)
}

// exitCodeFor maps a relocation outcome to the process exit code.
func exitCodeFor(res *relocate.Result, err error) int {
	switch {
	case errors.IsPostMove(err):
		return exitManualCheck
	case err != nil:
		return exitFatal
	case res != nil && !res.OK():
		return exitPartial
	default:
		return exitOK
	}
}

// asRelocationError returns err's RelocationError, or wraps a plain error
// (such as a cancellation) as an internal one.
func asRelocationError(err error) *errors.RelocationError {
	var re *errors.RelocationError
	if stderrors.As(err, &re) {
		return re
	}
	return errors.Newf(errors.InternalError, "%v", err)
}

func formatRelocateHuman(resp *RelocateResponseCLI) (string, error) {
	var b strings.Builder

	if p := resp.Preview; p != nil {
		b.WriteString(fmt.Sprintf("Dry run: relocate %s into %s\n", p.Target, p.Container))
		b.WriteString(strings.Repeat("=", 60) + "\n\n")
		b.WriteString(fmt.Sprintf("Location: %s\n", p.Location))
		if p.CurrentContainer != "" {
			b.WriteString(fmt.Sprintf("Current folder: %s\n", p.CurrentContainer))
		} else {
			b.WriteString("Current folder: (top level)\n")
		}
		if p.ContainerExists {
			b.WriteString(fmt.Sprintf("Folder %s exists\n", p.Container))
		} else {
			b.WriteString(fmt.Sprintf("Folder %s would be created\n", p.Container))
		}
		if p.AlreadyContained {
			b.WriteString("Project already sits in this folder; it would be moved again\n")
		}
		b.WriteString(fmt.Sprintf("\nReferences to restore: %d\n", len(p.Captured)))
		for _, e := range p.Captured {
			b.WriteString(fmt.Sprintf("  %s -> %s (%s)\n", e.Holder, e.Descriptor.String(), e.Descriptor.Kind))
		}
	}

	if r := resp.Result; r != nil {
		icon := "✓"
		switch {
		case r.State == relocate.Aborted:
			icon = "✗"
		case !r.OK():
			icon = "⚠"
		}
		b.WriteString(fmt.Sprintf("%s Relocate %s into %s: %s\n", icon, r.Target, r.Container, r.State))
		b.WriteString(strings.Repeat("=", 60) + "\n\n")
		if r.RequestID != "" {
			b.WriteString(fmt.Sprintf("Request: %s\n", r.RequestID))
		}
		if r.ContainerCreated {
			b.WriteString(fmt.Sprintf("Created folder %s\n", r.Container))
		}
		b.WriteString(fmt.Sprintf("Captured references: %d\n", len(r.Captured)))
		if len(r.Rebound) > 0 {
			b.WriteString("Restored:\n")
			for _, holder := range r.Rebound {
				b.WriteString(fmt.Sprintf("  ✓ %s\n", holder))
			}
		}
		if len(r.Failures) > 0 {
			b.WriteString("Not restored:\n")
			for _, f := range r.Failures {
				b.WriteString(fmt.Sprintf("  ✗ %s: %s\n", f.Holder, f.Err.Error()))
			}
		}
	}

	if e := resp.Error; e != nil {
		if b.Len() > 0 {
			b.WriteString("\n")
		}
		b.WriteString(fmt.Sprintf("Error: %s\n", e.Error()))
		if len(e.SuggestedFixes) > 0 {
			b.WriteString("Suggested fixes:\n")
			for _, fix := range e.SuggestedFixes {
				b.WriteString(fmt.Sprintf("  - %s\n", fix.Description))
				if fix.Command != "" {
					b.WriteString(fmt.Sprintf("    $ %s\n", fix.Command))
				}
			}
		}
	}

	return strings.TrimRight(b.String(), "\n"), nil
}
