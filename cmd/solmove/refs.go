package main

import (
	"context"
	"fmt"
	"os"
	"strings"

	"github.com/spf13/cobra"

	"solmove/internal/errors"
	"solmove/internal/graph"
	"solmove/internal/host"
	"solmove/internal/identity"
	"solmove/internal/logging"
	"solmove/internal/rebind"
)

var refsFormat string

var refsCmd = &cobra.Command{
	Use:   "refs <project>",
	Short: "List the projects that reference a project",
	Long: `List every project holding a reference to the given project, with the
reference as the holder records it. These are the references relocate
captures and restores.

Examples:
  solmove refs Core
  solmove refs Core --format=json`,
	Args: cobra.ExactArgs(1),
	Run:  runRefs,
}

func init() {
	refsCmd.Flags().StringVar(&refsFormat, "format", "human", "Output format (json, human, yaml)")
	rootCmd.AddCommand(refsCmd)
}

// RefsResponseCLI lists the inbound and outbound references of a project
type RefsResponseCLI struct {
	Project   string            `json:"project" yaml:"project"`
	Location  string            `json:"location" yaml:"location"`
	Container string            `json:"container,omitempty" yaml:"container,omitempty"`
	Referrers []rebind.Edge     `json:"referrers" yaml:"referrers"`
	Holds     []host.Descriptor `json:"holds" yaml:"holds"`
}

func runRefs(cmd *cobra.Command, args []string) {
	ws := mustOpenWorkspace(false)
	ctx, stop := newContext()
	resp, err := findRefs(ctx, ws.host, ws.logger, args[0])
	stop()
	ws.Close()
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(exitFatal)
	}

	output, err := FormatResponse(resp, OutputFormat(refsFormat))
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error formatting output: %v\n", err)
		os.Exit(exitFatal)
	}
	fmt.Println(output)
}

// loadGraph enumerates h into a graph whose handles die with the call.
func loadGraph(ctx context.Context, h host.ProjectHost, logger *logging.Logger, purpose string) (*graph.Graph, error) {
	scope := identity.NewScope(purpose)
	defer scope.Close()
	return graph.Load(ctx, h, scope, logger)
}

func findRefs(ctx context.Context, h host.ProjectHost, logger *logging.Logger, name string) (*RefsResponseCLI, error) {
	target := identity.Identity(strings.TrimSpace(name))
	if target.IsZero() {
		return nil, errors.Newf(errors.InvalidArgument, "project name must not be empty")
	}
	g, err := loadGraph(ctx, h, logger, "refs "+target.String())
	if err != nil {
		return nil, err
	}
	proj, ok := g.Project(target)
	if !ok {
		return nil, errors.Newf(errors.ProjectNotFound, "project %q not found in %s", target, host.Describe(h))
	}

	resp := &RefsResponseCLI{
		Project:   target.String(),
		Location:  proj.Location,
		Container: proj.Container,
		Referrers: rebind.Capture(g.FindReferrers(target), target),
		Holds:     proj.References,
	}
	if resp.Referrers == nil {
		resp.Referrers = []rebind.Edge{}
	}
	if resp.Holds == nil {
		resp.Holds = []host.Descriptor{}
	}
	return resp, nil
}

func formatRefsHuman(resp *RefsResponseCLI) (string, error) {
	var b strings.Builder

	b.WriteString(fmt.Sprintf("References to: %s\n", resp.Project))
	b.WriteString(strings.Repeat("=", 60) + "\n\n")
	b.WriteString(fmt.Sprintf("Location: %s\n", resp.Location))
	if resp.Container != "" {
		b.WriteString(fmt.Sprintf("Folder: %s\n", resp.Container))
	}

	b.WriteString(fmt.Sprintf("\nReferenced by %d project(s):\n", len(resp.Referrers)))
	for _, e := range resp.Referrers {
		b.WriteString(fmt.Sprintf("  %s -> %s (%s)\n", e.Holder, e.Descriptor.String(), e.Descriptor.Kind))
	}

	if len(resp.Holds) > 0 {
		b.WriteString(fmt.Sprintf("\nReferences %d:\n", len(resp.Holds)))
		for _, d := range resp.Holds {
			b.WriteString(fmt.Sprintf("  %s (%s)\n", d.String(), d.Kind))
		}
	}

	return strings.TrimRight(b.String(), "\n"), nil
}
