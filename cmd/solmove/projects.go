package main

import (
	"context"
	"fmt"
	"os"
	"strings"

	"github.com/spf13/cobra"

	"solmove/internal/host"
	"solmove/internal/logging"
)

var projectsFormat string

var projectsCmd = &cobra.Command{
	Use:   "projects",
	Short: "List the projects of the solution",
	Long: `List every project with its location, folder and reference counts.

Examples:
  solmove projects
  solmove projects --format=json`,
	Args: cobra.NoArgs,
	Run:  runProjects,
}

func init() {
	projectsCmd.Flags().StringVar(&projectsFormat, "format", "human", "Output format (json, human, yaml)")
	rootCmd.AddCommand(projectsCmd)
}

// ProjectsResponseCLI lists the projects of a host
type ProjectsResponseCLI struct {
	Host     string       `json:"host" yaml:"host"`
	Projects []ProjectCLI `json:"projects" yaml:"projects"`
	Edges    int          `json:"edges" yaml:"edges"`
}

// ProjectCLI is one project row
type ProjectCLI struct {
	Name       string `json:"name" yaml:"name"`
	Location   string `json:"location" yaml:"location"`
	Container  string `json:"container,omitempty" yaml:"container,omitempty"`
	References int    `json:"references" yaml:"references"`
	Referrers  int    `json:"referrers" yaml:"referrers"`
}

func runProjects(cmd *cobra.Command, args []string) {
	ws := mustOpenWorkspace(false)
	ctx, stop := newContext()
	resp, err := listProjects(ctx, ws.host, ws.logger)
	stop()
	ws.Close()
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(exitFatal)
	}

	output, err := FormatResponse(resp, OutputFormat(projectsFormat))
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error formatting output: %v\n", err)
		os.Exit(exitFatal)
	}
	fmt.Println(output)
}

func listProjects(ctx context.Context, h host.ProjectHost, logger *logging.Logger) (*ProjectsResponseCLI, error) {
	g, err := loadGraph(ctx, h, logger, "projects")
	if err != nil {
		return nil, err
	}
	resp := &ProjectsResponseCLI{
		Host:     host.Describe(h),
		Projects: make([]ProjectCLI, 0, g.Len()),
		Edges:    g.EdgeCount(),
	}
	for _, p := range g.Projects() {
		resp.Projects = append(resp.Projects, ProjectCLI{
			Name:       p.Identity.String(),
			Location:   p.Location,
			Container:  p.Container,
			References: len(p.References),
			Referrers:  len(g.FindReferrers(p.Identity)),
		})
	}
	return resp, nil
}

func formatProjectsHuman(resp *ProjectsResponseCLI) (string, error) {
	var b strings.Builder

	b.WriteString(fmt.Sprintf("Projects in %s\n", resp.Host))
	b.WriteString(strings.Repeat("=", 60) + "\n\n")

	for _, p := range resp.Projects {
		folder := p.Container
		if folder == "" {
			folder = "-"
		}
		b.WriteString(fmt.Sprintf("  %-30s %-12s refs %d, referenced by %d\n", p.Name, folder, p.References, p.Referrers))
		b.WriteString(fmt.Sprintf("    %s\n", p.Location))
	}
	b.WriteString(fmt.Sprintf("\n%d projects, %d references\n", len(resp.Projects), resp.Edges))

	return strings.TrimRight(b.String(), "\n"), nil
}
