package main

import (
	"encoding/json"
	"fmt"
	"os"
	"strings"

	"github.com/spf13/cobra"

	"solmove/internal/config"
	"solmove/internal/paths"
)

var (
	configFormat    string
	configShowDiff  bool
	configInitForce bool
)

var configCmd = &cobra.Command{
	Use:   "config",
	Short: "Manage solmove configuration",
	Long:  "View and manage solmove configuration stored in .solmove/config.json",
}

var configShowCmd = &cobra.Command{
	Use:   "show",
	Short: "Show current configuration",
	Long: `Display the current solmove configuration.

Examples:
  solmove config show                # Pretty-print current config
  solmove config show --format=json  # Raw JSON output
  solmove config show --diff         # Only show non-default values`,
	Run: runConfigShow,
}

var configEnvCmd = &cobra.Command{
	Use:   "env",
	Short: "List supported environment variables",
	Long:  "Display all supported SOLMOVE_* environment variable overrides",
	Run:   runConfigEnv,
}

var configInitCmd = &cobra.Command{
	Use:   "init",
	Short: "Write a default config file",
	Long: `Write .solmove/config.json with default values. When --solution or --host
is given they are written too.`,
	Run: runConfigInit,
}

func init() {
	configShowCmd.Flags().StringVar(&configFormat, "format", "human", "Output format (json, human)")
	configShowCmd.Flags().BoolVar(&configShowDiff, "diff", false, "Only show non-default values")
	configInitCmd.Flags().BoolVar(&configInitForce, "force", false, "Overwrite an existing config file")

	configCmd.AddCommand(configShowCmd)
	configCmd.AddCommand(configEnvCmd)
	configCmd.AddCommand(configInitCmd)
	rootCmd.AddCommand(configCmd)
}

// ConfigShowResponse is the response format for config show
type ConfigShowResponse struct {
	ConfigPath   string                 `json:"configPath,omitempty"`
	UsedDefaults bool                   `json:"usedDefaults"`
	EnvOverrides []config.EnvOverride   `json:"envOverrides,omitempty"`
	Config       map[string]interface{} `json:"config"`
}

func mustGetWorkspaceRoot() string {
	cwd, err := os.Getwd()
	if err == nil {
		var root string
		root, err = paths.FindWorkspaceRoot(cwd)
		if err == nil {
			return root
		}
	}
	fmt.Fprintf(os.Stderr, "Error: %v\n", err)
	os.Exit(exitFatal)
	return ""
}

func runConfigShow(cmd *cobra.Command, args []string) {
	root := mustGetWorkspaceRoot()

	result, err := config.LoadConfigWithDetails(root)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error loading config: %v\n", err)
		os.Exit(exitFatal)
	}

	if configFormat == "json" {
		out, err := configShowJSON(result, configShowDiff)
		if err != nil {
			fmt.Fprintf(os.Stderr, "Error formatting output: %v\n", err)
			os.Exit(exitFatal)
		}
		fmt.Println(out)
	} else {
		fmt.Print(configShowHuman(result, configShowDiff))
	}
}

func configShowJSON(result *config.LoadResult, diffOnly bool) (string, error) {
	configBytes, err := json.Marshal(result.Config)
	if err != nil {
		return "", err
	}
	var configMap map[string]interface{}
	if err := json.Unmarshal(configBytes, &configMap); err != nil {
		return "", err
	}

	if diffOnly {
		defaultBytes, _ := json.Marshal(config.DefaultConfig())
		var defaultMap map[string]interface{}
		_ = json.Unmarshal(defaultBytes, &defaultMap)
		configMap = computeDiff(configMap, defaultMap)
	}

	return formatJSON(ConfigShowResponse{
		ConfigPath:   result.ConfigPath,
		UsedDefaults: result.UsedDefaults,
		EnvOverrides: result.EnvOverrides,
		Config:       configMap,
	})
}

func configShowHuman(result *config.LoadResult, diffOnly bool) string {
	var b strings.Builder

	b.WriteString("solmove Configuration\n")
	b.WriteString(strings.Repeat("─", 50) + "\n")

	if result.UsedDefaults {
		b.WriteString("Source: defaults (no config file found)\n")
	} else if result.ConfigPath != "" {
		b.WriteString(fmt.Sprintf("Source: %s\n", result.ConfigPath))
	}

	if len(result.EnvOverrides) > 0 {
		b.WriteString("\nEnvironment Overrides:\n")
		for _, ov := range result.EnvOverrides {
			b.WriteString(fmt.Sprintf("  %s=%s → %s\n", ov.EnvVar, ov.FromValue, ov.Path))
		}
	}
	b.WriteString("\n")

	cfg := result.Config
	defaults := config.DefaultConfig()

	if diffOnly {
		b.WriteString("Modified Settings (differs from defaults):\n")
		diff := cfg.Diff()
		if len(diff) == 0 {
			b.WriteString("  (no modifications - using all defaults)\n")
		}
		for _, key := range diff {
			b.WriteString(fmt.Sprintf("  %s\n", key))
		}
		return b.String()
	}

	writeConfigValue(&b, "version", cfg.Version, defaults.Version)
	writeConfigValue(&b, "host", cfg.Host, defaults.Host)
	writeConfigValue(&b, "solution", valueOrDefault(cfg.Solution, "(auto)"), "(auto)")
	writeConfigValue(&b, "defaultFolder", cfg.DefaultFolder, defaults.DefaultFolder)

	b.WriteString("\njournal:\n")
	writeConfigValue(&b, "  enabled", cfg.Journal.Enabled, defaults.Journal.Enabled)
	writeConfigValue(&b, "  snapshots", cfg.Journal.Snapshots, defaults.Journal.Snapshots)

	b.WriteString("\nlogging:\n")
	writeConfigValue(&b, "  level", cfg.Logging.Level, defaults.Logging.Level)
	writeConfigValue(&b, "  format", cfg.Logging.Format, defaults.Logging.Format)

	b.WriteString("\nUse 'solmove config env' to see supported environment variables\n")
	return b.String()
}

func writeConfigValue(b *strings.Builder, name string, value, defaultValue interface{}) {
	modified := ""
	if !isEqual(value, defaultValue) {
		modified = fmt.Sprintf(" (default: %v)", defaultValue)
	}
	b.WriteString(fmt.Sprintf("%s: %v%s\n", name, value, modified))
}

func runConfigEnv(cmd *cobra.Command, args []string) {
	fmt.Println("Supported solmove Environment Variables")
	fmt.Println(strings.Repeat("─", 50))
	fmt.Println()

	descs := config.DescribeEnvVars()
	for _, name := range config.GetSupportedEnvVars() {
		fmt.Printf("  %-22s %s\n", name, descs[name])
	}

	fmt.Println()
	fmt.Println("Example usage:")
	fmt.Println("  SOLMOVE_LOG_LEVEL=debug solmove relocate Core")
	fmt.Println("  SOLMOVE_HOST=manifest SOLMOVE_SOLUTION=workspace.toml solmove projects")
}

func runConfigInit(cmd *cobra.Command, args []string) {
	root := mustGetWorkspaceRoot()
	path := paths.GetConfigPath(root)

	if _, err := os.Stat(path); err == nil && !configInitForce {
		fmt.Fprintf(os.Stderr, "Error: %s already exists (use --force to overwrite)\n", path)
		os.Exit(exitFatal)
	}

	cfg := config.DefaultConfig()
	if solutionFlag != "" {
		cfg.Solution = solutionFlag
	}
	if hostFlag != "" {
		cfg.Host = hostFlag
	}
	if err := cfg.Validate(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(exitFatal)
	}
	if err := cfg.Save(root); err != nil {
		fmt.Fprintf(os.Stderr, "Error writing config: %v\n", err)
		os.Exit(exitFatal)
	}
	fmt.Printf("Wrote %s\n", path)
}

func valueOrDefault(value, defaultValue string) string {
	if value == "" {
		return defaultValue
	}
	return value
}

func isEqual(a, b interface{}) bool {
	return fmt.Sprintf("%v", a) == fmt.Sprintf("%v", b)
}

func computeDiff(current, defaults map[string]interface{}) map[string]interface{} {
	diff := make(map[string]interface{})
	for key, currentVal := range current {
		defaultVal, exists := defaults[key]
		if !exists {
			diff[key] = currentVal
			continue
		}

		currentMap, currentIsMap := currentVal.(map[string]interface{})
		defaultMap, defaultIsMap := defaultVal.(map[string]interface{})
		if currentIsMap && defaultIsMap {
			if nested := computeDiff(currentMap, defaultMap); len(nested) > 0 {
				diff[key] = nested
			}
		} else if !isEqual(currentVal, defaultVal) {
			diff[key] = currentVal
		}
	}
	return diff
}
