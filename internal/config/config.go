package config

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"sort"
	"strconv"
	"strings"

	"github.com/spf13/viper"

	"solmove/internal/paths"
)

// CurrentVersion is the config schema version written by Save.
const CurrentVersion = 1

// Host kinds.
const (
	HostSolution = "sln"
	HostManifest = "manifest"
)

// Config represents the complete solmove configuration
type Config struct {
	Version int `json:"version" mapstructure:"version"`

	// Host selects the project host: "sln" or "manifest"
	Host string `json:"host" mapstructure:"host"`
	// Solution is the .sln or workspace manifest, relative to the workspace root
	Solution string `json:"solution" mapstructure:"solution"`
	// DefaultFolder is used when a relocation names no folder
	DefaultFolder string `json:"defaultFolder" mapstructure:"defaultFolder"`

	Journal JournalConfig `json:"journal" mapstructure:"journal"`
	Logging LoggingConfig `json:"logging" mapstructure:"logging"`
}

// JournalConfig controls the request history
type JournalConfig struct {
	Enabled bool `json:"enabled" mapstructure:"enabled"`
	// Snapshots stores host files before each move so they can be restored
	Snapshots bool `json:"snapshots" mapstructure:"snapshots"`
}

// LoggingConfig contains logging configuration
type LoggingConfig struct {
	Format string `json:"format" mapstructure:"format"`
	Level  string `json:"level" mapstructure:"level"`
}

// DefaultConfig returns the default configuration
func DefaultConfig() *Config {
	return &Config{
		Version:       CurrentVersion,
		Host:          HostSolution,
		DefaultFolder: "Libs",
		Journal: JournalConfig{
			Enabled:   true,
			Snapshots: true,
		},
		Logging: LoggingConfig{
			Format: "human",
			Level:  "warn",
		},
	}
}

// EnvOverride records one environment variable that replaced a config value
type EnvOverride struct {
	EnvVar    string `json:"envVar"`
	Path      string `json:"path"`
	FromValue string `json:"fromValue"`
}

// LoadResult is a loaded config plus where its values came from
type LoadResult struct {
	Config       *Config       `json:"config"`
	ConfigPath   string        `json:"configPath,omitempty"`
	UsedDefaults bool          `json:"usedDefaults"`
	EnvOverrides []EnvOverride `json:"envOverrides,omitempty"`
}

type envBinding struct {
	envVar string
	key    string
	desc   string
}

var envBindings = []envBinding{
	{"SOLMOVE_HOST", "host", "Project host (sln, manifest)"},
	{"SOLMOVE_SOLUTION", "solution", "Solution or workspace manifest path"},
	{"SOLMOVE_FOLDER", "defaultFolder", "Default grouping folder"},
	{"SOLMOVE_LOG_LEVEL", "logging.level", "Log level (debug, info, warn, error)"},
	{"SOLMOVE_LOG_FORMAT", "logging.format", "Log format (human, json)"},
	{"SOLMOVE_JOURNAL", "journal.enabled", "Record requests in .solmove/journal.db (bool)"},
}

// GetSupportedEnvVars returns the names of every supported override
func GetSupportedEnvVars() []string {
	vars := make([]string, 0, len(envBindings))
	for _, b := range envBindings {
		vars = append(vars, b.envVar)
	}
	return vars
}

// DescribeEnvVars maps each supported variable to a short description
func DescribeEnvVars() map[string]string {
	out := make(map[string]string, len(envBindings))
	for _, b := range envBindings {
		out[b.envVar] = b.desc
	}
	return out
}

// LoadConfig loads configuration from .solmove/config.json under root
func LoadConfig(root string) (*Config, error) {
	result, err := LoadConfigWithDetails(root)
	if err != nil {
		return nil, err
	}
	return result.Config, nil
}

// LoadConfigWithDetails loads configuration and reports the file used and
// every environment override applied on top of it.
func LoadConfigWithDetails(root string) (*LoadResult, error) {
	v := viper.New()
	setDefaults(v, DefaultConfig())

	v.SetConfigName("config")
	v.SetConfigType("json")
	v.AddConfigPath(paths.GetStateDir(root))

	result := &LoadResult{}
	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if !errors.As(err, &notFound) {
			return nil, fmt.Errorf("failed to read config: %w", err)
		}
		result.UsedDefaults = true
	} else {
		result.ConfigPath = v.ConfigFileUsed()
	}

	for _, b := range envBindings {
		value, ok := os.LookupEnv(b.envVar)
		if !ok || value == "" {
			continue
		}
		v.Set(b.key, value)
		result.EnvOverrides = append(result.EnvOverrides, EnvOverride{
			EnvVar:    b.envVar,
			Path:      b.key,
			FromValue: value,
		})
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("failed to decode config: %w", err)
	}
	result.Config = &cfg
	return result, nil
}

func setDefaults(v *viper.Viper, d *Config) {
	v.SetDefault("version", d.Version)
	v.SetDefault("host", d.Host)
	v.SetDefault("solution", d.Solution)
	v.SetDefault("defaultFolder", d.DefaultFolder)
	v.SetDefault("journal.enabled", d.Journal.Enabled)
	v.SetDefault("journal.snapshots", d.Journal.Snapshots)
	v.SetDefault("logging.format", d.Logging.Format)
	v.SetDefault("logging.level", d.Logging.Level)
}

// Save writes the configuration to .solmove/config.json under root
func (c *Config) Save(root string) error {
	if _, err := paths.EnsureStateDir(root); err != nil {
		return err
	}

	data, err := json.MarshalIndent(c, "", "  ")
	if err != nil {
		return err
	}
	return paths.WriteFileAtomic(paths.GetConfigPath(root), append(data, '\n'), 0644)
}

// Validate checks if the configuration is valid
func (c *Config) Validate() error {
	if c.Version != CurrentVersion {
		return &ConfigError{Field: "version", Message: "unsupported config version " + strconv.Itoa(c.Version)}
	}
	switch c.Host {
	case HostSolution, HostManifest:
	default:
		return &ConfigError{Field: "host", Message: fmt.Sprintf("unknown host %q (expected %s or %s)", c.Host, HostSolution, HostManifest)}
	}
	if strings.TrimSpace(c.DefaultFolder) == "" {
		return &ConfigError{Field: "defaultFolder", Message: "must not be empty"}
	}
	switch c.Logging.Format {
	case "human", "json":
	default:
		return &ConfigError{Field: "logging.format", Message: fmt.Sprintf("unknown format %q", c.Logging.Format)}
	}
	switch strings.ToLower(c.Logging.Level) {
	case "debug", "info", "warn", "warning", "error", "silent":
	default:
		return &ConfigError{Field: "logging.level", Message: fmt.Sprintf("unknown level %q", c.Logging.Level)}
	}
	return nil
}

// Diff lists the dotted keys whose values differ from the defaults, sorted.
func (c *Config) Diff() []string {
	d := DefaultConfig()
	pairs := map[string][2]interface{}{
		"version":           {c.Version, d.Version},
		"host":              {c.Host, d.Host},
		"solution":          {c.Solution, d.Solution},
		"defaultFolder":     {c.DefaultFolder, d.DefaultFolder},
		"journal.enabled":   {c.Journal.Enabled, d.Journal.Enabled},
		"journal.snapshots": {c.Journal.Snapshots, d.Journal.Snapshots},
		"logging.format":    {c.Logging.Format, d.Logging.Format},
		"logging.level":     {c.Logging.Level, d.Logging.Level},
	}
	var keys []string
	for k, p := range pairs {
		if fmt.Sprintf("%v", p[0]) != fmt.Sprintf("%v", p[1]) {
			keys = append(keys, k)
		}
	}
	sort.Strings(keys)
	return keys
}

// ConfigError represents a configuration error
type ConfigError struct {
	Field   string
	Message string
}

func (e *ConfigError) Error() string {
	return "config error in field '" + e.Field + "': " + e.Message
}
