package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"path/filepath"

	"solmove/internal/config"
	"solmove/internal/host"
	"solmove/internal/host/manifest"
	"solmove/internal/host/sln"
	"solmove/internal/journal"
	"solmove/internal/logging"
	"solmove/internal/paths"
	"solmove/internal/relocate"
)

// workspace is everything a command needs: the root, its config, a logger,
// the opened host and, when enabled, the journal.
type workspace struct {
	root    string
	cfg     *config.Config
	logger  *logging.Logger
	host    host.ProjectHost
	journal *journal.Journal
}

// openWorkspace loads config from the workspace containing the working
// directory, applies flag overrides and opens the host. The journal is
// opened only when withJournal is set and the config enables it; failing to
// open it is logged, not fatal.
func openWorkspace(withJournal bool) (*workspace, error) {
	cwd, err := os.Getwd()
	if err != nil {
		return nil, err
	}
	root, err := paths.FindWorkspaceRoot(cwd)
	if err != nil {
		return nil, err
	}

	cfg, err := loadConfig(root)
	if err != nil {
		return nil, err
	}
	logger := newLogger(cfg)

	ws := &workspace{root: root, cfg: cfg, logger: logger}
	ws.host, err = openHost(root, cfg)
	if err != nil {
		return nil, err
	}

	if withJournal && cfg.Journal.Enabled {
		j, err := journal.Open(root, logger)
		if err != nil {
			logger.Warn("Failed to open journal, continuing without it", map[string]interface{}{
				"error": err.Error(),
			})
		} else {
			ws.journal = j
		}
	}
	return ws, nil
}

// mustOpenWorkspace returns the workspace or exits on error.
func mustOpenWorkspace(withJournal bool) *workspace {
	ws, err := openWorkspace(withJournal)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(exitFatal)
	}
	return ws
}

func (w *workspace) engine() *relocate.Engine {
	opts := []relocate.Option{relocate.WithSnapshots(w.cfg.Journal.Snapshots)}
	if w.journal != nil {
		opts = append(opts, relocate.WithRecorder(w.journal))
	}
	return relocate.NewEngine(w.host, w.logger, opts...)
}

func (w *workspace) Close() {
	if w.journal != nil {
		_ = w.journal.Close()
	}
	if err := w.logger.Sync(); err != nil {
		fmt.Fprintf(os.Stderr, "Warning: failed to flush logs: %v\n", err)
	}
}

// loadConfig reads the config and applies the --host and --solution flags.
func loadConfig(root string) (*config.Config, error) {
	cfg, err := config.LoadConfig(root)
	if err != nil {
		return nil, err
	}
	if solutionFlag != "" {
		cfg.Solution = solutionFlag
		if hostFlag == "" {
			if _, err := manifest.FormatForPath(solutionFlag); err == nil {
				cfg.Host = config.HostManifest
			} else {
				cfg.Host = config.HostSolution
			}
		}
	}
	if hostFlag != "" {
		cfg.Host = hostFlag
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// newLogger uses the configured level unless -v or -q was given.
func newLogger(cfg *config.Config) *logging.Logger {
	level := logging.ParseLevel(cfg.Logging.Level)
	if verbosity > 0 || quietFlag {
		level = logging.LevelFromVerbosity(verbosity, quietFlag)
	}
	format := logging.HumanFormat
	if cfg.Logging.Format == "json" {
		format = logging.JSONFormat
	}
	return logging.NewLogger(logging.Config{
		Format: format,
		Level:  level,
	})
}

func openHost(root string, cfg *config.Config) (host.ProjectHost, error) {
	path, err := resolveSolutionPath(root, cfg)
	if err != nil {
		return nil, err
	}
	switch cfg.Host {
	case config.HostManifest:
		return manifest.Open(path, manifest.WithFileCheck(true))
	default:
		return sln.Open(path)
	}
}

var manifestNames = []string{"workspace.toml", "workspace.yaml", "workspace.yml"}

// resolveSolutionPath returns the configured path, or finds the single
// solution (or manifest) in root.
func resolveSolutionPath(root string, cfg *config.Config) (string, error) {
	if cfg.Solution != "" {
		if filepath.IsAbs(cfg.Solution) {
			return cfg.Solution, nil
		}
		return paths.JoinRootPath(root, cfg.Solution), nil
	}

	if cfg.Host == config.HostManifest {
		for _, name := range manifestNames {
			p := filepath.Join(root, name)
			if _, err := os.Stat(p); err == nil {
				return p, nil
			}
		}
		return "", fmt.Errorf("no workspace manifest in %s; pass --solution", root)
	}

	matches, err := filepath.Glob(filepath.Join(root, "*.sln"))
	if err != nil {
		return "", err
	}
	switch len(matches) {
	case 0:
		return "", fmt.Errorf("no .sln file in %s; pass --solution", root)
	case 1:
		return matches[0], nil
	default:
		return "", fmt.Errorf("%d .sln files in %s; pass --solution", len(matches), root)
	}
}

// newContext creates a context cancelled by Ctrl-C. A relocation honors it
// only until its first host mutation.
func newContext() (context.Context, context.CancelFunc) {
	return signal.NotifyContext(context.Background(), os.Interrupt)
}
