// Package manifest hosts a project tree described by a workspace manifest,
// either workspace.toml or workspace.yaml.
package manifest

import (
	"bytes"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/BurntSushi/toml"
	"gopkg.in/yaml.v3"

	"solmove/internal/paths"
)

// Format is the manifest's on-disk encoding.
type Format string

const (
	FormatTOML Format = "toml"
	FormatYAML Format = "yaml"
)

// FormatForPath picks the format from the file extension.
func FormatForPath(path string) (Format, error) {
	switch strings.ToLower(filepath.Ext(path)) {
	case ".toml":
		return FormatTOML, nil
	case ".yaml", ".yml":
		return FormatYAML, nil
	default:
		return "", fmt.Errorf("unsupported manifest extension %q (want .toml, .yaml or .yml)", filepath.Ext(path))
	}
}

// Manifest is the workspace description.
type Manifest struct {
	// Name identifies the workspace
	Name string `toml:"name" yaml:"name"`

	// ReadOnly makes every structural mutation fail
	ReadOnly bool `toml:"read_only,omitempty" yaml:"read_only,omitempty"`

	// UpdatedAt is when the manifest was last written by a mutation
	UpdatedAt time.Time `toml:"updated_at,omitempty" yaml:"updated_at,omitempty"`

	Folders  []Folder  `toml:"folder,omitempty" yaml:"folders,omitempty"`
	Projects []Project `toml:"project,omitempty" yaml:"projects,omitempty"`
}

// Folder is a grouping container.
type Folder struct {
	// UID is assigned on creation and never changes
	UID  string `toml:"uid" yaml:"uid"`
	Name string `toml:"name" yaml:"name"`
	// Parent is the enclosing folder, empty at top level
	Parent string `toml:"parent,omitempty" yaml:"parent,omitempty"`
}

// Project is a buildable project.
type Project struct {
	Name string `toml:"name" yaml:"name"`
	// Path is the project file, relative to the manifest
	Path       string      `toml:"path" yaml:"path"`
	Folder     string      `toml:"folder,omitempty" yaml:"folder,omitempty"`
	References []Reference `toml:"reference,omitempty" yaml:"references,omitempty"`
}

// Reference is an outbound edge of a project.
type Reference struct {
	// Kind is "path" or "strong"
	Kind           string `toml:"kind" yaml:"kind"`
	Name           string `toml:"name,omitempty" yaml:"name,omitempty"`
	Path           string `toml:"path,omitempty" yaml:"path,omitempty"`
	Version        string `toml:"version,omitempty" yaml:"version,omitempty"`
	Culture        string `toml:"culture,omitempty" yaml:"culture,omitempty"`
	PublicKeyToken string `toml:"public_key_token,omitempty" yaml:"public_key_token,omitempty"`
}

// Load reads a manifest from disk.
func Load(path string) (*Manifest, error) {
	format, err := FormatForPath(path)
	if err != nil {
		return nil, err
	}

	var m Manifest
	switch format {
	case FormatTOML:
		if _, err := toml.DecodeFile(path, &m); err != nil {
			return nil, fmt.Errorf("failed to parse manifest: %w", err)
		}
	case FormatYAML:
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("failed to read manifest: %w", err)
		}
		if err := yaml.Unmarshal(data, &m); err != nil {
			return nil, fmt.Errorf("failed to parse manifest: %w", err)
		}
	}

	if err := m.Validate(); err != nil {
		return nil, err
	}
	return &m, nil
}

// Validate checks references between entries. Duplicate project names are
// left for the graph loader to report.
func (m *Manifest) Validate() error {
	folders := make(map[string]bool, len(m.Folders))
	for _, f := range m.Folders {
		if f.Name == "" {
			return fmt.Errorf("folder with uid %q has no name", f.UID)
		}
		if folders[f.Name] {
			return fmt.Errorf("folder %q declared twice", f.Name)
		}
		folders[f.Name] = true
	}
	for _, f := range m.Folders {
		if f.Parent != "" && !folders[f.Parent] {
			return fmt.Errorf("folder %q: unknown parent %q", f.Name, f.Parent)
		}
	}
	for _, p := range m.Projects {
		if p.Name == "" {
			return fmt.Errorf("project at %q has no name", p.Path)
		}
		if p.Folder != "" && !folders[p.Folder] {
			return fmt.Errorf("project %q: unknown folder %q", p.Name, p.Folder)
		}
		for _, r := range p.References {
			if r.Kind != "path" && r.Kind != "strong" {
				return fmt.Errorf("project %q: reference kind %q (want path or strong)", p.Name, r.Kind)
			}
		}
	}
	return nil
}

// Encode renders the manifest in format.
func (m *Manifest) Encode(format Format) ([]byte, error) {
	var buf bytes.Buffer
	switch format {
	case FormatTOML:
		if err := toml.NewEncoder(&buf).Encode(m); err != nil {
			return nil, fmt.Errorf("failed to encode manifest: %w", err)
		}
	case FormatYAML:
		enc := yaml.NewEncoder(&buf)
		enc.SetIndent(2)
		if err := enc.Encode(m); err != nil {
			return nil, fmt.Errorf("failed to encode manifest: %w", err)
		}
		if err := enc.Close(); err != nil {
			return nil, err
		}
	default:
		return nil, fmt.Errorf("unknown manifest format %q", format)
	}
	return buf.Bytes(), nil
}

// Save writes the manifest atomically.
func (m *Manifest) Save(path string) error {
	format, err := FormatForPath(path)
	if err != nil {
		return err
	}
	data, err := m.Encode(format)
	if err != nil {
		return err
	}

	if err := paths.WriteFileAtomic(path, data, 0644); err != nil {
		return fmt.Errorf("failed to write manifest: %w", err)
	}
	return nil
}

func (m *Manifest) project(name string) *Project {
	for i := range m.Projects {
		if m.Projects[i].Name == name {
			return &m.Projects[i]
		}
	}
	return nil
}

func (m *Manifest) folder(name string) *Folder {
	for i := range m.Folders {
		if m.Folders[i].Name == name {
			return &m.Folders[i]
		}
	}
	return nil
}
