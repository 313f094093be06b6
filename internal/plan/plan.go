// Package plan reads batch relocation plans. A plan is a TOML file listing
// projects and the folder each should move into:
//
//	version = 1
//	continue_on_error = false
//
//	[[relocation]]
//	project = "Core"
//	folder = "Libs"
package plan

import (
	"bytes"
	"context"
	"fmt"
	"os"
	"strings"

	toml "github.com/pelletier/go-toml/v2"

	"solmove/internal/errors"
	"solmove/internal/identity"
	"solmove/internal/logging"
	"solmove/internal/relocate"
)

// DefaultFileName is the plan file looked up when none is given.
const DefaultFileName = "PLAN.toml"

// CurrentVersion is the only schema version understood.
const CurrentVersion = 1

// Relocation is one entry of a plan.
type Relocation struct {
	// Project is the identity of the project to move
	Project string `toml:"project"`

	// Folder is the grouping container; empty means the caller's default
	Folder string `toml:"folder,omitempty"`
}

// Plan is the root of a plan file.
type Plan struct {
	Version int `toml:"version"`

	// ContinueOnError keeps going after a relocation fails before its move.
	// A failed move always stops the batch.
	ContinueOnError bool `toml:"continue_on_error"`

	Relocations []Relocation `toml:"relocation"`
}

// Parse reads and validates the plan at path.
func Parse(path string) (*Plan, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read plan: %w", err)
	}
	p, err := ParseBytes(data)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}
	return p, nil
}

// ParseBytes decodes and validates a plan. Unknown keys are rejected.
func ParseBytes(data []byte) (*Plan, error) {
	var p Plan
	dec := toml.NewDecoder(bytes.NewReader(data))
	dec.DisallowUnknownFields()
	if err := dec.Decode(&p); err != nil {
		return nil, fmt.Errorf("failed to parse plan: %w", err)
	}
	if p.Version == 0 {
		p.Version = CurrentVersion
	}
	if err := p.Validate(); err != nil {
		return nil, err
	}
	return &p, nil
}

// Validate checks the version and that every entry names a project once.
func (p *Plan) Validate() error {
	if p.Version != CurrentVersion {
		return fmt.Errorf("unsupported plan version %d (expected %d)", p.Version, CurrentVersion)
	}
	if len(p.Relocations) == 0 {
		return fmt.Errorf("plan has no relocations")
	}
	seen := make(map[string]int, len(p.Relocations))
	for i, r := range p.Relocations {
		name := strings.TrimSpace(r.Project)
		if name == "" {
			return fmt.Errorf("relocation %d: project is required", i+1)
		}
		if prev, ok := seen[name]; ok {
			return fmt.Errorf("relocation %d: project %q already listed at %d", i+1, name, prev)
		}
		seen[name] = i + 1
	}
	return nil
}

// Encode renders the plan as TOML.
func (p *Plan) Encode() ([]byte, error) {
	return toml.Marshal(p)
}

// Relocator is the part of relocate.Engine a plan needs.
type Relocator interface {
	Relocate(ctx context.Context, target identity.Identity, container string) (*relocate.Result, error)
}

// Step is the outcome of one relocation in a plan run.
type Step struct {
	Project string           `json:"project" yaml:"project"`
	Folder  string           `json:"folder" yaml:"folder"`
	Result  *relocate.Result `json:"result,omitempty" yaml:"result,omitempty"`
	Err     error            `json:"-" yaml:"-"`
	Error   string           `json:"error,omitempty" yaml:"error,omitempty"`
	Skipped bool             `json:"skipped,omitempty" yaml:"skipped,omitempty"`
}

// OK reports whether the step ran and fully succeeded.
func (s *Step) OK() bool {
	return !s.Skipped && s.Err == nil && s.Result != nil && s.Result.OK()
}

// Run executes each relocation as its own request, in order. Entries
// without a folder use defaultFolder. Steps that never ran because the
// batch stopped are returned with Skipped set.
func Run(ctx context.Context, r Relocator, p *Plan, defaultFolder string, logger *logging.Logger) []*Step {
	steps := make([]*Step, 0, len(p.Relocations))
	stopped := false

	for i, entry := range p.Relocations {
		folder := entry.Folder
		if folder == "" {
			folder = defaultFolder
		}
		step := &Step{Project: strings.TrimSpace(entry.Project), Folder: folder}
		steps = append(steps, step)

		if stopped {
			step.Skipped = true
			continue
		}
		if err := ctx.Err(); err != nil {
			step.Skipped = true
			stopped = true
			continue
		}

		logger.Info("Applying relocation", map[string]interface{}{
			"index":   i + 1,
			"project": step.Project,
			"folder":  folder,
		})
		step.Result, step.Err = r.Relocate(ctx, identity.Identity(step.Project), folder)
		if step.Err == nil {
			continue
		}
		step.Error = step.Err.Error()

		switch {
		case errors.IsPostMove(step.Err):
			logger.Error("Move failed, stopping plan", map[string]interface{}{
				"project": step.Project,
				"error":   step.Err,
			})
			stopped = true
		case !p.ContinueOnError:
			logger.Warn("Relocation failed, stopping plan", map[string]interface{}{
				"project": step.Project,
				"error":   step.Err,
			})
			stopped = true
		default:
			logger.Warn("Relocation failed, continuing", map[string]interface{}{
				"project": step.Project,
				"error":   step.Err,
			})
		}
	}
	return steps
}
