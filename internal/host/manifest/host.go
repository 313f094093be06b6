package manifest

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/google/uuid"

	"solmove/internal/host"
	"solmove/internal/identity"
)

// Host serves a manifest file as a host.ProjectHost. Every mutation is
// written back to disk before it returns.
type Host struct {
	path       string
	manifest   *Manifest
	gen        uint64
	checkFiles bool
	now        func() time.Time
}

var (
	_ host.ProjectHost = (*Host)(nil)
	_ host.Snapshotter = (*Host)(nil)
)

// Option configures a Host.
type Option func(*Host)

// WithFileCheck makes a move fail with host.ErrProjectFileMissing when the
// project file no longer exists next to the manifest.
func WithFileCheck(check bool) Option {
	return func(h *Host) {
		h.checkFiles = check
	}
}

// Open loads the manifest at path.
func Open(path string, opts ...Option) (*Host, error) {
	m, err := Load(path)
	if err != nil {
		return nil, err
	}
	h := &Host{path: path, manifest: m, now: time.Now}
	for _, opt := range opts {
		opt(h)
	}
	return h, nil
}

// Manifest returns the in-memory manifest. Callers must not modify it.
func (h *Host) Manifest() *Manifest {
	return h.manifest
}

// Describe implements host.Describer.
func (h *Host) Describe() string {
	return "manifest " + h.path
}

// Snapshot implements host.Snapshotter.
func (h *Host) Snapshot(ctx context.Context) ([]host.FileSnapshot, error) {
	data, err := os.ReadFile(h.path)
	if err != nil {
		return nil, err
	}
	return []host.FileSnapshot{{Path: h.path, Content: data}}, nil
}

func (h *Host) token(kind host.NodeKind, name string) string {
	return strconv.FormatUint(h.gen, 10) + ":" + string(kind) + ":" + name
}

func (h *Host) parse(token string) (host.NodeKind, string, error) {
	parts := strings.SplitN(token, ":", 3)
	if len(parts) != 3 {
		return "", "", fmt.Errorf("%w: %q", host.ErrUnknownHandle, token)
	}
	gen, err := strconv.ParseUint(parts[0], 10, 64)
	if err != nil {
		return "", "", fmt.Errorf("%w: %q", host.ErrUnknownHandle, token)
	}
	if gen != h.gen {
		return "", "", fmt.Errorf("%w: %q", host.ErrStaleHandle, token)
	}
	return host.NodeKind(parts[1]), parts[2], nil
}

func (h *Host) resolveProject(token string) (*Project, error) {
	kind, name, err := h.parse(token)
	if err != nil {
		return nil, err
	}
	if kind != host.KindProject {
		return nil, fmt.Errorf("%w: %q is not a project", host.ErrUnknownHandle, token)
	}
	p := h.manifest.project(name)
	if p == nil {
		return nil, fmt.Errorf("%w: %q", host.ErrUnknownHandle, token)
	}
	return p, nil
}

func (h *Host) commit() error {
	h.gen++
	h.manifest.UpdatedAt = h.now().UTC()
	return h.manifest.Save(h.path)
}

// ListProjects implements host.ProjectHost.
func (h *Host) ListProjects(ctx context.Context) ([]host.Entry, error) {
	entries := make([]host.Entry, 0, len(h.manifest.Projects))
	for _, p := range h.manifest.Projects {
		entries = append(entries, host.Entry{
			Identity:  identity.Identity(p.Name),
			Token:     h.token(host.KindProject, p.Name),
			Location:  p.Path,
			Container: p.Folder,
		})
	}
	return entries, nil
}

// ListReferences implements host.ProjectHost.
func (h *Host) ListReferences(ctx context.Context, token string) ([]host.Descriptor, error) {
	p, err := h.resolveProject(token)
	if err != nil {
		return nil, err
	}
	out := make([]host.Descriptor, 0, len(p.References))
	for _, r := range p.References {
		out = append(out, r.Descriptor())
	}
	return out, nil
}

// Descriptor converts a manifest reference.
func (r Reference) Descriptor() host.Descriptor {
	if r.Kind == string(host.KindStrong) {
		return host.StrongDescriptor(r.Name, r.Version, r.Culture, r.PublicKeyToken)
	}
	return host.PathDescriptor(r.Path, r.Name)
}

// FindTopLevelNodeByName implements host.ProjectHost.
func (h *Host) FindTopLevelNodeByName(ctx context.Context, name string) (host.Node, bool, error) {
	for _, f := range h.manifest.Folders {
		if f.Parent == "" && f.Name == name {
			return host.Node{Name: f.Name, Token: h.token(host.KindContainer, f.Name), Kind: host.KindContainer}, true, nil
		}
	}
	for _, p := range h.manifest.Projects {
		if p.Folder == "" && p.Name == name {
			return host.Node{Name: p.Name, Token: h.token(host.KindProject, p.Name), Kind: host.KindProject}, true, nil
		}
	}
	return host.Node{}, false, nil
}

// CreateGroupingContainer implements host.ProjectHost.
func (h *Host) CreateGroupingContainer(ctx context.Context, name string) (string, error) {
	if h.manifest.ReadOnly {
		return "", host.ErrReadOnly
	}
	if h.manifest.folder(name) != nil || h.manifest.project(name) != nil {
		return "", fmt.Errorf("%w: %q", host.ErrNameCollision, name)
	}
	h.manifest.Folders = append(h.manifest.Folders, Folder{
		UID:  uuid.New().String(),
		Name: name,
	})
	if err := h.commit(); err != nil {
		return "", err
	}
	return h.token(host.KindContainer, name), nil
}

// MoveIntoContainer implements host.ProjectHost. Like an IDE solution, the
// project is removed and re-added: path references other projects held on
// it are dropped.
func (h *Host) MoveIntoContainer(ctx context.Context, project, container string) (string, error) {
	if h.manifest.ReadOnly {
		return "", host.ErrReadOnly
	}
	p, err := h.resolveProject(project)
	if err != nil {
		return "", err
	}
	kind, folder, err := h.parse(container)
	if err != nil {
		return "", err
	}
	if kind != host.KindContainer || h.manifest.folder(folder) == nil {
		return "", fmt.Errorf("%w: %q", host.ErrNotContainer, folder)
	}

	for i := range h.manifest.Projects {
		q := &h.manifest.Projects[i]
		if q.Name == p.Name {
			continue
		}
		kept := q.References[:0]
		for _, r := range q.References {
			if r.Kind == string(host.KindPath) && r.Path == p.Path {
				continue
			}
			kept = append(kept, r)
		}
		q.References = kept
	}

	if h.checkFiles {
		if _, err := os.Stat(filepath.Join(filepath.Dir(h.path), filepath.FromSlash(p.Path))); err != nil {
			// Removed but not re-added.
			missing := p.Path
			h.removeProject(p.Name)
			if cerr := h.commit(); cerr != nil {
				return "", cerr
			}
			return "", fmt.Errorf("%w: %s", host.ErrProjectFileMissing, missing)
		}
	}

	// Re-added projects go to the end of the list.
	moved := *p
	moved.Folder = folder
	h.removeProject(moved.Name)
	h.manifest.Projects = append(h.manifest.Projects, moved)
	if err := h.commit(); err != nil {
		return "", err
	}
	return h.token(host.KindProject, moved.Name), nil
}

func (h *Host) removeProject(name string) {
	kept := h.manifest.Projects[:0]
	for _, p := range h.manifest.Projects {
		if p.Name != name {
			kept = append(kept, p)
		}
	}
	h.manifest.Projects = kept
}

// AddReference implements host.ProjectHost. It does not change the tree
// layout, so earlier tokens stay valid.
func (h *Host) AddReference(ctx context.Context, holder, referenced string) error {
	if h.manifest.ReadOnly {
		return host.ErrReadOnly
	}
	from, err := h.resolveProject(holder)
	if err != nil {
		return err
	}
	to, err := h.resolveProject(referenced)
	if err != nil {
		return err
	}
	for _, r := range from.References {
		if r.Descriptor().Matches(identity.Identity(to.Name)) {
			return fmt.Errorf("%w: %s -> %s", host.ErrReferenceExists, from.Name, to.Name)
		}
	}
	from.References = append(from.References, Reference{
		Kind: string(host.KindPath),
		Name: to.Name,
		Path: to.Path,
	})
	h.manifest.UpdatedAt = h.now().UTC()
	return h.manifest.Save(h.path)
}
