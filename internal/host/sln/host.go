package sln

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"solmove/internal/host"
	"solmove/internal/identity"
	"solmove/internal/paths"
)

// Host serves a .sln file and the project files it lists.
//
// Moving a project follows Visual Studio's remove-and-re-add: the project is
// nested under the folder, and every ProjectReference other projects held on
// it is removed from their project files. Assembly references survive.
type Host struct {
	path string
	dir  string
	sln  *Solution
	gen  uint64
}

var (
	_ host.ProjectHost = (*Host)(nil)
	_ host.Snapshotter = (*Host)(nil)
)

// Open loads the solution at path.
func Open(path string) (*Host, error) {
	abs, err := filepath.Abs(path)
	if err != nil {
		return nil, err
	}
	s, err := LoadSolution(abs)
	if err != nil {
		return nil, err
	}
	return &Host{path: abs, dir: filepath.Dir(abs), sln: s}, nil
}

// Solution returns the parsed solution. Callers must not modify it.
func (h *Host) Solution() *Solution {
	return h.sln
}

// Describe implements host.Describer.
func (h *Host) Describe() string {
	return "solution " + h.path
}

// Snapshot implements host.Snapshotter: the solution plus every project
// file that exists.
func (h *Host) Snapshot(ctx context.Context) ([]host.FileSnapshot, error) {
	data, err := os.ReadFile(h.path)
	if err != nil {
		return nil, err
	}
	files := []host.FileSnapshot{{Path: h.path, Content: data}}
	for _, it := range h.projects() {
		p := h.abs(it.Path)
		data, err := os.ReadFile(p)
		if os.IsNotExist(err) {
			continue
		}
		if err != nil {
			return nil, err
		}
		files = append(files, host.FileSnapshot{Path: p, Content: data})
	}
	return files, nil
}

func (h *Host) abs(rel string) string {
	return paths.JoinRootPath(h.dir, rel)
}

func (h *Host) projects() []*Item {
	var out []*Item
	for _, it := range h.sln.Items {
		if !it.IsFolder() {
			out = append(out, it)
		}
	}
	return out
}

func (h *Host) token(it *Item) string {
	return strconv.FormatUint(h.gen, 10) + "|" + it.GUID
}

func (h *Host) resolve(token string) (*Item, error) {
	genPart, guid, ok := strings.Cut(token, "|")
	if !ok {
		return nil, fmt.Errorf("%w: %q", host.ErrUnknownHandle, token)
	}
	gen, err := strconv.ParseUint(genPart, 10, 64)
	if err != nil {
		return nil, fmt.Errorf("%w: %q", host.ErrUnknownHandle, token)
	}
	if gen != h.gen {
		return nil, fmt.Errorf("%w: %q", host.ErrStaleHandle, token)
	}
	it := h.sln.Item(guid)
	if it == nil {
		return nil, fmt.Errorf("%w: %q", host.ErrUnknownHandle, token)
	}
	return it, nil
}

func (h *Host) resolveProject(token string) (*Item, error) {
	it, err := h.resolve(token)
	if err != nil {
		return nil, err
	}
	if it.IsFolder() {
		return nil, fmt.Errorf("%w: %q is a solution folder", host.ErrUnknownHandle, it.Name)
	}
	return it, nil
}

func (h *Host) checkWritable() error {
	info, err := os.Stat(h.path)
	if err != nil {
		return err
	}
	if info.Mode().Perm()&0o200 == 0 {
		return host.ErrReadOnly
	}
	return nil
}

func (h *Host) saveSolution() error {
	if err := paths.WriteFileAtomic(h.path, h.sln.Bytes(), 0o644); err != nil {
		return fmt.Errorf("failed to write solution: %w", err)
	}
	return nil
}

// ListProjects implements host.ProjectHost.
func (h *Host) ListProjects(ctx context.Context) ([]host.Entry, error) {
	items := h.projects()
	entries := make([]host.Entry, 0, len(items))
	for _, it := range items {
		e := host.Entry{
			Identity: identity.Identity(it.Name),
			Token:    h.token(it),
			Location: paths.NormalizePath(it.Path),
		}
		if parent := h.sln.Parent(it); parent != nil {
			e.Container = parent.Name
		}
		entries = append(entries, e)
	}
	return entries, nil
}

// ListReferences implements host.ProjectHost. ProjectReference items become
// path descriptors named after the solution project they point at; assembly
// references with a public key token become strong descriptors.
func (h *Host) ListReferences(ctx context.Context, token string) ([]host.Descriptor, error) {
	it, err := h.resolveProject(token)
	if err != nil {
		return nil, err
	}
	data, err := os.ReadFile(h.abs(it.Path))
	if err != nil {
		return nil, fmt.Errorf("failed to read %s: %w", it.Path, err)
	}
	pf, err := parseProjectFile(data)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", it.Path, err)
	}

	var out []host.Descriptor
	for _, ref := range pf.projectReferences() {
		resolved := resolveInclude(it.Path, ref.Include)
		name := ""
		if target := h.projectAt(resolved); target != nil {
			name = target.Name
		} else if ref.Name != "" {
			name = ref.Name
		}
		out = append(out, host.PathDescriptor(resolved, name))
	}
	for _, ref := range pf.assemblyReferences() {
		if d, ok := host.ParseStrongName(ref.Include); ok {
			out = append(out, d)
			continue
		}
		name := strings.TrimSpace(strings.Split(ref.Include, ",")[0])
		p := name
		if ref.HintPath != "" {
			p = resolveInclude(it.Path, ref.HintPath)
		}
		out = append(out, host.PathDescriptor(p, name))
	}
	return out, nil
}

func (h *Host) projectAt(rel string) *Item {
	for _, it := range h.projects() {
		if samePath(it.Path, rel) {
			return it
		}
	}
	return nil
}

// FindTopLevelNodeByName implements host.ProjectHost.
func (h *Host) FindTopLevelNodeByName(ctx context.Context, name string) (host.Node, bool, error) {
	for _, it := range h.sln.TopLevel() {
		if it.Name != name {
			continue
		}
		kind := host.KindProject
		if it.IsFolder() {
			kind = host.KindContainer
		}
		return host.Node{Name: it.Name, Token: h.token(it), Kind: kind}, true, nil
	}
	return host.Node{}, false, nil
}

// CreateGroupingContainer implements host.ProjectHost.
func (h *Host) CreateGroupingContainer(ctx context.Context, name string) (string, error) {
	if err := h.checkWritable(); err != nil {
		return "", err
	}
	for _, it := range h.sln.TopLevel() {
		if it.Name == name {
			return "", fmt.Errorf("%w: %q", host.ErrNameCollision, name)
		}
	}
	folder := h.sln.AddFolder(name)
	h.gen++
	if err := h.saveSolution(); err != nil {
		return "", err
	}
	return h.token(folder), nil
}

// MoveIntoContainer implements host.ProjectHost. The project file must still
// exist; nothing is written when it does not.
func (h *Host) MoveIntoContainer(ctx context.Context, project, container string) (string, error) {
	if err := h.checkWritable(); err != nil {
		return "", err
	}
	it, err := h.resolveProject(project)
	if err != nil {
		return "", err
	}
	folder, err := h.resolve(container)
	if err != nil {
		return "", err
	}
	if !folder.IsFolder() {
		return "", fmt.Errorf("%w: %q", host.ErrNotContainer, folder.Name)
	}
	if _, err := os.Stat(h.abs(it.Path)); err != nil {
		return "", fmt.Errorf("%w: %s", host.ErrProjectFileMissing, it.Path)
	}

	// Remove: other projects lose their ProjectReference to it.
	for _, other := range h.projects() {
		if other == it {
			continue
		}
		file := h.abs(other.Path)
		data, err := os.ReadFile(file)
		if os.IsNotExist(err) {
			continue
		}
		if err != nil {
			return "", fmt.Errorf("failed to read %s: %w", other.Path, err)
		}
		updated, removed := removeProjectReferences(data, func(include string) bool {
			return samePath(resolveInclude(other.Path, include), it.Path)
		})
		if removed == 0 {
			continue
		}
		if err := paths.WriteFileAtomic(file, updated, 0o644); err != nil {
			return "", fmt.Errorf("failed to write %s: %w", other.Path, err)
		}
	}

	// Re-add under the folder.
	h.sln.SetParent(it, folder)
	h.gen++
	if err := h.saveSolution(); err != nil {
		return "", err
	}
	return h.token(it), nil
}

// AddReference implements host.ProjectHost. Only the holder's project file
// changes, so tokens stay valid.
func (h *Host) AddReference(ctx context.Context, holder, referenced string) error {
	from, err := h.resolveProject(holder)
	if err != nil {
		return err
	}
	to, err := h.resolveProject(referenced)
	if err != nil {
		return err
	}

	existing, err := h.ListReferences(ctx, holder)
	if err != nil {
		return err
	}
	for _, d := range existing {
		if d.Matches(identity.Identity(to.Name)) {
			return fmt.Errorf("%w: %s -> %s", host.ErrReferenceExists, from.Name, to.Name)
		}
	}

	file := h.abs(from.Path)
	info, err := os.Stat(file)
	if err != nil {
		return err
	}
	if info.Mode().Perm()&0o200 == 0 {
		return host.ErrReadOnly
	}
	data, err := os.ReadFile(file)
	if err != nil {
		return err
	}
	include, err := relativeInclude(from.Path, paths.NormalizePath(to.Path))
	if err != nil {
		return err
	}
	updated, err := addProjectReference(data, include)
	if err != nil {
		return fmt.Errorf("%s: %w", from.Path, err)
	}
	return paths.WriteFileAtomic(file, updated, info.Mode().Perm())
}
