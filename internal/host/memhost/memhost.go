// Package memhost provides an in-memory project tree that behaves like an IDE
// solution: moving a project is a remove-and-re-add that issues a new token,
// expires all earlier tokens and drops project references other projects held
// on the moved project.
package memhost

import (
	"context"
	"fmt"
	"strconv"
	"strings"

	"solmove/internal/host"
	"solmove/internal/identity"
)

// Calls counts host operations.
type Calls struct {
	ListProjects   int
	ListReferences int
	FindTopLevel   int
	Create         int
	Move           int
	AddReference   int
}

type node struct {
	name      string
	kind      host.NodeKind
	location  string
	container string
	detached  bool
	refs      []host.Descriptor
}

// Host is an in-memory host.ProjectHost.
type Host struct {
	gen    uint64
	nodes  []*node
	byName map[string]*node

	readOnly     bool
	failMove     error
	failCreate   error
	failAdd      map[string]error
	missingFiles map[string]bool

	// Calls records how often each operation was invoked.
	Calls Calls
}

var _ host.ProjectHost = (*Host)(nil)

// New creates an empty tree.
func New() *Host {
	return &Host{
		byName:       make(map[string]*node),
		failAdd:      make(map[string]error),
		missingFiles: make(map[string]bool),
	}
}

// Describe implements host.Describer.
func (h *Host) Describe() string {
	return "memory"
}

// AddProject adds a top-level project at location.
func (h *Host) AddProject(name, location string) *Host {
	return h.AddProjectIn(name, location, "")
}

// AddProjectIn adds a project inside an existing container.
func (h *Host) AddProjectIn(name, location, container string) *Host {
	h.add(&node{name: name, kind: host.KindProject, location: location, container: container})
	return h
}

// AddContainer adds a top-level grouping container.
func (h *Host) AddContainer(name string) *Host {
	h.add(&node{name: name, kind: host.KindContainer, location: name})
	return h
}

func (h *Host) add(n *node) {
	if _, exists := h.byName[n.name]; exists {
		panic(fmt.Sprintf("memhost: duplicate node %q", n.name))
	}
	h.nodes = append(h.nodes, n)
	h.byName[n.name] = n
}

// Link records a project reference from holder to the current location of target.
func (h *Host) Link(holder, target string) *Host {
	t := h.mustNode(target)
	return h.AddDescriptor(holder, host.PathDescriptor(t.location, t.name))
}

// AddDescriptor records an arbitrary reference descriptor on holder.
func (h *Host) AddDescriptor(holder string, d host.Descriptor) *Host {
	n := h.mustNode(holder)
	n.refs = append(n.refs, d)
	return h
}

// SetReadOnly makes every mutation fail with host.ErrReadOnly.
func (h *Host) SetReadOnly(readOnly bool) {
	h.readOnly = readOnly
}

// FailMove makes MoveIntoContainer fail with err.
func (h *Host) FailMove(err error) {
	h.failMove = err
}

// FailCreate makes CreateGroupingContainer fail with err.
func (h *Host) FailCreate(err error) {
	h.failCreate = err
}

// FailAddReference makes AddReference on holder fail with err.
func (h *Host) FailAddReference(holder string, err error) {
	h.failAdd[holder] = err
}

// MarkFileMissing simulates the project file vanishing from disk.
func (h *Host) MarkFileMissing(name string) {
	h.missingFiles[name] = true
}

// References returns a copy of the descriptors held by name.
func (h *Host) References(name string) []host.Descriptor {
	n := h.mustNode(name)
	out := make([]host.Descriptor, len(n.refs))
	copy(out, n.refs)
	return out
}

// ContainerOf returns the container holding name, empty at top level.
func (h *Host) ContainerOf(name string) string {
	return h.mustNode(name).container
}

// Detached reports whether a failed move left name outside the tree.
func (h *Host) Detached(name string) bool {
	return h.mustNode(name).detached
}

// Children returns the names of the nodes inside container, in tree order.
func (h *Host) Children(container string) []string {
	var out []string
	for _, n := range h.nodes {
		if n.container == container && n.kind == host.KindProject {
			out = append(out, n.name)
		}
	}
	return out
}

// Containers returns the names of all containers in tree order.
func (h *Host) Containers() []string {
	var out []string
	for _, n := range h.nodes {
		if n.kind == host.KindContainer {
			out = append(out, n.name)
		}
	}
	return out
}

// Generation returns the number of structural mutations so far.
func (h *Host) Generation() uint64 {
	return h.gen
}

func (h *Host) mustNode(name string) *node {
	n, ok := h.byName[name]
	if !ok {
		panic(fmt.Sprintf("memhost: unknown node %q", name))
	}
	return n
}

func (h *Host) token(n *node) string {
	return "g" + strconv.FormatUint(h.gen, 10) + ":" + n.name
}

func (h *Host) resolve(token string) (*node, error) {
	genPart, name, ok := strings.Cut(token, ":")
	if !ok || !strings.HasPrefix(genPart, "g") {
		return nil, fmt.Errorf("%w: %q", host.ErrUnknownHandle, token)
	}
	gen, err := strconv.ParseUint(genPart[1:], 10, 64)
	if err != nil {
		return nil, fmt.Errorf("%w: %q", host.ErrUnknownHandle, token)
	}
	if gen != h.gen {
		return nil, fmt.Errorf("%w: %q (tree at generation %d)", host.ErrStaleHandle, token, h.gen)
	}
	n, ok := h.byName[name]
	if !ok || n.detached {
		return nil, fmt.Errorf("%w: %q", host.ErrUnknownHandle, token)
	}
	return n, nil
}

// ListProjects implements host.ProjectHost.
func (h *Host) ListProjects(ctx context.Context) ([]host.Entry, error) {
	h.Calls.ListProjects++
	entries := make([]host.Entry, 0, len(h.nodes))
	for _, n := range h.nodes {
		if n.kind != host.KindProject || n.detached {
			continue
		}
		entries = append(entries, host.Entry{
			Identity:  identity.Identity(n.name),
			Token:     h.token(n),
			Location:  n.location,
			Container: n.container,
		})
	}
	return entries, nil
}

// ListReferences implements host.ProjectHost.
func (h *Host) ListReferences(ctx context.Context, token string) ([]host.Descriptor, error) {
	h.Calls.ListReferences++
	n, err := h.resolve(token)
	if err != nil {
		return nil, err
	}
	out := make([]host.Descriptor, len(n.refs))
	copy(out, n.refs)
	return out, nil
}

// FindTopLevelNodeByName implements host.ProjectHost.
func (h *Host) FindTopLevelNodeByName(ctx context.Context, name string) (host.Node, bool, error) {
	h.Calls.FindTopLevel++
	for _, n := range h.nodes {
		if n.container == "" && !n.detached && n.name == name {
			return host.Node{Name: n.name, Token: h.token(n), Kind: n.kind}, true, nil
		}
	}
	return host.Node{}, false, nil
}

// CreateGroupingContainer implements host.ProjectHost.
func (h *Host) CreateGroupingContainer(ctx context.Context, name string) (string, error) {
	h.Calls.Create++
	if h.readOnly {
		return "", host.ErrReadOnly
	}
	if h.failCreate != nil {
		return "", h.failCreate
	}
	if _, exists := h.byName[name]; exists {
		return "", fmt.Errorf("%w: %q", host.ErrNameCollision, name)
	}
	n := &node{name: name, kind: host.KindContainer, location: name}
	h.add(n)
	h.gen++
	return h.token(n), nil
}

// MoveIntoContainer implements host.ProjectHost.
func (h *Host) MoveIntoContainer(ctx context.Context, project, container string) (string, error) {
	h.Calls.Move++
	if h.readOnly {
		return "", host.ErrReadOnly
	}
	p, err := h.resolve(project)
	if err != nil {
		return "", err
	}
	c, err := h.resolve(container)
	if err != nil {
		return "", err
	}
	if c.kind != host.KindContainer {
		return "", fmt.Errorf("%w: %q", host.ErrNotContainer, c.name)
	}
	if h.failMove != nil {
		return "", h.failMove
	}

	// Remove: the tree forgets the project and every project reference to it.
	remaining := h.nodes[:0]
	for _, n := range h.nodes {
		if n != p {
			remaining = append(remaining, n)
		}
	}
	h.nodes = remaining
	for _, n := range h.nodes {
		kept := n.refs[:0]
		for _, d := range n.refs {
			if d.Kind == host.KindPath && d.Path == p.location {
				continue
			}
			kept = append(kept, d)
		}
		n.refs = kept
	}
	h.gen++

	// Re-add from file.
	if h.missingFiles[p.name] {
		p.detached = true
		return "", fmt.Errorf("%w: %s", host.ErrProjectFileMissing, p.location)
	}
	// The re-added project comes last in the tree.
	p.container = c.name
	h.nodes = append(h.nodes, p)
	return h.token(p), nil
}

// AddReference implements host.ProjectHost.
func (h *Host) AddReference(ctx context.Context, holder, referenced string) error {
	h.Calls.AddReference++
	if h.readOnly {
		return host.ErrReadOnly
	}
	from, err := h.resolve(holder)
	if err != nil {
		return err
	}
	to, err := h.resolve(referenced)
	if err != nil {
		return err
	}
	if err := h.failAdd[from.name]; err != nil {
		return err
	}
	for _, d := range from.refs {
		if d.Matches(identity.Identity(to.name)) {
			return fmt.Errorf("%w: %s -> %s", host.ErrReferenceExists, from.name, to.name)
		}
	}
	from.refs = append(from.refs, host.PathDescriptor(to.location, to.name))
	return nil
}
