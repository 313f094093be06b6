// Package host defines the capability a project tree must offer for
// relocation, and the value types exchanged with it.
//
// Implementations:
//   - memhost: in-memory tree, used by tests
//   - manifest: a workspace manifest file (TOML or YAML)
//   - sln: a Visual Studio solution and its .csproj files
//
// Hosts are not safe for concurrent use. Every call is a synchronous boundary
// operation; a failed call is reported, never retried.
package host

import (
	"context"
	"errors"

	"solmove/internal/identity"
)

var (
	// ErrStaleHandle is returned for a token issued before a structural mutation.
	ErrStaleHandle = errors.New("stale handle")
	// ErrUnknownHandle is returned for a token the host never issued.
	ErrUnknownHandle = errors.New("unknown handle")
	// ErrReferenceExists is returned by AddReference when the holder already
	// references the target identity.
	ErrReferenceExists = errors.New("reference already exists")
	// ErrNameCollision is returned when a container name is taken by a non-container node.
	ErrNameCollision = errors.New("name collision")
	// ErrReadOnly is returned when the tree is write-protected.
	ErrReadOnly = errors.New("project tree is read-only")
	// ErrProjectFileMissing is returned when a moved project's file is no
	// longer where the host expects it.
	ErrProjectFileMissing = errors.New("project file missing")
	// ErrNotContainer is returned when a move target is not a grouping container.
	ErrNotContainer = errors.New("node is not a grouping container")
)

// NodeKind distinguishes buildable projects from grouping containers.
type NodeKind string

const (
	KindProject   NodeKind = "project"
	KindContainer NodeKind = "container"
)

// Entry is a project as enumerated by the host.
type Entry struct {
	Identity identity.Identity
	Token    string
	// Location is informational (file path or virtual path); it changes on moves.
	Location string
	// Container is the name of the enclosing container, empty at top level.
	Container string
}

// Node is a top-level node of the tree.
type Node struct {
	Name  string
	Token string
	Kind  NodeKind
}

// ProjectHost is the capability the relocation core consumes.
type ProjectHost interface {
	// ListProjects enumerates every buildable project. Containers are not listed.
	ListProjects(ctx context.Context) ([]Entry, error)

	// ListReferences returns the outbound reference edges of a project.
	ListReferences(ctx context.Context, token string) ([]Descriptor, error)

	// FindTopLevelNodeByName performs an exact-name lookup among top-level nodes.
	FindTopLevelNodeByName(ctx context.Context, name string) (Node, bool, error)

	// CreateGroupingContainer adds a new top-level container. This is a
	// structural mutation: previously issued tokens become stale.
	CreateGroupingContainer(ctx context.Context, name string) (string, error)

	// MoveIntoContainer removes the project from its current location and
	// re-adds it under the container, returning the project's new token.
	// Inbound references held by other projects may be dropped by the host.
	MoveIntoContainer(ctx context.Context, project, container string) (string, error)

	// AddReference adds an edge from holder to referenced. It fails with
	// ErrReferenceExists if holder already references that identity.
	AddReference(ctx context.Context, holder, referenced string) error
}

// FileSnapshot is the content of one file backing a host.
type FileSnapshot struct {
	Path    string
	Content []byte
}

// Snapshotter is implemented by file-backed hosts that can capture the files
// a relocation may touch, so they can be restored by hand after a failed move.
type Snapshotter interface {
	Snapshot(ctx context.Context) ([]FileSnapshot, error)
}

// Describer is implemented by hosts that can name their backing store.
type Describer interface {
	Describe() string
}

// Describe returns a human-readable name for h.
func Describe(h ProjectHost) string {
	if d, ok := h.(Describer); ok {
		return d.Describe()
	}
	return "host"
}
