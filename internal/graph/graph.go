// Package graph provides the per-request view of projects and their
// reference edges.
package graph

import (
	"fmt"
	"sort"

	"solmove/internal/host"
	"solmove/internal/identity"
)

// Project is a project as materialized for one request.
type Project struct {
	Identity identity.Identity
	// Handle is valid only until the next structural mutation.
	Handle    identity.Handle
	Location  string
	Container string
	// References are the outbound edges in host order, at most one per identity.
	References []host.Descriptor
}

// ReferenceTo returns the descriptor pointing at id, if any.
func (p *Project) ReferenceTo(id identity.Identity) (host.Descriptor, bool) {
	for _, d := range p.References {
		if d.Matches(id) {
			return d, true
		}
	}
	return host.Descriptor{}, false
}

// Graph holds all projects plus the reverse adjacency needed to answer
// "who references X".
type Graph struct {
	projects []*Project
	byID     map[identity.Identity]int

	// inEdges[id] = indices of projects holding an edge to id, ascending
	inEdges map[identity.Identity][]int
	edges   int
}

// NewGraph creates an empty graph.
func NewGraph() *Graph {
	return &Graph{
		byID:    make(map[identity.Identity]int),
		inEdges: make(map[identity.Identity][]int),
	}
}

// DuplicateIdentityError is returned when two projects share a name.
type DuplicateIdentityError struct {
	Identity identity.Identity
}

func (e *DuplicateIdentityError) Error() string {
	return fmt.Sprintf("duplicate project identity %q", e.Identity)
}

// AddProject appends p in load order. Descriptors that repeat an identity
// already referenced by p are removed and returned.
func (g *Graph) AddProject(p *Project) (dropped []host.Descriptor, err error) {
	if _, exists := g.byID[p.Identity]; exists {
		return nil, &DuplicateIdentityError{Identity: p.Identity}
	}

	idx := len(g.projects)
	seen := make(map[identity.Identity]bool)
	kept := make([]host.Descriptor, 0, len(p.References))
	for _, d := range p.References {
		keys := d.Keys()
		duplicate := false
		for _, k := range keys {
			if seen[k] {
				duplicate = true
				break
			}
		}
		if duplicate {
			dropped = append(dropped, d)
			continue
		}
		for _, k := range keys {
			seen[k] = true
			g.inEdges[k] = append(g.inEdges[k], idx)
		}
		kept = append(kept, d)
	}
	p.References = kept

	g.projects = append(g.projects, p)
	g.byID[p.Identity] = idx
	g.edges += len(kept)
	return dropped, nil
}

// Project returns the project with the given identity.
func (g *Graph) Project(id identity.Identity) (*Project, bool) {
	idx, ok := g.byID[id]
	if !ok {
		return nil, false
	}
	return g.projects[idx], true
}

// Projects returns all projects in load order.
func (g *Graph) Projects() []*Project {
	out := make([]*Project, len(g.projects))
	copy(out, g.projects)
	return out
}

// Len returns the number of projects.
func (g *Graph) Len() int {
	return len(g.projects)
}

// EdgeCount returns the number of reference edges.
func (g *Graph) EdgeCount() int {
	return g.edges
}

// FindReferrers returns every project holding an edge that matches target by
// strong identity or by simple name. The target itself is never included.
// Results follow load order; callers must not rely on it.
func (g *Graph) FindReferrers(target identity.Identity) []*Project {
	indices := g.inEdges[target]
	if len(indices) == 0 {
		return nil
	}

	// A descriptor is indexed under each of its keys once, so indices for a
	// single target are already unique per holder.
	sorted := make([]int, len(indices))
	copy(sorted, indices)
	sort.Ints(sorted)

	out := make([]*Project, 0, len(sorted))
	for _, idx := range sorted {
		p := g.projects[idx]
		if p.Identity == target {
			continue
		}
		out = append(out, p)
	}
	return out
}
