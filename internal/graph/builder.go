package graph

import (
	"context"
	stderrors "errors"
	"fmt"

	"solmove/internal/errors"
	"solmove/internal/host"
	"solmove/internal/identity"
	"solmove/internal/logging"
)

// Load materializes the host's projects and their references. Tokens are
// wrapped in scope, so the returned graph's handles expire with it.
// The graph is built fresh for every request and never cached.
func Load(ctx context.Context, h host.ProjectHost, scope *identity.Scope, logger *logging.Logger) (*Graph, error) {
	entries, err := h.ListProjects(ctx)
	if err != nil {
		return nil, errors.New(errors.HostUnavailable, fmt.Sprintf("cannot enumerate projects of %s", host.Describe(h)), err)
	}

	g := NewGraph()
	for _, e := range entries {
		if err := ctx.Err(); err != nil {
			return nil, err
		}

		refs, err := h.ListReferences(ctx, e.Token)
		if err != nil {
			return nil, errors.New(errors.HostUnavailable, fmt.Sprintf("cannot list references of %q", e.Identity), err)
		}

		dropped, err := g.AddProject(&Project{
			Identity:   e.Identity,
			Handle:     scope.Issue(e.Token),
			Location:   e.Location,
			Container:  e.Container,
			References: refs,
		})
		if err != nil {
			var dup *DuplicateIdentityError
			if stderrors.As(err, &dup) {
				return nil, errors.New(errors.HostInconsistent, "project names must be unique", err).
					WithDetails(map[string]string{"identity": dup.Identity.String()})
			}
			return nil, err
		}
		for _, d := range dropped {
			logger.Warn("Ignoring duplicate reference", map[string]interface{}{
				"holder":     e.Identity.String(),
				"descriptor": d.String(),
			})
		}
	}

	logger.Debug("Loaded project graph", map[string]interface{}{
		"projects": g.Len(),
		"edges":    g.EdgeCount(),
		"scope":    scope.Name(),
	})

	return g, nil
}

// Refresh re-enumerates the host and returns fresh handles keyed by identity.
// It is used after a structural mutation, when every handle in the graph has
// expired. References are not re-read.
func Refresh(ctx context.Context, h host.ProjectHost, scope *identity.Scope) (map[identity.Identity]identity.Handle, error) {
	entries, err := h.ListProjects(ctx)
	if err != nil {
		return nil, err
	}
	handles := make(map[identity.Identity]identity.Handle, len(entries))
	for _, e := range entries {
		handles[e.Identity] = scope.Issue(e.Token)
	}
	return handles, nil
}
