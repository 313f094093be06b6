// Package rebind captures the edges referrers hold on a project before it is
// moved and re-adds equivalent edges afterwards.
package rebind

import (
	"context"
	stderrors "errors"
	"fmt"

	"solmove/internal/errors"
	"solmove/internal/graph"
	"solmove/internal/host"
	"solmove/internal/identity"
	"solmove/internal/logging"
)

// Edge is a captured reference: the holder and the exact descriptor it held
// on the target before any mutation.
type Edge struct {
	Holder     identity.Identity `json:"holder" yaml:"holder"`
	Descriptor host.Descriptor   `json:"descriptor" yaml:"descriptor"`
}

// Failure is a rebind that did not happen for one holder.
type Failure struct {
	Holder identity.Identity       `json:"holder" yaml:"holder"`
	Err    *errors.RelocationError `json:"error" yaml:"error"`
}

// Outcome collects the per-holder results of Rebind.
type Outcome struct {
	Rebound  []identity.Identity `json:"rebound" yaml:"rebound"`
	Failures []Failure           `json:"failures,omitempty" yaml:"failures,omitempty"`
}

// OK reports whether every holder was rebound.
func (o Outcome) OK() bool {
	return len(o.Failures) == 0
}

// Capture records, for each referrer, the descriptor pointing at target.
// It must run before the move: path descriptors are derived from the
// target's current location and are gone afterwards.
func Capture(referrers []*graph.Project, target identity.Identity) []Edge {
	edges := make([]Edge, 0, len(referrers))
	for _, p := range referrers {
		if p.Identity == target {
			continue
		}
		d, ok := p.ReferenceTo(target)
		if !ok {
			continue
		}
		edges = append(edges, Edge{Holder: p.Identity, Descriptor: d})
	}
	return edges
}

// Rebinder re-adds captured edges against the relocated project.
type Rebinder struct {
	host   host.ProjectHost
	logger *logging.Logger
}

// NewRebinder creates a rebinder over h.
func NewRebinder(h host.ProjectHost, logger *logging.Logger) *Rebinder {
	return &Rebinder{host: h, logger: logger}
}

// Rebind adds an edge from every captured holder to newTarget. Holders are
// processed independently and every failure is collected. An edge that
// already exists on a holder is never overwritten or duplicated: the holder
// fails with DUPLICATE_REFERENCE and keeps its edge.
func (r *Rebinder) Rebind(ctx context.Context, scope *identity.Scope, edges []Edge, target identity.Identity, newTarget identity.Handle) Outcome {
	var out Outcome
	if len(edges) == 0 {
		return out
	}

	failAll := func(e *errors.RelocationError) Outcome {
		for _, edge := range edges {
			out.Failures = append(out.Failures, Failure{Holder: edge.Holder, Err: e})
		}
		return out
	}

	targetToken, err := newTarget.Token()
	if err != nil {
		return failAll(errors.New(errors.HostError, fmt.Sprintf("handle of relocated %q is unusable", target), err))
	}

	// Holder handles from the graph expired with the move.
	handles, err := graph.Refresh(ctx, r.host, scope)
	if err != nil {
		return failAll(errors.New(errors.HostError, "cannot re-enumerate projects after the move", err))
	}

	for _, edge := range edges {
		if ferr := r.rebindOne(ctx, edge, target, targetToken, handles); ferr != nil {
			r.logger.Warn("Rebind failed", map[string]interface{}{
				"holder": edge.Holder.String(),
				"target": target.String(),
				"code":   string(ferr.Code),
				"error":  ferr,
			})
			out.Failures = append(out.Failures, Failure{Holder: edge.Holder, Err: ferr})
			continue
		}
		r.logger.Debug("Rebound reference", map[string]interface{}{
			"holder": edge.Holder.String(),
			"target": target.String(),
		})
		out.Rebound = append(out.Rebound, edge.Holder)
	}
	return out
}

func (r *Rebinder) rebindOne(ctx context.Context, edge Edge, target identity.Identity, targetToken string, handles map[identity.Identity]identity.Handle) *errors.RelocationError {
	h, ok := handles[edge.Holder]
	if !ok {
		return errors.Newf(errors.ProjectNotFound, "holder %q is no longer in the tree", edge.Holder)
	}
	holderToken, err := h.Token()
	if err != nil {
		return errors.New(errors.HostError, fmt.Sprintf("handle of %q is unusable", edge.Holder), err)
	}

	current, err := r.host.ListReferences(ctx, holderToken)
	if err != nil {
		return errors.New(errors.HostError, fmt.Sprintf("cannot list references of %q", edge.Holder), err)
	}
	for _, d := range current {
		if d.Matches(target) {
			return errors.Newf(errors.DuplicateReference, "%q already references %q", edge.Holder, target).
				WithDetails(map[string]string{
					"existing": d.String(),
					"captured": edge.Descriptor.String(),
				})
		}
	}

	if err := r.host.AddReference(ctx, holderToken, targetToken); err != nil {
		if stderrors.Is(err, host.ErrReferenceExists) {
			return errors.New(errors.DuplicateReference, fmt.Sprintf("%q already references %q", edge.Holder, target), err)
		}
		return errors.New(errors.HostError, fmt.Sprintf("cannot add reference %q -> %q", edge.Holder, target), err)
	}
	return nil
}
