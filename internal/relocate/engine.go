// Package relocate moves a project into a grouping container and restores
// the references other projects held on it.
//
// A request runs in four steps: load the graph, capture the edges pointing at
// the target, move the target, then rebind the captured edges. The move is
// the point of no return. Everything before it fails without touching the
// host; a failed move aborts the request and leaves the tree for a manual
// check; rebind failures are collected into the Result.
package relocate

import (
	"context"
	stderrors "errors"
	"fmt"
	"time"

	"solmove/internal/container"
	"solmove/internal/errors"
	"solmove/internal/graph"
	"solmove/internal/host"
	"solmove/internal/identity"
	"solmove/internal/logging"
	"solmove/internal/rebind"
)

// Engine runs relocation requests against one host. It keeps no state
// between requests and is not safe for concurrent use.
type Engine struct {
	host     host.ProjectHost
	logger   *logging.Logger
	locator  *container.Locator
	rebinder *rebind.Rebinder
	recorder Recorder

	// snapshots enables capturing host files before the first mutation
	snapshots bool
	now       func() time.Time
}

// Option configures an Engine.
type Option func(*Engine)

// WithRecorder attaches a recorder, typically the journal.
func WithRecorder(r Recorder) Option {
	return func(e *Engine) {
		e.recorder = r
	}
}

// WithSnapshots turns host file snapshots on or off. They are on by default
// and only taken when a recorder is attached.
func WithSnapshots(enabled bool) Option {
	return func(e *Engine) {
		e.snapshots = enabled
	}
}

// WithClock overrides time.Now.
func WithClock(now func() time.Time) Option {
	return func(e *Engine) {
		e.now = now
	}
}

// NewEngine creates an engine over h.
func NewEngine(h host.ProjectHost, logger *logging.Logger, opts ...Option) *Engine {
	e := &Engine{
		host:      h,
		logger:    logger,
		locator:   container.NewLocator(h, logger),
		rebinder:  rebind.NewRebinder(h, logger),
		snapshots: true,
		now:       time.Now,
	}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// Relocate moves target into the container named containerName, creating the
// container if needed, and re-adds every reference other projects held on
// target.
//
// ctx is honored only until the first host mutation; from then on the
// request runs to completion. When the move itself fails the returned error
// satisfies errors.IsPostMove and the Result, in state Aborted, lists the
// holders whose references may be gone.
func (e *Engine) Relocate(ctx context.Context, target identity.Identity, containerName string) (*Result, error) {
	if target.IsZero() {
		return nil, errors.Newf(errors.InvalidArgument, "project name must not be empty")
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	res := &Result{
		Target:    target,
		Container: containerName,
		State:     Idle,
		StartedAt: e.now(),
	}
	res.RequestID = e.begin(ctx, res)

	scope := identity.NewScope(fmt.Sprintf("relocate %s", target))
	defer scope.Close()

	m := newMachine(func(from, to State) {
		res.State = to
		e.record(res.RequestID, "transition", func(r Recorder) error {
			return r.Transition(ctx, res.RequestID, from, to, e.now())
		})
	})

	log := e.logger.With(map[string]interface{}{
		"target":    target.String(),
		"container": containerName,
	})

	// 1-3: read-only.
	g, err := graph.Load(ctx, e.host, scope, e.logger)
	if err != nil {
		return nil, e.fail(ctx, res, err)
	}
	proj, ok := g.Project(target)
	if !ok {
		return nil, e.fail(ctx, res, errors.Newf(errors.ProjectNotFound, "project %q not found in %s", target, host.Describe(e.host)).
			WithDetails(map[string]string{"project": target.String()}))
	}
	res.Captured = rebind.Capture(g.FindReferrers(target), target)
	m.advance(ReferrersCaptured)
	log.Info("Captured referrers", map[string]interface{}{
		"referrers": len(res.Captured),
	})

	if err := ctx.Err(); err != nil {
		return nil, e.fail(ctx, res, err)
	}
	e.snapshot(ctx, res.RequestID)

	// From here on the request is not interruptible.
	ctx = context.WithoutCancel(ctx)

	// 4: resolve the container. Creation expires every handle in g.
	cont, err := e.locator.Resolve(ctx, scope, containerName)
	if err != nil {
		return nil, e.fail(ctx, res, err)
	}
	res.ContainerCreated = cont.Created
	targetHandle := proj.Handle
	if cont.Created {
		// The container now exists even though the project never moves.
		created := map[string]string{"project": target.String(), "createdContainer": containerName}
		handles, err := graph.Refresh(ctx, e.host, scope)
		if err != nil {
			return nil, e.fail(ctx, res, errors.New(errors.HostUnavailable,
				fmt.Sprintf("cannot re-enumerate projects after creating container %q (the container was kept)", containerName), err).
				WithDetails(created))
		}
		h, ok := handles[target]
		if !ok {
			return nil, e.fail(ctx, res, errors.Newf(errors.ProjectNotFound, "project %q vanished after creating container %q (the container was kept)", target, containerName).
				WithDetails(created))
		}
		targetHandle = h
	}

	// 5: the point of no return.
	newToken, err := e.move(ctx, scope, targetHandle, cont.Handle)
	if err != nil {
		code := errors.MoveFailed
		if stderrors.Is(err, host.ErrProjectFileMissing) {
			code = errors.MoveTargetMissing
		}
		holders := make([]string, 0, len(res.Captured))
		for _, edge := range res.Captured {
			holders = append(holders, edge.Holder.String())
		}
		rerr := errors.New(code, fmt.Sprintf("moving %q into %q failed; the project may be detached or partially moved", target, containerName), err).
			WithDetails(map[string]interface{}{
				"requestId": res.RequestID,
				"holders":   holders,
			})
		m.advance(Aborted)
		log.Error("Move failed, no references rebound", map[string]interface{}{
			"error":   err,
			"holders": len(holders),
		})
		return res, e.fail(ctx, res, rerr)
	}
	res.NewHandle = newToken
	m.advance(Moved)

	// 6: rebind. Partial failures never roll back the move.
	outcome := e.rebinder.Rebind(ctx, scope, res.Captured, target, scope.Issue(newToken))
	res.Rebound = outcome.Rebound
	res.Failures = outcome.Failures
	m.advance(Rebound)

	log.Info("Relocation finished", map[string]interface{}{
		"rebound":  len(res.Rebound),
		"failures": len(res.Failures),
	})

	res.FinishedAt = e.now()
	e.finish(ctx, res, nil)
	return res, nil
}

// move performs the host move and advances scope whether or not it
// succeeded: a rejected remove-and-re-add may still have changed the tree.
func (e *Engine) move(ctx context.Context, scope *identity.Scope, project, into identity.Handle) (string, error) {
	projectToken, err := project.Token()
	if err != nil {
		return "", err
	}
	containerToken, err := into.Token()
	if err != nil {
		return "", err
	}
	newToken, err := e.host.MoveIntoContainer(ctx, projectToken, containerToken)
	scope.Advance()
	return newToken, err
}

// Preview computes what Relocate would capture and whether the container
// exists, without mutating the host.
func (e *Engine) Preview(ctx context.Context, target identity.Identity, containerName string) (*Preview, error) {
	if target.IsZero() {
		return nil, errors.Newf(errors.InvalidArgument, "project name must not be empty")
	}
	scope := identity.NewScope(fmt.Sprintf("preview %s", target))
	defer scope.Close()

	g, err := graph.Load(ctx, e.host, scope, e.logger)
	if err != nil {
		return nil, err
	}
	proj, ok := g.Project(target)
	if !ok {
		return nil, errors.Newf(errors.ProjectNotFound, "project %q not found in %s", target, host.Describe(e.host)).
			WithDetails(map[string]string{"project": target.String()})
	}

	_, found, err := e.locator.Lookup(ctx, scope, containerName)
	if err != nil {
		return nil, err
	}

	return &Preview{
		Target:           target,
		Location:         proj.Location,
		CurrentContainer: proj.Container,
		Container:        containerName,
		ContainerExists:  found,
		AlreadyContained: found && proj.Container == containerName,
		Captured:         rebind.Capture(g.FindReferrers(target), target),
	}, nil
}

func (e *Engine) fail(ctx context.Context, res *Result, err error) error {
	res.FinishedAt = e.now()
	e.finish(ctx, res, err)
	return err
}

func (e *Engine) begin(ctx context.Context, res *Result) string {
	if e.recorder == nil {
		return ""
	}
	id, err := e.recorder.Begin(ctx, Request{
		Target:    res.Target,
		Container: res.Container,
		Host:      host.Describe(e.host),
		StartedAt: res.StartedAt,
	})
	if err != nil {
		e.logger.Warn("Journal unavailable, request not recorded", map[string]interface{}{
			"error": err,
		})
		return ""
	}
	return id
}

func (e *Engine) snapshot(ctx context.Context, id string) {
	snap, ok := e.host.(host.Snapshotter)
	if !ok || id == "" || !e.snapshots {
		return
	}
	files, err := snap.Snapshot(ctx)
	if err != nil {
		e.logger.Warn("Cannot snapshot host files", map[string]interface{}{
			"requestId": id,
			"error":     err,
		})
		return
	}
	e.record(id, "snapshot", func(r Recorder) error {
		return r.Snapshot(ctx, id, files)
	})
}

func (e *Engine) finish(ctx context.Context, res *Result, err error) {
	// A cancelled request is still recorded.
	ctx = context.WithoutCancel(ctx)
	e.record(res.RequestID, "finish", func(r Recorder) error {
		return r.Finish(ctx, res.RequestID, res, err)
	})
}

func (e *Engine) record(id, op string, fn func(Recorder) error) {
	if e.recorder == nil || id == "" {
		return
	}
	if err := fn(e.recorder); err != nil {
		e.logger.Warn("Journal write failed", map[string]interface{}{
			"requestId": id,
			"op":        op,
			"error":     err,
		})
	}
}
