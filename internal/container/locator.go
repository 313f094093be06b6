// Package container finds or creates the grouping container a project is
// relocated into.
package container

import (
	"context"
	"fmt"
	"strings"

	"solmove/internal/errors"
	"solmove/internal/host"
	"solmove/internal/identity"
	"solmove/internal/logging"
)

// Resolution is a resolved grouping container.
type Resolution struct {
	Name   string
	Handle identity.Handle
	// Created is true when the container did not exist and was added by Resolve.
	Created bool
}

// Locator resolves containers by exact name among the top-level nodes.
type Locator struct {
	host   host.ProjectHost
	logger *logging.Logger
}

// NewLocator creates a locator over h.
func NewLocator(h host.ProjectHost, logger *logging.Logger) *Locator {
	return &Locator{host: h, logger: logger}
}

// Resolve returns the top-level container called name, creating it when
// absent. Resolving the same name twice yields the same container.
// Creation is a structural mutation, so scope is advanced and every handle
// issued before the call expires. Failures are reported, never retried.
func (l *Locator) Resolve(ctx context.Context, scope *identity.Scope, name string) (Resolution, error) {
	res, found, err := l.Lookup(ctx, scope, name)
	if err != nil || found {
		return res, err
	}

	token, err := l.host.CreateGroupingContainer(ctx, name)
	if err != nil {
		return Resolution{}, errors.New(errors.ContainerCreationFailed,
			fmt.Sprintf("host refused to create container %q", name), err)
	}
	scope.Advance()

	l.logger.Info("Created grouping container", map[string]interface{}{
		"container": name,
	})

	return Resolution{Name: name, Handle: scope.Issue(token), Created: true}, nil
}

// Lookup is the read-only half of Resolve. found is false when no top-level
// node carries name; a non-container node with that name is an error.
func (l *Locator) Lookup(ctx context.Context, scope *identity.Scope, name string) (res Resolution, found bool, err error) {
	if strings.TrimSpace(name) == "" {
		return Resolution{}, false, errors.Newf(errors.InvalidArgument, "container name must not be empty")
	}

	node, ok, err := l.host.FindTopLevelNodeByName(ctx, name)
	if err != nil {
		return Resolution{}, false, errors.New(errors.ContainerCreationFailed,
			fmt.Sprintf("cannot scan top-level nodes for %q", name), err)
	}
	if !ok {
		return Resolution{Name: name}, false, nil
	}
	if node.Kind != host.KindContainer {
		return Resolution{}, false, errors.New(errors.ContainerCreationFailed,
			fmt.Sprintf("%q is a %s, not a grouping container", name, node.Kind),
			host.ErrNameCollision)
	}

	l.logger.Debug("Reusing grouping container", map[string]interface{}{
		"container": name,
	})
	return Resolution{Name: node.Name, Handle: scope.Issue(node.Token)}, true, nil
}
