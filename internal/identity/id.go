// Package identity separates what a project is from where the host keeps it.
//
// An Identity is the project's name. It is the only key used for lookups and
// equality, and it survives relocation. A Handle is the host's opaque
// location token for a node; hosts implement moves as delete-and-recreate, so
// a Handle is only meaningful until the next structural mutation of the tree.
// Handles are issued by a Scope and expire when the scope advances.
package identity

import (
	"errors"
	"fmt"
	"strings"
)

var (
	// ErrExpiredHandle is returned when a handle outlived a structural mutation.
	ErrExpiredHandle = errors.New("handle expired by a structural mutation")
	// ErrZeroHandle is returned when an unissued handle is used.
	ErrZeroHandle = errors.New("handle was never issued")
)

// Identity is the stable name of a project within a tree.
type Identity string

// String returns the identity as a plain string.
func (i Identity) String() string {
	return string(i)
}

// IsZero reports whether the identity is empty or blank.
func (i Identity) IsZero() bool {
	return strings.TrimSpace(string(i)) == ""
}

// Freshness indicates whether a handle may still be passed to the host.
type Freshness string

const (
	// Fresh means no structural mutation happened since the handle was issued
	Fresh Freshness = "fresh"
	// Expired means the tree changed and the host may no longer recognize the token
	Expired Freshness = "expired"
)

// Handle is an opaque host location token bound to the scope that issued it.
type Handle struct {
	token string
	gen   uint64
	scope *Scope
}

// Token returns the host token, or an error if the handle is no longer valid.
// Callers should fetch the token immediately before the host call that needs it.
func (h Handle) Token() (string, error) {
	if h.scope == nil {
		return "", ErrZeroHandle
	}
	if h.scope.closed || h.gen != h.scope.gen {
		return "", fmt.Errorf("%w: issued at generation %d, scope at %d", ErrExpiredHandle, h.gen, h.scope.gen)
	}
	return h.token, nil
}

// Freshness reports whether the handle can still be used.
func (h Handle) Freshness() Freshness {
	if _, err := h.Token(); err != nil {
		return Expired
	}
	return Fresh
}

// IsZero reports whether the handle was never issued.
func (h Handle) IsZero() bool {
	return h.scope == nil
}

// String renders the handle for display only. It never validates.
func (h Handle) String() string {
	if h.scope == nil {
		return "<none>"
	}
	return h.token
}
