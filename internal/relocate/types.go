package relocate

import (
	"context"
	"time"

	"solmove/internal/host"
	"solmove/internal/identity"
	"solmove/internal/rebind"
)

// Request describes a relocation as it starts.
type Request struct {
	Target    identity.Identity `json:"target"`
	Container string            `json:"container"`
	Host      string            `json:"host"`
	StartedAt time.Time         `json:"startedAt"`
}

// Result is the outcome of Relocate. It is also returned alongside a move
// failure so the caller can see which holders lost their references.
type Result struct {
	RequestID        string            `json:"requestId,omitempty" yaml:"requestId,omitempty"`
	Target           identity.Identity `json:"target" yaml:"target"`
	Container        string            `json:"container" yaml:"container"`
	ContainerCreated bool              `json:"containerCreated" yaml:"containerCreated"`
	State            State             `json:"state" yaml:"state"`

	// NewHandle is the relocated project's host token, for display only.
	NewHandle string `json:"newHandle,omitempty" yaml:"newHandle,omitempty"`

	Captured []rebind.Edge       `json:"captured" yaml:"captured"`
	Rebound  []identity.Identity `json:"rebound" yaml:"rebound"`
	Failures []rebind.Failure    `json:"failures,omitempty" yaml:"failures,omitempty"`

	StartedAt  time.Time `json:"startedAt" yaml:"startedAt"`
	FinishedAt time.Time `json:"finishedAt" yaml:"finishedAt"`
}

// OK reports whether the project moved and every holder was rebound.
func (r *Result) OK() bool {
	return r.State == Rebound && len(r.Failures) == 0
}

// Preview is what Relocate would do, computed without mutating the host.
type Preview struct {
	Target           identity.Identity `json:"target" yaml:"target"`
	Location         string            `json:"location" yaml:"location"`
	CurrentContainer string            `json:"currentContainer,omitempty" yaml:"currentContainer,omitempty"`
	Container        string            `json:"container" yaml:"container"`
	ContainerExists  bool              `json:"containerExists" yaml:"containerExists"`
	// AlreadyContained is true when the target already sits in Container.
	// Relocate still performs the move.
	AlreadyContained bool          `json:"alreadyContained" yaml:"alreadyContained"`
	Captured         []rebind.Edge `json:"captured" yaml:"captured"`
}

// Recorder observes relocation requests. Recorder failures are logged and
// never change the outcome of a request.
type Recorder interface {
	// Begin records a new request and returns its id.
	Begin(ctx context.Context, req Request) (string, error)
	// Snapshot stores host files captured before the first mutation.
	Snapshot(ctx context.Context, id string, files []host.FileSnapshot) error
	// Transition records a state change.
	Transition(ctx context.Context, id string, from, to State, at time.Time) error
	// Finish records the final result. err is the error returned to the caller.
	Finish(ctx context.Context, id string, res *Result, err error) error
}
