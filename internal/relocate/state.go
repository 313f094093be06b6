package relocate

import "fmt"

// State is the progress of one relocation request.
type State string

const (
	Idle              State = "idle"
	ReferrersCaptured State = "referrers_captured"
	Moved             State = "moved"
	Rebound           State = "rebound"
	Aborted           State = "aborted"
)

// transitions lists the legal successors of each state. Aborted is only
// reachable from a failed move; once Moved, a request always ends Rebound.
var transitions = map[State][]State{
	Idle:              {ReferrersCaptured},
	ReferrersCaptured: {Moved, Aborted},
	Moved:             {Rebound},
}

// Terminal reports whether no further transition is possible.
func (s State) Terminal() bool {
	return len(transitions[s]) == 0
}

// CanTransition reports whether from -> to is legal.
func CanTransition(from, to State) bool {
	for _, next := range transitions[from] {
		if next == to {
			return true
		}
	}
	return false
}

type machine struct {
	state    State
	onChange func(from, to State)
}

func newMachine(onChange func(from, to State)) *machine {
	return &machine{state: Idle, onChange: onChange}
}

// advance moves to next. An illegal transition is a programming error.
func (m *machine) advance(next State) {
	if !CanTransition(m.state, next) {
		panic(fmt.Sprintf("relocate: illegal transition %s -> %s", m.state, next))
	}
	from := m.state
	m.state = next
	if m.onChange != nil {
		m.onChange(from, next)
	}
}
