package workflow

import (
	"errors"
	"fmt"
)

// State tracks a submission through the marking round. Transitions are
// monotonic: a step may only be re-run when explicitly forced, never
// silently.
type State int

const (
	StateInitialized State = iota
	StateMarked
	StateCollected
	StateCombined // exercise mode only
	StateSent
)

var stateNames = map[State]string{
	StateInitialized: "initialized",
	StateMarked:      "marked",
	StateCollected:   "collected",
	StateCombined:    "combined",
	StateSent:        "sent",
}

func (s State) String() string {
	if name, ok := stateNames[s]; ok {
		return name
	}
	return fmt.Sprintf("state(%d)", int(s))
}

func (s State) MarshalText() ([]byte, error) {
	name, ok := stateNames[s]
	if !ok {
		return nil, fmt.Errorf("unknown workflow state %d", int(s))
	}
	return []byte(name), nil
}

func (s *State) UnmarshalText(text []byte) error {
	for state, name := range stateNames {
		if name == string(text) {
			*s = state
			return nil
		}
	}
	return fmt.Errorf("unknown workflow state %q", string(text))
}

// AtLeast reports whether the submission already passed the given state.
func (s State) AtLeast(min State) bool {
	return s >= min
}

// ErrNotCollected is returned when send is invoked on a submission whose
// feedback has not been collected (or combined, in exercise mode) yet.
var ErrNotCollected = errors.New("feedback not collected yet")

// TransitionError reports a rejected state change for one team.
type TransitionError struct {
	TeamKey string
	From    State
	To      State
}

func (e *TransitionError) Error() string {
	if e.From >= e.To {
		return fmt.Sprintf("team %s: cannot go back from %s to %s", e.TeamKey, e.From, e.To)
	}
	return fmt.Sprintf("team %s: cannot skip from %s to %s", e.TeamKey, e.From, e.To)
}

// Machine validates state changes for one marking mode. Exercise mode has
// the extra combined step between collected and sent; static mode goes from
// collected straight to sent.
type Machine struct {
	exerciseMode bool
}

func NewMachine(exerciseMode bool) *Machine {
	return &Machine{exerciseMode: exerciseMode}
}

// SendableFrom is the state a submission must have reached before send.
func (m *Machine) SendableFrom() State {
	if m.exerciseMode {
		return StateCombined
	}
	return StateCollected
}

func (m *Machine) successor(s State) State {
	if s == StateCollected && !m.exerciseMode {
		return StateSent
	}
	return s + 1
}

// Advance validates the transition from cur to next and returns the new
// state. Re-running a step (next at or behind cur) requires force and is an
// idempotent overwrite; skipping a step forward is always rejected.
func (m *Machine) Advance(teamKey string, cur, next State, force bool) (State, error) {
	if next <= cur {
		if force {
			return cur, nil
		}
		return cur, &TransitionError{TeamKey: teamKey, From: cur, To: next}
	}
	if next != m.successor(cur) {
		return cur, &TransitionError{TeamKey: teamKey, From: cur, To: next}
	}
	return next, nil
}
