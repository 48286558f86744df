package pipeline

import (
	"fmt"
	"slices"
)

// State is the position of a target in the fetch/unpack/organize sequence.
type State string

const (
	StatePending   State = "pending"
	StateFetched   State = "fetched"
	StateUnpacked  State = "unpacked"
	StateOrganized State = "organized"
	StateDone      State = "done"
	StateFailed    State = "failed"
	StateSkipped   State = "skipped"
)

// Stage names the step a failed target stopped at.
type Stage string

const (
	StageFetch    Stage = "fetch"
	StageUnpack   Stage = "unpack"
	StageOrganize Stage = "organize"
	StagePlace    Stage = "place"
)

// Skip reasons.
const (
	SkipAlreadyPlaced = "already placed"
	SkipCancelled     = "cancelled"
)

var transitions = map[State][]State{
	StatePending:   {StateFetched, StateFailed, StateSkipped},
	StateFetched:   {StateUnpacked, StateFailed},
	StateUnpacked:  {StateOrganized, StateFailed},
	StateOrganized: {StateDone, StateFailed},
}

// Terminal reports whether no further transition is possible.
func (s State) Terminal() bool {
	return s == StateDone || s == StateFailed || s == StateSkipped
}

// TransitionError is an attempted move the state table does not allow.
type TransitionError struct {
	From State
	To   State
}

func (e *TransitionError) Error() string {
	return fmt.Sprintf("invalid target transition %s -> %s", e.From, e.To)
}

// Transition validates a state change.
func Transition(from, to State) error {
	if slices.Contains(transitions[from], to) {
		return nil
	}
	return &TransitionError{From: from, To: to}
}
