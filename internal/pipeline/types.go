// Package pipeline sequences the question-answering components: moderation
// gate, query expansion, literature retrieval, context assembly, and
// summarization, with per-session conversation memory.
package pipeline

import (
	"fmt"
)

// State is a pipeline execution phase. Each Answer call walks the states
// in order; Errored is reachable from any non-terminal state.
type State string

const (
	StateIdle        State = "idle"
	StateExpanding   State = "expanding"
	StateRetrieving  State = "retrieving"
	StateAssembling  State = "assembling"
	StateSummarizing State = "summarizing"
	StateCompleted   State = "completed"
	StateErrored     State = "errored"
)

// orderedStates returns the success path in execution order.
func orderedStates() []State {
	return []State{
		StateIdle,
		StateExpanding,
		StateRetrieving,
		StateAssembling,
		StateSummarizing,
		StateCompleted,
	}
}

// terminal reports whether no further transition is allowed from s.
func (s State) terminal() bool {
	return s == StateCompleted || s == StateErrored
}

// canTransition checks a state transition: Errored is reachable from any
// non-terminal state, everything else must follow sequential order.
func canTransition(current, next State) error {
	if current.terminal() {
		return fmt.Errorf("cannot leave terminal state %s", current)
	}
	if next == StateErrored {
		return nil
	}

	states := orderedStates()
	currentIdx, nextIdx := -1, -1
	for i, s := range states {
		if s == current {
			currentIdx = i
		}
		if s == next {
			nextIdx = i
		}
	}
	if currentIdx == -1 {
		return fmt.Errorf("invalid current state: %s", current)
	}
	if nextIdx == -1 {
		return fmt.Errorf("invalid target state: %s", next)
	}
	if nextIdx != currentIdx+1 {
		return fmt.Errorf("cannot transition from %s to %s: must follow sequential order", current, next)
	}
	return nil
}

// run tracks one Answer call's progress through the states.
type run struct {
	state State
}

func newRun() *run {
	return &run{state: StateIdle}
}

// advance moves the run to next, enforcing transition rules. A violation
// is a programming error, surfaced rather than ignored.
func (r *run) advance(next State) error {
	if err := canTransition(r.state, next); err != nil {
		return err
	}
	r.state = next
	return nil
}
