package session

// FlowState tracks progression through parts and breaks within an in-progress
// plan. It is a sub-state machine distinct from the coarse plan Status.
type FlowState string

const (
	FlowNotStarted          FlowState = "notStarted"
	FlowInPart              FlowState = "inPart"
	FlowPartTransitioning   FlowState = "partTransitioning"
	FlowOnBreak             FlowState = "onBreak"
	FlowBreakResultsPending FlowState = "breakResultsPending"
	FlowCompleted           FlowState = "completed"
	FlowAbandoned           FlowState = "abandoned"
)

// Terminal reports whether no further flow transitions are possible.
func (s FlowState) Terminal() bool {
	return s == FlowCompleted || s == FlowAbandoned
}

// EventType identifies a flow event. EventRecord and EventRecordRedo are not
// transitions themselves; they only appear in InvalidFlowTransitionError when
// a content mutation is attempted outside FlowInPart.
type EventType string

const (
	EventStart                  EventType = "start"
	EventPartDone               EventType = "part_done" // internal: raised when the current part is exhausted
	EventPartTransitionComplete EventType = "part_transition_complete"
	EventBreakFinished          EventType = "break_finished"
	EventBreakResultsAcked      EventType = "break_results_acked"
	EventEndEarly               EventType = "end_early"
	EventAbandon                EventType = "abandon"

	EventRecord     EventType = "record"
	EventRecordRedo EventType = "record_redo"
)

// flowEvent is an EventType plus the guards the transition table needs.
// Guards are computed by the orchestration layer from the plan contents so the
// table itself stays a pure function.
type flowEvent struct {
	Type            EventType
	PartsRemain     bool // parts left beyond the current one
	BreakConfigured bool // a game break is configured after the exhausted part
	HasResults      bool // break_finished carried game results to acknowledge
}

type transitionFunc func(ev flowEvent) FlowState

// flowTransitions defines every legal (state, event) pair. Anything absent is
// an InvalidFlowTransitionError, never a silent no-op.
var flowTransitions = map[FlowState]map[EventType]transitionFunc{
	FlowNotStarted: {
		EventStart: func(flowEvent) FlowState { return FlowInPart },
	},
	FlowInPart: {
		EventPartDone: func(ev flowEvent) FlowState {
			if ev.PartsRemain && ev.BreakConfigured {
				return FlowOnBreak
			}
			return FlowPartTransitioning
		},
	},
	FlowPartTransitioning: {
		EventPartTransitionComplete: func(ev flowEvent) FlowState {
			if ev.PartsRemain {
				return FlowInPart
			}
			return FlowCompleted
		},
	},
	FlowOnBreak: {
		EventBreakFinished: func(ev flowEvent) FlowState {
			if ev.HasResults {
				return FlowBreakResultsPending
			}
			if ev.PartsRemain {
				return FlowInPart
			}
			return FlowCompleted
		},
	},
	FlowBreakResultsPending: {
		EventBreakResultsAcked: func(ev flowEvent) FlowState {
			if ev.PartsRemain {
				return FlowInPart
			}
			return FlowCompleted
		},
	},
}

// nextFlowState is the pure transition function: no I/O, no mutation.
// end_early and abandon are accepted from every non-terminal state; they are
// the only transitions allowed to skip intermediate states.
func nextFlowState(state FlowState, ev flowEvent) (FlowState, error) {
	switch ev.Type {
	case EventEndEarly:
		if state.Terminal() {
			return state, &InvalidFlowTransitionError{State: state, EventType: ev.Type}
		}
		return FlowCompleted, nil
	case EventAbandon:
		if state.Terminal() {
			return state, &InvalidFlowTransitionError{State: state, EventType: ev.Type}
		}
		return FlowAbandoned, nil
	}

	if events, ok := flowTransitions[state]; ok {
		if fn, ok := events[ev.Type]; ok {
			return fn(ev), nil
		}
	}
	return state, &InvalidFlowTransitionError{State: state, EventType: ev.Type}
}
