package browser

import "time"

// State is the lifecycle of a single navigation-coupled step.
type State int

const (
	StateIdle State = iota
	StateActionFired
	StateWaitingForSettle
	StateSettled
	StateTimedOut
	StateActionFailed
	// StateCanceled ends a step whose caller gave up before it settled.
	StateCanceled
)

var stateNames = map[State]string{
	StateIdle:             "idle",
	StateActionFired:      "action-fired",
	StateWaitingForSettle: "waiting-for-settle",
	StateSettled:          "settled",
	StateTimedOut:         "timed-out",
	StateActionFailed:     "action-failed",
	StateCanceled:         "canceled",
}

func (s State) String() string {
	if name, ok := stateNames[s]; ok {
		return name
	}
	return "unknown"
}

// Terminal reports whether no further transition can follow s.
func (s State) Terminal() bool {
	return s == StateSettled || s == StateTimedOut || s == StateActionFailed || s == StateCanceled
}

// StepEvent describes one state transition of a step.
type StepEvent struct {
	Step    string
	From    State
	To      State
	Elapsed time.Duration
	Err     error
}
