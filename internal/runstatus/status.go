// Package runstatus tracks the lifecycle state of the event-stream monitor.
package runstatus

import (
	"fmt"
	"strings"
	"sync"
	"time"
)

type State string

const (
	Idle             State = "Idle"
	Authenticating   State = "Authenticating"
	Connecting       State = "Connecting"
	Streaming        State = "Streaming"
	ReAuthenticating State = "ReAuthenticating"
	Terminated       State = "Terminated"
)

// States lists every state in lifecycle order.
var States = []State{Idle, Authenticating, Connecting, Streaming, ReAuthenticating, Terminated}

var allowed = map[State][]State{
	Idle:             {Authenticating, Terminated},
	Authenticating:   {Connecting, Terminated},
	Connecting:       {Streaming, ReAuthenticating, Connecting, Terminated},
	Streaming:        {ReAuthenticating, Connecting, Terminated},
	ReAuthenticating: {Connecting, Terminated},
	Terminated:       nil,
}

// Key is the lower-case form used in log fields and metric labels.
func Key(state State) string {
	return strings.ToLower(strings.TrimSpace(string(state)))
}

func CanTransition(from, to State) bool {
	for _, next := range allowed[from] {
		if next == to {
			return true
		}
	}
	return false
}

type Transition struct {
	From   State
	To     State
	Reason string
	At     time.Time
}

type InvalidTransitionError struct {
	From State
	To   State
}

func (e *InvalidTransitionError) Error() string {
	return fmt.Sprintf("invalid state transition %s -> %s", e.From, e.To)
}

const historyLimit = 64

// Tracker holds the current state and a bounded transition history. It is
// safe for concurrent readers while one owner drives transitions.
type Tracker struct {
	mu      sync.RWMutex
	current State
	since   time.Time
	history []Transition
	now     func() time.Time
}

func NewTracker() *Tracker {
	return &Tracker{current: Idle, since: time.Now(), now: time.Now}
}

func (t *Tracker) Current() State {
	t.mu.RLock()
	defer t.mu.RUnlock()
	return t.current
}

// Since reports when the current state was entered.
func (t *Tracker) Since() time.Time {
	t.mu.RLock()
	defer t.mu.RUnlock()
	return t.since
}

// Move records a transition to state. Transitions the lifecycle does not
// allow are rejected and leave the tracker unchanged.
func (t *Tracker) Move(to State, reason string) (Transition, error) {
	t.mu.Lock()
	defer t.mu.Unlock()

	if !CanTransition(t.current, to) {
		return Transition{}, &InvalidTransitionError{From: t.current, To: to}
	}
	tr := Transition{From: t.current, To: to, Reason: reason, At: t.now()}
	t.current = to
	t.since = tr.At
	t.history = append(t.history, tr)
	if len(t.history) > historyLimit {
		t.history = append([]Transition(nil), t.history[len(t.history)-historyLimit:]...)
	}
	return tr, nil
}

func (t *Tracker) History() []Transition {
	t.mu.RLock()
	defer t.mu.RUnlock()
	return append([]Transition(nil), t.history...)
}
