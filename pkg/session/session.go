// Package session models the lifecycle of a single run: Idle -> Pending -> Resolved.
//
// Session is a value. Every transition returns the next Session and leaves the
// receiver untouched, so callers own exactly one current value and can test
// transitions without any I/O.
package session

import (
	"fmt"
	"time"

	"github.com/mariozechner/bytebox/pkg/execution"
)

// State is the phase of the run lifecycle.
type State int

const (
	// Idle means no run has been triggered, or the last result was dismissed.
	Idle State = iota
	// Pending means a request is in flight.
	Pending
	// Resolved means the last request has a classified result.
	Resolved
)

func (s State) String() string {
	switch s {
	case Idle:
		return "idle"
	case Pending:
		return "pending"
	case Resolved:
		return "resolved"
	default:
		return "unknown"
	}
}

// MarshalText encodes the state by name.
func (s State) MarshalText() ([]byte, error) {
	return []byte(s.String()), nil
}

// UnmarshalText decodes a state name produced by MarshalText.
func (s *State) UnmarshalText(text []byte) error {
	for _, st := range []State{Idle, Pending, Resolved} {
		if st.String() == string(text) {
			*s = st
			return nil
		}
	}
	return fmt.Errorf("unknown session state %q", text)
}

// Session is the run lifecycle of one workspace. The zero value is Idle.
type Session struct {
	state     State
	request   execution.Request
	result    execution.Result
	startedAt time.Time
}

// State returns the current phase.
func (s Session) State() State { return s.state }

// Pending reports whether a run is in flight.
func (s Session) Pending() bool { return s.state == Pending }

// Request returns the in-flight or last resolved request.
func (s Session) Request() execution.Request { return s.request }

// Result returns the last result. Only meaningful when Resolved.
func (s Session) Result() execution.Result { return s.result }

// StartedAt returns when the current or last request was triggered.
func (s Session) StartedAt() time.Time { return s.startedAt }

// Trigger enters Pending with req. It is rejected while a run is already pending:
// the returned session is unchanged and ok is false.
func (s Session) Trigger(req execution.Request, now time.Time) (next Session, ok bool) {
	if s.state == Pending {
		return s, false
	}
	return Session{state: Pending, request: req, startedAt: now}, true
}

// Resolve moves a pending session to Resolved. It only accepts the result of
// the pending request.
func (s Session) Resolve(requestID string, res execution.Result) (next Session, ok bool) {
	if s.state != Pending || s.request.ID != requestID {
		return s, false
	}
	s.state = Resolved
	s.result = res
	return s, true
}

// Dismiss clears a resolved result. A pending run cannot be dismissed.
func (s Session) Dismiss() Session {
	if s.state != Resolved {
		return s
	}
	return Session{}
}
