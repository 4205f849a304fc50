// Package client drives one prompt from submission to a result URL against
// the image API. It owns no server state.
package client

import (
	"errors"
	"fmt"
)

// State is the position of a Machine in the request lifecycle.
type State string

const (
	StateIdle       State = "idle"
	StateSubmitting State = "submitting"
	StatePolling    State = "polling"
	StateDone       State = "done"
	StateFailed     State = "failed"
)

// Terminal reports whether no further events are accepted.
func (s State) Terminal() bool {
	return s == StateDone || s == StateFailed
}

var (
	ErrInvalidTransition = errors.New("invalid transition")
	ErrPollTimeout       = errors.New("gave up waiting for result")
	ErrCancelled         = errors.New("cancelled")
)

// JobFailedError is reported when the worker answered with a failure.
type JobFailedError struct {
	Kind    string
	Message string
}

func (e *JobFailedError) Error() string {
	if e.Kind == "" {
		return "job failed: " + e.Message
	}
	return fmt.Sprintf("job failed (%s): %s", e.Kind, e.Message)
}

// Event moves a Machine between states.
type Event interface {
	name() string
}

type (
	EventSubmit       struct{ Prompt string }
	EventSubmitted    struct{ JobID string }
	EventSubmitFailed struct{ Err error }
	EventPollPending  struct{}
	EventPollComplete struct{ URL string }
	EventPollFailed   struct{ Kind, Message string }
	EventGiveUp       struct{ Err error }
	EventCancel       struct{}
)

func (EventSubmit) name() string       { return "submit" }
func (EventSubmitted) name() string    { return "submitted" }
func (EventSubmitFailed) name() string { return "submit_failed" }
func (EventPollPending) name() string  { return "poll_pending" }
func (EventPollComplete) name() string { return "poll_complete" }
func (EventPollFailed) name() string   { return "poll_failed" }
func (EventGiveUp) name() string       { return "give_up" }
func (EventCancel) name() string       { return "cancel" }

// Machine is the client-side view of one request. The zero value is idle.
type Machine struct {
	State     State
	Prompt    string
	JobID     string
	ResultURL string
	Polls     int
	Err       error
}

// Apply performs the transition for ev and returns the new state. An event
// that is not legal in the current state leaves the machine untouched.
func (m *Machine) Apply(ev Event) (State, error) {
	next, ok := m.transition(ev)
	if !ok {
		return m.current(), fmt.Errorf("%w: %s in state %s", ErrInvalidTransition, ev.name(), m.current())
	}
	m.State = next
	return next, nil
}

func (m *Machine) current() State {
	if m.State == "" {
		return StateIdle
	}
	return m.State
}

func (m *Machine) transition(ev Event) (State, bool) {
	switch m.current() {
	case StateIdle:
		if e, ok := ev.(EventSubmit); ok {
			m.Prompt = e.Prompt
			return StateSubmitting, true
		}
	case StateSubmitting:
		switch e := ev.(type) {
		case EventSubmitted:
			if e.JobID == "" {
				return "", false
			}
			m.JobID = e.JobID
			return StatePolling, true
		case EventSubmitFailed:
			m.Err = e.Err
			return StateFailed, true
		case EventCancel:
			m.Err = ErrCancelled
			return StateFailed, true
		}
	case StatePolling:
		switch e := ev.(type) {
		case EventPollPending:
			m.Polls++
			return StatePolling, true
		case EventPollComplete:
			m.Polls++
			m.ResultURL = e.URL
			return StateDone, true
		case EventPollFailed:
			m.Polls++
			m.Err = &JobFailedError{Kind: e.Kind, Message: e.Message}
			return StateFailed, true
		case EventGiveUp:
			m.Err = e.Err
			if m.Err == nil {
				m.Err = ErrPollTimeout
			}
			return StateFailed, true
		case EventCancel:
			m.Err = ErrCancelled
			return StateFailed, true
		}
	}
	return "", false
}
