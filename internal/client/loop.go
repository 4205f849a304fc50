package client

import (
	"context"
	"errors"
	"fmt"

	"github.com/cenkalti/backoff/v4"
)

var errStillPending = errors.New("still pending")

// Transition is reported to an Observer after every accepted event.
type Transition struct {
	From    State
	To      State
	Event   Event
	Machine Machine
	// PollErr is set when a poll failed and was counted as pending.
	PollErr error
}

// Observer receives transitions. It runs on the Loop goroutine.
type Observer func(Transition)

// Loop submits one prompt and polls until a terminal state.
type Loop struct {
	Backend Backend
	Policy  PollPolicy
	Observe Observer
}

func NewLoop(b Backend, policy PollPolicy, observe Observer) *Loop {
	return &Loop{Backend: b, Policy: policy, Observe: observe}
}

// Run drives a fresh Machine for prompt. Cancelling ctx stops polling
// locally; the job on the worker is left alone. The returned error is the
// machine's error when it ends in StateFailed.
func (l *Loop) Run(ctx context.Context, prompt string) (Machine, error) {
	var m Machine
	l.apply(&m, EventSubmit{Prompt: prompt}, nil)

	jobID, err := l.Backend.Submit(ctx, prompt)
	if err != nil {
		if ctx.Err() != nil {
			l.apply(&m, EventCancel{}, nil)
		} else {
			l.apply(&m, EventSubmitFailed{Err: err}, nil)
		}
		return m, m.Err
	}
	l.apply(&m, EventSubmitted{JobID: jobID}, nil)

	operation := func() error {
		res, err := l.Backend.Poll(ctx, jobID)
		if err != nil {
			if ctx.Err() != nil {
				return backoff.Permanent(ctx.Err())
			}
			l.apply(&m, EventPollPending{}, err)
			return errStillPending
		}
		switch res.Status {
		case PollComplete:
			l.apply(&m, EventPollComplete{URL: res.URL}, nil)
			return nil
		case PollFailed:
			l.apply(&m, EventPollFailed{Kind: res.ErrorKind, Message: res.ErrorMessage}, nil)
			return nil
		default:
			l.apply(&m, EventPollPending{}, nil)
			return errStillPending
		}
	}

	err = backoff.Retry(operation, backoff.WithContext(l.Policy.NewBackOff(), ctx))
	switch {
	case m.State.Terminal():
	case ctx.Err() != nil:
		l.apply(&m, EventCancel{}, nil)
	case errors.Is(err, errStillPending):
		l.apply(&m, EventGiveUp{Err: fmt.Errorf("%w after %d polls", ErrPollTimeout, m.Polls)}, nil)
	default:
		l.apply(&m, EventGiveUp{Err: err}, nil)
	}
	return m, m.Err
}

func (l *Loop) apply(m *Machine, ev Event, pollErr error) {
	from := m.current()
	// Events are produced from the current state only, so Apply cannot
	// refuse them here.
	if _, err := m.Apply(ev); err != nil {
		return
	}
	if l.Observe != nil {
		l.Observe(Transition{From: from, To: m.State, Event: ev, Machine: *m, PollErr: pollErr})
	}
}

