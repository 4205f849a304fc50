package client

import (
	"errors"
	"testing"
)

func TestMachineHappyPath(t *testing.T) {
	var m Machine
	steps := []struct {
		ev   Event
		want State
	}{
		{EventSubmit{Prompt: "fox"}, StateSubmitting},
		{EventSubmitted{JobID: "job-1"}, StatePolling},
		{EventPollPending{}, StatePolling},
		{EventPollPending{}, StatePolling},
		{EventPollComplete{URL: "https://img/fox.png"}, StateDone},
	}
	for i, step := range steps {
		got, err := m.Apply(step.ev)
		if err != nil {
			t.Fatalf("step %d: %v", i, err)
		}
		if got != step.want {
			t.Fatalf("step %d: state = %s, want %s", i, got, step.want)
		}
	}
	if m.Prompt != "fox" || m.JobID != "job-1" || m.ResultURL != "https://img/fox.png" || m.Polls != 3 {
		t.Fatalf("unexpected machine: %+v", m)
	}
}

func TestMachineFailures(t *testing.T) {
	boom := errors.New("boom")
	testCases := []struct {
		name    string
		events  []Event
		wantErr func(error) bool
	}{
		{
			name:    "submit failed",
			events:  []Event{EventSubmit{}, EventSubmitFailed{Err: boom}},
			wantErr: func(err error) bool { return errors.Is(err, boom) },
		},
		{
			name:   "worker failed",
			events: []Event{EventSubmit{}, EventSubmitted{JobID: "j"}, EventPollFailed{Kind: "worker_failed", Message: "nsfw"}},
			wantErr: func(err error) bool {
				var jf *JobFailedError
				return errors.As(err, &jf) && jf.Message == "nsfw"
			},
		},
		{
			name:    "gave up",
			events:  []Event{EventSubmit{}, EventSubmitted{JobID: "j"}, EventPollPending{}, EventGiveUp{}},
			wantErr: func(err error) bool { return errors.Is(err, ErrPollTimeout) },
		},
		{
			name:    "cancel while polling",
			events:  []Event{EventSubmit{}, EventSubmitted{JobID: "j"}, EventCancel{}},
			wantErr: func(err error) bool { return errors.Is(err, ErrCancelled) },
		},
		{
			name:    "cancel while submitting",
			events:  []Event{EventSubmit{}, EventCancel{}},
			wantErr: func(err error) bool { return errors.Is(err, ErrCancelled) },
		},
	}
	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			var m Machine
			for _, ev := range tc.events {
				if _, err := m.Apply(ev); err != nil {
					t.Fatalf("apply %T: %v", ev, err)
				}
			}
			if m.State != StateFailed {
				t.Fatalf("state = %s, want failed", m.State)
			}
			if !tc.wantErr(m.Err) {
				t.Fatalf("unexpected error: %v", m.Err)
			}
		})
	}
}

func TestMachineRejectsInvalidTransitions(t *testing.T) {
	testCases := []struct {
		name  string
		setup []Event
		ev    Event
	}{
		{name: "poll before submit", ev: EventPollPending{}},
		{name: "cancel when idle", ev: EventCancel{}},
		{name: "submit twice", setup: []Event{EventSubmit{}}, ev: EventSubmit{}},
		{name: "empty job id", setup: []Event{EventSubmit{}}, ev: EventSubmitted{}},
		{name: "result before id", setup: []Event{EventSubmit{}}, ev: EventPollComplete{URL: "u"}},
		{name: "after done", setup: []Event{EventSubmit{}, EventSubmitted{JobID: "j"}, EventPollComplete{URL: "u"}}, ev: EventPollPending{}},
		{name: "after failed", setup: []Event{EventSubmit{}, EventSubmitFailed{}}, ev: EventSubmit{}},
	}
	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			var m Machine
			for _, ev := range tc.setup {
				if _, err := m.Apply(ev); err != nil {
					t.Fatalf("setup %T: %v", ev, err)
				}
			}
			before := m
			state, err := m.Apply(tc.ev)
			if !errors.Is(err, ErrInvalidTransition) {
				t.Fatalf("err = %v, want ErrInvalidTransition", err)
			}
			if state != before.current() || m != before {
				t.Fatalf("machine changed on rejected event: %+v -> %+v", before, m)
			}
		})
	}
}
