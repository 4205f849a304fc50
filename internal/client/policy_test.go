package client

import (
	"testing"
	"time"

	"github.com/cenkalti/backoff/v4"
)

func drain(b backoff.BackOff, limit int) []time.Duration {
	var out []time.Duration
	for i := 0; i < limit; i++ {
		d := b.NextBackOff()
		if d == backoff.Stop {
			break
		}
		out = append(out, d)
	}
	return out
}

func TestDefaultPollPolicyBacksOff(t *testing.T) {
	p := DefaultPollPolicy()
	if p.MaxAttempts == 0 || p.Deadline == 0 {
		t.Fatalf("default policy must be bounded: %+v", p)
	}
	p.Jitter = 0
	got := drain(p.NewBackOff(), 7)
	want := []time.Duration{
		5 * time.Second,
		7500 * time.Millisecond,
		11250 * time.Millisecond,
		16875 * time.Millisecond,
		25312500 * time.Microsecond,
		30 * time.Second,
		30 * time.Second,
	}
	if len(got) != len(want) {
		t.Fatalf("expected %d waits, got %d", len(want), len(got))
	}
	for i := range want {
		if got[i] != want[i] {
			t.Fatalf("wait %d = %s, want %s", i, got[i], want[i])
		}
	}
}

func TestDefaultPollPolicyJitterStaysInRange(t *testing.T) {
	got := drain(DefaultPollPolicy().NewBackOff(), 1)
	if len(got) != 1 {
		t.Fatalf("expected a wait, got none")
	}
	if got[0] < 4500*time.Millisecond || got[0] > 5500*time.Millisecond {
		t.Fatalf("first wait %s outside 5s +/- 10%%", got[0])
	}
}

func TestPollPolicyMaxAttempts(t *testing.T) {
	testCases := []struct {
		attempts  int
		wantWaits int
	}{
		{attempts: 1, wantWaits: 0},
		{attempts: 2, wantWaits: 1},
		{attempts: 4, wantWaits: 3},
	}
	for _, tc := range testCases {
		p := PollPolicy{InitialInterval: time.Millisecond, Multiplier: 1, MaxAttempts: tc.attempts}
		if got := drain(p.NewBackOff(), 100); len(got) != tc.wantWaits {
			t.Fatalf("attempts=%d: waits = %d, want %d", tc.attempts, len(got), tc.wantWaits)
		}
	}
}

func TestPollPolicyGrowsToMax(t *testing.T) {
	p := PollPolicy{InitialInterval: time.Second, MaxInterval: 4 * time.Second, Multiplier: 2, MaxAttempts: 6}
	got := drain(p.NewBackOff(), 100)
	want := []time.Duration{time.Second, 2 * time.Second, 4 * time.Second, 4 * time.Second, 4 * time.Second}
	if len(got) != len(want) {
		t.Fatalf("waits = %v, want %v", got, want)
	}
	for i := range want {
		if got[i] != want[i] {
			t.Fatalf("waits = %v, want %v", got, want)
		}
	}
}

func TestPollPolicyDeadline(t *testing.T) {
	p := PollPolicy{InitialInterval: time.Second, Multiplier: 1, Deadline: time.Millisecond}
	if got := drain(p.NewBackOff(), 10); len(got) != 0 {
		t.Fatalf("expected deadline to stop polling, got %v", got)
	}
}
