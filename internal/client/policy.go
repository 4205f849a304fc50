package client

import (
	"time"

	"github.com/cenkalti/backoff/v4"
)

// PollPolicy bounds how often and for how long a job is polled.
type PollPolicy struct {
	InitialInterval time.Duration
	MaxInterval     time.Duration
	Multiplier      float64
	Jitter          float64
	// MaxAttempts caps the number of polls. Zero means no cap.
	MaxAttempts int
	// Deadline caps the wall clock spent polling. Zero means no cap.
	Deadline time.Duration
}

// DefaultPollPolicy starts at five seconds, backs off to thirty and gives
// up after five minutes.
func DefaultPollPolicy() PollPolicy {
	return PollPolicy{
		InitialInterval: 5 * time.Second,
		MaxInterval:     30 * time.Second,
		Multiplier:      1.5,
		Jitter:          0.1,
		MaxAttempts:     30,
		Deadline:        5 * time.Minute,
	}
}

// NewBackOff returns a fresh schedule for one job. At least one of
// MaxAttempts or Deadline should be set or polling never gives up.
func (p PollPolicy) NewBackOff() backoff.BackOff {
	def := DefaultPollPolicy()
	b := backoff.NewExponentialBackOff()
	b.InitialInterval = p.InitialInterval
	if b.InitialInterval <= 0 {
		b.InitialInterval = def.InitialInterval
	}
	b.MaxInterval = p.MaxInterval
	if b.MaxInterval < b.InitialInterval {
		b.MaxInterval = b.InitialInterval
	}
	b.Multiplier = p.Multiplier
	if b.Multiplier < 1 {
		b.Multiplier = 1
	}
	b.RandomizationFactor = p.Jitter
	if b.RandomizationFactor < 0 || b.RandomizationFactor >= 1 {
		b.RandomizationFactor = 0
	}
	b.MaxElapsedTime = p.Deadline
	b.Reset()

	switch {
	case p.MaxAttempts == 1:
		return &backoff.StopBackOff{}
	case p.MaxAttempts > 1:
		// The first poll is not a retry.
		return backoff.WithMaxRetries(b, uint64(p.MaxAttempts-1))
	}
	return b
}
