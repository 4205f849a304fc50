package domain

import "time"

// JobStatus enumerates job lifecycle states as seen by the status store.
type JobStatus string

const (
	JobStatusPending  JobStatus = "pending"
	JobStatusComplete JobStatus = "complete"
	JobStatusFailed   JobStatus = "failed"
)

// Terminal reports whether the status can no longer change.
func (s JobStatus) Terminal() bool {
	return s == JobStatusComplete || s == JobStatusFailed
}

// Record is the value stored under a job identifier.
type Record struct {
	JobID        string    `json:"job_id"`
	Status       JobStatus `json:"status"`
	ResultURL    string    `json:"result_url,omitempty"`
	ErrorKind    string    `json:"error_kind,omitempty"`
	ErrorMessage string    `json:"error_message,omitempty"`
	UpdatedAt    time.Time `json:"updated_at"`
}

// SameOutcome reports whether two terminal records carry the same result.
// Timestamps are ignored.
func (r Record) SameOutcome(other Record) bool {
	return r.Status == other.Status &&
		r.ResultURL == other.ResultURL &&
		r.ErrorKind == other.ErrorKind &&
		r.ErrorMessage == other.ErrorMessage
}

// WriteOutcome describes what a terminal write did to the store.
type WriteOutcome int

const (
	// Written means no terminal record existed before the write.
	Written WriteOutcome = iota
	// Unchanged means an identical terminal record was already stored.
	Unchanged
	// Overwritten means a different terminal record was replaced.
	Overwritten
)

func (o WriteOutcome) String() string {
	switch o {
	case Unchanged:
		return "unchanged"
	case Overwritten:
		return "overwritten"
	default:
		return "written"
	}
}

// Resolve decides the outcome of writing next over prev. prev may be nil.
func Resolve(prev *Record, next Record) WriteOutcome {
	if prev == nil || !prev.Status.Terminal() {
		return Written
	}
	if prev.SameOutcome(next) {
		return Unchanged
	}
	return Overwritten
}

// Callback is a validated completion notification from the external worker.
type Callback struct {
	JobID        string
	ResultURL    string
	ErrorMessage string
}

// Failed reports whether the worker signalled failure instead of a result.
func (c Callback) Failed() bool {
	return c.ResultURL == "" && c.ErrorMessage != ""
}

// PollResult is the tagged view returned to pollers.
type PollResult struct {
	Status JobStatus
	// Known is false when no record exists for the identifier. Pollers still
	// treat that as pending.
	Known        bool
	ResultURL    string
	ErrorKind    string
	ErrorMessage string
}
