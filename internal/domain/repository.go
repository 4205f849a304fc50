package domain

import "context"

// StatusStore maps job identifiers to their latest known record.
//
// A missing key is the pending state. Terminal writes follow latest-wins,
// and report through WriteOutcome whether they replaced a different value.
type StatusStore interface {
	// MarkPending records a pending marker only when no record exists.
	MarkPending(ctx context.Context, jobID string) error
	Complete(ctx context.Context, jobID, resultURL string) (WriteOutcome, error)
	Fail(ctx context.Context, jobID, kind, message string) (WriteOutcome, error)
	// Get returns ErrNotFound when nothing is stored under jobID.
	Get(ctx context.Context, jobID string) (*Record, error)
	Close() error
}
