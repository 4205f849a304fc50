package domain

import "errors"

var (
	ErrNotFound            = errors.New("not found")
	ErrInvalidPrompt       = errors.New("invalid prompt")
	ErrUpstreamUnavailable = errors.New("upstream unavailable")
	ErrMalformedCallback   = errors.New("malformed callback")
	ErrStoreUnavailable    = errors.New("store unavailable")
)

// Error kinds exposed on the wire.
const (
	KindUpstreamUnavailable = "upstream_unavailable"
	KindMalformedCallback   = "malformed_callback"
	KindStoreUnavailable    = "store_unavailable"
	KindWorkerFailed        = "worker_failed"
	KindBadRequest          = "bad_request"
)
