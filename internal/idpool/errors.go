package idpool

import "errors"

// Error taxonomy for the ID Block Pool (spec §7).
var (
	// ErrPoolExhausted is returned when the authority is drained or
	// the configured upper bound has been reached. Fatal to the pool.
	ErrPoolExhausted = errors.New("idpool: exhausted")

	// ErrPoolClosed is returned by any call made after Close.
	ErrPoolClosed = errors.New("idpool: closed")

	// ErrPoolTimeout is returned when a background block fetch does
	// not complete within the configured renew timeout.
	ErrPoolTimeout = errors.New("idpool: renew timed out")

	// ErrPoolBackend wraps an authority I/O error. Retryable: the pool
	// remains usable and will retry fetching on the next NextID call.
	ErrPoolBackend = errors.New("idpool: backend error")

	// ErrInterrupted is returned when the caller's context is
	// cancelled while NextID is blocked awaiting block renewal.
	ErrInterrupted = errors.New("idpool: interrupted")
)
