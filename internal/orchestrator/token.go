package orchestrator

import "sync/atomic"

// CancelToken is the cooperative cancellation flag for one job. It is
// observed at poll-loop boundaries only, never mid-request.
type CancelToken struct {
	flag atomic.Bool
}

// NewCancelToken returns a fresh, uncancelled token.
func NewCancelToken() *CancelToken { return &CancelToken{} }

// Cancel sets the flag. Idempotent.
func (t *CancelToken) Cancel() { t.flag.Store(true) }

// Cancelled reports whether Cancel was called.
func (t *CancelToken) Cancelled() bool { return t.flag.Load() }
