package pipeline

import "context"

// CancelToken wraps a context.Context as the cancellation token threaded
// through every analysis stage, satisfying dflow.CancelChecker and every
// other consumed CancelChecker-shaped interface without those packages
// importing context directly.
type CancelToken struct {
	ctx context.Context
}

// NewCancelToken wraps ctx as a CancelToken.
func NewCancelToken(ctx context.Context) *CancelToken { return &CancelToken{ctx: ctx} }

// IsCancelled reports whether the underlying context has been cancelled.
func (c *CancelToken) IsCancelled() bool {
	if c == nil || c.ctx == nil {
		return false
	}
	select {
	case <-c.ctx.Done():
		return true
	default:
		return false
	}
}

// ThrowIfCancelled returns a *Cancelled error for fn if the token fired.
func (c *CancelToken) ThrowIfCancelled(fn string) error {
	if c.IsCancelled() {
		return &Cancelled{Function: fn}
	}
	return nil
}
