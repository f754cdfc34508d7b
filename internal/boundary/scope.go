package boundary

import (
	"context"
	"fmt"
	"runtime/debug"

	"github.com/brahim-guaali/error-boundary/internal/core/domain"
)

// Go runs fn as a task scoped to this boundary. Unhandled failures —
// returned errors and panics alike — are funneled into the boundary's
// capture path with the async-fault classification instead of crashing
// the process. The task's context is canceled when the controller is
// disposed.
func (c *Controller) Go(fn func(ctx context.Context) error) {
	c.mu.Lock()
	if c.disposed {
		c.mu.Unlock()
		return
	}
	c.mu.Unlock()

	go func() {
		defer func() {
			if r := recover(); r != nil {
				_ = c.CaptureFault(c.ctx, fmt.Errorf("task panic: %v", r),
					domain.WithTrace(string(debug.Stack())),
					domain.WithClassification(domain.ClassAsyncFault),
					domain.WithSeverity(domain.SeverityHigh))
			}
		}()
		if err := fn(c.ctx); err != nil && c.ctx.Err() == nil {
			_ = c.CaptureFault(c.ctx, err,
				domain.WithClassification(domain.ClassAsyncFault))
		}
	}()
}
