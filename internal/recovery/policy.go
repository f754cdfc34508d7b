package recovery

import (
	"context"
	"math"
	"time"
)

// Default Retry parameters.
const (
	DefaultMaxAttempts = 3
	DefaultBaseDelay   = 1 * time.Second

	// ResetSettleDelay is the fixed pause before a Reset policy clears
	// the boundary, letting the failing producer's teardown settle.
	ResetSettleDelay = 100 * time.Millisecond
)

// Policy decides what the boundary does after a fault is captured.
// The set of variants is closed: None, Retry, Reset and Custom. Policies
// are immutable; all recovery bookkeeping lives on the controller.
type Policy interface {
	policy()
}

// None takes no automatic action. The boundary stays faulted until a
// manual Retry or Reset.
type None struct{}

func (None) policy() {}

// Retry re-runs the producer up to MaxAttempts times, sleeping between
// attempts.
type Retry struct {
	MaxAttempts int
	BaseDelay   time.Duration
	UseBackoff  bool
}

func (Retry) policy() {}

// NewRetry builds a Retry policy, applying defaults for out-of-range
// parameters.
func NewRetry(maxAttempts int, baseDelay time.Duration, useBackoff bool) Retry {
	if maxAttempts < 1 {
		maxAttempts = DefaultMaxAttempts
	}
	if baseDelay <= 0 {
		baseDelay = DefaultBaseDelay
	}
	return Retry{MaxAttempts: maxAttempts, BaseDelay: baseDelay, UseBackoff: useBackoff}
}

// DefaultRetry returns Retry{3 attempts, 1s base delay, backoff on}.
func DefaultRetry() Retry {
	return Retry{MaxAttempts: DefaultMaxAttempts, BaseDelay: DefaultBaseDelay, UseBackoff: true}
}

// Delay computes the sleep before the given attempt (1-indexed):
// BaseDelay * 2^(attempt-1) with backoff, BaseDelay without.
func (p Retry) Delay(attempt int) time.Duration {
	if attempt < 1 {
		attempt = 1
	}
	if !p.UseBackoff {
		return p.BaseDelay
	}
	return time.Duration(float64(p.BaseDelay) * math.Pow(2, float64(attempt-1)))
}

// Reset clears the boundary after ResetSettleDelay and forces the
// producer identity to be recreated, discarding partial state. Reset has
// no attempt ceiling.
type Reset struct{}

func (Reset) policy() {}

// Custom delegates recovery to caller-supplied logic. A true result
// retries; false (or an error, or a panic) leaves the boundary faulted.
type Custom struct {
	Recover func(ctx context.Context) (bool, error)
}

func (Custom) policy() {}

// Name returns the policy's short name for logs and metrics.
func Name(p Policy) string {
	switch p.(type) {
	case None:
		return "none"
	case Retry:
		return "retry"
	case Reset:
		return "reset"
	case Custom:
		return "custom"
	}
	return "none"
}
