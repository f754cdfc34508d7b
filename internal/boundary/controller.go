// Package boundary implements the error-boundary control core: a state
// machine that captures faults raised by a re-executable producer,
// reports them, and drives a configurable recovery policy.
package boundary

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/brahim-guaali/error-boundary/internal/core/domain"
	"github.com/brahim-guaali/error-boundary/internal/metrics"
	"github.com/brahim-guaali/error-boundary/internal/recovery"
	"github.com/brahim-guaali/error-boundary/internal/report"
)

// Options configures a Controller.
type Options struct {
	// Name identifies the boundary in logs, metrics and record sources.
	Name string

	// Policy drives automatic recovery. Defaults to recovery.None.
	Policy recovery.Policy

	// Reporter receives every captured record. Usually a *report.Group.
	Reporter report.Reporter

	// Classifier infers a classification when the capturer supplies
	// none. Defaults to recovery.DefaultClassifier.
	Classifier recovery.Classifier

	// ShouldEscalate decides whether CaptureFault re-raises the original
	// fault to its caller after local containment.
	ShouldEscalate func(err error) bool

	// OnError is invoked synchronously for every captured record.
	OnError func(record *domain.Record)

	// OnStateChange is invoked after a transition back to healthy. The
	// host reads Generation to decide between re-executing the producer
	// (retry) and recreating it (reset).
	OnStateChange func()

	Logger *slog.Logger
}

// Controller owns the error state of one boundary. All state mutations
// are serialized under a single mutex; transitions are totally ordered.
type Controller struct {
	name           string
	policy         recovery.Policy
	reporter       report.Reporter
	classify       recovery.Classifier
	shouldEscalate func(error) bool
	onError        func(*domain.Record)
	onStateChange  func()
	log            *slog.Logger

	// sleep is replaced in tests to avoid real delays.
	sleep func(ctx context.Context, d time.Duration) error

	ctx         context.Context
	cancel      context.CancelFunc
	restoreHook func()

	mu                 sync.Mutex
	currentError       *domain.Record
	attemptCount       int
	recoveryInProgress bool
	generation         uint64
	pendingCancel      context.CancelFunc
	disposed           bool

	// faultSeq identifies the faulted episode a pending recovery belongs
	// to. Manual Retry/Reset and Dispose advance it; a recovery goroutine
	// waking with a stale seq must not touch controller state, which by
	// then belongs to a newer fault.
	faultSeq uint64
}

// transitionKind selects the state change a completed recovery applies.
type transitionKind int

const (
	transitionRetry transitionKind = iota
	transitionReset
)

// New creates a controller and installs its async-fault sink. The
// caller must Dispose the controller to restore the previous sink.
func New(opts Options) *Controller {
	if opts.Policy == nil {
		opts.Policy = recovery.None{}
	}
	if opts.Classifier == nil {
		opts.Classifier = recovery.DefaultClassifier()
	}
	if opts.Logger == nil {
		opts.Logger = slog.Default()
	}

	ctx, cancel := context.WithCancel(context.Background())
	c := &Controller{
		name:           opts.Name,
		policy:         opts.Policy,
		reporter:       opts.Reporter,
		classify:       opts.Classifier,
		shouldEscalate: opts.ShouldEscalate,
		onError:        opts.OnError,
		onStateChange:  opts.OnStateChange,
		log:            opts.Logger.With("boundary", opts.Name),
		sleep:          sleepCtx,
		ctx:            ctx,
		cancel:         cancel,
	}
	c.restoreHook = installSink(c.asyncSink)
	metrics.BoundaryFaulted.WithLabelValues(c.name).Set(0)
	return c
}

// Name returns the boundary name.
func (c *Controller) Name() string { return c.name }

// HasError reports whether the boundary is faulted.
func (c *Controller) HasError() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.currentError != nil
}

// CurrentError returns the latest captured record, or nil when healthy.
func (c *Controller) CurrentError() *domain.Record {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.currentError
}

// AttemptCount returns the number of retries performed since the last
// reset.
func (c *Controller) AttemptCount() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.attemptCount
}

// Generation returns the producer identity token. The host constructs a
// fresh producer whenever the token changes.
func (c *Controller) Generation() uint64 {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.generation
}

// RecoveryInProgress reports whether a recovery attempt is in flight.
func (c *Controller) RecoveryInProgress() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.recoveryInProgress
}

// CaptureFault captures a fault and transitions the boundary to the
// faulted state. The record is built synchronously and the OnError
// callback runs before return; reporter fan-out and recovery evaluation
// run asynchronously, with the reporter group awaited before recovery
// begins. A capture while already faulted overwrites the stored record
// (last-writer-wins) without starting a second recovery.
//
// When ShouldEscalate returns true for the fault, CaptureFault returns
// the original fault so the enclosing context can re-raise it; local
// containment happens regardless. Capturing on a disposed controller is
// a no-op.
func (c *Controller) CaptureFault(ctx context.Context, fault error, opts ...domain.RecordOption) error {
	if fault == nil {
		return nil
	}

	c.mu.Lock()
	if c.disposed {
		c.mu.Unlock()
		return nil
	}
	recOpts := make([]domain.RecordOption, 0, len(opts)+1)
	recOpts = append(recOpts, domain.WithSource(c.name))
	recOpts = append(recOpts, opts...)
	rec := domain.NewRecord(fault, recOpts...)
	if rec.Classification == domain.ClassUnknown {
		rec = rec.With(domain.WithClassification(c.classify(fault)))
	}
	c.currentError = rec
	c.mu.Unlock()

	metrics.FaultsCaptured.WithLabelValues(c.name, string(rec.Classification), string(rec.Severity)).Inc()
	metrics.BoundaryFaulted.WithLabelValues(c.name).Set(1)
	c.log.Warn("Fault captured",
		"record_id", rec.ID,
		"classification", rec.Classification,
		"severity", rec.Severity,
		"error", fault)

	if c.onError != nil {
		c.onError(rec)
	}

	go c.reportAndRecover(rec)

	if c.shouldEscalate != nil && c.shouldEscalate(fault) {
		return fault
	}
	return nil
}

// TriggerError is the manual fault-injection entry point. It routes
// through the identical capture path as a naturally observed fault.
func (c *Controller) TriggerError(fault error, trace string) error {
	return c.CaptureFault(context.Background(), fault, domain.WithTrace(trace))
}

// Retry clears the current error without changing the producer
// identity. A producer that deterministically fails will fault again
// immediately. No-op when healthy or disposed.
func (c *Controller) Retry() {
	c.mu.Lock()
	if c.disposed || c.currentError == nil {
		c.mu.Unlock()
		return
	}
	c.abandonPendingLocked()
	c.faultSeq++
	c.currentError = nil
	c.attemptCount++
	c.recoveryInProgress = false
	c.mu.Unlock()

	metrics.BoundaryFaulted.WithLabelValues(c.name).Set(0)
	c.log.Info("Boundary retried", "attempt", c.AttemptCount())
	c.notifyStateChange()
}

// Reset clears the current error, zeroes the attempt count and advances
// the producer generation so the host recreates the producer from
// scratch. No-op when healthy or disposed.
func (c *Controller) Reset() {
	c.mu.Lock()
	if c.disposed || c.currentError == nil {
		c.mu.Unlock()
		return
	}
	c.abandonPendingLocked()
	c.faultSeq++
	c.currentError = nil
	c.attemptCount = 0
	c.recoveryInProgress = false
	c.generation++
	gen := c.generation
	c.mu.Unlock()

	metrics.BoundaryFaulted.WithLabelValues(c.name).Set(0)
	c.log.Info("Boundary reset", "generation", gen)
	c.notifyStateChange()
}

// Dispose tears the controller down: pending recoveries are abandoned
// and the previously installed async-fault sink is restored. All
// operations on a disposed controller are no-ops. Idempotent.
func (c *Controller) Dispose() {
	c.mu.Lock()
	if c.disposed {
		c.mu.Unlock()
		return
	}
	c.disposed = true
	c.abandonPendingLocked()
	c.faultSeq++
	c.recoveryInProgress = false
	c.mu.Unlock()

	c.cancel()
	if c.restoreHook != nil {
		c.restoreHook()
	}
	metrics.BoundaryFaulted.DeleteLabelValues(c.name)
	c.log.Debug("Boundary disposed")
}

// reportAndRecover awaits the reporter fan-out for the record, then
// evaluates the recovery policy. Reporting and recovery are ordered:
// report first, recover after.
func (c *Controller) reportAndRecover(rec *domain.Record) {
	if c.reporter != nil {
		// Group.Report never returns an error; a lone reporter that
		// does is contained here.
		_ = c.reporter.Report(c.ctx, rec)
	}
	c.evaluateRecovery()
}

// evaluateRecovery runs the active policy. Single-flight: a capture
// arriving while a recovery is pending updates the record only.
func (c *Controller) evaluateRecovery() {
	c.mu.Lock()
	if c.disposed || c.currentError == nil || c.recoveryInProgress {
		c.mu.Unlock()
		return
	}

	switch p := c.policy.(type) {
	case recovery.None:
		c.mu.Unlock()

	case recovery.Retry:
		if c.attemptCount >= p.MaxAttempts {
			c.mu.Unlock()
			metrics.Recoveries.WithLabelValues(c.name, recovery.Name(p), metrics.OutcomeExhausted).Inc()
			c.log.Warn("Retry attempts exhausted", "max_attempts", p.MaxAttempts)
			return
		}
		delay := p.Delay(c.attemptCount + 1)
		sctx, seq := c.beginRecoveryLocked()
		c.mu.Unlock()

		metrics.RecoveryDelay.WithLabelValues(c.name, recovery.Name(p)).Observe(delay.Seconds())
		if err := c.sleep(sctx, delay); err != nil {
			c.abandonRecovery(seq, recovery.Name(p), metrics.OutcomeStale)
			return
		}
		c.finishRecovery(seq, transitionRetry, recovery.Name(p))

	case recovery.Reset:
		sctx, seq := c.beginRecoveryLocked()
		c.mu.Unlock()

		metrics.RecoveryDelay.WithLabelValues(c.name, recovery.Name(p)).Observe(recovery.ResetSettleDelay.Seconds())
		if err := c.sleep(sctx, recovery.ResetSettleDelay); err != nil {
			c.abandonRecovery(seq, recovery.Name(p), metrics.OutcomeStale)
			return
		}
		c.finishRecovery(seq, transitionReset, recovery.Name(p))

	case recovery.Custom:
		sctx, seq := c.beginRecoveryLocked()
		c.mu.Unlock()

		if c.runCustom(sctx, p) {
			c.finishRecovery(seq, transitionRetry, recovery.Name(p))
		} else {
			c.abandonRecovery(seq, recovery.Name(p), metrics.OutcomeDeclined)
		}
	}
}

// beginRecoveryLocked marks a recovery in flight and returns a context
// that manual Retry/Reset/Dispose can cancel to abandon it, plus the
// fault sequence the recovery belongs to.
func (c *Controller) beginRecoveryLocked() (context.Context, uint64) {
	c.recoveryInProgress = true
	sctx, cancel := context.WithCancel(c.ctx)
	c.pendingCancel = cancel
	return sctx, c.faultSeq
}

// finishRecovery applies the scheduled transition unless the boundary
// moved on while the recovery was suspended (disposed, or a manual
// retry/reset already cleared the fault). A stale completion no-ops
// entirely: pendingCancel and recoveryInProgress belong to whatever
// recovery superseded this one.
func (c *Controller) finishRecovery(seq uint64, kind transitionKind, policyName string) {
	c.mu.Lock()
	if c.faultSeq != seq {
		c.mu.Unlock()
		metrics.Recoveries.WithLabelValues(c.name, policyName, metrics.OutcomeStale).Inc()
		return
	}
	c.abandonPendingLocked()
	c.recoveryInProgress = false
	if c.disposed || c.currentError == nil {
		c.mu.Unlock()
		metrics.Recoveries.WithLabelValues(c.name, policyName, metrics.OutcomeStale).Inc()
		return
	}

	var outcome string
	switch kind {
	case transitionRetry:
		c.currentError = nil
		c.attemptCount++
		outcome = metrics.OutcomeRetried
	case transitionReset:
		c.currentError = nil
		c.attemptCount = 0
		c.generation++
		outcome = metrics.OutcomeReset
	}
	c.mu.Unlock()

	metrics.BoundaryFaulted.WithLabelValues(c.name).Set(0)
	metrics.Recoveries.WithLabelValues(c.name, policyName, outcome).Inc()
	c.log.Info("Recovery applied", "policy", policyName, "outcome", outcome)
	c.notifyStateChange()
}

// runCustom executes caller-supplied recovery logic. Errors and panics
// count as a declined recovery, never as a controller failure.
func (c *Controller) runCustom(ctx context.Context, p recovery.Custom) (ok bool) {
	defer func() {
		if r := recover(); r != nil {
			c.log.Warn("Custom recovery panicked", "panic", r)
			ok = false
		}
	}()
	if p.Recover == nil {
		return false
	}
	ok, err := p.Recover(ctx)
	if err != nil {
		c.log.Warn("Custom recovery failed", "error", err)
		return false
	}
	return ok
}

// abandonRecovery releases the single-flight slot after a cancelled or
// declined recovery. Like finishRecovery it is guarded by the fault
// sequence: a goroutine cancelled by Retry/Reset cleans up only its own
// episode, never the recovery scheduled for a later fault.
func (c *Controller) abandonRecovery(seq uint64, policyName, outcome string) {
	c.mu.Lock()
	if c.faultSeq != seq {
		c.mu.Unlock()
		metrics.Recoveries.WithLabelValues(c.name, policyName, metrics.OutcomeStale).Inc()
		return
	}
	c.abandonPendingLocked()
	c.recoveryInProgress = false
	c.mu.Unlock()
	metrics.Recoveries.WithLabelValues(c.name, policyName, outcome).Inc()
}

func (c *Controller) abandonPendingLocked() {
	if c.pendingCancel != nil {
		c.pendingCancel()
		c.pendingCancel = nil
	}
}

func (c *Controller) notifyStateChange() {
	if c.onStateChange != nil {
		c.onStateChange()
	}
}

// asyncSink receives faults arriving outside the producer's synchronous
// execution path. They follow the identical capture path, tagged with
// the async classification. Escalation does not apply: there is no
// synchronous caller to re-raise to.
func (c *Controller) asyncSink(fault error, trace string) {
	_ = c.CaptureFault(c.ctx, fault,
		domain.WithTrace(trace),
		domain.WithClassification(domain.ClassAsyncFault))
}

func sleepCtx(ctx context.Context, d time.Duration) error {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}
