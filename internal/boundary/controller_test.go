package boundary

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/brahim-guaali/error-boundary/internal/core/domain"
	"github.com/brahim-guaali/error-boundary/internal/recovery"
)

// =============================================================================
// Test Helpers
// =============================================================================

type mockReporter struct {
	mu      sync.Mutex
	records []*domain.Record
	userID  string
	keys    map[string]any
}

func newMockReporter() *mockReporter {
	return &mockReporter{keys: make(map[string]any)}
}

func (m *mockReporter) Report(ctx context.Context, record *domain.Record) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.records = append(m.records, record)
	return nil
}

func (m *mockReporter) SetUserIdentifier(id string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.userID = id
}

func (m *mockReporter) SetCustomKey(key string, value any) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if value == nil {
		delete(m.keys, key)
		return
	}
	m.keys[key] = value
}

func (m *mockReporter) Close() error { return nil }

func (m *mockReporter) count() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.records)
}

func (m *mockReporter) last() *domain.Record {
	m.mu.Lock()
	defer m.mu.Unlock()
	if len(m.records) == 0 {
		return nil
	}
	return m.records[len(m.records)-1]
}

// fakeSleeper records requested delays and returns immediately.
type fakeSleeper struct {
	mu     sync.Mutex
	delays []time.Duration
}

func (f *fakeSleeper) sleep(ctx context.Context, d time.Duration) error {
	f.mu.Lock()
	f.delays = append(f.delays, d)
	f.mu.Unlock()
	select {
	case <-ctx.Done():
		return ctx.Err()
	default:
		return nil
	}
}

func (f *fakeSleeper) recorded() []time.Duration {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := make([]time.Duration, len(f.delays))
	copy(out, f.delays)
	return out
}

// blockingSleeper holds recoveries until released, honoring cancellation.
type blockingSleeper struct {
	entered chan struct{}
	release chan struct{}
}

func newBlockingSleeper() *blockingSleeper {
	return &blockingSleeper{
		entered: make(chan struct{}, 16),
		release: make(chan struct{}),
	}
}

func (b *blockingSleeper) sleep(ctx context.Context, d time.Duration) error {
	b.entered <- struct{}{}
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-b.release:
		return nil
	}
}

// stagedSleeper is a blockingSleeper that additionally parks a
// cancelled sleep until told to proceed, so tests can order a stale
// goroutine's cleanup relative to a newer recovery.
type stagedSleeper struct {
	entered   chan struct{}
	release   chan struct{}
	cancelled chan struct{}
}

func newStagedSleeper() *stagedSleeper {
	return &stagedSleeper{
		entered:   make(chan struct{}, 16),
		release:   make(chan struct{}),
		cancelled: make(chan struct{}),
	}
}

func (s *stagedSleeper) sleep(ctx context.Context, d time.Duration) error {
	s.entered <- struct{}{}
	select {
	case <-ctx.Done():
		<-s.cancelled
		return ctx.Err()
	case <-s.release:
		return nil
	}
}

func waitFor(t *testing.T, cond func() bool, msg string) {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		if cond() {
			return
		}
		time.Sleep(5 * time.Millisecond)
	}
	t.Fatal(msg)
}

// =============================================================================
// Capture / State Transitions
// =============================================================================

func TestCaptureFault_TransitionsToFaulted(t *testing.T) {
	rep := newMockReporter()
	c := New(Options{Name: "test", Reporter: rep})
	defer c.Dispose()

	fault := errors.New("boom")
	if err := c.CaptureFault(context.Background(), fault); err != nil {
		t.Fatalf("CaptureFault returned %v without escalation configured", err)
	}

	if !c.HasError() {
		t.Fatal("expected boundary to be faulted")
	}
	rec := c.CurrentError()
	if rec == nil || rec.Fault != fault {
		t.Fatalf("expected current error to hold the fault, got %+v", rec)
	}
	if rec.Source != "test" {
		t.Errorf("expected source 'test', got %q", rec.Source)
	}

	waitFor(t, func() bool { return rep.count() == 1 }, "reporter never invoked")
}

func TestCaptureFault_NilFaultIsNoop(t *testing.T) {
	c := New(Options{Name: "test"})
	defer c.Dispose()

	if err := c.CaptureFault(context.Background(), nil); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if c.HasError() {
		t.Error("nil fault should not transition the boundary")
	}
}

func TestCaptureFault_OnErrorRunsSynchronously(t *testing.T) {
	var got *domain.Record
	c := New(Options{
		Name:    "test",
		OnError: func(r *domain.Record) { got = r },
	})
	defer c.Dispose()

	_ = c.CaptureFault(context.Background(), errors.New("boom"))
	if got == nil {
		t.Fatal("OnError callback not invoked before CaptureFault returned")
	}
}

func TestCaptureFault_ReentrantOverwritesLastWriterWins(t *testing.T) {
	c := New(Options{Name: "test"})
	defer c.Dispose()

	first := errors.New("first")
	second := errors.New("second")
	_ = c.CaptureFault(context.Background(), first)
	_ = c.CaptureFault(context.Background(), second)

	rec := c.CurrentError()
	if rec.Fault != second {
		t.Errorf("expected last-writer-wins, got %v", rec.Fault)
	}
}

func TestCaptureFault_Escalation(t *testing.T) {
	fault := errors.New("fatal")
	c := New(Options{
		Name:           "test",
		ShouldEscalate: func(err error) bool { return err == fault },
	})
	defer c.Dispose()

	if err := c.CaptureFault(context.Background(), fault); err != fault {
		t.Fatalf("expected original fault to escalate, got %v", err)
	}
	// Local containment happened regardless
	if !c.HasError() {
		t.Error("escalated fault must still be contained locally")
	}

	if err := c.CaptureFault(context.Background(), errors.New("minor")); err != nil {
		t.Errorf("non-matching fault should not escalate, got %v", err)
	}
}

func TestTriggerError_RoutesThroughCapturePath(t *testing.T) {
	rep := newMockReporter()
	var callbackRan bool
	c := New(Options{
		Name:     "test",
		Reporter: rep,
		OnError:  func(*domain.Record) { callbackRan = true },
	})
	defer c.Dispose()

	_ = c.TriggerError(errors.New("manual injection"), "stack here")

	if !c.HasError() {
		t.Fatal("expected faulted state")
	}
	if !callbackRan {
		t.Error("user callback skipped on manual trigger")
	}
	if trace := c.CurrentError().Trace; trace != "stack here" {
		t.Errorf("expected trace preserved, got %q", trace)
	}
	waitFor(t, func() bool { return rep.count() == 1 }, "manual trigger bypassed reporting")
}

func TestClassification_InferenceAndExplicit(t *testing.T) {
	c := New(Options{Name: "test"})
	defer c.Dispose()

	_ = c.CaptureFault(context.Background(), errors.New("render overflow in row 3"))
	if got := c.CurrentError().Classification; got != domain.ClassRendering {
		t.Errorf("expected rendering classification, got %s", got)
	}

	_ = c.CaptureFault(context.Background(), errors.New("render overflow"),
		domain.WithClassification(domain.ClassExternal))
	if got := c.CurrentError().Classification; got != domain.ClassExternal {
		t.Errorf("explicit classification must win, got %s", got)
	}

	_ = c.CaptureFault(context.Background(), errors.New("misc failure"))
	if got := c.CurrentError().Classification; got != domain.ClassRuntime {
		t.Errorf("expected runtime fallback, got %s", got)
	}
}

// =============================================================================
// Retry / Reset Semantics
// =============================================================================

func TestRetry_ClearsErrorKeepsGeneration(t *testing.T) {
	c := New(Options{Name: "test"})
	defer c.Dispose()

	genBefore := c.Generation()
	_ = c.CaptureFault(context.Background(), errors.New("boom"))
	c.Retry()

	if c.HasError() {
		t.Error("retry should clear the error")
	}
	if c.AttemptCount() != 1 {
		t.Errorf("expected attempt count 1, got %d", c.AttemptCount())
	}
	if c.Generation() != genBefore {
		t.Error("retry must not change producer generation")
	}
}

func TestReset_ClearsErrorZeroesAttemptsBumpsGeneration(t *testing.T) {
	var changes int
	c := New(Options{Name: "test", OnStateChange: func() { changes++ }})
	defer c.Dispose()

	_ = c.CaptureFault(context.Background(), errors.New("boom"))
	c.Retry()
	_ = c.CaptureFault(context.Background(), errors.New("boom again"))

	genBefore := c.Generation()
	c.Reset()

	if c.HasError() {
		t.Error("reset should clear the error")
	}
	if c.AttemptCount() != 0 {
		t.Errorf("expected attempt count 0, got %d", c.AttemptCount())
	}
	if c.Generation() != genBefore+1 {
		t.Error("reset must advance producer generation")
	}
	if changes != 2 {
		t.Errorf("expected 2 state change notifications, got %d", changes)
	}
}

func TestReset_IdempotentFromHealthy(t *testing.T) {
	c := New(Options{Name: "test"})
	defer c.Dispose()

	_ = c.CaptureFault(context.Background(), errors.New("boom"))
	c.Reset()
	gen := c.Generation()

	c.Reset() // second reset from healthy is a no-op
	if c.Generation() != gen {
		t.Error("reset from healthy must not change generation")
	}
}

// =============================================================================
// Recovery Policies
// =============================================================================

// Scenario: Retry(3, 1s, backoff) against a producer that always fails.
// Expect scheduled delays of 1s, 2s, 4s, then permanent faulted state.
func TestRecovery_RetryExhaustionWithBackoff(t *testing.T) {
	fs := &fakeSleeper{}
	var c *Controller
	c = New(Options{
		Name:   "always-fails",
		Policy: recovery.Retry{MaxAttempts: 3, BaseDelay: 1 * time.Second, UseBackoff: true},
		// The producer deterministically fails again on every re-execution.
		OnStateChange: func() {
			_ = c.TriggerError(errors.New("still failing"), "")
		},
	})
	defer c.Dispose()
	c.sleep = fs.sleep

	_ = c.TriggerError(errors.New("initial failure"), "")

	waitFor(t, func() bool {
		return c.AttemptCount() == 3 && c.HasError() && !c.RecoveryInProgress()
	}, "retry sequence did not complete")

	// No further recovery scheduled after exhaustion.
	time.Sleep(50 * time.Millisecond)
	delays := fs.recorded()
	if len(delays) != 3 {
		t.Fatalf("expected exactly 3 scheduled retries, got %d (%v)", len(delays), delays)
	}
	want := []time.Duration{1 * time.Second, 2 * time.Second, 4 * time.Second}
	for i, d := range want {
		if delays[i] != d {
			t.Errorf("delay %d: expected %v, got %v", i+1, d, delays[i])
		}
	}
	if !c.HasError() {
		t.Error("boundary must stay faulted after exhausting attempts")
	}
}

func TestRecovery_RetryWithoutBackoffUsesConstantDelay(t *testing.T) {
	fs := &fakeSleeper{}
	var c *Controller
	c = New(Options{
		Name:   "flat-delay",
		Policy: recovery.Retry{MaxAttempts: 2, BaseDelay: 1 * time.Second, UseBackoff: false},
		OnStateChange: func() {
			_ = c.TriggerError(errors.New("still failing"), "")
		},
	})
	defer c.Dispose()
	c.sleep = fs.sleep

	_ = c.TriggerError(errors.New("initial"), "")

	waitFor(t, func() bool {
		return c.AttemptCount() == 2 && !c.RecoveryInProgress()
	}, "retries did not run")

	for i, d := range fs.recorded() {
		if d != 1*time.Second {
			t.Errorf("delay %d: expected constant 1s, got %v", i+1, d)
		}
	}
}

func TestRecovery_ResetPolicyRecreatesProducer(t *testing.T) {
	fs := &fakeSleeper{}
	c := New(Options{
		Name:   "resetting",
		Policy: recovery.Reset{},
	})
	defer c.Dispose()
	c.sleep = fs.sleep

	genBefore := c.Generation()
	_ = c.CaptureFault(context.Background(), errors.New("corrupted state"))

	waitFor(t, func() bool {
		return !c.HasError() && c.Generation() == genBefore+1
	}, "reset recovery did not run")

	if c.AttemptCount() != 0 {
		t.Errorf("reset must zero attempt count, got %d", c.AttemptCount())
	}
	delays := fs.recorded()
	if len(delays) != 1 || delays[0] != recovery.ResetSettleDelay {
		t.Errorf("expected one settle delay of %v, got %v", recovery.ResetSettleDelay, delays)
	}
}

func TestRecovery_CustomTrueRetries(t *testing.T) {
	c := New(Options{
		Name: "custom-ok",
		Policy: recovery.Custom{
			Recover: func(ctx context.Context) (bool, error) { return true, nil },
		},
	})
	defer c.Dispose()

	_ = c.CaptureFault(context.Background(), errors.New("boom"))

	waitFor(t, func() bool {
		return !c.HasError() && c.AttemptCount() == 1
	}, "custom recovery did not retry")
}

func TestRecovery_CustomFalseStaysFaulted(t *testing.T) {
	ran := make(chan struct{}, 1)
	c := New(Options{
		Name: "custom-declined",
		Policy: recovery.Custom{
			Recover: func(ctx context.Context) (bool, error) {
				ran <- struct{}{}
				return false, nil
			},
		},
	})
	defer c.Dispose()

	_ = c.CaptureFault(context.Background(), errors.New("boom"))
	<-ran

	waitFor(t, func() bool { return !c.RecoveryInProgress() }, "recovery flag stuck")
	if !c.HasError() {
		t.Error("declined custom recovery must leave the boundary faulted")
	}
}

func TestRecovery_CustomPanicTreatedAsDeclined(t *testing.T) {
	c := New(Options{
		Name: "custom-panics",
		Policy: recovery.Custom{
			Recover: func(ctx context.Context) (bool, error) { panic("recovery bug") },
		},
	})
	defer c.Dispose()

	_ = c.CaptureFault(context.Background(), errors.New("boom"))

	waitFor(t, func() bool { return !c.RecoveryInProgress() }, "panicking recovery wedged the controller")
	if !c.HasError() {
		t.Error("panicking custom recovery must not clear the error")
	}
}

// Scenario: triggerError with policy None stays faulted until manual retry.
func TestRecovery_NonePolicyWaitsForManualIntervention(t *testing.T) {
	c := New(Options{Name: "manual-only", Policy: recovery.None{}})
	defer c.Dispose()

	_ = c.TriggerError(errors.New("boom"), "")

	time.Sleep(50 * time.Millisecond)
	if !c.HasError() || c.RecoveryInProgress() {
		t.Fatal("None policy must leave the boundary faulted with no recovery in flight")
	}

	c.Retry()
	if c.HasError() {
		t.Error("manual retry should clear the error")
	}
}

// =============================================================================
// Cancellation / Staleness / Disposal
// =============================================================================

func TestRecovery_AbandonedByManualReset(t *testing.T) {
	bs := newBlockingSleeper()
	c := New(Options{
		Name:   "raced",
		Policy: recovery.Retry{MaxAttempts: 3, BaseDelay: 1 * time.Second, UseBackoff: true},
	})
	defer c.Dispose()
	c.sleep = bs.sleep

	_ = c.CaptureFault(context.Background(), errors.New("boom"))
	<-bs.entered // recovery is now sleeping

	c.Reset()
	genAfter := c.Generation()

	waitFor(t, func() bool { return !c.RecoveryInProgress() }, "abandoned recovery never released")

	// The stale recovery must not apply a retry on top of the reset.
	time.Sleep(50 * time.Millisecond)
	if c.HasError() {
		t.Error("boundary should remain healthy after reset")
	}
	if c.AttemptCount() != 0 {
		t.Errorf("stale retry leaked into attempt count: %d", c.AttemptCount())
	}
	if c.Generation() != genAfter {
		t.Error("stale recovery changed the generation")
	}
}

// Scenario: a recovery is cancelled by a manual retry, a new fault
// arrives and schedules its own recovery, and only then does the
// cancelled goroutine get to run its cleanup. The cleanup must leave
// the newer recovery untouched instead of cancelling it and dropping
// the single-flight slot.
func TestRecovery_StaleCleanupDoesNotCancelNewerRecovery(t *testing.T) {
	ss := newStagedSleeper()
	c := New(Options{
		Name:   "overlapping",
		Policy: recovery.Retry{MaxAttempts: 5, BaseDelay: 1 * time.Second, UseBackoff: false},
	})
	defer c.Dispose()
	c.sleep = ss.sleep

	_ = c.CaptureFault(context.Background(), errors.New("first"))
	<-ss.entered // first recovery is sleeping

	c.Retry() // cancels it; cleanup is parked on the cancelled gate

	_ = c.CaptureFault(context.Background(), errors.New("second"))
	<-ss.entered // second recovery is sleeping

	// Let the first goroutine run its cleanup now, while the second
	// recovery is in flight.
	ss.cancelled <- struct{}{}

	time.Sleep(50 * time.Millisecond)
	if !c.RecoveryInProgress() {
		t.Fatal("stale cleanup released the in-flight recovery")
	}
	if !c.HasError() {
		t.Fatal("boundary should still be faulted while the recovery sleeps")
	}

	close(ss.release)
	waitFor(t, func() bool { return !c.HasError() }, "second recovery never completed")
	if c.AttemptCount() != 2 {
		t.Errorf("expected manual retry + one recovered retry, got %d attempts", c.AttemptCount())
	}
}

// Scenario: the recovery timer fires at the same moment a manual retry
// cancels it, and a new fault is captured before the completion runs.
// The completion belongs to the old fault and must not apply its
// transition to the new one.
func TestRecovery_StaleCompletionLeavesNewerFaultIntact(t *testing.T) {
	c := New(Options{Name: "stale-finish", Policy: recovery.None{}})
	defer c.Dispose()

	_ = c.CaptureFault(context.Background(), errors.New("first"))
	c.mu.Lock()
	staleSeq := c.faultSeq
	c.mu.Unlock()

	c.Retry()
	second := errors.New("second")
	_ = c.CaptureFault(context.Background(), second)

	c.finishRecovery(staleSeq, transitionRetry, recovery.Name(recovery.Retry{}))

	if !c.HasError() {
		t.Fatal("stale completion cleared a fault it did not recover")
	}
	if c.CurrentError().Fault != second {
		t.Errorf("expected the newer fault to survive, got %v", c.CurrentError().Fault)
	}
	if c.AttemptCount() != 1 {
		t.Errorf("stale completion leaked into attempt count: %d", c.AttemptCount())
	}
}

func TestRecovery_CaptureWhilePendingDoesNotDoubleUp(t *testing.T) {
	bs := newBlockingSleeper()
	c := New(Options{
		Name:   "single-flight",
		Policy: recovery.Retry{MaxAttempts: 5, BaseDelay: 1 * time.Second, UseBackoff: false},
	})
	defer c.Dispose()
	c.sleep = bs.sleep

	_ = c.CaptureFault(context.Background(), errors.New("first"))
	<-bs.entered

	// New fault while the recovery sleeps: updates the record only.
	second := errors.New("second")
	_ = c.CaptureFault(context.Background(), second)
	if c.CurrentError().Fault != second {
		t.Fatal("expected last-writer-wins while recovery pending")
	}

	select {
	case <-bs.entered:
		t.Fatal("second recovery started while one was pending")
	case <-time.After(50 * time.Millisecond):
	}

	close(bs.release)
	waitFor(t, func() bool { return !c.HasError() }, "pending recovery never completed")
	if c.AttemptCount() != 1 {
		t.Errorf("expected a single retry, got %d", c.AttemptCount())
	}
}

func TestDispose_MakesAllOperationsNoops(t *testing.T) {
	c := New(Options{Name: "disposed"})
	c.Dispose()
	c.Dispose() // idempotent

	if err := c.CaptureFault(context.Background(), errors.New("late")); err != nil {
		t.Errorf("capture after dispose must not error, got %v", err)
	}
	if c.HasError() {
		t.Error("capture after dispose must not resurrect the controller")
	}
	c.Retry()
	c.Reset()
	if c.Generation() != 0 || c.AttemptCount() != 0 {
		t.Error("operations after dispose must not mutate state")
	}
}

func TestDispose_AbandonsPendingRecovery(t *testing.T) {
	bs := newBlockingSleeper()
	c := New(Options{
		Name:   "disposed-midflight",
		Policy: recovery.Retry{MaxAttempts: 3, BaseDelay: 1 * time.Second, UseBackoff: true},
	})
	c.sleep = bs.sleep

	_ = c.CaptureFault(context.Background(), errors.New("boom"))
	<-bs.entered

	c.Dispose()

	waitFor(t, func() bool { return !c.RecoveryInProgress() }, "pending recovery not released on dispose")
	if c.AttemptCount() != 0 {
		t.Error("recovery applied after dispose")
	}
}
