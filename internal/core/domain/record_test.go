package domain

import (
	"errors"
	"testing"
	"time"
)

func TestNewRecord_Defaults(t *testing.T) {
	fault := errors.New("boom")
	r := NewRecord(fault)

	if r.ID == "" {
		t.Error("expected non-empty ID")
	}
	if r.Fault != fault {
		t.Errorf("expected fault %v, got %v", fault, r.Fault)
	}
	if r.Severity != SeverityMedium {
		t.Errorf("expected default severity medium, got %s", r.Severity)
	}
	if r.Classification != ClassUnknown {
		t.Errorf("expected default classification unknown, got %s", r.Classification)
	}
	if r.CapturedAt.IsZero() {
		t.Error("expected CapturedAt to be defaulted")
	}
	if len(r.Context) != 0 {
		t.Errorf("expected empty context, got %d entries", len(r.Context))
	}
}

func TestRecord_With_CopySemantics(t *testing.T) {
	orig := NewRecord(errors.New("boom"),
		WithSeverity(SeverityLow),
		WithSource("checkout"),
		WithContextValue("attempt", 1),
	)

	updated := orig.With(WithSeverity(SeverityCritical), WithContextValue("attempt", 2))

	// Original untouched
	if orig.Severity != SeverityLow {
		t.Errorf("original severity mutated: %s", orig.Severity)
	}
	if v, _ := orig.ContextValue("attempt"); v != 1 {
		t.Errorf("original context mutated: %v", v)
	}

	// Copy overridden, unset fields preserved
	if updated.Severity != SeverityCritical {
		t.Errorf("expected critical, got %s", updated.Severity)
	}
	if updated.Source != "checkout" {
		t.Errorf("expected source preserved, got %q", updated.Source)
	}
	if v, _ := updated.ContextValue("attempt"); v != 2 {
		t.Errorf("expected attempt=2, got %v", v)
	}
}

func TestRecord_Equal_IgnoresContextAndTimestamp(t *testing.T) {
	fault := errors.New("boom")
	a := NewRecord(fault, WithTrace("stack"), WithSeverity(SeverityHigh), WithSource("s"))
	b := a.With(
		WithCapturedAt(a.CapturedAt.Add(time.Hour)),
		WithContextValue("extra", true),
	)

	if !a.Equal(b) {
		t.Error("records differing only in context/timestamp should be equal")
	}

	c := a.With(WithSeverity(SeverityLow))
	if a.Equal(c) {
		t.Error("records differing in severity should not be equal")
	}
}

func TestSeverity_Ordering(t *testing.T) {
	if !SeverityCritical.AtLeast(SeverityHigh) {
		t.Error("critical should be at least high")
	}
	if SeverityLow.AtLeast(SeverityMedium) {
		t.Error("low should not be at least medium")
	}
}

func TestParseSeverity_Invalid(t *testing.T) {
	if _, err := ParseSeverity("fatal"); err == nil {
		t.Error("expected error for unknown severity")
	}
	if s, err := ParseSeverity("high"); err != nil || s != SeverityHigh {
		t.Errorf("expected high, got %s (%v)", s, err)
	}
}
