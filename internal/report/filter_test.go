package report

import (
	"context"
	"errors"
	"testing"

	"github.com/brahim-guaali/error-boundary/internal/core/domain"
)

// Scenario: two reporters, one with a high-severity floor; a low-severity
// capture reaches the unfiltered reporter only.
func TestFiltered_SeverityFloor(t *testing.T) {
	filtered := newStubReporter()
	unfiltered := newStubReporter()
	g := NewGroup(nil,
		NewFiltered(filtered, domain.SeverityHigh, nil),
		unfiltered,
	)

	low := domain.NewRecord(errors.New("cosmetic"), domain.WithSeverity(domain.SeverityLow))
	_ = g.Report(context.Background(), low)

	if filtered.reportCount() != 0 {
		t.Error("low-severity record leaked past the severity floor")
	}
	if unfiltered.reportCount() != 1 {
		t.Errorf("unfiltered reporter invoked %d times, expected 1", unfiltered.reportCount())
	}

	critical := domain.NewRecord(errors.New("data loss"), domain.WithSeverity(domain.SeverityCritical))
	_ = g.Report(context.Background(), critical)

	if filtered.reportCount() != 1 {
		t.Error("critical record should pass the severity floor")
	}
}

func TestFiltered_BeforeSendSuppresses(t *testing.T) {
	sink := newStubReporter()
	f := NewFiltered(sink, "", func(r *domain.Record) *domain.Record {
		return nil // suppress everything
	})

	_ = f.Report(context.Background(), domain.NewRecord(errors.New("boom")))
	if sink.reportCount() != 0 {
		t.Error("before-send returning nil must suppress the report")
	}
}

func TestFiltered_BeforeSendTransforms(t *testing.T) {
	sink := &capturingReporter{}
	f := NewFiltered(sink, "", func(r *domain.Record) *domain.Record {
		return r.With(domain.WithSeverity(domain.SeverityLow)) // downgrade
	})

	rec := domain.NewRecord(errors.New("boom"), domain.WithSeverity(domain.SeverityCritical))
	_ = f.Report(context.Background(), rec)

	if sink.last == nil || sink.last.Severity != domain.SeverityLow {
		t.Errorf("expected downgraded severity at the sink, got %+v", sink.last)
	}
	// Transformation is per-reporter: original record untouched.
	if rec.Severity != domain.SeverityCritical {
		t.Error("before-send must not mutate the shared record")
	}
}

type capturingReporter struct {
	last *domain.Record
}

func (c *capturingReporter) Report(ctx context.Context, record *domain.Record) error {
	c.last = record
	return nil
}

func (c *capturingReporter) SetUserIdentifier(id string)        {}
func (c *capturingReporter) SetCustomKey(key string, value any) {}
func (c *capturingReporter) Close() error                       { return nil }
