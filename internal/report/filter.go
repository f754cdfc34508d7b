package report

import (
	"context"

	"github.com/brahim-guaali/error-boundary/internal/core/domain"
)

// Filtered wraps a single reporter with a local before-send hook and a
// severity floor. Records below MinSeverity, and records the hook
// returns nil for, are suppressed for this reporter only.
type Filtered struct {
	Reporter
	MinSeverity domain.Severity
	Before      BeforeSend
}

// NewFiltered wraps next with a severity floor. An empty floor passes
// everything.
func NewFiltered(next Reporter, minSeverity domain.Severity, before BeforeSend) *Filtered {
	return &Filtered{Reporter: next, MinSeverity: minSeverity, Before: before}
}

// Report applies the severity floor and before-send hook, then delegates.
func (f *Filtered) Report(ctx context.Context, record *domain.Record) error {
	if f.MinSeverity != "" && !record.Severity.AtLeast(f.MinSeverity) {
		return nil
	}
	if f.Before != nil {
		record = f.Before(record)
		if record == nil {
			return nil
		}
	}
	return f.Reporter.Report(ctx, record)
}
