package report

import (
	"context"
	"log/slog"
	"sync"

	"github.com/brahim-guaali/error-boundary/internal/core/domain"
)

// SlogReporter writes fault records to structured logs. It is the
// default sink when no external reporter is configured.
type SlogReporter struct {
	log *slog.Logger

	mu     sync.Mutex
	userID string
	keys   map[string]any
}

// NewSlogReporter creates a log-backed reporter.
func NewSlogReporter(log *slog.Logger) *SlogReporter {
	if log == nil {
		log = slog.Default()
	}
	return &SlogReporter{log: log, keys: make(map[string]any)}
}

// Name identifies the reporter in logs and metrics.
func (r *SlogReporter) Name() string { return "slog" }

// Report logs the record at a level derived from its severity.
func (r *SlogReporter) Report(ctx context.Context, record *domain.Record) error {
	attrs := []any{
		"record_id", record.ID,
		"classification", string(record.Classification),
		"severity", string(record.Severity),
		"fault", record.Message(),
	}
	if record.Source != "" {
		attrs = append(attrs, "source", record.Source)
	}
	for _, e := range record.Context {
		attrs = append(attrs, "ctx."+e.Key, e.Value)
	}

	r.mu.Lock()
	if r.userID != "" {
		attrs = append(attrs, "user_id", r.userID)
	}
	for k, v := range r.keys {
		attrs = append(attrs, k, v)
	}
	r.mu.Unlock()

	switch record.Severity {
	case domain.SeverityLow:
		r.log.DebugContext(ctx, "Fault captured", attrs...)
	case domain.SeverityMedium:
		r.log.WarnContext(ctx, "Fault captured", attrs...)
	case domain.SeverityHigh, domain.SeverityCritical:
		r.log.ErrorContext(ctx, "Fault captured", attrs...)
	}
	return nil
}

// SetUserIdentifier records the user identity for subsequent reports.
func (r *SlogReporter) SetUserIdentifier(id string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.userID = id
}

// SetCustomKey records a key/value for subsequent reports; nil removes.
func (r *SlogReporter) SetCustomKey(key string, value any) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if value == nil {
		delete(r.keys, key)
		return
	}
	r.keys[key] = value
}

// Close is a no-op for the log sink.
func (r *SlogReporter) Close() error { return nil }
