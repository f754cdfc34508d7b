package domain

import (
	"time"

	"github.com/google/uuid"
)

// Record is an immutable snapshot of a single captured fault.
// "Modification" always goes through With, which returns a copy.
type Record struct {
	ID             string
	Fault          error
	Trace          string
	Severity       Severity
	Classification Classification
	Source         string
	CapturedAt     time.Time
	Context        []ContextEntry
}

// ContextEntry is one key/value pair of capture-time context.
// Entries keep their insertion order.
type ContextEntry struct {
	Key   string
	Value any
}

// RecordOption overrides a field during construction or copy.
type RecordOption func(*Record)

// WithTrace sets the capture-time stack context.
func WithTrace(trace string) RecordOption {
	return func(r *Record) { r.Trace = trace }
}

// WithSeverity sets the record severity.
func WithSeverity(s Severity) RecordOption {
	return func(r *Record) { r.Severity = s }
}

// WithClassification sets the record classification.
func WithClassification(c Classification) RecordOption {
	return func(r *Record) { r.Classification = c }
}

// WithSource sets the source identifier.
func WithSource(source string) RecordOption {
	return func(r *Record) { r.Source = source }
}

// WithCapturedAt overrides the capture timestamp.
func WithCapturedAt(t time.Time) RecordOption {
	return func(r *Record) { r.CapturedAt = t }
}

// WithContextValue appends a context entry, replacing an existing
// entry with the same key in place.
func WithContextValue(key string, value any) RecordOption {
	return func(r *Record) {
		for i, e := range r.Context {
			if e.Key == key {
				r.Context[i].Value = value
				return
			}
		}
		r.Context = append(r.Context, ContextEntry{Key: key, Value: value})
	}
}

// NewRecord creates a record for a captured fault. Severity defaults to
// medium, classification to unknown, and CapturedAt to the current time
// unless overridden.
func NewRecord(fault error, opts ...RecordOption) *Record {
	r := &Record{
		ID:             uuid.New().String(),
		Fault:          fault,
		Severity:       SeverityMedium,
		Classification: ClassUnknown,
		CapturedAt:     time.Now(),
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// With returns a copy of the record with the given overrides applied.
// Unset fields keep the original values.
func (r *Record) With(opts ...RecordOption) *Record {
	cp := *r
	cp.Context = make([]ContextEntry, len(r.Context))
	copy(cp.Context, r.Context)
	for _, opt := range opts {
		opt(&cp)
	}
	return &cp
}

// Equal compares fault, trace, severity, classification and source.
// Context and CapturedAt are excluded so re-derived records compare equal.
func (r *Record) Equal(other *Record) bool {
	if r == nil || other == nil {
		return r == other
	}
	return errString(r.Fault) == errString(other.Fault) &&
		r.Trace == other.Trace &&
		r.Severity == other.Severity &&
		r.Classification == other.Classification &&
		r.Source == other.Source
}

// ContextValue looks up a context entry by key.
func (r *Record) ContextValue(key string) (any, bool) {
	for _, e := range r.Context {
		if e.Key == key {
			return e.Value, true
		}
	}
	return nil, false
}

// Message returns the fault message, or "" for a nil fault.
func (r *Record) Message() string {
	return errString(r.Fault)
}

func errString(err error) string {
	if err == nil {
		return ""
	}
	return err.Error()
}
