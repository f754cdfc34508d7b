// Package report defines the reporter contract for delivering captured
// fault records to external sinks, and the fan-out composite that
// isolates sink failures from each other.
package report

import (
	"context"

	"github.com/brahim-guaali/error-boundary/internal/core/domain"
)

// Reporter delivers fault records to a sink.
//
// Report must never propagate a failure that matters to the caller: the
// returned error is informational (logged, counted) and a misbehaving
// implementation is additionally contained by Group.
type Reporter interface {
	// Report delivers a single record.
	Report(ctx context.Context, record *domain.Record) error

	// SetUserIdentifier attaches a user identity to subsequent reports.
	// An empty id clears it.
	SetUserIdentifier(id string)

	// SetCustomKey attaches a key/value to subsequent reports. A nil
	// value removes the key.
	SetCustomKey(key string, value any)

	// Close releases sink resources.
	Close() error
}

// BeforeSend can suppress a record (return nil) or transform it (return
// a modified copy) before it reaches one reporter's sink. Filtering is
// always per-reporter, never global.
type BeforeSend func(record *domain.Record) *domain.Record
