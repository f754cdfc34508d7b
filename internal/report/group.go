package report

import (
	"context"
	"fmt"
	"log/slog"
	"sync"

	"github.com/brahim-guaali/error-boundary/internal/core/domain"
	"github.com/brahim-guaali/error-boundary/internal/metrics"
)

// Group is a composite Reporter over an ordered member list.
//
// Report fans out to every member concurrently and waits for all of
// them; one member failing (or panicking) never prevents the others
// from being attempted. Identity and custom-key broadcasts run
// synchronously in list order with no rollback.
type Group struct {
	members []Reporter
	log     *slog.Logger
}

// NewGroup creates a fan-out group over the given reporters.
func NewGroup(log *slog.Logger, members ...Reporter) *Group {
	if log == nil {
		log = slog.Default()
	}
	return &Group{members: members, log: log}
}

// Add appends a reporter to the group.
func (g *Group) Add(r Reporter) {
	g.members = append(g.members, r)
}

// Len returns the number of members.
func (g *Group) Len() int {
	return len(g.members)
}

// Report dispatches the record to all members concurrently and waits
// for every one to finish. Member failures are logged and counted, never
// returned: the group's own result is always nil.
func (g *Group) Report(ctx context.Context, record *domain.Record) error {
	var wg sync.WaitGroup
	for i, r := range g.members {
		wg.Add(1)
		go func(idx int, r Reporter) {
			defer wg.Done()
			if err := g.safeReport(ctx, r, record); err != nil {
				metrics.ReporterFailures.WithLabelValues(reporterName(r)).Inc()
				g.log.Warn("Reporter failed",
					"reporter", reporterName(r),
					"index", idx,
					"record_id", record.ID,
					"error", err)
			}
		}(i, r)
	}
	wg.Wait()
	return nil
}

// safeReport contains a reporter that violates the never-fail contract,
// converting panics into errors.
func (g *Group) safeReport(ctx context.Context, r Reporter, record *domain.Record) (err error) {
	defer func() {
		if rec := recover(); rec != nil {
			err = fmt.Errorf("reporter panic: %v", rec)
		}
	}()
	return r.Report(ctx, record)
}

// SetUserIdentifier broadcasts the identity to all members in order.
func (g *Group) SetUserIdentifier(id string) {
	for _, r := range g.members {
		r.SetUserIdentifier(id)
	}
}

// SetCustomKey broadcasts the key to all members in order.
func (g *Group) SetCustomKey(key string, value any) {
	for _, r := range g.members {
		r.SetCustomKey(key, value)
	}
}

// Close closes every member, returning the first error seen after all
// members have been attempted.
func (g *Group) Close() error {
	var first error
	for _, r := range g.members {
		if err := r.Close(); err != nil && first == nil {
			first = err
		}
	}
	return first
}

func reporterName(r Reporter) string {
	type named interface{ Name() string }
	if n, ok := r.(named); ok {
		return n.Name()
	}
	return fmt.Sprintf("%T", r)
}
