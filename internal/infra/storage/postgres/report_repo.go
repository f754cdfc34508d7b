package postgres

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"sync"
	"time"

	"github.com/cenkalti/backoff/v4"

	"github.com/brahim-guaali/error-boundary/internal/core/domain"
)

// ReportRepo is a PostgreSQL-backed reporter sink writing one
// error_reports row per captured record.
type ReportRepo struct {
	db *DB

	mu     sync.Mutex
	userID string
	keys   map[string]any
}

// NewReportRepo creates a PostgreSQL report repository.
func NewReportRepo(db *DB) *ReportRepo {
	return &ReportRepo{db: db, keys: make(map[string]any)}
}

// Name identifies the reporter in logs and metrics.
func (r *ReportRepo) Name() string { return "postgres" }

// Report inserts the record. Transient database failures are retried
// briefly with backoff.
func (r *ReportRepo) Report(ctx context.Context, record *domain.Record) error {
	contextJSON, err := marshalContext(record)
	if err != nil {
		return err
	}

	r.mu.Lock()
	userID := r.userID
	keysJSON, err := json.Marshal(r.keys)
	r.mu.Unlock()
	if err != nil {
		return fmt.Errorf("failed to marshal custom keys: %w", err)
	}

	query := `
		INSERT INTO error_reports (id, source, fault, trace, severity, classification, context, user_id, custom_keys, captured_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)
	`

	b := backoff.NewExponentialBackOff()
	b.InitialInterval = 50 * time.Millisecond
	b.MaxInterval = 1 * time.Second
	b.MaxElapsedTime = 5 * time.Second

	return backoff.Retry(func() error {
		_, err := r.db.ExecContext(
			ctx,
			query,
			record.ID,
			record.Source,
			record.Message(),
			record.Trace,
			string(record.Severity),
			string(record.Classification),
			contextJSON,
			nullable(userID),
			keysJSON,
			record.CapturedAt,
		)
		if err != nil {
			if ctx.Err() != nil {
				return backoff.Permanent(err)
			}
			return fmt.Errorf("failed to insert error report: %w", err)
		}
		return nil
	}, backoff.WithContext(b, ctx))
}

// CountSince returns the number of reports captured after the cutoff,
// for monitoring.
func (r *ReportRepo) CountSince(ctx context.Context, source string, cutoff time.Time) (int, error) {
	query := `
		SELECT COUNT(*) FROM error_reports
		WHERE source = $1 AND captured_at >= $2
	`
	var count int
	if err := r.db.GetContext(ctx, &count, query, source, cutoff); err != nil {
		return 0, fmt.Errorf("failed to count error reports: %w", err)
	}
	return count, nil
}

// SetUserIdentifier attaches a user identity to subsequent rows.
func (r *ReportRepo) SetUserIdentifier(id string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.userID = id
}

// SetCustomKey attaches a key/value to subsequent rows; nil removes.
func (r *ReportRepo) SetCustomKey(key string, value any) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if value == nil {
		delete(r.keys, key)
		return
	}
	r.keys[key] = value
}

// Close is a no-op: the wiring layer owns the connection.
func (r *ReportRepo) Close() error { return nil }

func marshalContext(record *domain.Record) ([]byte, error) {
	ctxMap := make(map[string]any, len(record.Context))
	for _, e := range record.Context {
		ctxMap[e.Key] = e.Value
	}
	data, err := json.Marshal(ctxMap)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal record context: %w", err)
	}
	return data, nil
}

func nullable(s string) sql.NullString {
	return sql.NullString{String: s, Valid: s != ""}
}
