package redis

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
	"time"

	"github.com/cenkalti/backoff/v4"
	"github.com/redis/go-redis/v9"

	"github.com/brahim-guaali/error-boundary/internal/core/domain"
)

const defaultMaxEntries = 1000

// Journal is a Redis-backed reporter sink. Records are kept in a capped
// list (newest first) plus a severity-scored sorted set so the most
// serious recent faults can be queried cheaply.
type Journal struct {
	rdb        *redis.Client
	namespace  string
	maxEntries int

	mu     sync.Mutex
	userID string
	keys   map[string]any
}

// Entry is the serialized form of a record.
type Entry struct {
	ID             string         `json:"id"`
	Fault          string         `json:"fault"`
	Trace          string         `json:"trace,omitempty"`
	Severity       string         `json:"severity"`
	Classification string         `json:"classification"`
	Source         string         `json:"source,omitempty"`
	CapturedAt     time.Time      `json:"captured_at"`
	Context        map[string]any `json:"context,omitempty"`
	UserID         string         `json:"user_id,omitempty"`
	CustomKeys     map[string]any `json:"custom_keys,omitempty"`
}

// NewJournal creates a journal reporter over an established client.
func NewJournal(client *Client, namespace string, maxEntries int) *Journal {
	if maxEntries <= 0 {
		maxEntries = defaultMaxEntries
	}
	return &Journal{
		rdb:        client.rdb,
		namespace:  namespace,
		maxEntries: maxEntries,
		keys:       make(map[string]any),
	}
}

// Name identifies the reporter in logs and metrics.
func (j *Journal) Name() string { return "redis_journal" }

func (j *Journal) listKey() string {
	return fmt.Sprintf("error_journal:%s", j.namespace)
}

func (j *Journal) severityKey() string {
	return fmt.Sprintf("error_journal:%s:by_severity", j.namespace)
}

// Report appends the record to the journal. Transient Redis failures
// are retried briefly with backoff before giving up.
func (j *Journal) Report(ctx context.Context, record *domain.Record) error {
	entry := j.toEntry(record)
	data, err := json.Marshal(entry)
	if err != nil {
		return fmt.Errorf("failed to marshal journal entry: %w", err)
	}

	b := backoff.NewExponentialBackOff()
	b.InitialInterval = 50 * time.Millisecond
	b.MaxInterval = 500 * time.Millisecond
	b.MaxElapsedTime = 3 * time.Second

	return backoff.Retry(func() error {
		pipe := j.rdb.TxPipeline()
		pipe.LPush(ctx, j.listKey(), data)
		pipe.LTrim(ctx, j.listKey(), 0, int64(j.maxEntries-1))
		pipe.ZAdd(ctx, j.severityKey(), redis.Z{
			Score:  float64(record.Severity.Rank()),
			Member: record.ID,
		})
		pipe.ZRemRangeByRank(ctx, j.severityKey(), 0, int64(-j.maxEntries-1))
		if _, err := pipe.Exec(ctx); err != nil {
			if ctx.Err() != nil {
				return backoff.Permanent(err)
			}
			return err
		}
		return nil
	}, backoff.WithContext(b, ctx))
}

// Recent returns up to limit journal entries, newest first.
func (j *Journal) Recent(ctx context.Context, limit int) ([]Entry, error) {
	if limit <= 0 {
		limit = 10
	}
	raw, err := j.rdb.LRange(ctx, j.listKey(), 0, int64(limit-1)).Result()
	if err != nil {
		return nil, fmt.Errorf("lrange failed: %w", err)
	}

	entries := make([]Entry, 0, len(raw))
	for _, item := range raw {
		var e Entry
		if err := json.Unmarshal([]byte(item), &e); err != nil {
			continue
		}
		entries = append(entries, e)
	}
	return entries, nil
}

// SetUserIdentifier attaches a user identity to subsequent entries.
func (j *Journal) SetUserIdentifier(id string) {
	j.mu.Lock()
	defer j.mu.Unlock()
	j.userID = id
}

// SetCustomKey attaches a key/value to subsequent entries; nil removes.
func (j *Journal) SetCustomKey(key string, value any) {
	j.mu.Lock()
	defer j.mu.Unlock()
	if value == nil {
		delete(j.keys, key)
		return
	}
	j.keys[key] = value
}

// Close is a no-op: the shared client owns the connection.
func (j *Journal) Close() error { return nil }

func (j *Journal) toEntry(record *domain.Record) Entry {
	entry := Entry{
		ID:             record.ID,
		Fault:          record.Message(),
		Trace:          record.Trace,
		Severity:       string(record.Severity),
		Classification: string(record.Classification),
		Source:         record.Source,
		CapturedAt:     record.CapturedAt,
	}
	if len(record.Context) > 0 {
		entry.Context = make(map[string]any, len(record.Context))
		for _, e := range record.Context {
			entry.Context[e.Key] = e.Value
		}
	}

	j.mu.Lock()
	entry.UserID = j.userID
	if len(j.keys) > 0 {
		entry.CustomKeys = make(map[string]any, len(j.keys))
		for k, v := range j.keys {
			entry.CustomKeys[k] = v
		}
	}
	j.mu.Unlock()

	return entry
}
