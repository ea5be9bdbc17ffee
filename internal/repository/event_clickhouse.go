package repository

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"strings"

	"MarketPulse/internal/domain/models"
	domrepo "MarketPulse/internal/domain/repository"
)

// ClickHouseEventStorage keeps engine events for the history endpoint. The
// full event is stored as JSON next to a few columns used for filtering.
type ClickHouseEventStorage struct {
	db    *sql.DB
	table string
}

var _ domrepo.EventStorage = (*ClickHouseEventStorage)(nil)

func NewClickHouseEventStorage(db *sql.DB, table string) *ClickHouseEventStorage {
	if table == "" {
		table = "engine_events"
	}
	return &ClickHouseEventStorage{db: db, table: table}
}

// Init creates the events table if it is missing.
func (s *ClickHouseEventStorage) Init(ctx context.Context) error {
	stmt := fmt.Sprintf(`CREATE TABLE IF NOT EXISTS %s (
	id String,
	type LowCardinality(String),
	at DateTime64(3, 'UTC'),
	symbol LowCardinality(String),
	degraded UInt8,
	payload String
) ENGINE = ReplacingMergeTree
PARTITION BY toYYYYMM(at)
ORDER BY (type, at, id)
TTL toDateTime(at) + INTERVAL 90 DAY`, s.table)
	if _, err := s.db.ExecContext(ctx, stmt); err != nil {
		return fmt.Errorf("create %s: %w", s.table, err)
	}
	return nil
}

func (s *ClickHouseEventStorage) Store(ctx context.Context, e *models.Event) error {
	return s.StoreBatch(ctx, []*models.Event{e})
}

// StoreBatch inserts events in multi-row statements of up to 1000 rows.
// ReplacingMergeTree on id makes a retried batch harmless.
func (s *ClickHouseEventStorage) StoreBatch(ctx context.Context, events []*models.Event) error {
	const chunk = 1000
	for start := 0; start < len(events); start += chunk {
		end := min(start+chunk, len(events))

		values := make([]string, 0, end-start)
		args := make([]interface{}, 0, (end-start)*6)
		for _, e := range events[start:end] {
			if e == nil || e.ID == "" {
				continue
			}
			payload, err := json.Marshal(e)
			if err != nil {
				return fmt.Errorf("encode event %s: %w", e.ID, err)
			}
			var degraded uint8
			if e.Degraded {
				degraded = 1
			}
			values = append(values, "(?, ?, ?, ?, ?, ?)")
			args = append(args, e.ID, string(e.Type), e.At.UTC(), e.Symbol(), degraded, string(payload))
		}
		if len(values) == 0 {
			continue
		}

		q := fmt.Sprintf("INSERT INTO %s (id, type, at, symbol, degraded, payload) VALUES %s", s.table, strings.Join(values, ","))
		if _, err := s.db.ExecContext(ctx, q, args...); err != nil {
			return fmt.Errorf("insert events: %w", err)
		}
	}
	return nil
}

// Query returns the newest events, optionally of one type.
func (s *ClickHouseEventStorage) Query(ctx context.Context, eventType models.EventType, limit int) ([]*models.Event, error) {
	if limit <= 0 {
		limit = 100
	}
	q := fmt.Sprintf("SELECT payload FROM %s", s.table)
	args := []interface{}{}
	if eventType != "" {
		q += " WHERE type = ?"
		args = append(args, string(eventType))
	}
	q += " ORDER BY at DESC LIMIT ?"
	args = append(args, limit)

	rows, err := s.db.QueryContext(ctx, q, args...)
	if err != nil {
		return nil, fmt.Errorf("query events: %w", err)
	}
	defer rows.Close()

	var out []*models.Event
	for rows.Next() {
		var payload string
		if err := rows.Scan(&payload); err != nil {
			return nil, fmt.Errorf("scan event: %w", err)
		}
		var e models.Event
		if err := json.Unmarshal([]byte(payload), &e); err != nil {
			return nil, fmt.Errorf("decode event: %w", err)
		}
		out = append(out, &e)
	}
	return out, rows.Err()
}

func (s *ClickHouseEventStorage) Health(ctx context.Context) error {
	return s.db.PingContext(ctx)
}

// Close is a no-op; the pool belongs to the clickhouse client.
func (s *ClickHouseEventStorage) Close() error { return nil }
