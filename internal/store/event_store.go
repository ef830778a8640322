package store

import (
	"context"
	"encoding/json"
	"fmt"
	"strconv"

	"botfleet/internal/core"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

// EventStore implements core.IEventStore: append-only rows with a
// retention sweep and cursor pagination for the user-facing events endpoint.
type EventStore struct {
	pool *pgxpool.Pool
}

// Append inserts one or more events in a single round trip.
func (s *EventStore) Append(ctx context.Context, events ...*core.Event) error {
	if len(events) == 0 {
		return nil
	}
	batch := make([][]any, 0, len(events))
	for _, e := range events {
		meta, err := json.Marshal(e.Metadata)
		if err != nil {
			return fmt.Errorf("marshal event metadata: %w", err)
		}
		batch = append(batch, []any{e.BotID, string(e.EventType), e.Message, meta, e.CreatedAt})
	}

	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return fmt.Errorf("begin tx: %w", err)
	}
	defer tx.Rollback(ctx)

	for _, row := range batch {
		_, err := tx.Exec(ctx, `INSERT INTO events (bot_id, event_type, message, metadata, created_at) VALUES ($1,$2,$3,$4,$5)`, row...)
		if err != nil {
			return fmt.Errorf("insert event: %w", err)
		}
	}
	return tx.Commit(ctx)
}

// List returns events for botID in reverse chronological order, cursor
// paginated by opaque numeric id.
func (s *EventStore) List(ctx context.Context, botID string, cursor string, limit int) ([]*core.Event, string, error) {
	if limit <= 0 || limit > 200 {
		limit = 50
	}

	var afterID int64
	if cursor != "" {
		v, err := strconv.ParseInt(cursor, 10, 64)
		if err != nil {
			return nil, "", fmt.Errorf("invalid cursor: %w", err)
		}
		afterID = v
	}

	var rows pgx.Rows
	var err error
	if afterID > 0 {
		rows, err = s.pool.Query(ctx, `
			SELECT id, bot_id, event_type, message, metadata, created_at FROM events
			WHERE bot_id = $1 AND id < $2 ORDER BY id DESC LIMIT $3`, botID, afterID, limit)
	} else {
		rows, err = s.pool.Query(ctx, `
			SELECT id, bot_id, event_type, message, metadata, created_at FROM events
			WHERE bot_id = $1 ORDER BY id DESC LIMIT $2`, botID, limit)
	}
	if err != nil {
		return nil, "", fmt.Errorf("list events: %w", err)
	}
	defer rows.Close()

	var events []*core.Event
	var lastID int64
	for rows.Next() {
		var e core.Event
		var id int64
		var meta []byte
		var eventType string
		if err := rows.Scan(&id, &e.BotID, &eventType, &e.Message, &meta, &e.CreatedAt); err != nil {
			return nil, "", fmt.Errorf("scan event: %w", err)
		}
		e.ID = strconv.FormatInt(id, 10)
		e.EventType = core.EventType(eventType)
		if len(meta) > 0 {
			_ = json.Unmarshal(meta, &e.Metadata)
		}
		events = append(events, &e)
		lastID = id
	}
	if err := rows.Err(); err != nil {
		return nil, "", err
	}

	nextCursor := ""
	if len(events) == limit {
		nextCursor = strconv.FormatInt(lastID, 10)
	}
	return events, nextCursor, nil
}

// DeleteOlderThan purges events older than cutoffUnix, enforcing the 30-day
// retention window spec §5 specifies.
func (s *EventStore) DeleteOlderThan(ctx context.Context, cutoffUnix int64) (int64, error) {
	ct, err := s.pool.Exec(ctx, `DELETE FROM events WHERE created_at < to_timestamp($1)`, cutoffUnix)
	if err != nil {
		return 0, fmt.Errorf("delete old events: %w", err)
	}
	return ct.RowsAffected(), nil
}
