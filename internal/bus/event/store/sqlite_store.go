package store

import (
	"context"
	"database/sql"
	"fmt"
	"strings"
	"time"

	"github.com/sebastianm/agentbus/internal/bus/event"
)

const timeFormat = "2006-01-02T15:04:05.000Z"

// SQLiteStore implements event.Store on the shared bus database.
type SQLiteStore struct {
	db        *sql.DB
	maxEvents int
}

// NewSQLiteStore creates a SQLiteStore retaining at most maxEvents rows.
// maxEvents <= 0 disables trimming.
func NewSQLiteStore(db *sql.DB, maxEvents int) *SQLiteStore {
	return &SQLiteStore{db: db, maxEvents: maxEvents}
}

func (s *SQLiteStore) AddEvent(ctx context.Context, eventType, payload, sessionID, channel string) (event.Event, error) {
	now := time.Now().UTC()

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return event.Event{}, fmt.Errorf("beginning event transaction: %w", err)
	}
	defer tx.Rollback()

	res, err := tx.ExecContext(ctx, `
		INSERT INTO events (event_type, payload, session_id, timestamp, channel)
		VALUES (?, ?, ?, ?, ?)`,
		eventType, payload, sessionID, now.Format(timeFormat), channel)
	if err != nil {
		return event.Event{}, fmt.Errorf("inserting event: %w", err)
	}
	id, err := res.LastInsertId()
	if err != nil {
		return event.Event{}, fmt.Errorf("reading event id: %w", err)
	}

	// Trim in the same transaction so readers never observe more than
	// maxEvents rows.
	if s.maxEvents > 0 {
		if _, err := tx.ExecContext(ctx,
			"DELETE FROM events WHERE id <= ?", id-int64(s.maxEvents)); err != nil {
			return event.Event{}, fmt.Errorf("trimming old events: %w", err)
		}
	}

	if err := tx.Commit(); err != nil {
		return event.Event{}, fmt.Errorf("committing event: %w", err)
	}

	return event.Event{
		ID:        id,
		EventType: eventType,
		Payload:   payload,
		SessionID: sessionID,
		Timestamp: now.Truncate(time.Millisecond),
		Channel:   channel,
	}, nil
}

func (s *SQLiteStore) GetEvents(ctx context.Context, sinceID int64, limit int, channels []string) ([]event.Event, error) {
	query := `
		SELECT id, event_type, payload, session_id, timestamp, channel
		FROM events WHERE id > ?`
	args := []any{sinceID}

	if len(channels) > 0 {
		placeholders := strings.Repeat("?,", len(channels))
		query += " AND channel IN (" + strings.TrimSuffix(placeholders, ",") + ")"
		for _, ch := range channels {
			args = append(args, ch)
		}
	}

	query += " ORDER BY id ASC"
	if limit > 0 {
		query += " LIMIT ?"
		args = append(args, limit)
	}

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("querying events: %w", err)
	}
	defer rows.Close()

	var events []event.Event
	for rows.Next() {
		var (
			e  event.Event
			ts string
		)
		if err := rows.Scan(&e.ID, &e.EventType, &e.Payload, &e.SessionID, &ts, &e.Channel); err != nil {
			return nil, fmt.Errorf("scanning event row: %w", err)
		}
		e.Timestamp, _ = time.Parse(timeFormat, ts)
		events = append(events, e)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterating event rows: %w", err)
	}
	return events, nil
}

func (s *SQLiteStore) LastEventID(ctx context.Context) (int64, error) {
	var id sql.NullInt64
	if err := s.db.QueryRowContext(ctx, "SELECT MAX(id) FROM events").Scan(&id); err != nil {
		return 0, fmt.Errorf("reading last event id: %w", err)
	}
	return id.Int64, nil
}
