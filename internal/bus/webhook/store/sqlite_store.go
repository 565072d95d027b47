package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"time"

	"github.com/sebastianm/agentbus/internal/bus/webhook"
)

const timeFormat = "2006-01-02T15:04:05.000Z"

// SQLiteStore implements webhook.Store on the shared bus database.
// Event-type lists are persisted as JSON array text; absent filters and
// secrets are stored as NULL.
type SQLiteStore struct {
	db *sql.DB
}

// NewSQLiteStore creates a SQLiteStore.
func NewSQLiteStore(db *sql.DB) *SQLiteStore {
	return &SQLiteStore{db: db}
}

func (s *SQLiteStore) AddWebhook(ctx context.Context, url, channelFilter string, eventTypes []string, secret string) (webhook.Webhook, error) {
	now := time.Now().UTC()

	types, err := marshalEventTypes(eventTypes)
	if err != nil {
		return webhook.Webhook{}, err
	}

	res, err := s.db.ExecContext(ctx, `
		INSERT INTO webhooks (url, channel_filter, event_types, secret, active, created_at)
		VALUES (?, ?, ?, ?, 1, ?)`,
		url, nullableString(channelFilter), types, nullableString(secret),
		now.Format(timeFormat))
	if err != nil {
		return webhook.Webhook{}, fmt.Errorf("inserting webhook: %w", err)
	}
	id, err := res.LastInsertId()
	if err != nil {
		return webhook.Webhook{}, fmt.Errorf("reading webhook id: %w", err)
	}

	return webhook.Webhook{
		ID:            id,
		URL:           url,
		ChannelFilter: channelFilter,
		EventTypes:    eventTypes,
		Secret:        secret,
		Active:        true,
		CreatedAt:     now.Truncate(time.Millisecond),
	}, nil
}

func (s *SQLiteStore) GetWebhook(ctx context.Context, id int64) (webhook.Webhook, bool, error) {
	row := s.db.QueryRowContext(ctx, `
		SELECT id, url, channel_filter, event_types, secret, active, created_at
		FROM webhooks WHERE id = ?`, id)
	w, err := scanWebhook(row)
	if err == sql.ErrNoRows {
		return webhook.Webhook{}, false, nil
	}
	if err != nil {
		return webhook.Webhook{}, false, fmt.Errorf("getting webhook %d: %w", id, err)
	}
	return w, true, nil
}

func (s *SQLiteStore) ListWebhooks(ctx context.Context, activeOnly bool) ([]webhook.Webhook, error) {
	query := `
		SELECT id, url, channel_filter, event_types, secret, active, created_at
		FROM webhooks`
	if activeOnly {
		query += " WHERE active = 1"
	}

	rows, err := s.db.QueryContext(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("listing webhooks: %w", err)
	}
	defer rows.Close()

	var hooks []webhook.Webhook
	for rows.Next() {
		w, err := scanWebhook(rows)
		if err != nil {
			return nil, fmt.Errorf("scanning webhook row: %w", err)
		}
		hooks = append(hooks, w)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterating webhook rows: %w", err)
	}
	return hooks, nil
}

func (s *SQLiteStore) DeleteWebhook(ctx context.Context, id int64) (bool, error) {
	res, err := s.db.ExecContext(ctx, "DELETE FROM webhooks WHERE id = ?", id)
	if err != nil {
		return false, fmt.Errorf("deleting webhook %d: %w", id, err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("checking rows affected: %w", err)
	}
	return n > 0, nil
}

func (s *SQLiteStore) SetWebhookActive(ctx context.Context, id int64, active bool) (bool, error) {
	var v int64
	if active {
		v = 1
	}
	res, err := s.db.ExecContext(ctx, "UPDATE webhooks SET active = ? WHERE id = ?", v, id)
	if err != nil {
		return false, fmt.Errorf("updating webhook %d active flag: %w", id, err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("checking rows affected: %w", err)
	}
	return n > 0, nil
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanWebhook(r rowScanner) (webhook.Webhook, error) {
	var (
		w                            webhook.Webhook
		channelFilter, types, secret sql.NullString
		active                       int64
		createdAt                    string
	)
	err := r.Scan(&w.ID, &w.URL, &channelFilter, &types, &secret, &active, &createdAt)
	if err != nil {
		return webhook.Webhook{}, err
	}
	w.ChannelFilter = channelFilter.String
	w.Secret = secret.String
	w.Active = active != 0
	w.CreatedAt, _ = time.Parse(timeFormat, createdAt)
	if types.Valid {
		if err := json.Unmarshal([]byte(types.String), &w.EventTypes); err != nil {
			return webhook.Webhook{}, fmt.Errorf("decoding event_types: %w", err)
		}
	}
	return w, nil
}

func marshalEventTypes(eventTypes []string) (any, error) {
	if len(eventTypes) == 0 {
		return nil, nil
	}
	data, err := json.Marshal(eventTypes)
	if err != nil {
		return nil, fmt.Errorf("encoding event_types: %w", err)
	}
	return string(data), nil
}

func nullableString(s string) any {
	if s == "" {
		return nil
	}
	return s
}
