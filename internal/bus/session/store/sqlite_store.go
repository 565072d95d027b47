package store

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/sebastianm/agentbus/internal/bus/session"
)

const timeFormat = "2006-01-02T15:04:05.000Z"

// SQLiteStore implements session.Store on the shared bus database.
type SQLiteStore struct {
	db *sql.DB
}

// NewSQLiteStore creates a SQLiteStore.
func NewSQLiteStore(db *sql.DB) *SQLiteStore {
	return &SQLiteStore{db: db}
}

func (s *SQLiteStore) AddSession(ctx context.Context, sess session.Session) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT OR REPLACE INTO sessions
			(id, name, machine, cwd, repo, registered_at, last_heartbeat, pid)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)`,
		sess.ID, sess.Name, sess.Machine, sess.Cwd, sess.Repo,
		sess.RegisteredAt.UTC().Format(timeFormat),
		sess.LastHeartbeat.UTC().Format(timeFormat),
		nullablePID(sess.PID),
	)
	if err != nil {
		return fmt.Errorf("inserting session: %w", err)
	}
	return nil
}

func (s *SQLiteStore) GetSession(ctx context.Context, id string) (session.Session, bool, error) {
	row := s.db.QueryRowContext(ctx, `
		SELECT id, name, machine, cwd, repo, registered_at, last_heartbeat, pid
		FROM sessions WHERE id = ?`, id)
	sess, err := scanSession(row)
	if err == sql.ErrNoRows {
		return session.Session{}, false, nil
	}
	if err != nil {
		return session.Session{}, false, fmt.Errorf("getting session %q: %w", id, err)
	}
	return sess, true, nil
}

func (s *SQLiteStore) DeleteSession(ctx context.Context, id string) (bool, error) {
	res, err := s.db.ExecContext(ctx, "DELETE FROM sessions WHERE id = ?", id)
	if err != nil {
		return false, fmt.Errorf("deleting session %q: %w", id, err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("checking rows affected: %w", err)
	}
	return n > 0, nil
}

func (s *SQLiteStore) ListSessions(ctx context.Context) ([]session.Session, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, name, machine, cwd, repo, registered_at, last_heartbeat, pid
		FROM sessions`)
	if err != nil {
		return nil, fmt.Errorf("listing sessions: %w", err)
	}
	defer rows.Close()
	return collectSessions(rows)
}

func (s *SQLiteStore) SessionCount(ctx context.Context) (int, error) {
	var n int
	if err := s.db.QueryRowContext(ctx, "SELECT COUNT(*) FROM sessions").Scan(&n); err != nil {
		return 0, fmt.Errorf("counting sessions: %w", err)
	}
	return n, nil
}

func (s *SQLiteStore) FindSessionByKey(ctx context.Context, machine, cwd string, pid int) (session.Session, bool, error) {
	// NULL pids are excluded by the equality check: dedup applies only to
	// sessions that reported a pid.
	row := s.db.QueryRowContext(ctx, `
		SELECT id, name, machine, cwd, repo, registered_at, last_heartbeat, pid
		FROM sessions WHERE machine = ? AND cwd = ? AND pid = ?`,
		machine, cwd, pid)
	sess, err := scanSession(row)
	if err == sql.ErrNoRows {
		return session.Session{}, false, nil
	}
	if err != nil {
		return session.Session{}, false, fmt.Errorf("finding session by key: %w", err)
	}
	return sess, true, nil
}

func (s *SQLiteStore) UpdateHeartbeat(ctx context.Context, id string, t time.Time) (bool, error) {
	// The fixed-width timestamp format makes MAX() on the stored strings
	// equivalent to a time comparison, so heartbeats never move backwards.
	res, err := s.db.ExecContext(ctx,
		"UPDATE sessions SET last_heartbeat = MAX(last_heartbeat, ?) WHERE id = ?",
		t.UTC().Format(timeFormat), id)
	if err != nil {
		return false, fmt.Errorf("updating heartbeat for %q: %w", id, err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("checking rows affected: %w", err)
	}
	return n > 0, nil
}

func (s *SQLiteStore) CleanupStale(ctx context.Context, timeout time.Duration) ([]session.Session, error) {
	cutoff := time.Now().UTC().Add(-timeout).Format(timeFormat)

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, fmt.Errorf("beginning cleanup transaction: %w", err)
	}
	defer tx.Rollback()

	rows, err := tx.QueryContext(ctx, `
		SELECT id, name, machine, cwd, repo, registered_at, last_heartbeat, pid
		FROM sessions WHERE last_heartbeat < ?`, cutoff)
	if err != nil {
		return nil, fmt.Errorf("selecting stale sessions: %w", err)
	}
	stale, err := collectSessions(rows)
	rows.Close()
	if err != nil {
		return nil, err
	}
	if len(stale) == 0 {
		return nil, tx.Commit()
	}

	if _, err := tx.ExecContext(ctx, "DELETE FROM sessions WHERE last_heartbeat < ?", cutoff); err != nil {
		return nil, fmt.Errorf("deleting stale sessions: %w", err)
	}
	if err := tx.Commit(); err != nil {
		return nil, fmt.Errorf("committing cleanup: %w", err)
	}
	return stale, nil
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanSession(r rowScanner) (session.Session, error) {
	var (
		sess                        session.Session
		registeredAt, lastHeartbeat string
		pid                         sql.NullInt64
	)
	err := r.Scan(&sess.ID, &sess.Name, &sess.Machine, &sess.Cwd, &sess.Repo,
		&registeredAt, &lastHeartbeat, &pid)
	if err != nil {
		return session.Session{}, err
	}
	sess.RegisteredAt, _ = time.Parse(timeFormat, registeredAt)
	sess.LastHeartbeat, _ = time.Parse(timeFormat, lastHeartbeat)
	if pid.Valid {
		p := int(pid.Int64)
		sess.PID = &p
	}
	return sess, nil
}

func collectSessions(rows *sql.Rows) ([]session.Session, error) {
	var sessions []session.Session
	for rows.Next() {
		sess, err := scanSession(rows)
		if err != nil {
			return nil, fmt.Errorf("scanning session row: %w", err)
		}
		sessions = append(sessions, sess)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterating session rows: %w", err)
	}
	return sessions, nil
}

func nullablePID(pid *int) any {
	if pid == nil {
		return nil
	}
	return int64(*pid)
}
