// Package session tracks the agent processes registered on the bus.
package session

import (
	"context"
	"strings"
	"time"

	ps "github.com/mitchellh/go-ps"
)

// Session is the domain representation of a registered agent process.
type Session struct {
	ID            string
	Name          string
	Machine       string
	Cwd           string
	Repo          string
	RegisteredAt  time.Time
	LastHeartbeat time.Time

	// PID is the agent's OS process id, used only as a liveness hint.
	// Nil when the caller did not report one.
	PID *int
}

// Store persists sessions. At most one session may exist per
// (machine, cwd, pid) triple; AddSession upserts by id and the registry
// removes any prior triple match before inserting.
type Store interface {
	AddSession(ctx context.Context, s Session) error
	GetSession(ctx context.Context, id string) (Session, bool, error)
	DeleteSession(ctx context.Context, id string) (bool, error)
	ListSessions(ctx context.Context) ([]Session, error)
	SessionCount(ctx context.Context) (int, error)

	// FindSessionByKey matches the exact (machine, cwd, pid) triple.
	// Sessions stored without a pid never match.
	FindSessionByKey(ctx context.Context, machine, cwd string, pid int) (Session, bool, error)

	// UpdateHeartbeat sets last_heartbeat to max(previous, t) and reports
	// whether the session exists.
	UpdateHeartbeat(ctx context.Context, id string, t time.Time) (bool, error)

	// CleanupStale removes every session whose last heartbeat is older than
	// timeout and returns the removed sessions so lifecycle events can be
	// emitted for them.
	CleanupStale(ctx context.Context, timeout time.Duration) ([]Session, error)
}

// DeriveRepo extracts a short repository identifier from a working
// directory. For git worktree layouts like /src/myrepo/.worktrees/branch the
// repo is the segment before ".worktrees"; otherwise it is the last path
// component.
func DeriveRepo(cwd string) string {
	parts := strings.Split(strings.TrimRight(cwd, "/"), "/")
	for i, p := range parts {
		if p == ".worktrees" && i > 0 {
			return parts[i-1]
		}
	}
	if last := parts[len(parts)-1]; last != "" {
		return last
	}
	return "unknown"
}

// Alive reports whether the process behind pid still exists. Probe errors
// are interpreted optimistically: a session we cannot check is assumed live.
func Alive(pid *int) bool {
	if pid == nil {
		return true
	}
	p, err := ps.FindProcess(*pid)
	if err != nil {
		return true
	}
	return p != nil
}
