package postgres

import (
	"context"
	"database/sql"
	"fmt"
	"time"
)

// lockWait bounds how long a process waits for the discovery lock.
const lockWait = 30 * time.Second

// Locker provides cross-process mutual exclusion on top of Postgres
// advisory locks. The lock is session scoped, so the acquiring
// connection is pinned until release.
type Locker struct {
	db *sql.DB
}

func NewLocker(db *sql.DB) *Locker {
	return &Locker{db: db}
}

func (l *Locker) Acquire(ctx context.Context, name string) (func(), error) {
	conn, err := l.db.Conn(ctx)
	if err != nil {
		return nil, err
	}

	ctx2, cancel := context.WithTimeout(ctx, lockWait)
	defer cancel()
	if _, err := conn.ExecContext(ctx2, `SELECT pg_advisory_lock(hashtext($1));`, name); err != nil {
		conn.Close()
		return nil, fmt.Errorf("lock %s: %w", name, err)
	}

	release := func() {
		// Best effort: closing the connection also drops the lock.
		_, _ = conn.ExecContext(context.Background(), `SELECT pg_advisory_unlock(hashtext($1));`, name)
		conn.Close()
	}
	return release, nil
}
