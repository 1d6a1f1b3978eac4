package mysql

import (
	"context"
	"database/sql"
	"fmt"
)

// lockWaitSeconds bounds how long a process waits for the discovery lock.
const lockWaitSeconds = 30

// Locker provides cross-process mutual exclusion on top of MySQL
// GET_LOCK. The lock is session scoped, so the acquiring connection is
// pinned until release.
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

	var got sql.NullInt64
	if err := conn.QueryRowContext(ctx, `SELECT GET_LOCK(?, ?);`, name, lockWaitSeconds).Scan(&got); err != nil {
		conn.Close()
		return nil, err
	}
	if !got.Valid || got.Int64 != 1 {
		conn.Close()
		return nil, fmt.Errorf("lock %s: wait timed out", name)
	}

	release := func() {
		// Best effort: closing the connection also drops the lock.
		_, _ = conn.ExecContext(context.Background(), `SELECT RELEASE_LOCK(?);`, name)
		conn.Close()
	}
	return release, nil
}
