package mysql

import (
	"context"
	"database/sql"
	"time"

	domain "github.com/bryanwahyu/scanfleet/internal/domain/scans"
)

type JobRepository struct {
	db *sql.DB
}

func NewJobRepository(db *sql.DB) *JobRepository {
	return &JobRepository{db: db}
}

func (r *JobRepository) Create(ctx context.Context, j *domain.Job) error {
	const q = `
INSERT INTO scan_jobs
(scan_id, file_id, probe, task_handle, status, started_at)
VALUES (?,?,?,?,?,?);
`
	res, err := r.db.ExecContext(ctx, q,
		j.ScanID, j.FileID, j.Probe, nullString(j.TaskHandle), j.Status, j.StartedAt,
	)
	if err != nil {
		return err
	}
	id, err := res.LastInsertId()
	if err != nil {
		return err
	}
	j.ID = domain.JobID(id)
	return nil
}

func (r *JobRepository) SetTaskHandle(ctx context.Context, id domain.JobID, handle string) error {
	const q = `UPDATE scan_jobs SET task_handle=? WHERE id=?;`
	_, err := r.db.ExecContext(ctx, q, handle, id)
	return err
}

// GetByFileProbe returns the latest job for the pair; a forced re-scan
// creates a new row, so the newest one correlates incoming results.
func (r *JobRepository) GetByFileProbe(ctx context.Context, fileID domain.FileID, probe string) (*domain.Job, error) {
	const q = `
SELECT id, scan_id, file_id, probe, task_handle, status, started_at, ended_at
FROM scan_jobs
WHERE file_id=? AND probe=? ORDER BY id DESC LIMIT 1;
`
	return scanJob(r.db.QueryRowContext(ctx, q, fileID, probe))
}

func (r *JobRepository) ListByScan(ctx context.Context, id domain.ScanID) ([]*domain.Job, error) {
	const q = `
SELECT id, scan_id, file_id, probe, task_handle, status, started_at, ended_at
FROM scan_jobs
WHERE scan_id=? ORDER BY id;
`
	rows, err := r.db.QueryContext(ctx, q, id)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []*domain.Job
	for rows.Next() {
		j, err := scanJob(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, j)
	}
	return out, rows.Err()
}

// MarkDone flips running -> terminal exactly once.
func (r *JobRepository) MarkDone(ctx context.Context, id domain.JobID, status domain.JobStatus, endedAt time.Time) (bool, error) {
	const q = `UPDATE scan_jobs SET status=?, ended_at=? WHERE id=? AND status=?;`
	res, err := r.db.ExecContext(ctx, q, status, endedAt, id, domain.JobRunning)
	if err != nil {
		return false, err
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, err
	}
	return n > 0, nil
}

func (r *JobRepository) CountRunningByProbe(ctx context.Context, probe string) (int, error) {
	const q = `SELECT COUNT(*) FROM scan_jobs WHERE probe=? AND status=?;`
	var n int
	err := r.db.QueryRowContext(ctx, q, probe, domain.JobRunning).Scan(&n)
	return n, err
}

// CountByUserSince feeds the rolling-window quota.
func (r *JobRepository) CountByUserSince(ctx context.Context, user string, since time.Time) (int, error) {
	const q = `
SELECT COUNT(*)
FROM scan_jobs j
JOIN scans s ON s.id = j.scan_id
WHERE s.user_key=? AND j.started_at >= ?;
`
	var n int
	err := r.db.QueryRowContext(ctx, q, user, since).Scan(&n)
	return n, err
}

func (r *JobRepository) DeleteByScan(ctx context.Context, id domain.ScanID) error {
	const q = `DELETE FROM scan_jobs WHERE scan_id=?;`
	_, err := r.db.ExecContext(ctx, q, id)
	return err
}

func scanJob(row rowScanner) (*domain.Job, error) {
	var j domain.Job
	var handle sql.NullString
	var ended sql.NullTime
	if err := row.Scan(
		&j.ID, &j.ScanID, &j.FileID, &j.Probe, &handle, &j.Status, &j.StartedAt, &ended,
	); err != nil {
		return nil, err
	}
	j.TaskHandle = handle.String
	j.EndedAt = ended.Time
	return &j, nil
}
