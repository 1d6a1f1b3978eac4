package postgres

import (
	"context"
	"database/sql"

	domain "github.com/bryanwahyu/scanfleet/internal/domain/scans"
)

type FileRepository struct{ db *sql.DB }

func NewFileRepository(db *sql.DB) *FileRepository { return &FileRepository{db: db} }

func (r *FileRepository) Save(ctx context.Context, f *domain.File) error {
	const q = `
INSERT INTO scan_files
(id, scan_id, content_hash, mimetype, depth, parent_job_id, handle)
VALUES ($1,$2,$3,$4,$5,$6,$7)
ON CONFLICT (id) DO UPDATE SET
 mimetype = EXCLUDED.mimetype,
 handle = EXCLUDED.handle;`

	_, err := r.db.ExecContext(ctx, q,
		f.ID, f.ScanID, f.ContentHash, f.Mimetype, f.Depth,
		nullInt64(int64(f.ParentJobID)), nullString(f.Handle),
	)
	return err
}

func (r *FileRepository) Get(ctx context.Context, id domain.FileID) (*domain.File, error) {
	const q = `
SELECT id, scan_id, content_hash, mimetype, depth, parent_job_id, handle
FROM scan_files
WHERE id=$1 LIMIT 1;`
	return scanFile(r.db.QueryRowContext(ctx, q, id))
}

func (r *FileRepository) ListByScan(ctx context.Context, id domain.ScanID) ([]*domain.File, error) {
	const q = `
SELECT id, scan_id, content_hash, mimetype, depth, parent_job_id, handle
FROM scan_files
WHERE scan_id=$1 ORDER BY depth, id;`

	rows, err := r.db.QueryContext(ctx, q, id)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []*domain.File
	for rows.Next() {
		f, err := scanFile(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, f)
	}
	return out, rows.Err()
}

func (r *FileRepository) AttachResult(ctx context.Context, pr *domain.ProbeResult) error {
	const q = `
INSERT INTO probe_results
(file_id, probe, status_code, doc, duration_ms)
VALUES ($1,$2,$3,$4,$5)
ON CONFLICT (file_id, probe) DO UPDATE SET
 status_code = EXCLUDED.status_code,
 doc = EXCLUDED.doc,
 duration_ms = EXCLUDED.duration_ms;`

	_, err := r.db.ExecContext(ctx, q,
		pr.FileID, pr.Probe, pr.StatusCode, pr.Doc, pr.DurationMS,
	)
	return err
}

func (r *FileRepository) ListResults(ctx context.Context, id domain.FileID) ([]*domain.ProbeResult, error) {
	const q = `
SELECT file_id, probe, status_code, doc, duration_ms
FROM probe_results
WHERE file_id=$1 ORDER BY probe;`

	rows, err := r.db.QueryContext(ctx, q, id)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []*domain.ProbeResult
	for rows.Next() {
		var pr domain.ProbeResult
		if err := rows.Scan(&pr.FileID, &pr.Probe, &pr.StatusCode, &pr.Doc, &pr.DurationMS); err != nil {
			return nil, err
		}
		out = append(out, &pr)
	}
	return out, rows.Err()
}

func scanFile(row rowScanner) (*domain.File, error) {
	var f domain.File
	var parentJob sql.NullInt64
	var handle sql.NullString
	if err := row.Scan(
		&f.ID, &f.ScanID, &f.ContentHash, &f.Mimetype, &f.Depth,
		&parentJob, &handle,
	); err != nil {
		return nil, err
	}
	f.ParentJobID = domain.JobID(parentJob.Int64)
	f.Handle = handle.String
	return &f, nil
}
