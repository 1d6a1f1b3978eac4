package postgres

import (
	"context"
	"database/sql"
	"time"

	domain "github.com/bryanwahyu/scanfleet/internal/domain/scans"
)

type ScanRepository struct{ db *sql.DB }

func NewScanRepository(db *sql.DB) *ScanRepository { return &ScanRepository{db: db} }

// Save insert/update Scan record
func (r *ScanRepository) Save(ctx context.Context, s *domain.Scan) error {
	const q = `
INSERT INTO scans
(id, user_key, created_at, status, client_ip, file_count, probe_list, force_rescan)
VALUES ($1,$2,$3,$4,$5,$6,$7,$8)
ON CONFLICT (id) DO UPDATE SET
 status = EXCLUDED.status,
 file_count = EXCLUDED.file_count,
 probe_list = EXCLUDED.probe_list,
 force_rescan = EXCLUDED.force_rescan;`

	created := s.CreatedAt
	if created.IsZero() {
		created = time.Now()
	}
	_, err := r.db.ExecContext(ctx, q,
		s.ID, s.User, created, s.Status, nullString(s.ClientIP),
		s.FileCount, joinList(s.Probes), s.Force,
	)
	return err
}

func (r *ScanRepository) Get(ctx context.Context, id domain.ScanID) (*domain.Scan, error) {
	const q = `
SELECT id, seq, user_key, created_at, status, client_ip, file_count, probe_list, force_rescan
FROM scans
WHERE id=$1 LIMIT 1;`

	row := r.db.QueryRowContext(ctx, q, id)

	var s domain.Scan
	var clientIP, probeList sql.NullString
	if err := row.Scan(
		&s.ID, &s.Seq, &s.User, &s.CreatedAt, &s.Status,
		&clientIP, &s.FileCount, &probeList, &s.Force,
	); err != nil {
		return nil, err
	}
	s.ClientIP = clientIP.String
	s.Probes = splitList(probeList)
	return &s, nil
}

func (r *ScanRepository) UpdateStatus(ctx context.Context, id domain.ScanID, status domain.Status) error {
	const q = `UPDATE scans SET status=$1 WHERE id=$2;`
	_, err := r.db.ExecContext(ctx, q, status, id)
	return err
}
