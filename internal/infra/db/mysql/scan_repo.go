package mysql

import (
	"context"
	"database/sql"
	"time"

	domain "github.com/bryanwahyu/scanfleet/internal/domain/scans"
)

type ScanRepository struct {
	db *sql.DB
}

func NewScanRepository(db *sql.DB) *ScanRepository {
	return &ScanRepository{db: db}
}

// Save insert/update Scan record
func (r *ScanRepository) Save(ctx context.Context, s *domain.Scan) error {
	const q = `
INSERT INTO scans
(id, user_key, created_at, status, client_ip, file_count, probe_list, force_rescan)
VALUES (?,?,?,?,?,?,?,?)
ON DUPLICATE KEY UPDATE
 status=VALUES(status),
 file_count=VALUES(file_count),
 probe_list=VALUES(probe_list),
 force_rescan=VALUES(force_rescan);
`
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

// Get by external id
func (r *ScanRepository) Get(ctx context.Context, id domain.ScanID) (*domain.Scan, error) {
	const q = `
SELECT id, seq, user_key, created_at, status, client_ip, file_count, probe_list, force_rescan
FROM scans
WHERE id=? LIMIT 1;
`
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

// UpdateStatus persists one status transition
func (r *ScanRepository) UpdateStatus(ctx context.Context, id domain.ScanID, status domain.Status) error {
	const q = `UPDATE scans SET status=? WHERE id=?;`
	_, err := r.db.ExecContext(ctx, q, status, id)
	return err
}
