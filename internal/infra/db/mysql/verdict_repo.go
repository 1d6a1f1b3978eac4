package mysql

import (
	"context"
	"database/sql"

	"github.com/bryanwahyu/scanfleet/internal/domain/verdicts"
)

type VerdictRepository struct {
	db *sql.DB
}

func NewVerdictRepository(db *sql.DB) *VerdictRepository {
	return &VerdictRepository{db: db}
}

func (r *VerdictRepository) Save(ctx context.Context, v *verdicts.Verdict) error {
	const q = `
INSERT INTO scan_verdicts
(id, scan_id, summary, created_at)
VALUES (?,?,?,?)
ON DUPLICATE KEY UPDATE
 summary=VALUES(summary);
`
	_, err := r.db.ExecContext(ctx, q, v.ID, v.ScanID, v.Summary, v.CreatedAt)
	return err
}

func (r *VerdictRepository) GetByScan(ctx context.Context, scanID string) (*verdicts.Verdict, error) {
	const q = `
SELECT id, scan_id, summary, created_at
FROM scan_verdicts
WHERE scan_id=? ORDER BY created_at DESC LIMIT 1;
`
	var v verdicts.Verdict
	if err := r.db.QueryRowContext(ctx, q, scanID).Scan(
		&v.ID, &v.ScanID, &v.Summary, &v.CreatedAt,
	); err != nil {
		return nil, err
	}
	return &v, nil
}
