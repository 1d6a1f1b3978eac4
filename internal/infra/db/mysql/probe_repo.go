package mysql

import (
	"context"
	"database/sql"
	"errors"
	"time"

	"github.com/bryanwahyu/scanfleet/internal/domain/probes"
)

type ProbeRepository struct {
	db *sql.DB
}

func NewProbeRepository(db *sql.DB) *ProbeRepository {
	return &ProbeRepository{db: db}
}

// Upsert creates or refreshes the durable probe record. Probes are never
// deleted while historical jobs reference them.
func (r *ProbeRepository) Upsert(ctx context.Context, p *probes.Probe) error {
	const q = `
INSERT INTO probes
(name, display_name, category, mimetype_regexp, online)
VALUES (?,?,?,?,?)
ON DUPLICATE KEY UPDATE
 display_name=VALUES(display_name),
 category=VALUES(category),
 mimetype_regexp=VALUES(mimetype_regexp),
 online=VALUES(online);
`
	_, err := r.db.ExecContext(ctx, q,
		p.Name, p.DisplayName, p.Category, nullString(p.MimetypeRegexp), p.Online,
	)
	return err
}

func (r *ProbeRepository) Get(ctx context.Context, name string) (*probes.Probe, error) {
	const q = `
SELECT name, display_name, category, mimetype_regexp, online
FROM probes
WHERE name=? LIMIT 1;
`
	return scanProbe(r.db.QueryRowContext(ctx, q, name))
}

func (r *ProbeRepository) List(ctx context.Context) ([]*probes.Probe, error) {
	const q = `
SELECT name, display_name, category, mimetype_regexp, online
FROM probes
ORDER BY name;
`
	rows, err := r.db.QueryContext(ctx, q)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []*probes.Probe
	for rows.Next() {
		p, err := scanProbe(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, p)
	}
	return out, rows.Err()
}

func (r *ProbeRepository) SetOnline(ctx context.Context, name string, online bool) error {
	const q = `UPDATE probes SET online=? WHERE name=?;`
	_, err := r.db.ExecContext(ctx, q, online, name)
	return err
}

// LastDiscovery reads the shared marker recording when any process last ran
// probe discovery. The zero time means discovery has never run.
func (r *ProbeRepository) LastDiscovery(ctx context.Context) (time.Time, error) {
	const q = `SELECT refreshed_at FROM probe_discovery WHERE id=1 LIMIT 1;`
	var at time.Time
	err := r.db.QueryRowContext(ctx, q).Scan(&at)
	if errors.Is(err, sql.ErrNoRows) {
		return time.Time{}, nil
	}
	if err != nil {
		return time.Time{}, err
	}
	return at, nil
}

func (r *ProbeRepository) SetLastDiscovery(ctx context.Context, at time.Time) error {
	const q = `
INSERT INTO probe_discovery (id, refreshed_at)
VALUES (1, ?)
ON DUPLICATE KEY UPDATE refreshed_at=VALUES(refreshed_at);
`
	_, err := r.db.ExecContext(ctx, q, at)
	return err
}

func scanProbe(row rowScanner) (*probes.Probe, error) {
	var p probes.Probe
	var pattern sql.NullString
	if err := row.Scan(&p.Name, &p.DisplayName, &p.Category, &pattern, &p.Online); err != nil {
		return nil, err
	}
	p.MimetypeRegexp = pattern.String
	return &p, nil
}
