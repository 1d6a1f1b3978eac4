package mysql

import "database/sql"

// Store bundles every repository over one connection pool.
type Store struct {
	Scans    *ScanRepository
	Files    *FileRepository
	Jobs     *JobRepository
	Probes   *ProbeRepository
	Users    *UserRepository
	Verdicts *VerdictRepository
	Locker   *Locker
}

func NewStore(db *sql.DB) *Store {
	return &Store{
		Scans:    NewScanRepository(db),
		Files:    NewFileRepository(db),
		Jobs:     NewJobRepository(db),
		Probes:   NewProbeRepository(db),
		Users:    NewUserRepository(db),
		Verdicts: NewVerdictRepository(db),
		Locker:   NewLocker(db),
	}
}
