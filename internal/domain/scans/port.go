package scans

import (
	"context"
	"time"
)

// ScanRepository port (persistence for Scan rows)
type ScanRepository interface {
	Save(ctx context.Context, s *Scan) error
	Get(ctx context.Context, id ScanID) (*Scan, error)
	UpdateStatus(ctx context.Context, id ScanID, status Status) error
}

// FileRepository port
type FileRepository interface {
	Save(ctx context.Context, f *File) error
	Get(ctx context.Context, id FileID) (*File, error)
	ListByScan(ctx context.Context, id ScanID) ([]*File, error)

	// AttachResult upserts the probe result for (file, probe); a forced
	// re-scan overwrites the previous document.
	AttachResult(ctx context.Context, r *ProbeResult) error
	ListResults(ctx context.Context, id FileID) ([]*ProbeResult, error)
}

// JobRepository port
type JobRepository interface {
	Create(ctx context.Context, j *Job) error
	SetTaskHandle(ctx context.Context, id JobID, handle string) error
	GetByFileProbe(ctx context.Context, fileID FileID, probe string) (*Job, error)
	ListByScan(ctx context.Context, id ScanID) ([]*Job, error)

	// MarkDone flips running -> status exactly once; it returns false when
	// the job already left running, so redelivered results stay idempotent.
	MarkDone(ctx context.Context, id JobID, status JobStatus, endedAt time.Time) (bool, error)

	CountRunningByProbe(ctx context.Context, probe string) (int, error)
	CountByUserSince(ctx context.Context, user string, since time.Time) (int, error)
	DeleteByScan(ctx context.Context, id ScanID) error
}

// BlobStore port (transport-side storage of file contents, keyed by
// namespace + handle; not implemented by the orchestration core itself)
type BlobStore interface {
	Upload(ctx context.Context, namespace, localPath, handle string) error
	Download(ctx context.Context, namespace, handle string) ([]byte, error)
	Stat(ctx context.Context, namespace, handle string) error
	RemovePrefix(ctx context.Context, namespace, prefix string) error
}
