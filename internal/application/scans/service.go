package scans

import (
	"context"
	"log"
	"sync"

	"github.com/bryanwahyu/scanfleet/internal/application"
	"github.com/bryanwahyu/scanfleet/internal/domain/bus"
	domain "github.com/bryanwahyu/scanfleet/internal/domain/scans"
	"github.com/bryanwahyu/scanfleet/internal/domain/users"
)

// Registry port consumed by the dispatcher
type Registry interface {
	List(ctx context.Context) ([]string, error)
	Resolve(ctx context.Context, f *domain.File) ([]string, error)
}

// Quota port consumed by the dispatcher; Remaining returns quota.Unlimited
// (-1) when enforcement is disabled for the user.
type Quota interface {
	Remaining(ctx context.Context, user string) (int, error)
}

// Service implements the scan use-cases: submission, dispatch, result
// aggregation, resubmission and cancellation/flush. Every status-mutating
// operation runs under a per-scan lock, so a scan is never mutated by two
// controller operations concurrently.
type Service struct {
	Scans    domain.ScanRepository
	Files    domain.FileRepository
	Jobs     domain.JobRepository
	Users    users.Repository
	Registry Registry
	Quota    Quota
	Bus      bus.Bus
	Blobs    domain.BlobStore
	Clock    application.Clock

	// MaxResubmitDepth bounds how deep probe-emitted files may recurse.
	MaxResubmitDepth int

	// Hook is notified after a scan reaches processed (completion hook).
	Hook func(ctx context.Context, scan *domain.Scan)

	mu    sync.Mutex
	locks map[domain.ScanID]*sync.Mutex
}

// lock acquires the per-scan mutex and returns its release. The lock is
// held for the check-then-act sequence, never across a call to a worker.
func (s *Service) lock(id domain.ScanID) func() {
	s.mu.Lock()
	if s.locks == nil {
		s.locks = make(map[domain.ScanID]*sync.Mutex)
	}
	l, ok := s.locks[id]
	if !ok {
		l = &sync.Mutex{}
		s.locks[id] = l
	}
	s.mu.Unlock()

	l.Lock()
	return l.Unlock
}

// fail forces the scan into an explicit error status; failures here are
// logged, the original condition is what the caller sees.
func (s *Service) fail(ctx context.Context, scan *domain.Scan, status domain.Status) {
	if err := scan.TransitionTo(status); err != nil {
		log.Printf("scan %s: %v", scan.ID, err)
		return
	}
	if err := s.Scans.UpdateStatus(ctx, scan.ID, status); err != nil {
		log.Printf("scan %s: persist status %s: %v", scan.ID, status, err)
	}
}
