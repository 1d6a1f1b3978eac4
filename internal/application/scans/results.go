package scans

import (
	"context"
	"database/sql"
	"errors"
	"log"
	"time"

	"github.com/cenkalti/backoff/v4"

	domain "github.com/bryanwahyu/scanfleet/internal/domain/scans"
)

// resultRetryAttempts bounds handler-side persistence retries; beyond it
// the error surfaces and the work item's own redelivery governs re-execution.
const resultRetryAttempts = 3

const resultRetryInterval = 2 * time.Second

// OnResult consumes one completed/failed work item: it marks the job
// exactly once, attaches the probe result, hands emitted files to the
// resubmission controller and detects scan completion. Re-applying the
// same result is idempotent.
func (s *Service) OnResult(ctx context.Context, ref domain.FileRef, probe string, res domain.Result, failed bool) error {
	unlock := s.lock(ref.Scan)
	defer unlock()

	scan, err := s.Scans.Get(ctx, ref.Scan)
	if errors.Is(err, sql.ErrNoRows) {
		log.Printf("result for unknown scan %s from %s, ignoring", ref.Scan, probe)
		return nil
	}
	if err != nil {
		return err
	}
	if scan.Status != domain.StatusLaunched {
		// Cancelled or already processed: a revoked worker may still
		// report; its stale result must not be acted upon.
		log.Printf("scan %s: ignoring result from %s in %s status", scan.ID, probe, scan.Status)
		return nil
	}

	job, err := s.Jobs.GetByFileProbe(ctx, ref.File, probe)
	if errors.Is(err, sql.ErrNoRows) {
		log.Printf("scan %s: result from %s for undispatched file %s, ignoring", scan.ID, probe, ref.File)
		return nil
	}
	if err != nil {
		return err
	}
	if job.Finished() {
		return nil // redelivery, no double counting
	}

	status := domain.JobSuccess
	if failed {
		status = domain.JobError
	}

	record := func() error {
		done, err := s.Jobs.MarkDone(ctx, job.ID, status, s.Clock.Now())
		if err != nil {
			return err
		}
		if !done {
			return nil
		}
		return s.Files.AttachResult(ctx, &domain.ProbeResult{
			FileID:     ref.File,
			Probe:      probe,
			StatusCode: res.StatusCode,
			Doc:        res.Doc,
			DurationMS: res.DurationMS,
		})
	}
	policy := backoff.WithMaxRetries(backoff.NewConstantBackOff(resultRetryInterval), resultRetryAttempts-1)
	if err := backoff.Retry(record, backoff.WithContext(policy, ctx)); err != nil {
		return err
	}

	if !failed && len(res.OutputFiles) > 0 {
		s.resubmit(ctx, scan, ref.File, job, res.OutputFiles)
	}

	return s.settleLocked(ctx, scan)
}

// settleLocked recomputes progress over the full current job set and
// advances launched -> processed when every job finished. Counting from
// the job set, not a running counter, keeps re-delivery harmless.
func (s *Service) settleLocked(ctx context.Context, scan *domain.Scan) error {
	total, finished, _, err := s.tally(ctx, scan.ID)
	if err != nil {
		return err
	}
	if total == 0 || finished < total {
		return nil
	}

	if err := scan.TransitionTo(domain.StatusProcessed); err != nil {
		return err
	}
	if err := s.Scans.UpdateStatus(ctx, scan.ID, domain.StatusProcessed); err != nil {
		return err
	}

	// Release transient transport resources; job rows survive until flush.
	if u, err := s.Users.Get(ctx, scan.User); err == nil {
		if err := s.Blobs.RemovePrefix(ctx, u.Namespace, string(scan.ID)); err != nil {
			log.Printf("scan %s: remove transient blobs: %v", scan.ID, err)
		}
	}

	if s.Hook != nil {
		s.Hook(ctx, scan)
	}
	return nil
}

// Progress reports (status, total, finished, successful) for the scan.
// Read-only, except that observing processed lazily advances the
// externally visible status to finished.
func (s *Service) Progress(ctx context.Context, scanID domain.ScanID) (*domain.Progress, error) {
	unlock := s.lock(scanID)
	defer unlock()

	scan, err := s.Scans.Get(ctx, scanID)
	if err != nil {
		return nil, err
	}
	total, finished, successful, err := s.tally(ctx, scanID)
	if err != nil {
		return nil, err
	}

	if scan.Status == domain.StatusProcessed {
		if err := scan.TransitionTo(domain.StatusFinished); err != nil {
			return nil, err
		}
		if err := s.Scans.UpdateStatus(ctx, scanID, domain.StatusFinished); err != nil {
			return nil, err
		}
	}

	return &domain.Progress{
		Status:     scan.Status,
		Total:      total,
		Finished:   finished,
		Successful: successful,
	}, nil
}

func (s *Service) tally(ctx context.Context, scanID domain.ScanID) (total, finished, successful int, err error) {
	jobs, err := s.Jobs.ListByScan(ctx, scanID)
	if err != nil {
		return 0, 0, 0, err
	}
	for _, j := range jobs {
		total++
		if j.Finished() {
			finished++
		}
		if j.Status == domain.JobSuccess {
			successful++
		}
	}
	return total, finished, successful, nil
}
