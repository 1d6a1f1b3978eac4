package scans

import (
	"context"
	"fmt"
	"log"

	domain "github.com/bryanwahyu/scanfleet/internal/domain/scans"
)

// Cancel revokes the scan's outstanding work items and moves it through
// cancelling to cancelled, then flushes. Legal only from launched; any
// other non-error status yields a warning summary, not a failure.
func (s *Service) Cancel(ctx context.Context, scanID domain.ScanID) (*domain.CancelSummary, error) {
	unlock := s.lock(scanID)
	defer unlock()

	scan, err := s.Scans.Get(ctx, scanID)
	if err != nil {
		return nil, err
	}
	if scan.Status != domain.StatusLaunched {
		if scan.Status.IsError() {
			return nil, &domain.InvalidTransitionError{From: scan.Status, To: domain.StatusCancelling}
		}
		return &domain.CancelSummary{
			Warning: fmt.Sprintf("cannot cancel scan in %s status", scan.Status),
		}, nil
	}

	// Commit cancelling immediately so a second concurrent cancel warns
	// instead of re-issuing revokes.
	if err := scan.TransitionTo(domain.StatusCancelling); err != nil {
		return nil, err
	}
	if err := s.Scans.UpdateStatus(ctx, scanID, domain.StatusCancelling); err != nil {
		return nil, err
	}

	jobs, err := s.Jobs.ListByScan(ctx, scanID)
	if err != nil {
		return nil, err
	}
	summary := &domain.CancelSummary{Total: len(jobs)}

	var handles []string
	for _, j := range jobs {
		if j.Finished() {
			summary.FinishedBeforeCancel++
			continue
		}
		summary.Cancelled++
		if j.TaskHandle != "" {
			handles = append(handles, j.TaskHandle)
		}
	}

	if len(handles) > 0 {
		// Cooperative at the transport level: a worker mid-analysis is not
		// interrupted, its late result is ignored by the aggregator.
		if err := s.Bus.Revoke(ctx, handles); err != nil {
			log.Printf("scan %s: revoke %d work items: %v", scanID, len(handles), err)
		}
	}

	if err := scan.TransitionTo(domain.StatusCancelled); err != nil {
		return nil, err
	}
	if err := s.Scans.UpdateStatus(ctx, scanID, domain.StatusCancelled); err != nil {
		return nil, err
	}

	if err := s.flushLocked(ctx, scan); err != nil {
		return nil, err
	}
	return summary, nil
}

// Flush releases the scan's transient resources. Idempotent.
func (s *Service) Flush(ctx context.Context, scanID domain.ScanID) error {
	unlock := s.lock(scanID)
	defer unlock()

	scan, err := s.Scans.Get(ctx, scanID)
	if err != nil {
		return err
	}
	return s.flushLocked(ctx, scan)
}

// flushLocked deletes the scan's transient uploaded blobs and its job
// rows; probe results already attached to files are preserved.
func (s *Service) flushLocked(ctx context.Context, scan *domain.Scan) error {
	if scan.Status == domain.StatusFlushed {
		return nil
	}
	if scan.Status != domain.StatusFinished && scan.Status != domain.StatusCancelled {
		return &domain.InvalidTransitionError{From: scan.Status, To: domain.StatusFlushed}
	}

	u, err := s.Users.Get(ctx, scan.User)
	if err != nil {
		return err
	}
	if err := s.Blobs.RemovePrefix(ctx, u.Namespace, string(scan.ID)); err != nil {
		return fmt.Errorf("flush scan %s: remove blobs: %w", scan.ID, err)
	}
	if err := s.Jobs.DeleteByScan(ctx, scan.ID); err != nil {
		return fmt.Errorf("flush scan %s: delete jobs: %w", scan.ID, err)
	}

	if err := scan.TransitionTo(domain.StatusFlushed); err != nil {
		return err
	}
	return s.Scans.UpdateStatus(ctx, scan.ID, domain.StatusFlushed)
}
