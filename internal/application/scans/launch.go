package scans

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log"

	"github.com/bryanwahyu/scanfleet/internal/application/quota"
	"github.com/bryanwahyu/scanfleet/internal/domain/bus"
	domain "github.com/bryanwahyu/scanfleet/internal/domain/scans"
	"github.com/bryanwahyu/scanfleet/internal/domain/users"
)

type candidate struct {
	file  *domain.File
	probe string
}

// Launch fans the scan out into one job per (file, probe) pair and emits
// the work items. Invoking Launch on a scan already past ready is a no-op,
// not a duplicate dispatch.
func (s *Service) Launch(ctx context.Context, scanID domain.ScanID, probesOverride []string, force bool) (int, error) {
	unlock := s.lock(scanID)
	defer unlock()

	scan, err := s.Scans.Get(ctx, scanID)
	if err != nil {
		return 0, err
	}
	switch scan.Status {
	case domain.StatusReady, domain.StatusUploaded:
		// proceed
	case domain.StatusEmpty:
		return 0, domain.Validationf("scan %s has no files", scanID)
	default:
		log.Printf("scan %s: launch is a no-op in %s status", scanID, scan.Status)
		return 0, nil
	}

	u, err := s.Users.Get(ctx, scan.User)
	if err != nil {
		return 0, err
	}
	files, err := s.Files.ListByScan(ctx, scanID)
	if err != nil {
		return 0, err
	}

	// Any unknown probe in an explicit override aborts the whole scan.
	if len(probesOverride) > 0 {
		online, err := s.Registry.List(ctx)
		if err != nil {
			return 0, err
		}
		known := make(map[string]bool, len(online))
		for _, name := range online {
			known[name] = true
		}
		for _, name := range probesOverride {
			if !known[name] {
				s.fail(ctx, scan, domain.StatusProbeMissing)
				return 0, domain.Validationf("unknown probe %q", name)
			}
		}
	}

	scan.Probes = probesOverride
	scan.Force = force

	// Validation pass first: candidate sets and blob existence are checked
	// for every file before any job row is created.
	var pairs []candidate
	for _, f := range files {
		cands, err := s.candidatesFor(ctx, scan, f)
		if err != nil {
			return 0, err
		}
		if len(cands) == 0 && !s.satisfied(ctx, f, probesOverride) {
			if len(probesOverride) > 0 {
				s.fail(ctx, scan, domain.StatusProbeMissing)
				return 0, domain.Validationf("no probe left for file %s after filtering", f.ID)
			}
			s.fail(ctx, scan, domain.StatusProbeNA)
			return 0, domain.Validationf("no probe online for mimetype %q", f.Mimetype)
		}
		if err := s.Blobs.Stat(ctx, u.Namespace, f.Handle); err != nil {
			return 0, domain.Validationf("file %s: content blob missing from storage", f.ID)
		}
		for _, probe := range cands {
			pairs = append(pairs, candidate{file: f, probe: probe})
		}
	}

	created, err := s.dispatchPairs(ctx, scan, u, pairs)
	if err != nil {
		s.fail(ctx, scan, domain.StatusError)
		return created, err
	}

	target := domain.StatusLaunched
	if created == 0 {
		// Nothing to do: every pair was already satisfied or quota-bounded.
		target = domain.StatusFinished
	}
	if err := scan.TransitionTo(target); err != nil {
		return created, err
	}
	if err := s.Scans.Save(ctx, scan); err != nil {
		return created, err
	}
	return created, nil
}

// candidatesFor computes the probe set for a file: the recorded override
// when present, else registry resolution, minus pairs already dispatched
// unless the scan forces a re-scan.
func (s *Service) candidatesFor(ctx context.Context, scan *domain.Scan, f *domain.File) ([]string, error) {
	cands := scan.Probes
	if len(cands) == 0 {
		resolved, err := s.Registry.Resolve(ctx, f)
		if err != nil {
			return nil, err
		}
		cands = resolved
	}
	if scan.Force {
		return cands, nil
	}

	var out []string
	for _, probe := range cands {
		_, err := s.Jobs.GetByFileProbe(ctx, f.ID, probe)
		switch {
		case errors.Is(err, sql.ErrNoRows):
			out = append(out, probe)
		case err != nil:
			return nil, err
		default:
			// already dispatched for this pair, skip
		}
	}
	return out, nil
}

// satisfied reports whether the file already holds a job for every probe
// in its candidate set, so an empty filtered set is not an error.
func (s *Service) satisfied(ctx context.Context, f *domain.File, override []string) bool {
	probes := override
	if len(probes) == 0 {
		resolved, err := s.Registry.Resolve(ctx, f)
		if err != nil {
			return false
		}
		probes = resolved
	}
	if len(probes) == 0 {
		return false
	}
	for _, probe := range probes {
		if _, err := s.Jobs.GetByFileProbe(ctx, f.ID, probe); err != nil {
			return false
		}
	}
	return true
}

// dispatchPairs consults the quota once for the batch, then creates one
// job row and emits one work item per accepted pair. Already-created jobs
// are never rolled back when the quota runs out mid-batch.
func (s *Service) dispatchPairs(ctx context.Context, scan *domain.Scan, u *users.User, pairs []candidate) (int, error) {
	remaining, err := s.Quota.Remaining(ctx, scan.User)
	if err != nil {
		return 0, err
	}

	created := 0
	for _, pair := range pairs {
		if remaining != quota.Unlimited && remaining <= 0 {
			log.Printf("scan %s: quota exhausted for %s after %d jobs", scan.ID, scan.User, created)
			break
		}

		job := &domain.Job{
			ScanID:    scan.ID,
			FileID:    pair.file.ID,
			Probe:     pair.probe,
			Status:    domain.JobRunning,
			StartedAt: s.Clock.Now(),
		}
		if err := s.Jobs.Create(ctx, job); err != nil {
			return created, fmt.Errorf("create job: %w", err)
		}

		msg, err := bus.New(bus.OpProbeScan, u.Namespace, pair.file.Ref())
		if err != nil {
			return created, err
		}
		handle, err := s.Bus.Publish(ctx, pair.probe, msg)
		if err != nil {
			return created, fmt.Errorf("dispatch to %s: %w", pair.probe, err)
		}
		if err := s.Jobs.SetTaskHandle(ctx, job.ID, handle); err != nil {
			return created, err
		}

		created++
		if remaining != quota.Unlimited {
			remaining--
		}
	}
	return created, nil
}
