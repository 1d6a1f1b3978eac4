package scans

import (
	"context"
	"log"

	"github.com/google/uuid"

	domain "github.com/bryanwahyu/scanfleet/internal/domain/scans"
)

// resubmit re-enters probe-emitted files into the dispatcher at depth+1,
// reusing the scan's original probe selection and force flag. Past the
// depth bound the new files are dropped silently, not rejected.
func (s *Service) resubmit(ctx context.Context, scan *domain.Scan, parentID domain.FileID, parentJob *domain.Job, outputs []domain.OutputFile) {
	parent, err := s.Files.Get(ctx, parentID)
	if err != nil {
		log.Printf("scan %s: resubmit: load parent file %s: %v", scan.ID, parentID, err)
		return
	}
	if parent.Depth+1 > s.MaxResubmitDepth {
		log.Printf("scan %s: dropping %d files emitted by %s at depth bound %d",
			scan.ID, len(outputs), parentJob.Probe, s.MaxResubmitDepth)
		return
	}

	u, err := s.Users.Get(ctx, scan.User)
	if err != nil {
		log.Printf("scan %s: resubmit: load user: %v", scan.ID, err)
		return
	}

	var pairs []candidate
	for _, out := range outputs {
		f := &domain.File{
			ID:          domain.FileID(uuid.New().String()),
			ScanID:      scan.ID,
			ContentHash: out.ContentHash,
			Mimetype:    out.Mimetype,
			Depth:       parent.Depth + 1,
			ParentJobID: parentJob.ID,
			Handle:      out.Handle,
		}
		if err := s.Files.Save(ctx, f); err != nil {
			log.Printf("scan %s: resubmit: save file: %v", scan.ID, err)
			continue
		}

		cands, err := s.candidatesFor(ctx, scan, f)
		if err != nil {
			log.Printf("scan %s: resubmit: resolve probes for %s: %v", scan.ID, f.ID, err)
			continue
		}
		for _, probe := range cands {
			pairs = append(pairs, candidate{file: f, probe: probe})
		}
	}

	if len(pairs) == 0 {
		return
	}
	if _, err := s.dispatchPairs(ctx, scan, u, pairs); err != nil {
		log.Printf("scan %s: resubmit dispatch: %v", scan.ID, err)
	}
}
