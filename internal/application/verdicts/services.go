package verdicts

import (
	"context"
	"encoding/json"
	"fmt"
	"log"

	"github.com/google/uuid"

	"github.com/bryanwahyu/scanfleet/internal/application"
	domain "github.com/bryanwahyu/scanfleet/internal/domain/scans"
	"github.com/bryanwahyu/scanfleet/internal/domain/verdicts"
)

// Service produces an AI summary of a processed scan's probe results and
// stores it. Wired as the dispatcher's completion hook when a provider
// key is configured.
type Service struct {
	Client verdicts.Client
	Repo   verdicts.Repository
	Files  domain.FileRepository
	Clock  application.Clock
}

// Summarize collects every probe result of the scan, asks the provider
// for a verdict and persists it.
func (s *Service) Summarize(ctx context.Context, scan *domain.Scan) (*verdicts.Verdict, error) {
	files, err := s.Files.ListByScan(ctx, scan.ID)
	if err != nil {
		return nil, err
	}

	type fileResults struct {
		ContentHash string                `json:"content_hash"`
		Mimetype    string                `json:"mimetype"`
		Results     []*domain.ProbeResult `json:"results"`
	}
	collected := make([]fileResults, 0, len(files))
	for _, f := range files {
		results, err := s.Files.ListResults(ctx, f.ID)
		if err != nil {
			return nil, err
		}
		collected = append(collected, fileResults{
			ContentHash: f.ContentHash,
			Mimetype:    f.Mimetype,
			Results:     results,
		})
	}

	payload, err := json.Marshal(collected)
	if err != nil {
		return nil, err
	}
	summary, err := s.Client.Summarize(ctx, string(payload))
	if err != nil {
		return nil, fmt.Errorf("summarize scan %s: %w", scan.ID, err)
	}

	v := &verdicts.Verdict{
		ID:        verdicts.VerdictID(uuid.New().String()),
		ScanID:    string(scan.ID),
		Summary:   summary,
		CreatedAt: s.Clock.Now(),
	}
	if err := s.Repo.Save(ctx, v); err != nil {
		return nil, err
	}
	return v, nil
}

// Hook adapts Summarize to the completion-hook signature; provider
// failures are logged, a verdict is best-effort.
func (s *Service) Hook(ctx context.Context, scan *domain.Scan) {
	if _, err := s.Summarize(ctx, scan); err != nil {
		log.Printf("scan %s: verdict: %v", scan.ID, err)
	}
}
