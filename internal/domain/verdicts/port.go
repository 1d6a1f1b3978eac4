package verdicts

import "context"

// Client is the AI provider port.
type Client interface {
	Summarize(ctx context.Context, resultsJSON string) (string, error)
}

// Repository defines persistence for verdicts.
type Repository interface {
	Save(ctx context.Context, v *Verdict) error
	GetByScan(ctx context.Context, scanID string) (*Verdict, error)
}
