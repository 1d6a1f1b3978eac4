package verdicts

import "time"

// VerdictID identifier type
type VerdictID string

// Verdict is an AI-generated summary of a processed scan's probe results,
// stored for auditing and retrieval.
type Verdict struct {
	ID        VerdictID `json:"id"`
	ScanID    string    `json:"scan_id"`
	Summary   string    `json:"summary"` // JSON string from the AI provider
	CreatedAt time.Time `json:"created_at"`
}
