package scans

import (
	"time"
)

// ID type for Scan (external correlation id, caller visible)
type ScanID string

// ID type for File
type FileID string

// JobID is the internal job row id
type JobID int64

// JobStatus enum
type JobStatus string

const (
	JobRunning JobStatus = "running"
	JobSuccess JobStatus = "success"
	JobError   JobStatus = "error"
)

// Aggregate root: Scan
type Scan struct {
	ID        ScanID    `json:"id"`
	Seq       int64     `json:"-"` // internal sequence id, assigned by persistence
	User      string    `json:"user"`
	CreatedAt time.Time `json:"created_at"`
	Status    Status    `json:"status"`
	ClientIP  string    `json:"client_ip,omitempty"`
	FileCount int       `json:"file_count"`

	// Probe selection recorded at launch so resubmitted files reuse it.
	Probes []string `json:"probes,omitempty"`
	Force  bool     `json:"force,omitempty"`
}

// File is one submission unit inside a scan
type File struct {
	ID          FileID `json:"id"`
	ScanID      ScanID `json:"scan_id"`
	ContentHash string `json:"content_hash"`
	Mimetype    string `json:"mimetype"`
	Depth       int    `json:"depth"`
	ParentJobID JobID  `json:"parent_job_id,omitempty"` // 0 for originally submitted files
	Handle      string `json:"handle,omitempty"`        // blob object key within the user namespace
}

// Job is one (file, probe) unit of work
type Job struct {
	ID         JobID     `json:"id"`
	ScanID     ScanID    `json:"scan_id"`
	FileID     FileID    `json:"file_id"`
	Probe      string    `json:"probe"`
	TaskHandle string    `json:"task_handle,omitempty"` // dispatch handle used for revocation
	Status     JobStatus `json:"status"`
	StartedAt  time.Time `json:"started_at"`
	EndedAt    time.Time `json:"ended_at,omitempty"`
}

// Finished reports whether the job reached a terminal status.
func (j *Job) Finished() bool {
	return j.Status == JobSuccess || j.Status == JobError
}

// ProbeResult is the opaque payload a probe returns for one file
type ProbeResult struct {
	FileID     FileID `json:"file_id"`
	Probe      string `json:"probe"`
	StatusCode int    `json:"status_code"`
	Doc        string `json:"doc"` // free-form result document (JSON)
	DurationMS int64  `json:"duration_ms"`
}

// Progress snapshot over all jobs of a scan
type Progress struct {
	Status     Status `json:"status"`
	Total      int    `json:"total"`
	Finished   int    `json:"finished"`
	Successful int    `json:"successful"`
}

// CancelSummary is returned by the cancellation controller
type CancelSummary struct {
	Total                int    `json:"total"`
	FinishedBeforeCancel int    `json:"finished_before_cancel"`
	Cancelled            int    `json:"cancelled"`
	Warning              string `json:"warning,omitempty"`
}
