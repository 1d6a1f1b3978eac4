package scans

import (
	"errors"
	"fmt"
)

// ErrQuotaExceeded indicates the submitter's rolling-window job budget ran out.
// Not fatal for a launch: already-created jobs proceed.
var ErrQuotaExceeded = errors.New("job quota exceeded")

// InvalidTransitionError rejects a status walk not present in the graph.
type InvalidTransitionError struct {
	From Status
	To   Status
}

func (e *InvalidTransitionError) Error() string {
	return fmt.Sprintf("invalid scan transition %s -> %s", e.From, e.To)
}

// ValidationError rejects a request synchronously, before any state mutation.
type ValidationError struct {
	Reason string
}

func (e *ValidationError) Error() string { return e.Reason }

// Validationf builds a ValidationError.
func Validationf(format string, args ...any) error {
	return &ValidationError{Reason: fmt.Sprintf(format, args...)}
}

// UploadError marks a blob transport failure during dispatch; the scan is
// forced into error_ftp_upload.
type UploadError struct {
	Err error
}

func (e *UploadError) Error() string { return fmt.Sprintf("blob upload failed: %v", e.Err) }
func (e *UploadError) Unwrap() error { return e.Err }
