package scans

// Status enum. Labels are caller visible and stable across versions.
type Status string

const (
	StatusEmpty        Status = "empty"
	StatusReady        Status = "ready"
	StatusUploaded     Status = "uploaded"
	StatusLaunched     Status = "launched"
	StatusProcessed    Status = "processed"
	StatusFinished     Status = "finished"
	StatusFlushed      Status = "flushed"
	StatusCancelling   Status = "cancelling"
	StatusCancelled    Status = "cancelled"
	StatusError        Status = "error"
	StatusProbeMissing Status = "error_probe_missing"
	StatusProbeNA      Status = "error_probe_na"
	StatusFTPUpload    Status = "error_ftp_upload"
)

// transitions is the full walk graph. A status missing from the map is terminal.
var transitions = map[Status][]Status{
	StatusEmpty: {StatusReady},
	StatusReady: {StatusUploaded, StatusLaunched, StatusFinished,
		StatusError, StatusProbeMissing, StatusProbeNA, StatusFTPUpload},
	StatusUploaded: {StatusLaunched, StatusFinished,
		StatusError, StatusProbeMissing, StatusProbeNA, StatusFTPUpload},
	StatusLaunched:   {StatusProcessed, StatusCancelling, StatusError},
	StatusProcessed:  {StatusFinished},
	StatusFinished:   {StatusFlushed},
	StatusCancelling: {StatusCancelled},
	StatusCancelled:  {StatusFlushed},
}

// CanTransition reports whether from -> to is a legal edge.
func CanTransition(from, to Status) bool {
	for _, next := range transitions[from] {
		if next == to {
			return true
		}
	}
	return false
}

// IsError reports whether the status is one of the error_* / error labels.
func (s Status) IsError() bool {
	switch s {
	case StatusError, StatusProbeMissing, StatusProbeNA, StatusFTPUpload:
		return true
	}
	return false
}

// Terminal reports whether no further transition is possible.
func (s Status) Terminal() bool {
	return len(transitions[s]) == 0
}

// TransitionTo moves the scan along one edge, rejecting illegal walks.
func (s *Scan) TransitionTo(to Status) error {
	if !CanTransition(s.Status, to) {
		return &InvalidTransitionError{From: s.Status, To: to}
	}
	s.Status = to
	return nil
}
