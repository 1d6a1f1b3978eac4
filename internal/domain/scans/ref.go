package scans

// FileRef is the wire handle carried by probe_scan / scan_result messages.
// Blob is the object key inside the submitter's storage namespace.
type FileRef struct {
	Scan ScanID `json:"scan"`
	File FileID `json:"file"`
	Blob string `json:"blob"`
}

// Ref builds the wire handle for a file.
func (f *File) Ref() FileRef {
	return FileRef{Scan: f.ScanID, File: f.ID, Blob: f.Handle}
}
