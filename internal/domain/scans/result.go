package scans

// Result is the wire payload of a scan_result / scan_result_error message.
type Result struct {
	StatusCode int    `json:"status_code"`
	Doc        string `json:"doc"` // free-form result document (JSON)
	DurationMS int64  `json:"duration_ms"`

	// OutputFiles lists files emitted by the probe (e.g. unpacked archive
	// contents) that must themselves be scanned.
	OutputFiles []OutputFile `json:"output_files,omitempty"`
}

// OutputFile describes one probe-emitted file; the probe has already
// uploaded the blob under Handle in the submitter's namespace.
type OutputFile struct {
	ContentHash string `json:"content_hash"`
	Mimetype    string `json:"mimetype"`
	Handle      string `json:"handle"`
}
