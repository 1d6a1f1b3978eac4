package probes

import "regexp"

// Category enum
type Category string

const (
	CategoryAntivirus Category = "antivirus"
	CategoryMetadata  Category = "metadata"
	CategoryExternal  Category = "external"
)

// Probe is a worker offering one analysis capability, addressed by Name
// (queue routing key). Never deleted while historical jobs reference it.
type Probe struct {
	Name        string   `json:"name"`
	DisplayName string   `json:"display_name"`
	Category    Category `json:"category"`
	// MimetypeRegexp restricts which files the probe applies to.
	// Empty means the probe applies to everything.
	MimetypeRegexp string `json:"mimetype_regexp,omitempty"`
	Online         bool   `json:"online"`
}

// Matches reports whether the probe applies to the given mimetype.
func (p *Probe) Matches(mimetype string) bool {
	if p.MimetypeRegexp == "" {
		return true
	}
	ok, err := regexp.MatchString(p.MimetypeRegexp, mimetype)
	if err != nil {
		// A broken pattern never matches; the probe stays registered.
		return false
	}
	return ok
}
