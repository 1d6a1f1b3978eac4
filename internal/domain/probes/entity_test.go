package probes_test

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/bryanwahyu/scanfleet/internal/domain/probes"
)

func TestMatches(t *testing.T) {
	t.Parallel()

	var testCases = []struct {
		scenario string
		pattern  string
		mimetype string
		want     bool
	}{
		{"empty pattern matches everything", "", "application/zip", true},
		{"prefix pattern matches", "^image/", "image/png", true},
		{"prefix pattern rejects", "^image/", "application/pdf", false},
		{"suffix pattern matches", "pdf$", "application/pdf", true},
		{"broken pattern never matches", "[", "application/pdf", false},
	}

	for _, tt := range testCases {
		tt := tt
		t.Run(tt.scenario, func(t *testing.T) {
			t.Parallel()
			p := &probes.Probe{Name: "p", MimetypeRegexp: tt.pattern}
			assert.Equal(t, tt.want, p.Matches(tt.mimetype))
		})
	}
}
