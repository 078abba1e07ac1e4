package pipeline

import (
	"testing"

	"github.com/aluiziolira/go-bookmeta/models"
	"github.com/stretchr/testify/assert"
)

func urls(covers []models.CoverCandidate) []string {
	out := make([]string, 0, len(covers))
	for _, c := range covers {
		out = append(out, c.URL)
	}
	return out
}

func TestPrioritizeWebFirstWithQuotas(t *testing.T) {
	pool := []models.CoverCandidate{
		cover("api1", models.SourceOpenLibrary),
		cover("api2", models.SourceISBNdb),
		cover("api3", models.SourceLibraryThing),
		cover("web1", models.SourceHardcover),
		cover("web2", models.SourceArchive),
		cover("web3", models.SourceOpenLibrarySearch),
		cover("web4", models.SourceArchive),
	}
	got := Prioritize(pool)
	assert.Equal(t, []string{"web1", "web2", "web3", "api1", "api2"}, urls(got))
}

func TestPrioritizeBackfillsInDiscoveryOrder(t *testing.T) {
	pool := []models.CoverCandidate{
		cover("api1", models.SourceLocal),
		cover("api2", models.SourceOpenLibrary),
		cover("api3", models.SourceISBNdb),
		cover("api4", models.SourceLibraryThing),
		cover("web1", models.SourceArchive),
	}
	got := Prioritize(pool)
	assert.Equal(t, []string{"web1", "api1", "api2", "api3", "api4"}, urls(got))
}

func TestPrioritizeSmallPool(t *testing.T) {
	assert.Empty(t, Prioritize(nil))
	got := Prioritize([]models.CoverCandidate{cover("api1", models.SourceOpenLibrary), cover("web1", models.SourceHardcover)})
	assert.Equal(t, []string{"web1", "api1"}, urls(got))
}

func TestPrioritizeKeepsFiveBeforeDedupe(t *testing.T) {
	// The fifth pick survives prioritisation so that a duplicate among the
	// first four still leaves four distinct covers after dedupe and cap.
	pool := []models.CoverCandidate{
		cover("same", models.SourceOpenLibrary),
		cover("same", models.SourceHardcover),
		cover("web2", models.SourceArchive),
		cover("api2", models.SourceISBNdb),
		cover("api3", models.SourceLibraryThing),
	}
	got := capCovers(Dedupe(Prioritize(pool)))
	assert.Equal(t, []string{"same", "web2", "api2", "api3"}, urls(got))
}

func TestDedupeLastSeenWins(t *testing.T) {
	in := []models.CoverCandidate{
		cover("a", models.SourceHardcover),
		cover("b", models.SourceArchive),
		{URL: "a", Source: models.SourceOpenLibrary, Quality: models.QualityLow},
	}
	got := Dedupe(in)
	assert.Equal(t, []string{"a", "b"}, urls(got))
	assert.Equal(t, models.SourceOpenLibrary, got[0].Source)
	assert.Equal(t, models.QualityLow, got[0].Quality)
}

func TestFilterFlatCoversBoundaries(t *testing.T) {
	tests := []struct {
		name          string
		width, height int
		keep          bool
	}{
		{"unknown dimensions", 0, 0, true},
		{"width only", 400, 0, true},
		{"ratio 1.4", 500, 700, true},
		{"ratio 1.65", 400, 660, true},
		{"ratio 1.5", 400, 600, true},
		{"ratio 1.39", 100, 139, false},
		{"ratio 1.66", 100, 166, false},
		{"square", 500, 500, false},
		{"landscape", 600, 400, false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			in := []models.CoverCandidate{{URL: "x", Source: models.SourceHardcover, Width: tt.width, Height: tt.height}}
			got := FilterFlatCovers(in)
			assert.Equal(t, tt.keep, len(got) == 1)
		})
	}
}
