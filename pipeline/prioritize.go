package pipeline

import "github.com/aluiziolira/go-bookmeta/models"

const (
	maxWebCovers      = 3
	maxAPICovers      = 2
	prioritizedTarget = 5

	minCoverRatio = 1.4
	maxCoverRatio = 1.65
)

// Prioritize orders the pool web-first: up to three web-sourced and two
// API-sourced candidates, then backfill from the rest of the pool in
// discovery order until five are picked or the pool runs out.
func Prioritize(pool []models.CoverCandidate) []models.CoverCandidate {
	var web, api []int
	for i, c := range pool {
		if c.Source.IsWeb() {
			if len(web) < maxWebCovers {
				web = append(web, i)
			}
		} else if len(api) < maxAPICovers {
			api = append(api, i)
		}
	}

	picked := make(map[int]struct{}, prioritizedTarget)
	out := make([]models.CoverCandidate, 0, prioritizedTarget)
	for _, i := range append(web, api...) {
		picked[i] = struct{}{}
		out = append(out, pool[i])
	}
	for i := 0; i < len(pool) && len(out) < prioritizedTarget; i++ {
		if _, ok := picked[i]; ok {
			continue
		}
		out = append(out, pool[i])
	}
	return out
}

// Dedupe drops repeated URLs. The last occurrence supplies the fields, the
// first occurrence keeps its position.
func Dedupe(covers []models.CoverCandidate) []models.CoverCandidate {
	index := make(map[string]int, len(covers))
	out := make([]models.CoverCandidate, 0, len(covers))
	for _, c := range covers {
		if i, ok := index[c.URL]; ok {
			out[i] = c
			continue
		}
		index[c.URL] = len(out)
		out = append(out, c)
	}
	return out
}

// FilterFlatCovers drops candidates whose known dimensions are not book
// shaped (height/width outside [1.4, 1.65]). Candidates without dimensions
// are kept.
func FilterFlatCovers(covers []models.CoverCandidate) []models.CoverCandidate {
	out := make([]models.CoverCandidate, 0, len(covers))
	for _, c := range covers {
		if c.Width <= 0 || c.Height <= 0 {
			out = append(out, c)
			continue
		}
		ratio := float64(c.Height) / float64(c.Width)
		if ratio >= minCoverRatio && ratio <= maxCoverRatio {
			out = append(out, c)
		}
	}
	return out
}

// capCovers truncates to MaxCovers.
func capCovers(covers []models.CoverCandidate) []models.CoverCandidate {
	if len(covers) > MaxCovers {
		return covers[:MaxCovers]
	}
	return covers
}
