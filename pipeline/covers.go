package pipeline

import (
	"context"
	"log/slog"

	"github.com/aluiziolira/go-bookmeta/models"
	"github.com/aluiziolira/go-bookmeta/scraper"
	"golang.org/x/sync/errgroup"
)

// MaxCovers is the size of every cover list handed to callers. One more slot
// is left to the user-uploaded image a caller may add later.
const MaxCovers = 4

// CoverQuery identifies the book whose covers are wanted.
type CoverQuery struct {
	ISBN13 string
	ISBN10 string
	Title  string
	// LocalCoverURL is the cover the local store already holds, if any.
	LocalCoverURL string
}

// CoverAggregator collects ISBN-keyed covers from the configured providers.
type CoverAggregator struct {
	providers []CoverProvider
	metrics   *scraper.Metrics
}

// NewCoverAggregator queries providers in the given order.
func NewCoverAggregator(metrics *scraper.Metrics, providers ...CoverProvider) *CoverAggregator {
	return &CoverAggregator{providers: providers, metrics: metrics}
}

// FetchCoverOptions returns up to MaxCovers candidates: the local cover first,
// then every enabled provider in order. It never fails; a query with no ISBN
// returns an empty list without any request.
func (a *CoverAggregator) FetchCoverOptions(ctx context.Context, q CoverQuery) []models.CoverCandidate {
	out := make([]models.CoverCandidate, 0, MaxCovers)
	if q.ISBN13 == "" && q.ISBN10 == "" {
		return out
	}

	if q.LocalCoverURL != "" {
		out = append(out, models.CoverCandidate{
			URL:         q.LocalCoverURL,
			Source:      models.SourceLocal,
			Quality:     models.QualityHigh,
			FetchMethod: models.FetchByISBN,
		})
	}

	results := make([]*models.CoverCandidate, len(a.providers))
	var g errgroup.Group
	for i, p := range a.providers {
		if !p.Enabled() {
			continue
		}
		g.Go(func() error {
			name := string(p.Name())
			results[i] = scraper.Attempt[*models.CoverCandidate](ctx, name, nil, func(ctx context.Context) (*models.CoverCandidate, error) {
				c, err := p.Cover(ctx, q.ISBN13, q.ISBN10)
				if err != nil {
					a.metrics.IncError(name, scraper.ErrorLabel(err))
				}
				return c, err
			})
			return nil
		})
	}
	_ = g.Wait()

	for _, c := range results {
		if c == nil || c.URL == "" {
			continue
		}
		a.metrics.AddCandidates(string(c.Source), 1)
		out = append(out, *c)
	}

	if len(out) > MaxCovers {
		out = out[:MaxCovers]
	}
	slog.Debug("cover options assembled",
		slog.String("title", q.Title),
		slog.String("isbn13", q.ISBN13),
		slog.String("isbn10", q.ISBN10),
		slog.Int("count", len(out)),
	)
	return out
}
