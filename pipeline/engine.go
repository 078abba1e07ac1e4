package pipeline

import (
	"fmt"
	"log/slog"
	"net/http"

	"github.com/aluiziolira/go-bookmeta/config"
	"github.com/aluiziolira/go-bookmeta/providers"
	"github.com/aluiziolira/go-bookmeta/scraper"
)

// Engine bundles the wired aggregation components.
type Engine struct {
	Aggregator *Aggregator
	Covers     *CoverAggregator
	Web        *scraper.WebScraper
	Metrics    *scraper.Metrics
}

// NewFromConfig wires every source from cfg. local may be nil; transport may
// be nil to use the default HTTP transport.
func NewFromConfig(cfg *config.Config, local LocalStore, transport http.RoundTripper) (*Engine, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	metrics := scraper.NewMetrics()
	client := scraper.NewClient(cfg, transport, metrics)
	lenient := scraper.NewImageValidator(client, cfg.LenientPlaceholderBytes, cfg.ValidationTimeout)
	strict := scraper.NewImageValidator(client, cfg.StrictPlaceholderBytes, cfg.ValidationTimeout)

	slog.Debug("image validators ready",
		slog.Int("lenient_bytes", lenient.Threshold()),
		slog.Int("strict_bytes", strict.Threshold()),
	)

	web, err := scraper.NewWebScraper(cfg, strict, nil, metrics, transport)
	if err != nil {
		return nil, fmt.Errorf("create web scraper: %w", err)
	}

	covers := NewCoverAggregator(metrics,
		providers.NewOpenLibraryCovers(cfg, lenient),
		providers.NewISBNdb(cfg, client),
		providers.NewLibraryThing(cfg, lenient),
	)

	agg := &Aggregator{
		Local:     local,
		Primary:   providers.NewGoogleBooks(cfg, client),
		Secondary: providers.NewOpenLibrary(cfg, client),
		Covers:    covers,
		Web:       web,
		Checker:   lenient,
		Metrics:   metrics,
	}
	return &Engine{
		Aggregator: agg,
		Covers:     covers,
		Web:        web,
		Metrics:    metrics,
	}, nil
}
