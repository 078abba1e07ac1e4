package pipeline

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"

	"github.com/aluiziolira/go-bookmeta/models"
	"github.com/aluiziolira/go-bookmeta/parser"
	"github.com/aluiziolira/go-bookmeta/scraper"
)

// ErrInvalidISBN is the only error AggregateBookData returns.
var ErrInvalidISBN = errors.New("invalid isbn")

// Aggregator resolves an ISBN to one book record and a bounded cover list.
// Local store, web fetcher and checker may be nil.
type Aggregator struct {
	Local     LocalStore
	Primary   PrimaryProvider
	Secondary SecondaryProvider
	Covers    *CoverAggregator
	Web       WebCoverFetcher
	// Checker validates the metadata provider's own cover image.
	Checker ImageChecker
	Metrics *scraper.Metrics
}

// AggregateBookData normalises raw, resolves metadata local store first,
// then the primary and secondary providers, and assembles the covers.
// It returns nil, nil when no source knows the book.
func (a *Aggregator) AggregateBookData(ctx context.Context, raw string) (*models.AggregatedBook, error) {
	isbn := parser.NormalizeISBN(raw)
	if !isbn.Valid {
		return nil, fmt.Errorf("%w: %q", ErrInvalidISBN, raw)
	}
	logger := slog.With(slog.String("isbn", isbn.Preferred()))

	var (
		record   *models.BookRecord
		source   models.Source
		local    bool
		provided *models.CoverCandidate
	)

	if found := a.lookupLocal(ctx, isbn); found != nil {
		record, source, local = found, models.SourceLocal, true
		// Metadata stays local; the primary provider is asked only for a cover.
		if hits := a.searchPrimary(ctx, isbn); len(hits) > 0 {
			provided = a.providerCover(ctx, a.Primary.Name(), hits[0].CoverURL)
		}
	} else if hits := a.searchPrimary(ctx, isbn); len(hits) > 0 {
		record, source = &hits[0], a.Primary.Name()
		provided = a.providerCover(ctx, source, record.CoverURL)
	} else if found := a.lookupSecondary(ctx, isbn); found != nil {
		record, source = found, a.Secondary.Name()
		provided = a.providerCover(ctx, source, record.CoverURL)
	}

	if record == nil {
		logger.Info("book not found in any source")
		return nil, nil
	}
	logger.Debug("metadata resolved", slog.String("source", string(source)))

	query := CoverQuery{ISBN13: isbn.ISBN13, ISBN10: isbn.ISBN10, Title: record.Title}
	if local {
		query.LocalCoverURL = record.CoverURL
	}
	pool := a.Covers.FetchCoverOptions(ctx, query)
	if provided != nil {
		pool = append(pool, *provided)
	}

	author := record.PrimaryAuthor()
	if shortfall := MaxCovers - len(pool); shortfall > 0 && a.Web != nil &&
		strings.TrimSpace(record.Title) != "" && author != "" {
		pool = append(pool, a.Web.FetchWebCovers(ctx, record.Title, author, shortfall)...)
	}

	covers := capCovers(Dedupe(Prioritize(FilterFlatCovers(pool))))

	book := &models.AggregatedBook{
		BookRecord: *record,
		Covers:     covers,
		Source:     source,
	}
	if book.ISBN13 == "" {
		book.ISBN13 = isbn.ISBN13
	}
	if book.ISBN10 == "" {
		book.ISBN10 = isbn.ISBN10
	}
	logger.Info("book aggregated",
		slog.String("source", string(source)),
		slog.Int("covers", len(covers)),
		slog.Int("pool", len(pool)),
	)
	return book, nil
}

func (a *Aggregator) lookupLocal(ctx context.Context, isbn parser.ISBN) *models.BookRecord {
	if a.Local == nil {
		return nil
	}
	return scraper.Attempt[*models.BookRecord](ctx, string(models.SourceLocal), nil, func(ctx context.Context) (*models.BookRecord, error) {
		return a.Local.FindByISBN(ctx, isbn.ISBN10, isbn.ISBN13)
	})
}

func (a *Aggregator) searchPrimary(ctx context.Context, isbn parser.ISBN) []models.BookRecord {
	if a.Primary == nil {
		return nil
	}
	name := string(a.Primary.Name())
	return scraper.Attempt[[]models.BookRecord](ctx, name, nil, func(ctx context.Context) ([]models.BookRecord, error) {
		hits, err := a.Primary.Search(ctx, "isbn:"+isbn.Preferred(), 1)
		if err != nil {
			a.Metrics.IncError(name, scraper.ErrorLabel(err))
		}
		return hits, err
	})
}

func (a *Aggregator) lookupSecondary(ctx context.Context, isbn parser.ISBN) *models.BookRecord {
	if a.Secondary == nil {
		return nil
	}
	name := string(a.Secondary.Name())
	return scraper.Attempt[*models.BookRecord](ctx, name, nil, func(ctx context.Context) (*models.BookRecord, error) {
		rec, err := a.Secondary.LookupISBN(ctx, isbn.Preferred())
		if err != nil {
			a.Metrics.IncError(name, scraper.ErrorLabel(err))
		}
		return rec, err
	})
}

// providerCover turns a metadata provider's own image into a candidate when
// it passes the validity check.
func (a *Aggregator) providerCover(ctx context.Context, source models.Source, url string) *models.CoverCandidate {
	if url == "" {
		return nil
	}
	if a.Checker != nil && !a.Checker.IsValid(ctx, string(source), url) {
		return nil
	}
	quality := models.QualityMedium
	if source == models.SourceOpenLibrary {
		quality = models.QualityLow
	}
	return &models.CoverCandidate{
		URL:         url,
		Source:      source,
		Quality:     quality,
		FetchMethod: models.FetchByISBN,
	}
}
