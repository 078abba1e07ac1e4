package providers

import (
	"context"
	"net/url"
	"strings"

	"github.com/aluiziolira/go-bookmeta/config"
	"github.com/aluiziolira/go-bookmeta/models"
	"github.com/aluiziolira/go-bookmeta/scraper"
)

// LibraryThing serves keyed cover images by ISBN. Like Open Library it
// answers misses with a placeholder image.
type LibraryThing struct {
	baseURL   string
	apiKey    string
	validator *scraper.ImageValidator
}

// NewLibraryThing creates the LibraryThing provider. It is disabled without a key.
func NewLibraryThing(cfg *config.Config, validator *scraper.ImageValidator) *LibraryThing {
	return &LibraryThing{
		baseURL:   strings.TrimRight(cfg.LibraryThingURL, "/"),
		apiKey:    cfg.LibraryThingAPIKey,
		validator: validator,
	}
}

// Name returns the source tag.
func (l *LibraryThing) Name() models.Source {
	return models.SourceLibraryThing
}

// Enabled reports whether a developer key is configured.
func (l *LibraryThing) Enabled() bool {
	return l.apiKey != ""
}

// Cover returns the large cover when it passes the validity check.
func (l *LibraryThing) Cover(ctx context.Context, isbn13, isbn10 string) (*models.CoverCandidate, error) {
	isbn := firstNonEmpty(isbn13, isbn10)
	if !l.Enabled() || isbn == "" {
		return nil, nil
	}
	coverURL := l.baseURL + "/devkey/" + url.PathEscape(l.apiKey) + "/large/isbn/" + url.PathEscape(isbn)
	if !l.validator.IsValid(ctx, string(models.SourceLibraryThing), coverURL) {
		return nil, nil
	}
	return &models.CoverCandidate{
		URL:         coverURL,
		Source:      models.SourceLibraryThing,
		Quality:     models.QualityMedium,
		FetchMethod: models.FetchByISBN,
	}, nil
}
