package providers

import (
	"context"
	"net/url"
	"strings"

	"github.com/aluiziolira/go-bookmeta/config"
	"github.com/aluiziolira/go-bookmeta/models"
	"github.com/aluiziolira/go-bookmeta/scraper"
)

// OpenLibraryCovers serves the free ISBN-keyed cover images. A missing image
// comes back as a tiny placeholder, so every URL is checked with the lenient
// validator.
type OpenLibraryCovers struct {
	baseURL   string
	validator *scraper.ImageValidator
}

// NewOpenLibraryCovers creates the covers-by-ISBN provider.
func NewOpenLibraryCovers(cfg *config.Config, validator *scraper.ImageValidator) *OpenLibraryCovers {
	return &OpenLibraryCovers{
		baseURL:   strings.TrimRight(cfg.CoversURL, "/"),
		validator: validator,
	}
}

// Name returns the source tag.
func (o *OpenLibraryCovers) Name() models.Source {
	return models.SourceOpenLibrary
}

// Enabled is always true; the service needs no key.
func (o *OpenLibraryCovers) Enabled() bool {
	return true
}

// Cover returns the large cover for the preferred ISBN, or nil when only a
// placeholder exists.
func (o *OpenLibraryCovers) Cover(ctx context.Context, isbn13, isbn10 string) (*models.CoverCandidate, error) {
	isbn := firstNonEmpty(isbn13, isbn10)
	if isbn == "" {
		return nil, nil
	}
	coverURL := o.baseURL + "/b/isbn/" + url.PathEscape(isbn) + "-L.jpg"
	if !o.validator.IsValid(ctx, string(models.SourceOpenLibrary), coverURL) {
		return nil, nil
	}
	return &models.CoverCandidate{
		URL:         coverURL,
		Source:      models.SourceOpenLibrary,
		Quality:     models.QualityMedium,
		FetchMethod: models.FetchByISBN,
	}, nil
}
