package pipeline

import (
	"context"

	"github.com/aluiziolira/go-bookmeta/models"
)

// LocalStore is the user's own catalogue. It must match on either ISBN form
// and return nil, nil when the book is absent.
type LocalStore interface {
	FindByISBN(ctx context.Context, isbn10, isbn13 string) (*models.BookRecord, error)
}

// PrimaryProvider answers free-text and "isbn:<code>" queries.
type PrimaryProvider interface {
	Name() models.Source
	Search(ctx context.Context, query string, maxResults int) ([]models.BookRecord, error)
}

// SecondaryProvider looks a single ISBN up. Not found is nil, nil.
type SecondaryProvider interface {
	Name() models.Source
	LookupISBN(ctx context.Context, isbn string) (*models.BookRecord, error)
}

// CoverProvider returns at most one cover for an ISBN. Disabled providers
// are skipped without a call.
type CoverProvider interface {
	Name() models.Source
	Enabled() bool
	Cover(ctx context.Context, isbn13, isbn10 string) (*models.CoverCandidate, error)
}

// WebCoverFetcher looks covers up by title and author.
type WebCoverFetcher interface {
	FetchWebCovers(ctx context.Context, title, author string, target int) []models.CoverCandidate
}

// ImageChecker tells real cover images from placeholders.
type ImageChecker interface {
	IsValid(ctx context.Context, source, url string) bool
}
