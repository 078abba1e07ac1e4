package pipeline

import (
	"context"
	"sync"
	"sync/atomic"

	"github.com/aluiziolira/go-bookmeta/models"
)

type fakeLocal struct {
	rec   *models.BookRecord
	err   error
	calls atomic.Int32
}

func (f *fakeLocal) FindByISBN(ctx context.Context, isbn10, isbn13 string) (*models.BookRecord, error) {
	f.calls.Add(1)
	return f.rec, f.err
}

type fakePrimary struct {
	hits    []models.BookRecord
	err     error
	queries []string
	mu      sync.Mutex
}

func (f *fakePrimary) Name() models.Source { return models.SourceGoogleBooks }

func (f *fakePrimary) Search(ctx context.Context, query string, max int) ([]models.BookRecord, error) {
	f.mu.Lock()
	f.queries = append(f.queries, query)
	f.mu.Unlock()
	return f.hits, f.err
}

type fakeSecondary struct {
	rec   *models.BookRecord
	err   error
	calls atomic.Int32
}

func (f *fakeSecondary) Name() models.Source { return models.SourceOpenLibrary }

func (f *fakeSecondary) LookupISBN(ctx context.Context, isbn string) (*models.BookRecord, error) {
	f.calls.Add(1)
	return f.rec, f.err
}

type fakeCoverProvider struct {
	name    models.Source
	enabled bool
	cover   *models.CoverCandidate
	err     error
	panics  bool
	calls   atomic.Int32
}

func (f *fakeCoverProvider) Name() models.Source { return f.name }
func (f *fakeCoverProvider) Enabled() bool { return f.enabled }

func (f *fakeCoverProvider) Cover(ctx context.Context, isbn13, isbn10 string) (*models.CoverCandidate, error) {
	f.calls.Add(1)
	if f.panics {
		panic("provider exploded")
	}
	return f.cover, f.err
}

type fakeWeb struct {
	covers []models.CoverCandidate
	mu     sync.Mutex
	calls  []webCall
}

type webCall struct {
	title, author string
	target        int
}

func (f *fakeWeb) FetchWebCovers(ctx context.Context, title, author string, target int) []models.CoverCandidate {
	f.mu.Lock()
	f.calls = append(f.calls, webCall{title: title, author: author, target: target})
	f.mu.Unlock()
	out := f.covers
	if len(out) > target {
		out = out[:target]
	}
	return out
}

type fakeChecker struct {
	valid map[string]bool
}

func (f fakeChecker) IsValid(ctx context.Context, source, url string) bool {
	if f.valid == nil {
		return true
	}
	return f.valid[url]
}

func cover(url string, source models.Source) models.CoverCandidate {
	return models.CoverCandidate{URL: url, Source: source, Quality: models.QualityMedium}
}

func coverPtr(url string, source models.Source) *models.CoverCandidate {
	c := cover(url, source)
	return &c
}
