package scraper

import (
	"context"
	"io"
	"net/http"
	"strings"
	"testing"

	"github.com/aluiziolira/go-bookmeta/config"
	"github.com/aluiziolira/go-bookmeta/models"
	"github.com/aluiziolira/go-bookmeta/parser"
	"github.com/jarcoal/httpmock"
)

const (
	hardcoverHit = `{"data":{"search_books":{"results":{"hits":[{"document":{"title":"Fourth Wing","image":{"url":"http://img.hardcover.test/fourth-wing.jpg","width":400,"height":600}}}]}}}}`
	archiveHit   = `{"response":{"docs":[{"identifier":"fourthwing0000yarr"}]}}`
	searchHit    = `{"numFound":2,"docs":[{"key":"/works/OL1W","cover_i":12345},{"key":"/works/OL2W"}]}`
)

func newTestWebScraper(t *testing.T, cfg *config.Config, transport *httpmock.MockTransport) *WebScraper {
	t.Helper()
	client := NewClient(cfg, transport, nil)
	validator := NewImageValidator(client, cfg.StrictPlaceholderBytes, cfg.ValidationTimeout)
	ws, err := NewWebScraper(cfg, validator, nil, nil, transport)
	if err != nil {
		t.Fatalf("new web scraper: %v", err)
	}
	return ws
}

func registerWebSources(transport *httpmock.MockTransport) {
	transport.RegisterResponder("POST", "http://hardcover.test/v1/graphql", jsonResponder(hardcoverHit))
	transport.RegisterResponder("GET", `=~^http://archive\.test/advancedsearch\.php`, jsonResponder(archiveHit))
	transport.RegisterResponder("GET", `=~^http://openlibrary\.test/search\.json`, jsonResponder(searchHit))
	transport.RegisterResponder("GET", "http://covers.test/b/id/12345-L.jpg", imageResponder(24512))
}

func TestFetchWebCoversBlankInput(t *testing.T) {
	cfg := testConfig()
	transport := httpmock.NewMockTransport()
	ws := newTestWebScraper(t, cfg, transport)

	for _, in := range [][2]string{{"", "Rebecca Yarros"}, {"Fourth Wing", ""}, {"  ", "  "}} {
		got := ws.FetchWebCovers(context.Background(), in[0], in[1], 3)
		if got == nil || len(got) != 0 {
			t.Fatalf("FetchWebCovers(%q, %q) = %#v, want empty", in[0], in[1], got)
		}
	}
	if n := transport.GetTotalCallCount(); n != 0 {
		t.Fatalf("blank input issued %d requests", n)
	}
}

func TestFetchWebCoversAllSources(t *testing.T) {
	cfg := testConfig()
	transport := httpmock.NewMockTransport()
	registerWebSources(transport)
	ws := newTestWebScraper(t, cfg, transport)

	got := ws.FetchWebCovers(context.Background(), "Fourth Wing", "Rebecca Yarros", 3)
	if len(got) != 3 {
		t.Fatalf("got %d covers, want 3: %+v", len(got), got)
	}

	want := []models.Source{models.SourceHardcover, models.SourceArchive, models.SourceOpenLibrarySearch}
	for i, c := range got {
		if c.Source != want[i] {
			t.Errorf("cover %d source = %s, want %s", i, c.Source, want[i])
		}
		if c.FetchMethod != models.FetchByTitleAuthor {
			t.Errorf("cover %d fetch method = %s", i, c.FetchMethod)
		}
	}
	if got[0].Width != 400 || got[0].Height != 600 {
		t.Errorf("hardcover dimensions = %dx%d", got[0].Width, got[0].Height)
	}
	if got[1].URL != "http://archive.test/services/img/fourthwing0000yarr" {
		t.Errorf("archive url = %s", got[1].URL)
	}
	if got[2].URL != "http://covers.test/b/id/12345-L.jpg" {
		t.Errorf("search cover url = %s", got[2].URL)
	}
}

func TestFetchWebCoversSendsHardcoverAuth(t *testing.T) {
	cfg := testConfig()
	transport := httpmock.NewMockTransport()
	registerWebSources(transport)
	transport.RegisterResponder("POST", "http://hardcover.test/v1/graphql",
		func(req *http.Request) (*http.Response, error) {
			if got := req.Header.Get("Authorization"); got != "Bearer hc-key" {
				t.Errorf("authorization = %q", got)
			}
			body, _ := io.ReadAll(req.Body)
			if !strings.Contains(string(body), "Fourth Wing Rebecca Yarros") {
				t.Errorf("query variables missing title and author: %s", body)
			}
			return httpmock.NewStringResponse(http.StatusOK, hardcoverHit), nil
		})
	ws := newTestWebScraper(t, cfg, transport)

	if got := ws.FetchWebCovers(context.Background(), "Fourth Wing", "Rebecca Yarros", 3); len(got) == 0 {
		t.Fatalf("expected covers")
	}
}

func TestFetchWebCoversSourceFailureIsIsolated(t *testing.T) {
	cfg := testConfig()
	transport := httpmock.NewMockTransport()
	registerWebSources(transport)
	transport.RegisterResponder("GET", `=~^http://archive\.test/advancedsearch\.php`, httpmock.NewStringResponder(http.StatusServiceUnavailable, ""))
	ws := newTestWebScraper(t, cfg, transport)

	got := ws.FetchWebCovers(context.Background(), "Fourth Wing", "Rebecca Yarros", 3)
	if len(got) != 2 {
		t.Fatalf("got %d covers, want 2: %+v", len(got), got)
	}
	for _, c := range got {
		if c.Source == models.SourceArchive {
			t.Fatalf("failed source produced a cover: %+v", c)
		}
	}
}

func TestFetchWebCoversSkipsHardcoverWithoutKey(t *testing.T) {
	cfg := testConfig()
	cfg.HardcoverAPIKey = ""
	transport := httpmock.NewMockTransport()
	registerWebSources(transport)
	ws := newTestWebScraper(t, cfg, transport)

	got := ws.FetchWebCovers(context.Background(), "Fourth Wing", "Rebecca Yarros", 3)
	if len(got) != 2 {
		t.Fatalf("got %d covers, want 2", len(got))
	}
	if n := transport.GetCallCountInfo()["POST http://hardcover.test/v1/graphql"]; n != 0 {
		t.Fatalf("hardcover called %d times without a key", n)
	}
}

func TestFetchWebCoversDropsSearchPlaceholders(t *testing.T) {
	cfg := testConfig()
	transport := httpmock.NewMockTransport()
	registerWebSources(transport)
	// 3000 bytes passes the lenient check but not the strict one.
	transport.RegisterResponder("GET", "http://covers.test/b/id/12345-L.jpg", imageResponder(3000))
	ws := newTestWebScraper(t, cfg, transport)

	got := ws.FetchWebCovers(context.Background(), "Fourth Wing", "Rebecca Yarros", 3)
	for _, c := range got {
		if c.Source == models.SourceOpenLibrarySearch {
			t.Fatalf("placeholder search cover kept: %+v", c)
		}
	}
}

func TestFetchWebCoversRespectsTarget(t *testing.T) {
	cfg := testConfig()
	transport := httpmock.NewMockTransport()
	registerWebSources(transport)
	ws := newTestWebScraper(t, cfg, transport)

	got := ws.FetchWebCovers(context.Background(), "Fourth Wing", "Rebecca Yarros", 1)
	if len(got) != 1 {
		t.Fatalf("got %d covers, want 1", len(got))
	}
}

func TestFetchWebCoversCachesResults(t *testing.T) {
	cfg := testConfig()
	transport := httpmock.NewMockTransport()
	registerWebSources(transport)
	ws := newTestWebScraper(t, cfg, transport)

	first := ws.FetchWebCovers(context.Background(), "Fourth Wing", "Rebecca Yarros", 3)
	calls := transport.GetTotalCallCount()
	if calls == 0 {
		t.Fatalf("first lookup made no requests")
	}

	second := ws.FetchWebCovers(context.Background(), "  fourth wing ", "REBECCA YARROS", 3)
	if got := transport.GetTotalCallCount(); got != calls {
		t.Fatalf("cached lookup made %d extra requests", got-calls)
	}
	if len(second) != len(first) {
		t.Fatalf("cached result has %d covers, want %d", len(second), len(first))
	}
}

func TestFetchWebCoversCachedResultHonoursTarget(t *testing.T) {
	cfg := testConfig()
	transport := httpmock.NewMockTransport()
	registerWebSources(transport)
	ws := newTestWebScraper(t, cfg, transport)

	first := ws.FetchWebCovers(context.Background(), "Fourth Wing", "Rebecca Yarros", 3)
	if len(first) < 2 {
		t.Fatalf("first lookup returned %d covers, need at least 2", len(first))
	}
	calls := transport.GetTotalCallCount()

	second := ws.FetchWebCovers(context.Background(), "Fourth Wing", "Rebecca Yarros", 1)
	if got := transport.GetTotalCallCount(); got != calls {
		t.Fatalf("cached lookup made %d extra requests", got-calls)
	}
	if len(second) != 1 {
		t.Fatalf("target 1 returned %d covers", len(second))
	}
	if second[0].URL != first[0].URL {
		t.Fatalf("cached cover = %q, want %q", second[0].URL, first[0].URL)
	}
}

func TestFetchWebCoversCachesEmptyResults(t *testing.T) {
	cfg := testConfig()
	cfg.HardcoverAPIKey = ""
	transport := httpmock.NewMockTransport()
	transport.RegisterResponder("GET", `=~^http://archive\.test/advancedsearch\.php`, jsonResponder(`{"response":{"docs":[]}}`))
	transport.RegisterResponder("GET", `=~^http://openlibrary\.test/search\.json`, jsonResponder(`{"numFound":0,"docs":[]}`))
	ws := newTestWebScraper(t, cfg, transport)

	if got := ws.FetchWebCovers(context.Background(), "Unfindable", "Nobody", 3); len(got) != 0 {
		t.Fatalf("expected no covers, got %+v", got)
	}
	calls := transport.GetTotalCallCount()
	ws.FetchWebCovers(context.Background(), "Unfindable", "Nobody", 3)
	if got := transport.GetTotalCallCount(); got != calls {
		t.Fatalf("empty result was not cached")
	}
}

func TestFetchWebCoversUsesCleanedTitleKey(t *testing.T) {
	cfg := testConfig()
	transport := httpmock.NewMockTransport()
	ws := newTestWebScraper(t, cfg, transport)

	cached := []models.CoverCandidate{{URL: "http://img.test/cached.jpg", Source: models.SourceArchive, Quality: models.QualityMedium, FetchMethod: models.FetchByTitleAuthor}}
	ws.cache.Set(parser.CacheKey("Fourth Wing", "Rebecca Yarros"), cached)

	got := ws.FetchWebCovers(context.Background(), "Fourth Wing (Book 1)", "Rebecca Yarros", 3)
	if len(got) != 1 || got[0].URL != "http://img.test/cached.jpg" {
		t.Fatalf("expected cleaned-title cache hit, got %+v", got)
	}
	if n := transport.GetTotalCallCount(); n != 0 {
		t.Fatalf("cache hit issued %d requests", n)
	}
}

func TestFetchWebCoversTriesOriginalTitleAfterCleaned(t *testing.T) {
	cfg := testConfig()
	cfg.HardcoverAPIKey = ""
	transport := httpmock.NewMockTransport()
	transport.RegisterResponder("GET", `=~^http://openlibrary\.test/search\.json`, jsonResponder(`{"numFound":0,"docs":[]}`))
	transport.RegisterResponder("GET", `=~^http://archive\.test/advancedsearch\.php`,
		func(req *http.Request) (*http.Response, error) {
			if strings.Contains(req.URL.Query().Get("q"), "Book 1") {
				return httpmock.NewStringResponse(http.StatusOK, archiveHit), nil
			}
			return httpmock.NewStringResponse(http.StatusOK, `{"response":{"docs":[]}}`), nil
		})
	ws := newTestWebScraper(t, cfg, transport)

	got := ws.FetchWebCovers(context.Background(), "Fourth Wing (Book 1)", "Rebecca Yarros", 3)
	if len(got) != 1 || got[0].Source != models.SourceArchive {
		t.Fatalf("expected archive hit from the original title, got %+v", got)
	}
	if _, ok := ws.cache.Get(parser.CacheKey("Fourth Wing (Book 1)", "Rebecca Yarros")); !ok {
		t.Fatalf("result should be cached under the original title key")
	}
}

func BenchmarkFetchWebCoversCached(b *testing.B) {
	cfg := testConfig()
	transport := httpmock.NewMockTransport()
	registerWebSources(transport)
	client := NewClient(cfg, transport, nil)
	ws, err := NewWebScraper(cfg, NewImageValidator(client, cfg.StrictPlaceholderBytes, cfg.ValidationTimeout), nil, nil, transport)
	if err != nil {
		b.Fatalf("new web scraper: %v", err)
	}
	ws.FetchWebCovers(context.Background(), "Fourth Wing", "Rebecca Yarros", 3)

	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		ws.FetchWebCovers(context.Background(), "Fourth Wing", "Rebecca Yarros", 3)
	}
}
