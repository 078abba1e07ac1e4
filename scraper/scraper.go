package scraper

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"log/slog"
	"net"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/aluiziolira/go-bookmeta/config"
	"github.com/aluiziolira/go-bookmeta/models"
	"github.com/aluiziolira/go-bookmeta/parser"
	json "github.com/goccy/go-json"
	"github.com/gocolly/colly/v2"
	"golang.org/x/sync/errgroup"
)

// WebScraper looks up covers by title and author on community and archive
// sites, caching results per (title, author).
type WebScraper struct {
	cfg       *config.Config
	collector *colly.Collector
	validator *ImageValidator
	cache     CoverCache
	metrics   *Metrics
	sources   []webSource
}

type webSource struct {
	name  models.Source
	fetch func(ctx context.Context, title, author string, n int) ([]models.CoverCandidate, error)
}

// NewWebScraper wires the three sources. transport may be nil; the validator
// should use the strict placeholder threshold.
func NewWebScraper(cfg *config.Config, validator *ImageValidator, cache CoverCache, metrics *Metrics, transport http.RoundTripper) (*WebScraper, error) {
	collector := colly.NewCollector(
		colly.UserAgent(cfg.UserAgent),
		colly.AllowURLRevisit(),
	)
	collector.SetRequestTimeout(cfg.ScraperTimeout)
	collector.IgnoreRobotsTxt = !cfg.RespectRobotsTxt
	if transport == nil {
		transport = &http.Transport{
			Proxy: http.ProxyFromEnvironment,
			DialContext: (&net.Dialer{
				Timeout:   cfg.ScraperTimeout,
				KeepAlive: 30 * time.Second,
			}).DialContext,
			MaxIdleConns:        100,
			IdleConnTimeout:     90 * time.Second,
			TLSHandshakeTimeout: 10 * time.Second,
		}
	}
	collector.WithTransport(transport)

	if err := collector.Limit(&colly.LimitRule{
		DomainGlob:  "*",
		Parallelism: cfg.Parallelism,
	}); err != nil {
		return nil, fmt.Errorf("configure rate limits: %w", err)
	}

	if cache == nil {
		cache = NewLRUCache(cfg.CacheSize, cfg.CacheTTL)
	}

	w := &WebScraper{
		cfg:       cfg,
		collector: collector,
		validator: validator,
		cache:     cache,
		metrics:   metrics,
	}
	w.sources = []webSource{
		{name: models.SourceHardcover, fetch: w.hardcoverCovers},
		{name: models.SourceArchive, fetch: w.archiveCovers},
		{name: models.SourceOpenLibrarySearch, fetch: w.openLibrarySearchCovers},
	}
	return w, nil
}

// FetchWebCovers returns up to target candidates for title/author. Blank
// input returns an empty list without any request; source failures only
// shrink the result.
func (w *WebScraper) FetchWebCovers(ctx context.Context, title, author string, target int) []models.CoverCandidate {
	title = strings.TrimSpace(title)
	author = strings.TrimSpace(author)
	if title == "" || author == "" || target <= 0 {
		return []models.CoverCandidate{}
	}

	cleaned := parser.CleanTitle(title)
	primaryKey := parser.CacheKey(title, author)
	for _, key := range []string{parser.CacheKey(cleaned, author), primaryKey} {
		if covers, ok := w.cache.Get(key); ok {
			w.metrics.IncCache(true)
			if len(covers) > target {
				covers = covers[:target]
			}
			slog.Debug("web covers served from cache", slog.String("key", key), slog.Int("count", len(covers)))
			return covers
		}
	}
	w.metrics.IncCache(false)

	variants := []string{cleaned}
	if cleaned != title {
		variants = append(variants, title)
	}

	seen := make(map[string]struct{})
	out := make([]models.CoverCandidate, 0, target)
	for _, variant := range variants {
		if len(out) >= target {
			break
		}
		for _, c := range w.gather(ctx, variant, author, target) {
			if _, dup := seen[c.URL]; dup {
				continue
			}
			seen[c.URL] = struct{}{}
			out = append(out, c)
		}
	}
	if len(out) > target {
		out = out[:target]
	}

	w.cache.Set(primaryKey, out)
	return out
}

// gather queries every source concurrently and waits for all of them.
func (w *WebScraper) gather(ctx context.Context, title, author string, n int) []models.CoverCandidate {
	results := make([][]models.CoverCandidate, len(w.sources))

	var g errgroup.Group
	for i, src := range w.sources {
		g.Go(func() error {
			found := Attempt[[]models.CoverCandidate](ctx, string(src.name), nil, func(ctx context.Context) ([]models.CoverCandidate, error) {
				return src.fetch(ctx, title, author, n)
			})
			for j := range found {
				found[j].FetchMethod = models.FetchByTitleAuthor
			}
			w.metrics.AddCandidates(string(src.name), len(found))
			results[i] = found
			return nil
		})
	}
	_ = g.Wait()

	var out []models.CoverCandidate
	for _, r := range results {
		out = append(out, r...)
	}
	return out
}

type hardcoverRequest struct {
	Query     string         `json:"query"`
	Variables map[string]any `json:"variables"`
}

type hardcoverResponse struct {
	Data *struct {
		SearchBooks *struct {
			Results *struct {
				Hits []struct {
					Document struct {
						Title string `json:"title"`
						Image *struct {
							URL    string `json:"url"`
							Width  int    `json:"width"`
							Height int    `json:"height"`
						} `json:"image"`
					} `json:"document"`
				} `json:"hits"`
			} `json:"results"`
		} `json:"search_books"`
	} `json:"data"`
	Errors []struct {
		Message string `json:"message"`
	} `json:"errors"`
}

const hardcoverSearchQuery = `query CoverSearch($query: String!) { search_books(query: $query, limit: 5) { results { hits { document { title image { url width height } } } } } }`

func (w *WebScraper) hardcoverCovers(ctx context.Context, title, author string, _ int) ([]models.CoverCandidate, error) {
	if w.cfg.HardcoverAPIKey == "" {
		return nil, nil
	}

	body, err := json.Marshal(hardcoverRequest{
		Query:     hardcoverSearchQuery,
		Variables: map[string]any{"query": title + " " + author},
	})
	if err != nil {
		return nil, fmt.Errorf("marshal hardcover request: %w", err)
	}
	hdr := http.Header{}
	hdr.Set("Content-Type", "application/json")
	hdr.Set("Authorization", "Bearer "+w.cfg.HardcoverAPIKey)

	var resp hardcoverResponse
	if err := w.fetchJSON(ctx, models.SourceHardcover, http.MethodPost, w.cfg.HardcoverURL, body, hdr, &resp); err != nil {
		return nil, err
	}
	if len(resp.Errors) > 0 {
		return nil, fmt.Errorf("hardcover graphql error: %s", resp.Errors[0].Message)
	}
	if resp.Data == nil || resp.Data.SearchBooks == nil || resp.Data.SearchBooks.Results == nil {
		return nil, nil
	}
	hits := resp.Data.SearchBooks.Results.Hits
	if len(hits) == 0 || hits[0].Document.Image == nil || hits[0].Document.Image.URL == "" {
		return nil, nil
	}
	img := hits[0].Document.Image
	return []models.CoverCandidate{{
		URL:     img.URL,
		Source:  models.SourceHardcover,
		Quality: models.QualityHigh,
		Width:   img.Width,
		Height:  img.Height,
	}}, nil
}

type archiveResponse struct {
	Response struct {
		Docs []struct {
			Identifier string `json:"identifier"`
		} `json:"docs"`
	} `json:"response"`
}

func (w *WebScraper) archiveCovers(ctx context.Context, title, author string, _ int) ([]models.CoverCandidate, error) {
	params := url.Values{}
	params.Set("q", fmt.Sprintf(`title:("%s") AND creator:("%s")`, stripQuotes(title), stripQuotes(author)))
	params.Add("fl[]", "identifier")
	params.Set("rows", "1")
	params.Set("output", "json")
	searchURL := strings.TrimRight(w.cfg.ArchiveURL, "/") + "/advancedsearch.php?" + params.Encode()

	var resp archiveResponse
	if err := w.fetchJSON(ctx, models.SourceArchive, http.MethodGet, searchURL, nil, nil, &resp); err != nil {
		return nil, err
	}
	if len(resp.Response.Docs) == 0 || resp.Response.Docs[0].Identifier == "" {
		return nil, nil
	}
	id := resp.Response.Docs[0].Identifier
	return []models.CoverCandidate{{
		URL:     strings.TrimRight(w.cfg.ArchiveURL, "/") + "/services/img/" + url.PathEscape(id),
		Source:  models.SourceArchive,
		Quality: models.QualityMedium,
	}}, nil
}

type openLibrarySearchResponse struct {
	NumFound int `json:"numFound"`
	Docs     []struct {
		CoverI int `json:"cover_i"`
	} `json:"docs"`
}

const searchPageSize = 20

func (w *WebScraper) openLibrarySearchCovers(ctx context.Context, title, author string, n int) ([]models.CoverCandidate, error) {
	out := make([]models.CoverCandidate, 0, n)
	seen := make(map[int]struct{})

	for page := 1; page <= w.cfg.SearchPages && len(out) < n; page++ {
		params := url.Values{}
		params.Set("title", title)
		params.Set("author", author)
		params.Set("fields", "key,title,cover_i")
		params.Set("limit", strconv.Itoa(searchPageSize))
		params.Set("page", strconv.Itoa(page))
		searchURL := strings.TrimRight(w.cfg.OpenLibraryURL, "/") + "/search.json?" + params.Encode()

		var resp openLibrarySearchResponse
		if err := w.fetchJSON(ctx, models.SourceOpenLibrarySearch, http.MethodGet, searchURL, nil, nil, &resp); err != nil {
			if len(out) > 0 {
				return out, nil
			}
			return nil, err
		}
		if len(resp.Docs) == 0 {
			break
		}

		for _, doc := range resp.Docs {
			if doc.CoverI <= 0 {
				continue
			}
			if _, dup := seen[doc.CoverI]; dup {
				continue
			}
			seen[doc.CoverI] = struct{}{}

			coverURL := fmt.Sprintf("%s/b/id/%d-L.jpg", strings.TrimRight(w.cfg.CoversURL, "/"), doc.CoverI)
			if !w.validator.IsValid(ctx, string(models.SourceOpenLibrarySearch), coverURL) {
				continue
			}
			out = append(out, models.CoverCandidate{
				URL:     coverURL,
				Source:  models.SourceOpenLibrarySearch,
				Quality: models.QualityMedium,
			})
			if len(out) >= n {
				break
			}
		}

		if page*searchPageSize >= resp.NumFound {
			break
		}
	}
	return out, nil
}

// fetchJSON issues one request through a clone of the shared collector so
// callbacks stay local to the call.
func (w *WebScraper) fetchJSON(ctx context.Context, source models.Source, method, rawURL string, body []byte, hdr http.Header, target any) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	c := w.collector.Clone()
	var payload []byte
	status := 0
	c.OnResponse(func(r *colly.Response) {
		status = r.StatusCode
		payload = r.Body
	})
	c.OnError(func(r *colly.Response, err error) {
		if r != nil {
			status = r.StatusCode
		}
	})

	var reader io.Reader
	if body != nil {
		reader = bytes.NewReader(body)
	}

	start := time.Now()
	err := c.Request(method, rawURL, reader, nil, hdr)
	w.metrics.ObserveDuration(string(source), time.Since(start))
	if classified := classifyError(string(source), err, status); classified != nil {
		w.metrics.IncRequest(string(source), ErrorLabel(classified))
		return classified
	}
	w.metrics.IncRequest(string(source), "success")

	if err := json.Unmarshal(payload, target); err != nil {
		return fmt.Errorf("decode %s response: %w", source, err)
	}
	return nil
}

func stripQuotes(s string) string {
	return strings.ReplaceAll(s, `"`, "")
}
