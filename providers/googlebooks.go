// Package providers holds the ISBN-keyed upstream clients: metadata providers
// and cover-only providers.
package providers

import (
	"context"
	"net/url"
	"strconv"
	"strings"

	"github.com/aluiziolira/go-bookmeta/config"
	"github.com/aluiziolira/go-bookmeta/models"
	"github.com/aluiziolira/go-bookmeta/scraper"
)

// GoogleBooks is the primary metadata provider (Google Books volumes API).
// The API key is optional and sent as a query parameter when set.
type GoogleBooks struct {
	client  *scraper.Client
	baseURL string
	apiKey  string
}

// NewGoogleBooks creates a Google Books client from cfg.
func NewGoogleBooks(cfg *config.Config, client *scraper.Client) *GoogleBooks {
	return &GoogleBooks{
		client:  client,
		baseURL: strings.TrimRight(cfg.GoogleBooksURL, "/"),
		apiKey:  cfg.GoogleBooksAPIKey,
	}
}

// Name returns the source tag.
func (g *GoogleBooks) Name() models.Source {
	return models.SourceGoogleBooks
}

type googleBooksResponse struct {
	TotalItems int              `json:"totalItems"`
	Items      []googleBooksVol `json:"items"`
}

type googleBooksVol struct {
	VolumeInfo googleBooksVolumeInfo `json:"volumeInfo"`
}

type googleBooksVolumeInfo struct {
	Title               string                  `json:"title"`
	Subtitle            string                  `json:"subtitle"`
	Authors             []string                `json:"authors"`
	Publisher           string                  `json:"publisher"`
	PublishedDate       string                  `json:"publishedDate"`
	Description         string                  `json:"description"`
	PageCount           int                     `json:"pageCount"`
	Categories          []string                `json:"categories"`
	Language            string                  `json:"language"`
	IndustryIdentifiers []googleBooksIndustryID `json:"industryIdentifiers"`
	ImageLinks          *googleBooksImageLinks  `json:"imageLinks"`
}

type googleBooksIndustryID struct {
	Type       string `json:"type"`
	Identifier string `json:"identifier"`
}

type googleBooksImageLinks struct {
	SmallThumbnail string `json:"smallThumbnail"`
	Thumbnail      string `json:"thumbnail"`
	Small          string `json:"small"`
	Medium         string `json:"medium"`
	Large          string `json:"large"`
	ExtraLarge     string `json:"extraLarge"`
}

// Search runs a volumes query ("isbn:<code>" or free text). An empty result
// set is not an error.
func (g *GoogleBooks) Search(ctx context.Context, query string, maxResults int) ([]models.BookRecord, error) {
	if maxResults <= 0 || maxResults > 40 {
		maxResults = 10
	}
	params := url.Values{}
	params.Set("q", query)
	params.Set("maxResults", strconv.Itoa(maxResults))
	if g.apiKey != "" {
		params.Set("key", g.apiKey)
	}

	var resp googleBooksResponse
	err := g.client.GetJSON(ctx, scraper.Request{
		Source: string(models.SourceGoogleBooks),
		URL:    g.baseURL + "/volumes?" + params.Encode(),
	}, &resp)
	if err != nil {
		return nil, err
	}

	results := make([]models.BookRecord, 0, len(resp.Items))
	for _, item := range resp.Items {
		if rec, ok := mapGoogleVolume(item.VolumeInfo); ok {
			results = append(results, rec)
		}
	}
	return results, nil
}

func mapGoogleVolume(vi googleBooksVolumeInfo) (models.BookRecord, bool) {
	title := strings.TrimSpace(vi.Title)
	if title == "" {
		return models.BookRecord{}, false
	}
	if sub := strings.TrimSpace(vi.Subtitle); sub != "" {
		title += ": " + sub
	}

	rec := models.BookRecord{
		Title:         title,
		Authors:       vi.Authors,
		Description:   vi.Description,
		Publisher:     vi.Publisher,
		PublishedDate: vi.PublishedDate,
		PageCount:     vi.PageCount,
		Categories:    vi.Categories,
		Language:      vi.Language,
	}
	if len(rec.Authors) == 0 {
		rec.Authors = []string{models.UnknownAuthor}
	}
	for _, id := range vi.IndustryIdentifiers {
		switch id.Type {
		case "ISBN_13":
			rec.ISBN13 = id.Identifier
		case "ISBN_10":
			rec.ISBN10 = id.Identifier
		}
	}
	if links := vi.ImageLinks; links != nil {
		rec.CoverURL = secureImage(firstNonEmpty(links.ExtraLarge, links.Large, links.Medium, links.Small, links.Thumbnail))
		rec.ThumbnailURL = secureImage(firstNonEmpty(links.Thumbnail, links.SmallThumbnail))
	}
	return rec, true
}

// secureImage upgrades Google's http image links and drops the page-curl effect.
func secureImage(raw string) string {
	if raw == "" {
		return ""
	}
	raw = strings.Replace(raw, "http://", "https://", 1)
	return strings.Replace(raw, "&edge=curl", "", 1)
}

func firstNonEmpty(values ...string) string {
	for _, v := range values {
		if v != "" {
			return v
		}
	}
	return ""
}
