package providers

import (
	"context"
	"net/url"
	"strings"

	"github.com/aluiziolira/go-bookmeta/config"
	"github.com/aluiziolira/go-bookmeta/models"
	"github.com/aluiziolira/go-bookmeta/parser"
	"github.com/aluiziolira/go-bookmeta/scraper"
)

// maxCategories caps the subject list; Open Library subject lists can run to hundreds.
const maxCategories = 10

// OpenLibrary is the secondary metadata provider (Open Library books API).
type OpenLibrary struct {
	client  *scraper.Client
	baseURL string
}

// NewOpenLibrary creates an Open Library client from cfg.
func NewOpenLibrary(cfg *config.Config, client *scraper.Client) *OpenLibrary {
	return &OpenLibrary{
		client:  client,
		baseURL: strings.TrimRight(cfg.OpenLibraryURL, "/"),
	}
}

// Name returns the source tag.
func (o *OpenLibrary) Name() models.Source {
	return models.SourceOpenLibrary
}

// LookupISBN fetches the record for isbn. A response without the
// "ISBN:<isbn>" key means not found and yields nil, nil.
func (o *OpenLibrary) LookupISBN(ctx context.Context, isbn string) (*models.BookRecord, error) {
	bibkey := "ISBN:" + isbn
	params := url.Values{}
	params.Set("bibkeys", bibkey)
	params.Set("jscmd", "data")
	params.Set("format", "json")

	var resp map[string]map[string]any
	err := o.client.GetJSON(ctx, scraper.Request{
		Source: string(models.SourceOpenLibrary),
		URL:    o.baseURL + "/api/books?" + params.Encode(),
	}, &resp)
	if err != nil {
		return nil, err
	}

	raw, ok := resp[bibkey]
	if !ok {
		return nil, nil
	}
	rec := mapOpenLibraryBook(raw)
	if rec == nil {
		return nil, nil
	}
	return rec, nil
}

// mapOpenLibraryBook flattens a jscmd=data record. Authors, publishers and
// subjects arrive as name objects or bare strings; descriptions and notes as
// strings or {"value": ...} objects.
func mapOpenLibraryBook(raw map[string]any) *models.BookRecord {
	title := parser.Text(raw["title"])
	if title == "" {
		return nil
	}
	if sub := parser.Text(raw["subtitle"]); sub != "" {
		title += ": " + sub
	}

	rec := &models.BookRecord{
		Title:         title,
		Authors:       parser.Names(raw["authors"]),
		Description:   parser.Text(raw["description"]),
		PublishedDate: parser.Text(raw["publish_date"]),
		PageCount:     parser.Int(raw["number_of_pages"]),
	}
	if rec.Description == "" {
		rec.Description = parser.Text(raw["notes"])
	}
	if len(rec.Authors) == 0 {
		rec.Authors = []string{models.UnknownAuthor}
	}
	if publishers := parser.Names(raw["publishers"]); len(publishers) > 0 {
		rec.Publisher = publishers[0]
	}
	if subjects := parser.Names(raw["subjects"]); len(subjects) > 0 {
		if len(subjects) > maxCategories {
			subjects = subjects[:maxCategories]
		}
		rec.Categories = subjects
	}
	if langs := parser.Names(raw["languages"]); len(langs) > 0 {
		rec.Language = strings.TrimPrefix(langs[0], "/languages/")
	}

	if ids, ok := raw["identifiers"].(map[string]any); ok {
		if v := parser.Names(ids["isbn_13"]); len(v) > 0 {
			rec.ISBN13 = v[0]
		}
		if v := parser.Names(ids["isbn_10"]); len(v) > 0 {
			rec.ISBN10 = v[0]
		}
	}

	if cover, ok := raw["cover"].(map[string]any); ok {
		rec.CoverURL = firstNonEmpty(parser.Text(cover["large"]), parser.Text(cover["medium"]), parser.Text(cover["small"]))
		rec.ThumbnailURL = firstNonEmpty(parser.Text(cover["small"]), parser.Text(cover["medium"]))
	}
	return rec
}
