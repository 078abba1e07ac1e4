package providers

import (
	"context"
	"net/http"
	"net/url"
	"strings"

	"github.com/aluiziolira/go-bookmeta/config"
	"github.com/aluiziolira/go-bookmeta/models"
	"github.com/aluiziolira/go-bookmeta/scraper"
)

// ISBNdb is a keyed commercial cover source.
type ISBNdb struct {
	client  *scraper.Client
	baseURL string
	apiKey  string
}

// NewISBNdb creates the ISBNdb provider. It is disabled without a key.
func NewISBNdb(cfg *config.Config, client *scraper.Client) *ISBNdb {
	return &ISBNdb{
		client:  client,
		baseURL: strings.TrimRight(cfg.ISBNdbURL, "/"),
		apiKey:  cfg.ISBNdbAPIKey,
	}
}

// Name returns the source tag.
func (i *ISBNdb) Name() models.Source {
	return models.SourceISBNdb
}

// Enabled reports whether an API key is configured.
func (i *ISBNdb) Enabled() bool {
	return i.apiKey != ""
}

type isbndbResponse struct {
	Book struct {
		Title  string `json:"title"`
		Image  string `json:"image"`
		ISBN13 string `json:"isbn13"`
	} `json:"book"`
}

// Cover looks the book up and returns its image, if any.
func (i *ISBNdb) Cover(ctx context.Context, isbn13, isbn10 string) (*models.CoverCandidate, error) {
	isbn := firstNonEmpty(isbn13, isbn10)
	if !i.Enabled() || isbn == "" {
		return nil, nil
	}

	header := http.Header{}
	header.Set("Authorization", i.apiKey)

	var resp isbndbResponse
	err := i.client.GetJSON(ctx, scraper.Request{
		Source: string(models.SourceISBNdb),
		URL:    i.baseURL + "/book/" + url.PathEscape(isbn),
		Header: header,
	}, &resp)
	if err != nil {
		return nil, err
	}
	if resp.Book.Image == "" {
		return nil, nil
	}
	return &models.CoverCandidate{
		URL:         resp.Book.Image,
		Source:      models.SourceISBNdb,
		Quality:     models.QualityHigh,
		FetchMethod: models.FetchByISBN,
	}, nil
}
