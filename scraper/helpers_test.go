package scraper

import (
	"net/http"
	"strconv"

	"github.com/aluiziolira/go-bookmeta/config"
	"github.com/jarcoal/httpmock"
)

func testConfig() *config.Config {
	cfg := config.DefaultConfig()
	cfg.GoogleBooksURL = "http://books.test/v1"
	cfg.OpenLibraryURL = "http://openlibrary.test"
	cfg.CoversURL = "http://covers.test"
	cfg.ISBNdbURL = "http://isbndb.test"
	cfg.LibraryThingURL = "http://librarything.test"
	cfg.HardcoverURL = "http://hardcover.test/v1/graphql"
	cfg.ArchiveURL = "http://archive.test"
	cfg.HardcoverAPIKey = "hc-key"
	cfg.Parallelism = 2
	return cfg
}

// imageResponder answers a range probe the way image CDNs do: the first
// KiB plus the full size in Content-Range.
func imageResponder(total int) httpmock.Responder {
	return func(req *http.Request) (*http.Response, error) {
		n := total
		if n > probeBytes {
			n = probeBytes
		}
		resp := httpmock.NewBytesResponse(http.StatusPartialContent, make([]byte, n))
		resp.Header.Set("Content-Type", "image/jpeg")
		resp.Header.Set("Content-Range", "bytes 0-"+strconv.Itoa(n-1)+"/"+strconv.Itoa(total))
		return resp, nil
	}
}

func jsonResponder(body string) httpmock.Responder {
	resp := httpmock.NewStringResponse(http.StatusOK, body)
	resp.Header.Set("Content-Type", "application/json")
	return httpmock.ResponderFromResponse(resp)
}
