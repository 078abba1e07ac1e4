// Package models defines data structures shared by the aggregation engine.
package models

import (
	"strings"
	"time"
)

// UnknownAuthor is the author sentinel used when an upstream record has none.
const UnknownAuthor = "Unknown Author"

// Source identifies where a metadata record or cover candidate came from.
type Source string

const (
	SourceLocal             Source = "local"
	SourceGoogleBooks       Source = "google_books"
	SourceOpenLibrary       Source = "openlibrary"
	SourceISBNdb            Source = "isbndb"
	SourceLibraryThing      Source = "librarything"
	SourceHardcover         Source = "hardcover"
	SourceArchive           Source = "archive_org"
	SourceOpenLibrarySearch Source = "openlibrary_search"
	SourceUpload            Source = "upload"
)

// IsWeb reports whether the source is one of the title+author web scraper sources.
func (s Source) IsWeb() bool {
	switch s {
	case SourceHardcover, SourceArchive, SourceOpenLibrarySearch:
		return true
	default:
		return false
	}
}

// Quality is a coarse cover quality tier.
type Quality string

const (
	QualityLow    Quality = "low"
	QualityMedium Quality = "medium"
	QualityHigh   Quality = "high"
)

// FetchMethod records how a candidate was looked up. Diagnostics only.
type FetchMethod string

const (
	FetchByISBN        FetchMethod = "isbn"
	FetchByTitleAuthor FetchMethod = "title_author"
)

// BookRecord is the canonical metadata record.
type BookRecord struct {
	Title         string   `json:"title"`
	Authors       []string `json:"authors"`
	Description   string   `json:"description,omitempty"`
	Publisher     string   `json:"publisher,omitempty"`
	PublishedDate string   `json:"published_date,omitempty"`
	PageCount     int      `json:"page_count,omitempty"`
	Categories    []string `json:"categories,omitempty"`
	Language      string   `json:"language,omitempty"`
	ISBN10        string   `json:"isbn10,omitempty"`
	ISBN13        string   `json:"isbn13,omitempty"`
	CoverURL      string   `json:"cover_url,omitempty"`
	ThumbnailURL  string   `json:"thumbnail_url,omitempty"`
}

// PrimaryAuthor returns the first known author, or "" when the record only
// carries the UnknownAuthor sentinel.
func (b BookRecord) PrimaryAuthor() string {
	for _, a := range b.Authors {
		a = strings.TrimSpace(a)
		if a != "" && a != UnknownAuthor {
			return a
		}
	}
	return ""
}

// CoverCandidate is one proposed cover image.
type CoverCandidate struct {
	URL         string      `json:"url"`
	Source      Source      `json:"source"`
	Quality     Quality     `json:"quality"`
	FetchMethod FetchMethod `json:"fetch_method,omitempty"`
	// Width and Height are zero when the upstream did not report dimensions.
	Width  int `json:"width,omitempty"`
	Height int `json:"height,omitempty"`
}

// AggregatedBook is the result of one aggregation call.
type AggregatedBook struct {
	BookRecord
	Covers []CoverCandidate `json:"covers"`
	Source Source           `json:"source"`
}

// CacheEntry is what the web scraper cache stores per (title, author) key.
type CacheEntry struct {
	Covers     []CoverCandidate
	CapturedAt time.Time
}
