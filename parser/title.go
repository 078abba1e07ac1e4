package parser

import (
	"regexp"
	"strings"
)

// volumeSuffix matches a trailing series marker such as "Tome 1",
// "Volume 2", "(Part 3)" or ", Book 4".
var volumeSuffix = regexp.MustCompile(`(?i)[\s\-–:,(]*\b(?:tome|volume|vol\.?|part|book)\s*\d+\s*\)?\s*$`)

var multiSpace = regexp.MustCompile(`\s{2,}`)

// CleanTitle removes a trailing volume/part/tome/book number that make community search
// endpoints miss multi-volume titles. The input is returned unchanged when
// cleaning would leave nothing.
func CleanTitle(title string) string {
	cleaned := volumeSuffix.ReplaceAllString(title, " ")
	cleaned = multiSpace.ReplaceAllString(cleaned, " ")
	cleaned = strings.Trim(cleaned, " -–:,")
	if cleaned == "" {
		return strings.TrimSpace(title)
	}
	return cleaned
}

// CacheKey builds the web-cover cache key for a title/author pair.
func CacheKey(title, author string) string {
	return strings.ToLower(strings.TrimSpace(title)) + "|" + strings.ToLower(strings.TrimSpace(author))
}
