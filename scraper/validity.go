package scraper

import (
	"context"
	"log/slog"
	"net/http"
	"strconv"
	"strings"
	"time"
)

// probeBytes is how much of an image the validity check asks for.
const probeBytes = 1024

// ImageValidator tells real covers from the small blank placeholders some
// image services return in place of a 404. Images whose size is at or above
// the threshold are accepted.
type ImageValidator struct {
	client    *Client
	threshold int
	timeout   time.Duration
}

// NewImageValidator builds a validator with a byte threshold and a per-probe timeout.
func NewImageValidator(client *Client, threshold int, timeout time.Duration) *ImageValidator {
	return &ImageValidator{client: client, threshold: threshold, timeout: timeout}
}

// Threshold reports the placeholder cut-off in bytes.
func (v *ImageValidator) Threshold() int {
	return v.threshold
}

// IsValid fetches the first bytes of imageURL and compares the image size
// with the threshold. Any failure counts as invalid.
func (v *ImageValidator) IsValid(ctx context.Context, source, imageURL string) bool {
	if imageURL == "" {
		return false
	}

	header := http.Header{}
	header.Set("Range", "bytes=0-"+strconv.Itoa(probeBytes-1))
	resp, err := v.client.Do(ctx, Request{
		Source:   source + "_image",
		URL:      imageURL,
		Header:   header,
		Timeout:  v.timeout,
		MaxBytes: probeBytes,
	})
	if err != nil {
		slog.Debug("cover probe failed",
			slog.String("source", source),
			slog.String("url", imageURL),
			slog.String("category", ErrorLabel(err)),
		)
		return false
	}

	size := ImageSize(resp)
	if size < int64(v.threshold) {
		slog.Debug("cover looks like a placeholder",
			slog.String("source", source),
			slog.String("url", imageURL),
			slog.Int64("bytes", size),
			slog.Int("threshold", v.threshold),
		)
		return false
	}
	return true
}

// ImageSize returns the full image size: the total from Content-Range when the
// server honoured the range request, then the declared Content-Length, then
// the number of bytes received.
func ImageSize(resp *Response) int64 {
	if total, ok := contentRangeTotal(resp.Header.Get("Content-Range")); ok {
		return total
	}
	if declared := resp.Header.Get("Content-Length"); declared != "" {
		if n, err := strconv.ParseInt(declared, 10, 64); err == nil && n >= 0 {
			return n
		}
	}
	if resp.ContentLength > 0 {
		return resp.ContentLength
	}
	return int64(len(resp.Body))
}

// contentRangeTotal parses "bytes 0-1023/24512".
func contentRangeTotal(value string) (int64, bool) {
	idx := strings.LastIndex(value, "/")
	if idx < 0 || idx == len(value)-1 {
		return 0, false
	}
	total := value[idx+1:]
	if total == "*" {
		return 0, false
	}
	n, err := strconv.ParseInt(total, 10, 64)
	if err != nil || n < 0 {
		return 0, false
	}
	return n, true
}
