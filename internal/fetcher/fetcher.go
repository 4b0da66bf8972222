// Package fetcher performs the single bounded-timeout GET each supplier
// extraction needs.
package fetcher

import (
	"context"
	"net/http"
	"time"
)

// Response is a fully read HTTP response.
type Response struct {
	URL        string
	StatusCode int
	Header     http.Header
	Body       []byte
	Latency    time.Duration
}

// Fetcher downloads a single URL.
type Fetcher interface {
	// Get issues one GET with the given headers. There are no retries.
	// On a non-2xx status Get returns the response together with a
	// *resilience.StatusError so callers can still inspect the body.
	Get(ctx context.Context, url string, headers http.Header) (*Response, error)
}
