// Package extract pulls a current list price out of a supplier's public API
// or product page.
package extract

import (
	"context"
	"math"
	"net/http"
	"regexp"
	"strconv"
	"strings"
	"time"

	"github.com/sells-group/pricetrack/internal/fetcher"
	"github.com/sells-group/pricetrack/internal/model"
)

// Extractor produces a price for one fixed supplier target. A non-nil error
// is always a *Failure.
type Extractor interface {
	Name() string
	Target() string
	Extract(ctx context.Context) (*model.Extraction, error)
}

// Option configures an extractor.
type Option func(*target)

// WithHeaders replaces the fixed request headers.
func WithHeaders(h http.Header) Option {
	return func(t *target) {
		t.headers = h.Clone()
	}
}

// WithClock overrides the observation clock.
func WithClock(now func() time.Time) Option {
	return func(t *target) {
		t.now = now
	}
}

// target holds what both extractor variants share: one URL, fixed headers,
// one fetch.
type target struct {
	name    string
	url     string
	headers http.Header
	fetcher fetcher.Fetcher
	now     func() time.Time
}

func newTarget(name, url string, f fetcher.Fetcher, headers http.Header, opts []Option) target {
	t := target{
		name:    name,
		url:     url,
		headers: headers,
		fetcher: f,
		now:     func() time.Time { return time.Now().UTC() },
	}
	for _, opt := range opts {
		opt(&t)
	}
	return t
}

func (t *target) Name() string   { return t.name }
func (t *target) Target() string { return t.url }

// BrowserHeaders is the header set sent with product page requests.
func BrowserHeaders() http.Header {
	return http.Header{
		"User-Agent":      {fetcher.DefaultUserAgent},
		"Accept":          {"text/html,application/xhtml+xml,application/xml;q=0.9,*/*;q=0.8"},
		"Accept-Language": {"en-US,en;q=0.9"},
	}
}

// priceRe matches digits with optional thousands separators and an
// optional decimal part, e.g. "1,299.00" in "$1,299.00".
var priceRe = regexp.MustCompile(`\d[\d,]*\.?\d*`)

// ParsePrice extracts the first price-looking number from text.
func ParsePrice(text string) (float64, bool) {
	m := priceRe.FindString(text)
	if m == "" {
		return 0, false
	}
	return parseNumber(strings.ReplaceAll(m, ",", ""))
}

// parseNumber parses s as a finite, non-negative float.
func parseNumber(s string) (float64, bool) {
	s = strings.TrimSuffix(strings.TrimSpace(s), ".")
	if s == "" {
		return 0, false
	}
	v, err := strconv.ParseFloat(s, 64)
	if err != nil || math.IsNaN(v) || math.IsInf(v, 0) || v < 0 {
		return 0, false
	}
	return v, true
}
