package extract

import (
	"bytes"
	"context"
	"regexp"
	"strings"

	"github.com/PuerkitoBio/goquery"
	"go.uber.org/zap"

	"github.com/sells-group/pricetrack/internal/fetcher"
	"github.com/sells-group/pricetrack/internal/model"
	"github.com/sells-group/pricetrack/internal/scrape"
)

// MarkupExtractor scrapes a product page, trying strategies in order. The
// first strategy that yields a price wins and later ones are never
// consulted.
type MarkupExtractor struct {
	target
	strategies []Strategy
}

// NewMarkupExtractor creates an extractor for a product page URL.
func NewMarkupExtractor(name, url string, f fetcher.Fetcher, strategies []Strategy, opts ...Option) *MarkupExtractor {
	return &MarkupExtractor{
		target:     newTarget(name, url, f, BrowserHeaders(), opts),
		strategies: strategies,
	}
}

// Strategies returns the strategies in precedence order.
func (m *MarkupExtractor) Strategies() []Strategy {
	return m.strategies
}

// Extract implements Extractor.
func (m *MarkupExtractor) Extract(ctx context.Context) (*model.Extraction, error) {
	log := zap.L().With(zap.String("supplier", m.name), zap.String("url", m.url))

	resp, err := m.fetcher.Get(ctx, m.url, m.headers)
	if resp != nil {
		if blocked, bt := scrape.DetectBlock(resp.StatusCode, resp.Header, resp.Body); blocked {
			return nil, &Failure{Kind: model.FailureNetwork, Reason: "blocked (" + string(bt) + ")", Err: err}
		}
	}
	if err != nil {
		return nil, NetworkFailure(err)
	}

	doc, err := goquery.NewDocumentFromReader(bytes.NewReader(resp.Body))
	if err != nil {
		return nil, &Failure{Kind: model.FailureExtraction, Reason: ReasonInvalidHTML, Err: err}
	}

	log.Debug("extract: page fetched",
		zap.String("title", strings.TrimSpace(doc.Find("title").First().Text())),
		zap.Int("status", resp.StatusCode),
	)

	for _, s := range m.strategies {
		price, ok := s.TryExtract(doc)
		if !ok {
			log.Debug("extract: strategy found no price", zap.String("strategy", s.Label()))
			continue
		}
		log.Info("extract: price found",
			zap.String("strategy", s.Label()),
			zap.Float64("price", price),
		)
		return &model.Extraction{
			Price:      price,
			Strategy:   s.Label(),
			ObservedAt: m.now(),
			SourceURL:  m.url,
		}, nil
	}

	if ce := log.Check(zap.DebugLevel, "extract: dollar-text candidates"); ce != nil {
		ce.Write(zap.Strings("candidates", dollarCandidates(doc, 20)))
	}

	return nil, Failf(model.FailureExtraction, ReasonNoSelectorMatch,
		"tried: %s", strings.Join(Labels(m.strategies), ", "))
}

var dollarRe = regexp.MustCompile(`\$\d[\d,]*\.?\d*`)

// dollarCandidates lists short element texts that look like a dollar
// amount, for diagnosing selector drift.
func dollarCandidates(doc *goquery.Document, limit int) []string {
	var out []string
	doc.Find("*").EachWithBreak(func(_ int, s *goquery.Selection) bool {
		text := strings.TrimSpace(s.Text())
		if len(text) < 100 && dollarRe.MatchString(text) {
			class, _ := s.Attr("class")
			if class == "" {
				class = "no-class"
			}
			out = append(out, goquery.NodeName(s)+"."+class+": "+text)
		}
		return len(out) < limit
	})
	return out
}
