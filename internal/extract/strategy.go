package extract

import (
	"strings"

	"github.com/PuerkitoBio/goquery"
)

// Strategy tries to read a price out of a parsed product page.
type Strategy interface {
	Label() string
	TryExtract(doc *goquery.Document) (float64, bool)
}

// SelectorStrategy reads the text of the first element matching a CSS
// selector and parses the first number in it.
type SelectorStrategy string

// Label returns the selector.
func (s SelectorStrategy) Label() string { return string(s) }

// TryExtract implements Strategy.
func (s SelectorStrategy) TryExtract(doc *goquery.Document) (float64, bool) {
	sel := doc.Find(string(s)).First()
	if sel.Length() == 0 {
		return 0, false
	}
	return ParsePrice(strings.TrimSpace(sel.Text()))
}

// genericSelectors is the storefront fallback list, in precedence order.
var genericSelectors = []string{
	".price",
	".product-price",
	".money",
	".current-price",
	".sale-price",
	"[data-price]",
	".price-current",
	".product__price",
	".variant-price",
	".product-form__price",
}

// Selectors builds selector strategies in the given order.
func Selectors(selectors ...string) []Strategy {
	out := make([]Strategy, 0, len(selectors))
	for _, s := range selectors {
		out = append(out, SelectorStrategy(s))
	}
	return out
}

// DefaultSelectors returns the generic storefront strategies, preceded by
// any supplier-specific selectors.
func DefaultSelectors(specific ...string) []Strategy {
	return Selectors(append(append([]string{}, specific...), genericSelectors...)...)
}

// Labels returns the labels of the strategies in order.
func Labels(strategies []Strategy) []string {
	out := make([]string, len(strategies))
	for i, s := range strategies {
		out[i] = s.Label()
	}
	return out
}
