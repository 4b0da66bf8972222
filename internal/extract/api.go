package extract

import (
	"context"
	"strconv"
	"strings"

	"github.com/tidwall/gjson"
	"go.uber.org/zap"

	"github.com/sells-group/pricetrack/internal/fetcher"
	"github.com/sells-group/pricetrack/internal/model"
)

// APISpec describes where a supplier's JSON API keeps the target variant
// and its price.
type APISpec struct {
	// ArrayPath is the gjson path of the variant array, e.g. "data.f2000".
	ArrayPath string

	// The variant is the first element whose numeric VariantField equals
	// VariantID and whose string SKUField equals SKU.
	VariantField string
	VariantID    int64
	SKUField     string
	SKU          string

	// DiscountField is preferred over RegularField when present and
	// non-empty.
	DiscountField string
	RegularField  string
}

// APIExtractor reads a price from a structured JSON API.
type APIExtractor struct {
	target
	spec APISpec
}

// NewAPIExtractor creates an extractor for a JSON endpoint. headers are the
// fixed request headers.
func NewAPIExtractor(name, url string, f fetcher.Fetcher, spec APISpec, headers map[string]string, opts ...Option) *APIExtractor {
	h := BrowserHeaders()
	h.Set("Accept", "application/json, text/plain, */*")
	for k, v := range headers {
		h.Set(k, v)
	}
	return &APIExtractor{
		target: newTarget(name, url, f, h, opts),
		spec:   spec,
	}
}

// Extract implements Extractor.
func (a *APIExtractor) Extract(ctx context.Context) (*model.Extraction, error) {
	log := zap.L().With(zap.String("supplier", a.name), zap.String("url", a.url))

	resp, err := a.fetcher.Get(ctx, a.url, a.headers)
	if err != nil {
		return nil, NetworkFailure(err)
	}
	if !gjson.ValidBytes(resp.Body) {
		return nil, Failf(model.FailureExtraction, ReasonInvalidJSON, "%d bytes", len(resp.Body))
	}

	variants := gjson.GetBytes(resp.Body, a.spec.ArrayPath)
	if !variants.IsArray() {
		return nil, Failf(model.FailureExtraction, ReasonNoData, "path %s", a.spec.ArrayPath)
	}

	all := variants.Array()
	log.Debug("extract: api variants", zap.Int("count", len(all)))

	var match *gjson.Result
	for i := range all {
		if a.matches(all[i]) {
			match = &all[i]
			break
		}
	}
	if match == nil {
		return nil, Failf(model.FailureExtraction, ReasonVariantNotFound, "%s=%d %s=%s among %d variants",
			a.spec.VariantField, a.spec.VariantID, a.spec.SKUField, a.spec.SKU, len(all))
	}

	price, label, ok := a.price(*match)
	if !ok {
		return nil, Failf(model.FailureExtraction, ReasonNoValidPrice, "fields %s, %s",
			a.spec.DiscountField, a.spec.RegularField)
	}

	log.Info("extract: price found", zap.String("strategy", label), zap.Float64("price", price))
	return &model.Extraction{
		Price:      price,
		Strategy:   label,
		ObservedAt: a.now(),
		SourceURL:  a.url,
	}, nil
}

// matches compares the variant id as an exact integer so 64-bit ids never
// lose precision.
func (a *APIExtractor) matches(v gjson.Result) bool {
	id := v.Get(a.spec.VariantField)
	if id.Type != gjson.Number {
		return false
	}
	n, err := strconv.ParseInt(id.Raw, 10, 64)
	if err != nil || n != a.spec.VariantID {
		return false
	}
	sku := v.Get(a.spec.SKUField)
	return sku.Type == gjson.String && sku.Str == a.spec.SKU
}

func (a *APIExtractor) price(v gjson.Result) (float64, string, bool) {
	if p, ok := fieldPrice(v.Get(a.spec.DiscountField)); ok {
		return p, "API: sale price (" + a.spec.DiscountField + ")", true
	}
	if p, ok := fieldPrice(v.Get(a.spec.RegularField)); ok {
		return p, "API: regular price (" + a.spec.RegularField + ")", true
	}
	return 0, "", false
}

// fieldPrice accepts a JSON number or a non-empty numeric string.
func fieldPrice(r gjson.Result) (float64, bool) {
	switch r.Type {
	case gjson.Number:
		return parseNumber(r.Raw)
	case gjson.String:
		if strings.TrimSpace(r.Str) == "" {
			return 0, false
		}
		return parseNumber(r.Str)
	default:
		return 0, false
	}
}
