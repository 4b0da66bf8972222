// Package supplier holds the configured price sources.
package supplier

import (
	"strings"

	"github.com/sells-group/pricetrack/internal/extract"
	"github.com/sells-group/pricetrack/internal/fetcher"
	"github.com/sells-group/pricetrack/internal/pipeline"
)

// Product targets.
const (
	GrowattURL = "https://growattportable.com/products/growatt-infinity-2000-pro-portable-power-station"
	EcoFlowURL = "https://us.ecoflow.com/products/delta-3-portable-power-station?variant=42015827492937"
	AnkerURL   = "https://www.ankersolix.com/api/multipass/shopifyservices/coupons/by_products?handles%5B%5D=f2000%2Cf2000-expansion-battery%2Cf2000-home-backup-kit%2Cf2000-expansion-battery-home-backup-kit&shopify_domain=ankersolix-us.myshopify.com"

	ankerReferer = "https://www.ankersolix.com/products/f2000?variant=49702419202378"
)

// Catalog match patterns.
const (
	GrowattPattern = "%infinity%2000%pro%"
	EcoFlowPattern = "%delta%3%"
	AnkerPattern   = "%solix%f2000%"
)

// GrowattSelectors are tried in order against the Growatt product page.
var GrowattSelectors = []string{
	"#ProductPrice-8011417092283",
	".product-detail-price",
	".price",
	".product-price",
	".money",
	".product__price",
	"[data-price]",
	".price-current",
	".current-price",
	".sale-price",
	".product-form__price",
}

// AnkerSpec locates the F2000 base unit in the Anker coupons API.
var AnkerSpec = extract.APISpec{
	ArrayPath:     "data.f2000",
	VariantField:  "variant_shopify_id",
	VariantID:     49702419202378,
	SKUField:      "sku",
	SKU:           "A1780112",
	DiscountField: "variant_price4wscode",
	RegularField:  "variant_price",
}

// All returns the suppliers in batch order.
func All(f fetcher.Fetcher, opts ...extract.Option) []pipeline.Supplier {
	return []pipeline.Supplier{
		{
			Label:     "Growatt",
			Pattern:   GrowattPattern,
			Extractor: extract.NewMarkupExtractor("Growatt", GrowattURL, f, extract.Selectors(GrowattSelectors...), opts...),
		},
		{
			Label:     "EcoFlow",
			Pattern:   EcoFlowPattern,
			Extractor: extract.NewMarkupExtractor("EcoFlow", EcoFlowURL, f, extract.DefaultSelectors(), opts...),
		},
		{
			Label:   "Anker",
			Pattern: AnkerPattern,
			Extractor: extract.NewAPIExtractor("Anker", AnkerURL, f, AnkerSpec,
				map[string]string{
					"Referer": ankerReferer,
					"Origin":  "https://www.ankersolix.com",
				}, opts...),
		},
	}
}

// Only keeps the suppliers whose label matches one of labels, ignoring
// case. An empty labels list keeps everything.
func Only(suppliers []pipeline.Supplier, labels ...string) []pipeline.Supplier {
	if len(labels) == 0 {
		return suppliers
	}
	var out []pipeline.Supplier
	for _, s := range suppliers {
		for _, l := range labels {
			if strings.EqualFold(strings.TrimSpace(l), s.Label) {
				out = append(out, s)
				break
			}
		}
	}
	return out
}

// Labels returns the supplier labels in order.
func Labels(suppliers []pipeline.Supplier) []string {
	out := make([]string, len(suppliers))
	for i, s := range suppliers {
		out[i] = s.Label
	}
	return out
}
