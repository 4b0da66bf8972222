package main

import (
	"context"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/sells-group/pricetrack/internal/config"
	"github.com/sells-group/pricetrack/internal/extract"
	"github.com/sells-group/pricetrack/internal/fetcher"
	"github.com/sells-group/pricetrack/internal/pipeline"
	"github.com/sells-group/pricetrack/internal/store"
	"github.com/sells-group/pricetrack/internal/supplier"
)

const (
	growattPage = `<html><body>
<div id="ProductPrice-8011417092283"><span class="money">$1,299.00</span></div>
</body></html>`

	ecoflowSoldOut = `<html><body><span class="price">Sold out</span></body></html>`

	ankerJSON = `{"data":{"f2000":[
{"variant_shopify_id":49702419202378,"sku":"A1780112","variant_price":"1599.00","variant_price4wscode":"1199.00"}
]}}`
)

// setupTestConfig installs a config with the same defaults config.Load uses.
func setupTestConfig(t *testing.T) {
	t.Helper()
	prev := cfg
	cfg = &config.Config{
		Store: config.StoreConfig{Driver: "sqlite", SQLitePath: filepath.Join(t.TempDir(), "cmd.db")},
		Log:   config.LogConfig{Level: "info", Format: "json"},
		Fetch: config.FetchConfig{TimeoutSecs: 2},
		Batch: config.BatchConfig{MaxConcurrency: 3, SupplierTimeoutSecs: 5},
		Server: config.ServerConfig{
			Port:            8080,
			CacheTTLSecs:    300,
			AllowedOrigins:  []string{"*"},
			ShutdownTimeout: 5,
		},
		Monitoring: config.MonitoringConfig{FailureRateThreshold: 0.5, PriceDropThreshold: 0.10, StaleAfterHours: 48},
	}
	t.Cleanup(func() { cfg = prev })
}

func fixtureServer(t *testing.T, contentType, body string) *httptest.Server {
	t.Helper()
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.Header().Set("Content-Type", contentType)
		_, _ = w.Write([]byte(body))
	}))
	t.Cleanup(srv.Close)
	return srv
}

// testSuppliers mirrors supplier.All but points each extractor at a local
// fixture server.
func testSuppliers(t *testing.T) []pipeline.Supplier {
	t.Helper()
	f := fetcher.NewHTTPFetcher(fetcher.HTTPOptions{Timeout: 2 * time.Second})
	growatt := fixtureServer(t, "text/html", growattPage)
	ecoflow := fixtureServer(t, "text/html", ecoflowSoldOut)
	anker := fixtureServer(t, "application/json", ankerJSON)

	return []pipeline.Supplier{
		{Label: "Growatt", Pattern: supplier.GrowattPattern,
			Extractor: extract.NewMarkupExtractor("Growatt", growatt.URL, f, extract.Selectors(supplier.GrowattSelectors...))},
		{Label: "EcoFlow", Pattern: supplier.EcoFlowPattern,
			Extractor: extract.NewMarkupExtractor("EcoFlow", ecoflow.URL, f, extract.DefaultSelectors())},
		{Label: "Anker", Pattern: supplier.AnkerPattern,
			Extractor: extract.NewAPIExtractor("Anker", anker.URL, f, supplier.AnkerSpec, nil)},
	}
}

// newTestEnv opens a seeded sqlite store and wires the runner over the
// fixture suppliers. setupTestConfig must run first.
func newTestEnv(t *testing.T) *pipelineEnv {
	t.Helper()
	ctx := context.Background()

	st, err := openStore(ctx)
	require.NoError(t, err)

	seed, err := store.LoadSeed("../seed.yaml")
	require.NoError(t, err)
	_, err = seed.Apply(ctx, st)
	require.NoError(t, err)

	env := newPipelineEnv(st, testSuppliers(t))
	t.Cleanup(env.Close)
	return env
}
