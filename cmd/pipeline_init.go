package main

import (
	"context"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"golang.org/x/time/rate"

	"github.com/sells-group/pricetrack/internal/catalog"
	"github.com/sells-group/pricetrack/internal/fetcher"
	"github.com/sells-group/pricetrack/internal/monitoring"
	"github.com/sells-group/pricetrack/internal/pipeline"
	"github.com/sells-group/pricetrack/internal/reconcile"
	"github.com/sells-group/pricetrack/internal/store"
	"github.com/sells-group/pricetrack/internal/supplier"
)

// pipelineEnv holds the store, runner, and monitoring pieces needed by the
// batch and serve commands.
type pipelineEnv struct {
	Store     store.Store
	Runner    *pipeline.Runner
	Suppliers []pipeline.Supplier
	Alerter   *monitoring.Alerter
	Metrics   *monitoring.Metrics
	Registry  *prometheus.Registry
}

// Close releases resources held by the pipeline environment.
func (pe *pipelineEnv) Close() {
	if pe.Store != nil {
		_ = pe.Store.Close()
	}
}

// initPipeline validates config, opens the store, and wires the runner
// against the live suppliers. Callers should defer env.Close().
func initPipeline(ctx context.Context, mode string) (*pipelineEnv, error) {
	if err := cfg.Validate(mode); err != nil {
		return nil, err
	}

	st, err := openStore(ctx)
	if err != nil {
		return nil, err
	}

	f := fetcher.NewHTTPFetcher(fetcher.HTTPOptions{
		UserAgent:    cfg.Fetch.UserAgent,
		Timeout:      time.Duration(cfg.Fetch.TimeoutSecs) * time.Second,
		MaxBodyBytes: int64(cfg.Fetch.MaxBodyMB) << 20,
		HostRate:     rate.Limit(cfg.Fetch.HostRPS),
		HostBurst:    cfg.Fetch.HostBurst,
	})

	return newPipelineEnv(st, supplier.All(f)), nil
}

// newPipelineEnv wires a runner over st for the given suppliers.
func newPipelineEnv(st store.Store, suppliers []pipeline.Supplier) *pipelineEnv {
	reg := prometheus.NewRegistry()
	reg.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
	metrics := monitoring.NewMetrics(reg)

	runner := pipeline.NewRunner(
		catalog.NewMatcher(st),
		reconcile.New(st, reconcile.Options{SkipUnchanged: cfg.Batch.SkipUnchanged}),
		metrics,
		pipeline.Options{
			MaxConcurrency:  cfg.Batch.MaxConcurrency,
			SupplierTimeout: time.Duration(cfg.Batch.SupplierTimeoutSecs) * time.Second,
		},
	)

	return &pipelineEnv{
		Store:     st,
		Runner:    runner,
		Suppliers: suppliers,
		Alerter:   monitoring.NewAlerter(cfg.Monitoring),
		Metrics:   metrics,
		Registry:  reg,
	}
}
