// Package pipeline runs the per-supplier extract, match and reconcile
// sequence for a batch of suppliers.
package pipeline

import (
	"context"
	"fmt"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/sells-group/pricetrack/internal/catalog"
	"github.com/sells-group/pricetrack/internal/extract"
	"github.com/sells-group/pricetrack/internal/model"
	"github.com/sells-group/pricetrack/internal/monitoring"
	"github.com/sells-group/pricetrack/internal/reconcile"
)

const tracerName = "pricetrack/pipeline"

// Supplier is one configured price source.
type Supplier struct {
	Label     string
	Pattern   string
	Extractor extract.Extractor
}

// Options configures a Runner.
type Options struct {
	// MaxConcurrency bounds how many suppliers run at once. 1 runs them
	// one after another in configured order.
	MaxConcurrency int
	// SupplierTimeout bounds one supplier's whole sequence. Zero means no
	// per-supplier deadline beyond the caller's context.
	SupplierTimeout time.Duration
}

// Runner executes batches.
type Runner struct {
	matcher    *catalog.Matcher
	reconciler *reconcile.Reconciler
	metrics    *monitoring.Metrics
	opts       Options
	now        func() time.Time
}

// NewRunner creates a Runner. metrics may be nil.
func NewRunner(m *catalog.Matcher, r *reconcile.Reconciler, metrics *monitoring.Metrics, opts Options) *Runner {
	if opts.MaxConcurrency < 1 {
		opts.MaxConcurrency = 1
	}
	return &Runner{
		matcher:    m,
		reconciler: r,
		metrics:    metrics,
		opts:       opts,
		now:        func() time.Time { return time.Now().UTC() },
	}
}

// RunBatch runs every supplier and returns exactly one outcome per
// supplier, in the order given. Supplier failures never abort the batch.
func (r *Runner) RunBatch(ctx context.Context, suppliers []Supplier) *model.BatchSummary {
	started := r.now()
	ctx, span := otel.Tracer(tracerName).Start(ctx, "pipeline.batch",
		trace.WithAttributes(attribute.Int("suppliers", len(suppliers))),
	)
	defer span.End()

	zap.L().Info("pipeline: batch started",
		zap.Int("suppliers", len(suppliers)),
		zap.Int("max_concurrency", r.opts.MaxConcurrency),
	)

	outcomes := make([]model.SupplierOutcome, len(suppliers))

	// Tasks never return an error, so one supplier cannot cancel another.
	var g errgroup.Group
	g.SetLimit(r.opts.MaxConcurrency)

	for i, s := range suppliers {
		g.Go(func() error {
			outcomes[i] = r.RunSupplier(ctx, s)
			return nil
		})
	}
	_ = g.Wait()

	summary := model.NewBatchSummary(outcomes, started, time.Since(started))
	r.metrics.ObserveBatch(summary)

	span.SetAttributes(
		attribute.Int("successful", summary.Succeeded),
		attribute.Int("failed", summary.Failed),
	)
	zap.L().Info("pipeline: batch complete",
		zap.Int("total", summary.Total),
		zap.Int("successful", summary.Succeeded),
		zap.Int("failed", summary.Failed),
		zap.Duration("duration", summary.Duration),
	)
	return summary
}

// RunSupplier runs extract, match and reconcile for one supplier. Any
// failure, including a panic, is returned as a failed outcome.
func (r *Runner) RunSupplier(ctx context.Context, s Supplier) (out model.SupplierOutcome) {
	start := time.Now()
	out.Supplier = s.Label
	log := zap.L().With(zap.String("supplier", s.Label))

	ctx, span := otel.Tracer(tracerName).Start(ctx, "pipeline.supplier",
		trace.WithAttributes(
			attribute.String("supplier", s.Label),
			attribute.String("pattern", s.Pattern),
		),
	)
	defer func() {
		if p := recover(); p != nil {
			log.Error("pipeline: supplier panicked", zap.Any("panic", p), zap.Stack("stack"))
			out = failed(out, &extract.Failure{Kind: model.FailureInternal, Reason: fmt.Sprintf("panic: %v", p)})
		}
		out.Duration = time.Since(start)
		if out.Success {
			span.SetAttributes(attribute.Float64("price", out.NewPrice))
		} else {
			span.SetStatus(codes.Error, out.Reason)
		}
		span.End()
		r.metrics.ObserveOutcome(out)
	}()

	if r.opts.SupplierTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, r.opts.SupplierTimeout)
		defer cancel()
	}

	ext, err := s.Extractor.Extract(ctx)
	if err != nil {
		return r.fail(span, log, out, "extract", err)
	}
	out.Strategy = ext.Strategy

	entity, err := r.matcher.Match(ctx, s.Pattern)
	if err != nil {
		return r.fail(span, log, out, "match", err)
	}
	out.EntityID = entity.ID
	out.EntityName = entity.Name

	res, err := r.reconciler.Reconcile(ctx, *entity, ext.Price, ext.ObservedAt)
	if err != nil {
		return r.fail(span, log, out, "reconcile", err)
	}

	out.Success = true
	out.OldPrice = res.Primary.OldPrice
	out.NewPrice = res.Primary.NewPrice
	out.Delta = res.Primary.Delta
	out.HistorySkipped = res.History.Skipped
	if res.History.Err != nil {
		out.HistoryError = res.History.Err.Error()
		span.RecordError(res.History.Err)
	}

	fields := []zap.Field{
		zap.String("battery_id", out.EntityID),
		zap.Float64("price", out.NewPrice),
		zap.String("strategy", out.Strategy),
	}
	if out.Delta != nil {
		fields = append(fields, zap.Float64("price_change", *out.Delta))
	}
	log.Info("pipeline: supplier updated", fields...)
	return out
}

func (r *Runner) fail(span trace.Span, log *zap.Logger, out model.SupplierOutcome, step string, err error) model.SupplierOutcome {
	f := extract.AsFailure(err)
	span.RecordError(f)
	log.Error("pipeline: supplier failed",
		zap.String("step", step),
		zap.String("failure_kind", string(f.Kind)),
		zap.Bool("transient", f.Transient()),
		zap.Error(f),
	)
	return failed(out, f)
}

func failed(out model.SupplierOutcome, f *extract.Failure) model.SupplierOutcome {
	out.Success = false
	out.Reason = f.Reason
	out.Kind = f.Kind
	out.Transient = f.Transient()
	return out
}
