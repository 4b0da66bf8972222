// Package reconcile applies an extracted price to its catalog entity and
// records the observation.
package reconcile

import (
	"context"
	"time"

	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"github.com/sells-group/pricetrack/internal/extract"
	"github.com/sells-group/pricetrack/internal/model"
)

// ReasonUpdateFailed is the failure reason when the current-price write
// fails.
const ReasonUpdateFailed = "price update failed"

// Writer is the storage the reconciler writes to.
type Writer interface {
	UpdateEntityPrice(ctx context.Context, id string, price float64, at time.Time) (*model.CatalogEntity, error)
	AppendHistory(ctx context.Context, entityID string, price float64, observedAt time.Time) error
}

// Options configures a Reconciler.
type Options struct {
	// SkipUnchanged skips the history append when the price did not move.
	// The current price and its timestamp are still written.
	SkipUnchanged bool
	// Now stamps the entity's updated_at. Defaults to time.Now in UTC.
	Now func() time.Time
}

// Primary is the required phase: the entity's current price.
type Primary struct {
	Entity   *model.CatalogEntity
	OldPrice *float64
	NewPrice float64
	// Delta is NewPrice - OldPrice rounded to cents, nil when there was no
	// previous price.
	Delta *float64
}

// History is the best-effort phase: the append-only observation.
type History struct {
	Appended bool
	Skipped  bool
	Err      error
}

// Result reports both phases separately. A non-nil History.Err does not make
// the reconcile a failure.
type Result struct {
	Primary Primary
	History History
}

// Reconciler performs the two-phase write.
type Reconciler struct {
	w    Writer
	opts Options
}

// New creates a Reconciler.
func New(w Writer, opts Options) *Reconciler {
	if opts.Now == nil {
		opts.Now = func() time.Time { return time.Now().UTC() }
	}
	return &Reconciler{w: w, opts: opts}
}

// Reconcile updates entity's current price and appends a history record.
// The update must succeed; the append may fail without failing the call.
func (r *Reconciler) Reconcile(ctx context.Context, entity model.CatalogEntity, price float64, observedAt time.Time) (*Result, error) {
	log := zap.L().With(zap.String("battery_id", entity.ID), zap.String("battery", entity.Name))

	updated, err := r.w.UpdateEntityPrice(ctx, entity.ID, price, r.opts.Now())
	if err != nil {
		return nil, &extract.Failure{Kind: model.FailurePersistence, Reason: ReasonUpdateFailed, Err: err}
	}

	res := &Result{
		Primary: Primary{
			Entity:   updated,
			OldPrice: entity.CurrentPrice,
			NewPrice: price,
			Delta:    Delta(entity.CurrentPrice, price),
		},
	}

	if r.opts.SkipUnchanged && res.Primary.Delta != nil && *res.Primary.Delta == 0 {
		res.History.Skipped = true
		log.Debug("reconcile: price unchanged, history append skipped", zap.Float64("price", price))
		return res, nil
	}

	if err := r.w.AppendHistory(ctx, entity.ID, price, observedAt); err != nil {
		res.History.Err = err
		log.Warn("reconcile: history append failed, current price already updated",
			zap.Float64("price", price),
			zap.Error(err),
		)
		return res, nil
	}
	res.History.Appended = true
	return res, nil
}

// Delta returns newPrice - oldPrice rounded to cents, or nil when oldPrice
// is nil.
func Delta(oldPrice *float64, newPrice float64) *float64 {
	if oldPrice == nil {
		return nil
	}
	d, _ := decimal.NewFromFloat(newPrice).Sub(decimal.NewFromFloat(*oldPrice)).Round(2).Float64()
	return &d
}
