package monitoring

import (
	"context"
	"sort"
	"time"

	"github.com/rotisserie/eris"

	"github.com/sells-group/pricetrack/internal/model"
)

// MetricsSnapshot holds a point-in-time view of catalog price freshness.
type MetricsSnapshot struct {
	Batteries int `json:"batteries"`
	Priced    int `json:"priced"`
	Unpriced  int `json:"unpriced"`

	// StaleIDs lists priced batteries whose last update is older than
	// StaleAfterHours, sorted by id.
	StaleIDs     []string   `json:"stale_ids,omitempty"`
	OldestUpdate *time.Time `json:"oldest_update,omitempty"`

	StaleAfterHours int       `json:"stale_after_hours"`
	CollectedAt     time.Time `json:"collected_at"`
}

// EntityLister is the store subset the collector reads.
type EntityLister interface {
	ListEntitiesWithClassInfo(ctx context.Context) ([]model.CatalogEntity, error)
}

// Collector gathers freshness metrics from the store.
type Collector struct {
	store EntityLister
	now   func() time.Time
}

// NewCollector creates a new metrics collector.
func NewCollector(st EntityLister) *Collector {
	return &Collector{store: st, now: func() time.Time { return time.Now().UTC() }}
}

// Collect builds a snapshot. A battery with a price but no update time
// counts as stale.
func (c *Collector) Collect(ctx context.Context, staleAfterHours int) (*MetricsSnapshot, error) {
	entities, err := c.store.ListEntitiesWithClassInfo(ctx)
	if err != nil {
		return nil, eris.Wrap(err, "monitoring: list batteries")
	}

	now := c.now()
	snap := &MetricsSnapshot{
		Batteries:       len(entities),
		StaleAfterHours: staleAfterHours,
		CollectedAt:     now,
	}
	cutoff := now.Add(-time.Duration(staleAfterHours) * time.Hour)

	for _, e := range entities {
		if !e.HasPrice() {
			snap.Unpriced++
			continue
		}
		snap.Priced++

		if e.UpdatedAt == nil {
			snap.StaleIDs = append(snap.StaleIDs, e.ID)
			continue
		}
		if snap.OldestUpdate == nil || e.UpdatedAt.Before(*snap.OldestUpdate) {
			t := *e.UpdatedAt
			snap.OldestUpdate = &t
		}
		if staleAfterHours > 0 && e.UpdatedAt.Before(cutoff) {
			snap.StaleIDs = append(snap.StaleIDs, e.ID)
		}
	}
	sort.Strings(snap.StaleIDs)

	return snap, nil
}
