package monitoring

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sells-group/pricetrack/internal/model"
)

// mockLister implements EntityLister for testing.
type mockLister struct {
	entities []model.CatalogEntity
	err      error
}

func (m *mockLister) ListEntitiesWithClassInfo(context.Context) ([]model.CatalogEntity, error) {
	return m.entities, m.err
}

var collectNow = time.Date(2025, 6, 10, 12, 0, 0, 0, time.UTC)

func timePtr(t time.Time) *time.Time { return &t }

func newTestCollector(l EntityLister) *Collector {
	c := NewCollector(l)
	c.now = func() time.Time { return collectNow }
	return c
}

func TestCollector_Collect(t *testing.T) {
	st := &mockLister{entities: []model.CatalogEntity{
		{ID: "fresh", CurrentPrice: model.Float64Ptr(999), UpdatedAt: timePtr(collectNow.Add(-2 * time.Hour))},
		{ID: "old", CurrentPrice: model.Float64Ptr(1299), UpdatedAt: timePtr(collectNow.Add(-72 * time.Hour))},
		{ID: "seeded", CurrentPrice: model.Float64Ptr(1599)},
		{ID: "never"},
	}}

	snap, err := newTestCollector(st).Collect(context.Background(), 48)
	require.NoError(t, err)

	assert.Equal(t, 4, snap.Batteries)
	assert.Equal(t, 3, snap.Priced)
	assert.Equal(t, 1, snap.Unpriced)
	assert.Equal(t, []string{"old", "seeded"}, snap.StaleIDs)
	require.NotNil(t, snap.OldestUpdate)
	assert.Equal(t, collectNow.Add(-72*time.Hour), *snap.OldestUpdate)
	assert.Equal(t, 48, snap.StaleAfterHours)
	assert.Equal(t, collectNow, snap.CollectedAt)
}

func TestCollector_Collect_ZeroWindowOnlyFlagsMissingTimestamps(t *testing.T) {
	st := &mockLister{entities: []model.CatalogEntity{
		{ID: "old", CurrentPrice: model.Float64Ptr(1299), UpdatedAt: timePtr(collectNow.Add(-1000 * time.Hour))},
		{ID: "seeded", CurrentPrice: model.Float64Ptr(1599)},
	}}

	snap, err := newTestCollector(st).Collect(context.Background(), 0)
	require.NoError(t, err)
	assert.Equal(t, []string{"seeded"}, snap.StaleIDs)
}

func TestCollector_Collect_Empty(t *testing.T) {
	snap, err := newTestCollector(&mockLister{}).Collect(context.Background(), 48)
	require.NoError(t, err)
	assert.Zero(t, snap.Batteries)
	assert.Empty(t, snap.StaleIDs)
	assert.Nil(t, snap.OldestUpdate)
}

func TestCollector_Collect_StoreError(t *testing.T) {
	_, err := newTestCollector(&mockLister{err: errors.New("db down")}).Collect(context.Background(), 48)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "monitoring: list batteries")
}
