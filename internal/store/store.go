package store

import (
	"context"
	"time"

	"github.com/rotisserie/eris"

	"github.com/sells-group/pricetrack/internal/model"
)

// DefaultHistoryLimit is the number of history rows returned when the caller
// does not ask for a specific count.
const DefaultHistoryLimit = 50

// MaxHistoryLimit caps a single history read.
const MaxHistoryLimit = 500

// ErrNotFound is returned (wrapped) when a referenced record does not exist.
var ErrNotFound = eris.New("not found")

// Store defines the persistence interface for the price catalog.
type Store interface {
	// Catalog
	FindEntitiesByNamePattern(ctx context.Context, pattern string) ([]model.CatalogEntity, error)
	UpdateEntityPrice(ctx context.Context, id string, price float64, at time.Time) (*model.CatalogEntity, error)
	ListEntitiesWithClassInfo(ctx context.Context) ([]model.CatalogEntity, error)
	ListClasses(ctx context.Context) ([]model.BatteryClass, error)

	// History
	AppendHistory(ctx context.Context, entityID string, price float64, observedAt time.Time) error
	ReadHistory(ctx context.Context, entityID string, limit int) ([]model.PriceHistoryRecord, error)
	ImportHistory(ctx context.Context, records []model.PriceHistoryRecord) (int64, error)

	// Seeding
	UpsertClass(ctx context.Context, c model.BatteryClass) error
	UpsertEntity(ctx context.Context, e model.CatalogEntity) error

	// Lifecycle
	Migrate(ctx context.Context) error
	Close() error
}

// clampLimit applies the default and maximum history limits.
func clampLimit(limit int) int {
	switch {
	case limit <= 0:
		return DefaultHistoryLimit
	case limit > MaxHistoryLimit:
		return MaxHistoryLimit
	default:
		return limit
	}
}
