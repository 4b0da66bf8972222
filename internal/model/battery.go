package model

import "time"

// BatteryClass is the capacity and power rating a battery belongs to. Read-only context
// for the price pipeline.
type BatteryClass struct {
	ID               string  `json:"id" yaml:"id"`
	ShortName        string  `json:"short_name" yaml:"short_name"`
	CapacityKWh      float64 `json:"capacity_kwh" yaml:"capacity_kwh"`
	ContinuousPowerW int     `json:"cpower_w" yaml:"cpower_w"`
	PeakPowerW       int     `json:"ppower_w" yaml:"ppower_w"`
}

// CatalogEntity is a tracked product in the catalog.
type CatalogEntity struct {
	ID           string        `json:"id" yaml:"id"`
	Name         string        `json:"name" yaml:"name"`
	Supplier     string        `json:"supplier" yaml:"supplier"`
	CurrentPrice *float64      `json:"current_price,omitempty" yaml:"current_price,omitempty"`
	UpdatedAt    *time.Time    `json:"updated_at,omitempty" yaml:"-"`
	URL          string        `json:"url" yaml:"url"`
	ClassID      *string       `json:"class_id,omitempty" yaml:"class_id,omitempty"`
	Class        *BatteryClass `json:"battery_class,omitempty" yaml:"-"`
}

// HasPrice reports whether the entity has a current price.
func (e CatalogEntity) HasPrice() bool {
	return e.CurrentPrice != nil
}

// PriceHistoryRecord is one observed price. Records are append-only.
type PriceHistoryRecord struct {
	ID         string    `json:"id" yaml:"id,omitempty"`
	EntityID   string    `json:"battery_id" yaml:"battery_id"`
	Price      float64   `json:"price" yaml:"price"`
	ObservedAt time.Time `json:"scraped_at" yaml:"scraped_at"`
}

// Float64Ptr returns a pointer to v.
func Float64Ptr(v float64) *float64 {
	return &v
}
