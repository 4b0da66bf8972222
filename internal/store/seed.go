package store

import (
	"context"
	"os"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"
	"gopkg.in/yaml.v3"

	"github.com/sells-group/pricetrack/internal/model"
)

// Seed is the initial catalog content loaded by `pricetrack seed`.
type Seed struct {
	Classes   []model.BatteryClass       `yaml:"classes"`
	Batteries []model.CatalogEntity      `yaml:"batteries"`
	History   []model.PriceHistoryRecord `yaml:"history"`
}

// SeedStats counts what a seed wrote.
type SeedStats struct {
	Classes   int
	Batteries int
	History   int64
}

// LoadSeed reads and validates a YAML seed file.
func LoadSeed(path string) (*Seed, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, eris.Wrapf(err, "seed: read %s", path)
	}
	return ParseSeed(data)
}

// ParseSeed decodes and validates seed YAML.
func ParseSeed(data []byte) (*Seed, error) {
	var s Seed
	if err := yaml.Unmarshal(data, &s); err != nil {
		return nil, eris.Wrap(err, "seed: parse yaml")
	}
	if err := s.Validate(); err != nil {
		return nil, err
	}
	return &s, nil
}

// Validate checks ids are present and unique and that references resolve.
func (s *Seed) Validate() error {
	classes := make(map[string]bool, len(s.Classes))
	for i, c := range s.Classes {
		if c.ID == "" {
			return eris.Errorf("seed: class %d has no id", i)
		}
		if classes[c.ID] {
			return eris.Errorf("seed: duplicate class id %s", c.ID)
		}
		classes[c.ID] = true
	}

	batteries := make(map[string]bool, len(s.Batteries))
	for i, b := range s.Batteries {
		if b.ID == "" || b.Name == "" {
			return eris.Errorf("seed: battery %d needs an id and a name", i)
		}
		if batteries[b.ID] {
			return eris.Errorf("seed: duplicate battery id %s", b.ID)
		}
		if b.ClassID != nil && !classes[*b.ClassID] {
			return eris.Errorf("seed: battery %s references unknown class %s", b.ID, *b.ClassID)
		}
		if b.CurrentPrice != nil && *b.CurrentPrice < 0 {
			return eris.Errorf("seed: battery %s has a negative price", b.ID)
		}
		batteries[b.ID] = true
	}

	for i, h := range s.History {
		if !batteries[h.EntityID] {
			return eris.Errorf("seed: history row %d references unknown battery %s", i, h.EntityID)
		}
		if h.ObservedAt.IsZero() {
			return eris.Errorf("seed: history row %d has no scraped_at", i)
		}
	}
	return nil
}

// Apply upserts classes then batteries, then imports history rows.
func (s *Seed) Apply(ctx context.Context, st Store) (SeedStats, error) {
	var stats SeedStats
	for _, c := range s.Classes {
		if err := st.UpsertClass(ctx, c); err != nil {
			return stats, err
		}
		stats.Classes++
	}
	for _, b := range s.Batteries {
		if err := st.UpsertEntity(ctx, b); err != nil {
			return stats, err
		}
		stats.Batteries++
	}
	n, err := st.ImportHistory(ctx, s.History)
	if err != nil {
		return stats, err
	}
	stats.History = n

	zap.L().Info("seed: applied",
		zap.Int("classes", stats.Classes),
		zap.Int("batteries", stats.Batteries),
		zap.Int64("history", stats.History),
	)
	return stats, nil
}
