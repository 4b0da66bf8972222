// Package catalog resolves a supplier's extraction to the catalog entity it
// prices.
package catalog

import (
	"context"
	"strings"
	"unicode/utf8"

	"go.uber.org/zap"

	"github.com/sells-group/pricetrack/internal/extract"
	"github.com/sells-group/pricetrack/internal/model"
)

// ReasonNotFound is the failure reason when no entity matches.
const ReasonNotFound = "battery not found in catalog"

// Finder is the storage query the matcher needs.
type Finder interface {
	FindEntitiesByNamePattern(ctx context.Context, pattern string) ([]model.CatalogEntity, error)
}

// Matcher maps a name pattern to a single catalog entity.
type Matcher struct {
	finder Finder
}

// NewMatcher creates a Matcher backed by f.
func NewMatcher(f Finder) *Matcher {
	return &Matcher{finder: f}
}

// Match returns the first entity, in name order, whose name matches the
// LIKE pattern case-insensitively. Ambiguous patterns resolve to the first
// candidate and log the rest.
func (m *Matcher) Match(ctx context.Context, pattern string) (*model.CatalogEntity, error) {
	candidates, err := m.finder.FindEntitiesByNamePattern(ctx, pattern)
	if err != nil {
		return nil, &extract.Failure{Kind: model.FailurePersistence, Reason: "catalog lookup failed", Err: err}
	}
	if len(candidates) == 0 {
		return nil, extract.Failf(model.FailureMatch, ReasonNotFound, "pattern %s", pattern)
	}
	if len(candidates) > 1 {
		names := make([]string, len(candidates))
		for i, c := range candidates {
			names[i] = c.Name
		}
		zap.L().Warn("catalog: pattern matched several batteries, using first",
			zap.String("pattern", pattern),
			zap.Strings("candidates", names),
		)
	}
	e := candidates[0]
	return &e, nil
}

// Like reports whether name matches a SQL LIKE pattern, case-insensitively:
// '%' matches any run of characters and '_' exactly one.
func Like(pattern, name string) bool {
	return like(strings.ToLower(pattern), strings.ToLower(name))
}

func like(p, s string) bool {
	// Iterative wildcard match with single-star backtracking.
	var (
		pi, si       int
		starP, starS = -1, 0
	)
	for si < len(s) {
		if pi < len(p) {
			pr, pw := utf8.DecodeRuneInString(p[pi:])
			switch pr {
			case '%':
				starP, starS = pi, si
				pi += pw
				continue
			case '_':
				_, sw := utf8.DecodeRuneInString(s[si:])
				pi += pw
				si += sw
				continue
			default:
				sr, sw := utf8.DecodeRuneInString(s[si:])
				if pr == sr {
					pi += pw
					si += sw
					continue
				}
			}
		}
		if starP < 0 {
			return false
		}
		_, sw := utf8.DecodeRuneInString(s[starS:])
		starS += sw
		si = starS
		pi = starP + 1
	}
	for pi < len(p) && p[pi] == '%' {
		pi++
	}
	return pi == len(p)
}

// Filter returns the entities whose names match pattern, preserving order.
func Filter(entities []model.CatalogEntity, pattern string) []model.CatalogEntity {
	var out []model.CatalogEntity
	for _, e := range entities {
		if Like(pattern, e.Name) {
			out = append(out, e)
		}
	}
	return out
}
