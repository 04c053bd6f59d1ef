// Package topn ranks (id, value) pairs and truncates them to the best N.
package topn

import (
	"cmp"
	"log/slog"
	"slices"
)

// Order is the ranking direction.
type Order int

const (
	// Descending ranks the largest values first.
	Descending Order = iota
	// Ascending ranks the smallest values first.
	Ascending
)

func (o Order) String() string {
	if o == Ascending {
		return "ascending"
	}
	return "descending"
}

type Pair[K cmp.Ordered] struct {
	ID    K
	Value float64
}

// Select returns at most n pairs ranked by value in the given order. Equal
// values keep id order, so the result does not depend on input order. When
// fewer than n candidates exist, all of them are returned ranked. The input
// slice is not modified.
func Select[K cmp.Ordered](pairs []Pair[K], n int, order Order, logger *slog.Logger) []Pair[K] {
	if n <= 0 {
		return []Pair[K]{}
	}
	ranked := slices.Clone(pairs)
	slices.SortStableFunc(ranked, func(a, b Pair[K]) int {
		c := cmp.Compare(a.Value, b.Value)
		if order == Descending {
			c = -c
		}
		if c != 0 {
			return c
		}
		return cmp.Compare(a.ID, b.ID)
	})
	if len(ranked) <= n {
		if logger != nil {
			logger.Warn("candidate pool does not exceed requested top", "candidates", len(ranked), "top", n, "order", order.String())
		}
		return ranked
	}
	return ranked[:n]
}
