// Package structure provides the price-ordered containers backing the order
// book. A SortedIndex keeps price levels in best-first order; the ordering
// direction is supplied by the caller so one contract serves both book sides.
package structure

import (
	"errors"

	"github.com/shopspring/decimal"
)

// ErrIndexFull is returned by capacity-bounded strategies when a new key
// cannot be inserted.
var ErrIndexFull = errors.New("structure: sorted index capacity exceeded")

// LessFunc reports whether a sorts strictly before b. For a bid index this is
// descending price order, for an ask index ascending.
type LessFunc func(a, b decimal.Decimal) bool

// SortedIndex is a price-keyed ordered map. Front returns the best key
// (first in LessFunc order). Implementations are not safe for concurrent
// use; the engine thread is the sole mutator.
type SortedIndex[V any] interface {
	// Get returns the value stored under key.
	Get(key decimal.Decimal) (V, bool)

	// Put inserts or replaces the value under key. Capacity-bounded
	// strategies return ErrIndexFull when a new key does not fit.
	Put(key decimal.Decimal, value V) error

	// Remove deletes key and reports whether it was present.
	Remove(key decimal.Decimal) bool

	// Front returns the best key and its value.
	Front() (decimal.Decimal, V, bool)

	// Walk visits entries in order until fn returns false.
	Walk(fn func(key decimal.Decimal, value V) bool)

	// Len returns the number of keys.
	Len() int
}

// cmpFromLess adapts a LessFunc to a three-way comparator.
func cmpFromLess(less LessFunc) func(a, b decimal.Decimal) int {
	return func(a, b decimal.Decimal) int {
		if less(a, b) {
			return -1
		}
		if less(b, a) {
			return 1
		}
		return 0
	}
}
