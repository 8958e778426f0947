package structure

import (
	"github.com/huandu/skiplist"
	"github.com/shopspring/decimal"
)

// SkipListIndex is the default SortedIndex strategy, backed by a skip list.
// Lookups go through the comparator rather than a side map so that decimal
// keys with different exponents still hit the same entry.
type SkipListIndex[V any] struct {
	list *skiplist.SkipList
}

// NewSkipListIndex creates a skip list index ordered by less.
func NewSkipListIndex[V any](less LessFunc) *SkipListIndex[V] {
	cmp := cmpFromLess(less)
	return &SkipListIndex[V]{
		list: skiplist.New(skiplist.GreaterThanFunc(func(lhs, rhs any) int {
			d1, _ := lhs.(decimal.Decimal)
			d2, _ := rhs.(decimal.Decimal)
			return cmp(d1, d2)
		})),
	}
}

// Get returns the value stored under key.
func (idx *SkipListIndex[V]) Get(key decimal.Decimal) (V, bool) {
	el := idx.list.Get(key)
	if el == nil {
		var zero V
		return zero, false
	}
	v, _ := el.Value.(V)
	return v, true
}

// Put inserts or replaces the value under key. It never fails.
func (idx *SkipListIndex[V]) Put(key decimal.Decimal, value V) error {
	idx.list.Set(key, value)
	return nil
}

// Remove deletes key and reports whether it was present.
func (idx *SkipListIndex[V]) Remove(key decimal.Decimal) bool {
	return idx.list.Remove(key) != nil
}

// Front returns the best key and its value.
func (idx *SkipListIndex[V]) Front() (decimal.Decimal, V, bool) {
	el := idx.list.Front()
	if el == nil {
		var zero V
		return decimal.Decimal{}, zero, false
	}
	key, _ := el.Key().(decimal.Decimal)
	v, _ := el.Value.(V)
	return key, v, true
}

// Walk visits entries best first until fn returns false.
func (idx *SkipListIndex[V]) Walk(fn func(key decimal.Decimal, value V) bool) {
	for el := idx.list.Front(); el != nil; el = el.Next() {
		key, _ := el.Key().(decimal.Decimal)
		v, _ := el.Value.(V)
		if !fn(key, v) {
			return
		}
	}
}

// Len returns the number of keys.
func (idx *SkipListIndex[V]) Len() int {
	return idx.list.Len()
}
