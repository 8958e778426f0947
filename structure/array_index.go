package structure

import (
	"sort"

	"github.com/shopspring/decimal"
)

type arrayEntry[V any] struct {
	key   decimal.Decimal
	value V
}

// ArrayIndex is a fixed-capacity SortedIndex strategy backed by a sorted
// slice. Put fails with ErrIndexFull when a new key would exceed the
// capacity; existing keys can always be updated. Suited to books with a
// known bounded number of price levels.
type ArrayIndex[V any] struct {
	less     LessFunc
	capacity int
	entries  []arrayEntry[V]
}

// NewArrayIndex creates an array index ordered by less holding at most
// capacity keys.
func NewArrayIndex[V any](less LessFunc, capacity int) *ArrayIndex[V] {
	return &ArrayIndex[V]{
		less:     less,
		capacity: capacity,
		entries:  make([]arrayEntry[V], 0, capacity),
	}
}

// search returns the insertion position for key and whether it is present.
func (idx *ArrayIndex[V]) search(key decimal.Decimal) (int, bool) {
	i := sort.Search(len(idx.entries), func(i int) bool {
		return !idx.less(idx.entries[i].key, key)
	})
	if i < len(idx.entries) && idx.entries[i].key.Equal(key) {
		return i, true
	}
	return i, false
}

// Get returns the value stored under key.
func (idx *ArrayIndex[V]) Get(key decimal.Decimal) (V, bool) {
	if i, ok := idx.search(key); ok {
		return idx.entries[i].value, true
	}
	var zero V
	return zero, false
}

// Put inserts or replaces the value under key. Inserting a new key into a
// full index returns ErrIndexFull.
func (idx *ArrayIndex[V]) Put(key decimal.Decimal, value V) error {
	i, ok := idx.search(key)
	if ok {
		idx.entries[i].value = value
		return nil
	}
	if len(idx.entries) >= idx.capacity {
		return ErrIndexFull
	}
	idx.entries = append(idx.entries, arrayEntry[V]{})
	copy(idx.entries[i+1:], idx.entries[i:])
	idx.entries[i] = arrayEntry[V]{key: key, value: value}
	return nil
}

// Remove deletes key and reports whether it was present.
func (idx *ArrayIndex[V]) Remove(key decimal.Decimal) bool {
	i, ok := idx.search(key)
	if !ok {
		return false
	}
	idx.entries = append(idx.entries[:i], idx.entries[i+1:]...)
	return true
}

// Front returns the best key and its value.
func (idx *ArrayIndex[V]) Front() (decimal.Decimal, V, bool) {
	if len(idx.entries) == 0 {
		var zero V
		return decimal.Decimal{}, zero, false
	}
	return idx.entries[0].key, idx.entries[0].value, true
}

// Walk visits entries best first until fn returns false.
func (idx *ArrayIndex[V]) Walk(fn func(key decimal.Decimal, value V) bool) {
	for i := range idx.entries {
		if !fn(idx.entries[i].key, idx.entries[i].value) {
			return
		}
	}
}

// Len returns the number of keys.
func (idx *ArrayIndex[V]) Len() int {
	return len(idx.entries)
}
