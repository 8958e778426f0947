package structure

import (
	rbt "github.com/emirpasic/gods/v2/trees/redblacktree"
	"github.com/shopspring/decimal"
)

// RBTreeIndex is a balanced-tree SortedIndex strategy backed by a red-black
// tree. Behaviour is identical to SkipListIndex; it exists for hosts that
// prefer worst-case bounds over the skip list's probabilistic ones.
type RBTreeIndex[V any] struct {
	tree *rbt.Tree[decimal.Decimal, V]
}

// NewRBTreeIndex creates a red-black tree index ordered by less.
func NewRBTreeIndex[V any](less LessFunc) *RBTreeIndex[V] {
	return &RBTreeIndex[V]{
		tree: rbt.NewWith[decimal.Decimal, V](cmpFromLess(less)),
	}
}

// Get returns the value stored under key.
func (idx *RBTreeIndex[V]) Get(key decimal.Decimal) (V, bool) {
	return idx.tree.Get(key)
}

// Put inserts or replaces the value under key. It never fails.
func (idx *RBTreeIndex[V]) Put(key decimal.Decimal, value V) error {
	idx.tree.Put(key, value)
	return nil
}

// Remove deletes key and reports whether it was present.
func (idx *RBTreeIndex[V]) Remove(key decimal.Decimal) bool {
	if _, found := idx.tree.Get(key); !found {
		return false
	}
	idx.tree.Remove(key)
	return true
}

// Front returns the best key and its value.
func (idx *RBTreeIndex[V]) Front() (decimal.Decimal, V, bool) {
	if idx.tree.Empty() {
		var zero V
		return decimal.Decimal{}, zero, false
	}
	node := idx.tree.Left()
	return node.Key, node.Value, true
}

// Walk visits entries best first until fn returns false.
func (idx *RBTreeIndex[V]) Walk(fn func(key decimal.Decimal, value V) bool) {
	it := idx.tree.Iterator()
	for it.Next() {
		if !fn(it.Key(), it.Value()) {
			return
		}
	}
}

// Len returns the number of keys.
func (idx *RBTreeIndex[V]) Len() int {
	return idx.tree.Size()
}
