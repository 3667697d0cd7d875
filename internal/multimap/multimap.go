// Package multimap provides an insertion-ordered multi-valued index.
package multimap

// Index maps a key to the ordered list of values added under it.
// The zero value is not usable; call New.
type Index[K comparable, V any] struct {
	order  []K
	values map[K][]V
}

// New creates an empty Index.
func New[K comparable, V any]() *Index[K, V] {
	return &Index[K, V]{values: make(map[K][]V)}
}

// GroupBy builds an Index over items keyed by key(item). Items for which
// key reports false are skipped.
func GroupBy[K comparable, V any](items []V, key func(V) (K, bool)) *Index[K, V] {
	idx := New[K, V]()
	for _, item := range items {
		if k, ok := key(item); ok {
			idx.Add(k, item)
		}
	}
	return idx
}

// Add appends v to the list under k.
func (idx *Index[K, V]) Add(k K, v V) {
	if _, ok := idx.values[k]; !ok {
		idx.order = append(idx.order, k)
	}
	idx.values[k] = append(idx.values[k], v)
}

// Get returns the values under k in insertion order, or nil.
func (idx *Index[K, V]) Get(k K) []V {
	return idx.values[k]
}

// Has reports whether any value was added under k.
func (idx *Index[K, V]) Has(k K) bool {
	_, ok := idx.values[k]
	return ok
}

// Keys returns the keys in first-insertion order.
func (idx *Index[K, V]) Keys() []K {
	out := make([]K, len(idx.order))
	copy(out, idx.order)
	return out
}

// Len returns the number of distinct keys.
func (idx *Index[K, V]) Len() int {
	return len(idx.order)
}
