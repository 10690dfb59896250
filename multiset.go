package tessera

// MultiSet counts occurrences of comparable values.
type MultiSet[T comparable] struct {
	counts map[T]int
	size   int
}

// NewMultiSet creates an empty multiset.
func NewMultiSet[T comparable]() *MultiSet[T] {
	return &MultiSet[T]{counts: make(map[T]int)}
}

// Add inserts one occurrence of v.
func (m *MultiSet[T]) Add(v T) {
	m.counts[v]++
	m.size++
}

// Remove deletes one occurrence of v and reports whether one was present.
func (m *MultiSet[T]) Remove(v T) bool {
	n, ok := m.counts[v]
	if !ok {
		return false
	}
	if n == 1 {
		delete(m.counts, v)
	} else {
		m.counts[v] = n - 1
	}
	m.size--
	return true
}

// Has reports whether at least one occurrence of v is present.
func (m *MultiSet[T]) Has(v T) bool {
	_, ok := m.counts[v]
	return ok
}

// Count returns the number of occurrences of v.
func (m *MultiSet[T]) Count(v T) int {
	return m.counts[v]
}

// Len returns the total number of occurrences.
func (m *MultiSet[T]) Len() int {
	return m.size
}

// Each calls fn once per distinct value with its count. Iteration order is
// unspecified.
func (m *MultiSet[T]) Each(fn func(v T, count int)) {
	for v, n := range m.counts {
		fn(v, n)
	}
}

// Clear removes every occurrence.
func (m *MultiSet[T]) Clear() {
	clear(m.counts)
	m.size = 0
}
