package tessera

// Heap is a binary min-heap ordered by a comparator. Lookups use a separate
// equality predicate so that a freshly constructed value can locate the
// logically identical element already stored in the heap.
type Heap[T any] struct {
	items   []T
	compare func(a, b T) int
	same    func(a, b T) bool
}

// NewHeap creates an empty heap. compare returns a negative number when a
// orders before b, zero when they tie, and a positive number otherwise.
// same reports whether two values denote the same logical element.
func NewHeap[T any](compare func(a, b T) int, same func(a, b T) bool) *Heap[T] {
	return &Heap[T]{compare: compare, same: same}
}

// Push inserts v. O(log n).
func (h *Heap[T]) Push(v T) {
	h.items = append(h.items, v)
	h.up(len(h.items) - 1)
}

// Pop removes and returns the minimum element. ok is false when the heap is empty.
func (h *Heap[T]) Pop() (v T, ok bool) {
	n := len(h.items)
	if n == 0 {
		return v, false
	}
	v = h.items[0]
	last := n - 1
	h.items[0] = h.items[last]
	var zero T
	h.items[last] = zero
	h.items = h.items[:last]
	if last > 0 {
		h.down(0)
	}
	return v, true
}

// Peek returns the minimum element without removing it.
func (h *Heap[T]) Peek() (v T, ok bool) {
	if len(h.items) == 0 {
		return v, false
	}
	return h.items[0], true
}

// Count returns the number of stored elements.
func (h *Heap[T]) Count() int {
	return len(h.items)
}

// IsEmpty reports whether the heap holds no elements.
func (h *Heap[T]) IsEmpty() bool {
	return len(h.items) == 0
}

// Clear removes all elements.
func (h *Heap[T]) Clear() {
	clear(h.items)
	h.items = h.items[:0]
}

// Contains reports whether an element the same as v is stored.
func (h *Heap[T]) Contains(v T) bool {
	return h.search(v) >= 0
}

// Find returns the stored element that is the same as v.
func (h *Heap[T]) Find(v T) (found T, ok bool) {
	i := h.search(v)
	if i < 0 {
		return found, false
	}
	return h.items[i], true
}

// DecreaseKey locates the stored element that is the same as v, applies
// mutate to it, and restores heap order upward. mutate must not increase the
// element's priority. Returns false when no such element is stored.
func (h *Heap[T]) DecreaseKey(v T, mutate func(T) T) bool {
	i := h.search(v)
	if i < 0 {
		return false
	}
	h.items[i] = mutate(h.items[i])
	h.up(i)
	return true
}

// search walks the heap using its partial order: a subtree is skipped once its
// root orders strictly after v, since nothing below it can order before v.
// The stored element must not order after v for the lookup to succeed.
func (h *Heap[T]) search(v T) int {
	if len(h.items) == 0 {
		return -1
	}
	stack := []int{0}
	for len(stack) > 0 {
		i := stack[len(stack)-1]
		stack = stack[:len(stack)-1]
		if h.compare(h.items[i], v) > 0 {
			continue
		}
		if h.same(h.items[i], v) {
			return i
		}
		if l := 2*i + 1; l < len(h.items) {
			stack = append(stack, l)
		}
		if r := 2*i + 2; r < len(h.items) {
			stack = append(stack, r)
		}
	}
	return -1
}

func (h *Heap[T]) up(i int) {
	for i > 0 {
		parent := (i - 1) / 2
		if h.compare(h.items[i], h.items[parent]) >= 0 {
			return
		}
		h.items[i], h.items[parent] = h.items[parent], h.items[i]
		i = parent
	}
}

func (h *Heap[T]) down(i int) {
	n := len(h.items)
	for {
		smallest := i
		if l := 2*i + 1; l < n && h.compare(h.items[l], h.items[smallest]) < 0 {
			smallest = l
		}
		if r := 2*i + 2; r < n && h.compare(h.items[r], h.items[smallest]) < 0 {
			smallest = r
		}
		if smallest == i {
			return
		}
		h.items[i], h.items[smallest] = h.items[smallest], h.items[i]
		i = smallest
	}
}
