package tessera

import (
	"cmp"
	"math/rand/v2"
	"testing"
)

type heapItem struct {
	name     string
	priority int
}

func newItemHeap() *Heap[*heapItem] {
	return NewHeap(
		func(a, b *heapItem) int { return cmp.Compare(a.priority, b.priority) },
		func(a, b *heapItem) bool { return a.name == b.name },
	)
}

func TestHeapPopOrderRandomPriorities(t *testing.T) {
	rng := rand.New(rand.NewPCG(1, 2))
	h := NewHeap(cmp.Compare[int], func(a, b int) bool { return a == b })
	const n = 500
	for i := 0; i < n; i++ {
		h.Push(rng.IntN(1000))
	}
	if h.Count() != n {
		t.Fatalf("Count = %d, want %d", h.Count(), n)
	}
	prev := -1
	for i := 0; i < n; i++ {
		v, ok := h.Pop()
		if !ok {
			t.Fatalf("Pop %d: heap empty early", i)
		}
		if v < prev {
			t.Fatalf("Pop %d = %d, previous %d: order violated", i, v, prev)
		}
		prev = v
	}
	if !h.IsEmpty() {
		t.Error("heap should be empty after popping everything")
	}
	if _, ok := h.Pop(); ok {
		t.Error("Pop on empty heap should report !ok")
	}
}

func TestHeapPeek(t *testing.T) {
	h := newItemHeap()
	if _, ok := h.Peek(); ok {
		t.Error("Peek on empty heap should report !ok")
	}
	h.Push(&heapItem{"a", 5})
	h.Push(&heapItem{"b", 2})
	h.Push(&heapItem{"c", 9})
	top, _ := h.Peek()
	if top.name != "b" {
		t.Errorf("Peek = %q, want %q", top.name, "b")
	}
	if h.Count() != 3 {
		t.Errorf("Peek changed Count to %d", h.Count())
	}
}

func TestHeapContainsUsesEquality(t *testing.T) {
	h := newItemHeap()
	for i, name := range []string{"a", "b", "c", "d", "e", "f"} {
		h.Push(&heapItem{name, i * 3})
	}
	// A fresh value with the same name and an equal-or-higher priority finds
	// the stored element.
	if !h.Contains(&heapItem{"d", 9}) {
		t.Error("Contains(d) = false, want true")
	}
	if !h.Contains(&heapItem{"d", 100}) {
		t.Error("Contains(d, higher priority probe) = false, want true")
	}
	if h.Contains(&heapItem{"z", 100}) {
		t.Error("Contains(z) = true, want false")
	}
	found, ok := h.Find(&heapItem{"e", 12})
	if !ok || found.priority != 12 {
		t.Errorf("Find(e) = %+v, %v; want priority 12", found, ok)
	}
}

func TestHeapDecreaseKey(t *testing.T) {
	h := newItemHeap()
	items := []*heapItem{{"a", 10}, {"b", 20}, {"c", 30}, {"d", 40}}
	for _, it := range items {
		h.Push(it)
	}
	ok := h.DecreaseKey(items[3], func(it *heapItem) *heapItem {
		it.priority = 1
		return it
	})
	if !ok {
		t.Fatal("DecreaseKey(d) = false, want true")
	}
	top, _ := h.Pop()
	if top.name != "d" {
		t.Errorf("Pop after DecreaseKey = %q, want %q", top.name, "d")
	}
	if h.DecreaseKey(&heapItem{"missing", 0}, func(it *heapItem) *heapItem { return it }) {
		t.Error("DecreaseKey on missing element should return false")
	}
}

func TestHeapClear(t *testing.T) {
	h := newItemHeap()
	h.Push(&heapItem{"a", 1})
	h.Push(&heapItem{"b", 2})
	h.Clear()
	if !h.IsEmpty() || h.Count() != 0 {
		t.Errorf("after Clear: Count = %d, want 0", h.Count())
	}
	h.Push(&heapItem{"c", 3})
	if top, _ := h.Peek(); top.name != "c" {
		t.Errorf("Peek after reuse = %q, want %q", top.name, "c")
	}
}
