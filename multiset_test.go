package tessera

import "testing"

func TestMultiSetCounts(t *testing.T) {
	m := NewMultiSet[string]()
	m.Add("a")
	m.Add("a")
	m.Add("b")
	if m.Len() != 3 {
		t.Errorf("Len = %d, want 3", m.Len())
	}
	if m.Count("a") != 2 {
		t.Errorf("Count(a) = %d, want 2", m.Count("a"))
	}
	if !m.Remove("a") {
		t.Error("Remove(a) = false, want true")
	}
	if !m.Has("a") {
		t.Error("one occurrence of a should remain")
	}
	m.Remove("a")
	if m.Has("a") {
		t.Error("a should be gone after removing both occurrences")
	}
	if m.Remove("a") {
		t.Error("Remove of absent value should return false")
	}
	if m.Len() != 1 {
		t.Errorf("Len = %d, want 1", m.Len())
	}
}

func TestMultiSetEachAndClear(t *testing.T) {
	m := NewMultiSet[int]()
	for _, v := range []int{1, 2, 2, 3, 3, 3} {
		m.Add(v)
	}
	total := 0
	m.Each(func(v, n int) {
		if v != n {
			t.Errorf("value %d has count %d", v, n)
		}
		total += n
	})
	if total != 6 {
		t.Errorf("Each total = %d, want 6", total)
	}
	m.Clear()
	if m.Len() != 0 || m.Has(3) {
		t.Error("Clear should empty the multiset")
	}
}
