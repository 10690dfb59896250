package tessera

import "cmp"

// PathNode is a vertex of a lazily generated search graph. Nodes are cheap
// values rebuilt on every visit; ID is what identifies them.
//
// Heuristic must be an admissible estimate of the remaining cost and must be
// exactly zero at the goal and nowhere else: the search stops at the first
// node it expands whose heuristic is zero.
type PathNode[L comparable] interface {
	ID() string
	Heuristic() float64
	// Neighbors maps an edge label to a constructor for the node across it.
	Neighbors() map[L]func() PathNode[L]
	// Distance is the weight of the edge with the given label.
	Distance(label L) float64
}

type openEntry[L comparable] struct {
	node PathNode[L]
	id   string
	g    float64
	f    float64
}

type backLink[L comparable] struct {
	parent string
	label  L
}

// FindPath runs A* from start and returns the edge labels leading to the goal
// in order. It returns nil when the goal cannot be reached and an empty,
// non-nil slice when start already is the goal.
//
// epsilon inflates the heuristic by (1 + epsilon): zero yields an optimal
// path; larger values trade optimality for search speed, the result costing
// at most (1 + epsilon) times the optimum.
func FindPath[L comparable](start PathNode[L], epsilon float64) []L {
	if epsilon < 0 {
		epsilon = 0
	}
	weight := 1 + epsilon

	open := NewHeap(
		func(a, b *openEntry[L]) int { return cmp.Compare(a.f, b.f) },
		func(a, b *openEntry[L]) bool { return a.id == b.id },
	)
	entries := make(map[string]*openEntry[L])
	closed := make(map[string]struct{})
	links := make(map[string]backLink[L])

	first := &openEntry[L]{node: start, id: start.ID(), f: start.Heuristic() * weight}
	open.Push(first)
	entries[first.id] = first

	for {
		cur, ok := open.Pop()
		if !ok {
			return nil
		}
		delete(entries, cur.id)
		closed[cur.id] = struct{}{}

		if cur.node.Heuristic() == 0 {
			return rebuildPath(links, start.ID(), cur.id)
		}

		for label, build := range cur.node.Neighbors() {
			next := build()
			id := next.ID()
			if _, done := closed[id]; done {
				continue
			}
			g := cur.g + cur.node.Distance(label)
			if existing, queued := entries[id]; queued {
				if g >= existing.g {
					continue
				}
				f := g + next.Heuristic()*weight
				open.DecreaseKey(existing, func(e *openEntry[L]) *openEntry[L] {
					e.g = g
					e.f = f
					e.node = next
					return e
				})
				links[id] = backLink[L]{parent: cur.id, label: label}
				continue
			}
			e := &openEntry[L]{node: next, id: id, g: g, f: g + next.Heuristic()*weight}
			open.Push(e)
			entries[id] = e
			links[id] = backLink[L]{parent: cur.id, label: label}
		}
	}
}

func rebuildPath[L comparable](links map[string]backLink[L], startID, goalID string) []L {
	path := make([]L, 0)
	for id := goalID; id != startID; {
		link := links[id]
		path = append(path, link.label)
		id = link.parent
	}
	for i, j := 0, len(path)-1; i < j; i, j = i+1, j-1 {
		path[i], path[j] = path[j], path[i]
	}
	return path
}
