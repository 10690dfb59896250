package tessera

import (
	"math"
	"sort"
	"strconv"
)

type cellKey struct {
	i, j, k int
}

// MapCell is the raw content of one tile-map cell. Reference cells hold the
// tile id; the other cells of a multi-cell tile point back at the reference.
type MapCell struct {
	ID        int
	Reference bool
	RefI      int
	RefJ      int
}

// Placement is a tile at its reference cell.
type Placement struct {
	I, J, K int
	ID      int
}

// TileMap is a sparse 3D index of placed tiles.
type TileMap struct {
	tiles  map[int]*TileDescriptor
	cells  map[cellKey]MapCell
	layers map[int]int // k -> occupied cell count

	// Epsilon relaxes FindPath optimality; see FindPath.
	Epsilon float64
}

// NewTileMap creates an empty map over the given tile catalog.
func NewTileMap(tiles map[int]*TileDescriptor) *TileMap {
	return &TileMap{
		tiles:  tiles,
		cells:  make(map[cellKey]MapCell),
		layers: make(map[int]int),
	}
}

// Descriptor returns the descriptor of a tile id.
func (m *TileMap) Descriptor(id int) (*TileDescriptor, bool) {
	t, ok := m.tiles[id]
	return t, ok && t != nil
}

func (m *TileMap) descriptor(id int) *TileDescriptor {
	t, ok := m.tiles[id]
	if !ok || t == nil {
		panic(&UnknownIDError{Kind: "tile", ID: id})
	}
	return t
}

// GetAt returns the id of the tile covering (i, j, k), resolving secondary
// cells of multi-cell tiles to their tile.
func (m *TileMap) GetAt(i, j, k int) (int, bool) {
	c, ok := m.cells[cellKey{i, j, k}]
	if !ok {
		return 0, false
	}
	if c.Reference {
		return c.ID, true
	}
	ref, ok := m.cells[cellKey{c.RefI, c.RefJ, k}]
	if !ok {
		return 0, false
	}
	return ref.ID, true
}

// Cell returns the raw cell at (i, j, k): either a reference cell or a
// back-pointer to one.
func (m *TileMap) Cell(i, j, k int) (MapCell, bool) {
	c, ok := m.cells[cellKey{i, j, k}]
	return c, ok
}

// reference resolves (i, j, k) to the reference cell coordinates of the tile
// covering it.
func (m *TileMap) reference(i, j, k int) (ri, rj int, id int, ok bool) {
	c, ok := m.cells[cellKey{i, j, k}]
	if !ok {
		return 0, 0, 0, false
	}
	if c.Reference {
		return i, j, c.ID, true
	}
	ref, ok := m.cells[cellKey{c.RefI, c.RefJ, k}]
	if !ok {
		return 0, 0, 0, false
	}
	return c.RefI, c.RefJ, ref.ID, true
}

// footprint returns the first covered cell and span of tile id placed with
// its reference cell at (i, j).
func (m *TileMap) footprint(id, i, j int) (i0, j0 int, span Cells) {
	t := m.descriptor(id)
	span = t.Layout.span()
	return i - t.Layout.Ref.I, j - t.Layout.Ref.J, span
}

// PutAt places tile id with its reference cell at (i, j, k). Mutable tiles
// under the new footprint are removed; if any covered cell belongs to a
// non-mutable tile, nothing changes and PutAt returns false.
func (m *TileMap) PutAt(i, j, k, id int) bool {
	_, ok := m.Place(i, j, k, id)
	return ok
}

// Place is PutAt that also reports the mutable tiles cleared to make room.
func (m *TileMap) Place(i, j, k, id int) (cleared []Placement, ok bool) {
	i0, j0, span := m.footprint(id, i, j)

	// Check every covered cell before writing any of them.
	seen := make(map[cellKey]struct{})
	for dj := 0; dj < span.J; dj++ {
		for di := 0; di < span.I; di++ {
			ri, rj, occupant, occupied := m.reference(i0+di, j0+dj, k)
			if !occupied {
				continue
			}
			if !m.descriptor(occupant).Mutable {
				return nil, false
			}
			key := cellKey{ri, rj, k}
			if _, dup := seen[key]; dup {
				continue
			}
			seen[key] = struct{}{}
			cleared = append(cleared, Placement{I: ri, J: rj, K: k, ID: occupant})
		}
	}

	for _, p := range cleared {
		m.clear(p.I, p.J, p.K, p.ID)
	}
	for dj := 0; dj < span.J; dj++ {
		for di := 0; di < span.I; di++ {
			ci, cj := i0+di, j0+dj
			if ci == i && cj == j {
				m.set(cellKey{ci, cj, k}, MapCell{ID: id, Reference: true, RefI: i, RefJ: j})
			} else {
				m.set(cellKey{ci, cj, k}, MapCell{RefI: i, RefJ: j})
			}
		}
	}
	return cleared, true
}

// RemoveAt removes the mutable tile covering (i, j, k). It returns the
// removed placement, or false when the cell is empty or the tile is fixed.
func (m *TileMap) RemoveAt(i, j, k int) (Placement, bool) {
	ri, rj, id, ok := m.reference(i, j, k)
	if !ok || !m.descriptor(id).Mutable {
		return Placement{}, false
	}
	m.clear(ri, rj, k, id)
	return Placement{I: ri, J: rj, K: k, ID: id}, true
}

func (m *TileMap) clear(ri, rj, k, id int) {
	i0, j0, span := m.footprint(id, ri, rj)
	for dj := 0; dj < span.J; dj++ {
		for di := 0; di < span.I; di++ {
			key := cellKey{i0 + di, j0 + dj, k}
			if _, ok := m.cells[key]; !ok {
				continue
			}
			delete(m.cells, key)
			if m.layers[k]--; m.layers[k] == 0 {
				delete(m.layers, k)
			}
		}
	}
}

func (m *TileMap) set(key cellKey, c MapCell) {
	if _, ok := m.cells[key]; !ok {
		m.layers[key.k]++
	}
	m.cells[key] = c
}

// HasLayer reports whether any cell of layer k is occupied.
func (m *TileMap) HasLayer(k int) bool {
	_, ok := m.layers[k]
	return ok
}

// ForEachLayer calls fn for each occupied layer in ascending order.
func (m *TileMap) ForEachLayer(fn func(k int)) {
	for _, k := range sortedKeys(m.layers) {
		fn(k)
	}
}

// ForEachTile calls fn for every placed tile at its reference cell, ordered
// by layer, then j, then i.
func (m *TileMap) ForEachTile(fn func(p Placement)) {
	for _, p := range m.placements(func(k int) bool { return true }) {
		fn(p)
	}
}

// ForEachTileInLayer calls fn for every placed tile of layer k, ordered by j
// then i.
func (m *TileMap) ForEachTileInLayer(k int, fn func(p Placement)) {
	if !m.HasLayer(k) {
		return
	}
	for _, p := range m.placements(func(layer int) bool { return layer == k }) {
		fn(p)
	}
}

func (m *TileMap) placements(keep func(k int) bool) []Placement {
	var out []Placement
	for key, c := range m.cells {
		if c.Reference && keep(key.k) {
			out = append(out, Placement{I: key.i, J: key.j, K: key.k, ID: c.ID})
		}
	}
	sort.Slice(out, func(a, b int) bool {
		pa, pb := out[a], out[b]
		if pa.K != pb.K {
			return pa.K < pb.K
		}
		if pa.J != pb.J {
			return pa.J < pb.J
		}
		return pa.I < pb.I
	})
	return out
}

// Solid reports whether (i, j, k) is covered by a solid tile.
func (m *TileMap) Solid(i, j, k int) bool {
	id, ok := m.GetAt(i, j, k)
	return ok && m.descriptor(id).Solid
}

// Walkable reports whether (i, j, k) is covered by a tile that is not solid.
// Empty cells are not walkable, which keeps the search graph finite.
func (m *TileMap) Walkable(i, j, k int) bool {
	id, ok := m.GetAt(i, j, k)
	return ok && !m.descriptor(id).Solid
}

// Step is one move of a tile-map path.
type Step struct {
	I, J int
}

var stepDirections = [...]Step{
	{0, -1}, {1, 0}, {0, 1}, {-1, 0},
	{1, -1}, {1, 1}, {-1, 1}, {-1, -1},
}

// GraphNode returns the pathfinding node for cell (i, j, k) searching toward
// (targetI, targetJ) on the same layer.
func (m *TileMap) GraphNode(i, j, k, targetI, targetJ int) PathNode[Step] {
	return mapNode{m: m, i: i, j: j, k: k, ti: targetI, tj: targetJ}
}

type mapNode struct {
	m       *TileMap
	i, j, k int
	ti, tj  int
}

func (n mapNode) ID() string {
	return strconv.Itoa(n.i) + "," + strconv.Itoa(n.j) + "," + strconv.Itoa(n.k)
}

// Heuristic is the octile distance to the target.
func (n mapNode) Heuristic() float64 {
	di := math.Abs(float64(n.ti - n.i))
	dj := math.Abs(float64(n.tj - n.j))
	diag := math.Min(di, dj)
	return diag*math.Sqrt2 + (math.Max(di, dj) - diag)
}

func (n mapNode) Distance(s Step) float64 {
	if s.I != 0 && s.J != 0 {
		return math.Sqrt2
	}
	return 1
}

// Neighbors lists walkable 8-connected cells. Diagonal moves need both
// orthogonally adjacent cells walkable so paths never cut a wall corner.
func (n mapNode) Neighbors() map[Step]func() PathNode[Step] {
	out := make(map[Step]func() PathNode[Step], len(stepDirections))
	for _, s := range stepDirections {
		ni, nj := n.i+s.I, n.j+s.J
		if !n.m.Walkable(ni, nj, n.k) {
			continue
		}
		if s.I != 0 && s.J != 0 &&
			(!n.m.Walkable(n.i+s.I, n.j, n.k) || !n.m.Walkable(n.i, n.j+s.J, n.k)) {
			continue
		}
		out[s] = func() PathNode[Step] {
			return mapNode{m: n.m, i: ni, j: nj, k: n.k, ti: n.ti, tj: n.tj}
		}
	}
	return out
}

// FindPath returns the moves from (i, j) to (targetI, targetJ) on layer k, or
// nil if the target is unreachable.
func (m *TileMap) FindPath(i, j, k, targetI, targetJ int) []Step {
	return FindPath(m.GraphNode(i, j, k, targetI, targetJ), m.Epsilon)
}
