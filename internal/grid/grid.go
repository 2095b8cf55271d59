// Package grid holds the value types for addressing terrain regions and
// derived tiles on an integer grid: keys, rectangles, classifications, and
// the adjacency predicates the clustering pass is built on.
//
// Coordinates are in grid units (meters on most grids). A base region is
// the smallest addressable unit; aggregate tiles at level L cover
// 2^L x 2^L base cells.
package grid

import (
	"fmt"
	"strings"
)

// Classification of a region or aggregate tile.
type Classification uint8

const (
	Unknown Classification = iota
	Land
	Water
)

func (c Classification) String() string {
	switch c {
	case Land:
		return "land"
	case Water:
		return "water"
	default:
		return "unknown"
	}
}

// Canonical returns the canonical lowercase form of a grid name.
// Grid names are matched case-insensitively everywhere.
func Canonical(grid string) string {
	return strings.ToLower(strings.TrimSpace(grid))
}

// Key identifies one base region: grid name plus integer coordinates.
type Key struct {
	Grid string
	X    int
	Y    int
}

func (k Key) String() string {
	return fmt.Sprintf("%s (%d, %d)", k.Grid, k.X, k.Y)
}

// Compare orders keys by (grid, x, y) ascending, the order the survey
// store delivers regions in. Returns -1, 0, or 1.
func Compare(a, b Key) int {
	if a.Grid != b.Grid {
		if a.Grid < b.Grid {
			return -1
		}
		return 1
	}
	if a.X != b.X {
		if a.X < b.X {
			return -1
		}
		return 1
	}
	switch {
	case a.Y < b.Y:
		return -1
	case a.Y > b.Y:
		return 1
	}
	return 0
}

// Rect is an axis-aligned rectangle in grid units.
type Rect struct {
	X, Y         int
	SizeX, SizeY int
}

func (r Rect) Right() int { return r.X + r.SizeX }
func (r Rect) Top() int   { return r.Y + r.SizeY }

// Union is the smallest rectangle containing both.
func (r Rect) Union(o Rect) Rect {
	x := min(r.X, o.X)
	y := min(r.Y, o.Y)
	return Rect{
		X:     x,
		Y:     y,
		SizeX: max(r.Right(), o.Right()) - x,
		SizeY: max(r.Top(), o.Top()) - y,
	}
}

// Overlaps is true if the rectangles share interior area.
// Shared edges do not count as overlap.
func (r Rect) Overlaps(o Rect) bool {
	xNoLap := r.Right() <= o.X || r.X >= o.Right()
	yNoLap := r.Top() <= o.Y || r.Y >= o.Top()
	return !(xNoLap || yNoLap)
}

// Contains is true if o lies entirely within r.
func (r Rect) Contains(o Rect) bool {
	return r.X <= o.X && r.Right() >= o.Right() &&
		r.Y <= o.Y && r.Top() >= o.Top()
}

// Region is one surveyed base tile (LOD 0). Immutable once classified.
type Region struct {
	Grid  string
	Name  string
	X, Y  int
	SizeX int
	SizeY int
	Class Classification

	// Elevation metadata, owned by the asset generation side.
	Scale      float32
	Offset     float32
	WaterLevel float32
}

func (r Region) Key() Key {
	return Key{Grid: r.Grid, X: r.X, Y: r.Y}
}

func (r Region) Rect() Rect {
	return Rect{X: r.X, Y: r.Y, SizeX: r.SizeX, SizeY: r.SizeY}
}

func (r Region) String() string {
	return fmt.Sprintf("%q (%d, %d)", r.Name, r.X, r.Y)
}

// YTouches reports whether b, the next region up in the same column,
// touches r. The regions must already be ordered with r below b.
// tolerance is 0, or 1 on grids where corner contact connects.
func YTouches(r, b Region, tolerance int) bool {
	return r.Y+r.SizeY+tolerance >= b.Y
}

// XYTouches reports whether two regions in adjacent columns share a
// boundary segment: their Y intervals must overlap, with r in the
// earlier column. The compare is strict so a pure corner contact only
// counts once the tolerance widens the intervals.
func XYTouches(r, b Region, tolerance int) bool {
	a0 := r.Y
	a1 := a0 + r.SizeY + tolerance
	b0 := b.Y
	b1 := b0 + b.SizeY + tolerance
	return a0 < b1 && a1 > b0
}

// TileKey identifies a tile at any level of the pyramid.
type TileKey struct {
	Grid  string
	X     int
	Y     int
	Level int
}

// Tile is one resolved output tile: a base region at level 0 or an
// aggregate at level >= 1, tagged with its visibility group.
type Tile struct {
	Grid    string
	X, Y    int
	SizeX   int
	SizeY   int
	Level   int
	GroupID int
	Class   Classification
}

func (t Tile) Key() TileKey {
	return TileKey{Grid: t.Grid, X: t.X, Y: t.Y, Level: t.Level}
}

func (t Tile) String() string {
	return fmt.Sprintf("%s (%d, %d) lod %d %s", t.Grid, t.X, t.Y, t.Level, t.Class)
}
