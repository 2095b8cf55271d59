// Package pyramid builds the multi-resolution tile pyramid for one
// visibility group.
//
// Input is the group's regions in (x, y) order. Output is a lazy,
// forward-only sequence of resolved tiles in dependency order: every
// tile appears strictly after the tiles it aggregates. Each level keeps
// only two child columns of state, so memory is bounded by
// O(2 columns x levels), not by the grid extent. That bound is the whole
// point: the largest groups run to tens of thousands of regions, and the
// brute-force approach of materializing every level needs tens of
// gigabytes.
//
// Level L tiles cover 2^L x 2^L base cells and sit on coordinates that
// are multiples of 2^L. A level can only resolve when its working column
// is such a multiple; it lines up with the level below on every other
// step, which is what the per-level state machine in level.go tracks.
package pyramid

import (
	"fmt"

	"terraintiles/internal/grid"
)

// Config for one group's pyramid.
type Config struct {
	Grid    string
	GroupID int

	// Region footprint in grid units; one base cell per region.
	// Groups are homogeneous, so one size fits all members.
	RegionSizeX int
	RegionSizeY int

	// Bounds of the whole group in grid units.
	Bounds grid.Rect

	// Levels forces the pyramid height. Zero derives the smallest
	// height whose single top tile covers the bounds.
	Levels int
}

// Builder streams one group's regions into resolved tiles.
type Builder struct {
	cfg Config

	minCX, maxCX int // cell bounds, [min, max)
	minCY, maxCY int
	startX, endX int // aligned column range, [startX, endX)

	levels []*level // levels[i] is lod i+1

	curColX       int // base column currently receiving regions
	lod0FinishedX int

	prevKey  grid.Key
	hasPrev  bool
	finished bool

	queue []grid.Tile
	head  int

	waterFills int
}

// WaterFills is the number of unobserved cells resolved to water.
func (b *Builder) WaterFills() int { return b.waterFills }

func NewBuilder(cfg Config) (*Builder, error) {
	if cfg.RegionSizeX <= 0 || cfg.RegionSizeY <= 0 {
		return nil, fmt.Errorf("pyramid: region size %dx%d invalid", cfg.RegionSizeX, cfg.RegionSizeY)
	}
	if cfg.Bounds.SizeX <= 0 || cfg.Bounds.SizeY <= 0 {
		return nil, fmt.Errorf("pyramid: empty bounds")
	}

	b := &Builder{cfg: cfg}
	b.minCX = floorDiv(cfg.Bounds.X, cfg.RegionSizeX)
	b.maxCX = ceilDiv(cfg.Bounds.Right(), cfg.RegionSizeX)
	b.minCY = floorDiv(cfg.Bounds.Y, cfg.RegionSizeY)
	b.maxCY = ceilDiv(cfg.Bounds.Top(), cfg.RegionSizeY)

	n := cfg.Levels
	if n <= 0 {
		n = 1
		for floorAlign(b.minCX, 1<<n)+(1<<n) < b.maxCX ||
			floorAlign(b.minCY, 1<<n)+(1<<n) < b.maxCY {
			n++
		}
	}
	b.startX = floorAlign(b.minCX, 1<<n)
	b.endX = ceilAlign(b.maxCX, 1<<n)
	b.curColX = b.startX
	b.lod0FinishedX = b.startX

	b.levels = make([]*level, n)
	for i := range b.levels {
		b.levels[i] = newLevel(b, i+1, b.startX, b.minCY, b.maxCY)
	}
	for i, l := range b.levels {
		if i > 0 {
			l.child = b.levels[i-1]
		}
		if i+1 < len(b.levels) {
			l.parent = b.levels[i+1]
		}
	}
	return b, nil
}

// Levels is the pyramid height in use.
func (b *Builder) Levels() int { return len(b.levels) }

// Add feeds the next region of the group, in (x, y) order. Resolved
// tiles become available through Pop; the caller should drain after
// each step.
func (b *Builder) Add(r grid.Region) error {
	if b.finished {
		return fmt.Errorf("pyramid: add after finish")
	}
	key := r.Key()
	if b.hasPrev && grid.Compare(key, b.prevKey) <= 0 {
		return &grid.OutOfOrderError{Got: key, Prev: b.prevKey}
	}
	cellX := floorDiv(r.X, b.cfg.RegionSizeX)
	cellY := floorDiv(r.Y, b.cfg.RegionSizeY)
	if cellX < b.minCX || cellX >= b.maxCX || cellY < b.minCY || cellY >= b.maxCY {
		return fmt.Errorf("pyramid: region %v outside group bounds", key)
	}

	// Column control break: close the current base column, then one
	// synthetic all-water column for every skipped column, keeping all
	// levels in lockstep.
	for b.curColX < cellX {
		if err := b.finishColumn(b.curColX); err != nil {
			return err
		}
		b.curColX++
	}

	if err := b.levels[0].mark(cellX, cellY, r.Class); err != nil {
		return err
	}
	// The region goes out before any aggregate that depends on it can
	// close; parents follow children, never precede them.
	b.queue = append(b.queue, grid.Tile{
		Grid:    b.cfg.Grid,
		X:       r.X,
		Y:       r.Y,
		SizeX:   r.SizeX,
		SizeY:   r.SizeY,
		Level:   0,
		GroupID: b.cfg.GroupID,
		Class:   r.Class,
	})

	b.prevKey = key
	b.hasPrev = true
	return nil
}

// Finish runs out the stream: the current column closes normally, then
// synthetic water columns are fed until the top level has resolved its
// final tile. The builder is exhausted afterwards.
func (b *Builder) Finish() error {
	if b.finished {
		return nil
	}
	for x := b.curColX; x < b.endX; x++ {
		if err := b.finishColumn(x); err != nil {
			return err
		}
	}
	b.curColX = b.endX
	b.finished = true

	for _, l := range b.levels {
		if l.finishedX < b.endX {
			return &AlignmentError{Level: l.lod, X: l.finishedX, Y: l.baseY,
				Cause: "level did not run out"}
		}
	}
	return nil
}

// Pop removes and returns the next resolved tile.
func (b *Builder) Pop() (grid.Tile, bool) {
	if b.head >= len(b.queue) {
		b.queue = b.queue[:0]
		b.head = 0
		return grid.Tile{}, false
	}
	t := b.queue[b.head]
	b.head++
	return t, true
}

// Pending is the number of resolved tiles not yet popped.
func (b *Builder) Pending() int { return len(b.queue) - b.head }

func (b *Builder) finishColumn(x int) error {
	b.lod0FinishedX = x + 1
	return b.levels[0].childColumnFinished(x)
}

func (b *Builder) emitAggregate(lod, cx, cy int, cls grid.Classification) {
	b.queue = append(b.queue, grid.Tile{
		Grid:    b.cfg.Grid,
		X:       cx * b.cfg.RegionSizeX,
		Y:       cy * b.cfg.RegionSizeY,
		SizeX:   b.cfg.RegionSizeX << lod,
		SizeY:   b.cfg.RegionSizeY << lod,
		Level:   lod,
		GroupID: b.cfg.GroupID,
		Class:   cls,
	})
}

func floorDiv(a, b int) int {
	q := a / b
	if a%b != 0 && (a < 0) != (b < 0) {
		q--
	}
	return q
}

func ceilDiv(a, b int) int {
	return floorDiv(a+b-1, b)
}

func floorAlign(v, m int) int {
	return floorDiv(v, m) * m
}

func ceilAlign(v, m int) int {
	return ceilDiv(v, m) * m
}
