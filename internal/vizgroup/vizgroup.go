// Package vizgroup computes the visibility groups of regions.
//
// A visibility group is a maximal set of regions connected through
// edge adjacency: if there is a path of touching regions from one region
// to another, they are in the same group. It's a transitive closure on
// "adjacent".
//
// Input arrives as a single stream sorted by (grid, x, y). The engine
// works column by column and only keeps the groups whose extent can
// still touch a future column, so memory is bounded by the live working
// set, not the grid extent.
//
// Regions live in a flat arena indexed by handle. A group holds the
// handles of its members; each member holds the id of its current group.
// After a merge, the losing group's handle list may contain entries whose
// member now points elsewhere; those are discarded lazily on the next
// visit instead of being swept eagerly, so a merge costs about as much as
// the number of members actually moved.
package vizgroup

import (
	"sort"

	"terraintiles/internal/grid"
)

// Group is one completed visibility group. Regions are sorted by (x, y).
type Group struct {
	ID      int
	Grid    string
	Regions []grid.Region
}

// Homogeneous is true if every member has the same size. Aggregate
// pyramids are only built over homogeneous groups.
func (g Group) Homogeneous() bool {
	for _, r := range g.Regions[1:] {
		if r.SizeX != g.Regions[0].SizeX || r.SizeY != g.Regions[0].SizeY {
			return false
		}
	}
	return true
}

// Bounds is the union of all member rectangles.
func (g Group) Bounds() grid.Rect {
	b := g.Regions[0].Rect()
	for _, r := range g.Regions[1:] {
		b = b.Union(r.Rect())
	}
	return b
}

// Options for the clusterer.
type Options struct {
	// CornersTouch expands the touch test by one grid unit so regions
	// meeting only at a corner connect. Wanted on Open Simulator style
	// grids, not on Second Life style grids.
	CornersTouch bool
}

type member struct {
	region grid.Region
	group  int
}

type group struct {
	id      int
	members []int // arena handles; may contain stale entries
}

// Clusterer is the streaming clustering engine.
type Clusterer struct {
	tolerance int

	arena  []member
	groups map[int]*group
	nextID int

	column   []int // arena handles of the column being read, increasing y
	live     []int // handles of blocks that can still touch future columns, by y
	prev     grid.Key
	havePrev bool

	completed []Group
	merges    int
}

// Merges is the number of group merges performed so far.
func (c *Clusterer) Merges() int { return c.merges }

func New(opts Options) *Clusterer {
	tol := 0
	if opts.CornersTouch {
		tol = 1
	}
	return &Clusterer{
		tolerance: tol,
		groups:    make(map[int]*group),
	}
}

// Add feeds one region, in (grid, x, y) order. On a grid control break
// it returns the completed groups of the previous grid; otherwise the
// returned slice is nil.
func (c *Clusterer) Add(r grid.Region) ([]Group, error) {
	key := r.Key()
	var done []Group
	if c.havePrev {
		if grid.Compare(key, c.prev) <= 0 {
			return nil, &grid.OutOfOrderError{Got: key, Prev: c.prev}
		}
		if key.Grid != c.prev.Grid {
			done = c.EndGrid()
		} else if key.X != c.prev.X {
			c.breakColumn(key.X)
		}
	}

	h := len(c.arena)
	gid := c.nextID
	c.nextID++
	c.arena = append(c.arena, member{region: r, group: gid})
	c.groups[gid] = &group{id: gid, members: []int{h}}

	// Touching the region just below in this column?
	if n := len(c.column); n > 0 {
		below := c.column[n-1]
		if grid.YTouches(c.arena[below].region, r, c.tolerance) {
			c.merge(c.arena[below].group, gid)
		}
	}
	// Touching any live block reaching this column from the left? The
	// column break already purged every block that stops short of this
	// column, so the whole live set is a candidate.
	for _, lb := range c.live {
		if grid.XYTouches(c.arena[lb].region, r, c.tolerance) {
			c.merge(c.arena[lb].group, c.arena[h].group)
		}
	}

	c.column = append(c.column, h)
	c.prev = key
	c.havePrev = true
	return done, nil
}

// EndGrid flushes all remaining state and returns the completed groups
// for the grid just read, renumbered 1..n with the largest group first.
// The clusterer is ready for the next grid afterwards.
func (c *Clusterer) EndGrid() []Group {
	c.breakColumn(int(^uint(0) >> 1)) // no column can reach past MaxInt
	c.collectCompleted()

	out := c.completed
	sort.SliceStable(out, func(i, j int) bool {
		if len(out[i].Regions) != len(out[j].Regions) {
			return len(out[i].Regions) > len(out[j].Regions)
		}
		return grid.Compare(out[i].Regions[0].Key(), out[j].Regions[0].Key()) < 0
	})
	for i := range out {
		out[i].ID = i + 1
	}

	c.arena = nil
	c.groups = make(map[int]*group)
	c.column = nil
	c.live = nil
	c.havePrev = false
	c.completed = nil
	return out
}

// breakColumn closes the column being read: its blocks join the live
// set, blocks that cannot reach the column at newX are purged, and
// groups with no live members are completed.
func (c *Clusterer) breakColumn(newX int) {
	// Merge the finished column into the live set, keeping y order.
	merged := make([]int, 0, len(c.live)+len(c.column))
	i, j := 0, 0
	for i < len(c.live) && j < len(c.column) {
		if c.arena[c.live[i]].region.Y <= c.arena[c.column[j]].region.Y {
			merged = append(merged, c.live[i])
			i++
		} else {
			merged = append(merged, c.column[j])
			j++
		}
	}
	merged = append(merged, c.live[i:]...)
	merged = append(merged, c.column[j:]...)
	c.column = c.column[:0]

	// Conservative liveness: a block whose right edge is left of the
	// next column cannot touch it or anything later.
	c.live = c.live[:0]
	for _, h := range merged {
		r := c.arena[h].region
		if r.X+r.SizeX >= newX {
			c.live = append(c.live, h)
		}
	}
	c.collectCompleted()
}

// collectCompleted moves every group with no live member to the
// completed list.
func (c *Clusterer) collectCompleted() {
	alive := make(map[int]bool, len(c.live))
	for _, h := range c.live {
		alive[c.arena[h].group] = true
	}
	for _, h := range c.column {
		alive[c.arena[h].group] = true
	}
	for id, g := range c.groups {
		if alive[id] {
			continue
		}
		regions := make([]grid.Region, 0, len(g.members))
		for _, h := range g.members {
			if c.arena[h].group != id {
				continue // stale after a merge
			}
			regions = append(regions, c.arena[h].region)
		}
		if len(regions) > 0 {
			sort.Slice(regions, func(i, j int) bool {
				return grid.Compare(regions[i].Key(), regions[j].Key()) < 0
			})
			c.completed = append(c.completed, Group{Grid: regions[0].Grid, Regions: regions})
		}
		delete(c.groups, id)
	}
}

// merge combines two groups. The survivor is the lower id. Moved
// members are re-pointed at the survivor; stale entries in the losing
// group's handle list are dropped here rather than swept earlier.
func (c *Clusterer) merge(a, b int) int {
	if a == b {
		return a
	}
	if b < a {
		a, b = b, a
	}
	c.merges++
	ga := c.groups[a]
	gb := c.groups[b]
	for _, h := range gb.members {
		if c.arena[h].group != b {
			continue
		}
		c.arena[h].group = a
		ga.members = append(ga.members, h)
	}
	delete(c.groups, b)
	return a
}
