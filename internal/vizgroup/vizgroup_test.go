package vizgroup

import (
	"errors"
	"testing"

	"terraintiles/internal/grid"
)

// The classic pattern, ordered by x, y. 24 regions of 100x100.
// Should resolve to three groups: the big ring (21), the two-region
// island (2), and the tall skinny singleton (1).
//
//	X    XXXXXX
//	X XX X    X
//	X    X X  X
//	X    X X  X
//	XXXXXX
var ringPattern = []struct {
	x, y, sx, sy int
	name         string
}{
	{0, 0, 100, 100, "Bottom left"},
	{0, 100, 100, 100, "Left 100"},
	{0, 200, 100, 100, "Left 200"},
	{0, 300, 100, 100, "Left 300"},
	{0, 400, 100, 100, "Left 400"},
	{100, 0, 100, 100, "Bottom 100"},
	{200, 0, 100, 100, "Bottom 200"},
	{200, 300, 100, 100, "Tiny West"},
	{300, 0, 100, 100, "Bottom 300"},
	{300, 300, 100, 100, "Tiny East"},
	{400, 0, 100, 100, "Bottom 400"},
	{500, 0, 100, 100, "Bottom 500"},
	{500, 100, 100, 100, "Column 5-1"},
	{500, 200, 100, 100, "Column 5-2"},
	{500, 300, 100, 100, "Column 5-3"},
	{500, 400, 100, 100, "Column 5-4"},
	{600, 400, 100, 100, "Top 600"},
	{700, 100, 100, 200, "Tall skinny region"},
	{700, 400, 100, 100, "Top 700"},
	{800, 400, 100, 100, "Top 800"},
	{900, 100, 100, 100, "Right 100"},
	{900, 200, 100, 100, "Right 200"},
	{900, 300, 100, 100, "Right 300"},
	{900, 400, 100, 100, "Right 400"},
}

func feedRing(t *testing.T, c *Clusterer) []Group {
	t.Helper()
	for _, p := range ringPattern {
		done, err := c.Add(grid.Region{
			Grid: "test", Name: p.name,
			X: p.x, Y: p.y, SizeX: p.sx, SizeY: p.sy,
			Class: grid.Land,
		})
		if err != nil {
			t.Fatalf("Add %q: %v", p.name, err)
		}
		if done != nil {
			t.Fatalf("unexpected grid break at %q", p.name)
		}
	}
	return c.EndGrid()
}

func TestRingPattern(t *testing.T) {
	groups := feedRing(t, New(Options{}))
	if len(groups) != 3 {
		t.Fatalf("got %d groups, want 3", len(groups))
	}
	sizes := []int{len(groups[0].Regions), len(groups[1].Regions), len(groups[2].Regions)}
	if sizes[0] != 21 || sizes[1] != 2 || sizes[2] != 1 {
		t.Fatalf("group sizes = %v, want [21 2 1]", sizes)
	}
	for i, g := range groups {
		if g.ID != i+1 {
			t.Errorf("group %d has id %d", i, g.ID)
		}
	}
	if groups[2].Regions[0].Name != "Tall skinny region" {
		t.Errorf("singleton should be the tall skinny region, got %q", groups[2].Regions[0].Name)
	}
}

func TestPartition(t *testing.T) {
	groups := feedRing(t, New(Options{}))
	seen := make(map[grid.Key]int)
	total := 0
	for _, g := range groups {
		for _, r := range g.Regions {
			if prev, dup := seen[r.Key()]; dup {
				t.Fatalf("region %v in groups %d and %d", r.Key(), prev, g.ID)
			}
			seen[r.Key()] = g.ID
			total++
		}
	}
	if total != len(ringPattern) {
		t.Fatalf("groups cover %d regions, want %d", total, len(ringPattern))
	}
}

func TestCornersTouch(t *testing.T) {
	diag := []grid.Region{
		{Grid: "test", Name: "a", X: 0, Y: 0, SizeX: 100, SizeY: 100, Class: grid.Land},
		{Grid: "test", Name: "b", X: 100, Y: 100, SizeX: 100, SizeY: 100, Class: grid.Land},
	}

	run := func(opts Options) int {
		c := New(opts)
		for _, r := range diag {
			if _, err := c.Add(r); err != nil {
				t.Fatalf("Add: %v", err)
			}
		}
		return len(c.EndGrid())
	}

	if n := run(Options{}); n != 2 {
		t.Errorf("corner contact merged without tolerance: %d groups", n)
	}
	if n := run(Options{CornersTouch: true}); n != 1 {
		t.Errorf("corner contact not merged with tolerance: %d groups", n)
	}
}

func TestOutOfOrderInput(t *testing.T) {
	c := New(Options{})
	a := grid.Region{Grid: "test", X: 100, Y: 0, SizeX: 100, SizeY: 100}
	b := grid.Region{Grid: "test", X: 0, Y: 0, SizeX: 100, SizeY: 100}
	if _, err := c.Add(a); err != nil {
		t.Fatalf("Add: %v", err)
	}
	_, err := c.Add(b)
	var oo *grid.OutOfOrderError
	if !errors.As(err, &oo) {
		t.Fatalf("want OutOfOrderError, got %v", err)
	}
	if oo.Got != b.Key() || oo.Prev != a.Key() {
		t.Fatalf("error keys = %v / %v", oo.Got, oo.Prev)
	}
}

func TestGridBreak(t *testing.T) {
	c := New(Options{})
	if _, err := c.Add(grid.Region{Grid: "alpha", X: 0, Y: 0, SizeX: 100, SizeY: 100}); err != nil {
		t.Fatalf("Add: %v", err)
	}
	done, err := c.Add(grid.Region{Grid: "beta", X: 0, Y: 0, SizeX: 100, SizeY: 100})
	if err != nil {
		t.Fatalf("Add: %v", err)
	}
	if len(done) != 1 || done[0].Grid != "alpha" {
		t.Fatalf("grid break should flush alpha, got %+v", done)
	}
	rest := c.EndGrid()
	if len(rest) != 1 || rest[0].Grid != "beta" {
		t.Fatalf("final flush should hold beta, got %+v", rest)
	}
}

func TestSeparatedSingletons(t *testing.T) {
	c := New(Options{})
	for _, r := range []grid.Region{
		{Grid: "g", X: 0, Y: 0, SizeX: 1, SizeY: 1, Class: grid.Land},
		{Grid: "g", X: 10, Y: 10, SizeX: 1, SizeY: 1, Class: grid.Land},
	} {
		if _, err := c.Add(r); err != nil {
			t.Fatalf("Add: %v", err)
		}
	}
	groups := c.EndGrid()
	if len(groups) != 2 {
		t.Fatalf("got %d groups, want 2 singletons", len(groups))
	}
}
