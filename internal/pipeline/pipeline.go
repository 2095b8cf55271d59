// Package pipeline runs one tiling pass: survey rows stream through
// clustering, each visibility group is pyramided into resolved tiles,
// tiles become assets, and the derived index is staged and swapped in
// only once every Land tile has its asset reference.
package pipeline

import (
	"context"
	"fmt"
	"log"
	"strconv"

	"terraintiles/internal/assets"
	"terraintiles/internal/grid"
	"terraintiles/internal/heightfield"
	"terraintiles/internal/metrics"
	"terraintiles/internal/pyramid"
	"terraintiles/internal/reconcile"
	"terraintiles/internal/store"
	"terraintiles/internal/vizgroup"
)

// Pass holds the collaborators for one run of the tiler.
type Pass struct {
	Store     *store.Store
	Generator assets.Generator
	Checker   *assets.Checker

	// Levels forces the pyramid height; 0 derives it per group.
	Levels       int
	CornersTouch bool

	Logger *log.Logger
}

// Run processes each grid in turn. An empty list means every grid with
// surveys. The first failing grid stops the run; grids already
// committed stay committed.
func (p *Pass) Run(ctx context.Context, grids []string) error {
	if len(grids) == 0 {
		var err error
		grids, err = p.Store.Grids(ctx)
		if err != nil {
			return fmt.Errorf("%w: %w", ErrStore, err)
		}
	}
	for _, g := range grids {
		if err := p.RunGrid(ctx, g); err != nil {
			metrics.PassFailures.WithLabelValues(ErrorCode(err)).Inc()
			return fmt.Errorf("grid %s: %w", g, err)
		}
	}
	return nil
}

// RunGrid runs the full pass for one grid. On any error the staged
// index is abandoned and the committed one is left untouched.
func (p *Pass) RunGrid(ctx context.Context, gridName string) error {
	if err := p.Store.BeginStaging(ctx, gridName); err != nil {
		return fmt.Errorf("%w: %w", ErrStore, err)
	}
	prior, err := p.Store.PriorGroups(ctx, gridName)
	if err != nil {
		return fmt.Errorf("%w: %w", ErrStore, err)
	}

	// Clustering pass. Land regions stream through the clusterer; water
	// regions become group-less tiles, held back until the stream is
	// done. No writes while the streaming query is open: the sqlite
	// store runs on a single connection.
	clusterer := vizgroup.New(vizgroup.Options{CornersTouch: p.CornersTouch})
	fields := make(map[grid.Key]*heightfield.Field)
	var groups []vizgroup.Group
	var waterTiles []store.TileRow
	err = p.Store.StreamSurvey(ctx, gridName, func(row store.SurveyRow) error {
		metrics.RegionsRead.Inc()
		r := row.Region
		if r.Class != grid.Land {
			waterTiles = append(waterTiles, store.TileRow{Tile: grid.Tile{
				Grid: r.Grid, X: r.X, Y: r.Y, SizeX: r.SizeX, SizeY: r.SizeY,
				Level: 0, GroupID: 0, Class: grid.Water,
			}})
			return nil
		}
		fields[r.Key()] = row.Field
		done, err := clusterer.Add(r)
		if err != nil {
			return err
		}
		groups = append(groups, done...)
		return nil
	})
	if err != nil {
		return err
	}
	groups = append(groups, clusterer.EndGrid()...)
	for _, w := range waterTiles {
		if err := p.stage(ctx, w); err != nil {
			return err
		}
	}
	metrics.GroupMerges.Add(float64(clusterer.Merges()))
	metrics.GroupsCompleted.Add(float64(len(groups)))

	// Group numbers persist across passes where membership allows.
	res := reconcile.Reconcile(groups, prior, p.Logger)
	metrics.ReconcileConflicts.Add(float64(res.Conflicts))

	for _, g := range groups {
		if err := p.runGroup(ctx, g, res.Mapped(g.ID), fields); err != nil {
			return err
		}
	}

	missing, err := p.Store.MissingAssets(ctx, gridName)
	if err != nil {
		return fmt.Errorf("%w: %w", ErrStore, err)
	}
	if len(missing) > 0 {
		return &IncompleteUploadError{Grid: gridName, Missing: missing}
	}
	if err := p.Store.CommitStaging(ctx, gridName); err != nil {
		return fmt.Errorf("%w: %w", ErrStore, err)
	}
	removed, err := p.Store.GCOrphanAggregates(ctx, gridName)
	if err != nil {
		return fmt.Errorf("%w: %w", ErrStore, err)
	}
	if p.Logger != nil {
		p.Logger.Printf("grid %s: %d groups, %d regions, gc removed %d orphan aggregates",
			gridName, len(groups), len(fields), removed)
	}
	return nil
}

// runGroup pyramids one group and stages its tiles. Tiles arrive in
// dependency order, so each aggregate's height field can be combined
// from the four child fields just below it, which are consumed as they
// are used.
func (p *Pass) runGroup(ctx context.Context, g vizgroup.Group, mappedID int, fields map[grid.Key]*heightfield.Field) error {
	if !g.Homogeneous() {
		// Mixed-size groups get no aggregates; their members still tile.
		if p.Logger != nil {
			p.Logger.Printf("group %d on %s has mixed region sizes, level 0 only", mappedID, g.Grid)
		}
		for _, r := range g.Regions {
			t := grid.Tile{Grid: r.Grid, X: r.X, Y: r.Y, SizeX: r.SizeX, SizeY: r.SizeY,
				Level: 0, GroupID: mappedID, Class: r.Class}
			if err := p.emit(ctx, t, fields[r.Key()]); err != nil {
				return err
			}
		}
		return nil
	}

	rsx, rsy := g.Regions[0].SizeX, g.Regions[0].SizeY
	b, err := pyramid.NewBuilder(pyramid.Config{
		Grid:        g.Grid,
		GroupID:     mappedID,
		RegionSizeX: rsx,
		RegionSizeY: rsy,
		Bounds:      g.Bounds(),
		Levels:      p.Levels,
	})
	if err != nil {
		return err
	}

	cache := heightfield.NewCache()
	drain := func() error {
		for {
			t, ok := b.Pop()
			if !ok {
				return nil
			}
			f, err := p.fieldFor(t, b.Levels(), rsx, rsy, fields, cache)
			if err != nil {
				return err
			}
			if err := p.emit(ctx, t, f); err != nil {
				return err
			}
		}
	}

	for _, r := range g.Regions {
		if err := b.Add(r); err != nil {
			return err
		}
		if err := drain(); err != nil {
			return err
		}
	}
	if err := b.Finish(); err != nil {
		return err
	}
	if err := drain(); err != nil {
		return err
	}
	metrics.WaterFills.Add(float64(b.WaterFills()))
	return nil
}

// fieldFor resolves the height field backing one tile. Level 0 fields
// come from the survey; an aggregate combines its 2x2 children and
// halves back to the standard sample density. Children the pyramid
// resolved to water have no field and read as flat water.
func (p *Pass) fieldFor(t grid.Tile, levels, rsx, rsy int,
	fields map[grid.Key]*heightfield.Field, cache *heightfield.Cache) (*heightfield.Field, error) {

	cx, cy := t.X/rsx, t.Y/rsy
	var f *heightfield.Field
	if t.Level == 0 {
		f = fields[grid.Key{Grid: t.Grid, X: t.X, Y: t.Y}]
		if f == nil {
			return nil, fmt.Errorf("pipeline: no survey field for %v", t.Key())
		}
	} else {
		s := 1 << (t.Level - 1)
		quads := [4]*heightfield.Field{
			cache.Take(heightfield.CacheKey{X: cx, Y: cy, Level: t.Level - 1}),
			cache.Take(heightfield.CacheKey{X: cx + s, Y: cy, Level: t.Level - 1}),
			cache.Take(heightfield.CacheKey{X: cx, Y: cy + s, Level: t.Level - 1}),
			cache.Take(heightfield.CacheKey{X: cx + s, Y: cy + s, Level: t.Level - 1}),
		}
		combined, err := heightfield.Combine(quads)
		if err != nil {
			return nil, fmt.Errorf("pipeline: tile %v: %w", t.Key(), err)
		}
		f = combined.Halve()
	}
	// The top level has no consumer; below it, the field waits for its
	// parent's combine.
	if t.Level < levels {
		if err := cache.Put(heightfield.CacheKey{X: cx, Y: cy, Level: t.Level}, f); err != nil {
			return nil, err
		}
	}
	return f, nil
}

// emit generates the asset for a Land tile and stages the index row.
// A tile whose generated asset fails the existence check is staged
// without a reference, which withholds the commit at the end.
func (p *Pass) emit(ctx context.Context, t grid.Tile, f *heightfield.Field) error {
	row := store.TileRow{Tile: t}
	if t.Class == grid.Land {
		ref, err := p.Generator.Generate(t, f)
		if err != nil {
			return err
		}
		metrics.AssetsGenerated.Inc()
		ok := true
		if p.Checker != nil {
			ok, err = p.Checker.Exists(ctx, ref.ID)
			if err != nil {
				return err
			}
		}
		if ok {
			row.AssetUUID = ref.ID.String()
			row.ContentHash = ref.Hash
			row.AssetName = ref.Name
		} else if p.Logger != nil {
			p.Logger.Printf("asset %s for %v not on server", ref.ID, t.Key())
		}
	}
	return p.stage(ctx, row)
}

func (p *Pass) stage(ctx context.Context, row store.TileRow) error {
	if err := p.Store.StageTile(ctx, row); err != nil {
		return fmt.Errorf("%w: %w", ErrStore, err)
	}
	metrics.TilesEmitted.WithLabelValues(strconv.Itoa(row.Tile.Level)).Inc()
	return nil
}
