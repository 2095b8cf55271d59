package pipeline

import (
	"context"
	"errors"
	"fmt"
	"log"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"testing"

	"terraintiles/internal/assets"
	"terraintiles/internal/grid"
	"terraintiles/internal/heightfield"
	"terraintiles/internal/pyramid"
	"terraintiles/internal/store"
)

func newTestPass(t *testing.T) (*Pass, *store.Store) {
	t.Helper()
	dir := t.TempDir()
	s, err := store.Open(filepath.Join(dir, "tiles.db"))
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	t.Cleanup(func() { _ = s.Close() })
	if err := s.Init(context.Background()); err != nil {
		t.Fatalf("Init: %v", err)
	}
	assetDir := filepath.Join(dir, "assets")
	if err := os.MkdirAll(assetDir, 0o755); err != nil {
		t.Fatalf("MkdirAll: %v", err)
	}
	p := &Pass{
		Store:     s,
		Generator: &assets.FileGenerator{Dir: assetDir},
		Logger:    log.New(os.Stdout, "[test] ", 0),
	}
	return p, s
}

func upload(t *testing.T, s *store.Store, g string, x, y int, elev byte) {
	t.Helper()
	samples := make([]byte, 16)
	for i := range samples {
		samples[i] = elev
	}
	f, err := heightfield.New(samples, 4, 4, 256, 256, 1, 0, 20)
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	class := grid.Water
	if f.AboveWater() {
		class = grid.Land
	}
	row := store.SurveyRow{
		Region: grid.Region{
			Grid: g, Name: fmt.Sprintf("r%d_%d", x, y), X: x, Y: y,
			SizeX: 256, SizeY: 256, Class: class, Scale: 1, WaterLevel: 20,
		},
		Field: f,
	}
	if err := s.UpsertSurveyRegion(context.Background(), row); err != nil {
		t.Fatalf("UpsertSurveyRegion: %v", err)
	}
}

func committedTiles(t *testing.T, s *store.Store, g string) map[grid.TileKey]store.TileRow {
	t.Helper()
	rows, err := s.Tiles(context.Background(), g)
	if err != nil {
		t.Fatalf("Tiles: %v", err)
	}
	out := make(map[grid.TileKey]store.TileRow, len(rows))
	for _, r := range rows {
		out[r.Tile.Key()] = r
	}
	return out
}

func TestPassTwoSeparatedIslands(t *testing.T) {
	p, s := newTestPass(t)
	ctx := context.Background()

	// Two land regions far apart: two singleton groups, each with its
	// own one-level pyramid.
	upload(t, s, "osgrid", 0, 0, 100)
	upload(t, s, "osgrid", 5120, 0, 100)

	if err := p.Run(ctx, nil); err != nil {
		t.Fatalf("Run: %v", err)
	}

	tiles := committedTiles(t, s, "osgrid")
	if len(tiles) != 4 {
		t.Fatalf("committed %d tiles, want 2 regions + 2 aggregates", len(tiles))
	}
	base1 := tiles[grid.TileKey{Grid: "osgrid", X: 0, Y: 0, Level: 0}]
	base2 := tiles[grid.TileKey{Grid: "osgrid", X: 5120, Y: 0, Level: 0}]
	if base1.Tile.GroupID == base2.Tile.GroupID || base1.Tile.GroupID == 0 {
		t.Fatalf("separated islands share a group: %d and %d",
			base1.Tile.GroupID, base2.Tile.GroupID)
	}
	agg := tiles[grid.TileKey{Grid: "osgrid", X: 5120, Y: 0, Level: 1}]
	if agg.Tile.GroupID != base2.Tile.GroupID {
		t.Fatalf("aggregate group %d, member group %d", agg.Tile.GroupID, base2.Tile.GroupID)
	}
	if agg.Tile.SizeX != 512 {
		t.Fatalf("aggregate size %d, want 512", agg.Tile.SizeX)
	}
	for k, r := range tiles {
		if r.Tile.Class == grid.Land && r.AssetUUID == "" {
			t.Fatalf("land tile %v committed without asset", k)
		}
	}

	// A re-run over unchanged input keeps every group number.
	if err := p.Run(ctx, nil); err != nil {
		t.Fatalf("second Run: %v", err)
	}
	again := committedTiles(t, s, "osgrid")
	for k, r := range tiles {
		if again[k].Tile.GroupID != r.Tile.GroupID {
			t.Fatalf("tile %v moved from group %d to %d",
				k, r.Tile.GroupID, again[k].Tile.GroupID)
		}
	}
}

func TestPassConnectedBlockBuildsOneGroup(t *testing.T) {
	p, s := newTestPass(t)
	ctx := context.Background()

	// An L of three regions plus a water region inside the same block.
	upload(t, s, "g", 0, 0, 100)
	upload(t, s, "g", 0, 256, 100)
	upload(t, s, "g", 256, 0, 100)
	upload(t, s, "g", 256, 256, 5) // under water

	if err := p.RunGrid(ctx, "g"); err != nil {
		t.Fatalf("RunGrid: %v", err)
	}
	tiles := committedTiles(t, s, "g")

	agg, ok := tiles[grid.TileKey{Grid: "g", X: 0, Y: 0, Level: 1}]
	if !ok {
		t.Fatalf("no aggregate over the block")
	}
	want := tiles[grid.TileKey{Grid: "g", X: 0, Y: 0, Level: 0}].Tile.GroupID
	for _, k := range []grid.TileKey{
		{Grid: "g", X: 0, Y: 256, Level: 0},
		{Grid: "g", X: 256, Y: 0, Level: 0},
	} {
		if tiles[k].Tile.GroupID != want {
			t.Fatalf("touching regions split across groups")
		}
	}
	if agg.Tile.GroupID != want {
		t.Fatalf("aggregate in group %d, members in %d", agg.Tile.GroupID, want)
	}

	water := tiles[grid.TileKey{Grid: "g", X: 256, Y: 256, Level: 0}]
	if water.Tile.Class != grid.Water || water.Tile.GroupID != 0 || water.AssetUUID != "" {
		t.Fatalf("water region staged as %+v", water)
	}
}

func TestPassWaterHeavyGrid(t *testing.T) {
	p, s := newTestPass(t)
	ctx := context.Background()

	// Water interleaved with land in stream order. Staging water rows
	// must wait for the survey stream to close; a write against the
	// single sqlite connection mid-stream would never return.
	upload(t, s, "g", 0, 0, 5)
	upload(t, s, "g", 0, 256, 100)
	upload(t, s, "g", 256, 0, 5)
	upload(t, s, "g", 512, 0, 5)
	upload(t, s, "g", 512, 256, 5)

	if err := p.RunGrid(ctx, "g"); err != nil {
		t.Fatalf("RunGrid: %v", err)
	}
	tiles := committedTiles(t, s, "g")

	var water, land int
	for k, r := range tiles {
		if r.Tile.Level != 0 {
			continue
		}
		switch r.Tile.Class {
		case grid.Water:
			water++
			if r.Tile.GroupID != 0 || r.AssetUUID != "" {
				t.Fatalf("water tile %v staged as %+v", k, r)
			}
		case grid.Land:
			land++
		}
	}
	if water != 4 || land != 1 {
		t.Fatalf("committed %d water and %d land base tiles, want 4 and 1", water, land)
	}
}

func TestPassAggregateFieldCombinesChildren(t *testing.T) {
	p, s := newTestPass(t)
	ctx := context.Background()

	upload(t, s, "g", 0, 0, 100)
	upload(t, s, "g", 0, 256, 100)

	if err := p.RunGrid(ctx, "g"); err != nil {
		t.Fatalf("RunGrid: %v", err)
	}
	tiles := committedTiles(t, s, "g")
	agg := tiles[grid.TileKey{Grid: "g", X: 0, Y: 0, Level: 1}]
	if agg.AssetUUID == "" {
		t.Fatalf("aggregate has no asset")
	}
	blob, err := os.ReadFile(filepath.Join(p.Generator.(*assets.FileGenerator).Dir, agg.AssetName+".zst"))
	if err != nil {
		t.Fatalf("aggregate payload: %v", err)
	}
	raw, err := heightfield.DecompressBlob(blob)
	if err != nil {
		t.Fatalf("DecompressBlob: %v", err)
	}
	// Combined 2x2 block halved back to the base density.
	if len(raw) != 16 {
		t.Fatalf("aggregate field has %d samples, want 16", len(raw))
	}
}

func TestPassIncompleteUploadWithholdsCommit(t *testing.T) {
	p, s := newTestPass(t)
	ctx := context.Background()

	// An asset server that has nothing.
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusNotFound)
	}))
	defer srv.Close()
	p.Checker = &assets.Checker{BaseURL: srv.URL, Client: srv.Client()}

	upload(t, s, "g", 0, 0, 100)

	err := p.RunGrid(ctx, "g")
	var inc *IncompleteUploadError
	if !errors.As(err, &inc) {
		t.Fatalf("RunGrid = %v, want IncompleteUploadError", err)
	}
	if len(inc.Missing) == 0 || inc.Grid != "g" {
		t.Fatalf("error = %+v", inc)
	}
	if tiles := committedTiles(t, s, "g"); len(tiles) != 0 {
		t.Fatalf("commit went through despite missing assets: %d tiles", len(tiles))
	}
}

func TestErrorCodes(t *testing.T) {
	cases := []struct {
		err  error
		want string
	}{
		{nil, ""},
		{&grid.OutOfOrderError{}, CodeOutOfOrder},
		{fmt.Errorf("add: %w", &pyramid.AlignmentError{Level: 1}), CodeAlignment},
		{&IncompleteUploadError{Grid: "g"}, CodeIncompleteUpload},
		{fmt.Errorf("%w: disk full", ErrStore), CodeStore},
		{errors.New("anything else"), CodeInternal},
	}
	for _, c := range cases {
		if got := ErrorCode(c.err); got != c.want {
			t.Errorf("ErrorCode(%v) = %q, want %q", c.err, got, c.want)
		}
	}
	for code := range knownCodes {
		if !IsKnownCode(code) {
			t.Errorf("code %q not known to itself", code)
		}
	}
	if IsKnownCode("E_MADE_UP") {
		t.Errorf("unknown code accepted")
	}
}
