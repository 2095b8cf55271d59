// Package assets hands finished tiles to the asset side of the
// pipeline. The generator turns a tile plus its height field into a
// stored asset and reports the reference to record in the tile index;
// the checker verifies a recorded reference still exists on the asset
// server before a pass commits.
package assets

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"os"
	"path/filepath"

	"github.com/google/uuid"

	"terraintiles/internal/grid"
	"terraintiles/internal/heightfield"
)

// Ref identifies one generated asset.
type Ref struct {
	ID   uuid.UUID
	Hash string // sha256 of the asset content, hex
	Name string
}

// Generator produces the asset for one resolved Land tile.
type Generator interface {
	Generate(tile grid.Tile, field *heightfield.Field) (Ref, error)
}

// Name encodes everything needed to regenerate the asset into its file
// name: prefix_x_y_sx_sy_scale_offset_lod_water_hash. Identical terrain
// yields an identical name, which is what lets an unchanged tile skip
// regeneration.
func Name(prefix string, t grid.Tile, f *heightfield.Field, hash string) string {
	short := hash
	if len(short) > 16 {
		short = short[:16]
	}
	return fmt.Sprintf("%s_%d_%d_%d_%d_%.2f_%.2f_%d_%.2f_%s",
		prefix, t.X, t.Y, t.SizeX, t.SizeY,
		f.Scale, f.Offset, t.Level, f.WaterLevel, short)
}

// FileGenerator writes assets as zstd-compressed sample payloads under
// one directory. It stands in for the real impostor builder in tests
// and local runs; the naming and reference scheme is the same.
type FileGenerator struct {
	Dir    string
	Prefix string
}

// Generate writes the tile's payload and returns its reference.
func (g *FileGenerator) Generate(t grid.Tile, f *heightfield.Field) (Ref, error) {
	if f == nil {
		return Ref{}, fmt.Errorf("assets: tile (%d, %d) lod %d has no height field",
			t.X, t.Y, t.Level)
	}
	blob, err := heightfield.CompressBlob(f.Samples)
	if err != nil {
		return Ref{}, err
	}
	sum := sha256.Sum256(blob)
	ref := Ref{
		ID:   uuid.New(),
		Hash: hex.EncodeToString(sum[:]),
	}
	ref.Name = Name(g.prefix(), t, f, ref.Hash)
	path := filepath.Join(g.Dir, ref.Name+".zst")
	if err := os.WriteFile(path, blob, 0o644); err != nil {
		return Ref{}, fmt.Errorf("assets: %w", err)
	}
	return ref, nil
}

func (g *FileGenerator) prefix() string {
	if g.Prefix != "" {
		return g.Prefix
	}
	return "RT"
}
