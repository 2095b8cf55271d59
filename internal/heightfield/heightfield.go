// Package heightfield carries the elevation data attached to surveyed
// regions: a byte per sample plus scale, offset, and water level, the
// form the in-world surveyor uploads. Actual elevation is
// sample*scale + offset.
//
// Fields for aggregate tiles are produced by combining the four child
// fields of a 2x2 block and halving the resolution, so every level of
// the pyramid works at the same sample density.
package heightfield

import (
	"fmt"

	"github.com/klauspost/compress/zstd"
)

// Field is one tile's elevation data.
type Field struct {
	SamplesX int
	SamplesY int
	SizeX    int // grid units covered
	SizeY    int

	Scale      float32
	Offset     float32
	WaterLevel float32

	// Samples in row-major order, bottom row first, one byte each.
	Samples []byte
}

// New builds a field from raw samples.
func New(samples []byte, samplesX, samplesY, sizeX, sizeY int, scale, offset, water float32) (*Field, error) {
	if samplesX <= 0 || samplesY <= 0 {
		return nil, fmt.Errorf("heightfield: sample grid %dx%d invalid", samplesX, samplesY)
	}
	if len(samples) != samplesX*samplesY {
		return nil, fmt.Errorf("heightfield: %d samples for %dx%d grid", len(samples), samplesX, samplesY)
	}
	return &Field{
		SamplesX: samplesX, SamplesY: samplesY,
		SizeX: sizeX, SizeY: sizeY,
		Scale: scale, Offset: offset, WaterLevel: water,
		Samples: samples,
	}, nil
}

// At is the elevation at sample (x, y).
func (f *Field) At(x, y int) float32 {
	return float32(f.Samples[y*f.SamplesX+x])*f.Scale + f.Offset
}

// AboveWater is true if any sample rises above the water level.
func (f *Field) AboveWater() bool {
	for _, s := range f.Samples {
		if float32(s)*f.Scale+f.Offset > f.WaterLevel {
			return true
		}
	}
	return false
}

// MinMax returns the lowest and highest elevation in the field.
func (f *Field) MinMax() (float32, float32) {
	lo, hi := f.At(0, 0), f.At(0, 0)
	for _, s := range f.Samples {
		e := float32(s)*f.Scale + f.Offset
		if e < lo {
			lo = e
		}
		if e > hi {
			hi = e
		}
	}
	return lo, hi
}

// Combine merges the four child fields of a 2x2 block into one field
// at double the linear size. Order: bottom-left, bottom-right,
// top-left, top-right. A nil child is flat water. All present children
// must share the sample grid; at least one must be present.
func Combine(quads [4]*Field) (*Field, error) {
	var ref *Field
	for _, q := range quads {
		if q != nil {
			ref = q
			break
		}
	}
	if ref == nil {
		return nil, fmt.Errorf("heightfield: combine of four empty quadrants")
	}
	for _, q := range quads {
		if q != nil && (q.SamplesX != ref.SamplesX || q.SamplesY != ref.SamplesY) {
			return nil, fmt.Errorf("heightfield: combine of mismatched sample grids")
		}
	}

	sx, sy := ref.SamplesX, ref.SamplesY
	out := &Field{
		SamplesX: 2 * sx, SamplesY: 2 * sy,
		SizeX: 2 * ref.SizeX, SizeY: 2 * ref.SizeY,
		WaterLevel: ref.WaterLevel,
		Samples:    make([]byte, 4*sx*sy),
	}

	// Rescale to one shared scale/offset across the block.
	lo, hi := ref.MinMax()
	for _, q := range quads {
		if q == nil {
			continue
		}
		qlo, qhi := q.MinMax()
		if qlo < lo {
			lo = qlo
		}
		if qhi > hi {
			hi = qhi
		}
	}
	if ref.WaterLevel < lo {
		lo = ref.WaterLevel
	}
	span := hi - lo
	if span <= 0 {
		span = 1
	}
	out.Offset = lo
	out.Scale = span / 255

	put := func(q *Field, ox, oy int) {
		for y := 0; y < sy; y++ {
			for x := 0; x < sx; x++ {
				e := out.WaterLevel
				if q != nil {
					e = q.At(x, y)
				}
				v := (e-out.Offset)/out.Scale + 0.5
				if v < 0 {
					v = 0
				}
				if v > 255 {
					v = 255
				}
				out.Samples[(oy+y)*out.SamplesX+(ox+x)] = byte(v)
			}
		}
	}
	put(quads[0], 0, 0)
	put(quads[1], sx, 0)
	put(quads[2], 0, sy)
	put(quads[3], sx, sy)
	return out, nil
}

// Halve downsamples by two in each direction, averaging 2x2 sample
// blocks, bringing a combined field back to the standard density.
func (f *Field) Halve() *Field {
	sx := f.SamplesX / 2
	sy := f.SamplesY / 2
	out := &Field{
		SamplesX: sx, SamplesY: sy,
		SizeX: f.SizeX, SizeY: f.SizeY,
		Scale: f.Scale, Offset: f.Offset, WaterLevel: f.WaterLevel,
		Samples: make([]byte, sx*sy),
	}
	for y := 0; y < sy; y++ {
		for x := 0; x < sx; x++ {
			sum := int(f.Samples[(2*y)*f.SamplesX+2*x]) +
				int(f.Samples[(2*y)*f.SamplesX+2*x+1]) +
				int(f.Samples[(2*y+1)*f.SamplesX+2*x]) +
				int(f.Samples[(2*y+1)*f.SamplesX+2*x+1])
			out.Samples[y*sx+x] = byte((sum + 2) / 4)
		}
	}
	return out
}

// CompressBlob compresses raw samples for storage in the survey table.
func CompressBlob(samples []byte) ([]byte, error) {
	enc, err := zstd.NewWriter(nil, zstd.WithEncoderLevel(zstd.SpeedFastest))
	if err != nil {
		return nil, err
	}
	defer enc.Close()
	return enc.EncodeAll(samples, nil), nil
}

// DecompressBlob undoes CompressBlob.
func DecompressBlob(blob []byte) ([]byte, error) {
	dec, err := zstd.NewReader(nil)
	if err != nil {
		return nil, err
	}
	defer dec.Close()
	return dec.DecodeAll(blob, nil)
}
