package heightfield

import (
	"bytes"
	"testing"
)

func flat(v byte, n int) []byte {
	s := make([]byte, n*n)
	for i := range s {
		s[i] = v
	}
	return s
}

func TestNewValidates(t *testing.T) {
	if _, err := New(make([]byte, 5), 2, 2, 256, 256, 1, 0, 20); err == nil {
		t.Fatalf("mismatched sample count accepted")
	}
	f, err := New(flat(10, 4), 4, 4, 256, 256, 2, 5, 20)
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	if got := f.At(0, 0); got != 25 {
		t.Fatalf("At = %v, want 10*2+5", got)
	}
}

func TestAboveWater(t *testing.T) {
	land, _ := New(flat(40, 2), 2, 2, 256, 256, 1, 0, 20)
	sea, _ := New(flat(10, 2), 2, 2, 256, 256, 1, 0, 20)
	if !land.AboveWater() {
		t.Errorf("field at 40 with water at 20 should be land")
	}
	if sea.AboveWater() {
		t.Errorf("field at 10 with water at 20 should be under water")
	}
}

func TestCombineHalve(t *testing.T) {
	mk := func(v byte) *Field {
		f, err := New(flat(v, 4), 4, 4, 256, 256, 1, 0, 20)
		if err != nil {
			t.Fatalf("New: %v", err)
		}
		return f
	}
	combined, err := Combine([4]*Field{mk(100), mk(100), nil, mk(100)})
	if err != nil {
		t.Fatalf("Combine: %v", err)
	}
	if combined.SamplesX != 8 || combined.SamplesY != 8 {
		t.Fatalf("combined grid %dx%d, want 8x8", combined.SamplesX, combined.SamplesY)
	}
	if combined.SizeX != 512 {
		t.Fatalf("combined size %d, want 512", combined.SizeX)
	}
	// The missing quadrant is flat water.
	if e := combined.At(2, 6); e < 19 || e > 21 {
		t.Errorf("missing quadrant elevation %v, want ~20", e)
	}
	if e := combined.At(1, 1); e < 99 || e > 101 {
		t.Errorf("present quadrant elevation %v, want ~100", e)
	}

	halved := combined.Halve()
	if halved.SamplesX != 4 || halved.SamplesY != 4 {
		t.Fatalf("halved grid %dx%d, want 4x4", halved.SamplesX, halved.SamplesY)
	}
	if halved.SizeX != 512 {
		t.Fatalf("halve must keep covered size, got %d", halved.SizeX)
	}
}

func TestCombineRejectsAllEmpty(t *testing.T) {
	if _, err := Combine([4]*Field{}); err == nil {
		t.Fatalf("combine of four empty quadrants accepted")
	}
}

func TestBlobRoundTrip(t *testing.T) {
	raw := []byte("not very high terrain but quite compressible terrain")
	blob, err := CompressBlob(raw)
	if err != nil {
		t.Fatalf("CompressBlob: %v", err)
	}
	back, err := DecompressBlob(blob)
	if err != nil {
		t.Fatalf("DecompressBlob: %v", err)
	}
	if !bytes.Equal(raw, back) {
		t.Fatalf("round trip mismatch")
	}
}

func TestCacheTakeConsumes(t *testing.T) {
	c := NewCache()
	f, _ := New(flat(1, 2), 2, 2, 256, 256, 1, 0, 20)
	key := CacheKey{X: 0, Y: 0, Level: 1}
	if err := c.Put(key, f); err != nil {
		t.Fatalf("Put: %v", err)
	}
	if err := c.Put(key, f); err == nil {
		t.Fatalf("duplicate Put accepted")
	}
	if got := c.Take(key); got != f {
		t.Fatalf("Take returned %v", got)
	}
	if got := c.Take(key); got != nil {
		t.Fatalf("second Take returned %v, want nil", got)
	}
	if c.Len() != 0 {
		t.Fatalf("cache not empty after take")
	}
}
