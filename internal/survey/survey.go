// Package survey parses uploaded region survey records.
//
// Surveyors in-world post one JSON record per region: position, size,
// water level, and the elevation samples as hex rows. Records are
// schema-checked before anything else looks at them, since they arrive
// from scripts we don't control.
package survey

import (
	"encoding/hex"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/santhosh-tekuri/jsonschema/v5"

	"terraintiles/internal/grid"
	"terraintiles/internal/heightfield"
)

// DefaultRegionSize applies on grids that don't do variable-size regions.
const DefaultRegionSize = 256

const recordSchema = `{
  "$schema": "https://json-schema.org/draft/2020-12/schema",
  "type": "object",
  "required": ["grid", "name", "region_coords", "scale", "offset", "water_lev", "elevs"],
  "properties": {
    "grid": {"type": "string", "minLength": 1},
    "name": {"type": "string", "minLength": 1},
    "region_coords": {
      "type": "array", "items": {"type": "integer", "minimum": 0},
      "minItems": 2, "maxItems": 2
    },
    "size": {
      "type": "array", "items": {"type": "integer", "minimum": 1},
      "minItems": 2, "maxItems": 2
    },
    "scale": {"type": "number", "exclusiveMinimum": 0},
    "offset": {"type": "number"},
    "water_lev": {"type": "number"},
    "elevs": {
      "type": "array", "minItems": 1,
      "items": {"type": "string", "pattern": "^([0-9a-fA-F]{2})+$"}
    }
  },
  "additionalProperties": false
}`

var schema = jsonschema.MustCompileString("survey_record.schema.json", recordSchema)

// Record is one uploaded region survey.
type Record struct {
	Grid         string   `json:"grid"`
	Name         string   `json:"name"`
	RegionCoords [2]int   `json:"region_coords"`
	Size         *[2]int  `json:"size,omitempty"`
	Scale        float32  `json:"scale"`
	Offset       float32  `json:"offset"`
	WaterLev     float32  `json:"water_lev"`
	Elevs        []string `json:"elevs"` // hex rows, bottom row first
}

// Parse validates raw JSON against the record schema and decodes it.
func Parse(raw []byte) (*Record, error) {
	var v any
	if err := json.Unmarshal(raw, &v); err != nil {
		return nil, fmt.Errorf("survey: %w", err)
	}
	if err := schema.Validate(v); err != nil {
		return nil, fmt.Errorf("survey: invalid record: %w", err)
	}
	var r Record
	if err := json.Unmarshal(raw, &r); err != nil {
		return nil, fmt.Errorf("survey: %w", err)
	}
	return &r, nil
}

// CanonicalGrid is the grid name in canonical lower case.
func (r *Record) CanonicalGrid() string { return strings.ToLower(r.Grid) }

// CanonicalName is the region name in canonical lower case.
func (r *Record) CanonicalName() string { return strings.ToLower(r.Name) }

// RegionSize returns the declared size, or the default for grids that
// omit it.
func (r *Record) RegionSize() (int, int) {
	if r.Size != nil {
		return r.Size[0], r.Size[1]
	}
	return DefaultRegionSize, DefaultRegionSize
}

// ElevBlob decodes the hex rows to one byte per sample, rows
// concatenated bottom-up. All rows must be the same width.
func (r *Record) ElevBlob() ([]byte, int, int, error) {
	width := 0
	var blob []byte
	for i, row := range r.Elevs {
		b, err := hex.DecodeString(row)
		if err != nil {
			return nil, 0, 0, fmt.Errorf("survey: elev row %d: %w", i, err)
		}
		if i == 0 {
			width = len(b)
		} else if len(b) != width {
			return nil, 0, 0, fmt.Errorf("survey: elev row %d has %d samples, rows before had %d",
				i, len(b), width)
		}
		blob = append(blob, b...)
	}
	return blob, width, len(r.Elevs), nil
}

// Field builds the record's height field.
func (r *Record) Field() (*heightfield.Field, error) {
	blob, sx, sy, err := r.ElevBlob()
	if err != nil {
		return nil, err
	}
	w, h := r.RegionSize()
	return heightfield.New(blob, sx, sy, w, h, r.Scale, r.Offset, r.WaterLev)
}

// Region converts the record to its base region, classified by whether
// any sample rises above the water level.
func (r *Record) Region() (grid.Region, *heightfield.Field, error) {
	f, err := r.Field()
	if err != nil {
		return grid.Region{}, nil, err
	}
	class := grid.Water
	if f.AboveWater() {
		class = grid.Land
	}
	w, h := r.RegionSize()
	return grid.Region{
		Grid:       r.CanonicalGrid(),
		Name:       r.CanonicalName(),
		X:          r.RegionCoords[0],
		Y:          r.RegionCoords[1],
		SizeX:      w,
		SizeY:      h,
		Class:      class,
		Scale:      r.Scale,
		Offset:     r.Offset,
		WaterLevel: r.WaterLev,
	}, f, nil
}
