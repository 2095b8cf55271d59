// Package store is the SQL persistence layer: uploaded survey rows in,
// the committed tile index out. A small local run uses a sqlite file;
// a shared grid database uses postgres. The driver is picked from the
// DSN, everything above speaks database/sql.
//
// The tile index is replaced atomically: a pass fills the staging
// table and the commit swaps it in within one transaction, so a failed
// or aborted pass never leaves a half-written index behind.
package store

import (
	"context"
	"database/sql"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	_ "github.com/lib/pq"
	_ "modernc.org/sqlite"

	"terraintiles/internal/grid"
	"terraintiles/internal/heightfield"
)

type Store struct {
	db       *sql.DB
	postgres bool
}

// Open connects to the database named by the DSN. A postgres:// or
// postgresql:// DSN selects lib/pq; anything else is a sqlite file
// path.
func Open(dsn string) (*Store, error) {
	if dsn == "" {
		return nil, fmt.Errorf("store: empty dsn")
	}
	if strings.HasPrefix(dsn, "postgres://") || strings.HasPrefix(dsn, "postgresql://") {
		db, err := sql.Open("postgres", dsn)
		if err != nil {
			return nil, err
		}
		db.SetMaxOpenConns(10)
		db.SetMaxIdleConns(10)
		return &Store{db: db, postgres: true}, nil
	}

	if err := os.MkdirAll(filepath.Dir(dsn), 0o755); err != nil {
		return nil, err
	}
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, err
	}
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)
	db.SetConnMaxLifetime(0)
	if err := initPragmas(db); err != nil {
		_ = db.Close()
		return nil, err
	}
	return &Store{db: db}, nil
}

func initPragmas(db *sql.DB) error {
	// WAL suits the write-then-swap workload.
	pragmas := []string{
		"PRAGMA journal_mode=WAL;",
		"PRAGMA synchronous=NORMAL;",
		"PRAGMA foreign_keys=ON;",
		"PRAGMA busy_timeout=5000;",
		"PRAGMA temp_store=MEMORY;",
	}
	for _, p := range pragmas {
		if _, err := db.Exec(p); err != nil {
			return err
		}
	}
	return nil
}

// Init creates the schema.
func (s *Store) Init(ctx context.Context) error {
	blob := "BLOB"
	if s.postgres {
		blob = "BYTEA"
	}
	tileIndexCols := `
		grid TEXT NOT NULL,
		x INTEGER NOT NULL,
		y INTEGER NOT NULL,
		level INTEGER NOT NULL,
		size_x INTEGER NOT NULL,
		size_y INTEGER NOT NULL,
		group_id INTEGER NOT NULL,
		class INTEGER NOT NULL,
		asset_uuid TEXT NOT NULL DEFAULT '',
		content_hash TEXT NOT NULL DEFAULT '',
		asset_name TEXT NOT NULL DEFAULT '',
		PRIMARY KEY (grid, x, y, level)`
	stmts := []string{
		fmt.Sprintf(`CREATE TABLE IF NOT EXISTS survey_regions (
			grid TEXT NOT NULL,
			x INTEGER NOT NULL,
			y INTEGER NOT NULL,
			size_x INTEGER NOT NULL,
			size_y INTEGER NOT NULL,
			name TEXT NOT NULL,
			samples_x INTEGER NOT NULL,
			samples_y INTEGER NOT NULL,
			elev_scale REAL NOT NULL,
			elev_offset REAL NOT NULL,
			water_level REAL NOT NULL,
			elevs %s NOT NULL,
			PRIMARY KEY (grid, x, y)
		);`, blob),
		fmt.Sprintf(`CREATE TABLE IF NOT EXISTS tile_index (%s);`, tileIndexCols),
		fmt.Sprintf(`CREATE TABLE IF NOT EXISTS tile_index_staging (%s);`, tileIndexCols),
		`CREATE INDEX IF NOT EXISTS idx_tile_index_group ON tile_index(grid, group_id);`,
	}
	for _, q := range stmts {
		if _, err := s.db.ExecContext(ctx, q); err != nil {
			return fmt.Errorf("store: init: %w", err)
		}
	}
	return nil
}

func (s *Store) Close() error { return s.db.Close() }

// rebind rewrites ? placeholders to $n for postgres.
func (s *Store) rebind(q string) string {
	if !s.postgres {
		return q
	}
	var b strings.Builder
	n := 0
	for _, r := range q {
		if r == '?' {
			n++
			fmt.Fprintf(&b, "$%d", n)
		} else {
			b.WriteRune(r)
		}
	}
	return b.String()
}

// SurveyRow is one stored region survey. Elevs is the raw sample blob;
// it travels zstd-compressed inside the table.
type SurveyRow struct {
	Region grid.Region
	Field  *heightfield.Field
}

// UpsertSurveyRegion stores a survey, replacing any earlier upload for
// the same region.
func (s *Store) UpsertSurveyRegion(ctx context.Context, row SurveyRow) error {
	blob, err := heightfield.CompressBlob(row.Field.Samples)
	if err != nil {
		return err
	}
	r := row.Region
	q := s.rebind(`INSERT INTO survey_regions
		(grid, x, y, size_x, size_y, name, samples_x, samples_y, elev_scale, elev_offset, water_level, elevs)
		VALUES (?,?,?,?,?,?,?,?,?,?,?,?)
		ON CONFLICT (grid, x, y) DO UPDATE SET
		size_x=excluded.size_x, size_y=excluded.size_y, name=excluded.name,
		samples_x=excluded.samples_x, samples_y=excluded.samples_y,
		elev_scale=excluded.elev_scale, elev_offset=excluded.elev_offset,
		water_level=excluded.water_level, elevs=excluded.elevs`)
	_, err = s.db.ExecContext(ctx, q,
		r.Grid, r.X, r.Y, r.SizeX, r.SizeY, r.Name,
		row.Field.SamplesX, row.Field.SamplesY,
		row.Field.Scale, row.Field.Offset, row.Field.WaterLevel, blob)
	if err != nil {
		return fmt.Errorf("store: upsert survey (%s, %d, %d): %w", r.Grid, r.X, r.Y, err)
	}
	return nil
}

// Grids lists the grids with stored surveys, in order.
func (s *Store) Grids(ctx context.Context) ([]string, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT DISTINCT grid FROM survey_regions ORDER BY grid`)
	if err != nil {
		return nil, fmt.Errorf("store: %w", err)
	}
	defer rows.Close()
	var out []string
	for rows.Next() {
		var g string
		if err := rows.Scan(&g); err != nil {
			return nil, err
		}
		out = append(out, g)
	}
	return out, rows.Err()
}

// StreamSurvey yields one grid's surveys in the (x, y) ascending order
// the clustering pass requires. The callback aborts the stream by
// returning an error.
func (s *Store) StreamSurvey(ctx context.Context, gridName string, fn func(SurveyRow) error) error {
	q := s.rebind(`SELECT grid, x, y, size_x, size_y, name,
		samples_x, samples_y, elev_scale, elev_offset, water_level, elevs
		FROM survey_regions WHERE grid = ? ORDER BY x, y`)
	rows, err := s.db.QueryContext(ctx, q, gridName)
	if err != nil {
		return fmt.Errorf("store: %w", err)
	}
	defer rows.Close()
	for rows.Next() {
		var (
			r        grid.Region
			sx, sy   int
			scale    float32
			offset   float32
			water    float32
			compblob []byte
		)
		if err := rows.Scan(&r.Grid, &r.X, &r.Y, &r.SizeX, &r.SizeY, &r.Name,
			&sx, &sy, &scale, &offset, &water, &compblob); err != nil {
			return err
		}
		raw, err := heightfield.DecompressBlob(compblob)
		if err != nil {
			return fmt.Errorf("store: survey (%s, %d, %d): %w", r.Grid, r.X, r.Y, err)
		}
		f, err := heightfield.New(raw, sx, sy, r.SizeX, r.SizeY, scale, offset, water)
		if err != nil {
			return fmt.Errorf("store: survey (%s, %d, %d): %w", r.Grid, r.X, r.Y, err)
		}
		r.Scale, r.Offset, r.WaterLevel = scale, offset, water
		r.Class = grid.Water
		if f.AboveWater() {
			r.Class = grid.Land
		}
		if err := fn(SurveyRow{Region: r, Field: f}); err != nil {
			return err
		}
	}
	return rows.Err()
}

// TileRow is one derived tile as persisted in the index.
type TileRow struct {
	Tile        grid.Tile
	AssetUUID   string
	ContentHash string
	AssetName   string
}

// PriorGroups reads the committed region to group-number mapping for
// one grid: the level-0 Land rows of the tile index. Water rows carry
// no group and must not cast votes for number 0.
func (s *Store) PriorGroups(ctx context.Context, gridName string) (map[grid.Key]int, error) {
	q := s.rebind(`SELECT x, y, group_id FROM tile_index
		WHERE grid = ? AND level = 0 AND class = ?`)
	rows, err := s.db.QueryContext(ctx, q, gridName, int(grid.Land))
	if err != nil {
		return nil, fmt.Errorf("store: %w", err)
	}
	defer rows.Close()
	prior := make(map[grid.Key]int)
	for rows.Next() {
		var x, y, id int
		if err := rows.Scan(&x, &y, &id); err != nil {
			return nil, err
		}
		prior[grid.Key{Grid: gridName, X: x, Y: y}] = id
	}
	return prior, rows.Err()
}

// BeginStaging clears the staging table for one grid ahead of a pass.
func (s *Store) BeginStaging(ctx context.Context, gridName string) error {
	q := s.rebind(`DELETE FROM tile_index_staging WHERE grid = ?`)
	if _, err := s.db.ExecContext(ctx, q, gridName); err != nil {
		return fmt.Errorf("store: begin staging: %w", err)
	}
	return nil
}

// StageTile records one derived tile in the staging table.
func (s *Store) StageTile(ctx context.Context, row TileRow) error {
	t := row.Tile
	q := s.rebind(`INSERT INTO tile_index_staging
		(grid, x, y, level, size_x, size_y, group_id, class, asset_uuid, content_hash, asset_name)
		VALUES (?,?,?,?,?,?,?,?,?,?,?)
		ON CONFLICT (grid, x, y, level) DO UPDATE SET
		size_x=excluded.size_x, size_y=excluded.size_y,
		group_id=excluded.group_id, class=excluded.class,
		asset_uuid=excluded.asset_uuid, content_hash=excluded.content_hash,
		asset_name=excluded.asset_name`)
	_, err := s.db.ExecContext(ctx, q,
		t.Grid, t.X, t.Y, t.Level, t.SizeX, t.SizeY, t.GroupID, int(t.Class),
		row.AssetUUID, row.ContentHash, row.AssetName)
	if err != nil {
		return fmt.Errorf("store: stage tile (%s, %d, %d) lod %d: %w", t.Grid, t.X, t.Y, t.Level, err)
	}
	return nil
}

// MissingAssets lists staged Land tiles with no asset reference. A
// non-empty result blocks the commit.
func (s *Store) MissingAssets(ctx context.Context, gridName string) ([]grid.TileKey, error) {
	q := s.rebind(`SELECT x, y, level FROM tile_index_staging
		WHERE grid = ? AND class = ? AND asset_uuid = ''
		ORDER BY level, x, y`)
	rows, err := s.db.QueryContext(ctx, q, gridName, int(grid.Land))
	if err != nil {
		return nil, fmt.Errorf("store: %w", err)
	}
	defer rows.Close()
	var missing []grid.TileKey
	for rows.Next() {
		k := grid.TileKey{Grid: gridName}
		if err := rows.Scan(&k.X, &k.Y, &k.Level); err != nil {
			return nil, err
		}
		missing = append(missing, k)
	}
	return missing, rows.Err()
}

// CommitStaging replaces the grid's committed tile index with the
// staged one in a single transaction.
func (s *Store) CommitStaging(ctx context.Context, gridName string) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("store: commit: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	steps := []string{
		`DELETE FROM tile_index WHERE grid = ?`,
		`INSERT INTO tile_index SELECT * FROM tile_index_staging WHERE grid = ?`,
		`DELETE FROM tile_index_staging WHERE grid = ?`,
	}
	for _, q := range steps {
		if _, err := tx.ExecContext(ctx, s.rebind(q), gridName); err != nil {
			return fmt.Errorf("store: commit: %w", err)
		}
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("store: commit: %w", err)
	}
	return nil
}

// GCOrphanAggregates deletes committed aggregates whose group no
// longer has any level-0 member, the leftovers of groups that shrank
// or vanished between passes. Returns the number removed.
func (s *Store) GCOrphanAggregates(ctx context.Context, gridName string) (int64, error) {
	q := s.rebind(`DELETE FROM tile_index
		WHERE grid = ? AND level > 0 AND group_id NOT IN
		(SELECT group_id FROM tile_index WHERE grid = ? AND level = 0)`)
	res, err := s.db.ExecContext(ctx, q, gridName, gridName)
	if err != nil {
		return 0, fmt.Errorf("store: gc: %w", err)
	}
	return res.RowsAffected()
}

// Tiles reads one grid's committed tiles, children before parents.
func (s *Store) Tiles(ctx context.Context, gridName string) ([]TileRow, error) {
	q := s.rebind(`SELECT grid, x, y, level, size_x, size_y, group_id, class,
		asset_uuid, content_hash, asset_name
		FROM tile_index WHERE grid = ? ORDER BY level, x, y`)
	rows, err := s.db.QueryContext(ctx, q, gridName)
	if err != nil {
		return nil, fmt.Errorf("store: %w", err)
	}
	defer rows.Close()
	var out []TileRow
	for rows.Next() {
		var r TileRow
		var class int
		if err := rows.Scan(&r.Tile.Grid, &r.Tile.X, &r.Tile.Y, &r.Tile.Level,
			&r.Tile.SizeX, &r.Tile.SizeY, &r.Tile.GroupID, &class,
			&r.AssetUUID, &r.ContentHash, &r.AssetName); err != nil {
			return nil, err
		}
		r.Tile.Class = grid.Classification(class)
		out = append(out, r)
	}
	return out, rows.Err()
}
