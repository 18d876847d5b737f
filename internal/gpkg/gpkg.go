// Package gpkg reads and writes the tile catalog as an OGC GeoPackage (SQLite container).
package gpkg

import (
	"context"
	"database/sql"
	"fmt"
	"os"
	"strings"

	"github.com/rotisserie/eris"
	"github.com/twpayne/go-geom"
	_ "modernc.org/sqlite"

	"github.com/sells-group/lidarhd/internal/model"
)

// TableName is the feature table written by Write.
const TableName = "tiles"

const (
	applicationID = 0x47504B47 // "GPKG"
	userVersion   = 10300
)

// Known spatial reference definitions (OGC WKT).
var srsDefinitions = map[int]struct{ name, wkt string }{
	2154: {"RGF93 v1 / Lambert-93", `PROJCS["RGF93 v1 / Lambert-93",GEOGCS["RGF93 v1",DATUM["Reseau_Geodesique_Francais_1993_v1",SPHEROID["GRS 1980",6378137,298.257222101]],PRIMEM["Greenwich",0],UNIT["degree",0.0174532925199433]],PROJECTION["Lambert_Conformal_Conic_2SP"],PARAMETER["latitude_of_origin",46.5],PARAMETER["central_meridian",3],PARAMETER["standard_parallel_1",49],PARAMETER["standard_parallel_2",44],PARAMETER["false_easting",700000],PARAMETER["false_northing",6600000],UNIT["metre",1],AUTHORITY["EPSG","2154"]]`},
	3857: {"WGS 84 / Pseudo-Mercator", `PROJCS["WGS 84 / Pseudo-Mercator",GEOGCS["WGS 84",DATUM["WGS_1984",SPHEROID["WGS 84",6378137,298.257223563]],PRIMEM["Greenwich",0],UNIT["degree",0.0174532925199433]],PROJECTION["Mercator_1SP"],PARAMETER["central_meridian",0],PARAMETER["scale_factor",1],PARAMETER["false_easting",0],PARAMETER["false_northing",0],UNIT["metre",1],AUTHORITY["EPSG","3857"]]`},
}

// Definition returns the OGC WKT of a known projected srid.
func Definition(srid int) (string, bool) {
	def, ok := srsDefinitions[srid]
	return def.wkt, ok
}

const schema = `
CREATE TABLE gpkg_spatial_ref_sys (
	srs_name                 TEXT NOT NULL,
	srs_id                   INTEGER PRIMARY KEY,
	organization             TEXT NOT NULL,
	organization_coordsys_id INTEGER NOT NULL,
	definition               TEXT NOT NULL,
	description              TEXT
);

CREATE TABLE gpkg_contents (
	table_name  TEXT NOT NULL PRIMARY KEY,
	data_type   TEXT NOT NULL,
	identifier  TEXT UNIQUE,
	description TEXT DEFAULT '',
	last_change DATETIME NOT NULL DEFAULT (strftime('%Y-%m-%dT%H:%M:%fZ','now')),
	min_x       DOUBLE,
	min_y       DOUBLE,
	max_x       DOUBLE,
	max_y       DOUBLE,
	srs_id      INTEGER REFERENCES gpkg_spatial_ref_sys(srs_id)
);

CREATE TABLE gpkg_geometry_columns (
	table_name         TEXT NOT NULL REFERENCES gpkg_contents(table_name),
	column_name        TEXT NOT NULL,
	geometry_type_name TEXT NOT NULL,
	srs_id             INTEGER NOT NULL REFERENCES gpkg_spatial_ref_sys(srs_id),
	z                  TINYINT NOT NULL,
	m                  TINYINT NOT NULL,
	PRIMARY KEY (table_name, column_name)
);

INSERT INTO gpkg_spatial_ref_sys VALUES
	('Undefined cartesian SRS', -1, 'NONE', -1, 'undefined', 'undefined cartesian coordinate reference system'),
	('Undefined geographic SRS', 0, 'NONE', 0, 'undefined', 'undefined geographic coordinate reference system'),
	('WGS 84 geodetic', 4326, 'EPSG', 4326, 'GEOGCS["WGS 84",DATUM["WGS_1984",SPHEROID["WGS 84",6378137,298.257223563]],PRIMEM["Greenwich",0],UNIT["degree",0.0174532925199433],AUTHORITY["EPSG","4326"]]', 'longitude/latitude coordinates in decimal degrees on the WGS 84 spheroid');

CREATE TABLE tiles (
	fid  INTEGER PRIMARY KEY AUTOINCREMENT,
	geom GEOMETRY,
	name TEXT,
	url  TEXT,
	bloc TEXT
);
`

func open(path string) (*sql.DB, error) {
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, eris.Wrap(err, "gpkg: open")
	}
	if _, err := db.Exec("PRAGMA busy_timeout=5000"); err != nil {
		db.Close()
		return nil, eris.Wrap(err, "gpkg: exec PRAGMA busy_timeout")
	}
	return db, nil
}

// Write creates a new GeoPackage at path holding tiles with geometries in srid.
// An existing file at path is replaced.
func Write(ctx context.Context, path string, srid int, tiles []model.Tile) error {
	if err := os.Remove(path); err != nil && !os.IsNotExist(err) {
		return eris.Wrapf(err, "gpkg: remove %s", path)
	}

	db, err := open(path)
	if err != nil {
		return err
	}
	defer db.Close() //nolint:errcheck

	tx, err := db.BeginTx(ctx, nil)
	if err != nil {
		return eris.Wrap(err, "gpkg: begin")
	}
	defer tx.Rollback() //nolint:errcheck

	for _, pragma := range []string{
		fmt.Sprintf("PRAGMA application_id=%d", applicationID),
		fmt.Sprintf("PRAGMA user_version=%d", userVersion),
	} {
		if _, err := tx.ExecContext(ctx, pragma); err != nil {
			return eris.Wrapf(err, "gpkg: exec %s", pragma)
		}
	}
	if _, err := tx.ExecContext(ctx, schema); err != nil {
		return eris.Wrap(err, "gpkg: create schema")
	}

	if def, ok := srsDefinitions[srid]; ok {
		if _, err := tx.ExecContext(ctx,
			`INSERT INTO gpkg_spatial_ref_sys (srs_name, srs_id, organization, organization_coordsys_id, definition) VALUES (?, ?, 'EPSG', ?, ?)`,
			def.name, srid, srid, def.wkt,
		); err != nil {
			return eris.Wrapf(err, "gpkg: insert srs %d", srid)
		}
	} else if srid != 4326 {
		return eris.Wrapf(model.ErrInvalidArgument, "gpkg: no definition for EPSG:%d", srid)
	}

	stmt, err := tx.PrepareContext(ctx, `INSERT INTO tiles (geom, name, url, bloc) VALUES (?, ?, ?, ?)`)
	if err != nil {
		return eris.Wrap(err, "gpkg: prepare insert")
	}
	defer stmt.Close() //nolint:errcheck

	extent := geom.NewBounds(geom.XY)
	for i, t := range tiles {
		var blob []byte
		if t.Geometry != nil {
			blob, err = encodeGeometry(t.Geometry, srid)
			if err != nil {
				return eris.Wrapf(err, "gpkg: tile %d", i)
			}
			extent.Extend(t.Geometry)
		}
		if _, err := stmt.ExecContext(ctx, blob, nullString(t.Name), t.URL, t.Bloc); err != nil {
			return eris.Wrapf(err, "gpkg: insert tile %d", i)
		}
	}

	var minX, minY, maxX, maxY any
	if !extent.IsEmpty() {
		minX, minY, maxX, maxY = extent.Min(0), extent.Min(1), extent.Max(0), extent.Max(1)
	}
	if _, err := tx.ExecContext(ctx,
		`INSERT INTO gpkg_contents (table_name, data_type, identifier, min_x, min_y, max_x, max_y, srs_id) VALUES (?, 'features', ?, ?, ?, ?, ?, ?)`,
		TableName, TableName, minX, minY, maxX, maxY, srid,
	); err != nil {
		return eris.Wrap(err, "gpkg: insert contents")
	}
	if _, err := tx.ExecContext(ctx,
		`INSERT INTO gpkg_geometry_columns VALUES (?, 'geom', 'GEOMETRY', ?, 0, 0)`,
		TableName, srid,
	); err != nil {
		return eris.Wrap(err, "gpkg: insert geometry column")
	}

	return eris.Wrap(tx.Commit(), "gpkg: commit")
}

// Layer is the feature layer read back from a GeoPackage.
type Layer struct {
	Table string
	SRID  int
	Tiles []model.Tile
}

// Read loads the first feature layer of the GeoPackage at path. Files written
// by other tools are accepted as long as the layer carries a url column.
func Read(ctx context.Context, path string) (*Layer, error) {
	if _, err := os.Stat(path); err != nil {
		if os.IsNotExist(err) {
			return nil, eris.Wrapf(model.ErrNotFound, "gpkg: %s", path)
		}
		return nil, eris.Wrapf(err, "gpkg: stat %s", path)
	}

	db, err := open(path)
	if err != nil {
		return nil, err
	}
	defer db.Close() //nolint:errcheck

	layer := &Layer{}
	var geomCol string
	err = db.QueryRowContext(ctx, `
		SELECT c.table_name, g.column_name, g.srs_id
		FROM gpkg_contents c
		JOIN gpkg_geometry_columns g ON g.table_name = c.table_name
		WHERE c.data_type = 'features'
		ORDER BY c.table_name = ? DESC, c.table_name
		LIMIT 1`, TableName).Scan(&layer.Table, &geomCol, &layer.SRID)
	if err == sql.ErrNoRows {
		return nil, eris.Errorf("gpkg: %s has no feature layer", path)
	}
	if err != nil {
		return nil, eris.Wrapf(err, "gpkg: read layer metadata from %s", path)
	}

	cols, err := columns(ctx, db, layer.Table)
	if err != nil {
		return nil, err
	}
	if !cols["url"] {
		return nil, eris.Errorf("gpkg: layer %s has no url column", layer.Table)
	}
	selectCol := func(name string) string {
		if cols[name] {
			return quote(name)
		}
		return "NULL"
	}

	query := fmt.Sprintf(`SELECT %s, %s, url, %s FROM %s`,
		quote(geomCol), selectCol("name"), selectCol("bloc"), quote(layer.Table))
	if cols["fid"] {
		query += ` ORDER BY fid`
	}
	rows, err := db.QueryContext(ctx, query)
	if err != nil {
		return nil, eris.Wrapf(err, "gpkg: query %s", layer.Table)
	}
	defer rows.Close() //nolint:errcheck

	for rows.Next() {
		var (
			blob            []byte
			name, url, bloc sql.NullString
		)
		if err := rows.Scan(&blob, &name, &url, &bloc); err != nil {
			return nil, eris.Wrap(err, "gpkg: scan tile")
		}
		t := model.Tile{Name: name.String, URL: url.String, Bloc: bloc.String}
		if t.Bloc == "" {
			t.Bloc = model.BlocFromURL(t.URL)
		}
		if len(blob) > 0 {
			g, _, err := decodeGeometry(blob)
			if err != nil {
				return nil, eris.Wrapf(err, "gpkg: tile %s", t.URL)
			}
			t.Geometry = withSRID(g, layer.SRID)
		}
		layer.Tiles = append(layer.Tiles, t)
	}
	if err := rows.Err(); err != nil {
		return nil, eris.Wrap(err, "gpkg: iterate tiles")
	}
	return layer, nil
}

func columns(ctx context.Context, db *sql.DB, table string) (map[string]bool, error) {
	rows, err := db.QueryContext(ctx, fmt.Sprintf(`PRAGMA table_info(%s)`, quote(table)))
	if err != nil {
		return nil, eris.Wrapf(err, "gpkg: table info %s", table)
	}
	defer rows.Close() //nolint:errcheck

	cols := make(map[string]bool)
	for rows.Next() {
		var (
			cid        int
			name, typ  string
			notNull    int
			dflt       sql.NullString
			primaryKey int
		)
		if err := rows.Scan(&cid, &name, &typ, &notNull, &dflt, &primaryKey); err != nil {
			return nil, eris.Wrap(err, "gpkg: scan table info")
		}
		cols[strings.ToLower(name)] = true
	}
	return cols, eris.Wrap(rows.Err(), "gpkg: iterate table info")
}

func withSRID(g geom.T, srid int) geom.T {
	switch t := g.(type) {
	case *geom.Polygon:
		return t.SetSRID(srid)
	case *geom.MultiPolygon:
		return t.SetSRID(srid)
	case *geom.Point:
		return t.SetSRID(srid)
	}
	return g
}

func quote(ident string) string {
	return `"` + strings.ReplaceAll(ident, `"`, `""`) + `"`
}

func nullString(s string) sql.NullString {
	return sql.NullString{String: s, Valid: s != ""}
}
