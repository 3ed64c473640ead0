package transform

import (
	"fmt"

	"github.com/paulmach/orb"
	"github.com/paulmach/orb/geojson"
	"github.com/paulmach/orb/planar"
	"github.com/rs/zerolog/log"
	"github.com/transitwpg/transitwpg/pkg/database"
)

type boundary struct {
	ID      int
	Name    string
	AreaKm2 float64
	Polys   []orb.Polygon
}

type stopPoint struct {
	ID    string
	Point orb.Point
}

// BuildCoverageAggs joins stops against the polygon boundary tables and
// materializes stop counts and densities per area. Density is NULL when
// the source data has no usable area, never a division by zero.
func BuildCoverageAggs(db *database.Database) error {
	stops, err := loadStopPoints(db)
	if err != nil {
		return err
	}

	pairs := []struct {
		source string
		target string
	}{
		{"raw_neighbourhoods", "agg_stops_per_neighbourhood"},
		{"raw_community_areas", "agg_stops_per_community"},
	}

	for _, pair := range pairs {
		if !db.TableExists(pair.source) {
			return fmt.Errorf("coverage aggregates need %s: load boundaries first", pair.source)
		}

		if err := buildCoverageTable(db, pair.source, pair.target, stops); err != nil {
			return err
		}
	}

	return nil
}

func buildCoverageTable(db *database.Database, source string, target string, stops []stopPoint) error {
	boundaries, err := loadBoundaries(db, source)
	if err != nil {
		return err
	}

	counts := make([]int, len(boundaries))
	for _, stop := range stops {
		for i := range boundaries {
			if containsPoint(boundaries[i].Polys, stop.Point) {
				counts[i]++
				break
			}
		}
	}

	ddl := fmt.Sprintf(`CREATE TABLE %s (
		id INTEGER PRIMARY KEY,
		name TEXT NOT NULL,
		area_km2 REAL,
		stop_count INTEGER NOT NULL,
		stops_per_km2 REAL
	)`, target)
	if err := db.DropCreate(target, ddl); err != nil {
		return err
	}

	tx, err := db.SQL.Begin()
	if err != nil {
		return err
	}

	stmt, err := tx.Prepare(fmt.Sprintf("INSERT INTO %s VALUES (?, ?, ?, ?, ?)", target))
	if err != nil {
		tx.Rollback()
		return err
	}
	defer stmt.Close()

	for i, area := range boundaries {
		var density any
		if area.AreaKm2 > 0 {
			density = float64(counts[i]) / area.AreaKm2
		}

		if _, err := stmt.Exec(area.ID, area.Name, area.AreaKm2, counts[i], density); err != nil {
			tx.Rollback()
			return err
		}
	}

	if err := tx.Commit(); err != nil {
		return err
	}

	log.Info().Str("table", target).Int("areas", len(boundaries)).Msg("Built coverage aggregate")

	return nil
}

func loadStopPoints(db *database.Database) ([]stopPoint, error) {
	if !db.TableExists("raw_gtfs_stops") {
		return nil, fmt.Errorf("coverage aggregates need raw_gtfs_stops: load GTFS first")
	}

	rows, err := db.SQL.Query("SELECT stop_id, stop_lon, stop_lat FROM raw_gtfs_stops")
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var stops []stopPoint
	for rows.Next() {
		var stop stopPoint
		var lon, lat float64
		if err := rows.Scan(&stop.ID, &lon, &lat); err != nil {
			return nil, err
		}
		stop.Point = orb.Point{lon, lat}
		stops = append(stops, stop)
	}

	return stops, rows.Err()
}

func loadBoundaries(db *database.Database, table string) ([]boundary, error) {
	rows, err := db.SQL.Query(fmt.Sprintf("SELECT id, name, area_km2, geometry FROM %s ORDER BY id", table))
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var boundaries []boundary
	for rows.Next() {
		var area boundary
		var geometryText string
		if err := rows.Scan(&area.ID, &area.Name, &area.AreaKm2, &geometryText); err != nil {
			return nil, err
		}

		geometry, err := geojson.UnmarshalGeometry([]byte(geometryText))
		if err != nil {
			return nil, fmt.Errorf("bad geometry for %s id %d: %w", table, area.ID, err)
		}

		switch geom := geometry.Geometry().(type) {
		case orb.Polygon:
			area.Polys = []orb.Polygon{geom}
		case orb.MultiPolygon:
			area.Polys = geom
		default:
			log.Warn().Str("table", table).Int("id", area.ID).Msg("Skipping non-polygon boundary")
			continue
		}

		boundaries = append(boundaries, area)
	}

	return boundaries, rows.Err()
}

func containsPoint(polys []orb.Polygon, point orb.Point) bool {
	for _, poly := range polys {
		if planar.PolygonContains(poly, point) {
			return true
		}
	}

	return false
}
