package opendata

import (
	"fmt"
	"strconv"

	"github.com/paulmach/orb/geojson"
	"github.com/rs/zerolog/log"
	"github.com/transitwpg/transitwpg/pkg/database"
)

// LoadBoundary loads a polygon boundary dataset into a standardized
// (id, name, area_km2, geometry) table. The first configured name/area
// property present on a feature wins; a feature with no usable name gets
// "Unknown" and no usable area gets 0.
func LoadBoundary(db *database.Database, dataset Dataset, path string) (int, error) {
	collection, err := readFeatureCollection(path)
	if err != nil {
		return 0, err
	}

	ddl := fmt.Sprintf(`CREATE TABLE %s (
		id INTEGER PRIMARY KEY,
		name TEXT NOT NULL,
		area_km2 REAL,
		geometry TEXT NOT NULL
	)`, dataset.Table)
	if err := db.DropCreate(dataset.Table, ddl); err != nil {
		return 0, err
	}

	tx, err := db.SQL.Begin()
	if err != nil {
		return 0, err
	}

	stmt, err := tx.Prepare(fmt.Sprintf("INSERT INTO %s VALUES (?, ?, ?, ?)", dataset.Table))
	if err != nil {
		tx.Rollback()
		return 0, err
	}
	defer stmt.Close()

	for i, feature := range collection.Features {
		name := boundaryName(feature, dataset.NameFields)
		area := boundaryArea(feature, dataset.AreaFields)

		geometry, err := geojson.NewGeometry(feature.Geometry).MarshalJSON()
		if err != nil {
			tx.Rollback()
			return 0, err
		}

		if _, err := stmt.Exec(i+1, name, area, string(geometry)); err != nil {
			tx.Rollback()
			return 0, err
		}
	}

	if err := tx.Commit(); err != nil {
		return 0, err
	}

	log.Info().Str("table", dataset.Table).Int("rows", len(collection.Features)).Msg("Loaded boundary dataset")

	return len(collection.Features), nil
}

func boundaryName(feature *geojson.Feature, candidates []string) string {
	for _, field := range candidates {
		if value, ok := feature.Properties[field].(string); ok && value != "" {
			return value
		}
	}

	return "Unknown"
}

func boundaryArea(feature *geojson.Feature, candidates []string) float64 {
	for _, field := range candidates {
		switch value := feature.Properties[field].(type) {
		case float64:
			return value
		case string:
			if parsed, err := strconv.ParseFloat(value, 64); err == nil {
				return parsed
			}
		}
	}

	return 0.0
}
