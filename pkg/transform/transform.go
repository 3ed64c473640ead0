package transform

import (
	"fmt"

	"github.com/rs/zerolog/log"
	"github.com/transitwpg/transitwpg/pkg/database"
	"github.com/transitwpg/transitwpg/pkg/gtfs"
)

// BuildEdges derives directed stop-to-stop edges from consecutive stop
// times within each trip.
func BuildEdges(db *database.Database) (int64, error) {
	log.Info().Msg("Building network edges from stop_times")

	if err := RunScript(db, "build_edges.sql"); err != nil {
		return 0, err
	}

	count, err := db.CountRows("raw_gtfs_edges")
	if err != nil {
		return 0, err
	}
	log.Info().Int64("edges", count).Msg("Created edges")

	return count, nil
}

// BuildWeightedEdges collapses edges into unique stop pairs with trip and
// route counts.
func BuildWeightedEdges(db *database.Database) (int64, error) {
	log.Info().Msg("Creating weighted edges")

	if err := RunScript(db, "build_weighted_edges.sql"); err != nil {
		return 0, err
	}

	count, err := db.CountRows("raw_gtfs_edges_weighted")
	if err != nil {
		return 0, err
	}
	log.Info().Int64("edges", count).Msg("Created weighted edges")

	return count, nil
}

// MaterializeActiveTrips creates agg_active_trips for a service date,
// honoring both the calendar day columns and calendar_dates exceptions.
func MaterializeActiveTrips(db *database.Database, targetDate string) (int64, error) {
	dayColumn, err := gtfs.DayColumn(targetDate)
	if err != nil {
		return 0, err
	}
	if err := database.ValidateIdentifier(dayColumn, "calendar day"); err != nil {
		return 0, err
	}

	log.Info().Str("date", targetDate).Str("day", dayColumn).Msg("Materializing active trips")

	err = RunTemplate(db, "materialize_active_trips.sql", map[string]string{
		"target_date": targetDate,
		"day_column":  dayColumn,
	})
	if err != nil {
		return 0, err
	}

	count, err := db.CountRows("agg_active_trips")
	if err != nil {
		return 0, err
	}
	log.Info().Int64("trips", count).Str("date", targetDate).Msg("Materialized active trips")

	return count, nil
}

// CreateReferenceTables builds the GTFS-to-open-data mapping tables.
func CreateReferenceTables(db *database.Database) error {
	log.Info().Msg("Creating reference mapping tables")

	return RunScript(db, "reference_tables.sql")
}

// CreatePerformanceViews builds the analysis-ready views joining GTFS
// routes with pass-up and on-time observations.
func CreatePerformanceViews(db *database.Database) error {
	for _, table := range []string{"raw_passups", "raw_ontime_performance", "ref_route_mapping"} {
		if !db.TableExists(table) {
			return fmt.Errorf("performance views need %s: load open data and reference tables first", table)
		}
	}

	log.Info().Msg("Creating performance views")

	return RunScript(db, "performance_views.sql")
}

// CreateIndexes adds indexes for the join-heavy analysis queries.
func CreateIndexes(db *database.Database) error {
	log.Info().Msg("Creating indexes")

	return RunScript(db, "indexes.sql")
}
