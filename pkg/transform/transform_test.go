package transform

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/transitwpg/transitwpg/pkg/database"
)

// seedSchedule loads a two-trip schedule: trip A visits stops 1-2-3, trip
// B visits 2-3. Both belong to route BLUE.
func seedSchedule(t *testing.T, db *database.Database) {
	t.Helper()

	statements := []string{
		`CREATE TABLE raw_gtfs_trips (trip_id TEXT, route_id TEXT, service_id TEXT, trip_headsign TEXT, direction_id INTEGER)`,
		`INSERT INTO raw_gtfs_trips VALUES
			('A', 'BLUE', 'WKDY', 'Downtown', 0),
			('B', 'BLUE', 'WKDY', 'Downtown', 0)`,
		`CREATE TABLE raw_gtfs_stop_times (trip_id TEXT, arrival_time TEXT, departure_time TEXT, stop_id TEXT, stop_sequence INTEGER)`,
		`INSERT INTO raw_gtfs_stop_times VALUES
			('A', '08:00:00', '08:00:00', '1', 1),
			('A', '08:05:00', '08:05:00', '2', 2),
			('A', '08:12:00', '08:12:00', '3', 3),
			('B', '08:10:00', '08:10:00', '2', 1),
			('B', '08:25:00', '08:25:00', '3', 2)`,
	}

	for _, statement := range statements {
		_, err := db.SQL.Exec(statement)
		require.NoError(t, err)
	}
}

func TestBuildEdges(t *testing.T) {
	db := testDB(t)
	seedSchedule(t, db)

	count, err := BuildEdges(db)

	require.NoError(t, err)
	// Trip A contributes 1->2 and 2->3, trip B contributes 2->3
	assert.EqualValues(t, 3, count)

	var to string
	err = db.SQL.QueryRow(
		"SELECT to_stop_id FROM raw_gtfs_edges WHERE trip_id = 'A' AND from_stop_id = '1'",
	).Scan(&to)
	require.NoError(t, err)
	assert.Equal(t, "2", to)
}

func TestBuildWeightedEdges(t *testing.T) {
	db := testDB(t)
	seedSchedule(t, db)

	_, err := BuildEdges(db)
	require.NoError(t, err)

	count, err := BuildWeightedEdges(db)
	require.NoError(t, err)
	assert.EqualValues(t, 2, count)

	var tripCount, routeCount int
	err = db.SQL.QueryRow(
		"SELECT trip_count, route_count FROM raw_gtfs_edges_weighted WHERE from_stop_id = '2' AND to_stop_id = '3'",
	).Scan(&tripCount, &routeCount)
	require.NoError(t, err)
	assert.Equal(t, 2, tripCount)
	assert.Equal(t, 1, routeCount)
}

func TestMaterializeActiveTrips(t *testing.T) {
	db := testDB(t)
	seedSchedule(t, db)

	statements := []string{
		`CREATE TABLE raw_gtfs_calendar (service_id TEXT, sunday INTEGER, monday INTEGER, tuesday INTEGER,
			wednesday INTEGER, thursday INTEGER, friday INTEGER, saturday INTEGER, start_date TEXT, end_date TEXT)`,
		`INSERT INTO raw_gtfs_calendar VALUES ('WKDY', 0, 1, 1, 1, 1, 1, 0, '2025-06-29', '2025-12-31')`,
		`CREATE TABLE raw_gtfs_calendar_dates (service_id TEXT, date TEXT, exception_type INTEGER)`,
	}
	for _, statement := range statements {
		_, err := db.SQL.Exec(statement)
		require.NoError(t, err)
	}

	// 2025-07-04 is a Friday, WKDY runs
	count, err := MaterializeActiveTrips(db, "2025-07-04")
	require.NoError(t, err)
	assert.EqualValues(t, 2, count)

	// 2025-07-06 is a Sunday, WKDY does not run
	count, err = MaterializeActiveTrips(db, "2025-07-06")
	require.NoError(t, err)
	assert.EqualValues(t, 0, count)
}

func TestMaterializeActiveTripsHonorsExceptions(t *testing.T) {
	db := testDB(t)
	seedSchedule(t, db)

	statements := []string{
		`CREATE TABLE raw_gtfs_calendar (service_id TEXT, sunday INTEGER, monday INTEGER, tuesday INTEGER,
			wednesday INTEGER, thursday INTEGER, friday INTEGER, saturday INTEGER, start_date TEXT, end_date TEXT)`,
		`INSERT INTO raw_gtfs_calendar VALUES ('WKDY', 0, 1, 1, 1, 1, 1, 0, '2025-06-29', '2025-12-31')`,
		`CREATE TABLE raw_gtfs_calendar_dates (service_id TEXT, date TEXT, exception_type INTEGER)`,
		// Holiday: removed on a Friday, added on a Sunday
		`INSERT INTO raw_gtfs_calendar_dates VALUES ('WKDY', '2025-07-04', 2), ('WKDY', '2025-07-06', 1)`,
	}
	for _, statement := range statements {
		_, err := db.SQL.Exec(statement)
		require.NoError(t, err)
	}

	count, err := MaterializeActiveTrips(db, "2025-07-04")
	require.NoError(t, err)
	assert.EqualValues(t, 0, count, "type 2 exception removes service")

	count, err = MaterializeActiveTrips(db, "2025-07-06")
	require.NoError(t, err)
	assert.EqualValues(t, 2, count, "type 1 exception adds service")
}

func TestMaterializeActiveTripsRejectsBadDate(t *testing.T) {
	db := testDB(t)

	_, err := MaterializeActiveTrips(db, "04/07/2025")

	assert.ErrorContains(t, err, "YYYY-MM-DD")
}

func TestBuildRouteStats(t *testing.T) {
	db := testDB(t)
	seedSchedule(t, db)

	count, err := BuildRouteStats(db)

	require.NoError(t, err)
	assert.Equal(t, 1, count)

	var numTrips int
	var meanHeadway float64
	err = db.SQL.QueryRow(
		"SELECT num_trips, mean_headway FROM agg_route_stats WHERE route_id = 'BLUE' AND direction_id = 0",
	).Scan(&numTrips, &meanHeadway)
	require.NoError(t, err)

	// Busiest stops are 2 and 3 with two departures each; stop 2 wins the
	// tie alphabetically: departures 08:05 and 08:10, one 5 minute gap
	assert.Equal(t, 2, numTrips)
	assert.InDelta(t, 5.0, meanHeadway, 0.001)
}

func TestCreateReferenceTables(t *testing.T) {
	db := testDB(t)

	_, err := db.SQL.Exec(`CREATE TABLE raw_gtfs_routes (route_id TEXT, route_short_name TEXT, route_long_name TEXT, route_type INTEGER)`)
	require.NoError(t, err)
	_, err = db.SQL.Exec(`INSERT INTO raw_gtfs_routes VALUES ('BLUE', 'B', 'Blue Line', 3), ('X', '', 'Unnamed', 3)`)
	require.NoError(t, err)

	require.NoError(t, CreateReferenceTables(db))

	count, err := db.CountRows("ref_route_mapping")
	require.NoError(t, err)
	assert.EqualValues(t, 1, count, "routes without a short name are unmappable")
}

func TestCreatePerformanceViews(t *testing.T) {
	db := testDB(t)

	statements := []string{
		`CREATE TABLE raw_gtfs_routes (route_id TEXT, route_short_name TEXT, route_long_name TEXT, route_type INTEGER)`,
		`INSERT INTO raw_gtfs_routes VALUES ('BLUE', '16', 'Blue Line', 3)`,
		`CREATE TABLE raw_passups (route_number TEXT, time TEXT)`,
		`INSERT INTO raw_passups VALUES ('16', '2025-07-01'), ('16', '2025-07-02')`,
		`CREATE TABLE raw_ontime_performance (route_number TEXT, deviation REAL)`,
		`INSERT INTO raw_ontime_performance VALUES ('16', 30.0), ('16', 600.0)`,
	}
	for _, statement := range statements {
		_, err := db.SQL.Exec(statement)
		require.NoError(t, err)
	}

	require.NoError(t, CreateReferenceTables(db))
	require.NoError(t, CreatePerformanceViews(db))

	var passUps int
	var onTimeShare float64
	err := db.SQL.QueryRow(
		"SELECT pass_up_count, on_time_share FROM route_performance WHERE route_id = 'BLUE'",
	).Scan(&passUps, &onTimeShare)
	require.NoError(t, err)
	assert.Equal(t, 2, passUps)
	assert.InDelta(t, 0.5, onTimeShare, 0.001)
}

func TestCreatePerformanceViewsRequiresSources(t *testing.T) {
	db := testDB(t)

	err := CreatePerformanceViews(db)

	assert.ErrorContains(t, err, "raw_passups")
}

func TestBuildCoverageAggs(t *testing.T) {
	db := testDB(t)

	statements := []string{
		`CREATE TABLE raw_gtfs_stops (stop_id TEXT, stop_code TEXT, stop_name TEXT, stop_lat REAL, stop_lon REAL)`,
		// Two stops inside the box, one outside
		`INSERT INTO raw_gtfs_stops VALUES
			('1', '', 'Inside A', 49.90, -97.15),
			('2', '', 'Inside B', 49.91, -97.16),
			('3', '', 'Outside', 49.80, -97.30)`,
		`CREATE TABLE raw_neighbourhoods (id INTEGER, name TEXT, area_km2 REAL, geometry TEXT)`,
		`INSERT INTO raw_neighbourhoods VALUES
			(1, 'Central', 4.0, '{"type":"Polygon","coordinates":[[[-97.20,49.88],[-97.10,49.88],[-97.10,49.95],[-97.20,49.95],[-97.20,49.88]]]}'),
			(2, 'Empty', 0.0, '{"type":"Polygon","coordinates":[[[-97.00,49.96],[-96.96,49.96],[-96.96,49.99],[-97.00,49.99],[-97.00,49.96]]]}')`,
		`CREATE TABLE raw_community_areas (id INTEGER, name TEXT, area_km2 REAL, geometry TEXT)`,
	}
	for _, statement := range statements {
		_, err := db.SQL.Exec(statement)
		require.NoError(t, err)
	}

	require.NoError(t, BuildCoverageAggs(db))

	var stopCount int
	var density float64
	err := db.SQL.QueryRow(
		"SELECT stop_count, stops_per_km2 FROM agg_stops_per_neighbourhood WHERE name = 'Central'",
	).Scan(&stopCount, &density)
	require.NoError(t, err)
	assert.Equal(t, 2, stopCount)
	assert.InDelta(t, 0.5, density, 0.001)

	// Zero-area boundary gets NULL density, not a division by zero
	var nullDensity any
	err = db.SQL.QueryRow(
		"SELECT stops_per_km2 FROM agg_stops_per_neighbourhood WHERE name = 'Empty'",
	).Scan(&nullDensity)
	require.NoError(t, err)
	assert.Nil(t, nullDensity)
}
