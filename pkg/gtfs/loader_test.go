package gtfs

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/transitwpg/transitwpg/pkg/config"
	"github.com/transitwpg/transitwpg/pkg/database"
)

func testLoader(t *testing.T) (*Loader, string) {
	t.Helper()

	dir := t.TempDir()
	db, err := database.Connect(filepath.Join(dir, "test.db"))
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })

	return &Loader{DB: db, Dir: dir, Bounds: config.WinnipegBounds}, dir
}

func writeFeedFile(t *testing.T, dir string, name string, content string) {
	t.Helper()
	require.NoError(t, os.WriteFile(filepath.Join(dir, name), []byte(content), 0o644))
}

func TestLoadAllLoadsPresentTables(t *testing.T) {
	loader, dir := testLoader(t)

	writeFeedFile(t, dir, "stops.txt",
		"stop_id,stop_code,stop_name,stop_lat,stop_lon\n"+
			"10064,W,Main Street,49.89,-97.14\n"+
			"10065,E,Portage Avenue,49.88,-97.20\n")
	writeFeedFile(t, dir, "routes.txt",
		"route_id,route_short_name,route_long_name,route_type\n"+
			"BLUE,B,Blue Line,3\n")

	results, err := loader.LoadAll("")

	require.NoError(t, err)
	assert.Equal(t, 2, results["stops.txt"])
	assert.Equal(t, 1, results["routes.txt"])
	assert.Equal(t, 0, results["trips.txt"])

	count, err := loader.DB.CountRows("raw_gtfs_stops")
	require.NoError(t, err)
	assert.EqualValues(t, 2, count)
}

func TestLoadAllReplacesOnReload(t *testing.T) {
	loader, dir := testLoader(t)

	writeFeedFile(t, dir, "stops.txt",
		"stop_id,stop_code,stop_name,stop_lat,stop_lon\n"+
			"10064,W,Main Street,49.89,-97.14\n")

	_, err := loader.LoadAll("")
	require.NoError(t, err)
	_, err = loader.LoadAll("")
	require.NoError(t, err)

	count, err := loader.DB.CountRows("raw_gtfs_stops")
	require.NoError(t, err)
	assert.EqualValues(t, 1, count, "reload must replace, not append")
}

func TestLoadAllRejectsOutOfBoundsStops(t *testing.T) {
	loader, dir := testLoader(t)

	writeFeedFile(t, dir, "stops.txt",
		"stop_id,stop_code,stop_name,stop_lat,stop_lon\n"+
			"10064,W,Somewhere Else,53.50,-113.49\n")

	_, err := loader.LoadAll("")

	assert.ErrorContains(t, err, "stops.txt")
}

func TestLoadAllSkipValidation(t *testing.T) {
	loader, dir := testLoader(t)
	loader.SkipValidation = true

	writeFeedFile(t, dir, "stops.txt",
		"stop_id,stop_code,stop_name,stop_lat,stop_lon\n"+
			"10064,W,Somewhere Else,53.50,-113.49\n")

	results, err := loader.LoadAll("")

	require.NoError(t, err)
	assert.Equal(t, 1, results["stops.txt"])
}

func TestLoadAllNormalizesCalendarDates(t *testing.T) {
	loader, dir := testLoader(t)

	writeFeedFile(t, dir, "calendar.txt",
		"service_id,sunday,monday,tuesday,wednesday,thursday,friday,saturday,start_date,end_date\n"+
			"WKDY,0,1,1,1,1,1,0,20250629,20251231\n")

	_, err := loader.LoadAll("")
	require.NoError(t, err)

	var start string
	err = loader.DB.SQL.QueryRow("SELECT start_date FROM raw_gtfs_calendar").Scan(&start)
	require.NoError(t, err)
	assert.Equal(t, "2025-06-29", start)
}

func TestLoadAllSuffixedTables(t *testing.T) {
	loader, dir := testLoader(t)

	writeFeedFile(t, dir, "stops.txt",
		"stop_id,stop_code,stop_name,stop_lat,stop_lon\n"+
			"10064,W,Main Street,49.89,-97.14\n")

	_, err := loader.LoadAll("pre_ptn")
	require.NoError(t, err)

	assert.True(t, loader.DB.TableExists("raw_gtfs_stops_pre_ptn"))
	assert.False(t, loader.DB.TableExists("raw_gtfs_stops"))
}

func TestFeedDateRangeFromFeedInfo(t *testing.T) {
	loader, dir := testLoader(t)

	writeFeedFile(t, dir, "feed_info.txt",
		"feed_publisher_name,feed_publisher_url,feed_lang,feed_start_date,feed_end_date\n"+
			"Winnipeg Transit,https://winnipegtransit.com,en,20250629,20251231\n")

	_, err := loader.LoadAll("")
	require.NoError(t, err)

	start, end, err := FeedDateRange(loader.DB)

	require.NoError(t, err)
	assert.Equal(t, "2025-06-29", start)
	assert.Equal(t, "2025-12-31", end)
}

func TestFeedDateRangeFallsBackToCalendar(t *testing.T) {
	loader, dir := testLoader(t)

	writeFeedFile(t, dir, "calendar.txt",
		"service_id,monday,tuesday,wednesday,thursday,friday,saturday,sunday,start_date,end_date\n"+
			"WKDY,1,1,1,1,1,0,0,20250701,20250928\n"+
			"SAT,0,0,0,0,0,1,0,20250705,20251005\n")

	_, err := loader.LoadAll("")
	require.NoError(t, err)

	start, end, err := FeedDateRange(loader.DB)

	require.NoError(t, err)
	assert.Equal(t, "2025-07-01", start)
	assert.Equal(t, "2025-10-05", end)
}

func TestFeedDateRangeWithoutFeed(t *testing.T) {
	loader, _ := testLoader(t)

	_, _, err := FeedDateRange(loader.DB)

	require.Error(t, err)
}
