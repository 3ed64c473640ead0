package analysis

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/transitwpg/transitwpg/pkg/database"
)

// seedNetwork loads a small line network: 1 -> 2 -> 3, with 2 -> 3 served
// heavily, plus an isolated pair 4 -> 5.
func seedNetwork(t *testing.T, db *database.Database) {
	t.Helper()

	statements := []string{
		`CREATE TABLE raw_gtfs_edges_weighted (from_stop_id TEXT, to_stop_id TEXT, trip_count INTEGER, route_count INTEGER)`,
		`INSERT INTO raw_gtfs_edges_weighted VALUES
			('1', '2', 10, 1),
			('2', '3', 25, 2),
			('4', '5', 3, 1)`,
	}
	for _, statement := range statements {
		_, err := db.SQL.Exec(statement)
		require.NoError(t, err)
	}
}

func TestDegreeCentrality(t *testing.T) {
	db := testDB(t)
	seedNetwork(t, db)

	degrees, err := DegreeCentrality(db)

	require.NoError(t, err)
	require.Len(t, degrees, 5)

	// Stop 2 has one inbound and one outbound edge
	assert.Equal(t, DegreeRow{StopID: "2", InDegree: 1, OutDegree: 1, TotalDegree: 2}, degrees[0])
}

func TestDegreeCentralityMissingTable(t *testing.T) {
	db := testDB(t)

	degrees, err := DegreeCentrality(db)

	require.NoError(t, err)
	assert.Empty(t, degrees)
}

func TestComputeNetworkStats(t *testing.T) {
	db := testDB(t)
	seedNetwork(t, db)

	stats, err := ComputeNetworkStats(db)

	require.NoError(t, err)
	assert.Equal(t, 5, stats.Nodes)
	assert.Equal(t, 3, stats.Edges)
	assert.Equal(t, 2, stats.Components)
	assert.InDelta(t, 3.0/20.0, stats.Density, 0.001)
	assert.InDelta(t, 1.2, stats.AvgDegree, 0.001)
}

func TestTopHubs(t *testing.T) {
	db := testDB(t)
	seedNetwork(t, db)

	_, err := db.SQL.Exec(`CREATE TABLE raw_gtfs_stops (stop_id TEXT, stop_code TEXT, stop_name TEXT, stop_lat REAL, stop_lon REAL)`)
	require.NoError(t, err)
	_, err = db.SQL.Exec(`INSERT INTO raw_gtfs_stops VALUES ('2', '', 'Portage & Main', 49.895, -97.138)`)
	require.NoError(t, err)

	hubs, err := TopHubs(db, 1)

	require.NoError(t, err)
	require.Len(t, hubs, 1)
	assert.Equal(t, "2", hubs[0].StopID)
	assert.Equal(t, "Portage & Main", hubs[0].StopName)
	assert.InDelta(t, 49.895, hubs[0].Lat, 0.001)
}

func TestBetweennessCentrality(t *testing.T) {
	db := testDB(t)
	seedNetwork(t, db)

	results, err := BetweennessCentrality(db)

	require.NoError(t, err)
	require.NotEmpty(t, results)

	// Stop 2 is the only stop on a path between two others
	assert.Equal(t, "2", results[0].StopID)
	assert.Greater(t, results[0].Betweenness, 0.0)
}

func TestDetectCommunities(t *testing.T) {
	db := testDB(t)
	seedNetwork(t, db)

	assignments, err := DetectCommunities(db)

	require.NoError(t, err)
	require.Len(t, assignments, 5)

	community := map[string]int{}
	for _, assignment := range assignments {
		community[assignment.StopID] = assignment.Community
	}

	// The connected line stays together and apart from the isolated pair
	assert.Equal(t, community["1"], community["2"])
	assert.Equal(t, community["2"], community["3"])
	assert.Equal(t, community["4"], community["5"])
	assert.NotEqual(t, community["1"], community["4"])
}
