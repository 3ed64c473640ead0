package transform

import (
	"fmt"
	"sort"

	"github.com/rs/zerolog/log"
	"github.com/transitwpg/transitwpg/pkg/database"
	"github.com/transitwpg/transitwpg/pkg/gtfs"
	"golang.org/x/exp/maps"
	"gonum.org/v1/gonum/stat"
)

type directionKey struct {
	RouteID     string
	DirectionID int
}

type stopDepartures struct {
	StopID  string
	Minutes []float64
}

// BuildRouteStats computes per-route headway statistics into
// agg_route_stats. Headways are measured at each direction's busiest stop,
// which stands in for the timepoint a rider would actually wait at. When
// agg_active_trips exists, only trips active on that service date count.
func BuildRouteStats(db *database.Database) (int, error) {
	departures, err := collectDepartures(db)
	if err != nil {
		return 0, err
	}

	ddl := `CREATE TABLE agg_route_stats (
		route_id TEXT NOT NULL,
		direction_id INTEGER NOT NULL,
		num_trips INTEGER NOT NULL,
		mean_headway REAL,
		min_headway REAL,
		max_headway REAL,
		start_time REAL,
		end_time REAL,
		PRIMARY KEY (route_id, direction_id)
	)`
	if err := db.DropCreate("agg_route_stats", ddl); err != nil {
		return 0, err
	}

	keys := maps.Keys(departures)
	sort.Slice(keys, func(i, j int) bool {
		if keys[i].RouteID != keys[j].RouteID {
			return keys[i].RouteID < keys[j].RouteID
		}
		return keys[i].DirectionID < keys[j].DirectionID
	})

	tx, err := db.SQL.Begin()
	if err != nil {
		return 0, err
	}

	stmt, err := tx.Prepare("INSERT INTO agg_route_stats VALUES (?, ?, ?, ?, ?, ?, ?, ?)")
	if err != nil {
		tx.Rollback()
		return 0, err
	}
	defer stmt.Close()

	inserted := 0
	for _, key := range keys {
		busiest := busiestStop(departures[key])
		sort.Float64s(busiest.Minutes)

		headways := gtfs.Headways(busiest.Minutes)

		var meanHeadway, minHeadway, maxHeadway any
		if len(headways) > 0 {
			lo, hi := headways[0], headways[0]
			for _, h := range headways {
				lo = min(lo, h)
				hi = max(hi, h)
			}
			meanHeadway = stat.Mean(headways, nil)
			minHeadway = lo
			maxHeadway = hi
		}

		var start, end any
		if len(busiest.Minutes) > 0 {
			start = busiest.Minutes[0]
			end = busiest.Minutes[len(busiest.Minutes)-1]
		}

		_, err := stmt.Exec(key.RouteID, key.DirectionID, len(busiest.Minutes),
			meanHeadway, minHeadway, maxHeadway, start, end)
		if err != nil {
			tx.Rollback()
			return 0, err
		}
		inserted++
	}

	if err := tx.Commit(); err != nil {
		return 0, err
	}

	log.Info().Int("routes", inserted).Msg("Built route headway statistics")

	return inserted, nil
}

// collectDepartures gathers departure minutes per (route, direction, stop).
func collectDepartures(db *database.Database) (map[directionKey]map[string][]float64, error) {
	if !db.TableExists("raw_gtfs_stop_times") || !db.TableExists("raw_gtfs_trips") {
		return nil, fmt.Errorf("route stats need raw_gtfs_stop_times and raw_gtfs_trips: load GTFS first")
	}

	tripsTable := "raw_gtfs_trips"
	if db.TableExists("agg_active_trips") {
		tripsTable = "agg_active_trips"
		log.Debug().Msg("Restricting route stats to active trips")
	}

	query := fmt.Sprintf(`
		SELECT t.route_id, t.direction_id, st.stop_id, st.departure_time
		FROM raw_gtfs_stop_times st
		JOIN %s t ON t.trip_id = st.trip_id
		WHERE st.departure_time != ''`, tripsTable)

	rows, err := db.SQL.Query(query)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	departures := map[directionKey]map[string][]float64{}
	for rows.Next() {
		var routeID, stopID, departureTime string
		var directionID int
		if err := rows.Scan(&routeID, &directionID, &stopID, &departureTime); err != nil {
			return nil, err
		}

		minutes, err := gtfs.TimeToMinutes(departureTime)
		if err != nil {
			continue
		}

		key := directionKey{RouteID: routeID, DirectionID: directionID}
		if departures[key] == nil {
			departures[key] = map[string][]float64{}
		}
		departures[key][stopID] = append(departures[key][stopID], minutes)
	}

	return departures, rows.Err()
}

func busiestStop(stops map[string][]float64) stopDepartures {
	var busiest stopDepartures
	for stopID, minutes := range stops {
		if len(minutes) > len(busiest.Minutes) ||
			(len(minutes) == len(busiest.Minutes) && stopID < busiest.StopID) {
			busiest = stopDepartures{StopID: stopID, Minutes: minutes}
		}
	}

	return busiest
}
