package analysis

import (
	"database/sql"
	"fmt"
	"sort"

	"github.com/rs/zerolog/log"
	"github.com/transitwpg/transitwpg/pkg/database"
	"github.com/transitwpg/transitwpg/pkg/gtfs"
	"gonum.org/v1/gonum/stat"
)

// RouteFrequency is one route's service-level summary across directions.
type RouteFrequency struct {
	RouteID     string  `json:"route_id"`
	NumTrips    int     `json:"num_trips"`
	MeanHeadway float64 `json:"mean_headway"`
	MinHeadway  float64 `json:"min_headway"`
	MaxHeadway  float64 `json:"max_headway"`
	Span        string  `json:"service_span,omitempty"`
	HasHeadway  bool    `json:"-"`
}

// ComputeRouteFrequency returns per-route trip counts and headway
// statistics. It prefers the precomputed agg_route_stats table and falls
// back to deriving headways straight from stop_times when the aggregate
// has not been built yet.
func ComputeRouteFrequency(db *database.Database) ([]RouteFrequency, error) {
	if db.TableExists("agg_route_stats") {
		return routeFrequencyFromStats(db)
	}

	log.Warn().Msg("agg_route_stats missing, computing headways from stop_times")

	return routeFrequencyFromStopTimes(db)
}

func routeFrequencyFromStats(db *database.Database) ([]RouteFrequency, error) {
	rows, err := db.SQL.Query(`
		SELECT route_id,
			SUM(num_trips),
			AVG(mean_headway),
			MIN(min_headway),
			MAX(max_headway),
			MIN(start_time),
			MAX(end_time)
		FROM agg_route_stats
		GROUP BY route_id
		ORDER BY route_id`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var frequencies []RouteFrequency
	for rows.Next() {
		var frequency RouteFrequency
		var mean, lo, hi, start, end sql.NullFloat64
		if err := rows.Scan(&frequency.RouteID, &frequency.NumTrips, &mean, &lo, &hi, &start, &end); err != nil {
			return nil, err
		}

		frequency.HasHeadway = mean.Valid
		frequency.MeanHeadway = mean.Float64
		frequency.MinHeadway = lo.Float64
		frequency.MaxHeadway = hi.Float64
		if start.Valid && end.Valid {
			frequency.Span = ServiceSpan(start.Float64, end.Float64)
		}
		frequencies = append(frequencies, frequency)
	}

	return frequencies, rows.Err()
}

func routeFrequencyFromStopTimes(db *database.Database) ([]RouteFrequency, error) {
	if !db.TableExists("raw_gtfs_stop_times") || !db.TableExists("raw_gtfs_trips") {
		log.Warn().Msg("GTFS tables missing, no route frequency available")
		return nil, nil
	}

	rows, err := db.SQL.Query(`
		SELECT t.route_id, st.stop_id, st.departure_time
		FROM raw_gtfs_stop_times st
		JOIN raw_gtfs_trips t ON t.trip_id = st.trip_id
		WHERE st.departure_time != ''`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	type routeStop struct{ routeID, stopID string }
	departures := map[routeStop][]float64{}

	for rows.Next() {
		var routeID, stopID, departureTime string
		if err := rows.Scan(&routeID, &stopID, &departureTime); err != nil {
			return nil, err
		}

		minutes, err := gtfs.TimeToMinutes(departureTime)
		if err != nil {
			continue
		}

		key := routeStop{routeID, stopID}
		departures[key] = append(departures[key], minutes)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}

	// Busiest stop per route stands in for its headway timepoint,
	// lexicographically first stop on ties
	type timepoint struct {
		stopID  string
		minutes []float64
	}
	busiest := map[string]timepoint{}
	for key, minutes := range departures {
		current := busiest[key.routeID]
		if len(minutes) > len(current.minutes) ||
			(len(minutes) == len(current.minutes) && key.stopID < current.stopID) {
			busiest[key.routeID] = timepoint{stopID: key.stopID, minutes: minutes}
		}
	}

	var frequencies []RouteFrequency
	for routeID, stop := range busiest {
		minutes := stop.minutes
		sort.Float64s(minutes)
		frequency := RouteFrequency{RouteID: routeID, NumTrips: len(minutes)}
		frequency.Span = ServiceSpan(minutes[0], minutes[len(minutes)-1])

		if headways := gtfs.Headways(minutes); len(headways) > 0 {
			frequency.HasHeadway = true
			frequency.MeanHeadway = stat.Mean(headways, nil)
			frequency.MinHeadway = headways[0]
			frequency.MaxHeadway = headways[0]
			for _, h := range headways {
				frequency.MinHeadway = min(frequency.MinHeadway, h)
				frequency.MaxHeadway = max(frequency.MaxHeadway, h)
			}
		}

		frequencies = append(frequencies, frequency)
	}

	sort.Slice(frequencies, func(i, j int) bool { return frequencies[i].RouteID < frequencies[j].RouteID })

	return frequencies, nil
}

// StopHeadway is headway statistics for one stop and direction.
type StopHeadway struct {
	StopID      string  `json:"stop_id"`
	DirectionID int     `json:"direction_id"`
	Departures  int     `json:"departures"`
	MeanHeadway float64 `json:"mean_headway"`
	MinHeadway  float64 `json:"min_headway"`
	MaxHeadway  float64 `json:"max_headway"`
}

// ComputeStopHeadways derives per-direction headways at a single stop
// from its scheduled departures.
func ComputeStopHeadways(db *database.Database, stopID string) ([]StopHeadway, error) {
	if !db.TableExists("raw_gtfs_stop_times") || !db.TableExists("raw_gtfs_trips") {
		log.Warn().Msg("GTFS tables missing, no stop headways available")
		return nil, nil
	}

	rows, err := db.SQL.Query(`
		SELECT t.direction_id, st.departure_time
		FROM raw_gtfs_stop_times st
		JOIN raw_gtfs_trips t ON t.trip_id = st.trip_id
		WHERE st.stop_id = ? AND st.departure_time != ''`, stopID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	byDirection := map[int][]float64{}
	for rows.Next() {
		var directionID int
		var departureTime string
		if err := rows.Scan(&directionID, &departureTime); err != nil {
			return nil, err
		}

		minutes, err := gtfs.TimeToMinutes(departureTime)
		if err != nil {
			continue
		}
		byDirection[directionID] = append(byDirection[directionID], minutes)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}

	directions := make([]int, 0, len(byDirection))
	for direction := range byDirection {
		directions = append(directions, direction)
	}
	sort.Ints(directions)

	var results []StopHeadway
	for _, direction := range directions {
		minutes := byDirection[direction]
		sort.Float64s(minutes)

		result := StopHeadway{StopID: stopID, DirectionID: direction, Departures: len(minutes)}
		if headways := gtfs.Headways(minutes); len(headways) > 0 {
			result.MeanHeadway = stat.Mean(headways, nil)
			result.MinHeadway = headways[0]
			result.MaxHeadway = headways[0]
			for _, h := range headways {
				result.MinHeadway = min(result.MinHeadway, h)
				result.MaxHeadway = max(result.MaxHeadway, h)
			}
		}

		results = append(results, result)
	}

	return results, nil
}

// HourlyDepartures is the network-wide departure count for one hour of
// the service day (0-23, after-midnight times folded in).
type HourlyDepartures struct {
	Hour       int `json:"hour"`
	Departures int `json:"departures"`
}

// HourlyProfile returns the departures-per-hour profile across the whole
// network, using the hourly_departures_by_route view when available.
func HourlyProfile(db *database.Database) ([]HourlyDepartures, error) {
	if !db.TableExists("hourly_departures_by_route") {
		log.Warn().Msg("hourly_departures_by_route missing, run the views stage first")
		return nil, nil
	}

	rows, err := db.SQL.Query(`
		SELECT hour, SUM(departures)
		FROM hourly_departures_by_route
		GROUP BY hour
		ORDER BY hour`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var profile []HourlyDepartures
	for rows.Next() {
		var entry HourlyDepartures
		if err := rows.Scan(&entry.Hour, &entry.Departures); err != nil {
			return nil, err
		}
		profile = append(profile, entry)
	}

	return profile, rows.Err()
}

// FrequencySummary is the network-level frequency overview.
type FrequencySummary struct {
	Routes           int     `json:"routes"`
	MeanHeadway      float64 `json:"mean_headway_minutes"`
	RoutesUnder15Min int     `json:"routes_under_15min"`
	RoutesUnder30Min int     `json:"routes_under_30min"`
}

// ComputeFrequencySummary summarizes route frequency across the network.
func ComputeFrequencySummary(db *database.Database) (FrequencySummary, error) {
	frequencies, err := ComputeRouteFrequency(db)
	if err != nil || len(frequencies) == 0 {
		return FrequencySummary{}, err
	}

	summary := FrequencySummary{Routes: len(frequencies)}

	var headways []float64
	for _, frequency := range frequencies {
		if !frequency.HasHeadway {
			continue
		}
		headways = append(headways, frequency.MeanHeadway)
		if frequency.MeanHeadway < 15 {
			summary.RoutesUnder15Min++
		}
		if frequency.MeanHeadway < 30 {
			summary.RoutesUnder30Min++
		}
	}

	if len(headways) > 0 {
		summary.MeanHeadway = stat.Mean(headways, nil)
	}

	return summary, nil
}

// RoutePerformanceRow joins scheduled service with observed pass-up and
// on-time data from the open data portal.
type RoutePerformanceRow struct {
	RouteID       string  `json:"route_id"`
	ShortName     string  `json:"route_short_name"`
	LongName      string  `json:"route_long_name"`
	PassUps       int     `json:"pass_ups"`
	MeanDeviation float64 `json:"mean_deviation_seconds"`
	OnTimeShare   float64 `json:"on_time_share"`
}

// RoutePerformance reads the route_performance view.
func RoutePerformance(db *database.Database) ([]RoutePerformanceRow, error) {
	if !db.TableExists("route_performance") {
		log.Warn().Msg("route_performance missing, run the views stage first")
		return nil, nil
	}

	rows, err := db.SQL.Query(`
		SELECT route_id, route_short_name, route_long_name,
			pass_up_count, mean_deviation_seconds, on_time_share
		FROM route_performance
		ORDER BY route_id`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var results []RoutePerformanceRow
	for rows.Next() {
		var row RoutePerformanceRow
		var passUps sql.NullInt64
		var deviation, share sql.NullFloat64
		if err := rows.Scan(&row.RouteID, &row.ShortName, &row.LongName, &passUps, &deviation, &share); err != nil {
			return nil, err
		}

		row.PassUps = int(passUps.Int64)
		row.MeanDeviation = deviation.Float64
		row.OnTimeShare = share.Float64
		results = append(results, row)
	}

	return results, rows.Err()
}

// ServiceSpan formats a route's service window from minutes after
// midnight, for human-readable CLI output.
func ServiceSpan(startMinutes float64, endMinutes float64) string {
	format := func(minutes float64) string {
		total := int(minutes)
		return fmt.Sprintf("%02d:%02d", total/60, total%60)
	}

	return format(startMinutes) + "-" + format(endMinutes)
}
