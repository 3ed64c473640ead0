package analysis

import (
	"github.com/rs/zerolog/log"
	"github.com/transitwpg/transitwpg/pkg/database"
)

// Edge is one weighted stop-to-stop connection.
type Edge struct {
	FromStopID string  `json:"from_stop_id"`
	ToStopID   string  `json:"to_stop_id"`
	Weight     float64 `json:"weight"`
	RouteCount int     `json:"route_count"`
}

// StopRow is a stop with its location.
type StopRow struct {
	StopID   string  `json:"stop_id"`
	StopName string  `json:"stop_name"`
	Lat      float64 `json:"stop_lat"`
	Lon      float64 `json:"stop_lon"`
}

// RouteRow is a route definition.
type RouteRow struct {
	RouteID   string `json:"route_id"`
	ShortName string `json:"route_short_name"`
	LongName  string `json:"route_long_name"`
	RouteType int    `json:"route_type"`
}

// Edges returns the network edges with trip counts as weights.
func Edges(db *database.Database) ([]Edge, error) {
	if !db.TableExists("raw_gtfs_edges_weighted") {
		log.Warn().Msg("Weighted edges missing, run the graph stage first")
		return nil, nil
	}

	rows, err := db.SQL.Query(`
		SELECT from_stop_id, to_stop_id, trip_count, route_count
		FROM raw_gtfs_edges_weighted
		ORDER BY from_stop_id, to_stop_id`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var edges []Edge
	for rows.Next() {
		var edge Edge
		if err := rows.Scan(&edge.FromStopID, &edge.ToStopID, &edge.Weight, &edge.RouteCount); err != nil {
			return nil, err
		}
		edges = append(edges, edge)
	}

	return edges, rows.Err()
}

// Stops returns every loaded stop with coordinates.
func Stops(db *database.Database) ([]StopRow, error) {
	if !db.TableExists("raw_gtfs_stops") {
		log.Warn().Msg("Stops missing, load GTFS first")
		return nil, nil
	}

	rows, err := db.SQL.Query(`
		SELECT stop_id, stop_name, stop_lat, stop_lon
		FROM raw_gtfs_stops
		ORDER BY stop_id`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var stops []StopRow
	for rows.Next() {
		var stop StopRow
		if err := rows.Scan(&stop.StopID, &stop.StopName, &stop.Lat, &stop.Lon); err != nil {
			return nil, err
		}
		stops = append(stops, stop)
	}

	return stops, rows.Err()
}

// Routes returns every loaded route definition.
func Routes(db *database.Database) ([]RouteRow, error) {
	if !db.TableExists("raw_gtfs_routes") {
		log.Warn().Msg("Routes missing, load GTFS first")
		return nil, nil
	}

	rows, err := db.SQL.Query(`
		SELECT route_id, route_short_name, route_long_name, route_type
		FROM raw_gtfs_routes
		ORDER BY route_id`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var routes []RouteRow
	for rows.Next() {
		var route RouteRow
		if err := rows.Scan(&route.RouteID, &route.ShortName, &route.LongName, &route.RouteType); err != nil {
			return nil, err
		}
		routes = append(routes, route)
	}

	return routes, rows.Err()
}
