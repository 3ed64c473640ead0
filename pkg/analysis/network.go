package analysis

import (
	"sort"

	"github.com/rs/zerolog/log"
	"github.com/transitwpg/transitwpg/pkg/database"
	"gonum.org/v1/gonum/graph/community"
	"gonum.org/v1/gonum/graph/network"
	"gonum.org/v1/gonum/graph/simple"
	"gonum.org/v1/gonum/graph/topo"
)

// stopGraph is the transit network as a weighted directed graph, with an
// undirected projection for community detection, built fresh per call
// from raw_gtfs_edges_weighted.
type stopGraph struct {
	directed   *simple.WeightedDirectedGraph
	undirected *simple.WeightedUndirectedGraph
	ids        map[string]int64
	stops      map[int64]string
}

func buildStopGraph(db *database.Database) (*stopGraph, error) {
	if !db.TableExists("raw_gtfs_edges_weighted") {
		log.Warn().Msg("Weighted edges missing, run the graph stage first")
		return nil, nil
	}

	rows, err := db.SQL.Query("SELECT from_stop_id, to_stop_id, trip_count FROM raw_gtfs_edges_weighted")
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	g := &stopGraph{
		directed:   simple.NewWeightedDirectedGraph(0, 0),
		undirected: simple.NewWeightedUndirectedGraph(0, 0),
		ids:        map[string]int64{},
		stops:      map[int64]string{},
	}

	node := func(stopID string) int64 {
		if id, ok := g.ids[stopID]; ok {
			return id
		}
		id := int64(len(g.ids))
		g.ids[stopID] = id
		g.stops[id] = stopID
		g.directed.AddNode(simple.Node(id))
		g.undirected.AddNode(simple.Node(id))
		return id
	}

	for rows.Next() {
		var from, to string
		var tripCount float64
		if err := rows.Scan(&from, &to, &tripCount); err != nil {
			return nil, err
		}
		if from == to {
			continue
		}

		fromID, toID := node(from), node(to)
		g.directed.SetWeightedEdge(simple.WeightedEdge{
			F: simple.Node(fromID), T: simple.Node(toID), W: tripCount,
		})

		// Undirected projection sums both directions
		weight := tripCount
		if existing := g.undirected.WeightedEdge(fromID, toID); existing != nil {
			weight += existing.Weight()
		}
		g.undirected.SetWeightedEdge(simple.WeightedEdge{
			F: simple.Node(fromID), T: simple.Node(toID), W: weight,
		})
	}

	return g, rows.Err()
}

// DegreeRow is one stop's degree centrality.
type DegreeRow struct {
	StopID      string `json:"stop_id"`
	InDegree    int    `json:"in_degree"`
	OutDegree   int    `json:"out_degree"`
	TotalDegree int    `json:"total_degree"`
}

// DegreeCentrality computes in/out/total degree for every stop in the
// network, highest total first.
func DegreeCentrality(db *database.Database) ([]DegreeRow, error) {
	g, err := buildStopGraph(db)
	if err != nil || g == nil {
		return nil, err
	}

	var degrees []DegreeRow
	nodes := g.directed.Nodes()
	for nodes.Next() {
		id := nodes.Node().ID()
		in := g.directed.To(id).Len()
		out := g.directed.From(id).Len()
		degrees = append(degrees, DegreeRow{
			StopID:      g.stops[id],
			InDegree:    in,
			OutDegree:   out,
			TotalDegree: in + out,
		})
	}

	sort.Slice(degrees, func(i, j int) bool {
		if degrees[i].TotalDegree != degrees[j].TotalDegree {
			return degrees[i].TotalDegree > degrees[j].TotalDegree
		}
		return degrees[i].StopID < degrees[j].StopID
	})

	return degrees, nil
}

// NetworkStats are whole-network summary metrics.
type NetworkStats struct {
	Nodes      int     `json:"nodes"`
	Edges      int     `json:"edges"`
	Density    float64 `json:"density"`
	AvgDegree  float64 `json:"avg_degree"`
	Components int     `json:"components"`
}

// ComputeNetworkStats returns node/edge counts, directed density, average
// total degree and the number of weakly connected components.
func ComputeNetworkStats(db *database.Database) (NetworkStats, error) {
	g, err := buildStopGraph(db)
	if err != nil || g == nil {
		return NetworkStats{}, err
	}

	nodes := g.directed.Nodes().Len()
	edges := g.directed.Edges().Len()

	stats := NetworkStats{Nodes: nodes, Edges: edges}
	if nodes > 1 {
		stats.Density = float64(edges) / float64(nodes*(nodes-1))
		stats.AvgDegree = 2 * float64(edges) / float64(nodes)
	}
	stats.Components = len(topo.ConnectedComponents(g.undirected))

	return stats, nil
}

// Hub is a high-degree stop with its location.
type Hub struct {
	StopID      string  `json:"stop_id"`
	StopName    string  `json:"stop_name"`
	TotalDegree int     `json:"total_degree"`
	Lat         float64 `json:"lat"`
	Lon         float64 `json:"lon"`
}

// TopHubs returns the n best-connected stops with names and coordinates.
func TopHubs(db *database.Database, n int) ([]Hub, error) {
	degrees, err := DegreeCentrality(db)
	if err != nil || len(degrees) == 0 {
		return nil, err
	}

	if n > 0 && len(degrees) > n {
		degrees = degrees[:n]
	}

	hubs := make([]Hub, 0, len(degrees))
	for _, degree := range degrees {
		hub := Hub{StopID: degree.StopID, TotalDegree: degree.TotalDegree}

		if db.TableExists("raw_gtfs_stops") {
			db.SQL.QueryRow(
				"SELECT stop_name, stop_lat, stop_lon FROM raw_gtfs_stops WHERE stop_id = ?",
				degree.StopID,
			).Scan(&hub.StopName, &hub.Lat, &hub.Lon)
		}

		hubs = append(hubs, hub)
	}

	return hubs, nil
}

// BetweennessRow is one stop's betweenness centrality.
type BetweennessRow struct {
	StopID      string  `json:"stop_id"`
	Betweenness float64 `json:"betweenness"`
}

// BetweennessCentrality identifies critical transfer stops: those sitting
// on many shortest paths between other stops.
func BetweennessCentrality(db *database.Database) ([]BetweennessRow, error) {
	g, err := buildStopGraph(db)
	if err != nil || g == nil {
		return nil, err
	}

	scores := network.Betweenness(g.directed)

	results := make([]BetweennessRow, 0, len(scores))
	for id, score := range scores {
		results = append(results, BetweennessRow{StopID: g.stops[id], Betweenness: score})
	}

	sort.Slice(results, func(i, j int) bool {
		if results[i].Betweenness != results[j].Betweenness {
			return results[i].Betweenness > results[j].Betweenness
		}
		return results[i].StopID < results[j].StopID
	})

	return results, nil
}

// StopCommunity assigns a stop to a detected community.
type StopCommunity struct {
	StopID    string `json:"stop_id"`
	Community int    `json:"community"`
}

// DetectCommunities runs Louvain modularity maximization on the
// undirected projection. Communities are numbered by descending size.
func DetectCommunities(db *database.Database) ([]StopCommunity, error) {
	g, err := buildStopGraph(db)
	if err != nil || g == nil {
		return nil, err
	}

	reduced := community.Modularize(g.undirected, 1.0, nil)
	groups := reduced.Communities()

	sort.Slice(groups, func(i, j int) bool { return len(groups[i]) > len(groups[j]) })

	var assignments []StopCommunity
	for index, group := range groups {
		for _, member := range group {
			assignments = append(assignments, StopCommunity{
				StopID:    g.stops[member.ID()],
				Community: index,
			})
		}
	}

	sort.Slice(assignments, func(i, j int) bool { return assignments[i].StopID < assignments[j].StopID })

	log.Info().Int("communities", len(groups)).Msg("Detected network communities")

	return assignments, nil
}
