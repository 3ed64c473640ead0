package analysis

import (
	"database/sql"
	"sort"

	"github.com/rs/zerolog/log"
	"github.com/transitwpg/transitwpg/pkg/database"
	"gonum.org/v1/gonum/stat"
)

// Coverage thresholds in stops per square kilometre.
const (
	CoverageHighThreshold   = 5.0
	CoverageMediumThreshold = 1.0
)

// Categorize buckets a stop density into High/Medium/Low coverage.
// Thresholds are inclusive: exactly 5.0 is High, exactly 1.0 is Medium.
func Categorize(density float64) string {
	switch {
	case density >= CoverageHighThreshold:
		return "High"
	case density >= CoverageMediumThreshold:
		return "Medium"
	default:
		return "Low"
	}
}

// AreaCoverage is one boundary area's stop coverage.
type AreaCoverage struct {
	ID          int     `json:"id"`
	Name        string  `json:"name"`
	AreaKm2     float64 `json:"area_km2"`
	StopCount   int     `json:"stop_count"`
	StopsPerKm2 float64 `json:"stops_per_km2"`
	HasDensity  bool    `json:"-"`
	Category    string  `json:"category"`
}

// CoverageStats summarizes coverage across all areas.
type CoverageStats struct {
	Areas         int     `json:"areas"`
	TotalStops    int     `json:"total_stops"`
	MeanDensity   float64 `json:"mean_density"`
	MedianDensity float64 `json:"median_density"`
	StddevDensity float64 `json:"stddev_density"`
	HighCoverage  int     `json:"high_coverage"`
	MedCoverage   int     `json:"medium_coverage"`
	LowCoverage   int     `json:"low_coverage"`
}

// StopsPerNeighbourhood returns per-neighbourhood coverage, densest first.
// A missing aggregate table is a warning and an empty result, not an
// error, so analysis commands degrade gracefully mid-pipeline.
func StopsPerNeighbourhood(db *database.Database) ([]AreaCoverage, error) {
	return areaCoverage(db, "agg_stops_per_neighbourhood")
}

// StopsPerCommunity returns per-community-area coverage, densest first.
func StopsPerCommunity(db *database.Database) ([]AreaCoverage, error) {
	return areaCoverage(db, "agg_stops_per_community")
}

func areaCoverage(db *database.Database, table string) ([]AreaCoverage, error) {
	if !db.TableExists(table) {
		log.Warn().Str("table", table).Msg("Coverage aggregate missing, run the graph stage first")
		return nil, nil
	}

	rows, err := db.SQL.Query("SELECT id, name, area_km2, stop_count, stops_per_km2 FROM " + table)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var areas []AreaCoverage
	for rows.Next() {
		var area AreaCoverage
		var density sql.NullFloat64
		if err := rows.Scan(&area.ID, &area.Name, &area.AreaKm2, &area.StopCount, &density); err != nil {
			return nil, err
		}

		area.HasDensity = density.Valid
		area.StopsPerKm2 = density.Float64
		area.Category = Categorize(area.StopsPerKm2)
		areas = append(areas, area)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}

	sort.Slice(areas, func(i, j int) bool {
		if areas[i].StopsPerKm2 != areas[j].StopsPerKm2 {
			return areas[i].StopsPerKm2 > areas[j].StopsPerKm2
		}
		return areas[i].Name < areas[j].Name
	})

	return areas, nil
}

// CoverageStatistics summarizes neighbourhood coverage.
func CoverageStatistics(db *database.Database) (CoverageStats, error) {
	areas, err := StopsPerNeighbourhood(db)
	if err != nil || len(areas) == 0 {
		return CoverageStats{}, err
	}

	stats := CoverageStats{Areas: len(areas)}

	var densities []float64
	for _, area := range areas {
		stats.TotalStops += area.StopCount
		if area.HasDensity {
			densities = append(densities, area.StopsPerKm2)
		}

		switch area.Category {
		case "High":
			stats.HighCoverage++
		case "Medium":
			stats.MedCoverage++
		default:
			stats.LowCoverage++
		}
	}

	if len(densities) > 0 {
		stats.MeanDensity = stat.Mean(densities, nil)
		stats.MedianDensity = Percentile(densities, 50)
		if len(densities) > 1 {
			stats.StddevDensity = stat.StdDev(densities, nil)
		}
	}

	return stats, nil
}

// Underserved returns the areas at or below the given density percentile.
func Underserved(db *database.Database, thresholdPercentile float64) ([]AreaCoverage, error) {
	areas, err := StopsPerNeighbourhood(db)
	if err != nil || len(areas) == 0 {
		return nil, err
	}

	var densities []float64
	for _, area := range areas {
		if area.HasDensity {
			densities = append(densities, area.StopsPerKm2)
		}
	}
	if len(densities) == 0 {
		return nil, nil
	}

	threshold := Percentile(densities, thresholdPercentile)

	var underserved []AreaCoverage
	for _, area := range areas {
		if area.HasDensity && area.StopsPerKm2 <= threshold {
			underserved = append(underserved, area)
		}
	}

	// Least served first
	sort.Slice(underserved, func(i, j int) bool {
		if underserved[i].StopsPerKm2 != underserved[j].StopsPerKm2 {
			return underserved[i].StopsPerKm2 < underserved[j].StopsPerKm2
		}
		return underserved[i].Name < underserved[j].Name
	})

	return underserved, nil
}

// CoverageOutlier is an area flagged by an outlier detector.
type CoverageOutlier struct {
	AreaCoverage
	Direction string  `json:"direction"` // "high" or "low"
	Score     float64 `json:"score"`
}

// CoverageOutliers flags unusually dense or sparse areas. Method is "iqr"
// (Tukey fences) or "zscore" (|z| > 2).
func CoverageOutliers(db *database.Database, method string) ([]CoverageOutlier, error) {
	areas, err := StopsPerNeighbourhood(db)
	if err != nil || len(areas) == 0 {
		return nil, err
	}

	var withDensity []AreaCoverage
	var densities []float64
	for _, area := range areas {
		if area.HasDensity {
			withDensity = append(withDensity, area)
			densities = append(densities, area.StopsPerKm2)
		}
	}

	var outliers []CoverageOutlier

	switch method {
	case "zscore":
		for i, score := range ZScores(densities) {
			if score > 2 {
				outliers = append(outliers, CoverageOutlier{withDensity[i], "high", score})
			} else if score < -2 {
				outliers = append(outliers, CoverageOutlier{withDensity[i], "low", score})
			}
		}
	default:
		lower, upper := IQRBounds(densities)
		for i, area := range withDensity {
			if densities[i] > upper {
				outliers = append(outliers, CoverageOutlier{area, "high", densities[i]})
			} else if densities[i] < lower {
				outliers = append(outliers, CoverageOutlier{area, "low", densities[i]})
			}
		}
	}

	return outliers, nil
}

// CompareCommunities ranks community areas by density for side-by-side
// comparison with the finer-grained neighbourhood view.
func CompareCommunities(db *database.Database) ([]AreaCoverage, error) {
	return StopsPerCommunity(db)
}
