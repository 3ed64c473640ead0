package analysis

import (
	"math"
	"sort"

	"gonum.org/v1/gonum/stat"
)

// Percentile computes the p-th percentile (0-100) with linear
// interpolation between closest ranks, matching the default estimator of
// most numerical tooling. Input order does not matter.
func Percentile(values []float64, p float64) float64 {
	if len(values) == 0 {
		return 0
	}

	sorted := make([]float64, len(values))
	copy(sorted, values)
	sort.Float64s(sorted)

	if p <= 0 {
		return sorted[0]
	}
	if p >= 100 {
		return sorted[len(sorted)-1]
	}

	rank := p / 100 * float64(len(sorted)-1)
	lower := int(rank)
	fraction := rank - float64(lower)

	if lower+1 >= len(sorted) {
		return sorted[lower]
	}

	return sorted[lower] + fraction*(sorted[lower+1]-sorted[lower])
}

// IQRBounds returns the Tukey fences (1.5 * IQR beyond the quartiles).
func IQRBounds(values []float64) (float64, float64) {
	q1 := Percentile(values, 25)
	q3 := Percentile(values, 75)
	iqr := q3 - q1

	return q1 - 1.5*iqr, q3 + 1.5*iqr
}

// ZScores returns the z-score of every value. A zero standard deviation
// yields all zeros.
func ZScores(values []float64) []float64 {
	mean, stddev := stat.MeanStdDev(values, nil)

	scores := make([]float64, len(values))
	if stddev == 0 || math.IsNaN(stddev) {
		return scores
	}

	for i, value := range values {
		scores[i] = (value - mean) / stddev
	}

	return scores
}
