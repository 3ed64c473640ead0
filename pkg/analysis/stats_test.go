package analysis

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestPercentileInterpolates(t *testing.T) {
	values := []float64{0, 2, 10, 100}

	assert.InDelta(t, 1.5, Percentile(values, 25), 0.001)
	assert.InDelta(t, 6.0, Percentile(values, 50), 0.001)
	assert.InDelta(t, 32.5, Percentile(values, 75), 0.001)
}

func TestPercentileBounds(t *testing.T) {
	values := []float64{5, 1, 3}

	assert.Equal(t, 1.0, Percentile(values, 0))
	assert.Equal(t, 5.0, Percentile(values, 100))
	assert.Zero(t, Percentile(nil, 50))
}

func TestIQRBounds(t *testing.T) {
	values := []float64{1, 2, 3, 4, 100}

	lower, upper := IQRBounds(values)

	assert.InDelta(t, -1.0, lower, 0.001)
	assert.InDelta(t, 7.0, upper, 0.001)
}

func TestZScoresConstantInput(t *testing.T) {
	scores := ZScores([]float64{3, 3, 3})

	assert.Equal(t, []float64{0, 0, 0}, scores)
}
