package gtfs

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestTimeToMinutes(t *testing.T) {
	minutes, err := TimeToMinutes("08:10:30")

	require.NoError(t, err)
	assert.InDelta(t, 490.5, minutes, 0.001)
}

func TestTimeToMinutesAfterMidnight(t *testing.T) {
	minutes, err := TimeToMinutes("25:10:00")

	require.NoError(t, err)
	assert.InDelta(t, 1510, minutes, 0.001)
}

func TestTimeToMinutesRejectsGarbage(t *testing.T) {
	for _, raw := range []string{"", "8:00", "a:b:c"} {
		_, err := TimeToMinutes(raw)
		assert.Error(t, err, raw)
	}
}

func TestHeadways(t *testing.T) {
	departures := []float64{480, 490, 505} // 08:00, 08:10, 08:25

	assert.Equal(t, []float64{10, 15}, Headways(departures))
}

func TestHeadwaysSingleDeparture(t *testing.T) {
	assert.Nil(t, Headways([]float64{480}))
}
