package gtfs

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/transitwpg/transitwpg/pkg/config"
)

func TestValidTime(t *testing.T) {
	valid := []string{"", "08:00:00", "8:05:59", "23:59:59", "24:00:00", "47:59:59"}
	for _, value := range valid {
		assert.True(t, ValidTime(value), value)
	}

	invalid := []string{"48:00:00", "08:60:00", "08:00:60", "8:00", "noon"}
	for _, value := range invalid {
		assert.False(t, ValidTime(value), value)
	}
}

func TestValidateStopsBounds(t *testing.T) {
	stops := []Stop{
		{ID: "1", Lat: 49.89, Lon: -97.14},
		{ID: "2", Lat: 51.00, Lon: -97.14}, // north of the city
	}

	err := ValidateStops(stops, config.WinnipegBounds)

	assert.ErrorContains(t, err, "stop 2")
	assert.ErrorContains(t, err, "latitude")
}

func TestValidateStopsPassesInsideBounds(t *testing.T) {
	stops := []Stop{{ID: "1", Lat: 49.89, Lon: -97.14}}

	assert.NoError(t, ValidateStops(stops, config.WinnipegBounds))
}

func TestValidateStopTimesReportsAtMostTenRows(t *testing.T) {
	var stopTimes []StopTime
	for i := 0; i < 25; i++ {
		stopTimes = append(stopTimes, StopTime{TripID: "t", StopID: "s", ArrivalTime: "99:00:00"})
	}

	err := ValidateStopTimes(stopTimes)

	assert.ErrorContains(t, err, "25 offending rows")
	assert.ErrorContains(t, err, "row 9:")
	assert.NotContains(t, err.Error(), "row 10:")
}

func TestValidateTrips(t *testing.T) {
	err := ValidateTrips([]Trip{{ID: "t1", RouteID: "", ServiceID: "s"}})

	assert.ErrorContains(t, err, "missing route_id")
}
