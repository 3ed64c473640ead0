package gtfs

import (
	"fmt"
	"strconv"
	"strings"
)

// TimeToMinutes converts a GTFS time-of-day string to minutes after
// midnight. Hours past 24 keep counting (25:10:00 is 1510), matching how
// GTFS models after-midnight service.
func TimeToMinutes(value string) (float64, error) {
	parts := strings.Split(value, ":")
	if len(parts) != 3 {
		return 0, fmt.Errorf("invalid GTFS time %q", value)
	}

	hours, err := strconv.Atoi(parts[0])
	if err != nil {
		return 0, fmt.Errorf("invalid GTFS time %q", value)
	}
	minutes, err := strconv.Atoi(parts[1])
	if err != nil {
		return 0, fmt.Errorf("invalid GTFS time %q", value)
	}
	seconds, err := strconv.Atoi(parts[2])
	if err != nil {
		return 0, fmt.Errorf("invalid GTFS time %q", value)
	}

	return float64(hours)*60 + float64(minutes) + float64(seconds)/60, nil
}

// Headways returns the gaps in minutes between consecutive departures.
// The input must already be sorted.
func Headways(departureMinutes []float64) []float64 {
	if len(departureMinutes) < 2 {
		return nil
	}

	headways := make([]float64, 0, len(departureMinutes)-1)
	for i := 1; i < len(departureMinutes); i++ {
		headways = append(headways, departureMinutes[i]-departureMinutes[i-1])
	}

	return headways
}
