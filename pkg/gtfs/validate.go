package gtfs

import (
	"fmt"
	"regexp"
	"strings"

	"github.com/transitwpg/transitwpg/pkg/config"
)

// maxReportedRows caps how many offending rows a validation error lists.
const maxReportedRows = 10

var timePattern = regexp.MustCompile(`^(\d{1,2}):([0-5]\d):([0-5]\d)$`)

// ValidTime reports whether a GTFS time-of-day string is well formed.
// Hours from 24 up to (but excluding) 48 are valid next-day service,
// not an error. Empty values are allowed (untimed stops).
func ValidTime(value string) bool {
	if value == "" {
		return true
	}

	match := timePattern.FindStringSubmatch(value)
	if match == nil {
		return false
	}

	var hour int
	fmt.Sscanf(match[1], "%d", &hour)

	return hour < 48
}

type validationFailure struct {
	row    int
	detail string
}

func validationError(name string, failures []validationFailure) error {
	if len(failures) == 0 {
		return nil
	}

	reported := failures
	if len(reported) > maxReportedRows {
		reported = reported[:maxReportedRows]
	}

	var lines []string
	for _, failure := range reported {
		lines = append(lines, fmt.Sprintf("row %d: %s", failure.row, failure.detail))
	}

	return fmt.Errorf("validation failed for %s (%d offending rows):\n  %s",
		name, len(failures), strings.Join(lines, "\n  "))
}

// ValidateStops checks identifiers and that coordinates fall inside the
// configured bounding box.
func ValidateStops(stops []Stop, bounds config.BoundingBox) error {
	var failures []validationFailure
	for i, stop := range stops {
		switch {
		case stop.ID == "":
			failures = append(failures, validationFailure{i, "missing stop_id"})
		case stop.Lat < bounds.MinLat || stop.Lat > bounds.MaxLat:
			failures = append(failures, validationFailure{i, fmt.Sprintf("stop %s latitude %f outside bounds", stop.ID, stop.Lat)})
		case stop.Lon < bounds.MinLon || stop.Lon > bounds.MaxLon:
			failures = append(failures, validationFailure{i, fmt.Sprintf("stop %s longitude %f outside bounds", stop.ID, stop.Lon)})
		}
	}

	return validationError("stops", failures)
}

func ValidateRoutes(routes []Route) error {
	var failures []validationFailure
	for i, route := range routes {
		if route.ID == "" {
			failures = append(failures, validationFailure{i, "missing route_id"})
		}
	}

	return validationError("routes", failures)
}

func ValidateTrips(trips []Trip) error {
	var failures []validationFailure
	for i, trip := range trips {
		switch {
		case trip.ID == "":
			failures = append(failures, validationFailure{i, "missing trip_id"})
		case trip.RouteID == "":
			failures = append(failures, validationFailure{i, fmt.Sprintf("trip %s missing route_id", trip.ID)})
		case trip.ServiceID == "":
			failures = append(failures, validationFailure{i, fmt.Sprintf("trip %s missing service_id", trip.ID)})
		}
	}

	return validationError("trips", failures)
}

func ValidateStopTimes(stopTimes []StopTime) error {
	var failures []validationFailure
	for i, stopTime := range stopTimes {
		switch {
		case stopTime.TripID == "":
			failures = append(failures, validationFailure{i, "missing trip_id"})
		case stopTime.StopID == "":
			failures = append(failures, validationFailure{i, "missing stop_id"})
		case stopTime.StopSequence < 0:
			failures = append(failures, validationFailure{i, fmt.Sprintf("negative stop_sequence %d", stopTime.StopSequence)})
		case !ValidTime(stopTime.ArrivalTime):
			failures = append(failures, validationFailure{i, fmt.Sprintf("invalid arrival_time %q", stopTime.ArrivalTime)})
		case !ValidTime(stopTime.DepartureTime):
			failures = append(failures, validationFailure{i, fmt.Sprintf("invalid departure_time %q", stopTime.DepartureTime)})
		}
	}

	return validationError("stop_times", failures)
}
