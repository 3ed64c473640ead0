package gtfs

import (
	"fmt"
	"time"
)

// ParseDate converts a GTFS 8-digit date (20250629) to ISO form
// (2025-06-29). Already-hyphenated values pass through unchanged.
func ParseDate(raw string) (string, error) {
	if len(raw) == 10 && raw[4] == '-' && raw[7] == '-' {
		return raw, nil
	}

	if len(raw) != 8 {
		return "", fmt.Errorf("invalid GTFS date %q: want 8 digits", raw)
	}
	for _, r := range raw {
		if r < '0' || r > '9' {
			return "", fmt.Errorf("invalid GTFS date %q: want 8 digits", raw)
		}
	}

	return raw[:4] + "-" + raw[4:6] + "-" + raw[6:8], nil
}

// DayColumns maps time.Weekday onto GTFS calendar column names.
var DayColumns = [7]string{
	"sunday", "monday", "tuesday", "wednesday", "thursday", "friday", "saturday",
}

// DayColumn returns the GTFS calendar day-of-week column for an ISO date.
func DayColumn(isoDate string) (string, error) {
	parsed, err := time.Parse("2006-01-02", isoDate)
	if err != nil {
		return "", fmt.Errorf("invalid date %q: use YYYY-MM-DD", isoDate)
	}

	return DayColumns[parsed.Weekday()], nil
}
