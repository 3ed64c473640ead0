package gtfs

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseDateInsertsHyphens(t *testing.T) {
	parsed, err := ParseDate("20250629")

	require.NoError(t, err)
	assert.Equal(t, "2025-06-29", parsed)
}

func TestParseDatePassesThroughISO(t *testing.T) {
	parsed, err := ParseDate("2025-06-29")

	require.NoError(t, err)
	assert.Equal(t, "2025-06-29", parsed)
}

func TestParseDateRejectsGarbage(t *testing.T) {
	for _, raw := range []string{"", "2025", "2025/06/29", "2025062x"} {
		_, err := ParseDate(raw)
		assert.Error(t, err, raw)
	}
}

func TestDayColumn(t *testing.T) {
	// 2025-06-29 was a Sunday (the PTN launch)
	day, err := DayColumn("2025-06-29")
	require.NoError(t, err)
	assert.Equal(t, "sunday", day)

	day, err = DayColumn("2025-07-04")
	require.NoError(t, err)
	assert.Equal(t, "friday", day)
}

func TestDayColumnRejectsBadFormat(t *testing.T) {
	_, err := DayColumn("20250629")

	assert.Error(t, err)
}
