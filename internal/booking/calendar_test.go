package booking

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCandidateDates(t *testing.T) {
	// Wednesday evening still counts as today.
	now := time.Date(2025, 1, 8, 23, 30, 0, 0, time.UTC)

	dates := CandidateDates(now)
	require.Len(t, dates, CandidateDays)

	assert.Equal(t, Option{Value: "2025-01-08", Label: "Today"}, dates[0])
	assert.Equal(t, Option{Value: "2025-01-09", Label: "Tomorrow"}, dates[1])
	assert.Equal(t, Option{Value: "2025-01-10", Label: "Friday"}, dates[2])
	assert.Equal(t, Option{Value: "2025-01-14", Label: "Tuesday"}, dates[6])
}

func TestCandidateDatesCrossMonth(t *testing.T) {
	dates := CandidateDates(time.Date(2024, 2, 27, 8, 0, 0, 0, time.UTC))
	assert.Equal(t, "2024-02-29", dates[2].Value)
	assert.Equal(t, "2024-03-04", dates[6].Value)
}

func TestParseClock(t *testing.T) {
	tests := []struct {
		in   string
		want bool
	}{
		{"00:00", true},
		{"23:59", true},
		{" 09:15 ", true},
		{"24:00", false},
		{"12:60", false},
		{"9:00", false},
		{"09-00", false},
		{"+1:00", false},
		{"0900", false},
		{"", false},
	}

	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			_, ok := ParseClock(tt.in)
			assert.Equal(t, tt.want, ok)
		})
	}
}

func TestParseDate(t *testing.T) {
	loc := time.FixedZone("MSK", 3*60*60)
	d, err := ParseDate("2025-01-10", loc)
	require.NoError(t, err)
	assert.Equal(t, loc, d.Location())
	assert.Equal(t, 10, d.Day())

	_, err = ParseDate("2025-13-01", loc)
	assert.Error(t, err)
}

func TestParseVisitType(t *testing.T) {
	for _, raw := range []string{"primary", "Primary", " REPEAT ", "Vaccination", "consultation"} {
		_, ok := ParseVisitType(raw)
		assert.True(t, ok, raw)
	}
	_, ok := ParseVisitType("checkup")
	assert.False(t, ok)
}
