package timeutil

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSampleColumnNames(t *testing.T) {
	names := SampleColumnNames(100)
	require.Len(t, names, 100)
	assert.Equal(t, "sample_001", names[0])
	assert.Equal(t, "sample_100", names[99])
}

func TestHourRange(t *testing.T) {
	loc := MustLoadLocation(ChicagoZone)
	start := time.Date(2023, 6, 1, 7, 0, 0, 0, loc)
	hours := HourRange(start, 72)
	require.Len(t, hours, 72)
	assert.Equal(t, start, hours[0])
	assert.Equal(t, start.Add(71*time.Hour), hours[71])
}

func TestMidnightOf(t *testing.T) {
	loc := MustLoadLocation(ChicagoZone)
	d := time.Date(2023, 6, 1, 15, 30, 0, 0, loc)
	mid := MidnightOf(d, loc)
	assert.Equal(t, 0, mid.Hour())
	assert.Equal(t, 1, mid.Day())
}

func TestDSTSpringForwardTwoFiresAre23HoursApartInUTC(t *testing.T) {
	loc := MustLoadLocation(ChicagoZone)
	// 2023-03-12 is the US spring-forward date: 07:00 on Mar 11 is CST,
	// 07:00 on Mar 12 is already CDT.
	day1 := time.Date(2023, 3, 11, 7, 0, 0, 0, loc)
	day2 := time.Date(2023, 3, 12, 7, 0, 0, 0, loc)
	diff := day2.UTC().Sub(day1.UTC())
	assert.Equal(t, 23*time.Hour, diff)
}
