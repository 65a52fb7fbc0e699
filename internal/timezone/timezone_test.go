package timezone

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewEmptyZoneIsUTC(t *testing.T) {
	n, err := New("")
	require.NoError(t, err)
	assert.Equal(t, "UTC", n.Zone())
}

func TestNewUnknownZone(t *testing.T) {
	_, err := New("Mars/Olympus_Mons")
	require.ErrorIs(t, err, ErrUnknownZone)
}

func TestAtResolvesLocalWallClock(t *testing.T) {
	n := MustNew("America/Sao_Paulo")

	day, err := n.ParseDate("2030-03-11")
	require.NoError(t, err)

	at, err := n.At(day, "09:00")
	require.NoError(t, err)

	assert.Equal(t, time.UTC, at.Location())
	assert.Equal(t, time.Date(2030, 3, 11, 12, 0, 0, 0, time.UTC), at)

	date, clock := n.Stamp(at)
	assert.Equal(t, "2030-03-11", date)
	assert.Equal(t, "09:00", clock)
}

func TestStampCrossesUTCMidnight(t *testing.T) {
	n := MustNew("America/New_York")

	// 02:30 UTC is still the previous evening in New York.
	at := time.Date(2030, 7, 2, 2, 30, 0, 0, time.UTC)
	assert.Equal(t, "2030-07-01", n.LocalDate(at))
	assert.Equal(t, "22:30", n.LocalTime(at))
}

func TestDayBoundsAcrossDST(t *testing.T) {
	n := MustNew("America/New_York")

	day, err := n.ParseDate("2030-03-10")
	require.NoError(t, err)

	start, end := n.DayBounds(day)
	assert.Equal(t, 23*time.Hour, end.Sub(start))
}

func TestParseErrors(t *testing.T) {
	n := MustNew("UTC")

	_, err := n.ParseDate("11/03/2030")
	assert.ErrorIs(t, err, ErrBadDate)

	_, _, err = ParseClock("9am")
	assert.ErrorIs(t, err, ErrBadTime)
}

func TestManualClock(t *testing.T) {
	start := time.Date(2030, 1, 1, 8, 0, 0, 0, time.UTC)
	c := NewManualClock(start)

	c.Advance(6 * time.Minute)
	assert.Equal(t, start.Add(6*time.Minute), c.Now())

	c.Set(start)
	assert.Equal(t, start, c.Now())
}
