package directory

import (
	"context"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	pgxmock "github.com/pashagolub/pgxmock/v4"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/hackgods/slot-reservation/internal/timezone"
)

func monday() time.Time {
	// 2030-03-11 is a Monday.
	return time.Date(2030, 3, 11, 0, 0, 0, 0, time.UTC)
}

func TestScheduleStartsSkipLunch(t *testing.T) {
	s := DefaultSchedule()

	starts := s.Starts(monday())
	require.Len(t, starts, 14)
	assert.Equal(t, "09:00", starts[0])
	assert.Equal(t, "11:30", starts[5])
	assert.Equal(t, "13:00", starts[6])
	assert.Equal(t, "16:30", starts[13])
	assert.NotContains(t, starts, "12:00")
}

func TestScheduleStartsOnlyWholeSlots(t *testing.T) {
	s := Schedule{
		SlotMinutes: 45,
		Weekdays:    []time.Weekday{time.Monday},
		Windows:     []Window{{Start: "09:00", End: "10:40"}},
	}
	assert.Equal(t, []string{"09:00", "09:45"}, s.Starts(monday()))
}

func TestScheduleNoHoursOnWeekendOrClosedDay(t *testing.T) {
	s := DefaultSchedule()
	assert.Empty(t, s.Starts(monday().AddDate(0, 0, 5)))

	s.Closed = []string{"2030-03-11"}
	assert.Empty(t, s.Starts(monday()))
}

func TestScheduleValidate(t *testing.T) {
	tests := []struct {
		name    string
		windows []Window
		wantErr bool
	}{
		{"default", DefaultSchedule().Windows, false},
		{"inverted", []Window{{Start: "12:00", End: "09:00"}}, true},
		{"overlap", []Window{{Start: "09:00", End: "12:00"}, {Start: "11:30", End: "13:00"}}, true},
		{"garbage", []Window{{Start: "nine", End: "12:00"}}, true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			s := Schedule{SlotMinutes: 30, Windows: tt.windows}
			err := s.Validate()
			if tt.wantErr {
				assert.ErrorIs(t, err, ErrInvalidSchedule)
			} else {
				assert.NoError(t, err)
			}
		})
	}
}

func TestScheduleInstantsAreAscendingUTC(t *testing.T) {
	n := timezone.MustNew("America/Sao_Paulo")
	day, err := n.ParseDate("2030-03-11")
	require.NoError(t, err)

	got := DefaultSchedule().Instants(n, day)
	require.Len(t, got, 14)
	assert.Equal(t, time.Date(2030, 3, 11, 12, 0, 0, 0, time.UTC), got[0])
	for i := 1; i < len(got); i++ {
		assert.True(t, got[i].After(got[i-1]))
	}
}

func TestStaticLookup(t *testing.T) {
	p := Provider{ID: uuid.New(), TimeZone: "UTC", Schedule: DefaultSchedule()}
	s := NewStatic()
	require.NoError(t, s.Put(p))

	got, err := s.Lookup(context.Background(), p.ID)
	require.NoError(t, err)
	assert.Equal(t, p.ID, got.ID)

	_, err = s.Lookup(context.Background(), uuid.New())
	assert.ErrorIs(t, err, ErrUnknownProvider)

	assert.Error(t, s.Put(Provider{ID: uuid.New(), TimeZone: "Nowhere/Land"}))
}

type countingDirectory struct {
	inner Directory
	calls int
}

func (c *countingDirectory) Lookup(ctx context.Context, id uuid.UUID) (*Provider, error) {
	c.calls++
	return c.inner.Lookup(ctx, id)
}

func TestCachedLookup(t *testing.T) {
	p := Provider{ID: uuid.New(), TimeZone: "UTC", Schedule: DefaultSchedule()}
	inner := &countingDirectory{inner: NewStatic(p)}
	c := NewCached(inner, time.Minute)

	for i := 0; i < 3; i++ {
		got, err := c.Lookup(context.Background(), p.ID)
		require.NoError(t, err)
		assert.Equal(t, p.ID, got.ID)
	}
	assert.Equal(t, 1, inner.calls)

	c.Invalidate(p.ID)
	_, err := c.Lookup(context.Background(), p.ID)
	require.NoError(t, err)
	assert.Equal(t, 2, inner.calls)

	unknown := uuid.New()
	_, err = c.Lookup(context.Background(), unknown)
	assert.ErrorIs(t, err, ErrUnknownProvider)
	_, err = c.Lookup(context.Background(), unknown)
	assert.ErrorIs(t, err, ErrUnknownProvider)
	assert.Equal(t, 4, inner.calls)
}

func TestPgDirectoryLookup(t *testing.T) {
	mock, err := pgxmock.NewPool()
	require.NoError(t, err)
	defer mock.Close()

	id := uuid.New()
	specialty := uuid.New()
	location := uuid.New()
	schedule := `{"slot_minutes":30,"weekdays":[1,2,3,4,5],"windows":[{"start":"08:00","end":"12:00"}]}`

	mock.ExpectQuery("SELECT id, name, specialty_id, location_id, time_zone, schedule").
		WithArgs(id).
		WillReturnRows(pgxmock.NewRows([]string{"id", "name", "specialty_id", "location_id", "time_zone", "schedule"}).
			AddRow(id, "Dr. Ana Lima", specialty, location, "America/Sao_Paulo", []byte(schedule)))

	p, err := NewPgDirectory(mock).Lookup(context.Background(), id)
	require.NoError(t, err)
	assert.Equal(t, specialty, p.SpecialtyID)
	assert.Equal(t, location, p.LocationID)
	assert.Equal(t, 30, p.Schedule.SlotMinutes)
	assert.Len(t, p.Schedule.Starts(monday()), 8)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestPgDirectoryUnknownProvider(t *testing.T) {
	mock, err := pgxmock.NewPool()
	require.NoError(t, err)
	defer mock.Close()

	id := uuid.New()
	mock.ExpectQuery("SELECT id, name").WithArgs(id).WillReturnError(pgx.ErrNoRows)

	_, err = NewPgDirectory(mock).Lookup(context.Background(), id)
	assert.ErrorIs(t, err, ErrUnknownProvider)
	require.NoError(t, mock.ExpectationsWereMet())
}
