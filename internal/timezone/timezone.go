package timezone

import (
	"errors"
	"fmt"
	"strings"
	"time"
)

const (
	DateLayout = "2006-01-02"
	TimeLayout = "15:04"
)

var (
	ErrUnknownZone = errors.New("unknown time zone")
	ErrBadDate     = errors.New("date must be YYYY-MM-DD")
	ErrBadTime     = errors.New("time must be HH:MM")
)

// Normalizer converts between absolute instants and a provider's local calendar.
// Persisted times are always UTC; local strings are derived through here only.
type Normalizer struct {
	loc *time.Location
}

// New returns a Normalizer for an IANA zone name. An empty name means UTC.
func New(zone string) (Normalizer, error) {
	zone = strings.TrimSpace(zone)
	if zone == "" {
		return Normalizer{loc: time.UTC}, nil
	}
	loc, err := time.LoadLocation(zone)
	if err != nil {
		return Normalizer{}, fmt.Errorf("%w: %q", ErrUnknownZone, zone)
	}
	return Normalizer{loc: loc}, nil
}

// MustNew is New for zone names known at compile time.
func MustNew(zone string) Normalizer {
	n, err := New(zone)
	if err != nil {
		panic(err)
	}
	return n
}

func (n Normalizer) Location() *time.Location {
	if n.loc == nil {
		return time.UTC
	}
	return n.loc
}

func (n Normalizer) Zone() string {
	return n.Location().String()
}

// LocalDate is the provider-local calendar day of t.
func (n Normalizer) LocalDate(t time.Time) string {
	return t.In(n.Location()).Format(DateLayout)
}

// LocalTime is the provider-local wall clock of t.
func (n Normalizer) LocalTime(t time.Time) string {
	return t.In(n.Location()).Format(TimeLayout)
}

// Stamp returns both derived display fields for t.
func (n Normalizer) Stamp(t time.Time) (date, clock string) {
	return n.LocalDate(t), n.LocalTime(t)
}

// ParseDate parses a local calendar day and returns local midnight.
func (n Normalizer) ParseDate(date string) (time.Time, error) {
	d, err := time.ParseInLocation(DateLayout, strings.TrimSpace(date), n.Location())
	if err != nil {
		return time.Time{}, fmt.Errorf("%w: %q", ErrBadDate, date)
	}
	return d, nil
}

// At resolves a local date and wall-clock "HH:MM" to an absolute UTC instant.
func (n Normalizer) At(date time.Time, hhmm string) (time.Time, error) {
	h, m, err := ParseClock(hhmm)
	if err != nil {
		return time.Time{}, err
	}
	d := date.In(n.Location())
	return time.Date(d.Year(), d.Month(), d.Day(), h, m, 0, 0, n.Location()).UTC(), nil
}

// DayBounds returns the absolute [start, end) range covering a local day.
func (n Normalizer) DayBounds(date time.Time) (time.Time, time.Time) {
	d := date.In(n.Location())
	start := time.Date(d.Year(), d.Month(), d.Day(), 0, 0, 0, 0, n.Location())
	end := start.AddDate(0, 0, 1)
	return start.UTC(), end.UTC()
}

// ParseClock splits "HH:MM" into hour and minute.
func ParseClock(hhmm string) (int, int, error) {
	t, err := time.Parse(TimeLayout, strings.TrimSpace(hhmm))
	if err != nil {
		return 0, 0, fmt.Errorf("%w: %q", ErrBadTime, hhmm)
	}
	return t.Hour(), t.Minute(), nil
}
