package directory

import (
	"errors"
	"fmt"
	"sort"
	"time"

	"github.com/hackgods/slot-reservation/internal/timezone"
)

const DefaultSlotMinutes = 30

var ErrInvalidSchedule = errors.New("invalid schedule template")

// Window is a local business-hours range, start inclusive and end exclusive.
type Window struct {
	Start string `json:"start"`
	End   string `json:"end"`
}

// Schedule is the declarative business-hours template of one provider.
type Schedule struct {
	SlotMinutes int            `json:"slot_minutes"`
	Weekdays    []time.Weekday `json:"weekdays"`
	Windows     []Window       `json:"windows"`
	Closed      []string       `json:"closed,omitempty"`
}

// DefaultSchedule is a weekday morning/afternoon template with a lunch break.
func DefaultSchedule() Schedule {
	return Schedule{
		SlotMinutes: DefaultSlotMinutes,
		Weekdays:    []time.Weekday{time.Monday, time.Tuesday, time.Wednesday, time.Thursday, time.Friday},
		Windows: []Window{
			{Start: "09:00", End: "12:00"},
			{Start: "13:00", End: "17:00"},
		},
	}
}

func (s Schedule) slotLength() time.Duration {
	if s.SlotMinutes <= 0 {
		return DefaultSlotMinutes * time.Minute
	}
	return time.Duration(s.SlotMinutes) * time.Minute
}

// Validate rejects inverted or overlapping windows.
func (s Schedule) Validate() error {
	if s.SlotMinutes < 0 {
		return fmt.Errorf("%w: slot_minutes must be positive", ErrInvalidSchedule)
	}
	type span struct{ from, to int }
	spans := make([]span, 0, len(s.Windows))
	for _, w := range s.Windows {
		from, err := minutesOf(w.Start)
		if err != nil {
			return fmt.Errorf("%w: %v", ErrInvalidSchedule, err)
		}
		to, err := minutesOf(w.End)
		if err != nil {
			return fmt.Errorf("%w: %v", ErrInvalidSchedule, err)
		}
		if to <= from {
			return fmt.Errorf("%w: window %s-%s ends before it starts", ErrInvalidSchedule, w.Start, w.End)
		}
		spans = append(spans, span{from, to})
	}
	sort.Slice(spans, func(i, j int) bool { return spans[i].from < spans[j].from })
	for i := 1; i < len(spans); i++ {
		if spans[i].from < spans[i-1].to {
			return fmt.Errorf("%w: windows overlap", ErrInvalidSchedule)
		}
	}
	for _, c := range s.Closed {
		if _, err := time.Parse(timezone.DateLayout, c); err != nil {
			return fmt.Errorf("%w: closed date %q", ErrInvalidSchedule, c)
		}
	}
	return nil
}

func (s Schedule) worksOn(day time.Time) bool {
	if s.isClosed(day.Format(timezone.DateLayout)) {
		return false
	}
	for _, wd := range s.Weekdays {
		if wd == day.Weekday() {
			return true
		}
	}
	return false
}

func (s Schedule) isClosed(date string) bool {
	for _, c := range s.Closed {
		if c == date {
			return true
		}
	}
	return false
}

// Starts lists the ordered local "HH:MM" slot starts for a local day.
// Only whole slots that fit inside a window are produced.
func (s Schedule) Starts(day time.Time) []string {
	if !s.worksOn(day) {
		return nil
	}
	step := int(s.slotLength() / time.Minute)

	var starts []int
	for _, w := range s.Windows {
		from, err := minutesOf(w.Start)
		if err != nil {
			continue
		}
		to, err := minutesOf(w.End)
		if err != nil {
			continue
		}
		for m := from; m+step <= to; m += step {
			starts = append(starts, m)
		}
	}
	sort.Ints(starts)

	out := make([]string, 0, len(starts))
	for _, m := range starts {
		out = append(out, fmt.Sprintf("%02d:%02d", m/60, m%60))
	}
	return out
}

// Instants resolves the slot starts of a local day to ascending absolute instants.
// A wall-clock start that a DST gap maps onto an earlier start is dropped.
func (s Schedule) Instants(n timezone.Normalizer, day time.Time) []time.Time {
	starts := s.Starts(day)
	out := make([]time.Time, 0, len(starts))
	for _, hhmm := range starts {
		at, err := n.At(day, hhmm)
		if err != nil {
			continue
		}
		if len(out) > 0 && !at.After(out[len(out)-1]) {
			continue
		}
		out = append(out, at)
	}
	return out
}

func minutesOf(hhmm string) (int, error) {
	h, m, err := timezone.ParseClock(hhmm)
	if err != nil {
		return 0, err
	}
	return h*60 + m, nil
}
