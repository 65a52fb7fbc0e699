package appointment

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
)

// DaySlots enumerates every business-hours slot of a provider's local day and
// whether a non-cancelled appointment currently holds it. Never cached.
func (s *Service) DaySlots(ctx context.Context, providerID uuid.UUID, localDate string) ([]SlotState, error) {
	provider, n, err := s.lookupProvider(ctx, providerID)
	if err != nil {
		return nil, err
	}

	day, err := n.ParseDate(localDate)
	if err != nil {
		return nil, invalid("%v", err)
	}

	instants := provider.Schedule.Instants(n, day)
	if len(instants) == 0 {
		return []SlotState{}, nil
	}

	from, to := n.DayBounds(day)
	claimed, err := s.repo.ListClaimedInstants(ctx, providerID, from, to)
	if err != nil {
		return nil, fmt.Errorf("list claimed instants: %w", err)
	}
	taken := make(map[int64]struct{}, len(claimed))
	for _, at := range claimed {
		taken[at.UnixNano()] = struct{}{}
	}

	slots := make([]SlotState, 0, len(instants))
	for _, at := range instants {
		_, isTaken := taken[at.UnixNano()]
		slots = append(slots, SlotState{
			At:        at,
			LocalTime: n.LocalTime(at),
			Claimed:   isTaken,
		})
	}
	return slots, nil
}

// ListOpenSlots returns the provider's unclaimed slot instants for a local date, ascending.
// A day without business hours, or with every slot taken, yields an empty slice.
func (s *Service) ListOpenSlots(ctx context.Context, providerID uuid.UUID, localDate string) ([]time.Time, error) {
	slots, err := s.DaySlots(ctx, providerID, localDate)
	if err != nil {
		return nil, err
	}

	open := make([]time.Time, 0, len(slots))
	for _, slot := range slots {
		if !slot.Claimed {
			open = append(open, slot.At)
		}
	}
	return open, nil
}
