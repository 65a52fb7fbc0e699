package appointment

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"
)

type slotKey struct {
	provider uuid.UUID
	unix     int64
}

func keyOf(providerID uuid.UUID, at time.Time) slotKey {
	return slotKey{provider: providerID, unix: at.UTC().UnixNano()}
}

// MemoryRepository keeps appointments in process. The claim check and insert
// happen under one mutex, so it upholds the same exclusivity as the partial index.
type MemoryRepository struct {
	mu     sync.Mutex
	byID   map[uuid.UUID]*Appointment
	active map[slotKey]uuid.UUID
	events []EventLog
	now    func() time.Time
}

func NewMemoryRepository() *MemoryRepository {
	return &MemoryRepository{
		byID:   make(map[uuid.UUID]*Appointment),
		active: make(map[slotKey]uuid.UUID),
		now:    func() time.Time { return time.Now().UTC() },
	}
}

func (r *MemoryRepository) Claim(_ context.Context, appt *Appointment) (*Appointment, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	key := keyOf(appt.ProviderID, appt.ScheduledAt)
	if _, taken := r.active[key]; taken {
		return nil, ErrSlotTaken
	}
	if _, dup := r.byID[appt.ID]; dup {
		return nil, fmt.Errorf("insert appointment: duplicate id %s", appt.ID)
	}

	now := r.now()
	stored := appt.clone()
	stored.Status = StatusTentative
	stored.IsVerified = false
	stored.Version = 1
	stored.CreatedAt = now
	stored.UpdatedAt = now

	r.byID[stored.ID] = stored
	r.active[key] = stored.ID
	return stored.clone(), nil
}

func (r *MemoryRepository) GetAppointmentByID(_ context.Context, id uuid.UUID) (*Appointment, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	a, ok := r.byID[id]
	if !ok {
		return nil, ErrAppointmentNotFound
	}
	return a.clone(), nil
}

func (r *MemoryRepository) ListAppointmentsByPatient(_ context.Context, patientID uuid.UUID, limit, offset int) ([]Appointment, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	var all []Appointment
	for _, a := range r.byID {
		if a.PatientID == patientID {
			all = append(all, *a.clone())
		}
	}
	sort.Slice(all, func(i, j int) bool { return all[i].ScheduledAt.After(all[j].ScheduledAt) })

	if offset >= len(all) {
		return nil, nil
	}
	all = all[offset:]
	if limit < len(all) {
		all = all[:limit]
	}
	return all, nil
}

func (r *MemoryRepository) ListClaimedInstants(_ context.Context, providerID uuid.UUID, from, to time.Time) ([]time.Time, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	var claimed []time.Time
	for key := range r.active {
		if key.provider != providerID {
			continue
		}
		at := time.Unix(0, key.unix).UTC()
		if !at.Before(from) && at.Before(to) {
			claimed = append(claimed, at)
		}
	}
	sort.Slice(claimed, func(i, j int) bool { return claimed[i].Before(claimed[j]) })
	return claimed, nil
}

func (r *MemoryRepository) SaveTransition(_ context.Context, appt *Appointment) (*Appointment, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	stored, ok := r.byID[appt.ID]
	if !ok || stored.Version != appt.Version {
		return nil, ErrStaleVersion
	}

	stored.Status = appt.Status
	stored.IsVerified = appt.IsVerified
	stored.Code = nil
	stored.CodeExpiresAt = nil
	if appt.Code != nil {
		code := *appt.Code
		stored.Code = &code
	}
	if appt.CodeExpiresAt != nil {
		exp := *appt.CodeExpiresAt
		stored.CodeExpiresAt = &exp
	}
	stored.Version++
	stored.UpdatedAt = r.now()

	key := keyOf(stored.ProviderID, stored.ScheduledAt)
	if !stored.holdsSlot() && r.active[key] == stored.ID {
		delete(r.active, key)
	}
	return stored.clone(), nil
}

func (r *MemoryRepository) FindExpiredTentative(_ context.Context, now time.Time, limit int) ([]Appointment, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	var out []Appointment
	for _, a := range r.byID {
		if a.Status == StatusTentative && a.CodeExpiresAt != nil && a.CodeExpiresAt.Before(now) {
			out = append(out, *a.clone())
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].CodeExpiresAt.Before(*out[j].CodeExpiresAt) })
	if limit > 0 && len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

func (r *MemoryRepository) InsertEvent(_ context.Context, ev EventLog) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	ev.ID = int64(len(r.events) + 1)
	r.events = append(r.events, ev)
	return nil
}

// Events returns a copy of the recorded event log.
func (r *MemoryRepository) Events() []EventLog {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]EventLog(nil), r.events...)
}
