package directory

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"github.com/google/uuid"

	"github.com/hackgods/slot-reservation/internal/timezone"
)

var ErrUnknownProvider = errors.New("unknown provider")

// Provider is the directory data the reservation core reads. It never writes it.
type Provider struct {
	ID          uuid.UUID
	Name        string
	SpecialtyID uuid.UUID
	LocationID  uuid.UUID
	TimeZone    string
	Schedule    Schedule
}

// Normalizer returns the time-zone normalizer for the provider's fixed zone.
func (p *Provider) Normalizer() (timezone.Normalizer, error) {
	return timezone.New(p.TimeZone)
}

// Directory resolves provider ids. Lookup fails with ErrUnknownProvider for ids it does not know.
type Directory interface {
	Lookup(ctx context.Context, id uuid.UUID) (*Provider, error)
}

// Static is an in-memory Directory.
type Static struct {
	mu        sync.RWMutex
	providers map[uuid.UUID]Provider
}

func NewStatic(providers ...Provider) *Static {
	s := &Static{providers: make(map[uuid.UUID]Provider, len(providers))}
	for _, p := range providers {
		s.providers[p.ID] = p
	}
	return s
}

// Put adds or replaces a provider after validating its zone and template.
func (s *Static) Put(p Provider) error {
	if err := validate(p); err != nil {
		return err
	}
	s.mu.Lock()
	s.providers[p.ID] = p
	s.mu.Unlock()
	return nil
}

func (s *Static) Lookup(_ context.Context, id uuid.UUID) (*Provider, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	p, ok := s.providers[id]
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrUnknownProvider, id)
	}
	return &p, nil
}

func validate(p Provider) error {
	if p.ID == uuid.Nil {
		return fmt.Errorf("provider id is required")
	}
	if _, err := timezone.New(p.TimeZone); err != nil {
		return err
	}
	return p.Schedule.Validate()
}
