package patient

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"

	"github.com/google/uuid"

	"github.com/hackgods/slot-reservation/internal/validation"
)

var (
	ErrPatientNotFound = errors.New("patient not found")
	ErrInvalidContact  = errors.New("invalid patient contact")
)

// Contact is the inline patient data an unauthenticated caller submits.
type Contact struct {
	Name  string `json:"name" validate:"required,max=200"`
	Email string `json:"email" validate:"required,email"`
	Phone string `json:"phone,omitempty" validate:"omitempty,max=32"`
}

func (c Contact) normalized() (Contact, error) {
	c.Name = strings.TrimSpace(c.Name)
	c.Email = strings.ToLower(strings.TrimSpace(c.Email))
	c.Phone = strings.TrimSpace(c.Phone)
	if err := validation.Struct(c); err != nil {
		return c, fmt.Errorf("%w: %w", ErrInvalidContact, err)
	}
	return c, nil
}

// Ref is either a known patient id or contact details to resolve.
type Ref struct {
	ID      uuid.UUID
	Contact *Contact
}

// Resolver is the identity collaborator. The reservation core only ever sees the returned id.
type Resolver interface {
	Resolve(ctx context.Context, ref Ref) (uuid.UUID, error)
	Contact(ctx context.Context, id uuid.UUID) (Contact, error)
}

// Memory is an in-process Resolver keyed by email.
type Memory struct {
	mu      sync.Mutex
	byID    map[uuid.UUID]Contact
	byEmail map[string]uuid.UUID
}

func NewMemory() *Memory {
	return &Memory{
		byID:    make(map[uuid.UUID]Contact),
		byEmail: make(map[string]uuid.UUID),
	}
}

func (m *Memory) Resolve(_ context.Context, ref Ref) (uuid.UUID, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if ref.ID != uuid.Nil {
		if _, ok := m.byID[ref.ID]; !ok {
			return uuid.Nil, ErrPatientNotFound
		}
		return ref.ID, nil
	}
	if ref.Contact == nil {
		return uuid.Nil, fmt.Errorf("%w: patient id or contact is required", ErrInvalidContact)
	}
	c, err := ref.Contact.normalized()
	if err != nil {
		return uuid.Nil, err
	}
	if id, ok := m.byEmail[c.Email]; ok {
		m.byID[id] = c
		return id, nil
	}
	id := uuid.New()
	m.byID[id] = c
	m.byEmail[c.Email] = id
	return id, nil
}

func (m *Memory) Contact(_ context.Context, id uuid.UUID) (Contact, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	c, ok := m.byID[id]
	if !ok {
		return Contact{}, ErrPatientNotFound
	}
	return c, nil
}
