// Package registry manages the participants of a negotiation session.
//
// The registry is write-once per session: all participants are registered
// together before the first volley, and the registration order is the turn
// order used by the scheduler for every volley of the session. Profiles are
// immutable once the session starts.
package registry

import (
	"errors"
	"fmt"
	"sync"
)

// Errors for registry operations.
var (
	ErrDuplicateParticipant = errors.New("duplicate participant id")
	ErrParticipantNotFound  = errors.New("participant not found")
	ErrEmptyParticipantID   = errors.New("participant id must not be empty")
)

// Preferences holds a participant's structured travel preferences.
type Preferences struct {
	BudgetMin           int      `json:"budget_min" koanf:"budget_min"`
	BudgetMax           int      `json:"budget_max" koanf:"budget_max"`
	TravelStyle         string   `json:"travel_style" koanf:"travel_style"`
	PreferredPlaces     []string `json:"preferred_places,omitempty" koanf:"preferred_places"`
	DietaryRestrictions []string `json:"dietary_restrictions,omitempty" koanf:"dietary_restrictions"`
	Constraints         []string `json:"constraints,omitempty" koanf:"constraints"`
}

// BookingIdentity carries the per-participant data an execution task needs.
// It is never shared between tasks.
type BookingIdentity struct {
	Email           string `json:"email" koanf:"email"`
	Phone           string `json:"phone,omitempty" koanf:"phone"`
	CredentialRef   string `json:"credential_ref,omitempty" koanf:"credential_ref"`
	PaymentTokenRef string `json:"payment_token_ref,omitempty" koanf:"payment_token_ref"`
}

// Participant is one modeled stakeholder with its own preferences and
// turn budget. MemoryCollection is an opaque handle into the memory store.
type Participant struct {
	ID               string          `json:"id" koanf:"id"`
	DisplayName      string          `json:"display_name" koanf:"display_name"`
	Preferences      Preferences     `json:"preferences" koanf:"preferences"`
	Identity         BookingIdentity `json:"identity" koanf:"identity"`
	MemoryCollection string          `json:"memory_collection,omitempty" koanf:"memory_collection"`
}

// Registry holds the participants of one session in registration order.
type Registry struct {
	mu    sync.RWMutex
	order []string
	byID  map[string]Participant
}

// New creates an empty registry.
func New() *Registry {
	return &Registry{
		byID: make(map[string]Participant),
	}
}

// Register adds all participants at once, preserving the supplied order.
// The order is never re-sorted; it is the turn order for every volley.
func (r *Registry) Register(participants []Participant) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	seen := make(map[string]bool, len(participants))
	for _, p := range participants {
		if p.ID == "" {
			return ErrEmptyParticipantID
		}
		if seen[p.ID] || r.has(p.ID) {
			return fmt.Errorf("%w: %s", ErrDuplicateParticipant, p.ID)
		}
		seen[p.ID] = true
	}

	for _, p := range participants {
		r.byID[p.ID] = p
		r.order = append(r.order, p.ID)
	}
	return nil
}

func (r *Registry) has(id string) bool {
	_, ok := r.byID[id]
	return ok
}

// Get returns the participant with the given id.
func (r *Registry) Get(id string) (Participant, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	p, ok := r.byID[id]
	if !ok {
		return Participant{}, fmt.Errorf("%w: %s", ErrParticipantNotFound, id)
	}
	return p, nil
}

// Has reports whether the participant is registered.
func (r *Registry) Has(id string) bool {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.has(id)
}

// Order returns participant ids in registration order.
func (r *Registry) Order() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()

	out := make([]string, len(r.order))
	copy(out, r.order)
	return out
}

// All returns all participants in registration order.
func (r *Registry) All() []Participant {
	r.mu.RLock()
	defer r.mu.RUnlock()

	out := make([]Participant, 0, len(r.order))
	for _, id := range r.order {
		out = append(out, r.byID[id])
	}
	return out
}

// Len returns the number of registered participants.
func (r *Registry) Len() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.order)
}
