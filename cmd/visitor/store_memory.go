package visitor

import (
	"context"
	"sync"
)

// InMemoryStore is a dev/test fallback when DB is not configured.
type InMemoryStore struct {
	mu      sync.RWMutex
	byID    map[string]Visitor
	byPhone map[string]string // normalized phone -> id
}

// NewInMemoryStore constructs an in-memory Store implementation.
func NewInMemoryStore() *InMemoryStore {
	return &InMemoryStore{
		byID:    make(map[string]Visitor),
		byPhone: make(map[string]string),
	}
}

// Create inserts a new visitor record.
func (s *InMemoryStore) Create(ctx context.Context, v Visitor) (Visitor, error) {
	const op = "visitor.Create"
	if err := ctx.Err(); err != nil {
		return Visitor{}, err
	}
	if v.ID == "" || v.Phone == "" {
		return Visitor{}, OpError{Op: op, Kind: ErrInvalidInput}
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.byID[v.ID]; ok {
		return Visitor{}, OpError{Op: op, Kind: ErrConflict, Msg: "id"}
	}
	if _, ok := s.byPhone[v.Phone]; ok {
		return Visitor{}, OpError{Op: op, Kind: ErrConflict, Msg: "phone"}
	}
	s.byID[v.ID] = v
	s.byPhone[v.Phone] = v.ID
	return v, nil
}

// GetByID loads a visitor by id.
func (s *InMemoryStore) GetByID(ctx context.Context, id string) (Visitor, error) {
	if err := ctx.Err(); err != nil {
		return Visitor{}, err
	}
	s.mu.RLock()
	defer s.mu.RUnlock()
	v, ok := s.byID[id]
	if !ok {
		return Visitor{}, OpError{Op: "visitor.GetByID", Kind: ErrNotFound}
	}
	return v, nil
}

// GetByPhone loads a visitor by normalized phone.
func (s *InMemoryStore) GetByPhone(ctx context.Context, phone string) (Visitor, error) {
	if err := ctx.Err(); err != nil {
		return Visitor{}, err
	}
	s.mu.RLock()
	defer s.mu.RUnlock()
	id, ok := s.byPhone[phone]
	if !ok {
		return Visitor{}, OpError{Op: "visitor.GetByPhone", Kind: ErrNotFound}
	}
	return s.byID[id], nil
}

// Update persists corrections. Phone is immutable.
func (s *InMemoryStore) Update(ctx context.Context, v Visitor) (Visitor, error) {
	const op = "visitor.Update"
	if err := ctx.Err(); err != nil {
		return Visitor{}, err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	cur, ok := s.byID[v.ID]
	if !ok {
		return Visitor{}, OpError{Op: op, Kind: ErrNotFound}
	}
	if cur.Phone != v.Phone {
		return Visitor{}, OpError{Op: op, Kind: ErrInvalidInput, Msg: "phone immutable"}
	}
	s.byID[v.ID] = v
	return v, nil
}
