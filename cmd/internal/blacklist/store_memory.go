package blacklist

import (
	"context"
	"sort"
	"sync"
)

// InMemoryStore keeps entries in process memory. Suitable for tests and
// single-instance deployments.
type InMemoryStore struct {
	mu        sync.RWMutex
	byVisitor map[string]Entry
}

// NewInMemoryStore constructs an empty InMemoryStore.
func NewInMemoryStore() *InMemoryStore {
	return &InMemoryStore{byVisitor: make(map[string]Entry)}
}

func (s *InMemoryStore) Upsert(ctx context.Context, e Entry) (Entry, error) {
	if s == nil {
		return Entry{}, OpError{Op: "blacklist.InMemoryStore.Upsert", Kind: ErrInvalidInput}
	}
	if err := ctx.Err(); err != nil {
		return Entry{}, err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if cur, ok := s.byVisitor[e.VisitorID]; ok {
		return cur, nil
	}
	s.byVisitor[e.VisitorID] = e
	return e, nil
}

func (s *InMemoryStore) DeleteByVisitor(ctx context.Context, visitorID string) error {
	if s == nil {
		return OpError{Op: "blacklist.InMemoryStore.DeleteByVisitor", Kind: ErrInvalidInput}
	}
	if err := ctx.Err(); err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.byVisitor[visitorID]; !ok {
		return OpError{Op: "blacklist.InMemoryStore.DeleteByVisitor", Kind: ErrNotFound}
	}
	delete(s.byVisitor, visitorID)
	return nil
}

func (s *InMemoryStore) Match(ctx context.Context, visitorID, phone string) (bool, error) {
	if s == nil {
		return false, OpError{Op: "blacklist.InMemoryStore.Match", Kind: ErrInvalidInput}
	}
	if err := ctx.Err(); err != nil {
		return false, err
	}
	s.mu.RLock()
	defer s.mu.RUnlock()
	if _, ok := s.byVisitor[visitorID]; ok {
		return true, nil
	}
	if phone == "" {
		return false, nil
	}
	for _, e := range s.byVisitor {
		if e.Phone == phone {
			return true, nil
		}
	}
	return false, nil
}

func (s *InMemoryStore) List(ctx context.Context) ([]Entry, error) {
	if s == nil {
		return nil, OpError{Op: "blacklist.InMemoryStore.List", Kind: ErrInvalidInput}
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]Entry, 0, len(s.byVisitor))
	for _, e := range s.byVisitor {
		out = append(out, e)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt.After(out[j].CreatedAt) })
	return out, nil
}
