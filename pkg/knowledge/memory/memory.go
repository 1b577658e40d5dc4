package memory

import (
	"context"
	"fmt"
	"sync"

	"github.com/barekit/relnotes/pkg/knowledge"
	"github.com/barekit/relnotes/pkg/lock"
)

// Store implements knowledge.Backend in process memory with brute-force cosine search.
type Store struct {
	mu          sync.RWMutex
	collections map[string][]knowledge.Entry
	active      map[string]string
	locks       *lock.Local
}

// New creates an empty Store.
func New() *Store {
	return &Store{
		collections: make(map[string][]knowledge.Entry),
		active:      make(map[string]string),
		locks:       lock.NewLocal(),
	}
}

// ResetCollection drops every entry stored under name.
func (s *Store) ResetCollection(ctx context.Context, name string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.collections[name] = nil
	return nil
}

// Upsert appends entries to the named collection.
func (s *Store) Upsert(ctx context.Context, name string, entries []knowledge.Entry) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	// Copy so later caller mutations cannot reach stored entries
	for _, e := range entries {
		e.Vector = append([]float32(nil), e.Vector...)
		s.collections[name] = append(s.collections[name], e)
	}
	return nil
}

// Search ranks the named collection against query.
func (s *Store) Search(ctx context.Context, name string, query []float32, k int) ([]knowledge.Entry, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	return knowledge.Rank(s.collections[name], query, k), nil
}

// Count returns the number of entries in the named collection.
func (s *Store) Count(ctx context.Context, name string) (int, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	return len(s.collections[name]), nil
}

// Active returns the collection the logical name points to.
func (s *Store) Active(ctx context.Context, logical string) (string, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	return s.active[logical], nil
}

// SearchActive ranks the collection the logical name points to.
func (s *Store) SearchActive(ctx context.Context, logical string, query []float32, k int) ([]knowledge.Entry, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	active, ok := s.active[logical]
	if !ok {
		return nil, nil
	}
	return knowledge.Rank(s.collections[active], query, k), nil
}

// Activate points the logical name at to if it still points at from.
func (s *Store) Activate(ctx context.Context, logical, from, to string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.active[logical] != from {
		return fmt.Errorf("%w: %s points at %q, expected %q", knowledge.ErrActiveChanged, logical, s.active[logical], from)
	}
	s.active[logical] = to
	return nil
}

// WithLock holds key for every index sharing this store.
func (s *Store) WithLock(ctx context.Context, key string, fn func(ctx context.Context) error) error {
	return s.locks.WithLock(ctx, key, fn)
}
