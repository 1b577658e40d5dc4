package knowledge

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"

	"github.com/barekit/relnotes/pkg/lock"
)

// processLocks serializes replaces for backends that cannot hold a shared lease.
var processLocks = lock.NewLocal()

// VectorIndex is a logical collection stored as two physical collections
// ("<name>_a" and "<name>_b") behind an active pointer. Replace loads the inactive
// collection and flips the pointer, so readers always see one complete generation.
type VectorIndex struct {
	backend   Backend
	name      string
	dimension int
	logger    *slog.Logger

	// Serializes Replace calls made through this value.
	mu sync.Mutex
}

// IndexOption configures a VectorIndex.
type IndexOption func(*VectorIndex)

// WithIndexLogger sets the logger.
func WithIndexLogger(l *slog.Logger) IndexOption {
	return func(x *VectorIndex) {
		x.logger = l
	}
}

// NewVectorIndex creates a VectorIndex over backend for vectors of the given dimension.
func NewVectorIndex(backend Backend, name string, dimension int, opts ...IndexOption) (*VectorIndex, error) {
	if backend == nil {
		return nil, fmt.Errorf("backend is required")
	}
	if name == "" {
		return nil, fmt.Errorf("collection name is required")
	}
	if dimension <= 0 {
		return nil, fmt.Errorf("invalid index dimension: %d", dimension)
	}
	x := &VectorIndex{
		backend:   backend,
		name:      name,
		dimension: dimension,
		logger:    slog.Default(),
	}
	for _, opt := range opts {
		opt(x)
	}
	return x, nil
}

// Name returns the logical collection name.
func (x *VectorIndex) Name() string {
	return x.name
}

// Dimension returns the vector dimension of the collection.
func (x *VectorIndex) Dimension() int {
	return x.dimension
}

// Generations returns the two physical collection names backing the index.
func (x *VectorIndex) Generations() (string, string) {
	return x.name + "_a", x.name + "_b"
}

func (x *VectorIndex) standby(active string) string {
	a, b := x.Generations()
	if active == a {
		return b
	}
	return a
}

// WithLock runs fn while holding key on the backend. Backends implementing
// lock.Locker share the lease with every process using the same store; the rest
// fall back to a lock held in this process. A held key yields lock.ErrLocked.
func (x *VectorIndex) WithLock(ctx context.Context, key string, fn func(ctx context.Context) error) error {
	if l, ok := x.backend.(lock.Locker); ok {
		return l.WithLock(ctx, key, fn)
	}
	return processLocks.WithLock(ctx, key, fn)
}

// Replace makes entries the complete content of the collection. Entries are
// assigned Seq in the given order. On failure the previously active generation
// stays active and untouched. A replace already running against the same store
// makes this one fail with ErrIndexWrite and lock.ErrLocked.
func (x *VectorIndex) Replace(ctx context.Context, entries []Entry) error {
	for i, e := range entries {
		if len(e.Vector) != x.dimension {
			return fmt.Errorf("%w: %w: entry %d has %d dimensions, want %d",
				ErrIndexWrite, ErrDimensionMismatch, i, len(e.Vector), x.dimension)
		}
	}

	x.mu.Lock()
	defer x.mu.Unlock()

	err := x.WithLock(ctx, "replace:"+x.name, func(ctx context.Context) error {
		return x.replace(ctx, entries)
	})
	if err != nil && !errors.Is(err, ErrIndexWrite) {
		return fmt.Errorf("%w: %w", ErrIndexWrite, err)
	}
	return err
}

func (x *VectorIndex) replace(ctx context.Context, entries []Entry) error {
	active, err := x.backend.Active(ctx, x.name)
	if err != nil {
		return fmt.Errorf("%w: resolve active collection: %w", ErrIndexWrite, err)
	}
	target := x.standby(active)

	if err := x.backend.ResetCollection(ctx, target); err != nil {
		return fmt.Errorf("%w: reset %s: %w", ErrIndexWrite, target, err)
	}

	staged := make([]Entry, len(entries))
	for i, e := range entries {
		e.Seq = i
		e.Score = 0
		staged[i] = e
	}
	if err := x.backend.Upsert(ctx, target, staged); err != nil {
		return fmt.Errorf("%w: upsert into %s: %w", ErrIndexWrite, target, err)
	}

	if err := x.backend.Activate(ctx, x.name, active, target); err != nil {
		return fmt.Errorf("%w: activate %s: %w", ErrIndexWrite, target, err)
	}
	x.logger.Info("collection replaced", "collection", x.name, "generation", target, "previous", active, "entries", len(staged))
	return nil
}

// Search returns up to k entries of the active generation ordered by descending
// cosine similarity, ties broken by insertion order.
func (x *VectorIndex) Search(ctx context.Context, query []float32, k int) ([]Entry, error) {
	if k < 0 {
		return nil, fmt.Errorf("%w: negative result count %d", ErrIndexRead, k)
	}
	if len(query) != x.dimension {
		return nil, fmt.Errorf("%w: %w: query has %d dimensions, want %d",
			ErrIndexRead, ErrDimensionMismatch, len(query), x.dimension)
	}
	if k == 0 {
		return nil, nil
	}

	if as, ok := x.backend.(ActiveSearcher); ok {
		results, err := as.SearchActive(ctx, x.name, query, k)
		if err != nil {
			return nil, fmt.Errorf("%w: search %s: %w", ErrIndexRead, x.name, err)
		}
		return topK(results, k), nil
	}

	// Without ActiveSearcher a reader can race two completed replaces between
	// resolving the generation and searching it.
	active, err := x.backend.Active(ctx, x.name)
	if err != nil {
		return nil, fmt.Errorf("%w: resolve active collection: %w", ErrIndexRead, err)
	}
	if active == "" {
		return nil, nil
	}

	results, err := x.backend.Search(ctx, active, query, k)
	if err != nil {
		return nil, fmt.Errorf("%w: search %s: %w", ErrIndexRead, active, err)
	}
	return topK(results, k), nil
}

func topK(results []Entry, k int) []Entry {
	SortByScore(results)
	if len(results) > k {
		results = results[:k]
	}
	return results
}

// Count returns the number of entries in the active generation.
func (x *VectorIndex) Count(ctx context.Context) (int, error) {
	active, err := x.backend.Active(ctx, x.name)
	if err != nil {
		return 0, fmt.Errorf("%w: resolve active collection: %w", ErrIndexRead, err)
	}
	if active == "" {
		return 0, nil
	}
	n, err := x.backend.Count(ctx, active)
	if err != nil {
		return 0, fmt.Errorf("%w: count %s: %w", ErrIndexRead, active, err)
	}
	return n, nil
}
