package knowledge

import (
	"context"
	"errors"
)

var (
	// ErrSourceFetch is returned when the document source is unreachable or yields malformed rows.
	ErrSourceFetch = errors.New("source fetch failed")
	// ErrEmbedding is returned when the embedding model call fails or the input is rejected.
	ErrEmbedding = errors.New("embedding failed")
	// ErrIndexWrite is returned when loading entries into the index fails.
	ErrIndexWrite = errors.New("index write failed")
	// ErrIndexRead is returned when searching the index fails.
	ErrIndexRead = errors.New("index read failed")
	// ErrDimensionMismatch accompanies ErrEmbedding, ErrIndexWrite or ErrIndexRead when a
	// vector does not have the collection's dimension.
	ErrDimensionMismatch = errors.New("vector dimension mismatch")
	// ErrActiveChanged is returned by Backend.Activate when the logical name no
	// longer points at the expected collection.
	ErrActiveChanged = errors.New("active collection changed")
)

// Document is a raw text record fetched from a document source.
type Document struct {
	Source  string `json:"source"`
	Content string `json:"content"`
}

// Entry is a single vector index record.
type Entry struct {
	ID       string                 `json:"id"`
	Seq      int                    `json:"seq"` // Insertion order within its generation
	Content  string                 `json:"content"`
	Metadata map[string]interface{} `json:"metadata,omitempty"`
	Vector   []float32              `json:"-"`
	Score    float32                `json:"score,omitempty"` // Cosine similarity to the query
}

// Embedder is the interface for generating embeddings.
// Implementations must return one vector per text, in input order.
type Embedder interface {
	Embed(ctx context.Context, texts []string) ([][]float32, error)
}

// Backend is the storage contract behind a VectorIndex. It operates on physical
// collections; the logical name and the double buffering live in VectorIndex.
type Backend interface {
	// ResetCollection discards all entries stored under the physical collection name.
	ResetCollection(ctx context.Context, name string) error
	// Upsert inserts entries into the physical collection.
	Upsert(ctx context.Context, name string, entries []Entry) error
	// Search returns up to k entries of the physical collection closest to query.
	Search(ctx context.Context, name string, query []float32, k int) ([]Entry, error)
	// Count returns the number of entries in the physical collection.
	Count(ctx context.Context, name string) (int, error)
	// Active returns the physical collection the logical name points to, or "" if none.
	Active(ctx context.Context, logical string) (string, error)
	// Activate atomically points the logical name at collection to, provided it
	// still points at from ("" for none). Otherwise it returns ErrActiveChanged.
	Activate(ctx context.Context, logical, from, to string) error
}

// ActiveSearcher is implemented by backends that resolve the active collection
// and search it in a single operation.
type ActiveSearcher interface {
	SearchActive(ctx context.Context, logical string, query []float32, k int) ([]Entry, error)
}
