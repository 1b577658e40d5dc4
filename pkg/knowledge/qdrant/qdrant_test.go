package qdrant

import (
	"context"
	"os"
	"testing"

	"github.com/barekit/relnotes/pkg/knowledge"
	"github.com/google/uuid"
	"github.com/qdrant/go-client/qdrant"
)

func points(scores ...float32) []*qdrant.ScoredPoint {
	out := make([]*qdrant.ScoredPoint, len(scores))
	for i, s := range scores {
		out[i] = &qdrant.ScoredPoint{Score: s}
	}
	return out
}

func TestTruncatedTie(t *testing.T) {
	tests := []struct {
		name  string
		res   []*qdrant.ScoredPoint
		limit uint64
		k     int
		want  bool
	}{
		{"short page", points(0.9, 0.5, 0.5), 4, 2, false},
		{"tie runs to the end of a full page", points(0.9, 0.5, 0.5, 0.5), 4, 2, true},
		{"tie ends inside the page", points(0.9, 0.5, 0.5, 0.3), 4, 2, false},
		{"no tie at k", points(0.9, 0.8, 0.7, 0.6), 4, 2, false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := truncatedTie(tt.res, tt.limit, tt.k); got != tt.want {
				t.Errorf("truncatedTie: got %v, want %v", got, tt.want)
			}
		})
	}
}

func TestQdrantStore_Integration(t *testing.T) {
	host := os.Getenv("QDRANT_HOST")
	if host == "" {
		t.Skip("Skipping Qdrant integration test: QDRANT_HOST not set")
	}
	ctx := context.Background()

	s, err := New(Config{Host: host, Port: 6334, APIKey: os.Getenv("QDRANT_API_KEY"), VectorSize: 2})
	if err != nil {
		t.Fatalf("New failed: %v", err)
	}
	defer s.Close()

	idx, err := knowledge.NewVectorIndex(s, "relnotes_it_"+uuid.NewString()[:8], 2)
	if err != nil {
		t.Fatalf("NewVectorIndex failed: %v", err)
	}

	for run := 0; run < 2; run++ {
		entries := []knowledge.Entry{
			{ID: uuid.NewString(), Content: "x", Vector: []float32{1, 0}},
			{ID: uuid.NewString(), Content: "y", Vector: []float32{0, 1}},
		}
		if err := idx.Replace(ctx, entries); err != nil {
			t.Fatalf("run %d: Replace failed: %v", run, err)
		}
		n, err := idx.Count(ctx)
		if err != nil {
			t.Fatalf("run %d: Count failed: %v", run, err)
		}
		if n != 2 {
			t.Errorf("run %d: expected 2 entries, got %d", run, n)
		}
	}

	results, err := idx.Search(ctx, []float32{1, 0}, 1)
	if err != nil {
		t.Fatalf("Search failed: %v", err)
	}
	if len(results) != 1 || results[0].Content != "x" {
		t.Errorf("unexpected results: %+v", results)
	}
}
