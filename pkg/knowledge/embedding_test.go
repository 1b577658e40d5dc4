package knowledge

import (
	"context"
	"errors"
	"strings"
	"testing"
)

type mockEmbedder struct {
	dim   int
	calls [][]string
	err   error
	// drop removes one vector from every response
	drop bool
}

func (m *mockEmbedder) Embed(ctx context.Context, texts []string) ([][]float32, error) {
	m.calls = append(m.calls, texts)
	if m.err != nil {
		return nil, m.err
	}
	out := make([][]float32, len(texts))
	for i, t := range texts {
		v := make([]float32, m.dim)
		v[0] = float32(len(t))
		out[i] = v
	}
	if m.drop && len(out) > 0 {
		out = out[1:]
	}
	return out, nil
}

func TestEmbedBatch_SplitsBatchesAndKeepsOrder(t *testing.T) {
	m := &mockEmbedder{dim: 3}
	s, err := NewEmbeddingService(m, 3, WithBatchSize(2))
	if err != nil {
		t.Fatalf("NewEmbeddingService failed: %v", err)
	}

	texts := []string{"a", "bb", "ccc", "dddd", "eeeee"}
	vectors, err := s.EmbedBatch(context.Background(), texts)
	if err != nil {
		t.Fatalf("EmbedBatch failed: %v", err)
	}
	if len(m.calls) != 3 {
		t.Errorf("expected 3 provider calls, got %d", len(m.calls))
	}
	if len(vectors) != len(texts) {
		t.Fatalf("expected %d vectors, got %d", len(texts), len(vectors))
	}
	for i, v := range vectors {
		if int(v[0]) != len(texts[i]) {
			t.Errorf("vector %d out of order: %v", i, v)
		}
	}
}

func TestEmbedBatch_Errors(t *testing.T) {
	ctx := context.Background()

	tests := []struct {
		name     string
		embedder *mockEmbedder
		dim      int
		texts    []string
		mismatch bool
	}{
		{name: "empty text", embedder: &mockEmbedder{dim: 2}, dim: 2, texts: []string{"ok", "  "}},
		{name: "oversized text", embedder: &mockEmbedder{dim: 2}, dim: 2, texts: []string{strings.Repeat("x", 11)}},
		{name: "provider failure", embedder: &mockEmbedder{dim: 2, err: errors.New("quota exceeded")}, dim: 2, texts: []string{"ok"}},
		{name: "missing vectors", embedder: &mockEmbedder{dim: 2, drop: true}, dim: 2, texts: []string{"a", "b"}},
		{name: "wrong dimension", embedder: &mockEmbedder{dim: 4}, dim: 2, texts: []string{"a"}, mismatch: true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			s, err := NewEmbeddingService(tt.embedder, tt.dim, WithMaxInputChars(10))
			if err != nil {
				t.Fatalf("NewEmbeddingService failed: %v", err)
			}
			_, err = s.EmbedBatch(ctx, tt.texts)
			if !errors.Is(err, ErrEmbedding) {
				t.Fatalf("expected ErrEmbedding, got %v", err)
			}
			if errors.Is(err, ErrDimensionMismatch) != tt.mismatch {
				t.Errorf("ErrDimensionMismatch = %v, want %v", errors.Is(err, ErrDimensionMismatch), tt.mismatch)
			}
		})
	}
}

func TestEmbed_RejectsBeforeCallingProvider(t *testing.T) {
	m := &mockEmbedder{dim: 2}
	s, _ := NewEmbeddingService(m, 2)

	if _, err := s.Embed(context.Background(), ""); !errors.Is(err, ErrEmbedding) {
		t.Fatalf("expected ErrEmbedding, got %v", err)
	}
	if len(m.calls) != 0 {
		t.Errorf("provider should not be called for invalid input, got %d calls", len(m.calls))
	}
}

func TestNewEmbeddingService_InvalidDimension(t *testing.T) {
	if _, err := NewEmbeddingService(&mockEmbedder{}, 0); err == nil {
		t.Error("expected error for zero dimension")
	}
}
