package knowledge

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
)

const (
	// DefaultBatchSize is the number of texts sent per embedding call.
	DefaultBatchSize = 100
	// DefaultMaxInputChars bounds a single text passed to the model.
	DefaultMaxInputChars = 20000
)

// EmbeddingService validates input for an Embedder, splits work into batches and
// checks that every returned vector has the configured dimension.
type EmbeddingService struct {
	embedder      Embedder
	dimension     int
	batchSize     int
	maxInputChars int
	logger        *slog.Logger
}

// EmbeddingOption configures an EmbeddingService.
type EmbeddingOption func(*EmbeddingService)

// WithBatchSize sets the number of texts per provider call.
func WithBatchSize(n int) EmbeddingOption {
	return func(s *EmbeddingService) {
		if n > 0 {
			s.batchSize = n
		}
	}
}

// WithMaxInputChars sets the largest accepted text.
func WithMaxInputChars(n int) EmbeddingOption {
	return func(s *EmbeddingService) {
		if n > 0 {
			s.maxInputChars = n
		}
	}
}

// WithEmbeddingLogger sets the logger used for batch progress.
func WithEmbeddingLogger(l *slog.Logger) EmbeddingOption {
	return func(s *EmbeddingService) {
		s.logger = l
	}
}

// NewEmbeddingService creates an EmbeddingService producing vectors of the given dimension.
func NewEmbeddingService(embedder Embedder, dimension int, opts ...EmbeddingOption) (*EmbeddingService, error) {
	if embedder == nil {
		return nil, fmt.Errorf("embedder is required")
	}
	if dimension <= 0 {
		return nil, fmt.Errorf("invalid embedding dimension: %d", dimension)
	}
	s := &EmbeddingService{
		embedder:      embedder,
		dimension:     dimension,
		batchSize:     DefaultBatchSize,
		maxInputChars: DefaultMaxInputChars,
		logger:        slog.Default(),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s, nil
}

// Dimension returns the vector dimension this service produces.
func (s *EmbeddingService) Dimension() int {
	return s.dimension
}

// Embed embeds a single text.
func (s *EmbeddingService) Embed(ctx context.Context, text string) ([]float32, error) {
	vectors, err := s.EmbedBatch(ctx, []string{text})
	if err != nil {
		return nil, err
	}
	return vectors[0], nil
}

// EmbedBatch embeds texts, preserving order.
func (s *EmbeddingService) EmbedBatch(ctx context.Context, texts []string) ([][]float32, error) {
	for i, t := range texts {
		if strings.TrimSpace(t) == "" {
			return nil, fmt.Errorf("%w: text %d is empty", ErrEmbedding, i)
		}
		if len(t) > s.maxInputChars {
			return nil, fmt.Errorf("%w: text %d exceeds %d characters", ErrEmbedding, i, s.maxInputChars)
		}
	}

	out := make([][]float32, 0, len(texts))
	for start := 0; start < len(texts); start += s.batchSize {
		end := start + s.batchSize
		if end > len(texts) {
			end = len(texts)
		}
		batch := texts[start:end]

		vectors, err := s.embedder.Embed(ctx, batch)
		if err != nil {
			return nil, fmt.Errorf("%w: %w", ErrEmbedding, err)
		}
		if len(vectors) != len(batch) {
			return nil, fmt.Errorf("%w: got %d vectors for %d texts", ErrEmbedding, len(vectors), len(batch))
		}
		for i, v := range vectors {
			if len(v) != s.dimension {
				return nil, fmt.Errorf("%w: %w: text %d has %d dimensions, want %d",
					ErrEmbedding, ErrDimensionMismatch, start+i, len(v), s.dimension)
			}
		}
		out = append(out, vectors...)

		if len(texts) > s.batchSize {
			s.logger.Debug("embedded batch", "done", end, "total", len(texts))
		}
	}
	return out, nil
}
