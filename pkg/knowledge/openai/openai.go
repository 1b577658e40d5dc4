package openai

import (
	"context"
	"fmt"

	"github.com/barekit/relnotes/pkg/knowledge"
	"github.com/openai/openai-go"
	"github.com/openai/openai-go/option"
)

var _ knowledge.Embedder = (*Embedder)(nil)

// Embedder implements knowledge.Embedder using OpenAI.
type Embedder struct {
	client     *openai.Client
	model      openai.EmbeddingModel
	dimensions int64
}

// NewEmbedder creates a new OpenAI Embedder. An empty model selects
// text-embedding-3-small; dimensions of 0 keeps the model's native size.
func NewEmbedder(model string, dimensions int, opts ...option.RequestOption) *Embedder {
	client := openai.NewClient(opts...)
	e := &Embedder{
		client:     &client,
		model:      openai.EmbeddingModelTextEmbedding3Small,
		dimensions: int64(dimensions),
	}
	if model != "" {
		e.model = openai.EmbeddingModel(model)
	}
	return e
}

// Embed generates embeddings for the given texts.
func (e *Embedder) Embed(ctx context.Context, texts []string) ([][]float32, error) {
	params := openai.EmbeddingNewParams{
		Input: openai.EmbeddingNewParamsInputUnion{
			OfArrayOfStrings: texts,
		},
		Model: e.model,
	}
	if e.dimensions > 0 {
		params.Dimensions = openai.Int(e.dimensions)
	}

	resp, err := e.client.Embeddings.New(ctx, params)
	if err != nil {
		return nil, fmt.Errorf("failed to generate embeddings: %w", err)
	}

	embeddings := make([][]float32, len(texts))
	for _, data := range resp.Data {
		if data.Index < 0 || int(data.Index) >= len(texts) {
			return nil, fmt.Errorf("embedding index %d out of range", data.Index)
		}
		// Convert []float64 to []float32
		vec := make([]float32, len(data.Embedding))
		for j, v := range data.Embedding {
			vec[j] = float32(v)
		}
		embeddings[data.Index] = vec
	}

	return embeddings, nil
}
