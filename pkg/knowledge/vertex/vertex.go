// Package vertex embeds text with Google embedding models through the genai SDK,
// against either Vertex AI or the Gemini API depending on the client.
package vertex

import (
	"context"
	"fmt"

	"github.com/barekit/relnotes/pkg/knowledge"
	"google.golang.org/genai"
)

// DefaultModel is the embedding model used when none is configured.
const DefaultModel = "text-embedding-004"

var _ knowledge.Embedder = (*Embedder)(nil)

// EmbedAPI is the subset of *genai.Models used by the Embedder.
type EmbedAPI interface {
	EmbedContent(ctx context.Context, model string, contents []*genai.Content, config *genai.EmbedContentConfig) (*genai.EmbedContentResponse, error)
}

// Embedder implements knowledge.Embedder using genai EmbedContent.
type Embedder struct {
	models   EmbedAPI
	model    string
	taskType string
	dims     int32
}

// Option configures an Embedder.
type Option func(*Embedder)

// WithTaskType sets the embedding task type, e.g. "RETRIEVAL_DOCUMENT".
func WithTaskType(taskType string) Option {
	return func(e *Embedder) {
		e.taskType = taskType
	}
}

// WithOutputDimensionality truncates embeddings to n dimensions.
func WithOutputDimensionality(n int) Option {
	return func(e *Embedder) {
		e.dims = int32(n)
	}
}

// New creates an Embedder backed by client.
func New(client *genai.Client, model string, opts ...Option) *Embedder {
	return NewWithAPI(client.Models, model, opts...)
}

// NewWithAPI creates an Embedder over any EmbedAPI implementation.
func NewWithAPI(api EmbedAPI, model string, opts ...Option) *Embedder {
	if model == "" {
		model = DefaultModel
	}
	e := &Embedder{models: api, model: model}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// Embed generates embeddings for the given texts.
func (e *Embedder) Embed(ctx context.Context, texts []string) ([][]float32, error) {
	contents := make([]*genai.Content, len(texts))
	for i, t := range texts {
		contents[i] = genai.NewContentFromText(t, genai.RoleUser)
	}

	cfg := &genai.EmbedContentConfig{TaskType: e.taskType}
	if e.dims > 0 {
		cfg.OutputDimensionality = &e.dims
	}

	resp, err := e.models.EmbedContent(ctx, e.model, contents, cfg)
	if err != nil {
		return nil, fmt.Errorf("failed to generate embeddings: %w", err)
	}
	if len(resp.Embeddings) != len(texts) {
		return nil, fmt.Errorf("got %d embeddings for %d texts", len(resp.Embeddings), len(texts))
	}

	embeddings := make([][]float32, len(resp.Embeddings))
	for i, emb := range resp.Embeddings {
		if emb == nil {
			return nil, fmt.Errorf("missing embedding for text %d", i)
		}
		embeddings[i] = emb.Values
	}
	return embeddings, nil
}
