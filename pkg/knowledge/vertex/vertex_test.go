package vertex

import (
	"context"
	"testing"

	"google.golang.org/genai"
)

type mockModels struct {
	dims   int
	model  string
	config *genai.EmbedContentConfig
	short  bool
}

func (m *mockModels) EmbedContent(ctx context.Context, model string, contents []*genai.Content, config *genai.EmbedContentConfig) (*genai.EmbedContentResponse, error) {
	m.model = model
	m.config = config
	resp := &genai.EmbedContentResponse{}
	for i := range contents {
		v := make([]float32, m.dims)
		v[0] = float32(i)
		resp.Embeddings = append(resp.Embeddings, &genai.ContentEmbedding{Values: v})
	}
	if m.short {
		resp.Embeddings = resp.Embeddings[1:]
	}
	return resp, nil
}

func TestEmbed(t *testing.T) {
	mock := &mockModels{dims: 3}
	e := NewWithAPI(mock, "", WithTaskType("RETRIEVAL_DOCUMENT"), WithOutputDimensionality(3))

	vectors, err := e.Embed(context.Background(), []string{"a", "b"})
	if err != nil {
		t.Fatalf("Embed failed: %v", err)
	}
	if len(vectors) != 2 || vectors[1][0] != 1 {
		t.Errorf("unexpected vectors: %v", vectors)
	}
	if mock.model != DefaultModel {
		t.Errorf("expected model %s, got %s", DefaultModel, mock.model)
	}
	if mock.config.TaskType != "RETRIEVAL_DOCUMENT" {
		t.Errorf("task type not sent: %q", mock.config.TaskType)
	}
	if mock.config.OutputDimensionality == nil || *mock.config.OutputDimensionality != 3 {
		t.Error("output dimensionality not sent")
	}
}

func TestEmbed_CountMismatch(t *testing.T) {
	e := NewWithAPI(&mockModels{dims: 2, short: true}, "m")
	if _, err := e.Embed(context.Background(), []string{"a", "b"}); err == nil {
		t.Error("expected error when fewer embeddings are returned")
	}
}
