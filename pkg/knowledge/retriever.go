package knowledge

import (
	"context"
	"strings"
)

// DefaultK is the number of entries retrieved per question.
const DefaultK = 4

// Searcher is the read side of a vector index.
type Searcher interface {
	Search(ctx context.Context, query []float32, k int) ([]Entry, error)
}

// QueryEmbedder embeds a single query text.
type QueryEmbedder interface {
	Embed(ctx context.Context, text string) ([]float32, error)
}

// Retriever embeds a question and returns the closest entries from the index.
type Retriever struct {
	embedder QueryEmbedder
	index    Searcher
	k        int
}

// NewRetriever creates a Retriever returning k entries per question.
// A negative k selects DefaultK.
func NewRetriever(embedder QueryEmbedder, index Searcher, k int) *Retriever {
	if k < 0 {
		k = DefaultK
	}
	return &Retriever{
		embedder: embedder,
		index:    index,
		k:        k,
	}
}

// K returns the configured result count.
func (r *Retriever) K() int {
	return r.k
}

// Retrieve finds relevant entries for a question.
func (r *Retriever) Retrieve(ctx context.Context, question string) ([]Entry, error) {
	vector, err := r.embedder.Embed(ctx, question)
	if err != nil {
		return nil, err
	}
	return r.index.Search(ctx, vector, r.k)
}

// Context retrieves entries for a question and formats them as one context string.
func (r *Retriever) Context(ctx context.Context, question string) (string, []Entry, error) {
	entries, err := r.Retrieve(ctx, question)
	if err != nil {
		return "", nil, err
	}
	return FormatContext(entries), entries, nil
}

// FormatContext joins entry texts with a blank line, keeping their order.
func FormatContext(entries []Entry) string {
	texts := make([]string, len(entries))
	for i, e := range entries {
		texts[i] = e.Content
	}
	return strings.Join(texts, "\n\n")
}
