// Package hashing provides a deterministic embedder that maps word tokens into a
// fixed number of buckets. It runs without a model or network access.
package hashing

import (
	"context"
	"hash/fnv"
	"math"
	"regexp"
	"strings"

	"github.com/barekit/relnotes/pkg/knowledge"
)

// DefaultDimension is used when New is given a non-positive dimension.
const DefaultDimension = 256

var tokenPattern = regexp.MustCompile(`[\p{L}\p{N}]+`)

var _ knowledge.Embedder = (*Embedder)(nil)

// Embedder hashes lowercase tokens into buckets and L2-normalises the counts.
type Embedder struct {
	dimension int
}

// New returns an Embedder producing vectors of the given dimension.
func New(dimension int) *Embedder {
	if dimension <= 0 {
		dimension = DefaultDimension
	}
	return &Embedder{dimension: dimension}
}

// Dimension returns the vector dimension.
func (e *Embedder) Dimension() int {
	return e.dimension
}

// Embed generates embeddings for the given texts.
func (e *Embedder) Embed(ctx context.Context, texts []string) ([][]float32, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	out := make([][]float32, len(texts))
	for i, t := range texts {
		out[i] = e.vector(t)
	}
	return out, nil
}

func (e *Embedder) vector(text string) []float32 {
	vec := make([]float32, e.dimension)
	for _, tok := range tokenPattern.FindAllString(strings.ToLower(text), -1) {
		h := fnv.New32a()
		_, _ = h.Write([]byte(tok))
		vec[h.Sum32()%uint32(e.dimension)]++
	}

	var sum float64
	for _, v := range vec {
		sum += float64(v) * float64(v)
	}
	if sum > 0 {
		norm := float32(1 / math.Sqrt(sum))
		for i := range vec {
			vec[i] *= norm
		}
	}
	return vec
}
