// Package source defines where ingestion reads documents from.
package source

import (
	"context"
	"strconv"

	"github.com/barekit/relnotes/pkg/knowledge"
)

// Source yields every document of one ingestion run.
type Source interface {
	FetchAll(ctx context.Context) ([]knowledge.Document, error)
}

// Static is a fixed in-memory Source.
type Static []knowledge.Document

// FetchAll returns a copy of the documents.
func (s Static) FetchAll(ctx context.Context) ([]knowledge.Document, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	out := make([]knowledge.Document, len(s))
	copy(out, s)
	return out, nil
}

// Texts builds a Static source from plain strings, numbering sources from 1.
func Texts(prefix string, texts ...string) Static {
	docs := make(Static, len(texts))
	for i, t := range texts {
		docs[i] = knowledge.Document{Source: prefix + "#" + strconv.Itoa(i+1), Content: t}
	}
	return docs
}
