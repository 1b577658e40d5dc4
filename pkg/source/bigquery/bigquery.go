// Package bigquery reads product release notes from the public
// google_cloud_release_notes BigQuery dataset.
package bigquery

import (
	"context"
	"errors"
	"fmt"

	"cloud.google.com/go/bigquery"
	"github.com/barekit/relnotes/pkg/knowledge"
	"google.golang.org/api/iterator"
)

const (
	// DefaultTable is the public release notes table.
	DefaultTable = "bigquery-public-data.google_cloud_release_notes.release_notes"
	// DefaultProduct is the product whose notes are indexed.
	DefaultProduct = "Cloud Run"
)

// Source fetches release notes newest first, each formatted as "January 02, 2006: description".
type Source struct {
	client  *bigquery.Client
	table   string
	product string
}

// New creates a Source billed to projectID.
func New(ctx context.Context, projectID, product string) (*Source, error) {
	client, err := bigquery.NewClient(ctx, projectID)
	if err != nil {
		return nil, fmt.Errorf("failed to create bigquery client: %w", err)
	}
	if product == "" {
		product = DefaultProduct
	}
	return &Source{client: client, table: DefaultTable, product: product}, nil
}

// Close closes the BigQuery client.
func (s *Source) Close() error {
	return s.client.Close()
}

type row struct {
	ReleaseNote bigquery.NullString `bigquery:"release_note"`
}

func (s *Source) query() string {
	return fmt.Sprintf(`
	SELECT
	  CONCAT(FORMAT_DATE("%%B %%d, %%Y", published_at), ": ", description) AS release_note
	FROM `+"`%s`"+`
	WHERE product_name = @product
	ORDER BY published_at DESC
	`, s.table)
}

// FetchAll runs the query and returns every row as a document.
func (s *Source) FetchAll(ctx context.Context) ([]knowledge.Document, error) {
	q := s.client.Query(s.query())
	q.Parameters = []bigquery.QueryParameter{{Name: "product", Value: s.product}}

	it, err := q.Read(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to run release notes query: %w", err)
	}

	var docs []knowledge.Document
	for i := 0; ; i++ {
		var r row
		err := it.Next(&r)
		if errors.Is(err, iterator.Done) {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("failed to read row %d: %w", i, err)
		}
		if !r.ReleaseNote.Valid || r.ReleaseNote.StringVal == "" {
			return nil, fmt.Errorf("row %d has no release note text", i)
		}
		docs = append(docs, knowledge.Document{
			Source:  fmt.Sprintf("%s/%s#%d", s.table, s.product, i+1),
			Content: r.ReleaseNote.StringVal,
		})
	}
	return docs, nil
}
