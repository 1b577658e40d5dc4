package qdrant

import (
	"context"
	"fmt"

	"github.com/barekit/relnotes/pkg/knowledge"
	"github.com/qdrant/go-client/qdrant"
)

const (
	payloadContent = "content"
	payloadID      = "entry_id"
	payloadSeq     = "seq"

	upsertBatchSize = 256
)

// QdrantStore implements knowledge.Backend using Qdrant. Physical collections are
// real Qdrant collections; the logical name is a collection alias.
type QdrantStore struct {
	client     *qdrant.Client
	vectorSize uint64
}

// Config holds connection details for Qdrant.
type Config struct {
	Host       string
	Port       int
	APIKey     string
	UseTLS     bool
	VectorSize uint64
}

// New creates a new QdrantStore.
func New(cfg Config) (*QdrantStore, error) {
	if cfg.VectorSize == 0 {
		return nil, fmt.Errorf("vector size is required")
	}
	client, err := qdrant.NewClient(&qdrant.Config{
		Host:   cfg.Host,
		Port:   cfg.Port,
		APIKey: cfg.APIKey,
		UseTLS: cfg.UseTLS,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create client: %w", err)
	}

	return &QdrantStore{
		client:     client,
		vectorSize: cfg.VectorSize,
	}, nil
}

// Close closes the underlying gRPC connection.
func (s *QdrantStore) Close() error {
	return s.client.Close()
}

// ResetCollection drops and recreates the collection with cosine distance.
func (s *QdrantStore) ResetCollection(ctx context.Context, name string) error {
	exists, err := s.client.CollectionExists(ctx, name)
	if err != nil {
		return fmt.Errorf("failed to check collection existence: %w", err)
	}
	if exists {
		if err := s.client.DeleteCollection(ctx, name); err != nil {
			return fmt.Errorf("failed to delete collection: %w", err)
		}
	}

	err = s.client.CreateCollection(ctx, &qdrant.CreateCollection{
		CollectionName: name,
		VectorsConfig: qdrant.NewVectorsConfig(&qdrant.VectorParams{
			Size:     s.vectorSize,
			Distance: qdrant.Distance_Cosine,
		}),
	})
	if err != nil {
		return fmt.Errorf("failed to create collection: %w", err)
	}
	return nil
}

func (s *QdrantStore) Upsert(ctx context.Context, name string, entries []knowledge.Entry) error {
	wait := true
	for start := 0; start < len(entries); start += upsertBatchSize {
		end := start + upsertBatchSize
		if end > len(entries) {
			end = len(entries)
		}

		points := make([]*qdrant.PointStruct, 0, end-start)
		for _, e := range entries[start:end] {
			payload := map[string]*qdrant.Value{
				payloadContent: qdrant.NewValueString(e.Content),
				payloadID:      qdrant.NewValueString(e.ID),
				payloadSeq:     qdrant.NewValueInt(int64(e.Seq)),
			}
			for k, v := range e.Metadata {
				// Only string metadata is stored
				if strVal, ok := v.(string); ok {
					payload[k] = qdrant.NewValueString(strVal)
				}
			}

			points = append(points, &qdrant.PointStruct{
				Id:      qdrant.NewIDUUID(e.ID),
				Vectors: qdrant.NewVectors(e.Vector...),
				Payload: payload,
			})
		}

		if _, err := s.client.Upsert(ctx, &qdrant.UpsertPoints{
			CollectionName: name,
			Points:         points,
			Wait:           &wait,
		}); err != nil {
			return err
		}
	}
	return nil
}

func (s *QdrantStore) Search(ctx context.Context, name string, query []float32, k int) ([]knowledge.Entry, error) {
	return s.search(ctx, name, query, k)
}

// SearchActive queries the alias, which Qdrant resolves server side.
func (s *QdrantStore) SearchActive(ctx context.Context, logical string, query []float32, k int) ([]knowledge.Entry, error) {
	entries, err := s.search(ctx, logical, query, k)
	if err != nil {
		if active, aerr := s.Active(ctx, logical); aerr == nil && active == "" {
			return nil, nil
		}
		return nil, err
	}
	return entries, nil
}

// search returns the top k hits plus every hit tied with the k-th score, so the
// caller can break ties by Seq. Qdrant orders ties arbitrarily.
func (s *QdrantStore) search(ctx context.Context, collection string, query []float32, k int) ([]knowledge.Entry, error) {
	if k <= 0 {
		return nil, nil
	}
	limit := uint64(2 * k)
	for {
		res, err := s.client.Query(ctx, &qdrant.QueryPoints{
			CollectionName: collection,
			Query:          qdrant.NewQuery(query...),
			Limit:          &limit,
			WithPayload:    qdrant.NewWithPayload(true),
		})
		if err != nil {
			return nil, err
		}
		if !truncatedTie(res, limit, k) {
			return toEntries(res), nil
		}
		limit *= 2
	}
}

// truncatedTie reports whether a full page may have cut off hits tied with the k-th.
func truncatedTie(res []*qdrant.ScoredPoint, limit uint64, k int) bool {
	if uint64(len(res)) < limit || len(res) <= k {
		return false
	}
	return res[len(res)-1].Score == res[k-1].Score
}

func toEntries(res []*qdrant.ScoredPoint) []knowledge.Entry {
	entries := make([]knowledge.Entry, len(res))
	for i, hit := range res {
		metadata := make(map[string]interface{})
		for k, v := range hit.Payload {
			switch k {
			case payloadContent, payloadID, payloadSeq:
			default:
				metadata[k] = v.GetStringValue()
			}
		}

		entries[i] = knowledge.Entry{
			ID:       hit.Payload[payloadID].GetStringValue(),
			Seq:      int(hit.Payload[payloadSeq].GetIntegerValue()),
			Content:  hit.Payload[payloadContent].GetStringValue(),
			Metadata: metadata,
			Score:    hit.Score,
		}
	}
	return entries
}

func (s *QdrantStore) Count(ctx context.Context, name string) (int, error) {
	exact := true
	n, err := s.client.Count(ctx, &qdrant.CountPoints{
		CollectionName: name,
		Exact:          &exact,
	})
	if err != nil {
		return 0, err
	}
	return int(n), nil
}

func (s *QdrantStore) Active(ctx context.Context, logical string) (string, error) {
	aliases, err := s.client.ListAliases(ctx)
	if err != nil {
		return "", fmt.Errorf("failed to list aliases: %w", err)
	}
	for _, a := range aliases {
		if a.GetAliasName() == logical {
			return a.GetCollectionName(), nil
		}
	}
	return "", nil
}

// Activate re-points the alias in one UpdateAliases request, which Qdrant applies
// atomically. The from check is a separate read, so concurrent writers must hold
// an external lock.
func (s *QdrantStore) Activate(ctx context.Context, logical, from, to string) error {
	current, err := s.Active(ctx, logical)
	if err != nil {
		return err
	}
	if current != from {
		return fmt.Errorf("%w: %s points at %q, expected %q", knowledge.ErrActiveChanged, logical, current, from)
	}

	var ops []*qdrant.AliasOperations
	if current != "" {
		ops = append(ops, qdrant.NewAliasDelete(logical))
	}
	ops = append(ops, qdrant.NewAliasCreate(logical, to))

	if err := s.client.UpdateAliases(ctx, ops); err != nil {
		return fmt.Errorf("failed to update aliases: %w", err)
	}
	return nil
}
