package store

import (
	"context"
	"fmt"
	"io"

	"github.com/barekit/relnotes/pkg/cloudsql"
	"github.com/barekit/relnotes/pkg/knowledge"
	gormstore "github.com/barekit/relnotes/pkg/knowledge/gorm"
	"github.com/barekit/relnotes/pkg/knowledge/memory"
	"github.com/barekit/relnotes/pkg/knowledge/postgres"
	"github.com/barekit/relnotes/pkg/knowledge/qdrant"
)

type Type string

const (
	TypePostgres Type = "postgres"
	TypeQdrant   Type = "qdrant"
	TypeSQLite   Type = "sqlite"
	TypeMySQL    Type = "mysql"
	TypeMSSQL    Type = "sqlserver"
	TypeMemory   Type = "memory"
)

// Config holds configuration for vector index backends.
type Config struct {
	Type Type
	// Postgres is used for TypePostgres.
	Postgres cloudsql.Config
	// DSN is used for the SQLite, MySQL and SQL Server backends.
	DSN string
	// Qdrant is used for TypeQdrant.
	QdrantHost   string
	QdrantPort   int
	QdrantAPIKey string
	QdrantTLS    bool
	Dimension    int
}

// New creates a backend from the configuration. The returned closer releases
// connections held by the backend and is never nil.
func New(ctx context.Context, cfg Config) (knowledge.Backend, io.Closer, error) {
	switch cfg.Type {
	case TypePostgres:
		provider, err := cloudsql.New(ctx, cfg.Postgres)
		if err != nil {
			return nil, nil, err
		}
		conn, err := provider.Connect(ctx)
		if err != nil {
			_ = provider.Close()
			return nil, nil, err
		}
		s, err := postgres.New(conn)
		if err != nil {
			_ = conn.Close()
			_ = provider.Close()
			return nil, nil, err
		}
		return s, closers{conn, provider}, nil

	case TypeQdrant:
		port := cfg.QdrantPort
		if port == 0 {
			port = 6334
		}
		s, err := qdrant.New(qdrant.Config{
			Host:       cfg.QdrantHost,
			Port:       port,
			APIKey:     cfg.QdrantAPIKey,
			UseTLS:     cfg.QdrantTLS,
			VectorSize: uint64(cfg.Dimension),
		})
		if err != nil {
			return nil, nil, err
		}
		return s, s, nil

	case TypeSQLite:
		return openSQL(gormstore.DialectSQLite, cfg.DSN)

	case TypeMySQL:
		return openSQL(gormstore.DialectMySQL, cfg.DSN)

	case TypeMSSQL:
		return openSQL(gormstore.DialectMSSQL, cfg.DSN)

	case TypeMemory:
		return memory.New(), closers{}, nil

	default:
		return nil, nil, fmt.Errorf("unsupported vector store type: %s", cfg.Type)
	}
}

func openSQL(dialect gormstore.Dialect, dsn string) (knowledge.Backend, io.Closer, error) {
	s, err := gormstore.Open(dialect, dsn)
	if err != nil {
		return nil, nil, err
	}
	return s, s, nil
}

type closers []io.Closer

func (c closers) Close() error {
	var first error
	for _, cl := range c {
		if err := cl.Close(); err != nil && first == nil {
			first = err
		}
	}
	return first
}
