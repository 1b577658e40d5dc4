package main

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"os"
	"strings"

	"github.com/barekit/relnotes/pkg/cloudsql"
	"github.com/barekit/relnotes/pkg/config"
	"github.com/barekit/relnotes/pkg/knowledge"
	"github.com/barekit/relnotes/pkg/knowledge/hashing"
	kopenai "github.com/barekit/relnotes/pkg/knowledge/openai"
	"github.com/barekit/relnotes/pkg/knowledge/store"
	"github.com/barekit/relnotes/pkg/knowledge/vertex"
	"github.com/barekit/relnotes/pkg/llm"
	"github.com/barekit/relnotes/pkg/llm/gemini"
	lopenai "github.com/barekit/relnotes/pkg/llm/openai"
	"github.com/barekit/relnotes/pkg/lock"
	redislock "github.com/barekit/relnotes/pkg/lock/redis"
	"github.com/barekit/relnotes/pkg/source"
	"github.com/barekit/relnotes/pkg/source/bigquery"
	"github.com/barekit/relnotes/pkg/source/file"
	"github.com/openai/openai-go/option"
	"google.golang.org/genai"
)

// app holds the services built from configuration. Everything is constructed
// once and released by close.
type app struct {
	cfg      *config.Config
	logger   *slog.Logger
	genai    *genai.Client
	embedder *knowledge.EmbeddingService
	index    *knowledge.VectorIndex
	closers  []io.Closer
}

func newLogger(level, format string) *slog.Logger {
	var lvl slog.Level
	if err := lvl.UnmarshalText([]byte(level)); err != nil {
		lvl = slog.LevelInfo
	}
	opts := &slog.HandlerOptions{Level: lvl}
	if strings.EqualFold(format, "json") {
		return slog.New(slog.NewJSONHandler(os.Stderr, opts))
	}
	return slog.New(slog.NewTextHandler(os.Stderr, opts))
}

func newApp(ctx context.Context, cfg *config.Config) (*app, error) {
	a := &app{cfg: cfg, logger: newLogger(cfg.LogLevel, cfg.LogFormat)}
	slog.SetDefault(a.logger)

	if err := a.init(ctx); err != nil {
		a.close()
		return nil, err
	}
	return a, nil
}

func (a *app) init(ctx context.Context) error {
	cfg := a.cfg

	embedder, err := a.newEmbedder(ctx)
	if err != nil {
		return err
	}
	a.embedder, err = knowledge.NewEmbeddingService(embedder, cfg.Embedding.Dimension,
		knowledge.WithBatchSize(cfg.Embedding.BatchSize),
		knowledge.WithEmbeddingLogger(a.logger))
	if err != nil {
		return err
	}

	backend, closer, err := store.New(ctx, store.Config{
		Type: store.Type(cfg.VectorStore.Type),
		Postgres: cloudsql.Config{
			InstanceName: cfg.Database.InstanceName,
			User:         cfg.Database.User,
			Password:     cfg.Database.Password,
			Database:     cfg.Database.Name,
			DSN:          cfg.Database.DSN,
		},
		DSN:          cfg.Database.DSN,
		QdrantHost:   cfg.VectorStore.QdrantHost,
		QdrantPort:   cfg.VectorStore.QdrantPort,
		QdrantAPIKey: cfg.VectorStore.QdrantKey,
		Dimension:    cfg.Embedding.Dimension,
	})
	if err != nil {
		return fmt.Errorf("failed to open vector store: %w", err)
	}
	a.closers = append(a.closers, closer)

	a.index, err = knowledge.NewVectorIndex(backend, cfg.VectorStore.Collection, cfg.Embedding.Dimension,
		knowledge.WithIndexLogger(a.logger))
	return err
}

func (a *app) genaiClient(ctx context.Context) (*genai.Client, error) {
	if a.genai != nil {
		return a.genai, nil
	}
	client, err := genai.NewClient(ctx, &genai.ClientConfig{
		Backend:  genai.BackendVertexAI,
		Project:  a.cfg.Project,
		Location: a.cfg.Location,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create genai client: %w", err)
	}
	a.genai = client
	return client, nil
}

func (a *app) newEmbedder(ctx context.Context) (knowledge.Embedder, error) {
	cfg := a.cfg.Embedding
	switch strings.ToLower(cfg.Provider) {
	case "vertex":
		client, err := a.genaiClient(ctx)
		if err != nil {
			return nil, err
		}
		return vertex.New(client, cfg.Model, vertex.WithOutputDimensionality(cfg.Dimension)), nil
	case "openai":
		return kopenai.NewEmbedder(cfg.Model, cfg.Dimension, option.WithAPIKey(a.cfg.OpenAIAPIKey)), nil
	case "hashing":
		return hashing.New(cfg.Dimension), nil
	default:
		return nil, fmt.Errorf("unknown embedding provider %q", cfg.Provider)
	}
}

func (a *app) newGenerator(ctx context.Context) (*llm.Service, error) {
	cfg := a.cfg.Generation
	var provider llm.Provider
	switch strings.ToLower(cfg.Provider) {
	case "gemini":
		client, err := a.genaiClient(ctx)
		if err != nil {
			return nil, err
		}
		provider = gemini.New(client, cfg.Model)
	case "openai":
		p := lopenai.New(option.WithAPIKey(a.cfg.OpenAIAPIKey))
		p.SetModel(cfg.Model)
		provider = p
	default:
		return nil, fmt.Errorf("unknown generation provider %q", cfg.Provider)
	}
	return llm.NewService(provider, a.logger), nil
}

func (a *app) newSource(ctx context.Context) (source.Source, error) {
	cfg := a.cfg.Source
	switch strings.ToLower(cfg.Type) {
	case "bigquery":
		s, err := bigquery.New(ctx, a.cfg.Project, cfg.Product)
		if err != nil {
			return nil, err
		}
		a.closers = append(a.closers, s)
		return s, nil
	case "file":
		if cfg.File == "" {
			return nil, fmt.Errorf("file source requires SOURCE_FILE")
		}
		return file.New(cfg.File), nil
	default:
		return nil, fmt.Errorf("unknown source %q", cfg.Type)
	}
}

// newLocker returns the Redis lock when configured, otherwise the lease held by
// the vector store itself.
func (a *app) newLocker(ctx context.Context) (lock.Locker, error) {
	if a.cfg.LockRedisURL == "" {
		return a.index, nil
	}
	l, err := redislock.NewFromURL(ctx, a.cfg.LockRedisURL, redislock.DefaultTTL)
	if err != nil {
		return nil, err
	}
	a.closers = append(a.closers, l)
	return l, nil
}

func (a *app) close() {
	for i := len(a.closers) - 1; i >= 0; i-- {
		if err := a.closers[i].Close(); err != nil {
			a.logger.Warn("failed to close resource", "error", err)
		}
	}
	a.closers = nil
}
