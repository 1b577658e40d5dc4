// Package ingest loads every document of a source into a vector index as one
// full replace.
package ingest

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/barekit/relnotes/pkg/knowledge"
	"github.com/barekit/relnotes/pkg/lock"
	"github.com/barekit/relnotes/pkg/source"
	"github.com/google/uuid"
)

// ErrConcurrentIngestion is returned when another run holds the collection.
var ErrConcurrentIngestion = errors.New("ingestion already running for collection")

// Embedder embeds document texts in order.
type Embedder interface {
	EmbedBatch(ctx context.Context, texts []string) ([][]float32, error)
}

// Index is the write side of a vector index.
type Index interface {
	Name() string
	Replace(ctx context.Context, entries []knowledge.Entry) error
}

// RetryPolicy bounds retries of transient index writes.
type RetryPolicy struct {
	MaxAttempts int
	Initial     time.Duration
	Max         time.Duration
}

// DefaultRetry retries a failed replace twice, waiting 500ms then 1s.
var DefaultRetry = RetryPolicy{MaxAttempts: 3, Initial: 500 * time.Millisecond, Max: 5 * time.Second}

func (p RetryPolicy) delay(attempt int) time.Duration {
	d := p.Initial << (attempt - 1)
	if d > p.Max || d <= 0 {
		d = p.Max
	}
	return d
}

// Report summarises one run.
type Report struct {
	Collection string        `json:"collection"`
	Fetched    int           `json:"fetched"`
	Indexed    int           `json:"indexed"`
	Attempts   int           `json:"attempts"`
	Duration   time.Duration `json:"duration"`
}

// Job runs ingestion: fetch, embed, replace.
type Job struct {
	source   source.Source
	embedder Embedder
	index    Index
	locker   lock.Locker
	retry    RetryPolicy
	newID    func() string
	logger   *slog.Logger
}

// Option configures a Job.
type Option func(*Job)

// WithLocker sets the lock used to serialize runs. Defaults to the index itself
// when it implements lock.Locker, so runs sharing a store exclude each other, and
// to an in-process lock otherwise.
func WithLocker(l lock.Locker) Option {
	return func(j *Job) {
		j.locker = l
	}
}

// WithRetry sets the retry policy for transient index writes.
func WithRetry(p RetryPolicy) Option {
	return func(j *Job) {
		j.retry = p
	}
}

// WithLogger sets the logger.
func WithLogger(l *slog.Logger) Option {
	return func(j *Job) {
		j.logger = l
	}
}

// WithIDGenerator sets the entry id generator. Defaults to random UUIDs.
func WithIDGenerator(fn func() string) Option {
	return func(j *Job) {
		j.newID = fn
	}
}

// New creates a Job.
func New(src source.Source, embedder Embedder, index Index, opts ...Option) *Job {
	j := &Job{
		source:   src,
		embedder: embedder,
		index:    index,
		retry:    DefaultRetry,
		newID:    uuid.NewString,
		logger:   slog.Default(),
	}
	for _, opt := range opts {
		opt(j)
	}
	if j.locker == nil {
		if l, ok := index.(lock.Locker); ok {
			j.locker = l
		} else {
			j.locker = lock.NewLocal()
		}
	}
	if j.retry.MaxAttempts < 1 {
		j.retry.MaxAttempts = 1
	}
	return j
}

// Run executes one ingestion. When the source yields no documents the existing
// collection is left as it is and the report shows zero indexed.
func (j *Job) Run(ctx context.Context) (Report, error) {
	start := time.Now()
	report := Report{Collection: j.index.Name()}

	err := j.locker.WithLock(ctx, "ingest:"+j.index.Name(), func(ctx context.Context) error {
		return j.run(ctx, &report)
	})
	report.Duration = time.Since(start)

	if errors.Is(err, lock.ErrLocked) {
		return report, fmt.Errorf("%w: %s", ErrConcurrentIngestion, j.index.Name())
	}
	if err != nil {
		j.logger.Error("ingestion failed", "collection", report.Collection, "fetched", report.Fetched, "error", err)
		return report, err
	}

	j.logger.Info("ingestion complete", "collection", report.Collection,
		"fetched", report.Fetched, "indexed", report.Indexed, "duration", report.Duration)
	return report, nil
}

func (j *Job) run(ctx context.Context, report *Report) error {
	docs, err := j.source.FetchAll(ctx)
	if err != nil {
		return fmt.Errorf("%w: %w", knowledge.ErrSourceFetch, err)
	}
	report.Fetched = len(docs)
	j.logger.Info("fetched documents", "collection", report.Collection, "count", len(docs))

	if len(docs) == 0 {
		j.logger.Warn("no documents fetched, keeping existing collection", "collection", report.Collection)
		return nil
	}

	texts := make([]string, len(docs))
	for i, d := range docs {
		texts[i] = d.Content
	}
	j.logger.Info("generating embeddings", "count", len(texts))
	vectors, err := j.embedder.EmbedBatch(ctx, texts)
	if err != nil {
		return err
	}

	entries := make([]knowledge.Entry, len(docs))
	for i, d := range docs {
		entries[i] = knowledge.Entry{
			ID:       j.newID(),
			Content:  d.Content,
			Metadata: map[string]interface{}{"source": d.Source},
			Vector:   vectors[i],
		}
	}

	if err := j.replace(ctx, entries, report); err != nil {
		return err
	}
	report.Indexed = len(entries)
	return nil
}

func (j *Job) replace(ctx context.Context, entries []knowledge.Entry, report *Report) error {
	var err error
	for attempt := 1; attempt <= j.retry.MaxAttempts; attempt++ {
		report.Attempts = attempt
		if attempt > 1 {
			wait := j.retry.delay(attempt - 1)
			j.logger.Warn("retrying index replace", "attempt", attempt, "wait", wait, "error", err)
			select {
			case <-ctx.Done():
				return ctx.Err()
			case <-time.After(wait):
			}
		}

		err = j.index.Replace(ctx, entries)
		if err == nil || !transient(err) {
			return err
		}
	}
	return err
}

func transient(err error) bool {
	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return false
	}
	if errors.Is(err, knowledge.ErrDimensionMismatch) || errors.Is(err, lock.ErrLocked) || errors.Is(err, knowledge.ErrActiveChanged) {
		return false
	}
	return errors.Is(err, knowledge.ErrIndexWrite)
}
