// Package rag answers questions by retrieving release notes and generating an
// answer conditioned on them.
package rag

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/barekit/relnotes/pkg/knowledge"
	"github.com/barekit/relnotes/pkg/llm"
	"github.com/barekit/relnotes/pkg/prompt"
)

var (
	// ErrTimeout is returned when a request exceeds its deadline.
	ErrTimeout = errors.New("request timed out")
	// ErrEmptyQuestion is returned for a blank question.
	ErrEmptyQuestion = errors.New("question is empty")
)

// Retriever returns the formatted context for a question.
type Retriever interface {
	Context(ctx context.Context, question string) (string, []knowledge.Entry, error)
}

// Generator produces an answer under a safety policy.
type Generator interface {
	Generate(ctx context.Context, req llm.Request, safety llm.SafetyConfig) (llm.Response, error)
}

// Answer is the result of one question.
type Answer struct {
	Answer     string         `json:"answer"`
	Blocked    bool           `json:"blocked"`
	Categories []llm.Category `json:"blocked_categories,omitempty"`
	Sources    []string       `json:"sources,omitempty"`
}

// Pipeline runs embed, retrieve, compose and generate for each question.
// It holds no per-request state and is safe for concurrent use.
type Pipeline struct {
	retriever Retriever
	generator Generator
	template  *prompt.Template
	safety    llm.SafetyConfig
	timeout   time.Duration
	logger    *slog.Logger
	debug     bool
}

// Option configures a Pipeline.
type Option func(*Pipeline)

// WithTemplate sets the prompt template. Defaults to prompt.V1.
func WithTemplate(t *prompt.Template) Option {
	return func(p *Pipeline) {
		p.template = t
	}
}

// WithSafety sets the safety thresholds.
func WithSafety(s llm.SafetyConfig) Option {
	return func(p *Pipeline) {
		p.safety = s
	}
}

// WithTimeout bounds each request. Zero disables the bound.
func WithTimeout(d time.Duration) Option {
	return func(p *Pipeline) {
		p.timeout = d
	}
}

// WithLogger sets the logger.
func WithLogger(l *slog.Logger) Option {
	return func(p *Pipeline) {
		p.logger = l
	}
}

// WithDebug logs each stage of a request.
func WithDebug(enable bool) Option {
	return func(p *Pipeline) {
		p.debug = enable
	}
}

// New creates a Pipeline.
func New(retriever Retriever, generator Generator, opts ...Option) *Pipeline {
	p := &Pipeline{
		retriever: retriever,
		generator: generator,
		template:  prompt.V1,
		safety:    llm.DefaultSafety(),
		logger:    slog.Default(),
	}
	for _, opt := range opts {
		opt(p)
	}
	return p
}

// TemplateVersion returns the version of the prompt template in use.
func (p *Pipeline) TemplateVersion() string {
	return p.template.Version()
}

// Answer answers one question. A safety block is returned as a successful
// Answer with Blocked set.
func (p *Pipeline) Answer(ctx context.Context, question string) (Answer, error) {
	if strings.TrimSpace(question) == "" {
		return Answer{}, ErrEmptyQuestion
	}

	if p.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, p.timeout)
		defer cancel()
	}

	contextText, entries, err := p.retriever.Context(ctx, question)
	if err != nil {
		return Answer{}, p.wrap(ctx, "retrieve", err)
	}
	if p.debug {
		p.logger.Info("retrieved context", "entries", len(entries), "template", p.template.Version())
	}

	rendered := p.template.Render(contextText, question)
	resp, err := p.generator.Generate(ctx, llm.Request{Prompt: rendered}, p.safety)
	if err != nil {
		return Answer{}, p.wrap(ctx, "generate", err)
	}

	out := Answer{
		Answer:     resp.Answer,
		Blocked:    resp.Blocked,
		Categories: resp.Categories,
	}
	if !resp.Blocked {
		out.Sources = sources(entries)
	}
	if p.debug {
		p.logger.Info("answered question", "blocked", out.Blocked, "answer_length", len(out.Answer))
	}
	return out, nil
}

func (p *Pipeline) wrap(ctx context.Context, stage string, err error) error {
	if errors.Is(err, context.DeadlineExceeded) || errors.Is(ctx.Err(), context.DeadlineExceeded) {
		p.logger.Warn("request timed out", "stage", stage, "timeout", p.timeout)
		return fmt.Errorf("%w: %s: %w", ErrTimeout, stage, err)
	}
	return fmt.Errorf("%s: %w", stage, err)
}

func sources(entries []knowledge.Entry) []string {
	var out []string
	for _, e := range entries {
		if s, ok := e.Metadata["source"].(string); ok && s != "" {
			out = append(out, s)
		}
	}
	return out
}
