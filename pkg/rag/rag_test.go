package rag

import (
	"bytes"
	"context"
	"errors"
	"log/slog"
	"strings"
	"testing"
	"time"

	"github.com/barekit/relnotes/pkg/knowledge"
	"github.com/barekit/relnotes/pkg/llm"
)

type mockRetriever struct {
	text    string
	entries []knowledge.Entry
	err     error
}

func (m *mockRetriever) Context(ctx context.Context, question string) (string, []knowledge.Entry, error) {
	return m.text, m.entries, m.err
}

type mockGenerator struct {
	resp   llm.Response
	err    error
	prompt string
	safety llm.SafetyConfig
	// wait blocks until the context is done
	wait bool
}

func (m *mockGenerator) Generate(ctx context.Context, req llm.Request, safety llm.SafetyConfig) (llm.Response, error) {
	m.prompt = req.Prompt
	m.safety = safety
	if m.wait {
		<-ctx.Done()
		return llm.Response{}, ctx.Err()
	}
	return m.resp, m.err
}

func TestPipeline_Answer(t *testing.T) {
	retriever := &mockRetriever{
		text:    "March 04, 2024: Launched feature X",
		entries: []knowledge.Entry{{Content: "March 04, 2024: Launched feature X", Metadata: map[string]interface{}{"source": "notes#1"}}},
	}
	gen := &mockGenerator{resp: llm.Response{Answer: "Feature X launched in March."}}
	p := New(retriever, gen)

	a, err := p.Answer(context.Background(), "What changed about feature X?")
	if err != nil {
		t.Fatalf("Answer failed: %v", err)
	}
	if a.Answer != "Feature X launched in March." || a.Blocked {
		t.Errorf("unexpected answer: %+v", a)
	}
	if len(a.Sources) != 1 || a.Sources[0] != "notes#1" {
		t.Errorf("unexpected sources: %v", a.Sources)
	}
	if !strings.Contains(gen.prompt, "Launched feature X") || !strings.Contains(gen.prompt, "What changed about feature X?") {
		t.Errorf("prompt missing context or question: %q", gen.prompt)
	}
	if err := gen.safety.Validate(); err != nil {
		t.Errorf("default safety not passed: %v", err)
	}
}

func TestPipeline_Blocked(t *testing.T) {
	gen := &mockGenerator{resp: llm.Response{Blocked: true, Categories: []llm.Category{llm.CategoryHarassment}}}
	p := New(&mockRetriever{entries: []knowledge.Entry{{Content: "x", Metadata: map[string]interface{}{"source": "s"}}}}, gen)

	a, err := p.Answer(context.Background(), "question")
	if err != nil {
		t.Fatalf("blocked answer must not be an error, got %v", err)
	}
	if !a.Blocked || a.Answer != "" {
		t.Errorf("unexpected answer: %+v", a)
	}
	if len(a.Sources) != 0 {
		t.Errorf("blocked answer should not expose sources, got %v", a.Sources)
	}
}

func TestPipeline_EmptyContextStillGenerates(t *testing.T) {
	gen := &mockGenerator{resp: llm.Response{Answer: "I don't know."}}
	p := New(&mockRetriever{}, gen)

	a, err := p.Answer(context.Background(), "anything new?")
	if err != nil {
		t.Fatalf("Answer failed: %v", err)
	}
	if a.Answer != "I don't know." {
		t.Errorf("unexpected answer: %+v", a)
	}
	if gen.prompt == "" {
		t.Error("generator was not called")
	}
}

func TestPipeline_EmptyQuestion(t *testing.T) {
	p := New(&mockRetriever{}, &mockGenerator{})
	if _, err := p.Answer(context.Background(), "  "); !errors.Is(err, ErrEmptyQuestion) {
		t.Errorf("expected ErrEmptyQuestion, got %v", err)
	}
}

func TestPipeline_Timeout(t *testing.T) {
	p := New(&mockRetriever{}, &mockGenerator{wait: true}, WithTimeout(20*time.Millisecond))

	start := time.Now()
	_, err := p.Answer(context.Background(), "slow question")
	if !errors.Is(err, ErrTimeout) {
		t.Fatalf("expected ErrTimeout, got %v", err)
	}
	if elapsed := time.Since(start); elapsed > 2*time.Second {
		t.Errorf("timeout took too long: %s", elapsed)
	}
}

func TestPipeline_GenerationError(t *testing.T) {
	p := New(&mockRetriever{}, &mockGenerator{err: llm.ErrGeneration})

	_, err := p.Answer(context.Background(), "q")
	if !errors.Is(err, llm.ErrGeneration) {
		t.Errorf("expected ErrGeneration, got %v", err)
	}
	if errors.Is(err, ErrTimeout) {
		t.Error("generation error must not be reported as timeout")
	}
}

func TestPipeline_RetrievalError(t *testing.T) {
	p := New(&mockRetriever{err: knowledge.ErrIndexRead}, &mockGenerator{})
	if _, err := p.Answer(context.Background(), "q"); !errors.Is(err, knowledge.ErrIndexRead) {
		t.Errorf("expected ErrIndexRead, got %v", err)
	}
}

func TestPipeline_DebugLogsAtInfo(t *testing.T) {
	var buf bytes.Buffer
	logger := slog.New(slog.NewTextHandler(&buf, &slog.HandlerOptions{Level: slog.LevelInfo}))
	retriever := &mockRetriever{text: "notes", entries: []knowledge.Entry{{Content: "notes"}}}

	for _, debug := range []bool{false, true} {
		buf.Reset()
		p := New(retriever, &mockGenerator{resp: llm.Response{Answer: "ok"}}, WithLogger(logger), WithDebug(debug))
		if _, err := p.Answer(context.Background(), "q"); err != nil {
			t.Fatalf("Answer failed: %v", err)
		}
		logged := strings.Contains(buf.String(), "retrieved context") && strings.Contains(buf.String(), "answered question")
		if logged != debug {
			t.Errorf("debug=%v: stage logs present=%v\n%s", debug, logged, buf.String())
		}
	}
}
