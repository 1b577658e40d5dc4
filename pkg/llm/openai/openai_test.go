package openai

import (
	"context"
	"os"
	"strings"
	"testing"

	"github.com/barekit/relnotes/pkg/llm"
	"github.com/joho/godotenv"
	"github.com/openai/openai-go/option"
)

func TestProvider_OpenAI_Integration(t *testing.T) {
	_ = godotenv.Load("../../../.env") // Try to load .env from root
	apiKey := os.Getenv("OPENAI_API_KEY")
	if apiKey == "" {
		t.Skip("Skipping OpenAI integration test: OPENAI_API_KEY not set")
	}

	provider := New(option.WithAPIKey(apiKey))
	provider.SetModel("gpt-4o-mini")
	s := llm.NewService(provider, nil)

	resp, err := s.Generate(context.Background(), llm.Request{Prompt: "What is 2+2? Reply with just the number."}, llm.DefaultSafety())
	if err != nil {
		t.Fatalf("Generate failed: %v", err)
	}
	if resp.Blocked {
		t.Fatal("unexpected safety block")
	}
	if !strings.Contains(resp.Answer, "4") {
		t.Logf("Expected '4', got '%s'", resp.Answer)
	}
}
