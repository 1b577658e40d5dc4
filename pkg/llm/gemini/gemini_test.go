package gemini

import (
	"context"
	"testing"

	"github.com/barekit/relnotes/pkg/llm"
	"google.golang.org/genai"
)

type mockModels struct {
	resp   *genai.GenerateContentResponse
	err    error
	model  string
	config *genai.GenerateContentConfig
}

func (m *mockModels) GenerateContent(ctx context.Context, model string, contents []*genai.Content, config *genai.GenerateContentConfig) (*genai.GenerateContentResponse, error) {
	m.model = model
	m.config = config
	return m.resp, m.err
}

func candidate(reason genai.FinishReason, text string, ratings ...*genai.SafetyRating) *genai.GenerateContentResponse {
	return &genai.GenerateContentResponse{
		Candidates: []*genai.Candidate{{
			FinishReason:  reason,
			Content:       genai.NewContentFromText(text, genai.RoleModel),
			SafetyRatings: ratings,
		}},
	}
}

func TestGenerate_Text(t *testing.T) {
	mock := &mockModels{resp: candidate(genai.FinishReasonStop, "GPUs are available.")}
	p := NewWithAPI(mock, "")

	c, err := p.Generate(context.Background(), llm.ProviderRequest{Prompt: "q", Safety: llm.DefaultSafety()})
	if err != nil {
		t.Fatalf("Generate failed: %v", err)
	}
	if c.Blocked || c.Text != "GPUs are available." {
		t.Errorf("unexpected completion: %+v", c)
	}
	if mock.model != DefaultModel {
		t.Errorf("expected model %s, got %s", DefaultModel, mock.model)
	}
	if mock.config.Temperature == nil || *mock.config.Temperature != 0 {
		t.Error("expected temperature 0 to be sent")
	}
	if len(mock.config.SafetySettings) != len(llm.Categories) {
		t.Errorf("expected %d safety settings, got %d", len(llm.Categories), len(mock.config.SafetySettings))
	}
}

func TestGenerate_SafetyFinishIsBlocked(t *testing.T) {
	mock := &mockModels{resp: candidate(genai.FinishReasonSafety, "",
		&genai.SafetyRating{Category: genai.HarmCategoryHarassment, Probability: genai.HarmProbabilityHigh, Blocked: true})}
	p := NewWithAPI(mock, "m")

	c, err := p.Generate(context.Background(), llm.ProviderRequest{Prompt: "q", Safety: llm.DefaultSafety()})
	if err != nil {
		t.Fatalf("expected no error, got %v", err)
	}
	if !c.Blocked {
		t.Error("expected blocked completion")
	}
	if len(c.Ratings) != 1 || c.Ratings[0].Category != llm.CategoryHarassment || c.Ratings[0].Severity != llm.SeverityHigh {
		t.Errorf("unexpected ratings: %+v", c.Ratings)
	}
}

func TestGenerate_PromptBlocked(t *testing.T) {
	mock := &mockModels{resp: &genai.GenerateContentResponse{
		PromptFeedback: &genai.GenerateContentResponsePromptFeedback{BlockReason: genai.BlockedReasonSafety},
	}}
	p := NewWithAPI(mock, "m")

	c, err := p.Generate(context.Background(), llm.ProviderRequest{Prompt: "q", Safety: llm.DefaultSafety()})
	if err != nil {
		t.Fatalf("expected no error, got %v", err)
	}
	if !c.Blocked {
		t.Error("expected blocked completion")
	}
}

func TestGenerate_NoCandidates(t *testing.T) {
	p := NewWithAPI(&mockModels{resp: &genai.GenerateContentResponse{}}, "m")
	if _, err := p.Generate(context.Background(), llm.ProviderRequest{Prompt: "q"}); err == nil {
		t.Error("expected error for empty response")
	}
}

func TestSafetySettings(t *testing.T) {
	cfg := llm.DefaultSafety()
	cfg[llm.CategorySexualContent] = llm.BlockLowAndAbove

	settings := SafetySettings(cfg)
	last := settings[len(settings)-1]
	if last.Category != genai.HarmCategorySexuallyExplicit || last.Threshold != genai.HarmBlockThresholdBlockLowAndAbove {
		t.Errorf("unexpected setting: %+v", last)
	}
}
