package gemini

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/barekit/relnotes/pkg/llm"
	"github.com/googleapis/gax-go/v2/apierror"
	"google.golang.org/genai"
)

// DefaultModel is the generation model used when none is configured.
const DefaultModel = "gemini-2.0-flash-001"

var _ llm.Provider = (*Provider)(nil)

// GenerateAPI is the subset of *genai.Models used by the Provider.
type GenerateAPI interface {
	GenerateContent(ctx context.Context, model string, contents []*genai.Content, config *genai.GenerateContentConfig) (*genai.GenerateContentResponse, error)
}

// Provider implements llm.Provider using Gemini through the genai SDK.
type Provider struct {
	models GenerateAPI
	model  string
}

// New creates a Provider backed by client. Model should not start with "models/".
func New(client *genai.Client, model string) *Provider {
	return NewWithAPI(client.Models, model)
}

// NewWithAPI creates a Provider over any GenerateAPI implementation.
func NewWithAPI(api GenerateAPI, model string) *Provider {
	if model == "" {
		model = DefaultModel
	}
	return &Provider{models: api, model: model}
}

var categoryToHarm = map[llm.Category]genai.HarmCategory{
	llm.CategoryDangerousContent: genai.HarmCategoryDangerousContent,
	llm.CategoryHateSpeech:       genai.HarmCategoryHateSpeech,
	llm.CategoryHarassment:       genai.HarmCategoryHarassment,
	llm.CategorySexualContent:    genai.HarmCategorySexuallyExplicit,
}

var thresholdToHarm = map[llm.Threshold]genai.HarmBlockThreshold{
	llm.BlockNone:           genai.HarmBlockThresholdBlockNone,
	llm.BlockOnlyHigh:       genai.HarmBlockThresholdBlockOnlyHigh,
	llm.BlockMediumAndAbove: genai.HarmBlockThresholdBlockMediumAndAbove,
	llm.BlockLowAndAbove:    genai.HarmBlockThresholdBlockLowAndAbove,
}

var probabilityToSeverity = map[genai.HarmProbability]llm.Severity{
	genai.HarmProbabilityNegligible: llm.SeverityNegligible,
	genai.HarmProbabilityLow:        llm.SeverityLow,
	genai.HarmProbabilityMedium:     llm.SeverityMedium,
	genai.HarmProbabilityHigh:       llm.SeverityHigh,
}

// SafetySettings converts a safety config to genai settings, in llm.Categories order.
func SafetySettings(cfg llm.SafetyConfig) []*genai.SafetySetting {
	settings := make([]*genai.SafetySetting, 0, len(cfg))
	for _, c := range llm.Categories {
		t, ok := cfg[c]
		if !ok {
			continue
		}
		settings = append(settings, &genai.SafetySetting{
			Category:  categoryToHarm[c],
			Threshold: thresholdToHarm[t],
		})
	}
	return settings
}

func convRatings(ratings []*genai.SafetyRating) []llm.Rating {
	harmToCategory := make(map[genai.HarmCategory]llm.Category, len(categoryToHarm))
	for c, h := range categoryToHarm {
		harmToCategory[h] = c
	}

	var out []llm.Rating
	for _, r := range ratings {
		if r == nil {
			continue
		}
		c, ok := harmToCategory[r.Category]
		if !ok {
			continue
		}
		out = append(out, llm.Rating{
			Category: c,
			Severity: probabilityToSeverity[r.Probability],
			Blocked:  r.Blocked,
		})
	}
	return out
}

func (p *Provider) Generate(ctx context.Context, req llm.ProviderRequest) (*llm.Completion, error) {
	temperature := req.Temperature
	cfg := &genai.GenerateContentConfig{
		Temperature:    &temperature,
		SafetySettings: SafetySettings(req.Safety),
	}

	resp, err := p.models.GenerateContent(ctx, p.model, genai.Text(req.Prompt), cfg)
	if err != nil {
		var apiErr *apierror.APIError
		if errors.As(err, &apiErr) {
			err = apiErr.Unwrap()
		}
		return nil, err
	}

	if fb := resp.PromptFeedback; fb != nil && fb.BlockReason != "" && fb.BlockReason != genai.BlockedReasonUnspecified {
		return &llm.Completion{
			FinishReason: string(fb.BlockReason),
			Ratings:      convRatings(fb.SafetyRatings),
			Blocked:      true,
		}, nil
	}
	if len(resp.Candidates) == 0 {
		return nil, fmt.Errorf("no candidates")
	}

	t := resp.Candidates[0]
	completion := &llm.Completion{
		FinishReason: string(t.FinishReason),
		Ratings:      convRatings(t.SafetyRatings),
	}
	switch t.FinishReason {
	case genai.FinishReasonSafety, genai.FinishReasonBlocklist, genai.FinishReasonProhibitedContent, genai.FinishReasonSPII:
		completion.Blocked = true
		return completion, nil
	case genai.FinishReasonStop, genai.FinishReasonMaxTokens, genai.FinishReasonUnspecified, "":
	default:
		return nil, fmt.Errorf("unexpected finish reason: %s", t.FinishReason)
	}

	var sb strings.Builder
	if t.Content != nil {
		for _, part := range t.Content.Parts {
			if part != nil && part.Text != "" {
				sb.WriteString(part.Text)
			}
		}
	}
	completion.Text = sb.String()
	return completion, nil
}
