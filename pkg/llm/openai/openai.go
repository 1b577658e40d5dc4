package openai

import (
	"context"
	"fmt"

	"github.com/barekit/relnotes/pkg/llm"
	"github.com/openai/openai-go"
	"github.com/openai/openai-go/option"
)

// finishContentFilter is the finish reason OpenAI reports for moderated output.
const finishContentFilter = "content_filter"

var _ llm.Provider = (*Provider)(nil)

// Provider implements llm.Provider with OpenAI chat completions. OpenAI exposes no
// per-category thresholds, so the safety config only takes effect through its own
// content filter and the llm.Service policy.
type Provider struct {
	client *openai.Client
	model  string
}

func New(opts ...option.RequestOption) *Provider {
	client := openai.NewClient(opts...)
	return &Provider{
		client: &client,
		model:  openai.ChatModelGPT4oMini,
	}
}

// SetModel sets the model to use.
func (p *Provider) SetModel(model string) {
	if model != "" {
		p.model = model
	}
}

func (p *Provider) Generate(ctx context.Context, req llm.ProviderRequest) (*llm.Completion, error) {
	params := openai.ChatCompletionNewParams{
		Messages: []openai.ChatCompletionMessageParamUnion{
			openai.UserMessage(req.Prompt),
		},
		Model:       p.model,
		Temperature: openai.Float(float64(req.Temperature)),
	}

	completion, err := p.client.Chat.Completions.New(ctx, params)
	if err != nil {
		return nil, err
	}
	if len(completion.Choices) == 0 {
		return nil, fmt.Errorf("no choices")
	}

	choice := completion.Choices[0]
	if choice.FinishReason == finishContentFilter {
		return &llm.Completion{FinishReason: choice.FinishReason, Blocked: true}, nil
	}
	return &llm.Completion{
		Text:         choice.Message.Content,
		FinishReason: choice.FinishReason,
	}, nil
}
