package llm

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
)

// ErrGeneration is returned for transport, quota or model failures. A safety
// block is never reported as ErrGeneration.
var ErrGeneration = errors.New("generation failed")

// Request is the prompt rendered from retrieved context and the question by a
// prompt.Template. Composition happens before the request reaches the Service.
type Request struct {
	Prompt string
}

// Response is the outcome of a generation. A blocked response has an empty Answer.
type Response struct {
	Answer     string     `json:"answer"`
	Blocked    bool       `json:"blocked"`
	Categories []Category `json:"blocked_categories,omitempty"`
}

// Service applies the safety policy to a Provider at temperature 0.
type Service struct {
	provider Provider
	logger   *slog.Logger
}

// NewService creates a Service over provider.
func NewService(provider Provider, logger *slog.Logger) *Service {
	if logger == nil {
		logger = slog.Default()
	}
	return &Service{provider: provider, logger: logger}
}

// Generate sends the prompt under safety and returns the answer or a blocked response.
func (s *Service) Generate(ctx context.Context, req Request, safety SafetyConfig) (Response, error) {
	if err := safety.Validate(); err != nil {
		return Response{}, err
	}

	c, err := s.provider.Generate(ctx, ProviderRequest{
		Prompt:      req.Prompt,
		Temperature: 0,
		Safety:      safety,
	})
	if err != nil {
		return Response{}, fmt.Errorf("%w: %w", ErrGeneration, err)
	}

	categories := safety.Evaluate(c.Ratings)
	if c.Blocked || len(categories) > 0 {
		s.logger.Warn("generation blocked by safety policy", "categories", categories, "finish_reason", c.FinishReason)
		return Response{Blocked: true, Categories: categories}, nil
	}
	return Response{Answer: c.Text}, nil
}
