package llm

import "context"

// Severity is the classifier's probability bucket for a harm category.
type Severity int

const (
	SeverityUnspecified Severity = iota
	SeverityNegligible
	SeverityLow
	SeverityMedium
	SeverityHigh
)

// Rating is a model classifier score for one category.
type Rating struct {
	Category Category `json:"category"`
	Severity Severity `json:"severity"`
	// Blocked is set when the model itself suppressed output for this category.
	Blocked bool `json:"blocked,omitempty"`
}

// ProviderRequest is a single-turn prompt sent to a model.
type ProviderRequest struct {
	Prompt      string
	Temperature float32
	Safety      SafetyConfig
}

// Completion is the raw model output, before the safety policy is applied.
type Completion struct {
	Text         string
	FinishReason string
	Ratings      []Rating
	// Blocked is set when the provider reported a policy block (prompt or candidate).
	Blocked bool
}

// Provider defines the interface for a generative model.
type Provider interface {
	// Generate sends a prompt to the model and returns its completion.
	// A safety block is reported through Completion.Blocked, not an error.
	Generate(ctx context.Context, req ProviderRequest) (*Completion, error)
}
