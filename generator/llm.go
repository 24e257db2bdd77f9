package generator

import "context"

const (
	// DefaultModel is used when neither config nor LLM_MODEL names one.
	DefaultModel = "gpt-4o-mini"
	// DefaultTemperature balances creativity against schema adherence.
	DefaultTemperature = 0.7
)

// LLMClient abstracts the language model so it can be swapped or mocked.
// Complete returns the raw text of the first choice.
type LLMClient interface {
	Complete(ctx context.Context, prompt Prompt) (string, error)
}

// LLMSettings is the base configuration for concrete clients.
type LLMSettings struct {
	Provider    string
	Model       string
	APIKey      string
	BaseURL     string
	Temperature float64
}
