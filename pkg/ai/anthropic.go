package ai

import (
	"context"
	"fmt"
)

// AnthropicConfig holds configuration for the Anthropic provider.
type AnthropicConfig struct {
	APIKey string
	Model  string
}

// AnthropicEvaluator is a stub behind the Evaluator interface for the
// alternative provider; callers fall back to deterministic scoring when it
// errors.
type AnthropicEvaluator struct{}

// NewAnthropicEvaluator constructs the stub evaluator.
func NewAnthropicEvaluator(cfg AnthropicConfig) (*AnthropicEvaluator, error) {
	if cfg.APIKey == "" {
		return nil, fmt.Errorf("anthropic api key is required")
	}
	return &AnthropicEvaluator{}, nil
}

// Evaluate is not yet implemented for Anthropic models.
func (a *AnthropicEvaluator) Evaluate(ctx context.Context, input GradingInput) (GradingResult, error) {
	return GradingResult{}, fmt.Errorf("anthropic evaluator not implemented")
}
