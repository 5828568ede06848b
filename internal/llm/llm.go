// Package llm wraps chat-completion providers behind a single-shot contract.
package llm

import "context"

// Completer returns one text response for a system and user prompt.
type Completer interface {
	Complete(ctx context.Context, systemPrompt, userPrompt string, maxTokens int) (string, error)
	ModelName() string
}

const defaultTemperature = 0.2
