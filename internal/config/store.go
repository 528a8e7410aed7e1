package config

import (
	"context"
	"errors"
)

// ErrNotFound is returned by a Store when a document does not exist.
var ErrNotFound = errors.New("document not found")

// ModelEntry is a provider's model settings inside a ModelDocument
type ModelEntry struct {
	ModelName      string `json:"model_name" yaml:"model_name"`
	MaxTokens      *int   `json:"max_tokens" yaml:"max_tokens"`
	ThinkingBudget *int   `json:"thinking_budget,omitempty" yaml:"thinking_budget"`
}

// ModelDocument selects the provider and model for an operation
type ModelDocument struct {
	SelectedProvider string                `json:"selected_provider" yaml:"selected_provider"`
	Providers        map[string]ModelEntry `json:"providers" yaml:"providers"`
}

// PromptEntry is a provider's prompt inside a PromptDocument
type PromptEntry struct {
	PromptText *string `json:"prompt_text" yaml:"prompt_text"`
}

// PromptDocument holds per-provider prompts for an operation
type PromptDocument struct {
	Providers map[string]PromptEntry `json:"providers" yaml:"providers"`
}

// Store is a read-only view of the configuration store. Any error other than
// ErrNotFound means the store is unreachable.
type Store interface {
	// ModelDocument returns the model document for op
	ModelDocument(ctx context.Context, op Operation) (*ModelDocument, error)

	// PromptDocument returns the prompt document for op
	PromptDocument(ctx context.Context, op Operation) (*PromptDocument, error)
}
