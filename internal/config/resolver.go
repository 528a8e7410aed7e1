package config

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
)

// Resolver resolves a ServiceConfig per operation. It holds no state between
// calls; every Resolve reads the store again.
type Resolver struct {
	store  Store
	logger *slog.Logger
}

// NewResolver creates a Resolver that logs through slog.Default
func NewResolver(store Store) *Resolver {
	return NewResolverWithLogger(store, slog.Default())
}

// NewResolverWithLogger creates a Resolver with a custom logger for testing
func NewResolverWithLogger(store Store, logger *slog.Logger) *Resolver {
	return &Resolver{
		store:  store,
		logger: logger,
	}
}

// Resolve returns the configuration for op. It never fails: a missing or
// invalid document degrades field by field to the hardcoded defaults, and an
// unreachable store yields the full default config.
func (r *Resolver) Resolve(ctx context.Context, op Operation) ServiceConfig {
	cfg, err := r.resolveFromStore(ctx, op)
	if err != nil {
		r.logger.Error("Configuration store unavailable, using defaults",
			"operation", op,
			"error", err,
		)
		cfg = DefaultConfig(op)
	}

	if cfg.Prompt == nil && PromptRequired(op) {
		r.logger.Warn("Resolved prompt is empty, using generic fallback prompt", "operation", op)
		cfg.Prompt = strPtr(GenericFallbackPrompt)
		cfg.Provenance.Prompt = SourceDefault
	}

	r.logger.Info("Resolved service config",
		"operation", op,
		"provider", cfg.ProviderName,
		"model", cfg.Model,
		"provider_source", cfg.Provenance.ProviderName,
		"prompt_source", cfg.Provenance.Prompt,
	)
	return cfg
}

func (r *Resolver) resolveFromStore(ctx context.Context, op Operation) (ServiceConfig, error) {
	if r.store == nil {
		return ServiceConfig{}, errors.New("no configuration store")
	}

	cfg := DefaultConfig(op)

	modelDoc, err := r.store.ModelDocument(ctx, op)
	switch {
	case errors.Is(err, ErrNotFound):
		r.logger.Warn("Model configuration document not found, using default provider",
			"operation", op,
			"provider", cfg.ProviderName,
		)
	case err != nil:
		return ServiceConfig{}, fmt.Errorf("reading model document: %w", err)
	default:
		r.applyModelDocument(&cfg, op, modelDoc)
	}

	promptDoc, err := r.store.PromptDocument(ctx, op)
	if err != nil && !errors.Is(err, ErrNotFound) {
		return ServiceConfig{}, fmt.Errorf("reading prompt document: %w", err)
	}
	r.applyPromptDocument(&cfg, op, promptDoc)

	return cfg, nil
}

// applyModelDocument adopts the selected provider when the document names one
// of its own providers that can serve op. cfg already holds the defaults.
func (r *Resolver) applyModelDocument(cfg *ServiceConfig, op Operation, doc *ModelDocument) {
	selected := doc.SelectedProvider
	entry, ok := doc.Providers[selected]
	if selected == "" || !ok || !Supports(op, selected) {
		r.logger.Warn("Selected provider not found or invalid in model config, using default provider",
			"operation", op,
			"selected_provider", selected,
			"provider", cfg.ProviderName,
		)
		return
	}

	defaults := providerDefaultsFor(op, selected)

	cfg.ProviderName = selected
	cfg.Provenance.ProviderName = SourceStore

	cfg.Model = entry.ModelName
	cfg.Provenance.Model = SourceStore
	if cfg.Model == "" {
		r.logger.Warn("Model name missing in model config, using provider default",
			"operation", op,
			"provider", selected,
			"model", defaults.Model,
		)
		cfg.Model = defaults.Model
		cfg.Provenance.Model = SourceDefault
	}

	cfg.MaxTokens = cloneInt(entry.MaxTokens)
	cfg.Provenance.MaxTokens = SourceStore

	cfg.ThinkingBudget = cloneInt(defaults.ThinkingBudget)
	cfg.Provenance.ThinkingBudget = SourceDefault
	if entry.ThinkingBudget != nil {
		cfg.ThinkingBudget = cloneInt(entry.ThinkingBudget)
		cfg.Provenance.ThinkingBudget = SourceStore
	}
}

// applyPromptDocument adopts the prompt for the already chosen provider. The
// provider is never changed here.
func (r *Resolver) applyPromptDocument(cfg *ServiceConfig, op Operation, doc *PromptDocument) {
	if doc != nil {
		if entry, ok := doc.Providers[cfg.ProviderName]; ok && entry.PromptText != nil && *entry.PromptText != "" {
			cfg.Prompt = strPtr(*entry.PromptText)
			cfg.Provenance.Prompt = SourceStore
			return
		}
	}

	r.logger.Warn("Prompt text not found for provider, using default prompt",
		"operation", op,
		"provider", cfg.ProviderName,
	)
	cfg.Prompt = DefaultPrompt(op)
	cfg.Provenance.Prompt = SourceDefault
}
