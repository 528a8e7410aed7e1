// Package operation runs the three logical operations end to end: resolve
// configuration, acquire media, invoke the provider and normalise its
// output.
package operation

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"strings"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"github.com/nitro41992/splitting-sucks/internal/apperr"
	"github.com/nitro41992/splitting-sucks/internal/canonical"
	"github.com/nitro41992/splitting-sucks/internal/config"
	"github.com/nitro41992/splitting-sucks/internal/media"
	"github.com/nitro41992/splitting-sucks/internal/normalize"
	"github.com/nitro41992/splitting-sucks/internal/provider"
)

const tracerName = "github.com/nitro41992/splitting-sucks/internal/operation"

// Resolver resolves the configuration for an operation
type Resolver interface {
	Resolve(ctx context.Context, op config.Operation) config.ServiceConfig
}

// Acquirer turns client media into a scoped handle
type Acquirer interface {
	Acquire(ctx context.Context, in media.Input, kind media.Kind) (*media.Handle, error)
}

// AdapterFactory selects the adapter for an operation and provider
type AdapterFactory interface {
	New(op config.Operation, providerName string) (provider.Adapter, error)
}

// ParseReceiptRequest is the input to ParseReceipt
type ParseReceiptRequest struct {
	Image media.Input
}

// AssignmentRequest is the input to AssignPeople. ReceiptItems is a JSON
// array or a JSON string holding one.
type AssignmentRequest struct {
	Transcription string
	ReceiptItems  json.RawMessage
}

// TranscribeRequest is the input to Transcribe
type TranscribeRequest struct {
	Audio media.Input
}

// Service orchestrates the operations
type Service struct {
	resolver Resolver
	acquirer Acquirer
	factory  AdapterFactory
	tracer   trace.Tracer
}

// NewService creates a Service that traces through the global provider
func NewService(resolver Resolver, acquirer Acquirer, factory AdapterFactory) *Service {
	return &Service{
		resolver: resolver,
		acquirer: acquirer,
		factory:  factory,
		tracer:   otel.Tracer(tracerName),
	}
}

// ParseReceipt extracts line items and the subtotal from a receipt image
func (s *Service) ParseReceipt(ctx context.Context, req ParseReceiptRequest) (result *canonical.ReceiptDocument, err error) {
	op := config.OperationParseReceipt
	ctx, span := s.start(ctx, op)
	defer func() { endSpan(span, err) }()

	cfg, err := s.resolve(ctx, span, op)
	if err != nil {
		return nil, err
	}

	handle, err := s.acquirer.Acquire(ctx, req.Image, media.KindImage)
	if err != nil {
		return nil, err
	}
	defer handle.Release()

	data, err := handle.Bytes()
	if err != nil {
		return nil, err
	}

	data, mimeType, converted, err := media.PrepareImage(data, handle.MIMEType)
	if err != nil {
		return nil, apperr.Wrap(apperr.KindRequestValidation, err, "unreadable receipt image")
	}
	if converted {
		slog.Info("Converted receipt image", "from", handle.MIMEType, "to", mimeType, "size", len(data))
	}

	out, err := s.invoke(ctx, op, cfg, provider.Request{
		Prompt:   cfg.PromptText(),
		Media:    data,
		MIMEType: mimeType,
		Schema:   canonical.ReceiptDocumentSchema,
	})
	if err != nil {
		return nil, err
	}

	doc, err := normalize.Normalize[canonical.ReceiptDocument](cfg.ProviderName, out, canonical.ReceiptDocumentSchema)
	if err != nil {
		slog.Error("Failed to normalize receipt", "provider", cfg.ProviderName, "model", cfg.Model, "error", err)
		return nil, err
	}

	return &doc, nil
}

// AssignPeople maps receipt items to the people named in a transcription
func (s *Service) AssignPeople(ctx context.Context, req AssignmentRequest) (result *canonical.AssignmentResult, err error) {
	op := config.OperationAssignPeople
	ctx, span := s.start(ctx, op)
	defer func() { endSpan(span, err) }()

	cfg, err := s.resolve(ctx, span, op)
	if err != nil {
		return nil, err
	}

	transcription := strings.TrimSpace(req.Transcription)
	if transcription == "" {
		return nil, apperr.New(apperr.KindRequestValidation, "transcription is required")
	}

	items, itemsJSON, err := parseReceiptItems(req.ReceiptItems)
	if err != nil {
		return nil, err
	}
	span.SetAttributes(attribute.Int("receipt_items", len(items)))

	prompt := cfg.PromptText() +
		"\n\nTranscription:\n" + transcription +
		"\n\nReceipt Items JSON:\n" + itemsJSON

	out, err := s.invoke(ctx, op, cfg, provider.Request{
		Prompt: prompt,
		Schema: canonical.AssignmentResultSchema,
	})
	if err != nil {
		return nil, err
	}

	assignment, err := normalize.Normalize[canonical.AssignmentResult](cfg.ProviderName, out, canonical.AssignmentResultSchema)
	if err != nil {
		slog.Error("Failed to normalize assignment", "provider", cfg.ProviderName, "model", cfg.Model, "error", err)
		return nil, err
	}

	if err := assignment.CheckQuantities(items); err != nil {
		slog.Error("Assignment does not account for every item", "provider", cfg.ProviderName, "error", err)
		return nil, apperr.Wrap(apperr.KindSchemaValidation, err, "%s assignment is inconsistent with the receipt", cfg.ProviderName)
	}

	return &assignment, nil
}

// Transcribe converts an audio clip to text
func (s *Service) Transcribe(ctx context.Context, req TranscribeRequest) (result *canonical.Transcript, err error) {
	op := config.OperationTranscribe
	ctx, span := s.start(ctx, op)
	defer func() { endSpan(span, err) }()

	cfg, err := s.resolve(ctx, span, op)
	if err != nil {
		return nil, err
	}

	handle, err := s.acquirer.Acquire(ctx, req.Audio, media.KindAudio)
	if err != nil {
		return nil, err
	}
	defer handle.Release()

	data, err := handle.Bytes()
	if err != nil {
		return nil, err
	}

	out, err := s.invoke(ctx, op, cfg, provider.Request{
		Prompt:   cfg.PromptText(),
		Media:    data,
		MIMEType: handle.MIMEType,
	})
	if err != nil {
		return nil, err
	}

	transcript, err := normalize.NormalizeTranscript(cfg.ProviderName, out)
	if err != nil {
		return nil, err
	}
	return &transcript, nil
}

func (s *Service) start(ctx context.Context, op config.Operation) (context.Context, trace.Span) {
	return s.tracer.Start(ctx, string(op), trace.WithAttributes(attribute.String("operation", string(op))))
}

// resolve fetches the configuration and fails fast when it is incomplete
func (s *Service) resolve(ctx context.Context, span trace.Span, op config.Operation) (config.ServiceConfig, error) {
	cfg := s.resolver.Resolve(ctx, op)
	span.SetAttributes(
		attribute.String("provider", cfg.ProviderName),
		attribute.String("model", cfg.Model),
	)

	switch {
	case cfg.ProviderName == "":
		return cfg, apperr.New(apperr.KindConfiguration, "no provider configured for %s", op)
	case cfg.Model == "":
		return cfg, apperr.New(apperr.KindConfiguration, "no model configured for %s", op)
	case config.PromptRequired(op) && strings.TrimSpace(cfg.PromptText()) == "":
		return cfg, apperr.New(apperr.KindConfiguration, "no prompt configured for %s", op)
	}
	return cfg, nil
}

// invoke selects the adapter and calls the provider once
func (s *Service) invoke(ctx context.Context, op config.Operation, cfg config.ServiceConfig, req provider.Request) (provider.Output, error) {
	adapter, err := s.factory.New(op, cfg.ProviderName)
	if err != nil {
		return provider.Output{}, err
	}

	out, err := adapter.Invoke(ctx, req, cfg)
	if err != nil {
		slog.Error("Provider call failed",
			"operation", op,
			"provider", cfg.ProviderName,
			"model", cfg.Model,
			"error", err,
		)
		if errors.Is(err, context.DeadlineExceeded) {
			return provider.Output{}, apperr.Wrap(apperr.KindProviderInvocation, err, "%s timed out", cfg.ProviderName)
		}
		return provider.Output{}, apperr.Wrap(apperr.KindProviderInvocation, err, "%s call failed", cfg.ProviderName)
	}
	return out, nil
}

// parseReceiptItems accepts a JSON array or a JSON string holding one. It
// returns the items and the compact array text sent to the provider.
func parseReceiptItems(raw json.RawMessage) ([]canonical.ReceiptItemRef, string, error) {
	raw = bytes.TrimSpace(raw)
	if len(raw) == 0 || bytes.Equal(raw, []byte("null")) {
		return nil, "", apperr.New(apperr.KindRequestValidation, "receipt_items is required")
	}

	if raw[0] == '"' {
		var embedded string
		if err := json.Unmarshal(raw, &embedded); err != nil {
			return nil, "", apperr.Wrap(apperr.KindRequestValidation, err, "receipt_items is not a valid JSON string")
		}
		raw = bytes.TrimSpace([]byte(embedded))
	}

	var items []canonical.ReceiptItemRef
	if err := json.Unmarshal(raw, &items); err != nil {
		return nil, "", apperr.Wrap(apperr.KindRequestValidation, err, "receipt_items must be a JSON array of items")
	}
	if len(items) == 0 {
		return nil, "", apperr.New(apperr.KindRequestValidation, "receipt_items must not be empty")
	}

	seen := make(map[int]bool, len(items))
	for i, item := range items {
		if item.ID == nil {
			return nil, "", apperr.New(apperr.KindRequestValidation, "receipt_items[%d] has no id", i)
		}
		if seen[*item.ID] {
			return nil, "", apperr.New(apperr.KindRequestValidation, "receipt_items has duplicate id %d", *item.ID)
		}
		seen[*item.ID] = true
		if item.Quantity == nil {
			return nil, "", apperr.New(apperr.KindRequestValidation, "receipt_items[%d] has no quantity", i)
		}
		if *item.Quantity < 0 {
			return nil, "", apperr.New(apperr.KindRequestValidation, "receipt_items[%d] has negative quantity %d", i, *item.Quantity)
		}
	}

	var compact bytes.Buffer
	if err := json.Compact(&compact, raw); err != nil {
		return nil, "", apperr.Wrap(apperr.KindRequestValidation, err, "receipt_items is not valid JSON")
	}
	return items, compact.String(), nil
}

// endSpan records the outcome of an operation on its span
func endSpan(span trace.Span, err error) {
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, fmt.Sprint(apperr.KindOf(err)))
	}
	span.End()
}
