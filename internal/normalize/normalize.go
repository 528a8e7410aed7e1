// Package normalize turns raw provider output into validated canonical
// results.
package normalize

import (
	"bytes"
	"encoding/json"
	"log/slog"
	"strings"

	"github.com/nitro41992/splitting-sucks/internal/apperr"
	"github.com/nitro41992/splitting-sucks/internal/canonical"
	"github.com/nitro41992/splitting-sucks/internal/provider"
)

// Normalize extracts a JSON payload from out, decodes it into T and
// validates it against schema.
//
// A block reason always wins and yields a SafetyBlockError. Free text has
// its code fences stripped first.
func Normalize[T any](providerName string, out provider.Output, schema *canonical.Schema) (T, error) {
	var result T

	if out.BlockReason != "" {
		return result, apperr.SafetyBlock(providerName, out.BlockReason)
	}

	if structured := bytes.TrimSpace(out.Structured); len(structured) > 0 {
		payload, err := firstObject(providerName, structured)
		if err != nil {
			return result, err
		}
		return result, validate(providerName, payload, schema, &result)
	}

	text := strings.TrimSpace(out.Text)
	if text == "" {
		return result, apperr.New(apperr.KindResponseFormat, "%s returned an empty response", providerName)
	}

	raw := stripFences(text)
	if !json.Valid([]byte(raw)) {
		return result, apperr.New(apperr.KindResponseFormat, "%s returned output that is not JSON: %s", providerName, text)
	}

	payload, err := firstObject(providerName, []byte(raw))
	if err != nil {
		return result, err
	}
	return result, validate(providerName, payload, schema, &result)
}

// validate decodes payload into v and checks it against schema. Providers
// that enforce the schema server side still get checked; their enforcement
// is best effort.
func validate(providerName string, payload []byte, schema *canonical.Schema, v any) error {
	if err := decodeStrict(payload, v); err != nil {
		return apperr.Wrap(apperr.KindSchemaValidation, err,
			"%s output does not match %s (payload: %s)", providerName, schema.Name, payload)
	}

	var instance any
	if err := json.Unmarshal(payload, &instance); err != nil {
		return apperr.Wrap(apperr.KindResponseFormat, err, "%s returned output that is not JSON", providerName)
	}
	if err := schema.Validate(instance); err != nil {
		return apperr.Wrap(apperr.KindSchemaValidation, err,
			"%s output does not match %s (payload: %s)", providerName, schema.Name, payload)
	}
	return nil
}

// NormalizeTranscript wraps provider text as a Transcript. An empty
// transcript is valid unless the provider declined.
func NormalizeTranscript(providerName string, out provider.Output) (canonical.Transcript, error) {
	if out.BlockReason != "" {
		return canonical.Transcript{}, apperr.SafetyBlock(providerName, out.BlockReason)
	}
	return canonical.Transcript{Text: strings.TrimSpace(out.Text)}, nil
}

// firstObject unwraps a list where a single object was expected
func firstObject(providerName string, payload []byte) ([]byte, error) {
	if len(payload) == 0 || payload[0] != '[' {
		return payload, nil
	}

	var list []json.RawMessage
	if err := json.Unmarshal(payload, &list); err != nil {
		return nil, apperr.Wrap(apperr.KindResponseFormat, err, "%s returned output that is not JSON", providerName)
	}
	if len(list) == 0 {
		return nil, apperr.New(apperr.KindResponseFormat, "%s returned an empty list", providerName)
	}

	slog.Warn("Provider returned a list, using the first element",
		"provider", providerName,
		"elements", len(list),
	)
	return list[0], nil
}

// decodeStrict decodes payload into v, rejecting unknown fields and
// mistyped values
func decodeStrict(payload []byte, v any) error {
	dec := json.NewDecoder(bytes.NewReader(payload))
	dec.DisallowUnknownFields()
	return dec.Decode(v)
}

// stripFences removes a leading ```json (or bare ```) fence and a trailing
// ``` fence when present
func stripFences(text string) string {
	text = strings.TrimSpace(text)

	if len(text) >= 7 && strings.EqualFold(text[:7], "```json") {
		text = text[7:]
	} else {
		text = strings.TrimPrefix(text, "```")
	}
	text = strings.TrimSpace(text)
	text = strings.TrimSuffix(text, "```")

	return strings.TrimSpace(text)
}
