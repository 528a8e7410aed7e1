// Package provider adapts each external AI service to a single Invoke call.
//
// There is one adapter per provider and capability. Adapters build the
// provider specific request shape, send it and return the raw output
// without interpreting it; the normalize package turns that output into a
// canonical result.
package provider

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"

	"github.com/nitro41992/splitting-sucks/internal/canonical"
	"github.com/nitro41992/splitting-sucks/internal/config"
)

// Request is the provider neutral input to an adapter
type Request struct {
	Prompt string
	// Media is optional for text completions
	Media    []byte
	MIMEType string
	// Schema requests schema-enforced output. Nil for transcription.
	Schema *canonical.Schema
}

// Output is what a provider returned
type Output struct {
	// Structured holds output the provider decoded against the schema
	Structured json.RawMessage
	// Text holds free text that still has to be parsed
	Text string
	// BlockReason is set when the provider declined for policy reasons
	BlockReason string
}

// Empty reports whether the provider produced nothing usable
func (o Output) Empty() bool {
	return len(bytes.TrimSpace(o.Structured)) == 0 && strings.TrimSpace(o.Text) == ""
}

// Adapter invokes one provider for one capability
type Adapter interface {
	Invoke(ctx context.Context, req Request, cfg config.ServiceConfig) (Output, error)
}

// maxErrorBody bounds how much of a failed response is quoted in errors
const maxErrorBody = 4096

// postJSON sends body as JSON and decodes a 2xx response into out
func postJSON(ctx context.Context, client *http.Client, url string, headers map[string]string, body, out any) error {
	payload, err := json.Marshal(body)
	if err != nil {
		return fmt.Errorf("marshaling request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(payload))
	if err != nil {
		return fmt.Errorf("creating request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	for k, v := range headers {
		req.Header.Set(k, v)
	}

	return do(client, req, out)
}

// do sends req and decodes a 2xx JSON response into out
func do(client *http.Client, req *http.Request, out any) error {
	resp, err := client.Do(req)
	if err != nil {
		return fmt.Errorf("request failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, maxErrorBody))
		return fmt.Errorf("status %d: %s", resp.StatusCode, strings.TrimSpace(string(body)))
	}

	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("decoding response: %w", err)
	}
	return nil
}

// structuredOrText files schema-enforced content under Structured when it is
// valid JSON and under Text otherwise
func structuredOrText(content string) Output {
	trimmed := strings.TrimSpace(content)
	if trimmed != "" && json.Valid([]byte(trimmed)) {
		return Output{Structured: json.RawMessage(trimmed)}
	}
	return Output{Text: content}
}
