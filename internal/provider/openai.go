package provider

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"net/http"
	"strings"

	"github.com/nitro41992/splitting-sucks/internal/config"
)

// openAICompleter calls the Chat Completions API with schema-enforced output
type openAICompleter struct {
	baseURL string
	apiKey  string
	client  *http.Client
}

type openAIChatRequest struct {
	Model               string                `json:"model"`
	Messages            []openAIChatMessage   `json:"messages"`
	ResponseFormat      *openAIResponseFormat `json:"response_format,omitempty"`
	MaxCompletionTokens *int                  `json:"max_completion_tokens,omitempty"`
}

type openAIChatMessage struct {
	Role    string              `json:"role"`
	Content []openAIContentPart `json:"content"`
}

type openAIContentPart struct {
	Type     string          `json:"type"`
	Text     string          `json:"text,omitempty"`
	ImageURL *openAIImageURL `json:"image_url,omitempty"`
}

type openAIImageURL struct {
	URL string `json:"url"`
}

type openAIResponseFormat struct {
	Type       string            `json:"type"`
	JSONSchema *openAIJSONSchema `json:"json_schema,omitempty"`
}

type openAIJSONSchema struct {
	Name   string          `json:"name"`
	Schema json.RawMessage `json:"schema"`
	Strict bool            `json:"strict"`
}

type openAIChatResponse struct {
	Choices []struct {
		Message struct {
			Content *string `json:"content"`
			Refusal *string `json:"refusal"`
		} `json:"message"`
		FinishReason string `json:"finish_reason"`
	} `json:"choices"`
}

func (a *openAICompleter) Invoke(ctx context.Context, req Request, cfg config.ServiceConfig) (Output, error) {
	parts := []openAIContentPart{{Type: "text", Text: req.Prompt}}
	if len(req.Media) > 0 {
		dataURL := "data:" + req.MIMEType + ";base64," + base64.StdEncoding.EncodeToString(req.Media)
		parts = append(parts, openAIContentPart{Type: "image_url", ImageURL: &openAIImageURL{URL: dataURL}})
	}

	body := openAIChatRequest{
		Model:               cfg.Model,
		Messages:            []openAIChatMessage{{Role: "user", Content: parts}},
		MaxCompletionTokens: cfg.MaxTokens,
	}
	if req.Schema != nil {
		body.ResponseFormat = &openAIResponseFormat{
			Type: "json_schema",
			JSONSchema: &openAIJSONSchema{
				Name:   req.Schema.Name,
				Schema: req.Schema.Document,
				Strict: true,
			},
		}
	}

	// Credential material is sent only as an Authorization header
	headers := map[string]string{"Authorization": "Bearer " + a.apiKey}

	var resp openAIChatResponse
	if err := postJSON(ctx, a.client, endpoint(a.baseURL, "/chat/completions"), headers, body, &resp); err != nil {
		return Output{}, fmt.Errorf("openai chat completion: %w", err)
	}

	if len(resp.Choices) == 0 {
		return Output{}, nil
	}

	choice := resp.Choices[0]
	if choice.Message.Refusal != nil && strings.TrimSpace(*choice.Message.Refusal) != "" {
		return Output{BlockReason: "refusal: " + strings.TrimSpace(*choice.Message.Refusal)}, nil
	}

	var content string
	if choice.Message.Content != nil {
		content = *choice.Message.Content
	}

	var out Output
	if req.Schema != nil {
		out = structuredOrText(content)
	} else {
		out = Output{Text: content}
	}
	if choice.FinishReason == "content_filter" {
		out.BlockReason = choice.FinishReason
	}
	return out, nil
}

// endpoint joins a base URL and path, tolerating a base that already ends in
// the path
func endpoint(baseURL, path string) string {
	base := strings.TrimSuffix(baseURL, "/")
	if strings.HasSuffix(base, path) {
		return base
	}
	return base + path
}
