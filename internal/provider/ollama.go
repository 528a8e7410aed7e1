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

// ollamaCompleter calls a local Ollama server's chat API.
// Vision models such as llava or qwen2-vl handle receipt images; text only
// models such as llama3.1 handle assignments.
type ollamaCompleter struct {
	baseURL string
	client  *http.Client
}

// ollamaChatRequest represents the request body for Ollama's chat API
type ollamaChatRequest struct {
	Model    string          `json:"model"`
	Messages []ollamaMessage `json:"messages"`
	Stream   bool            `json:"stream"`
	Format   json.RawMessage `json:"format,omitempty"`
	Options  *ollamaOptions  `json:"options,omitempty"`
}

type ollamaMessage struct {
	Role    string   `json:"role"`
	Content string   `json:"content"`
	Images  []string `json:"images,omitempty"`
}

type ollamaOptions struct {
	NumPredict int `json:"num_predict,omitempty"`
}

// ollamaChatResponse represents the response from Ollama's chat API
type ollamaChatResponse struct {
	Message    ollamaMessage `json:"message"`
	Done       bool          `json:"done"`
	DoneReason string        `json:"done_reason"`
}

func (o *ollamaCompleter) Invoke(ctx context.Context, req Request, cfg config.ServiceConfig) (Output, error) {
	message := ollamaMessage{
		Role:    "user",
		Content: req.Prompt,
	}
	if len(req.Media) > 0 {
		message.Images = []string{base64.StdEncoding.EncodeToString(req.Media)}
	}

	body := ollamaChatRequest{
		Model:    cfg.Model,
		Stream:   false,
		Messages: []ollamaMessage{message},
	}
	if req.Schema != nil {
		body.Format = req.Schema.Document
	}
	if cfg.MaxTokens != nil {
		body.Options = &ollamaOptions{NumPredict: *cfg.MaxTokens}
	}

	url := strings.TrimSuffix(o.baseURL, "/") + "/api/chat"

	var resp ollamaChatResponse
	if err := postJSON(ctx, o.client, url, nil, body, &resp); err != nil {
		return Output{}, fmt.Errorf("ollama chat: %w", err)
	}

	// Grammar constrained output still goes through validation
	return Output{Text: resp.Message.Content}, nil
}
