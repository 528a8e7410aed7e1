package provider

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"strings"

	"github.com/nitro41992/splitting-sucks/internal/config"
)

// geminiCompleter calls the generateContent REST API with a response schema
// and a thinking budget
type geminiCompleter struct {
	baseURL string
	apiKey  string
	client  *http.Client
}

// --- request types ---

type geminiRequest struct {
	Contents         []geminiContent        `json:"contents"`
	GenerationConfig geminiGenerationConfig `json:"generationConfig"`
}

type geminiContent struct {
	Role  string       `json:"role,omitempty"`
	Parts []geminiPart `json:"parts"`
}

type geminiPart struct {
	Text       string            `json:"text,omitempty"`
	InlineData *geminiInlineData `json:"inlineData,omitempty"`
	Thought    bool              `json:"thought,omitempty"`
}

type geminiInlineData struct {
	MIMEType string `json:"mimeType"`
	Data     string `json:"data"`
}

type geminiGenerationConfig struct {
	ResponseMIMEType   string                `json:"responseMimeType,omitempty"`
	ResponseJSONSchema json.RawMessage       `json:"responseJsonSchema,omitempty"`
	MaxOutputTokens    *int                  `json:"maxOutputTokens,omitempty"`
	ThinkingConfig     *geminiThinkingConfig `json:"thinkingConfig,omitempty"`
}

type geminiThinkingConfig struct {
	ThinkingBudget int `json:"thinkingBudget"`
}

// --- response types ---

type geminiResponse struct {
	Candidates     []geminiCandidate `json:"candidates"`
	PromptFeedback *struct {
		BlockReason string `json:"blockReason"`
	} `json:"promptFeedback"`
}

type geminiCandidate struct {
	Content      geminiContent `json:"content"`
	FinishReason string        `json:"finishReason"`
}

// normalFinishReasons end a candidate without the provider declining
var normalFinishReasons = map[string]bool{
	"":                          true,
	"FINISH_REASON_UNSPECIFIED": true,
	"STOP":                      true,
	"MAX_TOKENS":                true,
}

func (a *geminiCompleter) Invoke(ctx context.Context, req Request, cfg config.ServiceConfig) (Output, error) {
	parts := []geminiPart{{Text: req.Prompt}}
	if len(req.Media) > 0 {
		parts = append(parts, geminiPart{InlineData: &geminiInlineData{
			MIMEType: req.MIMEType,
			Data:     base64.StdEncoding.EncodeToString(req.Media),
		}})
	}

	body := geminiRequest{
		Contents: []geminiContent{{Role: "user", Parts: parts}},
		GenerationConfig: geminiGenerationConfig{
			MaxOutputTokens: cfg.MaxTokens,
		},
	}
	if req.Schema != nil {
		body.GenerationConfig.ResponseMIMEType = "application/json"
		body.GenerationConfig.ResponseJSONSchema = req.Schema.Document
	}
	if cfg.ThinkingBudget != nil {
		body.GenerationConfig.ThinkingConfig = &geminiThinkingConfig{ThinkingBudget: *cfg.ThinkingBudget}
	}

	path := fmt.Sprintf("/v1beta/models/%s:generateContent", url.PathEscape(cfg.Model))
	headers := map[string]string{"x-goog-api-key": a.apiKey}

	var resp geminiResponse
	if err := postJSON(ctx, a.client, strings.TrimSuffix(a.baseURL, "/")+path, headers, body, &resp); err != nil {
		return Output{}, fmt.Errorf("gemini generate content: %w", err)
	}

	if resp.PromptFeedback != nil && resp.PromptFeedback.BlockReason != "" {
		return Output{BlockReason: resp.PromptFeedback.BlockReason}, nil
	}
	if len(resp.Candidates) == 0 {
		return Output{}, nil
	}

	candidate := resp.Candidates[0]
	text := candidateText(candidate)

	var out Output
	if req.Schema != nil {
		out = structuredOrText(text)
	} else {
		out = Output{Text: text}
	}
	if !normalFinishReasons[candidate.FinishReason] {
		out.BlockReason = candidate.FinishReason
	}
	return out, nil
}

// candidateText joins the answer parts of a candidate, skipping thoughts
func candidateText(c geminiCandidate) string {
	var b strings.Builder
	for _, p := range c.Content.Parts {
		if p.Thought {
			continue
		}
		b.WriteString(p.Text)
	}
	return b.String()
}
