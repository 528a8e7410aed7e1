package provider

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"

	"github.com/google/generative-ai-go/genai"

	"github.com/nitro41992/splitting-sucks/internal/config"
)

// transcriptionPrompt gives the multimodal model its context
const transcriptionPrompt = "Transcribe the following audio:"

// geminiTranscriber sends audio as inline data through the Gemini SDK
type geminiTranscriber struct {
	apiKey    string
	openModel modelOpener
}

func (g *geminiTranscriber) Invoke(ctx context.Context, req Request, cfg config.ServiceConfig) (Output, error) {
	model, closeModel, err := g.openModel(ctx, g.apiKey, cfg.Model)
	if err != nil {
		return Output{}, err
	}
	defer func() {
		if err := closeModel(); err != nil {
			slog.Warn("Failed to close gemini client", "error", err)
		}
	}()

	parts := []genai.Part{
		genai.Blob{MIMEType: req.MIMEType, Data: req.Media},
		genai.Text(transcriptionPrompt),
	}

	resp, err := model.GenerateContent(ctx, parts...)
	if err != nil {
		var blocked *genai.BlockedError
		if errors.As(err, &blocked) {
			return Output{BlockReason: blockReason(blocked)}, nil
		}
		return Output{}, fmt.Errorf("generating content: %w", err)
	}

	return Output{Text: responseText(resp)}, nil
}

// blockReason names why the SDK refused the response
func blockReason(blocked *genai.BlockedError) string {
	if blocked.PromptFeedback != nil {
		return blocked.PromptFeedback.BlockReason.String()
	}
	if blocked.Candidate != nil {
		return blocked.Candidate.FinishReason.String()
	}
	return "blocked"
}

// responseText reads the first candidate's text, falling back to any other
// candidate's parts when it is empty
func responseText(resp *genai.GenerateContentResponse) string {
	if resp == nil {
		return ""
	}
	for _, candidate := range resp.Candidates {
		if text := strings.TrimSpace(partsText(candidate)); text != "" {
			return text
		}
	}
	return ""
}

func partsText(candidate *genai.Candidate) string {
	if candidate == nil || candidate.Content == nil {
		return ""
	}
	var b strings.Builder
	for _, part := range candidate.Content.Parts {
		if text, ok := part.(genai.Text); ok {
			b.WriteString(string(text))
		}
	}
	return b.String()
}
