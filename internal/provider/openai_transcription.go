package provider

import (
	"bytes"
	"context"
	"fmt"
	"mime"
	"mime/multipart"
	"net/http"
	"net/textproto"
	"strings"

	"github.com/nitro41992/splitting-sucks/internal/config"
)

// openAITranscriber uploads audio to the dedicated speech endpoint
type openAITranscriber struct {
	baseURL string
	apiKey  string
	client  *http.Client
}

type openAITranscriptionResponse struct {
	Text string `json:"text"`
}

func (a *openAITranscriber) Invoke(ctx context.Context, req Request, cfg config.ServiceConfig) (Output, error) {
	body := &bytes.Buffer{}
	writer := multipart.NewWriter(body)

	header := make(textproto.MIMEHeader)
	header.Set("Content-Disposition", fmt.Sprintf(`form-data; name="file"; filename="%s"`, audioFilename(req.MIMEType)))
	header.Set("Content-Type", req.MIMEType)
	part, err := writer.CreatePart(header)
	if err != nil {
		return Output{}, fmt.Errorf("creating form file: %w", err)
	}
	if _, err := part.Write(req.Media); err != nil {
		return Output{}, fmt.Errorf("writing audio to form: %w", err)
	}

	_ = writer.WriteField("model", cfg.Model)
	_ = writer.WriteField("response_format", "json")
	if prompt := strings.TrimSpace(req.Prompt); prompt != "" {
		_ = writer.WriteField("prompt", prompt)
	}

	if err := writer.Close(); err != nil {
		return Output{}, fmt.Errorf("closing multipart writer: %w", err)
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint(a.baseURL, "/audio/transcriptions"), body)
	if err != nil {
		return Output{}, fmt.Errorf("creating request: %w", err)
	}
	httpReq.Header.Set("Content-Type", writer.FormDataContentType())
	httpReq.Header.Set("Authorization", "Bearer "+a.apiKey)

	var resp openAITranscriptionResponse
	if err := do(a.client, httpReq, &resp); err != nil {
		return Output{}, fmt.Errorf("openai transcription: %w", err)
	}

	return Output{Text: resp.Text}, nil
}

// audioFilename gives the upload a name whose extension the speech endpoint
// uses to pick a decoder
func audioFilename(mimeType string) string {
	switch mimeType {
	case "audio/mp4", "audio/x-m4a", "audio/m4a":
		return "audio.m4a"
	case "audio/mpeg", "audio/mp3":
		return "audio.mp3"
	case "audio/wav", "audio/x-wav", "audio/wave":
		return "audio.wav"
	case "audio/ogg", "application/ogg":
		return "audio.ogg"
	case "audio/webm", "video/webm":
		return "audio.webm"
	case "video/mp4":
		return "audio.mp4"
	}
	if exts, err := mime.ExtensionsByType(mimeType); err == nil && len(exts) > 0 {
		return "audio" + exts[0]
	}
	return "audio.m4a"
}
