package provider

import (
	"context"
	"fmt"
	"net/http"
	"strings"

	"github.com/caarlos0/env/v11"
	"github.com/google/generative-ai-go/genai"
	"google.golang.org/api/option"

	"github.com/nitro41992/splitting-sucks/internal/apperr"
	"github.com/nitro41992/splitting-sucks/internal/config"
)

// Credentials holds provider secrets and endpoints read from the environment
type Credentials struct {
	OpenAIAPIKey  string `env:"OPENAI_API_KEY"`
	GoogleAPIKey  string `env:"GOOGLE_API_KEY"`
	OpenAIBaseURL string `env:"OPENAI_BASE_URL" envDefault:"https://api.openai.com/v1"`
	GeminiBaseURL string `env:"GEMINI_BASE_URL" envDefault:"https://generativelanguage.googleapis.com"`
	OllamaURL     string `env:"OLLAMA_URL" envDefault:"http://localhost:11434"`
}

// LoadCredentials parses Credentials from the process environment
func LoadCredentials() (Credentials, error) {
	var creds Credentials
	if err := env.Parse(&creds); err != nil {
		return Credentials{}, fmt.Errorf("parse env: %w", err)
	}
	return creds, nil
}

// contentGenerator is the part of *genai.GenerativeModel the transcriber uses
type contentGenerator interface {
	GenerateContent(ctx context.Context, parts ...genai.Part) (*genai.GenerateContentResponse, error)
}

// modelOpener opens a Gemini SDK model and returns a func releasing its client
type modelOpener func(ctx context.Context, apiKey, model string) (contentGenerator, func() error, error)

func openGenAIModel(ctx context.Context, apiKey, model string) (contentGenerator, func() error, error) {
	client, err := genai.NewClient(ctx, option.WithAPIKey(apiKey))
	if err != nil {
		return nil, nil, fmt.Errorf("creating gemini client: %w", err)
	}
	return client.GenerativeModel(model), client.Close, nil
}

// Factory is the single place an adapter is chosen for an operation and
// provider
type Factory struct {
	credentials Credentials
	client      *http.Client
	openModel   modelOpener
}

// NewFactory creates a Factory. client carries the provider call deadline.
func NewFactory(credentials Credentials, client *http.Client) *Factory {
	if client == nil {
		client = http.DefaultClient
	}
	return &Factory{
		credentials: credentials,
		client:      client,
		openModel:   openGenAIModel,
	}
}

// New returns the adapter serving op on providerName. A combination with no
// adapter or a missing credential is a ConfigurationError.
func (f *Factory) New(op config.Operation, providerName string) (Adapter, error) {
	capability := config.CapabilityFor(op)

	switch providerName {
	case config.ProviderOpenAI:
		if strings.TrimSpace(f.credentials.OpenAIAPIKey) == "" {
			return nil, apperr.New(apperr.KindConfiguration, "OPENAI_API_KEY is not set")
		}
		if capability == config.CapabilityTranscription {
			return &openAITranscriber{baseURL: f.credentials.OpenAIBaseURL, apiKey: f.credentials.OpenAIAPIKey, client: f.client}, nil
		}
		return &openAICompleter{baseURL: f.credentials.OpenAIBaseURL, apiKey: f.credentials.OpenAIAPIKey, client: f.client}, nil

	case config.ProviderGemini:
		if strings.TrimSpace(f.credentials.GoogleAPIKey) == "" {
			return nil, apperr.New(apperr.KindConfiguration, "GOOGLE_API_KEY is not set")
		}
		if capability == config.CapabilityTranscription {
			return &geminiTranscriber{apiKey: f.credentials.GoogleAPIKey, openModel: f.openModel}, nil
		}
		return &geminiCompleter{baseURL: f.credentials.GeminiBaseURL, apiKey: f.credentials.GoogleAPIKey, client: f.client}, nil

	case config.ProviderOllama:
		if capability == config.CapabilityTranscription {
			return nil, apperr.New(apperr.KindConfiguration, "provider %q cannot serve %s", providerName, op)
		}
		return &ollamaCompleter{baseURL: f.credentials.OllamaURL, client: f.client}, nil
	}

	return nil, apperr.New(apperr.KindConfiguration, "unknown provider %q for %s", providerName, op)
}
