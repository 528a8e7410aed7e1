// Package config resolves the provider, model and prompt used for each
// operation from the configuration store, degrading to hardcoded defaults.
package config

// Operation names a logical request type
type Operation string

const (
	OperationParseReceipt Operation = "parse_receipt"
	OperationAssignPeople Operation = "assign_people_to_items"
	OperationTranscribe   Operation = "transcribe_audio"
)

// Provider names
const (
	ProviderOpenAI = "openai"
	ProviderGemini = "gemini"
	ProviderOllama = "ollama"
)

// Capability is the kind of call an operation needs from a provider
type Capability string

const (
	CapabilityMultimodal    Capability = "structured-multimodal-completion"
	CapabilityText          Capability = "structured-text-completion"
	CapabilityTranscription Capability = "transcription"
)

// CapabilityFor returns the capability an operation needs. Unknown operations
// are treated as text completions.
func CapabilityFor(op Operation) Capability {
	switch op {
	case OperationParseReceipt:
		return CapabilityMultimodal
	case OperationTranscribe:
		return CapabilityTranscription
	default:
		return CapabilityText
	}
}

// Source records where a ServiceConfig field came from
type Source string

const (
	SourceStore   Source = "store"
	SourceDefault Source = "default"
)

// Provenance is the per-field origin of a ServiceConfig
type Provenance struct {
	ProviderName   Source `json:"provider_name"`
	Model          Source `json:"model"`
	MaxTokens      Source `json:"max_tokens"`
	ThinkingBudget Source `json:"thinking_budget"`
	Prompt         Source `json:"prompt"`
}

// ServiceConfig is the resolved configuration for one invocation
type ServiceConfig struct {
	Operation      Operation  `json:"operation"`
	ProviderName   string     `json:"provider_name"`
	Model          string     `json:"model"`
	MaxTokens      *int       `json:"max_tokens"`
	ThinkingBudget *int       `json:"thinking_budget"`
	Prompt         *string    `json:"prompt"`
	Provenance     Provenance `json:"field_provenance"`
}

// PromptText returns the prompt or an empty string when it is null.
func (c ServiceConfig) PromptText() string {
	if c.Prompt == nil {
		return ""
	}
	return *c.Prompt
}

// PromptRequired reports whether the operation cannot run without a prompt.
func PromptRequired(op Operation) bool {
	return op != OperationTranscribe
}

func intPtr(v int) *int {
	return &v
}

func strPtr(v string) *string {
	return &v
}

func cloneInt(v *int) *int {
	if v == nil {
		return nil
	}
	return intPtr(*v)
}

func cloneString(v *string) *string {
	if v == nil {
		return nil
	}
	return strPtr(*v)
}
