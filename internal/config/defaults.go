package config

// GenericFallbackPrompt replaces a null prompt for operations that need one.
const GenericFallbackPrompt = "Default fallback prompt."

const parseReceiptPrompt = `You are analyzing a photo of a restaurant or store receipt. Read every line item on the receipt and extract it.

For each purchased item return:
1. "item": the item name as printed on the receipt, cleaned of item codes.
2. "quantity": the number of units purchased as an integer. If no quantity is printed, use 1.
3. "price": the price of ONE unit. If the receipt prints a line total for several units, divide the line total by the quantity.

Also return "subtotal": the receipt subtotal before tax, tip and fees. If no subtotal is printed, use the sum of price * quantity over all items.

Return ONLY valid JSON in this exact format:
{
  "items": [{"item": "Item name", "quantity": 1, "price": 0.00}],
  "subtotal": 0.00
}

Important:
- Do not include tax, tip, service charges, discounts or payment lines as items
- quantity must be an integer and price must be a number (not a string)
- Do not include any text before or after the JSON
- Do not use markdown code blocks`

const assignPeoplePrompt = `You split a restaurant bill. You are given a transcription of people describing who had what, and the receipt items as JSON. Every receipt item has a numeric "id" and a "quantity".

Assign every unit of every receipt item to exactly one of:
- a person ("person_assignments"), when the transcription says that person had it;
- "shared_items", when the transcription says it was shared by several people or by everyone;
- "unassigned_items", when the transcription does not say who had it.

Rules:
- Refer to items only by their "id" from the receipt items JSON.
- For every item, the quantities across person_assignments, shared_items and unassigned_items must add up to exactly the item's quantity.
- Use the names exactly as spoken in the transcription.

Return ONLY valid JSON in this exact format:
{
  "person_assignments": [{"person_name": "Name", "items": [{"id": 1, "quantity": 1}]}],
  "shared_items": [{"id": 2, "quantity": 1}],
  "unassigned_items": []
}`

type providerDefaults struct {
	Model          string
	MaxTokens      *int
	ThinkingBudget *int
}

type operationDefaults struct {
	Provider  string
	Providers map[string]providerDefaults
	Prompt    *string
}

var fallbacks = map[Operation]operationDefaults{
	OperationParseReceipt: {
		Provider: ProviderOpenAI,
		Providers: map[string]providerDefaults{
			ProviderOpenAI: {Model: "gpt-4o", MaxTokens: intPtr(4096)},
			ProviderGemini: {Model: "gemini-2.5-flash", MaxTokens: intPtr(8192), ThinkingBudget: intPtr(8000)},
			ProviderOllama: {Model: "llava", MaxTokens: intPtr(4096)},
		},
		Prompt: strPtr(parseReceiptPrompt),
	},
	OperationAssignPeople: {
		Provider: ProviderOpenAI,
		Providers: map[string]providerDefaults{
			ProviderOpenAI: {Model: "gpt-4o", MaxTokens: intPtr(4096)},
			ProviderGemini: {Model: "gemini-2.5-flash", MaxTokens: intPtr(8192), ThinkingBudget: intPtr(8000)},
			ProviderOllama: {Model: "llama3.1", MaxTokens: intPtr(4096)},
		},
		Prompt: strPtr(assignPeoplePrompt),
	},
	OperationTranscribe: {
		Provider: ProviderOpenAI,
		Providers: map[string]providerDefaults{
			ProviderOpenAI: {Model: "whisper-1"},
			ProviderGemini: {Model: "gemini-2.0-flash"},
		},
	},
}

// genericFallback covers operation names missing from the table.
var genericFallback = operationDefaults{
	Provider: ProviderOpenAI,
	Providers: map[string]providerDefaults{
		ProviderOpenAI: {Model: "gpt-4o", MaxTokens: intPtr(4096)},
	},
}

func defaultsFor(op Operation) operationDefaults {
	if d, ok := fallbacks[op]; ok {
		return d
	}
	return genericFallback
}

// Supports reports whether provider can serve op.
func Supports(op Operation, provider string) bool {
	_, ok := defaultsFor(op).Providers[provider]
	return ok
}

// DefaultConfig returns the hardcoded ServiceConfig for op. Every field is a fresh
// copy so callers may modify it.
func DefaultConfig(op Operation) ServiceConfig {
	d := defaultsFor(op)
	p := d.Providers[d.Provider]
	return ServiceConfig{
		Operation:      op,
		ProviderName:   d.Provider,
		Model:          p.Model,
		MaxTokens:      cloneInt(p.MaxTokens),
		ThinkingBudget: cloneInt(p.ThinkingBudget),
		Prompt:         cloneString(d.Prompt),
		Provenance: Provenance{
			ProviderName:   SourceDefault,
			Model:          SourceDefault,
			MaxTokens:      SourceDefault,
			ThinkingBudget: SourceDefault,
			Prompt:         SourceDefault,
		},
	}
}

// DefaultPrompt returns a copy of the hardcoded prompt for op, or nil.
func DefaultPrompt(op Operation) *string {
	return cloneString(defaultsFor(op).Prompt)
}

func providerDefaultsFor(op Operation, provider string) providerDefaults {
	return defaultsFor(op).Providers[provider]
}
