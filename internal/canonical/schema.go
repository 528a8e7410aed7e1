package canonical

import (
	"embed"
	"encoding/json"
	"fmt"

	"github.com/google/jsonschema-go/jsonschema"
)

//go:embed schemas/*.json
var schemaFS embed.FS

// Schema is a JSON schema document sent to providers for schema-enforced
// output and used to validate whatever comes back. The validating schema may
// be looser than Document when the decoder accepts more than one shape.
type Schema struct {
	Name     string
	Document json.RawMessage
	resolved *jsonschema.Resolved
}

var (
	ReceiptDocumentSchema = mustLoadSchema("receipt_document", "")

	// Providers are asked for the list form. The map form is still accepted.
	AssignmentResultSchema = mustLoadSchema("assignment_result", "assignment_result_accepted")
)

func mustLoadSchema(name, accepted string) *Schema {
	s, err := loadSchema(name, accepted)
	if err != nil {
		panic(err)
	}
	return s
}

func loadSchema(name, accepted string) (*Schema, error) {
	data, err := schemaFS.ReadFile("schemas/" + name + ".json")
	if err != nil {
		return nil, fmt.Errorf("reading schema %s: %w", name, err)
	}

	validating := name
	if accepted != "" {
		validating = accepted
	}
	resolved, err := resolveSchema(validating)
	if err != nil {
		return nil, err
	}

	compact, err := json.Marshal(json.RawMessage(data))
	if err != nil {
		return nil, fmt.Errorf("compacting schema %s: %w", name, err)
	}

	return &Schema{
		Name:     name,
		Document: compact,
		resolved: resolved,
	}, nil
}

func resolveSchema(name string) (*jsonschema.Resolved, error) {
	data, err := schemaFS.ReadFile("schemas/" + name + ".json")
	if err != nil {
		return nil, fmt.Errorf("reading schema %s: %w", name, err)
	}

	var doc jsonschema.Schema
	if err := json.Unmarshal(data, &doc); err != nil {
		return nil, fmt.Errorf("decoding schema %s: %w", name, err)
	}
	resolved, err := doc.Resolve(nil)
	if err != nil {
		return nil, fmt.Errorf("resolving schema %s: %w", name, err)
	}
	return resolved, nil
}

// Validate checks a decoded JSON value (maps, slices, float64s) against the
// schema.
func (s *Schema) Validate(instance any) error {
	return s.resolved.Validate(instance)
}
