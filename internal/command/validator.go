package command

import (
	"bytes"
	_ "embed"
	"encoding/json"
	"fmt"

	"github.com/santhosh-tekuri/jsonschema/v6"
)

//go:embed schema.json
var attributeSchema []byte

// Validator checks {attr: value} payloads against the attribute schema.
// Attributes the schema does not mention pass unchecked.
type Validator struct {
	schema *jsonschema.Schema
}

// NewValidator compiles the embedded attribute schema.
func NewValidator() (*Validator, error) {
	doc, err := jsonschema.UnmarshalJSON(bytes.NewReader(attributeSchema))
	if err != nil {
		return nil, fmt.Errorf("failed to unmarshal schema: %w", err)
	}

	c := jsonschema.NewCompiler()
	if err := c.AddResource("attributes.json", doc); err != nil {
		return nil, fmt.Errorf("failed to add resource: %w", err)
	}
	compiled, err := c.Compile("attributes.json")
	if err != nil {
		return nil, fmt.Errorf("failed to compile: %w", err)
	}
	return &Validator{schema: compiled}, nil
}

// Validate checks one attribute write. The value is normalised through
// JSON first so Go numeric types validate like decoded JSON numbers.
func (v *Validator) Validate(attr string, value any) error {
	raw, err := json.Marshal(map[string]any{attr: value})
	if err != nil {
		return fmt.Errorf("value for %s is not JSON encodable: %w", attr, err)
	}
	inst, err := jsonschema.UnmarshalJSON(bytes.NewReader(raw))
	if err != nil {
		return fmt.Errorf("value for %s: %w", attr, err)
	}
	return v.schema.Validate(inst)
}
