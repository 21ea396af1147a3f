package server

import (
	_ "embed"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/santhosh-tekuri/jsonschema/v5"
)

//go:embed policy_schema.json
var policySchemaJSON string

// policySchema validates policy payloads before they are decoded, so
// clients get structural errors (wrong types, unknown fields, bad enum
// values) ahead of domain validation.
type policySchema struct {
	schema *jsonschema.Schema
}

func newPolicySchema() (*policySchema, error) {
	compiler := jsonschema.NewCompiler()
	if err := compiler.AddResource("policy.schema.json", strings.NewReader(policySchemaJSON)); err != nil {
		return nil, fmt.Errorf("failed to add policy schema resource: %w", err)
	}
	schema, err := compiler.Compile("policy.schema.json")
	if err != nil {
		return nil, fmt.Errorf("failed to compile policy schema: %w", err)
	}
	return &policySchema{schema: schema}, nil
}

func (ps *policySchema) validate(body []byte) error {
	var doc any
	if err := json.Unmarshal(body, &doc); err != nil {
		return fmt.Errorf("invalid JSON: %w", err)
	}
	if err := ps.schema.Validate(doc); err != nil {
		return fmt.Errorf("policy document invalid: %v", err)
	}
	return nil
}
