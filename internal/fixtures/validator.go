package fixtures

import (
	"embed"
	"encoding/json"
	"fmt"

	"github.com/santhosh-tekuri/jsonschema/v5"
)

// TableKind names one of the directory tables.
type TableKind string

const (
	TablePalette  TableKind = "palette"
	TableFixtures TableKind = "fixtures"
	TableGroups   TableKind = "groups"
)

//go:embed schema/*.json
var schemaFS embed.FS

type Validator struct {
	schemas map[TableKind]*jsonschema.Schema
}

func NewValidator() (*Validator, error) {
	compiler := jsonschema.NewCompiler()
	v := &Validator{schemas: make(map[TableKind]*jsonschema.Schema)}

	for _, kind := range []TableKind{TablePalette, TableFixtures, TableGroups} {
		name := string(kind) + "-v1.json"

		f, err := schemaFS.Open("schema/" + name)
		if err != nil {
			return nil, fmt.Errorf("failed to open schema %s: %w", name, err)
		}
		err = compiler.AddResource(name, f)
		f.Close()
		if err != nil {
			return nil, fmt.Errorf("failed to add schema resource: %w", err)
		}

		schema, err := compiler.Compile(name)
		if err != nil {
			return nil, fmt.Errorf("failed to compile schema %s: %w", name, err)
		}
		v.schemas[kind] = schema
	}

	return v, nil
}

// Validate checks JSON encoded table data against the schema for kind.
func (v *Validator) Validate(kind TableKind, data []byte) error {
	schema, ok := v.schemas[kind]
	if !ok {
		return fmt.Errorf("no schema for table %q", kind)
	}

	var doc interface{}
	if err := json.Unmarshal(data, &doc); err != nil {
		return fmt.Errorf("invalid JSON: %w", err)
	}

	if err := schema.Validate(doc); err != nil {
		return fmt.Errorf("schema validation failed: %w", err)
	}

	return nil
}
