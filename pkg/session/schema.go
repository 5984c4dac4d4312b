package session

import (
	_ "embed"
	"encoding/json"
	"fmt"
	"strings"
	"sync"

	"github.com/santhosh-tekuri/jsonschema/v5"
)

//go:embed session_schema.json
var schemaDocument string

var (
	schemaOnce sync.Once
	schema     *jsonschema.Schema
	schemaErr  error
)

func compiledSchema() (*jsonschema.Schema, error) {
	schemaOnce.Do(func() {
		compiler := jsonschema.NewCompiler()
		if err := compiler.AddResource("session_schema.json", strings.NewReader(schemaDocument)); err != nil {
			schemaErr = err
			return
		}
		schema, schemaErr = compiler.Compile("session_schema.json")
	})
	return schema, schemaErr
}

// validateDocument checks raw session bytes against the embedded schema.
// Structural failures surface as ErrSchemaMismatch so the validator never
// downgrades them to a pass.
func validateDocument(data []byte) error {
	s, err := compiledSchema()
	if err != nil {
		return fmt.Errorf("compile session schema: %w", err)
	}

	var doc any
	if err := json.Unmarshal(data, &doc); err != nil {
		return fmt.Errorf("%w: not valid JSON: %v", ErrSchemaMismatch, err)
	}
	if err := s.Validate(doc); err != nil {
		return fmt.Errorf("%w: %v", ErrSchemaMismatch, err)
	}
	return nil
}
