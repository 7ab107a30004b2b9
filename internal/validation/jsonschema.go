// Package validation checks configuration documents and tool inputs
// against JSON Schema Draft 2020-12.
package validation

import (
	"encoding/json"
	"fmt"
	"strings"
	"sync"

	jsonschema "github.com/santhosh-tekuri/jsonschema/v6"

	"github.com/rendis/pyconst/pkg/schema"
)

const durationPattern = `^([0-9]+(\\.[0-9]+)?(ns|us|µs|ms|s|m|h))+$`

// configSchemaJSON is the JSON Schema for .pyconst.yaml / .pyconst.json.
// Embedded as a constant to avoid filesystem dependencies.
const configSchemaJSON = `{
  "$schema": "https://json-schema.org/draft/2020-12/schema",
  "$id": "https://pyconst.dev/schemas/config.json",
  "type": "object",
  "properties": {
    "db_path": { "type": "string", "minLength": 1 },
    "log_level": { "type": "string", "enum": ["debug", "info", "warn", "warning", "error"] },
    "log_format": { "type": "string", "enum": ["text", "json"] },
    "pool_size": { "type": "integer", "minimum": 1, "maximum": 1024 },
    "max_int_bits": { "type": "integer", "minimum": 64 },
    "scan_skipped": { "type": "boolean" },
    "include_skipped_warnings": { "type": "boolean" },
    "color": { "type": "string", "enum": ["auto", "always", "never"] },
    "bindings": {
      "type": "object",
      "propertyNames": { "pattern": "^[A-Za-z_][A-Za-z0-9_]*$" },
      "additionalProperties": { "type": ["integer", "number", "boolean", "string"] }
    },
    "watch": { "$ref": "#/$defs/watch" }
  },
  "additionalProperties": false,
  "$defs": {
    "watch": {
      "type": "object",
      "properties": {
        "interval": { "type": "string", "pattern": "` + durationPattern + `" },
        "failure_threshold": { "type": "integer", "minimum": 1 },
        "cooldown": { "type": "string", "pattern": "` + durationPattern + `" },
        "retry_attempts": { "type": "integer", "minimum": 1, "maximum": 20 }
      },
      "additionalProperties": false
    }
  }
}`

const configSchemaURL = "https://pyconst.dev/schemas/config.json"

// JSONSchemaValidator validates config documents and caller-supplied
// schemas. It is safe for concurrent use.
type JSONSchemaValidator struct {
	configSchema *jsonschema.Schema

	// mu guards the cache for dynamic schema compilation.
	mu    sync.RWMutex
	cache map[string]*jsonschema.Schema
}

// NewJSONSchemaValidator creates a validator with the config schema
// pre-compiled.
func NewJSONSchemaValidator() (*JSONSchemaValidator, error) {
	c := newCompiler()

	schemaDoc, err := jsonschema.UnmarshalJSON(strings.NewReader(configSchemaJSON))
	if err != nil {
		return nil, fmt.Errorf("unmarshal config schema: %w", err)
	}
	if err := c.AddResource(configSchemaURL, schemaDoc); err != nil {
		return nil, fmt.Errorf("add config schema resource: %w", err)
	}

	cfgSchema, err := c.Compile(configSchemaURL)
	if err != nil {
		return nil, fmt.Errorf("compile config schema: %w", err)
	}

	return &JSONSchemaValidator{
		configSchema: cfgSchema,
		cache:        make(map[string]*jsonschema.Schema),
	}, nil
}

// ValidateConfig validates a decoded config document (from YAML or JSON).
// Violations are reported as CONFIG_ERROR.
func (v *JSONSchemaValidator) ValidateConfig(doc map[string]any) error {
	if doc == nil {
		return nil
	}
	jv, err := toJSONValue(doc)
	if err != nil {
		return schema.NewError(schema.ErrCodeConfig, "config is not representable as JSON").WithCause(err)
	}
	if err := v.configSchema.Validate(jv); err != nil {
		pe := toPyconstError(err)
		pe.Code = schema.ErrCodeConfig
		return pe
	}
	return nil
}

// ValidateInput validates input against a JSON Schema provided as raw
// bytes. The schema is compiled and cached for subsequent calls.
func (v *JSONSchemaValidator) ValidateInput(input map[string]any, inputSchema []byte) error {
	if input == nil {
		return schema.NewError(schema.ErrCodeValidation, "input is nil")
	}
	if len(inputSchema) == 0 {
		return nil
	}

	compiled, err := v.getOrCompile(inputSchema)
	if err != nil {
		return schema.NewError(schema.ErrCodeValidation, "invalid input schema").WithCause(err)
	}

	doc, err := toJSONValue(input)
	if err != nil {
		return schema.NewError(schema.ErrCodeValidation, "failed to serialize input").WithCause(err)
	}

	if err := compiled.Validate(doc); err != nil {
		return toPyconstError(err)
	}
	return nil
}

func (v *JSONSchemaValidator) getOrCompile(schemaBytes []byte) (*jsonschema.Schema, error) {
	key := string(schemaBytes)

	v.mu.RLock()
	if cached, ok := v.cache[key]; ok {
		v.mu.RUnlock()
		return cached, nil
	}
	v.mu.RUnlock()

	v.mu.Lock()
	defer v.mu.Unlock()

	if cached, ok := v.cache[key]; ok {
		return cached, nil
	}

	doc, err := jsonschema.UnmarshalJSON(strings.NewReader(key))
	if err != nil {
		return nil, fmt.Errorf("unmarshal schema: %w", err)
	}

	// A fresh compiler and URL per schema avoids resource collisions.
	url := fmt.Sprintf("pyconst://input-schema/%d", len(v.cache))
	c := newCompiler()
	if err := c.AddResource(url, doc); err != nil {
		return nil, fmt.Errorf("add schema resource: %w", err)
	}
	compiled, err := c.Compile(url)
	if err != nil {
		return nil, fmt.Errorf("compile schema: %w", err)
	}

	v.cache[key] = compiled
	return compiled, nil
}

func newCompiler() *jsonschema.Compiler {
	c := jsonschema.NewCompiler()
	c.AssertFormat()
	return c
}

// toJSONValue round-trips a Go value through JSON so numbers become
// json.Number, as the jsonschema library requires.
func toJSONValue(v any) (any, error) {
	b, err := json.Marshal(v)
	if err != nil {
		return nil, err
	}
	return jsonschema.UnmarshalJSON(strings.NewReader(string(b)))
}

// toPyconstError flattens a jsonschema.ValidationError into one
// VALIDATION_ERROR listing every violation.
func toPyconstError(err error) *schema.PyconstError {
	verr, ok := err.(*jsonschema.ValidationError)
	if !ok {
		return schema.NewError(schema.ErrCodeValidation, err.Error())
	}

	violations := collectViolations(verr)
	switch len(violations) {
	case 0:
		return schema.NewError(schema.ErrCodeValidation, verr.Error())
	case 1:
		return schema.NewError(schema.ErrCodeValidation, violations[0]).
			WithDetails(map[string]any{"violations": violations})
	}
	msg := fmt.Sprintf("validation failed with %d errors: %s", len(violations), strings.Join(violations, "; "))
	return schema.NewError(schema.ErrCodeValidation, msg).
		WithDetails(map[string]any{"violations": violations})
}

// collectViolations walks a ValidationError tree and collects leaf
// messages prefixed with their instance locations.
func collectViolations(verr *jsonschema.ValidationError) []string {
	if len(verr.Causes) == 0 {
		loc := "/"
		if len(verr.InstanceLocation) > 0 {
			loc = "/" + strings.Join(verr.InstanceLocation, "/")
		}
		return []string{fmt.Sprintf("%s: %s", loc, verr.Error())}
	}

	var violations []string
	for _, cause := range verr.Causes {
		violations = append(violations, collectViolations(cause)...)
	}
	return violations
}
