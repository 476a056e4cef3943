package schema

import (
	"encoding/json"
	"fmt"
	"strings"
	"sync"

	jsonschema "github.com/santhosh-tekuri/jsonschema/v6"
)

// InputValidator validates execution input against a definition's declared
// input fields. The fields are synthesized into a JSON Schema Draft 2020-12
// document, compiled once per distinct field set and cached. Safe for
// concurrent use.
type InputValidator struct {
	mu    sync.RWMutex
	cache map[string]*jsonschema.Schema
}

// NewInputValidator creates an empty validator.
func NewInputValidator() *InputValidator {
	return &InputValidator{cache: make(map[string]*jsonschema.Schema)}
}

// Validate applies field defaults to a copy of input and validates the
// result against the definition's input fields. It returns the effective
// input map. A definition without input fields accepts anything.
func (v *InputValidator) Validate(def *WorkflowDefinition, input map[string]any) (map[string]any, error) {
	applied := make(map[string]any, len(input)+len(def.Inputs))
	for k, val := range input {
		applied[k] = val
	}
	for _, f := range def.Inputs {
		if _, ok := applied[f.Name]; !ok && f.Default != nil {
			applied[f.Name] = f.Default
		}
	}

	if len(def.Inputs) == 0 {
		return applied, nil
	}

	schemaJSON, err := synthesizeInputSchema(def.Inputs)
	if err != nil {
		return nil, NewError(ErrCodeValidation, "failed to build input schema").WithCause(err)
	}

	compiled, err := v.getOrCompile(schemaJSON)
	if err != nil {
		return nil, NewError(ErrCodeValidation, "invalid input schema").WithCause(err)
	}

	// Round-trip through JSON so numbers become json.Number, which the
	// jsonschema library requires.
	doc, err := toJSONValue(applied)
	if err != nil {
		return nil, NewError(ErrCodeValidation, "failed to serialize input").WithCause(err)
	}

	if err := compiled.Validate(doc); err != nil {
		return nil, toValidationError(err)
	}
	return applied, nil
}

// synthesizeInputSchema builds a Draft 2020-12 object schema from the
// declared input fields.
func synthesizeInputSchema(fields []InputField) (string, error) {
	props := make(map[string]any, len(fields))
	var required []string
	for _, f := range fields {
		prop := map[string]any{}
		switch f.Type {
		case "string", "number", "boolean", "object", "array":
			prop["type"] = f.Type
		case "integer":
			prop["type"] = "integer"
		}
		props[f.Name] = prop
		if f.Required {
			required = append(required, f.Name)
		}
	}
	doc := map[string]any{
		"$schema":    "https://json-schema.org/draft/2020-12/schema",
		"type":       "object",
		"properties": props,
	}
	if len(required) > 0 {
		doc["required"] = required
	}
	b, err := json.Marshal(doc)
	if err != nil {
		return "", err
	}
	return string(b), nil
}

// getOrCompile returns a cached compiled schema or compiles and caches a new one.
func (v *InputValidator) getOrCompile(schemaJSON string) (*jsonschema.Schema, error) {
	v.mu.RLock()
	if cached, ok := v.cache[schemaJSON]; ok {
		v.mu.RUnlock()
		return cached, nil
	}
	v.mu.RUnlock()

	v.mu.Lock()
	defer v.mu.Unlock()

	if cached, ok := v.cache[schemaJSON]; ok {
		return cached, nil
	}

	doc, err := jsonschema.UnmarshalJSON(strings.NewReader(schemaJSON))
	if err != nil {
		return nil, fmt.Errorf("unmarshal schema: %w", err)
	}

	// Each synthesized schema gets a unique URL to avoid compiler collisions.
	url := fmt.Sprintf("botical://input-schema/%d", len(v.cache))

	c := jsonschema.NewCompiler()
	c.AssertFormat()
	if err := c.AddResource(url, doc); err != nil {
		return nil, fmt.Errorf("add schema resource: %w", err)
	}

	compiled, err := c.Compile(url)
	if err != nil {
		return nil, fmt.Errorf("compile schema: %w", err)
	}

	v.cache[schemaJSON] = compiled
	return compiled, nil
}

// toJSONValue round-trips a Go value through JSON encoding so numeric
// values become json.Number.
func toJSONValue(v any) (any, error) {
	b, err := json.Marshal(v)
	if err != nil {
		return nil, err
	}
	return jsonschema.UnmarshalJSON(strings.NewReader(string(b)))
}

// toValidationError converts a jsonschema.ValidationError into a
// BoticalError with per-field violation messages.
func toValidationError(err error) *BoticalError {
	verr, ok := err.(*jsonschema.ValidationError)
	if !ok {
		return NewError(ErrCodeValidation, err.Error())
	}

	violations := collectViolations(verr)
	if len(violations) == 0 {
		return NewError(ErrCodeValidation, verr.Error())
	}
	if len(violations) == 1 {
		return NewError(ErrCodeValidation, violations[0]).
			WithDetails(map[string]any{"violations": violations})
	}
	msg := fmt.Sprintf("input validation failed with %d errors", len(violations))
	return NewError(ErrCodeValidation, msg).
		WithDetails(map[string]any{"violations": violations})
}

// collectViolations walks a ValidationError tree and collects leaf messages
// with their instance locations.
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
