package schema

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestInputValidatorAppliesDefaults(t *testing.T) {
	v := NewInputValidator()
	def := &WorkflowDefinition{
		Inputs: []InputField{
			{Name: "branch", Type: "string", Default: "main"},
			{Name: "dryRun", Type: "boolean", Default: true},
		},
	}

	got, err := v.Validate(def, map[string]any{"dryRun": false})
	require.NoError(t, err)
	assert.Equal(t, "main", got["branch"])
	assert.Equal(t, false, got["dryRun"], "explicit value must win over default")
}

func TestInputValidatorRequiredMissing(t *testing.T) {
	v := NewInputValidator()
	def := &WorkflowDefinition{
		Inputs: []InputField{
			{Name: "repo", Type: "string", Required: true},
		},
	}

	_, err := v.Validate(def, map[string]any{})
	require.Error(t, err)
	berr, ok := err.(*BoticalError)
	require.True(t, ok)
	assert.Equal(t, ErrCodeValidation, berr.Code)
}

func TestInputValidatorTypeMismatch(t *testing.T) {
	v := NewInputValidator()
	def := &WorkflowDefinition{
		Inputs: []InputField{
			{Name: "count", Type: "number"},
		},
	}

	_, err := v.Validate(def, map[string]any{"count": "three"})
	require.Error(t, err)
}

func TestInputValidatorNoFieldsAcceptsAnything(t *testing.T) {
	v := NewInputValidator()
	def := &WorkflowDefinition{}

	got, err := v.Validate(def, map[string]any{"whatever": []any{1, 2}})
	require.NoError(t, err)
	assert.Contains(t, got, "whatever")
}

func TestInputValidatorCachesCompiledSchemas(t *testing.T) {
	v := NewInputValidator()
	def := &WorkflowDefinition{
		Inputs: []InputField{{Name: "a", Type: "string"}},
	}

	for i := 0; i < 3; i++ {
		_, err := v.Validate(def, map[string]any{"a": "x"})
		require.NoError(t, err)
	}
	assert.Len(t, v.cache, 1)
}
