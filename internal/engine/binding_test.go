package engine

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/ericvicenti/botical-sub000/pkg/schema"
)

func TestResolveBindingLiteral(t *testing.T) {
	scope := NewScope(nil, false)

	assert.Equal(t, 42, ResolveBinding(schema.Lit(42), scope))
	assert.Equal(t, "hello", ResolveBinding(schema.Lit("hello"), scope))
	assert.Nil(t, ResolveBinding(schema.Lit(nil), scope))
}

func TestResolveBindingInput(t *testing.T) {
	scope := NewScope(map[string]any{
		"name": "ada",
		"user": map[string]any{"email": "ada@example.com"},
	}, false)

	tests := []struct {
		name string
		path string
		want any
	}{
		{"top-level key", "name", "ada"},
		{"nested path", "user.email", "ada@example.com"},
		{"missing key", "missing", nil},
		{"missing nested", "user.phone", nil},
		{"path through scalar", "name.x", nil},
		{"empty path returns root", "", map[string]any{
			"name": "ada",
			"user": map[string]any{"email": "ada@example.com"},
		}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			b := &schema.ArgBinding{Type: schema.BindingInput, Path: tt.path}
			assert.Equal(t, tt.want, ResolveBinding(b, scope))
		})
	}
}

func TestResolveBindingStep(t *testing.T) {
	scope := NewScope(nil, false)
	scope.SetStepOutput("fetch", map[string]any{"body": map[string]any{"id": 7}})

	b := &schema.ArgBinding{Type: schema.BindingStep, StepID: "fetch", Path: "body.id"}
	assert.Equal(t, 7, ResolveBinding(b, scope))

	// A step that never completed resolves to nil, not an error.
	absent := &schema.ArgBinding{Type: schema.BindingStep, StepID: "ghost", Path: "body"}
	assert.Nil(t, ResolveBinding(absent, scope))
}

func TestResolveBindingNilAndUnknownType(t *testing.T) {
	scope := NewScope(nil, false)

	assert.Nil(t, ResolveBinding(nil, scope))
	assert.Nil(t, ResolveBinding(&schema.ArgBinding{Type: "mystery"}, scope))
}

func TestResolveArgs(t *testing.T) {
	scope := NewScope(map[string]any{"city": "tokyo"}, false)
	scope.SetStepOutput("geo", map[string]any{"lat": 35.6})

	args := map[string]schema.ArgBinding{
		"city":    {Type: schema.BindingInput, Path: "city"},
		"lat":     {Type: schema.BindingStep, StepID: "geo", Path: "lat"},
		"units":   {Type: schema.BindingLiteral, Value: "metric"},
		"missing": {Type: schema.BindingInput, Path: "nope"},
	}

	resolved := ResolveArgs(args, scope)
	assert.Equal(t, map[string]any{
		"city":    "tokyo",
		"lat":     35.6,
		"units":   "metric",
		"missing": nil,
	}, resolved)
}
