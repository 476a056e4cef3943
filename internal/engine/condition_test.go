package engine

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/ericvicenti/botical-sub000/pkg/schema"
)

func inputRef(path string) *schema.ArgBinding {
	return &schema.ArgBinding{Type: schema.BindingInput, Path: path}
}

func TestEvalConditionNilIsTrue(t *testing.T) {
	assert.True(t, EvalCondition(nil, NewScope(nil, false)))
}

func TestEvalConditionEquals(t *testing.T) {
	scope := NewScope(map[string]any{
		"env":   "prod",
		"count": float64(3),
	}, false)

	tests := []struct {
		name string
		expr schema.ConditionExpression
		want bool
	}{
		{"string match", schema.ConditionExpression{
			Op: schema.CondEquals, Left: inputRef("env"), Right: schema.Lit("prod"),
		}, true},
		{"string mismatch", schema.ConditionExpression{
			Op: schema.CondEquals, Left: inputRef("env"), Right: schema.Lit("dev"),
		}, false},
		{"no type coercion: float64 vs int", schema.ConditionExpression{
			Op: schema.CondEquals, Left: inputRef("count"), Right: schema.Lit(3),
		}, false},
		{"same-typed numbers", schema.ConditionExpression{
			Op: schema.CondEquals, Left: inputRef("count"), Right: schema.Lit(float64(3)),
		}, true},
		{"both absent: nil equals nil", schema.ConditionExpression{
			Op: schema.CondEquals, Left: inputRef("ghost"), Right: inputRef("phantom"),
		}, true},
		{"nil vs value", schema.ConditionExpression{
			Op: schema.CondEquals, Left: inputRef("ghost"), Right: schema.Lit("x"),
		}, false},
		{"notEquals inverts", schema.ConditionExpression{
			Op: schema.CondNotEquals, Left: inputRef("env"), Right: schema.Lit("dev"),
		}, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, EvalCondition(&tt.expr, scope))
		})
	}
}

func TestEvalConditionReferenceIdentity(t *testing.T) {
	tags := []any{"a", "b"}
	cfg := map[string]any{"k": "v"}
	scope := NewScope(map[string]any{
		"tags":     tags,
		"sameTags": tags,
		"tagsCopy": []any{"a", "b"},
		"cfg":      cfg,
		"sameCfg":  cfg,
		"cfgCopy":  map[string]any{"k": "v"},
	}, false)

	// Slices and maps compare by identity, not by contents.
	same := []schema.ConditionExpression{
		{Op: schema.CondEquals, Left: inputRef("tags"), Right: inputRef("sameTags")},
		{Op: schema.CondEquals, Left: inputRef("cfg"), Right: inputRef("sameCfg")},
	}
	for _, expr := range same {
		assert.True(t, EvalCondition(&expr, scope))
	}

	distinct := []schema.ConditionExpression{
		{Op: schema.CondEquals, Left: inputRef("tags"), Right: inputRef("tagsCopy")},
		{Op: schema.CondEquals, Left: inputRef("cfg"), Right: inputRef("cfgCopy")},
	}
	for _, expr := range distinct {
		assert.False(t, EvalCondition(&expr, scope))
	}
}

func TestEvalConditionContains(t *testing.T) {
	scope := NewScope(map[string]any{"subject": "deploy to staging"}, false)

	yes := &schema.ConditionExpression{
		Op: schema.CondContains, Value: inputRef("subject"), Search: schema.Lit("staging"),
	}
	no := &schema.ConditionExpression{
		Op: schema.CondContains, Value: inputRef("subject"), Search: schema.Lit("prod"),
	}
	assert.True(t, EvalCondition(yes, scope))
	assert.False(t, EvalCondition(no, scope))

	// nil value stringifies to "", which contains only "".
	nilValue := &schema.ConditionExpression{
		Op: schema.CondContains, Value: inputRef("ghost"), Search: schema.Lit(""),
	}
	assert.True(t, EvalCondition(nilValue, scope))
}

func TestEvalConditionExistsAndTruthy(t *testing.T) {
	scope := NewScope(map[string]any{
		"zero":  float64(0),
		"empty": "",
		"flag":  true,
	}, false)

	assert.True(t, EvalCondition(&schema.ConditionExpression{Op: schema.CondExists, Value: inputRef("zero")}, scope))
	assert.False(t, EvalCondition(&schema.ConditionExpression{Op: schema.CondExists, Value: inputRef("ghost")}, scope))

	assert.False(t, EvalCondition(&schema.ConditionExpression{Op: schema.CondTruthy, Value: inputRef("zero")}, scope))
	assert.False(t, EvalCondition(&schema.ConditionExpression{Op: schema.CondTruthy, Value: inputRef("empty")}, scope))
	assert.True(t, EvalCondition(&schema.ConditionExpression{Op: schema.CondTruthy, Value: inputRef("flag")}, scope))
}

func TestEvalConditionCombinators(t *testing.T) {
	scope := NewScope(map[string]any{"a": true, "b": false}, false)

	and := &schema.ConditionExpression{
		Op: schema.CondAnd,
		Conditions: []schema.ConditionExpression{
			{Op: schema.CondTruthy, Value: inputRef("a")},
			{Op: schema.CondTruthy, Value: inputRef("b")},
		},
	}
	or := &schema.ConditionExpression{
		Op: schema.CondOr,
		Conditions: []schema.ConditionExpression{
			{Op: schema.CondTruthy, Value: inputRef("a")},
			{Op: schema.CondTruthy, Value: inputRef("b")},
		},
	}
	not := &schema.ConditionExpression{
		Op:        schema.CondNot,
		Condition: &schema.ConditionExpression{Op: schema.CondTruthy, Value: inputRef("b")},
	}

	assert.False(t, EvalCondition(and, scope))
	assert.True(t, EvalCondition(or, scope))
	assert.True(t, EvalCondition(not, scope))

	// Empty combinators: and is vacuously true, or is vacuously false.
	assert.True(t, EvalCondition(&schema.ConditionExpression{Op: schema.CondAnd}, scope))
	assert.False(t, EvalCondition(&schema.ConditionExpression{Op: schema.CondOr}, scope))
}

func TestEvalConditionUnknownOperatorIsTrue(t *testing.T) {
	expr := &schema.ConditionExpression{Op: "matches"}
	assert.True(t, EvalCondition(expr, NewScope(nil, false)))
}
