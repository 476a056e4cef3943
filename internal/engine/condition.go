package engine

import (
	"fmt"
	"math"
	"reflect"
	"strings"

	"github.com/ericvicenti/botical-sub000/pkg/schema"
)

// EvalCondition evaluates a condition expression tree against the scope.
// Sub-conditions of and/or are evaluated eagerly; bindings have no side
// effects, so short-circuiting would only be an optimization.
//
// An unknown operator evaluates to true. Fail-open is the documented
// behavior of this evaluator; see DESIGN.md.
func EvalCondition(expr *schema.ConditionExpression, scope *Scope) bool {
	if expr == nil {
		return true
	}
	switch expr.Op {
	case schema.CondEquals:
		return strictEquals(ResolveBinding(expr.Left, scope), ResolveBinding(expr.Right, scope))
	case schema.CondNotEquals:
		return !strictEquals(ResolveBinding(expr.Left, scope), ResolveBinding(expr.Right, scope))
	case schema.CondContains:
		value := stringify(ResolveBinding(expr.Value, scope))
		search := stringify(ResolveBinding(expr.Search, scope))
		return strings.Contains(value, search)
	case schema.CondExists:
		return ResolveBinding(expr.Value, scope) != nil
	case schema.CondTruthy:
		return truthy(ResolveBinding(expr.Value, scope))
	case schema.CondAnd:
		result := true
		for i := range expr.Conditions {
			if !EvalCondition(&expr.Conditions[i], scope) {
				result = false
			}
		}
		return result
	case schema.CondOr:
		result := false
		for i := range expr.Conditions {
			if EvalCondition(&expr.Conditions[i], scope) {
				result = true
			}
		}
		return result
	case schema.CondNot:
		return !EvalCondition(expr.Condition, scope)
	}
	return true
}

// strictEquals compares two values with no type coercion. Values of
// different dynamic types are never equal; maps and slices compare by
// reference identity, never by contents.
func strictEquals(a, b any) bool {
	if a == nil || b == nil {
		return a == nil && b == nil
	}
	ta, tb := reflect.TypeOf(a), reflect.TypeOf(b)
	if ta != tb {
		return false
	}
	if !ta.Comparable() {
		switch ta.Kind() {
		case reflect.Map, reflect.Slice, reflect.Func:
			return reflect.ValueOf(a).Pointer() == reflect.ValueOf(b).Pointer()
		}
		return false
	}
	return a == b
}

// truthy follows conventional truthiness: nil, false, empty string, zero
// and NaN are falsy; everything else is truthy.
func truthy(v any) bool {
	switch val := v.(type) {
	case nil:
		return false
	case bool:
		return val
	case string:
		return val != ""
	case float64:
		return val != 0 && !math.IsNaN(val)
	case float32:
		return val != 0 && !math.IsNaN(float64(val))
	case int:
		return val != 0
	case int32:
		return val != 0
	case int64:
		return val != 0
	}
	return true
}

// stringify renders a value for substring search. nil renders as the
// empty string, not "<nil>".
func stringify(v any) string {
	if v == nil {
		return ""
	}
	return fmt.Sprintf("%v", v)
}
