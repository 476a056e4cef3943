package actions

import (
	"context"
	"encoding/json"

	"github.com/ericvicenti/botical-sub000/internal/expressions"
	"github.com/ericvicenti/botical-sub000/pkg/schema"
)

const assertInputSchema = `{
  "type": "object",
  "properties": {
    "condition": {"type": "string", "description": "CEL expression that must evaluate to true"},
    "data": {"type": "object", "description": "Value bound to 'data' in the expression"},
    "message": {"type": "string", "description": "Failure message when the condition is false"}
  },
  "required": ["condition"]
}`

// AssertAction implements the "assert" action: evaluate a CEL boolean guard
// and fail the step when it does not hold.
type AssertAction struct {
	engine *expressions.CELEngine
}

// NewAssertAction creates a new assert action.
func NewAssertAction(engine *expressions.CELEngine) (*AssertAction, error) {
	if engine == nil {
		var err error
		engine, err = expressions.NewCELEngine()
		if err != nil {
			return nil, err
		}
	}
	return &AssertAction{engine: engine}, nil
}

func (a *AssertAction) Name() string { return "assert" }

func (a *AssertAction) Schema() ActionSchema {
	return ActionSchema{
		Description: "Evaluate a CEL guard expression. Succeeds when it yields true, fails the step otherwise.",
		InputSchema: json.RawMessage(assertInputSchema),
	}
}

func (a *AssertAction) Validate(args map[string]any) error {
	if stringParam(args, "condition", "") == "" {
		return schema.NewError(schema.ErrCodeValidation, "assert: missing required param 'condition'")
	}
	return nil
}

func (a *AssertAction) Execute(ctx context.Context, input ActionInput) (*ActionResult, error) {
	if err := a.Validate(input.Args); err != nil {
		return nil, err
	}

	condition := stringParam(input.Args, "condition", "")
	data, _ := input.Args["data"].(map[string]any)

	out, err := a.engine.Evaluate(ctx, condition, map[string]any{"data": data})
	if err != nil {
		return nil, err
	}

	ok, isBool := out.(bool)
	if !isBool {
		return nil, schema.NewErrorf(schema.ErrCodeValidation,
			"assert: condition %q did not evaluate to a boolean", condition)
	}
	if !ok {
		msg := stringParam(input.Args, "message", "")
		if msg == "" {
			msg = "assertion failed: " + condition
		}
		return Errorf("%s", msg), nil
	}
	return Success(map[string]any{"passed": true}), nil
}
