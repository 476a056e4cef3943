package actions

import (
	"context"
	"encoding/json"

	"github.com/ericvicenti/botical-sub000/internal/expressions"
	"github.com/ericvicenti/botical-sub000/pkg/schema"
)

const exprEvalInputSchema = `{
  "type": "object",
  "properties": {
    "expression": {"type": "string", "description": "Expr expression to evaluate"},
    "data": {"type": "object", "description": "Variables available to the expression"}
  },
  "required": ["expression"]
}`

// ExprEvalAction implements the "expr.eval" action: evaluate an Expr
// expression against a data map and return the result.
type ExprEvalAction struct {
	engine *expressions.ExprEngine
}

// NewExprEvalAction creates a new expr.eval action.
func NewExprEvalAction(engine *expressions.ExprEngine) *ExprEvalAction {
	if engine == nil {
		engine = expressions.NewExprEngine()
	}
	return &ExprEvalAction{engine: engine}
}

func (a *ExprEvalAction) Name() string { return "expr.eval" }

func (a *ExprEvalAction) Schema() ActionSchema {
	return ActionSchema{
		Description: "Evaluate an Expr expression against a data map. Supports filters, maps, string ops, ?? coalescing, and ?. chaining.",
		InputSchema: json.RawMessage(exprEvalInputSchema),
	}
}

func (a *ExprEvalAction) Validate(args map[string]any) error {
	if stringParam(args, "expression", "") == "" {
		return schema.NewError(schema.ErrCodeValidation, "expr.eval: missing required param 'expression'")
	}
	return nil
}

func (a *ExprEvalAction) Execute(ctx context.Context, input ActionInput) (*ActionResult, error) {
	if err := a.Validate(input.Args); err != nil {
		return nil, err
	}

	expression := stringParam(input.Args, "expression", "")
	data, _ := input.Args["data"].(map[string]any)

	out, err := a.engine.Evaluate(ctx, expression, data)
	if err != nil {
		return nil, err
	}
	return Success(map[string]any{"result": out}), nil
}
