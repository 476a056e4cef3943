package actions

import (
	"context"
	"encoding/json"

	"github.com/ericvicenti/botical-sub000/internal/expressions"
	"github.com/ericvicenti/botical-sub000/pkg/schema"
)

const jqInputSchema = `{
  "type": "object",
  "properties": {
    "query": {"type": "string", "description": "jq program to run"},
    "data": {"description": "JSON value the query is applied to"}
  },
  "required": ["query"]
}`

// JQAction implements the "jq" action: run a jq program over a JSON value.
type JQAction struct {
	engine *expressions.GoJQEngine
}

// NewJQAction creates a new jq action.
func NewJQAction(engine *expressions.GoJQEngine) *JQAction {
	if engine == nil {
		engine = expressions.NewGoJQEngine()
	}
	return &JQAction{engine: engine}
}

func (a *JQAction) Name() string { return "jq" }

func (a *JQAction) Schema() ActionSchema {
	return ActionSchema{
		Description: "Transform a JSON value with a jq program. Multiple outputs are collected into an array.",
		InputSchema: json.RawMessage(jqInputSchema),
	}
}

func (a *JQAction) Validate(args map[string]any) error {
	if stringParam(args, "query", "") == "" {
		return schema.NewError(schema.ErrCodeValidation, "jq: missing required param 'query'")
	}
	return nil
}

func (a *JQAction) Execute(ctx context.Context, input ActionInput) (*ActionResult, error) {
	if err := a.Validate(input.Args); err != nil {
		return nil, err
	}

	query := stringParam(input.Args, "query", "")

	// jq accepts any JSON value as input, not just objects. Wrap
	// non-map data under a synthetic root so the engine's map-based
	// contract is satisfied, then address it via the query directly.
	data, ok := input.Args["data"].(map[string]any)
	if !ok && input.Args["data"] != nil {
		data = map[string]any{"value": input.Args["data"]}
		query = "(.value) | " + query
	}

	out, err := a.engine.Evaluate(ctx, query, data)
	if err != nil {
		return nil, err
	}
	return Success(map[string]any{"result": out}), nil
}
