package expressions

import "context"

// Engine evaluates expressions passed to builtin actions.
// Three implementations: Expr (logic), GoJQ (transforms), CEL (assertions).
type Engine interface {
	Name() string
	Evaluate(ctx context.Context, expression string, data map[string]any) (any, error)
}
