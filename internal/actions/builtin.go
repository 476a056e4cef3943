package actions

// RegisterBuiltins registers the built-in action set on the given registry:
// http.request, http.get, http.post, expr.eval, jq, and assert.
func RegisterBuiltins(reg *Registry, httpCfg HTTPConfig) error {
	assertAction, err := NewAssertAction(nil)
	if err != nil {
		return err
	}

	builtins := []Action{
		NewHTTPRequestAction(httpCfg),
		NewHTTPGetAction(httpCfg),
		NewHTTPPostAction(httpCfg),
		NewExprEvalAction(nil),
		NewJQAction(nil),
		assertAction,
	}

	for _, a := range builtins {
		if err := reg.Register(a); err != nil {
			return err
		}
	}
	return nil
}
