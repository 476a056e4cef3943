package actions

import (
	"context"
	"sort"
	"sync"

	"github.com/ericvicenti/botical-sub000/pkg/schema"
)

// Registry is the concrete thread-safe ActionRegistry implementation.
type Registry struct {
	mu      sync.RWMutex
	actions map[string]Action
}

// NewRegistry creates an empty Registry.
func NewRegistry() *Registry {
	return &Registry{
		actions: make(map[string]Action),
	}
}

// Register adds an action to the registry. Returns error on duplicate name.
func (r *Registry) Register(action Action) error {
	if action == nil {
		return schema.NewError(schema.ErrCodeValidation, "action is nil")
	}
	name := action.Name()
	if name == "" {
		return schema.NewError(schema.ErrCodeValidation, "action name is empty")
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	if _, exists := r.actions[name]; exists {
		return schema.NewErrorf(schema.ErrCodeConflict, "action %q already registered", name)
	}

	r.actions[name] = action
	return nil
}

// Get retrieves an action by name.
func (r *Registry) Get(name string) (Action, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	action, ok := r.actions[name]
	if !ok {
		return nil, schema.NewErrorf(schema.ErrCodeActionUnavailable, "action %q not registered", name)
	}
	return action, nil
}

// Execute looks up an action by name and runs it with the given args and
// caller context.
func (r *Registry) Execute(ctx context.Context, name string, args map[string]any, actx ActionContext) (*ActionResult, error) {
	action, err := r.Get(name)
	if err != nil {
		return nil, err
	}
	return action.Execute(ctx, ActionInput{Args: args, Context: actx})
}

// List returns info for all registered actions, sorted by name.
func (r *Registry) List() []ActionInfo {
	r.mu.RLock()
	defer r.mu.RUnlock()

	infos := make([]ActionInfo, 0, len(r.actions))
	for _, a := range r.actions {
		s := a.Schema()
		infos = append(infos, ActionInfo{
			Name:        a.Name(),
			Description: s.Description,
		})
	}
	sort.Slice(infos, func(i, j int) bool {
		return infos[i].Name < infos[j].Name
	})
	return infos
}

// Has checks if an action is registered.
func (r *Registry) Has(name string) bool {
	r.mu.RLock()
	defer r.mu.RUnlock()
	_, ok := r.actions[name]
	return ok
}

// Count returns the number of registered actions.
func (r *Registry) Count() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.actions)
}

var _ ActionRegistry = (*Registry)(nil)
