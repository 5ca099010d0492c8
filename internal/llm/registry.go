package llm

import (
	"sort"

	"github.com/MartyZhou/vscode-copilot-as-service/internal/errdefs"
)

// ModelRoute binds a logical model id to a provider and physical model name.
type ModelRoute struct {
	Name        string
	Provider    string
	Model       string
	Temperature float64
	MaxTokens   int
	Default     bool
}

// Registry resolves model ids to providers and routes.
type Registry struct {
	providers    map[string]Provider
	models       map[string]ModelRoute
	defaultModel string
}

// NewRegistry creates an empty registry.
func NewRegistry() *Registry {
	return &Registry{
		providers: make(map[string]Provider),
		models:    make(map[string]ModelRoute),
	}
}

// RegisterProvider adds a provider implementation.
func (r *Registry) RegisterProvider(name string, p Provider) {
	r.providers[name] = p
}

// RegisterModel adds a model route.
func (r *Registry) RegisterModel(name string, route ModelRoute, isDefault bool) {
	route.Name = name
	route.Default = isDefault
	r.models[name] = route
	if isDefault || r.defaultModel == "" {
		r.defaultModel = name
	}
}

// DefaultModel returns the id used when callers omit a model.
func (r *Registry) DefaultModel() string {
	return r.defaultModel
}

// Has reports whether a model id is registered.
func (r *Registry) Has(modelName string) bool {
	_, ok := r.models[modelName]
	return ok
}

// Resolve returns the provider and route for a given model id (default if empty).
func (r *Registry) Resolve(modelName string) (Provider, ModelRoute, error) {
	if modelName == "" {
		modelName = r.defaultModel
	}

	route, ok := r.models[modelName]
	if !ok {
		return nil, ModelRoute{}, errdefs.Validation("model %q not registered", modelName)
	}

	p, ok := r.providers[route.Provider]
	if !ok {
		return nil, ModelRoute{}, errdefs.New(errdefs.KindInternal, "provider %q not registered for model %q", route.Provider, modelName)
	}

	return p, route, nil
}

// List returns every registered route sorted by model id.
func (r *Registry) List() []ModelRoute {
	out := make([]ModelRoute, 0, len(r.models))
	for _, route := range r.models {
		out = append(out, route)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Name < out[j].Name })
	return out
}
