// Package tools exposes the gateway's file operations as named, schema
// described tools for /v1/tools, /v1/tools/invoke, and the in-pipeline
// tool loop.
package tools

import (
	"context"
	"encoding/json"

	"github.com/MartyZhou/vscode-copilot-as-service/internal/errdefs"
	"github.com/MartyZhou/vscode-copilot-as-service/internal/fileops"
)

// Registry maps tool names onto the file-operation dispatcher.
type Registry struct {
	dispatcher *fileops.Dispatcher
}

// NewRegistry builds a registry over a dispatcher.
func NewRegistry(d *fileops.Dispatcher) *Registry {
	return &Registry{dispatcher: d}
}

// Schema describes a tool for listing and tool-calling.
type Schema struct {
	Name        string        `json:"name"`
	Description string        `json:"description"`
	Parameters  []SchemaField `json:"parameters"`
}

// SchemaField describes a single parameter.
type SchemaField struct {
	Name        string `json:"name"`
	Type        string `json:"type"`
	Description string `json:"description,omitempty"`
	Required    bool   `json:"required"`
}

// toolOps binds tool names to operation discriminants.
var toolOps = map[string]fileops.Kind{
	"workspace.read_file": fileops.KindRead,
	"workspace.search":    fileops.KindSearch,
	"workspace.open_file": fileops.KindOpen,
	"workspace.add_file":  fileops.KindAdd,
	"workspace.edit_file": fileops.KindEdit,
}

// Schemas provides descriptors for available tools.
func (r *Registry) Schemas() []Schema {
	return []Schema{
		{
			Name:        "workspace.read_file",
			Description: "Read a file relative to the workspace, optionally slicing a 1-indexed inclusive line range",
			Parameters: []SchemaField{
				{Name: "filePath", Type: "string", Description: "Relative file path", Required: true},
				{Name: "startLine", Type: "integer", Required: false},
				{Name: "endLine", Type: "integer", Required: false},
			},
		},
		{
			Name:        "workspace.search",
			Description: "Search workspace files for a literal string",
			Parameters: []SchemaField{
				{Name: "query", Type: "string", Required: true},
				{Name: "filePattern", Type: "string", Description: "Glob filter such as **/*.py", Required: false},
				{Name: "maxResults", Type: "integer", Required: false},
			},
		},
		{
			Name:        "workspace.open_file",
			Description: "Focus a file (and optionally a line) in the editor",
			Parameters: []SchemaField{
				{Name: "filePath", Type: "string", Required: true},
				{Name: "line", Type: "integer", Required: false},
			},
		},
		{
			Name:        "workspace.add_file",
			Description: "Create a file; fails if it exists unless overwrite is set",
			Parameters: []SchemaField{
				{Name: "filePath", Type: "string", Required: true},
				{Name: "content", Type: "string", Required: true},
				{Name: "overwrite", Type: "boolean", Required: false},
			},
		},
		{
			Name:        "workspace.edit_file",
			Description: "Apply one or more exact string replacements atomically",
			Parameters: []SchemaField{
				{Name: "filePath", Type: "string", Required: true},
				{Name: "oldString", Type: "string", Required: false},
				{Name: "newString", Type: "string", Required: false},
				{Name: "replacements", Type: "array", Required: false},
			},
		},
	}
}

// Schema returns the schema for a given tool name if present.
func (r *Registry) Schema(name string) (Schema, bool) {
	for _, s := range r.Schemas() {
		if s.Name == name {
			return s, true
		}
	}
	return Schema{}, false
}

// Has reports whether a tool name is known.
func (r *Registry) Has(name string) bool {
	_, ok := toolOps[name]
	return ok
}

// Invoke validates parameters against the tool's schema, decodes them
// into the typed operation, and dispatches it.
func (r *Registry) Invoke(ctx context.Context, name string, params map[string]interface{}) (fileops.Observation, error) {
	opKind, ok := toolOps[name]
	if !ok {
		return fileops.Observation{}, errdefs.Validation("unknown tool %q", name)
	}

	schema, _ := r.Schema(name)
	if err := validateAgainstSchema(schema, params); err != nil {
		return fileops.Observation{}, err
	}

	spec, err := specFromParams(opKind, params)
	if err != nil {
		return fileops.Observation{}, err
	}

	op, err := spec.Operation()
	if err != nil {
		return fileops.Observation{}, err
	}
	return r.dispatcher.Dispatch(ctx, op)
}

// specFromParams round-trips the loose parameter map into the wire spec
// so tool calls and chat fileOperations share one decode path.
func specFromParams(kind fileops.Kind, params map[string]interface{}) (*fileops.Spec, error) {
	raw, err := json.Marshal(params)
	if err != nil {
		return nil, errdefs.Validation("tool parameters are not serializable: %v", err)
	}
	var spec fileops.Spec
	if err := json.Unmarshal(raw, &spec); err != nil {
		return nil, errdefs.Validation("tool parameters do not match schema: %v", err)
	}
	spec.Type = string(kind)
	return &spec, nil
}

func validateAgainstSchema(schema Schema, args map[string]interface{}) error {
	for _, field := range schema.Parameters {
		val, exists := args[field.Name]
		if field.Required && !exists {
			return errdefs.Validation("%s is required", field.Name)
		}
		if !exists {
			continue
		}
		switch field.Type {
		case "string":
			if _, ok := val.(string); !ok {
				return errdefs.Validation("%s must be string", field.Name)
			}
		case "boolean":
			if _, ok := val.(bool); !ok {
				return errdefs.Validation("%s must be boolean", field.Name)
			}
		case "array":
			if _, ok := val.([]interface{}); !ok {
				return errdefs.Validation("%s must be array", field.Name)
			}
		case "integer":
			switch val.(type) {
			case float64, int, int64:
			default:
				return errdefs.Validation("%s must be integer", field.Name)
			}
		}
	}
	return nil
}
