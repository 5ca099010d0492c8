package gateway

import (
	"strings"

	"github.com/MartyZhou/vscode-copilot-as-service/internal/errdefs"
	"github.com/MartyZhou/vscode-copilot-as-service/internal/fileops"
	"github.com/MartyZhou/vscode-copilot-as-service/internal/llm"
)

// ToolChecker reports whether a tool name is served by the registry.
type ToolChecker interface {
	Has(name string) bool
}

// Normalizer validates and defaults an inbound request in place. The
// suggestion engine runs every emitted request through the same code
// path before returning it.
type Normalizer struct {
	Models *llm.Registry
	Tools  ToolChecker
}

// Normalize mutates req into canonical form and returns the decoded
// file operation, if any. Every failure is a validation error.
func (n *Normalizer) Normalize(req *ChatRequest) (fileops.Operation, error) {
	if req == nil {
		return nil, errdefs.Validation("request body is required")
	}
	if len(req.Messages) == 0 {
		return nil, errdefs.Validation("messages must not be empty")
	}
	for i, m := range req.Messages {
		if strings.TrimSpace(string(m.Role)) == "" {
			return nil, errdefs.Validation("messages[%d].role is required", i)
		}
	}

	if req.Model == "" {
		req.Model = n.Models.DefaultModel()
	}
	if !n.Models.Has(req.Model) {
		return nil, errdefs.Validation("model %q not registered", req.Model)
	}

	// Tool invocation and token streaming are mutually exclusive; tools win.
	if len(req.Tools) > 0 {
		req.Stream = false
		if n.Tools != nil {
			for _, ref := range req.Tools {
				if ref.Name == "" {
					return nil, errdefs.Validation("tools entries must carry a name")
				}
				if !n.Tools.Has(ref.Name) {
					return nil, errdefs.Validation("unknown tool %q", ref.Name)
				}
			}
		}
	}

	for i, p := range req.FileReads {
		if strings.TrimSpace(p) == "" {
			return nil, errdefs.Validation("fileReads[%d] must not be empty", i)
		}
	}

	if req.CodeSearch != nil && strings.TrimSpace(req.CodeSearch.Query) == "" {
		return nil, errdefs.Validation("codeSearch.query is required")
	}

	if req.FileOperation == nil {
		return nil, nil
	}
	return req.FileOperation.Operation()
}
