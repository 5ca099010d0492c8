// Package gateway implements the chat-completion pipeline: request
// normalization, file-operation dispatch, context assembly, the model
// tool loop, and suggested next actions.
package gateway

import (
	"bytes"
	"encoding/json"

	"github.com/MartyZhou/vscode-copilot-as-service/internal/fileops"
	"github.com/MartyZhou/vscode-copilot-as-service/internal/llm"
)

// ChatRequest is the inbound chat-completion payload. The same shape is
// embedded in suggested actions, so any request the engine emits can be
// resubmitted as-is.
type ChatRequest struct {
	Messages                []llm.ChatMessage `json:"messages"`
	Model                   string            `json:"model,omitempty"`
	Stream                  bool              `json:"stream,omitempty"`
	IncludeWorkspaceContext bool              `json:"includeWorkspaceContext,omitempty"`
	Tools                   []ToolRef         `json:"tools,omitempty"`
	Justification           string            `json:"justification,omitempty"`
	FileOperation           *fileops.Spec     `json:"fileOperation,omitempty"`
	FileReads               []string          `json:"fileReads,omitempty"`
	CodeSearch              *CodeSearch       `json:"codeSearch,omitempty"`
	SuggestNextActions      bool              `json:"suggestNextActions,omitempty"`
}

// CodeSearch is an auxiliary workspace search folded into model context.
type CodeSearch struct {
	Query       string `json:"query"`
	FilePattern string `json:"filePattern,omitempty"`
	MaxResults  int    `json:"maxResults,omitempty"`
}

// ToolRef names a tool the model may call. Callers send either a bare
// string or an object with a name field.
type ToolRef struct {
	Name string `json:"name"`
}

func (t *ToolRef) UnmarshalJSON(data []byte) error {
	data = bytes.TrimSpace(data)
	if len(data) > 0 && data[0] == '"' {
		return json.Unmarshal(data, &t.Name)
	}
	type alias ToolRef
	var a alias
	if err := json.Unmarshal(data, &a); err != nil {
		return err
	}
	t.Name = a.Name
	return nil
}

func (t ToolRef) MarshalJSON() ([]byte, error) {
	return json.Marshal(t.Name)
}

// SuggestedAction is a replayable follow-up proposal. Request is a
// complete ChatRequest that passes the same validation as a top-level
// call.
type SuggestedAction struct {
	Description string      `json:"description"`
	Reasoning   string      `json:"reasoning"`
	Request     ChatRequest `json:"request"`
}

// Result is the assembled outcome of one pipeline run.
type Result struct {
	Content          string
	Model            string
	SuggestedActions []SuggestedAction
	ContextSummary   string
}
