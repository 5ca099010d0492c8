// Package rpc defines the gateway's HTTP/JSON wire types and handlers.
package rpc

import (
	"github.com/MartyZhou/vscode-copilot-as-service/internal/gateway"
	"github.com/MartyZhou/vscode-copilot-as-service/internal/llm"
	"github.com/MartyZhou/vscode-copilot-as-service/internal/workspace"
)

// ChatChoice is one completion choice in the response envelope.
type ChatChoice struct {
	Index        int             `json:"index"`
	Message      llm.ChatMessage `json:"message"`
	FinishReason string          `json:"finish_reason,omitempty"`
}

// ChatResponse is the non-streaming completion envelope.
// choices[0].message.content is always present on success paths.
type ChatResponse struct {
	Object           string                    `json:"object"`
	Model            string                    `json:"model,omitempty"`
	Choices          []ChatChoice              `json:"choices"`
	SuggestedActions []gateway.SuggestedAction `json:"suggested_actions,omitempty"`
	ContextSummary   string                    `json:"context_summary,omitempty"`
}

// StreamDelta is the incremental content of one streamed frame.
type StreamDelta struct {
	Content string `json:"content,omitempty"`
}

// StreamChoice wraps a delta in the OpenAI chunk shape.
type StreamChoice struct {
	Index        int         `json:"index"`
	Delta        StreamDelta `json:"delta"`
	FinishReason string      `json:"finish_reason,omitempty"`
}

// StreamChunk is one `data:` frame of a streamed completion.
type StreamChunk struct {
	Object  string         `json:"object"`
	Choices []StreamChoice `json:"choices"`
}

// ModelInfo describes one entry of /v1/models.
type ModelInfo struct {
	ID       string `json:"id"`
	Name     string `json:"name"`
	Provider string `json:"provider,omitempty"`
	Default  bool   `json:"default,omitempty"`
}

// ListResponse is the generic {data: [...]} wrapper used by list endpoints.
type ListResponse[T any] struct {
	Data []T `json:"data"`
}

// InvokeToolRequest is the body of POST /v1/tools/invoke.
type InvokeToolRequest struct {
	ToolName   string                 `json:"tool_name"`
	Parameters map[string]interface{} `json:"parameters"`
}

// InvokeToolResponse carries a successful tool invocation result.
type InvokeToolResponse struct {
	ToolName string      `json:"tool_name"`
	Success  bool        `json:"success"`
	Result   interface{} `json:"result"`
}

// ReadFileRequest is the body of POST /v1/workspace/files/read.
type ReadFileRequest struct {
	FilePath  string `json:"filePath"`
	StartLine int    `json:"startLine,omitempty"`
	EndLine   int    `json:"endLine,omitempty"`
}

// ReadFileResponse returns file content, optionally line-sliced.
type ReadFileResponse struct {
	FilePath  string `json:"filePath"`
	Content   string `json:"content"`
	StartLine int    `json:"startLine,omitempty"`
	EndLine   int    `json:"endLine,omitempty"`
}

// SearchRequest is the body of POST /v1/workspace/files/search.
type SearchRequest struct {
	Query       string `json:"query"`
	FilePattern string `json:"filePattern,omitempty"`
	MaxResults  int    `json:"maxResults,omitempty"`
}

// SearchResponse lists matches ordered by path then line.
type SearchResponse struct {
	Data []workspace.Match `json:"data"`
}

// OpenFileRequest is the body of POST /v1/workspace/files/open.
type OpenFileRequest struct {
	FilePath string `json:"filePath"`
	Line     int    `json:"line,omitempty"`
}

// OpenFileResponse acknowledges an editor focus request.
type OpenFileResponse struct {
	Success  bool   `json:"success"`
	FilePath string `json:"filePath"`
	Line     int    `json:"line,omitempty"`
}

// AddFileRequest is the body of POST /v1/workspace/files/add.
type AddFileRequest struct {
	FilePath  string `json:"filePath"`
	Content   string `json:"content"`
	Overwrite bool   `json:"overwrite,omitempty"`
}

// AddFileResponse acknowledges a file creation.
type AddFileResponse struct {
	Success   bool   `json:"success"`
	FilePath  string `json:"filePath"`
	Overwrote bool   `json:"overwrote,omitempty"`
}

// ErrorBody is the payload inside an error envelope.
type ErrorBody struct {
	Message string `json:"message"`
	Type    string `json:"type"`
}

// ErrorResponse is the envelope for every non-2xx response.
type ErrorResponse struct {
	Error ErrorBody `json:"error"`
}
