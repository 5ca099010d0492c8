package rpc

import (
	"context"
	"encoding/json"
	"net/http"
	"strconv"
	"time"

	"go.uber.org/zap"

	"github.com/MartyZhou/vscode-copilot-as-service/internal/errdefs"
	"github.com/MartyZhou/vscode-copilot-as-service/internal/fileops"
	"github.com/MartyZhou/vscode-copilot-as-service/internal/gateway"
	"github.com/MartyZhou/vscode-copilot-as-service/internal/llm"
	"github.com/MartyZhou/vscode-copilot-as-service/internal/tools"
	"github.com/MartyZhou/vscode-copilot-as-service/internal/workspace"
)

// requestMetrics is the slice of observability the handlers report to.
type requestMetrics interface {
	RecordRequest(route, status string, duration time.Duration)
}

// Handler serves the gateway's HTTP surface.
type Handler struct {
	Pipeline       *gateway.Pipeline
	Models         *llm.Registry
	Tools          *tools.Registry
	Dispatcher     *fileops.Dispatcher
	Metrics        requestMetrics
	Logger         *zap.Logger
	RequestTimeout time.Duration
}

// Register installs every route on the mux.
func (h *Handler) Register(mux *http.ServeMux) {
	mux.HandleFunc("/v1/models", h.route("/v1/models", http.MethodGet, h.handleModels))
	mux.HandleFunc("/v1/tools", h.route("/v1/tools", http.MethodGet, h.handleTools))
	mux.HandleFunc("/v1/tools/invoke", h.route("/v1/tools/invoke", http.MethodPost, h.handleInvokeTool))
	mux.HandleFunc("/v1/chat/completions", h.route("/v1/chat/completions", http.MethodPost, h.handleChat))
	mux.HandleFunc("/v1/workspace/files/read", h.route("/v1/workspace/files/read", http.MethodPost, h.handleWorkspaceRead))
	mux.HandleFunc("/v1/workspace/files/search", h.route("/v1/workspace/files/search", http.MethodPost, h.handleWorkspaceSearch))
	mux.HandleFunc("/v1/workspace/files/open", h.route("/v1/workspace/files/open", http.MethodPost, h.handleWorkspaceOpen))
	mux.HandleFunc("/v1/workspace/files/add", h.route("/v1/workspace/files/add", http.MethodPost, h.handleWorkspaceAdd))
}

type statusRecorder struct {
	http.ResponseWriter
	status int
}

func (r *statusRecorder) WriteHeader(code int) {
	r.status = code
	r.ResponseWriter.WriteHeader(code)
}

func (r *statusRecorder) Flush() {
	if f, ok := r.ResponseWriter.(http.Flusher); ok {
		f.Flush()
	}
}

// route enforces the HTTP method and records per-route metrics.
func (h *Handler) route(name, method string, fn http.HandlerFunc) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if r.Method != method {
			http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
			return
		}
		rec := &statusRecorder{ResponseWriter: w, status: http.StatusOK}
		start := time.Now()
		fn(rec, r)
		if h.Metrics != nil {
			h.Metrics.RecordRequest(name, strconv.Itoa(rec.status), time.Since(start))
		}
	}
}

func (h *Handler) requestContext(r *http.Request) (context.Context, context.CancelFunc) {
	if h.RequestTimeout <= 0 {
		return r.Context(), func() {}
	}
	return context.WithTimeout(r.Context(), h.RequestTimeout)
}

func (h *Handler) writeJSON(w http.ResponseWriter, status int, body interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(body); err != nil && h.Logger != nil {
		h.Logger.Warn("write response", zap.Error(err))
	}
}

func (h *Handler) writeError(w http.ResponseWriter, err error) {
	if h.Logger != nil && errdefs.KindOf(err) == errdefs.KindInternal {
		h.Logger.Error("request failed", zap.Error(err))
	}
	h.writeJSON(w, errdefs.HTTPStatus(err), ErrorResponse{Error: ErrorBody{
		Message: errdefs.PublicMessage(err),
		Type:    errdefs.KindOf(err).String(),
	}})
}

func decode(r *http.Request, into interface{}) error {
	dec := json.NewDecoder(r.Body)
	if err := dec.Decode(into); err != nil {
		return errdefs.Validation("invalid request body: %v", err)
	}
	return nil
}

func (h *Handler) handleModels(w http.ResponseWriter, r *http.Request) {
	routes := h.Models.List()
	data := make([]ModelInfo, 0, len(routes))
	for _, route := range routes {
		data = append(data, ModelInfo{
			ID:       route.Name,
			Name:     route.Name,
			Provider: route.Provider,
			Default:  route.Default,
		})
	}
	h.writeJSON(w, http.StatusOK, ListResponse[ModelInfo]{Data: data})
}

func (h *Handler) handleTools(w http.ResponseWriter, r *http.Request) {
	h.writeJSON(w, http.StatusOK, ListResponse[tools.Schema]{Data: h.Tools.Schemas()})
}

func (h *Handler) handleInvokeTool(w http.ResponseWriter, r *http.Request) {
	var req InvokeToolRequest
	if err := decode(r, &req); err != nil {
		h.writeError(w, err)
		return
	}
	if req.ToolName == "" {
		h.writeError(w, errdefs.Validation("tool_name is required"))
		return
	}

	ctx, cancel := h.requestContext(r)
	defer cancel()

	obs, err := h.Tools.Invoke(ctx, req.ToolName, req.Parameters)
	if err != nil {
		h.writeError(w, err)
		return
	}
	h.writeJSON(w, http.StatusOK, InvokeToolResponse{
		ToolName: req.ToolName,
		Success:  true,
		Result:   observationWire(obs),
	})
}

// observationWire shapes a dispatcher observation for the tool-invoke
// response body.
func observationWire(obs fileops.Observation) interface{} {
	switch obs.Op {
	case fileops.KindRead:
		return ReadFileResponse{FilePath: obs.Path, Content: obs.Content, StartLine: obs.StartLine, EndLine: obs.EndLine}
	case fileops.KindSearch:
		return SearchResponse{Data: obs.Matches}
	case fileops.KindOpen:
		return OpenFileResponse{Success: true, FilePath: obs.Path, Line: obs.Focus.Line}
	case fileops.KindAdd:
		return AddFileResponse{Success: true, FilePath: obs.Path, Overwrote: obs.Overwrote}
	case fileops.KindEdit:
		return map[string]interface{}{
			"success":      true,
			"filePath":     obs.Path,
			"replacements": obs.Replaced,
			"patch":        obs.Patch,
		}
	default:
		return map[string]interface{}{"success": true}
	}
}

func (h *Handler) handleChat(w http.ResponseWriter, r *http.Request) {
	var req gateway.ChatRequest
	if err := decode(r, &req); err != nil {
		h.writeError(w, err)
		return
	}

	ctx, cancel := h.requestContext(r)
	defer cancel()

	if req.Stream && len(req.Tools) == 0 {
		h.streamChat(ctx, w, &req)
		return
	}

	result, err := h.Pipeline.Process(ctx, &req)
	if err != nil {
		h.writeError(w, err)
		return
	}
	h.writeJSON(w, http.StatusOK, ChatResponse{
		Object: "chat.completion",
		Model:  result.Model,
		Choices: []ChatChoice{{
			Index:        0,
			Message:      llm.ChatMessage{Role: llm.RoleAssistant, Content: result.Content},
			FinishReason: "stop",
		}},
		SuggestedActions: result.SuggestedActions,
		ContextSummary:   result.ContextSummary,
	})
}

func (h *Handler) handleWorkspaceRead(w http.ResponseWriter, r *http.Request) {
	var req ReadFileRequest
	if err := decode(r, &req); err != nil {
		h.writeError(w, err)
		return
	}

	ctx, cancel := h.requestContext(r)
	defer cancel()

	spec := fileops.Spec{Type: string(fileops.KindRead), FilePath: req.FilePath, StartLine: req.StartLine, EndLine: req.EndLine}
	obs, err := h.dispatchSpec(ctx, spec)
	if err != nil {
		h.writeError(w, err)
		return
	}
	h.writeJSON(w, http.StatusOK, ReadFileResponse{
		FilePath:  obs.Path,
		Content:   obs.Content,
		StartLine: obs.StartLine,
		EndLine:   obs.EndLine,
	})
}

func (h *Handler) handleWorkspaceSearch(w http.ResponseWriter, r *http.Request) {
	var req SearchRequest
	if err := decode(r, &req); err != nil {
		h.writeError(w, err)
		return
	}

	ctx, cancel := h.requestContext(r)
	defer cancel()

	spec := fileops.Spec{Type: string(fileops.KindSearch), Query: req.Query, FilePattern: req.FilePattern, MaxResults: req.MaxResults}
	obs, err := h.dispatchSpec(ctx, spec)
	if err != nil {
		h.writeError(w, err)
		return
	}
	if obs.Matches == nil {
		obs.Matches = []workspace.Match{}
	}
	h.writeJSON(w, http.StatusOK, SearchResponse{Data: obs.Matches})
}

func (h *Handler) handleWorkspaceOpen(w http.ResponseWriter, r *http.Request) {
	var req OpenFileRequest
	if err := decode(r, &req); err != nil {
		h.writeError(w, err)
		return
	}

	ctx, cancel := h.requestContext(r)
	defer cancel()

	spec := fileops.Spec{Type: string(fileops.KindOpen), FilePath: req.FilePath, Line: req.Line}
	obs, err := h.dispatchSpec(ctx, spec)
	if err != nil {
		h.writeError(w, err)
		return
	}
	h.writeJSON(w, http.StatusOK, OpenFileResponse{Success: true, FilePath: obs.Path, Line: obs.Focus.Line})
}

func (h *Handler) handleWorkspaceAdd(w http.ResponseWriter, r *http.Request) {
	var req AddFileRequest
	if err := decode(r, &req); err != nil {
		h.writeError(w, err)
		return
	}

	ctx, cancel := h.requestContext(r)
	defer cancel()

	spec := fileops.Spec{Type: string(fileops.KindAdd), FilePath: req.FilePath, Content: req.Content, Overwrite: req.Overwrite}
	obs, err := h.dispatchSpec(ctx, spec)
	if err != nil {
		h.writeError(w, err)
		return
	}
	h.writeJSON(w, http.StatusOK, AddFileResponse{Success: true, FilePath: obs.Path, Overwrote: obs.Overwrote})
}

func (h *Handler) dispatchSpec(ctx context.Context, spec fileops.Spec) (fileops.Observation, error) {
	op, err := spec.Operation()
	if err != nil {
		return fileops.Observation{}, err
	}
	return h.Dispatcher.Dispatch(ctx, op)
}
