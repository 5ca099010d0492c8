package rpc

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"

	"go.uber.org/zap"

	"github.com/MartyZhou/vscode-copilot-as-service/internal/gateway"
)

// streamChat writes the completion as newline-delimited `data: <json>`
// frames, each carrying an incremental choices[0].delta.content, and
// terminates with `data: [DONE]`. Errors after the first frame can only
// be reported in-band.
func (h *Handler) streamChat(ctx context.Context, w http.ResponseWriter, req *gateway.ChatRequest) {
	flusher, ok := w.(http.Flusher)
	if !ok {
		http.Error(w, "streaming unsupported", http.StatusInternalServerError)
		return
	}

	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")

	started := false
	emit := func(delta string) error {
		frame, err := json.Marshal(StreamChunk{
			Object: "chat.completion.chunk",
			Choices: []StreamChoice{{
				Index: 0,
				Delta: StreamDelta{Content: delta},
			}},
		})
		if err != nil {
			return err
		}
		if _, err := fmt.Fprintf(w, "data: %s\n\n", frame); err != nil {
			return err
		}
		started = true
		flusher.Flush()
		return nil
	}

	if err := h.Pipeline.ProcessStream(ctx, req, emit); err != nil {
		if !started {
			h.writeError(w, err)
			return
		}
		if h.Logger != nil {
			h.Logger.Warn("stream aborted", zap.Error(err))
		}
		return
	}

	_, _ = fmt.Fprint(w, "data: [DONE]\n\n")
	flusher.Flush()
}
