package gateway

import (
	"context"
	"fmt"
	"strings"

	"go.uber.org/zap"

	"github.com/MartyZhou/vscode-copilot-as-service/internal/errdefs"
	"github.com/MartyZhou/vscode-copilot-as-service/internal/fileops"
	"github.com/MartyZhou/vscode-copilot-as-service/internal/llm"
	"github.com/MartyZhou/vscode-copilot-as-service/internal/tools"
)

// pipelineMetrics is the slice of observability the pipeline reports to.
type pipelineMetrics interface {
	RecordUpstreamFailure(provider string)
	RecordSuggestions(n int)
	IncActiveStreams()
	DecActiveStreams()
}

// Pipeline runs one chat-completion request start to finish. Requests
// are independent; the workspace is the only shared mutable resource
// and the dispatcher serializes writes per path.
type Pipeline struct {
	Normalizer   *Normalizer
	Dispatcher   *fileops.Dispatcher
	Context      *ContextBuilder
	Models       *llm.Registry
	Tools        *tools.Registry
	Suggestions  *SuggestionEngine
	Metrics      pipelineMetrics
	Logger       *zap.Logger
	MaxToolSteps int
}

// Process handles a non-streaming request. Validation failures return a
// typed error; file-operation failures of kind NotFound, Conflict, or
// EditMismatch become a normal result whose content describes the
// failure, and no model call happens.
func (p *Pipeline) Process(ctx context.Context, req *ChatRequest) (Result, error) {
	op, err := p.Normalizer.Normalize(req)
	if err != nil {
		return Result{}, err
	}

	content, summary, trace, failed, err := p.prepare(ctx, req, op)
	if err != nil {
		return Result{}, err
	}
	if failed != "" {
		return Result{Content: failed, Model: req.Model, ContextSummary: summary}, nil
	}

	messages := p.composeMessages(req, content)

	var final llm.ChatResponse
	if len(req.Tools) > 0 {
		final, err = p.runToolLoop(ctx, req, messages)
	} else {
		final, err = p.invoke(ctx, req.Model, messages)
	}
	if err != nil {
		return Result{}, err
	}

	result := Result{
		Content:        final.Message.Content,
		Model:          req.Model,
		ContextSummary: summary,
	}
	if req.SuggestNextActions {
		result.SuggestedActions = p.Suggestions.Suggest(req, trace)
		if p.Metrics != nil {
			p.Metrics.RecordSuggestions(len(result.SuggestedActions))
		}
	}
	return result, nil
}

// ProcessStream handles a streaming request, forwarding content deltas
// to emit as they arrive. Suggestions are not produced in streaming
// mode; callers that want them resubmit without stream.
func (p *Pipeline) ProcessStream(ctx context.Context, req *ChatRequest, emit func(delta string) error) error {
	op, err := p.Normalizer.Normalize(req)
	if err != nil {
		return err
	}

	content, _, _, failed, err := p.prepare(ctx, req, op)
	if err != nil {
		return err
	}
	if failed != "" {
		return emit(failed)
	}

	provider, route, err := p.Models.Resolve(req.Model)
	if err != nil {
		return err
	}

	if p.Metrics != nil {
		p.Metrics.IncActiveStreams()
		defer p.Metrics.DecActiveStreams()
	}

	chunks, errs := provider.Stream(ctx, llm.ChatRequest{
		Model:       route.Model,
		Messages:    p.composeMessages(req, content),
		MaxTokens:   route.MaxTokens,
		Temperature: route.Temperature,
	})
	for {
		select {
		case <-ctx.Done():
			return errdefs.Wrap(errdefs.KindInternal, ctx.Err(), "stream cancelled")
		case err, ok := <-errs:
			if !ok {
				errs = nil
				continue
			}
			if err != nil {
				if p.Metrics != nil {
					p.Metrics.RecordUpstreamFailure(provider.Name())
				}
				return err
			}
		case chunk, ok := <-chunks:
			if !ok {
				// A terminal error can race the chunk channel close;
				// drain errs so it is not reported as a clean finish.
				if errs != nil {
					if err, ok := <-errs; ok && err != nil {
						if p.Metrics != nil {
							p.Metrics.RecordUpstreamFailure(provider.Name())
						}
						return err
					}
				}
				return nil
			}
			if chunk.Content != "" {
				if err := emit(chunk.Content); err != nil {
					return err
				}
			}
			if chunk.FinishReason != "" {
				return nil
			}
		}
	}
}

// prepare dispatches the request's file operation and builds context.
// The returned failure text is non-empty when a NotFound, Conflict, or
// EditMismatch occurred; per the error policy those report as normal
// responses and suppress the model call.
func (p *Pipeline) prepare(ctx context.Context, req *ChatRequest, op fileops.Operation) (content, summary string, trace *Trace, failed string, err error) {
	trace = &Trace{}

	var obs *fileops.Observation
	if op != nil {
		result, dispatchErr := p.Dispatcher.Dispatch(ctx, op)
		if dispatchErr != nil {
			if text, ok := recoverableFailure(dispatchErr); ok {
				return "", "", trace, text, nil
			}
			return "", "", trace, "", dispatchErr
		}
		obs = &result
		trace.Operation = obs
	}

	content, summary, buildErr := p.Context.Build(ctx, req, obs, trace)
	if buildErr != nil {
		if text, ok := recoverableFailure(buildErr); ok {
			return "", "", trace, text, nil
		}
		return "", "", trace, "", buildErr
	}
	return content, summary, trace, "", nil
}

// recoverableFailure maps workspace failure kinds onto the message text
// reported in a 200 response.
func recoverableFailure(err error) (string, bool) {
	switch errdefs.KindOf(err) {
	case errdefs.KindNotFound, errdefs.KindConflict, errdefs.KindEditMismatch:
		return fmt.Sprintf("File operation failed: %s", errdefs.PublicMessage(err)), true
	default:
		return "", false
	}
}

// composeMessages prepends the assembled context as a system message.
func (p *Pipeline) composeMessages(req *ChatRequest, context string) []llm.ChatMessage {
	if context == "" {
		return req.Messages
	}
	messages := make([]llm.ChatMessage, 0, len(req.Messages)+1)
	messages = append(messages, llm.ChatMessage{
		Role:    llm.RoleSystem,
		Content: "Workspace context for this request:\n\n" + context,
	})
	return append(messages, req.Messages...)
}

func (p *Pipeline) invoke(ctx context.Context, model string, messages []llm.ChatMessage) (llm.ChatResponse, error) {
	provider, route, err := p.Models.Resolve(model)
	if err != nil {
		return llm.ChatResponse{}, err
	}
	resp, err := provider.Chat(ctx, llm.ChatRequest{
		Model:       route.Model,
		Messages:    messages,
		MaxTokens:   route.MaxTokens,
		Temperature: route.Temperature,
	})
	if err != nil {
		if p.Metrics != nil {
			p.Metrics.RecordUpstreamFailure(provider.Name())
		}
		return llm.ChatResponse{}, err
	}
	return resp, nil
}

// runToolLoop lets the model call the request's allowed tools until it
// produces a plain answer or the step limit runs out. Intermediate
// tool calls are never surfaced to the caller.
func (p *Pipeline) runToolLoop(ctx context.Context, req *ChatRequest, messages []llm.ChatMessage) (llm.ChatResponse, error) {
	allowed := make(map[string]struct{}, len(req.Tools))
	names := make([]string, 0, len(req.Tools))
	for _, ref := range req.Tools {
		allowed[ref.Name] = struct{}{}
		names = append(names, ref.Name)
	}

	messages = append(messages, llm.ChatMessage{
		Role: llm.RoleSystem,
		Content: fmt.Sprintf(
			"You may call these tools: %s. To call one, reply with only a JSON object {\"name\":\"tool\",\"args\":{...}}. Reply with plain text when done.",
			strings.Join(names, ", ")),
	})

	maxSteps := p.MaxToolSteps
	if maxSteps <= 0 {
		maxSteps = 6
	}

	var resp llm.ChatResponse
	for step := 1; step <= maxSteps; step++ {
		var err error
		resp, err = p.invoke(ctx, req.Model, messages)
		if err != nil {
			return llm.ChatResponse{}, err
		}

		calls := extractToolCalls(resp.Message.Content)
		if len(calls) == 0 {
			return resp, nil
		}

		messages = append(messages, resp.Message)
		for _, call := range calls {
			if _, ok := allowed[call.Name]; !ok {
				return llm.ChatResponse{}, errdefs.Validation("model requested tool %q not listed in the request", call.Name)
			}
			obs, err := p.Tools.Invoke(ctx, call.Name, call.Args)
			observation := obs.Describe()
			if err != nil {
				observation = fmt.Sprintf("Tool %s failed: %s", call.Name, errdefs.PublicMessage(err))
			}
			if p.Logger != nil {
				p.Logger.Debug("tool call executed",
					zap.String("tool", call.Name),
					zap.Int("step", step),
					zap.Bool("failed", err != nil))
			}
			messages = append(messages, llm.ChatMessage{
				Role:    llm.RoleTool,
				Name:    call.Name,
				Content: observation,
			})
		}
	}
	// Step limit reached; return the last assistant message as-is.
	return resp, nil
}
