// Package mock provides a test double implementing llm.Provider.
package mock

import (
	"context"

	"github.com/MartyZhou/vscode-copilot-as-service/internal/llm"
)

// Provider is a scriptable llm.Provider for tests and offline runs.
type Provider struct {
	NameValue    string
	ChatFn       func(ctx context.Context, req llm.ChatRequest) (llm.ChatResponse, error)
	StreamChunks []llm.StreamChunk
	StreamErr    error
}

func (p *Provider) Name() string {
	if p.NameValue != "" {
		return p.NameValue
	}
	return "mock"
}

func (p *Provider) Chat(ctx context.Context, req llm.ChatRequest) (llm.ChatResponse, error) {
	if p.ChatFn != nil {
		return p.ChatFn(ctx, req)
	}
	return llm.ChatResponse{
		Message: llm.ChatMessage{
			Role:    llm.RoleAssistant,
			Content: "mock response",
		},
		FinishReason: "stop",
		ProviderName: p.Name(),
		Model:        req.Model,
	}, nil
}

func (p *Provider) Stream(ctx context.Context, req llm.ChatRequest) (<-chan llm.StreamChunk, <-chan error) {
	ch := make(chan llm.StreamChunk, len(p.StreamChunks)+1)
	errCh := make(chan error, 1)
	go func() {
		defer close(ch)
		defer close(errCh)
		if len(p.StreamChunks) == 0 && p.StreamErr == nil {
			resp, err := p.Chat(ctx, req)
			if err != nil {
				errCh <- err
				return
			}
			ch <- llm.StreamChunk{Content: resp.Message.Content, FinishReason: resp.FinishReason}
			return
		}
		for _, c := range p.StreamChunks {
			ch <- c
		}
		if p.StreamErr != nil {
			errCh <- p.StreamErr
		}
	}()
	return ch, errCh
}
