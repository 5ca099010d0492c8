package gateway

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/MartyZhou/vscode-copilot-as-service/internal/errdefs"
	"github.com/MartyZhou/vscode-copilot-as-service/internal/fileops"
	"github.com/MartyZhou/vscode-copilot-as-service/internal/llm"
	"github.com/MartyZhou/vscode-copilot-as-service/internal/llm/mock"
	"github.com/MartyZhou/vscode-copilot-as-service/internal/tools"
	"github.com/MartyZhou/vscode-copilot-as-service/internal/workspace"
)

func newTestPipeline(t *testing.T, provider llm.Provider) (*Pipeline, string) {
	t.Helper()
	root := t.TempDir()
	ws, err := workspace.New(root, workspace.Options{AllowWrite: true})
	require.NoError(t, err)
	t.Cleanup(ws.Close)

	dispatcher := &fileops.Dispatcher{WS: ws}
	models := llm.NewRegistry()
	models.RegisterProvider("mock", provider)
	models.RegisterModel("copilot-chat", llm.ModelRoute{Provider: "mock", Model: "copilot-chat"}, true)

	toolReg := tools.NewRegistry(dispatcher)
	norm := &Normalizer{Models: models, Tools: toolReg}
	return &Pipeline{
		Normalizer:   norm,
		Dispatcher:   dispatcher,
		Context:      &ContextBuilder{WS: ws, Dispatcher: dispatcher},
		Models:       models,
		Tools:        toolReg,
		Suggestions:  &SuggestionEngine{Normalizer: norm, MaxActions: 3},
		MaxToolSteps: 4,
	}, root
}

func userRequest(content string) *ChatRequest {
	return &ChatRequest{
		Messages: []llm.ChatMessage{{Role: llm.RoleUser, Content: content}},
	}
}

func TestProcessPlainChat(t *testing.T) {
	p, _ := newTestPipeline(t, &mock.Provider{})

	res, err := p.Process(context.Background(), userRequest("hello"))
	require.NoError(t, err)
	assert.Equal(t, "mock response", res.Content)
	assert.Equal(t, "copilot-chat", res.Model)
	assert.Empty(t, res.SuggestedActions)
}

func TestNormalizeRejectsEmptyMessages(t *testing.T) {
	p, _ := newTestPipeline(t, &mock.Provider{})

	_, err := p.Process(context.Background(), &ChatRequest{})
	require.Error(t, err)
	assert.Equal(t, errdefs.KindValidation, errdefs.KindOf(err))
}

func TestNormalizeDefaultsModel(t *testing.T) {
	p, _ := newTestPipeline(t, &mock.Provider{})

	req := userRequest("hi")
	_, err := p.Normalizer.Normalize(req)
	require.NoError(t, err)
	assert.Equal(t, "copilot-chat", req.Model)
}

func TestNormalizeToolsForceStreamOff(t *testing.T) {
	p, _ := newTestPipeline(t, &mock.Provider{})

	req := userRequest("hi")
	req.Stream = true
	req.Tools = []ToolRef{{Name: "workspace.read_file"}}
	_, err := p.Normalizer.Normalize(req)
	require.NoError(t, err)
	assert.False(t, req.Stream)
}

func TestNormalizeRejectsUnknownTool(t *testing.T) {
	p, _ := newTestPipeline(t, &mock.Provider{})

	req := userRequest("hi")
	req.Tools = []ToolRef{{Name: "terminal.exec"}}
	_, err := p.Normalizer.Normalize(req)
	require.Error(t, err)
	assert.Equal(t, errdefs.KindValidation, errdefs.KindOf(err))
}

func TestNormalizeRejectsIncompleteFileOperation(t *testing.T) {
	p, _ := newTestPipeline(t, &mock.Provider{})

	req := userRequest("hi")
	req.FileOperation = &fileops.Spec{Type: "edit"}
	_, err := p.Process(context.Background(), req)
	require.Error(t, err)
	assert.Equal(t, errdefs.KindValidation, errdefs.KindOf(err))
}

func TestMissingFileReportsFailureTextWithoutModelCall(t *testing.T) {
	called := false
	p, _ := newTestPipeline(t, &mock.Provider{
		ChatFn: func(ctx context.Context, req llm.ChatRequest) (llm.ChatResponse, error) {
			called = true
			return llm.ChatResponse{Message: llm.ChatMessage{Content: "x"}}, nil
		},
	})

	req := userRequest("read it")
	req.FileOperation = &fileops.Spec{Type: "read", FilePath: "missing.txt"}
	res, err := p.Process(context.Background(), req)
	require.NoError(t, err)
	assert.Contains(t, res.Content, "File operation failed")
	assert.False(t, called, "model must not be invoked after a file-operation failure")
}

func TestUpstreamFailureSurfaces(t *testing.T) {
	p, _ := newTestPipeline(t, &mock.Provider{
		ChatFn: func(ctx context.Context, req llm.ChatRequest) (llm.ChatResponse, error) {
			return llm.ChatResponse{}, errdefs.Upstream(fmt.Errorf("boom"), "model host unavailable")
		},
	})

	_, err := p.Process(context.Background(), userRequest("hi"))
	require.Error(t, err)
	assert.Equal(t, errdefs.KindUpstream, errdefs.KindOf(err))
}

func TestContextAssemblyOrder(t *testing.T) {
	var systemPrompt string
	p, root := newTestPipeline(t, &mock.Provider{
		ChatFn: func(ctx context.Context, req llm.ChatRequest) (llm.ChatResponse, error) {
			if req.Messages[0].Role == llm.RoleSystem {
				systemPrompt = req.Messages[0].Content
			}
			return llm.ChatResponse{Message: llm.ChatMessage{Role: llm.RoleAssistant, Content: "ok"}}, nil
		},
	})
	require.NoError(t, os.WriteFile(filepath.Join(root, "readme.md"), []byte("docs here\n"), 0o644))
	require.NoError(t, os.WriteFile(filepath.Join(root, "app.py"), []byte("import logging\n"), 0o644))

	req := userRequest("summarize")
	req.IncludeWorkspaceContext = true
	req.FileReads = []string{"readme.md"}
	req.FileOperation = &fileops.Spec{Type: "read", FilePath: "app.py"}
	req.CodeSearch = &CodeSearch{Query: "logging"}
	req.Justification = "routine audit"

	res, err := p.Process(context.Background(), req)
	require.NoError(t, err)

	rootIdx := strings.Index(systemPrompt, "Workspace root:")
	readIdx := strings.Index(systemPrompt, "Read readme.md")
	opIdx := strings.Index(systemPrompt, "Read app.py")
	searchIdx := strings.Index(systemPrompt, `Search for "logging"`)
	justIdx := strings.Index(systemPrompt, "Justification: routine audit")
	require.True(t, rootIdx >= 0 && readIdx >= 0 && opIdx >= 0 && searchIdx >= 0 && justIdx >= 0, "prompt: %s", systemPrompt)
	assert.True(t, rootIdx < readIdx && readIdx < opIdx && opIdx < searchIdx && searchIdx < justIdx)

	assert.Contains(t, res.ContextSummary, "workspace context")
	assert.Contains(t, res.ContextSummary, "read readme.md")
	assert.Contains(t, res.ContextSummary, "read app.py")
	assert.Contains(t, res.ContextSummary, `searched "logging"`)
}

func TestToolLoopExecutesAndReturnsFinalMessage(t *testing.T) {
	step := 0
	var sawToolObservation bool
	p, root := newTestPipeline(t, &mock.Provider{
		ChatFn: func(ctx context.Context, req llm.ChatRequest) (llm.ChatResponse, error) {
			step++
			if step == 1 {
				return llm.ChatResponse{Message: llm.ChatMessage{
					Role:    llm.RoleAssistant,
					Content: `{"name":"workspace.read_file","args":{"filePath":"main.py"}}`,
				}}, nil
			}
			for _, m := range req.Messages {
				if m.Role == llm.RoleTool && strings.Contains(m.Content, "print('hi')") {
					sawToolObservation = true
				}
			}
			return llm.ChatResponse{Message: llm.ChatMessage{
				Role:    llm.RoleAssistant,
				Content: "The file prints hi.",
			}}, nil
		},
	})
	require.NoError(t, os.WriteFile(filepath.Join(root, "main.py"), []byte("print('hi')\n"), 0o644))

	req := userRequest("what does main.py do?")
	req.Tools = []ToolRef{{Name: "workspace.read_file"}}
	res, err := p.Process(context.Background(), req)
	require.NoError(t, err)
	assert.Equal(t, "The file prints hi.", res.Content)
	assert.Equal(t, 2, step)
	assert.True(t, sawToolObservation, "tool output must feed the next model call")
}

func TestToolLoopRejectsUnlistedTool(t *testing.T) {
	p, _ := newTestPipeline(t, &mock.Provider{
		ChatFn: func(ctx context.Context, req llm.ChatRequest) (llm.ChatResponse, error) {
			return llm.ChatResponse{Message: llm.ChatMessage{
				Role:    llm.RoleAssistant,
				Content: `{"name":"workspace.add_file","args":{"filePath":"x","content":"y"}}`,
			}}, nil
		},
	})

	req := userRequest("go")
	req.Tools = []ToolRef{{Name: "workspace.read_file"}}
	_, err := p.Process(context.Background(), req)
	require.Error(t, err)
	assert.Equal(t, errdefs.KindValidation, errdefs.KindOf(err))
}

func TestSuggestedActionChainReplays(t *testing.T) {
	p, root := newTestPipeline(t, &mock.Provider{})
	require.NoError(t, os.WriteFile(filepath.Join(root, "hello.txt"), []byte("Hello World\nGoodbye World"), 0o644))

	req := userRequest("change the greeting")
	req.SuggestNextActions = true
	req.FileOperation = &fileops.Spec{
		Type:     "edit",
		FilePath: "hello.txt",
		Replacements: []fileops.Replacement{
			{OldString: "Hello World", NewString: "Greetings Universe"},
		},
	}

	res, err := p.Process(context.Background(), req)
	require.NoError(t, err)
	require.NotEmpty(t, res.SuggestedActions)

	first := res.SuggestedActions[0]
	assert.Contains(t, first.Description, "hello.txt")
	assert.True(t, first.Request.SuggestNextActions, "chained requests keep producing follow-ups")

	// Resubmitting the embedded request must succeed as a top-level call.
	followUp := first.Request
	res2, err := p.Process(context.Background(), &followUp)
	require.NoError(t, err)
	assert.NotEmpty(t, res2.Content)
	assert.Contains(t, res2.ContextSummary, "hello.txt")
}

func TestSearchSuggestionReadsTopMatch(t *testing.T) {
	p, root := newTestPipeline(t, &mock.Provider{})
	require.NoError(t, os.WriteFile(filepath.Join(root, "a.py"), []byte("needle\n"), 0o644))
	require.NoError(t, os.WriteFile(filepath.Join(root, "b.py"), []byte("needle\n"), 0o644))

	req := userRequest("find the needle")
	req.SuggestNextActions = true
	req.FileOperation = &fileops.Spec{Type: "search", Query: "needle"}

	res, err := p.Process(context.Background(), req)
	require.NoError(t, err)
	require.NotEmpty(t, res.SuggestedActions)

	first := res.SuggestedActions[0]
	require.NotNil(t, first.Request.FileOperation)
	assert.Equal(t, "read", first.Request.FileOperation.Type)
	assert.Equal(t, "a.py", first.Request.FileOperation.FilePath, "top match by path order")
}

func TestProcessStreamEmitsDeltas(t *testing.T) {
	p, _ := newTestPipeline(t, &mock.Provider{
		StreamChunks: []llm.StreamChunk{
			{Content: "Hel"},
			{Content: "lo"},
			{FinishReason: "stop"},
		},
	})

	req := userRequest("hi")
	req.Stream = true
	var got []string
	err := p.ProcessStream(context.Background(), req, func(delta string) error {
		got = append(got, delta)
		return nil
	})
	require.NoError(t, err)
	assert.Equal(t, []string{"Hel", "lo"}, got)
}

func TestProcessStreamSurfacesMidStreamError(t *testing.T) {
	p, _ := newTestPipeline(t, &mock.Provider{
		StreamChunks: []llm.StreamChunk{{Content: "partial"}},
		StreamErr:    errdefs.Upstream(fmt.Errorf("connection reset"), "model host dropped the stream"),
	})

	// The error lands after the chunk channel closes; repeat to make sure
	// it is never reported as a clean finish.
	for i := 0; i < 50; i++ {
		req := userRequest("hi")
		req.Stream = true
		err := p.ProcessStream(context.Background(), req, func(string) error { return nil })
		require.Error(t, err)
		assert.Equal(t, errdefs.KindUpstream, errdefs.KindOf(err))
	}
}

func TestProcessStreamReportsFileFailureAsText(t *testing.T) {
	p, _ := newTestPipeline(t, &mock.Provider{})

	req := userRequest("read it")
	req.Stream = true
	req.FileOperation = &fileops.Spec{Type: "read", FilePath: "missing.txt"}
	var got []string
	err := p.ProcessStream(context.Background(), req, func(delta string) error {
		got = append(got, delta)
		return nil
	})
	require.NoError(t, err)
	require.Len(t, got, 1)
	assert.Contains(t, got[0], "File operation failed")
}
