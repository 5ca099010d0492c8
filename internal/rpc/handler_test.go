package rpc

import (
	"bytes"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/MartyZhou/vscode-copilot-as-service/internal/fileops"
	"github.com/MartyZhou/vscode-copilot-as-service/internal/gateway"
	"github.com/MartyZhou/vscode-copilot-as-service/internal/llm"
	"github.com/MartyZhou/vscode-copilot-as-service/internal/llm/mock"
	"github.com/MartyZhou/vscode-copilot-as-service/internal/tools"
	"github.com/MartyZhou/vscode-copilot-as-service/internal/workspace"
)

func newTestServer(t *testing.T, provider llm.Provider) (*httptest.Server, string) {
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
	norm := &gateway.Normalizer{Models: models, Tools: toolReg}
	pipeline := &gateway.Pipeline{
		Normalizer:  norm,
		Dispatcher:  dispatcher,
		Context:     &gateway.ContextBuilder{WS: ws, Dispatcher: dispatcher},
		Models:      models,
		Tools:       toolReg,
		Suggestions: &gateway.SuggestionEngine{Normalizer: norm, MaxActions: 3},
	}

	h := &Handler{
		Pipeline:   pipeline,
		Models:     models,
		Tools:      toolReg,
		Dispatcher: dispatcher,
	}
	mux := http.NewServeMux()
	h.Register(mux)

	srv := httptest.NewServer(mux)
	t.Cleanup(srv.Close)
	return srv, root
}

func postJSON(t *testing.T, url string, body interface{}) (*http.Response, map[string]interface{}) {
	t.Helper()
	raw, err := json.Marshal(body)
	require.NoError(t, err)

	resp, err := http.Post(url, "application/json", bytes.NewReader(raw))
	require.NoError(t, err)
	t.Cleanup(func() { _ = resp.Body.Close() })

	var decoded map[string]interface{}
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&decoded))
	return resp, decoded
}

func chatBody(prompt string) map[string]interface{} {
	return map[string]interface{}{
		"messages": []map[string]string{{"role": "user", "content": prompt}},
	}
}

func messageContent(t *testing.T, body map[string]interface{}) string {
	t.Helper()
	choices, ok := body["choices"].([]interface{})
	require.True(t, ok, "body: %v", body)
	require.NotEmpty(t, choices)
	msg := choices[0].(map[string]interface{})["message"].(map[string]interface{})
	content, ok := msg["content"].(string)
	require.True(t, ok, "content must be present and non-null")
	return content
}

func TestModelsEndpoint(t *testing.T) {
	srv, _ := newTestServer(t, &mock.Provider{})

	resp, err := http.Get(srv.URL + "/v1/models")
	require.NoError(t, err)
	defer resp.Body.Close()
	require.Equal(t, http.StatusOK, resp.StatusCode)

	var body struct {
		Data []ModelInfo `json:"data"`
	}
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&body))
	require.Len(t, body.Data, 1)
	assert.Equal(t, "copilot-chat", body.Data[0].ID)
	assert.Equal(t, "copilot-chat", body.Data[0].Name)
	assert.True(t, body.Data[0].Default)
}

func TestToolsEndpoint(t *testing.T) {
	srv, _ := newTestServer(t, &mock.Provider{})

	resp, err := http.Get(srv.URL + "/v1/tools")
	require.NoError(t, err)
	defer resp.Body.Close()
	require.Equal(t, http.StatusOK, resp.StatusCode)

	var body struct {
		Data []tools.Schema `json:"data"`
	}
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&body))
	names := make([]string, 0, len(body.Data))
	for _, s := range body.Data {
		names = append(names, s.Name)
	}
	assert.Contains(t, names, "workspace.read_file")
	assert.Contains(t, names, "workspace.edit_file")
}

func TestInvokeToolEndpoint(t *testing.T) {
	srv, root := newTestServer(t, &mock.Provider{})
	require.NoError(t, os.WriteFile(filepath.Join(root, "x.txt"), []byte("payload"), 0o644))

	resp, body := postJSON(t, srv.URL+"/v1/tools/invoke", InvokeToolRequest{
		ToolName:   "workspace.read_file",
		Parameters: map[string]interface{}{"filePath": "x.txt"},
	})
	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, true, body["success"])
	result := body["result"].(map[string]interface{})
	assert.Equal(t, "payload", result["content"])
}

func TestInvokeUnknownToolFails(t *testing.T) {
	srv, _ := newTestServer(t, &mock.Provider{})

	resp, body := postJSON(t, srv.URL+"/v1/tools/invoke", InvokeToolRequest{ToolName: "nope"})
	require.Equal(t, http.StatusBadRequest, resp.StatusCode)
	errBody := body["error"].(map[string]interface{})
	assert.Equal(t, "validation_error", errBody["type"])
}

func TestChatCompletionBasic(t *testing.T) {
	srv, _ := newTestServer(t, &mock.Provider{})

	resp, body := postJSON(t, srv.URL+"/v1/chat/completions", chatBody("hello"))
	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, "mock response", messageContent(t, body))
}

func TestChatCompletionValidation(t *testing.T) {
	srv, _ := newTestServer(t, &mock.Provider{})

	resp, body := postJSON(t, srv.URL+"/v1/chat/completions", map[string]interface{}{"messages": []interface{}{}})
	require.Equal(t, http.StatusBadRequest, resp.StatusCode)
	errBody := body["error"].(map[string]interface{})
	assert.Equal(t, "validation_error", errBody["type"])
}

func TestWorkspaceAddConflictAndOverwrite(t *testing.T) {
	srv, root := newTestServer(t, &mock.Provider{})

	resp, _ := postJSON(t, srv.URL+"/v1/workspace/files/add", AddFileRequest{FilePath: "dup.txt", Content: "first"})
	require.Equal(t, http.StatusOK, resp.StatusCode)

	resp, body := postJSON(t, srv.URL+"/v1/workspace/files/add", AddFileRequest{FilePath: "dup.txt", Content: "second"})
	require.Equal(t, http.StatusBadRequest, resp.StatusCode)
	errBody := body["error"].(map[string]interface{})
	assert.Equal(t, "conflict", errBody["type"])

	data, err := os.ReadFile(filepath.Join(root, "dup.txt"))
	require.NoError(t, err)
	assert.Equal(t, "first", string(data), "failed add must leave content untouched")

	resp, _ = postJSON(t, srv.URL+"/v1/workspace/files/add", AddFileRequest{FilePath: "dup.txt", Content: "third", Overwrite: true})
	require.Equal(t, http.StatusOK, resp.StatusCode)
	data, err = os.ReadFile(filepath.Join(root, "dup.txt"))
	require.NoError(t, err)
	assert.Equal(t, "third", string(data))
}

func TestWorkspaceReadMissingIs404(t *testing.T) {
	srv, _ := newTestServer(t, &mock.Provider{})

	resp, body := postJSON(t, srv.URL+"/v1/workspace/files/read", ReadFileRequest{FilePath: "ghost.txt"})
	require.Equal(t, http.StatusNotFound, resp.StatusCode)
	errBody := body["error"].(map[string]interface{})
	assert.Equal(t, "not_found", errBody["type"])
}

func TestWorkspaceReadLineSlice(t *testing.T) {
	srv, root := newTestServer(t, &mock.Provider{})
	var lines []string
	for i := 1; i <= 20; i++ {
		lines = append(lines, fmt.Sprintf("line %d", i))
	}
	require.NoError(t, os.WriteFile(filepath.Join(root, "long.txt"), []byte(strings.Join(lines, "\n")), 0o644))

	resp, body := postJSON(t, srv.URL+"/v1/workspace/files/read", ReadFileRequest{FilePath: "long.txt", StartLine: 1, EndLine: 10})
	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, strings.Join(lines[:10], "\n"), body["content"])
}

func TestWorkspaceSearchOrderedAndCapped(t *testing.T) {
	srv, root := newTestServer(t, &mock.Provider{})
	require.NoError(t, os.WriteFile(filepath.Join(root, "b.txt"), []byte("hit\nhit\n"), 0o644))
	require.NoError(t, os.WriteFile(filepath.Join(root, "a.txt"), []byte("hit\n"), 0o644))

	resp, body := postJSON(t, srv.URL+"/v1/workspace/files/search", SearchRequest{Query: "hit", MaxResults: 2})
	require.Equal(t, http.StatusOK, resp.StatusCode)
	data := body["data"].([]interface{})
	require.Len(t, data, 2)
	first := data[0].(map[string]interface{})
	second := data[1].(map[string]interface{})
	assert.Equal(t, "a.txt", first["path"])
	assert.Equal(t, "b.txt", second["path"])
}

func TestWorkspaceOpenAck(t *testing.T) {
	srv, root := newTestServer(t, &mock.Provider{})
	require.NoError(t, os.WriteFile(filepath.Join(root, "f.go"), []byte("package f\n"), 0o644))

	resp, body := postJSON(t, srv.URL+"/v1/workspace/files/open", OpenFileRequest{FilePath: "f.go", Line: 1})
	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, true, body["success"])
	assert.Equal(t, "f.go", body["filePath"])
}

func TestChatEditScenario(t *testing.T) {
	srv, _ := newTestServer(t, &mock.Provider{})

	resp, _ := postJSON(t, srv.URL+"/v1/workspace/files/add", AddFileRequest{FilePath: "hello.txt", Content: "Hello World\nGoodbye World"})
	require.Equal(t, http.StatusOK, resp.StatusCode)

	chat := chatBody("replace the greeting")
	chat["fileOperation"] = map[string]interface{}{
		"type":      "edit",
		"filePath":  "hello.txt",
		"oldString": "Hello World",
		"newString": "Greetings Universe",
	}
	resp, _ = postJSON(t, srv.URL+"/v1/chat/completions", chat)
	require.Equal(t, http.StatusOK, resp.StatusCode)

	resp, body := postJSON(t, srv.URL+"/v1/workspace/files/read", ReadFileRequest{FilePath: "hello.txt"})
	require.Equal(t, http.StatusOK, resp.StatusCode)
	content := body["content"].(string)
	assert.Contains(t, content, "Greetings Universe")
	assert.NotContains(t, content, "Hello World")
}

func TestChatMultiReplacementScenario(t *testing.T) {
	srv, _ := newTestServer(t, &mock.Provider{})

	source := "print('a')\nx = 1\nprint('b')\ny = 2\nprint('c')\n"
	resp, _ := postJSON(t, srv.URL+"/v1/workspace/files/add", AddFileRequest{FilePath: "multi.py", Content: source})
	require.Equal(t, http.StatusOK, resp.StatusCode)

	chat := chatBody("switch to logging")
	chat["fileOperation"] = map[string]interface{}{
		"type":     "edit",
		"filePath": "multi.py",
		"replacements": []map[string]string{
			{"oldString": "print('a')", "newString": "logging.info('a')"},
			{"oldString": "print('b')", "newString": "logging.info('b')"},
			{"oldString": "print('c')", "newString": "logging.info('c')"},
		},
	}
	resp, _ = postJSON(t, srv.URL+"/v1/chat/completions", chat)
	require.Equal(t, http.StatusOK, resp.StatusCode)

	resp, body := postJSON(t, srv.URL+"/v1/workspace/files/read", ReadFileRequest{FilePath: "multi.py"})
	require.Equal(t, http.StatusOK, resp.StatusCode)
	content := body["content"].(string)
	assert.NotContains(t, content, "print(")
	assert.Equal(t, 3, strings.Count(content, "logging.info"))
}

func TestChatMissingFileReports200WithFailureText(t *testing.T) {
	srv, _ := newTestServer(t, &mock.Provider{})

	chat := chatBody("read it")
	chat["fileOperation"] = map[string]interface{}{"type": "read", "filePath": "ghost.txt"}
	resp, body := postJSON(t, srv.URL+"/v1/chat/completions", chat)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Contains(t, messageContent(t, body), "File operation failed")
}

func TestSuggestedActionResubmission(t *testing.T) {
	srv, root := newTestServer(t, &mock.Provider{})
	require.NoError(t, os.WriteFile(filepath.Join(root, "app.py"), []byte("import logging\n"), 0o644))

	chat := chatBody("find logging usage")
	chat["suggestNextActions"] = true
	chat["fileOperation"] = map[string]interface{}{"type": "search", "query": "logging"}
	resp, body := postJSON(t, srv.URL+"/v1/chat/completions", chat)
	require.Equal(t, http.StatusOK, resp.StatusCode)

	actions, ok := body["suggested_actions"].([]interface{})
	require.True(t, ok, "suggested_actions missing: %v", body)
	require.NotEmpty(t, actions)

	embedded := actions[0].(map[string]interface{})["request"]
	resp2, body2 := postJSON(t, srv.URL+"/v1/chat/completions", embedded)
	require.Equal(t, http.StatusOK, resp2.StatusCode)
	assert.NotEmpty(t, messageContent(t, body2))
}

func TestChatStreaming(t *testing.T) {
	srv, _ := newTestServer(t, &mock.Provider{
		StreamChunks: []llm.StreamChunk{
			{Content: "Hel"},
			{Content: "lo"},
			{FinishReason: "stop"},
		},
	})

	chat := chatBody("hi")
	chat["stream"] = true
	raw, err := json.Marshal(chat)
	require.NoError(t, err)

	resp, err := http.Post(srv.URL+"/v1/chat/completions", "application/json", bytes.NewReader(raw))
	require.NoError(t, err)
	defer resp.Body.Close()
	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Contains(t, resp.Header.Get("Content-Type"), "text/event-stream")

	var deltas []string
	sawDone := false
	for _, line := range strings.Split(readAll(t, resp), "\n") {
		if !strings.HasPrefix(line, "data: ") {
			continue
		}
		payload := strings.TrimPrefix(line, "data: ")
		if payload == "[DONE]" {
			sawDone = true
			break
		}
		var chunk StreamChunk
		require.NoError(t, json.Unmarshal([]byte(payload), &chunk))
		require.NotEmpty(t, chunk.Choices)
		deltas = append(deltas, chunk.Choices[0].Delta.Content)
	}
	assert.Equal(t, []string{"Hel", "lo"}, deltas)
	assert.True(t, sawDone, "stream must terminate with data: [DONE]")
}

func TestMethodNotAllowed(t *testing.T) {
	srv, _ := newTestServer(t, &mock.Provider{})

	resp, err := http.Get(srv.URL + "/v1/chat/completions")
	require.NoError(t, err)
	defer resp.Body.Close()
	assert.Equal(t, http.StatusMethodNotAllowed, resp.StatusCode)
}

func readAll(t *testing.T, resp *http.Response) string {
	t.Helper()
	var b strings.Builder
	buf := make([]byte, 4096)
	for {
		n, err := resp.Body.Read(buf)
		b.Write(buf[:n])
		if err != nil {
			break
		}
	}
	return b.String()
}
