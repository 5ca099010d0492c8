package cli

import (
	"bufio"
	"bytes"
	"encoding/json"
	"fmt"
	"net/http"
	"strings"

	"github.com/spf13/cobra"

	"github.com/MartyZhou/vscode-copilot-as-service/internal/gateway"
	"github.com/MartyZhou/vscode-copilot-as-service/internal/llm"
	"github.com/MartyZhou/vscode-copilot-as-service/internal/rpc"
)

// NewChatCmd sends a chat completion to the gateway and renders the
// response, streamed or complete.
func NewChatCmd(opts *Options) *cobra.Command {
	var (
		model         string
		stream        bool
		suggest       bool
		includeWS     bool
		justification string
		fileReads     []string
		searchQuery   string
		searchPattern string
		opJSON        string
	)

	cmd := &cobra.Command{
		Use:   "chat \"<prompt>\"",
		Short: "Send a prompt to the gateway",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			prompt := args[0]
			if strings.TrimSpace(prompt) == "" {
				return fmt.Errorf("prompt cannot be empty")
			}

			base, err := baseURL(opts)
			if err != nil {
				return err
			}

			req := gateway.ChatRequest{
				Messages:                []llm.ChatMessage{{Role: llm.RoleUser, Content: prompt}},
				Model:                   model,
				Stream:                  stream,
				IncludeWorkspaceContext: includeWS,
				Justification:           justification,
				FileReads:               fileReads,
				SuggestNextActions:      suggest,
			}
			if searchQuery != "" {
				req.CodeSearch = &gateway.CodeSearch{Query: searchQuery, FilePattern: searchPattern}
			}
			if opJSON != "" {
				if err := json.Unmarshal([]byte(opJSON), &req.FileOperation); err != nil {
					return fmt.Errorf("parse --operation: %w", err)
				}
			}

			if stream {
				return streamChat(cmd, base, req)
			}
			return completeChat(cmd, base, req)
		},
	}

	cmd.Flags().StringVar(&model, "model", "", "Model id (default: server default)")
	cmd.Flags().BoolVar(&stream, "stream", false, "Stream response tokens as they arrive")
	cmd.Flags().BoolVar(&suggest, "suggest", false, "Ask the gateway for suggested next actions")
	cmd.Flags().BoolVar(&includeWS, "workspace-context", false, "Include workspace identity in model context")
	cmd.Flags().StringVar(&justification, "justification", "", "Free-text rationale attached to the request")
	cmd.Flags().StringSliceVar(&fileReads, "read", nil, "File paths to read into model context (repeatable)")
	cmd.Flags().StringVar(&searchQuery, "search", "", "Workspace search query folded into context")
	cmd.Flags().StringVar(&searchPattern, "search-pattern", "", "Glob filter for --search (e.g. **/*.go)")
	cmd.Flags().StringVar(&opJSON, "operation", "", `File operation JSON (e.g. {"type":"read","filePath":"main.go"})`)
	return cmd
}

func completeChat(cmd *cobra.Command, base string, req gateway.ChatRequest) error {
	var resp rpc.ChatResponse
	if err := postJSON(cmd.Context(), base+"/v1/chat/completions", req, &resp); err != nil {
		return err
	}
	if len(resp.Choices) == 0 {
		return fmt.Errorf("gateway returned no choices")
	}

	out := cmd.OutOrStdout()
	fmt.Fprintln(out, resp.Choices[0].Message.Content)
	if resp.ContextSummary != "" {
		fmt.Fprintf(out, "\n[context] %s\n", resp.ContextSummary)
	}
	for i, action := range resp.SuggestedActions {
		fmt.Fprintf(out, "[suggestion %d] %s\n", i+1, action.Description)
		if action.Reasoning != "" {
			fmt.Fprintf(out, "  reason: %s\n", action.Reasoning)
		}
	}
	return nil
}

func streamChat(cmd *cobra.Command, base string, req gateway.ChatRequest) error {
	data, err := json.Marshal(req)
	if err != nil {
		return err
	}

	httpReq, err := http.NewRequestWithContext(cmd.Context(), http.MethodPost, base+"/v1/chat/completions", bytes.NewReader(data))
	if err != nil {
		return err
	}
	httpReq.Header.Set("Content-Type", "application/json")

	resp, err := http.DefaultClient.Do(httpReq)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 300 {
		return decodeError(resp)
	}

	out := cmd.OutOrStdout()
	scanner := bufio.NewScanner(resp.Body)
	for scanner.Scan() {
		line := scanner.Text()
		if !strings.HasPrefix(line, "data: ") {
			continue
		}
		payload := strings.TrimPrefix(line, "data: ")
		if payload == "[DONE]" {
			fmt.Fprintln(out)
			return nil
		}
		var chunk rpc.StreamChunk
		if err := json.Unmarshal([]byte(payload), &chunk); err != nil {
			return fmt.Errorf("decode frame: %w", err)
		}
		if len(chunk.Choices) > 0 {
			fmt.Fprint(out, chunk.Choices[0].Delta.Content)
		}
	}
	return scanner.Err()
}
