package gateway

import (
	"fmt"

	"github.com/MartyZhou/vscode-copilot-as-service/internal/fileops"
	"github.com/MartyZhou/vscode-copilot-as-service/internal/llm"
	"github.com/MartyZhou/vscode-copilot-as-service/internal/workspace"
)

// SuggestionEngine proposes replayable follow-up requests based on what
// the current request actually touched. It holds no state between
// requests; continuation travels inside the emitted request payloads.
type SuggestionEngine struct {
	Normalizer *Normalizer
	MaxActions int
}

// Suggest ranks candidate follow-ups for a completed exchange, most
// actionable first. Every candidate re-runs Normalizer validation; any
// that fails is silently dropped. An empty result means no further
// action.
func (e *SuggestionEngine) Suggest(req *ChatRequest, trace *Trace) []SuggestedAction {
	var candidates []SuggestedAction

	if trace.Operation != nil {
		candidates = append(candidates, e.forOperation(req, trace)...)
	}
	if trace.Operation == nil || trace.Operation.Op != fileops.KindSearch {
		if len(trace.Matches) > 0 {
			candidates = append(candidates, e.forMatches(req, trace.SearchQuery, trace.Matches)...)
		}
	}
	if trace.Operation == nil && len(trace.Matches) == 0 {
		for _, path := range trace.ReadPaths {
			candidates = append(candidates, e.reviewAction(req, path))
			break
		}
	}

	max := e.MaxActions
	if max <= 0 {
		max = 3
	}

	touched := make(map[string]struct{})
	for _, p := range trace.touchedPaths() {
		touched[p] = struct{}{}
	}

	out := make([]SuggestedAction, 0, max)
	for _, c := range candidates {
		if len(out) == max {
			break
		}
		// Candidates must stay grounded in files this request touched.
		if p := candidatePath(&c.Request); p != "" {
			if _, ok := touched[p]; !ok {
				continue
			}
		}
		reqCopy := c.Request
		if _, err := e.Normalizer.Normalize(&reqCopy); err != nil {
			continue
		}
		c.Request = reqCopy
		out = append(out, c)
	}
	return out
}

// candidatePath extracts the file a suggested request refers to.
func candidatePath(req *ChatRequest) string {
	if req.FileOperation != nil {
		return req.FileOperation.FilePath
	}
	if len(req.FileReads) > 0 {
		return req.FileReads[0]
	}
	return ""
}

func (e *SuggestionEngine) forOperation(req *ChatRequest, trace *Trace) []SuggestedAction {
	obs := trace.Operation
	switch obs.Op {
	case fileops.KindSearch:
		return e.forMatches(req, obs.Query, obs.Matches)
	case fileops.KindRead:
		return []SuggestedAction{e.reviewAction(req, obs.Path)}
	case fileops.KindEdit:
		return []SuggestedAction{{
			Description: fmt.Sprintf("Read back %s to verify the edit", obs.Path),
			Reasoning:   fmt.Sprintf("%d replacement(s) were just applied; reading the file confirms the result", obs.Replaced),
			Request:     e.readRequest(req, obs.Path, fmt.Sprintf("Show me the current content of %s after the edit.", obs.Path)),
		}}
	case fileops.KindAdd:
		return []SuggestedAction{{
			Description: fmt.Sprintf("Read the new file %s", obs.Path),
			Reasoning:   "the file was just created; reading it confirms the written content",
			Request:     e.readRequest(req, obs.Path, fmt.Sprintf("Show me the content of %s.", obs.Path)),
		}}
	case fileops.KindOpen:
		return []SuggestedAction{e.reviewAction(req, obs.Path)}
	default:
		return nil
	}
}

func (e *SuggestionEngine) forMatches(req *ChatRequest, query string, matches []workspace.Match) []SuggestedAction {
	if len(matches) == 0 {
		return nil
	}
	top := matches[0]
	return []SuggestedAction{
		{
			Description: fmt.Sprintf("Read %s where %q matched", top.Path, query),
			Reasoning:   fmt.Sprintf("top search hit at %s:%d is the most likely place to act on", top.Path, top.Line),
			Request:     e.readRequest(req, top.Path, fmt.Sprintf("Show me %s around the match for %q.", top.Path, query)),
		},
		{
			Description: fmt.Sprintf("Open %s at line %d in the editor", top.Path, top.Line),
			Reasoning:   "focusing the match puts the relevant code on screen",
			Request: ChatRequest{
				Messages: []llm.ChatMessage{{
					Role:    llm.RoleUser,
					Content: fmt.Sprintf("Open %s at line %d.", top.Path, top.Line),
				}},
				Model: req.Model,
				FileOperation: &fileops.Spec{
					Type:     string(fileops.KindOpen),
					FilePath: top.Path,
					Line:     top.Line,
				},
				SuggestNextActions: true,
			},
		},
	}
}

func (e *SuggestionEngine) reviewAction(req *ChatRequest, path string) SuggestedAction {
	return SuggestedAction{
		Description: fmt.Sprintf("Review %s for improvements", path),
		Reasoning:   "the file's content is already in context; a review is the natural next step",
		Request: ChatRequest{
			Messages: []llm.ChatMessage{{
				Role:    llm.RoleUser,
				Content: fmt.Sprintf("Review %s and point out anything worth changing.", path),
			}},
			Model:              req.Model,
			FileReads:          []string{path},
			SuggestNextActions: true,
		},
	}
}

func (e *SuggestionEngine) readRequest(req *ChatRequest, path, prompt string) ChatRequest {
	return ChatRequest{
		Messages: []llm.ChatMessage{{Role: llm.RoleUser, Content: prompt}},
		Model:    req.Model,
		FileOperation: &fileops.Spec{
			Type:     string(fileops.KindRead),
			FilePath: path,
		},
		SuggestNextActions: true,
	}
}
