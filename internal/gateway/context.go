package gateway

import (
	"context"
	"fmt"
	"strings"

	"github.com/MartyZhou/vscode-copilot-as-service/internal/fileops"
	"github.com/MartyZhou/vscode-copilot-as-service/internal/workspace"
)

// Trace records what a request actually touched. The suggestion engine
// only proposes follow-ups grounded in these facts.
type Trace struct {
	Operation   *fileops.Observation
	ReadPaths   []string
	SearchQuery string
	Matches     []workspace.Match
}

// touchedPaths lists every path observed during the request, in the
// order it was touched.
func (t *Trace) touchedPaths() []string {
	seen := make(map[string]struct{})
	var out []string
	add := func(p string) {
		if p == "" {
			return
		}
		if _, ok := seen[p]; ok {
			return
		}
		seen[p] = struct{}{}
		out = append(out, p)
	}
	for _, p := range t.ReadPaths {
		add(p)
	}
	if t.Operation != nil {
		add(t.Operation.Path)
		for _, m := range t.Operation.Matches {
			add(m.Path)
		}
	}
	for _, m := range t.Matches {
		add(m.Path)
	}
	return out
}

// ContextBuilder assembles the opaque context handed to the model and
// the advisory summary returned to the caller. Sections are appended in
// a fixed order so identical requests produce identical context.
type ContextBuilder struct {
	WS         *workspace.Workspace
	Dispatcher *fileops.Dispatcher
}

// Build runs the request's explicit reads and auxiliary search, then
// renders workspace identity, read contents, the operation observation,
// and search results into one prompt block. Failures propagate with
// their dispatcher kinds.
func (b *ContextBuilder) Build(ctx context.Context, req *ChatRequest, obs *fileops.Observation, trace *Trace) (string, string, error) {
	var sections []string
	var summary []string

	if req.IncludeWorkspaceContext {
		sections = append(sections, fmt.Sprintf("Workspace root: %s", b.WS.Root()))
		summary = append(summary, "workspace context")
	}

	for _, path := range req.FileReads {
		readObs, err := b.Dispatcher.Dispatch(ctx, fileops.Read{FilePath: path})
		if err != nil {
			return "", "", err
		}
		sections = append(sections, readObs.Describe())
		summary = append(summary, readObs.Summary())
		trace.ReadPaths = append(trace.ReadPaths, path)
	}

	if obs != nil {
		sections = append(sections, obs.Describe())
		summary = append(summary, obs.Summary())
	}

	if req.CodeSearch != nil {
		searchObs, err := b.Dispatcher.Dispatch(ctx, fileops.Search{
			Query:       req.CodeSearch.Query,
			FilePattern: req.CodeSearch.FilePattern,
			MaxResults:  req.CodeSearch.MaxResults,
		})
		if err != nil {
			return "", "", err
		}
		sections = append(sections, searchObs.Describe())
		summary = append(summary, searchObs.Summary())
		trace.SearchQuery = searchObs.Query
		trace.Matches = searchObs.Matches
	}

	if req.Justification != "" {
		sections = append(sections, fmt.Sprintf("Justification: %s", req.Justification))
	}

	return strings.Join(sections, "\n\n"), strings.Join(summary, "; "), nil
}
