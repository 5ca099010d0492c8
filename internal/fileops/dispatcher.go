package fileops

import (
	"context"
	"fmt"
	"strings"

	"github.com/MartyZhou/vscode-copilot-as-service/internal/errdefs"
	"github.com/MartyZhou/vscode-copilot-as-service/internal/workspace"
)

// Observation is the structured result of one dispatched operation. A
// dispatch returns either an Observation or a typed error, never both.
type Observation struct {
	Op   Kind
	Path string

	// read
	Content   string
	StartLine int
	EndLine   int

	// search
	Query   string
	Matches []workspace.Match

	// open
	Focus workspace.Focus

	// add
	Created   bool
	Overwrote bool

	// edit
	Replaced int
	Patch    string
}

// Dispatcher executes one file operation per call against the workspace.
// It keeps no state between calls.
type Dispatcher struct {
	WS      *workspace.Workspace
	Metrics interface {
		RecordFileOp(op, outcome string)
	}
}

// Dispatch runs a single typed operation. Context cancellation is checked
// up front so a timed-out request never mutates the workspace.
func (d *Dispatcher) Dispatch(ctx context.Context, op Operation) (Observation, error) {
	if err := ctx.Err(); err != nil {
		return Observation{}, errdefs.Wrap(errdefs.KindInternal, err, "request cancelled")
	}

	obs, err := d.dispatch(op)
	if d.Metrics != nil {
		outcome := "ok"
		if err != nil {
			outcome = errdefs.KindOf(err).String()
		}
		d.Metrics.RecordFileOp(string(op.Kind()), outcome)
	}
	return obs, err
}

func (d *Dispatcher) dispatch(op Operation) (Observation, error) {
	switch v := op.(type) {
	case Read:
		return d.read(v)
	case Search:
		return d.search(v)
	case Open:
		return d.open(v)
	case Add:
		return d.add(v)
	case Edit:
		return d.edit(v)
	default:
		return Observation{}, errdefs.Validation("unknown file operation")
	}
}

func (d *Dispatcher) read(op Read) (Observation, error) {
	content, err := d.WS.ReadFile(op.FilePath)
	if err != nil {
		return Observation{}, err
	}

	obs := Observation{Op: KindRead, Path: op.FilePath, Content: content}
	if op.StartLine == 0 && op.EndLine == 0 {
		return obs, nil
	}

	sliced, start, end := sliceLines(content, op.StartLine, op.EndLine)
	obs.Content = sliced
	obs.StartLine = start
	obs.EndLine = end
	return obs, nil
}

// sliceLines returns the inclusive 1-indexed [start, end] slice of content,
// clamped to file bounds. Zero start or end mean "from the beginning" and
// "to the end" respectively.
func sliceLines(content string, start, end int) (string, int, int) {
	lines := strings.Split(content, "\n")
	if start <= 0 {
		start = 1
	}
	if end <= 0 || end > len(lines) {
		end = len(lines)
	}
	if start > len(lines) {
		start = len(lines)
	}
	return strings.Join(lines[start-1:end], "\n"), start, end
}

func (d *Dispatcher) search(op Search) (Observation, error) {
	matches, err := d.WS.Search(op.Query, op.FilePattern, op.MaxResults)
	if err != nil {
		return Observation{}, err
	}
	return Observation{Op: KindSearch, Query: op.Query, Matches: matches}, nil
}

func (d *Dispatcher) open(op Open) (Observation, error) {
	focus, err := d.WS.OpenFile(op.FilePath, op.Line)
	if err != nil {
		return Observation{}, err
	}
	return Observation{Op: KindOpen, Path: op.FilePath, Focus: focus}, nil
}

func (d *Dispatcher) add(op Add) (Observation, error) {
	overwrote, err := d.WS.Add(op.FilePath, op.Content, op.Overwrite)
	if err != nil {
		return Observation{}, err
	}
	return Observation{Op: KindAdd, Path: op.FilePath, Created: !overwrote, Overwrote: overwrote}, nil
}

// Describe renders the observation as assistant-readable text.
func (o Observation) Describe() string {
	switch o.Op {
	case KindRead:
		if o.StartLine > 0 {
			return fmt.Sprintf("Read %s (lines %d-%d):\n%s", o.Path, o.StartLine, o.EndLine, o.Content)
		}
		return fmt.Sprintf("Read %s:\n%s", o.Path, o.Content)
	case KindSearch:
		if len(o.Matches) == 0 {
			return fmt.Sprintf("Search for %q found no matches.", o.Query)
		}
		var b strings.Builder
		fmt.Fprintf(&b, "Search for %q found %d match(es):\n", o.Query, len(o.Matches))
		for _, m := range o.Matches {
			fmt.Fprintf(&b, "%s:%d %s\n", m.Path, m.Line, m.Snippet)
		}
		return strings.TrimSuffix(b.String(), "\n")
	case KindOpen:
		if o.Focus.Line > 0 {
			return fmt.Sprintf("Opened %s at line %d in the editor.", o.Path, o.Focus.Line)
		}
		return fmt.Sprintf("Opened %s in the editor.", o.Path)
	case KindAdd:
		if o.Overwrote {
			return fmt.Sprintf("File %s overwritten successfully.", o.Path)
		}
		return fmt.Sprintf("File %s created successfully.", o.Path)
	case KindEdit:
		return fmt.Sprintf("Edit applied: %d replacement(s) in %s.\n%s", o.Replaced, o.Path, o.Patch)
	default:
		return ""
	}
}

// Summary renders the compact one-line form used in context summaries.
func (o Observation) Summary() string {
	switch o.Op {
	case KindRead:
		if o.StartLine > 0 {
			return fmt.Sprintf("read %s lines %d-%d", o.Path, o.StartLine, o.EndLine)
		}
		return fmt.Sprintf("read %s", o.Path)
	case KindSearch:
		return fmt.Sprintf("searched %q (%d matches)", o.Query, len(o.Matches))
	case KindOpen:
		return fmt.Sprintf("opened %s", o.Path)
	case KindAdd:
		return fmt.Sprintf("added %s", o.Path)
	case KindEdit:
		return fmt.Sprintf("edited %s (%d replacements)", o.Path, o.Replaced)
	default:
		return ""
	}
}
