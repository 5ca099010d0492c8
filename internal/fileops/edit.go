package fileops

import (
	"sort"
	"strings"

	"github.com/sergi/go-diff/diffmatchpatch"

	"github.com/MartyZhou/vscode-copilot-as-service/internal/errdefs"
)

// edit applies every replacement against a single snapshot of the file,
// all-or-nothing. Each oldString must match exactly one region of the
// snapshot; ambiguous or absent anchors and overlapping spans fail the
// whole commit with EditMismatch and the file is left byte-identical.
// Because every span is located against the same snapshot, input order
// does not change the outcome.
func (d *Dispatcher) edit(op Edit) (Observation, error) {
	var obs Observation

	err := d.WS.WithPathLock(op.FilePath, func() error {
		snapshot, err := d.WS.ReadFile(op.FilePath)
		if err != nil {
			return err
		}

		spans, err := resolveSpans(snapshot, op.Replacements)
		if err != nil {
			return err
		}

		result := applySpans(snapshot, spans)
		if err := d.WS.WriteFile(op.FilePath, result); err != nil {
			return err
		}

		obs = Observation{
			Op:       KindEdit,
			Path:     op.FilePath,
			Replaced: len(spans),
			Patch:    patchPreview(snapshot, result),
		}
		return nil
	})
	if err != nil {
		return Observation{}, err
	}
	return obs, nil
}

type span struct {
	start int
	end   int
	text  string
}

// resolveSpans locates every replacement anchor in the snapshot. All
// failures are detected before any span is applied.
func resolveSpans(snapshot string, reps []Replacement) ([]span, error) {
	spans := make([]span, 0, len(reps))
	for _, r := range reps {
		switch n := strings.Count(snapshot, r.OldString); {
		case n == 0:
			return nil, errdefs.EditMismatch("oldString not found in file: %q", truncateAnchor(r.OldString))
		case n > 1:
			return nil, errdefs.EditMismatch("oldString matches %d locations, must match exactly one: %q", n, truncateAnchor(r.OldString))
		}
		start := strings.Index(snapshot, r.OldString)
		spans = append(spans, span{start: start, end: start + len(r.OldString), text: r.NewString})
	}

	sort.Slice(spans, func(i, j int) bool { return spans[i].start < spans[j].start })
	for i := 1; i < len(spans); i++ {
		if spans[i].start < spans[i-1].end {
			return nil, errdefs.EditMismatch("replacements overlap in the target file")
		}
	}
	return spans, nil
}

// applySpans rebuilds the content with every span substituted. Spans are
// sorted and non-overlapping, so a single left-to-right pass suffices.
func applySpans(snapshot string, spans []span) string {
	var b strings.Builder
	b.Grow(len(snapshot))
	cursor := 0
	for _, s := range spans {
		b.WriteString(snapshot[cursor:s.start])
		b.WriteString(s.text)
		cursor = s.end
	}
	b.WriteString(snapshot[cursor:])
	return b.String()
}

// patchPreview renders a textual patch of the committed edit for the
// observation and context summary.
func patchPreview(before, after string) string {
	dmp := diffmatchpatch.New()
	patches := dmp.PatchMake(before, after)
	return strings.TrimSpace(dmp.PatchToText(patches))
}

func truncateAnchor(s string) string {
	const max = 60
	if len(s) <= max {
		return s
	}
	return s[:max] + "..."
}
