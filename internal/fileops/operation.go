// Package fileops implements the typed file-operation surface of the
// gateway: a closed set of operations decoded by discriminant, a
// dispatcher that executes exactly one operation per call against the
// workspace, and an all-or-nothing edit engine.
package fileops

import (
	"github.com/MartyZhou/vscode-copilot-as-service/internal/errdefs"
)

// Kind discriminates file operation variants.
type Kind string

const (
	KindRead   Kind = "read"
	KindSearch Kind = "search"
	KindOpen   Kind = "open"
	KindAdd    Kind = "add"
	KindEdit   Kind = "edit"
)

// Operation is the closed sum of file operations. Exactly one variant is
// active per request.
type Operation interface {
	Kind() Kind
}

// Read returns full file content or an inclusive 1-indexed line slice.
type Read struct {
	FilePath  string
	StartLine int // 0 means unset
	EndLine   int // 0 means unset
}

func (Read) Kind() Kind { return KindRead }

// Search finds literal query occurrences across the workspace.
type Search struct {
	Query       string
	FilePattern string
	MaxResults  int
}

func (Search) Kind() Kind { return KindSearch }

// Open asks the editor to focus a file; it has no content payload.
type Open struct {
	FilePath string
	Line     int
}

func (Open) Kind() Kind { return KindOpen }

// Add creates a file, optionally replacing an existing one.
type Add struct {
	FilePath  string
	Content   string
	Overwrite bool
}

func (Add) Kind() Kind { return KindAdd }

// Edit applies one or more replacements atomically.
type Edit struct {
	FilePath     string
	Replacements []Replacement
}

func (Edit) Kind() Kind { return KindEdit }

// Replacement maps one exact content anchor to its new text. OldString
// must match exactly one contiguous region at apply time.
type Replacement struct {
	OldString string `json:"oldString"`
	NewString string `json:"newString"`
}

// Spec is the wire form of a file operation as it appears in chat
// requests: a type tag plus the union of all variant fields.
type Spec struct {
	Type         string        `json:"type"`
	FilePath     string        `json:"filePath,omitempty"`
	StartLine    int           `json:"startLine,omitempty"`
	EndLine      int           `json:"endLine,omitempty"`
	Line         int           `json:"line,omitempty"`
	Query        string        `json:"query,omitempty"`
	FilePattern  string        `json:"filePattern,omitempty"`
	MaxResults   int           `json:"maxResults,omitempty"`
	Content      string        `json:"content,omitempty"`
	Overwrite    bool          `json:"overwrite,omitempty"`
	OldString    string        `json:"oldString,omitempty"`
	NewString    string        `json:"newString,omitempty"`
	Replacements []Replacement `json:"replacements,omitempty"`
}

// Operation decodes the wire spec into its typed variant, validating the
// fields that variant requires. Unknown or missing type tags and missing
// required fields fail with a validation error.
func (s *Spec) Operation() (Operation, error) {
	if s == nil {
		return nil, errdefs.Validation("fileOperation is required")
	}
	switch Kind(s.Type) {
	case KindRead:
		if s.FilePath == "" {
			return nil, errdefs.Validation("read operation requires filePath")
		}
		if s.StartLine < 0 || s.EndLine < 0 {
			return nil, errdefs.Validation("startLine and endLine must be positive")
		}
		if s.StartLine > 0 && s.EndLine > 0 && s.StartLine > s.EndLine {
			return nil, errdefs.Validation("startLine %d is after endLine %d", s.StartLine, s.EndLine)
		}
		return Read{FilePath: s.FilePath, StartLine: s.StartLine, EndLine: s.EndLine}, nil

	case KindSearch:
		if s.Query == "" {
			return nil, errdefs.Validation("search operation requires query")
		}
		return Search{Query: s.Query, FilePattern: s.FilePattern, MaxResults: s.MaxResults}, nil

	case KindOpen:
		if s.FilePath == "" {
			return nil, errdefs.Validation("open operation requires filePath")
		}
		return Open{FilePath: s.FilePath, Line: s.Line}, nil

	case KindAdd:
		if s.FilePath == "" {
			return nil, errdefs.Validation("add operation requires filePath")
		}
		return Add{FilePath: s.FilePath, Content: s.Content, Overwrite: s.Overwrite}, nil

	case KindEdit:
		if s.FilePath == "" {
			return nil, errdefs.Validation("edit operation requires filePath")
		}
		reps := s.Replacements
		if len(reps) == 0 {
			if s.OldString == "" {
				return nil, errdefs.Validation("edit operation requires oldString/newString or replacements")
			}
			reps = []Replacement{{OldString: s.OldString, NewString: s.NewString}}
		}
		for i, r := range reps {
			if r.OldString == "" {
				return nil, errdefs.Validation("replacement %d has empty oldString", i)
			}
		}
		return Edit{FilePath: s.FilePath, Replacements: reps}, nil

	case "":
		return nil, errdefs.Validation("fileOperation requires a type")
	default:
		return nil, errdefs.Validation("unknown fileOperation type %q", s.Type)
	}
}
