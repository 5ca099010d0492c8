// Package workspace is the gateway's handle on the editor workspace: a
// path-guarded file tree, a text search index, and the editor-focus
// capability. It is passed explicitly into the dispatcher and edit engine
// so per-path locking stays visible at call sites.
package workspace

import (
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/jellydator/ttlcache/v3"

	"github.com/MartyZhou/vscode-copilot-as-service/internal/errdefs"
)

// Workspace exposes file operations rooted at a base directory.
type Workspace struct {
	guard      *PathGuard
	allowWrite bool

	maxFileBytes int
	searchLimit  int

	locks sync.Map // rel path -> *sync.Mutex

	searchCache *ttlcache.Cache[string, []Match]

	focusMu   sync.Mutex
	lastFocus Focus
}

// Focus records the most recent editor-focus request.
type Focus struct {
	Path string
	Line int
}

// Options tune workspace behaviour.
type Options struct {
	AllowWrite       bool
	MaxFileBytes     int
	SearchMaxResults int
	SearchCacheTTL   time.Duration
}

// New builds a workspace rooted at baseDir.
func New(baseDir string, opts Options) (*Workspace, error) {
	guard, err := NewPathGuard(baseDir)
	if err != nil {
		return nil, err
	}

	maxBytes := opts.MaxFileBytes
	if maxBytes <= 0 {
		maxBytes = 1 << 20
	}
	searchLimit := opts.SearchMaxResults
	if searchLimit <= 0 {
		searchLimit = DefaultSearchLimit
	}

	w := &Workspace{
		guard:        guard,
		allowWrite:   opts.AllowWrite,
		maxFileBytes: maxBytes,
		searchLimit:  searchLimit,
	}

	if opts.SearchCacheTTL > 0 {
		w.searchCache = ttlcache.New[string, []Match](
			ttlcache.WithTTL[string, []Match](opts.SearchCacheTTL),
		)
		go w.searchCache.Start()
	}

	return w, nil
}

// Root returns the absolute workspace root.
func (w *Workspace) Root() string {
	return w.guard.BaseDir
}

// Close stops background cache maintenance.
func (w *Workspace) Close() {
	if w.searchCache != nil {
		w.searchCache.Stop()
	}
}

// ReadFile returns file contents as string. Missing paths map to NotFound.
func (w *Workspace) ReadFile(path string) (string, error) {
	resolved, err := w.guard.Resolve(path)
	if err != nil {
		return "", err
	}
	data, err := os.ReadFile(resolved)
	if err != nil {
		if os.IsNotExist(err) {
			return "", errdefs.NotFound("file not found: %s", path)
		}
		return "", errdefs.Wrap(errdefs.KindInternal, err, "read %s", path)
	}
	if len(data) > w.maxFileBytes {
		data = data[:w.maxFileBytes]
	}
	return string(data), nil
}

// Exists reports whether a path exists inside the workspace.
func (w *Workspace) Exists(path string) bool {
	resolved, err := w.guard.Resolve(path)
	if err != nil {
		return false
	}
	_, err = os.Stat(resolved)
	return err == nil
}

// WriteFile commits content to a file in a single write. Callers that
// first read the file must hold the path lock across read and write (see
// WithPathLock) to avoid lost updates between concurrent editors.
func (w *Workspace) WriteFile(path string, content string) error {
	if !w.allowWrite {
		return errdefs.Validation("workspace writes are disabled by configuration")
	}
	resolved, err := w.guard.Resolve(path)
	if err != nil {
		return err
	}
	if err := os.MkdirAll(filepath.Dir(resolved), 0o755); err != nil {
		return errdefs.Wrap(errdefs.KindInternal, err, "create parent dir for %s", path)
	}
	if err := os.WriteFile(resolved, []byte(content), 0o644); err != nil {
		return errdefs.Wrap(errdefs.KindInternal, err, "write %s", path)
	}
	w.invalidateSearchCache()
	return nil
}

// Add creates a file and reports whether it replaced existing content.
// Without overwrite the call fails with Conflict when the path already
// exists, leaving the prior content untouched. The existence check and
// the write happen under the same path lock so the report stays accurate
// under concurrent adds.
func (w *Workspace) Add(path, content string, overwrite bool) (bool, error) {
	var overwrote bool
	err := w.WithPathLock(path, func() error {
		if w.Exists(path) {
			if !overwrite {
				return errdefs.Conflict("file already exists: %s (pass overwrite to replace)", path)
			}
			overwrote = true
		}
		return w.WriteFile(path, content)
	})
	return overwrote, err
}

// WithPathLock serializes mutating operations on one workspace path.
func (w *Workspace) WithPathLock(path string, fn func() error) error {
	clean := filepath.Clean(path)
	muAny, _ := w.locks.LoadOrStore(clean, &sync.Mutex{})
	mu := muAny.(*sync.Mutex)
	mu.Lock()
	defer mu.Unlock()
	return fn()
}

// OpenFile records an editor-focus request and returns the acknowledged
// focus. It is the one operation with a pure side effect and no content.
func (w *Workspace) OpenFile(path string, line int) (Focus, error) {
	if _, err := w.guard.Resolve(path); err != nil {
		return Focus{}, err
	}
	f := Focus{Path: filepath.Clean(path), Line: line}
	w.focusMu.Lock()
	w.lastFocus = f
	w.focusMu.Unlock()
	return f, nil
}

// LastFocus returns the most recently focused path/line.
func (w *Workspace) LastFocus() Focus {
	w.focusMu.Lock()
	defer w.focusMu.Unlock()
	return w.lastFocus
}

func (w *Workspace) invalidateSearchCache() {
	if w.searchCache != nil {
		w.searchCache.DeleteAll()
	}
}

// PathGuard ensures operations stay within a base directory.
type PathGuard struct {
	BaseDir string
}

// NewPathGuard constructs a guard rooted at baseDir (defaults to current working directory).
func NewPathGuard(baseDir string) (*PathGuard, error) {
	if baseDir == "" {
		var err error
		baseDir, err = os.Getwd()
		if err != nil {
			return nil, err
		}
	}
	absBase, err := filepath.Abs(baseDir)
	if err != nil {
		return nil, err
	}
	return &PathGuard{BaseDir: absBase}, nil
}

// Resolve validates and returns an absolute path inside BaseDir.
func (g *PathGuard) Resolve(p string) (string, error) {
	if p == "" {
		return "", errdefs.Validation("path is required")
	}
	clean := filepath.Clean(p)
	if filepath.IsAbs(clean) {
		return "", errdefs.Validation("absolute paths are not allowed")
	}
	abs := filepath.Join(g.BaseDir, clean)
	abs = filepath.Clean(abs)

	if !strings.HasPrefix(abs, g.BaseDir+string(os.PathSeparator)) && abs != g.BaseDir {
		return "", errdefs.Validation("path escapes workspace root")
	}
	return abs, nil
}
