package workspace

import (
	"bufio"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/jellydator/ttlcache/v3"

	"github.com/MartyZhou/vscode-copilot-as-service/internal/errdefs"
)

// Match is a single search hit.
type Match struct {
	Path    string `json:"path"`
	Line    int    `json:"line"`
	Snippet string `json:"snippet"`
}

// DefaultSearchLimit caps result sets when the caller does not.
const DefaultSearchLimit = 20

// Search scans workspace files for literal occurrences of query. Results
// are sorted by path then line and truncated to maxResults, so repeated
// calls over an unchanged tree return identical slices. filePattern is an
// optional glob applied to the relative path (a leading "**/" matches any
// directory depth).
func (w *Workspace) Search(query, filePattern string, maxResults int) ([]Match, error) {
	if strings.TrimSpace(query) == "" {
		return nil, errdefs.Validation("search query is required")
	}
	if maxResults <= 0 {
		maxResults = w.searchLimit
	}

	key := fmt.Sprintf("%s\x00%s\x00%d", query, filePattern, maxResults)
	if w.searchCache != nil {
		if item := w.searchCache.Get(key); item != nil {
			return item.Value(), nil
		}
	}

	var matches []Match
	err := filepath.WalkDir(w.guard.BaseDir, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if d.IsDir() {
			if skipSearchDir(d.Name()) && path != w.guard.BaseDir {
				return filepath.SkipDir
			}
			return nil
		}
		rel, _ := filepath.Rel(w.guard.BaseDir, path)
		rel = filepath.ToSlash(rel)
		if filePattern != "" && !matchPattern(filePattern, rel) {
			return nil
		}

		file, err := os.Open(path)
		if err != nil {
			return nil
		}
		defer file.Close()

		scanner := bufio.NewScanner(file)
		scanner.Buffer(make([]byte, 0, 64*1024), w.maxFileBytes)
		lineNum := 1
		for scanner.Scan() {
			if strings.Contains(scanner.Text(), query) {
				matches = append(matches, Match{
					Path:    rel,
					Line:    lineNum,
					Snippet: scanner.Text(),
				})
			}
			lineNum++
		}
		return nil
	})
	if err != nil && !errors.Is(err, filepath.SkipDir) {
		return nil, errdefs.Wrap(errdefs.KindInternal, err, "search workspace")
	}

	sort.Slice(matches, func(i, j int) bool {
		if matches[i].Path != matches[j].Path {
			return matches[i].Path < matches[j].Path
		}
		return matches[i].Line < matches[j].Line
	})
	if len(matches) > maxResults {
		matches = matches[:maxResults]
	}

	if w.searchCache != nil {
		w.searchCache.Set(key, matches, ttlcache.DefaultTTL)
	}
	return matches, nil
}

// matchPattern matches a glob against a slash-separated relative path.
// "**/" prefixes match at any depth, including the root.
func matchPattern(pattern, rel string) bool {
	pattern = filepath.ToSlash(pattern)
	if ok, _ := filepath.Match(pattern, rel); ok {
		return true
	}
	if rest, found := strings.CutPrefix(pattern, "**/"); found {
		if ok, _ := filepath.Match(rest, rel); ok {
			return true
		}
		if ok, _ := filepath.Match(rest, filepath.Base(rel)); ok {
			return true
		}
	}
	return false
}

func skipSearchDir(name string) bool {
	switch strings.ToLower(name) {
	case ".git", "node_modules", ".idea", ".vscode", "vendor", ".cache":
		return true
	default:
		return false
	}
}
