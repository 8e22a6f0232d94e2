// Package search provides regex text search across repository files and
// line-to-symbol context extraction.
package search

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"regexp"
	"strings"

	lru "github.com/hashicorp/golang-lru/v2"

	"github.com/AlanVerbner/kit/internal/repo"
	"github.com/AlanVerbner/kit/pkg/types"
)

const lineCacheSize = 256

// Engine searches file content under one repository root. File lines are
// cached so repeated searches and context lookups avoid re-reading.
type Engine struct {
	repo  *repo.Repository
	lines *lru.Cache[string, []string]
}

// New creates a search engine for the repository.
func New(r *repo.Repository) *Engine {
	cache, err := lru.New[string, []string](lineCacheSize)
	if err != nil {
		panic(err)
	}
	return &Engine{repo: r, lines: cache}
}

// Options controls one search call.
type Options struct {
	FilePattern   string // Glob restricting which files are searched
	ContextLines  int
	MaxResults    int // Default 100
	CaseSensitive bool
	Literal       bool // Treat the pattern as a fixed string
}

// Search scans the repository's files for a pattern. Lines are reported
// 0-indexed to match symbol spans.
func (e *Engine) Search(ctx context.Context, pattern string, opts Options) ([]types.SearchResult, error) {
	if opts.Literal {
		pattern = regexp.QuoteMeta(pattern)
	}
	if !opts.CaseSensitive {
		pattern = "(?i)" + pattern
	}
	re, err := regexp.Compile(pattern)
	if err != nil {
		return nil, &types.ValidationError{Msg: fmt.Sprintf("bad search pattern: %v", err)}
	}

	maxResults := opts.MaxResults
	if maxResults <= 0 {
		maxResults = 100
	}

	entries, err := e.repo.FileTree()
	if err != nil {
		return nil, err
	}

	var results []types.SearchResult
	for _, f := range entries {
		if f.IsDir || len(results) >= maxResults {
			continue
		}
		if ctx.Err() != nil {
			return results, ctx.Err()
		}
		if opts.FilePattern != "" && !matchFile(opts.FilePattern, f.Path) {
			continue
		}

		lines, err := e.fileLines(f.Path)
		if err != nil {
			continue // unreadable files are not search errors
		}
		for i, line := range lines {
			if len(results) >= maxResults {
				break
			}
			if !re.MatchString(line) {
				continue
			}
			results = append(results, types.SearchResult{
				File:    f.Path,
				Line:    i,
				Match:   line,
				Context: contextWindow(lines, i, opts.ContextLines),
			})
		}
	}
	return results, nil
}

// Usages merges the index's definition sites for a named symbol with textual
// mentions of the name across the repository. Mentions carry no symbol type
// and are not deduplicated against the definitions they overlap.
func (e *Engine) Usages(ctx context.Context, idx *repo.Index, name, symType string) ([]types.Usage, error) {
	usages := idx.Usages(name, symType)
	hits, err := e.Search(ctx, name, Options{Literal: true, CaseSensitive: true})
	if err != nil {
		return usages, err
	}
	for _, h := range hits {
		usages = append(usages, types.Usage{
			File:    h.File,
			Line:    h.Line,
			Context: strings.TrimSpace(h.Match),
		})
	}
	return usages, nil
}

// ContextAroundLine returns the code context for one position: the innermost
// extracted symbol spanning the line when one exists, otherwise a small line
// window around it.
func (e *Engine) ContextAroundLine(file string, line int, symbols []types.Symbol) (*types.Chunk, error) {
	var best *types.Symbol
	for i := range symbols {
		s := &symbols[i]
		if line < s.StartLine || line > s.EndLine {
			continue
		}
		if best == nil || s.LineCount() < best.LineCount() {
			best = s
		}
	}
	if best != nil {
		return &types.Chunk{
			FilePath:  file,
			Content:   best.Code,
			Type:      types.ChunkTypeSymbol,
			Name:      best.Name,
			StartLine: best.StartLine,
			EndLine:   best.EndLine,
		}, nil
	}

	lines, err := e.fileLines(file)
	if err != nil {
		return nil, err
	}
	if line < 0 || line >= len(lines) {
		return nil, &types.ValidationError{Msg: fmt.Sprintf("line %d out of range for %s", line, file)}
	}
	const window = 5
	start := line - window
	if start < 0 {
		start = 0
	}
	end := line + window
	if end >= len(lines) {
		end = len(lines) - 1
	}
	return &types.Chunk{
		FilePath:  file,
		Content:   strings.Join(lines[start:end+1], "\n"),
		Type:      types.ChunkTypeLines,
		StartLine: start,
		EndLine:   end,
	}, nil
}

// Invalidate drops cached lines for a file, used after a watcher refresh.
func (e *Engine) Invalidate(rel string) {
	e.lines.Remove(rel)
}

// Purge drops every cached line set, used after a full reindex.
func (e *Engine) Purge() {
	e.lines.Purge()
}

func (e *Engine) fileLines(rel string) ([]string, error) {
	if lines, ok := e.lines.Get(rel); ok {
		return lines, nil
	}
	content, err := os.ReadFile(filepath.Join(e.repo.Root(), rel))
	if err != nil {
		return nil, err
	}
	lines := strings.Split(strings.ReplaceAll(string(content), "\r\n", "\n"), "\n")
	if len(lines) > 1 && lines[len(lines)-1] == "" {
		lines = lines[:len(lines)-1]
	}
	e.lines.Add(rel, lines)
	return lines, nil
}

func matchFile(pattern, path string) bool {
	if ok, _ := filepath.Match(pattern, path); ok {
		return true
	}
	ok, _ := filepath.Match(pattern, filepath.Base(path))
	return ok
}

func contextWindow(lines []string, i, n int) []string {
	if n <= 0 {
		return nil
	}
	start := i - n
	if start < 0 {
		start = 0
	}
	end := i + n
	if end >= len(lines) {
		end = len(lines) - 1
	}
	out := make([]string, 0, end-start+1)
	for j := start; j <= end; j++ {
		out = append(out, lines[j])
	}
	return out
}
