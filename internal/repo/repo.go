// Package repo builds and serves the repository index: the file tree plus
// per-file symbol lists, assembled by one parallel extraction pass.
package repo

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"runtime"
	"sort"
	"sync"
	"time"

	"github.com/AlanVerbner/kit/internal/extract"
	"github.com/AlanVerbner/kit/internal/grammar"
	"github.com/AlanVerbner/kit/internal/query"
	"github.com/AlanVerbner/kit/internal/registry"
	"github.com/AlanVerbner/kit/pkg/types"
)

// Config contains repository configuration.
type Config struct {
	Root             string
	Registry         *registry.Registry // Default() when nil
	Include          []string           // Glob patterns; empty means all files
	Exclude          []string
	RespectGitignore bool
	Workers          int   // Default: NumCPU
	MaxFileSize      int64 // Files above this size are skipped; 0 = no limit
	OnProgress       func(types.ScanProgress)
}

// Repository coordinates extraction over one directory tree.
type Repository struct {
	root    string
	reg     *registry.Registry
	cache   *query.Cache
	cfg     Config
	include []compiledPattern
	exclude []compiledPattern
}

// New creates a repository rooted at cfg.Root.
func New(cfg Config) (*Repository, error) {
	root, err := filepath.Abs(cfg.Root)
	if err != nil {
		return nil, err
	}
	info, err := os.Stat(root)
	if err != nil {
		return nil, fmt.Errorf("repository root: %w", err)
	}
	if !info.IsDir() {
		return nil, &types.ValidationError{Msg: "repository root must be a directory: " + root}
	}

	reg := cfg.Registry
	if reg == nil {
		reg = registry.Default()
	}
	include, err := compilePatterns(cfg.Include)
	if err != nil {
		return nil, err
	}
	exclude, err := compilePatterns(cfg.Exclude)
	if err != nil {
		return nil, err
	}

	return &Repository{
		root:    root,
		reg:     reg,
		cache:   query.NewCache(reg),
		cfg:     cfg,
		include: include,
		exclude: exclude,
	}, nil
}

// Root returns the absolute repository root.
func (r *Repository) Root() string { return r.root }

// Registry returns the language registry the repository resolves against.
func (r *Repository) Registry() *registry.Registry { return r.reg }

// fileResult is the outcome of extracting one file.
type fileResult struct {
	path    string
	symbols []types.Symbol
	skip    string // Reason the file was skipped, "" otherwise
	fail    string // Reason extraction failed, "" otherwise
}

// Index walks the tree and extracts symbols from every supported file.
// Extraction runs in parallel across files; each file fails closed, so one
// bad file never aborts the scan. Cancelling ctx stops scheduling new files;
// results already produced remain valid.
func (r *Repository) Index(ctx context.Context) (*Index, error) {
	start := time.Now()

	entries, err := r.walk()
	if err != nil {
		return nil, fmt.Errorf("walking %s: %w", r.root, err)
	}

	var files []types.FileInfo
	for _, e := range entries {
		if !e.IsDir {
			files = append(files, e)
		}
	}
	slog.Info("scanned repository", "root", r.root, "entries", len(entries), "files", len(files))
	r.progress(types.ScanProgress{TotalFiles: len(files)})

	results := r.extractParallel(ctx, files)

	idx := &Index{
		Root:    r.root,
		Files:   entries,
		Symbols: make(map[string][]types.Symbol),
	}
	for _, res := range results {
		switch {
		case res.skip != "":
			idx.Report.Skipped++
			idx.Report.Skips = append(idx.Report.Skips, types.FileFailure{Path: res.path, Reason: res.skip})
		case res.fail != "":
			idx.Report.Failed++
			idx.Report.Failures = append(idx.Report.Failures, types.FileFailure{Path: res.path, Reason: res.fail})
		default:
			idx.Report.Analyzed++
			idx.Symbols[res.path] = res.symbols
		}
	}
	sortFailures(idx.Report.Skips)
	sortFailures(idx.Report.Failures)

	slog.Info("index complete",
		"analyzed", idx.Report.Analyzed,
		"skipped", idx.Report.Skipped,
		"failed", idx.Report.Failed,
		"duration", time.Since(start).Round(time.Millisecond),
	)
	return idx, nil
}

// extractParallel fans files out to a worker pool and collects per-file
// results. Result order is restored by the caller from the sorted file list,
// so worker scheduling cannot leak into output ordering.
func (r *Repository) extractParallel(ctx context.Context, files []types.FileInfo) []fileResult {
	workers := r.cfg.Workers
	if workers <= 0 {
		workers = runtime.NumCPU()
	}

	fileCh := make(chan types.FileInfo, len(files))
	resultCh := make(chan fileResult, len(files))

	var wg sync.WaitGroup
	var processed int64
	var mu sync.Mutex

	for i := 0; i < workers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for f := range fileCh {
				if ctx.Err() != nil {
					return
				}
				res := r.extractOne(ctx, f)
				mu.Lock()
				processed++
				n := processed
				mu.Unlock()
				r.progress(types.ScanProgress{
					TotalFiles:     len(files),
					ProcessedFiles: int(n),
					CurrentFile:    f.Path,
				})
				resultCh <- res
			}
		}()
	}

	for _, f := range files {
		fileCh <- f
	}
	close(fileCh)

	go func() {
		wg.Wait()
		close(resultCh)
	}()

	results := make([]fileResult, 0, len(files))
	for res := range resultCh {
		results = append(results, res)
	}
	return results
}

// extractOne runs the full per-file pipeline: resolve language, compile
// matchers, parse, match, normalize.
func (r *Repository) extractOne(ctx context.Context, f types.FileInfo) fileResult {
	res := fileResult{path: f.Path}

	lang, ok := r.reg.LanguageForExtension(filepath.Ext(f.Path))
	if !ok {
		res.skip = "unsupported extension"
		return res
	}
	if r.cfg.MaxFileSize > 0 && f.Size > r.cfg.MaxFileSize {
		res.skip = fmt.Sprintf("file too large: %d bytes", f.Size)
		return res
	}

	symbols, err := r.extractFile(ctx, lang, f.Path)
	if err != nil {
		var unavailable *types.GrammarUnavailableError
		if errors.As(err, &unavailable) {
			res.skip = err.Error()
			return res
		}
		slog.Warn("extraction failed", "file", f.Path, "language", lang, "error", err)
		res.fail = err.Error()
		return res
	}
	res.symbols = symbols
	return res
}

// extractFile extracts symbols for one file known to belong to lang.
func (r *Repository) extractFile(ctx context.Context, lang, relPath string) ([]types.Symbol, error) {
	matchers, err := r.cache.Get(lang)
	if err != nil {
		return nil, err
	}
	if len(matchers.List) == 0 {
		if len(matchers.Errors) > 0 {
			return nil, fmt.Errorf("no usable queries for %s: %w", lang, matchers.Errors[0])
		}
		return nil, &types.NotFoundError{Kind: "query source", Name: lang}
	}
	for _, qerr := range matchers.Errors {
		slog.Warn("query source failed to compile", "language", lang, "error", qerr)
	}

	source, err := os.ReadFile(filepath.Join(r.root, relPath))
	if err != nil {
		return nil, err
	}
	if len(source) == 0 {
		return nil, nil
	}

	tree, err := grammar.Parse(ctx, r.reg.GrammarName(lang), source)
	if err != nil {
		return nil, err
	}
	defer tree.Close()

	if tree.RootNode().HasError() {
		return nil, &types.ParseError{Path: relPath, Reason: "source contains syntax errors"}
	}

	return extract.Symbols(matchers, tree.RootNode(), source), nil
}

// ExtractSymbols extracts symbols from a single file without a full scan.
// The path may be absolute or relative to the repository root.
func (r *Repository) ExtractSymbols(ctx context.Context, path string) ([]types.Symbol, error) {
	rel := path
	if filepath.IsAbs(path) {
		var err error
		rel, err = filepath.Rel(r.root, path)
		if err != nil {
			return nil, err
		}
	}
	rel = filepath.ToSlash(rel)

	lang, ok := r.reg.LanguageForExtension(filepath.Ext(rel))
	if !ok {
		return nil, fmt.Errorf("%s: %w", rel, types.ErrUnsupportedLanguage)
	}
	return r.extractFile(ctx, lang, rel)
}

// ReadFile reads one file relative to the repository root.
func (r *Repository) ReadFile(rel string) ([]byte, error) {
	return os.ReadFile(filepath.Join(r.root, filepath.FromSlash(rel)))
}

// FileTree returns the repository's file tree without extracting symbols.
func (r *Repository) FileTree() ([]types.FileInfo, error) {
	return r.walk()
}

func sortFailures(v []types.FileFailure) {
	sort.Slice(v, func(i, j int) bool { return v[i].Path < v[j].Path })
}

func (r *Repository) progress(p types.ScanProgress) {
	if r.cfg.OnProgress != nil {
		r.cfg.OnProgress(p)
	}
}
