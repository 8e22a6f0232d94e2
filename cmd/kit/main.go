// Command kit is a code intelligence toolkit: tree-sitter symbol
// extraction, repository indexing, chunking, dependency mapping, text
// search, and an MCP server exposing all of it.
package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"path/filepath"
	"runtime"
	"sort"
	"strconv"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/AlanVerbner/kit/internal/chunk"
	"github.com/AlanVerbner/kit/internal/config"
	"github.com/AlanVerbner/kit/internal/deps"
	"github.com/AlanVerbner/kit/internal/mcp"
	"github.com/AlanVerbner/kit/internal/registry"
	"github.com/AlanVerbner/kit/internal/repo"
	"github.com/AlanVerbner/kit/internal/search"
	"github.com/AlanVerbner/kit/pkg/types"
)

var (
	version   = "0.1.0"
	repoRoot  string
	logLevel  string
	logFormat string
)

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

var rootCmd = &cobra.Command{
	Use:   "kit",
	Short: "Code intelligence toolkit",
	Long: `kit extracts symbols, maps dependencies, and chunks source code
using tree-sitter grammars.

It supports:
- Symbol extraction across Go, Python, JavaScript, TypeScript, and more
- Plugin query documents to extend or add languages
- File-level dependency graphs with cycle detection
- Regex text search with symbol-aware context
- An MCP server exposing all operations over stdio`,
	PersistentPreRun: func(cmd *cobra.Command, args []string) {
		setupLogging()
	},
}

var versionCmd = &cobra.Command{
	Use:   "version",
	Short: "Print version information",
	Run: func(cmd *cobra.Command, args []string) {
		fmt.Printf("kit %s\n", version)
		fmt.Printf("Go version: %s\n", runtime.Version())
		fmt.Printf("OS/Arch: %s/%s\n", runtime.GOOS, runtime.GOARCH)
	},
}

var indexCmd = &cobra.Command{
	Use:   "index",
	Short: "Index the repository and report symbol counts",
	Long:  `Scan the repository, extract symbols from every supported file, and print a scan report. Use --output to write the full index as JSON.`,
	Run: func(cmd *cobra.Command, args []string) {
		output, _ := cmd.Flags().GetString("output")
		symbolsOut, _ := cmd.Flags().GetString("symbols")
		runIndexCmd(output, symbolsOut)
	},
}

var symbolsCmd = &cobra.Command{
	Use:   "symbols <file>",
	Short: "Extract symbols from a single file",
	Args:  cobra.ExactArgs(1),
	Run: func(cmd *cobra.Command, args []string) {
		runSymbols(args[0])
	},
}

var treeCmd = &cobra.Command{
	Use:   "tree",
	Short: "Print the repository file tree",
	Run: func(cmd *cobra.Command, args []string) {
		output, _ := cmd.Flags().GetString("output")
		runTree(output)
	},
}

var contextCmd = &cobra.Command{
	Use:   "context <file> <line>",
	Short: "Show the symbol or line window enclosing a position",
	Args:  cobra.ExactArgs(2),
	Run: func(cmd *cobra.Command, args []string) {
		line, err := strconv.Atoi(args[1])
		if err != nil {
			slog.Error("invalid line number", "value", args[1])
			os.Exit(1)
		}
		runContext(args[0], line)
	},
}

var usagesCmd = &cobra.Command{
	Use:   "usages <symbol>",
	Short: "Find usages of a symbol across the repository",
	Args:  cobra.ExactArgs(1),
	Run: func(cmd *cobra.Command, args []string) {
		symType, _ := cmd.Flags().GetString("type")
		output, _ := cmd.Flags().GetString("output")
		runUsages(args[0], symType, output)
	},
}

var chunkCmd = &cobra.Command{
	Use:   "chunk <file>",
	Short: "Split a file into chunks",
	Long:  `Split a file into line-window chunks, or symbol-aligned chunks when --mode symbols is given.`,
	Args:  cobra.ExactArgs(1),
	Run: func(cmd *cobra.Command, args []string) {
		mode, _ := cmd.Flags().GetString("mode")
		maxLines, _ := cmd.Flags().GetInt("max-lines")
		runChunk(args[0], mode, maxLines)
	},
}

var depsCmd = &cobra.Command{
	Use:   "deps",
	Short: "Project the file-level dependency graph",
	Run: func(cmd *cobra.Command, args []string) {
		file, _ := cmd.Flags().GetString("file")
		dot, _ := cmd.Flags().GetBool("dot")
		cycles, _ := cmd.Flags().GetBool("cycles")
		internalOnly, _ := cmd.Flags().GetBool("internal")
		runDeps(file, dot, cycles, internalOnly)
	},
}

var searchCmd = &cobra.Command{
	Use:   "search <pattern>",
	Short: "Search file contents with a regular expression",
	Args:  cobra.ExactArgs(1),
	Run: func(cmd *cobra.Command, args []string) {
		limit, _ := cmd.Flags().GetInt("limit")
		contextLines, _ := cmd.Flags().GetInt("context")
		filePattern, _ := cmd.Flags().GetString("file-pattern")
		caseSensitive, _ := cmd.Flags().GetBool("case-sensitive")
		literal, _ := cmd.Flags().GetBool("literal")
		runSearch(args[0], limit, contextLines, filePattern, caseSensitive, literal)
	},
}

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Run the MCP server on stdio",
	Run: func(cmd *cobra.Command, args []string) {
		watch, _ := cmd.Flags().GetBool("watch")
		runServe(watch)
	},
}

var watchCmd = &cobra.Command{
	Use:   "watch",
	Short: "Watch the repository and keep the index fresh",
	Run: func(cmd *cobra.Command, args []string) {
		debounceMs, _ := cmd.Flags().GetInt("debounce")
		runWatch(debounceMs)
	},
}

var languagesCmd = &cobra.Command{
	Use:   "languages",
	Short: "List supported languages and their extensions",
	Run: func(cmd *cobra.Command, args []string) {
		runLanguages()
	},
}

var configCmd = &cobra.Command{
	Use:   "config",
	Short: "Manage configuration",
}

var configInitCmd = &cobra.Command{
	Use:   "init",
	Short: "Write a default config file",
	Run: func(cmd *cobra.Command, args []string) {
		runConfigInit()
	},
}

var configValidateCmd = &cobra.Command{
	Use:   "validate",
	Short: "Validate the config file",
	Run: func(cmd *cobra.Command, args []string) {
		runConfigValidate()
	},
}

func init() {
	rootCmd.PersistentFlags().StringVarP(&repoRoot, "root", "r", ".", "repository root")
	rootCmd.PersistentFlags().StringVar(&logLevel, "log-level", "info", "log level (debug, info, warn, error)")
	rootCmd.PersistentFlags().StringVar(&logFormat, "log-format", "text", "log format (text, json)")

	indexCmd.Flags().StringP("output", "o", "", "write index JSON to file")

	treeCmd.Flags().StringP("output", "o", "", "write file tree JSON to file")

	usagesCmd.Flags().StringP("type", "t", "", "restrict to a symbol type (function, class, ...)")
	usagesCmd.Flags().StringP("output", "o", "", "write usages JSON to file")

	indexCmd.Flags().String("symbols", "", "write the symbols-only view JSON to file")

	chunkCmd.Flags().StringP("mode", "m", "lines", "chunking mode (lines, symbols)")
	chunkCmd.Flags().Int("max-lines", 0, "maximum lines per chunk (default from config)")

	depsCmd.Flags().StringP("file", "f", "", "only edges touching this file")
	depsCmd.Flags().Bool("dot", false, "emit Graphviz DOT")
	depsCmd.Flags().Bool("cycles", false, "report dependency cycles")
	depsCmd.Flags().Bool("internal", false, "omit external dependencies")

	searchCmd.Flags().IntP("limit", "l", 0, "maximum results (default from config)")
	searchCmd.Flags().IntP("context", "C", 0, "context lines around each match")
	searchCmd.Flags().String("file-pattern", "", "glob restricting searched files")
	searchCmd.Flags().Bool("case-sensitive", false, "match case sensitively")
	searchCmd.Flags().Bool("literal", false, "treat pattern as a fixed string")

	serveCmd.Flags().Bool("watch", false, "keep the index fresh while serving")
	watchCmd.Flags().Int("debounce", 0, "debounce time in milliseconds (default from config)")

	configCmd.AddCommand(configInitCmd)
	configCmd.AddCommand(configValidateCmd)

	rootCmd.AddCommand(versionCmd)
	rootCmd.AddCommand(indexCmd)
	rootCmd.AddCommand(symbolsCmd)
	rootCmd.AddCommand(treeCmd)
	rootCmd.AddCommand(usagesCmd)
	rootCmd.AddCommand(contextCmd)
	rootCmd.AddCommand(chunkCmd)
	rootCmd.AddCommand(depsCmd)
	rootCmd.AddCommand(searchCmd)
	rootCmd.AddCommand(serveCmd)
	rootCmd.AddCommand(watchCmd)
	rootCmd.AddCommand(languagesCmd)
	rootCmd.AddCommand(configCmd)
}

// openProject loads the config, applies language plugins, and opens the
// repository rooted at --root.
func openProject() (*config.Config, *repo.Repository) {
	absRoot, err := filepath.Abs(repoRoot)
	if err != nil {
		slog.Error("failed to resolve root", "path", repoRoot, "error", err)
		os.Exit(1)
	}

	cfg, warnings, err := config.Load(absRoot)
	if err != nil {
		slog.Error("failed to load config", "error", err)
		os.Exit(1)
	}
	for _, w := range warnings {
		slog.Warn(w)
	}

	reg := registry.Default()
	if err := applyPlugins(reg, absRoot, cfg.Plugins); err != nil {
		slog.Error("failed to load plugins", "error", err)
		os.Exit(1)
	}

	maxSize, err := config.ParseSize(cfg.Index.MaxFileSize)
	if err != nil {
		slog.Error("invalid max_file_size", "value", cfg.Index.MaxFileSize, "error", err)
		os.Exit(1)
	}

	r, err := repo.New(repo.Config{
		Root:             absRoot,
		Registry:         reg,
		Include:          cfg.Index.Include,
		Exclude:          cfg.Index.Exclude,
		RespectGitignore: cfg.Index.UseGitIgnore,
		Workers:          cfg.Index.Workers,
		MaxFileSize:      maxSize,
	})
	if err != nil {
		slog.Error("failed to open repository", "root", absRoot, "error", err)
		os.Exit(1)
	}
	return cfg, r
}

// applyPlugins registers configured language plugins. Relative query paths
// resolve against the plugin's search dirs, then the project root.
func applyPlugins(reg *registry.Registry, root string, plugins []config.PluginConfig) error {
	for _, p := range plugins {
		if len(p.Extensions) > 0 {
			var opts []registry.RegisterOption
			if p.Grammar != "" {
				opts = append(opts, registry.WithGrammarName(p.Grammar))
			}
			dirs := append(append([]string{}, p.SearchDirs...), root)
			opts = append(opts, registry.WithSearchDirs(dirs...))
			if err := reg.RegisterLanguage(p.Language, p.Extensions, nil, opts...); err != nil {
				return fmt.Errorf("plugin %s: %w", p.Language, err)
			}
		}
		for _, ref := range p.Queries {
			src, err := resolveQuery(reg, p, root, ref)
			if err != nil {
				return fmt.Errorf("plugin %s: query %s: %w", p.Language, ref, err)
			}
			if err := reg.ExtendLanguage(p.Language, src); err != nil {
				return fmt.Errorf("plugin %s: %w", p.Language, err)
			}
			slog.Debug("loaded plugin query", "language", p.Language, "origin", src.Origin)
		}
	}
	return nil
}

func resolveQuery(reg *registry.Registry, p config.PluginConfig, root, ref string) (registry.QuerySource, error) {
	if !filepath.IsAbs(ref) {
		dirs := append(append([]string{}, p.SearchDirs...), root)
		for _, dir := range dirs {
			path := filepath.Join(dir, ref)
			if content, err := os.ReadFile(path); err == nil {
				return registry.QuerySource{Origin: path, Content: content}, nil
			}
		}
	}
	return reg.ResolveSource(p.Language, ref)
}

func runIndexCmd(output, symbolsOut string) {
	_, r := openProject()
	ctx := signalContext()

	start := time.Now()
	idx, err := r.Index(ctx)
	if err != nil {
		slog.Error("indexing failed", "error", err)
		os.Exit(1)
	}

	fmt.Printf("Indexed %s in %s\n", r.Root(), time.Since(start).Round(time.Millisecond))
	fmt.Printf("  analyzed: %d files, %d symbols\n", idx.Report.Analyzed, idx.SymbolCount())
	fmt.Printf("  skipped:  %d\n", idx.Report.Skipped)
	fmt.Printf("  failed:   %d\n", idx.Report.Failed)
	for _, f := range idx.Report.Failures {
		fmt.Printf("    %s: %s\n", f.Path, f.Reason)
	}

	if output != "" {
		if err := idx.WriteIndex(output); err != nil {
			slog.Error("failed to write index", "path", output, "error", err)
			os.Exit(1)
		}
		fmt.Printf("Wrote %s\n", output)
	}
	if symbolsOut != "" {
		if err := idx.WriteSymbols(symbolsOut); err != nil {
			slog.Error("failed to write symbols", "path", symbolsOut, "error", err)
			os.Exit(1)
		}
		fmt.Printf("Wrote %s\n", symbolsOut)
	}
}

func runSymbols(file string) {
	_, r := openProject()
	symbols, err := r.ExtractSymbols(signalContext(), file)
	if err != nil {
		slog.Error("extraction failed", "file", file, "error", err)
		os.Exit(1)
	}
	printJSON(symbols)
}

func runTree(output string) {
	_, r := openProject()
	files, err := r.FileTree()
	if err != nil {
		slog.Error("walk failed", "error", err)
		os.Exit(1)
	}
	if output != "" {
		idx := &repo.Index{Root: r.Root(), Files: files}
		if err := idx.WriteFileTree(output); err != nil {
			slog.Error("failed to write file tree", "path", output, "error", err)
			os.Exit(1)
		}
		fmt.Printf("Wrote %s\n", output)
		return
	}
	for _, f := range files {
		if f.IsDir {
			fmt.Printf("%s/\n", f.Path)
		} else {
			fmt.Println(f.Path)
		}
	}
}

func runUsages(symbol, symType, output string) {
	_, r := openProject()
	ctx := signalContext()
	idx, err := r.Index(ctx)
	if err != nil {
		slog.Error("indexing failed", "error", err)
		os.Exit(1)
	}
	usages, err := search.New(r).Usages(ctx, idx, symbol, symType)
	if err != nil {
		slog.Error("usage search failed", "error", err)
		os.Exit(1)
	}
	if output != "" {
		if err := repo.WriteSymbolUsages(output, usages); err != nil {
			slog.Error("failed to write usages", "path", output, "error", err)
			os.Exit(1)
		}
		fmt.Printf("Wrote %s\n", output)
		return
	}
	if len(usages) == 0 {
		fmt.Printf("No usages of %q found\n", symbol)
		return
	}
	for _, u := range usages {
		if u.Type != "" {
			fmt.Printf("%s:%d [%s] %s\n", u.File, u.Line, u.Type, u.Context)
			continue
		}
		fmt.Printf("%s:%d %s\n", u.File, u.Line, u.Context)
	}
}

func runContext(file string, line int) {
	_, r := openProject()
	symbols, err := r.ExtractSymbols(signalContext(), file)
	if err != nil && !errors.Is(err, types.ErrUnsupportedLanguage) {
		slog.Error("extraction failed", "file", file, "error", err)
		os.Exit(1)
	}
	c, err := search.New(r).ContextAroundLine(file, line, symbols)
	if err != nil {
		slog.Error("context extraction failed", "error", err)
		os.Exit(1)
	}
	printJSON(c)
}

func runChunk(file, mode string, maxLines int) {
	cfg, r := openProject()
	if maxLines <= 0 {
		maxLines = cfg.Chunking.MaxLines
	}

	content, err := r.ReadFile(file)
	if err != nil {
		slog.Error("failed to read file", "file", file, "error", err)
		os.Exit(1)
	}

	var chunks []types.Chunk
	switch mode {
	case "symbols":
		symbols, err := r.ExtractSymbols(signalContext(), file)
		if err != nil {
			slog.Error("extraction failed", "file", file, "error", err)
			os.Exit(1)
		}
		chunks = chunk.BySymbols(file, string(content), symbols, maxLines)
	case "lines":
		chunks = chunk.ByLines(file, string(content), maxLines)
	default:
		slog.Error("unknown chunking mode", "mode", mode)
		os.Exit(1)
	}
	printJSON(chunks)
}

func runDeps(file string, dot, cycles, internalOnly bool) {
	_, r := openProject()
	idx, err := r.Index(signalContext())
	if err != nil {
		slog.Error("indexing failed", "error", err)
		os.Exit(1)
	}
	g, err := deps.Project(idx)
	if err != nil {
		slog.Error("dependency projection failed", "error", err)
		os.Exit(1)
	}

	if dot {
		if err := g.WriteDOT(os.Stdout); err != nil {
			slog.Error("failed to write DOT", "error", err)
			os.Exit(1)
		}
		return
	}
	if cycles {
		found, err := g.Cycles()
		if err != nil {
			slog.Error("cycle detection failed", "error", err)
			os.Exit(1)
		}
		if len(found) == 0 {
			fmt.Println("No cycles found")
			return
		}
		for _, cycle := range found {
			fmt.Println(joinArrow(cycle))
		}
		return
	}

	edges := g.Edges()
	if file != "" {
		edges = g.DependenciesOf(file)
	}
	for _, e := range edges {
		if internalOnly && e.External {
			continue
		}
		marker := ""
		if e.External {
			marker = " (external)"
		}
		fmt.Printf("%s -> %s%s\n", e.From, e.To, marker)
	}
}

func runSearch(pattern string, limit, contextLines int, filePattern string, caseSensitive, literal bool) {
	cfg, r := openProject()
	if limit <= 0 {
		limit = cfg.Search.DefaultLimit
	}
	if contextLines <= 0 {
		contextLines = cfg.Search.ContextLines
	}

	eng := search.New(r)
	results, err := eng.Search(signalContext(), pattern, search.Options{
		FilePattern:   filePattern,
		ContextLines:  contextLines,
		MaxResults:    limit,
		CaseSensitive: caseSensitive,
		Literal:       literal,
	})
	if err != nil {
		slog.Error("search failed", "error", err)
		os.Exit(1)
	}
	for _, res := range results {
		fmt.Printf("%s:%d: %s\n", res.File, res.Line, res.Match)
		for _, line := range res.Context {
			fmt.Printf("    %s\n", line)
		}
	}
	fmt.Printf("%d results\n", len(results))
}

func runServe(watch bool) {
	cfg, r := openProject()
	srv, err := mcp.New(mcp.Config{Repository: r, Config: cfg})
	if err != nil {
		slog.Error("failed to create server", "error", err)
		os.Exit(1)
	}

	if watch {
		ctx := signalContext()
		idx, err := r.Index(ctx)
		if err != nil {
			slog.Error("initial indexing failed", "error", err)
			os.Exit(1)
		}
		w, err := repo.NewWatcher(r, idx, time.Duration(cfg.Watch.DebounceMS)*time.Millisecond)
		if err != nil {
			slog.Error("failed to create watcher", "error", err)
			os.Exit(1)
		}
		defer w.Close()
		srv.UseWatcher(w)
		go func() {
			if err := w.Watch(ctx); err != nil && ctx.Err() == nil {
				slog.Warn("watcher stopped", "error", err)
			}
		}()
	}

	slog.Info("starting MCP server on stdio", "root", r.Root())
	if err := srv.ServeStdio(); err != nil {
		slog.Error("server error", "error", err)
		os.Exit(1)
	}
}

func runWatch(debounceMs int) {
	cfg, r := openProject()
	if debounceMs <= 0 {
		debounceMs = cfg.Watch.DebounceMS
	}
	ctx := signalContext()

	idx, err := r.Index(ctx)
	if err != nil {
		slog.Error("initial indexing failed", "error", err)
		os.Exit(1)
	}
	fmt.Printf("Indexed %d files, %d symbols\n", idx.Report.Analyzed, idx.SymbolCount())

	w, err := repo.NewWatcher(r, idx, time.Duration(debounceMs)*time.Millisecond)
	if err != nil {
		slog.Error("failed to create watcher", "error", err)
		os.Exit(1)
	}
	defer w.Close()

	fmt.Printf("Watching %s (Ctrl+C to stop)\n", r.Root())
	if err := w.Watch(ctx); err != nil && ctx.Err() == nil {
		slog.Error("watcher error", "error", err)
		os.Exit(1)
	}
}

func runLanguages() {
	_, r := openProject()
	langs := r.Registry().ListSupportedLanguages()
	names := make([]string, 0, len(langs))
	for name := range langs {
		names = append(names, name)
	}
	sort.Strings(names)
	for _, name := range names {
		exts := append([]string{}, langs[name]...)
		sort.Strings(exts)
		fmt.Printf("%-12s", name)
		for _, e := range exts {
			fmt.Printf(" %s", e)
		}
		fmt.Println()
	}
}

func runConfigInit() {
	absRoot, err := filepath.Abs(repoRoot)
	if err != nil {
		slog.Error("failed to resolve root", "path", repoRoot, "error", err)
		os.Exit(1)
	}
	path := config.ConfigPath(absRoot)
	if _, err := os.Stat(path); err == nil {
		fmt.Printf("Config already exists: %s\n", path)
		return
	}
	if err := config.Save(absRoot, config.DefaultConfig()); err != nil {
		slog.Error("failed to write config", "error", err)
		os.Exit(1)
	}
	fmt.Printf("Created %s\n", path)
}

func runConfigValidate() {
	absRoot, err := filepath.Abs(repoRoot)
	if err != nil {
		slog.Error("failed to resolve root", "path", repoRoot, "error", err)
		os.Exit(1)
	}
	cfg, warnings, err := config.Load(absRoot)
	if err != nil {
		slog.Error("failed to load config", "error", err)
		os.Exit(1)
	}
	for _, w := range warnings {
		fmt.Printf("warning: %s\n", w)
	}
	errs := config.Validate(cfg)
	if len(errs) == 0 {
		fmt.Println("Config is valid")
		return
	}
	for _, e := range errs {
		fmt.Printf("error: %v\n", e)
	}
	os.Exit(1)
}

func signalContext() context.Context {
	ctx, cancel := context.WithCancel(context.Background())
	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		sig := <-sigChan
		slog.Info("received interrupt signal, stopping", "signal", sig)
		cancel()
	}()
	return ctx
}

func printJSON(v any) {
	enc := json.NewEncoder(os.Stdout)
	enc.SetIndent("", "  ")
	if err := enc.Encode(v); err != nil {
		slog.Error("failed to encode output", "error", err)
		os.Exit(1)
	}
}

func joinArrow(parts []string) string {
	out := ""
	for i, p := range parts {
		if i > 0 {
			out += " -> "
		}
		out += p
	}
	return out
}

func setupLogging() {
	var level slog.Level
	switch logLevel {
	case "debug":
		level = slog.LevelDebug
	case "warn":
		level = slog.LevelWarn
	case "error":
		level = slog.LevelError
	default:
		level = slog.LevelInfo
	}

	var handler slog.Handler
	opts := &slog.HandlerOptions{Level: level}

	if logFormat == "json" {
		handler = slog.NewJSONHandler(os.Stderr, opts)
	} else {
		handler = slog.NewTextHandler(os.Stderr, opts)
	}

	slog.SetDefault(slog.New(handler))
}
