// Package mcp exposes the repository index over the Model Context Protocol.
package mcp

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"strings"
	"sync"

	"github.com/mark3labs/mcp-go/mcp"
	"github.com/mark3labs/mcp-go/server"

	"github.com/AlanVerbner/kit/internal/chunk"
	"github.com/AlanVerbner/kit/internal/config"
	"github.com/AlanVerbner/kit/internal/deps"
	"github.com/AlanVerbner/kit/internal/repo"
	"github.com/AlanVerbner/kit/internal/search"
)

// Server implements the MCP server.
type Server struct {
	mcpServer *server.MCPServer
	repo      *repo.Repository
	config    *config.Config
	search    *search.Engine

	mu  sync.RWMutex
	idx *repo.Index
}

// Config contains server configuration.
type Config struct {
	Repository *repo.Repository
	Config     *config.Config
}

// New creates a new MCP server.
func New(cfg Config) (*Server, error) {
	if cfg.Repository == nil {
		return nil, fmt.Errorf("repository is required")
	}
	s := &Server{
		repo:   cfg.Repository,
		config: cfg.Config,
		search: search.New(cfg.Repository),
	}

	mcpServer := server.NewMCPServer(
		"kit",
		"0.1.0",
		server.WithLogging(),
	)
	s.registerTools(mcpServer)
	s.mcpServer = mcpServer
	return s, nil
}

// registerTools registers all MCP tools.
func (s *Server) registerTools(mcpServer *server.MCPServer) {
	// index_repository - Scan the repository and build the symbol index
	mcpServer.AddTool(mcp.NewTool("index_repository",
		mcp.WithDescription("Scan the repository and build the file tree and symbol index"),
		mcp.WithBoolean("force", mcp.Description("Rebuild even if an index exists")),
	), s.handleIndexRepository)

	// get_file_tree - File tree view
	mcpServer.AddTool(mcp.NewTool("get_file_tree",
		mcp.WithDescription("Get the repository file tree"),
	), s.handleGetFileTree)

	// extract_symbols - Symbols for one file or the whole repository
	mcpServer.AddTool(mcp.NewTool("extract_symbols",
		mcp.WithDescription("Extract symbols from a file, or list all indexed symbols"),
		mcp.WithString("file", mcp.Description("Repository-relative file path; omit for all files")),
	), s.handleExtractSymbols)

	// find_symbol_usages - Usages of one named symbol
	mcpServer.AddTool(mcp.NewTool("find_symbol_usages",
		mcp.WithDescription("Find usages of a named symbol across the repository"),
		mcp.WithString("symbol", mcp.Required(), mcp.Description("Symbol name")),
		mcp.WithString("type", mcp.Description("Filter by symbol type (function, class, ...)")),
	), s.handleFindSymbolUsages)

	// search_text - Regex search
	mcpServer.AddTool(mcp.NewTool("search_text",
		mcp.WithDescription("Search file content with a regular expression"),
		mcp.WithString("pattern", mcp.Required(), mcp.Description("Search pattern")),
		mcp.WithString("file_pattern", mcp.Description("Glob restricting searched files")),
		mcp.WithNumber("context_lines", mcp.Description("Surrounding lines to include")),
		mcp.WithNumber("max_results", mcp.Description("Maximum results (default 100)")),
		mcp.WithBoolean("case_sensitive", mcp.Description("Case sensitive matching")),
		mcp.WithBoolean("literal", mcp.Description("Treat pattern as a fixed string")),
	), s.handleSearchText)

	// extract_context - Code context around one position
	mcpServer.AddTool(mcp.NewTool("extract_context",
		mcp.WithDescription("Get the innermost symbol enclosing a file position, or a line window around it"),
		mcp.WithString("file", mcp.Required(), mcp.Description("Repository-relative file path")),
		mcp.WithNumber("line", mcp.Required(), mcp.Description("0-indexed line number")),
	), s.handleExtractContext)

	// chunk_file - Line or symbol chunking
	mcpServer.AddTool(mcp.NewTool("chunk_file",
		mcp.WithDescription("Split a file into chunks by lines or by symbols"),
		mcp.WithString("file", mcp.Required(), mcp.Description("Repository-relative file path")),
		mcp.WithString("mode", mcp.Description("Chunking mode: lines (default) or symbols")),
		mcp.WithNumber("max_lines", mcp.Description("Maximum lines per chunk")),
	), s.handleChunkFile)

	// get_dependencies - Projected import graph
	mcpServer.AddTool(mcp.NewTool("get_dependencies",
		mcp.WithDescription("Get the import graph projected from extracted symbols"),
		mcp.WithString("file", mcp.Description("Limit to dependencies of one file")),
		mcp.WithBoolean("internal_only", mcp.Description("Drop edges to external packages")),
	), s.handleGetDependencies)

	// list_languages - Supported languages
	mcpServer.AddTool(mcp.NewTool("list_languages",
		mcp.WithDescription("List supported languages and their file extensions"),
	), s.handleListLanguages)
}

// ServeStdio starts the MCP server using stdio transport.
func (s *Server) ServeStdio() error {
	return server.ServeStdio(s.mcpServer)
}

// UseWatcher serves index snapshots maintained by w and drops cached search
// lines for files the watcher refreshed. Call before ServeStdio.
func (s *Server) UseWatcher(w *repo.Watcher) {
	w.OnRefresh(func(paths []string) {
		for _, p := range paths {
			s.search.Invalidate(p)
		}
		s.mu.Lock()
		s.idx = w.Index()
		s.mu.Unlock()
	})
	s.mu.Lock()
	s.idx = w.Index()
	s.mu.Unlock()
}

// ensureIndex returns the current index, building it on first use. A rebuild
// also drops cached search lines so stale file content is not served.
func (s *Server) ensureIndex(ctx context.Context, force bool) (*repo.Index, error) {
	s.mu.RLock()
	idx := s.idx
	s.mu.RUnlock()
	if idx != nil && !force {
		return idx, nil
	}

	idx, err := s.repo.Index(ctx)
	if err != nil {
		return nil, err
	}
	s.search.Purge()
	s.mu.Lock()
	s.idx = idx
	s.mu.Unlock()
	return idx, nil
}

// Tool handlers

func (s *Server) handleIndexRepository(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	force := req.GetBool("force", false)

	slog.Info("indexing repository", "force", force)
	idx, err := s.ensureIndex(ctx, force)
	if err != nil {
		return mcp.NewToolResultError(fmt.Sprintf("indexing failed: %v", err)), nil
	}

	result := map[string]any{
		"success":  true,
		"analyzed": idx.Report.Analyzed,
		"skipped":  idx.Report.Skipped,
		"failed":   idx.Report.Failed,
		"symbols":  idx.SymbolCount(),
	}
	if len(idx.Report.Failures) > 0 {
		result["failures"] = idx.Report.Failures
	}
	return jsonResult(result), nil
}

func (s *Server) handleGetFileTree(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	idx, err := s.ensureIndex(ctx, false)
	if err != nil {
		return mcp.NewToolResultError(fmt.Sprintf("index failed: %v", err)), nil
	}
	return jsonResult(idx.FileTree()), nil
}

func (s *Server) handleExtractSymbols(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	file := req.GetString("file", "")
	if file != "" {
		symbols, err := s.repo.ExtractSymbols(ctx, file)
		if err != nil {
			return mcp.NewToolResultError(fmt.Sprintf("extraction failed: %v", err)), nil
		}
		return jsonResult(symbols), nil
	}

	idx, err := s.ensureIndex(ctx, false)
	if err != nil {
		return mcp.NewToolResultError(fmt.Sprintf("index failed: %v", err)), nil
	}
	return jsonResult(idx.SymbolsByFile()), nil
}

func (s *Server) handleFindSymbolUsages(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	symbol := req.GetString("symbol", "")
	if symbol == "" {
		return mcp.NewToolResultError("symbol is required"), nil
	}
	symType := req.GetString("type", "")

	idx, err := s.ensureIndex(ctx, false)
	if err != nil {
		return mcp.NewToolResultError(fmt.Sprintf("index failed: %v", err)), nil
	}
	usages, err := s.search.Usages(ctx, idx, symbol, symType)
	if err != nil {
		return mcp.NewToolResultError(fmt.Sprintf("usage search failed: %v", err)), nil
	}
	return jsonResult(usages), nil
}

func (s *Server) handleSearchText(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	pattern := req.GetString("pattern", "")
	if pattern == "" {
		return mcp.NewToolResultError("pattern is required"), nil
	}

	contextLines := req.GetInt("context_lines", 0)
	if contextLines == 0 && s.config != nil {
		contextLines = s.config.Search.ContextLines
	}
	maxResults := req.GetInt("max_results", 0)
	if maxResults == 0 && s.config != nil {
		maxResults = s.config.Search.DefaultLimit
	}

	results, err := s.search.Search(ctx, pattern, search.Options{
		FilePattern:   req.GetString("file_pattern", ""),
		ContextLines:  contextLines,
		MaxResults:    maxResults,
		CaseSensitive: req.GetBool("case_sensitive", false),
		Literal:       req.GetBool("literal", false),
	})
	if err != nil {
		return mcp.NewToolResultError(fmt.Sprintf("search failed: %v", err)), nil
	}
	return jsonResult(results), nil
}

func (s *Server) handleExtractContext(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	file := req.GetString("file", "")
	if file == "" {
		return mcp.NewToolResultError("file is required"), nil
	}
	line := req.GetInt("line", -1)
	if line < 0 {
		return mcp.NewToolResultError("line is required"), nil
	}

	idx, err := s.ensureIndex(ctx, false)
	if err != nil {
		return mcp.NewToolResultError(fmt.Sprintf("index failed: %v", err)), nil
	}
	c, err := s.search.ContextAroundLine(file, line, idx.Symbols[file])
	if err != nil {
		return mcp.NewToolResultError(fmt.Sprintf("context extraction failed: %v", err)), nil
	}
	return jsonResult(c), nil
}

func (s *Server) handleChunkFile(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	file := req.GetString("file", "")
	if file == "" {
		return mcp.NewToolResultError("file is required"), nil
	}
	mode := req.GetString("mode", "lines")
	maxLines := req.GetInt("max_lines", 0)
	if maxLines == 0 && s.config != nil {
		maxLines = s.config.Chunking.MaxLines
	}

	content, err := s.repo.ReadFile(file)
	if err != nil {
		return mcp.NewToolResultError(fmt.Sprintf("reading file: %v", err)), nil
	}

	switch mode {
	case "lines":
		return jsonResult(chunk.ByLines(file, string(content), maxLines)), nil
	case "symbols":
		symbols, err := s.repo.ExtractSymbols(ctx, file)
		if err != nil {
			return mcp.NewToolResultError(fmt.Sprintf("extraction failed: %v", err)), nil
		}
		return jsonResult(chunk.BySymbols(file, string(content), symbols, maxLines)), nil
	default:
		return mcp.NewToolResultError(fmt.Sprintf("unknown chunking mode %q", mode)), nil
	}
}

func (s *Server) handleGetDependencies(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	idx, err := s.ensureIndex(ctx, false)
	if err != nil {
		return mcp.NewToolResultError(fmt.Sprintf("index failed: %v", err)), nil
	}
	g, err := deps.Project(idx)
	if err != nil {
		return mcp.NewToolResultError(fmt.Sprintf("dependency projection failed: %v", err)), nil
	}

	edges := g.Edges()
	if file := req.GetString("file", ""); file != "" {
		edges = g.DependenciesOf(file)
	}
	if req.GetBool("internal_only", false) {
		filtered := edges[:0]
		for _, e := range edges {
			if !e.External {
				filtered = append(filtered, e)
			}
		}
		edges = filtered
	}
	return jsonResult(edges), nil
}

func (s *Server) handleListLanguages(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	langs := s.repo.Registry().ListSupportedLanguages()
	out := make(map[string]string, len(langs))
	for name, exts := range langs {
		out[name] = strings.Join(exts, ", ")
	}
	return jsonResult(out), nil
}

func jsonResult(v any) *mcp.CallToolResult {
	data, _ := json.MarshalIndent(v, "", "  ")
	return mcp.NewToolResultText(string(data))
}
