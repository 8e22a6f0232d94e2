// Package types contains shared data types used across the kit project.
package types

import (
	"crypto/sha256"
	"encoding/hex"
	"strconv"
)

// Symbol represents one extracted code construct.
//
// StartLine and EndLine are 0-indexed and inclusive on both ends. Code is the
// exact source text for that span, interior whitespace included. The JSON
// field names and line semantics are a compatibility contract for downstream
// tooling and must not change.
type Symbol struct {
	Name      string `json:"name"`
	Type      string `json:"type"`
	Subtype   string `json:"subtype,omitempty"`
	StartLine int    `json:"start_line"`
	EndLine   int    `json:"end_line"`
	Code      string `json:"code"`
}

// LineCount returns the number of lines the symbol spans.
func (s *Symbol) LineCount() int {
	if s.EndLine >= s.StartLine {
		return s.EndLine - s.StartLine + 1
	}
	return 1
}

// FileInfo describes one entry in a repository's file tree.
type FileInfo struct {
	Path  string `json:"path"` // Relative to the repository root
	Name  string `json:"name"`
	IsDir bool   `json:"is_dir"`
	Size  int64  `json:"size"`
}

// ChunkType represents the type of code chunk.
type ChunkType string

const (
	ChunkTypeLines  ChunkType = "lines"  // Fixed-size line window
	ChunkTypeSymbol ChunkType = "symbol" // Span of one top-level symbol
)

// Chunk is a derived view over file content: either a contiguous line window
// or the exact span of one symbol. Chunks are computed on demand and always
// regenerable from the index; they are never a source of truth.
// Line numbers follow the Symbol convention: 0-indexed, inclusive.
type Chunk struct {
	FilePath  string    `json:"file_path"`
	Content   string    `json:"content"`
	Type      ChunkType `json:"type"`
	Name      string    `json:"name,omitempty"` // Symbol name for symbol chunks
	StartLine int       `json:"start_line"`
	EndLine   int       `json:"end_line"`
}

// ID returns a stable identifier for the chunk.
func (c *Chunk) ID() string {
	h := sha256.Sum256([]byte(c.Content))
	return c.FilePath + ":" + strconv.Itoa(c.StartLine) + ":" + hex.EncodeToString(h[:4])
}

// Usage is one occurrence of a named symbol somewhere in the repository,
// either its definition site or a textual mention.
type Usage struct {
	File    string `json:"file"`
	Line    int    `json:"line"` // 0-indexed
	Type    string `json:"type,omitempty"`
	Context string `json:"context,omitempty"`
}

// FileFailure records why a single file was skipped or failed during a scan.
type FileFailure struct {
	Path   string `json:"path"`
	Reason string `json:"reason"`
}

// ScanReport summarizes one repository scan. Analyzed counts files that went
// through extraction, Skipped counts files with no supported language, Failed
// counts files the grammar rejected or whose queries failed to compile.
type ScanReport struct {
	Analyzed int           `json:"analyzed"`
	Skipped  int           `json:"skipped"`
	Failed   int           `json:"failed"`
	Skips    []FileFailure `json:"skips,omitempty"`
	Failures []FileFailure `json:"failures,omitempty"`
}

// SearchResult is one match from a text search across indexed files.
type SearchResult struct {
	File    string   `json:"file"`
	Line    int      `json:"line"` // 0-indexed
	Match   string   `json:"match"`
	Context []string `json:"context,omitempty"` // Surrounding lines
}

// DependencyEdge is one edge in the projected import graph. Internal edges
// point at a file inside the repository; external edges keep the raw target
// (a package or module name that did not resolve to a local file).
type DependencyEdge struct {
	From     string `json:"from"`
	To       string `json:"to"`
	External bool   `json:"external"`
}

// ScanProgress reports the state of a running repository scan.
type ScanProgress struct {
	TotalFiles     int
	ProcessedFiles int
	CurrentFile    string
}
