package repo

import (
	"encoding/json"
	"os"
	"path/filepath"
	"strings"

	"github.com/AlanVerbner/kit/pkg/types"
)

// Index is the aggregate produced by one repository scan: the ordered file
// tree plus per-file symbol lists and the scan report. All read views below
// serve from the already-built aggregate; none re-scans the tree.
type Index struct {
	Root    string
	Files   []types.FileInfo
	Symbols map[string][]types.Symbol
	Report  types.ScanReport
}

// Export is the full-index view: file tree plus symbols.
type Export struct {
	FileTree []types.FileInfo          `json:"file_tree"`
	Symbols  map[string][]types.Symbol `json:"symbols"`
}

// Export returns the full index view.
func (idx *Index) Export() Export {
	return Export{FileTree: idx.Files, Symbols: idx.Symbols}
}

// FileTree returns the ordered file tree view.
func (idx *Index) FileTree() []types.FileInfo {
	return idx.Files
}

// SymbolsByFile returns the symbols-only view.
func (idx *Index) SymbolsByFile() map[string][]types.Symbol {
	return idx.Symbols
}

// AllSymbols flattens the per-file symbol lists in file order.
func (idx *Index) AllSymbols() []types.Symbol {
	var out []types.Symbol
	for _, f := range idx.Files {
		out = append(out, idx.Symbols[f.Path]...)
	}
	return out
}

// SymbolCount returns the aggregate number of extracted symbols.
func (idx *Index) SymbolCount() int {
	n := 0
	for _, syms := range idx.Symbols {
		n += len(syms)
	}
	return n
}

// Usages returns the definition sites of a named symbol, optionally filtered
// by type. The context is the definition's first line. Textual mentions are
// merged in by the search engine's Usages.
func (idx *Index) Usages(name, symType string) []types.Usage {
	var usages []types.Usage
	for _, f := range idx.Files {
		for _, s := range idx.Symbols[f.Path] {
			if s.Name != name {
				continue
			}
			if symType != "" && s.Type != symType {
				continue
			}
			usages = append(usages, types.Usage{
				File:    f.Path,
				Line:    s.StartLine,
				Type:    s.Type,
				Context: firstLine(s.Code),
			})
		}
	}
	return usages
}

// WriteIndex writes the full index view as indented JSON.
func (idx *Index) WriteIndex(path string) error {
	return writeJSON(path, idx.Export())
}

// WriteSymbols writes the symbols-only view as indented JSON.
func (idx *Index) WriteSymbols(path string) error {
	return writeJSON(path, idx.Symbols)
}

// WriteFileTree writes the file tree view as indented JSON.
func (idx *Index) WriteFileTree(path string) error {
	return writeJSON(path, idx.Files)
}

// WriteSymbolUsages writes a usage list as indented JSON.
func WriteSymbolUsages(path string, usages []types.Usage) error {
	if usages == nil {
		usages = []types.Usage{}
	}
	return writeJSON(path, usages)
}

func writeJSON(path string, v any) error {
	data, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return err
	}
	if dir := filepath.Dir(path); dir != "." {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return err
		}
	}
	return os.WriteFile(path, append(data, '\n'), 0o644)
}

func firstLine(s string) string {
	if i := strings.IndexByte(s, '\n'); i >= 0 {
		s = s[:i]
	}
	return strings.TrimSpace(s)
}
