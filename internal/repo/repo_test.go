package repo

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/AlanVerbner/kit/internal/registry"
	"github.com/AlanVerbner/kit/pkg/types"
)

func writeTree(t *testing.T, files map[string]string) string {
	t.Helper()
	root := t.TempDir()
	for rel, content := range files {
		path := filepath.Join(root, filepath.FromSlash(rel))
		if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
			t.Fatal(err)
		}
		if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
			t.Fatal(err)
		}
	}
	return root
}

const goodGo = `package demo

func Alpha() {}

func Beta() {}
`

const brokenGo = `package demo

func Broken( {
`

const goodPy = `def handler():
    pass

class Worker:
    def run(self):
        pass
`

func TestIndexScanReport(t *testing.T) {
	root := writeTree(t, map[string]string{
		"main.go":        goodGo,
		"app/worker.py":  goodPy,
		"app/broken.go":  brokenGo,
		"docs/notes.txt": "nothing to parse here",
	})

	r, err := New(Config{Root: root, Registry: registry.New()})
	if err != nil {
		t.Fatal(err)
	}
	idx, err := r.Index(context.Background())
	if err != nil {
		t.Fatal(err)
	}

	if idx.Report.Analyzed != 2 {
		t.Errorf("analyzed = %d, want 2", idx.Report.Analyzed)
	}
	if idx.Report.Skipped != 1 {
		t.Errorf("skipped = %d, want 1", idx.Report.Skipped)
	}
	if idx.Report.Failed != 1 {
		t.Errorf("failed = %d, want 1", idx.Report.Failed)
	}

	if len(idx.Report.Failures) != 1 || idx.Report.Failures[0].Path != "app/broken.go" {
		t.Errorf("failures = %+v", idx.Report.Failures)
	}
	if len(idx.Report.Skips) != 1 || idx.Report.Skips[0].Path != "docs/notes.txt" {
		t.Errorf("skips = %+v", idx.Report.Skips)
	}
	if idx.Report.Skips[0].Reason != "unsupported extension" {
		t.Errorf("skip reason = %q", idx.Report.Skips[0].Reason)
	}

	// Failed files carry no symbols, analyzed files do.
	if _, ok := idx.Symbols["app/broken.go"]; ok {
		t.Error("broken file has symbol records")
	}
	if len(idx.Symbols["main.go"]) == 0 {
		t.Error("main.go extracted no symbols")
	}
}

func TestIndexViews(t *testing.T) {
	root := writeTree(t, map[string]string{
		"a.go": goodGo,
		"b.py": goodPy,
	})

	r, err := New(Config{Root: root, Registry: registry.New()})
	if err != nil {
		t.Fatal(err)
	}
	idx, err := r.Index(context.Background())
	if err != nil {
		t.Fatal(err)
	}

	byFile := idx.SymbolsByFile()
	if len(byFile) != 2 {
		t.Errorf("SymbolsByFile() covers %d files, want 2", len(byFile))
	}

	all := idx.AllSymbols()
	if len(all) != idx.SymbolCount() {
		t.Errorf("AllSymbols() = %d, SymbolCount() = %d", len(all), idx.SymbolCount())
	}

	tree := idx.FileTree()
	var sawFile bool
	for _, f := range tree {
		if f.Path == "a.go" && !f.IsDir {
			sawFile = true
		}
	}
	if !sawFile {
		t.Errorf("FileTree() missing a.go: %+v", tree)
	}

	exp := idx.Export()
	if len(exp.FileTree) != len(tree) || len(exp.Symbols) != 2 {
		t.Errorf("Export() = %d entries, %d symbol files", len(exp.FileTree), len(exp.Symbols))
	}
}

func TestUsages(t *testing.T) {
	root := writeTree(t, map[string]string{
		"a.go": "package demo\n\nfunc Shared() {}\n",
		"b.go": "package demo\n\nfunc Shared() {}\n\nfunc Other() {}\n",
	})

	r, err := New(Config{Root: root, Registry: registry.New()})
	if err != nil {
		t.Fatal(err)
	}
	idx, err := r.Index(context.Background())
	if err != nil {
		t.Fatal(err)
	}

	usages := idx.Usages("Shared", "")
	if len(usages) != 2 {
		t.Fatalf("Usages(Shared) = %d, want 2", len(usages))
	}
	if usages[0].File != "a.go" || usages[1].File != "b.go" {
		t.Errorf("usages = %+v", usages)
	}

	if got := idx.Usages("Shared", "class"); len(got) != 0 {
		t.Errorf("Usages(Shared, class) = %d, want 0", len(got))
	}
	if got := idx.Usages("Nope", ""); len(got) != 0 {
		t.Errorf("Usages(Nope) = %d, want 0", len(got))
	}
}

func TestExtractSymbolsSingleFile(t *testing.T) {
	root := writeTree(t, map[string]string{"pkg/a.go": goodGo})

	r, err := New(Config{Root: root, Registry: registry.New()})
	if err != nil {
		t.Fatal(err)
	}

	symbols, err := r.ExtractSymbols(context.Background(), "pkg/a.go")
	if err != nil {
		t.Fatal(err)
	}
	if len(symbols) != 2 {
		t.Fatalf("got %d symbols, want 2: %+v", len(symbols), symbols)
	}
	if symbols[0].Name != "Alpha" || symbols[1].Name != "Beta" {
		t.Errorf("order = %s, %s; want Alpha, Beta", symbols[0].Name, symbols[1].Name)
	}

	// Absolute paths inside the root work too.
	abs := filepath.Join(root, "pkg", "a.go")
	if _, err := r.ExtractSymbols(context.Background(), abs); err != nil {
		t.Errorf("ExtractSymbols(abs) error = %v", err)
	}

	_, err = r.ExtractSymbols(context.Background(), "missing.xyz")
	if !errors.Is(err, types.ErrUnsupportedLanguage) {
		t.Errorf("ExtractSymbols(.xyz) error = %v, want ErrUnsupportedLanguage", err)
	}
}

func TestIndexExcludePatterns(t *testing.T) {
	root := writeTree(t, map[string]string{
		"keep.go":         goodGo,
		"gen/gen.go":      goodGo,
		"vendor/dep.go":   goodGo,
		"keep_test.go":    goodGo,
		"deep/x/inner.go": goodGo,
	})

	r, err := New(Config{
		Root:     root,
		Registry: registry.New(),
		Exclude:  []string{"gen/**", "vendor/**", "**_test.go"},
	})
	if err != nil {
		t.Fatal(err)
	}
	idx, err := r.Index(context.Background())
	if err != nil {
		t.Fatal(err)
	}

	for _, banned := range []string{"gen/gen.go", "vendor/dep.go", "keep_test.go"} {
		if _, ok := idx.Symbols[banned]; ok {
			t.Errorf("excluded file %s was analyzed", banned)
		}
	}
	if _, ok := idx.Symbols["keep.go"]; !ok {
		t.Error("keep.go missing")
	}
	if _, ok := idx.Symbols["deep/x/inner.go"]; !ok {
		t.Error("deep/x/inner.go missing")
	}
}

func TestIndexIncludePatterns(t *testing.T) {
	root := writeTree(t, map[string]string{
		"a.go": goodGo,
		"b.py": goodPy,
	})

	r, err := New(Config{
		Root:     root,
		Registry: registry.New(),
		Include:  []string{"**.go"},
	})
	if err != nil {
		t.Fatal(err)
	}
	idx, err := r.Index(context.Background())
	if err != nil {
		t.Fatal(err)
	}

	if _, ok := idx.Symbols["a.go"]; !ok {
		t.Error("a.go missing")
	}
	if _, ok := idx.Symbols["b.py"]; ok {
		t.Error("b.py analyzed despite include filter")
	}
}

func TestIndexRespectsGitignore(t *testing.T) {
	root := writeTree(t, map[string]string{
		".gitignore":   "ignored/\n*.gen.go\n",
		"a.go":         goodGo,
		"b.gen.go":     goodGo,
		"ignored/c.go": goodGo,
	})

	r, err := New(Config{Root: root, Registry: registry.New(), RespectGitignore: true})
	if err != nil {
		t.Fatal(err)
	}
	idx, err := r.Index(context.Background())
	if err != nil {
		t.Fatal(err)
	}

	if _, ok := idx.Symbols["a.go"]; !ok {
		t.Error("a.go missing")
	}
	for _, banned := range []string{"b.gen.go", "ignored/c.go"} {
		if _, ok := idx.Symbols[banned]; ok {
			t.Errorf("gitignored file %s was analyzed", banned)
		}
	}
}

func TestIndexMaxFileSize(t *testing.T) {
	big := "package demo\n\n// " + strings.Repeat("x", 4096) + "\nfunc Big() {}\n"
	root := writeTree(t, map[string]string{
		"small.go": goodGo,
		"big.go":   big,
	})

	r, err := New(Config{Root: root, Registry: registry.New(), MaxFileSize: 1024})
	if err != nil {
		t.Fatal(err)
	}
	idx, err := r.Index(context.Background())
	if err != nil {
		t.Fatal(err)
	}

	if _, ok := idx.Symbols["big.go"]; ok {
		t.Error("oversized file was analyzed")
	}
	if idx.Report.Skipped != 1 {
		t.Errorf("skipped = %d, want 1", idx.Report.Skipped)
	}
}

func TestIndexProgress(t *testing.T) {
	root := writeTree(t, map[string]string{
		"a.go": goodGo,
		"b.go": goodGo,
	})

	var final types.ScanProgress
	r, err := New(Config{
		Root:     root,
		Registry: registry.New(),
		Workers:  1,
		OnProgress: func(p types.ScanProgress) {
			if p.ProcessedFiles > final.ProcessedFiles {
				final = p
			}
		},
	})
	if err != nil {
		t.Fatal(err)
	}
	if _, err := r.Index(context.Background()); err != nil {
		t.Fatal(err)
	}

	if final.ProcessedFiles != 2 || final.TotalFiles != 2 {
		t.Errorf("final progress = %+v, want 2/2", final)
	}
}

func TestNewRejectsBadRoot(t *testing.T) {
	if _, err := New(Config{Root: filepath.Join(t.TempDir(), "missing")}); err == nil {
		t.Error("New() accepted a missing root")
	}

	file := filepath.Join(t.TempDir(), "f.txt")
	if err := os.WriteFile(file, []byte("x"), 0o644); err != nil {
		t.Fatal(err)
	}
	var verr *types.ValidationError
	if _, err := New(Config{Root: file}); !errors.As(err, &verr) {
		t.Errorf("New(file root) error = %v, want ValidationError", err)
	}
}

func TestNewRejectsBadGlob(t *testing.T) {
	var verr *types.ValidationError
	_, err := New(Config{Root: t.TempDir(), Exclude: []string{"[unclosed"}})
	if !errors.As(err, &verr) {
		t.Errorf("New(bad glob) error = %v, want ValidationError", err)
	}
}
