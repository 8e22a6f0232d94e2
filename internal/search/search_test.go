package search

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"testing"

	"github.com/AlanVerbner/kit/internal/registry"
	"github.com/AlanVerbner/kit/internal/repo"
	"github.com/AlanVerbner/kit/pkg/types"
)

func newEngine(t *testing.T, files map[string]string) *Engine {
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
	r, err := repo.New(repo.Config{Root: root, Registry: registry.New()})
	if err != nil {
		t.Fatal(err)
	}
	return New(r)
}

func TestSearch(t *testing.T) {
	eng := newEngine(t, map[string]string{
		"a.go": "package demo\n\nfunc Handler() {}\n",
		"b.go": "package demo\n\n// handler docs\nfunc helper() {}\n",
		"c.py": "def handler():\n    pass\n",
	})

	results, err := eng.Search(context.Background(), "handler", Options{})
	if err != nil {
		t.Fatal(err)
	}
	if len(results) != 3 {
		t.Fatalf("got %d results, want 3 (case-insensitive): %+v", len(results), results)
	}

	results, err = eng.Search(context.Background(), "Handler", Options{CaseSensitive: true})
	if err != nil {
		t.Fatal(err)
	}
	if len(results) != 1 {
		t.Fatalf("case-sensitive got %d results, want 1", len(results))
	}
	if results[0].File != "a.go" || results[0].Line != 2 {
		t.Errorf("result = %s:%d, want a.go:2", results[0].File, results[0].Line)
	}
}

func TestSearchRegex(t *testing.T) {
	eng := newEngine(t, map[string]string{
		"a.go": "package demo\n\nfunc Alpha() {}\n\nfunc Beta() {}\n",
	})

	results, err := eng.Search(context.Background(), `func \w+\(\)`, Options{CaseSensitive: true})
	if err != nil {
		t.Fatal(err)
	}
	if len(results) != 2 {
		t.Errorf("got %d results, want 2", len(results))
	}
}

func TestSearchLiteral(t *testing.T) {
	eng := newEngine(t, map[string]string{
		"a.go": "x := a.(*T)\ny := 1\n",
	})

	if _, err := eng.Search(context.Background(), "a.(*T)", Options{CaseSensitive: true}); err == nil {
		t.Error("unescaped regex metacharacters compiled without error")
	}

	results, err := eng.Search(context.Background(), "a.(*T)", Options{Literal: true})
	if err != nil {
		t.Fatal(err)
	}
	if len(results) != 1 || results[0].Line != 0 {
		t.Errorf("literal search results = %+v", results)
	}
}

func TestSearchFilePattern(t *testing.T) {
	eng := newEngine(t, map[string]string{
		"a.go": "needle\n",
		"b.py": "needle\n",
	})

	results, err := eng.Search(context.Background(), "needle", Options{FilePattern: "*.py"})
	if err != nil {
		t.Fatal(err)
	}
	if len(results) != 1 || results[0].File != "b.py" {
		t.Errorf("results = %+v, want only b.py", results)
	}
}

func TestSearchMaxResults(t *testing.T) {
	eng := newEngine(t, map[string]string{
		"a.txt": "hit\nhit\nhit\nhit\nhit\n",
	})

	results, err := eng.Search(context.Background(), "hit", Options{MaxResults: 2})
	if err != nil {
		t.Fatal(err)
	}
	if len(results) != 2 {
		t.Errorf("got %d results, want max 2", len(results))
	}
}

func TestSearchContextLines(t *testing.T) {
	eng := newEngine(t, map[string]string{
		"a.txt": "one\ntwo\nneedle\nfour\nfive\n",
	})

	results, err := eng.Search(context.Background(), "needle", Options{ContextLines: 1})
	if err != nil {
		t.Fatal(err)
	}
	if len(results) != 1 {
		t.Fatal("no result")
	}
	want := []string{"two", "needle", "four"}
	got := results[0].Context
	if len(got) != len(want) {
		t.Fatalf("context = %v, want %v", got, want)
	}
	for i := range want {
		if got[i] != want[i] {
			t.Errorf("context[%d] = %q, want %q", i, got[i], want[i])
		}
	}
}

func TestSearchBadPattern(t *testing.T) {
	eng := newEngine(t, map[string]string{"a.txt": "x\n"})

	var verr *types.ValidationError
	_, err := eng.Search(context.Background(), "([unclosed", Options{})
	if !errors.As(err, &verr) {
		t.Errorf("Search(bad pattern) error = %v, want ValidationError", err)
	}
}

func TestInvalidateDropsCachedLines(t *testing.T) {
	root := t.TempDir()
	path := filepath.Join(root, "a.txt")
	if err := os.WriteFile(path, []byte("old\n"), 0o644); err != nil {
		t.Fatal(err)
	}
	r, err := repo.New(repo.Config{Root: root, Registry: registry.New()})
	if err != nil {
		t.Fatal(err)
	}
	eng := New(r)

	if _, err := eng.Search(context.Background(), "old", Options{}); err != nil {
		t.Fatal(err)
	}
	if err := os.WriteFile(path, []byte("new\n"), 0o644); err != nil {
		t.Fatal(err)
	}

	// Cached lines still serve the old content until invalidated.
	results, err := eng.Search(context.Background(), "new", Options{})
	if err != nil {
		t.Fatal(err)
	}
	if len(results) != 0 {
		t.Fatal("cache was bypassed, cannot verify invalidation")
	}

	eng.Invalidate("a.txt")
	results, err = eng.Search(context.Background(), "new", Options{})
	if err != nil {
		t.Fatal(err)
	}
	if len(results) != 1 {
		t.Errorf("results after Invalidate = %d, want 1", len(results))
	}
}

func TestPurgeDropsAllCachedLines(t *testing.T) {
	root := t.TempDir()
	for _, name := range []string{"a.go", "b.go"} {
		path := filepath.Join(root, name)
		if err := os.WriteFile(path, []byte("package demo\n\nfunc Alpha() {}\n"), 0o644); err != nil {
			t.Fatal(err)
		}
	}
	r, err := repo.New(repo.Config{Root: root, Registry: registry.New()})
	if err != nil {
		t.Fatal(err)
	}
	eng := New(r)

	results, err := eng.Search(context.Background(), "Alpha", Options{})
	if err != nil {
		t.Fatal(err)
	}
	if len(results) != 2 {
		t.Fatalf("results = %d, want 2", len(results))
	}

	for _, name := range []string{"a.go", "b.go"} {
		path := filepath.Join(root, name)
		if err := os.WriteFile(path, []byte("package demo\n\nfunc Beta() {}\n"), 0o644); err != nil {
			t.Fatal(err)
		}
	}

	eng.Purge()
	results, err = eng.Search(context.Background(), "Alpha", Options{})
	if err != nil {
		t.Fatal(err)
	}
	if len(results) != 0 {
		t.Errorf("stale results after Purge = %d, want 0", len(results))
	}
}

func TestUsagesMergesTextMentions(t *testing.T) {
	root := t.TempDir()
	files := map[string]string{
		"a.go": "package demo\n\nfunc Shared() {}\n",
		"b.go": "package demo\n\nfunc caller() {\n\tShared()\n}\n",
	}
	for rel, content := range files {
		if err := os.WriteFile(filepath.Join(root, rel), []byte(content), 0o644); err != nil {
			t.Fatal(err)
		}
	}
	r, err := repo.New(repo.Config{Root: root, Registry: registry.New()})
	if err != nil {
		t.Fatal(err)
	}
	idx, err := r.Index(context.Background())
	if err != nil {
		t.Fatal(err)
	}
	eng := New(r)

	usages, err := eng.Usages(context.Background(), idx, "Shared", "")
	if err != nil {
		t.Fatal(err)
	}
	// One definition plus two textual mentions, the definition line included.
	if len(usages) != 3 {
		t.Fatalf("usages = %d, want 3: %+v", len(usages), usages)
	}
	if usages[0].Type != "function" || usages[0].File != "a.go" {
		t.Errorf("first usage = %+v, want the a.go definition", usages[0])
	}
	foundCall := false
	for _, u := range usages[1:] {
		if u.Type != "" {
			t.Errorf("mention carries type %q", u.Type)
		}
		if u.File == "b.go" && u.Line == 3 && u.Context == "Shared()" {
			foundCall = true
		}
	}
	if !foundCall {
		t.Errorf("call site mention missing: %+v", usages)
	}
}

func TestContextAroundLineWithSymbols(t *testing.T) {
	eng := newEngine(t, map[string]string{"a.go": "package demo\n"})

	symbols := []types.Symbol{
		{Name: "Outer", Type: "class", StartLine: 0, EndLine: 20, Code: "outer body"},
		{Name: "Inner", Type: "method", StartLine: 4, EndLine: 8, Code: "inner body"},
	}

	c, err := eng.ContextAroundLine("a.go", 6, symbols)
	if err != nil {
		t.Fatal(err)
	}
	if c.Name != "Inner" || c.Type != types.ChunkTypeSymbol {
		t.Errorf("chunk = %q/%s, want innermost symbol Inner", c.Name, c.Type)
	}

	c, err = eng.ContextAroundLine("a.go", 15, symbols)
	if err != nil {
		t.Fatal(err)
	}
	if c.Name != "Outer" {
		t.Errorf("chunk = %q, want Outer", c.Name)
	}
}

func TestContextAroundLineFallbackWindow(t *testing.T) {
	eng := newEngine(t, map[string]string{
		"a.txt": "0\n1\n2\n3\n4\n5\n6\n7\n8\n9\n10\n11\n",
	})

	c, err := eng.ContextAroundLine("a.txt", 6, nil)
	if err != nil {
		t.Fatal(err)
	}
	if c.Type != types.ChunkTypeLines || c.StartLine != 1 || c.EndLine != 11 {
		t.Errorf("chunk = %s [%d,%d], want lines [1,11]", c.Type, c.StartLine, c.EndLine)
	}

	c, err = eng.ContextAroundLine("a.txt", 1, nil)
	if err != nil {
		t.Fatal(err)
	}
	if c.StartLine != 0 {
		t.Errorf("window start = %d, want clamped to 0", c.StartLine)
	}

	if _, err := eng.ContextAroundLine("a.txt", 99, nil); err == nil {
		t.Error("out-of-range line accepted")
	}
}
