package query

import (
	"errors"
	"testing"

	"github.com/AlanVerbner/kit/internal/registry"
	"github.com/AlanVerbner/kit/pkg/types"
)

func TestGetBuiltin(t *testing.T) {
	cache := NewCache(registry.New())

	for _, lang := range []string{"go", "python", "javascript", "rust"} {
		t.Run(lang, func(t *testing.T) {
			m, err := cache.Get(lang)
			if err != nil {
				t.Fatalf("Get(%s) error = %v", lang, err)
			}
			if len(m.List) == 0 {
				t.Fatalf("Get(%s) compiled no matchers", lang)
			}
			if len(m.Errors) != 0 {
				t.Errorf("Get(%s) errors = %v, want none", lang, m.Errors)
			}
		})
	}
}

func TestGetUnknownLanguage(t *testing.T) {
	cache := NewCache(registry.New())
	if _, err := cache.Get("cobol"); !errors.Is(err, types.ErrNotFound) {
		t.Errorf("Get(cobol) error = %v, want ErrNotFound", err)
	}
}

func TestMalformedSourceDoesNotPoisonSiblings(t *testing.T) {
	reg := registry.New()
	if err := reg.ExtendLanguage("go", registry.QuerySource{
		Origin:  "broken.scm",
		Content: []byte("(this_node_does_not_exist) @definition.nope"),
	}); err != nil {
		t.Fatal(err)
	}

	cache := NewCache(reg)
	m, err := cache.Get("go")
	if err != nil {
		t.Fatalf("Get() error = %v", err)
	}
	if len(m.List) == 0 {
		t.Fatal("builtin matcher was lost to a broken sibling")
	}
	if len(m.Errors) != 1 {
		t.Fatalf("errors = %d, want 1", len(m.Errors))
	}

	var qerr *types.QueryError
	if !errors.As(m.Errors[0], &qerr) {
		t.Fatalf("error type = %T, want *types.QueryError", m.Errors[0])
	}
	if qerr.Origin != "broken.scm" {
		t.Errorf("error origin = %q, want broken.scm", qerr.Origin)
	}
}

func TestCacheReusesCompiledMatchers(t *testing.T) {
	cache := NewCache(registry.New())

	first, err := cache.Get("go")
	if err != nil {
		t.Fatal(err)
	}
	second, err := cache.Get("go")
	if err != nil {
		t.Fatal(err)
	}
	if first != second {
		t.Error("second Get recompiled instead of hitting the cache")
	}
}

func TestCacheInvalidatedByExtend(t *testing.T) {
	reg := registry.New()
	cache := NewCache(reg)

	before, err := cache.Get("go")
	if err != nil {
		t.Fatal(err)
	}

	err = reg.ExtendLanguage("go", registry.QuerySource{
		Origin:  "calls.scm",
		Content: []byte("(call_expression function: (identifier) @name) @reference.call"),
	})
	if err != nil {
		t.Fatal(err)
	}

	after, err := cache.Get("go")
	if err != nil {
		t.Fatal(err)
	}
	if after == before {
		t.Fatal("Get returned stale matchers after ExtendLanguage")
	}
	if len(after.List) != len(before.List)+1 {
		t.Errorf("matchers = %d, want %d", len(after.List), len(before.List)+1)
	}
}

func TestResetPluginsRestoresBuiltinMatchers(t *testing.T) {
	reg := registry.New()
	cache := NewCache(reg)

	baseline, err := cache.Get("go")
	if err != nil {
		t.Fatal(err)
	}

	err = reg.ExtendLanguage("go", registry.QuerySource{
		Origin:  "extra.scm",
		Content: []byte("(call_expression function: (identifier) @name) @reference.call"),
	})
	if err != nil {
		t.Fatal(err)
	}
	extended, err := cache.Get("go")
	if err != nil {
		t.Fatal(err)
	}
	if len(extended.List) != len(baseline.List)+1 {
		t.Fatalf("extension not picked up: %d matchers", len(extended.List))
	}

	reg.ResetPlugins()

	restored, err := cache.Get("go")
	if err != nil {
		t.Fatal(err)
	}
	if len(restored.List) != len(baseline.List) {
		t.Errorf("matchers after reset = %d, want builtin %d", len(restored.List), len(baseline.List))
	}
}

func TestAllSourcesBrokenFailsCompilation(t *testing.T) {
	reg := registry.New()
	if err := reg.RegisterLanguage("widget", []string{".widget"},
		[]registry.QuerySource{{Origin: "bad.scm", Content: []byte("((")}},
		registry.WithGrammarName("go"),
	); err != nil {
		t.Fatal(err)
	}

	cache := NewCache(reg)
	m, err := cache.Get("widget")
	if err != nil {
		t.Fatalf("Get() error = %v", err)
	}
	if len(m.List) != 0 {
		t.Errorf("compiled %d matchers from a broken document", len(m.List))
	}
	if len(m.Errors) == 0 {
		t.Error("no compile errors reported")
	}
}
