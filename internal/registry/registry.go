// Package registry maintains the table of supported languages: extensions,
// ordered query sources, and search directories for plugin query documents.
package registry

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"

	"github.com/AlanVerbner/kit/pkg/types"
)

// QuerySource is one structural-query document bound to a language.
// Immutable once loaded; replacing it means appending a new source.
type QuerySource struct {
	Origin  string // Path or label identifying where the document came from
	Content []byte
}

// Hash returns a content hash used for matcher-cache keys.
func (s QuerySource) Hash() string {
	h := sha256.Sum256(s.Content)
	return hex.EncodeToString(h[:])
}

// LanguageDefinition describes one supported language.
type LanguageDefinition struct {
	Name        string
	Extensions  []string
	Sources     []QuerySource // Registration order, load-bearing for output order
	SearchDirs  []string      // Priority order for relative query references
	GrammarName string        // Grammar identifier; empty means Name
}

// Grammar returns the grammar identifier the definition parses with.
func (d *LanguageDefinition) Grammar() string {
	if d.GrammarName != "" {
		return d.GrammarName
	}
	return d.Name
}

func (d *LanguageDefinition) clone() *LanguageDefinition {
	c := &LanguageDefinition{Name: d.Name, GrammarName: d.GrammarName}
	c.Extensions = append(c.Extensions, d.Extensions...)
	c.Sources = append(c.Sources, d.Sources...)
	c.SearchDirs = append(c.SearchDirs, d.SearchDirs...)
	return c
}

// Registry is the table of Language Definitions. Mutations are serialized;
// reads may run with unlimited parallelism. Construct isolated instances
// with New for tests, or use Default for convenience call sites.
type Registry struct {
	mu          sync.RWMutex
	languages   map[string]*LanguageDefinition
	extensions  map[string]string // ".py" -> "python"
	generations map[string]uint64
}

// New creates a registry populated with the built-in languages.
func New() *Registry {
	r := &Registry{
		languages:   builtinDefinitions(),
		extensions:  make(map[string]string),
		generations: make(map[string]uint64),
	}
	for name, def := range r.languages {
		for _, ext := range def.Extensions {
			r.extensions[ext] = name
		}
	}
	return r
}

var (
	defaultOnce     sync.Once
	defaultRegistry *Registry
)

// Default returns the shared process-wide registry.
func Default() *Registry {
	defaultOnce.Do(func() {
		defaultRegistry = New()
	})
	return defaultRegistry
}

// RegisterOption configures a RegisterLanguage call.
type RegisterOption func(*registerOptions)

type registerOptions struct {
	searchDirs        []string
	grammarName       string
	overrideExtension bool
}

// WithGrammarName binds the registration to an existing grammar identifier
// instead of the language's own name. Useful for dialects and custom file
// types that reuse a stock grammar.
func WithGrammarName(grammar string) RegisterOption {
	return func(o *registerOptions) {
		o.grammarName = grammar
	}
}

// WithSearchDirs sets the ordered directories searched when a query source
// is referenced by a relative path. Earlier directories win.
func WithSearchDirs(dirs ...string) RegisterOption {
	return func(o *registerOptions) {
		o.searchDirs = append(o.searchDirs, dirs...)
	}
}

// WithExtensionOverride allows the registration to claim an extension that
// already belongs to another language. Without it such a registration fails.
func WithExtensionOverride() RegisterOption {
	return func(o *registerOptions) {
		o.overrideExtension = true
	}
}

// RegisterLanguage creates a Language Definition, or appends to an existing
// one when name is already registered. Extensions must be non-empty and each
// must begin with a dot.
func (r *Registry) RegisterLanguage(name string, extensions []string, sources []QuerySource, opts ...RegisterOption) error {
	var o registerOptions
	for _, opt := range opts {
		opt(&o)
	}

	if name == "" {
		return &types.ValidationError{Msg: "language name must not be empty"}
	}
	if len(extensions) == 0 {
		return &types.ValidationError{Msg: fmt.Sprintf("language %q: extensions must not be empty", name)}
	}
	for _, ext := range extensions {
		if !strings.HasPrefix(ext, ".") {
			return &types.ValidationError{Msg: fmt.Sprintf("language %q: extension %q must start with a dot", name, ext)}
		}
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	// Validate extension claims before touching any state so a failed call
	// leaves the registry unchanged.
	for _, ext := range extensions {
		owner, claimed := r.extensions[ext]
		if claimed && owner != name && !o.overrideExtension {
			return &types.ValidationError{
				Msg: fmt.Sprintf("extension %q already claimed by language %q", ext, owner),
			}
		}
	}

	def, exists := r.languages[name]
	if !exists {
		def = &LanguageDefinition{Name: name, GrammarName: o.grammarName}
		r.languages[name] = def
	} else if o.grammarName != "" {
		def.GrammarName = o.grammarName
	}
	for _, ext := range extensions {
		owner, claimed := r.extensions[ext]
		if claimed && owner == name {
			continue
		}
		if claimed {
			// Override: the previous owner no longer matches this extension.
			if prev := r.languages[owner]; prev != nil {
				prev.Extensions = removeString(prev.Extensions, ext)
				r.generations[owner]++
			}
		}
		r.extensions[ext] = name
		def.Extensions = append(def.Extensions, ext)
	}
	def.Sources = append(def.Sources, sources...)
	def.SearchDirs = append(def.SearchDirs, o.searchDirs...)

	r.generations[name]++
	return nil
}

func removeString(s []string, v string) []string {
	out := s[:0]
	for _, e := range s {
		if e != v {
			out = append(out, e)
		}
	}
	return out
}

// ExtendLanguage appends one query source to an existing language.
func (r *Registry) ExtendLanguage(name string, source QuerySource) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	def, ok := r.languages[name]
	if !ok {
		return &types.NotFoundError{Kind: "language", Name: name}
	}
	def.Sources = append(def.Sources, source)
	r.generations[name]++
	return nil
}

// ExtendLanguageFromFile resolves ref against the language's search
// directories (absolute paths load directly) and appends the document found.
func (r *Registry) ExtendLanguageFromFile(name, ref string) error {
	source, err := r.ResolveSource(name, ref)
	if err != nil {
		return err
	}
	return r.ExtendLanguage(name, source)
}

// ResolveSource loads a query document by reference. Absolute references are
// read directly; relative ones are searched through the language's search
// directories in priority order, first hit winning.
func (r *Registry) ResolveSource(name, ref string) (QuerySource, error) {
	if filepath.IsAbs(ref) {
		content, err := os.ReadFile(ref)
		if err != nil {
			return QuerySource{}, &types.NotFoundError{Kind: "query source", Name: ref}
		}
		return QuerySource{Origin: ref, Content: content}, nil
	}

	r.mu.RLock()
	def, ok := r.languages[name]
	var dirs []string
	if ok {
		dirs = append(dirs, def.SearchDirs...)
	}
	r.mu.RUnlock()

	if !ok {
		return QuerySource{}, &types.NotFoundError{Kind: "language", Name: name}
	}
	for _, dir := range dirs {
		path := filepath.Join(dir, ref)
		content, err := os.ReadFile(path)
		if err == nil {
			return QuerySource{Origin: path, Content: content}, nil
		}
	}
	return QuerySource{}, &types.NotFoundError{Kind: "query source", Name: ref}
}

// ListSupportedLanguages returns a snapshot of language names to extensions.
func (r *Registry) ListSupportedLanguages() map[string][]string {
	r.mu.RLock()
	defer r.mu.RUnlock()

	out := make(map[string][]string, len(r.languages))
	for name, def := range r.languages {
		exts := make([]string, len(def.Extensions))
		copy(exts, def.Extensions)
		out[name] = exts
	}
	return out
}

// LanguageForExtension returns the language claiming ext, if any.
func (r *Registry) LanguageForExtension(ext string) (string, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	name, ok := r.extensions[ext]
	return name, ok
}

// Definition returns a copy of the named Language Definition.
func (r *Registry) Definition(name string) (*LanguageDefinition, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	def, ok := r.languages[name]
	if !ok {
		return nil, &types.NotFoundError{Kind: "language", Name: name}
	}
	return def.clone(), nil
}

// Sources returns a snapshot of the ordered query sources for a language.
func (r *Registry) Sources(name string) ([]QuerySource, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	def, ok := r.languages[name]
	if !ok {
		return nil, &types.NotFoundError{Kind: "language", Name: name}
	}
	sources := make([]QuerySource, len(def.Sources))
	copy(sources, def.Sources)
	return sources, nil
}

// GrammarName returns the grammar identifier for a language, falling back
// to the language's own name for unknown languages.
func (r *Registry) GrammarName(name string) string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	if def, ok := r.languages[name]; ok {
		return def.Grammar()
	}
	return name
}

// Generation returns a counter bumped on every mutation affecting name.
// Cached artifacts derived from the source list key on it for invalidation.
func (r *Registry) Generation(name string) uint64 {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.generations[name]
}

// ResetPlugins discards all registrations and extensions made after process
// start, restoring the built-in defaults. Matchers cached against prior
// generations become unreachable.
func (r *Registry) ResetPlugins() {
	r.mu.Lock()
	defer r.mu.Unlock()

	r.languages = builtinDefinitions()
	r.extensions = make(map[string]string)
	for name, def := range r.languages {
		for _, ext := range def.Extensions {
			r.extensions[ext] = name
		}
	}
	for name := range r.generations {
		r.generations[name]++
	}
}
