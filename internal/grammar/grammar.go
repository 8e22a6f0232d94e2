// Package grammar provides tree-sitter grammars and parsers per language.
package grammar

import (
	"context"
	"fmt"

	sitter "github.com/smacker/go-tree-sitter"
	"github.com/smacker/go-tree-sitter/bash"
	"github.com/smacker/go-tree-sitter/c"
	"github.com/smacker/go-tree-sitter/golang"
	"github.com/smacker/go-tree-sitter/hcl"
	"github.com/smacker/go-tree-sitter/java"
	"github.com/smacker/go-tree-sitter/javascript"
	"github.com/smacker/go-tree-sitter/python"
	"github.com/smacker/go-tree-sitter/ruby"
	"github.com/smacker/go-tree-sitter/rust"
	"github.com/smacker/go-tree-sitter/typescript/tsx"
	"github.com/smacker/go-tree-sitter/typescript/typescript"

	"github.com/AlanVerbner/kit/pkg/types"
)

var languages = map[string]*sitter.Language{
	"bash":       bash.GetLanguage(),
	"c":          c.GetLanguage(),
	"go":         golang.GetLanguage(),
	"java":       java.GetLanguage(),
	"javascript": javascript.GetLanguage(),
	"python":     python.GetLanguage(),
	"ruby":       ruby.GetLanguage(),
	"rust":       rust.GetLanguage(),
	"terraform":  hcl.GetLanguage(),
	"tsx":        tsx.GetLanguage(),
	"typescript": typescript.GetLanguage(),
}

// Get returns the tree-sitter grammar for a language identifier.
func Get(language string) (*sitter.Language, error) {
	lang, ok := languages[language]
	if !ok {
		return nil, &types.GrammarUnavailableError{Language: language}
	}
	return lang, nil
}

// Has reports whether a grammar is available for the language.
func Has(language string) bool {
	_, ok := languages[language]
	return ok
}

// NewParser creates a fresh parser for the language. Parsers are not safe
// for concurrent use; each goroutine must create its own.
func NewParser(language string) (*sitter.Parser, error) {
	lang, err := Get(language)
	if err != nil {
		return nil, err
	}
	p := sitter.NewParser()
	p.SetLanguage(lang)
	return p, nil
}

// Parse parses source into a concrete syntax tree. The caller owns the tree
// and must Close it. A tree whose root contains syntax errors is still
// returned; callers that need strict parsing check HasErrors on the root.
func Parse(ctx context.Context, language string, source []byte) (*sitter.Tree, error) {
	parser, err := NewParser(language)
	if err != nil {
		return nil, err
	}
	tree, err := parser.ParseCtx(ctx, nil, source)
	if err != nil {
		return nil, &types.ParseError{Reason: fmt.Sprintf("parser: %v", err)}
	}
	return tree, nil
}

// NodeText returns the source text of a node.
func NodeText(node *sitter.Node, source []byte) string {
	return string(source[node.StartByte():node.EndByte()])
}
