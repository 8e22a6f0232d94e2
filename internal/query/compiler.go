// Package query compiles structural-query documents into executable matchers
// and caches the result per language.
package query

import (
	"errors"
	"strings"

	sitter "github.com/smacker/go-tree-sitter"

	"github.com/AlanVerbner/kit/internal/grammar"
	"github.com/AlanVerbner/kit/internal/registry"
	"github.com/AlanVerbner/kit/pkg/types"
)

// Matcher is one compiled query document. The underlying query is safe to
// share across goroutines.
type Matcher struct {
	Origin string
	Query  *sitter.Query
}

// Matchers is the compiled pattern set for one language. Matchers appear in
// source-registration order; Errors collects per-source compile failures. A
// broken source never prevents its siblings from compiling.
type Matchers struct {
	Language string
	List     []*Matcher
	Errors   []error
}

// compile builds matchers for every source independently against the named
// grammar. Compile failures become QueryError values carrying the offending
// document's origin and position, collected rather than thrown.
func compile(language, grammarName string, sources []registry.QuerySource) (*Matchers, error) {
	lang, err := grammar.Get(grammarName)
	if err != nil {
		return nil, err
	}

	m := &Matchers{Language: language}
	for _, src := range sources {
		q, err := sitter.NewQuery(src.Content, lang)
		if err != nil {
			m.Errors = append(m.Errors, toQueryError(src.Origin, src.Content, err))
			continue
		}
		m.List = append(m.List, &Matcher{Origin: src.Origin, Query: q})
	}
	return m, nil
}

// toQueryError converts a tree-sitter compile error into the typed taxonomy.
// The binding only reports a byte offset, so line and column are recovered
// from the document content.
func toQueryError(origin string, content []byte, err error) error {
	var qe *sitter.QueryError
	if errors.As(err, &qe) {
		line, col := positionAt(content, qe.Offset)
		return &types.QueryError{
			Origin: origin,
			Line:   line,
			Col:    col,
			Msg:    strings.TrimSpace(qe.Message),
		}
	}
	return &types.QueryError{Origin: origin, Msg: err.Error()}
}

// positionAt maps a byte offset into 0-indexed line and column numbers.
// Offsets past the end of content land on its final position.
func positionAt(content []byte, offset uint32) (line, col int) {
	end := int(offset)
	if end > len(content) {
		end = len(content)
	}
	for _, b := range content[:end] {
		if b == '\n' {
			line++
			col = 0
		} else {
			col++
		}
	}
	return line, col
}
