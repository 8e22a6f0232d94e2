// Package extract runs compiled matchers over parsed trees and normalizes
// the raw captures into ordered symbols.
package extract

import (
	"strings"

	sitter "github.com/smacker/go-tree-sitter"

	"github.com/AlanVerbner/kit/internal/grammar"
	"github.com/AlanVerbner/kit/internal/query"
	"github.com/AlanVerbner/kit/pkg/types"
)

// RawCapture is one named binding from a matched pattern.
type RawCapture struct {
	Tag  string
	Node *sitter.Node
}

// RawMatch groups the captures of one pattern match.
type RawMatch struct {
	Captures []RawCapture
}

// Match runs every matcher in source-registration order and collects raw
// matches. Within one matcher, matches arrive in tree traversal order.
// Pattern predicates act as filters: a match failing its predicate is
// discarded, never reported as an error. Match mutates nothing and is safe
// to call concurrently for different files.
func Match(matchers *query.Matchers, root *sitter.Node, source []byte) []RawMatch {
	var out []RawMatch

	for _, m := range matchers.List {
		qc := sitter.NewQueryCursor()
		qc.Exec(m.Query, root)

		for {
			match, ok := qc.NextMatch()
			if !ok {
				break
			}
			match = qc.FilterPredicates(match, source)
			if len(match.Captures) == 0 {
				continue
			}

			raw := RawMatch{Captures: make([]RawCapture, 0, len(match.Captures))}
			for _, c := range match.Captures {
				raw.Captures = append(raw.Captures, RawCapture{
					Tag:  m.Query.CaptureNameForId(c.Index),
					Node: c.Node,
				})
			}
			out = append(out, raw)
		}
		qc.Close()
	}
	return out
}

// Normalize converts raw matches into symbols. A capture tagged
// definition.<type> or definition.<type>.<subtype> becomes one symbol; any
// other tag shape is informational and dropped. Overlapping or identical
// symbols from different patterns are all kept, in match order.
func Normalize(matches []RawMatch, source []byte) []types.Symbol {
	var symbols []types.Symbol

	for _, match := range matches {
		name := ""
		for _, c := range match.Captures {
			if c.Tag == "name" {
				name = grammar.NodeText(c.Node, source)
				break
			}
		}

		for _, c := range match.Captures {
			symType, subtype, ok := parseTag(c.Tag)
			if !ok {
				continue
			}
			symbols = append(symbols, types.Symbol{
				Name:      symbolName(name, c.Node, source),
				Type:      symType,
				Subtype:   subtype,
				StartLine: int(c.Node.StartPoint().Row),
				EndLine:   int(c.Node.EndPoint().Row),
				Code:      grammar.NodeText(c.Node, source),
			})
		}
	}
	return symbols
}

// Symbols is the combined pass: match then normalize.
func Symbols(matchers *query.Matchers, root *sitter.Node, source []byte) []types.Symbol {
	return Normalize(Match(matchers, root, source), source)
}

// parseTag maps definition.<type>[.<subtype>] to its parts. Anything else,
// including deeper nesting, is rejected.
func parseTag(tag string) (symType, subtype string, ok bool) {
	parts := strings.Split(tag, ".")
	if parts[0] != "definition" {
		return "", "", false
	}
	switch len(parts) {
	case 2:
		return parts[1], "", parts[1] != ""
	case 3:
		return parts[1], parts[2], parts[1] != "" && parts[2] != ""
	default:
		return "", "", false
	}
}

// symbolName prefers the @name capture; without one it falls back to the
// first line of the node's own text.
func symbolName(name string, node *sitter.Node, source []byte) string {
	if name != "" {
		return strings.Trim(name, `"'`)
	}
	text := grammar.NodeText(node, source)
	if i := strings.IndexByte(text, '\n'); i >= 0 {
		text = text[:i]
	}
	return strings.TrimSpace(text)
}
