// Package deps projects an import graph from the symbols in a repository
// index. Nodes are files; edges follow extracted import records. Targets
// that do not resolve to a file inside the repository stay in the graph as
// dangling external nodes so reports can split internal from external
// dependencies.
package deps

import (
	"fmt"
	"io"
	"sort"

	"github.com/dominikbraun/graph"
	"github.com/dominikbraun/graph/draw"

	"github.com/AlanVerbner/kit/internal/repo"
	"github.com/AlanVerbner/kit/pkg/types"
)

const externalPrefix = "external://"

// Graph is the projected dependency graph for one index snapshot.
type Graph struct {
	g     graph.Graph[string, string]
	edges []types.DependencyEdge
}

// Project builds the dependency graph from an already-built index. No file
// is re-scanned; only symbol records typed as imports feed the projection.
func Project(idx *repo.Index) (*Graph, error) {
	if idx == nil || idx.Symbols == nil {
		return nil, types.ErrIndexNotBuilt
	}
	g := graph.New(graph.StringHash, graph.Directed())

	files := make(map[string]struct{}, len(idx.Files))
	for _, f := range idx.Files {
		if f.IsDir {
			continue
		}
		files[f.Path] = struct{}{}
		if err := g.AddVertex(f.Path); err != nil {
			return nil, fmt.Errorf("adding vertex %s: %w", f.Path, err)
		}
	}

	dg := &Graph{g: g}
	for _, f := range idx.Files {
		if f.IsDir {
			continue
		}
		for _, sym := range idx.Symbols[f.Path] {
			if sym.Type != "import" {
				continue
			}
			target, internal := resolve(f.Path, sym.Name, files)
			if internal {
				dg.addEdge(f.Path, target, false)
			} else {
				ext := externalPrefix + target
				_ = g.AddVertex(ext)
				dg.addEdge(f.Path, ext, true)
			}
		}
	}
	return dg, nil
}

func (dg *Graph) addEdge(from, to string, external bool) {
	if from == to {
		return
	}
	if err := dg.g.AddEdge(from, to); err != nil {
		return // duplicate edge, keep the first
	}
	target := to
	if external {
		target = to[len(externalPrefix):]
	}
	dg.edges = append(dg.edges, types.DependencyEdge{From: from, To: target, External: external})
}

// Edges returns every projected edge, sorted for reproducible output.
func (dg *Graph) Edges() []types.DependencyEdge {
	out := make([]types.DependencyEdge, len(dg.edges))
	copy(out, dg.edges)
	sort.Slice(out, func(i, j int) bool {
		if out[i].From != out[j].From {
			return out[i].From < out[j].From
		}
		return out[i].To < out[j].To
	})
	return out
}

// DependenciesOf returns the direct dependencies of one file.
func (dg *Graph) DependenciesOf(path string) []types.DependencyEdge {
	var out []types.DependencyEdge
	for _, e := range dg.Edges() {
		if e.From == path {
			out = append(out, e)
		}
	}
	return out
}

// DependentsOf returns the files that import the given internal file.
func (dg *Graph) DependentsOf(path string) []string {
	var out []string
	for _, e := range dg.Edges() {
		if !e.External && e.To == path {
			out = append(out, e.From)
		}
	}
	return out
}

// Cycles returns import cycles among internal files, each cycle as an
// ordered list of paths. External nodes cannot participate in cycles since
// nothing points out of them.
func (dg *Graph) Cycles() ([][]string, error) {
	adj, err := dg.g.AdjacencyMap()
	if err != nil {
		return nil, err
	}

	nodes := make([]string, 0, len(adj))
	for n := range adj {
		nodes = append(nodes, n)
	}
	sort.Strings(nodes)

	const (
		unvisited = 0
		inStack   = 1
		done      = 2
	)
	state := make(map[string]int, len(nodes))
	var stack []string
	var cycles [][]string

	var visit func(n string)
	visit = func(n string) {
		state[n] = inStack
		stack = append(stack, n)

		targets := make([]string, 0, len(adj[n]))
		for t := range adj[n] {
			targets = append(targets, t)
		}
		sort.Strings(targets)

		for _, t := range targets {
			switch state[t] {
			case unvisited:
				visit(t)
			case inStack:
				// Slice the current stack from the first occurrence of t.
				for i, s := range stack {
					if s == t {
						cycle := make([]string, len(stack)-i)
						copy(cycle, stack[i:])
						cycles = append(cycles, cycle)
						break
					}
				}
			}
		}

		stack = stack[:len(stack)-1]
		state[n] = done
	}

	for _, n := range nodes {
		if state[n] == unvisited {
			visit(n)
		}
	}
	return cycles, nil
}

// WriteDOT renders the graph in Graphviz DOT format.
func (dg *Graph) WriteDOT(w io.Writer) error {
	return draw.DOT(dg.g, w)
}
