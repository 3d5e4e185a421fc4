package compiler

import (
	"fmt"
	"sort"
	"strings"

	"github.com/roach88/vdb/internal/ast"
	"github.com/roach88/vdb/internal/dom"
	"github.com/roach88/vdb/internal/engine"
)

// CycleWarning represents a feedback loop between bindings.
//
// Loops are warnings, not errors, because two-way bindings are usually
// intentional and settle once both ends hold equal values.
type CycleWarning struct {
	Path    []string `json:"path"`    // Cycle path: ["$:name", "value@input", "$:name"]
	Message string   `json:"message"` // Human-readable description
	Level   string   `json:"level"`   // "warning" or "info"
}

// AnalyzeCycles performs static cycle analysis on the bindings of tree.
//
// Every binding contributes an edge from its source endpoint to its sink
// endpoint; every region contributes an edge from its source slot to its
// entry slot. Endpoints are identified coarsely:
//   - scope endpoints by slot id ("@:items")
//   - namespaced adapter endpoints by namespace and id ("$:items")
//   - bare view adapters by adapter and element ("text@item")
//
// Paths below the id are ignored, so bindings on disjoint sub-paths of one
// slot share a node.
//
// A graph without cycles returns an empty warning list.
func AnalyzeCycles(tree *engine.Node, prefix string) []CycleWarning {
	graph := make(dependencyGraph)
	buildDependencyGraph(tree, prefix, graph)
	if len(graph) == 0 {
		return []CycleWarning{}
	}

	sccs := tarjanSCC(graph)

	warnings := []CycleWarning{}
	for _, scc := range sccs {
		if len(scc) > 1 || (len(scc) == 1 && hasSelfLoop(scc[0], graph)) {
			warnings = append(warnings, cycleSCCToWarning(scc, graph))
		}
	}
	sort.Slice(warnings, func(i, j int) bool {
		return strings.Join(warnings[i].Path, " ") < strings.Join(warnings[j].Path, " ")
	})
	return warnings
}

// dependencyGraph maps endpoint → endpoints it writes to.
type dependencyGraph map[string][]string

func (g dependencyGraph) edge(from, to string) {
	if g[to] == nil {
		g[to] = []string{}
	}
	g[from] = append(g[from], to)
}

func buildDependencyGraph(n *engine.Node, prefix string, graph dependencyGraph) {
	if n.SourceID != "" && n.EntryID != "" {
		graph.edge(prefix+":"+n.SourceID, prefix+":"+n.EntryID)
	}
	for _, scope := range n.Spec.All() {
		for _, b := range scope.Bindings {
			source, sink := b.Left, b.Right
			if b.Op == ast.OpLeft {
				source, sink = sink, source
			}
			graph.edge(endpointName(source, scope.Element), endpointName(sink, scope.Element))
		}
	}
	for _, c := range n.Children {
		buildDependencyGraph(c, prefix, graph)
	}
}

func endpointName(v ast.Variable, el *dom.Node) string {
	if v.NS != "" {
		return v.NS + ":" + v.ID
	}
	if el != nil && el.ID != "" {
		return v.ID + "@" + el.ID
	}
	return v.ID
}

// hasSelfLoop checks if a node has an edge to itself.
func hasSelfLoop(node string, graph dependencyGraph) bool {
	for _, neighbor := range graph[node] {
		if neighbor == node {
			return true
		}
	}
	return false
}

// tarjanSCC finds strongly connected components using Tarjan's algorithm.
//
// Returns a list of SCCs, where each SCC is a list of endpoints.
// Single-node SCCs without self-loops are NOT cycles.
func tarjanSCC(graph dependencyGraph) [][]string {
	var (
		index   = 0
		stack   []string
		indices = make(map[string]int)
		lowlink = make(map[string]int)
		onStack = make(map[string]bool)
		sccs    [][]string
	)

	var strongConnect func(string)
	strongConnect = func(v string) {
		indices[v] = index
		lowlink[v] = index
		index++
		stack = append(stack, v)
		onStack[v] = true

		for _, w := range graph[v] {
			if _, visited := indices[w]; !visited {
				strongConnect(w)
				lowlink[v] = min(lowlink[v], lowlink[w])
			} else if onStack[w] {
				lowlink[v] = min(lowlink[v], indices[w])
			}
		}

		if lowlink[v] == indices[v] {
			var scc []string
			for {
				w := stack[len(stack)-1]
				stack = stack[:len(stack)-1]
				onStack[w] = false
				scc = append(scc, w)
				if w == v {
					break
				}
			}
			sccs = append(sccs, scc)
		}
	}

	// Visit in sorted order so the reported cycle paths are stable.
	nodes := make([]string, 0, len(graph))
	for node := range graph {
		nodes = append(nodes, node)
	}
	sort.Strings(nodes)
	for _, node := range nodes {
		if _, visited := indices[node]; !visited {
			strongConnect(node)
		}
	}

	return sccs
}

// cycleSCCToWarning converts an SCC to a CycleWarning.
func cycleSCCToWarning(scc []string, graph dependencyGraph) CycleWarning {
	if len(scc) == 1 {
		node := scc[0]
		return CycleWarning{
			Path:    []string{node, node},
			Message: fmt.Sprintf("Self-feeding binding detected: %s → %s", node, node),
			Level:   "warning",
		}
	}

	path := reconstructCyclePath(scc, graph)
	return CycleWarning{
		Path:    path,
		Message: fmt.Sprintf("Feedback loop detected: %s", strings.Join(path, " → ")),
		Level:   "warning",
	}
}

// reconstructCyclePath builds a cycle path from an SCC, starting at its
// smallest member and following edges inside the SCC back to the start.
func reconstructCyclePath(scc []string, graph dependencyGraph) []string {
	if len(scc) == 0 {
		return []string{}
	}

	sccSet := make(map[string]bool)
	for _, node := range scc {
		sccSet[node] = true
	}

	start := scc[0]
	for _, node := range scc {
		if node < start {
			start = node
		}
	}
	current := start
	path := []string{current}
	visited := make(map[string]bool)

	for {
		visited[current] = true

		var next string
		for _, neighbor := range graph[current] {
			if sccSet[neighbor] && (!visited[neighbor] || neighbor == start) {
				next = neighbor
				break
			}
		}
		if next == "" {
			break
		}

		path = append(path, next)
		if next == start {
			break
		}
		current = next
	}

	return path
}
