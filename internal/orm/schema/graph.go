package schema

import (
	"fmt"
	"sort"
	"strings"
)

// RelationshipGraph is the directed graph of joinable relationships between entities.
// Insert-only relationships are never joined and carry no edge.
type RelationshipGraph struct {
	nodes []string
	edges map[string][]string // table -> maps_to targets
}

// NewRelationshipGraph creates a relationship graph from a table -> entity map
func NewRelationshipGraph(entities map[string]*Entity) *RelationshipGraph {
	graph := &RelationshipGraph{
		edges: make(map[string][]string),
	}

	for name, entity := range entities {
		graph.nodes = append(graph.nodes, name)
		for _, rel := range entity.Relationships {
			if rel.InsertOnly {
				continue
			}
			graph.edges[name] = append(graph.edges[name], rel.MapsTo)
		}
	}
	sort.Strings(graph.nodes)

	return graph
}

// DetectCycles returns every cycle found by a depth-first walk from each table
func (g *RelationshipGraph) DetectCycles() [][]string {
	var cycles [][]string
	visited := make(map[string]bool)
	onPath := make(map[string]bool)

	var dfs func(node string, path []string)
	dfs = func(node string, path []string) {
		visited[node] = true
		onPath[node] = true
		path = append(path, node)

		for _, neighbor := range g.edges[node] {
			if onPath[neighbor] {
				for i, n := range path {
					if n == neighbor {
						cycle := make([]string, len(path)-i)
						copy(cycle, path[i:])
						cycles = append(cycles, cycle)
						break
					}
				}
				continue
			}
			if !visited[neighbor] {
				dfs(neighbor, path)
			}
		}

		onPath[node] = false
	}

	for _, node := range g.nodes {
		if !visited[node] {
			dfs(node, nil)
		}
	}

	return cycles
}

// Targets returns the direct join targets of a table
func (g *RelationshipGraph) Targets(table string) []string {
	targets, exists := g.edges[table]
	if !exists {
		return []string{}
	}
	return targets
}

// formatCycles formats cycle information for error messages
func formatCycles(cycles [][]string) string {
	var b strings.Builder
	for i, cycle := range cycles {
		if i > 0 {
			b.WriteString("\n")
		}
		b.WriteString(fmt.Sprintf("  Cycle %d: %s -> %s",
			i+1,
			strings.Join(cycle, " -> "),
			cycle[0]))
	}
	return b.String()
}
