package graph

import (
	"strings"
)

// Cycle is a closed dependency chain: the last id depends on the first.
type Cycle struct {
	Path []string
	// IsTransitive is true when the chain spans three or more distinct
	// extensions; a direct A -> B -> A pair (or a self-dependency) is not.
	IsTransitive bool
}

func (c Cycle) String() string {
	if len(c.Path) == 0 {
		return ""
	}
	return strings.Join(c.Path, " -> ") + " -> " + c.Path[0]
}

// DetectCycles returns every elementary cycle of g, each once.
//
// Strongly connected components are found first; a cycle never leaves its
// component. Each cycle is then enumerated from its smallest id, walking only
// larger ids of the same component, so a loop reached over several routes
// (a -> b -> c -> a next to a -> c -> a) is reported for every route. Nodes and
// dependencies are visited in ascending id order, so the result is deterministic.
func DetectCycles(g *Graph) []Cycle {
	comp := components(g)
	var cycles []Cycle

	for _, start := range g.NodeIDs() {
		onPath := map[string]bool{start: true}
		path := []string{start}

		var walk func(id string)
		walk = func(id string) {
			for _, dep := range g.dependencyIDs(id) {
				if dep == start {
					cycles = append(cycles, newCycle(path))
					continue
				}
				if dep < start || onPath[dep] || !g.HasNode(dep) || comp[dep] != comp[start] {
					continue
				}
				onPath[dep] = true
				path = append(path, dep)
				walk(dep)
				path = path[:len(path)-1]
				delete(onPath, dep)
			}
		}
		walk(start)
	}
	return cycles
}

// components labels every node with the index of its strongly connected
// component (Tarjan).
func components(g *Graph) map[string]int {
	index := make(map[string]int, len(g.nodes))
	low := make(map[string]int, len(g.nodes))
	onStack := make(map[string]bool, len(g.nodes))
	comp := make(map[string]int, len(g.nodes))
	var stack []string
	next, count := 0, 0

	var connect func(id string)
	connect = func(id string) {
		index[id] = next
		low[id] = next
		next++
		stack = append(stack, id)
		onStack[id] = true

		for _, dep := range g.dependencyIDs(id) {
			if !g.HasNode(dep) {
				continue
			}
			if _, visited := index[dep]; !visited {
				connect(dep)
				low[id] = min(low[id], low[dep])
			} else if onStack[dep] {
				low[id] = min(low[id], index[dep])
			}
		}

		if low[id] == index[id] {
			for {
				top := stack[len(stack)-1]
				stack = stack[:len(stack)-1]
				onStack[top] = false
				comp[top] = count
				if top == id {
					break
				}
			}
			count++
		}
	}

	for _, id := range g.NodeIDs() {
		if _, visited := index[id]; !visited {
			connect(id)
		}
	}
	return comp
}

// newCycle copies path, rotated to start at its smallest id.
func newCycle(path []string) Cycle {
	first := 0
	for i, id := range path {
		if id < path[first] {
			first = i
		}
	}
	rotated := make([]string, 0, len(path))
	rotated = append(rotated, path[first:]...)
	rotated = append(rotated, path[:first]...)

	distinct := make(map[string]struct{}, len(path))
	for _, id := range path {
		distinct[id] = struct{}{}
	}
	return Cycle{Path: rotated, IsTransitive: len(distinct) >= 3}
}
