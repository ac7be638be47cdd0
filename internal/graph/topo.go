package graph

import (
	"errors"
	"sort"
)

// ErrCyclic is returned by TopologicalSort when no order exists.
var ErrCyclic = errors.New("graph: dependency graph contains a cycle")

// TopologicalSort returns node ids dependency-first: every node appears after
// all nodes it depends on. When several nodes are ready at once the smallest
// id goes first. Edges to absent nodes are ignored.
func TopologicalSort(g *Graph) ([]string, error) {
	// pending counts unplaced dependencies; dependents is the reverse index.
	pending := make(map[string]int, len(g.nodes))
	dependents := make(map[string][]string, len(g.nodes))
	for _, id := range g.NodeIDs() {
		pending[id] = 0
	}
	for _, e := range g.edges {
		if !g.HasNode(e.To) || !g.HasNode(e.From) {
			continue
		}
		pending[e.From]++
		dependents[e.To] = append(dependents[e.To], e.From)
	}

	var ready []string
	for id, n := range pending {
		if n == 0 {
			ready = append(ready, id)
		}
	}
	sort.Strings(ready)

	order := make([]string, 0, len(g.nodes))
	for len(ready) > 0 {
		id := ready[0]
		ready = ready[1:]
		order = append(order, id)

		released := false
		for _, dependent := range dependents[id] {
			pending[dependent]--
			if pending[dependent] == 0 {
				ready = append(ready, dependent)
				released = true
			}
		}
		if released {
			sort.Strings(ready)
		}
	}

	if len(order) != len(g.nodes) {
		return nil, ErrCyclic
	}
	return order, nil
}
