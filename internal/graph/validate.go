package graph

import "fmt"

// MissingDependency is an edge whose target is not a node of the graph.
type MissingDependency struct {
	From string
	To   string
}

func (m MissingDependency) String() string {
	return fmt.Sprintf("%s depends on %s, which is not in the graph", m.From, m.To)
}

// Validate reports every edge pointing at an absent node, in edge order.
// Cycles and version conflicts are checked elsewhere.
func Validate(g *Graph) []MissingDependency {
	var missing []MissingDependency
	for _, e := range g.edges {
		if !g.HasNode(e.To) {
			missing = append(missing, MissingDependency{From: e.From, To: e.To})
		}
	}
	return missing
}
