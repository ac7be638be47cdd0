// Package graph models the extension dependency graph of one resolution session.
//
// A Graph is not safe for concurrent mutation; the resolver builds it from a
// single goroutine and discards it when the session ends.
package graph

import (
	"fmt"
	"sort"

	"github.com/bayleafwalker/bindery-extensions/internal/manifest"
	"github.com/bayleafwalker/bindery-extensions/internal/semver"
)

// Node is one extension at the version selected for this session.
type Node struct {
	ID           string
	Version      string
	Dependencies map[string]semver.Constraint
	Optional     map[string]struct{}
	Manifest     manifest.Manifest
}

// IsOptional reports whether the dependency on id was declared optional.
func (n *Node) IsOptional(id string) bool {
	_, ok := n.Optional[id]
	return ok
}

// Edge is a requirement of From on To. Every edge mirrors exactly one entry of
// From's Dependencies map.
type Edge struct {
	From       string
	To         string
	Constraint semver.Constraint
	Optional   bool
}

type Graph struct {
	nodes map[string]*Node
	edges []Edge
}

func New() *Graph {
	return &Graph{nodes: make(map[string]*Node)}
}

// AddNode inserts a node for id, or returns the existing one. The version of
// an existing node is left untouched.
func (g *Graph) AddNode(id, version string, m manifest.Manifest) *Node {
	if existing, ok := g.nodes[id]; ok {
		return existing
	}
	n := &Node{
		ID:           id,
		Version:      version,
		Dependencies: make(map[string]semver.Constraint),
		Optional:     make(map[string]struct{}),
		Manifest:     m,
	}
	g.nodes[id] = n
	return n
}

// AddEdge records that from depends on to. The owning node must already exist;
// the target may not, which is what Validate reports.
func (g *Graph) AddEdge(from, to string, c semver.Constraint, optional bool) error {
	n, ok := g.nodes[from]
	if !ok {
		return fmt.Errorf("graph: edge %s -> %s: unknown source node", from, to)
	}
	if _, dup := n.Dependencies[to]; dup {
		return fmt.Errorf("graph: edge %s -> %s already present", from, to)
	}
	n.Dependencies[to] = c
	if optional {
		n.Optional[to] = struct{}{}
	}
	g.edges = append(g.edges, Edge{From: from, To: to, Constraint: c, Optional: optional})
	return nil
}

// Node returns the node for id, or nil.
func (g *Graph) Node(id string) *Node {
	return g.nodes[id]
}

func (g *Graph) HasNode(id string) bool {
	_, ok := g.nodes[id]
	return ok
}

// NodeIDs returns every node id in ascending order.
func (g *Graph) NodeIDs() []string {
	ids := make([]string, 0, len(g.nodes))
	for id := range g.nodes {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	return ids
}

// Edges returns a copy of the edge list in insertion order.
func (g *Graph) Edges() []Edge {
	out := make([]Edge, len(g.edges))
	copy(out, g.edges)
	return out
}

// EdgesTo returns the edges pointing at id, in insertion order.
func (g *Graph) EdgesTo(id string) []Edge {
	var out []Edge
	for _, e := range g.edges {
		if e.To == id {
			out = append(out, e)
		}
	}
	return out
}

func (g *Graph) Len() int {
	return len(g.nodes)
}

// dependencyIDs returns the sorted dependency ids of a node.
func (g *Graph) dependencyIDs(id string) []string {
	n := g.nodes[id]
	if n == nil {
		return nil
	}
	deps := make([]string, 0, len(n.Dependencies))
	for dep := range n.Dependencies {
		deps = append(deps, dep)
	}
	sort.Strings(deps)
	return deps
}
