package pipeline

import (
	"fmt"
	"sort"
)

// Node is a view in the dependency graph. Position is its index in the
// pipeline the graph was built from and drives deterministic ordering.
type Node struct {
	ID       string
	Position int
}

// Graph is a directed acyclic graph of view nodes.
type Graph struct {
	nodes   map[string]*Node
	edges   map[string][]string // parent -> children (dependents)
	parents map[string][]string // child -> parents (dependencies)
}

// NewGraph creates a new empty graph.
func NewGraph() *Graph {
	return &Graph{
		nodes:   make(map[string]*Node),
		edges:   make(map[string][]string),
		parents: make(map[string][]string),
	}
}

// AddNode adds a node to the graph, updating the position of an existing one.
func (g *Graph) AddNode(id string, position int) {
	if node, exists := g.nodes[id]; exists {
		node.Position = position
		return
	}
	g.nodes[id] = &Node{ID: id, Position: position}
	g.edges[id] = []string{}
	g.parents[id] = []string{}
}

// AddEdge adds a directed edge from parent to child (child depends on parent).
func (g *Graph) AddEdge(parentID, childID string) error {
	if _, exists := g.nodes[parentID]; !exists {
		return fmt.Errorf("parent node %q does not exist", parentID)
	}
	if _, exists := g.nodes[childID]; !exists {
		return fmt.Errorf("child node %q does not exist", childID)
	}
	if parentID == childID {
		return fmt.Errorf("self-loop detected: %s", parentID)
	}

	if !contains(g.edges[parentID], childID) {
		g.edges[parentID] = append(g.edges[parentID], childID)
	}
	if !contains(g.parents[childID], parentID) {
		g.parents[childID] = append(g.parents[childID], parentID)
	}
	return nil
}

// Node returns a node by ID.
func (g *Graph) Node(id string) (*Node, bool) {
	node, exists := g.nodes[id]
	return node, exists
}

// Parents returns the direct dependencies of a node in position order.
func (g *Graph) Parents(id string) []string {
	return g.byPosition(g.parents[id])
}

// Children returns the direct dependents of a node in position order.
func (g *Graph) Children(id string) []string {
	return g.byPosition(g.edges[id])
}

// NodeCount returns the number of nodes in the graph.
func (g *Graph) NodeCount() int {
	return len(g.nodes)
}

// EdgeCount returns the number of edges in the graph.
func (g *Graph) EdgeCount() int {
	count := 0
	for _, children := range g.edges {
		count += len(children)
	}
	return count
}

// HasCycle reports whether the graph contains a cycle, along with the cycle path.
func (g *Graph) HasCycle() (bool, []string) {
	visited := make(map[string]bool)
	recStack := make(map[string]bool)
	path := make(map[string]string)

	var cyclePath []string

	var dfs func(id string) bool
	dfs = func(id string) bool {
		visited[id] = true
		recStack[id] = true

		for _, childID := range g.Children(id) {
			if !visited[childID] {
				path[childID] = id
				if dfs(childID) {
					return true
				}
			} else if recStack[childID] {
				cyclePath = []string{childID}
				for curr := id; curr != childID; curr = path[curr] {
					cyclePath = append([]string{curr}, cyclePath...)
				}
				cyclePath = append([]string{childID}, cyclePath...)
				return true
			}
		}

		recStack[id] = false
		return false
	}

	for _, id := range g.ids() {
		if !visited[id] && dfs(id) {
			return true, cyclePath
		}
	}
	return false, nil
}

// TopologicalSort returns node IDs with dependencies before dependents.
// Nodes are visited in position order, so an already valid pipeline comes
// back unchanged.
func (g *Graph) TopologicalSort() ([]string, error) {
	if hasCycle, cyclePath := g.HasCycle(); hasCycle {
		return nil, fmt.Errorf("cycle detected: %v", cyclePath)
	}

	visited := make(map[string]bool)
	result := make([]string, 0, len(g.nodes))

	var visit func(id string)
	visit = func(id string) {
		if visited[id] {
			return
		}
		visited[id] = true
		for _, parentID := range g.Parents(id) {
			visit(parentID)
		}
		result = append(result, id)
	}

	for _, id := range g.ids() {
		visit(id)
	}
	return result, nil
}

// Levels groups nodes by depth. Level 0 holds views that read no other
// pipeline view.
func (g *Graph) Levels() (map[string]int, error) {
	if hasCycle, cyclePath := g.HasCycle(); hasCycle {
		return nil, fmt.Errorf("cycle detected: %v", cyclePath)
	}

	levels := make(map[string]int, len(g.nodes))

	var levelOf func(id string) int
	levelOf = func(id string) int {
		if level, ok := levels[id]; ok {
			return level
		}
		level := 0
		for _, parentID := range g.parents[id] {
			if l := levelOf(parentID) + 1; l > level {
				level = l
			}
		}
		levels[id] = level
		return level
	}

	for id := range g.nodes {
		levelOf(id)
	}
	return levels, nil
}

// Downstream returns the given nodes and everything that depends on them,
// in position order.
func (g *Graph) Downstream(ids []string) []string {
	affected := make(map[string]bool)

	var mark func(id string)
	mark = func(id string) {
		if affected[id] {
			return
		}
		affected[id] = true
		for _, childID := range g.edges[id] {
			mark(childID)
		}
	}

	for _, id := range ids {
		if _, exists := g.nodes[id]; exists {
			mark(id)
		}
	}

	result := make([]string, 0, len(affected))
	for id := range affected {
		result = append(result, id)
	}
	return g.byPosition(result)
}

// Upstream returns every node the given node depends on, transitively.
func (g *Graph) Upstream(id string) []string {
	upstream := make(map[string]bool)

	var mark func(nodeID string)
	mark = func(nodeID string) {
		for _, parentID := range g.parents[nodeID] {
			if !upstream[parentID] {
				upstream[parentID] = true
				mark(parentID)
			}
		}
	}
	mark(id)

	result := make([]string, 0, len(upstream))
	for nodeID := range upstream {
		result = append(result, nodeID)
	}
	return g.byPosition(result)
}

// Roots returns nodes with no dependencies.
func (g *Graph) Roots() []string {
	var roots []string
	for id := range g.nodes {
		if len(g.parents[id]) == 0 {
			roots = append(roots, id)
		}
	}
	return g.byPosition(roots)
}

// Leaves returns nodes nothing depends on.
func (g *Graph) Leaves() []string {
	var leaves []string
	for id := range g.nodes {
		if len(g.edges[id]) == 0 {
			leaves = append(leaves, id)
		}
	}
	return g.byPosition(leaves)
}

func (g *Graph) ids() []string {
	ids := make([]string, 0, len(g.nodes))
	for id := range g.nodes {
		ids = append(ids, id)
	}
	return g.byPosition(ids)
}

func (g *Graph) byPosition(ids []string) []string {
	out := append([]string(nil), ids...)
	sort.SliceStable(out, func(i, j int) bool {
		pi, pj := g.nodes[out[i]].Position, g.nodes[out[j]].Position
		if pi != pj {
			return pi < pj
		}
		return out[i] < out[j]
	})
	return out
}

func contains(slice []string, str string) bool {
	for _, s := range slice {
		if s == str {
			return true
		}
	}
	return false
}
