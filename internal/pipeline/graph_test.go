package pipeline

import (
	"reflect"
	"testing"
)

func TestGraph_AddNodeAndEdge(t *testing.T) {
	g := NewGraph()

	g.AddNode("a", 0)
	g.AddNode("b", 1)
	g.AddNode("c", 2)

	if g.NodeCount() != 3 {
		t.Errorf("expected 3 nodes, got %d", g.NodeCount())
	}

	// b depends on a
	if err := g.AddEdge("a", "b"); err != nil {
		t.Errorf("failed to add edge: %v", err)
	}
	// c depends on b
	if err := g.AddEdge("b", "c"); err != nil {
		t.Errorf("failed to add edge: %v", err)
	}
	// duplicate edges are ignored
	if err := g.AddEdge("b", "c"); err != nil {
		t.Errorf("failed to add edge: %v", err)
	}

	if g.EdgeCount() != 2 {
		t.Errorf("expected 2 edges, got %d", g.EdgeCount())
	}
}

func TestGraph_AddEdge_InvalidNodes(t *testing.T) {
	g := NewGraph()
	g.AddNode("a", 0)

	if err := g.AddEdge("a", "nonexistent"); err == nil {
		t.Error("expected error for nonexistent child node")
	}
	if err := g.AddEdge("nonexistent", "a"); err == nil {
		t.Error("expected error for nonexistent parent node")
	}
	if err := g.AddEdge("a", "a"); err == nil {
		t.Error("expected error for self-loop")
	}
}

func TestGraph_ParentsAndChildren(t *testing.T) {
	g := NewGraph()
	g.AddNode("a", 0)
	g.AddNode("b", 1)
	g.AddNode("c", 2)

	_ = g.AddEdge("b", "c")
	_ = g.AddEdge("a", "c")
	_ = g.AddEdge("a", "b")

	if got := g.Parents("c"); !reflect.DeepEqual(got, []string{"a", "b"}) {
		t.Errorf("expected parents [a b], got %v", got)
	}
	if got := g.Children("a"); !reflect.DeepEqual(got, []string{"b", "c"}) {
		t.Errorf("expected children [b c], got %v", got)
	}
}

func TestGraph_HasCycle(t *testing.T) {
	g := NewGraph()
	g.AddNode("a", 0)
	g.AddNode("b", 1)
	g.AddNode("c", 2)
	_ = g.AddEdge("a", "b")
	_ = g.AddEdge("b", "c")

	if hasCycle, _ := g.HasCycle(); hasCycle {
		t.Fatal("expected no cycle")
	}

	_ = g.AddEdge("c", "a")
	hasCycle, path := g.HasCycle()
	if !hasCycle {
		t.Fatal("expected cycle")
	}
	if len(path) < 3 {
		t.Errorf("expected cycle path with at least 3 nodes, got %v", path)
	}

	if _, err := g.TopologicalSort(); err == nil {
		t.Error("expected topological sort to fail on cycle")
	}
}

func TestGraph_TopologicalSort_KeepsPositionOrder(t *testing.T) {
	g := NewGraph()
	g.AddNode("reader", 0)
	g.AddNode("standalone", 1)
	g.AddNode("base", 2)
	_ = g.AddEdge("base", "reader")

	order, err := g.TopologicalSort()
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	expected := []string{"base", "reader", "standalone"}
	if !reflect.DeepEqual(order, expected) {
		t.Errorf("expected %v, got %v", expected, order)
	}
}

func TestGraph_Levels(t *testing.T) {
	g := NewGraph()
	g.AddNode("a", 0)
	g.AddNode("b", 1)
	g.AddNode("c", 2)
	g.AddNode("d", 3)
	_ = g.AddEdge("a", "b")
	_ = g.AddEdge("b", "c")
	_ = g.AddEdge("a", "c")

	levels, err := g.Levels()
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	expected := map[string]int{"a": 0, "b": 1, "c": 2, "d": 0}
	if !reflect.DeepEqual(levels, expected) {
		t.Errorf("expected %v, got %v", expected, levels)
	}
}

func TestGraph_DownstreamAndUpstream(t *testing.T) {
	g := NewGraph()
	for i, id := range []string{"a", "b", "c", "d"} {
		g.AddNode(id, i)
	}
	_ = g.AddEdge("a", "b")
	_ = g.AddEdge("b", "c")

	if got := g.Downstream([]string{"b"}); !reflect.DeepEqual(got, []string{"b", "c"}) {
		t.Errorf("expected downstream [b c], got %v", got)
	}
	if got := g.Downstream([]string{"missing"}); len(got) != 0 {
		t.Errorf("expected no downstream nodes for unknown id, got %v", got)
	}
	if got := g.Upstream("c"); !reflect.DeepEqual(got, []string{"a", "b"}) {
		t.Errorf("expected upstream [a b], got %v", got)
	}
	if got := g.Roots(); !reflect.DeepEqual(got, []string{"a", "d"}) {
		t.Errorf("expected roots [a d], got %v", got)
	}
	if got := g.Leaves(); !reflect.DeepEqual(got, []string{"c", "d"}) {
		t.Errorf("expected leaves [c d], got %v", got)
	}
}
