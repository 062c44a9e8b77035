package topo

import (
	"testing"

	"github.com/google/uuid"
)

func newLinkID() LinkID { return LinkID(uuid.New()) }

func TestGraph_BFSPathsShortestFirst(t *testing.T) {
	tests := []struct {
		name     string
		build    func(g *Graph) (src, goal NodeID)
		wantLen  int
		wantHops int // length of the first (shortest) path, in nodes
	}{
		{
			name: "linear chain",
			build: func(g *Graph) (NodeID, NodeID) {
				a := g.AddNode()
				b := g.AddNode()
				c := g.AddNode()
				_ = g.Join(a, b, newLinkID())
				_ = g.Join(b, c, newLinkID())
				return a, c
			},
			wantLen:  1,
			wantHops: 3,
		},
		{
			name: "diamond has two equal-length paths",
			build: func(g *Graph) (NodeID, NodeID) {
				a := g.AddNode()
				b := g.AddNode()
				c := g.AddNode()
				d := g.AddNode()
				_ = g.Join(a, b, newLinkID())
				_ = g.Join(a, c, newLinkID())
				_ = g.Join(b, d, newLinkID())
				_ = g.Join(c, d, newLinkID())
				return a, d
			},
			wantLen:  2,
			wantHops: 3,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			g := NewGraph()
			src, goal := tt.build(g)
			paths := g.BFSPaths(src, goal)
			if len(paths) != tt.wantLen {
				t.Fatalf("BFSPaths() returned %d paths, want %d", len(paths), tt.wantLen)
			}
			if len(paths[0]) != tt.wantHops {
				t.Errorf("first path has %d nodes, want %d", len(paths[0]), tt.wantHops)
			}
		})
	}
}

func TestGraph_JoinReplacesExistingEdge(t *testing.T) {
	g := NewGraph()
	a := g.AddNode()
	b := g.AddNode()
	first := newLinkID()
	second := newLinkID()

	if err := g.Join(a, b, first); err != nil {
		t.Fatalf("Join() error = %v", err)
	}
	if err := g.Join(a, b, second); err != nil {
		t.Fatalf("Join() error = %v", err)
	}

	node, _ := g.Node(a)
	got, ok := node.Neighbor(b)
	if !ok || got != second {
		t.Errorf("Neighbor(b) = (%v, %v), want (%v, true)", got, ok, second)
	}
	if len(node.neighborOrder) != 1 {
		t.Errorf("neighborOrder has %d entries after re-join, want 1 (no duplicate)", len(node.neighborOrder))
	}
}

func TestRouter_InitializeLeavesUnreachablePairsUnset(t *testing.T) {
	g := NewGraph()
	a := g.AddNode()
	b := g.AddNode()
	isolated := g.AddNode()
	if err := g.Join(a, b, newLinkID()); err != nil {
		t.Fatalf("Join() error = %v", err)
	}

	if err := NewRouter(g).Initialize(); err != nil {
		t.Fatalf("Initialize() error = %v", err)
	}

	aNode, _ := g.Node(a)
	if _, ok := aNode.Route[b]; !ok {
		t.Errorf("Route[b] missing, want a link present")
	}
	if _, ok := aNode.Route[isolated]; ok {
		t.Errorf("Route[isolated] set, want unset (no path exists)")
	}
}

func TestRouter_InitializeSetsFirstHopOfShortestPath(t *testing.T) {
	// a - b - c, also a direct a - c link; shortest a->c path is the direct link.
	g := NewGraph()
	a := g.AddNode()
	b := g.AddNode()
	c := g.AddNode()
	direct := newLinkID()
	_ = g.Join(a, b, newLinkID())
	_ = g.Join(b, c, newLinkID())
	_ = g.Join(a, c, direct)

	if err := NewRouter(g).Initialize(); err != nil {
		t.Fatalf("Initialize() error = %v", err)
	}

	aNode, _ := g.Node(a)
	if got := aNode.Route[c]; got != direct {
		t.Errorf("Route[c] = %v, want direct link %v", got, direct)
	}
}

