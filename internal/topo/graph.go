// Package topo implements the Graph and Router components of spec §4.2:
// nodes, directed links, adjacency, and per-node route tables computed by
// breadth-first shortest path.
package topo

import (
	"fmt"

	"github.com/google/uuid"
	"github.com/pkg/errors"
)

// NodeID is a node's stable handle, independent of any in-memory pointer —
// the arena-plus-index style recommended by spec §9 for a graph with cyclic
// node/link references.
type NodeID uuid.UUID

func (id NodeID) String() string { return uuid.UUID(id).String()[:8] }

// LinkID is a link's stable handle.
type LinkID uuid.UUID

func (id LinkID) String() string { return uuid.UUID(id).String()[:8] }

// ErrUnknownNode is returned when a NodeID does not correspond to a node
// in the graph (spec §7 TopologyError).
var ErrUnknownNode = errors.New("topo: unknown node")

// ErrNoRoute is returned when a node has no route-table entry for a
// destination, either because InitializeRoutes was never called or no path
// exists (spec §7 RoutesError).
var ErrNoRoute = errors.New("topo: no route to destination")

// Node is an opaque handle owning a route table and an adjacency map. A
// Node holds no queued packets of its own — queuing lives on links.
type Node struct {
	ID NodeID

	neighbors     map[NodeID]LinkID
	neighborOrder []NodeID

	// Route maps destination node to the next outgoing link. Populated by
	// InitializeRoutes; a missing entry means no path is known.
	Route map[NodeID]LinkID
}

func newNode() *Node {
	return &Node{
		ID:        NodeID(uuid.New()),
		neighbors: make(map[NodeID]LinkID),
		Route:     make(map[NodeID]LinkID),
	}
}

// Neighbor returns the outgoing link toward the given neighbor, if any.
func (n *Node) Neighbor(id NodeID) (LinkID, bool) {
	l, ok := n.neighbors[id]
	return l, ok
}

// Graph holds nodes and the directed edges (as LinkID handles) between them.
// Link state itself (bandwidth, queue, busy) is owned by the link package;
// Graph only tracks which LinkID connects which pair of nodes.
type Graph struct {
	nodes     map[NodeID]*Node
	nodeOrder []NodeID
}

// NewGraph returns an empty Graph.
func NewGraph() *Graph {
	return &Graph{nodes: make(map[NodeID]*Node)}
}

// AddNode creates a new Node and returns its handle.
func (g *Graph) AddNode() NodeID {
	n := newNode()
	g.nodes[n.ID] = n
	g.nodeOrder = append(g.nodeOrder, n.ID)
	return n.ID
}

// Node returns the Node for id, if it exists.
func (g *Graph) Node(id NodeID) (*Node, bool) {
	n, ok := g.nodes[id]
	return n, ok
}

// Nodes returns all node handles in insertion order.
func (g *Graph) Nodes() []NodeID {
	out := make([]NodeID, len(g.nodeOrder))
	copy(out, g.nodeOrder)
	return out
}

// Join installs a directed edge src->dst carried by link. Re-joining an
// existing (src,dst) pair replaces the link handle, not adds a second edge.
func (g *Graph) Join(src, dst NodeID, link LinkID) error {
	srcNode, ok := g.nodes[src]
	if !ok {
		return errors.Wrapf(ErrUnknownNode, "join: src %s", src)
	}
	if _, ok := g.nodes[dst]; !ok {
		return errors.Wrapf(ErrUnknownNode, "join: dst %s", dst)
	}
	if _, exists := srcNode.neighbors[dst]; !exists {
		srcNode.neighborOrder = append(srcNode.neighborOrder, dst)
	}
	srcNode.neighbors[dst] = link
	return nil
}

// BFSPaths enumerates simple paths from src to goal in breadth-first order;
// the first returned path is a shortest path. Traversal order follows each
// node's neighbor insertion order, a determinism requirement of spec §4.2.
func (g *Graph) BFSPaths(src, goal NodeID) [][]NodeID {
	var paths [][]NodeID
	type item struct {
		node NodeID
		path []NodeID
	}
	queue := []item{{node: src, path: []NodeID{src}}}
	for len(queue) > 0 {
		cur := queue[0]
		queue = queue[1:]
		node, ok := g.nodes[cur.node]
		if !ok {
			continue
		}
		for _, nbr := range node.neighborOrder {
			if containsNode(cur.path, nbr) {
				continue
			}
			nextPath := append(append([]NodeID{}, cur.path...), nbr)
			if nbr == goal {
				paths = append(paths, nextPath)
			} else {
				queue = append(queue, item{node: nbr, path: nextPath})
			}
		}
	}
	return paths
}

func containsNode(path []NodeID, id NodeID) bool {
	for _, p := range path {
		if p == id {
			return true
		}
	}
	return false
}

// Router computes shortest-path route tables over a Graph.
type Router struct {
	g *Graph
}

// NewRouter returns a Router bound to g.
func NewRouter(g *Graph) *Router {
	return &Router{g: g}
}

// Initialize must be called before the simulation runs: for every ordered
// pair (u,v) with u != v, it sets u.Route[v] to u's outgoing link toward the
// first hop of a shortest u->v path. Pairs with no path are left unset in
// Route; forwarding to those destinations (sim.Network) later reports
// ErrNoRoute.
func (r *Router) Initialize() error {
	for _, src := range r.g.nodeOrder {
		srcNode := r.g.nodes[src]
		for _, dst := range r.g.nodeOrder {
			if src == dst {
				continue
			}
			paths := r.g.BFSPaths(src, dst)
			if len(paths) == 0 {
				continue
			}
			shortest := paths[0]
			firstHop := shortest[1]
			linkID, ok := srcNode.neighbors[firstHop]
			if !ok {
				return errors.Errorf("router: %s has no link to first hop %s toward %s", src, firstHop, dst)
			}
			srcNode.Route[dst] = linkID
		}
	}
	return nil
}

// String renders the graph's edges, mirroring the teacher's Network.__str__.
func (g *Graph) String() string {
	s := ""
	for _, src := range g.nodeOrder {
		node := g.nodes[src]
		for _, dst := range node.neighborOrder {
			s += fmt.Sprintf("%s -> %s == %s\n", src, dst, node.neighbors[dst])
		}
	}
	return s
}
