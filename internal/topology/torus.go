package topology

import (
	"github.com/sirupsen/logrus"

	"github.com/kprusa/netsim/internal/sim"
	"github.com/kprusa/netsim/internal/topo"
)

const torusLinkBandwidth = 1 << 10

// Torus returns a Network wired as an x*y 2D wraparound torus: every node
// joined, bidirectionally, to its row and column neighbors, wrapping at the
// edges, routes already initialized.
func Torus(x, y int) (*sim.Network, [][]topo.NodeID) {
	n := sim.New()
	nodes := make([][]topo.NodeID, y)
	for i := range nodes {
		nodes[i] = make([]topo.NodeID, x)
		for j := range nodes[i] {
			nodes[i][j] = n.AddNode()
		}
	}

	joined := make(map[[2]topo.NodeID]bool)
	join := func(a, b topo.NodeID) {
		if a == b {
			return
		}
		key := [2]topo.NodeID{a, b}
		if joined[key] {
			return
		}
		joined[key] = true
		joined[[2]topo.NodeID{b, a}] = true
		if err := n.JoinSymmetric(a, b, torusLinkBandwidth, 0); err != nil {
			logrus.Fatalf("topology: torus join: %v", err)
		}
	}

	for i := 0; i < y; i++ {
		for j := 0; j < x; j++ {
			join(nodes[i][j], nodes[i][(j+1)%x])
			join(nodes[i][j], nodes[i][(j-1+x)%x])
			join(nodes[i][j], nodes[(i+1)%y][j])
			join(nodes[i][j], nodes[(i-1+y)%y][j])
		}
	}

	if err := n.InitializeRoutes(); err != nil {
		logrus.Fatalf("topology: torus initialize routes: %v", err)
	}
	return n, nodes
}
