// Package topology provides ready-made network builders recovered from the
// original simulator's example scripts: a small fat tree and a 2D
// wraparound torus.
package topology

import (
	"github.com/sirupsen/logrus"

	"github.com/kprusa/netsim/internal/sim"
	"github.com/kprusa/netsim/internal/topo"
)

// FatTree returns a Network wired as a 7-node fat tree (one root, two
// aggregators, four leaves), every link symmetric with the given bandwidth
// and delay, routes already initialized.
func FatTree(bandwidth, delay float64) (*sim.Network, []topo.NodeID) {
	n := sim.New()
	nodes := make([]topo.NodeID, 7)
	for i := range nodes {
		nodes[i] = n.AddNode()
	}
	edges := [][2]int{{0, 1}, {0, 2}, {1, 3}, {1, 4}, {2, 5}, {2, 6}}
	for _, e := range edges {
		if err := n.JoinSymmetric(nodes[e[0]], nodes[e[1]], bandwidth, delay); err != nil {
			logrus.Fatalf("topology: fattree join %d<->%d: %v", e[0], e[1], err)
		}
	}
	if err := n.InitializeRoutes(); err != nil {
		logrus.Fatalf("topology: fattree initialize routes: %v", err)
	}
	return n, nodes
}
