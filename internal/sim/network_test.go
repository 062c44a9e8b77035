package sim

import (
	"math"
	"testing"

	"github.com/kprusa/netsim/internal/packet"
	"github.com/kprusa/netsim/internal/program"
	"github.com/kprusa/netsim/internal/topo"
	"github.com/kprusa/netsim/internal/topology"
)

// Unless a test sets its own link parameters (the infinite-bandwidth and
// fat-tree tests do), scenarios here use links with bandwidth=10 bits/s and
// delay=0.1s, carrying a single 10-byte message as one packet:
// txTime = 10*8/10 = 8s, so one hop costs 8.1s end to end.

func chainNetwork(t *testing.T, hops int) (*Network, []topo.NodeID) {
	t.Helper()
	n := New()
	ids := make([]topo.NodeID, hops+1)
	for i := range ids {
		ids[i] = n.AddNode()
	}
	for i := 0; i < hops; i++ {
		if _, err := n.Join(ids[i], ids[i+1], 10, 0.1); err != nil {
			t.Fatalf("Join() error = %v", err)
		}
	}
	if err := n.InitializeRoutes(); err != nil {
		t.Fatalf("InitializeRoutes() error = %v", err)
	}
	return n, ids
}

func TestNetwork_SingleHopDelivery(t *testing.T) {
	n, ids := chainNetwork(t, 1)
	msg := packet.New(ids[0], ids[1], 10)
	delivered := false
	msg.SetOnComplete(func() { delivered = true })
	if _, err := n.Inject(msg); err != nil {
		t.Fatalf("Inject() error = %v", err)
	}
	end, err := n.Run()
	if err != nil {
		t.Fatalf("Run() error = %v", err)
	}
	if want := 8.1; end != want {
		t.Errorf("Run() = %v, want %v", end, want)
	}
	if !delivered {
		t.Error("message was never delivered")
	}
}

func TestNetwork_TwoHopChainDelivery(t *testing.T) {
	n, ids := chainNetwork(t, 2)
	msg := packet.New(ids[0], ids[2], 10)
	if _, err := n.Inject(msg); err != nil {
		t.Fatalf("Inject() error = %v", err)
	}
	end, err := n.Run()
	if err != nil {
		t.Fatalf("Run() error = %v", err)
	}
	if want := 16.2; end != want {
		t.Errorf("Run() = %v, want %v", end, want)
	}
}

func TestNetwork_ParallelNonInterferingPathsFinishIndependently(t *testing.T) {
	n := New()
	a0, a1 := n.AddNode(), n.AddNode()
	b0, b1 := n.AddNode(), n.AddNode()
	if _, err := n.Join(a0, a1, 10, 0.1); err != nil {
		t.Fatal(err)
	}
	if _, err := n.Join(b0, b1, 10, 0.1); err != nil {
		t.Fatal(err)
	}
	if err := n.InitializeRoutes(); err != nil {
		t.Fatal(err)
	}

	ma := packet.New(a0, a1, 10)
	mb := packet.New(b0, b1, 10)
	var aDone, bDone bool
	ma.SetOnComplete(func() { aDone = true })
	mb.SetOnComplete(func() { bDone = true })
	if _, err := n.Inject(ma); err != nil {
		t.Fatal(err)
	}
	if _, err := n.Inject(mb); err != nil {
		t.Fatal(err)
	}

	end, err := n.Run()
	if err != nil {
		t.Fatalf("Run() error = %v", err)
	}
	if want := 8.1; end != want {
		t.Errorf("Run() = %v, want %v (non-interfering paths should not slow each other down)", end, want)
	}
	if !aDone || !bDone {
		t.Errorf("aDone=%v bDone=%v, want both true", aDone, bDone)
	}
}

func TestNetwork_DependencyGateReleasesOnPrerequisiteCompletion(t *testing.T) {
	n, ids := chainNetwork(t, 1)
	first := packet.New(ids[0], ids[1], 10)
	second := packet.New(ids[0], ids[1], 10)

	p := program.New()
	p.Add(first)
	p.Add(second, first)

	end, err := n.RunProgram(p)
	if err != nil {
		t.Fatalf("RunProgram() error = %v", err)
	}
	if want := 16.2; end != want {
		t.Errorf("RunProgram() = %v, want %v (second message must wait for first)", end, want)
	}
	if !first.Completed() || !second.Completed() {
		t.Error("both messages should be completed")
	}
}

func TestNetwork_BidirectionalLinksAreIndependent(t *testing.T) {
	n := New()
	x, y := n.AddNode(), n.AddNode()
	if err := n.JoinSymmetric(x, y, 10, 0.1); err != nil {
		t.Fatalf("JoinSymmetric() error = %v", err)
	}
	if err := n.InitializeRoutes(); err != nil {
		t.Fatal(err)
	}

	forward := packet.New(x, y, 10)
	backward := packet.New(y, x, 10)
	if _, err := n.Inject(forward); err != nil {
		t.Fatal(err)
	}
	if _, err := n.Inject(backward); err != nil {
		t.Fatal(err)
	}

	end, err := n.Run()
	if err != nil {
		t.Fatalf("Run() error = %v", err)
	}
	if want := 8.1; end != want {
		t.Errorf("Run() = %v, want %v (separate queues per direction shouldn't contend)", end, want)
	}
}

func TestNetwork_ZeroSerializationTimeOnInfiniteBandwidthLink(t *testing.T) {
	n := New()
	x, y := n.AddNode(), n.AddNode()
	if _, err := n.Join(x, y, math.Inf(1), 0.1); err != nil {
		t.Fatal(err)
	}
	if err := n.InitializeRoutes(); err != nil {
		t.Fatal(err)
	}

	msg := packet.New(x, y, 10)
	if _, err := n.Inject(msg); err != nil {
		t.Fatal(err)
	}
	end, err := n.Run()
	if err != nil {
		t.Fatalf("Run() error = %v", err)
	}
	if want := 0.1; end != want {
		t.Errorf("Run() = %v, want %v", end, want)
	}
}

func TestNetwork_ResetIsIdempotentAndPreservesTopology(t *testing.T) {
	n, ids := chainNetwork(t, 1)
	msg := packet.New(ids[0], ids[1], 10)
	if _, err := n.Inject(msg); err != nil {
		t.Fatal(err)
	}
	if _, err := n.Run(); err != nil {
		t.Fatal(err)
	}

	n.Reset()
	n.Reset() // idempotent: resetting an already-clean network changes nothing

	if n.Now() != 0 {
		t.Errorf("Now() after Reset = %v, want 0", n.Now())
	}

	msg2 := packet.New(ids[0], ids[1], 10)
	if _, err := n.Inject(msg2); err != nil {
		t.Fatal(err)
	}
	end, err := n.Run()
	if err != nil {
		t.Fatalf("Run() after Reset error = %v", err)
	}
	if want := 8.1; end != want {
		t.Errorf("Run() after Reset = %v, want %v (route table must survive Reset)", end, want)
	}
}

func TestNetwork_NoRouteErrorSurfacesFromRun(t *testing.T) {
	n := New()
	x := n.AddNode()
	y := n.AddNode()
	// No Join at all: x has no route to y.
	if err := n.InitializeRoutes(); err != nil {
		t.Fatal(err)
	}
	msg := packet.New(x, y, 10)
	if _, err := n.Inject(msg); err != nil {
		t.Fatalf("Inject() error = %v, want nil (routing errors surface from Run)", err)
	}
	if _, err := n.Run(); err == nil {
		t.Error("Run() error = nil, want no-route error")
	}
}

func TestNetwork_FIFOOrderOnSharedLink(t *testing.T) {
	n, ids := chainNetwork(t, 1)
	var order []int
	first := packet.New(ids[0], ids[1], 10)
	second := packet.New(ids[0], ids[1], 10)
	first.SetOnComplete(func() { order = append(order, 1) })
	second.SetOnComplete(func() { order = append(order, 2) })

	if _, err := n.Inject(first); err != nil {
		t.Fatal(err)
	}
	if _, err := n.Inject(second); err != nil {
		t.Fatal(err)
	}
	if _, err := n.Run(); err != nil {
		t.Fatal(err)
	}
	if len(order) != 2 || order[0] != 1 || order[1] != 2 {
		t.Errorf("completion order = %v, want [1 2] (FIFO on a shared link)", order)
	}
}

// TestNetwork_FatTreeSharedLinkContention is spec.md §8 scenario S3: a
// 7-node fat tree with bw=2^10, delay=0, two messages injected at once from
// the root that share link 0-1 before fanning out to different leaves.
func TestNetwork_FatTreeSharedLinkContention(t *testing.T) {
	n, nodes := topology.FatTree(1024, 0)
	n.SetPacketFraming(1024, packet.ZeroOverhead, 0)

	first := packet.New(nodes[0], nodes[3], 1024)
	second := packet.New(nodes[0], nodes[4], 1024)
	if _, err := n.Inject(first); err != nil {
		t.Fatalf("Inject(first) error = %v", err)
	}
	if _, err := n.Inject(second); err != nil {
		t.Fatalf("Inject(second) error = %v", err)
	}

	end, err := n.Run()
	if err != nil {
		t.Fatalf("Run() error = %v", err)
	}
	// first serializes on link 0-1 from t=0..8, second queues behind it and
	// serializes from t=8..16; first then crosses link 1-3 (t=8..16) while
	// second crosses link 1-4 (t=16..24), so the simulation ends at 24.0.
	if want := 24.0; end != want {
		t.Errorf("Run() = %v, want %v", end, want)
	}
	if !first.Completed() || !second.Completed() {
		t.Error("both messages should be completed")
	}
}
