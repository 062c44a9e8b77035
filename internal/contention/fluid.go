package contention

import (
	"github.com/pkg/errors"
	"github.com/sirupsen/logrus"

	"github.com/kprusa/netsim/internal/pq"
)

// This file implements the fluid contention model documented in spec §4.9
// as an alternative to the packet-level store-and-forward engine in
// internal/sim. It is intentionally self-contained (its own node/edge/
// message/event types) rather than reusing internal/topo or
// internal/packet: the two models disagree on what a "message in flight"
// even means (simultaneous occupancy of every link on a route, vs. one
// packet on one link at a time), so sharing types would blur that
// distinction rather than clarify it. spec.md §9 Decision 1 designates the
// packet-level model canonical; FluidNetwork is never invoked by
// internal/sim and exists for comparison and its own test coverage only.

// FluidNodeID and FluidEdgeID identify nodes and edges within a FluidNetwork.
type FluidNodeID int
type FluidEdgeID int

// Edge is a bandwidth-limited link shared equally among its active messages.
type Edge struct {
	Bandwidth float64
	active    map[*FluidMessage]struct{}
}

// EffectiveBandwidth is the edge's nominal bandwidth divided by the number
// of messages currently active on it (spec §4.9, §GLOSSARY).
func (e *Edge) EffectiveBandwidth() float64 {
	if len(e.active) == 0 {
		return e.Bandwidth
	}
	return e.Bandwidth / float64(len(e.active))
}

// FluidMessage occupies every edge on its route simultaneously for its
// whole lifetime.
type FluidMessage struct {
	Src, Dst       FluidNodeID
	Count          float64
	Progress       float64
	Edges          []FluidEdgeID
	lastUpdateTime float64
	finish         *finishEvent
	OnComplete     func()
}

type finishEvent struct {
	message *FluidMessage
}

// FluidNetwork is the alternative contention engine of spec §4.9.
type FluidNetwork struct {
	now      float64
	events   *pq.Queue
	graph    map[FluidNodeID]map[FluidNodeID]FluidEdgeID
	edges    []*Edge
	messages map[*FluidMessage]struct{}
	sink     Sink
}

// NewFluidNetwork returns an empty FluidNetwork. sink may be NullSink{}.
func NewFluidNetwork(sink Sink) *FluidNetwork {
	if sink == nil {
		sink = NullSink{}
	}
	return &FluidNetwork{
		events:   pq.New(),
		graph:    make(map[FluidNodeID]map[FluidNodeID]FluidEdgeID),
		messages: make(map[*FluidMessage]struct{}),
		sink:     sink,
	}
}

// Join installs one undirected edge n1<->n2: the same edge id is recorded
// under both directions, so traffic either way shares its bandwidth,
// mirroring netsim.py's join().
func (n *FluidNetwork) Join(n1, n2 FluidNodeID, bandwidth float64) FluidEdgeID {
	n.edges = append(n.edges, &Edge{Bandwidth: bandwidth, active: make(map[*FluidMessage]struct{})})
	id := FluidEdgeID(len(n.edges) - 1)
	if n.graph[n1] == nil {
		n.graph[n1] = make(map[FluidNodeID]FluidEdgeID)
	}
	if n.graph[n2] == nil {
		n.graph[n2] = make(map[FluidNodeID]FluidEdgeID)
	}
	n.graph[n1][n2] = id
	n.graph[n2][n1] = id
	return id
}

// bfsPath returns a shortest path of node IDs from start to goal, or nil.
func (n *FluidNetwork) bfsPath(start, goal FluidNodeID) []FluidNodeID {
	type item struct {
		node FluidNodeID
		path []FluidNodeID
	}
	queue := []item{{node: start, path: []FluidNodeID{start}}}
	seen := map[FluidNodeID]bool{start: true}
	for len(queue) > 0 {
		cur := queue[0]
		queue = queue[1:]
		if cur.node == goal {
			return cur.path
		}
		for nbr := range n.graph[cur.node] {
			if seen[nbr] {
				continue
			}
			seen[nbr] = true
			queue = append(queue, item{node: nbr, path: append(append([]FluidNodeID{}, cur.path...), nbr)})
		}
	}
	return nil
}

func (n *FluidNetwork) routeBandwidth(edges []FluidEdgeID) float64 {
	min := n.edges[edges[0]].EffectiveBandwidth()
	for _, e := range edges[1:] {
		if bw := n.edges[e].EffectiveBandwidth(); bw < min {
			min = bw
		}
	}
	return min
}

// Handle is returned by Inject and lets a caller chain a follow-on message
// to run as soon as the first one completes, without building a Program —
// recovered from netsim.py's Handle.inject ping-pong pattern.
type Handle struct {
	network *FluidNetwork
	message *FluidMessage
}

// Then injects next once h's message completes, and returns next's own
// Handle so calls can be chained: h = h.Then(a).Then(b).Then(c).
func (h *Handle) Then(next *FluidMessage) *Handle {
	prevComplete := h.message.OnComplete
	h.message.OnComplete = func() {
		if prevComplete != nil {
			prevComplete()
		}
		_ = h.network.Inject(next)
	}
	return &Handle{network: h.network, message: next}
}

// Inject routes m over its shortest path, marks it active on every edge of
// that route, and schedules its Finish event.
func (n *FluidNetwork) Inject(m *FluidMessage) error {
	path := n.bfsPath(m.Src, m.Dst)
	if path == nil {
		return errors.Errorf("contention: no route from %v to %v", m.Src, m.Dst)
	}
	for i := 0; i < len(path)-1; i++ {
		m.Edges = append(m.Edges, n.graph[path[i]][path[i+1]])
	}

	// Advance every already-active message's progress using the bandwidth
	// in effect before m joins the active set — m is not yet in
	// n.messages, so this still sees the pre-activation bandwidth.
	n.recomputeProgress()

	n.messages[m] = struct{}{}
	m.lastUpdateTime = n.now
	m.finish = &finishEvent{message: m}
	for _, e := range m.Edges {
		n.edges[e].active[m] = struct{}{}
	}
	n.rescheduleFinishes()

	bw := n.routeBandwidth(m.Edges)
	remaining := (m.Count - m.Progress) / bw
	n.events.Add(m.finish, n.now+remaining)
	return nil
}

// InjectHandle is Inject plus a Handle for chaining a follow-on message.
func (n *FluidNetwork) InjectHandle(m *FluidMessage) (*Handle, error) {
	if err := n.Inject(m); err != nil {
		return nil, err
	}
	return &Handle{network: n, message: m}, nil
}

// recomputeProgress advances every active message's Progress using the
// bandwidth that was in effect since its last update, strictly before any
// edge's active set is allowed to change again. Splitting this from
// rescheduleFinishes (rather than mutating progress inside the same pass
// that recomputes remaining time, as netsim.py's update_message_finishes
// does) avoids using a stale route_bandwidth after the active set has
// already shifted — spec.md §9 Decision 2.
func (n *FluidNetwork) recomputeProgress() {
	for m := range n.messages {
		bw := n.routeBandwidth(m.Edges)
		m.Progress += (n.now - m.lastUpdateTime) * bw
		m.lastUpdateTime = n.now
	}
}

// rescheduleFinishes recomputes remaining time for every message with an
// outstanding Finish event and re-adds it at the new priority. Must run
// only after recomputeProgress has finished for this activation/
// deactivation.
func (n *FluidNetwork) rescheduleFinishes() {
	for m := range n.messages {
		bw := n.routeBandwidth(m.Edges)
		remaining := (m.Count - m.Progress) / bw
		newPriority := n.now + remaining
		n.events.Add(m.finish, newPriority)
	}
}

func (n *FluidNetwork) activeCounts() []int {
	counts := make([]int, len(n.edges))
	for i, e := range n.edges {
		counts[i] = len(e.active)
	}
	return counts
}

// Run drains the event queue, returning the final simulated time.
func (n *FluidNetwork) Run() (float64, error) {
	if err := n.sink.Header(len(n.edges)); err != nil {
		return 0, err
	}
	for n.events.Len() > 0 {
		t, raw, err := n.events.Pop()
		if err != nil {
			return n.now, err
		}
		n.now = t
		ev, ok := raw.(*finishEvent)
		if !ok {
			return n.now, errors.Errorf("contention: unhandled event %T", raw)
		}
		m := ev.message
		logrus.Debugf("contention: finish @%v message progress=%v/%v", n.now, m.Progress, m.Count)

		n.recomputeProgress()
		for _, e := range m.Edges {
			delete(n.edges[e].active, m)
		}
		delete(n.messages, m)
		n.rescheduleFinishes()

		if err := n.sink.Row(n.now, n.activeCounts()); err != nil {
			return n.now, err
		}
		if m.OnComplete != nil {
			m.OnComplete()
		}
	}
	return n.now, nil
}
