// Package sim implements the Scheduler/Clock and end-to-end sequencing of
// spec §4.6 and §4.8: the canonical packet-level store-and-forward engine
// that ties together internal/topo, internal/link, internal/packet, and
// internal/program.
package sim

import (
	"math"

	"github.com/pkg/errors"
	"github.com/sirupsen/logrus"

	"github.com/kprusa/netsim/internal/contention"
	"github.com/kprusa/netsim/internal/link"
	"github.com/kprusa/netsim/internal/packet"
	"github.com/kprusa/netsim/internal/pq"
	"github.com/kprusa/netsim/internal/program"
	"github.com/kprusa/netsim/internal/topo"
)

// ErrUnhandledEvent is spec §7's UnhandledEvent: a handler received an event
// kind it doesn't recognize — a programming error, fatal.
var ErrUnhandledEvent = errors.New("sim: unhandled event")

// DefaultPacketSize is the max_packet_size used by Inject/RunProgram when
// the Network was built with New (no explicit override).
const DefaultPacketSize = 128

// Event kinds dispatched by Network.dispatch, per spec §3 "Event".
type txDoneEvent struct{ linkID topo.LinkID }
type recvEvent struct {
	node topo.NodeID
	pkt  *packet.Packet
}
type injectEvent struct{ message *packet.Message }

// Network is the simulator core: clock, event queue, graph, links, and the
// dependency program, wired together per spec §4.8's end-to-end sequencing.
type Network struct {
	now    float64
	events *pq.Queue

	graph  *topo.Graph
	router *topo.Router
	links  map[topo.LinkID]*link.Link
	// linkOrder is link insertion order, used only to give the contention
	// sink stable column indices (spec §4.10: "0,1,...,N-1").
	linkOrder []topo.LinkID

	program *program.Program
	sink    contention.Sink

	packetSize int
	framing    packet.Framing
	headerSize int

	active map[topo.LinkID]map[*packet.Message]int

	log *logrus.Entry
}

// New returns an empty Network using ZeroOverhead packets of
// DefaultPacketSize bytes and discarding contention rows.
func New() *Network {
	g := topo.NewGraph()
	return &Network{
		events:     pq.New(),
		graph:      g,
		router:     topo.NewRouter(g),
		links:      make(map[topo.LinkID]*link.Link),
		program:    program.New(),
		sink:       contention.NullSink{},
		packetSize: DefaultPacketSize,
		framing:    packet.ZeroOverhead,
		active:     make(map[topo.LinkID]map[*packet.Message]int),
		log:        logrus.WithField("component", "sim"),
	}
}

// SetContentionSink installs the sink that receives link-utilization rows
// (spec §4.10). Pass contention.NullSink{} to disable.
func (n *Network) SetContentionSink(sink contention.Sink) { n.sink = sink }

// SetPacketFraming configures the packet variant (spec §4.3) used by Inject
// and RunProgram. framing == packet.Framed requires headerSize >= 0.
func (n *Network) SetPacketFraming(maxPacketSize int, framing packet.Framing, headerSize int) {
	n.packetSize = maxPacketSize
	n.framing = framing
	n.headerSize = headerSize
}

// Now returns the current simulated time.
func (n *Network) Now() float64 { return n.now }

// AddNode creates a node and returns its handle.
func (n *Network) AddNode() topo.NodeID { return n.graph.AddNode() }

// Join installs a directed link src->dst with the given bandwidth (bits per
// simulated second; math.Inf(1) permitted) and delay (seconds, >= 0).
func (n *Network) Join(src, dst topo.NodeID, bandwidth, delay float64) (topo.LinkID, error) {
	l := link.New(bandwidth, delay)
	l.Src, l.Dst = src, dst
	if err := n.graph.Join(src, dst, l.ID); err != nil {
		return topo.LinkID{}, err
	}
	n.links[l.ID] = l
	n.linkOrder = append(n.linkOrder, l.ID)
	n.active[l.ID] = make(map[*packet.Message]int)
	return l.ID, nil
}

// JoinSymmetric creates two independent directed links between n1 and n2,
// each with their own queue (spec §3 "symmetric join").
func (n *Network) JoinSymmetric(n1, n2 topo.NodeID, bandwidth, delay float64) error {
	if _, err := n.Join(n1, n2, bandwidth, delay); err != nil {
		return err
	}
	if _, err := n.Join(n2, n1, bandwidth, delay); err != nil {
		return err
	}
	return nil
}

// InitializeRoutes must be called before Run/RunProgram; see topo.Router.
func (n *Network) InitializeRoutes() error { return n.router.Initialize() }

// Schedule inserts event at now+delay. delay must be finite and >= 0.
func (n *Network) Schedule(event any, delay float64) {
	if delay < 0 {
		panic("sim: negative delay")
	}
	if math.IsInf(delay, 1) {
		panic("sim: infinite delay")
	}
	n.events.Add(event, n.now+delay)
}

// Inject schedules message for injection at the current simulated time
// (low-level entry point; RunProgram is the gated entry point most callers
// want). Fragmentation into packets and forwarding onto the first hop's link
// happen when Run dispatches that event, so routing errors surface from Run,
// not from Inject.
func (n *Network) Inject(message *packet.Message) (*packet.Message, error) {
	n.events.Add(&injectEvent{message: message}, n.now)
	return message, nil
}

// Program exposes the dependency gate for callers building a Program by
// hand before calling RunProgram.
func (n *Network) Program() *program.Program { return n.program }

func (n *Network) injectReady() error {
	for _, msg := range n.program.PopReadyMessages() {
		if _, err := n.Inject(msg); err != nil {
			return err
		}
	}
	return nil
}

// routeAndSend looks up the outgoing link for p.Dst from node's route table
// and enqueues p onto it.
func (n *Network) routeAndSend(nodeID topo.NodeID, p *packet.Packet) error {
	node, ok := n.graph.Node(nodeID)
	if !ok {
		return errors.Wrapf(topo.ErrUnknownNode, "routeAndSend: %s", nodeID)
	}
	linkID, ok := node.Route[p.Dst]
	if !ok {
		return errors.Wrapf(topo.ErrNoRoute, "node %s has no route to %s", nodeID, p.Dst)
	}
	return n.sendOnLink(linkID, p)
}

func (n *Network) sendOnLink(linkID topo.LinkID, p *packet.Packet) error {
	l, ok := n.links[linkID]
	if !ok {
		return errors.Wrapf(topo.ErrUnknownNode, "sendOnLink: unknown link %s", linkID)
	}
	n.bumpActive(linkID, p.Message, +1)

	scheduleTx := func(delay float64, pp *packet.Packet) {
		n.Schedule(&txDoneEvent{linkID: linkID}, delay)
	}
	scheduleRecv := func(delay float64, pp *packet.Packet) {
		n.Schedule(&recvEvent{node: l.Dst, pkt: pp}, delay)
	}
	if err := l.Enqueue(p, scheduleTx, scheduleRecv); err != nil {
		return err
	}
	return n.dumpRow()
}

func (n *Network) bumpActive(linkID topo.LinkID, msg *packet.Message, delta int) {
	counts := n.active[linkID]
	counts[msg] += delta
	if counts[msg] <= 0 {
		delete(counts, msg)
	}
}

func (n *Network) activeCounts() []int {
	counts := make([]int, len(n.linkOrder))
	for i, id := range n.linkOrder {
		counts[i] = len(n.active[id])
	}
	return counts
}

func (n *Network) dumpRow() error {
	return n.sink.Row(n.now, n.activeCounts())
}

func (n *Network) dispatch(raw any) error {
	switch ev := raw.(type) {
	case *injectEvent:
		return n.handleInject(ev)
	case *recvEvent:
		return n.handleRecv(ev)
	case *txDoneEvent:
		return n.handleTxDone(ev)
	default:
		return errors.Wrapf(ErrUnhandledEvent, "%T", raw)
	}
}

func (n *Network) handleInject(ev *injectEvent) error {
	msg := ev.message
	packets := msg.MakePackets(n.packetSize, n.framing, n.headerSize)
	n.log.Debugf("inject %s into %d packets", msg, len(packets))
	for _, p := range packets {
		if err := n.routeAndSend(msg.Src, p); err != nil {
			return err
		}
	}
	return nil
}

func (n *Network) handleRecv(ev *recvEvent) error {
	p := ev.pkt
	if p.Dst == ev.node {
		n.log.Debugf("packet %s arrived at %s", p, ev.node)
		if p.Next == nil {
			n.log.Infof("message %s delivered @%v", p.Message, n.now)
			p.Message.Complete()
			if err := n.injectReady(); err != nil {
				return err
			}
		}
		return n.dumpRow()
	}
	if err := n.routeAndSend(ev.node, p); err != nil {
		return err
	}
	return nil
}

func (n *Network) handleTxDone(ev *txDoneEvent) error {
	l, ok := n.links[ev.linkID]
	if !ok {
		return errors.Wrapf(topo.ErrUnknownNode, "handleTxDone: unknown link %s", ev.linkID)
	}
	scheduleTx := func(delay float64, pp *packet.Packet) {
		n.Schedule(&txDoneEvent{linkID: ev.linkID}, delay)
	}
	scheduleRecv := func(delay float64, pp *packet.Packet) {
		n.Schedule(&recvEvent{node: l.Dst, pkt: pp}, delay)
	}
	finished := l.HandleTxDone(scheduleTx, scheduleRecv)
	if finished != nil {
		n.bumpActive(ev.linkID, finished.Message, -1)
	}
	return n.dumpRow()
}

// Run drains the event queue until empty, dispatching each event in
// simulated-time, then-FIFO order, and returns the final time.
func (n *Network) Run() (float64, error) {
	if err := n.injectReady(); err != nil {
		return n.now, err
	}
	if err := n.sink.Header(len(n.linkOrder)); err != nil {
		return n.now, err
	}
	for n.events.Len() > 0 {
		t, raw, err := n.events.Pop()
		if err != nil {
			return n.now, err
		}
		if t < n.now {
			panic("sim: clock moved backwards")
		}
		n.now = t
		if err := n.dispatch(raw); err != nil {
			return n.now, err
		}
	}
	n.log.Infof("simulation finished @%v", n.now)
	return n.now, nil
}

// RunProgram adopts p, releases its initially-ready messages, and runs the
// event loop to completion.
func (n *Network) RunProgram(p *program.Program) (float64, error) {
	if err := p.Validate(); err != nil {
		n.log.Warnf("run_program: %v", err)
	}
	n.program = p
	return n.Run()
}

// Reset clears clock, event queue, and link transient state, preserving
// topology (nodes, links, route tables) — spec §5 "Network.reset()".
func (n *Network) Reset() {
	n.now = 0
	n.events = pq.New()
	for _, l := range n.links {
		l.Reset()
	}
	for id := range n.active {
		n.active[id] = make(map[*packet.Message]int)
	}
	n.program = program.New()
}

// String renders the graph topology.
func (n *Network) String() string { return n.graph.String() }
