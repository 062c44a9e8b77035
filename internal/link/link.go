// Package link implements the serial-transmitter state machine of spec §4.4:
// a FIFO queue drained back-to-back, one packet serialized at a time.
package link

import (
	"fmt"

	"github.com/google/uuid"
	"github.com/pkg/errors"

	"github.com/kprusa/netsim/internal/packet"
	"github.com/kprusa/netsim/internal/topo"
)

// ErrNoDestination is the TopologyError of spec §4.4: sending on a link
// whose dst was never set is a logic error.
var ErrNoDestination = errors.New("link: destination not set")

// ScheduleFunc schedules a future callback for packet p after delay seconds.
// The caller (sim.Network) owns the event queue and clock; Link only knows
// how long to wait, not how scheduling works.
type ScheduleFunc func(delay float64, p *packet.Packet)

// Link is a directed, bandwidth- and delay-bound transmitter. Bandwidth may
// be math.Inf(1) for zero-serialization-time links. Invariant: Busy is true
// iff a TxDone callback for this link is currently outstanding.
type Link struct {
	ID        topo.LinkID
	Src, Dst  topo.NodeID
	Bandwidth float64 // bits per simulated second
	Delay     float64 // seconds

	queue   []*packet.Packet
	Busy    bool
	current *packet.Packet // packet presently being serialized, if Busy
}

// New constructs an unattached link (Src/Dst are set by the owner, e.g.
// sim.Network.Join).
func New(bandwidth, delay float64) *Link {
	return &Link{ID: topo.LinkID(uuid.New()), Bandwidth: bandwidth, Delay: delay}
}

func (l *Link) String() string { return fmt.Sprintf("link[%s]", l.ID) }

// QueueLen reports the number of packets waiting (excludes the one, if any,
// currently being serialized).
func (l *Link) QueueLen() int { return len(l.queue) }

// Enqueue appends p to the FIFO queue; if the link is idle it immediately
// begins serializing the head of the queue.
func (l *Link) Enqueue(p *packet.Packet, scheduleTxDone, scheduleRecv ScheduleFunc) error {
	if (l.Dst == topo.NodeID{}) {
		return ErrNoDestination
	}
	l.queue = append(l.queue, p)
	if !l.Busy {
		l.send(scheduleTxDone, scheduleRecv)
	}
	return nil
}

// send begins serializing the head of the queue, if any. Packets depart and
// arrive strictly in enqueue order — no preemption.
func (l *Link) send(scheduleTxDone, scheduleRecv ScheduleFunc) {
	if len(l.queue) == 0 {
		return
	}
	p := l.queue[0]
	l.queue = l.queue[1:]

	txTime := float64(p.Size()) * 8 / l.Bandwidth
	scheduleTxDone(txTime, p)
	scheduleRecv(txTime+l.Delay, p)

	l.Busy = true
	l.current = p
}

// HandleTxDone completes serialization of the in-flight packet, returns it,
// and drains the next queued packet back-to-back if one is waiting.
func (l *Link) HandleTxDone(scheduleTxDone, scheduleRecv ScheduleFunc) *packet.Packet {
	finished := l.current
	l.current = nil
	l.Busy = false
	l.send(scheduleTxDone, scheduleRecv)
	return finished
}

// Reset clears transient transmission state (queue, busy flag) while
// preserving topology (bandwidth, delay, src/dst) — used by Network.Reset.
func (l *Link) Reset() {
	l.queue = nil
	l.Busy = false
	l.current = nil
}
