// Package packet implements message fragmentation into an ordered packet
// chain, per spec §3 and §4.3.
package packet

import (
	"fmt"

	"github.com/google/uuid"

	"github.com/kprusa/netsim/internal/topo"
)

// Framing selects a Packet's size() behavior.
type Framing int

const (
	// ZeroOverhead packets report payload_size as their wire size.
	ZeroOverhead Framing = iota
	// Framed packets add a fixed start/sequence/ECRC/end envelope plus
	// a caller-chosen header size, matching the Pcie2TLP variant.
	Framed
)

// frameOverheadBytes is the start(1) + sequence(2) + ECRC(4) + end(1) byte
// count carried by every Framed packet in addition to its header and payload.
const frameOverheadBytes = 1 + 2 + 4 + 1

// Completer is a single-shot callback invoked when a Message's last packet
// is delivered.
type Completer func()

// Message is src -> dst transfer of count bytes, fragmented on demand into
// packets. count must be >= 1.
type Message struct {
	ID    uuid.UUID
	Src   topo.NodeID
	Dst   topo.NodeID
	Count int

	onComplete Completer
	completed  bool
}

// New creates a Message. count must be >= 1.
func New(src, dst topo.NodeID, count int) *Message {
	if count < 1 {
		panic("packet: Message count must be >= 1")
	}
	return &Message{ID: uuid.New(), Src: src, Dst: dst, Count: count}
}

func (m *Message) String() string {
	return fmt.Sprintf("message[%s] %s->%s (%d bytes)", m.ID, m.Src, m.Dst, m.Count)
}

// SetOnComplete installs the callback fired by Complete. Overwrites any
// previously set callback — callers (e.g. a single Program) own this slot.
func (m *Message) SetOnComplete(fn Completer) {
	m.onComplete = fn
}

// Complete invokes the completion callback exactly once; later calls are
// no-ops, satisfying the single-shot invariant of spec §8.5.
func (m *Message) Complete() {
	if m.completed {
		return
	}
	m.completed = true
	if m.onComplete != nil {
		m.onComplete()
	}
}

// Completed reports whether Complete has already fired.
func (m *Message) Completed() bool { return m.completed }

// Packet is one fragment of a Message's payload in flight across the graph.
type Packet struct {
	ID          uuid.UUID
	Message     *Message
	Dst         topo.NodeID
	Next        *Packet
	Sequence    int
	PayloadSize int

	framing    Framing
	headerSize int
}

func (p *Packet) String() string {
	return fmt.Sprintf("packet[%s] seq=%d dst=%s size=%d", p.ID, p.Sequence, p.Dst, p.Size())
}

// Size returns the packet's total wire size in bytes: payload_size alone for
// ZeroOverhead, or the full TLP-style envelope for Framed.
func (p *Packet) Size() int {
	switch p.framing {
	case Framed:
		return frameOverheadBytes + p.headerSize + p.PayloadSize
	default:
		return p.PayloadSize
	}
}

// MakePackets fragments m into ceil(count/maxPacketSize) packets: every
// packet but the last carries maxPacketSize payload bytes, the last carries
// the remainder. Packets are sequence-numbered 0..k-1 and linked
// p[i].Next = p[i+1]; p[k-1].Next = nil. headerSize is only meaningful for
// Framed packets.
func (m *Message) MakePackets(maxPacketSize int, framing Framing, headerSize int) []*Packet {
	if maxPacketSize < 1 {
		panic("packet: maxPacketSize must be >= 1")
	}
	n := (m.Count + maxPacketSize - 1) / maxPacketSize
	packets := make([]*Packet, n)
	remaining := m.Count
	for i := 0; i < n; i++ {
		size := maxPacketSize
		if remaining < maxPacketSize {
			size = remaining
		}
		packets[i] = &Packet{
			ID:          uuid.New(),
			Message:     m,
			Dst:         m.Dst,
			Sequence:    i,
			PayloadSize: size,
			framing:     framing,
			headerSize:  headerSize,
		}
		remaining -= size
	}
	for i := 0; i < n-1; i++ {
		packets[i].Next = packets[i+1]
	}
	return packets
}
