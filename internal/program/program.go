// Package program implements the dependency gate of spec §4.7: a DAG of
// messages that releases each message once every prerequisite has
// completed delivery.
package program

import (
	"github.com/pkg/errors"

	"github.com/kprusa/netsim/internal/packet"
)

// ErrCycle is returned by Validate when a message's dependency set can never
// fully discharge — spec §7 marks this "silent" by default but "MAY detect".
var ErrCycle = errors.New("program: dependency cycle detected")

// Program tracks, for each added message, the set of not-yet-completed
// prerequisite messages.
type Program struct {
	deps  map[*packet.Message]map[*packet.Message]struct{}
	order []*packet.Message
}

// New returns an empty Program.
func New() *Program {
	return &Program{deps: make(map[*packet.Message]map[*packet.Message]struct{})}
}

// Add records message's prerequisites and installs a single-shot completion
// callback that discharges message from every other entry's unresolved set
// once it completes. after may be empty for an immediately-ready message.
func (p *Program) Add(message *packet.Message, after ...*packet.Message) *packet.Message {
	waiting := make(map[*packet.Message]struct{}, len(after))
	for _, a := range after {
		waiting[a] = struct{}{}
	}
	p.deps[message] = waiting
	p.order = append(p.order, message)
	message.SetOnComplete(func() { p.notifyDelivered(message) })
	return message
}

func (p *Program) notifyDelivered(delivered *packet.Message) {
	for _, waiting := range p.deps {
		delete(waiting, delivered)
	}
}

// PopReadyMessages returns and removes every added message whose
// prerequisite set is currently empty, in the order they were added.
func (p *Program) PopReadyMessages() []*packet.Message {
	var ready []*packet.Message
	for _, msg := range p.order {
		waiting, ok := p.deps[msg]
		if !ok {
			continue
		}
		if len(waiting) == 0 {
			ready = append(ready, msg)
		}
	}
	for _, msg := range ready {
		delete(p.deps, msg)
	}
	p.order = remaining(p.order, p.deps)
	return ready
}

func remaining(order []*packet.Message, deps map[*packet.Message]map[*packet.Message]struct{}) []*packet.Message {
	out := order[:0:0]
	for _, msg := range order {
		if _, ok := deps[msg]; ok {
			out = append(out, msg)
		}
	}
	return out
}

// Pending returns messages still awaiting at least one prerequisite. A
// non-empty result after a simulation run indicates an unresolved (likely
// cyclic) dependency — spec §7's "silent" failure mode, made observable.
func (p *Program) Pending() []*packet.Message {
	var pending []*packet.Message
	for _, msg := range p.order {
		if waiting := p.deps[msg]; len(waiting) > 0 {
			pending = append(pending, msg)
		}
	}
	return pending
}

// Validate performs a non-destructive Kahn's-algorithm pass over the
// dependency map and returns ErrCycle naming one message that can never
// become ready, without mutating Program state. Call before RunProgram to
// surface a cycle instead of letting the run silently strand messages.
func (p *Program) Validate() error {
	remainingDeps := make(map[*packet.Message]map[*packet.Message]struct{}, len(p.deps))
	for msg, waiting := range p.deps {
		cp := make(map[*packet.Message]struct{}, len(waiting))
		for w := range waiting {
			cp[w] = struct{}{}
		}
		remainingDeps[msg] = cp
	}

	for {
		var readyNow []*packet.Message
		for msg, waiting := range remainingDeps {
			if len(waiting) == 0 {
				readyNow = append(readyNow, msg)
			}
		}
		if len(readyNow) == 0 {
			break
		}
		for _, msg := range readyNow {
			delete(remainingDeps, msg)
			for _, waiting := range remainingDeps {
				delete(waiting, msg)
			}
		}
	}

	for msg := range remainingDeps {
		return errors.Wrapf(ErrCycle, "%s", msg)
	}
	return nil
}
