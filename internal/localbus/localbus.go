// Package localbus is an in-process implementation of busmsg.Bus. It
// is used by tests that want to exercise the protocol and replicator
// packages without a real socket, and by single-node embedding where
// there is nothing to connect to over the network.
package localbus

import (
	"fmt"
	"sync"

	"github.com/rs/zerolog/log"

	"github.com/fluidsettings/fluid-settingsd/internal/busmsg"
)

// Bus routes messages between registered addresses entirely in
// memory. It is safe for concurrent use.
type Bus struct {
	mu          sync.RWMutex
	handlers    map[busmsg.Address]busmsg.Handler
	replicators map[busmsg.Address]struct{}
}

// New creates an empty local bus.
func New() *Bus {
	return &Bus{
		handlers:    make(map[busmsg.Address]busmsg.Handler),
		replicators: make(map[busmsg.Address]struct{}),
	}
}

// Register associates addr with handler: messages Sent or Broadcast
// to addr are delivered to handler.Handle.
func (b *Bus) Register(addr busmsg.Address, handler busmsg.Handler) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.handlers[addr] = handler
}

// Unregister removes addr's handler and replicator membership.
func (b *Bus) Unregister(addr busmsg.Address) {
	b.mu.Lock()
	defer b.mu.Unlock()
	delete(b.handlers, addr)
	delete(b.replicators, addr)
}

// MarkReplicator flags addr as a recipient of Broadcast messages
// (GOSSIP, VALUE_CHANGED). Only addresses registered with Register
// ever receive anything; MarkReplicator just opts an already-
// registered address into broadcasts too.
func (b *Bus) MarkReplicator(addr busmsg.Address) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.replicators[addr] = struct{}{}
}

// Send implements busmsg.Bus. Any reply msg's handler returns is sent
// straight back to from, so a request/reply exchange round-trips
// through a single Send call.
func (b *Bus) Send(from, to busmsg.Address, msg busmsg.Message) error {
	b.mu.RLock()
	handler, ok := b.handlers[to]
	b.mu.RUnlock()
	if !ok {
		return fmt.Errorf("localbus: no handler registered for %s", to)
	}

	for _, reply := range handler.Handle(from, msg) {
		if err := b.Send(to, from, reply); err != nil {
			log.Debug().Str("from", to.String()).Str("to", from.String()).Str("command", reply.Command).Err(err).Msg("localbus: reply undeliverable")
		}
	}
	return nil
}

// Broadcast implements busmsg.Bus. Replies returned by a recipient's
// handler are dropped: VALUE_CHANGED and GOSSIP are fire-and-forget by
// design (see internal/replicator for how a GOSSIP recipient that
// wants to respond does so by opening its own direct connection
// instead of replying on the broadcast channel).
func (b *Bus) Broadcast(from busmsg.Address, msg busmsg.Message) error {
	b.mu.RLock()
	targets := make([]busmsg.Address, 0, len(b.replicators))
	for addr := range b.replicators {
		if addr != from {
			targets = append(targets, addr)
		}
	}
	handlers := b.handlers
	b.mu.RUnlock()

	for _, addr := range targets {
		if handler, ok := handlers[addr]; ok {
			handler.Handle(from, msg)
		}
	}
	return nil
}
