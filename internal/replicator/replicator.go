// Package replicator propagates settings between daemons that share
// a bus. A periodic GOSSIP broadcast announces each daemon's peer
// endpoint; endpoints are compared in a total order so exactly one
// side of every pair dials the other, opening a long-lived framed TCP
// connection used for bidirectional anti-entropy and ongoing
// VALUE_CHANGED propagation. Loop suppression relies on
// settings.Origin: only locally-originated state changes are
// rebroadcast, so a record received from a peer is never echoed back
// to it.
package replicator

import (
	"fmt"
	"net"
	"sort"
	"sync"

	"github.com/rs/zerolog/log"

	"github.com/fluidsettings/fluid-settingsd/internal/backoff"
	"github.com/fluidsettings/fluid-settingsd/internal/busmsg"
	"github.com/fluidsettings/fluid-settingsd/internal/metrics"
	"github.com/fluidsettings/fluid-settingsd/internal/protocol"
	"github.com/fluidsettings/fluid-settingsd/internal/settings"
)

// Replicator implements settings.StateChangeObserver (to learn about
// locally-originated mutations) and busmsg.Handler (to receive
// GOSSIP announcements over the shared bus).
type Replicator struct {
	selfBus    busmsg.Address
	myEndpoint string
	bus        busmsg.Bus
	store      *settings.Store
	backoffCfg backoff.Config

	mu       sync.Mutex
	active   map[string]*activePeer
	conns    map[string]net.Conn
	listener net.Listener
	closed   bool
	stopCh   chan struct{}
	wg       sync.WaitGroup
}

var (
	_ settings.StateChangeObserver = (*Replicator)(nil)
	_ busmsg.Handler               = (*Replicator)(nil)
)

// New builds a Replicator. self is the bus address it registers under
// to receive GOSSIP; myEndpoint is the host:port it advertises and
// listens on for direct peer connections.
func New(self busmsg.Address, myEndpoint string, bus busmsg.Bus, store *settings.Store) *Replicator {
	return &Replicator{
		selfBus:    self,
		myEndpoint: myEndpoint,
		bus:        bus,
		store:      store,
		backoffCfg: backoff.DefaultConfig(),
		active:     make(map[string]*activePeer),
		conns:      make(map[string]net.Conn),
		stopCh:     make(chan struct{}),
	}
}

// ListenAndServe opens the peer listener on myEndpoint and starts
// accepting inbound connections in the background. Call once before
// the first BroadcastGossip.
func (r *Replicator) ListenAndServe() error {
	listener, err := net.Listen("tcp", r.myEndpoint)
	if err != nil {
		return fmt.Errorf("replicator: listen on %s: %w", r.myEndpoint, err)
	}

	r.mu.Lock()
	r.listener = listener
	r.mu.Unlock()

	r.wg.Add(1)
	go r.acceptLoop(listener)
	log.Info().Str("endpoint", r.myEndpoint).Msg("replicator: listening for peers")
	return nil
}

// Close stops accepting new peers, closes every live connection, and
// waits for background goroutines to finish.
func (r *Replicator) Close() error {
	r.mu.Lock()
	if r.closed {
		r.mu.Unlock()
		return nil
	}
	r.closed = true
	listener := r.listener
	conns := make([]net.Conn, 0, len(r.conns))
	for _, c := range r.conns {
		conns = append(conns, c)
	}
	r.mu.Unlock()

	close(r.stopCh)
	if listener != nil {
		listener.Close()
	}
	for _, c := range conns {
		c.Close()
	}
	r.wg.Wait()
	return nil
}

// Handle reacts to a GOSSIP broadcast received over the bus. Every
// daemon that sees it compares its own endpoint against the
// advertised one using the same total order, so the side with the
// smaller endpoint always ends up dialing the other.
func (r *Replicator) Handle(from busmsg.Address, msg busmsg.Message) []busmsg.Message {
	if msg.Command != protocol.CmdGossip {
		return nil
	}
	theirEndpoint := msg.ParamOr(protocol.ParamMyIP, "")
	if theirEndpoint == "" || theirEndpoint == r.myEndpoint {
		return nil
	}
	if r.myEndpoint < theirEndpoint {
		r.connectTo(theirEndpoint)
	}
	return nil
}

// BroadcastGossip announces this daemon's endpoint to every other
// replicator reachable on the bus. Intended to be called on a
// gossip_timeout ticker.
func (r *Replicator) BroadcastGossip() error {
	msg := busmsg.New(protocol.CmdGossip, map[string]string{protocol.ParamMyIP: r.myEndpoint})
	return r.bus.Broadcast(r.selfBus, msg)
}

// OnStateChange implements settings.StateChangeObserver. Only
// locally-originated changes reach here (the store never calls state
// observers for OriginRemote mutations), so forwarding every call
// unconditionally already gives correct loop suppression.
func (r *Replicator) OnStateChange(name string, origin settings.Origin) {
	blob := r.store.Serialize(name)
	msg := busmsg.New(protocol.CmdValueChanged, map[string]string{
		protocol.ParamName:   name,
		protocol.ParamValues: blob,
	})

	r.mu.Lock()
	conns := make([]net.Conn, 0, len(r.conns))
	for _, c := range r.conns {
		conns = append(conns, c)
	}
	r.mu.Unlock()

	for _, c := range conns {
		if err := writeFrame(c, msg); err != nil {
			log.Warn().Str("remote", c.RemoteAddr().String()).Err(err).
				Msg("replicator: failed to propagate change")
			continue
		}
		metrics.ValueChangedTotal.WithLabelValues("sent").Inc()
	}
}

// PeerCount reports the number of live peer connections, for metrics
// and the admin API.
func (r *Replicator) PeerCount() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.conns)
}

// PeerAddrs returns the remote address of every live peer connection,
// sorted, for the admin API.
func (r *Replicator) PeerAddrs() []string {
	r.mu.Lock()
	defer r.mu.Unlock()
	addrs := make([]string, 0, len(r.conns))
	for id := range r.conns {
		addrs = append(addrs, id)
	}
	sort.Strings(addrs)
	return addrs
}

// Endpoint returns the advertised peer-listener address.
func (r *Replicator) Endpoint() string { return r.myEndpoint }
