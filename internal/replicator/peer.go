package replicator

import (
	"net"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/fluidsettings/fluid-settingsd/internal/backoff"
	"github.com/fluidsettings/fluid-settingsd/internal/busmsg"
	"github.com/fluidsettings/fluid-settingsd/internal/metrics"
	"github.com/fluidsettings/fluid-settingsd/internal/protocol"
	"github.com/fluidsettings/fluid-settingsd/internal/settings"
)

// maxConsecutiveFailures is the number of back-to-back dial failures
// after which a peer endpoint is no longer retried. A fresh GOSSIP
// naming that endpoint resets the counter and re-enables dialing.
const maxConsecutiveFailures = 10

const dialTimeout = 5 * time.Second

// activePeer tracks the dial-side bookkeeping for one remote endpoint
// this replicator has decided (by endpoint ordering) to connect to.
type activePeer struct {
	endpoint  string
	failures  int
	disabled  bool
	dialing   bool
	connected bool
}

func (r *Replicator) acceptLoop(listener net.Listener) {
	defer r.wg.Done()
	for {
		conn, err := listener.Accept()
		if err != nil {
			return
		}
		r.wg.Add(1)
		go func() {
			defer r.wg.Done()
			defer recoverConnection(conn)
			r.handleConnection(conn, false)
		}()
	}
}

// recoverConnection stops a panic inside one peer connection's
// goroutine from taking down the daemon. The connection is closed and
// the panic logged at error; every other connection is unaffected.
func recoverConnection(conn net.Conn) {
	if p := recover(); p != nil {
		log.Error().Str("remote", conn.RemoteAddr().String()).
			Interface("panic", p).Msg("replicator: recovered panic in connection handler")
	}
}

// connectTo starts (or resumes) dialing endpoint. It is idempotent: a
// peer already connecting or connected is left alone, and a
// previously disabled peer is re-armed, since being named in a new
// GOSSIP is evidence it is reachable again.
func (r *Replicator) connectTo(endpoint string) {
	r.mu.Lock()
	if r.closed {
		r.mu.Unlock()
		return
	}
	ap, ok := r.active[endpoint]
	if !ok {
		ap = &activePeer{endpoint: endpoint}
		r.active[endpoint] = ap
	}
	if ap.disabled {
		ap.disabled = false
		ap.failures = 0
	}
	if ap.dialing || ap.connected {
		r.mu.Unlock()
		return
	}
	ap.dialing = true
	r.mu.Unlock()

	r.wg.Add(1)
	go r.dialLoop(ap)
}

func (r *Replicator) dialLoop(ap *activePeer) {
	defer r.wg.Done()

	for {
		r.mu.Lock()
		closed := r.closed
		disabled := ap.disabled
		r.mu.Unlock()
		if closed || disabled {
			r.mu.Lock()
			ap.dialing = false
			r.mu.Unlock()
			return
		}

		conn, err := net.DialTimeout("tcp", ap.endpoint, dialTimeout)
		if err != nil {
			r.mu.Lock()
			ap.failures++
			failures := ap.failures
			if failures >= maxConsecutiveFailures {
				ap.disabled = true
				ap.dialing = false
			}
			r.mu.Unlock()

			metrics.ReplicatorErrorsTotal.WithLabelValues("dial").Inc()
			if failures >= maxConsecutiveFailures {
				log.Warn().Str("endpoint", ap.endpoint).Int("failures", failures).
					Msg("replicator: disabling reconnection after repeated failures")
				return
			}

			delay := backoff.Calculate(r.backoffCfg, uint32(failures))
			select {
			case <-time.After(delay):
			case <-r.stopCh:
				r.mu.Lock()
				ap.dialing = false
				r.mu.Unlock()
				return
			}
			continue
		}

		r.mu.Lock()
		ap.failures = 0
		ap.dialing = false
		ap.connected = true
		r.mu.Unlock()

		r.runHandleConnection(conn)

		r.mu.Lock()
		ap.connected = false
		closed = r.closed
		disabled = ap.disabled
		ap.dialing = !closed && !disabled
		r.mu.Unlock()
		if closed || disabled {
			return
		}
		// connection dropped; loop around and redial.
	}
}

// runHandleConnection wraps handleConnection with the same panic
// recovery the accept-side goroutine gets, so a redial loop survives
// a panicking peer exchange instead of taking the daemon down with it.
func (r *Replicator) runHandleConnection(conn net.Conn) {
	defer recoverConnection(conn)
	r.handleConnection(conn, true)
}

// handleConnection runs the handshake, anti-entropy exchange, and
// read loop for one live peer connection. active reports which side
// opened the TCP connection: the passive side speaks first, replying
// CONNECTED with its own endpoint so the active side's view stays
// symmetric, mirroring the original daemon's connect_from_gossip.
func (r *Replicator) handleConnection(conn net.Conn, active bool) {
	defer conn.Close()

	if active {
		msg, err := readFrame(conn)
		if err != nil || msg.Command != protocol.ReplyConnected {
			metrics.ReplicatorErrorsTotal.WithLabelValues("handshake").Inc()
			log.Warn().Str("remote", conn.RemoteAddr().String()).Err(err).
				Msg("replicator: peer handshake failed")
			return
		}
	} else {
		reply := busmsg.New(protocol.ReplyConnected, map[string]string{protocol.ParamMyIP: r.myEndpoint})
		if err := writeFrame(conn, reply); err != nil {
			metrics.ReplicatorErrorsTotal.WithLabelValues("handshake").Inc()
			return
		}
	}

	id := conn.RemoteAddr().String()
	r.registerConn(id, conn)
	defer r.unregisterConn(id)

	log.Info().Str("remote", id).Bool("active", active).Msg("replicator: peer connected")
	r.sendAntiEntropy(conn)
	r.readLoop(conn)
	log.Info().Str("remote", id).Msg("replicator: peer disconnected")
}

// sendAntiEntropy streams every known setting's full record set to a
// newly connected peer. Both sides of a connection do this, so state
// converges regardless of which side initiated.
func (r *Replicator) sendAntiEntropy(conn net.Conn) {
	for _, name := range r.store.AllNames() {
		blob := r.store.Serialize(name)
		msg := busmsg.New(protocol.CmdValueChanged, map[string]string{
			protocol.ParamName:   name,
			protocol.ParamValues: blob,
		})
		if err := writeFrame(conn, msg); err != nil {
			return
		}
		metrics.AntiEntropyRecordsTotal.WithLabelValues("sent").Inc()
	}
}

func (r *Replicator) readLoop(conn net.Conn) {
	for {
		msg, err := readFrame(conn)
		if err != nil {
			return
		}
		if msg.Command != protocol.CmdValueChanged {
			continue
		}
		metrics.ValueChangedTotal.WithLabelValues("received").Inc()
		name := msg.ParamOr(protocol.ParamName, "")
		blob := msg.ParamOr(protocol.ParamValues, "")
		if name == "" {
			continue
		}
		if _, err := r.store.Deserialize(name, blob, settings.OriginRemote); err != nil {
			log.Warn().Str("name", name).Err(err).Msg("replicator: rejected remote record")
		}
	}
}

func (r *Replicator) registerConn(id string, conn net.Conn) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.conns[id] = conn
}

func (r *Replicator) unregisterConn(id string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	delete(r.conns, id)
}
