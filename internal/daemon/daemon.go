// Package daemon wires components A through G plus the ambient stack
// — configuration, logging, metrics, the admin API, and the peer
// replicator's listener — into one running fluid-settingsd process.
package daemon

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog/log"

	"github.com/fluidsettings/fluid-settingsd/internal/adminapi"
	"github.com/fluidsettings/fluid-settingsd/internal/busmsg"
	"github.com/fluidsettings/fluid-settingsd/internal/coalesce"
	"github.com/fluidsettings/fluid-settingsd/internal/config"
	"github.com/fluidsettings/fluid-settingsd/internal/metrics"
	"github.com/fluidsettings/fluid-settingsd/internal/persistence"
	"github.com/fluidsettings/fluid-settingsd/internal/protocol"
	"github.com/fluidsettings/fluid-settingsd/internal/replicator"
	"github.com/fluidsettings/fluid-settingsd/internal/schema"
	"github.com/fluidsettings/fluid-settingsd/internal/settings"
	"github.com/fluidsettings/fluid-settingsd/internal/subscriptions"
)

// sampleInterval is how often the daemon refreshes the gauge metrics
// that reflect a current count rather than an event, e.g. the number
// of live peer connections.
const sampleInterval = 10 * time.Second

// registrar is implemented by bus transports that support static
// address registration, such as internal/localbus. busmsg.Bus itself
// only fixes Send/Broadcast, since a real network transport might
// register handlers some other way; a bus that satisfies registrar
// gets this daemon's combined handler wired in automatically.
type registrar interface {
	Register(addr busmsg.Address, handler busmsg.Handler)
	MarkReplicator(addr busmsg.Address)
}

// busHandler dispatches one inbound bus message to whichever
// component owns its command: GOSSIP goes to the replicator, every
// other client-facing command goes to the protocol handler. Both are
// registered under the same bus address, since a peer and a client
// address a daemon identically.
type busHandler struct {
	protocol   *protocol.Handler
	replicator *replicator.Replicator
}

func (h busHandler) Handle(from busmsg.Address, msg busmsg.Message) []busmsg.Message {
	if msg.Command == protocol.CmdGossip {
		return h.replicator.Handle(from, msg)
	}
	return h.protocol.Handle(from, msg)
}

// Daemon owns every long-lived piece of one fluid-settingsd process.
type Daemon struct {
	cfg        *config.Config
	instanceID string

	bus        busmsg.Bus
	store      *settings.Store
	router     *subscriptions.Router
	registry   *schema.Registry
	handler    *protocol.Handler
	replicator *replicator.Replicator
	scheduler  *coalesce.Scheduler
	adminSrv   *adminapi.Server
	adminHTTP  *http.Server

	stopSampling chan struct{}
}

// New assembles a Daemon from cfg and bus, but starts nothing: call
// Run to bring it up. bus is the transport this daemon's client-facing
// and gossip traffic rides on; internal/localbus satisfies it for
// single-node or in-process embedding.
func New(cfg *config.Config, bus busmsg.Bus) (*Daemon, error) {
	// A daemon with no configured definitions directory is embedded
	// without a schema at all (nil), not a dormant empty Registry: the
	// latter would know zero names and so reject every Set. Only a
	// configured-but-empty directory, which schema.LoadPath warns
	// about itself, produces that dormant behaviour.
	var registry *schema.Registry
	var schemaBinding settings.SchemaBinding
	if cfg.Schema.SearchPath != "" {
		reg, err := schema.LoadPath(cfg.Schema.SearchPath)
		if err != nil {
			return nil, fmt.Errorf("daemon: load schema definitions: %w", err)
		}
		registry = reg
		schemaBinding = reg
	}

	store := settings.NewStore(schemaBinding)
	router := subscriptions.NewRouter(store)
	store.AddEffectiveObserver(router)

	self := busmsg.Address{Peer: cfg.Bus.Peer, Service: cfg.Bus.Service}
	handler := protocol.NewHandler(self, bus, store, router)
	router.SetNotifier(handler)

	repl := replicator.New(self, cfg.Peer.ListenAddr, bus, store)
	store.AddStateObserver(repl)

	if r, ok := bus.(registrar); ok {
		r.Register(self, busHandler{protocol: handler, replicator: repl})
		r.MarkReplicator(self)
	}

	d := &Daemon{
		cfg:          cfg,
		instanceID:   uuid.NewString(),
		bus:          bus,
		store:        store,
		router:       router,
		registry:     registry,
		handler:      handler,
		replicator:   repl,
		stopSampling: make(chan struct{}),
	}

	d.scheduler = coalesce.New(cfg.Timers.SaveTimeout, cfg.Timers.GossipTimeout, d.save, d.gossip)
	store.AddChangeObserver(d.scheduler)

	d.adminSrv = adminapi.NewServer(store, repl, d.instanceID)
	d.adminHTTP = &http.Server{Addr: cfg.Admin.ListenAddr, Handler: d.adminSrv.Handler()}

	return d, nil
}

// Bus returns the transport this daemon registered its client-facing
// handler on. Tests and single-process embedding use this to register
// additional peers on the same localbus.
func (d *Daemon) Bus() busmsg.Bus { return d.bus }

// Handler returns the client-facing protocol handler, for a caller
// that registers it on the bus under its own address conventions.
func (d *Daemon) Handler() *protocol.Handler { return d.handler }

// InstanceID returns the identifier generated for this process run,
// also surfaced by the admin API's /healthz endpoint.
func (d *Daemon) InstanceID() string { return d.instanceID }

// Run loads persisted state, opens the peer listener and admin HTTP
// server, and starts the coalescing timers. It returns once every
// subsystem is up. Cancelling ctx ends only the metrics sampling loop;
// callers stop the daemon by calling Close.
func (d *Daemon) Run(ctx context.Context) error {
	log.Info().Str("instance_id", d.instanceID).Msg("daemon: starting")

	if err := persistence.Load(d.store, d.cfg.Storage.SettingsPath); err != nil {
		return fmt.Errorf("daemon: load persisted state: %w", err)
	}
	log.Info().Int("settings", len(d.store.AllNames())).Msg("daemon: loaded persisted state")

	if err := d.replicator.ListenAndServe(); err != nil {
		return fmt.Errorf("daemon: start replicator: %w", err)
	}

	go func() {
		log.Info().Str("addr", d.cfg.Admin.ListenAddr).Msg("daemon: admin API listening")
		if err := d.adminHTTP.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Error().Err(err).Msg("daemon: admin API server exited")
		}
	}()

	d.scheduler.Start()
	go d.sampleLoop(ctx)

	return nil
}

// Close stops every background subsystem and waits for them to exit.
// A final save is attempted so a clean shutdown never drops whatever
// hasn't hit disk yet.
func (d *Daemon) Close(ctx context.Context) error {
	close(d.stopSampling)
	d.scheduler.Stop()

	shutdownCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	if err := d.adminHTTP.Shutdown(shutdownCtx); err != nil {
		log.Warn().Err(err).Msg("daemon: admin API shutdown")
	}

	if err := d.replicator.Close(); err != nil {
		log.Warn().Err(err).Msg("daemon: replicator shutdown")
	}

	d.save()
	return nil
}

func (d *Daemon) save() {
	if err := persistence.Save(d.store, d.cfg.Storage.SettingsPath); err != nil {
		log.Error().Err(err).Msg("daemon: save failed")
	}
}

func (d *Daemon) gossip() {
	if err := d.replicator.BroadcastGossip(); err != nil {
		log.Warn().Err(err).Msg("daemon: gossip broadcast failed")
	}
}

// sampleLoop periodically refreshes the gauge metrics that describe a
// current count (subscribers, watched names, peers, settings) rather
// than an event. Event counters are incremented at their call site in
// the owning package instead; only "how many right now" needs polling.
func (d *Daemon) sampleLoop(ctx context.Context) {
	ticker := time.NewTicker(sampleInterval)
	defer ticker.Stop()

	d.sample()
	for {
		select {
		case <-ctx.Done():
			return
		case <-d.stopSampling:
			return
		case <-ticker.C:
			d.sample()
		}
	}
}

func (d *Daemon) sample() {
	metrics.SubscribersGauge.Set(float64(d.router.SubscriberCount()))
	metrics.WatchedNamesGauge.Set(float64(d.router.WatchedNameCount()))
	metrics.PeersGauge.Set(float64(d.replicator.PeerCount()))
	metrics.SettingsGauge.Set(float64(len(d.store.AllNames())))
}
