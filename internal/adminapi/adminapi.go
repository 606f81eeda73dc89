// Package adminapi exposes the daemon's operational HTTP surface:
// health, Prometheus metrics, the schema catalogue, and the current
// peer-replication membership. It never touches the settings wire
// protocol itself, which runs over the bus, not HTTP.
package adminapi

import (
	"encoding/json"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/fluidsettings/fluid-settingsd/internal/settings"
)

// PeerLister is the subset of *replicator.Replicator the admin API
// needs. Depending on the interface rather than the concrete type
// keeps this package testable without a real TCP listener.
type PeerLister interface {
	Endpoint() string
	PeerCount() int
	PeerAddrs() []string
}

// Server provides the admin HTTP API.
type Server struct {
	store      *settings.Store
	peers      PeerLister
	instanceID string
	router     *chi.Mux
}

// NewServer builds an admin API server backed by store and peers.
// instanceID identifies this particular process run in the /healthz
// response, so an operator restarting a daemon behind the same
// endpoint can tell the restart actually happened.
func NewServer(store *settings.Store, peers PeerLister, instanceID string) *Server {
	s := &Server{store: store, peers: peers, instanceID: instanceID, router: chi.NewRouter()}
	s.setupRoutes()
	return s
}

func (s *Server) setupRoutes() {
	s.router.Use(middleware.Logger)
	s.router.Use(middleware.Recoverer)
	s.router.Use(middleware.RequestID)
	s.router.Use(corsMiddleware)

	s.router.Get("/healthz", s.health)
	s.router.Handle("/metrics", promhttp.Handler())

	s.router.Route("/v1", func(r chi.Router) {
		r.Get("/options", s.listOptions)
		r.Get("/peers", s.listPeers)
	})
}

// Handler returns the HTTP handler, ready to be passed to http.Server.
func (s *Server) Handler() http.Handler {
	return s.router
}

func (s *Server) health(w http.ResponseWriter, r *http.Request) {
	respondJSON(w, http.StatusOK, map[string]string{
		"status":      "healthy",
		"instance_id": s.instanceID,
	})
}

// OptionsResponse lists every setting name the daemon knows about,
// whether via schema definition or a stored record.
type OptionsResponse struct {
	Options []string `json:"options"`
}

func (s *Server) listOptions(w http.ResponseWriter, r *http.Request) {
	respondJSON(w, http.StatusOK, OptionsResponse{Options: s.store.ListOptions()})
}

// PeersResponse describes this daemon's view of the replication mesh.
type PeersResponse struct {
	Self  string   `json:"self"`
	Count int      `json:"count"`
	Peers []string `json:"peers"`
}

func (s *Server) listPeers(w http.ResponseWriter, r *http.Request) {
	if s.peers == nil {
		respondJSON(w, http.StatusOK, PeersResponse{})
		return
	}
	respondJSON(w, http.StatusOK, PeersResponse{
		Self:  s.peers.Endpoint(),
		Count: s.peers.PeerCount(),
		Peers: s.peers.PeerAddrs(),
	})
}

func respondJSON(w http.ResponseWriter, status int, data interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(data)
}

func corsMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Access-Control-Allow-Origin", "*")
		w.Header().Set("Access-Control-Allow-Methods", "GET, OPTIONS")
		w.Header().Set("Access-Control-Allow-Headers", "Content-Type, Authorization")

		if r.Method == http.MethodOptions {
			w.WriteHeader(http.StatusOK)
			return
		}

		next.ServeHTTP(w, r)
	})
}
