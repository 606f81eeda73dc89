package adminapi

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/fluidsettings/fluid-settingsd/internal/settings"
)

type fakePeers struct {
	endpoint string
	addrs    []string
}

func (f fakePeers) Endpoint() string    { return f.endpoint }
func (f fakePeers) PeerCount() int      { return len(f.addrs) }
func (f fakePeers) PeerAddrs() []string { return f.addrs }

func doRequest(t *testing.T, s *Server, method, path string) *httptest.ResponseRecorder {
	t.Helper()
	req := httptest.NewRequest(method, path, nil)
	w := httptest.NewRecorder()
	s.Handler().ServeHTTP(w, req)
	return w
}

func TestHealthzReportsHealthy(t *testing.T) {
	s := NewServer(settings.NewStore(nil), nil, "instance-1")
	w := doRequest(t, s, http.MethodGet, "/healthz")

	require.Equal(t, http.StatusOK, w.Code)
	var body map[string]string
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &body))
	assert.Equal(t, "healthy", body["status"])
	assert.Equal(t, "instance-1", body["instance_id"])
}

func TestListOptionsReturnsStoreOptions(t *testing.T) {
	store := settings.NewStore(nil)
	store.Set("net::hostname", "alpha", settings.AdministratorPriority, time.Now().UTC(), settings.OriginLocal)

	s := NewServer(store, nil, "instance-1")
	w := doRequest(t, s, http.MethodGet, "/v1/options")

	require.Equal(t, http.StatusOK, w.Code)
	var body OptionsResponse
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &body))
	assert.Contains(t, body.Options, "net::hostname")
}

func TestListPeersReflectsReplicator(t *testing.T) {
	peers := fakePeers{endpoint: ":4042", addrs: []string{"10.0.0.2:51000", "10.0.0.3:51000"}}
	s := NewServer(settings.NewStore(nil), peers, "instance-1")
	w := doRequest(t, s, http.MethodGet, "/v1/peers")

	require.Equal(t, http.StatusOK, w.Code)
	var body PeersResponse
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &body))
	assert.Equal(t, ":4042", body.Self)
	assert.Equal(t, 2, body.Count)
	assert.ElementsMatch(t, peers.addrs, body.Peers)
}

func TestListPeersWithNilReplicatorReturnsEmpty(t *testing.T) {
	s := NewServer(settings.NewStore(nil), nil, "instance-1")
	w := doRequest(t, s, http.MethodGet, "/v1/peers")

	require.Equal(t, http.StatusOK, w.Code)
	var body PeersResponse
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &body))
	assert.Equal(t, 0, body.Count)
	assert.Empty(t, body.Peers)
}

func TestMetricsEndpointServesPrometheusFormat(t *testing.T) {
	s := NewServer(settings.NewStore(nil), nil, "instance-1")
	w := doRequest(t, s, http.MethodGet, "/metrics")

	assert.Equal(t, http.StatusOK, w.Code)
	assert.NotEmpty(t, w.Body.String())
}
