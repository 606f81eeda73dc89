package replicator

import (
	"bytes"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/fluidsettings/fluid-settingsd/internal/busmsg"
	"github.com/fluidsettings/fluid-settingsd/internal/localbus"
	"github.com/fluidsettings/fluid-settingsd/internal/protocol"
	"github.com/fluidsettings/fluid-settingsd/internal/settings"
)

func waitFor(t *testing.T, timeout time.Duration, cond func() bool) {
	deadline := time.Now().Add(timeout)
	for time.Now().Before(deadline) {
		if cond() {
			return
		}
		time.Sleep(5 * time.Millisecond)
	}
	t.Fatal("condition never became true")
}

func TestFrameRoundTrip(t *testing.T) {
	buf := &bytes.Buffer{}
	msg := busmsg.New(protocol.CmdValueChanged, map[string]string{protocol.ParamName: "app::size", protocol.ParamValues: "50|10|5\n"})
	require.NoError(t, writeFrame(buf, msg))

	got, err := readFrame(buf)
	require.NoError(t, err)
	assert.Equal(t, msg.Command, got.Command)
	assert.Equal(t, msg.Params, got.Params)
}

func TestGossipHandleOnlySmallerEndpointConnects(t *testing.T) {
	bus := localbus.New()
	store := settings.NewStore(nil)

	r := New(busmsg.Address{Peer: "d1"}, "127.0.0.1:19001", bus, store)
	require.NoError(t, r.ListenAndServe())
	defer r.Close()

	// Our endpoint sorts higher than the announced one, so we must not
	// attempt to dial it ourselves.
	r.Handle(busmsg.Address{Peer: "d0"}, busmsg.New(protocol.CmdGossip, map[string]string{protocol.ParamMyIP: "127.0.0.1:09999"}))
	assert.Equal(t, 0, r.PeerCount())
}

func TestTwoReplicatorsConvergeOverGossip(t *testing.T) {
	bus := localbus.New()

	storeA := settings.NewStore(nil)
	storeB := settings.NewStore(nil)

	rA := New(busmsg.Address{Peer: "dA"}, "127.0.0.1:19101", bus, storeA)
	rB := New(busmsg.Address{Peer: "dB"}, "127.0.0.1:19102", bus, storeB)

	storeA.AddStateObserver(rA)
	storeB.AddStateObserver(rB)

	require.NoError(t, rA.ListenAndServe())
	require.NoError(t, rB.ListenAndServe())
	defer rA.Close()
	defer rB.Close()

	bus.MarkReplicator(busmsg.Address{Peer: "dA"})
	bus.MarkReplicator(busmsg.Address{Peer: "dB"})
	bus.Register(busmsg.Address{Peer: "dA"}, rA)
	bus.Register(busmsg.Address{Peer: "dB"}, rB)

	storeA.Set("app::size", "10", settings.AdministratorPriority, settings.Epoch.Add(time.Second), settings.OriginLocal)

	require.NoError(t, rA.BroadcastGossip())
	require.NoError(t, rB.BroadcastGossip())

	waitFor(t, 2*time.Second, func() bool { return rA.PeerCount() == 1 && rB.PeerCount() == 1 })

	waitFor(t, 2*time.Second, func() bool {
		text, result := storeB.Get("app::size", settings.HighestPriority)
		return result == settings.Success && text == "10"
	})

	storeB.Set("app::size", "20", settings.AdministratorPriority, settings.Epoch.Add(2*time.Second), settings.OriginLocal)

	waitFor(t, 2*time.Second, func() bool {
		text, result := storeA.Get("app::size", settings.HighestPriority)
		return result == settings.Success && text == "20"
	})
}
