package localbus

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/fluidsettings/fluid-settingsd/internal/busmsg"
)

func TestSendRoutesRequestAndReply(t *testing.T) {
	b := New()

	client := busmsg.Address{Peer: "client"}
	server := busmsg.Address{Peer: "server"}

	var receivedAtServer busmsg.Message
	var receivedAtClient busmsg.Message

	b.Register(server, busmsg.HandlerFunc(func(from busmsg.Address, msg busmsg.Message) []busmsg.Message {
		receivedAtServer = msg
		return []busmsg.Message{busmsg.New("PONG", nil)}
	}))
	b.Register(client, busmsg.HandlerFunc(func(from busmsg.Address, msg busmsg.Message) []busmsg.Message {
		receivedAtClient = msg
		return nil
	}))

	err := b.Send(client, server, busmsg.New("PING", nil))
	require.NoError(t, err)

	assert.Equal(t, "PING", receivedAtServer.Command)
	assert.Equal(t, "PONG", receivedAtClient.Command)
}

func TestSendToUnknownAddressErrors(t *testing.T) {
	b := New()
	err := b.Send(busmsg.Address{Peer: "a"}, busmsg.Address{Peer: "nowhere"}, busmsg.New("PING", nil))
	assert.Error(t, err)
}

func TestBroadcastReachesReplicatorsOnly(t *testing.T) {
	b := New()

	sender := busmsg.Address{Peer: "d1"}
	peer1 := busmsg.Address{Peer: "d2"}
	peer2 := busmsg.Address{Peer: "d3"}
	bystander := busmsg.Address{Peer: "d4"}

	var gotPeer1, gotPeer2, gotBystander bool
	b.Register(peer1, busmsg.HandlerFunc(func(from busmsg.Address, msg busmsg.Message) []busmsg.Message {
		gotPeer1 = true
		return nil
	}))
	b.Register(peer2, busmsg.HandlerFunc(func(from busmsg.Address, msg busmsg.Message) []busmsg.Message {
		gotPeer2 = true
		return nil
	}))
	b.Register(bystander, busmsg.HandlerFunc(func(from busmsg.Address, msg busmsg.Message) []busmsg.Message {
		gotBystander = true
		return nil
	}))
	b.MarkReplicator(peer1)
	b.MarkReplicator(peer2)

	require.NoError(t, b.Broadcast(sender, busmsg.New("GOSSIP", nil)))

	assert.True(t, gotPeer1)
	assert.True(t, gotPeer2)
	assert.False(t, gotBystander)
}

func TestBroadcastExcludesSender(t *testing.T) {
	b := New()
	sender := busmsg.Address{Peer: "d1"}

	var gotSender bool
	b.Register(sender, busmsg.HandlerFunc(func(from busmsg.Address, msg busmsg.Message) []busmsg.Message {
		gotSender = true
		return nil
	}))
	b.MarkReplicator(sender)

	require.NoError(t, b.Broadcast(sender, busmsg.New("GOSSIP", nil)))
	assert.False(t, gotSender)
}
