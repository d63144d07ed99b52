package services

import (
	"context"
	"testing"
	"time"

	"sfucore/internal/core/domain"

	"github.com/stretchr/testify/assert"
)

func TestAttachPeer_SendsMediasoupVersionOnce(t *testing.T) {
	r := newTestRoom(0)
	ch := &fakeChannel{}

	err := r.AttachPeer(context.Background(), domain.PeerID("A"), "1.2.3.4", domain.Device{}, ch)
	assert.NoError(t, err)
	assert.Equal(t, 1, ch.notifyCount("mediasoupVersion"))
}

func TestAttachPeer_SupersedesExistingSessionForSamePeerID(t *testing.T) {
	r := newTestRoom(0)
	first := &fakeChannel{}
	second := &fakeChannel{}

	assert.NoError(t, r.AttachPeer(context.Background(), domain.PeerID("A"), "1.1.1.1", domain.Device{}, first))
	assert.NoError(t, r.AttachPeer(context.Background(), domain.PeerID("A"), "2.2.2.2", domain.Device{}, second))

	assert.True(t, first.isClosed())
	assert.False(t, second.isClosed())
}

// TestJoinTimerExpiry_ClosesWithoutDisconnectedOrNewPeer is spec.md §4.2
// scenario S4: a peer that never sends join within the timeout is closed,
// not disconnected, and nobody else hears about it.
func TestJoinTimerExpiry_ClosesWithoutDisconnectedOrNewPeer(t *testing.T) {
	r := newTestRoom(0)

	observer := &fakeChannel{}
	assert.NoError(t, r.AttachPeer(context.Background(), domain.PeerID("B"), "2.2.2.2", domain.Device{}, observer))
	_, _, err := r.Join(context.Background(), domain.PeerID("B"), "bob", domain.Device{}, domain.RTPCapabilities{}, nil)
	assert.NoError(t, err)

	oldTimeout := joinTimeout
	joinTimeout = 5 * time.Millisecond
	defer func() { joinTimeout = oldTimeout }()

	attached := &fakeChannel{}

	assert.NoError(t, r.AttachPeer(context.Background(), domain.PeerID("A"), "1.1.1.1", domain.Device{}, attached))

	time.Sleep(30 * time.Millisecond)

	assert.True(t, attached.isClosed())
	assert.Equal(t, 0, attached.notifyCount("disconnected"))
	assert.Equal(t, 0, observer.notifyCount("newPeer"))
	assert.Equal(t, 0, observer.notifyCount("peerClosed"))

	r.enqueueSync(func() {
		_, stillJoining := r.joiningPeers[domain.PeerID("A")]
		assert.False(t, stillJoining)
	})
}

// TestDisconnect_JoinedPeerEmitsPeerClosedToOthers is spec.md §3 "joined ->
// disconnected" half of S5 (the transport-failure trigger for it is
// exercised by TestConsumeTransportFailure_DisconnectsPeer below).
func TestDisconnect_JoinedPeerEmitsPeerClosedToOthers(t *testing.T) {
	r := newTestRoom(0)
	chA := &fakeChannel{}
	chB := &fakeChannel{}

	assert.NoError(t, r.AttachPeer(context.Background(), domain.PeerID("A"), "1.1.1.1", domain.Device{}, chA))
	assert.NoError(t, r.AttachPeer(context.Background(), domain.PeerID("B"), "2.2.2.2", domain.Device{}, chB))
	_, _, err := r.Join(context.Background(), domain.PeerID("A"), "alice", domain.Device{}, domain.RTPCapabilities{}, nil)
	assert.NoError(t, err)
	_, _, err = r.Join(context.Background(), domain.PeerID("B"), "bob", domain.Device{}, domain.RTPCapabilities{}, nil)
	assert.NoError(t, err)

	r.Disconnect(context.Background(), domain.PeerID("A"))

	assert.Equal(t, 1, chB.notifyCount("peerClosed"))
	found := false
	for _, n := range chB.snapshotNotifications() {
		if n.method == "peerClosed" {
			payload := n.payload.(map[string]domain.PeerID)
			assert.Equal(t, domain.PeerID("A"), payload["peerId"])
			found = true
		}
	}
	assert.True(t, found)
}

// TestConsumeTransportFailure_DisconnectsPeer is spec.md §4.2/§4.8
// scenario S5: a joined peer's consume-direction transport failing closes
// the peer and notifies the rest of the room.
func TestConsumeTransportFailure_DisconnectsPeer(t *testing.T) {
	r := newTestRoom(0)
	chA := &fakeChannel{}
	chB := &fakeChannel{}

	assert.NoError(t, r.AttachPeer(context.Background(), domain.PeerID("A"), "1.1.1.1", domain.Device{}, chA))
	assert.NoError(t, r.AttachPeer(context.Background(), domain.PeerID("B"), "2.2.2.2", domain.Device{}, chB))
	_, _, err := r.Join(context.Background(), domain.PeerID("A"), "alice", domain.Device{}, domain.RTPCapabilities{}, nil)
	assert.NoError(t, err)
	_, _, err = r.Join(context.Background(), domain.PeerID("B"), "bob", domain.Device{}, domain.RTPCapabilities{}, nil)
	assert.NoError(t, err)

	transport, err := r.CreateWebRTCTransport(context.Background(), domain.PeerID("A"), domain.DirectionConsume, nil)
	assert.NoError(t, err)
	ft := transport.(*fakeTransport)

	ft.fireStateChange("failed")

	time.Sleep(20 * time.Millisecond)

	r.enqueueSync(func() {
		_, stillJoined := r.joinedPeers[domain.PeerID("A")]
		assert.False(t, stillJoined)
	})
	assert.Equal(t, 1, chB.notifyCount("peerClosed"))
}
