package libp2p

import (
	"testing"
	"time"

	"github.com/libp2p/go-libp2p/core/crypto"
	"github.com/libp2p/go-libp2p/core/network"
	"github.com/libp2p/go-libp2p/core/peer"
	"github.com/multiformats/go-multiaddr"
	"github.com/stretchr/testify/require"
)

// testPeerID generates a fresh peer id without spinning up a host.
func testPeerID(t *testing.T) peer.ID {
	priv, _, err := crypto.GenerateEd25519Key(nil)
	require.NoError(t, err)
	id, err := peer.IDFromPrivateKey(priv)
	require.NoError(t, err)
	return id
}

func peerState(n *ShelfNode, id peer.ID) (PeerState, bool) {
	for _, p := range n.ListPeers() {
		if p.ID == id {
			return p.State, true
		}
	}
	return 0, false
}

func TestRediscoveryRedialsAfterFailedDial(t *testing.T) {
	nodeA := newTestNode(t, WithConnectBackoff(10*time.Millisecond, 1))
	nodeB := newTestNode(t)

	dead, err := multiaddr.NewMultiaddr("/ip4/127.0.0.1/tcp/1")
	require.NoError(t, err)

	// The first discovery carries a dead address; the bounded dial
	// burst fails and the peer ends up Disconnected.
	nodeA.handleDiscovered(peer.AddrInfo{
		ID:    nodeB.ID(),
		Addrs: []multiaddr.Multiaddr{dead},
	}, "test")

	waitFor(t, func() bool {
		state, ok := peerState(nodeA, nodeB.ID())
		return ok && state == StateDisconnected
	}, "failed dial never marked the peer disconnected")

	// A later rediscovery with working addresses must be dialed again;
	// a transient failure is not allowed to park the peer forever.
	nodeA.handleDiscovered(peer.AddrInfo{
		ID:    nodeB.ID(),
		Addrs: nodeB.host.Addrs(),
	}, "test")

	waitFor(t, func() bool {
		return nodeA.host.Network().Connectedness(nodeB.ID()) == network.Connected
	}, "rediscovered peer was never re-dialed")

	waitFor(t, func() bool {
		state, ok := peerState(nodeA, nodeB.ID())
		return ok && state == StateConnected
	}, "re-dialed peer never recorded as connected")
}

func TestStaleAnnouncementForPrunedPeerIgnored(t *testing.T) {
	node := newTestNode(t, WithPeerTTL(time.Millisecond))
	stale := testPeerID(t)

	node.directory.RecordSeen(stale, StateDiscovered)
	time.Sleep(5 * time.Millisecond)
	require.Equal(t, 1, node.directory.Prune())

	addr, err := multiaddr.NewMultiaddr("/ip4/127.0.0.1/tcp/1")
	require.NoError(t, err)
	node.handleDiscovered(peer.AddrInfo{
		ID:    stale,
		Addrs: []multiaddr.Multiaddr{addr},
	}, "test")

	// The announcement is deduped: no directory entry, no dial.
	require.Empty(t, node.ListPeers())
	require.True(t, node.directory.Pruned(stale))
}

func TestEventLivenessOnlyConnectsForwarder(t *testing.T) {
	node := newTestNode(t)
	forwarder := testPeerID(t)
	origin := testPeerID(t)

	// A relayed event proves a live connection to the forwarder only;
	// the originating publisher may be several hops away.
	node.recordEventPeers(forwarder, origin.String())

	state, ok := peerState(node, forwarder)
	require.True(t, ok)
	require.Equal(t, StateConnected, state)

	state, ok = peerState(node, origin)
	require.True(t, ok)
	require.Equal(t, StateDiscovered, state)
}

func TestEventLivenessDirectNeighbor(t *testing.T) {
	node := newTestNode(t)
	forwarder := testPeerID(t)

	// When the forwarder is the origin there is exactly one entry.
	node.recordEventPeers(forwarder, forwarder.String())

	peers := node.ListPeers()
	require.Len(t, peers, 1)
	require.Equal(t, forwarder, peers[0].ID)
	require.Equal(t, StateConnected, peers[0].State)

	// A later relayed copy of the same origin's event must not
	// downgrade the live connection.
	other := testPeerID(t)
	node.recordEventPeers(other, forwarder.String())
	state, ok := peerState(node, forwarder)
	require.True(t, ok)
	require.Equal(t, StateConnected, state)
}
