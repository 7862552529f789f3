package libp2p

import (
	"context"
	"time"

	"github.com/cenkalti/backoff/v4"
	"github.com/libp2p/go-libp2p/core/network"
	"github.com/libp2p/go-libp2p/core/peer"
	discovery "github.com/libp2p/go-libp2p/p2p/discovery/routing"
	"github.com/libp2p/go-libp2p/p2p/discovery/util"
	"github.com/multiformats/go-multiaddr"
	"go.uber.org/zap"
)

// discoveryNotifee handles mDNS peer discovery events.
type discoveryNotifee struct {
	node *ShelfNode
}

func (d *discoveryNotifee) HandlePeerFound(pi peer.AddrInfo) {
	d.node.handleDiscovered(pi, "mdns")
}

// connNotifee feeds transport-level lifecycle events into the peer
// directory so the fan-out set tracks real connectivity.
type connNotifee struct {
	node *ShelfNode
}

func (c *connNotifee) Connected(_ network.Network, conn network.Conn) {
	c.node.directory.RecordSeen(conn.RemotePeer(), StateConnected)
}

func (c *connNotifee) Disconnected(_ network.Network, conn network.Conn) {
	c.node.directory.MarkDisconnected(conn.RemotePeer())
}

func (c *connNotifee) Listen(network.Network, multiaddr.Multiaddr)      {}
func (c *connNotifee) ListenClose(network.Network, multiaddr.Multiaddr) {}

// startGlobalDiscovery periodically finds new peers in the global namespace.
func (n *ShelfNode) startGlobalDiscovery() {
	routingDiscovery := discovery.NewRoutingDiscovery(n.dht)
	util.Advertise(n.ctx, routingDiscovery, GlobalNamespace)

	ticker := time.NewTicker(30 * time.Second)
	defer ticker.Stop()

	for {
		select {
		case <-n.ctx.Done():
			return
		case <-ticker.C:
			peerChan, err := routingDiscovery.FindPeers(n.ctx, GlobalNamespace)
			if err != nil {
				continue
			}
			for p := range peerChan {
				n.handleDiscovered(p, "dht")
			}
		}
	}
}

// handleDiscovered processes one discovered peer. Connected peers just
// get a liveness refresh; anything else is (re-)dialed with backoff, so
// a peer whose earlier dial burst failed gets another chance on every
// rediscovery. At most one dial burst runs per peer at a time.
func (n *ShelfNode) handleDiscovered(pi peer.AddrInfo, source string) {
	if pi.ID == n.host.ID() || len(pi.Addrs) == 0 {
		return
	}

	if n.host.Network().Connectedness(pi.ID) == network.Connected {
		n.directory.RecordSeen(pi.ID, StateConnected)
		return
	}
	// Announcements for peers already pruned out of the directory are
	// stale; dropping them here is what the dedup set is for.
	if n.directory.Pruned(pi.ID) {
		return
	}

	n.directory.RecordSeen(pi.ID, StateDiscovered)
	if !n.beginDial(pi.ID) {
		return
	}
	n.logger.Info("discovered peer",
		zap.String("peer", shortID(pi.ID.String())),
		zap.String("source", source))
	go func() {
		defer n.endDial(pi.ID)
		n.connectWithBackoff(pi)
	}()
}

// beginDial claims the dial slot for a peer. It returns false if a
// dial burst for that peer is already running.
func (n *ShelfNode) beginDial(id peer.ID) bool {
	n.dialingMux.Lock()
	defer n.dialingMux.Unlock()
	if _, ok := n.dialing[id]; ok {
		return false
	}
	n.dialing[id] = struct{}{}
	return true
}

func (n *ShelfNode) endDial(id peer.ID) {
	n.dialingMux.Lock()
	delete(n.dialing, id)
	n.dialingMux.Unlock()
}

// connectWithBackoff dials a peer with exponential backoff and a
// bounded attempt count. Exhausting the attempts marks the peer
// Disconnected; a later rediscovery may still succeed.
func (n *ShelfNode) connectWithBackoff(pi peer.AddrInfo) {
	bo := backoff.NewExponentialBackOff()
	bo.InitialInterval = n.cfg.ConnectBackoffBase
	policy := backoff.WithContext(
		backoff.WithMaxRetries(bo, uint64(n.cfg.ConnectAttempts-1)), n.ctx)

	dial := func() error {
		ctx, cancel := context.WithTimeout(n.ctx, 15*time.Second)
		defer cancel()
		return n.host.Connect(ctx, pi)
	}

	if err := backoff.Retry(dial, policy); err != nil {
		n.directory.MarkDisconnected(pi.ID)
		n.logger.Debug("giving up on peer",
			zap.String("peer", shortID(pi.ID.String())), zap.Error(err))
		return
	}
	n.directory.RecordSeen(pi.ID, StateConnected)
	n.logger.Info("connected to peer", zap.String("peer", shortID(pi.ID.String())))
}

// maintainNetwork runs background tasks to keep the overlay healthy.
func (n *ShelfNode) maintainNetwork() {
	ticker := time.NewTicker(time.Minute)
	defer ticker.Stop()

	for {
		select {
		case <-n.ctx.Done():
			return
		case <-ticker.C:
			if pruned := n.directory.Prune(); pruned > 0 {
				n.logger.Info("pruned stale peers", zap.Int("count", pruned))
			}
			n.ensureConnectivity()
		}
	}
}

// ensureConnectivity re-announces our presence when the node looks
// isolated. Total peer loss is not fatal, just local-only mode.
func (n *ShelfNode) ensureConnectivity() {
	if len(n.host.Network().Peers()) < 3 {
		n.announcePresence()
	}
}

// announcePresence advertises this node in the global namespace.
func (n *ShelfNode) announcePresence() {
	routingDiscovery := discovery.NewRoutingDiscovery(n.dht)
	go util.Advertise(n.ctx, routingDiscovery, GlobalNamespace)
}

// ConnectToPeer connects to a peer given its multiaddress string.
func (n *ShelfNode) ConnectToPeer(addrStr string) error {
	addr, err := multiaddr.NewMultiaddr(addrStr)
	if err != nil {
		return err
	}
	pi, err := peer.AddrInfoFromP2pAddr(addr)
	if err != nil {
		return err
	}

	ctx, cancel := context.WithTimeout(n.ctx, 30*time.Second)
	defer cancel()
	if err := n.host.Connect(ctx, *pi); err != nil {
		return err
	}
	n.directory.RecordSeen(pi.ID, StateConnected)
	return nil
}
