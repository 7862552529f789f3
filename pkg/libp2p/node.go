package libp2p

import (
	"context"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/libp2p/go-libp2p"
	dht "github.com/libp2p/go-libp2p-kad-dht"
	pubsub "github.com/libp2p/go-libp2p-pubsub"
	"github.com/libp2p/go-libp2p/core/host"
	"github.com/libp2p/go-libp2p/core/peer"
	"github.com/libp2p/go-libp2p/core/routing"
	"github.com/libp2p/go-libp2p/p2p/discovery/mdns"
	"github.com/libp2p/go-libp2p/p2p/net/connmgr"
	"go.uber.org/zap"

	"github.com/baderanaas/GoShelf/pkg/catalog"
)

// ShelfNode - autonomous P2P node sharing a book catalog
type ShelfNode struct {
	host   host.Host
	ctx    context.Context
	cancel context.CancelFunc
	dht    *dht.IpfsDHT
	pubsub *pubsub.PubSub
	topic  *pubsub.Topic
	sub    *pubsub.Subscription
	mdns   mdns.Service

	cfg    Config
	logger *zap.Logger

	catalog   *catalog.Store
	directory *PeerDirectory

	// Peers with a dial burst currently in flight.
	dialingMux sync.Mutex
	dialing    map[peer.ID]struct{}

	// Per-session publish counter; resets on restart, receivers
	// re-baseline on the reset.
	seq  atomic.Uint64
	seen *seqTracker
}

// NewShelfNode creates a node listening on the given TCP port (0 picks
// a random one). The identity keypair and the library live in the
// configured data dir, so the peer id is stable across restarts.
func NewShelfNode(port int, opts ...Option) (*ShelfNode, error) {
	cfg := defaultConfig()
	for _, opt := range opts {
		if err := opt(&cfg); err != nil {
			return nil, err
		}
	}

	ctx, cancel := context.WithCancel(context.Background())

	shelfDir, err := getShelfDir(cfg.DataDir)
	if err != nil {
		cancel()
		return nil, fmt.Errorf("failed to get shelf directory: %w", err)
	}

	privKey, err := LoadIdentity(shelfDir)
	if err != nil {
		cancel()
		return nil, fmt.Errorf("failed to load or generate identity: %w", err)
	}

	cm, err := connmgr.NewConnManager(50, 200, connmgr.WithGracePeriod(time.Minute))
	if err != nil {
		cancel()
		return nil, err
	}

	var idht *dht.IpfsDHT
	h, err := libp2p.New(
		libp2p.ListenAddrStrings(
			fmt.Sprintf("/ip4/0.0.0.0/tcp/%d", port),
		),
		libp2p.Identity(privKey),
		libp2p.ConnectionManager(cm),
		libp2p.EnableHolePunching(),
		libp2p.NATPortMap(),
		libp2p.Routing(func(h host.Host) (routing.PeerRouting, error) {
			var err error
			idht, err = dht.New(ctx, h, dht.Mode(dht.ModeServer))
			return idht, err
		}),
	)
	if err != nil {
		cancel()
		return nil, fmt.Errorf("failed to create libp2p host: %w", err)
	}

	ps, err := pubsub.NewGossipSub(ctx, h)
	if err != nil {
		cancel()
		return nil, fmt.Errorf("failed to create pubsub: %w", err)
	}

	store, err := catalog.NewStore(h.ID().String(), shelfDir)
	if err != nil {
		cancel()
		return nil, fmt.Errorf("failed to open catalog: %w", err)
	}

	directory, err := NewPeerDirectory(cfg.PeerTTL, cfg.DedupCacheSize, nil)
	if err != nil {
		cancel()
		return nil, err
	}

	node := &ShelfNode{
		host:      h,
		ctx:       ctx,
		cancel:    cancel,
		dht:       idht,
		pubsub:    ps,
		cfg:       cfg,
		logger:    cfg.Logger,
		catalog:   store,
		directory: directory,
		dialing:   make(map[peer.ID]struct{}),
		seen:      newSeqTracker(),
	}

	node.topic, err = ps.Join(BooksTopic)
	if err != nil {
		cancel()
		return nil, fmt.Errorf("failed to join books topic: %w", err)
	}
	node.sub, err = node.topic.Subscribe()
	if err != nil {
		cancel()
		return nil, fmt.Errorf("failed to subscribe to books topic: %w", err)
	}

	h.SetStreamHandler(AntiEntropyProtocol, node.handleAntiEntropyStream)
	h.Network().Notify(&connNotifee{node: node})

	go node.readEvents()

	return node, nil
}

// Bootstrap starts discovery and the background maintenance loops.
func (n *ShelfNode) Bootstrap() error {
	n.mdns = mdns.NewMdnsService(n.host, ServiceName, &discoveryNotifee{node: n})
	if err := n.mdns.Start(); err != nil {
		return fmt.Errorf("failed to start mDNS discovery: %w", err)
	}

	if err := n.dht.Bootstrap(n.ctx); err != nil {
		n.logger.Warn("DHT bootstrap", zap.Error(err))
	}

	go n.startGlobalDiscovery()
	go n.maintainNetwork()
	go n.antiEntropyLoop()

	n.announcePresence()
	return nil
}

// Close shuts down the node. In-flight broadcasts and connection
// attempts are abandoned, nothing is queued across restarts.
func (n *ShelfNode) Close() error {
	n.cancel()
	if n.mdns != nil {
		if err := n.mdns.Close(); err != nil {
			n.logger.Debug("mdns close", zap.Error(err))
		}
	}
	return n.host.Close()
}

// ID returns this node's peer id.
func (n *ShelfNode) ID() peer.ID {
	return n.host.ID()
}

// CreateBook adds a new Private record to the local library.
func (n *ShelfNode) CreateBook(title, author, publisher string) (catalog.Record, error) {
	return n.catalog.CreateLocal(title, author, publisher)
}

// PublishBook makes a locally-owned record Public and announces it.
func (n *ShelfNode) PublishBook(idOrTitle string) (catalog.Record, error) {
	rec, err := n.catalog.Publish(idOrTitle)
	if err != nil {
		return catalog.Record{}, err
	}
	if err := n.announce(rec); err != nil {
		// The record is published either way; gossip is best-effort
		// and anti-entropy will carry it eventually.
		n.logger.Warn("failed to announce record",
			zap.String("record", rec.ID), zap.Error(err))
	}
	return rec, nil
}

// UpdateBook edits a locally-owned record. Public records are
// re-announced at their new version.
func (n *ShelfNode) UpdateBook(id, title, author, publisher string) (catalog.Record, error) {
	rec, err := n.catalog.UpdateLocal(id, title, author, publisher)
	if err != nil {
		return catalog.Record{}, err
	}
	if rec.Visibility == catalog.Public {
		if err := n.announce(rec); err != nil {
			n.logger.Warn("failed to announce record",
				zap.String("record", rec.ID), zap.Error(err))
		}
	}
	return rec, nil
}

// ListLocalBooks returns all records owned by this peer.
func (n *ShelfNode) ListLocalBooks() []catalog.Record {
	return n.catalog.ListLocal()
}

// ListSharedBooks returns the merged view of all Public records.
func (n *ShelfNode) ListSharedBooks() []catalog.Record {
	return n.catalog.ListShared()
}

// ListSharedBooksBy returns the Public records owned by one peer.
func (n *ShelfNode) ListSharedBooksBy(owner string) []catalog.Record {
	return n.catalog.ListSharedBy(owner)
}

// ListPeers returns all known peers, most recently seen first.
func (n *ShelfNode) ListPeers() []PeerInfo {
	return n.directory.ListPeers()
}
