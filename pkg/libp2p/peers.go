package libp2p

import (
	"sort"
	"sync"
	"time"

	lru "github.com/hashicorp/golang-lru/v2"
	"github.com/libp2p/go-libp2p/core/peer"
)

// PeerState tracks reachability of a known peer.
type PeerState uint8

const (
	StateDiscovered PeerState = iota
	StateConnected
	StateDisconnected
)

func (s PeerState) String() string {
	switch s {
	case StateDiscovered:
		return "discovered"
	case StateConnected:
		return "connected"
	case StateDisconnected:
		return "disconnected"
	}
	return "unknown"
}

// PeerInfo stores metadata about a discovered peer.
type PeerInfo struct {
	ID       peer.ID
	LastSeen time.Time
	State    PeerState
}

// PeerDirectory is the single owner of PeerInfo state. Peers unseen
// past the TTL are pruned from listings but their ids stay in a
// bounded LRU so stale discovery announcements aren't reprocessed
// forever.
type PeerDirectory struct {
	mu     sync.RWMutex
	peers  map[peer.ID]*PeerInfo
	pruned *lru.Cache[peer.ID, time.Time]
	ttl    time.Duration
	clock  func() time.Time
}

// NewPeerDirectory creates a directory with the given eviction TTL and
// pruned-set capacity. clock may be nil outside of tests.
func NewPeerDirectory(ttl time.Duration, prunedSize int, clock func() time.Time) (*PeerDirectory, error) {
	if clock == nil {
		clock = time.Now
	}
	pruned, err := lru.New[peer.ID, time.Time](prunedSize)
	if err != nil {
		return nil, err
	}
	return &PeerDirectory{
		peers:  make(map[peer.ID]*PeerInfo),
		pruned: pruned,
		ttl:    ttl,
		clock:  clock,
	}, nil
}

// RecordSeen upserts a peer on any liveness signal. A Connected peer
// is never downgraded back to Discovered; disconnects go through
// MarkDisconnected.
func (d *PeerDirectory) RecordSeen(id peer.ID, state PeerState) {
	d.mu.Lock()
	defer d.mu.Unlock()

	d.pruned.Remove(id)
	info, ok := d.peers[id]
	if !ok {
		d.peers[id] = &PeerInfo{ID: id, LastSeen: d.clock(), State: state}
		return
	}
	info.LastSeen = d.clock()
	if !(info.State == StateConnected && state == StateDiscovered) {
		info.State = state
	}
}

// MarkDisconnected records a transport-level disconnect. Unknown ids
// are ignored.
func (d *PeerDirectory) MarkDisconnected(id peer.ID) {
	d.mu.Lock()
	defer d.mu.Unlock()

	if info, ok := d.peers[id]; ok {
		info.State = StateDisconnected
	}
}

// ListPeers returns all known peers, most recently seen first with id
// as tie-break so the order is deterministic.
func (d *PeerDirectory) ListPeers() []PeerInfo {
	d.mu.RLock()
	defer d.mu.RUnlock()

	out := make([]PeerInfo, 0, len(d.peers))
	for _, info := range d.peers {
		out = append(out, *info)
	}
	sort.Slice(out, func(i, j int) bool {
		if !out[i].LastSeen.Equal(out[j].LastSeen) {
			return out[i].LastSeen.After(out[j].LastSeen)
		}
		return out[i].ID < out[j].ID
	})
	return out
}

// Connected returns the ids of peers currently marked Connected.
func (d *PeerDirectory) Connected() []peer.ID {
	d.mu.RLock()
	defer d.mu.RUnlock()

	var out []peer.ID
	for id, info := range d.peers {
		if info.State == StateConnected {
			out = append(out, id)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i] < out[j] })
	return out
}

// Pruned reports whether a peer was evicted from the directory and is
// remembered only so its stale discovery announcements can be dropped.
// Live directory entries are not pruned, whatever their state.
func (d *PeerDirectory) Pruned(id peer.ID) bool {
	d.mu.RLock()
	defer d.mu.RUnlock()

	if _, ok := d.peers[id]; ok {
		return false
	}
	return d.pruned.Contains(id)
}

// Prune moves peers unseen past the TTL into the dedup set.
func (d *PeerDirectory) Prune() int {
	d.mu.Lock()
	defer d.mu.Unlock()

	cutoff := d.clock().Add(-d.ttl)
	removed := 0
	for id, info := range d.peers {
		if info.LastSeen.Before(cutoff) {
			d.pruned.Add(id, info.LastSeen)
			delete(d.peers, id)
			removed++
		}
	}
	return removed
}
