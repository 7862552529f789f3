package libp2p

import (
	"encoding/json"
	"fmt"
	"sync"
	"time"

	"github.com/libp2p/go-libp2p/core/peer"
	"go.uber.org/zap"

	"github.com/baderanaas/GoShelf/pkg/catalog"
)

// seqTracker remembers the highest sequence number seen per publisher
// so duplicate announcements can be dropped without touching the
// catalog. A publisher restart resets its counter to 1; that case
// re-baselines the tracker instead of being treated as stale.
type seqTracker struct {
	mu      sync.Mutex
	highest map[string]uint64
}

func newSeqTracker() *seqTracker {
	return &seqTracker{highest: make(map[string]uint64)}
}

// Accept reports whether the (origin, seq) pair is new. gap is true
// when at least one earlier announcement from this origin was missed,
// which should trigger an anti-entropy catch-up rather than a wait.
func (t *seqTracker) Accept(origin string, seq uint64) (ok, gap bool) {
	t.mu.Lock()
	defer t.mu.Unlock()

	prev, seen := t.highest[origin]
	if seen && seq <= prev {
		if seq == 1 && prev > 1 {
			// New session after a restart.
			t.highest[origin] = 1
			return true, false
		}
		return false, false
	}
	t.highest[origin] = seq
	return true, seen && seq > prev+1
}

// announce publishes a record event to the books topic. Delivery is
// fire-and-forget per hop; anti-entropy repairs anything missed.
func (n *ShelfNode) announce(rec catalog.Record) error {
	env := eventEnvelope{
		V:         WireVersion,
		Record:    rec,
		Origin:    n.host.ID().String(),
		Seq:       n.seq.Add(1),
		Timestamp: time.Now(),
	}

	data, err := json.Marshal(env)
	if err != nil {
		return fmt.Errorf("failed to marshal event: %w", err)
	}
	return n.topic.Publish(n.ctx, data)
}

// readEvents receives and processes announcements from the books topic.
func (n *ShelfNode) readEvents() {
	for {
		msg, err := n.sub.Next(n.ctx)
		if err != nil {
			return
		}
		if msg.GetFrom() == n.host.ID() {
			continue
		}

		var env eventEnvelope
		if err := json.Unmarshal(msg.GetData(), &env); err != nil {
			n.logger.Debug("dropping malformed event", zap.Error(err))
			continue
		}
		if err := checkWireVersion(env.V); err != nil {
			n.logger.Debug("dropping event", zap.Error(err))
			continue
		}

		n.recordEventPeers(msg.ReceivedFrom, env.Origin)
		n.handleEvent(env)
	}
}

// recordEventPeers feeds liveness from one delivered event into the
// directory. Only the forwarding neighbor is a live transport
// connection; the originating publisher may be several hops away, so
// it is at most noted as Discovered.
func (n *ShelfNode) recordEventPeers(from peer.ID, origin string) {
	n.directory.RecordSeen(from, StateConnected)
	if id, err := peer.Decode(origin); err == nil && id != from && id != n.host.ID() {
		n.directory.RecordSeen(id, StateDiscovered)
	}
}

func (n *ShelfNode) handleEvent(env eventEnvelope) {
	ok, gap := n.seen.Accept(env.Origin, env.Seq)
	if !ok {
		n.logger.Debug("duplicate event",
			zap.String("origin", shortID(env.Origin)),
			zap.Uint64("seq", env.Seq))
		return
	}
	if gap {
		// Missed announcements from this origin; repair out of band.
		go n.antiEntropyOnce()
	}

	outcome := n.catalog.ApplyRemote(catalog.Event{
		Record: env.Record,
		Origin: env.Origin,
		Seq:    env.Seq,
	})

	switch outcome {
	case catalog.Inserted, catalog.Updated:
		fmt.Printf("\r📚 %s \"%s\" by %s (v%d, from %s)\n> ",
			outcome, env.Record.Title, env.Record.Author,
			env.Record.Version, shortID(env.Origin))
	case catalog.Conflict:
		n.logger.Warn("merge conflict",
			zap.String("record", env.Record.ID),
			zap.String("origin", shortID(env.Origin)))
	default:
		n.logger.Debug("stale event",
			zap.String("record", env.Record.ID),
			zap.Uint64("version", env.Record.Version))
	}
}
