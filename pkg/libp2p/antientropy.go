package libp2p

import (
	"crypto/rand"
	"encoding/json"
	"fmt"
	"math/big"
	"time"

	"github.com/libp2p/go-libp2p/core/network"
	"github.com/libp2p/go-libp2p/core/peer"
	"go.uber.org/zap"

	"github.com/baderanaas/GoShelf/pkg/catalog"
)

// antiEntropyLoop periodically exchanges catalog summaries with one
// random connected peer. This is what repairs missed announcements and
// catches up late joiners.
func (n *ShelfNode) antiEntropyLoop() {
	ticker := time.NewTicker(n.cfg.AntiEntropyInterval)
	defer ticker.Stop()

	for {
		select {
		case <-n.ctx.Done():
			return
		case <-ticker.C:
			n.antiEntropyOnce()
		}
	}
}

// antiEntropyOnce runs one exchange against a random connected peer.
// No peers is not an error; the node just stays in local-only mode.
func (n *ShelfNode) antiEntropyOnce() {
	target, ok := n.randomConnectedPeer()
	if !ok {
		return
	}
	if err := n.antiEntropyWith(target); err != nil {
		n.logger.Debug("anti-entropy exchange failed",
			zap.String("peer", shortID(target.String())), zap.Error(err))
	}
}

// antiEntropyWith sends our summary to the peer and merges whatever it
// holds at higher versions. Replies bypass sequence dedup on purpose:
// this path must work even across publisher restarts.
func (n *ShelfNode) antiEntropyWith(target peer.ID) error {
	ctx, cancel := n.streamContext()
	defer cancel()

	s, err := n.host.NewStream(ctx, target, AntiEntropyProtocol)
	if err != nil {
		return fmt.Errorf("failed to open anti-entropy stream: %w", err)
	}
	defer s.Close()
	_ = s.SetDeadline(time.Now().Add(15 * time.Second))

	versions := n.catalog.SharedVersions()
	summary := summaryEnvelope{
		V:       WireVersion,
		From:    n.host.ID().String(),
		Entries: make([]summaryEntry, 0, len(versions)),
	}
	for id, v := range versions {
		summary.Entries = append(summary.Entries, summaryEntry{ID: id, Version: v})
	}

	if err := json.NewEncoder(s).Encode(summary); err != nil {
		return fmt.Errorf("failed to send summary: %w", err)
	}

	var reply replyEnvelope
	if err := json.NewDecoder(s).Decode(&reply); err != nil {
		return fmt.Errorf("failed to read reply: %w", err)
	}
	if err := checkWireVersion(reply.V); err != nil {
		return err
	}

	for _, rec := range reply.Records {
		outcome := n.catalog.ApplyRemote(catalog.Event{Record: rec, Origin: rec.Owner})
		n.logger.Debug("anti-entropy merge",
			zap.String("record", rec.ID),
			zap.Stringer("outcome", outcome))
	}
	if len(reply.Records) > 0 {
		n.logger.Info("anti-entropy repaired records",
			zap.Int("count", len(reply.Records)),
			zap.String("peer", shortID(target.String())))
	}
	return nil
}

// handleAntiEntropyStream answers a summary with every record we hold
// at a version the sender is missing.
func (n *ShelfNode) handleAntiEntropyStream(s network.Stream) {
	defer s.Close()
	_ = s.SetDeadline(time.Now().Add(15 * time.Second))

	var summary summaryEnvelope
	if err := json.NewDecoder(s).Decode(&summary); err != nil {
		return
	}
	if err := checkWireVersion(summary.V); err != nil {
		n.logger.Debug("dropping summary", zap.Error(err))
		return
	}

	n.directory.RecordSeen(s.Conn().RemotePeer(), StateConnected)

	remote := make(map[string]uint64, len(summary.Entries))
	for _, e := range summary.Entries {
		remote[e.ID] = e.Version
	}

	reply := replyEnvelope{V: WireVersion, Records: n.catalog.Newer(remote)}
	if err := json.NewEncoder(s).Encode(reply); err != nil {
		n.logger.Debug("failed to send anti-entropy reply", zap.Error(err))
	}
}

// randomConnectedPeer picks a uniformly random peer the directory
// marks Connected, skipping any whose transport connection has since
// gone away.
func (n *ShelfNode) randomConnectedPeer() (peer.ID, bool) {
	peers := n.directory.Connected()
	live := peers[:0]
	for _, id := range peers {
		if n.host.Network().Connectedness(id) == network.Connected {
			live = append(live, id)
		}
	}
	if len(live) == 0 {
		return "", false
	}
	idx, err := rand.Int(rand.Reader, big.NewInt(int64(len(live))))
	if err != nil {
		return "", false
	}
	return live[idx.Int64()], true
}
