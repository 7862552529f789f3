package libp2p

import (
	"context"
	"time"
)

// shortID truncates a peer id for display.
func shortID(id string) string {
	if len(id) > 12 {
		return id[:12]
	}
	return id
}

// streamContext bounds a single outbound stream exchange.
func (n *ShelfNode) streamContext() (context.Context, context.CancelFunc) {
	return context.WithTimeout(n.ctx, 15*time.Second)
}
