package libp2p

import (
	"fmt"
	"time"

	"github.com/baderanaas/GoShelf/pkg/catalog"
)

// eventEnvelope carries one record announcement over the books topic.
// Seq is this publisher's session-local monotonic counter.
type eventEnvelope struct {
	V         int            `json:"v"`
	Record    catalog.Record `json:"record"`
	Origin    string         `json:"origin"`
	Seq       uint64         `json:"seq"`
	Timestamp time.Time      `json:"timestamp"`
}

// summaryEntry is one (record id, version) pair of an anti-entropy digest.
type summaryEntry struct {
	ID      string `json:"id"`
	Version uint64 `json:"version"`
}

// summaryEnvelope is the anti-entropy request: the sender's full view
// of the shared catalog, compressed to ids and versions.
type summaryEnvelope struct {
	V       int            `json:"v"`
	From    string         `json:"from"`
	Entries []summaryEntry `json:"entries"`
}

// replyEnvelope returns every record the receiver holds at a version
// the summary is missing.
type replyEnvelope struct {
	V       int              `json:"v"`
	Records []catalog.Record `json:"records"`
}

func checkWireVersion(v int) error {
	if v != WireVersion {
		return fmt.Errorf("unsupported wire version %d", v)
	}
	return nil
}
