package catalog

import (
	"encoding/json"
	"fmt"
	"strconv"
	"strings"
)

// Visibility controls whether a record is gossiped to other peers.
// It is monotonic: once Public a record never becomes Private again.
type Visibility uint8

const (
	Private Visibility = iota
	Public
)

func (v Visibility) String() string {
	if v == Public {
		return "public"
	}
	return "private"
}

// MarshalJSON encodes visibility as a string so the wire format stays
// self-describing.
func (v Visibility) MarshalJSON() ([]byte, error) {
	return json.Marshal(v.String())
}

func (v *Visibility) UnmarshalJSON(data []byte) error {
	var s string
	if err := json.Unmarshal(data, &s); err != nil {
		return err
	}
	switch s {
	case "private":
		*v = Private
	case "public":
		*v = Public
	default:
		return fmt.Errorf("catalog: unknown visibility %q", s)
	}
	return nil
}

// Record is one book entry in the catalog. IDs are owner-prefixed
// ("<peerID>-<n>") so they are globally unique without coordination.
// Only the owning peer may change fields or bump the version; every
// other peer just observes and merges.
type Record struct {
	ID         string     `json:"id"`
	Title      string     `json:"title"`
	Author     string     `json:"author"`
	Publisher  string     `json:"publisher"`
	Owner      string     `json:"owner"`
	Visibility Visibility `json:"visibility"`
	Version    uint64     `json:"version"`
}

// sameContent reports whether two records carry identical data.
func (r Record) sameContent(other Record) bool {
	return r == other
}

// localSeq extracts the numeric suffix of an owner-prefixed id.
// Returns 0 for ids that don't follow the <owner>-<n> form.
func localSeq(id string) uint64 {
	idx := strings.LastIndex(id, "-")
	if idx < 0 {
		return 0
	}
	n, err := strconv.ParseUint(id[idx+1:], 10, 64)
	if err != nil {
		return 0
	}
	return n
}

// Event is a record announcement received from (or destined for) the
// gossip layer. Seq is the per-publisher monotonic counter used for
// duplicate detection.
type Event struct {
	Record Record `json:"record"`
	Origin string `json:"origin"`
	Seq    uint64 `json:"seq"`
}

// MergeOutcome reports what ApplyRemote did with an incoming record.
type MergeOutcome uint8

const (
	// Inserted means the record id was previously unknown.
	Inserted MergeOutcome = iota
	// Updated means the incoming copy replaced an older one.
	Updated
	// IgnoredStale means a duplicate or lower-version copy was dropped.
	IgnoredStale
	// Conflict means the incoming copy violated a merge invariant;
	// the stored copy was kept.
	Conflict
)

func (o MergeOutcome) String() string {
	switch o {
	case Inserted:
		return "inserted"
	case Updated:
		return "updated"
	case IgnoredStale:
		return "ignored-stale"
	case Conflict:
		return "conflict"
	}
	return "unknown"
}
