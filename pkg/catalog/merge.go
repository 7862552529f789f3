package catalog

// mergeDecision is the deterministic merge rule shared by every peer.
// It must produce the same winner regardless of arrival order,
// otherwise the merged views never converge.
//
// Rules, in order:
//   - an incoming Private record is never applied (visibility is
//     monotonic; gossip only ever carries Public records)
//   - unknown id: insert
//   - higher version wins
//   - equal version: lexicographically greater owner id wins;
//     identical owner with identical content is a plain duplicate,
//     identical owner with differing content is a conflict
func mergeDecision(existing *Record, incoming Record) MergeOutcome {
	if incoming.Visibility != Public {
		return Conflict
	}
	if existing == nil {
		return Inserted
	}
	if incoming.Version > existing.Version {
		return Updated
	}
	if incoming.Version < existing.Version {
		return IgnoredStale
	}
	if incoming.Owner > existing.Owner {
		return Updated
	}
	if incoming.Owner < existing.Owner {
		return IgnoredStale
	}
	if incoming.sameContent(*existing) {
		return IgnoredStale
	}
	return Conflict
}
