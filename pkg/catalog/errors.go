package catalog

import "errors"

var (
	// ErrInvalidInput indicates malformed record fields (empty title).
	ErrInvalidInput = errors.New("catalog: invalid record fields")
	// ErrNotFound indicates the record id or title is unknown locally.
	ErrNotFound = errors.New("catalog: record not found")
	// ErrNotOwner indicates the record is not owned by this peer.
	ErrNotOwner = errors.New("catalog: record not owned by this peer")
)
