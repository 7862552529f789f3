package catalog

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"
)

const libraryFileName = "library.json"

// Store holds this peer's own records plus the merged view of every
// Public record known from the network. It is the only mutable owner
// of record data; all mutations are serialized behind one lock and
// reads hand out copies.
type Store struct {
	mu     sync.RWMutex
	owner  string
	dir    string // empty disables persistence
	nextID uint64
	local  map[string]Record
	shared map[string]Record
}

// NewStore creates a store for the given owner peer id. If dir is
// non-empty the local library is loaded from (and saved to)
// library.json inside it.
func NewStore(owner, dir string) (*Store, error) {
	s := &Store{
		owner:  owner,
		dir:    dir,
		nextID: 1,
		local:  make(map[string]Record),
		shared: make(map[string]Record),
	}
	if dir == "" {
		return s, nil
	}
	if err := os.MkdirAll(dir, 0700); err != nil {
		return nil, fmt.Errorf("failed to create library directory: %w", err)
	}
	if err := s.load(); err != nil {
		return nil, err
	}
	return s, nil
}

// CreateLocal allocates a new Private record owned by this peer.
func (s *Store) CreateLocal(title, author, publisher string) (Record, error) {
	if strings.TrimSpace(title) == "" {
		return Record{}, ErrInvalidInput
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	rec := Record{
		ID:         fmt.Sprintf("%s-%d", s.owner, s.nextID),
		Title:      title,
		Author:     author,
		Publisher:  publisher,
		Owner:      s.owner,
		Visibility: Private,
		Version:    0,
	}
	s.nextID++
	s.local[rec.ID] = rec

	if err := s.saveUnlocked(); err != nil {
		delete(s.local, rec.ID)
		s.nextID--
		return Record{}, err
	}
	return rec, nil
}

// Publish transitions a locally-owned record to Public and bumps its
// version. idOrTitle matches a record id first, then an exact title.
// Publishing an already-Public record re-announces it at a higher
// version. The returned record is what should be gossiped.
func (s *Store) Publish(idOrTitle string) (Record, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	rec, err := s.findLocalUnlocked(idOrTitle)
	if err != nil {
		return Record{}, err
	}

	rec.Visibility = Public
	rec.Version++
	return rec, s.commitLocalUnlocked(rec)
}

// UpdateLocal replaces the fields of a locally-owned record and bumps
// its version. Public records should be re-gossiped afterwards.
func (s *Store) UpdateLocal(id, title, author, publisher string) (Record, error) {
	if strings.TrimSpace(title) == "" {
		return Record{}, ErrInvalidInput
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	rec, err := s.findLocalUnlocked(id)
	if err != nil {
		return Record{}, err
	}

	rec.Title = title
	rec.Author = author
	rec.Publisher = publisher
	rec.Version++
	return rec, s.commitLocalUnlocked(rec)
}

// findLocalUnlocked resolves idOrTitle against owned records. A match
// against the merged view only, by id or title, is a known record we
// don't own.
func (s *Store) findLocalUnlocked(idOrTitle string) (Record, error) {
	if rec, ok := s.local[idOrTitle]; ok {
		return rec, nil
	}
	for _, rec := range s.local {
		if rec.Title == idOrTitle {
			return rec, nil
		}
	}
	if _, ok := s.shared[idOrTitle]; ok {
		return Record{}, ErrNotOwner
	}
	for _, rec := range s.shared {
		if rec.Title == idOrTitle {
			return Record{}, ErrNotOwner
		}
	}
	return Record{}, ErrNotFound
}

// commitLocalUnlocked stores a mutated owned record, mirrors Public
// records into the merged view and persists. On a save failure the
// previous state is restored.
func (s *Store) commitLocalUnlocked(rec Record) error {
	prev, hadPrev := s.local[rec.ID]
	s.local[rec.ID] = rec
	if rec.Visibility == Public {
		s.shared[rec.ID] = rec
	}

	if err := s.saveUnlocked(); err != nil {
		if hadPrev {
			s.local[rec.ID] = prev
			if prev.Visibility == Public {
				s.shared[rec.ID] = prev
			} else {
				delete(s.shared, rec.ID)
			}
		} else {
			delete(s.local, rec.ID)
			delete(s.shared, rec.ID)
		}
		return err
	}
	return nil
}

// ListLocal returns all records owned by this peer, oldest first.
func (s *Store) ListLocal() []Record {
	s.mu.RLock()
	defer s.mu.RUnlock()

	out := make([]Record, 0, len(s.local))
	for _, rec := range s.local {
		out = append(out, rec)
	}
	sort.Slice(out, func(i, j int) bool {
		return localSeq(out[i].ID) < localSeq(out[j].ID)
	})
	return out
}

// ListShared returns the merged view of all Public records known from
// any peer (including self), ordered by id for determinism.
func (s *Store) ListShared() []Record {
	s.mu.RLock()
	defer s.mu.RUnlock()

	out := make([]Record, 0, len(s.shared))
	for _, rec := range s.shared {
		out = append(out, rec)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out
}

// ListSharedBy returns one peer's Public records from the merged view,
// ordered by id.
func (s *Store) ListSharedBy(owner string) []Record {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var out []Record
	for _, rec := range s.shared {
		if rec.Owner == owner {
			out = append(out, rec)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out
}

// ApplyRemote merges a record announced by another peer into the
// merged view. It never fails; anomalous input is reported as a
// Conflict outcome and the stored state is kept.
func (s *Store) ApplyRemote(ev Event) MergeOutcome {
	s.mu.Lock()
	defer s.mu.Unlock()

	var existing *Record
	if cur, ok := s.shared[ev.Record.ID]; ok {
		existing = &cur
	}

	outcome := mergeDecision(existing, ev.Record)
	if outcome == Inserted || outcome == Updated {
		s.shared[ev.Record.ID] = ev.Record
	}
	return outcome
}

// SharedVersions returns the (id, version) summary of the merged view,
// used as the anti-entropy digest.
func (s *Store) SharedVersions() map[string]uint64 {
	s.mu.RLock()
	defer s.mu.RUnlock()

	out := make(map[string]uint64, len(s.shared))
	for id, rec := range s.shared {
		out[id] = rec.Version
	}
	return out
}

// Newer returns every shared record the remote summary is missing or
// holds at a lower version, ordered by id.
func (s *Store) Newer(remote map[string]uint64) []Record {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var out []Record
	for id, rec := range s.shared {
		if v, ok := remote[id]; !ok || rec.Version > v {
			out = append(out, rec)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out
}

func (s *Store) libraryPath() string {
	return filepath.Join(s.dir, libraryFileName)
}

// load reads the persisted local library, if any, and restores the id
// counter past the highest allocated suffix.
func (s *Store) load() error {
	data, err := os.ReadFile(s.libraryPath())
	if err != nil {
		if os.IsNotExist(err) {
			return nil
		}
		return fmt.Errorf("failed to read library: %w", err)
	}

	var records []Record
	if err := json.Unmarshal(data, &records); err != nil {
		return fmt.Errorf("failed to parse library: %w", err)
	}

	for _, rec := range records {
		s.local[rec.ID] = rec
		if rec.Visibility == Public {
			s.shared[rec.ID] = rec
		}
		if n := localSeq(rec.ID); n >= s.nextID {
			s.nextID = n + 1
		}
	}
	return nil
}

// saveUnlocked persists the owned records as a JSON array.
func (s *Store) saveUnlocked() error {
	if s.dir == "" {
		return nil
	}

	records := make([]Record, 0, len(s.local))
	for _, rec := range s.local {
		records = append(records, rec)
	}
	sort.Slice(records, func(i, j int) bool {
		return localSeq(records[i].ID) < localSeq(records[j].ID)
	})

	data, err := json.MarshalIndent(records, "", "  ")
	if err != nil {
		return err
	}
	return os.WriteFile(s.libraryPath(), data, 0600)
}
