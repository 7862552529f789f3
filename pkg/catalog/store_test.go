package catalog

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"
)

// newTestDir creates a temporary directory for testing and returns its path.
func newTestDir(t *testing.T) string {
	dir, err := os.MkdirTemp("", "goshelf-test-")
	require.NoError(t, err)
	t.Cleanup(func() { require.NoError(t, os.RemoveAll(dir)) })
	return dir
}

func newTestStore(t *testing.T, owner string) *Store {
	s, err := NewStore(owner, "")
	require.NoError(t, err)
	return s
}

func TestCreateLocal(t *testing.T) {
	s := newTestStore(t, "peerA")

	rec, err := s.CreateLocal("Dune", "Herbert", "Chilton")
	require.NoError(t, err)
	require.Equal(t, "peerA-1", rec.ID)
	require.Equal(t, "peerA", rec.Owner)
	require.Equal(t, Private, rec.Visibility)
	require.Equal(t, uint64(0), rec.Version)

	// Private records stay out of the shared view.
	require.Len(t, s.ListLocal(), 1)
	require.Empty(t, s.ListShared())
}

func TestCreateLocalRequiresTitle(t *testing.T) {
	s := newTestStore(t, "peerA")
	_, err := s.CreateLocal("  ", "Herbert", "Chilton")
	require.ErrorIs(t, err, ErrInvalidInput)
	require.Empty(t, s.ListLocal())
}

func TestPublishByIDAndTitle(t *testing.T) {
	s := newTestStore(t, "peerA")
	rec, err := s.CreateLocal("Dune", "Herbert", "Chilton")
	require.NoError(t, err)

	published, err := s.Publish(rec.ID)
	require.NoError(t, err)
	require.Equal(t, Public, published.Visibility)
	require.Equal(t, uint64(1), published.Version)

	shared := s.ListShared()
	require.Len(t, shared, 1)
	require.Equal(t, published, shared[0])

	// Publishing again by title re-announces at a higher version.
	again, err := s.Publish("Dune")
	require.NoError(t, err)
	require.Equal(t, uint64(2), again.Version)
}

func TestPublishErrors(t *testing.T) {
	s := newTestStore(t, "peerA")

	_, err := s.Publish("no-such-record")
	require.ErrorIs(t, err, ErrNotFound)

	// A record merged from another peer cannot be published here,
	// whether addressed by id or by title.
	remote := publicRecord("peerB-1", "peerB", 1)
	require.Equal(t, Inserted, s.ApplyRemote(Event{Record: remote, Origin: "peerB", Seq: 1}))
	_, err = s.Publish("peerB-1")
	require.ErrorIs(t, err, ErrNotOwner)
	_, err = s.Publish("Dune")
	require.ErrorIs(t, err, ErrNotOwner)
}

func TestUpdateLocalBumpsVersion(t *testing.T) {
	s := newTestStore(t, "peerA")
	rec, err := s.CreateLocal("Dune", "Herbert", "Chilton")
	require.NoError(t, err)
	_, err = s.Publish(rec.ID)
	require.NoError(t, err)

	updated, err := s.UpdateLocal(rec.ID, "Dune", "Frank Herbert", "Chilton")
	require.NoError(t, err)
	require.Equal(t, uint64(2), updated.Version)
	require.Equal(t, Public, updated.Visibility)
	require.Equal(t, "Frank Herbert", s.ListShared()[0].Author)
}

func TestApplyRemoteIdempotent(t *testing.T) {
	s := newTestStore(t, "peerB")
	ev := Event{Record: publicRecord("peerA-1", "peerA", 1), Origin: "peerA", Seq: 1}

	require.Equal(t, Inserted, s.ApplyRemote(ev))
	before := s.ListShared()

	// Applying the exact same event again changes nothing.
	require.Equal(t, IgnoredStale, s.ApplyRemote(ev))
	require.Equal(t, before, s.ListShared())
}

func TestApplyRemoteStaleDuplicateAfterUpdate(t *testing.T) {
	s := newTestStore(t, "peerB")

	v2 := publicRecord("peerA-1", "peerA", 2)
	v2.Author = "Frank Herbert"
	require.Equal(t, Inserted, s.ApplyRemote(Event{Record: v2, Origin: "peerA", Seq: 2}))

	// A late duplicate of the version-1 publish must not roll back.
	v1 := publicRecord("peerA-1", "peerA", 1)
	require.Equal(t, IgnoredStale, s.ApplyRemote(Event{Record: v1, Origin: "peerA", Seq: 1}))
	require.Equal(t, uint64(2), s.ListShared()[0].Version)
}

func TestConvergenceIsOrderIndependent(t *testing.T) {
	fromA := publicRecord("x-1", "peerA", 3)
	fromB := publicRecord("x-1", "peerB", 3)
	fromB.Title = "Dune (revised)"

	s1 := newTestStore(t, "obs1")
	s1.ApplyRemote(Event{Record: fromA, Origin: "peerA", Seq: 1})
	s1.ApplyRemote(Event{Record: fromB, Origin: "peerB", Seq: 1})

	s2 := newTestStore(t, "obs2")
	s2.ApplyRemote(Event{Record: fromB, Origin: "peerB", Seq: 1})
	s2.ApplyRemote(Event{Record: fromA, Origin: "peerA", Seq: 1})

	require.Equal(t, s1.ListShared(), s2.ListShared())
	require.Equal(t, "peerB", s1.ListShared()[0].Owner)
}

func TestListSharedByFiltersOnOwner(t *testing.T) {
	s := newTestStore(t, "peerA")
	rec, err := s.CreateLocal("Dune", "Herbert", "Chilton")
	require.NoError(t, err)
	mine, err := s.Publish(rec.ID)
	require.NoError(t, err)

	b1 := publicRecord("peerB-1", "peerB", 1)
	b2 := publicRecord("peerB-2", "peerB", 1)
	b2.Title = "Hyperion"
	require.Equal(t, Inserted, s.ApplyRemote(Event{Record: b2, Origin: "peerB", Seq: 1}))
	require.Equal(t, Inserted, s.ApplyRemote(Event{Record: b1, Origin: "peerB", Seq: 2}))

	require.Equal(t, []Record{b1, b2}, s.ListSharedBy("peerB"))
	require.Equal(t, []Record{mine}, s.ListSharedBy("peerA"))
	require.Empty(t, s.ListSharedBy("peerC"))
}

func TestSharedVersionsAndNewer(t *testing.T) {
	s := newTestStore(t, "peerA")
	rec, err := s.CreateLocal("Dune", "Herbert", "Chilton")
	require.NoError(t, err)
	published, err := s.Publish(rec.ID)
	require.NoError(t, err)

	versions := s.SharedVersions()
	require.Equal(t, map[string]uint64{published.ID: 1}, versions)

	// A peer that already has everything gets nothing back.
	require.Empty(t, s.Newer(versions))

	// A peer with an empty or stale summary gets the newer copies.
	require.Equal(t, []Record{published}, s.Newer(nil))
	require.Equal(t, []Record{published}, s.Newer(map[string]uint64{published.ID: 0}))
}

func TestPersistenceRoundTrip(t *testing.T) {
	dir := newTestDir(t)

	s, err := NewStore("peerA", dir)
	require.NoError(t, err)
	rec, err := s.CreateLocal("Dune", "Herbert", "Chilton")
	require.NoError(t, err)
	_, err = s.Publish(rec.ID)
	require.NoError(t, err)
	_, err = s.CreateLocal("Hyperion", "Simmons", "Doubleday")
	require.NoError(t, err)

	require.FileExists(t, filepath.Join(dir, libraryFileName))

	// A restart reloads the library and keeps allocating fresh ids.
	reloaded, err := NewStore("peerA", dir)
	require.NoError(t, err)
	require.Equal(t, s.ListLocal(), reloaded.ListLocal())
	require.Len(t, reloaded.ListShared(), 1)

	next, err := reloaded.CreateLocal("Ubik", "Dick", "Doubleday")
	require.NoError(t, err)
	require.Equal(t, "peerA-3", next.ID)
}
