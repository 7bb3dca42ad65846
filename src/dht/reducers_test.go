package dht

import (
	"fmt"
	"testing"

	"github.com/dynaput247/holochain-sub000/src/cas"
	"github.com/dynaput247/holochain-sub000/src/common"
	"github.com/dynaput247/holochain-sub000/src/core"
	"github.com/dynaput247/holochain-sub000/src/eav"
	"github.com/dynaput247/holochain-sub000/src/state"
)

func newTestStore() *Store {
	return NewStore(cas.NewInmemStorage(), eav.NewInmemEavStorage())
}

func holdEntry(t *testing.T, store *Store, value string) (*Store, *core.Entry) {
	entry := core.NewEntry(core.EntryType("post"), value)
	aw := state.NewActionWrapper(HoldEntryAction{
		EntryWithHeader: core.EntryWithHeader{Entry: entry},
	})
	next := Reduce(store, aw)
	if next == store {
		t.Fatal("hold should produce a new state")
	}
	if err := next.Results[aw.ID]; err != nil {
		t.Fatal(err)
	}
	return next, entry
}

func TestReduceHoldEntry(t *testing.T) {
	store, entry := holdEntry(t, newTestStore(), "hello")

	found, err := store.ContentStorage().Contains(entry.Address())
	if err != nil {
		t.Fatal(err)
	}
	if !found {
		t.Fatal("held entry should be in the CAS")
	}
	status, ok, err := store.Status(entry.Address())
	if err != nil {
		t.Fatal(err)
	}
	if !ok || status != core.StatusLive {
		t.Fatalf("held entry should be LIVE, got %v found=%v", status, ok)
	}
}

func TestReduceHoldEntryWithHeader(t *testing.T) {
	store := newTestStore()
	entry := core.NewEntry(core.EntryType("post"), "hello")
	header := core.NewChainHeader(entry.EntryType, entry.Address(), nil,
		"2020-01-01T00:00:00Z", core.NilAddress, core.NilAddress, core.NilAddress)

	aw := state.NewActionWrapper(HoldEntryAction{
		EntryWithHeader: core.EntryWithHeader{Entry: entry, Header: header},
	})
	store = Reduce(store, aw)

	headers, err := store.HeadersForEntry(entry.Address())
	if err != nil {
		t.Fatal(err)
	}
	if len(headers) != 1 || headers[0].Address() != header.Address() {
		t.Fatalf("expected the committing header to be recorded, got %v", headers)
	}
}

func TestReduceAddLink(t *testing.T) {
	store, base := holdEntry(t, newTestStore(), "base")
	_, target := holdEntry(t, store, "target")

	aw := state.NewActionWrapper(AddLinkAction{
		Link: core.NewLink(base.Address(), target.Address(), "child"),
	})
	store = Reduce(store, aw)
	if err := store.Results[aw.ID]; err != nil {
		t.Fatal(err)
	}

	targets, err := store.GetLinks(base.Address(), "child")
	if err != nil {
		t.Fatal(err)
	}
	if len(targets) != 1 || targets[0] != target.Address() {
		t.Fatalf("expected one link to target, got %v", targets)
	}
}

func TestReduceAddLinkMissingBase(t *testing.T) {
	store := newTestStore()
	missing := core.AddressOf(core.Content("never held"))

	aw := state.NewActionWrapper(AddLinkAction{
		Link: core.NewLink(missing, missing, "child"),
	})
	next := Reduce(store, aw)

	if err := next.Results[aw.ID]; err == nil {
		t.Fatal("linking from an absent base should record a failure")
	}
	targets, err := next.GetLinks(missing, "child")
	if err != nil {
		t.Fatal(err)
	}
	if len(targets) != 0 {
		t.Fatal("no link row should be written for an absent base")
	}
}

func TestReduceRemoveLink(t *testing.T) {
	store, base := holdEntry(t, newTestStore(), "base")
	_, target := holdEntry(t, store, "target")

	add := state.NewActionWrapper(AddLinkAction{
		Link: core.NewLink(base.Address(), target.Address(), "child"),
	})
	store = Reduce(store, add)

	remove := state.NewActionWrapper(RemoveLinkAction{
		Link: core.NewLink(base.Address(), target.Address(), "child"),
	})
	store = Reduce(store, remove)
	if err := store.Results[remove.ID]; err != nil {
		t.Fatal(err)
	}

	targets, err := store.GetLinks(base.Address(), "child")
	if err != nil {
		t.Fatal(err)
	}
	if len(targets) != 0 {
		t.Fatalf("removed link should not be returned, got %v", targets)
	}
}

func TestRemoveLinkTagNamespace(t *testing.T) {
	store, base := holdEntry(t, newTestStore(), "base")
	_, target := holdEntry(t, store, "target")

	// A link whose tag happens to start with "removed_" is an ordinary
	// link, not a tombstone for some other tag.
	for _, tag := range []string{"x", "removed_x"} {
		add := state.NewActionWrapper(AddLinkAction{
			Link: core.NewLink(base.Address(), target.Address(), tag),
		})
		store = Reduce(store, add)
		if err := store.Results[add.ID]; err != nil {
			t.Fatal(err)
		}
	}

	remove := state.NewActionWrapper(RemoveLinkAction{
		Link: core.NewLink(base.Address(), target.Address(), "x"),
	})
	store = Reduce(store, remove)
	if err := store.Results[remove.ID]; err != nil {
		t.Fatal(err)
	}

	targets, err := store.GetLinks(base.Address(), "x")
	if err != nil {
		t.Fatal(err)
	}
	if len(targets) != 0 {
		t.Fatalf("removed x link should not be returned, got %v", targets)
	}
	targets, err = store.GetLinks(base.Address(), "removed_x")
	if err != nil {
		t.Fatal(err)
	}
	if len(targets) != 1 || targets[0] != target.Address() {
		t.Fatalf("removed_x tagged link should survive, got %v", targets)
	}
}

func TestReduceUpdateEntry(t *testing.T) {
	store, old := holdEntry(t, newTestStore(), "v1")
	store, updated := holdEntry(t, store, "v2")

	aw := state.NewActionWrapper(UpdateEntryAction{Old: old.Address(), New: updated.Address()})
	store = Reduce(store, aw)
	if err := store.Results[aw.ID]; err != nil {
		t.Fatal(err)
	}

	status, ok, err := store.Status(old.Address())
	if err != nil {
		t.Fatal(err)
	}
	if !ok || status != core.StatusModified {
		t.Fatalf("old entry should be MODIFIED, got %v", status)
	}

	latest, err := store.History(old.Address(), true)
	if err != nil {
		t.Fatal(err)
	}
	if len(latest) != 1 || latest[0].Address != updated.Address() {
		t.Fatalf("latest history should be the replacement only, got %v", latest)
	}

	full, err := store.History(old.Address(), false)
	if err != nil {
		t.Fatal(err)
	}
	if len(full) != 2 || full[0].Address != updated.Address() || full[1].Address != old.Address() {
		t.Fatalf("full history should be newest first, got %v", full)
	}
}

func TestReduceRemoveEntry(t *testing.T) {
	store, entry := holdEntry(t, newTestStore(), "doomed")
	deletion := core.DeletionEntry(entry.Address())

	aw := state.NewActionWrapper(RemoveEntryAction{
		Deleted:  entry.Address(),
		Deletion: deletion.Address(),
	})
	store = Reduce(store, aw)
	if err := store.Results[aw.ID]; err != nil {
		t.Fatal(err)
	}

	status, ok, err := store.Status(entry.Address())
	if err != nil {
		t.Fatal(err)
	}
	if !ok || status != core.StatusDeleted {
		t.Fatalf("removed entry should be DELETED, got %v", status)
	}

	latest, err := store.History(entry.Address(), true)
	if err != nil {
		t.Fatal(err)
	}
	if len(latest) != 0 {
		t.Fatal("latest history of a deleted entry should be empty")
	}
}

func TestRemoveEntryPreconditions(t *testing.T) {
	store, entry := holdEntry(t, newTestStore(), "v1")
	store, updated := holdEntry(t, store, "v2")

	// Missing entry.
	aw := state.NewActionWrapper(RemoveEntryAction{Deleted: core.AddressOf("nope")})
	store = Reduce(store, aw)
	if err := store.Results[aw.ID]; err == nil {
		t.Fatal("removing a missing entry should fail")
	}

	// System entry.
	sys := core.AgentIDEntry("someone")
	hold := state.NewActionWrapper(HoldEntryAction{EntryWithHeader: core.EntryWithHeader{Entry: sys}})
	store = Reduce(store, hold)
	aw = state.NewActionWrapper(RemoveEntryAction{Deleted: sys.Address()})
	store = Reduce(store, aw)
	if !common.IsKind(store.Results[aw.ID], common.ErrInvalidOperationOnSysEntry) {
		t.Fatalf("removing a system entry should fail as such, got %v", store.Results[aw.ID])
	}

	// Non-LIVE entry.
	up := state.NewActionWrapper(UpdateEntryAction{Old: entry.Address(), New: updated.Address()})
	store = Reduce(store, up)
	aw = state.NewActionWrapper(RemoveEntryAction{Deleted: entry.Address()})
	store = Reduce(store, aw)
	if err := store.Results[aw.ID]; err == nil {
		t.Fatal("removing a modified entry should fail")
	}

	status, _, err := store.Status(entry.Address())
	if err != nil {
		t.Fatal(err)
	}
	if status != core.StatusModified {
		t.Fatal("failed remove must not change the status")
	}
}

func TestResultsRetention(t *testing.T) {
	store := newTestStore()

	first := state.NewActionWrapper(HoldEntryAction{
		EntryWithHeader: core.EntryWithHeader{Entry: core.NewEntry(core.EntryType("post"), "first")},
	})
	store = Reduce(store, first)

	for i := 0; i < resultRetention; i++ {
		store, _ = holdEntry(t, store, fmt.Sprintf("entry %d", i))
	}

	if len(store.Results) != resultRetention {
		t.Fatalf("results should be capped at %d, got %d", resultRetention, len(store.Results))
	}
	if _, ok := store.Results[first.ID]; ok {
		t.Fatal("verdicts past the retention bound should be evicted")
	}
}
