package agent

import (
	"fmt"
	"testing"

	"github.com/dynaput247/holochain-sub000/src/cas"
	"github.com/dynaput247/holochain-sub000/src/chain"
	"github.com/dynaput247/holochain-sub000/src/core"
	"github.com/dynaput247/holochain-sub000/src/state"
)

func newTestState(t *testing.T) (*State, cas.ContentAddressableStorage) {
	a, err := NewAgent()
	if err != nil {
		t.Fatal(err)
	}
	storage := cas.NewInmemStorage()
	return NewState(a, chain.NewSourceChain(storage)), storage
}

func TestAgentProvenanceVerifies(t *testing.T) {
	a, err := NewAgent()
	if err != nil {
		t.Fatal(err)
	}
	prov, err := a.Provenance([]byte("some content"))
	if err != nil {
		t.Fatal(err)
	}
	if prov.Source != a.Identity {
		t.Fatal("provenance source should be the agent identity")
	}
	if !prov.Verify([]byte("some content")) {
		t.Fatal("provenance should verify over the signed content")
	}
	if prov.Verify([]byte("other content")) {
		t.Fatal("provenance should not verify over different content")
	}
}

// commitGenesis opens the state's chain with the dna and agent records.
func commitGenesis(t *testing.T, st *State) *State {
	for _, entry := range []*core.Entry{
		core.NewEntry(core.DnaEntryType, `{"name":"test-app"}`),
		core.NewEntry(core.AgentIDEntryType, st.Agent().Identity),
	} {
		aw := state.NewActionWrapper(CommitAction{Entry: entry, LinkUpdateDelete: core.NilAddress})
		st = Reduce(st, aw)
		if res := st.Results[aw.ID]; res.Err != nil {
			t.Fatal(res.Err)
		}
	}
	return st
}

func TestReduceCommit(t *testing.T) {
	st, _ := newTestState(t)
	st = commitGenesis(t, st)

	entry := core.NewEntry(core.EntryType("post"), "hello")
	aw := state.NewActionWrapper(CommitAction{Entry: entry, LinkUpdateDelete: core.NilAddress})
	next := Reduce(st, aw)

	if next == st {
		t.Fatal("commit should produce a new state")
	}
	res, ok := next.Results[aw.ID]
	if !ok {
		t.Fatal("commit result should be recorded under the action id")
	}
	if res.Err != nil {
		t.Fatal(res.Err)
	}
	if res.Header.EntryAddress != entry.Address() {
		t.Fatal("recorded header should cover the committed entry")
	}
	if err := next.Chain().Validate(); err != nil {
		t.Fatal(err)
	}
}

func TestReduceIgnoresForeignActions(t *testing.T) {
	st, _ := newTestState(t)

	aw := state.NewActionWrapper(fakeAction{})
	if Reduce(st, aw) != st {
		t.Fatal("foreign actions must leave the state reference unchanged")
	}
}

type fakeAction struct{}

func (fakeAction) ActionName() string { return "other/fake" }

func TestPersistAndLoad(t *testing.T) {
	st, storage := newTestState(t)

	entry := core.NewEntry(core.EntryType("post"), "hello")
	aw := state.NewActionWrapper(CommitAction{Entry: entry, LinkUpdateDelete: core.NilAddress})
	st = Reduce(st, aw)

	if err := st.Persist(storage); err != nil {
		t.Fatal(err)
	}

	loaded, err := LoadState(st.Agent(), storage)
	if err != nil {
		t.Fatal(err)
	}
	if loaded.Chain().Top() != st.Chain().Top() {
		t.Fatal("loaded chain should resume at the persisted tip")
	}
	n, err := loaded.Chain().Len()
	if err != nil {
		t.Fatal(err)
	}
	if n != 1 {
		t.Fatalf("loaded chain should hold 1 header, got %d", n)
	}
}

func TestLoadStateWithoutSnapshot(t *testing.T) {
	st, _ := newTestState(t)
	if _, err := LoadState(st.Agent(), cas.NewInmemStorage()); err == nil {
		t.Fatal("loading without a snapshot should fail")
	}
}

func TestCommitResultsRetention(t *testing.T) {
	st, _ := newTestState(t)

	first := state.NewActionWrapper(CommitAction{
		Entry:            core.NewEntry(core.EntryType("post"), "entry 0"),
		LinkUpdateDelete: core.NilAddress,
	})
	st = Reduce(st, first)

	for i := 0; i < resultRetention; i++ {
		aw := state.NewActionWrapper(CommitAction{
			Entry:            core.NewEntry(core.EntryType("post"), fmt.Sprintf("entry %d", i+1)),
			LinkUpdateDelete: core.NilAddress,
		})
		st = Reduce(st, aw)
		if res := st.Results[aw.ID]; res.Err != nil {
			t.Fatal(res.Err)
		}
	}

	if len(st.Results) != resultRetention {
		t.Fatalf("results should be capped at %d, got %d", resultRetention, len(st.Results))
	}
	if _, ok := st.Results[first.ID]; ok {
		t.Fatal("results past the retention bound should be evicted")
	}
}
