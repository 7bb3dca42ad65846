package network

import (
	"fmt"
	"testing"

	"github.com/dynaput247/holochain-sub000/src/core"
	"github.com/dynaput247/holochain-sub000/src/state"
)

func TestInitNetwork(t *testing.T) {
	hub := NewInmemHub()
	conn := hub.Connect("alice", NodeCallbacks{})

	st := NewState()
	st = Reduce(st, state.NewActionWrapper(InitNetworkAction{
		Conn:    conn,
		AgentID: "alice",
		DnaHash: "0Xdna",
	}))

	if !st.Initialized || st.Connection() == nil || st.AgentID != "alice" {
		t.Fatalf("network state not initialized: %+v", st)
	}
}

func TestQueryResultAndTimeout(t *testing.T) {
	st := NewState()
	addr := core.AddressOf("entry")

	// Timeout with no response pending records the error.
	st = Reduce(st, state.NewActionWrapper(QueryTimeoutAction{Address: addr}))
	if res := st.QueryResults[addr]; res == nil || res.Err == nil {
		t.Fatal("timeout should record an error result")
	}

	// A response that arrived first wins; the late timeout is a no-op.
	st = NewState()
	entry := core.NewEntry(core.EntryType("post"), "hello")
	st = Reduce(st, state.NewActionWrapper(HandleQueryEntryResultAction{
		Address: addr,
		Entry:   entry,
		Status:  core.StatusLive,
	}))
	next := Reduce(st, state.NewActionWrapper(QueryTimeoutAction{Address: addr}))
	if next != st {
		t.Fatal("timeout after a response must be a no-op by reference")
	}
	if res := next.QueryResults[addr]; res.Err != nil || res.Entry != entry {
		t.Fatalf("response should be preserved, got %+v", res)
	}
}

func TestOpenQueryClearsPreviousRound(t *testing.T) {
	st := NewState()
	addr := core.AddressOf("entry")

	// Opening with no prior row is a no-op by reference.
	if Reduce(st, state.NewActionWrapper(OpenQueryAction{Address: addr})) != st {
		t.Fatal("open on a blank row must preserve the state reference")
	}

	// A timed-out previous round must not satisfy the next query's wait.
	st = Reduce(st, state.NewActionWrapper(QueryTimeoutAction{Address: addr}))
	st = Reduce(st, state.NewActionWrapper(OpenQueryAction{Address: addr}))
	if res, ok := st.QueryResults[addr]; ok {
		t.Fatalf("stale result should be cleared, got %+v", res)
	}

	entry := core.NewEntry(core.EntryType("post"), "hello")
	st = Reduce(st, state.NewActionWrapper(HandleQueryEntryResultAction{
		Address: addr,
		Entry:   entry,
		Status:  core.StatusLive,
	}))
	if res := st.QueryResults[addr]; res == nil || res.Err != nil || res.Entry != entry {
		t.Fatalf("fresh response should land on the cleared row, got %+v", res)
	}
}

func TestOpenLinksQueryClearsPreviousRound(t *testing.T) {
	st := NewState()
	key := LinksKey{Base: core.AddressOf("base"), Tag: "child"}

	if Reduce(st, state.NewActionWrapper(OpenLinksQueryAction{Key: key})) != st {
		t.Fatal("open on a blank row must preserve the state reference")
	}

	st = Reduce(st, state.NewActionWrapper(GetLinksTimeoutAction{Key: key}))
	st = Reduce(st, state.NewActionWrapper(OpenLinksQueryAction{Key: key}))
	if res, ok := st.LinksResults[key]; ok {
		t.Fatalf("stale result should be cleared, got %+v", res)
	}
}

func TestGetLinksTimeout(t *testing.T) {
	st := NewState()
	key := LinksKey{Base: core.AddressOf("base"), Tag: "child"}

	st = Reduce(st, state.NewActionWrapper(GetLinksTimeoutAction{Key: key}))
	if res := st.LinksResults[key]; res == nil || res.Err == nil {
		t.Fatal("timeout should record an error result")
	}
}

func TestDirectMessageSession(t *testing.T) {
	st := NewState()

	st = Reduce(st, state.NewActionWrapper(OpenDirectMessageAction{MsgID: "m1", ToAgentID: "bob"}))
	if session := st.DirectMessages["m1"]; session == nil || session.Done {
		t.Fatal("open session should be pending")
	}

	st = Reduce(st, state.NewActionWrapper(ResolveDirectMessageAction{MsgID: "m1", Response: "pong"}))
	session := st.DirectMessages["m1"]
	if !session.Done || session.Response != "pong" {
		t.Fatalf("session should be resolved, got %+v", session)
	}

	// Resolving an unknown session is a no-op by reference.
	if Reduce(st, state.NewActionWrapper(ResolveDirectMessageAction{MsgID: "nope"})) != st {
		t.Fatal("unknown session resolve must preserve the state reference")
	}
}

func TestInmemHubPublishAndQuery(t *testing.T) {
	hub := NewInmemHub()

	held := map[core.Address]*core.Entry{}
	hub.Connect("bob", NodeCallbacks{
		StoreEntry: func(ewh core.EntryWithHeader) {
			held[ewh.Entry.Address()] = ewh.Entry
		},
		FetchEntry: func(address core.Address) (*core.Entry, core.CrudStatus, bool) {
			entry, ok := held[address]
			return entry, core.StatusLive, ok
		},
	})

	var gotEntry *core.Entry
	var gotStatus core.CrudStatus
	alice := hub.Connect("alice", NodeCallbacks{
		QueryResult: func(address core.Address, entry *core.Entry, status core.CrudStatus) {
			gotEntry, gotStatus = entry, status
		},
	})

	entry := core.NewEntry(core.EntryType("post"), "hello")
	if err := alice.PublishEntry(core.EntryWithHeader{Entry: entry}); err != nil {
		t.Fatal(err)
	}
	if held[entry.Address()] == nil {
		t.Fatal("publish should deliver to every peer")
	}

	if err := alice.QueryEntry(entry.Address()); err != nil {
		t.Fatal(err)
	}
	if gotEntry == nil || gotEntry.Address() != entry.Address() || gotStatus != core.StatusLive {
		t.Fatalf("query should return the held entry LIVE, got %v %v", gotEntry, gotStatus)
	}
}

func TestInmemDirectMessage(t *testing.T) {
	hub := NewInmemHub()
	hub.Connect("bob", NodeCallbacks{
		DirectMessage: func(msgID, from, payload string) string {
			return "echo:" + payload
		},
	})

	var response string
	alice := hub.Connect("alice", NodeCallbacks{
		DirectMessageResponse: func(msgID, resp string) { response = resp },
	})

	if err := alice.SendDirectMessage("m1", "bob", "hi"); err != nil {
		t.Fatal(err)
	}
	if response != "echo:hi" {
		t.Fatalf("expected echo response, got %q", response)
	}

	if err := alice.SendDirectMessage("m2", "carol", "hi"); err == nil {
		t.Fatal("messaging an unknown agent should fail")
	}
}

func TestQueryResultRetention(t *testing.T) {
	st := NewState()
	first := core.AddressOf("entry 0")
	for i := 0; i <= resultRetention; i++ {
		st = Reduce(st, state.NewActionWrapper(HandleQueryEntryResultAction{
			Address: core.AddressOf(core.Content(fmt.Sprintf("entry %d", i))),
			Status:  core.StatusLive,
		}))
	}
	if len(st.QueryResults) != resultRetention {
		t.Fatalf("results should be capped at %d, got %d", resultRetention, len(st.QueryResults))
	}
	if _, ok := st.QueryResults[first]; ok {
		t.Fatal("results past the retention bound should be evicted")
	}
}
