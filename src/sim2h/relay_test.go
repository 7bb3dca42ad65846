package sim2h

import (
	"encoding/json"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"

	"github.com/dynaput247/holochain-sub000/src/agent"
	"github.com/dynaput247/holochain-sub000/src/common"
	"github.com/dynaput247/holochain-sub000/src/core"
)

const testSpace = core.Address("QmTestSpace")

func newTestRelay(t *testing.T, policy ReplicationPolicy) (*Relay, *httptest.Server) {
	relay := NewRelay(policy, common.NewTestEntry(t, "relay"))
	server := httptest.NewServer(relay.Handler())
	t.Cleanup(func() {
		server.Close()
		relay.Shutdown()
	})
	return relay, server
}

func wsURL(server *httptest.Server) string {
	return "ws" + strings.TrimPrefix(server.URL, "http")
}

// testClient speaks the raw wire protocol so tests can violate it.
type testClient struct {
	t     *testing.T
	agent *agent.Agent
	ws    *websocket.Conn
}

func dialTestClient(t *testing.T, server *httptest.Server) *testClient {
	a, err := agent.NewAgent()
	if err != nil {
		t.Fatal(err)
	}
	ws, _, err := websocket.DefaultDialer.Dial(wsURL(server), nil)
	if err != nil {
		t.Fatal(err)
	}
	t.Cleanup(func() { ws.Close() })
	return &testClient{t: t, agent: a, ws: ws}
}

func (c *testClient) send(msgType string, payload interface{}) {
	env, err := Seal(c.agent, msgType, payload)
	if err != nil {
		c.t.Fatal(err)
	}
	c.sendEnvelope(env)
}

func (c *testClient) sendEnvelope(env *Envelope) {
	data, err := json.Marshal(env)
	if err != nil {
		c.t.Fatal(err)
	}
	if err := c.ws.WriteMessage(websocket.TextMessage, data); err != nil {
		c.t.Fatal(err)
	}
}

// read returns the next message, or nil when the relay closed the
// connection.
func (c *testClient) read() *Message {
	c.ws.SetReadDeadline(time.Now().Add(5 * time.Second))
	_, raw, err := c.ws.ReadMessage()
	if err != nil {
		return nil
	}
	msg := new(Message)
	if err := json.Unmarshal(raw, msg); err != nil {
		c.t.Fatal(err)
	}
	return msg
}

// readType skips messages until one of the wanted type arrives.
func (c *testClient) readType(msgType string) *Message {
	for {
		msg := c.read()
		if msg == nil {
			return nil
		}
		if msg.Type == msgType {
			return msg
		}
	}
}

func (c *testClient) join() {
	c.send(TypeJoinSpace, JoinSpacePayload{Space: testSpace, AgentID: c.agent.Identity})
}

func TestPingPong(t *testing.T) {
	_, server := newTestRelay(t, FullSync{})
	client := dialTestClient(t, server)

	// Liveness works without joining a space.
	client.send(TypePing, nil)
	if msg := client.readType(TypePong); msg == nil {
		t.Fatal("Ping should be answered with pong")
	}
}

func TestHelloVersionMatch(t *testing.T) {
	_, server := newTestRelay(t, FullSync{})
	client := dialTestClient(t, server)

	client.send(TypeHello, HelloPayload{Version: WireVersion})
	msg := client.readType(TypeHelloResponse)
	if msg == nil {
		t.Fatal("Hello should be answered")
	}
	var hello HelloPayload
	if err := json.Unmarshal(msg.Payload, &hello); err != nil {
		t.Fatal(err)
	}
	if hello.Version != WireVersion {
		t.Fatalf("Relay should announce version %d, not %d", WireVersion, hello.Version)
	}

	// The connection survives a matching version.
	client.send(TypePing, nil)
	if client.readType(TypePong) == nil {
		t.Fatal("Connection should stay open after matching hello")
	}
}

func TestHelloVersionMismatchDisconnects(t *testing.T) {
	_, server := newTestRelay(t, FullSync{})
	client := dialTestClient(t, server)

	client.send(TypeHello, HelloPayload{Version: WireVersion + 1})
	if client.readType(TypeHelloResponse) == nil {
		t.Fatal("Mismatch still gets a hello response first")
	}
	if msg := client.read(); msg != nil {
		t.Fatalf("Relay should disconnect after version mismatch, got %v", msg)
	}
}

func TestBadSignatureDisconnects(t *testing.T) {
	_, server := newTestRelay(t, FullSync{})
	client := dialTestClient(t, server)

	env, err := Seal(client.agent, TypePing, nil)
	if err != nil {
		t.Fatal(err)
	}
	env.Message = json.RawMessage(`{"type":"ping","payload":null}  `)
	client.sendEnvelope(env)
	if msg := client.read(); msg != nil {
		t.Fatalf("Tampered message should disconnect, got %v", msg)
	}
}

func TestJoinForeignIdentityDisconnects(t *testing.T) {
	_, server := newTestRelay(t, FullSync{})
	client := dialTestClient(t, server)

	client.send(TypeJoinSpace, JoinSpacePayload{Space: testSpace, AgentID: "somebody-else"})
	if msg := client.read(); msg != nil {
		t.Fatalf("Joining under a foreign identity should disconnect, got %v", msg)
	}
}

func TestIdentityPinning(t *testing.T) {
	_, server := newTestRelay(t, FullSync{})
	client := dialTestClient(t, server)
	client.join()

	imposter, err := agent.NewAgent()
	if err != nil {
		t.Fatal(err)
	}
	env, err := Seal(imposter, TypeQueryEntry, QueryEntryPayload{
		RequestID:    "q1",
		EntryAddress: core.Address("QmSomething"),
	})
	if err != nil {
		t.Fatal(err)
	}
	client.sendEnvelope(env)
	// The join's list requests arrive first, then the pinning violation
	// kills the connection.
	client.readType(TypeGetGossipingEntryList)
	if msg := client.read(); msg != nil {
		t.Fatalf("Speaking as another agent should disconnect, got %v", msg)
	}
}

func TestLimboQueueReplaysOnJoin(t *testing.T) {
	_, server := newTestRelay(t, FullSync{})

	holder := dialTestClient(t, server)
	holder.join()

	publisher := dialTestClient(t, server)
	// Publish before joining: the relay must queue it.
	aspect := NewAspect([]byte(`{"entry":{"value":"queued","entry_type":"post"},"header":null}`))
	publisher.send(TypePublishEntry, PublishEntryPayload{
		EntryAddress: core.Address("QmQueuedEntry"),
		Aspects:      []Aspect{aspect},
	})
	publisher.join()

	msg := holder.readType(TypeStoreEntryAspect)
	if msg == nil {
		t.Fatal("Queued publish should replay on join and reach the holder")
	}
	var store StoreEntryAspectPayload
	if err := json.Unmarshal(msg.Payload, &store); err != nil {
		t.Fatal(err)
	}
	if store.EntryAddress != core.Address("QmQueuedEntry") {
		t.Fatalf("Wrong entry delivered: %s", store.EntryAddress)
	}
	if store.Aspect.Address != aspect.Address {
		t.Fatalf("Wrong aspect delivered: %s", store.Aspect.Address)
	}
}

func TestDirectMessageToAbsentAgent(t *testing.T) {
	_, server := newTestRelay(t, FullSync{})
	client := dialTestClient(t, server)
	client.join()

	client.send(TypeSendDirectMessage, DirectMessagePayload{
		MsgID:   "m1",
		ToAgent: "nobody",
		Payload: "hello?",
	})
	msg := client.readType(TypeSendDirectMessageResult)
	if msg == nil {
		t.Fatal("Messaging an absent agent should produce an error response")
	}
	var dm DirectMessagePayload
	if err := json.Unmarshal(msg.Payload, &dm); err != nil {
		t.Fatal(err)
	}
	if dm.MsgID != "m1" || !dm.IsResponse {
		t.Fatalf("Response should conclude msg m1: %+v", dm)
	}
}

func TestNaiveShardingHolders(t *testing.T) {
	policy := NaiveSharding{RedundantCount: 2}
	agents := []string{"agent-a", "agent-b", "agent-c", "agent-d"}

	holders := policy.ExpectedHolders(core.Address("QmEntry"), agents)
	if len(holders) != 2 {
		t.Fatalf("Sharding should pick 2 holders, not %d", len(holders))
	}
	again := policy.ExpectedHolders(core.Address("QmEntry"), agents)
	if holders[0] != again[0] || holders[1] != again[1] {
		t.Fatal("Placement must be deterministic")
	}
	for _, h := range holders {
		if !containsAgent(agents, h) {
			t.Fatalf("Holder %s is not an agent", h)
		}
	}

	// Fewer agents than the redundancy target means everyone holds.
	small := []string{"agent-a", "agent-b"}
	if got := policy.ExpectedHolders(core.Address("QmEntry"), small); len(got) != 2 {
		t.Fatalf("All agents expected when count >= agents, got %v", got)
	}
}

func TestFullSyncMissingDetection(t *testing.T) {
	space := newSpace()
	space.join("alice", &connection{})
	space.join("bob", &connection{})

	aspect := NewAspect([]byte(`{"entry":{"value":"x","entry_type":"post"},"header":null}`))
	space.recordPublish("alice", core.Address("QmE"), []Aspect{aspect})

	missing := space.missingFor("bob", FullSync{})
	if len(missing) != 1 {
		t.Fatalf("Bob should be missing 1 aspect, not %d", len(missing))
	}
	if missing[0].Entry != core.Address("QmE") || missing[0].Aspect != aspect.Address {
		t.Fatalf("Wrong missing aspect: %+v", missing[0])
	}

	space.recordHeld("bob", core.Address("QmE"), aspect.Address)
	if missing := space.missingFor("bob", FullSync{}); len(missing) != 0 {
		t.Fatalf("Nothing should be missing after hold, got %v", missing)
	}

	// The publisher is never missing its own publish.
	if missing := space.missingFor("alice", FullSync{}); len(missing) != 0 {
		t.Fatalf("Publisher should hold its publish, got %v", missing)
	}
}
