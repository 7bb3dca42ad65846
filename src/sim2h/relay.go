package sim2h

import (
	"encoding/json"
	"fmt"
	"math/rand"
	"net/http"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"github.com/sirupsen/logrus"

	"github.com/dynaput247/holochain-sub000/src/core"
)

// DefaultResyncInterval is how often the relay re-checks nodes with
// outstanding missing aspects.
const DefaultResyncInterval = 30 * time.Second

type connState int

const (
	// stateLimbo connections have not joined a space; everything except
	// liveness traffic queues until the join.
	stateLimbo connState = iota
	stateJoined
)

// connection is the relay's side of one websocket.
type connection struct {
	ws *websocket.Conn

	writeMu sync.Mutex

	state   connState
	agentID string
	space   core.Address

	// envelopes received in limbo, replayed on join.
	pending []*Envelope
}

// send writes one relay-originated message. Fire and forget: a failed
// write surfaces when the read loop notices the dead socket.
func (c *connection) send(msgType string, payload interface{}) {
	msg, err := encodeMessage(msgType, payload)
	if err != nil {
		return
	}
	c.writeMu.Lock()
	defer c.writeMu.Unlock()
	c.ws.WriteMessage(websocket.TextMessage, msg)
}

// pendingFetch tracks one fetch issued on a node's behalf: either to
// answer a query or to backfill agents missing the aspects.
type pendingFetch struct {
	space     core.Address
	requester string
	// queryID is set when the fetch answers a QueryEntry.
	queryID string
	// missing lists the agents to backfill when the fetch returns.
	missing []string
}

// pendingLinksQuery routes a links answer back to its asker.
type pendingLinksQuery struct {
	space     core.Address
	requester string
}

// Relay joins agents into spaces and drives replication per its policy.
type Relay struct {
	policy ReplicationPolicy
	logger *logrus.Entry

	resyncInterval time.Duration

	mu      sync.Mutex
	spaces  map[core.Address]*Space
	conns   map[*connection]struct{}
	fetches map[string]*pendingFetch
	links   map[string]*pendingLinksQuery
	reqSeq  int64

	quitCh   chan struct{}
	wg       sync.WaitGroup
	shutdown sync.Once
}

// NewRelay builds a relay with the given replication policy.
func NewRelay(policy ReplicationPolicy, logger *logrus.Entry) *Relay {
	r := &Relay{
		policy:         policy,
		logger:         logger,
		resyncInterval: DefaultResyncInterval,
		spaces:         make(map[core.Address]*Space),
		conns:          make(map[*connection]struct{}),
		fetches:        make(map[string]*pendingFetch),
		links:          make(map[string]*pendingLinksQuery),
		quitCh:         make(chan struct{}),
	}
	r.wg.Add(1)
	go r.resyncLoop()
	return r
}

// SetResyncInterval overrides the missing-aspect retry period. Takes
// effect on the next tick.
func (r *Relay) SetResyncInterval(d time.Duration) {
	r.mu.Lock()
	r.resyncInterval = d
	r.mu.Unlock()
}

var upgrader = websocket.Upgrader{
	CheckOrigin: func(req *http.Request) bool { return true },
}

// Handler serves the websocket endpoint at / and a JSON status document
// at /status.
func (r *Relay) Handler() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("/", r.handleWebsocket)
	mux.HandleFunc("/status", r.handleStatus)
	return mux
}

// Serve blocks on ListenAndServe.
func (r *Relay) Serve(bindAddress string) error {
	r.logger.WithField("bind_address", bindAddress).Info("Serving relay")
	return http.ListenAndServe(bindAddress, r.Handler())
}

// Shutdown stops the resync loop and closes every connection.
func (r *Relay) Shutdown() {
	r.shutdown.Do(func() {
		close(r.quitCh)
	})
	r.mu.Lock()
	for conn := range r.conns {
		conn.ws.Close()
	}
	r.mu.Unlock()
	r.wg.Wait()
}

func (r *Relay) handleStatus(w http.ResponseWriter, req *http.Request) {
	r.mu.Lock()
	status := struct {
		Policy      string `json:"policy"`
		Spaces      int    `json:"spaces"`
		Connections int    `json:"connections"`
	}{
		Policy:      r.policy.Name(),
		Spaces:      len(r.spaces),
		Connections: len(r.conns),
	}
	r.mu.Unlock()

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(status)
}

func (r *Relay) handleWebsocket(w http.ResponseWriter, req *http.Request) {
	ws, err := upgrader.Upgrade(w, req, nil)
	if err != nil {
		r.logger.WithField("error", err.Error()).Debug("Websocket upgrade failed")
		return
	}
	conn := &connection{ws: ws, state: stateLimbo}

	r.mu.Lock()
	r.conns[conn] = struct{}{}
	r.mu.Unlock()

	defer r.dropConnection(conn)

	for {
		_, raw, err := ws.ReadMessage()
		if err != nil {
			return
		}
		env := new(Envelope)
		if err := json.Unmarshal(raw, env); err != nil {
			// Malformed traffic forfeits the connection.
			r.logger.Debug("Disconnecting malformed sender")
			return
		}
		if !r.handleEnvelope(conn, env) {
			return
		}
	}
}

func (r *Relay) dropConnection(conn *connection) {
	r.mu.Lock()
	delete(r.conns, conn)
	if conn.state == stateJoined {
		if space, ok := r.spaces[conn.space]; ok {
			space.leave(conn.agentID)
		}
	}
	r.mu.Unlock()
	conn.ws.Close()
}

// handleEnvelope processes one signed message. Returns false when the
// connection must drop: bad signature, identity mismatch, or version
// mismatch.
func (r *Relay) handleEnvelope(conn *connection, env *Envelope) bool {
	if !env.Verify() {
		r.logger.Debug("Disconnecting sender with bad signature")
		return false
	}
	msg := new(Message)
	if err := json.Unmarshal(env.Message, msg); err != nil {
		return false
	}

	// Liveness and version traffic is independent of join state.
	switch msg.Type {
	case TypePing:
		conn.send(TypePong, nil)
		return true
	case TypeHello:
		var hello HelloPayload
		if err := json.Unmarshal(msg.Payload, &hello); err != nil {
			return false
		}
		conn.send(TypeHelloResponse, HelloPayload{Version: WireVersion})
		if hello.Version != WireVersion {
			r.logger.WithFields(logrus.Fields{
				"theirs": hello.Version,
				"ours":   WireVersion,
			}).Debug("Disconnecting version mismatch")
			return false
		}
		return true
	case TypeStatus:
		r.mu.Lock()
		payload := StatusPayload{Spaces: len(r.spaces), Connections: len(r.conns)}
		r.mu.Unlock()
		conn.send(TypeStatusResponse, payload)
		return true
	case TypeJoinSpace:
		return r.handleJoin(conn, env, msg)
	}

	if conn.state == stateLimbo {
		// Everything else queues until the join.
		conn.pending = append(conn.pending, env)
		return true
	}

	// Identity pinning: a joined connection speaks as exactly one agent.
	if env.Provenance.Source != conn.agentID {
		r.logger.WithField("agent", conn.agentID).Debug("Disconnecting identity mismatch")
		return false
	}
	return r.handleJoined(conn, msg)
}

func (r *Relay) handleJoin(conn *connection, env *Envelope, msg *Message) bool {
	var join JoinSpacePayload
	if err := json.Unmarshal(msg.Payload, &join); err != nil {
		return false
	}
	// The claimed agent must be the signer.
	if join.AgentID != env.Provenance.Source {
		r.logger.Debug("Disconnecting join with foreign identity")
		return false
	}
	if conn.state == stateJoined {
		if conn.space == join.Space && conn.agentID == join.AgentID {
			return true
		}
		r.logger.Debug("Disconnecting re-join under different identity")
		return false
	}

	r.mu.Lock()
	space, ok := r.spaces[join.Space]
	if !ok {
		space = newSpace()
		r.spaces[join.Space] = space
	}
	conn.state = stateJoined
	conn.agentID = join.AgentID
	conn.space = join.Space
	space.join(join.AgentID, conn)
	r.mu.Unlock()

	r.logger.WithFields(logrus.Fields{
		"space": join.Space,
		"agent": join.AgentID,
	}).Debug("Agent joined space")

	// A fresh joiner reports what it authored and holds so replication
	// can catch it up.
	conn.send(TypeGetAuthoringEntryList, EntryListPayload{RequestID: r.nextRequestID()})
	conn.send(TypeGetGossipingEntryList, EntryListPayload{RequestID: r.nextRequestID()})

	// Replay what queued in limbo.
	queued := conn.pending
	conn.pending = nil
	for _, pendingEnv := range queued {
		if !r.handleEnvelope(conn, pendingEnv) {
			return false
		}
	}
	return true
}

// handleJoined processes space traffic. Semantically invalid messages get
// an error response, not a disconnect.
func (r *Relay) handleJoined(conn *connection, msg *Message) bool {
	switch msg.Type {
	case TypeLeaveSpace:
		r.mu.Lock()
		if space, ok := r.spaces[conn.space]; ok {
			space.leave(conn.agentID)
		}
		conn.state = stateLimbo
		conn.agentID = ""
		conn.space = core.NilAddress
		r.mu.Unlock()
		return true

	case TypeSendDirectMessage:
		var dm DirectMessagePayload
		if err := json.Unmarshal(msg.Payload, &dm); err != nil {
			return false
		}
		r.routeDirectMessage(conn, dm)
		return true

	case TypePublishEntry:
		var pub PublishEntryPayload
		if err := json.Unmarshal(msg.Payload, &pub); err != nil {
			return false
		}
		r.handlePublish(conn, pub)
		return true

	case TypeQueryEntry:
		var query QueryEntryPayload
		if err := json.Unmarshal(msg.Payload, &query); err != nil {
			return false
		}
		r.handleQuery(conn, query)
		return true

	case TypeQueryLinks:
		var query QueryLinksPayload
		if err := json.Unmarshal(msg.Payload, &query); err != nil {
			return false
		}
		r.handleQueryLinks(conn, query)
		return true

	case TypeQueryLinksResult:
		var result QueryLinksResultPayload
		if err := json.Unmarshal(msg.Payload, &result); err != nil {
			return false
		}
		r.handleQueryLinksResult(result)
		return true

	case TypeGetAuthoringEntryListResult, TypeGetGossipingEntryListResult:
		var list EntryListPayload
		if err := json.Unmarshal(msg.Payload, &list); err != nil {
			return false
		}
		r.handleEntryList(conn, list)
		return true

	case TypeFetchEntryResult:
		var result FetchEntryResultPayload
		if err := json.Unmarshal(msg.Payload, &result); err != nil {
			return false
		}
		r.handleFetchResult(conn, result)
		return true
	}

	r.logger.WithField("type", msg.Type).Debug("Ignoring unknown message type")
	return true
}

func (r *Relay) routeDirectMessage(conn *connection, dm DirectMessagePayload) {
	r.mu.Lock()
	space, ok := r.spaces[conn.space]
	var target *connection
	if ok {
		target = space.agents[dm.ToAgent]
	}
	r.mu.Unlock()

	if target == nil {
		// Answer the sender with an error-shaped response so its session
		// concludes instead of timing out.
		conn.send(TypeSendDirectMessageResult, DirectMessagePayload{
			MsgID:      dm.MsgID,
			FromAgent:  dm.ToAgent,
			ToAgent:    conn.agentID,
			Payload:    fmt.Sprintf("agent %s is not in space", dm.ToAgent),
			IsResponse: true,
		})
		return
	}
	dm.FromAgent = conn.agentID
	if dm.IsResponse {
		target.send(TypeSendDirectMessageResult, dm)
	} else {
		target.send(TypeSendDirectMessage, dm)
	}
}

// handlePublish records the aspects and pushes them to every agent the
// policy expects to hold them.
func (r *Relay) handlePublish(conn *connection, pub PublishEntryPayload) {
	r.mu.Lock()
	space := r.spaces[conn.space]
	space.recordPublish(conn.agentID, pub.EntryAddress, pub.Aspects)
	holders := r.policy.ExpectedHolders(pub.EntryAddress, space.agentIDs())

	type delivery struct {
		conn   *connection
		aspect Aspect
	}
	var deliveries []delivery
	for _, agentID := range holders {
		if agentID == conn.agentID {
			continue
		}
		target, ok := space.agents[agentID]
		if !ok {
			continue
		}
		for _, aspect := range pub.Aspects {
			space.recordHeld(agentID, pub.EntryAddress, aspect.Address)
			deliveries = append(deliveries, delivery{conn: target, aspect: aspect})
		}
	}
	r.mu.Unlock()

	for _, d := range deliveries {
		d.conn.send(TypeStoreEntryAspect, StoreEntryAspectPayload{
			EntryAddress: pub.EntryAddress,
			Aspect:       d.aspect,
		})
	}
}

// handleQuery resolves an entry for the requester: preferably by fetching
// from a random holder, falling back to the relay's own aspect cache.
func (r *Relay) handleQuery(conn *connection, query QueryEntryPayload) {
	r.mu.Lock()
	space := r.spaces[conn.space]
	holders := space.holdersOf(query.EntryAddress, conn.agentID)

	if len(holders) > 0 {
		holder := holders[rand.Intn(len(holders))]
		target := space.agents[holder]
		requestID := r.nextRequestIDLocked()
		r.fetches[requestID] = &pendingFetch{
			space:     conn.space,
			requester: conn.agentID,
			queryID:   query.RequestID,
		}
		r.mu.Unlock()
		target.send(TypeFetchEntry, FetchEntryPayload{
			RequestID:    requestID,
			EntryAddress: query.EntryAddress,
		})
		return
	}

	// No live holder; serve from the publish cache if we can.
	var aspects []Aspect
	if set, ok := space.global[query.EntryAddress]; ok {
		for aspectAddr := range set {
			if aspect, ok := space.content[aspectAddr]; ok {
				aspects = append(aspects, aspect)
			}
		}
	}
	r.mu.Unlock()

	if len(aspects) == 0 {
		// Unknown entry: stay silent, the client's timeout concludes the
		// query.
		return
	}
	conn.send(TypeQueryEntryResult, QueryEntryResultPayload{
		RequestID:    query.RequestID,
		EntryAddress: query.EntryAddress,
		Aspects:      aspects,
	})
}

func (r *Relay) handleQueryLinks(conn *connection, query QueryLinksPayload) {
	r.mu.Lock()
	space := r.spaces[conn.space]
	var peers []*connection
	for id, peer := range space.agents {
		if id != conn.agentID {
			peers = append(peers, peer)
		}
	}
	if len(peers) == 0 {
		r.mu.Unlock()
		return
	}
	target := peers[rand.Intn(len(peers))]
	requestID := r.nextRequestIDLocked()
	r.links[requestID] = &pendingLinksQuery{space: conn.space, requester: conn.agentID}
	r.mu.Unlock()

	target.send(TypeQueryLinks, QueryLinksPayload{
		RequestID: requestID,
		Base:      query.Base,
		Tag:       query.Tag,
	})
}

func (r *Relay) handleQueryLinksResult(result QueryLinksResultPayload) {
	r.mu.Lock()
	pending, ok := r.links[result.RequestID]
	if ok {
		delete(r.links, result.RequestID)
	}
	var target *connection
	if ok {
		if space, found := r.spaces[pending.space]; found {
			target = space.agents[pending.requester]
		}
	}
	r.mu.Unlock()

	if target != nil {
		target.send(TypeQueryLinksResult, result)
	}
}

// handleEntryList folds a node's reported holdings in and backfills what
// it is missing.
func (r *Relay) handleEntryList(conn *connection, list EntryListPayload) {
	r.mu.Lock()
	space := r.spaces[conn.space]
	book, ok := space.holdings[conn.agentID]
	if !ok {
		book = make(agentBook)
		space.holdings[conn.agentID] = book
	}
	book.mergeList(list.List)
	// Reported aspects may be new to the space, e.g. authored while
	// offline.
	for entry, aspects := range list.List {
		for _, aspect := range aspects {
			space.global.add(entry, aspect)
		}
	}
	missing := space.missingFor(conn.agentID, r.policy)
	r.mu.Unlock()

	if len(missing) > 0 {
		r.backfill(conn.space, conn.agentID, missing)
	}
}

// backfill gets missing aspects to an agent, fetching from a random
// holder when the cache cannot serve them.
func (r *Relay) backfill(spaceAddr core.Address, agentID string, missing []missingAspect) {
	r.mu.Lock()
	space, ok := r.spaces[spaceAddr]
	if !ok {
		r.mu.Unlock()
		return
	}
	target := space.agents[agentID]

	type delivery struct {
		entry  core.Address
		aspect Aspect
	}
	var cached []delivery
	uncached := make(map[core.Address][]core.Address)
	for _, m := range missing {
		if aspect, found := space.content[m.Aspect]; found {
			space.recordHeld(agentID, m.Entry, m.Aspect)
			cached = append(cached, delivery{entry: m.Entry, aspect: aspect})
		} else {
			uncached[m.Entry] = append(uncached[m.Entry], m.Aspect)
		}
	}

	type fetchOut struct {
		conn    *connection
		payload FetchEntryPayload
	}
	var fetchOuts []fetchOut
	for entry, aspects := range uncached {
		holders := space.holdersOf(entry, agentID)
		if len(holders) == 0 {
			continue
		}
		holder := space.agents[holders[rand.Intn(len(holders))]]
		requestID := r.nextRequestIDLocked()
		r.fetches[requestID] = &pendingFetch{
			space:   spaceAddr,
			missing: []string{agentID},
		}
		fetchOuts = append(fetchOuts, fetchOut{
			conn: holder,
			payload: FetchEntryPayload{
				RequestID:    requestID,
				EntryAddress: entry,
				Aspects:      aspects,
			},
		})
	}
	r.mu.Unlock()

	if target != nil {
		for _, d := range cached {
			target.send(TypeStoreEntryAspect, StoreEntryAspectPayload{
				EntryAddress: d.entry,
				Aspect:       d.aspect,
			})
		}
	}
	for _, f := range fetchOuts {
		f.conn.send(TypeFetchEntry, f.payload)
	}
}

// handleFetchResult routes fetched content to whoever was waiting: a
// querying agent or the agents missing the aspects.
func (r *Relay) handleFetchResult(conn *connection, result FetchEntryResultPayload) {
	r.mu.Lock()
	pending, ok := r.fetches[result.RequestID]
	if !ok {
		r.mu.Unlock()
		return
	}
	delete(r.fetches, result.RequestID)

	space := r.spaces[pending.space]
	for _, aspect := range result.Aspects {
		space.content[aspect.Address] = aspect
		space.global.add(result.EntryAddress, aspect.Address)
	}

	var queryTarget *connection
	if pending.queryID != "" {
		queryTarget = space.agents[pending.requester]
	}
	type delivery struct {
		conn   *connection
		aspect Aspect
	}
	var deliveries []delivery
	for _, agentID := range pending.missing {
		target, found := space.agents[agentID]
		if !found {
			continue
		}
		for _, aspect := range result.Aspects {
			space.recordHeld(agentID, result.EntryAddress, aspect.Address)
			deliveries = append(deliveries, delivery{conn: target, aspect: aspect})
		}
	}
	r.mu.Unlock()

	if queryTarget != nil {
		queryTarget.send(TypeQueryEntryResult, QueryEntryResultPayload{
			RequestID:    pending.queryID,
			EntryAddress: result.EntryAddress,
			Aspects:      result.Aspects,
		})
	}
	for _, d := range deliveries {
		d.conn.send(TypeStoreEntryAspect, StoreEntryAspectPayload{
			EntryAddress: result.EntryAddress,
			Aspect:       d.aspect,
		})
	}
}

// resyncLoop periodically re-requests gossip lists from agents with
// outstanding missing aspects and retries their backfill.
func (r *Relay) resyncLoop() {
	defer r.wg.Done()
	for {
		r.mu.Lock()
		interval := r.resyncInterval
		r.mu.Unlock()

		select {
		case <-time.After(interval):
			r.resyncPass()
		case <-r.quitCh:
			return
		}
	}
}

func (r *Relay) resyncPass() {
	type resyncTarget struct {
		space   core.Address
		agentID string
		conn    *connection
		missing []missingAspect
	}
	var targets []resyncTarget

	r.mu.Lock()
	for spaceAddr, space := range r.spaces {
		for agentID, conn := range space.agents {
			missing := space.missingFor(agentID, r.policy)
			if len(missing) == 0 {
				continue
			}
			targets = append(targets, resyncTarget{
				space:   spaceAddr,
				agentID: agentID,
				conn:    conn,
				missing: missing,
			})
		}
	}
	r.mu.Unlock()

	for _, t := range targets {
		t.conn.send(TypeGetGossipingEntryList, EntryListPayload{RequestID: r.nextRequestID()})
		r.backfill(t.space, t.agentID, t.missing)
	}
}

func (r *Relay) nextRequestID() string {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.nextRequestIDLocked()
}

func (r *Relay) nextRequestIDLocked() string {
	r.reqSeq++
	return fmt.Sprintf("req-%d", r.reqSeq)
}
