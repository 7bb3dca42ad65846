package network

import (
	"sync"

	"github.com/dynaput247/holochain-sub000/src/common"
	"github.com/dynaput247/holochain-sub000/src/core"
)

// NodeCallbacks is how an in-memory node reacts to traffic delivered by
// the hub. Nil callbacks drop the event.
type NodeCallbacks struct {
	// StoreEntry delivers an entry published by a peer for holding.
	StoreEntry func(ewh core.EntryWithHeader)
	// FetchEntry serves a peer's entry query from local storage.
	FetchEntry func(address core.Address) (*core.Entry, core.CrudStatus, bool)
	// FetchLinks serves a peer's links query from local storage.
	FetchLinks func(base core.Address, tag string) []core.Address
	// QueryResult delivers the response to this node's own entry query.
	QueryResult func(address core.Address, entry *core.Entry, status core.CrudStatus)
	// LinksResult delivers the response to this node's own links query.
	LinksResult func(key LinksKey, targets []core.Address)
	// DirectMessage handles an incoming direct message and returns the
	// response payload.
	DirectMessage func(msgID, fromAgentID, payload string) string
	// DirectMessageResponse delivers the response to a message this node
	// sent.
	DirectMessageResponse func(msgID, response string)
}

// InmemHub is a process-local stand-in for the relay: every registered
// node holds every published entry, queries are served by whichever peer
// has the entry. Used by tests and single-process multi-agent setups.
type InmemHub struct {
	mu    sync.Mutex
	nodes map[string]*InmemConnection
}

// NewInmemHub builds an empty hub.
func NewInmemHub() *InmemHub {
	return &InmemHub{nodes: make(map[string]*InmemConnection)}
}

// Connect registers an agent and returns its connection.
func (h *InmemHub) Connect(agentID string, callbacks NodeCallbacks) *InmemConnection {
	conn := &InmemConnection{hub: h, agentID: agentID, callbacks: callbacks}
	h.mu.Lock()
	h.nodes[agentID] = conn
	h.mu.Unlock()
	return conn
}

func (h *InmemHub) peers(excluding string) []*InmemConnection {
	h.mu.Lock()
	defer h.mu.Unlock()
	peers := make([]*InmemConnection, 0, len(h.nodes))
	for id, conn := range h.nodes {
		if id != excluding {
			peers = append(peers, conn)
		}
	}
	return peers
}

func (h *InmemHub) node(agentID string) (*InmemConnection, bool) {
	h.mu.Lock()
	defer h.mu.Unlock()
	conn, ok := h.nodes[agentID]
	return conn, ok
}

func (h *InmemHub) remove(agentID string) {
	h.mu.Lock()
	delete(h.nodes, agentID)
	h.mu.Unlock()
}

// InmemConnection implements Connection against the hub.
type InmemConnection struct {
	hub       *InmemHub
	agentID   string
	callbacks NodeCallbacks
}

// PublishEntry implements Connection: full-sync delivery to every peer.
func (c *InmemConnection) PublishEntry(ewh core.EntryWithHeader) error {
	for _, peer := range c.hub.peers(c.agentID) {
		if peer.callbacks.StoreEntry != nil {
			peer.callbacks.StoreEntry(ewh)
		}
	}
	return nil
}

// QueryEntry implements Connection: the first peer able to serve the
// address answers; the result is delivered through QueryResult.
func (c *InmemConnection) QueryEntry(address core.Address) error {
	for _, peer := range c.hub.peers(c.agentID) {
		if peer.callbacks.FetchEntry == nil {
			continue
		}
		if entry, status, ok := peer.callbacks.FetchEntry(address); ok {
			if c.callbacks.QueryResult != nil {
				c.callbacks.QueryResult(address, entry, status)
			}
			return nil
		}
	}
	// No peer holds it; the caller's timeout handles the silence, as with
	// the real relay.
	return nil
}

// QueryLinks implements Connection.
func (c *InmemConnection) QueryLinks(base core.Address, tag string) error {
	for _, peer := range c.hub.peers(c.agentID) {
		if peer.callbacks.FetchLinks == nil {
			continue
		}
		if targets := peer.callbacks.FetchLinks(base, tag); targets != nil {
			if c.callbacks.LinksResult != nil {
				c.callbacks.LinksResult(LinksKey{Base: base, Tag: tag}, targets)
			}
			return nil
		}
	}
	return nil
}

// SendDirectMessage implements Connection.
func (c *InmemConnection) SendDirectMessage(msgID, toAgentID, payload string) error {
	peer, ok := c.hub.node(toAgentID)
	if !ok {
		return common.NewHcErrorf(common.ErrGeneric, "no such agent %s", toAgentID)
	}
	if peer.callbacks.DirectMessage == nil {
		return common.NewHcErrorf(common.ErrGeneric, "agent %s does not accept direct messages", toAgentID)
	}
	response := peer.callbacks.DirectMessage(msgID, c.agentID, payload)
	if c.callbacks.DirectMessageResponse != nil {
		c.callbacks.DirectMessageResponse(msgID, response)
	}
	return nil
}

// Close implements Connection.
func (c *InmemConnection) Close() error {
	c.hub.remove(c.agentID)
	return nil
}
