// Package network holds the network slice of the instance state: the
// connection to the relay, in-flight query results, and direct-message
// sessions. The relay itself lives in the sim2h package; this side only
// translates between wire events and store actions.
package network

import (
	"github.com/dynaput247/holochain-sub000/src/common"
	"github.com/dynaput247/holochain-sub000/src/core"
)

// Connection is what the network reducers and workflows need from a
// transport: fire-and-forget sends toward the relay. Implemented by the
// sim2h client and by the in-memory network used in tests.
type Connection interface {
	PublishEntry(ewh core.EntryWithHeader) error
	QueryEntry(address core.Address) error
	QueryLinks(base core.Address, tag string) error
	SendDirectMessage(msgID, toAgentID string, payload string) error
	Close() error
}

// LinksKey identifies one get-links query.
type LinksKey struct {
	Base core.Address
	Tag  string
}

// QueryResult is the terminal state of one entry query.
type QueryResult struct {
	Entry  *core.Entry
	Status core.CrudStatus
	Err    error
}

// LinksResult is the terminal state of one links query.
type LinksResult struct {
	Targets []core.Address
	Err     error
}

// DirectMessageSession tracks one custom direct message round trip.
type DirectMessageSession struct {
	ToAgentID string
	Response  string
	Done      bool
}

// resultRetention bounds each result map. Waiters read their row as soon
// as it lands, so only the recent tail matters.
const resultRetention = 256

// State is the network slice. The connection handle is shared across
// clones; the result maps are immutable snapshots.
type State struct {
	Initialized bool
	AgentID     string
	DnaHash     string
	conn        Connection

	QueryResults   map[core.Address]*QueryResult
	LinksResults   map[LinksKey]*LinksResult
	DirectMessages map[string]*DirectMessageSession

	queryOrder []core.Address
	linksOrder []LinksKey
	dmOrder    []string
}

// NewState returns an uninitialized network state.
func NewState() *State {
	return &State{
		QueryResults:   make(map[core.Address]*QueryResult),
		LinksResults:   make(map[LinksKey]*LinksResult),
		DirectMessages: make(map[string]*DirectMessageSession),
	}
}

// Connection returns the transport handle, nil before initialization.
func (s *State) Connection() Connection { return s.conn }

func (s *State) clone() *State {
	next := &State{
		Initialized:    s.Initialized,
		AgentID:        s.AgentID,
		DnaHash:        s.DnaHash,
		conn:           s.conn,
		QueryResults:   make(map[core.Address]*QueryResult, len(s.QueryResults)+1),
		LinksResults:   make(map[LinksKey]*LinksResult, len(s.LinksResults)+1),
		DirectMessages: make(map[string]*DirectMessageSession, len(s.DirectMessages)+1),
		queryOrder:     make([]core.Address, len(s.queryOrder), len(s.queryOrder)+1),
		linksOrder:     make([]LinksKey, len(s.linksOrder), len(s.linksOrder)+1),
		dmOrder:        make([]string, len(s.dmOrder), len(s.dmOrder)+1),
	}
	for addr, res := range s.QueryResults {
		next.QueryResults[addr] = res
	}
	for key, res := range s.LinksResults {
		next.LinksResults[key] = res
	}
	for id, session := range s.DirectMessages {
		next.DirectMessages[id] = session
	}
	copy(next.queryOrder, s.queryOrder)
	copy(next.linksOrder, s.linksOrder)
	copy(next.dmOrder, s.dmOrder)
	return next
}

// recordQueryResult stores one entry query row, evicting the oldest once
// the retention bound is reached. Only ever called on a fresh clone.
func (s *State) recordQueryResult(addr core.Address, res *QueryResult) {
	if _, ok := s.QueryResults[addr]; !ok {
		s.queryOrder = append(s.queryOrder, addr)
		if len(s.queryOrder) > resultRetention {
			delete(s.QueryResults, s.queryOrder[0])
			s.queryOrder = s.queryOrder[1:]
		}
	}
	s.QueryResults[addr] = res
}

func (s *State) dropQueryResult(addr core.Address) {
	delete(s.QueryResults, addr)
	for i, a := range s.queryOrder {
		if a == addr {
			s.queryOrder = append(s.queryOrder[:i], s.queryOrder[i+1:]...)
			return
		}
	}
}

// recordLinksResult stores one links query row under the same retention
// bound.
func (s *State) recordLinksResult(key LinksKey, res *LinksResult) {
	if _, ok := s.LinksResults[key]; !ok {
		s.linksOrder = append(s.linksOrder, key)
		if len(s.linksOrder) > resultRetention {
			delete(s.LinksResults, s.linksOrder[0])
			s.linksOrder = s.linksOrder[1:]
		}
	}
	s.LinksResults[key] = res
}

func (s *State) dropLinksResult(key LinksKey) {
	delete(s.LinksResults, key)
	for i, k := range s.linksOrder {
		if k == key {
			s.linksOrder = append(s.linksOrder[:i], s.linksOrder[i+1:]...)
			return
		}
	}
}

// recordDirectMessage stores one direct message session under the same
// retention bound.
func (s *State) recordDirectMessage(id string, session *DirectMessageSession) {
	if _, ok := s.DirectMessages[id]; !ok {
		s.dmOrder = append(s.dmOrder, id)
		if len(s.dmOrder) > resultRetention {
			delete(s.DirectMessages, s.dmOrder[0])
			s.dmOrder = s.dmOrder[1:]
		}
	}
	s.DirectMessages[id] = session
}

// ErrTimeout is recorded against queries whose timeout action fires before
// a response arrives.
var ErrTimeout = common.NewHcError(common.ErrTimeout, "network query timed out")
