package sim2h

import (
	"github.com/dynaput247/holochain-sub000/src/core"
)

// aspectSet is an unordered set of aspect addresses.
type aspectSet map[core.Address]struct{}

func (s aspectSet) add(address core.Address) { s[address] = struct{}{} }

func (s aspectSet) has(address core.Address) bool {
	_, ok := s[address]
	return ok
}

// agentBook is what one agent is known to hold: entry address to the set
// of aspect addresses the agent reported or was sent.
type agentBook map[core.Address]aspectSet

func (b agentBook) add(entry, aspect core.Address) {
	set, ok := b[entry]
	if !ok {
		set = make(aspectSet)
		b[entry] = set
	}
	set.add(aspect)
}

func (b agentBook) has(entry, aspect core.Address) bool {
	set, ok := b[entry]
	return ok && set.has(aspect)
}

// mergeList folds a reported aspect list into the book.
func (b agentBook) mergeList(list AspectList) {
	for entry, aspects := range list {
		for _, aspect := range aspects {
			b.add(entry, aspect)
		}
	}
}

// missingAspect names one aspect an agent should hold but does not.
type missingAspect struct {
	Entry  core.Address
	Aspect core.Address
}

// Space is the relay's bookkeeping for one DHT space: which agents are
// joined, the global aspect list, per-agent holdings, and the aspect
// content cached from publishes so late joiners can be served directly.
type Space struct {
	agents map[string]*connection

	// all aspects ever published into the space, by entry.
	global agentBook

	// per agent, what it is known to hold.
	holdings map[string]agentBook

	// aspect content by aspect address, kept so the relay can answer
	// fetches itself when the publisher is gone.
	content map[core.Address]Aspect
}

func newSpace() *Space {
	return &Space{
		agents:   make(map[string]*connection),
		global:   make(agentBook),
		holdings: make(map[string]agentBook),
		content:  make(map[core.Address]Aspect),
	}
}

func (s *Space) join(agentID string, conn *connection) {
	s.agents[agentID] = conn
	if _, ok := s.holdings[agentID]; !ok {
		s.holdings[agentID] = make(agentBook)
	}
}

func (s *Space) leave(agentID string) {
	delete(s.agents, agentID)
	// Holdings survive a disconnect; a rejoining agent still holds its
	// shard.
}

func (s *Space) agentIDs() []string {
	ids := make([]string, 0, len(s.agents))
	for id := range s.agents {
		ids = append(ids, id)
	}
	return ids
}

// recordPublish folds newly published aspects into the global list, the
// publisher's holdings, and the content cache.
func (s *Space) recordPublish(agentID string, entry core.Address, aspects []Aspect) {
	for _, aspect := range aspects {
		s.global.add(entry, aspect.Address)
		s.content[aspect.Address] = aspect
		if book, ok := s.holdings[agentID]; ok {
			book.add(entry, aspect.Address)
		}
	}
}

// recordHeld marks an aspect as held by an agent.
func (s *Space) recordHeld(agentID string, entry, aspect core.Address) {
	book, ok := s.holdings[agentID]
	if !ok {
		book = make(agentBook)
		s.holdings[agentID] = book
	}
	book.add(entry, aspect)
}

// missingFor diffs an agent's holdings against what the policy expects it
// to hold.
func (s *Space) missingFor(agentID string, policy ReplicationPolicy) []missingAspect {
	book := s.holdings[agentID]
	agents := s.agentIDs()

	var missing []missingAspect
	for entry, aspects := range s.global {
		holders := policy.ExpectedHolders(entry, agents)
		if !containsAgent(holders, agentID) {
			continue
		}
		for aspect := range aspects {
			if book == nil || !book.has(entry, aspect) {
				missing = append(missing, missingAspect{Entry: entry, Aspect: aspect})
			}
		}
	}
	return missing
}

// holdersOf lists the joined agents known to hold at least one aspect of
// an entry, excluding one agent.
func (s *Space) holdersOf(entry core.Address, excluding string) []string {
	var holders []string
	for id := range s.agents {
		if id == excluding {
			continue
		}
		if book, ok := s.holdings[id]; ok {
			if set, ok := book[entry]; ok && len(set) > 0 {
				holders = append(holders, id)
			}
		}
	}
	return holders
}

func containsAgent(agents []string, agentID string) bool {
	for _, id := range agents {
		if id == agentID {
			return true
		}
	}
	return false
}
