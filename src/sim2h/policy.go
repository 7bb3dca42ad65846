package sim2h

import (
	"sort"

	"github.com/dynaput247/holochain-sub000/src/common"
	"github.com/dynaput247/holochain-sub000/src/core"
)

// ReplicationPolicy decides which joined agents are expected to hold an
// entry's aspects.
type ReplicationPolicy interface {
	// ExpectedHolders filters the space's agents down to those that must
	// hold the entry.
	ExpectedHolders(entry core.Address, agents []string) []string
	// Name identifies the policy in logs and status output.
	Name() string
}

// FullSync expects every agent in the space to hold everything.
type FullSync struct{}

// ExpectedHolders implements ReplicationPolicy.
func (FullSync) ExpectedHolders(entry core.Address, agents []string) []string {
	return agents
}

// Name implements ReplicationPolicy.
func (FullSync) Name() string { return "full_sync" }

// NaiveSharding places each entry at a 32-bit location and expects the
// RedundantCount agents whose own locations are nearest (wrapping
// distance) to hold it.
type NaiveSharding struct {
	RedundantCount int
}

// ExpectedHolders implements ReplicationPolicy.
func (p NaiveSharding) ExpectedHolders(entry core.Address, agents []string) []string {
	count := p.RedundantCount
	if count <= 0 || count >= len(agents) {
		return agents
	}

	entryLoc := location(string(entry))
	type placed struct {
		id   string
		dist uint32
	}
	ranked := make([]placed, 0, len(agents))
	for _, id := range agents {
		ranked = append(ranked, placed{id: id, dist: wrappingDistance(entryLoc, location(id))})
	}
	sort.Slice(ranked, func(i, j int) bool {
		if ranked[i].dist != ranked[j].dist {
			return ranked[i].dist < ranked[j].dist
		}
		return ranked[i].id < ranked[j].id
	})

	holders := make([]string, count)
	for i := 0; i < count; i++ {
		holders[i] = ranked[i].id
	}
	return holders
}

// Name implements ReplicationPolicy.
func (p NaiveSharding) Name() string { return "naive_sharding" }

func location(s string) uint32 {
	return common.Hash32([]byte(s))
}

// wrappingDistance is the shorter way around the 32-bit ring.
func wrappingDistance(a, b uint32) uint32 {
	d := a - b
	if b > a {
		d = b - a
	}
	if d > 1<<31 {
		d = ^d + 1
	}
	return d
}
