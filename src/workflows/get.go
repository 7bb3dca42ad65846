package workflows

import (
	"time"

	"github.com/dynaput247/holochain-sub000/src/core"
	"github.com/dynaput247/holochain-sub000/src/dht"
	"github.com/dynaput247/holochain-sub000/src/instance"
	"github.com/dynaput247/holochain-sub000/src/network"
)

// GetEntry resolves an address to an entry and its status, serving from
// the local shard when possible and querying the network otherwise. A
// silent network converts into a Timeout error via the timeout action.
func GetEntry(inst *instance.Instance, address core.Address) (*core.Entry, core.CrudStatus, error) {
	store := inst.DhtStore()
	content, found, err := store.ContentStorage().Fetch(address)
	if err != nil {
		return nil, 0, err
	}
	if found {
		entry, err := core.EntryFromContent(content)
		if err != nil {
			return nil, 0, err
		}
		status, hasStatus, err := store.Status(address)
		if err != nil {
			return nil, 0, err
		}
		if !hasStatus {
			status = core.StatusLive
		}
		return entry, status, nil
	}

	conn := inst.State().Network.Connection()
	if conn == nil {
		return nil, 0, nil
	}
	if _, err := inst.DispatchAndWait(network.OpenQueryAction{Address: address}); err != nil {
		return nil, 0, err
	}
	if err := conn.QueryEntry(address); err != nil {
		return nil, 0, err
	}
	go func() {
		time.Sleep(NetworkQueryTimeout)
		inst.Dispatch(network.QueryTimeoutAction{Address: address})
	}()

	err = inst.WaitFor(func(root *instance.RootState) bool {
		return root.Network.QueryResults[address] != nil
	}, NetworkQueryTimeout+time.Second)
	if err != nil {
		return nil, 0, err
	}

	result := inst.State().Network.QueryResults[address]
	if result.Err != nil {
		return nil, 0, result.Err
	}
	return result.Entry, result.Status, nil
}

// GetLinks returns the link targets for base under tag, merging the local
// shard with a network query when connected.
func GetLinks(inst *instance.Instance, base core.Address, tag string) ([]core.Address, error) {
	local, err := inst.DhtStore().GetLinks(base, tag)
	if err != nil {
		return nil, err
	}

	conn := inst.State().Network.Connection()
	if conn == nil {
		return local, nil
	}

	key := network.LinksKey{Base: base, Tag: tag}
	if _, err := inst.DispatchAndWait(network.OpenLinksQueryAction{Key: key}); err != nil {
		return nil, err
	}
	if err := conn.QueryLinks(base, tag); err != nil {
		return nil, err
	}
	go func() {
		time.Sleep(NetworkQueryTimeout)
		inst.Dispatch(network.GetLinksTimeoutAction{Key: key})
	}()

	err = inst.WaitFor(func(root *instance.RootState) bool {
		return root.Network.LinksResults[key] != nil
	}, NetworkQueryTimeout+time.Second)
	if err != nil {
		return nil, err
	}

	result := inst.State().Network.LinksResults[key]
	if result.Err != nil {
		// The local answer still stands when the network stays silent.
		return local, nil
	}
	return mergeAddresses(local, result.Targets), nil
}

// GetEntryHistory returns the update lineage of an address, newest first.
// With latestOnly it returns only the live head, empty for deleted
// lineages.
func GetEntryHistory(inst *instance.Instance, address core.Address, latestOnly bool) ([]dht.HistoryItem, error) {
	return inst.DhtStore().History(address, latestOnly)
}

func mergeAddresses(a, b []core.Address) []core.Address {
	seen := make(map[core.Address]struct{}, len(a)+len(b))
	merged := make([]core.Address, 0, len(a)+len(b))
	for _, list := range [][]core.Address{a, b} {
		for _, addr := range list {
			if _, ok := seen[addr]; ok {
				continue
			}
			seen[addr] = struct{}{}
			merged = append(merged, addr)
		}
	}
	return merged
}
