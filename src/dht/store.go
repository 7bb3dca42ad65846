// Package dht holds the local shard of the distributed hash table: entry
// content in content-addressed storage plus link and lifecycle metadata in
// the EAV store, mutated only through the reducers in this package.
package dht

import (
	"github.com/dynaput247/holochain-sub000/src/cas"
	"github.com/dynaput247/holochain-sub000/src/common"
	"github.com/dynaput247/holochain-sub000/src/core"
	"github.com/dynaput247/holochain-sub000/src/eav"
)

// resultRetention bounds the per-action outcome map. Dispatchers read
// their verdict right after the reduce, so only the recent tail matters.
const resultRetention = 256

// Store is the DHT slice of the instance state. The storage handles are
// shared across clones; Results records the outcome of each processed
// action by wrapper id so observers can pick up failures.
type Store struct {
	content cas.ContentAddressableStorage
	meta    eav.EntityAttributeValueStorage
	Results map[int64]error

	resultOrder []int64
}

// NewStore builds a DHT store over the given backends.
func NewStore(content cas.ContentAddressableStorage, meta eav.EntityAttributeValueStorage) *Store {
	return &Store{
		content: content,
		meta:    meta,
		Results: make(map[int64]error),
	}
}

// recordResult stores one action verdict, evicting the oldest once the
// retention bound is reached. Only ever called on a fresh clone.
func (s *Store) recordResult(id int64, err error) {
	if _, ok := s.Results[id]; !ok {
		s.resultOrder = append(s.resultOrder, id)
		if len(s.resultOrder) > resultRetention {
			delete(s.Results, s.resultOrder[0])
			s.resultOrder = s.resultOrder[1:]
		}
	}
	s.Results[id] = err
}

// ContentStorage exposes the CAS handle for workflows.
func (s *Store) ContentStorage() cas.ContentAddressableStorage { return s.content }

// MetaStorage exposes the EAV handle for workflows.
func (s *Store) MetaStorage() eav.EntityAttributeValueStorage { return s.meta }

func (s *Store) clone() *Store {
	next := &Store{
		content:     s.content,
		meta:        s.meta,
		Results:     make(map[int64]error, len(s.Results)+1),
		resultOrder: make([]int64, len(s.resultOrder), len(s.resultOrder)+1),
	}
	for id, err := range s.Results {
		next.Results[id] = err
	}
	copy(next.resultOrder, s.resultOrder)
	return next
}

// statusEav builds the crud-status row for an address. The status is stored
// as its decimal string directly in the value column.
func statusEav(address core.Address, status core.CrudStatus) *eav.EntityAttributeValueIndex {
	return eav.NewEavi(address, eav.AttrCrudStatus, core.Address(status.String()))
}

// Status returns the current lifecycle status of an address from the latest
// crud-status row. found is false when the address has no status at all.
func (s *Store) Status(address core.Address) (core.CrudStatus, bool, error) {
	attr := eav.AttrCrudStatus
	rows, err := s.meta.FetchEavi(&address, &attr, nil, eav.LatestOnly)
	if err != nil {
		return 0, false, err
	}
	if len(rows) == 0 {
		return 0, false, nil
	}
	// Rows are sorted by index; the newest one wins.
	status, err := core.ParseCrudStatus(string(rows[len(rows)-1].Value))
	if err != nil {
		return 0, false, err
	}
	return status, true, nil
}

// statusRows returns every crud-status row ever written for an address.
func (s *Store) statusRows(address core.Address) ([]*eav.EntityAttributeValueIndex, error) {
	attr := eav.AttrCrudStatus
	return s.meta.FetchEavi(&address, &attr, nil, eav.Between(0, int64(1)<<62))
}

// GetLinks returns the targets linked from base under tag, excluding links
// that have since been removed.
func (s *Store) GetLinks(base core.Address, tag string) ([]core.Address, error) {
	attr := eav.LinkTag(tag)
	rows, err := s.meta.FetchEavi(&base, &attr, nil, eav.LatestOnly)
	if err != nil {
		return nil, err
	}
	removed := eav.RemovedLinkTag(tag)
	removedRows, err := s.meta.FetchEavi(&base, &removed, nil, eav.LatestOnly)
	if err != nil {
		return nil, err
	}
	gone := make(map[core.Address]struct{}, len(removedRows))
	for _, row := range removedRows {
		gone[row.Value] = struct{}{}
	}

	targets := []core.Address{}
	for _, row := range rows {
		if _, ok := gone[row.Value]; ok {
			continue
		}
		targets = append(targets, row.Value)
	}
	return targets, nil
}

// AddHeaderForEntry records that header committed entry, storing the header
// in the CAS and pointing at it with an entry-header row.
func (s *Store) AddHeaderForEntry(entry *core.Entry, header *core.ChainHeader) error {
	if err := s.content.Add(header); err != nil {
		return err
	}
	_, err := s.meta.AddEavi(eav.NewEavi(entry.Address(), eav.AttrEntryHeader, header.Address()))
	return err
}

// HeadersForEntry returns every header known to have committed the entry at
// address.
func (s *Store) HeadersForEntry(address core.Address) ([]*core.ChainHeader, error) {
	attr := eav.AttrEntryHeader
	rows, err := s.meta.FetchEavi(&address, &attr, nil, eav.Between(0, int64(1)<<62))
	if err != nil {
		return nil, err
	}
	headers := make([]*core.ChainHeader, 0, len(rows))
	for _, row := range rows {
		content, found, err := s.content.Fetch(row.Value)
		if err != nil {
			return nil, err
		}
		if !found {
			return nil, common.NewHcErrorf(common.ErrIO, "entry-header row points at missing header %s", row.Value)
		}
		header, err := core.ChainHeaderFromContent(content)
		if err != nil {
			return nil, err
		}
		headers = append(headers, header)
	}
	return headers, nil
}

// HistoryItem is one generation of an entry's update lineage.
type HistoryItem struct {
	Address core.Address
	Entry   *core.Entry
	Status  core.CrudStatus
}

// History walks the crud-link chain starting at address, newest first. With
// latestOnly it returns only the final generation; a lineage ending in a
// deletion yields no items under latestOnly.
func (s *Store) History(address core.Address, latestOnly bool) ([]HistoryItem, error) {
	chain := []HistoryItem{}
	at := address
	for at != core.NilAddress {
		status, found, err := s.Status(at)
		if err != nil {
			return nil, err
		}
		if !found {
			break
		}
		item := HistoryItem{Address: at, Status: status}
		if status != core.StatusDeleted {
			content, ok, err := s.content.Fetch(at)
			if err != nil {
				return nil, err
			}
			if ok {
				entry, err := core.EntryFromContent(content)
				if err != nil {
					return nil, err
				}
				item.Entry = entry
			}
		}
		chain = append([]HistoryItem{item}, chain...)

		if status != core.StatusModified {
			break
		}
		next, err := s.crudLink(at)
		if err != nil {
			return nil, err
		}
		at = next
	}

	if latestOnly {
		if len(chain) == 0 {
			return nil, nil
		}
		head := chain[0]
		if head.Status == core.StatusDeleted {
			return nil, nil
		}
		return []HistoryItem{head}, nil
	}
	return chain, nil
}

// crudLink returns the newest crud-link value for address, NilAddress when
// none exists.
func (s *Store) crudLink(address core.Address) (core.Address, error) {
	attr := eav.AttrCrudLink
	rows, err := s.meta.FetchEavi(&address, &attr, nil, eav.LatestOnly)
	if err != nil {
		return core.NilAddress, err
	}
	if len(rows) == 0 {
		return core.NilAddress, nil
	}
	return rows[len(rows)-1].Value, nil
}
