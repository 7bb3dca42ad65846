package eav

import (
	"sort"
	"sync"

	"github.com/dynaput247/holochain-sub000/src/core"
)

// InmemEavStorage keeps rows in memory keyed by index. Safe for concurrent
// use.
type InmemEavStorage struct {
	sync.RWMutex
	rows map[int64]*EntityAttributeValueIndex
}

// NewInmemEavStorage instantiates an empty in-memory EAV store.
func NewInmemEavStorage() *InmemEavStorage {
	return &InmemEavStorage{
		rows: make(map[int64]*EntityAttributeValueIndex),
	}
}

// AddEavi implements EntityAttributeValueStorage. Indexes are globally
// unique; on collision the index is incremented until free, so two rows
// stamped in the same nanosecond both survive.
func (s *InmemEavStorage) AddEavi(eavi *EntityAttributeValueIndex) (*EntityAttributeValueIndex, error) {
	s.Lock()
	defer s.Unlock()

	stored := *eavi
	for {
		if _, taken := s.rows[stored.Index]; !taken {
			break
		}
		stored.Index++
	}
	s.rows[stored.Index] = &stored

	res := stored
	return &res, nil
}

// FetchEavi implements EntityAttributeValueStorage.
func (s *InmemEavStorage) FetchEavi(entity *core.Address, attribute *Attribute, value *core.Address, indexRange IndexRange) ([]*EntityAttributeValueIndex, error) {
	s.RLock()
	all := make([]*EntityAttributeValueIndex, 0, len(s.rows))
	for _, row := range s.rows {
		all = append(all, row)
	}
	s.RUnlock()

	return selectRows(all, entity, attribute, value, indexRange), nil
}

// Len returns the number of stored rows.
func (s *InmemEavStorage) Len() int {
	s.RLock()
	defer s.RUnlock()
	return len(s.rows)
}

// selectRows applies the fetch filters and range semantics shared by both
// backends. Rows come back sorted by index.
func selectRows(all []*EntityAttributeValueIndex, entity *core.Address, attribute *Attribute, value *core.Address, indexRange IndexRange) []*EntityAttributeValueIndex {
	matched := []*EntityAttributeValueIndex{}
	for _, row := range all {
		if entity != nil && row.Entity != *entity {
			continue
		}
		if attribute != nil && row.Attribute != *attribute {
			continue
		}
		if value != nil && row.Value != *value {
			continue
		}
		if !indexRange.isLatestOnly() && !indexRange.contains(row.Index) {
			continue
		}
		c := *row
		matched = append(matched, &c)
	}

	sort.Slice(matched, func(i, j int) bool {
		return matched[i].Index < matched[j].Index
	})

	if indexRange.isLatestOnly() {
		matched = latestPerGroup(matched)
	}
	return matched
}

// latestPerGroup keeps only the highest-index row of each (entity,
// attribute, value) group. Input must be sorted by index.
func latestPerGroup(rows []*EntityAttributeValueIndex) []*EntityAttributeValueIndex {
	latest := []*EntityAttributeValueIndex{}
	for _, row := range rows {
		replaced := false
		for i, kept := range latest {
			if kept.sameGroup(row) {
				latest[i] = row
				replaced = true
				break
			}
		}
		if !replaced {
			latest = append(latest, row)
		}
	}
	sort.Slice(latest, func(i, j int) bool {
		return latest[i].Index < latest[j].Index
	})
	return latest
}
